package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/encore-erp/encore-erp/internal/invoices"
	"github.com/encore-erp/encore-erp/internal/quotes"
	"github.com/encore-erp/encore-erp/internal/reports"
	"github.com/encore-erp/encore-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	QuoteHandler   *quotes.Handler
	InvoiceHandler *invoices.Handler
	ReportHandler  *reports.Handler
	JobHandler     *jobs.Handler
}

// NewRouter constructs the chi.Router with Encore defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(api chi.Router) {
		if params.QuoteHandler != nil {
			params.QuoteHandler.MountRoutes(api)
		}
		if params.InvoiceHandler != nil {
			params.InvoiceHandler.MountRoutes(api)
		}
		if params.ReportHandler != nil {
			params.ReportHandler.MountRoutes(api)
		}
		if params.JobHandler != nil {
			api.Route("/jobs", func(jr chi.Router) {
				params.JobHandler.MountRoutes(jr)
			})
		}
	})

	return r
}
