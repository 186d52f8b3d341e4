package reports

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/encore-erp/encore-erp/internal/platform/httpx"
)

// Handler exposes the reporting operations over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reports/events/{eventID}/expenses", h.ExpenseSummary)
	r.Get("/reports/events/{eventID}/profitability", h.Profitability)
}

func (h *Handler) ExpenseSummary(w http.ResponseWriter, r *http.Request) {
	eventID, err := strconv.ParseInt(chi.URLParam(r, "eventID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid event id")
		return
	}
	summary, err := h.service.ExpenseSummary(r.Context(), eventID)
	if err != nil {
		h.logger.Error("expense summary", slog.Any("error", err), slog.Int64("event_id", eventID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) Profitability(w http.ResponseWriter, r *http.Request) {
	eventID, err := strconv.ParseInt(chi.URLParam(r, "eventID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid event id")
		return
	}
	report, err := h.service.Profitability(r.Context(), eventID)
	if err != nil {
		h.logger.Error("profitability report", slog.Any("error", err), slog.Int64("event_id", eventID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
