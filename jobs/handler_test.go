package jobs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func newTestRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/jobs", func(jr chi.Router) {
		h.MountRoutes(jr)
	})
	return r
}

func TestSweepEndpointRequiresClient(t *testing.T) {
	router := newTestRouter(NewHandler(nil, nil, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/sweeps/quotes", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSweepEndpointEnqueuesTask(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	router := newTestRouter(NewHandler(nil, client, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/sweeps/invoices", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), `"queue":"default"`)
}
