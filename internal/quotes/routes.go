package quotes

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers quote routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/quotes", h.List)
	r.Post("/quotes", h.Create)
	r.Get("/quotes/number/{number}", h.ShowByNumber)
	r.Get("/quotes/{id}", h.Show)
	r.Get("/quotes/{id}/history", h.History)
	r.Post("/quotes/{id}/items", h.AddItem)
	r.Patch("/quotes/{id}/items/{itemID}", h.UpdateItem)
	r.Delete("/quotes/{id}/items/{itemID}", h.RemoveItem)
	r.Post("/quotes/{id}/send", h.Send)
	r.Post("/quotes/{id}/approve", h.Approve)
	r.Post("/quotes/{id}/reject", h.Reject)
	r.Post("/quotes/{id}/versions", h.CreateVersion)
	r.Post("/quotes/{id}/recalculate", h.Recalculate)
}
