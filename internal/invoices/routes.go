package invoices

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices", h.List)
	r.Post("/invoices", h.Create)
	r.Get("/invoices/number/{number}", h.ShowByNumber)
	r.Get("/invoices/{id}", h.Show)
	r.Patch("/invoices/{id}", h.Update)
	r.Post("/invoices/{id}/items", h.AddItem)
	r.Patch("/invoices/{id}/items/{itemID}", h.UpdateItem)
	r.Delete("/invoices/{id}/items/{itemID}", h.RemoveItem)
	r.Post("/invoices/{id}/send", h.Send)
	r.Post("/invoices/{id}/pay", h.MarkPaid)
	r.Post("/invoices/{id}/cancel", h.Cancel)
	r.Post("/invoices/{id}/recalculate", h.Recalculate)
	r.Post("/invoices/from-expenses/{eventID}", h.GenerateFromExpenses)
	r.Post("/invoices/from-quote/{quoteID}", h.GenerateFromQuote)
}
