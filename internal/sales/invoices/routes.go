package invoices

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the invoice endpoints, including the order scoped
// generation route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders/{id}/invoice", h.Generate)
	r.Get("/orders/{id}/invoice", h.ShowForOrder)
	r.Get("/invoices", h.List)
	r.Get("/invoices/{id}", h.Show)
	r.Post("/invoices/{id}/payments", h.Pay)
	r.Post("/invoices/{id}/cancel", h.Cancel)
	r.Post("/invoices/{id}/tax-invoice", h.RequestTaxInvoice)
}
