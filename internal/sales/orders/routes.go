package orders

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the order endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Get("/orders", h.List)
		r.Get("/orders/{id}", h.Show)
		r.Get("/orders/{id}/history", h.History)
	})
	r.Group(func(r chi.Router) {
		r.Post("/orders/{id}/status", h.UpdateStatus)
		r.Post("/orders/{id}/tracking", h.AddTracking)
	})
}
