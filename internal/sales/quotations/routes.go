package quotations

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the quotation endpoints under the caller's prefix.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Get("/quotations", h.List)
		r.Get("/quotations/{id}", h.Show)
		r.Get("/quotations/{id}/history", h.History)
	})
	r.Group(func(r chi.Router) {
		r.Post("/quotations", h.Create)
		r.Post("/quotations/{id}/status", h.UpdateStatus)
		r.Post("/quotations/{id}/convert", h.Convert)
		r.Post("/quotations/{id}/follow-ups", h.ScheduleFollowUp)
	})
}
