package customers

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the customer endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/customers", h.Create)
	r.Get("/customers/{id}", h.Show)
	r.Get("/customers/{id}/addresses", h.ListAddresses)
	r.Post("/customers/{id}/addresses", h.AddAddress)
}
