package communications

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers the communication endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/communications", h.Log)
	r.Get("/customers/{id}/communications", h.History)
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(30, time.Minute))
		r.Post("/communications/send", h.Send)
	})
}

// MountWebhooks registers the provider callbacks. They sit outside the
// authenticated API and carry their own rate limit.
func (h *Handler) MountWebhooks(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(600, time.Minute))
		r.Get("/webhooks/whatsapp", h.VerifyWebhook)
		r.Post("/webhooks/whatsapp", h.Webhook)
	})
}
