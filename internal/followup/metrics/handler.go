package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-sales/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// Handler exposes the effectiveness report.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the metrics handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the report endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reports/communications", h.Communications)
}

// Communications serves the report. Dates are whole days in the business
// time zone.
func (h *Handler) Communications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{ActorID: q.Get("actor")}
	if raw := q.Get("start"); raw != "" {
		start, err := time.ParseInLocation(time.DateOnly, raw, h.service.loc)
		if err != nil {
			httpx.RespondError(w, shared.Validation("start must be YYYY-MM-DD", err))
			return
		}
		filter.Start = &start
	}
	if raw := q.Get("end"); raw != "" {
		end, err := time.ParseInLocation(time.DateOnly, raw, h.service.loc)
		if err != nil {
			httpx.RespondError(w, shared.Validation("end must be YYYY-MM-DD", err))
			return
		}
		end = end.AddDate(0, 0, 1).Add(-time.Nanosecond)
		filter.End = &end
	}

	m, err := h.service.CommunicationMetrics(r.Context(), filter)
	if err != nil {
		if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
			h.logger.Error("communication metrics failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}
