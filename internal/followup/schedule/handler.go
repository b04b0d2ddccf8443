package schedule

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-sales/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// Handler exposes follow-up reminders over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the follow-up handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

type notesRequest struct {
	Notes *string `json:"notes,omitempty"`
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.ActorID == "" {
		req.ActorID = shared.ActorFromContext(r.Context())
	}
	f, err := h.service.Schedule(r.Context(), req)
	if err != nil {
		h.fail(w, r, "schedule follow-up failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, f)
}

func (h *Handler) Today(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.DueToday(r.Context(), r.URL.Query().Get("actor"))
	if err != nil {
		h.fail(w, r, "follow-ups due today failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": nonNil(list)})
}

func (h *Handler) Overdue(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Overdue(r.Context(), r.URL.Query().Get("actor"))
	if err != nil {
		h.fail(w, r, "overdue follow-ups failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": nonNil(list)})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	f, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "get follow-up failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.finish(w, r, h.service.Complete)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.finish(w, r, h.service.Cancel)
}

func (h *Handler) finish(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string, notes *string) (*FollowUp, error)) {
	var req notesRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	f, err := op(r.Context(), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		h.fail(w, r, "update follow-up failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}

func (h *Handler) ListByCustomer(w http.ResponseWriter, r *http.Request) {
	page := shared.NewPage(httpx.QueryInt(r, "limit", 20), httpx.QueryInt(r, "offset", 0))
	list, total, err := h.service.ListByCustomer(r.Context(), chi.URLParam(r, "id"), page)
	if err != nil {
		h.fail(w, r, "list customer follow-ups failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       nonNil(list),
		"pagination": shared.NewPagination(page, total),
	})
}

func nonNil(list []FollowUp) []FollowUp {
	if list == nil {
		return []FollowUp{}
	}
	return list
}

// MountRoutes registers the follow-up endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/follow-ups", h.Create)
	r.Get("/follow-ups/today", h.Today)
	r.Get("/follow-ups/overdue", h.Overdue)
	r.Get("/follow-ups/{id}", h.Show)
	r.Post("/follow-ups/{id}/complete", h.Complete)
	r.Post("/follow-ups/{id}/cancel", h.Cancel)
	r.Get("/customers/{id}/follow-ups", h.ListByCustomer)
}
