package orders

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-sales/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// Handler exposes the order lifecycle over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the order handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		CustomerID: q.Get("customer_id"),
		Status:     Status(q.Get("status")),
		Limit:      httpx.QueryInt(r, "limit", 20),
		Offset:     httpx.QueryInt(r, "offset", 0),
	}
	if from, err := time.Parse(time.DateOnly, q.Get("date_from")); err == nil {
		filter.From = from
	}
	if to, err := time.Parse(time.DateOnly, q.Get("date_to")); err == nil {
		filter.To = to.Add(24*time.Hour - time.Nanosecond)
	}

	list, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list orders failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       list,
		"pagination": shared.NewPagination(shared.NewPage(filter.Limit, filter.Offset), total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "get order failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	logs, err := h.service.StatusHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "order history failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, logs)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status, shared.ActorFromContext(r.Context()), req.Notes)
	if err != nil {
		h.fail(w, r, "update order status failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) AddTracking(w http.ResponseWriter, r *http.Request) {
	var req TrackingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.AddTrackingNumber(r.Context(), chi.URLParam(r, "id"), req.TrackingNumber, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "add tracking number failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}
