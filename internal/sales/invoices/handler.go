package invoices

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-sales/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// Handler exposes invoicing and payment over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the invoice handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.GenerateInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "generate invoice failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) ShowForOrder(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.GetByOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "get order invoice failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		CustomerID: r.URL.Query().Get("customer_id"),
		Status:     Status(r.URL.Query().Get("status")),
		Limit:      httpx.QueryInt(r, "limit", 20),
		Offset:     httpx.QueryInt(r, "offset", 0),
	}
	list, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list invoices failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       list,
		"pagination": shared.NewPagination(shared.NewPage(filter.Limit, filter.Offset), total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "get invoice failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	var req PaymentInfo
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.ProcessPayment(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, r, "process payment failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	inv, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.fail(w, r, "cancel invoice failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) RequestTaxInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.RequestTaxInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "request tax invoice failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}
