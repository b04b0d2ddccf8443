package customers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-sales/internal/platform/httpx"
)

// Handler exposes customer master data over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the customer handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) respondErr(w http.ResponseWriter, msg string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondErr(w, "get customer failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.respondErr(w, "create customer failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Addresses(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondErr(w, "list addresses failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) AddAddress(w http.ResponseWriter, r *http.Request) {
	var req AddAddressRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	a, err := h.service.AddAddress(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.respondErr(w, "add address failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}
