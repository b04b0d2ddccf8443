package communications

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-sales/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

const sendScope = "communications.send"

// KeyStore claims Idempotency-Key values for the send endpoint.
type KeyStore interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
	Delete(ctx context.Context, key, scope string) error
}

// Handler exposes the communication log and the provider webhook.
type Handler struct {
	logger  *slog.Logger
	service *Service
	keys    KeyStore
	secrets WebhookSecrets
}

// NewHandler constructs the communication handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// SetKeyStore makes sends with an Idempotency-Key header run at most once
// per key.
func (h *Handler) SetKeyStore(keys KeyStore) {
	h.keys = keys
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) Log(w http.ResponseWriter, r *http.Request) {
	var req LogRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.ActorID == "" {
		req.ActorID = shared.ActorFromContext(r.Context())
	}
	c, err := h.service.Log(r.Context(), req)
	if err != nil {
		h.fail(w, r, "log communication failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.ActorID == "" {
		req.ActorID = shared.ActorFromContext(r.Context())
	}
	key := r.Header.Get(shared.IdempotencyKeyHeader)
	if key != "" && h.keys != nil {
		if err := h.keys.CheckAndInsert(r.Context(), key, sendScope); err != nil {
			h.fail(w, r, "claim idempotency key failed", err)
			return
		}
	}
	res, err := h.service.SendFollowUpMessage(r.Context(), req)
	if err != nil {
		if key != "" && h.keys != nil {
			if derr := h.keys.Delete(r.Context(), key, sendScope); derr != nil {
				h.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", derr))
			}
		}
		h.fail(w, r, "send follow-up message failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	hist, err := h.service.CustomerHistory(r.Context(), chi.URLParam(r, "id"),
		httpx.QueryInt(r, "limit", 20), httpx.QueryInt(r, "offset", 0))
	if err != nil {
		h.fail(w, r, "communication history failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, hist)
}

// webhookPayload is the subset of the WhatsApp Cloud API notification that
// carries delivery receipts.
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Statuses []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
				} `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Callbacks returns the receipts carried by the payload.
func (p webhookPayload) Callbacks() []StatusCallback {
	var out []StatusCallback
	for _, e := range p.Entry {
		for _, c := range e.Changes {
			for _, st := range c.Value.Statuses {
				out = append(out, StatusCallback{ExternalID: st.ID, Status: Status(strings.ToUpper(st.Status))})
			}
		}
	}
	return out
}

// WebhookSecrets authenticate the provider. An empty AppSecret disables
// signature checks; an empty VerifyToken rejects every subscription.
type WebhookSecrets struct {
	AppSecret   string
	VerifyToken string
}

const (
	signatureHeader = "X-Hub-Signature-256"
	maxWebhookBody  = 1 << 20
)

// SetWebhookSecrets configures webhook authentication.
func (h *Handler) SetWebhookSecrets(secrets WebhookSecrets) {
	h.secrets = secrets
}

// VerifyWebhook answers the provider's subscription handshake.
func (h *Handler) VerifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("hub.verify_token")
	if q.Get("hub.mode") != "subscribe" || h.secrets.VerifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.secrets.VerifyToken)) != 1 {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

// validSignature checks the sha256=<hex> HMAC of body under the app secret.
func (h *Handler) validSignature(header string, body []byte) bool {
	if h.secrets.AppSecret == "" {
		return true
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, "sha256="))
	if err != nil || !strings.HasPrefix(header, "sha256=") {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.secrets.AppSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Webhook applies WhatsApp delivery receipts. Unknown statuses are skipped
// so the provider does not retry the whole batch.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err))
		return
	}
	if !h.validSignature(r.Header.Get(signatureHeader), body) {
		h.logger.Warn("rejecting unsigned webhook", slog.String("remote", r.RemoteAddr))
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	var payload webhookPayload
	// The provider adds fields over time; decode leniently.
	if err := json.Unmarshal(body, &payload); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err))
		return
	}
	updated := 0
	for _, cb := range payload.Callbacks() {
		if err := shared.ValidateStruct(cb); err != nil {
			h.logger.Warn("skipping delivery receipt", slog.String("external_id", cb.ExternalID), slog.String("status", string(cb.Status)))
			continue
		}
		n, err := h.service.UpdateStatusByExternalID(r.Context(), cb.ExternalID, cb.Status)
		if err != nil {
			h.fail(w, r, "apply delivery receipt failed", err)
			return
		}
		updated += n
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"updated": updated})
}
