package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// WhatsAppConfig points the client at a Cloud API compatible endpoint.
type WhatsAppConfig struct {
	BaseURL       string
	PhoneNumberID string
	Token         string
	Language      string
	Timeout       time.Duration
}

// WhatsAppClient sends messages through the WhatsApp Business Cloud API.
// Calls fail fast while the circuit breaker is open.
type WhatsAppClient struct {
	httpClient *http.Client
	cfg        WhatsAppConfig
	cb         *gobreaker.CircuitBreaker
}

// NewWhatsAppClient constructs the client. A nil httpClient gets one bounded
// by cfg.Timeout.
func NewWhatsAppClient(httpClient *http.Client, cfg WhatsAppConfig) *WhatsAppClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Language == "" {
		cfg.Language = "id"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &WhatsAppClient{
		httpClient: httpClient,
		cfg:        cfg,
		cb:         NewCircuitBreaker("whatsapp"),
	}
}

// NewCircuitBreaker opens after at least five requests in a 30s window of
// which 60% failed, and retries after 10s.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	})
}

type textBody struct {
	Body string `json:"body"`
}

type templateParam struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type templateComponent struct {
	Type       string          `json:"type"`
	Parameters []templateParam `json:"parameters"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateBody struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []templateComponent `json:"components,omitempty"`
}

type sendRequest struct {
	MessagingProduct string        `json:"messaging_product"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *textBody     `json:"text,omitempty"`
	Template         *templateBody `json:"template,omitempty"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// SendTemplate delivers an approved template with positional body parameters.
func (c *WhatsAppClient) SendTemplate(ctx context.Context, phone, template string, params []string) (string, error) {
	tpl := &templateBody{Name: template, Language: templateLanguage{Code: c.cfg.Language}}
	if len(params) > 0 {
		comp := templateComponent{Type: "body"}
		for _, p := range params {
			comp.Parameters = append(comp.Parameters, templateParam{Type: "text", Text: p})
		}
		tpl.Components = []templateComponent{comp}
	}
	return c.send(ctx, sendRequest{MessagingProduct: "whatsapp", To: recipient(phone), Type: "template", Template: tpl})
}

// SendText delivers a free-form message.
func (c *WhatsAppClient) SendText(ctx context.Context, phone, body string) (string, error) {
	return c.send(ctx, sendRequest{MessagingProduct: "whatsapp", To: recipient(phone), Type: "text", Text: &textBody{Body: body}})
}

// recipient strips the leading plus the API does not expect.
func recipient(phone string) string {
	return strings.TrimPrefix(phone, "+")
}

func (c *WhatsAppClient) send(ctx context.Context, payload sendRequest) (string, error) {
	result, err := c.cb.Execute(func() (any, error) {
		return c.post(ctx, payload)
	})
	if err != nil {
		return "", shared.ExternalService("whatsapp", err)
	}
	return result.(string), nil
}

func (c *WhatsAppClient) post(ctx context.Context, payload sendRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	url := fmt.Sprintf("%s/%s/messages", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	var out sendResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil && resp.StatusCode < 300 {
			return "", fmt.Errorf("decode response: %w", err)
		}
	}
	if resp.StatusCode >= 300 {
		if out.Error != nil {
			return "", fmt.Errorf("whatsapp API returned status %d: %s (code %d)", resp.StatusCode, out.Error.Message, out.Error.Code)
		}
		return "", fmt.Errorf("whatsapp API returned status %d", resp.StatusCode)
	}
	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return "", errors.New("whatsapp API returned no message id")
	}
	return out.Messages[0].ID, nil
}
