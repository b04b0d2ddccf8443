package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

func TestPhoneNormalizer(t *testing.T) {
	p := NewPhoneNormalizer("")

	got, err := p.Normalize("0812-3456-7890")
	require.NoError(t, err)
	assert.Equal(t, "+6281234567890", got)

	got, err = p.Normalize("+62 812 3456 7890")
	require.NoError(t, err)
	assert.Equal(t, "+6281234567890", got)

	for _, raw := range []string{"", "   ", "not a phone", "12345"} {
		_, err := p.Normalize(raw)
		assert.ErrorIs(t, err, shared.ErrValidation, raw)
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *WhatsAppClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewWhatsAppClient(srv.Client(), WhatsAppConfig{
		BaseURL:       srv.URL + "/v19.0",
		PhoneNumberID: "1055",
		Token:         "secret",
	})
}

func TestSendTemplate(t *testing.T) {
	var got sendRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/1055/messages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.ABC"}]}`))
	})

	id, err := client.SendTemplate(context.Background(), "+6281234567890", "quotation_reminder", []string{"Budi", "QUO/2024/01/0001"})
	require.NoError(t, err)
	assert.Equal(t, "wamid.ABC", id)

	assert.Equal(t, "6281234567890", got.To)
	assert.Equal(t, "template", got.Type)
	require.NotNil(t, got.Template)
	assert.Equal(t, "quotation_reminder", got.Template.Name)
	assert.Equal(t, "id", got.Template.Language.Code)
	require.Len(t, got.Template.Components, 1)
	assert.Equal(t, "QUO/2024/01/0001", got.Template.Components[0].Parameters[1].Text)
}

func TestSendTextProviderError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Recipient not on WhatsApp","code":131026}}`))
	})

	_, err := client.SendText(context.Background(), "+6281234567890", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrExternalService)
	assert.Contains(t, err.Error(), "Recipient not on WhatsApp")
}

func TestSendTextMissingMessageID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messages":[]}`))
	})

	_, err := client.SendText(context.Background(), "+6281234567890", "hello")
	assert.ErrorIs(t, err, shared.ErrExternalService)
}

func TestCircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 5; i++ {
		_, err := client.SendText(context.Background(), "+6281234567890", "hello")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, client.cb.State())

	_, err := client.SendText(context.Background(), "+6281234567890", "hello")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.ErrorIs(t, err, shared.ErrExternalService)
	assert.Equal(t, int32(5), calls.Load())
}

type countingRecorder struct {
	kinds  []string
	failed int
}

func (c *countingRecorder) RecordMessage(kind string, err error) {
	c.kinds = append(c.kinds, kind)
	if err != nil {
		c.failed++
	}
}

func TestInstrument(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.OK"}]}`))
	})
	rec := &countingRecorder{}
	sender := Instrument(client, rec)

	_, err := sender.SendText(context.Background(), "+6281234567890", "hi")
	require.NoError(t, err)
	_, err = sender.SendTemplate(context.Background(), "+6281234567890", "t", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"text", "template"}, rec.kinds)
	assert.Zero(t, rec.failed)
	assert.Same(t, client, Instrument(client, nil).(*WhatsAppClient))
}
