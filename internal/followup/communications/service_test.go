package communications

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-sales/internal/followup/schedule"
	"github.com/odyssey-erp/odyssey-sales/internal/messaging"
	"github.com/odyssey-erp/odyssey-sales/internal/sales/customers"
	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// ============================================================================
// MOCKS
// ============================================================================

type mockRepository struct {
	mu        sync.Mutex
	rows      []Communication
	insertErr error
}

func (m *mockRepository) Insert(_ context.Context, c Communication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	for _, existing := range m.rows {
		if existing.ID == c.ID {
			return nil
		}
	}
	m.rows = append(m.rows, c)
	return nil
}

func (m *mockRepository) ListByCustomer(_ context.Context, customerID string, page shared.Page) ([]Communication, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []Communication
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].CustomerID == customerID {
			all = append(all, m.rows[i])
		}
	}
	total := len(all)
	if page.Offset >= total {
		return nil, total, nil
	}
	end := min(page.Offset+page.Limit, total)
	return all[page.Offset:end], total, nil
}

func (m *mockRepository) Latest(ctx context.Context, customerID string) (*Communication, error) {
	list, _, err := m.ListByCustomer(ctx, customerID, shared.Page{Limit: 1})
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

func (m *mockRepository) UpdateStatusByExternalID(_ context.Context, externalID string, status Status) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.rows {
		if m.rows[i].ExternalID != nil && *m.rows[i].ExternalID == externalID {
			m.rows[i].Status = status
			n++
		}
	}
	return n, nil
}

type stubCustomers map[string]*customers.Customer

func (s stubCustomers) Get(_ context.Context, id string) (*customers.Customer, error) {
	c, ok := s[id]
	if !ok {
		return nil, shared.NotFound("customer", id)
	}
	return c, nil
}

type fakeFollowUps struct {
	mu        sync.Mutex
	scheduled []schedule.ScheduleRequest
	next      *schedule.FollowUp
}

func (f *fakeFollowUps) Schedule(_ context.Context, req schedule.ScheduleRequest) (*schedule.FollowUp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, req)
	return &schedule.FollowUp{ID: "fu-1", CustomerID: req.CustomerID, Type: req.Type, ScheduledAt: req.ScheduledAt, Status: schedule.StatusPending}, nil
}

func (f *fakeFollowUps) ListByCustomer(_ context.Context, customerID string, _ shared.Page) ([]schedule.FollowUp, int, error) {
	if f.next == nil {
		return nil, 0, nil
	}
	return []schedule.FollowUp{*f.next}, 1, nil
}

func (f *fakeFollowUps) NextPending(context.Context, string) (*schedule.FollowUp, error) {
	return f.next, nil
}

type fakeSender struct {
	err       error
	templates []string
	texts     []string
	phones    []string
}

func (s *fakeSender) SendTemplate(_ context.Context, phone, template string, _ []string) (string, error) {
	s.phones = append(s.phones, phone)
	s.templates = append(s.templates, template)
	if s.err != nil {
		return "", s.err
	}
	return "wamid.1", nil
}

func (s *fakeSender) SendText(_ context.Context, phone, body string) (string, error) {
	s.phones = append(s.phones, phone)
	s.texts = append(s.texts, body)
	if s.err != nil {
		return "", s.err
	}
	return "wamid.2", nil
}

type fakeFallback struct {
	recorded []Communication
	err      error
}

func (f *fakeFallback) RecordLater(_ context.Context, c Communication) error {
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, c)
	return nil
}

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate(context.Context) { c.n++ }

// ============================================================================
// HELPERS
// ============================================================================

var testNow = time.Date(2024, time.May, 6, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc       *Service
	repo      *mockRepository
	followUps *fakeFollowUps
	sender    *fakeSender
	inv       *countingInvalidator
	logs      *bytes.Buffer
}

func newFixture() *fixture {
	f := &fixture{
		repo:      &mockRepository{},
		followUps: &fakeFollowUps{},
		sender:    &fakeSender{},
		inv:       &countingInvalidator{},
		logs:      &bytes.Buffer{},
	}
	custs := stubCustomers{
		"cust-1": {ID: "cust-1", Name: "Budi", Phone: "0812-3456-7890", Type: customers.TypeB2C},
		"cust-2": {ID: "cust-2", Name: "No Phone", Phone: "123", Type: customers.TypeB2C},
	}
	logger := slog.New(slog.NewTextHandler(f.logs, nil))
	f.svc = NewService(f.repo, custs, f.followUps, f.sender, messaging.NewPhoneNormalizer("ID"), logger)
	f.svc.now = func() time.Time { return testNow }
	f.svc.SetInvalidator(f.inv)
	return f
}

// ============================================================================
// TESTS
// ============================================================================

func TestLogDefaultsToSent(t *testing.T) {
	f := newFixture()
	c, err := f.svc.Log(context.Background(), LogRequest{
		CustomerID: "cust-1",
		Type:       TypePhone,
		Direction:  DirectionOutbound,
		Content:    "called about QUO/2024/05/0003",
		ActorID:    "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, c.Status)
	assert.Equal(t, testNow, c.CreatedAt)
	assert.Len(t, f.repo.rows, 1)
	assert.Equal(t, 1, f.inv.n)
}

func TestLogValidation(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Log(context.Background(), LogRequest{CustomerID: "cust-1", Type: "FAX", Direction: DirectionInbound, Content: "x", ActorID: "u"})
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Empty(t, f.repo.rows)
}

func TestLogPersistenceFailure(t *testing.T) {
	f := newFixture()
	f.repo.insertErr = errors.New("disk full")
	_, err := f.svc.Log(context.Background(), LogRequest{CustomerID: "cust-1", Type: TypeEmail, Direction: DirectionInbound, Content: "x", ActorID: "u"})
	assert.ErrorIs(t, err, shared.ErrPersistence)
}

func TestSendFollowUpMessage(t *testing.T) {
	f := newFixture()
	quoteID := "quo-1"
	when := testNow.Add(48 * time.Hour)

	res, err := f.svc.SendFollowUpMessage(context.Background(), SendRequest{
		CustomerID:   "cust-1",
		QuotationID:  &quoteID,
		Template:     "quotation_reminder",
		Params:       []string{"Budi"},
		ActorID:      "user-1",
		FollowUpAt:   &when,
		FollowUpType: schedule.TypeQuotationFollowUp,
	})
	require.NoError(t, err)

	assert.True(t, res.Recorded)
	assert.Equal(t, []string{"+6281234567890"}, f.sender.phones)
	require.NotNil(t, res.Communication.ExternalID)
	assert.Equal(t, "wamid.1", *res.Communication.ExternalID)
	assert.Equal(t, StatusSent, res.Communication.Status)
	assert.Equal(t, TypeWhatsApp, res.Communication.Type)
	require.Len(t, f.repo.rows, 1)
	assert.Equal(t, res.Communication.ID, f.repo.rows[0].ID)

	require.NotNil(t, res.FollowUp)
	require.Len(t, f.followUps.scheduled, 1)
	assert.Equal(t, schedule.TypeQuotationFollowUp, f.followUps.scheduled[0].Type)
	assert.Equal(t, when, f.followUps.scheduled[0].ScheduledAt)
}

func TestSendFollowUpMessagePastFollowUpIgnored(t *testing.T) {
	f := newFixture()
	past := testNow.Add(-time.Hour)
	res, err := f.svc.SendFollowUpMessage(context.Background(), SendRequest{
		CustomerID: "cust-1", Text: "hello", ActorID: "user-1", FollowUpAt: &past,
	})
	require.NoError(t, err)
	assert.Nil(t, res.FollowUp)
	assert.Empty(t, f.followUps.scheduled)
	assert.Equal(t, []string{"hello"}, f.sender.texts)
}

func TestSendFollowUpMessageUnknownCustomer(t *testing.T) {
	f := newFixture()
	_, err := f.svc.SendFollowUpMessage(context.Background(), SendRequest{CustomerID: "ghost", Text: "hi", ActorID: "u"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Empty(t, f.sender.phones)
}

func TestSendFollowUpMessageBadPhone(t *testing.T) {
	f := newFixture()
	_, err := f.svc.SendFollowUpMessage(context.Background(), SendRequest{CustomerID: "cust-2", Text: "hi", ActorID: "u"})
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Empty(t, f.sender.phones)
}

func TestSendFollowUpMessageTemplateAndTextExclusive(t *testing.T) {
	f := newFixture()
	_, err := f.svc.SendFollowUpMessage(context.Background(), SendRequest{CustomerID: "cust-1", Template: "t", Text: "x", ActorID: "u"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.SendFollowUpMessage(context.Background(), SendRequest{CustomerID: "cust-1", ActorID: "u"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestSendFailureIsLoggedAsFailed(t *testing.T) {
	f := newFixture()
	f.sender.err = errors.New("connection refused")

	_, err := f.svc.SendFollowUpMessage(context.Background(), SendRequest{CustomerID: "cust-1", Text: "hi", ActorID: "u"})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrExternalService)

	require.Len(t, f.repo.rows, 1)
	assert.Equal(t, StatusFailed, f.repo.rows[0].Status)
	assert.Nil(t, f.repo.rows[0].ExternalID)
}

func TestSendSucceedsWhenLoggingFails(t *testing.T) {
	t.Run("fallback recorder takes the row", func(t *testing.T) {
		f := newFixture()
		fb := &fakeFallback{}
		f.svc.SetFallback(fb)
		f.repo.insertErr = errors.New("db down")

		res, err := f.svc.SendFollowUpMessage(context.Background(), SendRequest{CustomerID: "cust-1", Text: "hi", ActorID: "u"})
		require.NoError(t, err)
		assert.False(t, res.Recorded)
		require.Len(t, fb.recorded, 1)
		assert.Equal(t, res.Communication.ID, fb.recorded[0].ID)
		assert.Equal(t, "wamid.2", *fb.recorded[0].ExternalID)
	})

	t.Run("without fallback every field reaches the log", func(t *testing.T) {
		f := newFixture()
		f.repo.insertErr = errors.New("db down")

		res, err := f.svc.SendFollowUpMessage(context.Background(), SendRequest{CustomerID: "cust-1", Text: "see you", ActorID: "u"})
		require.NoError(t, err)
		assert.False(t, res.Recorded)

		out := f.logs.String()
		assert.Contains(t, out, "communication not recorded")
		assert.Contains(t, out, res.Communication.ID)
		assert.Contains(t, out, "external_id=wamid.2")
		assert.Contains(t, out, `content="see you"`)
	})
}

func TestRecordIsIdempotent(t *testing.T) {
	f := newFixture()
	c := Communication{ID: "c-1", CustomerID: "cust-1", Type: TypeWhatsApp, Direction: DirectionOutbound, Content: "x", Status: StatusSent, ActorID: "u"}
	require.NoError(t, f.svc.Record(context.Background(), c))
	require.NoError(t, f.svc.Record(context.Background(), c))
	assert.Len(t, f.repo.rows, 1)
}

func TestUpdateStatusByExternalID(t *testing.T) {
	f := newFixture()
	ext := "wamid.X"
	for i := 0; i < 2; i++ {
		_, err := f.svc.Log(context.Background(), LogRequest{
			CustomerID: "cust-1", Type: TypeWhatsApp, Direction: DirectionOutbound, Content: "x", ActorID: "u", ExternalID: &ext,
		})
		require.NoError(t, err)
	}

	n, err := f.svc.UpdateStatusByExternalID(context.Background(), ext, StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, row := range f.repo.rows {
		assert.Equal(t, StatusDelivered, row.Status)
	}

	_, err = f.svc.UpdateStatusByExternalID(context.Background(), ext, "BOUNCED")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestCustomerHistory(t *testing.T) {
	f := newFixture()
	f.followUps.next = &schedule.FollowUp{ID: "fu-9", CustomerID: "cust-1", ScheduledAt: testNow.Add(time.Hour), Status: schedule.StatusPending}
	for _, content := range []string{"first", "second", "third"} {
		_, err := f.svc.Log(context.Background(), LogRequest{
			CustomerID: "cust-1", Type: TypeEmail, Direction: DirectionOutbound, Content: content, ActorID: "u",
		})
		require.NoError(t, err)
	}

	h, err := f.svc.CustomerHistory(context.Background(), "cust-1", 2, 0)
	require.NoError(t, err)
	assert.Len(t, h.Communications, 2)
	assert.Equal(t, 3, h.TotalCommunications)
	assert.Equal(t, 1, h.TotalFollowUps)
	require.NotNil(t, h.LastCommunication)
	assert.Equal(t, "third", h.LastCommunication.Content)
	require.NotNil(t, h.NextFollowUp)
	assert.Equal(t, "fu-9", h.NextFollowUp.ID)
	assert.Equal(t, 2, h.Pagination.TotalPages)

	empty, err := f.svc.CustomerHistory(context.Background(), "cust-2", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, empty.Communications)
	assert.Nil(t, empty.LastCommunication)
}

func TestWebhookAppliesReceipts(t *testing.T) {
	f := newFixture()
	ext := "wamid.HBg"
	_, err := f.svc.Log(context.Background(), LogRequest{
		CustomerID: "cust-1", Type: TypeWhatsApp, Direction: DirectionOutbound, Content: "x", ActorID: "u", ExternalID: &ext,
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(f.logs, nil)), f.svc).MountWebhooks(r)

	body := `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{
		"statuses":[{"id":"wamid.HBg","status":"read","timestamp":"1714990000"},{"id":"wamid.HBg","status":"deleted"}]}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated":1}`, rec.Body.String())
	assert.Equal(t, StatusRead, f.repo.rows[0].Status)
}

func TestWebhookSignatureAndHandshake(t *testing.T) {
	f := newFixture()
	h := NewHandler(slog.New(slog.NewTextHandler(f.logs, nil)), f.svc)
	h.SetWebhookSecrets(WebhookSecrets{AppSecret: "s3cret", VerifyToken: "tok"})
	r := chi.NewRouter()
	h.MountWebhooks(r)

	body := `{"object":"whatsapp_business_account","entry":[]}`
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write([]byte(body))
	signature := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	t.Run("valid signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
		req.Header.Set("X-Hub-Signature-256", signature)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("tampered body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body+" "))
		req.Header.Set("X-Hub-Signature-256", signature)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("handshake echoes challenge", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=tok&hub.challenge=42", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "42", rec.Body.String())
	})

	t.Run("handshake with wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

type memoryKeys struct {
	claimed map[string]bool
}

func (m *memoryKeys) CheckAndInsert(_ context.Context, key, scope string) error {
	if m.claimed[scope+"|"+key] {
		return shared.AlreadyExists("request", key, scope)
	}
	m.claimed[scope+"|"+key] = true
	return nil
}

func (m *memoryKeys) Delete(_ context.Context, key, scope string) error {
	delete(m.claimed, scope+"|"+key)
	return nil
}

func TestSendHonoursIdempotencyKey(t *testing.T) {
	f := newFixture()
	keys := &memoryKeys{claimed: map[string]bool{}}
	h := NewHandler(slog.New(slog.NewTextHandler(f.logs, nil)), f.svc)
	h.SetKeyStore(keys)
	r := chi.NewRouter()
	h.MountRoutes(r)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/communications/send",
			strings.NewReader(`{"customerId":"cust-1","text":"see you","actorId":"user-1"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(shared.IdempotencyKeyHeader, "send-1")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusCreated, send().Code)
	assert.Equal(t, http.StatusConflict, send().Code)
	assert.Len(t, f.sender.texts, 1)

	t.Run("failed send releases the key", func(t *testing.T) {
		f.sender.err = errors.New("provider down")
		keys.claimed = map[string]bool{}
		assert.Equal(t, http.StatusBadGateway, send().Code)
		assert.Empty(t, keys.claimed)
	})
}
