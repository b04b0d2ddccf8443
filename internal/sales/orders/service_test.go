package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-sales/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	orders     map[string]*Order
	orderLogs  []StatusLog
	quotations map[string]*quotations.Quotation
	quoteLogs  []quotations.StatusLog

	// Error injection
	insertOrderLogError error
	numberConflicts     int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		orders:     make(map[string]*Order),
		quotations: make(map[string]*quotations.Quotation),
	}
}

// WithTx restores every map when fn fails so tests can observe rollback.
func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	orders := make(map[string]Order, len(m.orders))
	for id, o := range m.orders {
		orders[id] = *o
	}
	quotes := make(map[string]quotations.Quotation, len(m.quotations))
	for id, q := range m.quotations {
		quotes[id] = *q
	}
	orderLogs, quoteLogs := len(m.orderLogs), len(m.quoteLogs)

	if err := fn(ctx, m); err != nil {
		m.orders = make(map[string]*Order, len(orders))
		for id, o := range orders {
			o := o
			m.orders[id] = &o
		}
		m.quotations = make(map[string]*quotations.Quotation, len(quotes))
		for id, q := range quotes {
			q := q
			m.quotations[id] = &q
		}
		m.orderLogs = m.orderLogs[:orderLogs]
		m.quoteLogs = m.quoteLogs[:quoteLogs]
		return err
	}
	return nil
}

func (m *mockRepository) Quotations() QuotationStore { return mockQuotationStore{m} }

func (m *mockRepository) CountCreatedBetween(_ context.Context, from, to time.Time) (int, error) {
	n := 0
	for _, o := range m.orders {
		if !o.CreatedAt.Before(from) && o.CreatedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (m *mockRepository) Insert(_ context.Context, o Order) error {
	if m.numberConflicts > 0 {
		m.numberConflicts--
		return shared.AlreadyExists("order", o.Number, "orders_number_key")
	}
	for _, existing := range m.orders {
		if existing.QuotationID == o.QuotationID {
			return shared.AlreadyConverted("quotation", o.QuotationID, existing.ID)
		}
	}
	m.orders[o.ID] = &o
	return nil
}

func (m *mockRepository) Get(_ context.Context, id string) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockRepository) GetForUpdate(ctx context.Context, id string) (*Order, error) {
	return m.Get(ctx, id)
}

func (m *mockRepository) List(_ context.Context, filter ListFilter) ([]Order, int, error) {
	var out []Order
	for _, o := range m.orders {
		if filter.Status == "" || o.Status == filter.Status {
			out = append(out, *o)
		}
	}
	return out, len(out), nil
}

func (m *mockRepository) UpdateStatus(_ context.Context, id string, from Status, patch StatusPatch) (bool, error) {
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = patch.Status
	o.UpdatedAt = patch.UpdatedAt
	if patch.TrackingNumber != nil {
		o.TrackingNumber = patch.TrackingNumber
	}
	if patch.ShippedAt != nil {
		o.ShippedAt = patch.ShippedAt
	}
	if patch.DeliveredAt != nil {
		o.DeliveredAt = patch.DeliveredAt
	}
	return true, nil
}

func (m *mockRepository) SetTrackingNumber(_ context.Context, id, tracking string, at time.Time) error {
	o, ok := m.orders[id]
	if !ok {
		return shared.ErrNotFound
	}
	o.TrackingNumber = &tracking
	o.UpdatedAt = at
	return nil
}

func (m *mockRepository) InsertStatusLog(_ context.Context, l StatusLog) error {
	if m.insertOrderLogError != nil {
		return m.insertOrderLogError
	}
	m.orderLogs = append(m.orderLogs, l)
	return nil
}

func (m *mockRepository) ListStatusLogs(_ context.Context, orderID string) ([]StatusLog, error) {
	var out []StatusLog
	for _, l := range m.orderLogs {
		if l.OrderID == orderID {
			out = append(out, l)
		}
	}
	return out, nil
}

type mockQuotationStore struct{ m *mockRepository }

func (s mockQuotationStore) GetForUpdate(_ context.Context, id string) (*quotations.Quotation, error) {
	q, ok := s.m.quotations[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (s mockQuotationStore) UpdateStatus(_ context.Context, id string, from quotations.Status, patch quotations.StatusPatch) (bool, error) {
	q, ok := s.m.quotations[id]
	if !ok || q.Status != from || (patch.ConvertedOrderID != nil && q.ConvertedOrderID != nil) {
		return false, nil
	}
	q.Status = patch.Status
	q.ConvertedOrderID = patch.ConvertedOrderID
	q.UpdatedAt = patch.UpdatedAt
	return true, nil
}

func (s mockQuotationStore) InsertStatusLog(_ context.Context, l quotations.StatusLog) error {
	s.m.quoteLogs = append(s.m.quoteLogs, l)
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

type steppingClock struct{ t time.Time }

func (c *steppingClock) now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

func newTestService() (*Service, *mockRepository) {
	repo := newMockRepository()
	svc := NewService(repo, nil, time.UTC)
	clock := &steppingClock{t: time.Date(2024, time.January, 20, 8, 0, 0, 0, time.UTC)}
	svc.now = clock.now
	return svc, repo
}

func strPtr(s string) *string { return &s }

func seedQuotation(repo *mockRepository, id string, status quotations.Status) *quotations.Quotation {
	q := &quotations.Quotation{
		ID:                id,
		Number:            "QUO/2024/01/0001",
		CustomerID:        "cust-1",
		Status:            status,
		Subtotal:          5_000_000,
		TotalAmount:       5_000_000,
		ShippingAddressID: strPtr("addr-1"),
		Items: []quotations.Item{
			{ID: "qi-1", QuotationID: id, Position: 1, ProductID: "prod-1", ProductName: "Beras 5kg", Quantity: 100, UnitPrice: 50000, LineTotal: 5_000_000},
		},
	}
	repo.quotations[id] = q
	return q
}

func seedOrder(repo *mockRepository, id string, status Status) *Order {
	o := &Order{ID: id, Number: "ORD/2024/01/" + id, QuotationID: "q-" + id, Status: status, Subtotal: 100, TaxAmount: 11, TotalAmount: 111}
	repo.orders[id] = o
	return o
}

// ============================================================================
// CONVERSION
// ============================================================================

func TestCreateOrderFromQuotation(t *testing.T) {
	svc, repo := newTestService()
	seedQuotation(repo, "q1", quotations.StatusApproved)

	o, err := svc.CreateOrderFromQuotation(context.Background(), "q1", "manager")
	require.NoError(t, err)

	assert.Equal(t, "ORD/2024/01/0001", o.Number)
	assert.Equal(t, StatusNew, o.Status)
	assert.Equal(t, int64(5_000_000), o.TotalAmount)
	assert.Equal(t, o.Subtotal+o.TaxAmount, o.TotalAmount)
	assert.Equal(t, "addr-1", o.ShippingAddressID)
	require.Len(t, o.Items, 1)
	assert.Equal(t, o.ID, o.Items[0].OrderID)
	assert.NotEqual(t, "qi-1", o.Items[0].ID, "items are copied, not shared")

	q := repo.quotations["q1"]
	assert.Equal(t, quotations.StatusConverted, q.Status)
	require.NotNil(t, q.ConvertedOrderID)
	assert.Equal(t, o.ID, *q.ConvertedOrderID)

	require.Len(t, repo.quoteLogs, 1)
	assert.Equal(t, quotations.StatusConverted, repo.quoteLogs[0].ToStatus)
	require.Len(t, repo.orderLogs, 1)
	assert.Nil(t, repo.orderLogs[0].FromStatus)
	assert.Equal(t, StatusNew, repo.orderLogs[0].ToStatus)

	// Later changes to the quotation do not leak into the order.
	q.Items[0].UnitPrice = 1
	stored, err := svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), stored.Items[0].UnitPrice)
}

func TestCreateOrderFromQuotationRetriesNumberRace(t *testing.T) {
	svc, repo := newTestService()
	seedQuotation(repo, "q1", quotations.StatusApproved)
	repo.numberConflicts = 1

	o, err := svc.CreateOrderFromQuotation(context.Background(), "q1", "manager")
	require.NoError(t, err)
	assert.Equal(t, quotations.StatusConverted, repo.quotations["q1"].Status)
	assert.Len(t, repo.orders, 1)
	assert.Contains(t, repo.orders, o.ID)
	assert.Len(t, repo.quoteLogs, 1)
}

func TestCreateOrderFromQuotationTwice(t *testing.T) {
	svc, repo := newTestService()
	seedQuotation(repo, "q1", quotations.StatusApproved)

	_, err := svc.CreateOrderFromQuotation(context.Background(), "q1", "manager")
	require.NoError(t, err)

	_, err = svc.CreateOrderFromQuotation(context.Background(), "q1", "manager")
	assert.ErrorIs(t, err, shared.ErrAlreadyConverted)
	assert.Len(t, repo.orders, 1)
}

func TestCreateOrderFromQuotationPreconditions(t *testing.T) {
	svc, repo := newTestService()
	seedQuotation(repo, "pending", quotations.StatusPending)
	seedQuotation(repo, "no-address", quotations.StatusApproved).ShippingAddressID = nil

	_, err := svc.CreateOrderFromQuotation(context.Background(), "missing", "m")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.CreateOrderFromQuotation(context.Background(), "pending", "m")
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = svc.CreateOrderFromQuotation(context.Background(), "no-address", "m")
	assert.ErrorIs(t, err, shared.ErrMissingRequiredData)

	assert.Empty(t, repo.orders)
}

func TestCreateOrderFromQuotationIsAllOrNothing(t *testing.T) {
	svc, repo := newTestService()
	seedQuotation(repo, "q1", quotations.StatusApproved)
	repo.insertOrderLogError = errors.New("disk full")

	_, err := svc.CreateOrderFromQuotation(context.Background(), "q1", "manager")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrPersistence)

	assert.Empty(t, repo.orders)
	assert.Empty(t, repo.quoteLogs)
	assert.Equal(t, quotations.StatusApproved, repo.quotations["q1"].Status)
	assert.Nil(t, repo.quotations["q1"].ConvertedOrderID)
}

// ============================================================================
// STATUS TRANSITIONS
// ============================================================================

func TestUpdateStatusFollowsTable(t *testing.T) {
	all := []Status{StatusNew, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}
	for _, from := range all {
		for _, to := range all {
			svc, repo := newTestService()
			seedOrder(repo, "o1", from)

			o, err := svc.UpdateStatus(context.Background(), "o1", to, "ops", nil)
			if !Transitions.Allows(from, to) {
				assert.ErrorIs(t, err, shared.ErrInvalidTransition, "%s -> %s", from, to)
				assert.Equal(t, from, repo.orders["o1"].Status)
				continue
			}
			require.NoError(t, err, "%s -> %s", from, to)
			assert.Equal(t, to, o.Status)
			assert.Equal(t, int64(111), o.TotalAmount)
			assert.Equal(t, o.Subtotal+o.TaxAmount, o.TotalAmount)
			assert.Equal(t, to == StatusShipped, o.ShippedAt != nil)
			assert.Equal(t, to == StatusDelivered, o.DeliveredAt != nil)
		}
	}
}

func TestUpdateStatusErrors(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.UpdateStatus(context.Background(), "missing", StatusProcessing, "ops", nil)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.UpdateStatus(context.Background(), "missing", "LOST", "ops", nil)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

// ============================================================================
// TRACKING
// ============================================================================

func TestAddTrackingNumberShipsProcessingOrders(t *testing.T) {
	svc, repo := newTestService()
	seedOrder(repo, "o1", StatusProcessing)

	o, err := svc.AddTrackingNumber(context.Background(), "o1", "JNE123", "ops")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, o.Status)
	require.NotNil(t, o.ShippedAt)
	assert.Equal(t, "JNE123", *repo.orders["o1"].TrackingNumber)

	require.Len(t, repo.orderLogs, 1)
	assert.Contains(t, *repo.orderLogs[0].Notes, "JNE123")
}

func TestAddTrackingNumberKeepsOtherStatuses(t *testing.T) {
	for _, status := range []Status{StatusNew, StatusShipped, StatusDelivered} {
		svc, repo := newTestService()
		seedOrder(repo, "o1", status)

		o, err := svc.AddTrackingNumber(context.Background(), "o1", "SICEPAT-9", "ops")
		require.NoError(t, err, status)
		assert.Equal(t, status, o.Status)
		assert.Equal(t, status, repo.orders["o1"].Status)
		assert.Equal(t, "SICEPAT-9", *repo.orders["o1"].TrackingNumber)
		assert.Nil(t, repo.orders["o1"].ShippedAt)
		assert.Empty(t, repo.orderLogs)
	}
}

func TestAddTrackingNumberErrors(t *testing.T) {
	svc, repo := newTestService()
	seedOrder(repo, "o1", StatusCancelled)

	_, err := svc.AddTrackingNumber(context.Background(), "o1", "X", "ops")
	assert.ErrorIs(t, err, shared.ErrCancelled)

	_, err = svc.AddTrackingNumber(context.Background(), "o1", "  ", "ops")
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.AddTrackingNumber(context.Background(), "missing", "X", "ops")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

// ============================================================================
// SCENARIO
// ============================================================================

func TestOrderFulfilmentScenario(t *testing.T) {
	svc, repo := newTestService()
	seedQuotation(repo, "q1", quotations.StatusApproved)
	ctx := context.Background()

	o, err := svc.CreateOrderFromQuotation(ctx, "q1", "manager")
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, o.ID, StatusProcessing, "ops", nil)
	require.NoError(t, err)
	_, err = svc.AddTrackingNumber(ctx, o.ID, "JNE-777", "ops")
	require.NoError(t, err)
	final, err := svc.UpdateStatus(ctx, o.ID, StatusDelivered, "ops", nil)
	require.NoError(t, err)

	assert.Equal(t, StatusDelivered, final.Status)
	require.NotNil(t, final.ShippedAt)
	require.NotNil(t, final.DeliveredAt)
	assert.True(t, final.ShippedAt.Before(*final.DeliveredAt))

	logs, err := svc.StatusHistory(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 4)
}

func TestQuotationConverterAdapter(t *testing.T) {
	svc, repo := newTestService()
	seedQuotation(repo, "q1", quotations.StatusApproved)

	converted, err := QuotationConverter(svc).CreateOrderFromQuotation(context.Background(), "q1", "manager")
	require.NoError(t, err)
	assert.Equal(t, "q1", converted.QuotationID)
	assert.Equal(t, "ORD/2024/01/0001", converted.OrderNumber)
	assert.Contains(t, repo.orders, converted.OrderID)
}
