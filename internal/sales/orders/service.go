package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-sales/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// Service implements the order lifecycle.
type Service struct {
	repo   Repository
	logger *slog.Logger
	loc    *time.Location
	now    func() time.Time
}

// NewService constructs the order service. Numbers follow calendar months in
// loc; a nil loc means time.Local.
func NewService(repo Repository, logger *slog.Logger, loc *time.Location) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{repo: repo, logger: logger, loc: loc, now: time.Now}
}

// CreateOrderFromQuotation converts an APPROVED quotation into a NEW order.
// The order, its copied items, the quotation's move to CONVERTED and both
// status logs are written in one transaction, retried once if a concurrent
// conversion took the same order number.
func (s *Service) CreateOrderFromQuotation(ctx context.Context, quotationID, actor string) (*Order, error) {
	var order Order
	err := shared.RetryOnNumberConflict(func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
			var err error
			order, err = s.convert(ctx, tx, quotationID, actor)
			return err
		})
	})
	if err != nil {
		return nil, shared.Persistence("create order from quotation", err)
	}

	s.logger.Info("order created from quotation",
		slog.String("order_id", order.ID),
		slog.String("number", order.Number),
		slog.String("quotation_id", quotationID))
	return &order, nil
}

func (s *Service) convert(ctx context.Context, tx Repository, quotationID, actor string) (Order, error) {
	qs := tx.Quotations()
	q, err := qs.GetForUpdate(ctx, quotationID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Order{}, shared.NotFound("quotation", quotationID)
		}
		return Order{}, err
	}
	if err := quotations.CheckConvertible(q); err != nil {
		return Order{}, err
	}

	now := s.now()
	number, err := shared.NextDocumentNumber(ctx, tx, shared.PrefixOrder, now, s.loc)
	if err != nil {
		return Order{}, err
	}
	order := orderFromQuotation(q, number, actor, now)
	if err := tx.Insert(ctx, order); err != nil {
		return Order{}, err
	}

	ok, err := qs.UpdateStatus(ctx, q.ID, quotations.StatusApproved, quotations.StatusPatch{
		Status:           quotations.StatusConverted,
		ConvertedOrderID: &order.ID,
		UpdatedAt:        now,
	})
	if err != nil {
		return Order{}, err
	}
	if !ok {
		return Order{}, shared.InvalidTransition("quotation", q.ID, string(q.Status), string(quotations.StatusConverted))
	}

	approved := quotations.StatusApproved
	convertNote := "converted to order " + order.Number
	if err := qs.InsertStatusLog(ctx, quotations.StatusLog{
		ID:          uuid.NewString(),
		QuotationID: q.ID,
		FromStatus:  &approved,
		ToStatus:    quotations.StatusConverted,
		ActorID:     actor,
		Notes:       &convertNote,
		CreatedAt:   now,
	}); err != nil {
		return Order{}, err
	}

	createNote := "created from quotation " + q.Number
	if err := tx.InsertStatusLog(ctx, StatusLog{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		ToStatus:  StatusNew,
		ActorID:   actor,
		Notes:     &createNote,
		CreatedAt: now,
	}); err != nil {
		return Order{}, err
	}
	return order, nil
}

func orderFromQuotation(q *quotations.Quotation, number, actor string, now time.Time) Order {
	o := Order{
		ID:                uuid.NewString(),
		Number:            number,
		QuotationID:       q.ID,
		CustomerID:        q.CustomerID,
		Subtotal:          q.Subtotal,
		TaxAmount:         q.TaxAmount,
		TotalAmount:       q.TotalAmount,
		ShippingAddressID: *q.ShippingAddressID,
		Status:            StatusNew,
		Notes:             q.Notes,
		CreatedBy:         actor,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	o.Items = make([]Item, 0, len(q.Items))
	for _, qi := range q.Items {
		o.Items = append(o.Items, Item{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			Position:    qi.Position,
			ProductID:   qi.ProductID,
			ProductName: qi.ProductName,
			SKU:         qi.SKU,
			Quantity:    qi.Quantity,
			UnitPrice:   qi.UnitPrice,
			LineTotal:   qi.LineTotal,
		})
	}
	return o
}

// Get loads an order with its items.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NotFound("order", id)
		}
		return nil, shared.Persistence("get order", err)
	}
	return o, nil
}

// List returns a page of order headers and the total matching count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	page := shared.NewPage(filter.Limit, filter.Offset)
	filter.Limit, filter.Offset = page.Limit, page.Offset
	list, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, shared.Persistence("list orders", err)
	}
	return list, total, nil
}

// StatusHistory returns the audit trail of an order, oldest first.
func (s *Service) StatusHistory(ctx context.Context, id string) ([]StatusLog, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	logs, err := s.repo.ListStatusLogs(ctx, id)
	if err != nil {
		return nil, shared.Persistence("list order status logs", err)
	}
	return logs, nil
}

// UpdateStatus moves an order along the state machine. SHIPPED stamps
// ShippedAt and DELIVERED stamps DeliveredAt. Amounts are never touched.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status, actor string, notes *string) (*Order, error) {
	if !to.IsValid() {
		return nil, shared.Validation("unknown order status "+string(to), nil)
	}

	var updated *Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		o, err := s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := Transitions.Validate("order", id, o.Status, to); err != nil {
			return err
		}

		now := s.now()
		patch := StatusPatch{Status: to, UpdatedAt: now}
		switch to {
		case StatusShipped:
			patch.ShippedAt = &now
		case StatusDelivered:
			patch.DeliveredAt = &now
		}
		if err := s.apply(ctx, tx, o, patch, actor, notes); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, shared.Persistence("update order status", err)
	}

	s.logger.Info("order status changed",
		slog.String("order_id", id),
		slog.String("status", string(to)),
		slog.String("actor", actor))
	return updated, nil
}

// AddTrackingNumber records the carrier tracking number. An order in
// PROCESSING also ships in the same write; any other status keeps its state.
func (s *Service) AddTrackingNumber(ctx context.Context, id, tracking, actor string) (*Order, error) {
	tracking = strings.TrimSpace(tracking)
	if tracking == "" {
		return nil, shared.Validation("tracking number is required", nil)
	}

	var updated *Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		o, err := s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if o.Status == StatusCancelled {
			return shared.Cancelled("order", id)
		}

		now := s.now()
		if o.Status != StatusProcessing {
			if err := tx.SetTrackingNumber(ctx, id, tracking, now); err != nil {
				return err
			}
			o.TrackingNumber = &tracking
			o.UpdatedAt = now
			updated = o
			return nil
		}

		note := fmt.Sprintf("shipped with tracking number %s", tracking)
		patch := StatusPatch{Status: StatusShipped, TrackingNumber: &tracking, ShippedAt: &now, UpdatedAt: now}
		if err := s.apply(ctx, tx, o, patch, actor, &note); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, shared.Persistence("add tracking number", err)
	}
	return updated, nil
}

func (s *Service) lock(ctx context.Context, tx Repository, id string) (*Order, error) {
	o, err := tx.GetForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NotFound("order", id)
		}
		return nil, err
	}
	return o, nil
}

// apply writes patch with a compare-and-swap on o's current status, appends
// the audit row and mirrors the change onto o.
func (s *Service) apply(ctx context.Context, tx Repository, o *Order, patch StatusPatch, actor string, notes *string) error {
	from := o.Status
	ok, err := tx.UpdateStatus(ctx, o.ID, from, patch)
	if err != nil {
		return err
	}
	if !ok {
		return shared.InvalidTransition("order", o.ID, string(from), string(patch.Status))
	}
	if err := tx.InsertStatusLog(ctx, StatusLog{
		ID:         uuid.NewString(),
		OrderID:    o.ID,
		FromStatus: &from,
		ToStatus:   patch.Status,
		ActorID:    actor,
		Notes:      notes,
		CreatedAt:  patch.UpdatedAt,
	}); err != nil {
		return err
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
	return nil
}
