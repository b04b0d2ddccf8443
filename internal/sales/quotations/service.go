package quotations

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-sales/internal/followup/schedule"
	"github.com/odyssey-erp/odyssey-sales/internal/sales/customers"
	"github.com/odyssey-erp/odyssey-sales/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// CustomerDirectory resolves customers and their delivery addresses.
type CustomerDirectory interface {
	Get(ctx context.Context, id string) (*customers.Customer, error)
	AddressOf(ctx context.Context, customerID, addressID string) (*customers.Address, error)
}

// PriceResolver prices a product line.
type PriceResolver interface {
	Resolve(ctx context.Context, productID string, qty int64) (pricing.Resolution, error)
}

// OrderCreator performs the quotation to order conversion, including every
// write it involves. The order lifecycle implements it.
type OrderCreator interface {
	CreateOrderFromQuotation(ctx context.Context, quotationID, actor string) (ConvertedOrder, error)
}

// FollowUpScheduler books follow-up reminders.
type FollowUpScheduler interface {
	Schedule(ctx context.Context, req schedule.ScheduleRequest) (*schedule.FollowUp, error)
}

// Invalidator is told about status changes that move the follow-up
// conversion rate.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

const expiryNote = "validity period ended"

// Service implements the quotation lifecycle.
type Service struct {
	repo      Repository
	customers CustomerDirectory
	prices    PriceResolver
	orders    OrderCreator
	followUps FollowUpScheduler
	inv       Invalidator
	logger    *slog.Logger
	loc       *time.Location
	now       func() time.Time
}

// NewService constructs the quotation service. Numbers follow calendar
// months in loc; a nil loc means time.Local. The order creator and the
// follow-up scheduler are wired afterwards through their setters.
func NewService(repo Repository, customers CustomerDirectory, prices PriceResolver, logger *slog.Logger, loc *time.Location) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{repo: repo, customers: customers, prices: prices, logger: logger, loc: loc, now: time.Now}
}

// SetOrderCreator wires the order lifecycle used by ConvertToOrder.
func (s *Service) SetOrderCreator(orders OrderCreator) {
	s.orders = orders
}

// SetFollowUpScheduler wires the scheduler used by ScheduleFollowUp.
func (s *Service) SetFollowUpScheduler(followUps FollowUpScheduler) {
	s.followUps = followUps
}

// SetInvalidator wires the metrics cache.
func (s *Service) SetInvalidator(inv Invalidator) {
	s.inv = inv
}

func (s *Service) changed(ctx context.Context) {
	if s.inv != nil {
		s.inv.Invalidate(ctx)
	}
}

// Create prices the requested lines and stores a PENDING quotation valid for
// thirty days. Tax is left at zero until order time.
func (s *Service) Create(ctx context.Context, req CreateRequest, actor string) (*Quotation, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return nil, err
	}
	if _, err := s.customers.Get(ctx, req.CustomerID); err != nil {
		return nil, err
	}
	if req.ShippingAddressID != nil {
		if _, err := s.customers.AddressOf(ctx, req.CustomerID, *req.ShippingAddressID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	q := Quotation{
		ID:                uuid.NewString(),
		CustomerID:        req.CustomerID,
		ValidUntil:        now.Add(Validity),
		Status:            StatusPending,
		ShippingAddressID: req.ShippingAddressID,
		Notes:             req.Notes,
		CreatedBy:         actor,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for i, line := range req.Items {
		res, err := s.prices.Resolve(ctx, line.ProductID, line.Quantity)
		if err != nil {
			return nil, err
		}
		q.Items = append(q.Items, Item{
			ID:          uuid.NewString(),
			QuotationID: q.ID,
			Position:    i + 1,
			ProductID:   res.Product.ID,
			ProductName: res.Product.Name,
			SKU:         res.Product.SKU,
			Quantity:    res.Quantity,
			UnitPrice:   res.UnitPrice,
			LineTotal:   res.LineTotal,
		})
		q.Subtotal += res.LineTotal
	}
	q.TotalAmount = q.Subtotal + q.TaxAmount

	err := shared.RetryOnNumberConflict(func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
			return s.insert(ctx, tx, &q, actor, now)
		})
	})
	if err != nil {
		return nil, shared.Persistence("create quotation", err)
	}

	s.logger.Info("quotation created",
		slog.String("quotation_id", q.ID),
		slog.String("number", q.Number),
		slog.Int64("total_amount", q.TotalAmount))
	return &q, nil
}

// insert numbers q and stores it with its opening status log.
func (s *Service) insert(ctx context.Context, tx Repository, q *Quotation, actor string, now time.Time) error {
	number, err := shared.NextDocumentNumber(ctx, tx, shared.PrefixQuotation, now, s.loc)
	if err != nil {
		return err
	}
	q.Number = number
	if err := tx.Insert(ctx, *q); err != nil {
		return err
	}
	return tx.InsertStatusLog(ctx, StatusLog{
		ID:          uuid.NewString(),
		QuotationID: q.ID,
		ToStatus:    StatusPending,
		ActorID:     actor,
		CreatedAt:   now,
	})
}

// Get loads a quotation with its items.
func (s *Service) Get(ctx context.Context, id string) (*Quotation, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NotFound("quotation", id)
		}
		return nil, shared.Persistence("get quotation", err)
	}
	return q, nil
}

// List returns a page of quotation headers and the total matching count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Quotation, int, error) {
	page := shared.NewPage(filter.Limit, filter.Offset)
	filter.Limit, filter.Offset = page.Limit, page.Offset
	list, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, shared.Persistence("list quotations", err)
	}
	return list, total, nil
}

// StatusHistory returns the audit trail of a quotation, oldest first.
func (s *Service) StatusHistory(ctx context.Context, id string) ([]StatusLog, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	logs, err := s.repo.ListStatusLogs(ctx, id)
	if err != nil {
		return nil, shared.Persistence("list quotation status logs", err)
	}
	return logs, nil
}

// UpdateStatus moves a quotation along the state machine and records the
// audit row in the same transaction. APPROVED -> CONVERTED is handed to
// ConvertToOrder, which creates and links the order.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status, actor string, notes *string) (*Quotation, error) {
	if !to.IsValid() {
		return nil, shared.Validation("unknown quotation status "+string(to), nil)
	}

	var (
		updated *Quotation
		convert bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		q, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.NotFound("quotation", id)
			}
			return err
		}
		if err := Transitions.Validate("quotation", id, q.Status, to); err != nil {
			return err
		}
		if to == StatusConverted {
			convert = true
			return nil
		}

		now := s.now()
		ok, err := tx.UpdateStatus(ctx, id, q.Status, StatusPatch{Status: to, UpdatedAt: now})
		if err != nil {
			return err
		}
		if !ok {
			return shared.InvalidTransition("quotation", id, string(q.Status), string(to))
		}
		from := q.Status
		if err := tx.InsertStatusLog(ctx, StatusLog{
			ID:          uuid.NewString(),
			QuotationID: id,
			FromStatus:  &from,
			ToStatus:    to,
			ActorID:     actor,
			Notes:       notes,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		q.Status = to
		q.UpdatedAt = now
		updated = q
		return nil
	})
	if err != nil {
		return nil, shared.Persistence("update quotation status", err)
	}
	if convert {
		if _, err := s.ConvertToOrder(ctx, id, actor); err != nil {
			return nil, err
		}
		return s.Get(ctx, id)
	}

	s.changed(ctx)
	s.logger.Info("quotation status changed",
		slog.String("quotation_id", id),
		slog.String("status", string(to)),
		slog.String("actor", actor))
	return updated, nil
}

// ConvertToOrder checks the conversion preconditions and hands the write to
// the order lifecycle.
func (s *Service) ConvertToOrder(ctx context.Context, id, actor string) (ConvertedOrder, error) {
	if s.orders == nil {
		return ConvertedOrder{}, errors.New("quotations: order creator not configured")
	}
	q, err := s.Get(ctx, id)
	if err != nil {
		return ConvertedOrder{}, err
	}
	if err := CheckConvertible(q); err != nil {
		return ConvertedOrder{}, err
	}
	converted, err := s.orders.CreateOrderFromQuotation(ctx, id, actor)
	if err != nil {
		return ConvertedOrder{}, err
	}
	s.changed(ctx)
	return converted, nil
}

// CheckConvertible reports why q cannot become an order, if it cannot.
func CheckConvertible(q *Quotation) error {
	if q.ConvertedOrderID != nil {
		return shared.AlreadyConverted("quotation", q.ID, *q.ConvertedOrderID)
	}
	if q.Status != StatusApproved {
		return shared.InvalidState("quotation", q.ID, string(q.Status), "only APPROVED quotations can be converted")
	}
	if q.ShippingAddressID == nil {
		return shared.MissingRequiredData("quotation", q.ID, "shipping address")
	}
	return nil
}

// MarkExpired expires every open quotation past its validity and returns
// how many changed. Running it again right away changes nothing.
func (s *Service) MarkExpired(ctx context.Context) (int, error) {
	var count int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		n, err := tx.ExpireDue(ctx, s.now(), shared.SystemActor, expiryNote)
		count = n
		return err
	})
	if err != nil {
		return 0, shared.Persistence("expire quotations", err)
	}
	if count > 0 {
		s.changed(ctx)
		s.logger.Info("quotations expired", slog.Int("count", count))
	}
	return count, nil
}

// ScheduleFollowUp books a QUOTATION_FOLLOW_UP reminder for the quotation's
// customer.
func (s *Service) ScheduleFollowUp(ctx context.Context, id string, when time.Time, actor string, notes *string) (*schedule.FollowUp, error) {
	if s.followUps == nil {
		return nil, errors.New("quotations: follow-up scheduler not configured")
	}
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	quotationID := q.ID
	return s.followUps.Schedule(ctx, schedule.ScheduleRequest{
		CustomerID:  q.CustomerID,
		QuotationID: &quotationID,
		Type:        schedule.TypeQuotationFollowUp,
		ScheduledAt: when,
		Notes:       notes,
		ActorID:     actor,
	})
}
