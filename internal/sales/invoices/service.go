package invoices

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-sales/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// OrderReader loads the order an invoice bills.
type OrderReader interface {
	Get(ctx context.Context, id string) (*orders.Order, error)
}

// Service issues invoices and records payments.
type Service struct {
	repo   Repository
	orders OrderReader
	logger *slog.Logger
	loc    *time.Location
	now    func() time.Time
}

// NewService constructs the invoice service. Numbers follow calendar months
// in loc; a nil loc means time.Local.
func NewService(repo Repository, orders OrderReader, logger *slog.Logger, loc *time.Location) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{repo: repo, orders: orders, logger: logger, loc: loc, now: time.Now}
}

// GenerateInvoice bills an order once, copying its lines and amounts. The
// invoice falls due thirty days after issue. A lost numbering race is
// retried once.
func (s *Service) GenerateInvoice(ctx context.Context, orderID string) (*Invoice, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var inv Invoice
	err = shared.RetryOnNumberConflict(func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
			existing, err := tx.GetByOrder(ctx, orderID)
			switch {
			case err == nil:
				return shared.AlreadyExists("invoice", existing.ID, "order "+orderID+" is already invoiced")
			case !errors.Is(err, shared.ErrNotFound):
				return err
			}

			now := s.now()
			number, err := shared.NextDocumentNumber(ctx, tx, shared.PrefixInvoice, now, s.loc)
			if err != nil {
				return err
			}
			inv = invoiceFromOrder(order, number, now)
			return tx.Insert(ctx, inv)
		})
	})
	if err != nil {
		return nil, shared.Persistence("generate invoice", err)
	}

	s.logger.Info("invoice generated",
		slog.String("invoice_id", inv.ID),
		slog.String("number", inv.Number),
		slog.String("order_id", orderID),
		slog.Time("due_date", inv.DueDate))
	return &inv, nil
}

func invoiceFromOrder(o *orders.Order, number string, now time.Time) Invoice {
	inv := Invoice{
		ID:          uuid.NewString(),
		Number:      number,
		OrderID:     o.ID,
		CustomerID:  o.CustomerID,
		Subtotal:    o.Subtotal,
		TaxAmount:   o.TaxAmount,
		TotalAmount: o.TotalAmount,
		Status:      StatusPending,
		DueDate:     now.Add(PaymentTerm),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	inv.Items = make([]Item, 0, len(o.Items))
	for _, oi := range o.Items {
		inv.Items = append(inv.Items, Item{
			ID:          uuid.NewString(),
			InvoiceID:   inv.ID,
			Position:    oi.Position,
			ProductID:   oi.ProductID,
			ProductName: oi.ProductName,
			SKU:         oi.SKU,
			Quantity:    oi.Quantity,
			UnitPrice:   oi.UnitPrice,
			LineTotal:   oi.LineTotal,
		})
	}
	return inv
}

// Get loads an invoice with its items.
func (s *Service) Get(ctx context.Context, id string) (*Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NotFound("invoice", id)
		}
		return nil, shared.Persistence("get invoice", err)
	}
	return inv, nil
}

// GetByOrder loads the invoice billing an order.
func (s *Service) GetByOrder(ctx context.Context, orderID string) (*Invoice, error) {
	inv, err := s.repo.GetByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NotFound("invoice for order", orderID)
		}
		return nil, shared.Persistence("get invoice by order", err)
	}
	return inv, nil
}

// List returns a page of invoice headers and the total matching count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
	page := shared.NewPage(filter.Limit, filter.Offset)
	filter.Limit, filter.Offset = page.Limit, page.Offset
	list, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, shared.Persistence("list invoices", err)
	}
	return list, total, nil
}

// ProcessPayment settles a PENDING or OVERDUE invoice.
func (s *Service) ProcessPayment(ctx context.Context, id string, info PaymentInfo) (*Invoice, error) {
	if err := shared.ValidateStruct(info); err != nil {
		return nil, err
	}

	var updated *Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		inv, err := s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		switch inv.Status {
		case StatusPaid:
			return shared.AlreadyPaid("invoice", id)
		case StatusCancelled:
			return shared.Cancelled("invoice", id)
		}

		now := s.now()
		paidAt := now
		if info.PaidAt != nil {
			paidAt = *info.PaidAt
		}
		method := info.Method
		patch := StatusPatch{
			Status:        StatusPaid,
			PaidAt:        &paidAt,
			PaymentMethod: &method,
			PaymentNotes:  info.Notes,
			UpdatedAt:     now,
		}
		if err := s.apply(ctx, tx, inv, patch); err != nil {
			return err
		}
		inv.PaidAt = &paidAt
		inv.PaymentMethod = &method
		inv.PaymentNotes = info.Notes
		updated = inv
		return nil
	})
	if err != nil {
		return nil, shared.Persistence("process payment", err)
	}

	s.logger.Info("invoice paid",
		slog.String("invoice_id", id),
		slog.String("method", string(info.Method)),
		slog.Int64("amount", updated.TotalAmount))
	return updated, nil
}

// Cancel voids an invoice that has not been paid.
func (s *Service) Cancel(ctx context.Context, id string, reason *string) (*Invoice, error) {
	var updated *Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		inv, err := s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		switch inv.Status {
		case StatusPaid:
			return shared.AlreadyPaid("invoice", id)
		case StatusCancelled:
			return shared.Cancelled("invoice", id)
		}
		if err := s.apply(ctx, tx, inv, StatusPatch{Status: StatusCancelled, UpdatedAt: s.now()}); err != nil {
			return err
		}
		updated = inv
		return nil
	})
	if err != nil {
		return nil, shared.Persistence("cancel invoice", err)
	}

	attrs := []any{slog.String("invoice_id", id), slog.String("actor", shared.ActorFromContext(ctx))}
	if reason != nil {
		attrs = append(attrs, slog.String("reason", *reason))
	}
	s.logger.Info("invoice cancelled", attrs...)
	return updated, nil
}

// RequestTaxInvoice flags a paid invoice for tax invoice (faktur pajak)
// issuance. Repeating the request is harmless.
func (s *Service) RequestTaxInvoice(ctx context.Context, id string) (*Invoice, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != StatusPaid {
		return nil, shared.InvalidState("invoice", id, string(inv.Status), "tax invoices are issued for PAID invoices only")
	}
	if inv.TaxInvoiceRequested {
		return inv, nil
	}
	now := s.now()
	if err := s.repo.SetTaxInvoiceRequested(ctx, id, now); err != nil {
		return nil, shared.Persistence("request tax invoice", err)
	}
	inv.TaxInvoiceRequested = true
	inv.UpdatedAt = now
	return inv, nil
}

// MarkOverdue flags every PENDING invoice past its due date and returns how
// many changed. A second run right away changes nothing.
func (s *Service) MarkOverdue(ctx context.Context) (int, error) {
	n, err := s.repo.MarkOverdue(ctx, s.now())
	if err != nil {
		return 0, shared.Persistence("mark overdue invoices", err)
	}
	if n > 0 {
		s.logger.Info("invoices marked overdue", slog.Int("count", n))
	}
	return n, nil
}

func (s *Service) lock(ctx context.Context, tx Repository, id string) (*Invoice, error) {
	inv, err := tx.GetForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NotFound("invoice", id)
		}
		return nil, err
	}
	return inv, nil
}

func (s *Service) apply(ctx context.Context, tx Repository, inv *Invoice, patch StatusPatch) error {
	if err := Transitions.Validate("invoice", inv.ID, inv.Status, patch.Status); err != nil {
		return err
	}
	ok, err := tx.UpdateStatus(ctx, inv.ID, inv.Status, patch)
	if err != nil {
		return err
	}
	if !ok {
		return shared.InvalidTransition("invoice", inv.ID, string(inv.Status), string(patch.Status))
	}
	inv.Status = patch.Status
	inv.UpdatedAt = patch.UpdatedAt
	return nil
}
