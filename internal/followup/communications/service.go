package communications

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-sales/internal/followup/schedule"
	"github.com/odyssey-erp/odyssey-sales/internal/messaging"
	"github.com/odyssey-erp/odyssey-sales/internal/sales/customers"
	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// CustomerDirectory resolves the customer a message goes to.
type CustomerDirectory interface {
	Get(ctx context.Context, id string) (*customers.Customer, error)
}

// FollowUps is the slice of the scheduler the log reads and writes.
type FollowUps interface {
	Schedule(ctx context.Context, req schedule.ScheduleRequest) (*schedule.FollowUp, error)
	ListByCustomer(ctx context.Context, customerID string, page shared.Page) ([]schedule.FollowUp, int, error)
	NextPending(ctx context.Context, customerID string) (*schedule.FollowUp, error)
}

// PhoneNormalizer validates a raw phone and renders it in E.164 form.
type PhoneNormalizer interface {
	Normalize(raw string) (string, error)
}

// FallbackRecorder persists a communication outside the request, typically
// through a retried background task.
type FallbackRecorder interface {
	RecordLater(ctx context.Context, c Communication) error
}

// Invalidator is told about writes that change aggregate metrics.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Service logs customer contacts and sends follow-up messages.
type Service struct {
	repo        Repository
	customers   CustomerDirectory
	followUps   FollowUps
	sender      messaging.Sender
	phones      PhoneNormalizer
	logger      *slog.Logger
	now         func() time.Time
	fallback    FallbackRecorder
	invalidator Invalidator
}

// NewService constructs the communication log.
func NewService(repo Repository, customers CustomerDirectory, followUps FollowUps, sender messaging.Sender, phones PhoneNormalizer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		customers: customers,
		followUps: followUps,
		sender:    sender,
		phones:    phones,
		logger:    logger,
		now:       time.Now,
	}
}

// SetFallback wires the recorder used when a sent message cannot be logged.
func (s *Service) SetFallback(f FallbackRecorder) {
	s.fallback = f
}

// SetInvalidator wires the metrics cache.
func (s *Service) SetInvalidator(inv Invalidator) {
	s.invalidator = inv
}

func (s *Service) changed(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
}

// Log appends a communication.
func (s *Service) Log(ctx context.Context, req LogRequest) (*Communication, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return nil, err
	}
	status := req.Status
	if status == "" {
		status = StatusSent
	}
	c := Communication{
		ID:          uuid.NewString(),
		CustomerID:  req.CustomerID,
		QuotationID: req.QuotationID,
		OrderID:     req.OrderID,
		Type:        req.Type,
		Direction:   req.Direction,
		Content:     req.Content,
		Status:      status,
		ExternalID:  req.ExternalID,
		ActorID:     req.ActorID,
		CreatedAt:   s.now(),
	}
	if err := s.repo.Insert(ctx, c); err != nil {
		return nil, shared.Persistence("log communication", err)
	}
	s.changed(ctx)
	return &c, nil
}

// Record stores a communication built elsewhere, keeping its id. It backs
// the fallback task and is safe to repeat.
func (s *Service) Record(ctx context.Context, c Communication) error {
	if c.ID == "" || c.CustomerID == "" {
		return shared.Validation("communication id and customer are required", nil)
	}
	if err := s.repo.Insert(ctx, c); err != nil {
		return shared.Persistence("record communication", err)
	}
	s.changed(ctx)
	return nil
}

// CustomerHistory returns a page of a customer's communications and
// follow-ups with totals, the latest contact and the next reminder.
func (s *Service) CustomerHistory(ctx context.Context, customerID string, limit, offset int) (*History, error) {
	page := shared.NewPage(limit, offset)
	h := History{}
	var commTotal, followTotal int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, total, err := s.repo.ListByCustomer(gctx, customerID, page)
		if err != nil {
			return shared.Persistence("list communications", err)
		}
		h.Communications, commTotal = list, total
		return nil
	})
	g.Go(func() error {
		list, total, err := s.followUps.ListByCustomer(gctx, customerID, page)
		if err != nil {
			return err
		}
		h.FollowUps, followTotal = list, total
		return nil
	})
	g.Go(func() error {
		last, err := s.repo.Latest(gctx, customerID)
		if err != nil {
			return shared.Persistence("latest communication", err)
		}
		h.LastCommunication = last
		return nil
	})
	g.Go(func() error {
		next, err := s.followUps.NextPending(gctx, customerID)
		if err != nil {
			return err
		}
		h.NextFollowUp = next
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if h.Communications == nil {
		h.Communications = []Communication{}
	}
	if h.FollowUps == nil {
		h.FollowUps = []schedule.FollowUp{}
	}
	h.TotalCommunications = commTotal
	h.TotalFollowUps = followTotal
	h.Pagination = shared.NewPagination(page, max(commTotal, followTotal))
	return &h, nil
}

// UpdateStatusByExternalID applies a provider delivery receipt to every
// communication carrying externalID and returns how many changed.
func (s *Service) UpdateStatusByExternalID(ctx context.Context, externalID string, status Status) (int, error) {
	if strings.TrimSpace(externalID) == "" {
		return 0, shared.Validation("external id is required", nil)
	}
	if !status.IsValid() {
		return 0, shared.Validation("unknown communication status "+string(status), nil)
	}
	n, err := s.repo.UpdateStatusByExternalID(ctx, externalID, status)
	if err != nil {
		return 0, shared.Persistence("update communication status", err)
	}
	if n > 0 {
		s.changed(ctx)
	}
	return n, nil
}

// SendFollowUpMessage delivers a WhatsApp message and logs it. A failed send
// is logged as FAILED and returned as an external service error. Once the
// provider accepted the message the call succeeds even if the log write
// fails; the record then goes to the fallback recorder or, without one, to
// the error log.
func (s *Service) SendFollowUpMessage(ctx context.Context, req SendRequest) (*SendResult, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return nil, err
	}
	customer, err := s.customers.Get(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}
	phone, err := s.phones.Normalize(customer.Phone)
	if err != nil {
		return nil, err
	}

	var externalID string
	var sendErr error
	content := req.Text
	if req.Template != "" {
		content = renderTemplate(req.Template, req.Params)
		externalID, sendErr = s.sender.SendTemplate(ctx, phone, req.Template, req.Params)
	} else {
		externalID, sendErr = s.sender.SendText(ctx, phone, req.Text)
	}

	c := Communication{
		ID:          uuid.NewString(),
		CustomerID:  customer.ID,
		QuotationID: req.QuotationID,
		OrderID:     req.OrderID,
		Type:        TypeWhatsApp,
		Direction:   DirectionOutbound,
		Content:     content,
		Status:      StatusSent,
		ActorID:     req.ActorID,
		CreatedAt:   s.now(),
	}

	if sendErr != nil {
		c.Status = StatusFailed
		s.logger.Warn("follow-up message failed",
			slog.String("customer_id", c.CustomerID),
			slog.String("actor", c.ActorID),
			slog.Any("error", sendErr))
		if err := s.repo.Insert(ctx, c); err != nil {
			s.lost(ctx, c, err)
		} else {
			s.changed(ctx)
		}
		if !errors.Is(sendErr, shared.ErrExternalService) {
			sendErr = shared.ExternalService("messaging", sendErr)
		}
		return nil, sendErr
	}

	c.ExternalID = &externalID
	result := &SendResult{Communication: c, Recorded: true}
	if err := s.repo.Insert(ctx, c); err != nil {
		result.Recorded = false
		s.lost(ctx, c, err)
	} else {
		s.changed(ctx)
	}

	if req.FollowUpAt != nil && req.FollowUpAt.After(c.CreatedAt) {
		followUpType := req.FollowUpType
		if followUpType == "" {
			followUpType = schedule.TypeGeneral
		}
		f, err := s.followUps.Schedule(ctx, schedule.ScheduleRequest{
			CustomerID:  customer.ID,
			QuotationID: req.QuotationID,
			OrderID:     req.OrderID,
			Type:        followUpType,
			ScheduledAt: *req.FollowUpAt,
			Notes:       req.FollowUpNotes,
			ActorID:     req.ActorID,
		})
		if err != nil {
			s.logger.Error("schedule follow-up after send failed",
				slog.String("communication_id", c.ID),
				slog.String("customer_id", c.CustomerID),
				slog.Any("error", err))
		} else {
			result.FollowUp = f
		}
	}
	return result, nil
}

// lost hands a communication that could not be inserted to the fallback
// recorder and logs every field when that is not possible either.
func (s *Service) lost(ctx context.Context, c Communication, cause error) {
	if s.fallback != nil {
		err := s.fallback.RecordLater(ctx, c)
		if err == nil {
			s.logger.Warn("communication queued for later recording",
				slog.String("communication_id", c.ID),
				slog.Any("error", cause))
			return
		}
		cause = errors.Join(cause, err)
	}
	attrs := []any{
		slog.String("communication_id", c.ID),
		slog.String("customer_id", c.CustomerID),
		slog.String("type", string(c.Type)),
		slog.String("direction", string(c.Direction)),
		slog.String("status", string(c.Status)),
		slog.String("content", c.Content),
		slog.String("actor", c.ActorID),
		slog.Time("created_at", c.CreatedAt),
		slog.Any("error", cause),
	}
	if c.ExternalID != nil {
		attrs = append(attrs, slog.String("external_id", *c.ExternalID))
	}
	if c.QuotationID != nil {
		attrs = append(attrs, slog.String("quotation_id", *c.QuotationID))
	}
	if c.OrderID != nil {
		attrs = append(attrs, slog.String("order_id", *c.OrderID))
	}
	s.logger.Error("communication not recorded", attrs...)
}

func renderTemplate(name string, params []string) string {
	if len(params) == 0 {
		return "template:" + name
	}
	return "template:" + name + " [" + strings.Join(params, ", ") + "]"
}
