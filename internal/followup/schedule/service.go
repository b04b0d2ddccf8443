package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// Invalidator is told about writes that change aggregate metrics.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Service schedules, completes and cancels follow-up reminders.
type Service struct {
	repo        Repository
	logger      *slog.Logger
	loc         *time.Location
	now         func() time.Time
	invalidator Invalidator
}

// NewService constructs the scheduler. Day boundaries for DueToday are taken
// in loc; a nil loc means time.Local.
func NewService(repo Repository, logger *slog.Logger, loc *time.Location) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{repo: repo, logger: logger, loc: loc, now: time.Now}
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

// Schedule stores a new PENDING follow-up.
func (s *Service) Schedule(ctx context.Context, req ScheduleRequest) (*FollowUp, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return nil, err
	}
	now := s.now()
	f := FollowUp{
		ID:          uuid.NewString(),
		CustomerID:  req.CustomerID,
		QuotationID: req.QuotationID,
		OrderID:     req.OrderID,
		Type:        req.Type,
		ScheduledAt: req.ScheduledAt,
		Status:      StatusPending,
		Notes:       req.Notes,
		ActorID:     req.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, f); err != nil {
		return nil, shared.Persistence("schedule follow-up", err)
	}
	s.logger.Info("follow-up scheduled",
		slog.String("follow_up_id", f.ID),
		slog.String("customer_id", f.CustomerID),
		slog.String("type", string(f.Type)),
		slog.Time("scheduled_at", f.ScheduledAt))
	s.changed(ctx)
	return &f, nil
}

// Complete marks a PENDING follow-up COMPLETED and stamps CompletedAt.
// A follow-up that is already COMPLETED or CANCELLED yields InvalidTransition.
func (s *Service) Complete(ctx context.Context, id string, notes *string) (*FollowUp, error) {
	now := s.now()
	return s.transition(ctx, id, Patch{Status: StatusCompleted, CompletedAt: &now, Notes: notes, UpdatedAt: now})
}

// Cancel marks a PENDING follow-up CANCELLED.
func (s *Service) Cancel(ctx context.Context, id string, notes *string) (*FollowUp, error) {
	return s.transition(ctx, id, Patch{Status: StatusCancelled, Notes: notes, UpdatedAt: s.now()})
}

func (s *Service) transition(ctx context.Context, id string, patch Patch) (*FollowUp, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := transitions.Validate("follow-up", id, current.Status, patch.Status); err != nil {
		return nil, err
	}

	ok, err := s.repo.UpdateStatus(ctx, id, current.Status, patch)
	if err != nil {
		return nil, shared.Persistence("update follow-up status", err)
	}
	if !ok {
		// Lost a race against another writer; report what it left behind.
		latest, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, shared.InvalidTransition("follow-up", id, string(latest.Status), string(patch.Status))
	}

	current.Status = patch.Status
	current.UpdatedAt = patch.UpdatedAt
	if patch.CompletedAt != nil {
		current.CompletedAt = patch.CompletedAt
	}
	if patch.Notes != nil {
		current.Notes = patch.Notes
	}
	s.changed(ctx)
	return current, nil
}

// Get loads a follow-up.
func (s *Service) Get(ctx context.Context, id string) (*FollowUp, error) {
	f, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NotFound("follow-up", id)
		}
		return nil, shared.Persistence("get follow-up", err)
	}
	return f, nil
}

// StartOfDay returns midnight of t in the scheduler's location.
func (s *Service) StartOfDay(t time.Time) time.Time {
	t = t.In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}

// DueToday lists PENDING follow-ups scheduled within the current local day,
// earliest first. An empty actorID returns every actor's reminders.
func (s *Service) DueToday(ctx context.Context, actorID string) ([]FollowUp, error) {
	start := s.StartOfDay(s.now())
	list, err := s.repo.ListPending(ctx, PendingFilter{From: start, Before: start.AddDate(0, 0, 1), ActorID: actorID})
	if err != nil {
		return nil, shared.Persistence("list follow-ups due today", err)
	}
	return list, nil
}

// Overdue lists PENDING follow-ups scheduled strictly before now, earliest first.
func (s *Service) Overdue(ctx context.Context, actorID string) ([]FollowUp, error) {
	list, err := s.repo.ListPending(ctx, PendingFilter{Before: s.now(), ActorID: actorID})
	if err != nil {
		return nil, shared.Persistence("list overdue follow-ups", err)
	}
	return list, nil
}

// ListByCustomer pages through a customer's follow-ups, newest schedule first.
func (s *Service) ListByCustomer(ctx context.Context, customerID string, page shared.Page) ([]FollowUp, int, error) {
	list, total, err := s.repo.ListByCustomer(ctx, customerID, shared.NewPage(page.Limit, page.Offset))
	if err != nil {
		return nil, 0, shared.Persistence("list customer follow-ups", err)
	}
	return list, total, nil
}

// NextPending returns the customer's earliest PENDING follow-up that is not
// yet due, or nil.
func (s *Service) NextPending(ctx context.Context, customerID string) (*FollowUp, error) {
	f, err := s.repo.NextPending(ctx, customerID, s.now())
	if err != nil {
		return nil, shared.Persistence("next pending follow-up", err)
	}
	return f, nil
}
