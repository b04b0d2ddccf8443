package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-sales/internal/platform/db"
	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// Repository persists follow-ups.
type Repository interface {
	Insert(ctx context.Context, f FollowUp) error
	Get(ctx context.Context, id string) (*FollowUp, error)
	// UpdateStatus applies patch only while the row still has status from and
	// reports whether it did.
	UpdateStatus(ctx context.Context, id string, from Status, patch Patch) (bool, error)
	ListPending(ctx context.Context, filter PendingFilter) ([]FollowUp, error)
	ListByCustomer(ctx context.Context, customerID string, page shared.Page) ([]FollowUp, int, error)
	// NextPending returns the earliest PENDING follow-up scheduled at or after from.
	NextPending(ctx context.Context, customerID string, from time.Time) (*FollowUp, error)
}

const followUpColumns = `id, customer_id, quotation_id, order_id, type, scheduled_at, status,
	completed_at, notes, actor_id, created_at, updated_at`

type repository struct {
	db db.Querier
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func scanFollowUp(row pgx.Row) (FollowUp, error) {
	var f FollowUp
	err := row.Scan(&f.ID, &f.CustomerID, &f.QuotationID, &f.OrderID, &f.Type, &f.ScheduledAt, &f.Status,
		&f.CompletedAt, &f.Notes, &f.ActorID, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func collect(rows pgx.Rows) ([]FollowUp, error) {
	defer rows.Close()
	var out []FollowUp
	for rows.Next() {
		f, err := scanFollowUp(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *repository) Insert(ctx context.Context, f FollowUp) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO follow_ups (`+followUpColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		f.ID, f.CustomerID, f.QuotationID, f.OrderID, f.Type, f.ScheduledAt, f.Status,
		f.CompletedAt, f.Notes, f.ActorID, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert follow-up: %w", err)
	}
	return nil
}

func (r *repository) Get(ctx context.Context, id string) (*FollowUp, error) {
	f, err := scanFollowUp(r.db.QueryRow(ctx, `SELECT `+followUpColumns+` FROM follow_ups WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("get follow-up: %w", err)
	}
	return &f, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id string, from Status, patch Patch) (bool, error) {
	cmdTag, err := r.db.Exec(ctx, `
		UPDATE follow_ups
		SET status = $3,
		    completed_at = COALESCE($4, completed_at),
		    notes = COALESCE($5, notes),
		    updated_at = $6
		WHERE id = $1 AND status = $2`,
		id, from, patch.Status, patch.CompletedAt, patch.Notes, patch.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("update follow-up status: %w", err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

func (r *repository) ListPending(ctx context.Context, filter PendingFilter) ([]FollowUp, error) {
	conditions := []string{"status = $1"}
	args := []any{StatusPending}
	argPos := 2

	if !filter.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("scheduled_at >= $%d", argPos))
		args = append(args, filter.From)
		argPos++
	}
	if !filter.Before.IsZero() {
		conditions = append(conditions, fmt.Sprintf("scheduled_at < $%d", argPos))
		args = append(args, filter.Before)
		argPos++
	}
	if filter.ActorID != "" {
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", argPos))
		args = append(args, filter.ActorID)
	}

	rows, err := r.db.Query(ctx, `SELECT `+followUpColumns+` FROM follow_ups
		WHERE `+strings.Join(conditions, " AND ")+`
		ORDER BY scheduled_at ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending follow-ups: %w", err)
	}
	return collect(rows)
}

func (r *repository) ListByCustomer(ctx context.Context, customerID string, page shared.Page) ([]FollowUp, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM follow_ups WHERE customer_id = $1`, customerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count follow-ups: %w", err)
	}
	rows, err := r.db.Query(ctx, `SELECT `+followUpColumns+` FROM follow_ups
		WHERE customer_id = $1
		ORDER BY scheduled_at DESC
		LIMIT $2 OFFSET $3`, customerID, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list follow-ups: %w", err)
	}
	list, err := collect(rows)
	return list, total, err
}

func (r *repository) NextPending(ctx context.Context, customerID string, from time.Time) (*FollowUp, error) {
	f, err := scanFollowUp(r.db.QueryRow(ctx, `SELECT `+followUpColumns+` FROM follow_ups
		WHERE customer_id = $1 AND status = $2 AND scheduled_at >= $3
		ORDER BY scheduled_at ASC
		LIMIT 1`, customerID, StatusPending, from))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("next pending follow-up: %w", err)
	}
	return &f, nil
}
