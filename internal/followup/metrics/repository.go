package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-sales/internal/followup/communications"
	"github.com/odyssey-erp/odyssey-sales/internal/platform/db"
)

// Repository runs the count aggregates behind a report. Every method groups
// inside PostgreSQL; no row-level data leaves the database.
type Repository interface {
	CountByType(ctx context.Context, filter Filter) (map[communications.Type]int, error)
	CountByStatus(ctx context.Context, filter Filter) (map[communications.Status]int, error)
	FollowUpTotals(ctx context.Context, filter Filter) (FollowUpTotals, error)
	MonthlyTrends(ctx context.Context, since time.Time, actorID string, loc *time.Location) ([]TrendPoint, error)
}

type repository struct {
	db db.Querier
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const windowClause = `
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)
		  AND ($3::text = '' OR actor_id = $3)`

func (r *repository) CountByType(ctx context.Context, filter Filter) (map[communications.Type]int, error) {
	out := make(map[communications.Type]int)
	err := r.groupCount(ctx, `SELECT type, COUNT(*) FROM communications`+windowClause+` GROUP BY type`, filter,
		func(key string, n int) { out[communications.Type(key)] = n })
	if err != nil {
		return nil, fmt.Errorf("count communications by type: %w", err)
	}
	return out, nil
}

func (r *repository) CountByStatus(ctx context.Context, filter Filter) (map[communications.Status]int, error) {
	out := make(map[communications.Status]int)
	err := r.groupCount(ctx, `SELECT status, COUNT(*) FROM communications`+windowClause+` GROUP BY status`, filter,
		func(key string, n int) { out[communications.Status(key)] = n })
	if err != nil {
		return nil, fmt.Errorf("count communications by status: %w", err)
	}
	return out, nil
}

func (r *repository) groupCount(ctx context.Context, sql string, filter Filter, add func(string, int)) error {
	rows, err := r.db.Query(ctx, sql, filter.Start, filter.End, filter.ActorID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		add(key, n)
	}
	return rows.Err()
}

func (r *repository) FollowUpTotals(ctx context.Context, filter Filter) (FollowUpTotals, error) {
	var t FollowUpTotals
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE f.status = 'COMPLETED'),
		       COUNT(*) FILTER (WHERE q.status = 'APPROVED')
		FROM follow_ups f
		LEFT JOIN quotations q ON q.id = f.quotation_id
		WHERE ($1::timestamptz IS NULL OR f.created_at >= $1)
		  AND ($2::timestamptz IS NULL OR f.created_at <= $2)
		  AND ($3::text = '' OR f.actor_id = $3)`,
		filter.Start, filter.End, filter.ActorID).Scan(&t.Total, &t.Completed, &t.Converted)
	if err != nil {
		return FollowUpTotals{}, fmt.Errorf("follow-up totals: %w", err)
	}
	return t, nil
}

// MonthlyTrends buckets activity since the given instant by calendar month
// in loc. Months without any event produce no row.
func (r *repository) MonthlyTrends(ctx context.Context, since time.Time, actorID string, loc *time.Location) ([]TrendPoint, error) {
	rows, err := r.db.Query(ctx, `
		WITH c AS (
			SELECT to_char(date_trunc('month', created_at AT TIME ZONE $3), 'YYYY-MM') AS month,
			       COUNT(*) AS n
			FROM communications
			WHERE created_at >= $1 AND ($2::text = '' OR actor_id = $2)
			GROUP BY 1
		), f AS (
			SELECT to_char(date_trunc('month', f.created_at AT TIME ZONE $3), 'YYYY-MM') AS month,
			       COUNT(*) AS n,
			       COUNT(*) FILTER (WHERE q.status = 'APPROVED') AS converted
			FROM follow_ups f
			LEFT JOIN quotations q ON q.id = f.quotation_id
			WHERE f.created_at >= $1 AND ($2::text = '' OR f.actor_id = $2)
			GROUP BY 1
		)
		SELECT COALESCE(c.month, f.month), COALESCE(c.n, 0), COALESCE(f.n, 0), COALESCE(f.converted, 0)
		FROM c
		FULL OUTER JOIN f ON f.month = c.month
		ORDER BY 1`,
		since, actorID, loc.String())
	if err != nil {
		return nil, fmt.Errorf("monthly trends: %w", err)
	}
	defer rows.Close()

	out := []TrendPoint{}
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.Month, &p.Communications, &p.FollowUps, &p.Conversions); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
