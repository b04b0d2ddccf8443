package communications

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-sales/internal/platform/db"
	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// Repository is the persistence port of the communication log.
type Repository interface {
	// Insert ignores a row whose id already exists so a retried record is harmless.
	Insert(ctx context.Context, c Communication) error
	ListByCustomer(ctx context.Context, customerID string, page shared.Page) ([]Communication, int, error)
	// Latest returns nil when the customer has no communications.
	Latest(ctx context.Context, customerID string) (*Communication, error)
	UpdateStatusByExternalID(ctx context.Context, externalID string, status Status) (int, error)
}

const communicationColumns = `id, customer_id, quotation_id, order_id, type, direction, content, status, external_id, actor_id, created_at`

type repository struct {
	db db.Querier
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func scanCommunication(row pgx.Row) (Communication, error) {
	var c Communication
	err := row.Scan(&c.ID, &c.CustomerID, &c.QuotationID, &c.OrderID, &c.Type, &c.Direction, &c.Content,
		&c.Status, &c.ExternalID, &c.ActorID, &c.CreatedAt)
	return c, err
}

func (r *repository) Insert(ctx context.Context, c Communication) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO communications (`+communicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		c.ID, c.CustomerID, c.QuotationID, c.OrderID, c.Type, c.Direction, c.Content, c.Status, c.ExternalID, c.ActorID, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert communication: %w", err)
	}
	return nil
}

func (r *repository) ListByCustomer(ctx context.Context, customerID string, page shared.Page) ([]Communication, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM communications WHERE customer_id = $1`, customerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count communications: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+communicationColumns+` FROM communications
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, customerID, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list communications: %w", err)
	}
	defer rows.Close()

	var out []Communication
	for rows.Next() {
		c, err := scanCommunication(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repository) Latest(ctx context.Context, customerID string) (*Communication, error) {
	c, err := scanCommunication(r.db.QueryRow(ctx, `
		SELECT `+communicationColumns+` FROM communications
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, customerID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest communication: %w", err)
	}
	return &c, nil
}

func (r *repository) UpdateStatusByExternalID(ctx context.Context, externalID string, status Status) (int, error) {
	cmdTag, err := r.db.Exec(ctx, `UPDATE communications SET status = $2 WHERE external_id = $1`, externalID, status)
	if err != nil {
		return 0, fmt.Errorf("update communication status: %w", err)
	}
	return int(cmdTag.RowsAffected()), nil
}
