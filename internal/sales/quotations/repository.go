package quotations

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

// Repository is the persistence port of the quotation lifecycle.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error)
	Insert(ctx context.Context, q Quotation) error
	Get(ctx context.Context, id string) (*Quotation, error)
	// GetForUpdate loads the quotation and locks its row until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Quotation, error)
	List(ctx context.Context, filter ListFilter) ([]Quotation, int, error)
	// UpdateStatus applies patch only while the row still has status from and
	// reports whether it did.
	UpdateStatus(ctx context.Context, id string, from Status, patch StatusPatch) (bool, error)
	InsertStatusLog(ctx context.Context, log StatusLog) error
	ListStatusLogs(ctx context.Context, quotationID string) ([]StatusLog, error)
	// ExpireDue moves every PENDING or APPROVED quotation whose validity ended
	// before now to EXPIRED, writing one status log per row.
	ExpireDue(ctx context.Context, now time.Time, actor, notes string) (int, error)
}

const quotationColumns = `id, number, customer_id, subtotal, tax_amount, total_amount, valid_until, status,
	shipping_address_id, notes, converted_order_id, created_by, created_at, updated_at`

type repository struct {
	db   db.Querier
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

// Bind returns a Repository that runs every statement on tx. Callers that
// own the transaction, such as order conversion, use it to write quotation
// rows atomically with their own.
func Bind(tx pgx.Tx) Repository {
	return &repository{db: tx}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if r.pool == nil {
		// Already bound to a transaction.
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx})
	})
}

func (r *repository) CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM quotations WHERE created_at >= $1 AND created_at < $2`, from, to).Scan(&n)
	return n, err
}

func (r *repository) Insert(ctx context.Context, q Quotation) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO quotations (`+quotationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		q.ID, q.Number, q.CustomerID, q.Subtotal, q.TaxAmount, q.TotalAmount, q.ValidUntil, q.Status,
		q.ShippingAddressID, q.Notes, q.ConvertedOrderID, q.CreatedBy, q.CreatedAt, q.UpdatedAt)
	if constraint, ok := db.IsUniqueViolation(err); ok {
		return shared.AlreadyExists("quotation", q.Number, constraint)
	}
	if err != nil {
		return fmt.Errorf("insert quotation: %w", err)
	}

	for _, item := range q.Items {
		_, err := r.db.Exec(ctx, `
			INSERT INTO quotation_items (id, quotation_id, position, product_id, product_name, sku, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			item.ID, q.ID, item.Position, item.ProductID, item.ProductName, item.SKU, item.Quantity, item.UnitPrice, item.LineTotal)
		if err != nil {
			return fmt.Errorf("insert quotation item: %w", err)
		}
	}
	return nil
}

func scanQuotation(row pgx.Row) (Quotation, error) {
	var q Quotation
	err := row.Scan(&q.ID, &q.Number, &q.CustomerID, &q.Subtotal, &q.TaxAmount, &q.TotalAmount, &q.ValidUntil, &q.Status,
		&q.ShippingAddressID, &q.Notes, &q.ConvertedOrderID, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	return q, err
}

func (r *repository) Get(ctx context.Context, id string) (*Quotation, error) {
	return r.get(ctx, `SELECT `+quotationColumns+` FROM quotations WHERE id = $1`, id)
}

func (r *repository) GetForUpdate(ctx context.Context, id string) (*Quotation, error) {
	return r.get(ctx, `SELECT `+quotationColumns+` FROM quotations WHERE id = $1 FOR UPDATE`, id)
}

func (r *repository) get(ctx context.Context, query, id string) (*Quotation, error) {
	q, err := scanQuotation(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("get quotation: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, quotation_id, position, product_id, product_name, sku, quantity, unit_price, line_total
		FROM quotation_items WHERE quotation_id = $1
		ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("get quotation items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.QuotationID, &it.Position, &it.ProductID, &it.ProductName, &it.SKU,
			&it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return nil, err
		}
		q.Items = append(q.Items, it)
	}
	return &q, rows.Err()
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Quotation, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	if filter.CustomerID != "" {
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", argPos))
		args = append(args, filter.CustomerID)
		argPos++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, filter.Status)
		argPos++
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argPos))
		args = append(args, filter.From)
		argPos++
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argPos))
		args = append(args, filter.To)
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM quotations "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count quotations: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM quotations %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		quotationColumns, whereClause, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list quotations: %w", err)
	}
	defer rows.Close()

	var out []Quotation
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, q)
	}
	return out, total, rows.Err()
}

func (r *repository) UpdateStatus(ctx context.Context, id string, from Status, patch StatusPatch) (bool, error) {
	cmdTag, err := r.db.Exec(ctx, `
		UPDATE quotations
		SET status = $3,
		    converted_order_id = COALESCE(converted_order_id, $4),
		    updated_at = $5
		WHERE id = $1 AND status = $2
		  AND ($4::text IS NULL OR converted_order_id IS NULL)`,
		id, from, patch.Status, patch.ConvertedOrderID, patch.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("update quotation status: %w", err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

func (r *repository) InsertStatusLog(ctx context.Context, l StatusLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO quotation_status_logs (id, quotation_id, from_status, to_status, actor_id, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, l.QuotationID, l.FromStatus, l.ToStatus, l.ActorID, l.Notes, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert quotation status log: %w", err)
	}
	return nil
}

func (r *repository) ListStatusLogs(ctx context.Context, quotationID string) ([]StatusLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, quotation_id, from_status, to_status, actor_id, notes, created_at
		FROM quotation_status_logs WHERE quotation_id = $1
		ORDER BY created_at, id`, quotationID)
	if err != nil {
		return nil, fmt.Errorf("list quotation status logs: %w", err)
	}
	defer rows.Close()

	var out []StatusLog
	for rows.Next() {
		var l StatusLog
		if err := rows.Scan(&l.ID, &l.QuotationID, &l.FromStatus, &l.ToStatus, &l.ActorID, &l.Notes, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *repository) ExpireDue(ctx context.Context, now time.Time, actor, notes string) (int, error) {
	cmdTag, err := r.db.Exec(ctx, `
		WITH due AS (
			SELECT id, status FROM quotations
			WHERE status IN ('PENDING', 'APPROVED') AND valid_until < $1
			FOR UPDATE SKIP LOCKED
		), expired AS (
			UPDATE quotations q
			SET status = 'EXPIRED', updated_at = $1
			FROM due
			WHERE q.id = due.id AND q.status = due.status
			RETURNING q.id, due.status AS from_status
		)
		INSERT INTO quotation_status_logs (id, quotation_id, from_status, to_status, actor_id, notes, created_at)
		SELECT gen_random_uuid()::text, id, from_status, 'EXPIRED', $2, $3, $1
		FROM expired`, now, actor, notes)
	if err != nil {
		return 0, fmt.Errorf("expire quotations: %w", err)
	}
	return int(cmdTag.RowsAffected()), nil
}
