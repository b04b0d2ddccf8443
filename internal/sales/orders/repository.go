package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-sales/internal/platform/db"
	"github.com/odyssey-erp/odyssey-sales/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// QuotationStore is the part of the quotation repository the conversion
// transaction writes through.
type QuotationStore interface {
	GetForUpdate(ctx context.Context, id string) (*quotations.Quotation, error)
	UpdateStatus(ctx context.Context, id string, from quotations.Status, patch quotations.StatusPatch) (bool, error)
	InsertStatusLog(ctx context.Context, log quotations.StatusLog) error
}

// Repository is the persistence port of the order lifecycle.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	// Quotations returns a quotation store sharing this repository's
	// transaction.
	Quotations() QuotationStore
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error)
	Insert(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (*Order, error)
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, int, error)
	UpdateStatus(ctx context.Context, id string, from Status, patch StatusPatch) (bool, error)
	SetTrackingNumber(ctx context.Context, id, tracking string, at time.Time) error
	InsertStatusLog(ctx context.Context, log StatusLog) error
	ListStatusLogs(ctx context.Context, orderID string) ([]StatusLog, error)
}

const orderColumns = `id, number, quotation_id, customer_id, subtotal, tax_amount, total_amount,
	shipping_address_id, status, tracking_number, shipped_at, delivered_at, notes,
	created_by, created_at, updated_at`

type repository struct {
	db   db.Querier
	tx   pgx.Tx
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, tx: tx, pool: r.pool})
	})
}

func (r *repository) Quotations() QuotationStore {
	if r.tx != nil {
		return quotations.Bind(r.tx)
	}
	return quotations.NewRepository(r.pool)
}

func (r *repository) CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE created_at >= $1 AND created_at < $2`, from, to).Scan(&n)
	return n, err
}

func (r *repository) Insert(ctx context.Context, o Order) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		o.ID, o.Number, o.QuotationID, o.CustomerID, o.Subtotal, o.TaxAmount, o.TotalAmount,
		o.ShippingAddressID, o.Status, o.TrackingNumber, o.ShippedAt, o.DeliveredAt, o.Notes,
		o.CreatedBy, o.CreatedAt, o.UpdatedAt)
	if constraint, ok := db.IsUniqueViolation(err); ok {
		if constraint == "orders_quotation_id_key" {
			return shared.AlreadyConverted("quotation", o.QuotationID, "order exists")
		}
		return shared.AlreadyExists("order", o.Number, constraint)
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, it := range o.Items {
		if _, err := r.db.Exec(ctx, `
			INSERT INTO order_items (id, order_id, position, product_id, product_name, sku, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			it.ID, o.ID, it.Position, it.ProductID, it.ProductName, it.SKU, it.Quantity, it.UnitPrice, it.LineTotal); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Number, &o.QuotationID, &o.CustomerID, &o.Subtotal, &o.TaxAmount, &o.TotalAmount,
		&o.ShippingAddressID, &o.Status, &o.TrackingNumber, &o.ShippedAt, &o.DeliveredAt, &o.Notes,
		&o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (r *repository) Get(ctx context.Context, id string) (*Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *repository) GetForUpdate(ctx context.Context, id string) (*Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *repository) get(ctx context.Context, query, id string) (*Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, position, product_id, product_name, sku, quantity, unit_price, line_total
		FROM order_items WHERE order_id = $1
		ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.Position, &it.ProductID, &it.ProductName, &it.SKU,
			&it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
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
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM orders "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM orders %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderColumns, whereClause, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func (r *repository) UpdateStatus(ctx context.Context, id string, from Status, patch StatusPatch) (bool, error) {
	cmdTag, err := r.db.Exec(ctx, `
		UPDATE orders
		SET status = $3,
		    tracking_number = COALESCE($4, tracking_number),
		    shipped_at = COALESCE($5, shipped_at),
		    delivered_at = COALESCE($6, delivered_at),
		    updated_at = $7
		WHERE id = $1 AND status = $2`,
		id, from, patch.Status, patch.TrackingNumber, patch.ShippedAt, patch.DeliveredAt, patch.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

func (r *repository) SetTrackingNumber(ctx context.Context, id, tracking string, at time.Time) error {
	cmdTag, err := r.db.Exec(ctx, `UPDATE orders SET tracking_number = $2, updated_at = $3 WHERE id = $1`, id, tracking, at)
	if err != nil {
		return fmt.Errorf("set tracking number: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) InsertStatusLog(ctx context.Context, l StatusLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO order_status_logs (id, order_id, from_status, to_status, actor_id, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, l.OrderID, l.FromStatus, l.ToStatus, l.ActorID, l.Notes, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order status log: %w", err)
	}
	return nil
}

func (r *repository) ListStatusLogs(ctx context.Context, orderID string) ([]StatusLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, from_status, to_status, actor_id, notes, created_at
		FROM order_status_logs WHERE order_id = $1
		ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order status logs: %w", err)
	}
	defer rows.Close()

	var out []StatusLog
	for rows.Next() {
		var l StatusLog
		if err := rows.Scan(&l.ID, &l.OrderID, &l.FromStatus, &l.ToStatus, &l.ActorID, &l.Notes, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
