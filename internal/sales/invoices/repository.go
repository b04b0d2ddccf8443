package invoices

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

// Repository is the persistence port of invoices.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error)
	Insert(ctx context.Context, inv Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	GetForUpdate(ctx context.Context, id string) (*Invoice, error)
	// GetByOrder returns shared.ErrNotFound when the order has no invoice.
	GetByOrder(ctx context.Context, orderID string) (*Invoice, error)
	List(ctx context.Context, filter ListFilter) ([]Invoice, int, error)
	UpdateStatus(ctx context.Context, id string, from Status, patch StatusPatch) (bool, error)
	SetTaxInvoiceRequested(ctx context.Context, id string, at time.Time) error
	// MarkOverdue moves PENDING invoices due before now to OVERDUE.
	MarkOverdue(ctx context.Context, now time.Time) (int, error)
}

const invoiceColumns = `id, number, order_id, customer_id, subtotal, tax_amount, total_amount, status, due_date,
	paid_at, payment_method, payment_notes, tax_invoice_requested, created_at, updated_at`

type repository struct {
	db   db.Querier
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if r.pool == nil {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx})
	})
}

func (r *repository) CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE created_at >= $1 AND created_at < $2`, from, to).Scan(&n)
	return n, err
}

func (r *repository) Insert(ctx context.Context, inv Invoice) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		inv.ID, inv.Number, inv.OrderID, inv.CustomerID, inv.Subtotal, inv.TaxAmount, inv.TotalAmount, inv.Status, inv.DueDate,
		inv.PaidAt, inv.PaymentMethod, inv.PaymentNotes, inv.TaxInvoiceRequested, inv.CreatedAt, inv.UpdatedAt)
	if constraint, ok := db.IsUniqueViolation(err); ok {
		return shared.AlreadyExists("invoice", inv.OrderID, constraint)
	}
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	for _, it := range inv.Items {
		if _, err := r.db.Exec(ctx, `
			INSERT INTO invoice_items (id, invoice_id, position, product_id, product_name, sku, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			it.ID, inv.ID, it.Position, it.ProductID, it.ProductName, it.SKU, it.Quantity, it.UnitPrice, it.LineTotal); err != nil {
			return fmt.Errorf("insert invoice item: %w", err)
		}
	}
	return nil
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.OrderID, &inv.CustomerID, &inv.Subtotal, &inv.TaxAmount, &inv.TotalAmount,
		&inv.Status, &inv.DueDate, &inv.PaidAt, &inv.PaymentMethod, &inv.PaymentNotes, &inv.TaxInvoiceRequested,
		&inv.CreatedAt, &inv.UpdatedAt)
	return inv, err
}

func (r *repository) Get(ctx context.Context, id string) (*Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
}

func (r *repository) GetForUpdate(ctx context.Context, id string) (*Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
}

func (r *repository) GetByOrder(ctx context.Context, orderID string) (*Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE order_id = $1`, orderID)
}

func (r *repository) get(ctx context.Context, query, arg string) (*Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, invoice_id, position, product_id, product_name, sku, quantity, unit_price, line_total
		FROM invoice_items WHERE invoice_id = $1
		ORDER BY position`, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("get invoice items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Position, &it.ProductID, &it.ProductName, &it.SKU,
			&it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return nil, err
		}
		inv.Items = append(inv.Items, it)
	}
	return &inv, rows.Err()
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
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
	if !filter.DueBefore.IsZero() {
		conditions = append(conditions, fmt.Sprintf("due_date < $%d", argPos))
		args = append(args, filter.DueBefore)
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM invoices "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM invoices %s ORDER BY due_date ASC LIMIT $%d OFFSET $%d`,
		invoiceColumns, whereClause, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

func (r *repository) UpdateStatus(ctx context.Context, id string, from Status, patch StatusPatch) (bool, error) {
	cmdTag, err := r.db.Exec(ctx, `
		UPDATE invoices
		SET status = $3,
		    paid_at = COALESCE($4, paid_at),
		    payment_method = COALESCE($5, payment_method),
		    payment_notes = COALESCE($6, payment_notes),
		    updated_at = $7
		WHERE id = $1 AND status = $2`,
		id, from, patch.Status, patch.PaidAt, patch.PaymentMethod, patch.PaymentNotes, patch.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("update invoice status: %w", err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

func (r *repository) SetTaxInvoiceRequested(ctx context.Context, id string, at time.Time) error {
	cmdTag, err := r.db.Exec(ctx, `UPDATE invoices SET tax_invoice_requested = TRUE, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("request tax invoice: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	cmdTag, err := r.db.Exec(ctx, `
		UPDATE invoices SET status = 'OVERDUE', updated_at = $1
		WHERE status = 'PENDING' AND due_date < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("mark overdue invoices: %w", err)
	}
	return int(cmdTag.RowsAffected()), nil
}
