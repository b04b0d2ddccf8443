package pricing

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-sales/internal/platform/db"
	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

type repository struct {
	db db.Querier
}

// NewRepository returns a ProductReader backed by PostgreSQL.
func NewRepository(pool *pgxpool.Pool) ProductReader {
	return &repository{db: pool}
}

func (r *repository) GetProduct(ctx context.Context, id string) (*Product, error) {
	var p Product
	err := r.db.QueryRow(ctx, `SELECT id, sku, name, base_price FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.BasePrice)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, min_quantity, max_quantity, price_per_unit, active
		FROM pricing_tiers WHERE product_id = $1
		ORDER BY min_quantity`, id)
	if err != nil {
		return nil, fmt.Errorf("list pricing tiers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t Tier
		if err := rows.Scan(&t.ID, &t.MinQuantity, &t.MaxQuantity, &t.PricePerUnit, &t.Active); err != nil {
			return nil, err
		}
		p.Tiers = append(p.Tiers, t)
	}
	return &p, rows.Err()
}
