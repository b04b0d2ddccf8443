package pricing

import (
	"context"
	"errors"

	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// ProductReader loads a product together with its tiers.
type ProductReader interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
}

// ResolveUnitPrice picks the active tier with the highest MinQuantity that
// covers qty and falls back to the base price when none does.
func ResolveUnitPrice(p Product, qty int64) (int64, *Tier) {
	var best *Tier
	for i := range p.Tiers {
		tier := p.Tiers[i]
		if !tier.Covers(qty) {
			continue
		}
		if best == nil || tier.MinQuantity > best.MinQuantity {
			best = &tier
		}
	}
	if best == nil {
		return p.BasePrice, nil
	}
	return best.PricePerUnit, best
}

// Resolver prices product lines against stored products.
type Resolver struct {
	products ProductReader
}

// NewResolver constructs a Resolver.
func NewResolver(products ProductReader) *Resolver {
	return &Resolver{products: products}
}

// Resolve prices qty units of productID.
func (r *Resolver) Resolve(ctx context.Context, productID string, qty int64) (Resolution, error) {
	if qty <= 0 {
		return Resolution{}, shared.Validation("quantity must be greater than zero", nil)
	}
	product, err := r.products.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Resolution{}, shared.NotFound("product", productID)
		}
		return Resolution{}, shared.Persistence("get product", err)
	}

	unit, tier := ResolveUnitPrice(*product, qty)
	return Resolution{
		Product:   *product,
		Quantity:  qty,
		UnitPrice: unit,
		LineTotal: unit * qty,
		Discount:  (product.BasePrice - unit) * qty,
		Tier:      tier,
	}, nil
}
