package pricing

// Product is a sellable item with a base unit price in cents.
type Product struct {
	ID        string `json:"id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	BasePrice int64  `json:"basePrice"`
	Tiers     []Tier `json:"tiers,omitempty"`
}

// Tier overrides the base price for a quantity bracket. A nil MaxQuantity
// leaves the bracket unbounded above.
type Tier struct {
	ID           string `json:"id"`
	MinQuantity  int64  `json:"minQuantity"`
	MaxQuantity  *int64 `json:"maxQuantity,omitempty"`
	PricePerUnit int64  `json:"pricePerUnit"`
	Active       bool   `json:"active"`
}

// Covers reports whether an active tier applies to qty.
func (t Tier) Covers(qty int64) bool {
	if !t.Active || qty < t.MinQuantity {
		return false
	}
	return t.MaxQuantity == nil || qty <= *t.MaxQuantity
}

// Resolution is the priced outcome for one product line.
type Resolution struct {
	Product   Product `json:"product"`
	Quantity  int64   `json:"quantity"`
	UnitPrice int64   `json:"unitPrice"`
	LineTotal int64   `json:"lineTotal"`
	// Discount is the saving against the base price for the whole line.
	Discount int64 `json:"discount"`
	Tier     *Tier `json:"tier,omitempty"`
}
