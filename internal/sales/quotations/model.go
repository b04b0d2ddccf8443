package quotations

import (
	"time"

	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// Status is the lifecycle state of a quotation.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusConverted Status = "CONVERTED"
	StatusExpired   Status = "EXPIRED"
)

// Transitions is the quotation state machine. REJECTED, CONVERTED and
// EXPIRED are terminal.
var Transitions = shared.Transitions[Status]{
	StatusPending:  {StatusApproved, StatusRejected, StatusExpired},
	StatusApproved: {StatusConverted, StatusExpired},
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusConverted, StatusExpired:
		return true
	}
	return false
}

// Validity is how long a new quotation stays open.
const Validity = 30 * 24 * time.Hour

// Quotation is a priced offer to a customer.
type Quotation struct {
	ID                string    `json:"id"`
	Number            string    `json:"number"`
	CustomerID        string    `json:"customerId"`
	Items             []Item    `json:"items"`
	Subtotal          int64     `json:"subtotal"`
	TaxAmount         int64     `json:"taxAmount"`
	TotalAmount       int64     `json:"totalAmount"`
	ValidUntil        time.Time `json:"validUntil"`
	Status            Status    `json:"status"`
	ShippingAddressID *string   `json:"shippingAddressId,omitempty"`
	Notes             *string   `json:"notes,omitempty"`
	ConvertedOrderID  *string   `json:"convertedOrderId,omitempty"`
	CreatedBy         string    `json:"createdBy"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Item is one priced product line of a quotation.
type Item struct {
	ID          string `json:"id"`
	QuotationID string `json:"quotationId"`
	Position    int    `json:"position"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	SKU         string `json:"sku"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	LineTotal   int64  `json:"lineTotal"`
}

// StatusLog is the immutable audit row written for every transition.
// FromStatus is nil for the row recording creation.
type StatusLog struct {
	ID          string    `json:"id"`
	QuotationID string    `json:"quotationId"`
	FromStatus  *Status   `json:"fromStatus,omitempty"`
	ToStatus    Status    `json:"toStatus"`
	ActorID     string    `json:"actorId"`
	Notes       *string   `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// StatusPatch is the explicit set of columns a status change writes.
type StatusPatch struct {
	Status Status
	// ConvertedOrderID is written only while the column is still empty.
	ConvertedOrderID *string
	UpdatedAt        time.Time
}

// ConvertedOrder identifies the order produced by a conversion.
type ConvertedOrder struct {
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
	QuotationID string `json:"quotationId"`
}
