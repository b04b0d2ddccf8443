package orders

import (
	"time"

	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusNew        Status = "NEW"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// Transitions is the order state machine. DELIVERED and CANCELLED are terminal.
var Transitions = shared.Transitions[Status]{
	StatusNew:        {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Order is a confirmed purchase created from an approved quotation. Items and
// amounts are copies taken at conversion time.
type Order struct {
	ID                string     `json:"id"`
	Number            string     `json:"number"`
	QuotationID       string     `json:"quotationId"`
	CustomerID        string     `json:"customerId"`
	Items             []Item     `json:"items"`
	Subtotal          int64      `json:"subtotal"`
	TaxAmount         int64      `json:"taxAmount"`
	TotalAmount       int64      `json:"totalAmount"`
	ShippingAddressID string     `json:"shippingAddressId"`
	Status            Status     `json:"status"`
	TrackingNumber    *string    `json:"trackingNumber,omitempty"`
	ShippedAt         *time.Time `json:"shippedAt,omitempty"`
	DeliveredAt       *time.Time `json:"deliveredAt,omitempty"`
	Notes             *string    `json:"notes,omitempty"`
	CreatedBy         string     `json:"createdBy"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Item is one product line of an order.
type Item struct {
	ID          string `json:"id"`
	OrderID     string `json:"orderId"`
	Position    int    `json:"position"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	SKU         string `json:"sku"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	LineTotal   int64  `json:"lineTotal"`
}

// StatusLog is the immutable audit row of an order transition. FromStatus is
// nil on the row written at creation.
type StatusLog struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"orderId"`
	FromStatus *Status   `json:"fromStatus,omitempty"`
	ToStatus   Status    `json:"toStatus"`
	ActorID    string    `json:"actorId"`
	Notes      *string   `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// StatusPatch lists the columns a status change may write. Nil pointers keep
// the stored value.
type StatusPatch struct {
	Status         Status
	TrackingNumber *string
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
	UpdatedAt      time.Time
}
