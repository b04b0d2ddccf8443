package quotations

import "time"

// CreateRequest is a customer purchase request to be priced.
type CreateRequest struct {
	CustomerID        string        `json:"customerId" validate:"required"`
	Items             []ItemRequest `json:"items" validate:"required,min=1,dive"`
	ShippingAddressID *string       `json:"shippingAddressId,omitempty" validate:"omitempty,min=1"`
	Notes             *string       `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// ItemRequest asks for qty units of one product.
type ItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"gt=0"`
}

// UpdateStatusRequest moves a quotation along its state machine.
type UpdateStatusRequest struct {
	Status Status  `json:"status" validate:"required"`
	Notes  *string `json:"notes,omitempty"`
}

// ScheduleFollowUpRequest books a reminder about a quotation.
type ScheduleFollowUpRequest struct {
	ScheduledAt time.Time `json:"scheduledAt" validate:"required"`
	Notes       *string   `json:"notes,omitempty"`
}

// ListFilter narrows quotation listings. Zero values are ignored.
type ListFilter struct {
	CustomerID string
	Status     Status
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}
