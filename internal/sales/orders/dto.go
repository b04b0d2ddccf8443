package orders

import "time"

// UpdateStatusRequest moves an order along its state machine.
type UpdateStatusRequest struct {
	Status Status  `json:"status" validate:"required"`
	Notes  *string `json:"notes,omitempty"`
}

// TrackingRequest attaches a carrier tracking number.
type TrackingRequest struct {
	TrackingNumber string `json:"trackingNumber" validate:"required,max=100"`
}

// ListFilter narrows order listings. Zero values are ignored.
type ListFilter struct {
	CustomerID string
	Status     Status
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}
