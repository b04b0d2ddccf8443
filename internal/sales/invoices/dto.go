package invoices

import "time"

// PaymentInfo settles an invoice. PaidAt defaults to the time of the call.
type PaymentInfo struct {
	Method PaymentMethod `json:"method" validate:"required,oneof=BANK_TRANSFER VIRTUAL_ACCOUNT CASH CREDIT_CARD E_WALLET OTHER"`
	PaidAt *time.Time    `json:"paidAt,omitempty"`
	Notes  *string       `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// CancelRequest voids an unpaid invoice.
type CancelRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// ListFilter narrows invoice listings. Zero values are ignored.
type ListFilter struct {
	CustomerID string
	Status     Status
	DueBefore  time.Time
	Limit      int
	Offset     int
}
