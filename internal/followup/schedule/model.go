package schedule

import (
	"time"

	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// Status of a follow-up reminder.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// transitions is the whole follow-up state machine: both outcomes are
// terminal and reachable only from PENDING.
var transitions = shared.Transitions[Status]{
	StatusPending: {StatusCompleted, StatusCancelled},
}

// Type classifies why the customer is being re-contacted.
type Type string

const (
	TypeQuotationFollowUp Type = "QUOTATION_FOLLOW_UP"
	TypeOrderFollowUp     Type = "ORDER_FOLLOW_UP"
	TypePaymentReminder   Type = "PAYMENT_REMINDER"
	TypeGeneral           Type = "GENERAL"
)

// FollowUp is a scheduled reminder to re-contact a customer.
type FollowUp struct {
	ID          string     `json:"id"`
	CustomerID  string     `json:"customerId"`
	QuotationID *string    `json:"quotationId,omitempty"`
	OrderID     *string    `json:"orderId,omitempty"`
	Type        Type       `json:"type"`
	ScheduledAt time.Time  `json:"scheduledAt"`
	Status      Status     `json:"status"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	ActorID     string     `json:"actorId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// ScheduleRequest creates a follow-up.
type ScheduleRequest struct {
	CustomerID  string    `json:"customerId" validate:"required"`
	QuotationID *string   `json:"quotationId,omitempty"`
	OrderID     *string   `json:"orderId,omitempty"`
	Type        Type      `json:"type" validate:"required,oneof=QUOTATION_FOLLOW_UP ORDER_FOLLOW_UP PAYMENT_REMINDER GENERAL"`
	ScheduledAt time.Time `json:"scheduledAt" validate:"required"`
	Notes       *string   `json:"notes,omitempty"`
	ActorID     string    `json:"actorId" validate:"required"`
}

// Patch is the explicit set of fields a status change writes.
type Patch struct {
	Status      Status
	CompletedAt *time.Time
	Notes       *string
	UpdatedAt   time.Time
}

// PendingFilter selects PENDING follow-ups by schedule window and actor.
// From is inclusive and Before exclusive; zero values leave a side open.
type PendingFilter struct {
	From    time.Time
	Before  time.Time
	ActorID string
}
