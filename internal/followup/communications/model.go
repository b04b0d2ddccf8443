package communications

import (
	"time"

	"github.com/odyssey-erp/odyssey-sales/internal/followup/schedule"
	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// Type is the channel a contact went through.
type Type string

const (
	TypeWhatsApp Type = "WHATSAPP"
	TypePhone    Type = "PHONE"
	TypeEmail    Type = "EMAIL"
	TypeSMS      Type = "SMS"
)

// Direction tells inbound contacts from outbound ones.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// Status is the delivery state reported by the provider.
type Status string

const (
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusRead      Status = "READ"
	StatusFailed    Status = "FAILED"
)

// IsValid reports whether s is a known delivery status.
func (s Status) IsValid() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return true
	}
	return false
}

// Communication is one logged contact with a customer. Only Status changes
// after insert, driven by provider callbacks.
type Communication struct {
	ID          string    `json:"id"`
	CustomerID  string    `json:"customerId"`
	QuotationID *string   `json:"quotationId,omitempty"`
	OrderID     *string   `json:"orderId,omitempty"`
	Type        Type      `json:"type"`
	Direction   Direction `json:"direction"`
	Content     string    `json:"content"`
	Status      Status    `json:"status"`
	ExternalID  *string   `json:"externalId,omitempty"`
	ActorID     string    `json:"actorId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// LogRequest records a contact. Status defaults to SENT.
type LogRequest struct {
	CustomerID  string    `json:"customerId" validate:"required"`
	QuotationID *string   `json:"quotationId,omitempty"`
	OrderID     *string   `json:"orderId,omitempty"`
	Type        Type      `json:"type" validate:"required,oneof=WHATSAPP PHONE EMAIL SMS"`
	Direction   Direction `json:"direction" validate:"required,oneof=INBOUND OUTBOUND"`
	Content     string    `json:"content" validate:"required"`
	Status      Status    `json:"status,omitempty" validate:"omitempty,oneof=SENT DELIVERED READ FAILED"`
	ExternalID  *string   `json:"externalId,omitempty"`
	ActorID     string    `json:"actorId" validate:"required"`
}

// SendRequest delivers a WhatsApp message to a customer. Exactly one of
// Template or Text is set. A FollowUpAt in the future also schedules a
// reminder of FollowUpType.
type SendRequest struct {
	CustomerID    string        `json:"customerId" validate:"required"`
	QuotationID   *string       `json:"quotationId,omitempty"`
	OrderID       *string       `json:"orderId,omitempty"`
	Template      string        `json:"template,omitempty" validate:"required_without=Text,excluded_with=Text"`
	Params        []string      `json:"params,omitempty"`
	Text          string        `json:"text,omitempty" validate:"required_without=Template,max=4096"`
	ActorID       string        `json:"actorId" validate:"required"`
	FollowUpAt    *time.Time    `json:"followUpAt,omitempty"`
	FollowUpType  schedule.Type `json:"followUpType,omitempty"`
	FollowUpNotes *string       `json:"followUpNotes,omitempty"`
}

// SendResult reports what a send produced. Recorded is false when the
// communication row could not be written synchronously and was handed to the
// fallback path.
type SendResult struct {
	Communication Communication      `json:"communication"`
	FollowUp      *schedule.FollowUp `json:"followUp,omitempty"`
	Recorded      bool               `json:"recorded"`
}

// History is a customer's contact timeline.
type History struct {
	Communications      []Communication     `json:"communications"`
	FollowUps           []schedule.FollowUp `json:"followUps"`
	Pagination          shared.Pagination   `json:"pagination"`
	TotalCommunications int                 `json:"totalCommunications"`
	TotalFollowUps      int                 `json:"totalFollowUps"`
	LastCommunication   *Communication      `json:"lastCommunication,omitempty"`
	NextFollowUp        *schedule.FollowUp  `json:"nextFollowUp,omitempty"`
}

// StatusCallback is a provider delivery receipt.
type StatusCallback struct {
	ExternalID string `json:"externalId" validate:"required"`
	Status     Status `json:"status" validate:"required,oneof=SENT DELIVERED READ FAILED"`
}
