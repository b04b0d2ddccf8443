package invoices

import (
	"time"

	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// Status is the payment state of an invoice.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusOverdue   Status = "OVERDUE"
	StatusCancelled Status = "CANCELLED"
)

// Transitions is the invoice state machine. PAID and CANCELLED are terminal.
var Transitions = shared.Transitions[Status]{
	StatusPending: {StatusPaid, StatusOverdue, StatusCancelled},
	StatusOverdue: {StatusPaid, StatusCancelled},
}

// PaymentTerm is the time between issuing an invoice and its due date.
const PaymentTerm = 30 * 24 * time.Hour

// PaymentMethod records how an invoice was settled.
type PaymentMethod string

const (
	MethodBankTransfer   PaymentMethod = "BANK_TRANSFER"
	MethodVirtualAccount PaymentMethod = "VIRTUAL_ACCOUNT"
	MethodCash           PaymentMethod = "CASH"
	MethodCreditCard     PaymentMethod = "CREDIT_CARD"
	MethodEWallet        PaymentMethod = "E_WALLET"
	MethodOther          PaymentMethod = "OTHER"
)

// Invoice bills one order.
type Invoice struct {
	ID                  string         `json:"id"`
	Number              string         `json:"number"`
	OrderID             string         `json:"orderId"`
	CustomerID          string         `json:"customerId"`
	Items               []Item         `json:"items"`
	Subtotal            int64          `json:"subtotal"`
	TaxAmount           int64          `json:"taxAmount"`
	TotalAmount         int64          `json:"totalAmount"`
	Status              Status         `json:"status"`
	DueDate             time.Time      `json:"dueDate"`
	PaidAt              *time.Time     `json:"paidAt,omitempty"`
	PaymentMethod       *PaymentMethod `json:"paymentMethod,omitempty"`
	PaymentNotes        *string        `json:"paymentNotes,omitempty"`
	TaxInvoiceRequested bool           `json:"taxInvoiceRequested"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
}

// Item is a billed line copied from the order.
type Item struct {
	ID          string `json:"id"`
	InvoiceID   string `json:"invoiceId"`
	Position    int    `json:"position"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	SKU         string `json:"sku"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	LineTotal   int64  `json:"lineTotal"`
}

// StatusPatch lists the columns a status change may write.
type StatusPatch struct {
	Status        Status
	PaidAt        *time.Time
	PaymentMethod *PaymentMethod
	PaymentNotes  *string
	UpdatedAt     time.Time
}
