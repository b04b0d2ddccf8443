package shared

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every failure returned by a service matches exactly one of
// these through errors.Is.
var (
	// ErrNotFound indicates the referenced entity is absent.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidState indicates a precondition on the current state was violated.
	ErrInvalidState = errors.New("invalid state")
	// ErrAlreadyExists guards duplicate creation.
	ErrAlreadyExists = errors.New("already exists")
	// ErrAlreadyConverted guards converting a quotation twice.
	ErrAlreadyConverted = errors.New("already converted")
	// ErrAlreadyPaid guards paying an invoice twice.
	ErrAlreadyPaid = errors.New("already paid")
	// ErrCancelled indicates the document has been cancelled.
	ErrCancelled = errors.New("cancelled")
	// ErrMissingRequiredData indicates a required field such as a shipping address is absent.
	ErrMissingRequiredData = errors.New("missing required data")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrExternalService indicates the messaging provider failed.
	ErrExternalService = errors.New("external service error")
	// ErrPersistence indicates a storage layer failure.
	ErrPersistence = errors.New("persistence error")
)

// Error carries the context a caller needs to render a failure: which entity,
// which id and, for state machine failures, the current and requested status.
type Error struct {
	Kind   error
	Entity string
	ID     string
	From   string
	To     string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Entity != "" {
		b.WriteString(e.Entity)
		if e.ID != "" {
			b.WriteString(" ")
			b.WriteString(e.ID)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	switch {
	case e.To != "":
		fmt.Fprintf(&b, " (%s -> %s)", e.From, e.To)
	case e.From != "":
		fmt.Fprintf(&b, " (status %s)", e.From)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NotFound reports a missing entity.
func NotFound(entity, id string) error {
	return &Error{Kind: ErrNotFound, Entity: entity, ID: id}
}

// InvalidTransition reports a forbidden status change.
func InvalidTransition(entity, id, from, to string) error {
	return &Error{Kind: ErrInvalidTransition, Entity: entity, ID: id, From: from, To: to}
}

// InvalidState reports a violated precondition on the current status.
func InvalidState(entity, id, current, detail string) error {
	return &Error{Kind: ErrInvalidState, Entity: entity, ID: id, From: current, Detail: detail}
}

// AlreadyExists reports a duplicate.
func AlreadyExists(entity, id, detail string) error {
	return &Error{Kind: ErrAlreadyExists, Entity: entity, ID: id, Detail: detail}
}

// AlreadyConverted reports a quotation that already produced an order.
func AlreadyConverted(entity, id, orderID string) error {
	return &Error{Kind: ErrAlreadyConverted, Entity: entity, ID: id, Detail: "order " + orderID}
}

// AlreadyPaid reports a settled invoice.
func AlreadyPaid(entity, id string) error {
	return &Error{Kind: ErrAlreadyPaid, Entity: entity, ID: id}
}

// Cancelled reports a cancelled document.
func Cancelled(entity, id string) error {
	return &Error{Kind: ErrCancelled, Entity: entity, ID: id}
}

// MissingRequiredData reports an absent required field.
func MissingRequiredData(entity, id, field string) error {
	return &Error{Kind: ErrMissingRequiredData, Entity: entity, ID: id, Detail: field}
}

// Validation reports malformed input.
func Validation(detail string, cause error) error {
	return &Error{Kind: ErrValidation, Detail: detail, Err: cause}
}

// ExternalService reports a failure of a remote collaborator.
func ExternalService(service string, cause error) error {
	return &Error{Kind: ErrExternalService, Entity: service, Err: cause}
}

// Persistence wraps a storage failure. Errors that already carry a kind are
// returned untouched so a NotFound raised inside a transaction stays a NotFound.
func Persistence(op string, cause error) error {
	if cause == nil {
		return nil
	}
	var typed *Error
	if errors.As(cause, &typed) {
		return cause
	}
	return &Error{Kind: ErrPersistence, Detail: op, Err: cause}
}

// KindOf returns the kind sentinel of err, or nil when err carries none.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrNotFound, ErrInvalidTransition, ErrInvalidState, ErrAlreadyExists,
		ErrAlreadyConverted, ErrAlreadyPaid, ErrCancelled, ErrMissingRequiredData,
		ErrValidation, ErrExternalService, ErrPersistence,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
