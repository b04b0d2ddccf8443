package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DocPrefix identifies the document family in a generated number.
type DocPrefix string

const (
	PrefixQuotation DocPrefix = "QUO"
	PrefixOrder     DocPrefix = "ORD"
	PrefixInvoice   DocPrefix = "INV"
)

// DocumentCounter counts documents created in the half-open range [from, to).
type DocumentCounter interface {
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error)
}

// MonthRange returns the first instant of the month containing at and the
// first instant of the following month, in at's location.
func MonthRange(at time.Time) (time.Time, time.Time) {
	start := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, at.Location())
	return start, start.AddDate(0, 1, 0)
}

// FormatDocumentNumber renders PREFIX/YYYY/MM/NNNN.
func FormatDocumentNumber(prefix DocPrefix, at time.Time, seq int) string {
	return fmt.Sprintf("%s/%04d/%02d/%04d", prefix, at.Year(), int(at.Month()), seq)
}

// NextDocumentNumber derives the next number for the month of at in loc, the
// business time zone; a nil loc keeps at's own location. It must run inside
// the transaction that inserts the document; the unique index on the number
// column rejects a concurrent writer that computed the same sequence.
func NextDocumentNumber(ctx context.Context, counter DocumentCounter, prefix DocPrefix, at time.Time, loc *time.Location) (string, error) {
	if loc != nil {
		at = at.In(loc)
	}
	from, to := MonthRange(at)
	count, err := counter.CountCreatedBetween(ctx, from, to)
	if err != nil {
		return "", Persistence(fmt.Sprintf("count %s documents", prefix), err)
	}
	return FormatDocumentNumber(prefix, at, count+1), nil
}

// IsNumberConflict reports whether err is a duplicate on a *_number_key
// unique constraint, the signature of two writers racing for one sequence.
func IsNumberConflict(err error) bool {
	var typed *Error
	return errors.As(err, &typed) &&
		typed.Kind == ErrAlreadyExists &&
		strings.HasSuffix(typed.Detail, "_number_key")
}

// RetryOnNumberConflict runs create, and runs it once more when it lost a
// numbering race. create must open its own transaction so the retry counts
// the winner's row.
func RetryOnNumberConflict(create func() error) error {
	err := create()
	if IsNumberConflict(err) {
		err = create()
	}
	return err
}
