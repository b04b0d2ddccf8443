package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCounter struct {
	count    int
	err      error
	gotFrom  time.Time
	gotUntil time.Time
}

func (s *stubCounter) CountCreatedBetween(_ context.Context, from, to time.Time) (int, error) {
	s.gotFrom, s.gotUntil = from, to
	return s.count, s.err
}

func TestNextDocumentNumber(t *testing.T) {
	at := time.Date(2024, time.January, 17, 10, 30, 0, 0, time.UTC)

	t.Run("first of the month", func(t *testing.T) {
		counter := &stubCounter{}
		number, err := NextDocumentNumber(context.Background(), counter, PrefixQuotation, at, nil)
		require.NoError(t, err)
		assert.Equal(t, "QUO/2024/01/0001", number)
		assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), counter.gotFrom)
		assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), counter.gotUntil)
	})

	t.Run("continues the sequence", func(t *testing.T) {
		number, err := NextDocumentNumber(context.Background(), &stubCounter{count: 41}, PrefixInvoice, at, nil)
		require.NoError(t, err)
		assert.Equal(t, "INV/2024/01/0042", number)
	})

	t.Run("counter failure is a persistence error", func(t *testing.T) {
		_, err := NextDocumentNumber(context.Background(), &stubCounter{err: errors.New("boom")}, PrefixOrder, at, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPersistence)
	})
}

func TestNextDocumentNumberUsesBusinessMonth(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)
	// 00:30 on 1 February in Jakarta.
	at := time.Date(2024, time.January, 31, 17, 30, 0, 0, time.UTC)

	counter := &stubCounter{}
	number, err := NextDocumentNumber(context.Background(), counter, PrefixOrder, at, jakarta)
	require.NoError(t, err)
	assert.Equal(t, "ORD/2024/02/0001", number)
	assert.True(t, counter.gotFrom.Equal(time.Date(2024, time.January, 31, 17, 0, 0, 0, time.UTC)))
	assert.True(t, counter.gotUntil.Equal(time.Date(2024, time.February, 29, 17, 0, 0, 0, time.UTC)))
}

func TestRetryOnNumberConflict(t *testing.T) {
	t.Run("retries a lost numbering race once", func(t *testing.T) {
		calls := 0
		err := RetryOnNumberConflict(func() error {
			calls++
			if calls == 1 {
				return Persistence("insert", AlreadyExists("order", "ORD/2024/02/0001", "orders_number_key"))
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("other duplicates are not retried", func(t *testing.T) {
		calls := 0
		err := RetryOnNumberConflict(func() error {
			calls++
			return AlreadyExists("order", "q-1", "orders_quotation_id_key")
		})
		assert.ErrorIs(t, err, ErrAlreadyExists)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after the second conflict", func(t *testing.T) {
		calls := 0
		err := RetryOnNumberConflict(func() error {
			calls++
			return fmt.Errorf("tx: %w", AlreadyExists("invoice", "INV/2024/02/0001", "invoices_number_key"))
		})
		assert.True(t, IsNumberConflict(err))
		assert.Equal(t, 2, calls)
	})
}

func TestMonthRangeDecember(t *testing.T) {
	from, to := MonthRange(time.Date(2023, time.December, 31, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), to)
}

type color string

func TestTransitions(t *testing.T) {
	table := Transitions[color]{
		"red":   {"green"},
		"green": {"amber", "red"},
	}

	assert.True(t, table.Allows("red", "green"))
	assert.False(t, table.Allows("red", "amber"))
	assert.True(t, table.IsTerminal("amber"))
	assert.False(t, table.IsTerminal("green"))

	err := table.Validate("light", "L1", "red", "amber")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "red -> amber")
	assert.NoError(t, table.Validate("light", "L1", "green", "red"))
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("connection reset")

	err := Persistence("insert quotation", cause)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrPersistence, KindOf(err))

	notFound := NotFound("quotation", "q-1")
	assert.Same(t, notFound, Persistence("load", notFound).(*Error))
	assert.Equal(t, "quotation q-1: not found", notFound.Error())

	assert.Nil(t, Persistence("noop", nil))
	assert.Nil(t, KindOf(errors.New("plain")))
	assert.ErrorIs(t, ExternalService("whatsapp", cause), ErrExternalService)
}

func TestActorFromContext(t *testing.T) {
	assert.Equal(t, SystemActor, ActorFromContext(context.Background()))
	ctx := ContextWithActor(context.Background(), "user-7")
	assert.Equal(t, "user-7", ActorFromContext(ctx))
}

func TestPagination(t *testing.T) {
	page := NewPage(0, -5)
	assert.Equal(t, Page{Limit: 20, Offset: 0}, page)
	assert.Equal(t, 200, NewPage(1000, 0).Limit)

	meta := NewPagination(Page{Limit: 10, Offset: 20}, 45)
	assert.Equal(t, 5, meta.TotalPages)
	assert.Equal(t, 45, meta.Total)
}

type fakeExecer struct {
	err  error
	sql  []string
	args [][]any
	rows int64
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag(fmt.Sprintf("DELETE %d", f.rows)), nil
}

func TestIdempotencyStore(t *testing.T) {
	now := time.Date(2024, time.May, 2, 8, 0, 0, 0, time.UTC)

	t.Run("claims a fresh key", func(t *testing.T) {
		db := &fakeExecer{}
		store := NewIdempotencyStore(db)
		require.NoError(t, store.CheckAndInsert(context.Background(), "k-1", "communications.send"))
		require.Len(t, db.args, 1)
		assert.Equal(t, "k-1", db.args[0][0])
	})

	t.Run("duplicate key", func(t *testing.T) {
		store := NewIdempotencyStore(&fakeExecer{err: &pgconn.PgError{Code: "23505"}})
		err := store.CheckAndInsert(context.Background(), "k-1", "communications.send")
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("missing key", func(t *testing.T) {
		store := NewIdempotencyStore(&fakeExecer{})
		assert.ErrorIs(t, store.CheckAndInsert(context.Background(), "", "communications.send"), ErrValidation)
	})

	t.Run("storage failure", func(t *testing.T) {
		store := NewIdempotencyStore(&fakeExecer{err: errors.New("conn reset")})
		assert.ErrorIs(t, store.CheckAndInsert(context.Background(), "k-2", "s"), ErrPersistence)
	})

	t.Run("cleanup counts removed keys", func(t *testing.T) {
		db := &fakeExecer{rows: 4}
		store := NewIdempotencyStore(db)
		store.now = func() time.Time { return now }
		n, err := store.Cleanup(context.Background(), 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.Equal(t, now.Add(-24*time.Hour), db.args[0][0])
	})

	t.Run("nil store", func(t *testing.T) {
		var store *IdempotencyStore
		assert.Error(t, store.CheckAndInsert(context.Background(), "k", "s"))
		assert.NoError(t, store.Delete(context.Background(), "k", "s"))
	})
}
