package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhalloway/circops/internal/domain"
	"github.com/mhalloway/circops/internal/ledger"
	"github.com/mhalloway/circops/internal/store"
)

var today = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

func day(offset int) time.Time { return today.AddDate(0, 0, offset) }

type fixture struct {
	store  *store.MemoryStore
	ledger *ledger.Ledger
	copyID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	copyID := uuid.New()
	err := s.WithinTx(context.Background(), func(tx store.Tx) error {
		return tx.InsertCopy(context.Background(), &domain.Copy{
			ID:      copyID,
			Barcode: "BAR0001",
			Status:  domain.StatusAvailable,
		})
	})
	require.NoError(t, err)
	return &fixture{
		store:  s,
		ledger: ledger.New(ledger.DefaultHorizonDays, ledger.DefaultMaxExtensionDays),
		copyID: copyID,
	}
}

func (f *fixture) within(t *testing.T, fn func(tx store.Tx) error) error {
	t.Helper()
	return f.store.WithinTx(context.Background(), fn)
}

func Test_Open_SetsBorrowedAtToday(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.within(t, func(tx store.Tx) error {
		loan, err := f.ledger.Open(ctx, tx, f.copyID, uuid.New(), day(7), today)
		require.NoError(t, err)
		assert.Equal(t, today, loan.BorrowedAt)
		assert.Equal(t, day(7), loan.DueAt)
		assert.Equal(t, f.copyID, loan.CopyID)
		return nil
	})
	require.NoError(t, err)
}

func Test_Open_DueDatePolicy(t *testing.T) {
	tests := []struct {
		name    string
		dueAt   time.Time
		wantErr error
	}{
		{name: "due_today_rejected", dueAt: today, wantErr: ledger.ErrInvalidDueDate},
		{name: "due_in_past_rejected", dueAt: day(-1), wantErr: ledger.ErrInvalidDueDate},
		{name: "tomorrow_accepted", dueAt: day(1)},
		{name: "at_horizon_accepted", dueAt: day(180)},
		{name: "beyond_horizon_rejected", dueAt: day(181), wantErr: ledger.ErrInvalidDueDate},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			err := f.within(t, func(tx store.Tx) error {
				_, err := f.ledger.Open(ctx, tx, f.copyID, uuid.New(), tc.dueAt, today)
				return err
			})
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func Test_Open_RejectsSecondLoanForCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.within(t, func(tx store.Tx) error {
		_, err := f.ledger.Open(ctx, tx, f.copyID, uuid.New(), day(7), today)
		return err
	}))

	err := f.within(t, func(tx store.Tx) error {
		_, err := f.ledger.Open(ctx, tx, f.copyID, uuid.New(), day(5), today)
		return err
	})
	assert.ErrorIs(t, err, store.ErrCopyOnLoan)
}

func Test_Close_ReturnsSnapshotAndRemoves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var loanID uuid.UUID
	require.NoError(t, f.within(t, func(tx store.Tx) error {
		loan, err := f.ledger.Open(ctx, tx, f.copyID, uuid.New(), day(7), today)
		loanID = loan.ID
		return err
	}))

	err := f.within(t, func(tx store.Tx) error {
		snapshot, err := f.ledger.Close(ctx, tx, loanID)
		require.NoError(t, err)
		assert.Equal(t, f.copyID, snapshot.CopyID)

		_, err = f.ledger.Get(ctx, tx, loanID)
		assert.ErrorIs(t, err, store.ErrLoanNotFound)
		return nil
	})
	require.NoError(t, err)
}

func Test_Close_UnknownLoan(t *testing.T) {
	f := newFixture(t)
	err := f.within(t, func(tx store.Tx) error {
		_, err := f.ledger.Close(context.Background(), tx, uuid.New())
		return err
	})
	assert.ErrorIs(t, err, store.ErrLoanNotFound)
}

func Test_Extend_Bounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var loanID uuid.UUID
	require.NoError(t, f.within(t, func(tx store.Tx) error {
		loan, err := f.ledger.Open(ctx, tx, f.copyID, uuid.New(), day(7), today)
		loanID = loan.ID
		return err
	}))

	for _, days := range []int{0, -5, 31, 40} {
		err := f.within(t, func(tx store.Tx) error {
			_, err := f.ledger.Extend(ctx, tx, loanID, days)
			return err
		})
		assert.ErrorIs(t, err, ledger.ErrInvalidExtension, "days=%d", days)
	}

	// Rejected extensions never moved the due date.
	require.NoError(t, f.within(t, func(tx store.Tx) error {
		loan, err := f.ledger.Get(ctx, tx, loanID)
		require.NoError(t, err)
		assert.Equal(t, day(7), loan.DueAt)
		return nil
	}))

	require.NoError(t, f.within(t, func(tx store.Tx) error {
		loan, err := f.ledger.Extend(ctx, tx, loanID, 10)
		require.NoError(t, err)
		assert.Equal(t, day(17), loan.DueAt)
		return nil
	}))
}

func Test_Extend_DoesNotRecheckHorizon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var loanID uuid.UUID
	require.NoError(t, f.within(t, func(tx store.Tx) error {
		loan, err := f.ledger.Open(ctx, tx, f.copyID, uuid.New(), day(180), today)
		loanID = loan.ID
		return err
	}))

	// A maximal extension on a loan already at the horizon is allowed;
	// extensions are additive maintenance, not new loans.
	require.NoError(t, f.within(t, func(tx store.Tx) error {
		loan, err := f.ledger.Extend(ctx, tx, loanID, 30)
		require.NoError(t, err)
		assert.Equal(t, day(210), loan.DueAt)
		return nil
	}))
}

func Test_ListOverdue_StrictlyBeforeToday(t *testing.T) {
	s := store.NewMemoryStore()
	l := ledger.New(0, 0)
	ctx := context.Background()

	addLoan := func(due time.Time) {
		copyID := uuid.New()
		err := s.WithinTx(ctx, func(tx store.Tx) error {
			if err := tx.InsertCopy(ctx, &domain.Copy{
				ID:      copyID,
				Barcode: "B-" + copyID.String()[:8],
				Status:  domain.StatusBorrowed,
			}); err != nil {
				return err
			}
			return tx.InsertLoan(ctx, &domain.Loan{
				ID:         uuid.New(),
				CopyID:     copyID,
				BorrowerID: uuid.New(),
				BorrowedAt: day(-30),
				DueAt:      due,
			})
		})
		require.NoError(t, err)
	}

	addLoan(day(-3))
	addLoan(day(-1))
	addLoan(day(0)) // due today: not overdue, but due soon
	addLoan(day(2))
	addLoan(day(3))
	addLoan(day(4)) // outside the 3-day window

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		overdue, err := l.ListOverdue(ctx, tx, today)
		require.NoError(t, err)
		require.Len(t, overdue, 2)
		assert.Equal(t, day(-3), overdue[0].DueAt)

		dueSoon, err := l.ListDueSoon(ctx, tx, today, 3)
		require.NoError(t, err)
		require.Len(t, dueSoon, 3)
		assert.Equal(t, day(0), dueSoon[0].DueAt)
		assert.Equal(t, day(3), dueSoon[2].DueAt)
		return nil
	})
	require.NoError(t, err)
}
