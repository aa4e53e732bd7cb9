// Package ledger owns loan records and due-date policy: open horizon,
// extension bounds, and the ledger-level one-loan-per-copy check.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mhalloway/circops/internal/domain"
	"github.com/mhalloway/circops/internal/store"
)

var (
	ErrInvalidDueDate   = errors.New("due date out of policy")
	ErrInvalidExtension = errors.New("extension days out of policy")
)

const (
	// DefaultHorizonDays bounds how far in the future a new loan may be due.
	DefaultHorizonDays = 180
	// DefaultMaxExtensionDays bounds a single extension.
	DefaultMaxExtensionDays = 30
)

type Ledger struct {
	horizonDays      int
	maxExtensionDays int
}

func New(horizonDays, maxExtensionDays int) *Ledger {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	if maxExtensionDays <= 0 {
		maxExtensionDays = DefaultMaxExtensionDays
	}
	return &Ledger{horizonDays: horizonDays, maxExtensionDays: maxExtensionDays}
}

// Open creates a loan for the copy, due at dueAt, borrowed today.
// The due date must be strictly after today and no further out than
// the horizon. The active-loan check here is independent of the copy's
// status so a stale or torn status cannot produce a second loan.
func (l *Ledger) Open(ctx context.Context, tx store.Tx, copyID, borrowerID uuid.UUID, dueAt, today time.Time) (*domain.Loan, error) {
	today = domain.DateOf(today)
	dueAt = domain.DateOf(dueAt)

	if !dueAt.After(today) {
		return nil, fmt.Errorf("%w: due date must be after today", ErrInvalidDueDate)
	}
	if dueAt.After(today.AddDate(0, 0, l.horizonDays)) {
		return nil, fmt.Errorf("%w: due date beyond %d-day horizon", ErrInvalidDueDate, l.horizonDays)
	}

	existing, err := tx.FindActiveLoanByCopy(ctx, copyID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, store.ErrCopyOnLoan
	}

	loan := &domain.Loan{
		ID:         uuid.New(),
		CopyID:     copyID,
		BorrowerID: borrowerID,
		BorrowedAt: today,
		DueAt:      dueAt,
	}
	if err := tx.InsertLoan(ctx, loan); err != nil {
		return nil, err
	}
	return loan, nil
}

// Close removes the loan and returns its final snapshot, which the
// orchestrator needs to recover the copy id.
func (l *Ledger) Close(ctx context.Context, tx store.Tx, loanID uuid.UUID) (*domain.Loan, error) {
	return tx.DeleteLoan(ctx, loanID)
}

// Extend pushes the due date out by days, bounded per call. The open
// horizon is deliberately not re-checked: extensions are additive
// maintenance on an existing loan, not a new loan. The write is a
// single relative update, never a value computed from an earlier read,
// so the due date can only move forward.
func (l *Ledger) Extend(ctx context.Context, tx store.Tx, loanID uuid.UUID, days int) (*domain.Loan, error) {
	if days <= 0 || days > l.maxExtensionDays {
		return nil, fmt.Errorf("%w: days must be 1..%d", ErrInvalidExtension, l.maxExtensionDays)
	}
	return tx.ExtendLoanDueAt(ctx, loanID, days)
}

// Get loads one active loan.
func (l *Ledger) Get(ctx context.Context, tx store.Tx, loanID uuid.UUID) (*domain.Loan, error) {
	return tx.GetLoan(ctx, loanID)
}

// ListOverdue returns active loans due strictly before today, soonest
// due first.
func (l *Ledger) ListOverdue(ctx context.Context, tx store.Tx, today time.Time) ([]domain.Loan, error) {
	return tx.ListLoansDueBefore(ctx, domain.DateOf(today))
}

// ListDueSoon returns loans due between today and today plus the
// window, inclusive.
func (l *Ledger) ListDueSoon(ctx context.Context, tx store.Tx, today time.Time, windowDays int) ([]domain.Loan, error) {
	today = domain.DateOf(today)
	return tx.ListLoansDueBetween(ctx, today, today.AddDate(0, 0, windowDays))
}
