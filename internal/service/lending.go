// Package service holds the lending orchestrator, the only component
// allowed to mutate the copy registry and the loan ledger together.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mhalloway/circops/internal/domain"
	"github.com/mhalloway/circops/internal/ledger"
	"github.com/mhalloway/circops/internal/registry"
	"github.com/mhalloway/circops/internal/store"
)

// ErrCopyUnavailable is returned when the copy is not in a state
// eligible for checkout.
var ErrCopyUnavailable = errors.New("copy unavailable for checkout")

type LendingService struct {
	store    store.Store
	registry *registry.Registry
	ledger   *ledger.Ledger
	clock    domain.Clock
}

func NewLendingService(s store.Store, r *registry.Registry, l *ledger.Ledger, clock domain.Clock) *LendingService {
	return &LendingService{store: s, registry: r, ledger: l, clock: clock}
}

// Checkout lends the copy to the borrower until dueAt. The copy status
// write and the loan creation are one atomic unit: if either fails the
// transaction rolls back and no intermediate state (loan open, copy
// still available) is ever observable. Concurrent checkouts of the
// same copy serialize on the copy row lock; exactly one wins.
func (s *LendingService) Checkout(ctx context.Context, copyID, borrowerID uuid.UUID, dueAt time.Time) (*domain.Loan, error) {
	var loan *domain.Loan
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		copy, err := tx.GetCopyForUpdate(ctx, copyID)
		if err != nil {
			return err
		}
		if !registry.AvailableForCheckout(copy) {
			return ErrCopyUnavailable
		}

		loan, err = s.ledger.Open(ctx, tx, copyID, borrowerID, dueAt, s.clock.Today())
		if err != nil {
			return err
		}

		_, err = s.registry.SetStatus(ctx, tx, copyID, domain.StatusBorrowed)
		return err
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// Checkin closes the loan and returns its copy to available, as one
// atomic unit.
func (s *LendingService) Checkin(ctx context.Context, loanID uuid.UUID) error {
	return s.store.WithinTx(ctx, func(tx store.Tx) error {
		closed, err := s.ledger.Close(ctx, tx, loanID)
		if err != nil {
			return err
		}

		_, err = s.registry.SetStatus(ctx, tx, closed.CopyID, domain.StatusAvailable)
		return err
	})
}

// Extend pushes the loan's due date out by days. No copy interaction.
func (s *LendingService) Extend(ctx context.Context, loanID uuid.UUID, days int) (*domain.Loan, error) {
	var loan *domain.Loan
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		loan, err = s.ledger.Extend(ctx, tx, loanID, days)
		return err
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// GetLoan loads one active loan.
func (s *LendingService) GetLoan(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	var loan *domain.Loan
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		loan, err = s.ledger.Get(ctx, tx, loanID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// ListOverdue returns active loans due strictly before today.
func (s *LendingService) ListOverdue(ctx context.Context, today time.Time) ([]domain.Loan, error) {
	var loans []domain.Loan
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		loans, err = s.ledger.ListOverdue(ctx, tx, today)
		return err
	})
	if err != nil {
		return nil, err
	}
	return loans, nil
}

// ListDueSoon returns loans due within windowDays of today.
func (s *LendingService) ListDueSoon(ctx context.Context, today time.Time, windowDays int) ([]domain.Loan, error) {
	var loans []domain.Loan
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		loans, err = s.ledger.ListDueSoon(ctx, tx, today, windowDays)
		return err
	})
	if err != nil {
		return nil, err
	}
	return loans, nil
}

// FineAmount computes the accrued fine for the loan at the given daily
// rate. Pure derivation over the loan snapshot; nothing is persisted.
func (s *LendingService) FineAmount(ctx context.Context, loanID uuid.UUID, today time.Time, dailyRate float64) (float64, error) {
	loan, err := s.GetLoan(ctx, loanID)
	if err != nil {
		return 0, err
	}
	return domain.FineAmount(loan, today, dailyRate), nil
}

// CreateCopy registers a new catalog copy.
func (s *LendingService) CreateCopy(ctx context.Context, c *domain.Copy) (*domain.Copy, error) {
	var created *domain.Copy
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		created, err = s.registry.Create(ctx, tx, c)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetCopy loads one copy.
func (s *LendingService) GetCopy(ctx context.Context, copyID uuid.UUID) (*domain.Copy, error) {
	var copy *domain.Copy
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		copy, err = s.registry.Get(ctx, tx, copyID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return copy, nil
}

// SetCopyStatus is the manual administrative status write. It bypasses
// no validation: the value must be one of the enumerated states. It
// deliberately does not touch loans; marking a borrowed copy lost
// leaves its loan open until checked in or written off.
func (s *LendingService) SetCopyStatus(ctx context.Context, copyID uuid.UUID, status domain.CopyStatus) (*domain.Copy, error) {
	var copy *domain.Copy
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		copy, err = s.registry.SetStatus(ctx, tx, copyID, status)
		return err
	})
	if err != nil {
		return nil, err
	}
	return copy, nil
}
