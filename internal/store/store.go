package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mhalloway/circops/internal/domain"
)

var (
	ErrCopyNotFound = errors.New("copy not found")
	ErrLoanNotFound = errors.New("loan not found")
	ErrCopyOnLoan   = errors.New("copy already on loan")
	ErrBarcodeTaken = errors.New("barcode already registered")
)

// Store is the persistence boundary of the lending engine. Every
// cross-entity write runs inside a single WithinTx call: either all
// writes made through the Tx become visible together, or none do.
type Store interface {
	// WithinTx runs fn against a transaction. A nil return commits,
	// any error rolls back and is returned unchanged.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	Close()
}

// Tx exposes the copy and loan records to one atomic unit. No caller
// outside the orchestrator composes copy writes with loan writes.
type Tx interface {
	GetCopy(ctx context.Context, id uuid.UUID) (*domain.Copy, error)
	// GetCopyForUpdate reads the copy and holds a write lock on it for
	// the remainder of the transaction, serializing concurrent
	// checkout/checkin attempts against the same copy.
	GetCopyForUpdate(ctx context.Context, id uuid.UUID) (*domain.Copy, error)
	InsertCopy(ctx context.Context, c *domain.Copy) error
	SetCopyStatus(ctx context.Context, id uuid.UUID, status domain.CopyStatus) (*domain.Copy, error)

	InsertLoan(ctx context.Context, l *domain.Loan) error
	GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	// FindActiveLoanByCopy returns (nil, nil) when no active loan
	// references the copy.
	FindActiveLoanByCopy(ctx context.Context, copyID uuid.UUID) (*domain.Loan, error)
	// ExtendLoanDueAt pushes the due date out by days as a single
	// relative write, so concurrent extensions accumulate instead of
	// overwriting each other.
	ExtendLoanDueAt(ctx context.Context, id uuid.UUID, days int) (*domain.Loan, error)
	// DeleteLoan removes the loan and returns its final snapshot.
	DeleteLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	ListLoansDueBefore(ctx context.Context, cutoff time.Time) ([]domain.Loan, error)
	ListLoansDueBetween(ctx context.Context, from, to time.Time) ([]domain.Loan, error)
}
