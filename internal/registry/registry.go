// Package registry owns the physical-copy record and its status state
// machine. It never touches loan records; combining a status change
// with a ledger write is the orchestrator's job.
package registry

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mhalloway/circops/internal/domain"
	"github.com/mhalloway/circops/internal/store"
)

type Registry struct{}

func New() *Registry {
	return &Registry{}
}

// Get loads one copy.
func (r *Registry) Get(ctx context.Context, tx store.Tx, copyID uuid.UUID) (*domain.Copy, error) {
	return tx.GetCopy(ctx, copyID)
}

// Create registers a new copy. Status defaults to available when
// unset; any other value must be a member of the enumerated set.
// Barcode uniqueness is enforced by the store.
func (r *Registry) Create(ctx context.Context, tx store.Tx, c *domain.Copy) (*domain.Copy, error) {
	if c.Status == "" {
		c.Status = domain.StatusAvailable
	}
	if !c.Status.Valid() {
		return nil, domain.ErrInvalidState
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	if err := tx.InsertCopy(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SetStatus writes a new status for the copy and returns the updated
// record. Values outside the enumerated set are rejected with
// ErrInvalidState. The write has no cascading loan effects: marking a
// copy lost while it is out on loan is permitted and leaves the loan
// open until an explicit check-in or administrative write-off.
func (r *Registry) SetStatus(ctx context.Context, tx store.Tx, copyID uuid.UUID, status domain.CopyStatus) (*domain.Copy, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidState, status)
	}
	return tx.SetCopyStatus(ctx, copyID, status)
}

// AvailableForCheckout reports whether the copy can be handed to a
// borrower: available, or reserved (the engine does not verify the
// reserving borrower; that is the calling layer's policy).
func AvailableForCheckout(c *domain.Copy) bool {
	return c.Status == domain.StatusAvailable || c.Status == domain.StatusReserved
}
