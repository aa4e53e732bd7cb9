package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidState is returned when a status value outside the
// enumerated set reaches the engine.
var ErrInvalidState = errors.New("invalid copy status")

// CopyStatus is the circulation state of a physical copy.
type CopyStatus string

const (
	StatusAvailable CopyStatus = "available"
	StatusBorrowed  CopyStatus = "borrowed"
	StatusReserved  CopyStatus = "reserved"
	StatusLost      CopyStatus = "lost"
)

var validStatuses = map[CopyStatus]bool{
	StatusAvailable: true,
	StatusBorrowed:  true,
	StatusReserved:  true,
	StatusLost:      true,
}

// ParseCopyStatus validates s against the enumerated set.
func ParseCopyStatus(s string) (CopyStatus, error) {
	status := CopyStatus(s)
	if !validStatuses[status] {
		return "", ErrInvalidState
	}
	return status, nil
}

// Valid reports whether the status is a member of the enumerated set.
func (s CopyStatus) Valid() bool { return validStatuses[s] }

// Copy is one physical instance of a catalog title. Barcode is unique
// and immutable once set; PublicationDate is informational only.
type Copy struct {
	ID              uuid.UUID  `json:"id"`
	Barcode         string     `json:"barcode"`
	Status          CopyStatus `json:"status"`
	PublicationDate time.Time  `json:"publication_date"`
}

// Loan is an active ledger entry linking a copy to a borrower. At most
// one Loan references a given copy at any time; the record is deleted
// on check-in.
type Loan struct {
	ID         uuid.UUID `json:"id"`
	CopyID     uuid.UUID `json:"copy_id"`
	BorrowerID uuid.UUID `json:"borrower_id"`
	BorrowedAt time.Time `json:"borrowed_at"`
	DueAt      time.Time `json:"due_at"`
}

// DateOf truncates t to its calendar day in UTC. All lending dates are
// stored and compared at day granularity.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
