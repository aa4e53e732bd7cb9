package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mhalloway/circops/internal/domain"
)

// MemoryStore is an in-memory Store used by tests and local runs
// without postgres. One mutex held across the whole WithinTx call
// makes every transaction a single-writer critical section, so the
// accepted operation order per copy is trivially linearizable.
type MemoryStore struct {
	mu     sync.Mutex
	copies map[uuid.UUID]domain.Copy
	loans  map[uuid.UUID]domain.Loan
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		copies: make(map[uuid.UUID]domain.Copy),
		loans:  make(map[uuid.UUID]domain.Loan),
	}
}

func (s *MemoryStore) Close() {}

// WithinTx stages all writes on cloned maps and swaps them in only
// when fn returns nil; an error discards the staged state, leaving no
// partial effect.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		copies: cloneMap(s.copies),
		loans:  cloneMap(s.loans),
	}

	if err := fn(tx); err != nil {
		return err
	}

	s.copies = tx.copies
	s.loans = tx.loans
	return nil
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type memTx struct {
	copies map[uuid.UUID]domain.Copy
	loans  map[uuid.UUID]domain.Loan
}

func (t *memTx) GetCopy(ctx context.Context, id uuid.UUID) (*domain.Copy, error) {
	c, ok := t.copies[id]
	if !ok {
		return nil, ErrCopyNotFound
	}
	return &c, nil
}

// GetCopyForUpdate is identical to GetCopy: the store mutex already
// serializes transactions, so there is no finer lock to take.
func (t *memTx) GetCopyForUpdate(ctx context.Context, id uuid.UUID) (*domain.Copy, error) {
	return t.GetCopy(ctx, id)
}

func (t *memTx) InsertCopy(ctx context.Context, c *domain.Copy) error {
	for _, existing := range t.copies {
		if existing.Barcode == c.Barcode {
			return ErrBarcodeTaken
		}
	}
	t.copies[c.ID] = *c
	return nil
}

func (t *memTx) SetCopyStatus(ctx context.Context, id uuid.UUID, status domain.CopyStatus) (*domain.Copy, error) {
	c, ok := t.copies[id]
	if !ok {
		return nil, ErrCopyNotFound
	}
	c.Status = status
	t.copies[id] = c
	return &c, nil
}

func (t *memTx) InsertLoan(ctx context.Context, l *domain.Loan) error {
	for _, existing := range t.loans {
		if existing.CopyID == l.CopyID {
			return ErrCopyOnLoan
		}
	}
	t.loans[l.ID] = *l
	return nil
}

func (t *memTx) GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	l, ok := t.loans[id]
	if !ok {
		return nil, ErrLoanNotFound
	}
	return &l, nil
}

func (t *memTx) FindActiveLoanByCopy(ctx context.Context, copyID uuid.UUID) (*domain.Loan, error) {
	for _, l := range t.loans {
		if l.CopyID == copyID {
			loan := l
			return &loan, nil
		}
	}
	return nil, nil
}

func (t *memTx) ExtendLoanDueAt(ctx context.Context, id uuid.UUID, days int) (*domain.Loan, error) {
	l, ok := t.loans[id]
	if !ok {
		return nil, ErrLoanNotFound
	}
	l.DueAt = l.DueAt.AddDate(0, 0, days)
	t.loans[id] = l
	return &l, nil
}

func (t *memTx) DeleteLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	l, ok := t.loans[id]
	if !ok {
		return nil, ErrLoanNotFound
	}
	delete(t.loans, id)
	return &l, nil
}

func (t *memTx) ListLoansDueBefore(ctx context.Context, cutoff time.Time) ([]domain.Loan, error) {
	return t.listLoans(func(l domain.Loan) bool {
		return l.DueAt.Before(cutoff)
	}), nil
}

func (t *memTx) ListLoansDueBetween(ctx context.Context, from, to time.Time) ([]domain.Loan, error) {
	return t.listLoans(func(l domain.Loan) bool {
		return !l.DueAt.Before(from) && !l.DueAt.After(to)
	}), nil
}

func (t *memTx) listLoans(keep func(domain.Loan) bool) []domain.Loan {
	var loans []domain.Loan
	for _, l := range t.loans {
		if keep(l) {
			loans = append(loans, l)
		}
	}
	sort.Slice(loans, func(i, j int) bool {
		if !loans[i].DueAt.Equal(loans[j].DueAt) {
			return loans[i].DueAt.Before(loans[j].DueAt)
		}
		return loans[i].BorrowedAt.Before(loans[j].BorrowedAt)
	})
	return loans
}
