package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mhalloway/circops/internal/domain"
)

// Schema is the DDL for the lending tables. The unique index on
// loans(copy_id) is the storage-level backstop for the one-active-loan
// invariant: a race that slips past the row lock still cannot commit a
// second loan.
const Schema = `
CREATE TABLE IF NOT EXISTS copies (
    id UUID PRIMARY KEY,
    barcode TEXT NOT NULL UNIQUE,
    status TEXT NOT NULL,
    publication_date DATE NOT NULL
);

CREATE TABLE IF NOT EXISTS loans (
    id UUID PRIMARY KEY,
    copy_id UUID NOT NULL REFERENCES copies(id),
    borrower_id UUID NOT NULL,
    borrowed_at DATE NOT NULL,
    due_at DATE NOT NULL,
    CONSTRAINT loans_due_after_borrowed CHECK (due_at >= borrowed_at)
);

CREATE UNIQUE INDEX IF NOT EXISTS loans_copy_id_key ON loans (copy_id);
CREATE INDEX IF NOT EXISTS loans_due_at_idx ON loans (due_at);
`

// PostgresStore backs the lending engine with a pgx connection pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// EnsureSchema creates the lending tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("schema setup failed: %w", err)
	}
	return nil
}

// WithinTx runs fn inside one database transaction. The transaction is
// the atomic unit: a nil return from fn commits, any error rolls back.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

const copyColumns = "id, barcode, status, publication_date"

func scanCopy(row pgx.Row) (*domain.Copy, error) {
	var c domain.Copy
	err := row.Scan(&c.ID, &c.Barcode, &c.Status, &c.PublicationDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCopyNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (t *pgTx) GetCopy(ctx context.Context, id uuid.UUID) (*domain.Copy, error) {
	return scanCopy(t.tx.QueryRow(ctx,
		"SELECT "+copyColumns+" FROM copies WHERE id = $1", id))
}

func (t *pgTx) GetCopyForUpdate(ctx context.Context, id uuid.UUID) (*domain.Copy, error) {
	return scanCopy(t.tx.QueryRow(ctx,
		"SELECT "+copyColumns+" FROM copies WHERE id = $1 FOR UPDATE", id))
}

func (t *pgTx) InsertCopy(ctx context.Context, c *domain.Copy) error {
	_, err := t.tx.Exec(ctx,
		"INSERT INTO copies (id, barcode, status, publication_date) VALUES ($1, $2, $3, $4)",
		c.ID, c.Barcode, c.Status, c.PublicationDate)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrBarcodeTaken
		}
		return fmt.Errorf("copy insert failed: %w", err)
	}
	return nil
}

func (t *pgTx) SetCopyStatus(ctx context.Context, id uuid.UUID, status domain.CopyStatus) (*domain.Copy, error) {
	row := t.tx.QueryRow(ctx,
		"UPDATE copies SET status = $1 WHERE id = $2 RETURNING "+copyColumns,
		status, id)
	return scanCopy(row)
}

const loanColumns = "id, copy_id, borrower_id, borrowed_at, due_at"

func scanLoan(row pgx.Row) (*domain.Loan, error) {
	var l domain.Loan
	err := row.Scan(&l.ID, &l.CopyID, &l.BorrowerID, &l.BorrowedAt, &l.DueAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLoanNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (t *pgTx) InsertLoan(ctx context.Context, l *domain.Loan) error {
	_, err := t.tx.Exec(ctx,
		"INSERT INTO loans (id, copy_id, borrower_id, borrowed_at, due_at) VALUES ($1, $2, $3, $4, $5)",
		l.ID, l.CopyID, l.BorrowerID, l.BorrowedAt, l.DueAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrCopyOnLoan
		}
		return fmt.Errorf("loan insert failed: %w", err)
	}
	return nil
}

func (t *pgTx) GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	return scanLoan(t.tx.QueryRow(ctx,
		"SELECT "+loanColumns+" FROM loans WHERE id = $1", id))
}

func (t *pgTx) FindActiveLoanByCopy(ctx context.Context, copyID uuid.UUID) (*domain.Loan, error) {
	loan, err := scanLoan(t.tx.QueryRow(ctx,
		"SELECT "+loanColumns+" FROM loans WHERE copy_id = $1", copyID))
	if errors.Is(err, ErrLoanNotFound) {
		return nil, nil
	}
	return loan, err
}

func (t *pgTx) ExtendLoanDueAt(ctx context.Context, id uuid.UUID, days int) (*domain.Loan, error) {
	return scanLoan(t.tx.QueryRow(ctx,
		"UPDATE loans SET due_at = due_at + $1::int WHERE id = $2 RETURNING "+loanColumns,
		days, id))
}

func (t *pgTx) DeleteLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	return scanLoan(t.tx.QueryRow(ctx,
		"DELETE FROM loans WHERE id = $1 RETURNING "+loanColumns, id))
}

func (t *pgTx) ListLoansDueBefore(ctx context.Context, cutoff time.Time) ([]domain.Loan, error) {
	rows, err := t.tx.Query(ctx,
		"SELECT "+loanColumns+" FROM loans WHERE due_at < $1 ORDER BY due_at, borrowed_at", cutoff)
	if err != nil {
		return nil, err
	}
	return collectLoans(rows)
}

func (t *pgTx) ListLoansDueBetween(ctx context.Context, from, to time.Time) ([]domain.Loan, error) {
	rows, err := t.tx.Query(ctx,
		"SELECT "+loanColumns+" FROM loans WHERE due_at >= $1 AND due_at <= $2 ORDER BY due_at, borrowed_at",
		from, to)
	if err != nil {
		return nil, err
	}
	return collectLoans(rows)
}

func collectLoans(rows pgx.Rows) ([]domain.Loan, error) {
	defer rows.Close()

	var loans []domain.Loan
	for rows.Next() {
		var l domain.Loan
		if err := rows.Scan(&l.ID, &l.CopyID, &l.BorrowerID, &l.BorrowedAt, &l.DueAt); err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}
