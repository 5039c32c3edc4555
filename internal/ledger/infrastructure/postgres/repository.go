package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	ledger "feeledger/internal/ledger/domain"
)

const defaultEntriesTable = "ledger_entries"

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// EntryRepository is a Postgres implementation for ledger entries.
type EntryRepository struct {
	db    DBTX
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*EntryRepository)

// WithTable overrides the default table.
func WithTable(table string) RepositoryOption {
	return func(repo *EntryRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewEntryRepository constructs a repository.
func NewEntryRepository(db DBTX, opts ...RepositoryOption) *EntryRepository {
	repo := &EntryRepository{db: db, table: defaultEntriesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

const entryColumns = `id, student_id, session_id, entry_date, particulars, entry_type,
	debit_amount, credit_amount, balance, reference_type, reference_id, is_reversed, created_at, seq`

const timelineOrder = `ORDER BY session_id ASC, entry_date ASC, created_at ASC, seq ASC`

// Insert stores an entry and assigns its sequence number.
func (r *EntryRepository) Insert(ctx context.Context, entry *ledger.Entry) error {
	if r == nil || r.db == nil {
		return errors.New("ledger repo: nil db")
	}
	if entry == nil {
		return ledger.ErrNilEntry
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, student_id, session_id, entry_date, particulars, entry_type,
	debit_amount, credit_amount, balance, reference_type, reference_id, is_reversed, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)
RETURNING seq`, r.table)
	return r.db.QueryRowContext(ctx, query,
		entry.ID, entry.StudentID, entry.SessionID, entry.EntryDate.UTC(), entry.Particulars, string(entry.EntryType),
		entry.DebitAmount, entry.CreditAmount, entry.Balance, string(entry.ReferenceType), nullString(entry.ReferenceID),
		entry.IsReversed, entry.CreatedAt.UTC(),
	).Scan(&entry.Seq)
}

// Get loads an entry by id.
func (r *EntryRepository) Get(ctx context.Context, id string) (*ledger.Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 LIMIT 1`, entryColumns, r.table)
	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListByStudent returns all entries of a student.
func (r *EntryRepository) ListByStudent(ctx context.Context, studentID string) ([]ledger.Entry, error) {
	return r.list(ctx, `WHERE student_id = $1`, studentID)
}

// ListTimeline returns the ordered timeline of a student's session.
func (r *EntryRepository) ListTimeline(ctx context.Context, studentID, sessionID string) ([]ledger.Entry, error) {
	return r.list(ctx, `WHERE student_id = $1 AND session_id = $2`, studentID, sessionID)
}

// ListByReference returns entries linked to a reference id.
func (r *EntryRepository) ListByReference(ctx context.Context, referenceID string) ([]ledger.Entry, error) {
	return r.list(ctx, `WHERE reference_id = $1`, referenceID)
}

// ListByType returns timeline entries of one reference type.
func (r *EntryRepository) ListByType(ctx context.Context, studentID, sessionID string, ref ledger.ReferenceType) ([]ledger.Entry, error) {
	return r.list(ctx, `WHERE student_id = $1 AND session_id = $2 AND reference_type = $3`, studentID, sessionID, string(ref))
}

// ExistsForSession reports whether the timeline has an entry of the reference type.
func (r *EntryRepository) ExistsForSession(ctx context.Context, studentID, sessionID string, ref ledger.ReferenceType) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("ledger repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT EXISTS (
	SELECT 1 FROM %s
	WHERE student_id = $1 AND session_id = $2 AND reference_type = $3
)`, r.table)
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, studentID, sessionID, string(ref)).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Update rewrites the mutable fields of an entry.
func (r *EntryRepository) Update(ctx context.Context, entry ledger.Entry) error {
	if r == nil || r.db == nil {
		return errors.New("ledger repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET entry_date = $1, particulars = $2, debit_amount = $3, credit_amount = $4, is_reversed = $5, reference_id = $6
WHERE id = $7`, r.table)
	res, err := r.db.ExecContext(ctx, query,
		entry.EntryDate.UTC(), entry.Particulars, entry.DebitAmount, entry.CreditAmount, entry.IsReversed,
		nullString(entry.ReferenceID), entry.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateBalance rewrites the cached balance of an entry.
func (r *EntryRepository) UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	if r == nil || r.db == nil {
		return errors.New("ledger repo: nil db")
	}
	query := fmt.Sprintf(`UPDATE %s SET balance = $1 WHERE id = $2`, r.table)
	res, err := r.db.ExecContext(ctx, query, balance, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Delete removes an entry.
func (r *EntryRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("ledger repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.table), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// LatestBalance returns the cached balance of the last timeline entry.
func (r *EntryRepository) LatestBalance(ctx context.Context, studentID, sessionID string) (decimal.Decimal, bool, error) {
	if r == nil || r.db == nil {
		return decimal.Zero, false, errors.New("ledger repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT balance
FROM %s
WHERE student_id = $1 AND session_id = $2
ORDER BY entry_date DESC, created_at DESC, seq DESC
LIMIT 1`, r.table)
	var balance decimal.Decimal
	err := r.db.QueryRowContext(ctx, query, studentID, sessionID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return balance, true, nil
}

// SumCredits sums non-reversed credits on a timeline.
func (r *EntryRepository) SumCredits(ctx context.Context, studentID, sessionID string) (decimal.Decimal, error) {
	if r == nil || r.db == nil {
		return decimal.Zero, errors.New("ledger repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT COALESCE(SUM(credit_amount), 0)
FROM %s
WHERE student_id = $1 AND session_id = $2 AND entry_type = 'CREDIT' AND is_reversed = FALSE`, r.table)
	var total decimal.Decimal
	if err := r.db.QueryRowContext(ctx, query, studentID, sessionID).Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// ListSessionBalances returns the latest cached balance per student in a session.
func (r *EntryRepository) ListSessionBalances(ctx context.Context, sessionID string) ([]ledger.StudentBalance, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT DISTINCT ON (student_id) student_id, balance
FROM %s
WHERE session_id = $1
ORDER BY student_id ASC, entry_date DESC, created_at DESC, seq DESC`, r.table)
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.StudentBalance
	for rows.Next() {
		item := ledger.StudentBalance{SessionID: sessionID}
		if err := rows.Scan(&item.StudentID, &item.Balance); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *EntryRepository) list(ctx context.Context, where string, args ...any) ([]ledger.Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s %s %s`, entryColumns, r.table, where, timelineOrder)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (ledger.Entry, error) {
	var entry ledger.Entry
	var entryType string
	var refType string
	var refID sql.NullString
	err := row.Scan(
		&entry.ID,
		&entry.StudentID,
		&entry.SessionID,
		&entry.EntryDate,
		&entry.Particulars,
		&entryType,
		&entry.DebitAmount,
		&entry.CreditAmount,
		&entry.Balance,
		&refType,
		&refID,
		&entry.IsReversed,
		&entry.CreatedAt,
		&entry.Seq,
	)
	if err != nil {
		return ledger.Entry{}, err
	}
	entry.EntryType = ledger.EntryType(entryType)
	entry.ReferenceType = ledger.ReferenceType(refType)
	if refID.Valid {
		entry.ReferenceID = refID.String
	}
	entry.EntryDate = entry.EntryDate.UTC()
	entry.CreatedAt = entry.CreatedAt.UTC()
	return entry, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrEntryNotFound
	}
	return nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

var _ ledger.Repository = (*EntryRepository)(nil)
