package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	receipts "feeledger/internal/receipts/domain"
)

const (
	defaultReceiptsTable = "receipts"
	defaultItemsTable    = "receipt_items"
	defaultCounterTable  = "receipt_counters"

	counterName = "receipt_number"

	uniqueViolation = "23505"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ReceiptRepository is a Postgres implementation for receipts.
type ReceiptRepository struct {
	db           DBTX
	table        string
	itemsTable   string
	counterTable string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*ReceiptRepository)

// WithTables overrides the default tables.
func WithTables(receiptsTable, itemsTable, counterTable string) RepositoryOption {
	return func(repo *ReceiptRepository) {
		if receiptsTable != "" {
			repo.table = receiptsTable
		}
		if itemsTable != "" {
			repo.itemsTable = itemsTable
		}
		if counterTable != "" {
			repo.counterTable = counterTable
		}
	}
}

// NewReceiptRepository constructs a repository.
func NewReceiptRepository(db DBTX, opts ...RepositoryOption) *ReceiptRepository {
	repo := &ReceiptRepository{
		db:           db,
		table:        defaultReceiptsTable,
		itemsTable:   defaultItemsTable,
		counterTable: defaultCounterTable,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

const receiptColumns = `id, receipt_number, student_id, session_id, receipt_date, total_amount, discount_amount,
	net_amount, payment_mode, remarks, is_cancelled, cancelled_at, cancellation_reason, created_at, updated_at`

// Insert stores a new receipt.
func (r *ReceiptRepository) Insert(ctx context.Context, receipt receipts.Receipt) error {
	if r == nil || r.db == nil {
		return errors.New("receipt repo: nil db")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, receipt_number, student_id, session_id, receipt_date, total_amount, discount_amount,
	net_amount, payment_mode, remarks, is_cancelled, cancelled_at, cancellation_reason, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)`, r.table)
	_, err := r.db.ExecContext(ctx, query,
		receipt.ID, receipt.ReceiptNumber, receipt.StudentID, receipt.SessionID, receipt.ReceiptDate.UTC(),
		receipt.TotalAmount, receipt.DiscountAmount, receipt.NetAmount, string(receipt.PaymentMode), receipt.Remarks,
		receipt.IsCancelled, nullTime(receipt), receipt.CancellationReason, receipt.CreatedAt.UTC(), receipt.UpdatedAt.UTC(),
	)
	return mapError(err)
}

// Update rewrites a receipt.
func (r *ReceiptRepository) Update(ctx context.Context, receipt receipts.Receipt) error {
	if r == nil || r.db == nil {
		return errors.New("receipt repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET receipt_number = $1, receipt_date = $2, total_amount = $3, discount_amount = $4, net_amount = $5,
	payment_mode = $6, remarks = $7, is_cancelled = $8, cancelled_at = $9, cancellation_reason = $10,
	updated_at = $11
WHERE id = $12`, r.table)
	res, err := r.db.ExecContext(ctx, query,
		receipt.ReceiptNumber, receipt.ReceiptDate.UTC(), receipt.TotalAmount, receipt.DiscountAmount, receipt.NetAmount,
		string(receipt.PaymentMode), receipt.Remarks, receipt.IsCancelled, nullTime(receipt), receipt.CancellationReason,
		receipt.UpdatedAt.UTC(), receipt.ID,
	)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return receipts.ErrReceiptNotFound
	}
	return nil
}

// Get loads a receipt by id.
func (r *ReceiptRepository) Get(ctx context.Context, id string) (*receipts.Receipt, error) {
	return r.getOne(ctx, `id = $1`, id)
}

// FindByNumber loads a receipt by number.
func (r *ReceiptRepository) FindByNumber(ctx context.Context, number string) (*receipts.Receipt, error) {
	return r.getOne(ctx, `receipt_number = $1`, number)
}

func (r *ReceiptRepository) getOne(ctx context.Context, where string, arg any) (*receipts.Receipt, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("receipt repo: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s LIMIT 1`, receiptColumns, r.table, where)
	receipt, err := scanReceipt(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// ListByStudent returns a student's receipts ordered by date.
func (r *ReceiptRepository) ListByStudent(ctx context.Context, studentID string) ([]receipts.Receipt, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("receipt repo: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE student_id = $1 ORDER BY receipt_date ASC, created_at ASC`, receiptColumns, r.table)
	rows, err := r.db.QueryContext(ctx, query, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []receipts.Receipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ReplaceItems swaps the item rows of a receipt.
func (r *ReceiptRepository) ReplaceItems(ctx context.Context, receiptID string, items []receipts.Item) error {
	if r == nil || r.db == nil {
		return errors.New("receipt repo: nil db")
	}
	if _, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE receipt_id = $1`, r.itemsTable), receiptID); err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (receipt_id, position, description, amount)
VALUES ($1,$2,$3,$4)`, r.itemsTable)
	for _, item := range items {
		if _, err := r.db.ExecContext(ctx, query, receiptID, item.Position, item.Description, item.Amount); err != nil {
			return err
		}
	}
	return nil
}

// ListItems returns the item rows of a receipt.
func (r *ReceiptRepository) ListItems(ctx context.Context, receiptID string) ([]receipts.Item, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("receipt repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT receipt_id, position, description, amount
FROM %s
WHERE receipt_id = $1
ORDER BY position ASC`, r.itemsTable)
	rows, err := r.db.QueryContext(ctx, query, receiptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []receipts.Item
	for rows.Next() {
		var item receipts.Item
		if err := rows.Scan(&item.ReceiptID, &item.Position, &item.Description, &item.Amount); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// LastNumber returns the counter value, empty when unset.
func (r *ReceiptRepository) LastNumber(ctx context.Context) (string, error) {
	if r == nil || r.db == nil {
		return "", errors.New("receipt repo: nil db")
	}
	var number string
	query := fmt.Sprintf(`SELECT last_number FROM %s WHERE name = $1`, r.counterTable)
	err := r.db.QueryRowContext(ctx, query, counterName).Scan(&number)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return number, nil
}

// SetLastNumber stores the counter value.
func (r *ReceiptRepository) SetLastNumber(ctx context.Context, number string) error {
	if r == nil || r.db == nil {
		return errors.New("receipt repo: nil db")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (name, last_number, updated_at)
VALUES ($1,$2,NOW())
ON CONFLICT (name) DO UPDATE SET last_number = EXCLUDED.last_number, updated_at = NOW()`, r.counterTable)
	_, err := r.db.ExecContext(ctx, query, counterName, number)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (receipts.Receipt, error) {
	var receipt receipts.Receipt
	var mode string
	var cancelledAt sql.NullTime
	err := row.Scan(
		&receipt.ID,
		&receipt.ReceiptNumber,
		&receipt.StudentID,
		&receipt.SessionID,
		&receipt.ReceiptDate,
		&receipt.TotalAmount,
		&receipt.DiscountAmount,
		&receipt.NetAmount,
		&mode,
		&receipt.Remarks,
		&receipt.IsCancelled,
		&cancelledAt,
		&receipt.CancellationReason,
		&receipt.CreatedAt,
		&receipt.UpdatedAt,
	)
	if err != nil {
		return receipts.Receipt{}, err
	}
	receipt.PaymentMode = receipts.PaymentMode(mode)
	receipt.ReceiptDate = receipt.ReceiptDate.UTC()
	receipt.CreatedAt = receipt.CreatedAt.UTC()
	receipt.UpdatedAt = receipt.UpdatedAt.UTC()
	if cancelledAt.Valid {
		at := cancelledAt.Time.UTC()
		receipt.CancelledAt = &at
	}
	return receipt, nil
}

func nullTime(receipt receipts.Receipt) sql.NullTime {
	if receipt.CancelledAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: receipt.CancelledAt.UTC(), Valid: true}
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return receipts.ErrDuplicateReceiptNumber
	}
	return err
}

var _ receipts.Repository = (*ReceiptRepository)(nil)
