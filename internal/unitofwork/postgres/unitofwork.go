package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	catalogrepo "feeledger/internal/catalog/infrastructure/postgres"
	ledgerrepo "feeledger/internal/ledger/infrastructure/postgres"
	receiptrepo "feeledger/internal/receipts/infrastructure/postgres"
	"feeledger/internal/unitofwork"
)

// UnitOfWork opens a serializable transaction per call.
type UnitOfWork struct {
	db *sql.DB
}

// New constructs a unit of work.
func New(db *sql.DB) (*UnitOfWork, error) {
	if db == nil {
		return nil, errors.New("unit of work: nil db")
	}
	return &UnitOfWork{db: db}, nil
}

// Do runs fn in a serializable read-write transaction.
func (u *UnitOfWork) Do(ctx context.Context, fn unitofwork.Func) error {
	return u.run(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, true, fn)
}

// View runs fn in a read-only repeatable-read transaction.
func (u *UnitOfWork) View(ctx context.Context, fn unitofwork.Func) error {
	return u.run(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, false, fn)
}

func (u *UnitOfWork) run(ctx context.Context, opts *sql.TxOptions, commit bool, fn unitofwork.Func) (err error) {
	if fn == nil {
		return errors.New("unit of work: nil func")
	}
	tx, err := u.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("unit of work: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, Repositories(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if !commit {
		return tx.Rollback()
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("unit of work: commit: %w", err)
	}
	return nil
}

// Repositories builds repositories bound to db, which may be a transaction.
func Repositories(db ledgerrepo.DBTX) unitofwork.Repositories {
	return unitofwork.Repositories{
		Entries:       ledgerrepo.NewEntryRepository(db),
		Receipts:      receiptrepo.NewReceiptRepository(db),
		Sessions:      catalogrepo.NewSessionRepository(db),
		FeeStructures: catalogrepo.NewFeeStructureRepository(db),
		Transport:     catalogrepo.NewTransportRepository(db),
		Students:      catalogrepo.NewStudentDirectory(db),
	}
}

var _ unitofwork.UnitOfWork = (*UnitOfWork)(nil)
