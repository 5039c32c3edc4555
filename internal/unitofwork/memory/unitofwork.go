package memory

import (
	"context"
	"sync"

	catalogmemory "feeledger/internal/catalog/infrastructure/memory"
	ledgermemory "feeledger/internal/ledger/infrastructure/memory"
	receiptmemory "feeledger/internal/receipts/infrastructure/memory"
	"feeledger/internal/unitofwork"
)

// UnitOfWork serializes transactions with a single writer lock. Each Do works
// on cloned repositories that replace the committed ones only when fn
// succeeds.
type UnitOfWork struct {
	mu    sync.RWMutex
	state state
}

type state struct {
	entries       *ledgermemory.EntryRepository
	receipts      *receiptmemory.ReceiptRepository
	sessions      *catalogmemory.SessionRepository
	feeStructures *catalogmemory.FeeStructureRepository
	transport     *catalogmemory.TransportRepository
	students      *catalogmemory.StudentDirectory
}

// New constructs an empty unit of work.
func New() *UnitOfWork {
	return &UnitOfWork{state: state{
		entries:       ledgermemory.NewEntryRepository(),
		receipts:      receiptmemory.NewReceiptRepository(),
		sessions:      catalogmemory.NewSessionRepository(),
		feeStructures: catalogmemory.NewFeeStructureRepository(),
		transport:     catalogmemory.NewTransportRepository(),
		students:      catalogmemory.NewStudentDirectory(),
	}}
}

// Do runs fn on a private copy and commits it when fn returns nil.
func (u *UnitOfWork) Do(ctx context.Context, fn unitofwork.Func) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	working := u.state.clone()
	if err := fn(ctx, working.repositories()); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	u.state = working
	return nil
}

// View runs fn against a copy of the committed state.
func (u *UnitOfWork) View(ctx context.Context, fn unitofwork.Func) error {
	u.mu.RLock()
	snapshot := u.state.clone()
	u.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, snapshot.repositories())
}

// Entries exposes the committed entry repository.
func (u *UnitOfWork) Entries() *ledgermemory.EntryRepository {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.state.entries
}

// Receipts exposes the committed receipt repository.
func (u *UnitOfWork) Receipts() *receiptmemory.ReceiptRepository {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.state.receipts
}

// Sessions exposes the committed session repository.
func (u *UnitOfWork) Sessions() *catalogmemory.SessionRepository {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.state.sessions
}

// FeeStructures exposes the committed fee structure repository.
func (u *UnitOfWork) FeeStructures() *catalogmemory.FeeStructureRepository {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.state.feeStructures
}

// Transport exposes the committed transport repository.
func (u *UnitOfWork) Transport() *catalogmemory.TransportRepository {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.state.transport
}

// Students exposes the committed student directory.
func (u *UnitOfWork) Students() *catalogmemory.StudentDirectory {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.state.students
}

func (s state) clone() state {
	return state{
		entries:       s.entries.Clone(),
		receipts:      s.receipts.Clone(),
		sessions:      s.sessions.Clone(),
		feeStructures: s.feeStructures.Clone(),
		transport:     s.transport.Clone(),
		students:      s.students.Clone(),
	}
}

func (s state) repositories() unitofwork.Repositories {
	return unitofwork.Repositories{
		Entries:       s.entries,
		Receipts:      s.receipts,
		Sessions:      s.sessions,
		FeeStructures: s.feeStructures,
		Transport:     s.transport,
		Students:      s.students,
	}
}

var _ unitofwork.UnitOfWork = (*UnitOfWork)(nil)
