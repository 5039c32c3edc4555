// Package unitofwork defines the transaction boundary shared by every
// multi-step ledger mutation.
package unitofwork

import (
	"context"

	catalog "feeledger/internal/catalog/domain"
	ledger "feeledger/internal/ledger/domain"
	receipts "feeledger/internal/receipts/domain"
)

// Repositories are scoped to a single transaction.
type Repositories struct {
	Entries       ledger.Repository
	Receipts      receipts.Repository
	Sessions      catalog.SessionRepository
	FeeStructures catalog.FeeStructureRepository
	Transport     catalog.TransportRepository
	Students      catalog.StudentDirectory
}

// Func runs inside a transaction.
type Func func(ctx context.Context, repos Repositories) error

// UnitOfWork runs functions atomically. Do commits when fn returns nil and
// rolls back on any error or panic. View runs fn against a consistent
// snapshot and never commits.
type UnitOfWork interface {
	Do(ctx context.Context, fn Func) error
	View(ctx context.Context, fn Func) error
}
