package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Repository persists ledger entries. Listing methods return entries in
// timeline order.
type Repository interface {
	// Insert stores the entry and assigns its Seq.
	Insert(ctx context.Context, entry *Entry) error
	Get(ctx context.Context, id string) (*Entry, error)
	ListByStudent(ctx context.Context, studentID string) ([]Entry, error)
	ListTimeline(ctx context.Context, studentID, sessionID string) ([]Entry, error)
	ListByReference(ctx context.Context, referenceID string) ([]Entry, error)
	ListByType(ctx context.Context, studentID, sessionID string, ref ReferenceType) ([]Entry, error)
	ExistsForSession(ctx context.Context, studentID, sessionID string, ref ReferenceType) (bool, error)
	// Update rewrites the mutable fields of an entry: date, particulars,
	// amounts, the reference id and the reversal flag.
	Update(ctx context.Context, entry Entry) error
	UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error
	Delete(ctx context.Context, id string) error
	LatestBalance(ctx context.Context, studentID, sessionID string) (decimal.Decimal, bool, error)
	SumCredits(ctx context.Context, studentID, sessionID string) (decimal.Decimal, error)
	ListSessionBalances(ctx context.Context, sessionID string) ([]StudentBalance, error)
}
