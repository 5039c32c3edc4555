package receipts

import "context"

// Repository persists receipts, their items and the last-number counter.
type Repository interface {
	// Insert stores a new receipt; a taken number yields ErrDuplicateReceiptNumber.
	Insert(ctx context.Context, receipt Receipt) error
	// Update rewrites a receipt; ErrReceiptNotFound when missing.
	Update(ctx context.Context, receipt Receipt) error
	Get(ctx context.Context, id string) (*Receipt, error)
	FindByNumber(ctx context.Context, number string) (*Receipt, error)
	ListByStudent(ctx context.Context, studentID string) ([]Receipt, error)
	ReplaceItems(ctx context.Context, receiptID string, items []Item) error
	ListItems(ctx context.Context, receiptID string) ([]Item, error)
	LastNumber(ctx context.Context) (string, error)
	SetLastNumber(ctx context.Context, number string) error
}
