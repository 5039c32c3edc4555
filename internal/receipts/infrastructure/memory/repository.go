package memory

import (
	"context"
	"sort"
	"sync"

	receipts "feeledger/internal/receipts/domain"
)

// ReceiptRepository is an in-memory receipt repository.
type ReceiptRepository struct {
	mu         sync.RWMutex
	receipts   map[string]receipts.Receipt
	byNumber   map[string]string
	items      map[string][]receipts.Item
	lastNumber string
}

// NewReceiptRepository constructs a repository.
func NewReceiptRepository() *ReceiptRepository {
	return &ReceiptRepository{
		receipts: make(map[string]receipts.Receipt),
		byNumber: make(map[string]string),
		items:    make(map[string][]receipts.Item),
	}
}

// Clone returns a detached copy.
func (r *ReceiptRepository) Clone() *ReceiptRepository {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := NewReceiptRepository()
	for id, rec := range r.receipts {
		clone.receipts[id] = rec.Clone()
	}
	for number, id := range r.byNumber {
		clone.byNumber[number] = id
	}
	for id, items := range r.items {
		clone.items[id] = append([]receipts.Item(nil), items...)
	}
	clone.lastNumber = r.lastNumber
	return clone
}

// Insert stores a new receipt.
func (r *ReceiptRepository) Insert(ctx context.Context, receipt receipts.Receipt) error {
	_ = ctx
	if receipt.ID == "" {
		return receipts.ErrEmptyReceiptID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byNumber[receipt.ReceiptNumber]; ok {
		return receipts.ErrDuplicateReceiptNumber
	}
	r.receipts[receipt.ID] = receipt.Clone()
	r.byNumber[receipt.ReceiptNumber] = receipt.ID
	return nil
}

// Update rewrites a receipt.
func (r *ReceiptRepository) Update(ctx context.Context, receipt receipts.Receipt) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.receipts[receipt.ID]
	if !ok {
		return receipts.ErrReceiptNotFound
	}
	if existing.ReceiptNumber != receipt.ReceiptNumber {
		if _, taken := r.byNumber[receipt.ReceiptNumber]; taken {
			return receipts.ErrDuplicateReceiptNumber
		}
		delete(r.byNumber, existing.ReceiptNumber)
		r.byNumber[receipt.ReceiptNumber] = receipt.ID
	}
	r.receipts[receipt.ID] = receipt.Clone()
	return nil
}

// Get loads a receipt by id.
func (r *ReceiptRepository) Get(ctx context.Context, id string) (*receipts.Receipt, error) {
	_ = ctx
	r.mu.RLock()
	rec, ok := r.receipts[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	rec = rec.Clone()
	return &rec, nil
}

// FindByNumber loads a receipt by number.
func (r *ReceiptRepository) FindByNumber(ctx context.Context, number string) (*receipts.Receipt, error) {
	r.mu.RLock()
	id, ok := r.byNumber[number]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return r.Get(ctx, id)
}

// ListByStudent returns a student's receipts ordered by date.
func (r *ReceiptRepository) ListByStudent(ctx context.Context, studentID string) ([]receipts.Receipt, error) {
	_ = ctx
	r.mu.RLock()
	var result []receipts.Receipt
	for _, rec := range r.receipts {
		if rec.StudentID == studentID {
			result = append(result, rec.Clone())
		}
	}
	r.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		if !result[i].ReceiptDate.Equal(result[j].ReceiptDate) {
			return result[i].ReceiptDate.Before(result[j].ReceiptDate)
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// ReplaceItems swaps the item rows of a receipt.
func (r *ReceiptRepository) ReplaceItems(ctx context.Context, receiptID string, items []receipts.Item) error {
	_ = ctx
	r.mu.Lock()
	r.items[receiptID] = append([]receipts.Item(nil), items...)
	r.mu.Unlock()
	return nil
}

// ListItems returns the item rows of a receipt.
func (r *ReceiptRepository) ListItems(ctx context.Context, receiptID string) ([]receipts.Item, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]receipts.Item(nil), r.items[receiptID]...), nil
}

// LastNumber returns the counter value.
func (r *ReceiptRepository) LastNumber(ctx context.Context) (string, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastNumber, nil
}

// SetLastNumber stores the counter value.
func (r *ReceiptRepository) SetLastNumber(ctx context.Context, number string) error {
	_ = ctx
	r.mu.Lock()
	r.lastNumber = number
	r.mu.Unlock()
	return nil
}

var _ receipts.Repository = (*ReceiptRepository)(nil)
