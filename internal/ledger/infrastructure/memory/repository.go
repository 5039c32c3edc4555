package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	ledger "feeledger/internal/ledger/domain"
)

// EntryRepository is an in-memory repository for ledger entries.
type EntryRepository struct {
	mu      sync.RWMutex
	seq     int64
	entries map[string]ledger.Entry
}

// NewEntryRepository constructs a repository.
func NewEntryRepository() *EntryRepository {
	return &EntryRepository{entries: make(map[string]ledger.Entry)}
}

// Clone returns a detached copy of the repository.
func (r *EntryRepository) Clone() *EntryRepository {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &EntryRepository{seq: r.seq, entries: make(map[string]ledger.Entry, len(r.entries))}
	for id, entry := range r.entries {
		clone.entries[id] = entry
	}
	return clone
}

// Insert stores an entry and assigns its sequence number.
func (r *EntryRepository) Insert(ctx context.Context, entry *ledger.Entry) error {
	_ = ctx
	if entry == nil {
		return ledger.ErrNilEntry
	}
	if entry.ID == "" {
		return ledger.ErrEmptyEntryID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	entry.Seq = r.seq
	r.entries[entry.ID] = *entry
	return nil
}

// Get loads an entry by id.
func (r *EntryRepository) Get(ctx context.Context, id string) (*ledger.Entry, error) {
	_ = ctx
	r.mu.RLock()
	entry, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// ListByStudent returns all entries of a student ordered by session then timeline.
func (r *EntryRepository) ListByStudent(ctx context.Context, studentID string) ([]ledger.Entry, error) {
	_ = ctx
	return r.filter(func(e ledger.Entry) bool { return e.StudentID == studentID }), nil
}

// ListTimeline returns the ordered timeline of a student's session.
func (r *EntryRepository) ListTimeline(ctx context.Context, studentID, sessionID string) ([]ledger.Entry, error) {
	_ = ctx
	return r.filter(func(e ledger.Entry) bool {
		return e.StudentID == studentID && e.SessionID == sessionID
	}), nil
}

// ListByReference returns entries linked to a reference id.
func (r *EntryRepository) ListByReference(ctx context.Context, referenceID string) ([]ledger.Entry, error) {
	_ = ctx
	return r.filter(func(e ledger.Entry) bool { return e.ReferenceID == referenceID }), nil
}

// ListByType returns timeline entries of one reference type.
func (r *EntryRepository) ListByType(ctx context.Context, studentID, sessionID string, ref ledger.ReferenceType) ([]ledger.Entry, error) {
	_ = ctx
	return r.filter(func(e ledger.Entry) bool {
		return e.StudentID == studentID && e.SessionID == sessionID && e.ReferenceType == ref
	}), nil
}

// ExistsForSession reports whether the timeline has an entry of the reference type.
func (r *EntryRepository) ExistsForSession(ctx context.Context, studentID, sessionID string, ref ledger.ReferenceType) (bool, error) {
	entries, err := r.ListByType(ctx, studentID, sessionID, ref)
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

// Update rewrites the mutable fields of an entry.
func (r *EntryRepository) Update(ctx context.Context, entry ledger.Entry) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.entries[entry.ID]
	if !ok {
		return ledger.ErrEntryNotFound
	}
	stored.EntryDate = entry.EntryDate
	stored.Particulars = entry.Particulars
	stored.DebitAmount = entry.DebitAmount
	stored.CreditAmount = entry.CreditAmount
	stored.IsReversed = entry.IsReversed
	stored.ReferenceID = entry.ReferenceID
	r.entries[entry.ID] = stored
	return nil
}

// UpdateBalance rewrites the cached balance of an entry.
func (r *EntryRepository) UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.entries[id]
	if !ok {
		return ledger.ErrEntryNotFound
	}
	stored.Balance = balance
	r.entries[id] = stored
	return nil
}

// Delete removes an entry.
func (r *EntryRepository) Delete(ctx context.Context, id string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return ledger.ErrEntryNotFound
	}
	delete(r.entries, id)
	return nil
}

// LatestBalance returns the cached balance of the last timeline entry.
func (r *EntryRepository) LatestBalance(ctx context.Context, studentID, sessionID string) (decimal.Decimal, bool, error) {
	timeline, err := r.ListTimeline(ctx, studentID, sessionID)
	if err != nil {
		return decimal.Zero, false, err
	}
	latest, ok := ledger.Latest(timeline)
	if !ok {
		return decimal.Zero, false, nil
	}
	return latest.Balance, true, nil
}

// SumCredits sums non-reversed credits on a timeline.
func (r *EntryRepository) SumCredits(ctx context.Context, studentID, sessionID string) (decimal.Decimal, error) {
	timeline, err := r.ListTimeline(ctx, studentID, sessionID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, e := range timeline {
		if e.IsCredit() && !e.IsReversed {
			total = total.Add(e.CreditAmount)
		}
	}
	return total, nil
}

// ListSessionBalances returns the latest cached balance per student in a session.
func (r *EntryRepository) ListSessionBalances(ctx context.Context, sessionID string) ([]ledger.StudentBalance, error) {
	_ = ctx
	entries := r.filter(func(e ledger.Entry) bool { return e.SessionID == sessionID })
	latest := make(map[string]ledger.Entry)
	for _, e := range entries {
		if current, ok := latest[e.StudentID]; !ok || ledger.Less(current, e) {
			latest[e.StudentID] = e
		}
	}
	result := make([]ledger.StudentBalance, 0, len(latest))
	for studentID, e := range latest {
		result = append(result, ledger.StudentBalance{StudentID: studentID, SessionID: sessionID, Balance: e.Balance})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StudentID < result[j].StudentID })
	return result, nil
}

func (r *EntryRepository) filter(keep func(ledger.Entry) bool) []ledger.Entry {
	r.mu.RLock()
	var result []ledger.Entry
	for _, e := range r.entries {
		if keep(e) {
			result = append(result, e)
		}
	}
	r.mu.RUnlock()
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].SessionID != result[j].SessionID {
			return result[i].SessionID < result[j].SessionID
		}
		return ledger.Less(result[i], result[j])
	})
	return result
}

var _ ledger.Repository = (*EntryRepository)(nil)
