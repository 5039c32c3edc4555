package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	ledger "feeledger/internal/ledger/domain"
	"feeledger/internal/observability/metrics"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// RecomputeResult summarizes a recomputation.
type RecomputeResult struct {
	Scanned   int
	Rewritten int
	// Carried counts carried opening balances amended or removed.
	Carried int
}

// Store owns entry insertion, reversal and balance recomputation for one
// repository. Inside a unit of work the repository is transaction scoped, so
// every write made through Store commits or rolls back together.
type Store struct {
	repo  ledger.Repository
	clock Clock
}

// NewStore constructs a ledger store.
func NewStore(repo ledger.Repository, clock Clock) (*Store, error) {
	if repo == nil {
		return nil, errors.New("ledger store: nil repository")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Store{repo: repo, clock: clock}, nil
}

// Insert validates and stores an entry with a placeholder balance. Callers
// must Recompute the student afterwards unless the entry is known to be the
// latest on its timeline.
func (s *Store) Insert(ctx context.Context, entry *ledger.Entry) (string, error) {
	if entry == nil {
		return "", ledger.ErrNilEntry
	}
	if err := entry.Validate(); err != nil {
		return "", err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock.Now().UTC()
	}
	entry.IsReversed = false
	entry.Balance = decimal.Zero
	if err := s.repo.Insert(ctx, entry); err != nil {
		return "", fmt.Errorf("ledger store: insert entry: %w", err)
	}
	return entry.ID, nil
}

// InsertSeeded stores an entry whose cached balance is already known, such
// as an opening balance that is the first entry of its timeline.
func (s *Store) InsertSeeded(ctx context.Context, entry *ledger.Entry, balance decimal.Decimal) (string, error) {
	if entry == nil {
		return "", ledger.ErrNilEntry
	}
	if err := entry.Validate(); err != nil {
		return "", err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock.Now().UTC()
	}
	entry.IsReversed = false
	entry.Balance = balance
	if err := s.repo.Insert(ctx, entry); err != nil {
		return "", fmt.Errorf("ledger store: insert seeded entry: %w", err)
	}
	return entry.ID, nil
}

// EntriesOfType returns the timeline entries produced by one reference type.
func (s *Store) EntriesOfType(ctx context.Context, studentID, sessionID string, ref ledger.ReferenceType) ([]ledger.Entry, error) {
	return s.repo.ListByType(ctx, studentID, sessionID, ref)
}

// HasEntryOfType reports whether the timeline has an entry of the reference type.
func (s *Store) HasEntryOfType(ctx context.Context, studentID, sessionID string, ref ledger.ReferenceType) (bool, error) {
	if studentID == "" {
		return false, ledger.ErrEmptyStudentID
	}
	if sessionID == "" {
		return false, ledger.ErrEmptySessionID
	}
	return s.repo.ExistsForSession(ctx, studentID, sessionID, ref)
}

// EntriesForReference returns every entry linked to a reference id.
func (s *Store) EntriesForReference(ctx context.Context, referenceID string) ([]ledger.Entry, error) {
	if referenceID == "" {
		return nil, ledger.ErrEmptyEntryID
	}
	return s.repo.ListByReference(ctx, referenceID)
}

// SessionBalances returns the latest cached balance of every timeline in a session.
func (s *Store) SessionBalances(ctx context.Context, sessionID string) ([]ledger.StudentBalance, error) {
	if sessionID == "" {
		return nil, ledger.ErrEmptySessionID
	}
	return s.repo.ListSessionBalances(ctx, sessionID)
}

// Recompute replays every timeline of the student and persists only the
// cached balances that changed. Carried opening balances are re-derived from
// the closing balance of their source session first. Any failure must abort
// the enclosing unit of work so a stale balance is never committed.
func (s *Store) Recompute(ctx context.Context, studentID string) (RecomputeResult, error) {
	if studentID == "" {
		return RecomputeResult{}, ledger.ErrEmptyStudentID
	}
	start := time.Now()
	entries, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return RecomputeResult{}, fmt.Errorf("ledger store: recompute %s: %w", studentID, err)
	}
	derived := ledger.Derive(entries)
	for _, entry := range derived.Removed {
		if err := s.repo.Delete(ctx, entry.ID); err != nil {
			return RecomputeResult{}, fmt.Errorf("ledger store: remove carried %s: %w", entry.ID, err)
		}
	}
	for _, entry := range derived.Amended {
		if err := s.repo.Update(ctx, entry); err != nil {
			return RecomputeResult{}, fmt.Errorf("ledger store: amend carried %s: %w", entry.ID, err)
		}
	}
	for _, change := range derived.Changes {
		if err := s.repo.UpdateBalance(ctx, change.EntryID, change.New); err != nil {
			return RecomputeResult{}, fmt.Errorf("ledger store: update balance %s: %w", change.EntryID, err)
		}
	}
	metrics.ObserveRecompute(len(derived.Changes), time.Since(start))
	return RecomputeResult{
		Scanned:   len(entries),
		Rewritten: len(derived.Changes),
		Carried:   len(derived.Amended) + len(derived.Removed),
	}, nil
}

// RecomputeTimeline replays a single session timeline of the student without
// re-deriving carried opening balances.
func (s *Store) RecomputeTimeline(ctx context.Context, studentID, sessionID string) (RecomputeResult, error) {
	if studentID == "" {
		return RecomputeResult{}, ledger.ErrEmptyStudentID
	}
	if sessionID == "" {
		return RecomputeResult{}, ledger.ErrEmptySessionID
	}
	entries, err := s.repo.ListTimeline(ctx, studentID, sessionID)
	if err != nil {
		return RecomputeResult{}, fmt.Errorf("ledger store: recompute %s/%s: %w", studentID, sessionID, err)
	}
	return s.apply(ctx, entries)
}

func (s *Store) apply(ctx context.Context, entries []ledger.Entry) (RecomputeResult, error) {
	start := time.Now()
	changes := ledger.Replay(entries)
	for _, change := range changes {
		if err := s.repo.UpdateBalance(ctx, change.EntryID, change.New); err != nil {
			return RecomputeResult{}, fmt.Errorf("ledger store: update balance %s: %w", change.EntryID, err)
		}
	}
	metrics.ObserveRecompute(len(changes), time.Since(start))
	return RecomputeResult{Scanned: len(entries), Rewritten: len(changes)}, nil
}

// Reverse flags the active credit entries of a receipt as reversed and
// returns them. The balance is not changed: callers insert offsetting debits
// and recompute.
func (s *Store) Reverse(ctx context.Context, receiptID string) ([]ledger.Entry, error) {
	if receiptID == "" {
		return nil, ledger.ErrEmptyEntryID
	}
	entries, err := s.repo.ListByReference(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	var credits, reversed []ledger.Entry
	for _, entry := range entries {
		if !entry.IsCredit() {
			continue
		}
		credits = append(credits, entry)
		if entry.IsReversed {
			continue
		}
		entry.IsReversed = true
		if err := s.repo.Update(ctx, entry); err != nil {
			return nil, fmt.Errorf("ledger store: reverse %s: %w", entry.ID, err)
		}
		reversed = append(reversed, entry)
	}
	if len(credits) == 0 {
		return nil, ledger.ErrNoEntriesForReference
	}
	if len(reversed) == 0 {
		return nil, ledger.ErrEntryAlreadyReversed
	}
	return reversed, nil
}

// ReverseEntry flags a single credit entry as reversed.
func (s *Store) ReverseEntry(ctx context.Context, entry ledger.Entry) (ledger.Entry, error) {
	if entry.IsReversed {
		return entry, ledger.ErrEntryAlreadyReversed
	}
	entry.IsReversed = true
	if err := s.repo.Update(ctx, entry); err != nil {
		return entry, fmt.Errorf("ledger store: reverse %s: %w", entry.ID, err)
	}
	return entry, nil
}

// Update rewrites an existing entry after validating it.
func (s *Store) Update(ctx context.Context, entry ledger.Entry) error {
	if entry.ID == "" {
		return ledger.ErrEmptyEntryID
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	return s.repo.Update(ctx, entry)
}

// Remove hard-deletes an entry. Only opening balances that drop to zero are
// removed.
func (s *Store) Remove(ctx context.Context, id string) error {
	if id == "" {
		return ledger.ErrEmptyEntryID
	}
	return s.repo.Delete(ctx, id)
}

// CurrentBalance returns the cached balance of the latest entry on the
// student's session timeline, or zero when the timeline is empty.
func (s *Store) CurrentBalance(ctx context.Context, studentID, sessionID string) (decimal.Decimal, error) {
	if studentID == "" {
		return decimal.Zero, ledger.ErrEmptyStudentID
	}
	if sessionID == "" {
		return decimal.Zero, ledger.ErrEmptySessionID
	}
	balance, ok, err := s.repo.LatestBalance(ctx, studentID, sessionID)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, nil
	}
	return balance, nil
}

// Statement returns the ordered session timeline of the student.
func (s *Store) Statement(ctx context.Context, studentID, sessionID string) ([]ledger.Entry, error) {
	if studentID == "" {
		return nil, ledger.ErrEmptyStudentID
	}
	if sessionID == "" {
		return nil, ledger.ErrEmptySessionID
	}
	return s.repo.ListTimeline(ctx, studentID, sessionID)
}

// CreditsForSession sums the non-reversed credits on a session timeline.
func (s *Store) CreditsForSession(ctx context.Context, studentID, sessionID string) (decimal.Decimal, error) {
	if studentID == "" {
		return decimal.Zero, ledger.ErrEmptyStudentID
	}
	if sessionID == "" {
		return decimal.Zero, ledger.ErrEmptySessionID
	}
	return s.repo.SumCredits(ctx, studentID, sessionID)
}
