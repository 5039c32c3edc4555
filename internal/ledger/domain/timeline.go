package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Less orders entries within a timeline by (EntryDate, CreatedAt, Seq).
func Less(a, b Entry) bool {
	if !a.EntryDate.Equal(b.EntryDate) {
		return a.EntryDate.Before(b.EntryDate)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Seq < b.Seq
}

// SortTimeline sorts entries in timeline order.
func SortTimeline(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return Less(entries[i], entries[j])
	})
}

// BalanceChange describes an entry whose cached balance is stale.
type BalanceChange struct {
	EntryID string
	Old     decimal.Decimal
	New     decimal.Decimal
}

// Replay folds every session timeline in entries from zero, writes the fresh
// balance into each entry and returns the entries whose cached balance differed.
// Entries of different sessions never affect each other.
func Replay(entries []Entry) []BalanceChange {
	bySession := make(map[string][]int)
	sessions := make([]string, 0)
	for i := range entries {
		sessionID := entries[i].SessionID
		if _, ok := bySession[sessionID]; !ok {
			sessions = append(sessions, sessionID)
		}
		bySession[sessionID] = append(bySession[sessionID], i)
	}
	sort.Strings(sessions)

	var changes []BalanceChange
	for _, sessionID := range sessions {
		idx := bySession[sessionID]
		sort.SliceStable(idx, func(a, b int) bool {
			return Less(entries[idx[a]], entries[idx[b]])
		})
		running := decimal.Zero
		for _, i := range idx {
			running = running.Add(entries[i].Delta())
			if !entries[i].Balance.Equal(running) {
				changes = append(changes, BalanceChange{
					EntryID: entries[i].ID,
					Old:     entries[i].Balance,
					New:     running,
				})
			}
			entries[i].Balance = running
		}
	}
	return changes
}

// Sum returns the folded balance of entries regardless of cached values.
func Sum(entries []Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Delta())
	}
	return total
}

// Latest returns the last entry in timeline order.
func Latest(entries []Entry) (Entry, bool) {
	if len(entries) == 0 {
		return Entry{}, false
	}
	latest := entries[0]
	for _, e := range entries[1:] {
		if Less(latest, e) {
			latest = e
		}
	}
	return latest, true
}
