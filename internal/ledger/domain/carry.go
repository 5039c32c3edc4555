package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// IsCarried reports whether the entry is an opening balance carried from
// another session. ReferenceID holds the source session id.
func (e Entry) IsCarried() bool {
	return e.ReferenceType == ReferenceOpeningBalance && e.ReferenceID != "" && e.ReferenceID != e.SessionID
}

// Derivation is the outcome of folding all timelines of one student.
type Derivation struct {
	// Amended holds carried opening balances whose amount changed.
	Amended []Entry
	// Removed holds carried opening balances whose source closed at or below zero.
	Removed []Entry
	Changes []BalanceChange
}

// Derive folds every session timeline of one student. A carried opening
// balance takes the closing balance of its source session, so source
// timelines are folded first. A carried entry whose source no longer closes
// positive is removed and left out of the fold.
func Derive(entries []Entry) Derivation {
	d := &deriver{
		entries:   entries,
		bySession: make(map[string][]int),
		closing:   make(map[string]decimal.Decimal),
		state:     make(map[string]int),
		removed:   make(map[int]bool),
	}
	for i := range entries {
		sessionID := entries[i].SessionID
		if _, ok := d.bySession[sessionID]; !ok {
			d.sessions = append(d.sessions, sessionID)
		}
		d.bySession[sessionID] = append(d.bySession[sessionID], i)
	}
	sort.Strings(d.sessions)
	for _, sessionID := range d.sessions {
		d.fold(sessionID)
	}
	return d.result
}

const (
	foldInProgress = 1
	foldDone       = 2
)

type deriver struct {
	entries   []Entry
	sessions  []string
	bySession map[string][]int
	closing   map[string]decimal.Decimal
	state     map[string]int
	removed   map[int]bool
	result    Derivation
}

func (d *deriver) fold(sessionID string) decimal.Decimal {
	switch d.state[sessionID] {
	case foldDone:
		return d.closing[sessionID]
	case foldInProgress:
		// cyclic carry links are folded with their stored amounts
		return d.closing[sessionID]
	}
	d.state[sessionID] = foldInProgress

	idx := d.bySession[sessionID]
	for _, i := range idx {
		entry := &d.entries[i]
		if !entry.IsCarried() || d.state[entry.ReferenceID] == foldInProgress {
			continue
		}
		carried := d.fold(entry.ReferenceID)
		if !carried.IsPositive() {
			d.removed[i] = true
			d.result.Removed = append(d.result.Removed, *entry)
			continue
		}
		if !carried.Equal(entry.Amount()) {
			entry.SetAmount(carried)
			d.result.Amended = append(d.result.Amended, *entry)
		}
	}

	sort.SliceStable(idx, func(a, b int) bool {
		return Less(d.entries[idx[a]], d.entries[idx[b]])
	})
	running := decimal.Zero
	for _, i := range idx {
		if d.removed[i] {
			continue
		}
		entry := &d.entries[i]
		running = running.Add(entry.Delta())
		if !entry.Balance.Equal(running) {
			d.result.Changes = append(d.result.Changes, BalanceChange{
				EntryID: entry.ID,
				Old:     entry.Balance,
				New:     running,
			})
		}
		entry.Balance = running
	}
	d.closing[sessionID] = running
	d.state[sessionID] = foldDone
	return running
}
