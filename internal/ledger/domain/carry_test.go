package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDerive_CarriedOpeningFollowsSourceChain(t *testing.T) {
	entries := []Entry{
		withMeta(NewDebit("stu-1", "2023-24", calendarDay(2023, 4, 1), decimal.NewFromInt(5000), ReferenceFeeCharge, "", "Fees"), "a", carryCreated, 1),
		withMeta(NewCredit("stu-1", "2023-24", calendarDay(2023, 5, 1), decimal.NewFromInt(1000), ReferenceReceipt, "r-1", "Receipt"), "b", carryCreated, 2),
		// carried when 2023-24 still owed 3000
		withMeta(NewDebit("stu-1", "2024-25", calendarDay(2024, 4, 1), decimal.NewFromInt(3000), ReferenceOpeningBalance, "2023-24", "Opening"), "c", carryCreated, 3),
		withMeta(NewDebit("stu-1", "2024-25", calendarDay(2024, 4, 1), decimal.NewFromInt(2000), ReferenceFeeCharge, "", "Fees"), "d", carryCreated, 4),
		withMeta(NewDebit("stu-1", "2025-26", calendarDay(2025, 4, 1), decimal.NewFromInt(5000), ReferenceOpeningBalance, "2024-25", "Opening"), "e", carryCreated, 5),
	}

	d := Derive(entries)
	if len(d.Amended) != 2 {
		t.Fatalf("expected both carried openings amended, got %+v", d.Amended)
	}
	byID := make(map[string]Entry)
	for _, e := range entries {
		byID[e.ID] = e
	}
	if got := byID["c"].Amount(); !got.Equal(decimal.NewFromInt(4000)) {
		t.Fatalf("first carry mismatch: got=%s want=4000", got)
	}
	if got := byID["e"].Balance; !got.Equal(decimal.NewFromInt(6000)) {
		t.Fatalf("second carry must follow the amended first one: got=%s want=6000", got)
	}
	if len(d.Removed) != 0 {
		t.Fatalf("no carry should be removed: %+v", d.Removed)
	}
}

func TestDerive_RemovesCarryWhenSourceSettled(t *testing.T) {
	entries := []Entry{
		withMeta(NewDebit("stu-1", "2024-25", calendarDay(2024, 4, 1), decimal.NewFromInt(2000), ReferenceFeeCharge, "", "Fees"), "a", carryCreated, 1),
		withMeta(NewCredit("stu-1", "2024-25", calendarDay(2024, 6, 1), decimal.NewFromInt(2500), ReferenceReceipt, "r-1", "Receipt"), "b", carryCreated, 2),
		withMeta(NewDebit("stu-1", "2025-26", calendarDay(2025, 4, 1), decimal.NewFromInt(2000), ReferenceOpeningBalance, "2024-25", "Opening"), "c", carryCreated, 3),
		withMeta(NewDebit("stu-1", "2025-26", calendarDay(2025, 4, 1), decimal.NewFromInt(600), ReferenceFeeCharge, "", "Fees"), "d", carryCreated, 4),
		// manual opening balances are never derived
		withMeta(NewDebit("stu-2", "2025-26", calendarDay(2025, 4, 1), decimal.NewFromInt(900), ReferenceOpeningBalance, "", "Opening"), "e", carryCreated, 5),
	}

	d := Derive(entries)
	if len(d.Removed) != 1 || d.Removed[0].ID != "c" {
		t.Fatalf("expected carried opening c removed, got %+v", d.Removed)
	}
	if len(d.Amended) != 0 {
		t.Fatalf("unexpected amendments: %+v", d.Amended)
	}
	for _, e := range entries {
		if e.ID == "d" && !e.Balance.Equal(decimal.NewFromInt(600)) {
			t.Fatalf("fold must skip the removed carry: got=%s want=600", e.Balance)
		}
	}
}

func TestDerive_MatchesReplayWithoutCarries(t *testing.T) {
	build := func() []Entry {
		return []Entry{
			withMeta(NewDebit("stu-1", "2025-26", calendarDay(2025, 4, 1), decimal.NewFromInt(1000), ReferenceFeeCharge, "", "Fees"), "a", carryCreated, 1),
			withMeta(NewCredit("stu-1", "2025-26", calendarDay(2025, 4, 9), decimal.NewFromInt(300), ReferenceReceipt, "r-1", "Receipt"), "b", carryCreated, 2),
		}
	}
	replayed := Replay(build())
	derived := Derive(build())
	if len(replayed) != len(derived.Changes) {
		t.Fatalf("change count mismatch: replay=%d derive=%d", len(replayed), len(derived.Changes))
	}
	for i := range replayed {
		if replayed[i].EntryID != derived.Changes[i].EntryID || !replayed[i].New.Equal(derived.Changes[i].New) {
			t.Fatalf("change %d mismatch: replay=%+v derive=%+v", i, replayed[i], derived.Changes[i])
		}
	}
}

var carryCreated = time.Date(2025, time.April, 2, 8, 0, 0, 0, time.UTC)

func calendarDay(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}
