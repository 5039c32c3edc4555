package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestReplay_FoldsEachSessionFromZero(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2025, time.April, d, 0, 0, 0, 0, time.UTC) }
	created := time.Date(2025, time.April, 1, 9, 0, 0, 0, time.UTC)

	entries := []Entry{
		withMeta(NewDebit("s1", "2025-26", day(1), decimal.NewFromInt(6000), ReferenceFeeCharge, "", "Tuition"), "e1", created, 1),
		withMeta(NewCredit("s1", "2025-26", day(10), decimal.NewFromInt(2000), ReferenceReceipt, "r1", "Receipt #1"), "e2", created, 2),
		withMeta(NewDebit("s1", "2024-25", day(1), decimal.NewFromInt(900), ReferenceFeeCharge, "", "Tuition"), "e3", created, 3),
	}

	changes := Replay(entries)
	if len(changes) != 3 {
		t.Fatalf("expected 3 balance changes, got %d", len(changes))
	}
	want := map[string]int64{"e1": 6000, "e2": 4000, "e3": 900}
	for _, e := range entries {
		if !e.Balance.Equal(decimal.NewFromInt(want[e.ID])) {
			t.Fatalf("balance mismatch for %s: got=%s want=%d", e.ID, e.Balance, want[e.ID])
		}
	}

	if again := Replay(entries); len(again) != 0 {
		t.Fatalf("expected replay of fresh balances to be a no-op, got %d changes", len(again))
	}
}

func TestReplay_BackdatedEntryOnlyMovesLaterBalances(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2025, time.May, d, 0, 0, 0, 0, time.UTC) }
	created := time.Date(2025, time.May, 20, 9, 0, 0, 0, time.UTC)

	entries := []Entry{
		withMeta(NewDebit("s1", "2025-26", day(1), decimal.NewFromInt(1000), ReferenceFeeCharge, "", "Tuition"), "a", created, 1),
		withMeta(NewCredit("s1", "2025-26", day(5), decimal.NewFromInt(300), ReferenceReceipt, "r1", "Receipt #1"), "b", created, 2),
		withMeta(NewCredit("s1", "2025-26", day(15), decimal.NewFromInt(200), ReferenceReceipt, "r2", "Receipt #2"), "c", created, 3),
	}
	Replay(entries)

	backdated := withMeta(NewCredit("s1", "2025-26", day(10), decimal.NewFromInt(100), ReferenceReceipt, "r3", "Receipt #3"),
		"d", created.Add(time.Hour), 4)
	entries = append(entries, backdated)
	changes := Replay(entries)

	changed := map[string]bool{}
	for _, c := range changes {
		changed[c.EntryID] = true
	}
	if changed["a"] || changed["b"] {
		t.Fatalf("entries before the backdated date must keep their balance: %v", changes)
	}
	if !changed["c"] || !changed["d"] {
		t.Fatalf("entries on or after the backdated date must change: %v", changes)
	}
	if got := entries[2].Balance; !got.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("latest balance mismatch: got=%s want=400", got)
	}
	if got := Sum(entries); !got.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("sum mismatch: got=%s want=400", got)
	}
}

func TestLess_TieBreaksOnCreatedAtThenSeq(t *testing.T) {
	date := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	early := time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC)

	a := Entry{EntryDate: date, CreatedAt: early, Seq: 2}
	b := Entry{EntryDate: date, CreatedAt: early.Add(time.Second), Seq: 1}
	c := Entry{EntryDate: date, CreatedAt: early, Seq: 3}

	if !Less(a, b) {
		t.Fatalf("expected earlier created_at to sort first")
	}
	if !Less(a, c) || Less(c, a) {
		t.Fatalf("expected seq to break created_at ties")
	}

	latest, ok := Latest([]Entry{b, a, c})
	if !ok || latest.Seq != 1 {
		t.Fatalf("latest mismatch: got seq=%d ok=%t", latest.Seq, ok)
	}
}

func TestEntryValidate(t *testing.T) {
	date := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		entry Entry
		want  error
	}{
		{"valid debit", NewDebit("s1", "x", date, decimal.NewFromInt(1), ReferenceFeeCharge, "", ""), nil},
		{"missing student", NewDebit("", "x", date, decimal.NewFromInt(1), ReferenceFeeCharge, "", ""), ErrEmptyStudentID},
		{"missing session", NewDebit("s1", "", date, decimal.NewFromInt(1), ReferenceFeeCharge, "", ""), ErrEmptySessionID},
		{"zero date", NewDebit("s1", "x", time.Time{}, decimal.NewFromInt(1), ReferenceFeeCharge, "", ""), ErrInvalidEntryDate},
		{"zero amount", NewCredit("s1", "x", date, decimal.Zero, ReferenceReceipt, "r", ""), ErrInvalidAmount},
		{"negative", NewCredit("s1", "x", date, decimal.NewFromInt(-5), ReferenceReceipt, "r", ""), ErrNegativeAmount},
		{"unknown reference", NewCredit("s1", "x", date, decimal.NewFromInt(5), ReferenceType("GIFT"), "r", ""), ErrInvalidReferenceType},
		{"both sides", Entry{
			StudentID: "s1", SessionID: "x", EntryDate: date, EntryType: EntryTypeDebit,
			DebitAmount: decimal.NewFromInt(1), CreditAmount: decimal.NewFromInt(1), ReferenceType: ReferenceAdjustment,
		}, ErrInvalidAmount},
	}
	for _, tc := range cases {
		if got := tc.entry.Validate(); got != tc.want {
			t.Fatalf("%s: got=%v want=%v", tc.name, got, tc.want)
		}
	}
}

func withMeta(e Entry, id string, created time.Time, seq int64) Entry {
	e.ID = id
	e.CreatedAt = created
	e.Seq = seq
	return e
}
