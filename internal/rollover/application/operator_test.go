package application_test

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	catalog "feeledger/internal/catalog/domain"
	duesapp "feeledger/internal/dues/application"
	dues "feeledger/internal/dues/domain"
	ledgerapp "feeledger/internal/ledger/application"
	ledger "feeledger/internal/ledger/domain"
	receiptapp "feeledger/internal/receipts/application"
	receipts "feeledger/internal/receipts/domain"
	rolloverapp "feeledger/internal/rollover/application"
	"feeledger/internal/unitofwork"
	"feeledger/internal/unitofwork/memory"
)

var (
	previousSession = catalog.Session{
		ID:       "2024-25",
		Name:     "Session 2024-25",
		StartsOn: time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC),
		EndsOn:   time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC),
	}
	currentSession = catalog.Session{
		ID:       "2025-26",
		Name:     "Session 2025-26",
		StartsOn: time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
		EndsOn:   time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC),
	}
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type fixture struct {
	uow        *memory.UnitOfWork
	calculator *duesapp.Calculator
	operator   *rolloverapp.Operator
	clock      fixedClock
}

func TestOperator_ChargeThenPayClearsDues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addStudent(t, catalog.StudentProfile{StudentID: "stu-1", ClassName: "3", AdmissionFeePaid: true, IsActive: true})

	due, err := f.calculator.ExpectedSessionDues(ctx, "stu-1", currentSession)
	if err != nil {
		t.Fatalf("expected dues: %v", err)
	}
	if !due.Equal(decimal.NewFromInt(6000)) {
		t.Fatalf("dues before payment mismatch: got=%s want=6000", due)
	}

	result, err := f.operator.AddSessionFeesForStudent(ctx, "stu-1", currentSession)
	if err != nil {
		t.Fatalf("charge fees: %v", err)
	}
	if result.Charged != 1 || !result.Total.Equal(decimal.NewFromInt(6000)) {
		t.Fatalf("unexpected charge result: %+v", result)
	}

	manager := f.manager(t)
	_, err = manager.Create(ctx, receipts.Receipt{
		ReceiptNumber: "1",
		StudentID:     "stu-1",
		SessionID:     currentSession.ID,
		ReceiptDate:   time.Date(2025, time.April, 10, 0, 0, 0, 0, time.UTC),
		NetAmount:     decimal.NewFromInt(6000),
	}, nil)
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}

	if got := f.balance(t, "stu-1", currentSession.ID); !got.IsZero() {
		t.Fatalf("balance after payment mismatch: got=%s want=0", got)
	}
	due, err = f.calculator.ExpectedSessionDues(ctx, "stu-1", currentSession)
	if err != nil {
		t.Fatalf("expected dues after payment: %v", err)
	}
	if !due.IsZero() {
		t.Fatalf("dues after payment mismatch: got=%s want=0", due)
	}
}

func TestOperator_ChargeAllStudentsTwiceChargesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addStudent(t, catalog.StudentProfile{StudentID: "stu-1", ClassName: "3", AdmissionFeePaid: true, IsActive: true})
	f.addStudent(t, catalog.StudentProfile{StudentID: "stu-2", ClassName: "3", IsActive: true})
	f.addStudent(t, catalog.StudentProfile{StudentID: "stu-left", ClassName: "3", IsActive: false})

	first, err := f.operator.AddSessionFeesForAllStudents(ctx, currentSession)
	if err != nil {
		t.Fatalf("charge all: %v", err)
	}
	if first.Charged != 2 || first.Skipped != 0 {
		t.Fatalf("unexpected first run: %+v", first)
	}
	if !first.Total.Equal(decimal.NewFromInt(14000)) {
		t.Fatalf("first run total mismatch: got=%s want=14000", first.Total)
	}

	second, err := f.operator.AddSessionFeesForAllStudents(ctx, currentSession)
	if err != nil {
		t.Fatalf("charge all again: %v", err)
	}
	if second.Charged != 0 || second.Skipped != 2 {
		t.Fatalf("unexpected second run: %+v", second)
	}

	if got := f.countOfType(t, "stu-1", currentSession.ID, ledger.ReferenceFeeCharge); got != 1 {
		t.Fatalf("stu-1 fee charges mismatch: got=%d want=1", got)
	}
	if got := f.countOfType(t, "stu-2", currentSession.ID, ledger.ReferenceFeeCharge); got != 2 {
		t.Fatalf("stu-2 fee charges mismatch: got=%d want=2", got)
	}
	if got := f.balance(t, "stu-2", currentSession.ID); !got.Equal(decimal.NewFromInt(8000)) {
		t.Fatalf("stu-2 balance mismatch: got=%s want=8000", got)
	}
	if got := f.countOfType(t, "stu-left", currentSession.ID, ledger.ReferenceFeeCharge); got != 0 {
		t.Fatalf("inactive student must not be charged, got %d entries", got)
	}
}

func TestOperator_CarryForwardTwiceCarriesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedEntry(t, ledger.NewDebit("stu-1", previousSession.ID, previousSession.StartsOn, decimal.NewFromInt(1500),
		ledger.ReferenceFeeCharge, "", "Tuition"))
	f.seedEntry(t, ledger.NewCredit("stu-2", previousSession.ID, previousSession.StartsOn, decimal.NewFromInt(200),
		ledger.ReferenceReceipt, "r-adv", "Receipt #adv"))

	first, err := f.operator.CarryForwardDues(ctx, currentSession.ID, currentSession.StartsOn)
	if err != nil {
		t.Fatalf("carry forward: %v", err)
	}
	if first.SourceSessionID != previousSession.ID || first.Carried != 1 || !first.Total.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("unexpected first carry: %+v", first)
	}

	second, err := f.operator.CarryForwardDues(ctx, currentSession.ID, currentSession.StartsOn)
	if err != nil {
		t.Fatalf("carry forward again: %v", err)
	}
	if second.Carried != 0 || second.Skipped != 1 {
		t.Fatalf("unexpected second carry: %+v", second)
	}

	openings := f.entriesOfType(t, "stu-1", currentSession.ID, ledger.ReferenceOpeningBalance)
	if len(openings) != 1 {
		t.Fatalf("expected one opening balance, got %d", len(openings))
	}
	opening := openings[0]
	if !opening.Balance.Equal(decimal.NewFromInt(1500)) || !opening.EntryDate.Equal(currentSession.StartsOn) {
		t.Fatalf("opening entry mismatch: %+v", opening)
	}
	if opening.Particulars != "Opening balance carried from Session 2024-25" {
		t.Fatalf("opening particulars mismatch: %q", opening.Particulars)
	}
	if got := f.countOfType(t, "stu-2", currentSession.ID, ledger.ReferenceOpeningBalance); got != 0 {
		t.Fatalf("credit balances must not be carried, got %d", got)
	}

	if _, err := f.operator.CarryForwardDues(ctx, previousSession.ID, previousSession.StartsOn); !errors.Is(err, catalog.ErrNoPreviousSession) {
		t.Fatalf("expected no previous session error, got %v", err)
	}
}

func TestOperator_CarriedBalanceFollowsSourceSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addStudent(t, catalog.StudentProfile{StudentID: "stu-1", ClassName: "3", AdmissionFeePaid: true, IsActive: true})
	f.seedEntry(t, ledger.NewDebit("stu-1", previousSession.ID, previousSession.StartsOn, decimal.NewFromInt(6000),
		ledger.ReferenceFeeCharge, "", "Tuition fee 2024-25"))
	manager := f.manager(t)

	paid, err := manager.Create(ctx, receipts.Receipt{
		ReceiptNumber: "R1",
		StudentID:     "stu-1",
		SessionID:     previousSession.ID,
		ReceiptDate:   time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
		NetAmount:     decimal.NewFromInt(4000),
	}, nil)
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}
	if _, err := f.operator.CarryForwardDues(ctx, currentSession.ID, currentSession.StartsOn); err != nil {
		t.Fatalf("carry forward: %v", err)
	}
	f.seedEntry(t, ledger.NewDebit("stu-1", currentSession.ID, time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC),
		decimal.NewFromInt(1000), ledger.ReferenceAdjustment, "", "Late fee"))
	if got := f.balance(t, "stu-1", currentSession.ID); !got.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("balance after carry mismatch: got=%s want=3000", got)
	}

	if _, err := manager.Cancel(ctx, paid.ID, "cheque bounced"); err != nil {
		t.Fatalf("cancel receipt: %v", err)
	}
	if got := f.balance(t, "stu-1", previousSession.ID); !got.Equal(decimal.NewFromInt(6000)) {
		t.Fatalf("old session balance mismatch: got=%s want=6000", got)
	}
	if got := f.balance(t, "stu-1", currentSession.ID); !got.Equal(decimal.NewFromInt(7000)) {
		t.Fatalf("new session balance after cancel mismatch: got=%s want=7000", got)
	}
	openings := f.entriesOfType(t, "stu-1", currentSession.ID, ledger.ReferenceOpeningBalance)
	if len(openings) != 1 || !openings[0].Amount().Equal(decimal.NewFromInt(6000)) || openings[0].ReferenceID != previousSession.ID {
		t.Fatalf("carried opening not re-derived: %+v", openings)
	}

	if _, err := manager.Create(ctx, receipts.Receipt{
		ReceiptNumber: "R2",
		StudentID:     "stu-1",
		SessionID:     previousSession.ID,
		ReceiptDate:   time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC),
		NetAmount:     decimal.NewFromInt(6000),
	}, nil); err != nil {
		t.Fatalf("create settling receipt: %v", err)
	}
	if got := f.countOfType(t, "stu-1", currentSession.ID, ledger.ReferenceOpeningBalance); got != 0 {
		t.Fatalf("settled source must remove the carried opening, got %d", got)
	}
	if got := f.balance(t, "stu-1", currentSession.ID); !got.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("new session balance after settlement mismatch: got=%s want=1000", got)
	}
}

func TestOperator_AdjustedOpeningNoLongerFollowsSource(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addStudent(t, catalog.StudentProfile{StudentID: "stu-1", ClassName: "3", AdmissionFeePaid: true, IsActive: true})
	f.seedEntry(t, ledger.NewDebit("stu-1", previousSession.ID, previousSession.StartsOn, decimal.NewFromInt(6000),
		ledger.ReferenceFeeCharge, "", "Tuition fee 2024-25"))
	manager := f.manager(t)

	paid, err := manager.Create(ctx, receipts.Receipt{
		ReceiptNumber: "R1",
		StudentID:     "stu-1",
		SessionID:     previousSession.ID,
		ReceiptDate:   time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
		NetAmount:     decimal.NewFromInt(4000),
	}, nil)
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}
	if _, err := f.operator.CarryForwardDues(ctx, currentSession.ID, currentSession.StartsOn); err != nil {
		t.Fatalf("carry forward: %v", err)
	}
	if _, err := f.operator.AdjustOpeningBalance(ctx, "stu-1", currentSession.ID, decimal.NewFromInt(500)); err != nil {
		t.Fatalf("adjust opening: %v", err)
	}
	if _, err := manager.Cancel(ctx, paid.ID, "duplicate"); err != nil {
		t.Fatalf("cancel receipt: %v", err)
	}

	openings := f.entriesOfType(t, "stu-1", currentSession.ID, ledger.ReferenceOpeningBalance)
	if len(openings) != 1 || !openings[0].Amount().Equal(decimal.NewFromInt(500)) || openings[0].ReferenceID != "" {
		t.Fatalf("manual opening must keep its amount: %+v", openings)
	}
	if got := f.balance(t, "stu-1", currentSession.ID); !got.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("balance mismatch: got=%s want=500", got)
	}
}

func TestOperator_ConcurrentRunsApplyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addStudent(t, catalog.StudentProfile{StudentID: "stu-1", ClassName: "3", AdmissionFeePaid: true, IsActive: true})
	f.addStudent(t, catalog.StudentProfile{StudentID: "stu-2", ClassName: "3", IsActive: true})
	f.seedEntry(t, ledger.NewDebit("stu-1", previousSession.ID, previousSession.StartsOn, decimal.NewFromInt(1500),
		ledger.ReferenceFeeCharge, "", "Tuition"))
	f.seedEntry(t, ledger.NewDebit("stu-2", previousSession.ID, previousSession.StartsOn, decimal.NewFromInt(700),
		ledger.ReferenceFeeCharge, "", "Tuition"))

	const workers = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		charged int
		carried int
	)
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			result, err := f.operator.AddSessionFeesForAllStudents(ctx, currentSession)
			if err != nil {
				t.Errorf("charge all: %v", err)
				return
			}
			mu.Lock()
			charged += result.Charged
			mu.Unlock()
		}()
		go func() {
			defer wg.Done()
			result, err := f.operator.CarryForwardDues(ctx, currentSession.ID, currentSession.StartsOn)
			if err != nil {
				t.Errorf("carry forward: %v", err)
				return
			}
			mu.Lock()
			carried += result.Carried
			mu.Unlock()
		}()
	}
	wg.Wait()

	if charged != 2 || carried != 2 {
		t.Fatalf("each student must be charged and carried once: charged=%d carried=%d", charged, carried)
	}
	wantCharges := map[string]int{"stu-1": 1, "stu-2": 2}
	for studentID, want := range wantCharges {
		if got := f.countOfType(t, studentID, currentSession.ID, ledger.ReferenceFeeCharge); got != want {
			t.Fatalf("%s fee charges mismatch: got=%d want=%d", studentID, got, want)
		}
		if got := f.countOfType(t, studentID, currentSession.ID, ledger.ReferenceOpeningBalance); got != 1 {
			t.Fatalf("%s opening balances mismatch: got=%d want=1", studentID, got)
		}
	}
	if got := f.balance(t, "stu-1", currentSession.ID); !got.Equal(decimal.NewFromInt(7500)) {
		t.Fatalf("stu-1 balance mismatch: got=%s want=7500", got)
	}
	if got := f.balance(t, "stu-2", currentSession.ID); !got.Equal(decimal.NewFromInt(8700)) {
		t.Fatalf("stu-2 balance mismatch: got=%s want=8700", got)
	}
}

func TestOperator_AdjustOpeningBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.operator.AdjustOpeningBalance(ctx, "stu-9", currentSession.ID, decimal.NewFromInt(2500))
	if err != nil {
		t.Fatalf("adjust opening: %v", err)
	}
	if !created.Previous.IsZero() || !created.Current.Equal(decimal.NewFromInt(2500)) {
		t.Fatalf("unexpected create result: %+v", created)
	}
	f.seedEntry(t, ledger.NewCredit("stu-9", currentSession.ID, time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC),
		decimal.NewFromInt(500), ledger.ReferenceReceipt, "r-9", "Receipt #9"))

	updated, err := f.operator.AdjustOpeningBalance(ctx, "stu-9", currentSession.ID, decimal.NewFromInt(1000))
	if err != nil {
		t.Fatalf("adjust opening again: %v", err)
	}
	if !updated.Previous.Equal(decimal.NewFromInt(2500)) {
		t.Fatalf("previous mismatch: got=%s want=2500", updated.Previous)
	}
	if got := f.balance(t, "stu-9", currentSession.ID); !got.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("balance after adjust mismatch: got=%s want=500", got)
	}

	removed, err := f.operator.AdjustOpeningBalance(ctx, "stu-9", currentSession.ID, decimal.Zero)
	if err != nil {
		t.Fatalf("remove opening: %v", err)
	}
	if !removed.Removed {
		t.Fatalf("expected removal")
	}
	if got := f.countOfType(t, "stu-9", currentSession.ID, ledger.ReferenceOpeningBalance); got != 0 {
		t.Fatalf("opening balance must be deleted, got %d", got)
	}
	if got := f.balance(t, "stu-9", currentSession.ID); !got.Equal(decimal.NewFromInt(-500)) {
		t.Fatalf("balance after removal mismatch: got=%s want=-500", got)
	}

	if _, err := f.operator.AdjustOpeningBalance(ctx, "stu-9", currentSession.ID, decimal.NewFromInt(-1)); !errors.Is(err, ledger.ErrNegativeAmount) {
		t.Fatalf("expected negative amount error, got %v", err)
	}
	if _, err := f.operator.AdjustOpeningBalance(ctx, "stu-9", "missing", decimal.NewFromInt(10)); !errors.Is(err, catalog.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

func TestOperator_CopyFeeStructures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	next := catalog.Session{ID: "2026-27", StartsOn: time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)}
	if err := f.uow.Sessions().Save(ctx, next); err != nil {
		t.Fatalf("save session: %v", err)
	}

	first, err := f.operator.CopyFeeStructures(ctx, currentSession.ID, next.ID)
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if first.Copied != 2 || first.Skipped {
		t.Fatalf("unexpected copy result: %+v", first)
	}
	second, err := f.operator.CopyFeeStructures(ctx, currentSession.ID, next.ID)
	if err != nil {
		t.Fatalf("copy again: %v", err)
	}
	if !second.Skipped || second.Copied != 0 {
		t.Fatalf("second copy must be a no-op: %+v", second)
	}
	count, err := f.uow.FeeStructures().CountBySession(ctx, next.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("target rule count mismatch: got=%d want=2", count)
	}
	if _, err := f.operator.CopyFeeStructures(ctx, next.ID, next.ID); !errors.Is(err, rolloverapp.ErrSameSession) {
		t.Fatalf("expected same session error, got %v", err)
	}
}

func TestOperator_DryRunRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addStudent(t, catalog.StudentProfile{StudentID: "stu-1", ClassName: "3", AdmissionFeePaid: true, IsActive: true})

	result, err := f.operator.DryRun().AddSessionFeesForAllStudents(ctx, currentSession)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if result.Charged != 1 || !result.Total.Equal(decimal.NewFromInt(6000)) {
		t.Fatalf("dry run must report what would be charged: %+v", result)
	}
	if got := f.countOfType(t, "stu-1", currentSession.ID, ledger.ReferenceFeeCharge); got != 0 {
		t.Fatalf("dry run must not persist entries, got %d", got)
	}

	applied, err := f.operator.AddSessionFeesForAllStudents(ctx, currentSession)
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if applied.Charged != 1 {
		t.Fatalf("charge after dry run mismatch: %+v", applied)
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	uow := memory.New()
	for _, s := range []catalog.Session{previousSession, currentSession} {
		if err := uow.Sessions().Save(ctx, s); err != nil {
			t.Fatalf("save session: %v", err)
		}
	}
	for _, rule := range []catalog.FeeStructureRule{
		{SessionID: currentSession.ID, ClassName: "3", FeeType: catalog.FeeTypeMonthly, Amount: decimal.NewFromInt(500), IsActive: true},
		{SessionID: currentSession.ID, ClassName: "3", FeeType: catalog.FeeTypeAdmission, Amount: decimal.NewFromInt(2000), IsActive: true},
	} {
		if err := uow.FeeStructures().Save(ctx, rule); err != nil {
			t.Fatalf("save rule: %v", err)
		}
	}

	calc, err := duesapp.NewCalculator(uow, dues.DefaultPolicy())
	if err != nil {
		t.Fatalf("new calculator: %v", err)
	}
	clock := fixedClock{now: time.Date(2025, time.April, 2, 8, 0, 0, 0, time.UTC)}
	operator, err := rolloverapp.NewOperator(uow, calc, clock, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new operator: %v", err)
	}
	return &fixture{uow: uow, calculator: calc, operator: operator, clock: clock}
}

func (f *fixture) addStudent(t *testing.T, profile catalog.StudentProfile) {
	t.Helper()
	if err := f.uow.Students().Save(profile); err != nil {
		t.Fatalf("save student: %v", err)
	}
}

func (f *fixture) manager(t *testing.T) *receiptapp.Manager {
	t.Helper()
	manager, err := receiptapp.NewManager(f.uow, f.clock, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return manager
}

func (f *fixture) seedEntry(t *testing.T, entry ledger.Entry) {
	t.Helper()
	err := f.uow.Do(context.Background(), func(ctx context.Context, repos unitofwork.Repositories) error {
		store, err := ledgerapp.NewStore(repos.Entries, f.clock)
		if err != nil {
			return err
		}
		if _, err := store.Insert(ctx, &entry); err != nil {
			return err
		}
		_, err = store.Recompute(ctx, entry.StudentID)
		return err
	})
	if err != nil {
		t.Fatalf("seed entry: %v", err)
	}
}

func (f *fixture) balance(t *testing.T, studentID, sessionID string) decimal.Decimal {
	t.Helper()
	var balance decimal.Decimal
	err := f.uow.View(context.Background(), func(ctx context.Context, repos unitofwork.Repositories) error {
		store, err := ledgerapp.NewStore(repos.Entries, nil)
		if err != nil {
			return err
		}
		balance, err = store.CurrentBalance(ctx, studentID, sessionID)
		return err
	})
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

func (f *fixture) entriesOfType(t *testing.T, studentID, sessionID string, ref ledger.ReferenceType) []ledger.Entry {
	t.Helper()
	var entries []ledger.Entry
	err := f.uow.View(context.Background(), func(ctx context.Context, repos unitofwork.Repositories) error {
		store, err := ledgerapp.NewStore(repos.Entries, nil)
		if err != nil {
			return err
		}
		entries, err = store.EntriesOfType(ctx, studentID, sessionID, ref)
		return err
	})
	if err != nil {
		t.Fatalf("entries of type: %v", err)
	}
	return entries
}

func (f *fixture) countOfType(t *testing.T, studentID, sessionID string, ref ledger.ReferenceType) int {
	t.Helper()
	return len(f.entriesOfType(t, studentID, sessionID, ref))
}
