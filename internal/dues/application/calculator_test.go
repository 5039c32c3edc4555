package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	catalog "feeledger/internal/catalog/domain"
	duesapp "feeledger/internal/dues/application"
	dues "feeledger/internal/dues/domain"
	ledgerapp "feeledger/internal/ledger/application"
	ledger "feeledger/internal/ledger/domain"
	"feeledger/internal/unitofwork"
	"feeledger/internal/unitofwork/memory"
)

var session = catalog.Session{
	ID:       "2025-26",
	Name:     "2025-26",
	StartsOn: time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
	EndsOn:   time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC),
}

func TestCalculator_ExpectedDuesSubtractsActiveCredits(t *testing.T) {
	ctx := context.Background()
	uow := memory.New()
	seedCatalog(t, uow)
	calc := newCalculator(t, uow)

	due, err := calc.ExpectedSessionDues(ctx, "stu-1", session)
	if err != nil {
		t.Fatalf("expected dues: %v", err)
	}
	if !due.Equal(decimal.NewFromInt(8200)) {
		t.Fatalf("dues mismatch: got=%s want=8200", due)
	}

	err = uow.Do(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		store, err := ledgerapp.NewStore(repos.Entries, nil)
		if err != nil {
			return err
		}
		date := time.Date(2025, time.May, 3, 0, 0, 0, 0, time.UTC)
		payment := ledger.NewCredit("stu-1", session.ID, date, decimal.NewFromInt(3000), ledger.ReferenceReceipt, "r-1", "Receipt #1")
		discount := ledger.NewCredit("stu-1", session.ID, date, decimal.NewFromInt(200), ledger.ReferenceDiscount, "r-1", "Discount on receipt #1")
		cancelled := ledger.NewCredit("stu-1", session.ID, date, decimal.NewFromInt(5000), ledger.ReferenceReceipt, "r-2", "Receipt #2")
		for _, e := range []*ledger.Entry{&payment, &discount, &cancelled} {
			if _, err := store.Insert(ctx, e); err != nil {
				return err
			}
		}
		if _, err := store.Reverse(ctx, "r-2"); err != nil {
			return err
		}
		_, err = store.Recompute(ctx, "stu-1")
		return err
	})
	if err != nil {
		t.Fatalf("seed credits: %v", err)
	}

	b, err := calc.Breakdown(ctx, "stu-1", session)
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	if !b.Paid.Equal(decimal.NewFromInt(3200)) {
		t.Fatalf("paid mismatch: got=%s want=3200", b.Paid)
	}
	if !b.Outstanding.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("outstanding mismatch: got=%s want=5000", b.Outstanding)
	}
	if len(b.TransportMonths) != 11 {
		t.Fatalf("expected 11 transport months, got %d", len(b.TransportMonths))
	}
}

func TestCalculator_EstimatesTransportFromCurrentRate(t *testing.T) {
	ctx := context.Background()
	uow := memory.New()
	seedCatalog(t, uow)
	if err := uow.Students().Save(catalog.StudentProfile{
		StudentID: "stu-2", ClassName: "7", HasTransport: true, TransportRouteID: "route-a",
		AdmissionFeePaid: true, IsActive: true,
	}); err != nil {
		t.Fatalf("save student: %v", err)
	}
	calc := newCalculator(t, uow)

	b, err := calc.Breakdown(ctx, "stu-2", session)
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	if !b.TransportEstimated || !b.Transport.Equal(decimal.NewFromInt(3300)) {
		t.Fatalf("estimate mismatch: estimated=%t transport=%s", b.TransportEstimated, b.Transport)
	}
}

func TestCalculator_IgnoresEnrollmentsOutsideSession(t *testing.T) {
	ctx := context.Background()
	uow := memory.New()
	seedCatalog(t, uow)
	if err := uow.Students().Save(catalog.StudentProfile{
		StudentID: "stu-3", ClassName: "7", HasTransport: true, TransportRouteID: "route-a",
		AdmissionFeePaid: true, IsActive: true,
	}); err != nil {
		t.Fatalf("save student: %v", err)
	}
	oldEnd := time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC)
	if err := uow.Transport().SaveEnrollment(ctx, catalog.TransportEnrollment{
		ID: "enr-old", StudentID: "stu-3", RouteID: "route-a",
		StartDate: time.Date(2023, time.April, 1, 0, 0, 0, 0, time.UTC), EndDate: &oldEnd,
		MonthlyFeeAtEnrollment: decimal.NewFromInt(150),
	}); err != nil {
		t.Fatalf("save enrollment: %v", err)
	}
	calc := newCalculator(t, uow)

	b, err := calc.Breakdown(ctx, "stu-3", session)
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	if !b.TransportEstimated || !b.Transport.Equal(decimal.NewFromInt(3300)) {
		t.Fatalf("estimate mismatch: estimated=%t transport=%s", b.TransportEstimated, b.Transport)
	}
}

func TestCalculator_Errors(t *testing.T) {
	ctx := context.Background()
	uow := memory.New()
	calc := newCalculator(t, uow)

	if _, err := calc.ExpectedSessionDues(ctx, "", session); !errors.Is(err, catalog.ErrEmptyStudentID) {
		t.Fatalf("expected empty student error, got %v", err)
	}
	if _, err := calc.ExpectedSessionDues(ctx, "stu-1", catalog.Session{ID: "x"}); !errors.Is(err, catalog.ErrInvalidSession) {
		t.Fatalf("expected invalid session error, got %v", err)
	}
	if _, err := calc.ExpectedSessionDues(ctx, "ghost", session); !errors.Is(err, catalog.ErrStudentNotFound) {
		t.Fatalf("expected student not found, got %v", err)
	}
	if _, err := duesapp.NewCalculator(uow, dues.Policy{TransportFreeMonth: 13}); err == nil {
		t.Fatalf("expected invalid policy to be rejected")
	}
}

func newCalculator(t *testing.T, uow unitofwork.UnitOfWork) *duesapp.Calculator {
	t.Helper()
	calc, err := duesapp.NewCalculator(uow, dues.DefaultPolicy())
	if err != nil {
		t.Fatalf("new calculator: %v", err)
	}
	return calc
}

// seedCatalog registers stu-1 in class 4 riding route-a all year at 200 a
// month on top of 500 monthly tuition.
func seedCatalog(t *testing.T, uow *memory.UnitOfWork) {
	t.Helper()
	ctx := context.Background()
	if err := uow.Sessions().Save(ctx, session); err != nil {
		t.Fatalf("save session: %v", err)
	}
	for _, rule := range []catalog.FeeStructureRule{
		{SessionID: session.ID, ClassName: "4", FeeType: catalog.FeeTypeMonthly, Amount: decimal.NewFromInt(500), IsActive: true},
		{SessionID: session.ID, ClassName: "7", FeeType: catalog.FeeTypeMonthly, Amount: decimal.Zero, IsActive: true},
	} {
		if err := uow.FeeStructures().Save(ctx, rule); err != nil {
			t.Fatalf("save rule: %v", err)
		}
	}
	if err := uow.Transport().SaveRoute(ctx, catalog.TransportRoute{ID: "route-a", Name: "North loop"}); err != nil {
		t.Fatalf("save route: %v", err)
	}
	if err := uow.Transport().SaveRate(ctx, catalog.TransportRate{RouteID: "route-a", ClassBand: "MIDDLE", MonthlyFee: decimal.NewFromInt(300)}); err != nil {
		t.Fatalf("save rate: %v", err)
	}
	if err := uow.Students().Save(catalog.StudentProfile{
		StudentID: "stu-1", ClassName: "4", HasTransport: true, TransportRouteID: "route-a",
		AdmissionFeePaid: true, IsActive: true,
	}); err != nil {
		t.Fatalf("save student: %v", err)
	}
	if err := uow.Transport().SaveEnrollment(ctx, catalog.TransportEnrollment{
		ID: "enr-1", StudentID: "stu-1", RouteID: "route-a", StartDate: session.StartsOn,
		MonthlyFeeAtEnrollment: decimal.NewFromInt(200),
	}); err != nil {
		t.Fatalf("save enrollment: %v", err)
	}
}
