package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	ledger "feeledger/internal/ledger/domain"
	"feeledger/internal/unitofwork"
)

func TestUnitOfWork_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	uow := New()
	boom := errors.New("recompute failed")

	err := uow.Do(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		entry := ledger.NewDebit("stu-1", "2025-26", time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
			decimal.NewFromInt(100), ledger.ReferenceFeeCharge, "", "Tuition")
		entry.ID = "e-1"
		if err := repos.Entries.Insert(ctx, &entry); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	got, err := uow.Entries().Get(ctx, "e-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("failed unit of work must not commit entries")
	}
}

func TestUnitOfWork_CommitsAndHonorsCancellation(t *testing.T) {
	uow := New()
	err := uow.Do(context.Background(), func(ctx context.Context, repos unitofwork.Repositories) error {
		return repos.Receipts.SetLastNumber(ctx, "R-0007")
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	last, _ := uow.Receipts().LastNumber(context.Background())
	if last != "R-0007" {
		t.Fatalf("commit not visible: got=%q", last)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err = uow.Do(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("cancelled context must abort before running: err=%v called=%t", err, called)
	}
}

func TestUnitOfWork_ViewDoesNotLeakWrites(t *testing.T) {
	uow := New()
	err := uow.View(context.Background(), func(ctx context.Context, repos unitofwork.Repositories) error {
		return repos.Receipts.SetLastNumber(ctx, "99")
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	last, _ := uow.Receipts().LastNumber(context.Background())
	if last != "" {
		t.Fatalf("view writes must be discarded, got %q", last)
	}
}
