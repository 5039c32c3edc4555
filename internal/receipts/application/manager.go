package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	catalog "feeledger/internal/catalog/domain"
	ledgerapp "feeledger/internal/ledger/application"
	ledger "feeledger/internal/ledger/domain"
	"feeledger/internal/observability/metrics"
	receipts "feeledger/internal/receipts/domain"
	"feeledger/internal/unitofwork"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// EditResult reports what an edit replaced.
type EditResult struct {
	Receipt           receipts.Receipt
	PreviousNetAmount decimal.Decimal
	PreviousDiscount  decimal.Decimal
	Recomputed        bool
}

// Manager creates, edits and cancels receipts. Every operation runs in one
// unit of work so the receipt row, its ledger entries and the recomputed
// balances commit together.
type Manager struct {
	uow    unitofwork.UnitOfWork
	clock  Clock
	logger *log.Logger
}

// NewManager constructs a receipt manager.
func NewManager(uow unitofwork.UnitOfWork, clock Clock, logger *log.Logger) (*Manager, error) {
	if uow == nil {
		return nil, errors.New("receipt manager: nil unit of work")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{uow: uow, clock: clock, logger: logger}, nil
}

// Create persists a receipt with its items and projects it into the ledger:
// one credit for the net amount and one for the discount when granted.
func (m *Manager) Create(ctx context.Context, receipt receipts.Receipt, items []receipts.Item) (_ *receipts.Receipt, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveReceiptOp(metrics.OpCreate, resultOf(err), time.Since(start))
	}()

	receipt.Normalize()
	if err := receipt.Validate(); err != nil {
		return nil, err
	}
	now := m.clock.Now().UTC()
	if receipt.ID == "" {
		receipt.ID = uuid.NewString()
	}
	receipt.IsCancelled = false
	receipt.CancelledAt = nil
	receipt.CancellationReason = ""
	receipt.CreatedAt = now
	receipt.UpdatedAt = now

	err = m.uow.Do(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		student, err := repos.Students.Get(ctx, receipt.StudentID)
		if err != nil {
			return fmt.Errorf("receipt manager: load student: %w", err)
		}
		if student == nil {
			return fmt.Errorf("%w: %s", catalog.ErrStudentNotFound, receipt.StudentID)
		}
		session, err := repos.Sessions.Get(ctx, receipt.SessionID)
		if err != nil {
			return fmt.Errorf("receipt manager: load session: %w", err)
		}
		if session == nil {
			return fmt.Errorf("%w: %s", catalog.ErrSessionNotFound, receipt.SessionID)
		}
		existing, err := repos.Receipts.FindByNumber(ctx, receipt.ReceiptNumber)
		if err != nil {
			return fmt.Errorf("receipt manager: find number: %w", err)
		}
		if existing != nil {
			return receipts.ErrDuplicateReceiptNumber
		}
		if err := repos.Receipts.Insert(ctx, receipt); err != nil {
			return err
		}
		if err := repos.Receipts.ReplaceItems(ctx, receipt.ID, receipts.NormalizeItems(receipt.ID, items)); err != nil {
			return fmt.Errorf("receipt manager: items: %w", err)
		}

		store, err := ledgerapp.NewStore(repos.Entries, m.clock)
		if err != nil {
			return err
		}
		payment := ledger.NewCredit(receipt.StudentID, receipt.SessionID, receipt.ReceiptDate, receipt.NetAmount,
			ledger.ReferenceReceipt, receipt.ID, receipt.Particulars())
		if _, err := store.Insert(ctx, &payment); err != nil {
			return err
		}
		if receipt.HasDiscount() {
			discount := ledger.NewCredit(receipt.StudentID, receipt.SessionID, receipt.ReceiptDate, receipt.DiscountAmount,
				ledger.ReferenceDiscount, receipt.ID, receipt.DiscountParticulars())
			if _, err := store.Insert(ctx, &discount); err != nil {
				return err
			}
		}
		if _, err := store.Recompute(ctx, receipt.StudentID); err != nil {
			return err
		}
		return repos.Receipts.SetLastNumber(ctx, receipt.ReceiptNumber)
	})
	if err != nil {
		return nil, err
	}
	m.logger.Printf("receipt created: number=%s student=%s net=%s discount=%s",
		receipt.ReceiptNumber, receipt.StudentID, receipt.NetAmount.StringFixed(2), receipt.DiscountAmount.StringFixed(2))
	return &receipt, nil
}

// Cancel marks a receipt cancelled, flags its credits reversed and offsets
// each one with a debit dated at cancellation time.
func (m *Manager) Cancel(ctx context.Context, receiptID, reason string) (_ *receipts.Receipt, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveReceiptOp(metrics.OpCancel, resultOf(err), time.Since(start))
	}()

	if receiptID == "" {
		return nil, receipts.ErrEmptyReceiptID
	}
	var cancelled receipts.Receipt
	var reversals int
	err = m.uow.Do(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		receipt, err := repos.Receipts.Get(ctx, receiptID)
		if err != nil {
			return fmt.Errorf("receipt manager: load: %w", err)
		}
		if receipt == nil {
			return receipts.ErrReceiptNotFound
		}
		if receipt.IsCancelled {
			return receipts.ErrReceiptAlreadyCancelled
		}

		now := m.clock.Now().UTC()
		receipt.IsCancelled = true
		receipt.CancelledAt = &now
		receipt.CancellationReason = reason
		receipt.UpdatedAt = now
		if err := repos.Receipts.Update(ctx, *receipt); err != nil {
			return err
		}

		store, err := ledgerapp.NewStore(repos.Entries, m.clock)
		if err != nil {
			return err
		}
		reversed, err := store.Reverse(ctx, receipt.ID)
		if err != nil {
			return err
		}
		for _, original := range reversed {
			if err := insertReversal(ctx, store, original, receipt.ID, now); err != nil {
				return err
			}
		}
		if _, err := store.Recompute(ctx, receipt.StudentID); err != nil {
			return err
		}
		cancelled = *receipt
		reversals = len(reversed)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Printf("receipt cancelled: number=%s student=%s reversals=%d reason=%q",
		cancelled.ReceiptNumber, cancelled.StudentID, reversals, reason)
	return &cancelled, nil
}

// Edit rewrites an active receipt. Amount or date changes rewrite the ledger
// entries and recompute; remarks, mode, number and item changes only touch
// entry descriptions.
func (m *Manager) Edit(ctx context.Context, receipt receipts.Receipt, items []receipts.Item) (_ EditResult, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveReceiptOp(metrics.OpEdit, resultOf(err), time.Since(start))
	}()

	if receipt.ID == "" {
		return EditResult{}, receipts.ErrEmptyReceiptID
	}
	receipt.Normalize()
	if err := receipt.Validate(); err != nil {
		return EditResult{}, err
	}

	var result EditResult
	err = m.uow.Do(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		current, err := repos.Receipts.Get(ctx, receipt.ID)
		if err != nil {
			return fmt.Errorf("receipt manager: load: %w", err)
		}
		if current == nil {
			return receipts.ErrReceiptNotFound
		}
		if current.IsCancelled {
			return receipts.ErrReceiptCancelled
		}
		if current.StudentID != receipt.StudentID || current.SessionID != receipt.SessionID {
			return receipts.ErrStudentChanged
		}
		if current.ReceiptNumber != receipt.ReceiptNumber {
			other, err := repos.Receipts.FindByNumber(ctx, receipt.ReceiptNumber)
			if err != nil {
				return fmt.Errorf("receipt manager: find number: %w", err)
			}
			if other != nil && other.ID != receipt.ID {
				return receipts.ErrDuplicateReceiptNumber
			}
		}

		store, err := ledgerapp.NewStore(repos.Entries, m.clock)
		if err != nil {
			return err
		}
		entries, err := store.EntriesForReference(ctx, receipt.ID)
		if err != nil {
			return err
		}
		payment, discount := activeCredits(entries)
		if payment == nil {
			return ledger.ErrNoEntriesForReference
		}

		now := m.clock.Now().UTC()
		amountsChanged := !current.NetAmount.Equal(receipt.NetAmount) ||
			!current.DiscountAmount.Equal(receipt.DiscountAmount) ||
			!current.ReceiptDate.Equal(receipt.ReceiptDate)

		payment.EntryDate = receipt.ReceiptDate
		payment.Particulars = receipt.Particulars()
		payment.SetAmount(receipt.NetAmount)
		if err := store.Update(ctx, *payment); err != nil {
			return err
		}

		switch {
		case discount != nil && receipt.HasDiscount():
			discount.EntryDate = receipt.ReceiptDate
			discount.Particulars = receipt.DiscountParticulars()
			discount.SetAmount(receipt.DiscountAmount)
			if err := store.Update(ctx, *discount); err != nil {
				return err
			}
		case discount == nil && receipt.HasDiscount():
			entry := ledger.NewCredit(receipt.StudentID, receipt.SessionID, receipt.ReceiptDate, receipt.DiscountAmount,
				ledger.ReferenceDiscount, receipt.ID, receipt.DiscountParticulars())
			if _, err := store.Insert(ctx, &entry); err != nil {
				return err
			}
		case discount != nil && !receipt.HasDiscount():
			reversed, err := store.ReverseEntry(ctx, *discount)
			if err != nil {
				return err
			}
			if err := insertReversal(ctx, store, reversed, receipt.ID, now); err != nil {
				return err
			}
		}

		receipt.IsCancelled = false
		receipt.CancelledAt = nil
		receipt.CancellationReason = ""
		receipt.CreatedAt = current.CreatedAt
		receipt.UpdatedAt = now
		if err := repos.Receipts.Update(ctx, receipt); err != nil {
			return err
		}
		if err := repos.Receipts.ReplaceItems(ctx, receipt.ID, receipts.NormalizeItems(receipt.ID, items)); err != nil {
			return fmt.Errorf("receipt manager: items: %w", err)
		}

		if amountsChanged {
			if _, err := store.Recompute(ctx, receipt.StudentID); err != nil {
				return err
			}
		}
		result = EditResult{
			Receipt:           receipt,
			PreviousNetAmount: current.NetAmount,
			PreviousDiscount:  current.DiscountAmount,
			Recomputed:        amountsChanged,
		}
		return nil
	})
	if err != nil {
		return EditResult{}, err
	}
	m.logger.Printf("receipt edited: number=%s student=%s net=%s->%s discount=%s->%s recomputed=%t",
		receipt.ReceiptNumber, receipt.StudentID,
		result.PreviousNetAmount.StringFixed(2), receipt.NetAmount.StringFixed(2),
		result.PreviousDiscount.StringFixed(2), receipt.DiscountAmount.StringFixed(2), result.Recomputed)
	return result, nil
}

// Get returns a receipt with its items.
func (m *Manager) Get(ctx context.Context, receiptID string) (*receipts.Receipt, []receipts.Item, error) {
	if receiptID == "" {
		return nil, nil, receipts.ErrEmptyReceiptID
	}
	var receipt *receipts.Receipt
	var items []receipts.Item
	err := m.uow.View(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		var err error
		receipt, err = repos.Receipts.Get(ctx, receiptID)
		if err != nil {
			return err
		}
		if receipt == nil {
			return receipts.ErrReceiptNotFound
		}
		items, err = repos.Receipts.ListItems(ctx, receiptID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return receipt, items, nil
}

// ListForStudent returns every receipt of a student, cancelled ones included.
func (m *Manager) ListForStudent(ctx context.Context, studentID string) ([]receipts.Receipt, error) {
	if studentID == "" {
		return nil, receipts.ErrEmptyStudentID
	}
	var result []receipts.Receipt
	err := m.uow.View(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		var err error
		result, err = repos.Receipts.ListByStudent(ctx, studentID)
		return err
	})
	return result, err
}

// SuggestNextReceiptNumber proposes a number for the next receipt. It is a
// hint only; callers always supply the number they use.
func (m *Manager) SuggestNextReceiptNumber(ctx context.Context) (string, error) {
	var last string
	err := m.uow.View(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		var err error
		last, err = repos.Receipts.LastNumber(ctx)
		return err
	})
	if err != nil {
		return "", err
	}
	return receipts.SuggestNext(last), nil
}

func activeCredits(entries []ledger.Entry) (payment, discount *ledger.Entry) {
	for i := range entries {
		entry := entries[i]
		if !entry.IsCredit() || entry.IsReversed {
			continue
		}
		switch entry.ReferenceType {
		case ledger.ReferenceReceipt:
			if payment == nil {
				payment = &entry
			}
		case ledger.ReferenceDiscount:
			if discount == nil {
				discount = &entry
			}
		}
	}
	return payment, discount
}

func insertReversal(ctx context.Context, store *ledgerapp.Store, original ledger.Entry, receiptID string, at time.Time) error {
	reversal := ledger.NewDebit(original.StudentID, original.SessionID, at, original.Amount(),
		ledger.ReferenceReversal, receiptID, "Reversal of "+original.Particulars)
	_, err := store.Insert(ctx, &reversal)
	return err
}

func resultOf(err error) string {
	if err != nil {
		return metrics.ResultError
	}
	return metrics.ResultSuccess
}
