package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryType marks an entry as a debit (amount owed) or credit (amount paid).
type EntryType string

const (
	EntryTypeDebit  EntryType = "DEBIT"
	EntryTypeCredit EntryType = "CREDIT"
)

// Valid reports whether the entry type is known.
func (t EntryType) Valid() bool {
	return t == EntryTypeDebit || t == EntryTypeCredit
}

// ReferenceType tags what produced an entry.
type ReferenceType string

const (
	ReferenceReceipt        ReferenceType = "RECEIPT"
	ReferenceDiscount       ReferenceType = "DISCOUNT"
	ReferenceReversal       ReferenceType = "REVERSAL"
	ReferenceAdjustment     ReferenceType = "ADJUSTMENT"
	ReferenceOpeningBalance ReferenceType = "OPENING_BALANCE"
	ReferenceFeeCharge      ReferenceType = "FEE_CHARGE"
)

// Valid reports whether the reference type is known.
func (r ReferenceType) Valid() bool {
	switch r {
	case ReferenceReceipt, ReferenceDiscount, ReferenceReversal,
		ReferenceAdjustment, ReferenceOpeningBalance, ReferenceFeeCharge:
		return true
	}
	return false
}

// Entry is one dated debit or credit on a student's session timeline.
// Balance is a cached value derived by Replay and is never authoritative.
type Entry struct {
	ID            string
	StudentID     string
	SessionID     string
	EntryDate     time.Time
	Particulars   string
	EntryType     EntryType
	DebitAmount   decimal.Decimal
	CreditAmount  decimal.Decimal
	Balance       decimal.Decimal
	ReferenceType ReferenceType
	ReferenceID   string
	IsReversed    bool
	CreatedAt     time.Time
	// Seq is assigned by the repository on insert and breaks CreatedAt ties.
	Seq int64
}

// NewDebit builds a debit entry.
func NewDebit(studentID, sessionID string, date time.Time, amount decimal.Decimal, ref ReferenceType, refID, particulars string) Entry {
	return Entry{
		StudentID:     studentID,
		SessionID:     sessionID,
		EntryDate:     date,
		Particulars:   particulars,
		EntryType:     EntryTypeDebit,
		DebitAmount:   amount,
		CreditAmount:  decimal.Zero,
		ReferenceType: ref,
		ReferenceID:   refID,
	}
}

// NewCredit builds a credit entry.
func NewCredit(studentID, sessionID string, date time.Time, amount decimal.Decimal, ref ReferenceType, refID, particulars string) Entry {
	return Entry{
		StudentID:     studentID,
		SessionID:     sessionID,
		EntryDate:     date,
		Particulars:   particulars,
		EntryType:     EntryTypeCredit,
		DebitAmount:   decimal.Zero,
		CreditAmount:  amount,
		ReferenceType: ref,
		ReferenceID:   refID,
	}
}

// Validate checks entry invariants.
func (e Entry) Validate() error {
	if e.StudentID == "" {
		return ErrEmptyStudentID
	}
	if e.SessionID == "" {
		return ErrEmptySessionID
	}
	if e.EntryDate.IsZero() {
		return ErrInvalidEntryDate
	}
	if !e.EntryType.Valid() {
		return ErrInvalidEntryType
	}
	if !e.ReferenceType.Valid() {
		return ErrInvalidReferenceType
	}
	if e.DebitAmount.IsNegative() || e.CreditAmount.IsNegative() {
		return ErrNegativeAmount
	}
	debit := e.DebitAmount.IsPositive()
	credit := e.CreditAmount.IsPositive()
	if debit == credit {
		return ErrInvalidAmount
	}
	if debit && e.EntryType != EntryTypeDebit {
		return ErrInvalidAmount
	}
	if credit && e.EntryType != EntryTypeCredit {
		return ErrInvalidAmount
	}
	return nil
}

// Amount returns the non-zero side of the entry.
func (e Entry) Amount() decimal.Decimal {
	if e.EntryType == EntryTypeDebit {
		return e.DebitAmount
	}
	return e.CreditAmount
}

// SetAmount replaces the non-zero side of the entry.
func (e *Entry) SetAmount(amount decimal.Decimal) {
	if e.EntryType == EntryTypeDebit {
		e.DebitAmount = amount
		e.CreditAmount = decimal.Zero
		return
	}
	e.CreditAmount = amount
	e.DebitAmount = decimal.Zero
}

// Delta is the entry's contribution to the running balance.
func (e Entry) Delta() decimal.Decimal {
	return e.DebitAmount.Sub(e.CreditAmount)
}

// IsCredit reports whether the entry is a credit.
func (e Entry) IsCredit() bool { return e.EntryType == EntryTypeCredit }

// StudentBalance is the latest cached balance of one timeline.
type StudentBalance struct {
	StudentID string
	SessionID string
	Balance   decimal.Decimal
}
