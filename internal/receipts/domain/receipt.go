package receipts

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMode is how the money was received.
type PaymentMode string

const (
	PaymentCash         PaymentMode = "CASH"
	PaymentCheque       PaymentMode = "CHEQUE"
	PaymentOnline       PaymentMode = "ONLINE"
	PaymentUPI          PaymentMode = "UPI"
	PaymentBankTransfer PaymentMode = "BANK_TRANSFER"
)

// Valid reports whether the payment mode is known.
func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentCash, PaymentCheque, PaymentOnline, PaymentUPI, PaymentBankTransfer:
		return true
	}
	return false
}

// Receipt is the payer-facing record of a payment.
type Receipt struct {
	ID                 string
	ReceiptNumber      string
	StudentID          string
	SessionID          string
	ReceiptDate        time.Time
	TotalAmount        decimal.Decimal
	DiscountAmount     decimal.Decimal
	NetAmount          decimal.Decimal
	PaymentMode        PaymentMode
	Remarks            string
	IsCancelled        bool
	CancelledAt        *time.Time
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Item is an informational line of a receipt.
type Item struct {
	ReceiptID   string
	Position    int
	Description string
	Amount      decimal.Decimal
}

// Normalize fills the total from net and discount when it is zero and
// defaults the payment mode to cash.
func (r *Receipt) Normalize() {
	if r == nil {
		return
	}
	r.ReceiptNumber = strings.TrimSpace(r.ReceiptNumber)
	if r.TotalAmount.IsZero() {
		r.TotalAmount = r.NetAmount.Add(r.DiscountAmount)
	}
	if r.PaymentMode == "" {
		r.PaymentMode = PaymentCash
	}
}

// Validate checks receipt invariants.
func (r *Receipt) Validate() error {
	if r == nil {
		return ErrNilReceipt
	}
	if r.ReceiptNumber == "" {
		return ErrEmptyReceiptNumber
	}
	if r.StudentID == "" {
		return ErrEmptyStudentID
	}
	if r.SessionID == "" {
		return ErrEmptySessionID
	}
	if r.ReceiptDate.IsZero() {
		return ErrInvalidReceiptDate
	}
	if !r.NetAmount.IsPositive() || r.DiscountAmount.IsNegative() {
		return ErrInvalidAmount
	}
	if !r.TotalAmount.Equal(r.NetAmount.Add(r.DiscountAmount)) {
		return ErrInvalidAmount
	}
	if !r.PaymentMode.Valid() {
		return ErrInvalidPaymentMode
	}
	return nil
}

// HasDiscount reports whether a discount was granted.
func (r Receipt) HasDiscount() bool { return r.DiscountAmount.IsPositive() }

// Particulars is the ledger description of the payment entry.
func (r Receipt) Particulars() string {
	text := "Receipt #" + r.ReceiptNumber + " (" + string(r.PaymentMode) + ")"
	if r.Remarks != "" {
		text += " - " + r.Remarks
	}
	return text
}

// DiscountParticulars is the ledger description of the discount entry.
func (r Receipt) DiscountParticulars() string {
	return "Discount on receipt #" + r.ReceiptNumber
}

// Clone returns a copy that shares no pointers with r.
func (r Receipt) Clone() Receipt {
	if r.CancelledAt != nil {
		at := *r.CancelledAt
		r.CancelledAt = &at
	}
	return r
}

// NormalizeItems assigns receipt id and positions in order.
func NormalizeItems(receiptID string, items []Item) []Item {
	out := make([]Item, 0, len(items))
	for i, item := range items {
		item.ReceiptID = receiptID
		item.Position = i + 1
		out = append(out, item)
	}
	return out
}

// SuggestNext proposes the number following last by incrementing its
// trailing digits and keeping their width. A number without trailing digits
// gets "1" appended; an empty last number suggests "1".
func SuggestNext(last string) string {
	last = strings.TrimSpace(last)
	if last == "" {
		return "1"
	}
	end := len(last)
	start := end
	for start > 0 && last[start-1] >= '0' && last[start-1] <= '9' {
		start--
	}
	if start == end {
		return last + "1"
	}
	digits := last[start:end]
	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return last + "1"
	}
	next := strconv.FormatUint(n+1, 10)
	if len(next) < len(digits) {
		next = strings.Repeat("0", len(digits)-len(next)) + next
	}
	return last[:start] + next
}
