package receipts

import "errors"

var (
	// ErrNilReceipt is returned when receipt is nil.
	ErrNilReceipt = errors.New("receipts: nil receipt")
	// ErrEmptyReceiptID is returned when receipt id is empty.
	ErrEmptyReceiptID = errors.New("receipts: empty receipt id")
	// ErrEmptyReceiptNumber is returned when receipt number is empty.
	ErrEmptyReceiptNumber = errors.New("receipts: empty receipt number")
	// ErrEmptyStudentID is returned when student id is empty.
	ErrEmptyStudentID = errors.New("receipts: empty student id")
	// ErrEmptySessionID is returned when session id is empty.
	ErrEmptySessionID = errors.New("receipts: empty session id")
	// ErrInvalidReceiptDate is returned when receipt date is zero.
	ErrInvalidReceiptDate = errors.New("receipts: invalid receipt date")
	// ErrInvalidAmount is returned when amounts are non-positive or inconsistent.
	ErrInvalidAmount = errors.New("receipts: invalid amount")
	// ErrInvalidPaymentMode is returned for an unknown payment mode.
	ErrInvalidPaymentMode = errors.New("receipts: invalid payment mode")
	// ErrDuplicateReceiptNumber is returned when the receipt number is taken.
	ErrDuplicateReceiptNumber = errors.New("receipts: duplicate receipt number")
	// ErrReceiptNotFound is returned when a receipt does not exist.
	ErrReceiptNotFound = errors.New("receipts: receipt not found")
	// ErrReceiptAlreadyCancelled is returned when cancelling a cancelled receipt.
	ErrReceiptAlreadyCancelled = errors.New("receipts: receipt already cancelled")
	// ErrReceiptCancelled is returned when editing a cancelled receipt.
	ErrReceiptCancelled = errors.New("receipts: receipt is cancelled")
	// ErrStudentChanged is returned when an edit moves a receipt to another timeline.
	ErrStudentChanged = errors.New("receipts: student or session cannot change")
)
