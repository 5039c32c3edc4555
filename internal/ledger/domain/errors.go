package ledger

import "errors"

var (
	// ErrNilEntry is returned when inserting a nil entry.
	ErrNilEntry = errors.New("ledger: nil entry")
	// ErrEmptyEntryID is returned when an entry id is required but empty.
	ErrEmptyEntryID = errors.New("ledger: empty entry id")
	// ErrEmptyStudentID is returned when student id is empty.
	ErrEmptyStudentID = errors.New("ledger: empty student id")
	// ErrEmptySessionID is returned when session id is empty.
	ErrEmptySessionID = errors.New("ledger: empty session id")
	// ErrInvalidEntryDate is returned when entry date is zero.
	ErrInvalidEntryDate = errors.New("ledger: invalid entry date")
	// ErrInvalidEntryType is returned for an unknown debit/credit marker.
	ErrInvalidEntryType = errors.New("ledger: invalid entry type")
	// ErrInvalidReferenceType is returned for an unknown reference type.
	ErrInvalidReferenceType = errors.New("ledger: invalid reference type")
	// ErrNegativeAmount is returned when a debit or credit amount is negative.
	ErrNegativeAmount = errors.New("ledger: negative amount")
	// ErrInvalidAmount is returned unless exactly one of debit/credit is positive
	// and it matches the entry type.
	ErrInvalidAmount = errors.New("ledger: exactly one of debit or credit must be positive")
	// ErrEntryNotFound is returned when an entry does not exist.
	ErrEntryNotFound = errors.New("ledger: entry not found")
	// ErrEntryAlreadyReversed is returned when reversing entries that are already reversed.
	ErrEntryAlreadyReversed = errors.New("ledger: entry already reversed")
	// ErrNoEntriesForReference is returned when a reference has no ledger entries.
	ErrNoEntriesForReference = errors.New("ledger: no entries for reference")
)
