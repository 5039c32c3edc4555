package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransportRoute is a bus route.
type TransportRoute struct {
	ID   string
	Name string
}

// TransportRate is the current monthly fee of a route for a class band.
type TransportRate struct {
	RouteID    string
	ClassBand  string
	MonthlyFee decimal.Decimal
}

// Validate checks rate invariants.
func (r TransportRate) Validate() error {
	if r.RouteID == "" {
		return ErrEmptyRouteID
	}
	if r.MonthlyFee.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

// TransportEnrollment records which route a student rode during a date range
// and the fee in force when they enrolled.
type TransportEnrollment struct {
	ID        string
	StudentID string
	RouteID   string
	StartDate time.Time
	// EndDate nil means the enrollment is ongoing.
	EndDate                *time.Time
	MonthlyFeeAtEnrollment decimal.Decimal
}

// Validate checks enrollment invariants.
func (e TransportEnrollment) Validate() error {
	if e.StudentID == "" {
		return ErrEmptyStudentID
	}
	if e.RouteID == "" {
		return ErrEmptyRouteID
	}
	if e.StartDate.IsZero() {
		return ErrInvalidEnrollment
	}
	if e.EndDate != nil && e.EndDate.Before(e.StartDate) {
		return ErrInvalidEnrollment
	}
	if e.MonthlyFeeAtEnrollment.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

// IsOpen reports whether the enrollment has no end date.
func (e TransportEnrollment) IsOpen() bool { return e.EndDate == nil }

// Overlaps reports whether the enrollment covers any instant in [from, to].
// An open enrollment extends to infinity.
func (e TransportEnrollment) Overlaps(from, to time.Time) bool {
	if e.StartDate.After(to) {
		return false
	}
	if e.EndDate != nil && e.EndDate.Before(from) {
		return false
	}
	return true
}
