package dues

import (
	"time"

	"github.com/shopspring/decimal"

	catalog "feeledger/internal/catalog/domain"
)

// Month is one calendar month in the policy location. End is the last
// instant of the month's last day.
type Month struct {
	Start time.Time
	End   time.Time
}

// Label formats the month as YYYY-MM.
func (m Month) Label() string { return m.Start.Format("2006-01") }

// SessionMonths returns every calendar month from the month of StartsOn
// through the month of the session's last day.
func SessionMonths(session catalog.Session, loc *time.Location) []Month {
	if loc == nil {
		loc = time.UTC
	}
	first := CalendarDate(session.StartsOn, loc)
	last := CalendarDate(session.LastDay(), loc)
	cursor := time.Date(first.Year(), first.Month(), 1, 0, 0, 0, 0, loc)
	stop := time.Date(last.Year(), last.Month(), 1, 0, 0, 0, 0, loc)

	var months []Month
	for !cursor.After(stop) {
		next := cursor.AddDate(0, 1, 0)
		months = append(months, Month{Start: cursor, End: next.Add(-time.Nanosecond)})
		cursor = next
	}
	return months
}

// CalendarDate returns midnight in loc of the calendar date t carries.
// Stored dates are scanned as UTC midnight, so the date is read in t's own
// location rather than converted.
func CalendarDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// SessionEnrollments returns the enrollments covering any day of the
// session, with their dates moved to the policy location.
func (p Policy) SessionEnrollments(session catalog.Session, enrollments []catalog.TransportEnrollment) []catalog.TransportEnrollment {
	months := SessionMonths(session, p.location())
	if len(months) == 0 {
		return nil
	}
	from, to := months[0].Start, months[len(months)-1].End
	var result []catalog.TransportEnrollment
	for _, e := range enrollments {
		local := p.localEnrollment(e)
		if local.Overlaps(from, to) {
			result = append(result, local)
		}
	}
	return result
}

func (p Policy) localEnrollment(e catalog.TransportEnrollment) catalog.TransportEnrollment {
	loc := p.location()
	e.StartDate = CalendarDate(e.StartDate, loc)
	if e.EndDate != nil {
		end := CalendarDate(*e.EndDate, loc)
		e.EndDate = &end
	}
	return e
}

// BillableMonths drops the transport-free month.
func (p Policy) BillableMonths(session catalog.Session) []Month {
	all := SessionMonths(session, p.location())
	months := make([]Month, 0, len(all))
	for _, m := range all {
		if p.TransportFreeMonth != 0 && m.Start.Month() == p.TransportFreeMonth {
			continue
		}
		months = append(months, m)
	}
	return months
}

// TransportCharge is the transport fee billed for one month.
type TransportCharge struct {
	Month        string
	EnrollmentID string
	RouteID      string
	Amount       decimal.Decimal
}

// ProrateTransport bills each billable month in full at the fee snapshot of
// the enrollment covering it. When several enrollments overlap a month the
// one that started last wins. Months with no enrollment are not billed.
func (p Policy) ProrateTransport(session catalog.Session, enrollments []catalog.TransportEnrollment) []TransportCharge {
	local := make([]catalog.TransportEnrollment, len(enrollments))
	for i, e := range enrollments {
		local[i] = p.localEnrollment(e)
	}
	var charges []TransportCharge
	for _, month := range p.BillableMonths(session) {
		var chosen *catalog.TransportEnrollment
		for i := range local {
			e := local[i]
			if !e.Overlaps(month.Start, month.End) {
				continue
			}
			if chosen == nil || e.StartDate.After(chosen.StartDate) {
				chosen = &e
			}
		}
		if chosen == nil {
			continue
		}
		charges = append(charges, TransportCharge{
			Month:        month.Label(),
			EnrollmentID: chosen.ID,
			RouteID:      chosen.RouteID,
			Amount:       chosen.MonthlyFeeAtEnrollment,
		})
	}
	return charges
}
