package catalog

import "time"

// Session is one academic year's billing period. Callers hold the session
// they are working in and pass it into every engine call.
type Session struct {
	ID       string
	Name     string
	StartsOn time.Time
	// EndsOn is the last day of the session; zero means twelve months from StartsOn.
	EndsOn time.Time
}

// Validate checks session invariants.
func (s Session) Validate() error {
	if s.ID == "" {
		return ErrEmptySessionID
	}
	if s.StartsOn.IsZero() {
		return ErrInvalidSession
	}
	if !s.EndsOn.IsZero() && s.EndsOn.Before(s.StartsOn) {
		return ErrInvalidSession
	}
	return nil
}

// LastDay returns EndsOn, or the day before the twelve-month anniversary of StartsOn.
func (s Session) LastDay() time.Time {
	if !s.EndsOn.IsZero() {
		return s.EndsOn
	}
	return s.StartsOn.AddDate(1, 0, -1)
}
