package dues

import (
	"strings"
	"time"
)

// Policy holds the school's billing rules that are not priced per session.
type Policy struct {
	// MonthlyClasses are billed the MONTHLY rule twelve times; every other
	// class is billed its ANNUAL rule once.
	MonthlyClasses []string
	// RegistrationClasses carry the REGISTRATION surcharge.
	RegistrationClasses []string
	// ClassBands maps a class to the band used for transport rates.
	ClassBands  map[string]string
	DefaultBand string
	// TransportFreeMonth is never billed for transport. Zero disables it.
	TransportFreeMonth time.Month
	// Location defines calendar month boundaries.
	Location *time.Location
}

// DefaultPolicy returns the policy used when no policy file is configured.
func DefaultPolicy() Policy {
	bands := map[string]string{}
	for _, class := range []string{"NURSERY", "LKG", "UKG", "1", "2", "3", "4", "5"} {
		bands[class] = "JUNIOR"
	}
	for _, class := range []string{"6", "7", "8"} {
		bands[class] = "MIDDLE"
	}
	for _, class := range []string{"9", "10", "11", "12"} {
		bands[class] = "SENIOR"
	}
	return Policy{
		MonthlyClasses:      []string{"NURSERY", "LKG", "UKG", "1", "2", "3", "4", "5", "6", "7", "8"},
		RegistrationClasses: []string{"9", "10", "11", "12"},
		ClassBands:          bands,
		DefaultBand:         "JUNIOR",
		TransportFreeMonth:  time.June,
		Location:            time.UTC,
	}
}

// Validate checks policy invariants.
func (p Policy) Validate() error {
	if p.TransportFreeMonth < 0 || p.TransportFreeMonth > time.December {
		return ErrInvalidMonth
	}
	if p.DefaultBand == "" && len(p.ClassBands) == 0 {
		return ErrInvalidPolicy
	}
	return nil
}

// IsMonthly reports whether the class is billed monthly.
func (p Policy) IsMonthly(className string) bool {
	return contains(p.MonthlyClasses, className)
}

// ChargesRegistration reports whether the class carries the registration surcharge.
func (p Policy) ChargesRegistration(className string) bool {
	return contains(p.RegistrationClasses, className)
}

// ClassBand returns the transport band of a class.
func (p Policy) ClassBand(className string) string {
	if band, ok := p.ClassBands[normalizeClass(className)]; ok {
		return band
	}
	if band, ok := p.ClassBands[className]; ok {
		return band
	}
	return p.DefaultBand
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

func contains(classes []string, className string) bool {
	want := normalizeClass(className)
	for _, class := range classes {
		if normalizeClass(class) == want {
			return true
		}
	}
	return false
}

func normalizeClass(className string) string {
	return strings.ToUpper(strings.TrimSpace(className))
}
