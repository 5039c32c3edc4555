package dues

import (
	"github.com/shopspring/decimal"

	catalog "feeledger/internal/catalog/domain"
)

const tuitionMonths = 12

// Inputs is everything the calculation reads for one student and session.
type Inputs struct {
	Profile     catalog.StudentProfile
	Session     catalog.Session
	Schedule    catalog.FeeSchedule
	Enrollments []catalog.TransportEnrollment
	// CurrentRate is the route rate for the student's band, used only when
	// a transport user has no enrollment covering the session.
	CurrentRate *catalog.TransportRate
	// Paid is the sum of non-reversed credits on the session timeline.
	Paid decimal.Decimal
}

// Breakdown itemizes expected session dues.
type Breakdown struct {
	StudentID    string
	SessionID    string
	ClassName    string
	Tuition      decimal.Decimal
	Registration decimal.Decimal
	Admission    decimal.Decimal
	Transport    decimal.Decimal
	// TransportMonths lists the prorated months; empty for an estimate.
	TransportMonths []TransportCharge
	// TransportEstimated is set when transport came from the current route
	// rate because no enrollment history exists.
	TransportEstimated bool
	TotalCharges       decimal.Decimal
	Paid               decimal.Decimal
	Outstanding        decimal.Decimal
	// MissingRules lists fee types that applied but had no active rule.
	MissingRules []catalog.FeeType
}

// Charge is one fee line derived from a breakdown.
type Charge struct {
	Kind        string
	Particulars string
	Amount      decimal.Decimal
}

// Compute derives the breakdown from inputs. It never fails: missing rules
// contribute zero and are reported in MissingRules.
func (p Policy) Compute(in Inputs) Breakdown {
	b := Breakdown{
		StudentID:    in.Profile.StudentID,
		SessionID:    in.Session.ID,
		ClassName:    in.Profile.ClassName,
		Tuition:      decimal.Zero,
		Registration: decimal.Zero,
		Admission:    decimal.Zero,
		Transport:    decimal.Zero,
		Paid:         in.Paid,
	}
	className := in.Profile.ClassName

	if p.IsMonthly(className) {
		if amount, ok := in.Schedule.Active(className, catalog.FeeTypeMonthly); ok {
			b.Tuition = amount.Mul(decimal.NewFromInt(tuitionMonths))
		} else {
			b.MissingRules = append(b.MissingRules, catalog.FeeTypeMonthly)
		}
	} else {
		if amount, ok := in.Schedule.Active(className, catalog.FeeTypeAnnual); ok {
			b.Tuition = amount
		} else {
			b.MissingRules = append(b.MissingRules, catalog.FeeTypeAnnual)
		}
	}

	if p.ChargesRegistration(className) {
		if amount, ok := in.Schedule.Active(className, catalog.FeeTypeRegistration); ok {
			b.Registration = amount
		} else {
			b.MissingRules = append(b.MissingRules, catalog.FeeTypeRegistration)
		}
	}

	if !in.Profile.AdmissionFeePaid {
		if amount, ok := in.Schedule.Active(className, catalog.FeeTypeAdmission); ok {
			b.Admission = amount
		} else {
			b.MissingRules = append(b.MissingRules, catalog.FeeTypeAdmission)
		}
	}

	enrollments := p.SessionEnrollments(in.Session, in.Enrollments)
	switch {
	case len(enrollments) > 0:
		b.TransportMonths = p.ProrateTransport(in.Session, enrollments)
		for _, charge := range b.TransportMonths {
			b.Transport = b.Transport.Add(charge.Amount)
		}
	case in.Profile.HasTransport && in.CurrentRate != nil:
		months := len(p.BillableMonths(in.Session))
		b.Transport = in.CurrentRate.MonthlyFee.Mul(decimal.NewFromInt(int64(months)))
		b.TransportEstimated = true
	}

	b.TotalCharges = b.Tuition.Add(b.Registration).Add(b.Admission).Add(b.Transport)
	b.Outstanding = b.TotalCharges.Sub(b.Paid)
	if b.Outstanding.IsNegative() {
		b.Outstanding = decimal.Zero
	}
	return b
}

// Charges returns the non-zero fee lines of the breakdown in a stable order.
func (b Breakdown) Charges() []Charge {
	var charges []Charge
	add := func(kind, particulars string, amount decimal.Decimal) {
		if amount.IsPositive() {
			charges = append(charges, Charge{Kind: kind, Particulars: particulars, Amount: amount})
		}
	}
	add("TUITION", "Tuition fee "+b.SessionID, b.Tuition)
	add("REGISTRATION", "Registration fee "+b.SessionID, b.Registration)
	add("ADMISSION", "Admission fee", b.Admission)
	transport := "Transport fee " + b.SessionID
	if b.TransportEstimated {
		transport += " (estimated)"
	}
	add("TRANSPORT", transport, b.Transport)
	return charges
}
