package catalog

import "github.com/shopspring/decimal"

// FeeType is the kind of fee a rule prices.
type FeeType string

const (
	FeeTypeMonthly      FeeType = "MONTHLY"
	FeeTypeAnnual       FeeType = "ANNUAL"
	FeeTypeAdmission    FeeType = "ADMISSION"
	FeeTypeRegistration FeeType = "REGISTRATION"
)

// Valid reports whether the fee type is known.
func (t FeeType) Valid() bool {
	switch t {
	case FeeTypeMonthly, FeeTypeAnnual, FeeTypeAdmission, FeeTypeRegistration:
		return true
	}
	return false
}

// FeeStructureRule prices one fee type for one class in one session.
// Identity: (SessionID, ClassName, FeeType).
type FeeStructureRule struct {
	SessionID string
	ClassName string
	FeeType   FeeType
	Amount    decimal.Decimal
	IsActive  bool
}

// Validate checks rule invariants.
func (r FeeStructureRule) Validate() error {
	if r.SessionID == "" {
		return ErrEmptySessionID
	}
	if r.ClassName == "" {
		return ErrEmptyClassName
	}
	if !r.FeeType.Valid() {
		return ErrInvalidFeeType
	}
	if r.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

// FeeSchedule indexes the rules of one session by class and fee type.
type FeeSchedule map[string]map[FeeType]FeeStructureRule

// NewFeeSchedule builds a schedule from rules.
func NewFeeSchedule(rules []FeeStructureRule) FeeSchedule {
	schedule := make(FeeSchedule)
	for _, rule := range rules {
		byType, ok := schedule[rule.ClassName]
		if !ok {
			byType = make(map[FeeType]FeeStructureRule)
			schedule[rule.ClassName] = byType
		}
		byType[rule.FeeType] = rule
	}
	return schedule
}

// Active returns the active rule amount for a class and fee type.
func (s FeeSchedule) Active(className string, feeType FeeType) (decimal.Decimal, bool) {
	rule, ok := s[className][feeType]
	if !ok || !rule.IsActive {
		return decimal.Zero, false
	}
	return rule.Amount, true
}
