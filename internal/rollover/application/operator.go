package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	catalog "feeledger/internal/catalog/domain"
	duesapp "feeledger/internal/dues/application"
	ledgerapp "feeledger/internal/ledger/application"
	ledger "feeledger/internal/ledger/domain"
	"feeledger/internal/observability/metrics"
	"feeledger/internal/unitofwork"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ErrSameSession is returned when source and target sessions are equal.
var ErrSameSession = errors.New("rollover: source and target session are the same")

var errDryRun = errors.New("rollover: dry run")

// CopyResult reports a fee structure copy.
type CopyResult struct {
	Copied  int
	Skipped bool
}

// CarryResult reports a carry-forward run.
type CarryResult struct {
	SourceSessionID string
	Carried         int
	Skipped         int
	Total           decimal.Decimal
}

// ChargeResult reports a session fee charging run.
type ChargeResult struct {
	Charged int
	Skipped int
	Total   decimal.Decimal
}

// AdjustResult reports an opening balance adjustment.
type AdjustResult struct {
	Previous decimal.Decimal
	Current  decimal.Decimal
	Removed  bool
}

// Operator runs the once-a-year session transition operations. Each
// operation checks for prior work and writes inside the same unit of work,
// so repeating an operation never applies it twice.
type Operator struct {
	uow        unitofwork.UnitOfWork
	calculator *duesapp.Calculator
	clock      Clock
	logger     *log.Logger
	dryRun     bool
}

// NewOperator constructs a session transition operator.
func NewOperator(uow unitofwork.UnitOfWork, calculator *duesapp.Calculator, clock Clock, logger *log.Logger) (*Operator, error) {
	if uow == nil {
		return nil, errors.New("rollover operator: nil unit of work")
	}
	if calculator == nil {
		return nil, errors.New("rollover operator: nil due calculator")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Operator{uow: uow, calculator: calculator, clock: clock, logger: logger}, nil
}

// DryRun returns an operator that computes results and rolls back.
func (o *Operator) DryRun() *Operator {
	clone := *o
	clone.dryRun = true
	return &clone
}

// CopyFeeStructures copies every rule of the source session into the target
// session unless the target already has rules.
func (o *Operator) CopyFeeStructures(ctx context.Context, sourceSessionID, targetSessionID string) (result CopyResult, err error) {
	defer func() { metrics.IncRolloverOp(metrics.OpCopyFeeStructures, resultOf(err)) }()

	if sourceSessionID == "" || targetSessionID == "" {
		return CopyResult{}, catalog.ErrEmptySessionID
	}
	if sourceSessionID == targetSessionID {
		return CopyResult{}, ErrSameSession
	}
	err = o.run(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		existing, err := repos.FeeStructures.CountBySession(ctx, targetSessionID)
		if err != nil {
			return fmt.Errorf("rollover: count target rules: %w", err)
		}
		if existing > 0 {
			result = CopyResult{Skipped: true}
			return nil
		}
		rules, err := repos.FeeStructures.ListBySession(ctx, sourceSessionID)
		if err != nil {
			return fmt.Errorf("rollover: list source rules: %w", err)
		}
		for _, rule := range rules {
			rule.SessionID = targetSessionID
			if err := repos.FeeStructures.Save(ctx, rule); err != nil {
				return fmt.Errorf("rollover: save rule %s/%s: %w", rule.ClassName, rule.FeeType, err)
			}
		}
		result = CopyResult{Copied: len(rules)}
		return nil
	})
	if err != nil {
		return CopyResult{}, err
	}
	o.logger.Printf("rollover copy fee structures: source=%s target=%s copied=%d skipped=%t dry_run=%t",
		sourceSessionID, targetSessionID, result.Copied, result.Skipped, o.dryRun)
	return result, nil
}

// CarryForwardDues opens the new session's timeline of every student who
// owes money at the end of the session preceding newSessionStart. Students
// that already have an opening balance in the new session are skipped.
func (o *Operator) CarryForwardDues(ctx context.Context, newSessionID string, newSessionStart time.Time) (result CarryResult, err error) {
	defer func() {
		metrics.IncRolloverOp(metrics.OpCarryForward, resultOf(err))
		if err == nil {
			metrics.AddRolloverStudents(metrics.OpCarryForward, metrics.OutcomeApplied, result.Carried)
			metrics.AddRolloverStudents(metrics.OpCarryForward, metrics.OutcomeSkipped, result.Skipped)
		}
	}()

	if newSessionID == "" {
		return CarryResult{}, catalog.ErrEmptySessionID
	}
	if newSessionStart.IsZero() {
		return CarryResult{}, catalog.ErrInvalidSession
	}
	err = o.run(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		source, err := repos.Sessions.Previous(ctx, newSessionStart)
		if err != nil {
			return fmt.Errorf("rollover: previous session: %w", err)
		}
		if source == nil || source.ID == newSessionID {
			return catalog.ErrNoPreviousSession
		}
		store, err := ledgerapp.NewStore(repos.Entries, o.clock)
		if err != nil {
			return err
		}
		balances, err := store.SessionBalances(ctx, source.ID)
		if err != nil {
			return fmt.Errorf("rollover: source balances: %w", err)
		}

		result = CarryResult{SourceSessionID: source.ID, Total: decimal.Zero}
		for _, balance := range balances {
			if !balance.Balance.IsPositive() {
				continue
			}
			exists, err := store.HasEntryOfType(ctx, balance.StudentID, newSessionID, ledger.ReferenceOpeningBalance)
			if err != nil {
				return err
			}
			if exists {
				result.Skipped++
				continue
			}
			entry := ledger.NewDebit(balance.StudentID, newSessionID, newSessionStart, balance.Balance,
				ledger.ReferenceOpeningBalance, source.ID, "Opening balance carried from "+sessionLabel(*source))
			if _, err := store.InsertSeeded(ctx, &entry, balance.Balance); err != nil {
				return err
			}
			if _, err := store.RecomputeTimeline(ctx, balance.StudentID, newSessionID); err != nil {
				return err
			}
			result.Carried++
			result.Total = result.Total.Add(balance.Balance)
		}
		return nil
	})
	if err != nil {
		return CarryResult{}, err
	}
	o.logger.Printf("rollover carry forward: source=%s target=%s carried=%d skipped=%d total=%s dry_run=%t",
		result.SourceSessionID, newSessionID, result.Carried, result.Skipped, result.Total.StringFixed(2), o.dryRun)
	return result, nil
}

// AddSessionFeesForStudent charges the student's session fees once.
func (o *Operator) AddSessionFeesForStudent(ctx context.Context, studentID string, session catalog.Session) (result ChargeResult, err error) {
	defer func() { o.observeCharge(result, err) }()

	if studentID == "" {
		return ChargeResult{}, catalog.ErrEmptyStudentID
	}
	if err := session.Validate(); err != nil {
		return ChargeResult{}, err
	}
	err = o.run(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		profile, err := repos.Students.Get(ctx, studentID)
		if err != nil {
			return fmt.Errorf("rollover: load student: %w", err)
		}
		if profile == nil {
			return catalog.ErrStudentNotFound
		}
		result = ChargeResult{Total: decimal.Zero}
		return o.chargeStudent(ctx, repos, *profile, session, &result)
	})
	if err != nil {
		return ChargeResult{}, err
	}
	o.logger.Printf("rollover charge fees: student=%s session=%s charged=%d total=%s dry_run=%t",
		studentID, session.ID, result.Charged, result.Total.StringFixed(2), o.dryRun)
	return result, nil
}

// AddSessionFeesForAllStudents charges every active student in one unit of
// work, skipping students already charged for the session.
func (o *Operator) AddSessionFeesForAllStudents(ctx context.Context, session catalog.Session) (result ChargeResult, err error) {
	defer func() { o.observeCharge(result, err) }()

	if err := session.Validate(); err != nil {
		return ChargeResult{}, err
	}
	err = o.run(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		students, err := repos.Students.ListActive(ctx)
		if err != nil {
			return fmt.Errorf("rollover: list students: %w", err)
		}
		result = ChargeResult{Total: decimal.Zero}
		for _, profile := range students {
			if err := o.chargeStudent(ctx, repos, profile, session, &result); err != nil {
				return fmt.Errorf("rollover: charge %s: %w", profile.StudentID, err)
			}
		}
		return nil
	})
	if err != nil {
		return ChargeResult{}, err
	}
	o.logger.Printf("rollover charge fees: session=%s charged=%d skipped=%d total=%s dry_run=%t",
		session.ID, result.Charged, result.Skipped, result.Total.StringFixed(2), o.dryRun)
	return result, nil
}

func (o *Operator) chargeStudent(ctx context.Context, repos unitofwork.Repositories, profile catalog.StudentProfile, session catalog.Session, result *ChargeResult) error {
	store, err := ledgerapp.NewStore(repos.Entries, o.clock)
	if err != nil {
		return err
	}
	charged, err := store.HasEntryOfType(ctx, profile.StudentID, session.ID, ledger.ReferenceFeeCharge)
	if err != nil {
		return err
	}
	if charged {
		result.Skipped++
		return nil
	}
	breakdown, err := o.calculator.ComputeFor(ctx, repos, profile, session)
	if err != nil {
		return err
	}
	charges := breakdown.Charges()
	if len(charges) == 0 {
		result.Skipped++
		return nil
	}
	for _, charge := range charges {
		entry := ledger.NewDebit(profile.StudentID, session.ID, session.StartsOn, charge.Amount,
			ledger.ReferenceFeeCharge, "", charge.Particulars)
		if _, err := store.Insert(ctx, &entry); err != nil {
			return err
		}
		result.Total = result.Total.Add(charge.Amount)
	}
	if _, err := store.Recompute(ctx, profile.StudentID); err != nil {
		return err
	}
	result.Charged++
	return nil
}

// AdjustOpeningBalance sets the opening balance of a student's session
// timeline. Zero removes the entry. An adjusted carried balance becomes a
// manual one and later receipts in the source session no longer move it.
func (o *Operator) AdjustOpeningBalance(ctx context.Context, studentID, sessionID string, amount decimal.Decimal) (result AdjustResult, err error) {
	defer func() { metrics.IncRolloverOp(metrics.OpAdjustOpening, resultOf(err)) }()

	if studentID == "" {
		return AdjustResult{}, catalog.ErrEmptyStudentID
	}
	if sessionID == "" {
		return AdjustResult{}, catalog.ErrEmptySessionID
	}
	if amount.IsNegative() {
		return AdjustResult{}, ledger.ErrNegativeAmount
	}
	err = o.run(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		store, err := ledgerapp.NewStore(repos.Entries, o.clock)
		if err != nil {
			return err
		}
		openings, err := store.EntriesOfType(ctx, studentID, sessionID, ledger.ReferenceOpeningBalance)
		if err != nil {
			return err
		}
		result = AdjustResult{Previous: decimal.Zero, Current: amount}

		switch {
		case len(openings) == 0 && amount.IsZero():
			return nil
		case len(openings) == 0:
			session, err := repos.Sessions.Get(ctx, sessionID)
			if err != nil {
				return fmt.Errorf("rollover: load session: %w", err)
			}
			if session == nil {
				return catalog.ErrSessionNotFound
			}
			entry := ledger.NewDebit(studentID, sessionID, session.StartsOn, amount,
				ledger.ReferenceOpeningBalance, "", "Opening balance")
			if _, err := store.Insert(ctx, &entry); err != nil {
				return err
			}
		default:
			opening := openings[0]
			result.Previous = opening.Amount()
			if amount.IsZero() {
				if err := store.Remove(ctx, opening.ID); err != nil {
					return err
				}
				result.Removed = true
			} else {
				// a manual amount is no longer derived from the source session
				opening.SetAmount(amount)
				opening.ReferenceID = ""
				opening.Particulars = "Opening balance"
				if err := store.Update(ctx, opening); err != nil {
					return err
				}
			}
		}
		_, err = store.Recompute(ctx, studentID)
		return err
	})
	if err != nil {
		return AdjustResult{}, err
	}
	o.logger.Printf("rollover adjust opening balance: student=%s session=%s previous=%s current=%s removed=%t dry_run=%t",
		studentID, sessionID, result.Previous.StringFixed(2), result.Current.StringFixed(2), result.Removed, o.dryRun)
	return result, nil
}

func (o *Operator) run(ctx context.Context, fn unitofwork.Func) error {
	if !o.dryRun {
		return o.uow.Do(ctx, fn)
	}
	err := o.uow.Do(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		if err := fn(ctx, repos); err != nil {
			return err
		}
		return errDryRun
	})
	if errors.Is(err, errDryRun) {
		return nil
	}
	return err
}

func (o *Operator) observeCharge(result ChargeResult, err error) {
	metrics.IncRolloverOp(metrics.OpChargeFees, resultOf(err))
	if err == nil {
		metrics.AddRolloverStudents(metrics.OpChargeFees, metrics.OutcomeApplied, result.Charged)
		metrics.AddRolloverStudents(metrics.OpChargeFees, metrics.OutcomeSkipped, result.Skipped)
	}
}

func sessionLabel(session catalog.Session) string {
	if session.Name != "" {
		return session.Name
	}
	return session.ID
}

func resultOf(err error) string {
	if err != nil {
		return metrics.ResultError
	}
	return metrics.ResultSuccess
}
