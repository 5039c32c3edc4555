package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	catalog "feeledger/internal/catalog/domain"
	dues "feeledger/internal/dues/domain"
	ledgerapp "feeledger/internal/ledger/application"
	"feeledger/internal/observability/metrics"
	"feeledger/internal/unitofwork"
)

// Calculator derives expected session dues from the catalogs and the ledger.
type Calculator struct {
	uow    unitofwork.UnitOfWork
	policy dues.Policy
}

// NewCalculator constructs a due calculator.
func NewCalculator(uow unitofwork.UnitOfWork, policy dues.Policy) (*Calculator, error) {
	if uow == nil {
		return nil, errors.New("due calculator: nil unit of work")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{uow: uow, policy: policy}, nil
}

// Policy returns the billing policy in use.
func (c *Calculator) Policy() dues.Policy { return c.policy }

// ExpectedSessionDues returns what the student still owes for the session,
// floored at zero.
func (c *Calculator) ExpectedSessionDues(ctx context.Context, studentID string, session catalog.Session) (decimal.Decimal, error) {
	breakdown, err := c.Breakdown(ctx, studentID, session)
	if err != nil {
		return decimal.Zero, err
	}
	return breakdown.Outstanding, nil
}

// Breakdown itemizes the student's session dues.
func (c *Calculator) Breakdown(ctx context.Context, studentID string, session catalog.Session) (_ dues.Breakdown, err error) {
	start := time.Now()
	defer func() {
		result := metrics.ResultSuccess
		if err != nil {
			result = metrics.ResultError
		}
		metrics.ObserveDues(result, time.Since(start))
	}()

	var breakdown dues.Breakdown
	err = c.uow.View(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		var err error
		breakdown, err = c.Compute(ctx, repos, studentID, session)
		return err
	})
	return breakdown, err
}

// Compute runs the calculation against repositories of an open unit of work.
func (c *Calculator) Compute(ctx context.Context, repos unitofwork.Repositories, studentID string, session catalog.Session) (dues.Breakdown, error) {
	if studentID == "" {
		return dues.Breakdown{}, catalog.ErrEmptyStudentID
	}
	if err := session.Validate(); err != nil {
		return dues.Breakdown{}, catalog.ErrInvalidSession
	}
	profile, err := repos.Students.Get(ctx, studentID)
	if err != nil {
		return dues.Breakdown{}, fmt.Errorf("due calculator: load student: %w", err)
	}
	if profile == nil {
		return dues.Breakdown{}, catalog.ErrStudentNotFound
	}
	return c.ComputeFor(ctx, repos, *profile, session)
}

// ComputeFor runs the calculation for an already loaded profile.
func (c *Calculator) ComputeFor(ctx context.Context, repos unitofwork.Repositories, profile catalog.StudentProfile, session catalog.Session) (dues.Breakdown, error) {
	rules, err := repos.FeeStructures.ListBySession(ctx, session.ID)
	if err != nil {
		return dues.Breakdown{}, fmt.Errorf("due calculator: load fee structures: %w", err)
	}
	enrollments, err := repos.Transport.ListEnrollments(ctx, profile.StudentID)
	if err != nil {
		return dues.Breakdown{}, fmt.Errorf("due calculator: load enrollments: %w", err)
	}

	var rate *catalog.TransportRate
	covering := c.policy.SessionEnrollments(session, enrollments)
	if len(covering) == 0 && profile.HasTransport && profile.TransportRouteID != "" {
		rate, err = repos.Transport.RateFor(ctx, profile.TransportRouteID, c.policy.ClassBand(profile.ClassName))
		if err != nil {
			return dues.Breakdown{}, fmt.Errorf("due calculator: load route rate: %w", err)
		}
	}

	store, err := ledgerapp.NewStore(repos.Entries, nil)
	if err != nil {
		return dues.Breakdown{}, err
	}
	paid, err := store.CreditsForSession(ctx, profile.StudentID, session.ID)
	if err != nil {
		return dues.Breakdown{}, fmt.Errorf("due calculator: sum credits: %w", err)
	}

	return c.policy.Compute(dues.Inputs{
		Profile:     profile,
		Session:     session,
		Schedule:    catalog.NewFeeSchedule(rules),
		Enrollments: enrollments,
		CurrentRate: rate,
		Paid:        paid,
	}), nil
}
