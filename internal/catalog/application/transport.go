package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	catalog "feeledger/internal/catalog/domain"
	"feeledger/internal/unitofwork"
)

// BandResolver maps a class to its transport rate band.
type BandResolver interface {
	ClassBand(className string) string
}

// TransportService records enrollment history. Every change snapshots the
// route rate in force so later rate changes never reprice past months.
type TransportService struct {
	uow    unitofwork.UnitOfWork
	bands  BandResolver
	logger *log.Logger
}

// NewTransportService constructs a transport service.
func NewTransportService(uow unitofwork.UnitOfWork, bands BandResolver, logger *log.Logger) (*TransportService, error) {
	if uow == nil {
		return nil, errors.New("transport service: nil unit of work")
	}
	if bands == nil {
		return nil, errors.New("transport service: nil band resolver")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &TransportService{uow: uow, bands: bands, logger: logger}, nil
}

// Enroll starts a route for the student on the effective date, closing any
// open enrollment the day before.
func (s *TransportService) Enroll(ctx context.Context, studentID, routeID string, effective time.Time) (*catalog.TransportEnrollment, error) {
	if studentID == "" {
		return nil, catalog.ErrEmptyStudentID
	}
	if routeID == "" {
		return nil, catalog.ErrEmptyRouteID
	}
	if effective.IsZero() {
		return nil, catalog.ErrInvalidEnrollment
	}
	var created catalog.TransportEnrollment
	err := s.uow.Do(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		profile, err := repos.Students.Get(ctx, studentID)
		if err != nil {
			return fmt.Errorf("transport service: load student: %w", err)
		}
		if profile == nil {
			return catalog.ErrStudentNotFound
		}
		rate, err := repos.Transport.RateFor(ctx, routeID, s.bands.ClassBand(profile.ClassName))
		if err != nil {
			return fmt.Errorf("transport service: load rate: %w", err)
		}
		if rate == nil {
			return catalog.ErrRateNotFound
		}
		if err := s.closeOpen(ctx, repos, studentID, effective); err != nil {
			return err
		}
		created = catalog.TransportEnrollment{
			ID:                     uuid.NewString(),
			StudentID:              studentID,
			RouteID:                routeID,
			StartDate:              effective,
			MonthlyFeeAtEnrollment: rate.MonthlyFee,
		}
		return repos.Transport.SaveEnrollment(ctx, created)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Printf("transport enrolled: student=%s route=%s from=%s fee=%s",
		studentID, routeID, effective.Format("2006-01-02"), created.MonthlyFeeAtEnrollment.StringFixed(2))
	return &created, nil
}

// Stop closes the student's open enrollment on the given last day.
func (s *TransportService) Stop(ctx context.Context, studentID string, lastDay time.Time) error {
	if studentID == "" {
		return catalog.ErrEmptyStudentID
	}
	err := s.uow.Do(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		return s.closeOpen(ctx, repos, studentID, lastDay.AddDate(0, 0, 1))
	})
	if err != nil {
		return err
	}
	s.logger.Printf("transport stopped: student=%s last_day=%s", studentID, lastDay.Format("2006-01-02"))
	return nil
}

func (s *TransportService) closeOpen(ctx context.Context, repos unitofwork.Repositories, studentID string, effective time.Time) error {
	enrollments, err := repos.Transport.ListEnrollments(ctx, studentID)
	if err != nil {
		return fmt.Errorf("transport service: list enrollments: %w", err)
	}
	for _, e := range enrollments {
		if !e.IsOpen() {
			continue
		}
		end := effective.AddDate(0, 0, -1)
		if end.Before(e.StartDate) {
			end = e.StartDate
		}
		e.EndDate = &end
		if err := repos.Transport.SaveEnrollment(ctx, e); err != nil {
			return fmt.Errorf("transport service: close enrollment %s: %w", e.ID, err)
		}
	}
	return nil
}
