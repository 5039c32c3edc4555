package catalog

import (
	"context"
	"time"
)

// SessionRepository manages sessions.
type SessionRepository interface {
	Get(ctx context.Context, id string) (*Session, error)
	// Previous returns the latest session starting before the given date.
	Previous(ctx context.Context, before time.Time) (*Session, error)
	Save(ctx context.Context, session Session) error
}

// FeeStructureRepository manages fee structure rules.
type FeeStructureRepository interface {
	ListBySession(ctx context.Context, sessionID string) ([]FeeStructureRule, error)
	CountBySession(ctx context.Context, sessionID string) (int, error)
	Save(ctx context.Context, rule FeeStructureRule) error
}

// TransportRepository manages routes, rates and enrollment history.
type TransportRepository interface {
	SaveRoute(ctx context.Context, route TransportRoute) error
	SaveRate(ctx context.Context, rate TransportRate) error
	RateFor(ctx context.Context, routeID, classBand string) (*TransportRate, error)
	ListEnrollments(ctx context.Context, studentID string) ([]TransportEnrollment, error)
	SaveEnrollment(ctx context.Context, enrollment TransportEnrollment) error
}

// StudentDirectory reads the external student registry.
type StudentDirectory interface {
	Get(ctx context.Context, studentID string) (*StudentProfile, error)
	ListActive(ctx context.Context) ([]StudentProfile, error)
}
