package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	catalog "feeledger/internal/catalog/domain"
)

// SessionRepository is an in-memory repository for sessions.
type SessionRepository struct {
	mu   sync.RWMutex
	data map[string]catalog.Session
}

// NewSessionRepository constructs a repository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{data: make(map[string]catalog.Session)}
}

// Clone returns a detached copy.
func (r *SessionRepository) Clone() *SessionRepository {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := NewSessionRepository()
	for id, s := range r.data {
		clone.data[id] = s
	}
	return clone
}

// Get loads a session.
func (r *SessionRepository) Get(ctx context.Context, id string) (*catalog.Session, error) {
	_ = ctx
	r.mu.RLock()
	s, ok := r.data[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// Previous returns the latest session starting before the date.
func (r *SessionRepository) Previous(ctx context.Context, before time.Time) (*catalog.Session, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *catalog.Session
	for _, s := range r.data {
		if !s.StartsOn.Before(before) {
			continue
		}
		if best == nil || s.StartsOn.After(best.StartsOn) {
			candidate := s
			best = &candidate
		}
	}
	return best, nil
}

// Save upserts a session.
func (r *SessionRepository) Save(ctx context.Context, session catalog.Session) error {
	_ = ctx
	if err := session.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.data[session.ID] = session
	r.mu.Unlock()
	return nil
}

type ruleKey struct {
	sessionID string
	className string
	feeType   catalog.FeeType
}

// FeeStructureRepository is an in-memory repository for fee rules.
type FeeStructureRepository struct {
	mu   sync.RWMutex
	data map[ruleKey]catalog.FeeStructureRule
}

// NewFeeStructureRepository constructs a repository.
func NewFeeStructureRepository() *FeeStructureRepository {
	return &FeeStructureRepository{data: make(map[ruleKey]catalog.FeeStructureRule)}
}

// Clone returns a detached copy.
func (r *FeeStructureRepository) Clone() *FeeStructureRepository {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := NewFeeStructureRepository()
	for k, v := range r.data {
		clone.data[k] = v
	}
	return clone
}

// ListBySession returns the rules of a session ordered by class and fee type.
func (r *FeeStructureRepository) ListBySession(ctx context.Context, sessionID string) ([]catalog.FeeStructureRule, error) {
	_ = ctx
	r.mu.RLock()
	var result []catalog.FeeStructureRule
	for k, v := range r.data {
		if k.sessionID == sessionID {
			result = append(result, v)
		}
	}
	r.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		if result[i].ClassName != result[j].ClassName {
			return result[i].ClassName < result[j].ClassName
		}
		return result[i].FeeType < result[j].FeeType
	})
	return result, nil
}

// CountBySession counts the rules of a session.
func (r *FeeStructureRepository) CountBySession(ctx context.Context, sessionID string) (int, error) {
	rules, err := r.ListBySession(ctx, sessionID)
	return len(rules), err
}

// Save upserts a rule.
func (r *FeeStructureRepository) Save(ctx context.Context, rule catalog.FeeStructureRule) error {
	_ = ctx
	if err := rule.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.data[ruleKey{rule.SessionID, rule.ClassName, rule.FeeType}] = rule
	r.mu.Unlock()
	return nil
}

// TransportRepository is an in-memory repository for routes, rates and enrollments.
type TransportRepository struct {
	mu          sync.RWMutex
	routes      map[string]catalog.TransportRoute
	rates       map[string]catalog.TransportRate
	enrollments map[string]catalog.TransportEnrollment
}

// NewTransportRepository constructs a repository.
func NewTransportRepository() *TransportRepository {
	return &TransportRepository{
		routes:      make(map[string]catalog.TransportRoute),
		rates:       make(map[string]catalog.TransportRate),
		enrollments: make(map[string]catalog.TransportEnrollment),
	}
}

// Clone returns a detached copy.
func (r *TransportRepository) Clone() *TransportRepository {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := NewTransportRepository()
	for k, v := range r.routes {
		clone.routes[k] = v
	}
	for k, v := range r.rates {
		clone.rates[k] = v
	}
	for k, v := range r.enrollments {
		if v.EndDate != nil {
			end := *v.EndDate
			v.EndDate = &end
		}
		clone.enrollments[k] = v
	}
	return clone
}

// SaveRoute upserts a route.
func (r *TransportRepository) SaveRoute(ctx context.Context, route catalog.TransportRoute) error {
	_ = ctx
	if route.ID == "" {
		return catalog.ErrEmptyRouteID
	}
	r.mu.Lock()
	r.routes[route.ID] = route
	r.mu.Unlock()
	return nil
}

// SaveRate upserts a rate.
func (r *TransportRepository) SaveRate(ctx context.Context, rate catalog.TransportRate) error {
	_ = ctx
	if err := rate.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.rates[rate.RouteID+"|"+rate.ClassBand] = rate
	r.mu.Unlock()
	return nil
}

// RateFor returns the rate of a route for a class band.
func (r *TransportRepository) RateFor(ctx context.Context, routeID, classBand string) (*catalog.TransportRate, error) {
	_ = ctx
	r.mu.RLock()
	rate, ok := r.rates[routeID+"|"+classBand]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &rate, nil
}

// ListEnrollments returns a student's enrollments ordered by start date.
func (r *TransportRepository) ListEnrollments(ctx context.Context, studentID string) ([]catalog.TransportEnrollment, error) {
	_ = ctx
	r.mu.RLock()
	var result []catalog.TransportEnrollment
	for _, e := range r.enrollments {
		if e.StudentID == studentID {
			result = append(result, e)
		}
	}
	r.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartDate.Equal(result[j].StartDate) {
			return result[i].StartDate.Before(result[j].StartDate)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// SaveEnrollment upserts an enrollment.
func (r *TransportRepository) SaveEnrollment(ctx context.Context, enrollment catalog.TransportEnrollment) error {
	_ = ctx
	if err := enrollment.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.enrollments[enrollment.ID] = enrollment
	r.mu.Unlock()
	return nil
}

// StudentDirectory is an in-memory student registry.
type StudentDirectory struct {
	mu   sync.RWMutex
	data map[string]catalog.StudentProfile
}

// NewStudentDirectory constructs a directory.
func NewStudentDirectory() *StudentDirectory {
	return &StudentDirectory{data: make(map[string]catalog.StudentProfile)}
}

// Clone returns a detached copy.
func (d *StudentDirectory) Clone() *StudentDirectory {
	d.mu.RLock()
	defer d.mu.RUnlock()
	clone := NewStudentDirectory()
	for k, v := range d.data {
		clone.data[k] = v
	}
	return clone
}

// Save upserts a profile.
func (d *StudentDirectory) Save(profile catalog.StudentProfile) error {
	if err := profile.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	d.data[profile.StudentID] = profile
	d.mu.Unlock()
	return nil
}

// Get loads a profile.
func (d *StudentDirectory) Get(ctx context.Context, studentID string) (*catalog.StudentProfile, error) {
	_ = ctx
	d.mu.RLock()
	p, ok := d.data[studentID]
	d.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// ListActive returns active students ordered by id.
func (d *StudentDirectory) ListActive(ctx context.Context) ([]catalog.StudentProfile, error) {
	_ = ctx
	d.mu.RLock()
	var result []catalog.StudentProfile
	for _, p := range d.data {
		if p.IsActive {
			result = append(result, p)
		}
	}
	d.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].StudentID < result[j].StudentID })
	return result, nil
}

var (
	_ catalog.SessionRepository      = (*SessionRepository)(nil)
	_ catalog.FeeStructureRepository = (*FeeStructureRepository)(nil)
	_ catalog.TransportRepository    = (*TransportRepository)(nil)
	_ catalog.StudentDirectory       = (*StudentDirectory)(nil)
)
