package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	catalog "feeledger/internal/catalog/domain"
)

const (
	defaultSessionsTable      = "sessions"
	defaultFeeStructuresTable = "fee_structures"
	defaultRoutesTable        = "transport_routes"
	defaultRatesTable         = "transport_rates"
	defaultEnrollmentsTable   = "transport_enrollments"
	defaultStudentsTable      = "students"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// SessionRepository is a Postgres implementation for sessions.
type SessionRepository struct {
	db    DBTX
	table string
}

// SessionOption configures the session repository.
type SessionOption func(*SessionRepository)

// WithSessionsTable overrides the default table.
func WithSessionsTable(table string) SessionOption {
	return func(repo *SessionRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewSessionRepository constructs a repository.
func NewSessionRepository(db DBTX, opts ...SessionOption) *SessionRepository {
	repo := &SessionRepository{db: db, table: defaultSessionsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Get loads a session by id.
func (r *SessionRepository) Get(ctx context.Context, id string) (*catalog.Session, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("session repo: nil db")
	}
	query := fmt.Sprintf(`SELECT id, name, starts_on, ends_on FROM %s WHERE id = $1`, r.table)
	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Previous returns the latest session starting before the date.
func (r *SessionRepository) Previous(ctx context.Context, before time.Time) (*catalog.Session, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("session repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, name, starts_on, ends_on
FROM %s
WHERE starts_on < $1
ORDER BY starts_on DESC
LIMIT 1`, r.table)
	session, err := scanSession(r.db.QueryRowContext(ctx, query, before.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Save upserts a session.
func (r *SessionRepository) Save(ctx context.Context, session catalog.Session) error {
	if r == nil || r.db == nil {
		return errors.New("session repo: nil db")
	}
	if err := session.Validate(); err != nil {
		return err
	}
	var endsOn sql.NullTime
	if !session.EndsOn.IsZero() {
		endsOn = sql.NullTime{Time: session.EndsOn.UTC(), Valid: true}
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, name, starts_on, ends_on)
VALUES ($1,$2,$3,$4)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	starts_on = EXCLUDED.starts_on,
	ends_on = EXCLUDED.ends_on`, r.table)
	_, err := r.db.ExecContext(ctx, query, session.ID, session.Name, session.StartsOn.UTC(), endsOn)
	return err
}

func scanSession(row rowScanner) (catalog.Session, error) {
	var session catalog.Session
	var endsOn sql.NullTime
	if err := row.Scan(&session.ID, &session.Name, &session.StartsOn, &endsOn); err != nil {
		return catalog.Session{}, err
	}
	session.StartsOn = session.StartsOn.UTC()
	if endsOn.Valid {
		session.EndsOn = endsOn.Time.UTC()
	}
	return session, nil
}

// FeeStructureRepository is a Postgres implementation for fee rules.
type FeeStructureRepository struct {
	db    DBTX
	table string
}

// FeeStructureOption configures the fee structure repository.
type FeeStructureOption func(*FeeStructureRepository)

// WithFeeStructuresTable overrides the default table.
func WithFeeStructuresTable(table string) FeeStructureOption {
	return func(repo *FeeStructureRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewFeeStructureRepository constructs a repository.
func NewFeeStructureRepository(db DBTX, opts ...FeeStructureOption) *FeeStructureRepository {
	repo := &FeeStructureRepository{db: db, table: defaultFeeStructuresTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// ListBySession returns the rules of a session.
func (r *FeeStructureRepository) ListBySession(ctx context.Context, sessionID string) ([]catalog.FeeStructureRule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("fee structure repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT session_id, class_name, fee_type, amount, is_active
FROM %s
WHERE session_id = $1
ORDER BY class_name ASC, fee_type ASC`, r.table)
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []catalog.FeeStructureRule
	for rows.Next() {
		var rule catalog.FeeStructureRule
		var feeType string
		if err := rows.Scan(&rule.SessionID, &rule.ClassName, &feeType, &rule.Amount, &rule.IsActive); err != nil {
			return nil, err
		}
		rule.FeeType = catalog.FeeType(feeType)
		result = append(result, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountBySession counts the rules of a session.
func (r *FeeStructureRepository) CountBySession(ctx context.Context, sessionID string) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("fee structure repo: nil db")
	}
	var count int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE session_id = $1`, r.table)
	if err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Save upserts a rule keyed by session, class and fee type.
func (r *FeeStructureRepository) Save(ctx context.Context, rule catalog.FeeStructureRule) error {
	if r == nil || r.db == nil {
		return errors.New("fee structure repo: nil db")
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (session_id, class_name, fee_type, amount, is_active)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (session_id, class_name, fee_type) DO UPDATE SET
	amount = EXCLUDED.amount,
	is_active = EXCLUDED.is_active`, r.table)
	_, err := r.db.ExecContext(ctx, query, rule.SessionID, rule.ClassName, string(rule.FeeType), rule.Amount, rule.IsActive)
	return err
}

// TransportRepository is a Postgres implementation for routes, rates and enrollments.
type TransportRepository struct {
	db               DBTX
	routesTable      string
	ratesTable       string
	enrollmentsTable string
}

// NewTransportRepository constructs a repository.
func NewTransportRepository(db DBTX) *TransportRepository {
	return &TransportRepository{
		db:               db,
		routesTable:      defaultRoutesTable,
		ratesTable:       defaultRatesTable,
		enrollmentsTable: defaultEnrollmentsTable,
	}
}

// SaveRoute upserts a route.
func (r *TransportRepository) SaveRoute(ctx context.Context, route catalog.TransportRoute) error {
	if r == nil || r.db == nil {
		return errors.New("transport repo: nil db")
	}
	if route.ID == "" {
		return catalog.ErrEmptyRouteID
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, name) VALUES ($1,$2)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, r.routesTable)
	_, err := r.db.ExecContext(ctx, query, route.ID, route.Name)
	return err
}

// SaveRate upserts a rate.
func (r *TransportRepository) SaveRate(ctx context.Context, rate catalog.TransportRate) error {
	if r == nil || r.db == nil {
		return errors.New("transport repo: nil db")
	}
	if err := rate.Validate(); err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (route_id, class_band, monthly_fee) VALUES ($1,$2,$3)
ON CONFLICT (route_id, class_band) DO UPDATE SET monthly_fee = EXCLUDED.monthly_fee`, r.ratesTable)
	_, err := r.db.ExecContext(ctx, query, rate.RouteID, rate.ClassBand, rate.MonthlyFee)
	return err
}

// RateFor returns the rate of a route for a class band.
func (r *TransportRepository) RateFor(ctx context.Context, routeID, classBand string) (*catalog.TransportRate, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("transport repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT route_id, class_band, monthly_fee
FROM %s
WHERE route_id = $1 AND class_band = $2`, r.ratesTable)
	var rate catalog.TransportRate
	err := r.db.QueryRowContext(ctx, query, routeID, classBand).Scan(&rate.RouteID, &rate.ClassBand, &rate.MonthlyFee)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

// ListEnrollments returns a student's enrollments ordered by start date.
func (r *TransportRepository) ListEnrollments(ctx context.Context, studentID string) ([]catalog.TransportEnrollment, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("transport repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, student_id, route_id, start_date, end_date, monthly_fee_at_enrollment
FROM %s
WHERE student_id = $1
ORDER BY start_date ASC, id ASC`, r.enrollmentsTable)
	rows, err := r.db.QueryContext(ctx, query, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []catalog.TransportEnrollment
	for rows.Next() {
		var e catalog.TransportEnrollment
		var endDate sql.NullTime
		if err := rows.Scan(&e.ID, &e.StudentID, &e.RouteID, &e.StartDate, &endDate, &e.MonthlyFeeAtEnrollment); err != nil {
			return nil, err
		}
		e.StartDate = e.StartDate.UTC()
		if endDate.Valid {
			end := endDate.Time.UTC()
			e.EndDate = &end
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SaveEnrollment upserts an enrollment.
func (r *TransportRepository) SaveEnrollment(ctx context.Context, enrollment catalog.TransportEnrollment) error {
	if r == nil || r.db == nil {
		return errors.New("transport repo: nil db")
	}
	if err := enrollment.Validate(); err != nil {
		return err
	}
	var endDate sql.NullTime
	if enrollment.EndDate != nil {
		endDate = sql.NullTime{Time: enrollment.EndDate.UTC(), Valid: true}
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, student_id, route_id, start_date, end_date, monthly_fee_at_enrollment)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET
	route_id = EXCLUDED.route_id,
	start_date = EXCLUDED.start_date,
	end_date = EXCLUDED.end_date,
	monthly_fee_at_enrollment = EXCLUDED.monthly_fee_at_enrollment`, r.enrollmentsTable)
	_, err := r.db.ExecContext(ctx, query,
		enrollment.ID, enrollment.StudentID, enrollment.RouteID, enrollment.StartDate.UTC(), endDate, enrollment.MonthlyFeeAtEnrollment)
	return err
}

// StudentDirectory reads the student registry view.
type StudentDirectory struct {
	db    DBTX
	table string
}

// NewStudentDirectory constructs a directory.
func NewStudentDirectory(db DBTX) *StudentDirectory {
	return &StudentDirectory{db: db, table: defaultStudentsTable}
}

const studentColumns = `student_id, class_name, has_transport, transport_route_id, admission_fee_paid, is_active`

// Get loads a profile.
func (d *StudentDirectory) Get(ctx context.Context, studentID string) (*catalog.StudentProfile, error) {
	if d == nil || d.db == nil {
		return nil, errors.New("student directory: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE student_id = $1`, studentColumns, d.table)
	profile, err := scanStudent(d.db.QueryRowContext(ctx, query, studentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// ListActive returns active students ordered by id.
func (d *StudentDirectory) ListActive(ctx context.Context) ([]catalog.StudentProfile, error) {
	if d == nil || d.db == nil {
		return nil, errors.New("student directory: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE is_active = TRUE ORDER BY student_id ASC`, studentColumns, d.table)
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []catalog.StudentProfile
	for rows.Next() {
		profile, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanStudent(row rowScanner) (catalog.StudentProfile, error) {
	var p catalog.StudentProfile
	var routeID sql.NullString
	if err := row.Scan(&p.StudentID, &p.ClassName, &p.HasTransport, &routeID, &p.AdmissionFeePaid, &p.IsActive); err != nil {
		return catalog.StudentProfile{}, err
	}
	if routeID.Valid {
		p.TransportRouteID = routeID.String
	}
	return p, nil
}

var (
	_ catalog.SessionRepository      = (*SessionRepository)(nil)
	_ catalog.FeeStructureRepository = (*FeeStructureRepository)(nil)
	_ catalog.TransportRepository    = (*TransportRepository)(nil)
	_ catalog.StudentDirectory       = (*StudentDirectory)(nil)
)
