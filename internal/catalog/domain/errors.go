package catalog

import "errors"

var (
	// ErrEmptySessionID is returned when session id is empty.
	ErrEmptySessionID = errors.New("catalog: empty session id")
	// ErrInvalidSession is returned when a session has no usable date range.
	ErrInvalidSession = errors.New("catalog: invalid session range")
	// ErrSessionNotFound is returned when a session does not exist.
	ErrSessionNotFound = errors.New("catalog: session not found")
	// ErrNoPreviousSession is returned when no session precedes a date.
	ErrNoPreviousSession = errors.New("catalog: no previous session")
	// ErrEmptyClassName is returned when a class name is empty.
	ErrEmptyClassName = errors.New("catalog: empty class name")
	// ErrInvalidFeeType is returned for an unknown fee type.
	ErrInvalidFeeType = errors.New("catalog: invalid fee type")
	// ErrNegativeAmount is returned when a fee or rate is negative.
	ErrNegativeAmount = errors.New("catalog: negative amount")
	// ErrEmptyStudentID is returned when student id is empty.
	ErrEmptyStudentID = errors.New("catalog: empty student id")
	// ErrStudentNotFound is returned when the registry has no such student.
	ErrStudentNotFound = errors.New("catalog: student not found")
	// ErrEmptyRouteID is returned when a route id is empty.
	ErrEmptyRouteID = errors.New("catalog: empty route id")
	// ErrRateNotFound is returned when a route has no rate for a class band.
	ErrRateNotFound = errors.New("catalog: transport rate not found")
	// ErrInvalidEnrollment is returned when enrollment dates are inconsistent.
	ErrInvalidEnrollment = errors.New("catalog: invalid enrollment range")
)
