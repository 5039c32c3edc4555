package dues

import "errors"

var (
	// ErrInvalidPolicy is returned when a billing policy is inconsistent.
	ErrInvalidPolicy = errors.New("dues: invalid billing policy")
	// ErrInvalidMonth is returned when the transport-free month is out of range.
	ErrInvalidMonth = errors.New("dues: invalid month")
)
