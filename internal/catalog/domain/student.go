package catalog

// StudentProfile is the engine's read-only view of the student registry.
type StudentProfile struct {
	StudentID        string
	ClassName        string
	HasTransport     bool
	TransportRouteID string
	AdmissionFeePaid bool
	IsActive         bool
}

// Validate checks profile invariants.
func (p StudentProfile) Validate() error {
	if p.StudentID == "" {
		return ErrEmptyStudentID
	}
	if p.ClassName == "" {
		return ErrEmptyClassName
	}
	if p.HasTransport && p.TransportRouteID == "" {
		return ErrEmptyRouteID
	}
	return nil
}
