package authz

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput marks a change set that violates the caller contract.
var ErrInvalidInput = errors.New("authz: invalid input")

// ProposedChanges is the validated form input for one employee-detail submission.
type ProposedChanges struct {
	Grade Grade
	Flags Flags
	Name  string
	Phone string

	Resign            bool
	ResignationReason string
}

// Validate reports the first missing or malformed key.
func (p ProposedChanges) Validate() error {
	switch {
	case !p.Grade.Valid():
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, FieldGrade)
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, FieldName)
	case strings.TrimSpace(p.Phone) == "":
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, FieldPhone)
	case p.Resign && strings.TrimSpace(p.ResignationReason) == "":
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, FieldReasonForResignation)
	}
	return nil
}

// value returns the proposed profile value for name or phone.
func (p ProposedChanges) value(field string) string {
	if field == FieldPhone {
		return p.Phone
	}
	return p.Name
}

// HasChanged reports whether after differs from before. A resubmission of the
// stored value is never a change.
func HasChanged[T comparable](field string, before, after T) bool {
	return before != after
}
