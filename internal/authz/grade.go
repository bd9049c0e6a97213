// Package authz holds the authorization decision engine for the employee
// directory. Every function here is pure: callers resolve actor and target
// snapshots first and pass them in by value.
package authz

import (
	"fmt"
	"strings"
)

// Grade is an employee rank.
type Grade string

const (
	// GradeMaster has unrestricted authority.
	GradeMaster Grade = "MS"
	// GradeManager has authority over staff and restricted authority over masters and managers.
	GradeManager Grade = "MA"
	// GradeStaff may only resubmit unchanged values.
	GradeStaff Grade = "ST"
)

// Valid reports whether g is one of the three known grades.
func (g Grade) Valid() bool {
	switch g {
	case GradeMaster, GradeManager, GradeStaff:
		return true
	}
	return false
}

// Label returns the display name of the grade.
func (g Grade) Label() string {
	switch g {
	case GradeMaster:
		return "Master"
	case GradeManager:
		return "Manager"
	case GradeStaff:
		return "Staff"
	}
	return ""
}

// ParseGrade accepts grade codes (MS, MA, ST) or names (master, manager, staff).
func ParseGrade(raw string) (Grade, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ms", "master":
		return GradeMaster, nil
	case "ma", "manager":
		return GradeManager, nil
	case "st", "staff":
		return GradeStaff, nil
	}
	return "", fmt.Errorf("%w: unknown grade %q", ErrInvalidInput, raw)
}
