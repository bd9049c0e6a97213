package authz

// Grant is the grade and permission set assigned when a signup is approved.
type Grant struct {
	Grade Grade
	Flags Flags
}

// FilterGrant trims requested down to what an approver of actorGrade may
// assign. Masters assign grade and flags; managers assign flags only and the
// new employee starts as staff. Staff cannot grant anything.
func FilterGrant(actorGrade Grade, requested Grant) (Grant, bool) {
	switch actorGrade {
	case GradeMaster:
		return requested, true
	case GradeManager:
		return Grant{Grade: GradeStaff, Flags: requested.Flags}, true
	}
	return Grant{}, false
}

// Assignable reports whether g may be chosen on the approval form.
func (g Grade) Assignable() bool {
	return g == GradeManager || g == GradeStaff
}
