package authz

// Redirect targets used when a guard refuses entry.
const (
	RedirectGuide        = "guide"
	RedirectEmployeeList = "employee_list"
)

// Access is the outcome of a route guard.
type Access struct {
	Allowed  bool
	Redirect string
}

// GuardSignupList admits approved employees holding the signup-approval flag.
// Approved employees without it are sent to the employee list; everyone else
// to the signup guide.
func GuardSignupList(approved bool, flags Flags) Access {
	if !approved {
		return Access{Redirect: RedirectGuide}
	}
	if !flags.ApproveSignup {
		return Access{Redirect: RedirectEmployeeList}
	}
	return Access{Allowed: true}
}

// GuardEmployeeList admits approved employees holding the list-read flag.
func GuardEmployeeList(approved bool, flags Flags) Access {
	if approved && flags.ReadList {
		return Access{Allowed: true}
	}
	return Access{Redirect: RedirectGuide}
}
