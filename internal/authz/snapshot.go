package authz

// Permission flag field names, in evaluation order.
const (
	FieldApproveSignup = "signup_approval_authorization"
	FieldReadList      = "list_read_authorization"
	FieldUpdate        = "update_authorization"
	FieldResign        = "resign_authorization"
)

// Other governed field names.
const (
	FieldGrade                = "grade"
	FieldName                 = "name"
	FieldPhone                = "phone"
	FieldIsResigned           = "is_resigned"
	FieldReasonForRefusal     = "reason_for_refusal"
	FieldReasonForResignation = "reason_for_resignation"
)

// FlagFields lists the four permission flags in the order they are compared.
var FlagFields = [4]string{FieldApproveSignup, FieldReadList, FieldUpdate, FieldResign}

// Flags are the four independent permission booleans of an employee.
type Flags struct {
	ApproveSignup bool `json:"signup_approval_authorization"`
	ReadList      bool `json:"list_read_authorization"`
	Update        bool `json:"update_authorization"`
	Resign        bool `json:"resign_authorization"`
}

// Value resolves a flag by field name. Unknown names resolve to false.
func (f Flags) Value(field string) bool {
	switch field {
	case FieldApproveSignup:
		return f.ApproveSignup
	case FieldReadList:
		return f.ReadList
	case FieldUpdate:
		return f.Update
	case FieldResign:
		return f.Resign
	}
	return false
}

// Actor is the authenticated employee attempting an action.
type Actor struct {
	UserID int64
	Grade  Grade
	Flags  Flags
}

// Target is the employee record being viewed or mutated, together with the
// linked profile fields.
type Target struct {
	EmployeeID int64
	UserID     int64
	Grade      Grade
	Flags      Flags
	IsResigned bool
	Name       string
	Phone      string
}

// Field returns the stored profile value for name or phone.
func (t Target) Field(field string) (string, bool) {
	switch field {
	case FieldName:
		return t.Name, true
	case FieldPhone:
		return t.Phone, true
	}
	return "", false
}
