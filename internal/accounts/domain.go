package accounts

import (
	"time"

	"github.com/odyssey-erp/odyssey-directory/internal/authz"
)

// SignupState tracks a user through the signup workflow.
type SignupState string

const (
	// StateAwaiting marks a signup waiting for a decision.
	StateAwaiting SignupState = "AW"
	// StateApproved marks an approved signup with an employee record.
	StateApproved SignupState = "AP"
	// StateRejected marks a refused signup.
	StateRejected SignupState = "RJ"
)

// Field length limits shared by validation and the schema.
const (
	MaxNameLength   = 50
	MaxPhoneLength  = 11
	MaxReasonLength = 50
)

// User is a directory account, created at signup.
type User struct {
	ID               int64       `json:"id"`
	Email            string      `json:"email"`
	Name             string      `json:"name"`
	Phone            string      `json:"phone"`
	PasswordHash     string      `json:"-"`
	State            SignupState `json:"state"`
	ReasonForRefusal string      `json:"reason_for_refusal,omitempty"`
	RejectedAt       *time.Time  `json:"rejected_at,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Employee is the record created when a signup is approved.
type Employee struct {
	ID         int64       `json:"id"`
	UserID     int64       `json:"user_id"`
	Grade      authz.Grade `json:"grade"`
	Flags      authz.Flags `json:"authorizations"`
	IsResigned bool        `json:"is_resigned"`
	Name       string      `json:"name"`
	Email      string      `json:"email"`
	Phone      string      `json:"phone"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`

	// Resignation is only filled on single-employee reads.
	Resignation *Resignation `json:"resignation,omitempty"`
}

// Target converts the record into an evaluator snapshot.
func (e Employee) Target() authz.Target {
	return authz.Target{
		EmployeeID: e.ID,
		UserID:     e.UserID,
		Grade:      e.Grade,
		Flags:      e.Flags,
		IsResigned: e.IsResigned,
		Name:       e.Name,
		Phone:      e.Phone,
	}
}

// Resignation records why and when an employee left.
type Resignation struct {
	ID         int64     `json:"id"`
	EmployeeID int64     `json:"employee_id"`
	Reason     string    `json:"reason"`
	ResignedAt time.Time `json:"resigned_at"`
}

// Member is a user together with the employee record, when one exists.
type Member struct {
	User     User
	Employee *Employee
}

// Approved reports whether the member holds an active employee record.
func (m Member) Approved() bool {
	return m.User.State == StateApproved && m.Employee != nil && !m.Employee.IsResigned
}

// Flags returns the member's permission flags, zero when not an employee.
func (m Member) Flags() authz.Flags {
	if m.Employee == nil {
		return authz.Flags{}
	}
	return m.Employee.Flags
}

// Actor converts the member into an evaluator snapshot.
func (m Member) Actor() authz.Actor {
	actor := authz.Actor{UserID: m.User.ID}
	if m.Employee != nil {
		actor.Grade = m.Employee.Grade
		actor.Flags = m.Employee.Flags
	}
	return actor
}
