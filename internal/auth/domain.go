package auth

import "time"

// User represents the credentials view of a directory account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	State        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Signup states that may sign in. Rejected signups are locked out.
const (
	stateAwaiting = "AW"
	stateApproved = "AP"
)

// CanSignIn reports whether the account may open a session.
func (u User) CanSignIn() bool {
	return u.State == stateAwaiting || u.State == stateApproved
}
