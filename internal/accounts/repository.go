package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-directory/internal/authz"
	"github.com/odyssey-erp/odyssey-directory/internal/platform/db"
)

const uniqueViolation = "23505"

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	CreateUser(ctx context.Context, user User) (User, error)
	GetMember(ctx context.Context, userID int64) (Member, error)
	LockUser(ctx context.Context, id int64) (User, error)
	LockEmployee(ctx context.Context, id int64) (Employee, error)
	CreateEmployee(ctx context.Context, emp Employee) (Employee, error)
	UpdateUserState(ctx context.Context, id int64, state SignupState, reason string, at *time.Time) error
	UpdateProfile(ctx context.Context, userID int64, name, phone string) error
	UpdateEmployee(ctx context.Context, emp Employee) error
	CreateResignation(ctx context.Context, res Resignation) (Resignation, error)
}

type txRepo struct {
	q querier
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

const userColumns = `u.id, u.email, u.name, u.phone, u.password_hash, u.state, COALESCE(u.reason_for_refusal, ''), u.rejected_at, u.created_at, u.updated_at`

const employeeColumns = `e.id, e.user_id, e.grade, e.signup_approval_authorization, e.list_read_authorization,
e.update_authorization, e.resign_authorization, e.is_resigned, u.name, u.email, u.phone, e.created_at, e.updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	var state string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.PasswordHash, &state, &u.ReasonForRefusal, &u.RejectedAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	u.State = SignupState(state)
	return u, nil
}

func scanEmployee(row pgx.Row) (Employee, error) {
	var e Employee
	var grade string
	if err := row.Scan(&e.ID, &e.UserID, &grade, &e.Flags.ApproveSignup, &e.Flags.ReadList, &e.Flags.Update, &e.Flags.Resign,
		&e.IsResigned, &e.Name, &e.Email, &e.Phone, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Employee{}, ErrNotFound
		}
		return Employee{}, err
	}
	e.Grade = authz.Grade(grade)
	return e, nil
}

func getUser(ctx context.Context, q querier, id int64) (User, error) {
	return scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = $1`, id))
}

func getMember(ctx context.Context, q querier, userID int64) (Member, error) {
	user, err := getUser(ctx, q, userID)
	if err != nil {
		return Member{}, err
	}
	member := Member{User: user}
	emp, err := scanEmployee(q.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees e JOIN users u ON u.id = e.user_id WHERE e.user_id = $1`, userID))
	switch {
	case err == nil:
		member.Employee = &emp
	case !errors.Is(err, ErrNotFound):
		return Member{}, err
	}
	return member, nil
}

// GetMember fetches a user and the linked employee record.
func (r *Repository) GetMember(ctx context.Context, userID int64) (Member, error) {
	return getMember(ctx, r.pool, userID)
}

// ListUsersByState returns users in state ordered by signup time.
func (r *Repository) ListUsersByState(ctx context.Context, state SignupState) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users u WHERE u.state = $1 ORDER BY u.created_at, u.id`, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// ListEmployees returns every employee ordered by id.
func (r *Repository) ListEmployees(ctx context.Context) ([]Employee, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+employeeColumns+` FROM employees e JOIN users u ON u.id = e.user_id ORDER BY e.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var employees []Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, emp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return employees, nil
}

// GetEmployee fetches an employee by id.
func (r *Repository) GetEmployee(ctx context.Context, id int64) (Employee, error) {
	return scanEmployee(r.pool.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees e JOIN users u ON u.id = e.user_id WHERE e.id = $1`, id))
}

// GetResignation fetches the resignation of an employee.
func (r *Repository) GetResignation(ctx context.Context, employeeID int64) (Resignation, error) {
	var res Resignation
	err := r.pool.QueryRow(ctx, `SELECT id, employee_id, reason, resigned_at FROM resignations WHERE employee_id = $1`, employeeID).
		Scan(&res.ID, &res.EmployeeID, &res.Reason, &res.ResignedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Resignation{}, ErrNotFound
	}
	return res, err
}

func (t *txRepo) CreateUser(ctx context.Context, user User) (User, error) {
	err := t.q.QueryRow(ctx, `INSERT INTO users (email, name, phone, password_hash, state)
VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, updated_at`,
		user.Email, user.Name, user.Phone, user.PasswordHash, string(user.State)).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return User{}, ErrDuplicateEmail
		}
		return User{}, err
	}
	return user, nil
}

func (t *txRepo) GetMember(ctx context.Context, userID int64) (Member, error) {
	return getMember(ctx, t.q, userID)
}

func (t *txRepo) LockUser(ctx context.Context, id int64) (User, error) {
	return scanUser(t.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = $1 FOR UPDATE`, id))
}

func (t *txRepo) LockEmployee(ctx context.Context, id int64) (Employee, error) {
	return scanEmployee(t.q.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees e JOIN users u ON u.id = e.user_id WHERE e.id = $1 FOR UPDATE OF e, u`, id))
}

func (t *txRepo) CreateEmployee(ctx context.Context, emp Employee) (Employee, error) {
	err := t.q.QueryRow(ctx, `INSERT INTO employees (user_id, grade, signup_approval_authorization, list_read_authorization, update_authorization, resign_authorization)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at`,
		emp.UserID, string(emp.Grade), emp.Flags.ApproveSignup, emp.Flags.ReadList, emp.Flags.Update, emp.Flags.Resign).
		Scan(&emp.ID, &emp.CreatedAt, &emp.UpdatedAt)
	if err != nil {
		return Employee{}, err
	}
	return emp, nil
}

func (t *txRepo) UpdateUserState(ctx context.Context, id int64, state SignupState, reason string, at *time.Time) error {
	tag, err := t.q.Exec(ctx, `UPDATE users SET state = $2, reason_for_refusal = NULLIF($3, ''), rejected_at = $4, updated_at = NOW() WHERE id = $1`,
		id, string(state), reason, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) UpdateProfile(ctx context.Context, userID int64, name, phone string) error {
	_, err := t.q.Exec(ctx, `UPDATE users SET name = $2, phone = $3, updated_at = NOW() WHERE id = $1`, userID, name, phone)
	return err
}

func (t *txRepo) UpdateEmployee(ctx context.Context, emp Employee) error {
	_, err := t.q.Exec(ctx, `UPDATE employees SET grade = $2, signup_approval_authorization = $3, list_read_authorization = $4,
update_authorization = $5, resign_authorization = $6, is_resigned = $7, updated_at = NOW() WHERE id = $1`,
		emp.ID, string(emp.Grade), emp.Flags.ApproveSignup, emp.Flags.ReadList, emp.Flags.Update, emp.Flags.Resign, emp.IsResigned)
	return err
}

func (t *txRepo) CreateResignation(ctx context.Context, res Resignation) (Resignation, error) {
	err := t.q.QueryRow(ctx, `INSERT INTO resignations (employee_id, reason, resigned_at) VALUES ($1, $2, $3) RETURNING id`,
		res.EmployeeID, res.Reason, res.ResignedAt).Scan(&res.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Resignation{}, ErrAlreadyResigned
		}
		return Resignation{}, err
	}
	return res, nil
}
