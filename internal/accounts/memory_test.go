package accounts

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-directory/internal/authz"
	"github.com/odyssey-erp/odyssey-directory/internal/shared"
)

type memoryRepo struct {
	mu           sync.Mutex
	users        map[int64]User
	employees    map[int64]Employee
	resignations map[int64]Resignation
	nextID       int64
	listCalls    int
	getCalls     int
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users:        make(map[int64]User),
		employees:    make(map[int64]Employee),
		resignations: make(map[int64]Resignation),
	}
}

// WithTx restores the previous state when fn fails.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := cloneMap(r.users)
	employees := cloneMap(r.employees)
	resignations := cloneMap(r.resignations)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.users, r.employees, r.resignations = users, employees, resignations
		return err
	}
	return nil
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (r *memoryRepo) member(userID int64) (Member, error) {
	user, ok := r.users[userID]
	if !ok {
		return Member{}, ErrNotFound
	}
	m := Member{User: user}
	for _, emp := range r.employees {
		if emp.UserID == userID {
			emp := r.hydrate(emp)
			m.Employee = &emp
		}
	}
	return m, nil
}

func (r *memoryRepo) hydrate(emp Employee) Employee {
	user := r.users[emp.UserID]
	emp.Name, emp.Email, emp.Phone = user.Name, user.Email, user.Phone
	return emp
}

func (r *memoryRepo) GetMember(ctx context.Context, userID int64) (Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.member(userID)
}

func (r *memoryRepo) ListUsersByState(ctx context.Context, state SignupState) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []User
	for id := int64(1); id <= r.nextID; id++ {
		if u, ok := r.users[id]; ok && u.State == state {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListEmployees(ctx context.Context) ([]Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	var out []Employee
	for id := int64(1); id <= r.nextID; id++ {
		if emp, ok := r.employees[id]; ok {
			out = append(out, r.hydrate(emp))
		}
	}
	return out, nil
}

func (r *memoryRepo) GetEmployee(ctx context.Context, id int64) (Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls++
	emp, ok := r.employees[id]
	if !ok {
		return Employee{}, ErrNotFound
	}
	return r.hydrate(emp), nil
}

func (r *memoryRepo) GetResignation(ctx context.Context, employeeID int64) (Resignation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resignations[employeeID]
	if !ok {
		return Resignation{}, ErrNotFound
	}
	return res, nil
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

// seedPending registers a user awaiting approval.
func (r *memoryRepo) seedPending(name, email string) User {
	user := User{ID: r.id(), Email: email, Name: name, Phone: "01000000000", State: StateAwaiting, CreatedAt: time.Now()}
	r.users[user.ID] = user
	return user
}

// seedEmployee registers an approved user with an employee record and
// returns the user id and employee id.
func (r *memoryRepo) seedEmployee(name string, grade authz.Grade, flags authz.Flags) (int64, int64) {
	user := r.seedPending(name, strings.ToLower(name)+"@corp.kr")
	user.State = StateApproved
	r.users[user.ID] = user
	emp := Employee{ID: r.id(), UserID: user.ID, Grade: grade, Flags: flags}
	r.employees[emp.ID] = emp
	return user.ID, emp.ID
}

func (t *memoryTx) CreateUser(ctx context.Context, user User) (User, error) {
	for _, u := range t.repo.users {
		if strings.EqualFold(u.Email, user.Email) {
			return User{}, ErrDuplicateEmail
		}
	}
	user.ID = t.repo.id()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	t.repo.users[user.ID] = user
	return user, nil
}

func (t *memoryTx) GetMember(ctx context.Context, userID int64) (Member, error) {
	return t.repo.member(userID)
}

func (t *memoryTx) LockUser(ctx context.Context, id int64) (User, error) {
	user, ok := t.repo.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (t *memoryTx) LockEmployee(ctx context.Context, id int64) (Employee, error) {
	emp, ok := t.repo.employees[id]
	if !ok {
		return Employee{}, ErrNotFound
	}
	return t.repo.hydrate(emp), nil
}

func (t *memoryTx) CreateEmployee(ctx context.Context, emp Employee) (Employee, error) {
	emp.ID = t.repo.id()
	t.repo.employees[emp.ID] = emp
	return emp, nil
}

func (t *memoryTx) UpdateUserState(ctx context.Context, id int64, state SignupState, reason string, at *time.Time) error {
	user, ok := t.repo.users[id]
	if !ok {
		return ErrNotFound
	}
	user.State = state
	user.ReasonForRefusal = reason
	user.RejectedAt = at
	t.repo.users[id] = user
	return nil
}

func (t *memoryTx) UpdateProfile(ctx context.Context, userID int64, name, phone string) error {
	user := t.repo.users[userID]
	user.Name, user.Phone = name, phone
	t.repo.users[userID] = user
	return nil
}

func (t *memoryTx) UpdateEmployee(ctx context.Context, emp Employee) error {
	stored := t.repo.employees[emp.ID]
	stored.Grade, stored.Flags, stored.IsResigned = emp.Grade, emp.Flags, emp.IsResigned
	t.repo.employees[emp.ID] = stored
	return nil
}

func (t *memoryTx) CreateResignation(ctx context.Context, res Resignation) (Resignation, error) {
	if _, ok := t.repo.resignations[res.EmployeeID]; ok {
		return Resignation{}, ErrAlreadyResigned
	}
	res.ID = t.repo.id()
	t.repo.resignations[res.EmployeeID] = res
	return res, nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type recordingApprovals struct {
	logs []shared.ApprovalLog
}

func (a *recordingApprovals) Record(ctx context.Context, log shared.ApprovalLog) error {
	log.ID = int64(len(a.logs) + 1)
	a.logs = append(a.logs, log)
	return nil
}

func (a *recordingApprovals) List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error) {
	out := []shared.ApprovalLog{}
	for _, log := range a.logs {
		if log.Module == module && log.RefID == ref {
			out = append(out, log)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	decisions []Decision
}

func (n *recordingNotifier) NotifySignupDecision(ctx context.Context, decision Decision) error {
	n.decisions = append(n.decisions, decision)
	return nil
}

type recordingMetrics struct {
	decisions map[string]int
	denials   []string
}

func (m *recordingMetrics) ObserveDecision(action string, allowed bool) {
	if m.decisions == nil {
		m.decisions = map[string]int{}
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.decisions[action+":"+outcome]++
}

func (m *recordingMetrics) ObserveDenials(fields []string) {
	m.denials = append(m.denials, fields...)
}
