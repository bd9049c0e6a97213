package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-directory/internal/authz"
	"github.com/odyssey-erp/odyssey-directory/internal/shared"
)

// ApprovalModule tags signup decisions in the approvals log.
const ApprovalModule = "SIGNUP"

// Decision actions reported to the DecisionRecorder.
const (
	ActionSignupList   = "signup_list"
	ActionApprove      = "approve"
	ActionRefuse       = "refuse"
	ActionEmployeeList = "employee_list"
	ActionUpdate       = "update"
	ActionResign       = "resign"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetMember(ctx context.Context, userID int64) (Member, error)
	ListUsersByState(ctx context.Context, state SignupState) ([]User, error)
	ListEmployees(ctx context.Context) ([]Employee, error)
	GetEmployee(ctx context.Context, id int64) (Employee, error)
	GetResignation(ctx context.Context, employeeID int64) (Resignation, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort records signup decisions.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

// Decision is the outcome of a signup review, delivered to the applicant.
type Decision struct {
	UserID    int64       `json:"user_id"`
	Email     string      `json:"email"`
	Name      string      `json:"name"`
	Approved  bool        `json:"approved"`
	Grade     authz.Grade `json:"grade,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	DecidedBy int64       `json:"decided_by"`
	DecidedAt time.Time   `json:"decided_at"`
}

// Notifier delivers signup decisions asynchronously.
type Notifier interface {
	NotifySignupDecision(ctx context.Context, decision Decision) error
}

// DecisionRecorder observes authorization outcomes.
type DecisionRecorder interface {
	ObserveDecision(action string, allowed bool)
	ObserveDenials(fields []string)
}

// ServiceDeps bundles the optional collaborators of Service.
type ServiceDeps struct {
	Approvals ApprovalPort
	Audit     AuditPort
	Cache     *DirectoryCache
	Notifier  Notifier
	Metrics   DecisionRecorder
	Logger    *slog.Logger
	Validator *Validator
	Now       func() time.Time
}

// Service orchestrates the signup and employee directory flows.
type Service struct {
	repo      RepositoryPort
	evaluator *authz.Evaluator
	approvals ApprovalPort
	audit     AuditPort
	cache     *DirectoryCache
	notifier  Notifier
	metrics   DecisionRecorder
	logger    *slog.Logger
	validator *Validator
	now       func() time.Time
}

// NewService constructs the accounts service.
func NewService(repo RepositoryPort, evaluator *authz.Evaluator, deps ServiceDeps) *Service {
	if evaluator == nil {
		evaluator = authz.NewEvaluator(authz.FlagModeStrict)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Validator == nil {
		deps.Validator = NewValidator()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		repo:      repo,
		evaluator: evaluator,
		approvals: deps.Approvals,
		audit:     deps.Audit,
		cache:     deps.Cache,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		validator: deps.Validator,
		now:       deps.Now,
	}
}

// SignupInput is the self-service registration payload.
type SignupInput struct {
	Email           string `json:"email" validate:"required,max=254,directory_email"`
	Name            string `json:"name" validate:"required,max=50"`
	Phone           string `json:"phone" validate:"required,max=11,directory_phone"`
	Password        string `json:"password" validate:"required,directory_password"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

// ApproveInput approves a pending signup with the requested grant.
type ApproveInput struct {
	ActorUserID int64
	UserID      int64
	Grade       string
	Flags       authz.Flags
}

// RefuseInput rejects a pending signup.
type RefuseInput struct {
	ActorUserID int64
	UserID      int64
	Reason      string
}

// UpdateInput carries one employee-detail submission.
type UpdateInput struct {
	ActorUserID int64
	EmployeeID  int64
	Changes     authz.ProposedChanges
}

// ResignInput terminates an employee.
type ResignInput struct {
	ActorUserID int64
	EmployeeID  int64
	Reason      string
}

// Signup registers a new user awaiting approval.
func (s *Service) Signup(ctx context.Context, input SignupInput) (User, error) {
	input.Email = strings.TrimSpace(input.Email)
	input.Name = NormalizeText(input.Name)
	input.Phone = NormalizeText(input.Phone)
	if err := s.validator.Struct(input); err != nil {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("accounts: hash password: %w", err)
	}
	user := User{
		Email:        input.Email,
		Name:         input.Name,
		Phone:        input.Phone,
		PasswordHash: string(hash),
		State:        StateAwaiting,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.CreateUser(ctx, user)
		if err != nil {
			return err
		}
		user = created
		return nil
	})
	if err != nil {
		return User{}, err
	}
	s.logger.Info("signup registered", slog.Int64("user_id", user.ID))
	s.recordApproval(ctx, user.ID, user.ID, shared.ApprovalSubmit, "self-service signup")
	s.recordAudit(ctx, user.ID, "signup.create", "user", user.ID, map[string]any{"email": user.Email})
	return user, nil
}

// ListPendingSignups returns users awaiting a decision.
func (s *Service) ListPendingSignups(ctx context.Context, actorUserID int64) ([]User, error) {
	member, err := s.member(ctx, s.repo.GetMember, actorUserID)
	if err != nil {
		return nil, err
	}
	if err := s.guard(ActionSignupList, authz.GuardSignupList(member.Approved(), member.Flags())); err != nil {
		return nil, err
	}
	users, err := s.repo.ListUsersByState(ctx, StateAwaiting)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

// SignupHistory lists the approval trail of one signup, oldest first.
func (s *Service) SignupHistory(ctx context.Context, actorUserID, userID int64) ([]shared.ApprovalLog, error) {
	member, err := s.member(ctx, s.repo.GetMember, actorUserID)
	if err != nil {
		return nil, err
	}
	if err := s.guard(ActionSignupList, authz.GuardSignupList(member.Approved(), member.Flags())); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetMember(ctx, userID); err != nil {
		return nil, err
	}
	if s.approvals == nil {
		return []shared.ApprovalLog{}, nil
	}
	logs, err := s.approvals.List(ctx, ApprovalModule, SignupRef(userID))
	if err != nil {
		return nil, fmt.Errorf("accounts: signup history: %w", err)
	}
	return logs, nil
}

// ApproveSignup creates the employee record for a pending user.
func (s *Service) ApproveSignup(ctx context.Context, input ApproveInput) (Employee, error) {
	var (
		emp  Employee
		user User
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		member, err := s.member(ctx, tx.GetMember, input.ActorUserID)
		if err != nil {
			return err
		}
		if err := s.guard(ActionApprove, authz.GuardSignupList(member.Approved(), member.Flags())); err != nil {
			return err
		}
		grant, err := s.resolveGrant(member.Actor(), input)
		if err != nil {
			return err
		}
		user, err = tx.LockUser(ctx, input.UserID)
		if err != nil {
			return err
		}
		if user.State != StateAwaiting {
			return ErrInvalidState
		}
		emp, err = tx.CreateEmployee(ctx, Employee{UserID: user.ID, Grade: grant.Grade, Flags: grant.Flags})
		if err != nil {
			return err
		}
		emp.Name, emp.Email, emp.Phone = user.Name, user.Email, user.Phone
		return tx.UpdateUserState(ctx, user.ID, StateApproved, "", nil)
	})
	if err != nil {
		return Employee{}, err
	}

	s.logger.Info("signup approved", slog.Int64("user_id", user.ID), slog.Int64("actor_id", input.ActorUserID), slog.String("grade", string(emp.Grade)))
	s.recordApproval(ctx, input.ActorUserID, user.ID, shared.ApprovalApprove, fmt.Sprintf("approved as %s", emp.Grade.Label()))
	s.recordAudit(ctx, input.ActorUserID, "signup.approve", "user", user.ID, map[string]any{"employee_id": emp.ID, "grade": emp.Grade, "flags": emp.Flags})
	s.invalidate(ctx)
	s.notify(ctx, Decision{UserID: user.ID, Email: user.Email, Name: user.Name, Approved: true, Grade: emp.Grade, DecidedBy: input.ActorUserID, DecidedAt: s.now()})
	return emp, nil
}

// resolveGrant applies the approver's grade limits to the requested grant.
func (s *Service) resolveGrant(actor authz.Actor, input ApproveInput) (authz.Grant, error) {
	requested := authz.Grant{Flags: input.Flags}
	if actor.Grade == authz.GradeMaster {
		if strings.TrimSpace(input.Grade) == "" {
			return authz.Grant{}, fieldError(authz.FieldGrade, "this field is required")
		}
		grade, err := authz.ParseGrade(input.Grade)
		if err != nil {
			return authz.Grant{}, fieldError(authz.FieldGrade, "unknown grade")
		}
		if !grade.Assignable() {
			return authz.Grant{}, s.deny(ActionApprove, authz.FieldGrade, authz.ReasonMasterNotAssignable)
		}
		requested.Grade = grade
	}
	grant, ok := authz.FilterGrant(actor.Grade, requested)
	if !ok {
		return authz.Grant{}, s.deny(ActionApprove, authz.FieldApproveSignup, authz.ReasonNoApprovalAuthority)
	}
	return grant, nil
}

// RefuseSignup rejects a pending user with a reason.
func (s *Service) RefuseSignup(ctx context.Context, input RefuseInput) (User, error) {
	input.Reason = NormalizeText(input.Reason)
	if err := validReason(authz.FieldReasonForRefusal, input.Reason); err != nil {
		return User{}, err
	}
	var user User
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		member, err := s.member(ctx, tx.GetMember, input.ActorUserID)
		if err != nil {
			return err
		}
		if err := s.guard(ActionRefuse, authz.GuardSignupList(member.Approved(), member.Flags())); err != nil {
			return err
		}
		errs := authz.FieldErrors{}
		s.evaluator.CheckRefusal(member.Actor(), errs)
		if err := s.verdict(ActionRefuse, errs); err != nil {
			return err
		}
		user, err = tx.LockUser(ctx, input.UserID)
		if err != nil {
			return err
		}
		if user.State != StateAwaiting {
			return ErrInvalidState
		}
		at := s.now().UTC()
		if err := tx.UpdateUserState(ctx, user.ID, StateRejected, input.Reason, &at); err != nil {
			return err
		}
		user.State = StateRejected
		user.ReasonForRefusal = input.Reason
		user.RejectedAt = &at
		return nil
	})
	if err != nil {
		return User{}, err
	}

	s.logger.Info("signup refused", slog.Int64("user_id", user.ID), slog.Int64("actor_id", input.ActorUserID))
	s.recordApproval(ctx, input.ActorUserID, user.ID, shared.ApprovalReject, input.Reason)
	s.recordAudit(ctx, input.ActorUserID, "signup.refuse", "user", user.ID, map[string]any{"reason": input.Reason})
	s.notify(ctx, Decision{UserID: user.ID, Email: user.Email, Name: user.Name, Reason: input.Reason, DecidedBy: input.ActorUserID, DecidedAt: *user.RejectedAt})
	return user, nil
}

// ListEmployees returns the employee directory.
func (s *Service) ListEmployees(ctx context.Context, actorUserID int64) ([]Employee, error) {
	if err := s.employeeListAccess(ctx, actorUserID); err != nil {
		return nil, err
	}
	employees := []Employee{}
	key, err := s.cache.BuildKey(ctx, "employees")
	if err != nil {
		s.logger.Warn("directory cache key", slog.Any("error", err))
		listed, err := s.repo.ListEmployees(ctx)
		if err != nil {
			return nil, err
		}
		return append(employees, listed...), nil
	}
	err = s.cache.FetchJSON(ctx, key, &employees, func(ctx context.Context) (any, error) {
		return s.repo.ListEmployees(ctx)
	})
	if err != nil {
		return nil, err
	}
	if employees == nil {
		employees = []Employee{}
	}
	return employees, nil
}

// GetEmployee returns a single directory entry, with the resignation record
// when the employee has left.
func (s *Service) GetEmployee(ctx context.Context, actorUserID, employeeID int64) (Employee, error) {
	if err := s.employeeListAccess(ctx, actorUserID); err != nil {
		return Employee{}, err
	}
	key, err := s.cache.BuildKey(ctx, "employees", strconv.FormatInt(employeeID, 10))
	if err != nil {
		s.logger.Warn("directory cache key", slog.Any("error", err))
		return s.loadEmployee(ctx, employeeID)
	}
	var emp Employee
	err = s.cache.FetchJSON(ctx, key, &emp, func(ctx context.Context) (any, error) {
		return s.loadEmployee(ctx, employeeID)
	})
	if err != nil {
		return Employee{}, err
	}
	return emp, nil
}

func (s *Service) loadEmployee(ctx context.Context, employeeID int64) (Employee, error) {
	emp, err := s.repo.GetEmployee(ctx, employeeID)
	if err != nil || !emp.IsResigned {
		return emp, err
	}
	res, err := s.repo.GetResignation(ctx, employeeID)
	switch {
	case err == nil:
		emp.Resignation = &res
	case !errors.Is(err, ErrNotFound):
		return Employee{}, err
	}
	return emp, nil
}

func (s *Service) employeeListAccess(ctx context.Context, actorUserID int64) error {
	member, err := s.member(ctx, s.repo.GetMember, actorUserID)
	if err != nil {
		return err
	}
	return s.guard(ActionEmployeeList, authz.GuardEmployeeList(member.Approved(), member.Flags()))
}

// UpdateEmployee applies an employee-detail submission. Every check runs and
// nothing is written unless all of them pass.
func (s *Service) UpdateEmployee(ctx context.Context, input UpdateInput) (Employee, error) {
	changes := input.Changes
	changes.Name = NormalizeText(changes.Name)
	changes.Phone = NormalizeText(changes.Phone)
	changes.ResignationReason = NormalizeText(changes.ResignationReason)
	if err := changes.Validate(); err != nil {
		return Employee{}, fmt.Errorf("accounts: update employee %d: %w", input.EmployeeID, err)
	}
	if changes.Resign {
		if err := validReason(authz.FieldReasonForResignation, changes.ResignationReason); err != nil {
			return Employee{}, err
		}
	}

	var (
		before, after Employee
		diff          map[string]any
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		member, err := s.member(ctx, tx.GetMember, input.ActorUserID)
		if err != nil {
			return err
		}
		if err := s.guard(ActionUpdate, authz.GuardEmployeeList(member.Approved(), member.Flags())); err != nil {
			return err
		}
		before, err = tx.LockEmployee(ctx, input.EmployeeID)
		if err != nil {
			return err
		}
		if before.IsResigned {
			return ErrAlreadyResigned
		}

		errs := authz.FieldErrors{}
		actor := member.Actor()
		s.evaluator.CheckEmployeeListMutation(actor, before.Target(), changes, errs)
		if changes.Resign {
			s.evaluator.CheckResignation(actor, errs)
		}
		if err := s.verdict(ActionUpdate, errs); err != nil {
			return err
		}

		after, diff = applyChanges(before, changes)
		if diff[authz.FieldName] != nil || diff[authz.FieldPhone] != nil {
			if err := tx.UpdateProfile(ctx, after.UserID, after.Name, after.Phone); err != nil {
				return err
			}
		}
		if len(diff) > 0 {
			if err := tx.UpdateEmployee(ctx, after); err != nil {
				return err
			}
		}
		if changes.Resign {
			if _, err := tx.CreateResignation(ctx, Resignation{EmployeeID: after.ID, Reason: changes.ResignationReason, ResignedAt: s.now().UTC()}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Employee{}, err
	}

	if len(diff) > 0 {
		s.logger.Info("employee updated", slog.Int64("employee_id", after.ID), slog.Int64("actor_id", input.ActorUserID), slog.Int("fields", len(diff)))
		s.recordAudit(ctx, input.ActorUserID, "employee.update", "employee", after.ID, diff)
		s.invalidate(ctx)
	}
	return after, nil
}

// applyChanges returns the updated record and the changed fields with their
// before and after values.
func applyChanges(before Employee, changes authz.ProposedChanges) (Employee, map[string]any) {
	after := before
	after.Grade = changes.Grade
	after.Flags = changes.Flags
	after.Name = changes.Name
	after.Phone = changes.Phone
	if changes.Resign {
		after.IsResigned = true
	}
	diff := map[string]any{}
	if authz.HasChanged(authz.FieldGrade, before.Grade, after.Grade) {
		diff[authz.FieldGrade] = []authz.Grade{before.Grade, after.Grade}
	}
	for _, field := range authz.FlagFields {
		if authz.HasChanged(field, before.Flags.Value(field), after.Flags.Value(field)) {
			diff[field] = []bool{before.Flags.Value(field), after.Flags.Value(field)}
		}
	}
	if authz.HasChanged(authz.FieldName, before.Name, after.Name) {
		diff[authz.FieldName] = []string{before.Name, after.Name}
	}
	if authz.HasChanged(authz.FieldPhone, before.Phone, after.Phone) {
		diff[authz.FieldPhone] = []string{before.Phone, after.Phone}
	}
	if authz.HasChanged(authz.FieldIsResigned, before.IsResigned, after.IsResigned) {
		diff[authz.FieldIsResigned] = []bool{before.IsResigned, after.IsResigned}
	}
	return after, diff
}

// ResignEmployee terminates an employee.
func (s *Service) ResignEmployee(ctx context.Context, input ResignInput) (Resignation, error) {
	input.Reason = NormalizeText(input.Reason)
	if err := validReason(authz.FieldReasonForResignation, input.Reason); err != nil {
		return Resignation{}, err
	}
	var res Resignation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		member, err := s.member(ctx, tx.GetMember, input.ActorUserID)
		if err != nil {
			return err
		}
		if err := s.guard(ActionResign, authz.GuardEmployeeList(member.Approved(), member.Flags())); err != nil {
			return err
		}
		errs := authz.FieldErrors{}
		s.evaluator.CheckResignation(member.Actor(), errs)
		if err := s.verdict(ActionResign, errs); err != nil {
			return err
		}
		emp, err := tx.LockEmployee(ctx, input.EmployeeID)
		if err != nil {
			return err
		}
		if emp.IsResigned {
			return ErrAlreadyResigned
		}
		emp.IsResigned = true
		if err := tx.UpdateEmployee(ctx, emp); err != nil {
			return err
		}
		res, err = tx.CreateResignation(ctx, Resignation{EmployeeID: emp.ID, Reason: input.Reason, ResignedAt: s.now().UTC()})
		return err
	})
	if err != nil {
		return Resignation{}, err
	}

	s.logger.Info("employee resigned", slog.Int64("employee_id", res.EmployeeID), slog.Int64("actor_id", input.ActorUserID))
	s.recordAudit(ctx, input.ActorUserID, "employee.resign", "employee", res.EmployeeID, map[string]any{"reason": res.Reason})
	s.invalidate(ctx)
	return res, nil
}

// member resolves the acting user; unknown users are treated as anonymous.
func (s *Service) member(ctx context.Context, get func(context.Context, int64) (Member, error), userID int64) (Member, error) {
	if userID <= 0 {
		return Member{}, ErrUnauthenticated
	}
	member, err := get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Member{}, ErrUnauthenticated
	}
	return member, err
}

func (s *Service) guard(action string, access authz.Access) error {
	s.observe(action, access.Allowed)
	if access.Allowed {
		return nil
	}
	return &ForbiddenError{Redirect: access.Redirect}
}

func (s *Service) verdict(action string, errs authz.FieldErrors) error {
	s.observe(action, errs.Empty())
	if errs.Empty() {
		return nil
	}
	if s.metrics != nil {
		s.metrics.ObserveDenials(errs.Fields())
	}
	return &DeniedError{Errors: errs}
}

func (s *Service) deny(action, field, reason string) error {
	errs := authz.FieldErrors{}
	errs.AddError(field, reason)
	return s.verdict(action, errs)
}

func (s *Service) observe(action string, allowed bool) {
	if s.metrics != nil {
		s.metrics.ObserveDecision(action, allowed)
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("directory cache bump", slog.Any("error", err))
	}
}

func (s *Service) notify(ctx context.Context, decision Decision) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifySignupDecision(ctx, decision); err != nil {
		s.logger.Warn("enqueue signup decision", slog.Int64("user_id", decision.UserID), slog.Any("error", err))
	}
}

func (s *Service) recordApproval(ctx context.Context, actorID, userID int64, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  ApprovalModule,
		RefID:   SignupRef(userID),
		ActorID: actorID,
		Action:  action,
		Note:    note,
	})
	if err != nil {
		s.logger.Warn("record approval", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: strconv.FormatInt(entityID, 10), Meta: meta})
	if err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}

// SignupRef derives the approvals reference id of a user's signup.
func SignupRef(userID int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("%s:%d", ApprovalModule, userID)))
}
