package accounts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-directory/internal/authz"
	"github.com/odyssey-erp/odyssey-directory/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-directory/internal/shared"
)

// Handler exposes the signup and employee directory endpoints as JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *Validator
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: NewValidator()}
}

// MountAccountRoutes registers the signup workflow under /accounts.
func (h *Handler) MountAccountRoutes(r chi.Router) {
	r.Post("/signup", h.signup)
	r.Get("/signups", h.listSignups)
	r.Post("/signups/{id}/approve", h.approveSignup)
	r.Post("/signups/{id}/refuse", h.refuseSignup)
	r.Get("/signups/{id}/history", h.signupHistory)
}

// MountEmployeeRoutes registers the directory under /employees.
func (h *Handler) MountEmployeeRoutes(r chi.Router) {
	r.Get("/", h.listEmployees)
	r.Get("/{id}", h.getEmployee)
	r.Patch("/{id}", h.updateEmployee)
	r.Post("/{id}/resign", h.resignEmployee)
}

type approveRequest struct {
	Grade string `json:"grade"`
	authz.Flags
}

type refuseRequest struct {
	Reason string `json:"reason_for_refusal" validate:"required,max=50"`
}

type resignRequest struct {
	Reason string `json:"reason_for_resignation" validate:"required,max=50"`
}

// updateRequest requires every change-set key to be present, even when the
// value is unchanged.
type updateRequest struct {
	Grade                *string `json:"grade" validate:"required,directory_grade"`
	ApproveSignup        *bool   `json:"signup_approval_authorization" validate:"required"`
	ReadList             *bool   `json:"list_read_authorization" validate:"required"`
	Update               *bool   `json:"update_authorization" validate:"required"`
	Resign               *bool   `json:"resign_authorization" validate:"required"`
	Name                 *string `json:"name" validate:"required,max=50"`
	Phone                *string `json:"phone" validate:"required,max=11,directory_phone"`
	IsResigned           bool    `json:"is_resigned"`
	ReasonForResignation string  `json:"reason_for_resignation" validate:"max=50"`
}

func (req updateRequest) changes() authz.ProposedChanges {
	grade, _ := authz.ParseGrade(*req.Grade)
	return authz.ProposedChanges{
		Grade: grade,
		Flags: authz.Flags{
			ApproveSignup: *req.ApproveSignup,
			ReadList:      *req.ReadList,
			Update:        *req.Update,
			Resign:        *req.Resign,
		},
		Name:              *req.Name,
		Phone:             *req.Phone,
		Resign:            req.IsResigned,
		ResignationReason: req.ReasonForResignation,
	}
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var input SignupInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.respondError(w, r, err)
		return
	}
	user, err := h.service.Signup(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) listSignups(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListPendingSignups(r.Context(), actorID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"signups": users})
}

func (h *Handler) signupHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	logs, err := h.service.SignupHistory(r.Context(), actorID(r), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": logs})
}

func (h *Handler) approveSignup(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req approveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	emp, err := h.service.ApproveSignup(r.Context(), ApproveInput{ActorUserID: actorID(r), UserID: id, Grade: req.Grade, Flags: req.Flags})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, emp)
}

func (h *Handler) refuseSignup(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req refuseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondError(w, r, err)
		return
	}
	user, err := h.service.RefuseSignup(r.Context(), RefuseInput{ActorUserID: actorID(r), UserID: id, Reason: req.Reason})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) listEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.service.ListEmployees(r.Context(), actorID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"employees": employees})
}

func (h *Handler) getEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	emp, err := h.service.GetEmployee(r.Context(), actorID(r), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, emp)
}

func (h *Handler) updateEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondError(w, r, err)
		return
	}
	emp, err := h.service.UpdateEmployee(r.Context(), UpdateInput{ActorUserID: actorID(r), EmployeeID: id, Changes: req.changes()})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, emp)
}

func (h *Handler) resignEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req resignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondError(w, r, err)
		return
	}
	res, err := h.service.ResignEmployee(r.Context(), ResignInput{ActorUserID: actorID(r), EmployeeID: id, Reason: req.Reason})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}

func actorID(r *http.Request) int64 {
	id, _ := shared.SessionUserID(r.Context())
	return id
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		inputErr  *InputError
		deniedErr *DeniedError
		forbidErr *ForbiddenError
	)
	switch {
	case errors.As(err, &inputErr):
		httpx.FieldProblem(w, http.StatusBadRequest, "Validation Failed", inputErr.Errors)
	case errors.Is(err, authz.ErrInvalidInput), httpx.IsDecodeError(err):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrUnauthenticated):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in first")
	case errors.As(err, &forbidErr):
		httpx.RedirectProblem(w, "not allowed to access this resource", forbidErr.Redirect)
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateEmail), errors.Is(err, ErrInvalidState), errors.Is(err, ErrAlreadyResigned):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.As(err, &deniedErr):
		httpx.FieldProblem(w, http.StatusUnprocessableEntity, "Authorization Denied", deniedErr.Errors)
	default:
		h.logger.Error("accounts request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
