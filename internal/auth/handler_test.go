package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-directory/internal/auth"
	"github.com/odyssey-erp/odyssey-directory/internal/shared"
	_ "github.com/odyssey-erp/odyssey-directory/testing"
)

type stubRepo struct {
	user     *auth.User
	sessions map[string]int64
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	if s.sessions == nil {
		s.sessions = map[string]int64{}
	}
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

type authFixture struct {
	router   *chi.Mux
	sessions *shared.SessionManager
}

func newAuthFixture(t *testing.T, repo auth.Repository) *authFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	handler := auth.NewHandler(nil, auth.NewService(repo), sessionManager, csrfManager)
	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)
	return &authFixture{router: r, sessions: sessionManager}
}

// serve runs one request with the session loaded and committed around it.
func (f *authFixture) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	sess, err := f.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	require.NoError(t, f.sessions.Commit(ctx, res, req, sess))
	return res, sess
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestSessionIssuesCSRFToken(t *testing.T) {
	f := newAuthFixture(t, &stubRepo{})

	res, sess := f.serve(t, httptest.NewRequest(http.MethodGet, "/auth/session", nil))

	require.Equal(t, http.StatusOK, res.Code)
	token := res.Header().Get(shared.CSRFHeader)
	assert.NotEmpty(t, token)
	assert.Equal(t, token, sess.Get(shared.CSRFSessionKey))
	assert.JSONEq(t, `{"authenticated":false}`, res.Body.String())
}

func TestLoginSetsSessionUser(t *testing.T) {
	repo := &stubRepo{user: &auth.User{ID: 7, Email: "user@corp.kr", PasswordHash: hashed(t, "pass123!"), State: "AP"}}
	f := newAuthFixture(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"user@corp.kr","password":"pass123!"}`))
	res, sess := f.serve(t, req)

	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "7", sess.User())
	assert.Equal(t, int64(7), repo.sessions[sess.ID])
	var body map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, "AP", body["state"])

	// The session survives a round trip through Redis.
	next := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	next.AddCookie(&http.Cookie{Name: f.sessions.CookieName(), Value: sess.ID})
	res, _ = f.serve(t, next)
	assert.JSONEq(t, `{"authenticated":true,"user_id":7}`, res.Body.String())
}

func TestLoginRotatesSessionID(t *testing.T) {
	repo := &stubRepo{user: &auth.User{ID: 7, Email: "user@corp.kr", PasswordHash: hashed(t, "pass123!"), State: "AP"}}
	f := newAuthFixture(t, repo)
	res, anon := f.serve(t, httptest.NewRequest(http.MethodGet, "/auth/session", nil))
	anonID, anonToken := anon.ID, res.Header().Get(shared.CSRFHeader)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"user@corp.kr","password":"pass123!"}`))
	req.AddCookie(&http.Cookie{Name: f.sessions.CookieName(), Value: anonID})
	res, sess := f.serve(t, req)

	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.NotEqual(t, anonID, sess.ID)
	assert.NotEmpty(t, res.Header().Get(shared.CSRFHeader))
	assert.NotEqual(t, anonToken, res.Header().Get(shared.CSRFHeader))

	stale := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	stale.AddCookie(&http.Cookie{Name: f.sessions.CookieName(), Value: anonID})
	res, _ = f.serve(t, stale)
	assert.JSONEq(t, `{"authenticated":false}`, res.Body.String())
}

func TestLoginIgnoresClientChosenSessionID(t *testing.T) {
	repo := &stubRepo{user: &auth.User{ID: 7, Email: "user@corp.kr", PasswordHash: hashed(t, "pass123!"), State: "AP"}}
	f := newAuthFixture(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"user@corp.kr","password":"pass123!"}`))
	req.AddCookie(&http.Cookie{Name: f.sessions.CookieName(), Value: "attacker-chosen"})
	res, sess := f.serve(t, req)

	require.Equal(t, http.StatusOK, res.Code)
	assert.NotEqual(t, "attacker-chosen", sess.ID)
	assert.NotContains(t, repo.sessions, "attacker-chosen")

	replay := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	replay.AddCookie(&http.Cookie{Name: f.sessions.CookieName(), Value: "attacker-chosen"})
	res, _ = f.serve(t, replay)
	assert.JSONEq(t, `{"authenticated":false}`, res.Body.String())
}

func TestLoginRejections(t *testing.T) {
	cases := []struct {
		name  string
		state string
		body  string
		code  int
	}{
		{"wrong password", "AP", `{"email":"user@corp.kr","password":"wrong"}`, http.StatusUnauthorized},
		{"unknown email", "AP", `{"email":"other@corp.kr","password":"pass123!"}`, http.StatusUnauthorized},
		{"refused signup", "RJ", `{"email":"user@corp.kr","password":"pass123!"}`, http.StatusUnauthorized},
		{"missing password", "AP", `{"email":"user@corp.kr"}`, http.StatusBadRequest},
		{"malformed body", "AP", `{"email":`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubRepo{user: &auth.User{ID: 7, Email: "user@corp.kr", PasswordHash: hashed(t, "pass123!"), State: tc.state}}
			f := newAuthFixture(t, repo)

			res, sess := f.serve(t, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tc.body)))

			assert.Equal(t, tc.code, res.Code)
			assert.Empty(t, sess.User())
		})
	}
}

func TestPendingSignupMaySignIn(t *testing.T) {
	repo := &stubRepo{user: &auth.User{ID: 9, Email: "new@corp.kr", PasswordHash: hashed(t, "pass123!"), State: "AW"}}
	f := newAuthFixture(t, repo)

	res, sess := f.serve(t, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"new@corp.kr","password":"pass123!"}`)))

	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "9", sess.User())
}

func TestLogoutDestroysSession(t *testing.T) {
	repo := &stubRepo{user: &auth.User{ID: 7, Email: "user@corp.kr", PasswordHash: hashed(t, "pass123!"), State: "AP"}}
	f := newAuthFixture(t, repo)
	_, sess := f.serve(t, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"user@corp.kr","password":"pass123!"}`)))

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: f.sessions.CookieName(), Value: sess.ID})
	res, _ := f.serve(t, req)

	assert.Equal(t, http.StatusNoContent, res.Code)
	assert.NotContains(t, repo.sessions, sess.ID)

	after := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	after.AddCookie(&http.Cookie{Name: f.sessions.CookieName(), Value: sess.ID})
	res, _ = f.serve(t, after)
	assert.Contains(t, res.Body.String(), `"authenticated":false`)
}
