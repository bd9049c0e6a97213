package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessions(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "sid", "secret", time.Hour, false), mr
}

func TestSessionRoundTrip(t *testing.T) {
	sm, mr := newTestSessions(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	sess.SetUser("42")
	sess.Set("k", "v")

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, httptest.NewRequest(http.MethodGet, "/", nil), sess))
	assert.True(t, mr.Exists(sessionKeyPrefix+sess.ID))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sess.ID, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	loaded, err := sm.Load(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "42", loaded.User())
	assert.Equal(t, "v", loaded.Get("k"))

	id, ok := SessionUserID(ContextWithSession(ctx, loaded))
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
}

func TestSessionDestroy(t *testing.T) {
	sm, mr := newTestSessions(t)
	ctx := context.Background()
	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), nil, sess))

	sm.Destroy(sess)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, nil, sess))

	assert.False(t, mr.Exists(sessionKeyPrefix+sess.ID))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestSessionLoadIgnoresUnknownID(t *testing.T) {
	sm, mr := newTestSessions(t)
	ctx := context.Background()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "attacker-chosen"})

	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, "attacker-chosen", sess.ID)

	sess.SetUser("42")
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), req, sess))
	assert.False(t, mr.Exists(sessionKeyPrefix+"attacker-chosen"))
	assert.True(t, mr.Exists(sessionKeyPrefix+sess.ID))
}

func TestSessionRenew(t *testing.T) {
	sm, mr := newTestSessions(t)
	ctx := context.Background()
	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.Set(CSRFSessionKey, "old-token")
	sess.Set("k", "v")
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), nil, sess))
	oldID := sess.ID

	require.NoError(t, sm.Renew(ctx, sess))
	assert.NotEqual(t, oldID, sess.ID)
	assert.False(t, mr.Exists(sessionKeyPrefix+oldID))
	assert.Empty(t, sess.Get(CSRFSessionKey))
	assert.Equal(t, "v", sess.Get("k"))

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, nil, sess))
	assert.True(t, mr.Exists(sessionKeyPrefix+sess.ID))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sess.ID, cookies[0].Value)

	assert.ErrorIs(t, sm.Renew(ctx, nil), ErrSessionMissing)
}

func TestSessionUserIDRejectsMalformed(t *testing.T) {
	_, ok := SessionUserID(context.Background())
	assert.False(t, ok)

	for _, raw := range []string{"", "abc", "-3", "0"} {
		sess := &Session{}
		sess.SetUser(raw)
		_, ok := SessionUserID(ContextWithSession(context.Background(), sess))
		assert.False(t, ok, raw)
	}
}

func TestCSRFVerifyRequest(t *testing.T) {
	m := NewCSRFManager("csrf")
	sess := &Session{ID: "abc"}

	token, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	again, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.ErrorIs(t, m.VerifyRequest(req, sess), ErrCSRFTokenMissing)
	req.Header.Set(CSRFHeader, "forged")
	assert.ErrorIs(t, m.VerifyRequest(req, sess), ErrCSRFTokenMismatch)
	req.Header.Set(CSRFHeader, token)
	assert.NoError(t, m.VerifyRequest(req, sess))

	assert.True(t, SafeMethod(http.MethodGet))
	assert.False(t, SafeMethod(http.MethodPatch))
}
