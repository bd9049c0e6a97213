package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("employee 4: %w", ErrNotFound), http.StatusNotFound},
		{ErrConflict, http.StatusConflict},
		{ErrValidation, http.StatusBadRequest},
		{ErrUnauthorized, http.StatusUnauthorized},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errors.New("db exploded"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		assert.NotContains(t, rec.Body.String(), "db exploded")
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Kim"}`))
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, "Kim", dst.Name)

	for _, body := range []string{`{"name":"Kim","admin":true}`, `{"name":"Kim"}{}`, `{`, ``} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		err := DecodeJSON(req, &dst)
		assert.True(t, IsDecodeError(err), body)
	}
}

func TestProblemExtensions(t *testing.T) {
	rec := httptest.NewRecorder()
	FieldProblem(rec, http.StatusUnprocessableEntity, "Authorization Denied", map[string][]string{"grade": {"no grade authority"}})

	var p ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, http.StatusUnprocessableEntity, p.Status)
	assert.Equal(t, []string{"no grade authority"}, p.Errors["grade"])

	rec = httptest.NewRecorder()
	RedirectProblem(rec, "not allowed", "/guide")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "/guide", p.Redirect)
}
