// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxBodyBytes caps decoded request bodies.
const maxBodyBytes = 1 << 20

// ProblemDetail represents RFC7807 problem details. Redirect and Errors are
// extension members.
type ProblemDetail struct {
	Type     string              `json:"type,omitempty"`
	Title    string              `json:"title"`
	Status   int                 `json:"status"`
	Detail   string              `json:"detail,omitempty"`
	Redirect string              `json:"redirect,omitempty"`
	Errors   map[string][]string `json:"errors,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	WriteProblem(w, ProblemDetail{Title: title, Status: status, Detail: detail})
}

// WriteProblem sends a fully populated problem document.
func WriteProblem(w http.ResponseWriter, p ProblemDetail) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// FieldProblem sends a problem document listing reasons per field.
func FieldProblem(w http.ResponseWriter, status int, title string, errs map[string][]string) {
	WriteProblem(w, ProblemDetail{Title: title, Status: status, Errors: errs})
}

// RedirectProblem sends a 403 naming the location the client should visit instead.
func RedirectProblem(w http.ResponseWriter, detail, location string) {
	WriteProblem(w, ProblemDetail{Title: "Forbidden", Status: http.StatusForbidden, Detail: detail, Redirect: location})
}

// DecodeJSON decodes a single JSON object from the request body into target.
// Unknown fields are rejected.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", ErrValidation)
	}
	return nil
}

// IsDecodeError reports whether err came from DecodeJSON.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrValidation)
}
