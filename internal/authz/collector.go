package authz

import "sort"

// Rejection reasons attached to denied fields.
const (
	ReasonNoRefusalAuthority        = "no refusal authority"
	ReasonNoResignationAuthority    = "no resignation authority"
	ReasonNoGradeChangeAuthority    = "no grade-change authority"
	ReasonNoFieldUpdateAuthority    = "no update authority for this field"
	ReasonCannotChangeAuthorization = "cannot change authorizations"
	ReasonNoApprovalAuthority       = "no signup approval authority"
	ReasonMasterNotAssignable       = "master grade cannot be assigned on approval"
)

// ErrorCollector receives field-level rejection reasons.
type ErrorCollector interface {
	AddError(field, message string)
}

// Denial is a single AuthorizationDenied outcome.
type Denial struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// FieldErrors is the default ErrorCollector, keyed by field name.
type FieldErrors map[string][]string

// AddError appends message to field.
func (e FieldErrors) AddError(field, message string) {
	e[field] = append(e[field], message)
}

// Has reports whether field has at least one message.
func (e FieldErrors) Has(field string) bool {
	return len(e[field]) > 0
}

// Empty reports whether nothing was recorded.
func (e FieldErrors) Empty() bool {
	return len(e) == 0
}

// First returns the first message for field.
func (e FieldErrors) First(field string) string {
	if msgs := e[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// Fields returns the recorded field names sorted.
func (e FieldErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// Denials flattens the collector in field order.
func (e FieldErrors) Denials() []Denial {
	var out []Denial
	for _, field := range e.Fields() {
		for _, msg := range e[field] {
			out = append(out, Denial{Field: field, Reason: msg})
		}
	}
	return out
}

// Reset clears every entry.
func (e FieldErrors) Reset() {
	for field := range e {
		delete(e, field)
	}
}

type discard struct{}

func (discard) AddError(string, string) {}

func collectorOrDiscard(errs ErrorCollector) ErrorCollector {
	if errs == nil {
		return discard{}
	}
	return errs
}
