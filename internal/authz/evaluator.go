package authz

import (
	"fmt"
	"strings"
)

// FlagMode selects how permission-flag changes by non-master actors are judged.
type FlagMode string

const (
	// FlagModeStrict compares all four flags, records every difference and
	// denies if any flag differs.
	FlagModeStrict FlagMode = "strict"
	// FlagModeLegacy keeps the historical behaviour: managers stop at the first
	// differing flag, staff record every difference but the check still passes.
	FlagModeLegacy FlagMode = "legacy"
)

// ParseFlagMode parses a configured flag mode. Empty selects strict.
func ParseFlagMode(raw string) (FlagMode, error) {
	switch FlagMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FlagModeStrict:
		return FlagModeStrict, nil
	case FlagModeLegacy:
		return FlagModeLegacy, nil
	}
	return "", fmt.Errorf("%w: unknown flag mode %q", ErrInvalidInput, raw)
}

// Evaluator decides whether an actor may perform each governed action.
// It holds no per-request state and is safe for concurrent use.
type Evaluator struct {
	mode FlagMode
}

// NewEvaluator returns an Evaluator using mode for flag checks.
func NewEvaluator(mode FlagMode) *Evaluator {
	if mode != FlagModeLegacy {
		mode = FlagModeStrict
	}
	return &Evaluator{mode: mode}
}

// Mode returns the configured flag mode.
func (e *Evaluator) Mode() FlagMode {
	return e.mode
}

// CheckRefusal reports whether actor may reject a pending signup.
func (e *Evaluator) CheckRefusal(actor Actor, errs ErrorCollector) bool {
	if actor.Grade == GradeMaster {
		return true
	}
	collectorOrDiscard(errs).AddError(FieldReasonForRefusal, ReasonNoRefusalAuthority)
	return false
}

// CheckResignation reports whether actor may terminate an employee.
func (e *Evaluator) CheckResignation(actor Actor, errs ErrorCollector) bool {
	if actor.Grade == GradeMaster {
		return true
	}
	collectorOrDiscard(errs).AddError(FieldReasonForResignation, ReasonNoResignationAuthority)
	return false
}

// CheckGradeChange reports whether actor may set target's grade to proposed.
func (e *Evaluator) CheckGradeChange(actor Actor, target Target, proposed Grade, errs ErrorCollector) bool {
	if actor.Grade == GradeMaster {
		return true
	}
	if HasChanged(FieldGrade, target.Grade, proposed) {
		collectorOrDiscard(errs).AddError(FieldGrade, ReasonNoGradeChangeAuthority)
		return false
	}
	return true
}

// CheckNameOrPhoneChange reports whether actor may set target's name or phone
// to proposed. field must be FieldName or FieldPhone.
func (e *Evaluator) CheckNameOrPhoneChange(actor Actor, target Target, field, proposed string, errs ErrorCollector) bool {
	errs = collectorOrDiscard(errs)
	before, ok := target.Field(field)
	if !ok {
		errs.AddError(field, ErrInvalidInput.Error())
		return false
	}
	switch actor.Grade {
	case GradeMaster:
		return true
	case GradeManager:
		if !actor.Flags.Update {
			// Denied even for an unchanged resubmission.
			errs.AddError(field, ReasonNoFieldUpdateAuthority)
			return false
		}
		if target.Grade != GradeMaster {
			return true
		}
	}
	if HasChanged(field, before, proposed) {
		errs.AddError(field, ReasonNoFieldUpdateAuthority)
		return false
	}
	return true
}

// CheckPermissionFlagsChange reports whether actor may set target's four
// permission flags to proposed.
func (e *Evaluator) CheckPermissionFlagsChange(actor Actor, target Target, proposed Flags, errs ErrorCollector) bool {
	errs = collectorOrDiscard(errs)
	switch actor.Grade {
	case GradeMaster:
		return true
	case GradeManager:
		if target.Grade == GradeStaff {
			return true
		}
		if e.mode == FlagModeLegacy {
			for _, field := range FlagFields {
				if HasChanged(field, target.Flags.Value(field), proposed.Value(field)) {
					errs.AddError(field, ReasonCannotChangeAuthorization)
					return false
				}
			}
			return true
		}
		return compareAllFlags(target.Flags, proposed, errs)
	default:
		permitted := compareAllFlags(target.Flags, proposed, errs)
		if e.mode == FlagModeLegacy {
			return true
		}
		return permitted
	}
}

// compareAllFlags records every differing flag and reports whether none differ.
func compareAllFlags(before, after Flags, errs ErrorCollector) bool {
	ok := true
	for _, field := range FlagFields {
		if HasChanged(field, before.Value(field), after.Value(field)) {
			errs.AddError(field, ReasonCannotChangeAuthorization)
			ok = false
		}
	}
	return ok
}

// CheckEmployeeListMutation runs the grade, flag, name and phone checks in
// that order. Every check runs; denials accumulate in errs.
func (e *Evaluator) CheckEmployeeListMutation(actor Actor, target Target, proposed ProposedChanges, errs ErrorCollector) {
	e.CheckGradeChange(actor, target, proposed.Grade, errs)
	e.CheckPermissionFlagsChange(actor, target, proposed.Flags, errs)
	e.CheckNameOrPhoneChange(actor, target, FieldName, proposed.value(FieldName), errs)
	e.CheckNameOrPhoneChange(actor, target, FieldPhone, proposed.value(FieldPhone), errs)
}
