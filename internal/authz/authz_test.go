package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGrade(t *testing.T) {
	for raw, want := range map[string]Grade{"MS": GradeMaster, "ma": GradeManager, " staff ": GradeStaff, "Master": GradeMaster} {
		got, err := ParseGrade(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}
	_, err := ParseGrade("boss")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestHasChanged(t *testing.T) {
	assert.False(t, HasChanged(FieldName, "Kim", "Kim"))
	assert.True(t, HasChanged(FieldName, "Kim", "Lee"))
	assert.True(t, HasChanged(FieldUpdate, false, true))
	assert.False(t, HasChanged(FieldGrade, GradeStaff, Grade("ST")))
}

func TestProposedChangesValidate(t *testing.T) {
	valid := ProposedChanges{Grade: GradeStaff, Name: "Kim", Phone: "01012345678"}
	require.NoError(t, valid.Validate())

	missingGrade := valid
	missingGrade.Grade = ""
	assert.ErrorIs(t, missingGrade.Validate(), ErrInvalidInput)

	blankPhone := valid
	blankPhone.Phone = "  "
	assert.ErrorContains(t, blankPhone.Validate(), FieldPhone)

	resignNoReason := valid
	resignNoReason.Resign = true
	assert.ErrorContains(t, resignNoReason.Validate(), FieldReasonForResignation)
}

func TestGuards(t *testing.T) {
	assert.Equal(t, Access{Redirect: RedirectGuide}, GuardSignupList(false, Flags{ApproveSignup: true}))
	assert.Equal(t, Access{Redirect: RedirectEmployeeList}, GuardSignupList(true, Flags{}))
	assert.True(t, GuardSignupList(true, Flags{ApproveSignup: true}).Allowed)

	assert.Equal(t, Access{Redirect: RedirectGuide}, GuardEmployeeList(true, Flags{}))
	assert.Equal(t, Access{Redirect: RedirectGuide}, GuardEmployeeList(false, Flags{ReadList: true}))
	assert.True(t, GuardEmployeeList(true, Flags{ReadList: true}).Allowed)
}

func TestFilterGrant(t *testing.T) {
	requested := Grant{Grade: GradeManager, Flags: Flags{ReadList: true}}

	got, ok := FilterGrant(GradeMaster, requested)
	assert.True(t, ok)
	assert.Equal(t, requested, got)

	got, ok = FilterGrant(GradeManager, requested)
	assert.True(t, ok)
	assert.Equal(t, Grant{Grade: GradeStaff, Flags: Flags{ReadList: true}}, got)

	_, ok = FilterGrant(GradeStaff, requested)
	assert.False(t, ok)

	assert.False(t, GradeMaster.Assignable())
	assert.True(t, GradeStaff.Assignable())
}

func TestFieldErrorsDenials(t *testing.T) {
	errs := FieldErrors{}
	errs.AddError(FieldPhone, ReasonNoFieldUpdateAuthority)
	errs.AddError(FieldGrade, ReasonNoGradeChangeAuthority)

	assert.Equal(t, []Denial{
		{Field: FieldGrade, Reason: ReasonNoGradeChangeAuthority},
		{Field: FieldPhone, Reason: ReasonNoFieldUpdateAuthority},
	}, errs.Denials())
	assert.Equal(t, "", errs.First(FieldName))
}
