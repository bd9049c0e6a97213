package accounts

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"

	"github.com/odyssey-erp/odyssey-directory/internal/authz"
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+@[a-zA-Z0-9_]+\.[a-zA-Z0-9.]+$`)
	phonePattern = regexp.MustCompile(`^(01[0-9])([0-9]{3,4})([0-9]{4})$`)
)

const passwordSpecials = "@$!%*#?&"

// Validator wraps go-playground/validator with the directory's custom rules.
type Validator struct {
	validate *validator.Validate
}

// NewValidator registers the directory rules and reports fields by their
// JSON names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("directory_email", func(fl validator.FieldLevel) bool {
		return ValidEmail(fl.Field().String())
	})
	_ = v.RegisterValidation("directory_phone", func(fl validator.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	})
	_ = v.RegisterValidation("directory_password", func(fl validator.FieldLevel) bool {
		return ValidPassword(fl.Field().String())
	})
	_ = v.RegisterValidation("directory_grade", func(fl validator.FieldLevel) bool {
		_, err := authz.ParseGrade(fl.Field().String())
		return err == nil
	})
	return &Validator{validate: v}
}

// Struct validates s and converts failures into an *InputError.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	errs := authz.FieldErrors{}
	for _, fe := range verrs {
		errs.AddError(fe.Field(), message(fe))
	}
	return &InputError{Errors: errs}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "eqfield":
		return "passwords do not match"
	case "directory_email":
		return "enter a valid email address"
	case "directory_phone":
		return "enter a mobile number such as 01012345678"
	case "directory_password":
		return "use at least 8 characters mixing letters, digits and one of " + passwordSpecials
	case "directory_grade":
		return "unknown grade"
	}
	return "invalid value"
}

// ValidEmail reports whether raw is an acceptable signup email.
func ValidEmail(raw string) bool {
	return emailPattern.MatchString(raw)
}

// ValidPhone reports whether raw is a Korean mobile number without separators.
func ValidPhone(raw string) bool {
	return phonePattern.MatchString(raw)
}

// ValidPassword requires at least eight characters drawn only from ASCII
// letters, digits and the special set, with at least one of each class.
func ValidPassword(raw string) bool {
	if len(raw) < 8 {
		return false
	}
	var letter, digit, special bool
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			letter = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		default:
			return false
		}
	}
	return letter && digit && special
}

// NormalizeText trims surrounding space and applies NFC so that visually
// identical values compare equal.
func NormalizeText(raw string) string {
	return norm.NFC.String(strings.TrimSpace(raw))
}

func validReason(field, reason string) error {
	switch {
	case reason == "":
		return fieldError(field, "this field is required")
	case utf8.RuneCountInString(reason) > MaxReasonLength:
		return fieldError(field, fmt.Sprintf("must be at most %d characters", MaxReasonLength))
	}
	return nil
}
