package auth

import (
	"chat-hub/errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var validate = validator.New()

type RegisterRequest struct {
	Username string `validate:"required,min=3,max=30,alphanum"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=12,max=72"`
}

// ProfileRequest carries the optional profile changes. A nil field is left
// untouched.
type ProfileRequest struct {
	Username *string `validate:"omitempty,min=3,max=30,alphanum"`
	Avatar   *string `validate:"omitempty,url"`
	Bio      *string `validate:"omitempty,max=500"`
}

// ValidateRegister checks a registration before any hashing happens. Every
// failing field is named in a single ErrValidation.
func ValidateRegister(req RegisterRequest) error {
	if err := validateFields(req); err != nil {
		return err
	}
	if missing := missingPasswordClasses(req.Password); len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", errors.ErrInvalidPassword, strings.Join(missing, " and "))
	}
	return nil
}

func ValidateProfile(req ProfileRequest) error {
	return validateFields(req)
}

func validateFields(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	described := lo.Map(fieldErrs, func(fe validator.FieldError, _ int) string {
		return strings.ToLower(fe.Field()) + " " + describeRule(fe)
	})
	return fmt.Errorf("%w: %s", errors.ErrValidation, strings.Join(described, ", "))
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "alphanum":
		return "must only contain letters and digits"
	case "url":
		return "must be a valid URL"
	}
	return "is invalid"
}

// missingPasswordClasses lists the character classes absent from password.
func missingPasswordClasses(password string) []string {
	classes := []struct {
		name string
		has  func(rune) bool
	}{
		{"an uppercase letter", unicode.IsUpper},
		{"a lowercase letter", unicode.IsLower},
		{"a digit", unicode.IsNumber},
		{"a symbol", func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) }},
	}
	var missing []string
	for _, class := range classes {
		if !strings.ContainsFunc(password, class.has) {
			missing = append(missing, class.name)
		}
	}
	return missing
}
