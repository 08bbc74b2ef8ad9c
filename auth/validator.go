package auth

import (
	"fmt"
	"gigchat/errors"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type ForgotPasswordRequest struct {
	Email string `validate:"required,email,max=160"`
}

type ResetPasswordRequest struct {
	Token       string `validate:"required"`
	NewPassword string `validate:"required,min=8,max=72"`
}

// NormalizeEmail is the form under which emails are stored and rate limited.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidateForgotPassword(req ForgotPasswordRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
	}
	return nil
}

func ValidateResetPassword(req ResetPasswordRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
	}
	if passwordStrength(req.NewPassword) < 3 {
		return errors.ErrInvalidPassword
	}
	return nil
}

// passwordStrength counts the character classes present in s:
// lower case, upper case, digit and anything else.
func passwordStrength(s string) int {
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, char := range s {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	strength := 0
	for _, present := range []bool{hasUpper, hasLower, hasNumber, hasSymbol} {
		if present {
			strength++
		}
	}
	return strength
}
