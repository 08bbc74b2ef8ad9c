package auth

import (
	"gigchat/errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndCompare(t *testing.T) {
	req := require.New(t)
	password := "Correct-Horse-9"

	hash, err := HashPassword(password)
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$argon2id$v=19$"))

	match, err := ComparePassword(password, hash)
	req.NoError(err)
	req.True(match)

	match, err = ComparePassword("wrong-password", hash)
	req.NoError(err)
	req.False(match)
}

func TestHashPassword_SaltsEveryHash(t *testing.T) {
	req := require.New(t)

	first, err := HashPassword("Correct-Horse-9")
	req.NoError(err)
	second, err := HashPassword("Correct-Horse-9")
	req.NoError(err)

	req.NotEqual(first, second)
}

func TestComparePassword_RejectsMalformedHash(t *testing.T) {
	tests := []string{
		"",
		"plaintext",
		"$bcrypt$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=x,t=3,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=2$!!!$aGFzaA",
	}
	for _, hash := range tests {
		t.Run(hash, func(t *testing.T) {
			_, err := ComparePassword("whatever", hash)
			require.Error(t, err)
		})
	}
}

func TestValidateResetPassword(t *testing.T) {
	tests := []struct {
		name    string
		req     ResetPasswordRequest
		wantErr bool
	}{
		{"three classes", ResetPasswordRequest{"token", "Password1"}, false},
		{"four classes", ResetPasswordRequest{"token", "Passw0rd!"}, false},
		{"lower digit symbol", ResetPasswordRequest{"token", "passw0rd!"}, false},
		{"too short", ResetPasswordRequest{"token", "Pa1!"}, true},
		{"two classes", ResetPasswordRequest{"token", "password1"}, true},
		{"single class", ResetPasswordRequest{"token", "passwordpassword"}, true},
		{"too long", ResetPasswordRequest{"token", strings.Repeat("Aa1", 25)}, true},
		{"missing token", ResetPasswordRequest{"", "Passw0rd!"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateResetPassword(tt.req)
			if tt.wantErr {
				require.ErrorIs(t, err, errors.ErrInvalidPassword)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateForgotPassword(t *testing.T) {
	req := require.New(t)

	req.NoError(ValidateForgotPassword(ForgotPasswordRequest{Email: "alice@example.com"}))
	req.ErrorIs(ValidateForgotPassword(ForgotPasswordRequest{Email: "not-an-email"}), errors.ErrInvalidInput)
	req.ErrorIs(ValidateForgotPassword(ForgotPasswordRequest{}), errors.ErrInvalidInput)
}

func TestNormalizeEmail(t *testing.T) {
	require.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM "))
}

func BenchmarkHashPassword(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = HashPassword("A-very-long-and-complex-password-for-bench-123!")
	}
}
