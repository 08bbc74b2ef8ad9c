package auth_test

import (
	"context"
	"gigchat/auth"
	"gigchat/errors"
	"gigchat/mocks"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func header(value string) http.Header {
	h := http.Header{}
	if value != "" {
		h.Set("Authorization", value)
	}
	return h
}

func TestGate_BeforeConnect_AcceptsVerifiedToken(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockITokenVerifier(ctrl)
	gate := auth.NewGate(slog.Default(), verifier)

	verifier.EXPECT().
		Verify(gomock.Any(), "tok-1").
		Return(&auth.Claims{Email: "alice@example.com", RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-1"}}, nil)

	identity, err := gate.BeforeConnect(context.Background(), header("Bearer tok-1"))

	req.NoError(err)
	req.Equal("sub-1", identity.Subject)
	req.Equal(map[string]string{auth.AttributeUserID: "sub-1", auth.AttributeEmail: "alice@example.com"}, identity.Attributes())
}

func TestGate_BeforeConnect_SchemeIsCaseInsensitive(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockITokenVerifier(ctrl)
	gate := auth.NewGate(slog.Default(), verifier)

	verifier.EXPECT().
		Verify(gomock.Any(), "tok-1").
		Return(&auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-1"}}, nil)

	identity, err := gate.BeforeConnect(context.Background(), header("bEaReR   tok-1 "))

	req.NoError(err)
	// No email claim, no email attribute
	req.Equal(map[string]string{auth.AttributeUserID: "sub-1"}, identity.Attributes())
}

func TestGate_BeforeConnect_RejectsWithoutCallingVerifier(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"other scheme", "Basic dXNlcjpwYXNz"},
		{"empty token", "Bearer "},
		{"blank token", "Bearer    "},
		{"scheme without separator", "Bearertok-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			verifier := mocks.NewMockITokenVerifier(ctrl)
			gate := auth.NewGate(slog.Default(), verifier)

			_, err := gate.BeforeConnect(context.Background(), header(tt.header))

			require.ErrorIs(t, err, errors.ErrUnauthenticated)
			require.ErrorIs(t, err, errors.ErrMissingBearer)
		})
	}
}

func TestGate_BeforeConnect_VerificationFailureIsUnauthenticated(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockITokenVerifier(ctrl)
	gate := auth.NewGate(slog.Default(), verifier)

	verifier.EXPECT().Verify(gomock.Any(), "tok-1").Return(nil, errors.ErrTokenExpired)

	_, err := gate.BeforeConnect(context.Background(), header("Bearer tok-1"))

	req.ErrorIs(err, errors.ErrUnauthenticated)
	req.ErrorIs(err, errors.ErrTokenExpired)
}

func TestGate_Middleware(t *testing.T) {
	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockITokenVerifier(ctrl)
	gate := auth.NewGate(slog.Default(), verifier)

	verifier.EXPECT().
		Verify(gomock.Any(), "good").
		Return(&auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-1"}}, nil).
		AnyTimes()
	verifier.EXPECT().
		Verify(gomock.Any(), "bad").
		Return(nil, errors.ErrSignatureInvalid).
		AnyTimes()

	var seen auth.Identity
	handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("accepted", func(t *testing.T) {
		req := require.New(t)
		request := httptest.NewRequest(http.MethodGet, "/ws", nil)
		request.Header.Set("Authorization", "Bearer good")
		recorder := httptest.NewRecorder()

		handler.ServeHTTP(recorder, request)

		req.Equal(http.StatusNoContent, recorder.Code)
		req.Equal("sub-1", seen.Subject)
	})

	t.Run("rejected with an empty 401", func(t *testing.T) {
		req := require.New(t)
		request := httptest.NewRequest(http.MethodGet, "/ws", nil)
		request.Header.Set("Authorization", "Bearer bad")
		recorder := httptest.NewRecorder()

		handler.ServeHTTP(recorder, request)

		req.Equal(http.StatusUnauthorized, recorder.Code)
		req.Empty(recorder.Body.String())
	})
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		value string
		token string
		ok    bool
	}{
		{"Bearer abc", "abc", true},
		{"BEARER abc", "abc", true},
		{"  bearer abc  ", "abc", true},
		{"Bearer", "", false},
		{"Token abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			token, ok := auth.ExtractBearerToken(tt.value)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.token, token)
		})
	}
}
