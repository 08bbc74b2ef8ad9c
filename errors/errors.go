// Package errors holds the sentinel errors shared by every layer.
// Callers wrap them with %w and match them with errors.Is.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrSinkFull    = fmt.Errorf("sink buffer full")

	// Token verification failures. They never reach a client as such:
	// the handshake folds all of them into ErrUnauthenticated.
	ErrMalformedToken       = fmt.Errorf("malformed token")
	ErrUnsupportedAlgorithm = fmt.Errorf("unsupported signing algorithm")
	ErrMissingKeyID         = fmt.Errorf("missing key id")
	ErrKeyNotFound          = fmt.Errorf("signing key not found")
	ErrSignatureInvalid     = fmt.Errorf("invalid token signature")
	ErrTokenExpired         = fmt.Errorf("token expired")
	ErrTokenNotYetValid     = fmt.Errorf("token not yet valid")
	ErrKeySourceUnavailable = fmt.Errorf("key source unavailable")
	ErrMissingSubject       = fmt.Errorf("missing subject claim")

	ErrMissingBearer   = fmt.Errorf("missing bearer token")
	ErrUnauthenticated = fmt.Errorf("unauthenticated")

	ErrInvalidInput         = fmt.Errorf("invalid input")
	ErrConversationNotFound = fmt.Errorf("conversation not found")
	ErrUserNotFound         = fmt.Errorf("user not found")
	ErrParticipantNotFound  = fmt.Errorf("participant not found")
	ErrMessageNotFound      = fmt.Errorf("message not found")
	ErrNotAParticipant      = fmt.Errorf("sender is not a participant of the conversation")
	ErrInvalidCursor        = fmt.Errorf("invalid cursor")

	ErrUserAlreadyExists = fmt.Errorf("user already exists")
	ErrInvalidPassword   = fmt.Errorf("password does not meet requirements")
	ErrInvalidResetToken = fmt.Errorf("reset token invalid or expired")
)

var tokenErrors = []error{
	ErrMalformedToken,
	ErrUnsupportedAlgorithm,
	ErrMissingKeyID,
	ErrKeyNotFound,
	ErrSignatureInvalid,
	ErrTokenExpired,
	ErrTokenNotYetValid,
	ErrKeySourceUnavailable,
	ErrMissingSubject,
	ErrMissingBearer,
	ErrUnauthenticated,
}

// IsTokenError reports whether err comes from bearer token handling.
func IsTokenError(err error) bool {
	for _, target := range tokenErrors {
		if stderrors.Is(err, target) {
			return true
		}
	}
	return false
}

// HTTPStatus maps an error to the status code returned at the HTTP boundary.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsTokenError(err):
		return http.StatusUnauthorized
	case stderrors.Is(err, ErrInvalidInput),
		stderrors.Is(err, ErrInvalidCursor),
		stderrors.Is(err, ErrInvalidPassword),
		stderrors.Is(err, ErrInvalidResetToken):
		return http.StatusBadRequest
	case stderrors.Is(err, ErrConversationNotFound),
		stderrors.Is(err, ErrUserNotFound),
		stderrors.Is(err, ErrParticipantNotFound),
		stderrors.Is(err, ErrMessageNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, ErrNotAParticipant):
		return http.StatusForbidden
	case stderrors.Is(err, ErrUserAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to show to a client for err.
// Authentication failures never disclose their cause.
func PublicMessage(err error) string {
	status := HTTPStatus(err)
	switch status {
	case http.StatusUnauthorized:
		return ""
	case http.StatusInternalServerError:
		return "internal error"
	default:
		return err.Error()
	}
}
