//go:generate go run go.uber.org/mock/mockgen -source=mailer.go -destination=../mocks/mock_mailer.go -package=mocks
package services

import (
	"context"
	"log/slog"
	"net/url"
	"time"
)

// Mailer delivers account emails.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error
}

// LogMailer writes emails to the log instead of sending them. It is the
// mailer of local and test deployments.
type LogMailer struct {
	log      *slog.Logger
	resetURL string
}

func NewLogMailer(log *slog.Logger, resetURL string) *LogMailer {
	return &LogMailer{log: log, resetURL: resetURL}
}

func (m *LogMailer) SendPasswordReset(_ context.Context, email, token string, expiresAt time.Time) error {
	link := m.resetURL + "?token=" + url.QueryEscape(token)
	m.log.Info("Password reset email", "to", email, "link", link, "expires_at", expiresAt.Format(time.RFC3339))
	return nil
}
