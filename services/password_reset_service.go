package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"gigchat/auth"
	"gigchat/errors"
	"gigchat/repositories"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const DefaultResetTokenTTL = 30 * time.Minute

// Allower admits or rejects a request for a key.
type Allower interface {
	Allow(ctx context.Context, key string) bool
}

type IPasswordResetService interface {
	RequestReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) (int64, error)
	PurgeExpired(ctx context.Context) (int, error)
}

// PasswordResetService issues single-use reset tokens and applies them.
//
// RequestReset reveals nothing to the caller: unknown emails and rate
// limited requests succeed silently.
type PasswordResetService struct {
	users   repositories.IUserRepository
	tokens  repositories.IResetTokenRepository
	limiter Allower
	mailer  Mailer
	log     *slog.Logger
	ttl     time.Duration
	now     func() time.Time
}

func NewPasswordResetService(
	log *slog.Logger,
	users repositories.IUserRepository,
	tokens repositories.IResetTokenRepository,
	limiter Allower,
	mailer Mailer,
	ttl time.Duration,
) *PasswordResetService {
	return &PasswordResetService{
		users:   users,
		tokens:  tokens,
		limiter: limiter,
		mailer:  mailer,
		log:     log,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	if err := auth.ValidateForgotPassword(auth.ForgotPasswordRequest{Email: email}); err != nil {
		return err
	}
	email = auth.NormalizeEmail(email)

	if !s.limiter.Allow(ctx, email) {
		s.log.Debug("Password reset rate limited", "email", email)
		return nil
	}

	user, err := s.users.GetUserByEmail(email)
	if stderrors.Is(err, errors.ErrUserNotFound) {
		s.log.Debug("Password reset for unknown email", "email", email)
		return nil
	}
	if err != nil {
		return err
	}

	token := uuid.NewString()
	expiresAt := s.now().Add(s.ttl)
	err = s.tokens.Save(repositories.ResetToken{TokenHash: hashToken(token), UserID: user.ID, ExpiresAt: expiresAt})
	if err != nil {
		return fmt.Errorf("save reset token: %w", err)
	}
	if err = s.mailer.SendPasswordReset(ctx, email, token, expiresAt); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

// ResetPassword consumes token and replaces the password of its user.
// It returns the id of that user.
func (s *PasswordResetService) ResetPassword(_ context.Context, token, newPassword string) (int64, error) {
	if err := auth.ValidateResetPassword(auth.ResetPasswordRequest{Token: token, NewPassword: newPassword}); err != nil {
		return 0, err
	}

	grant, err := s.tokens.Consume(hashToken(token), s.now())
	if err != nil {
		return 0, err
	}

	hashed, err := auth.HashPassword(newPassword)
	if err != nil {
		return 0, fmt.Errorf("hashing failed: %w", err)
	}
	if err = s.users.UpdatePassword(grant.UserID, hashed); err != nil {
		return 0, err
	}
	s.log.Info("Password reset", "user_id", grant.UserID)
	return grant.UserID, nil
}

func (s *PasswordResetService) PurgeExpired(_ context.Context) (int, error) {
	purged, err := s.tokens.PurgeExpired(s.now())
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.log.Debug("Expired reset tokens purged", "count", purged)
	}
	return purged, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
