package auth

import (
	"context"
	"fmt"
	"gigchat/errors"
	"log/slog"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

type contextKey string

const identityKey contextKey = "identity"

// Session attribute names bound on an accepted handshake.
const (
	AttributeUserID = "userId"
	AttributeEmail  = "email"
)

// Identity is who a verified token speaks for. It lives as long as the
// connection it was established on and is never persisted.
type Identity struct {
	Subject string
	Email   string
}

// Attributes returns the session attributes bound to a connection.
func (i Identity) Attributes() map[string]string {
	attributes := map[string]string{AttributeUserID: i.Subject}
	if i.Email != "" {
		attributes[AttributeEmail] = i.Email
	}
	return attributes
}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// SessionAttributes returns the attributes bound by the gate, nil when the
// context carries no identity.
func SessionAttributes(ctx context.Context) map[string]string {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return nil
	}
	return identity.Attributes()
}

// Gate authorizes connection upgrades with the bearer token they carry.
type Gate struct {
	verifier ITokenVerifier
	log      *slog.Logger
}

func NewGate(log *slog.Logger, verifier ITokenVerifier) *Gate {
	return &Gate{verifier: verifier, log: log}
}

// BeforeConnect extracts and verifies the bearer token of an upgrade request.
// Every failure is reported as ErrUnauthenticated; the underlying reason is
// only logged.
func (g *Gate) BeforeConnect(ctx context.Context, header http.Header) (Identity, error) {
	token, ok := ExtractBearerToken(header.Get("Authorization"))
	if !ok {
		g.log.Debug("Handshake rejected", "reason", errors.ErrMissingBearer)
		return Identity{}, fmt.Errorf("%w: %w", errors.ErrUnauthenticated, errors.ErrMissingBearer)
	}

	claims, err := g.verifier.Verify(ctx, token)
	if err != nil {
		g.log.Debug("Handshake rejected", "reason", err)
		return Identity{}, fmt.Errorf("%w: %w", errors.ErrUnauthenticated, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		g.log.Debug("Handshake rejected", "reason", errors.ErrMissingSubject)
		return Identity{}, fmt.Errorf("%w: %w", errors.ErrUnauthenticated, errors.ErrMissingSubject)
	}

	return Identity{Subject: claims.Subject, Email: strings.TrimSpace(claims.Email)}, nil
}

// AfterConnect runs once the upgraded connection is established. Nothing to do yet.
func (g *Gate) AfterConnect(_ context.Context, _ Identity) {}

// Middleware rejects unauthenticated upgrades with an empty 401 and binds
// the identity to the request context otherwise.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := g.BeforeConnect(r.Context(), r.Header)
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// ExtractBearerToken returns the token of an Authorization header value.
// The scheme is matched case-insensitively.
func ExtractBearerToken(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if len(value) < len(bearerPrefix) || !strings.EqualFold(value[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(value[len(bearerPrefix):])
	if token == "" {
		return "", false
	}
	return token, true
}
