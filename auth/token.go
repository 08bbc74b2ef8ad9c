//go:generate go run go.uber.org/mock/mockgen -source=token.go -destination=../mocks/mock_token_verifier.go -package=mocks
package auth

import (
	"context"
	"crypto/rsa"
	stderrors "errors"
	"fmt"
	"gigchat/errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultClockSkew is the tolerance applied to exp and nbf.
const DefaultClockSkew = 60 * time.Second

// allowedAlgorithm is the only signing algorithm accepted from an issuer.
var allowedAlgorithm = jwt.SigningMethodRS256.Alg()

// Claims are the verified claims of a bearer token.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// KeyResolver returns the verification key for a key id.
type KeyResolver interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

type ITokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

type TokenVerifier struct {
	keys   KeyResolver
	leeway time.Duration
	now    func() time.Time
}

type VerifierOption func(*TokenVerifier)

func WithClockSkew(skew time.Duration) VerifierOption {
	return func(v *TokenVerifier) { v.leeway = skew }
}

func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *TokenVerifier) { v.now = now }
}

func NewTokenVerifier(keys KeyResolver, opts ...VerifierOption) *TokenVerifier {
	v := &TokenVerifier{keys: keys, leeway: DefaultClockSkew, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the signature and temporal claims of an RS256 token and
// returns its claims. The header is only used to pick a key: the algorithm
// is compared to the allow-list and nothing else is derived from it.
func (v *TokenVerifier) Verify(ctx context.Context, token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: empty token", errors.ErrMalformedToken)
	}

	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method == nil || t.Method.Alg() != allowedAlgorithm {
			return nil, errors.ErrUnsupportedAlgorithm
		}
		kid, _ := t.Header["kid"].(string)
		if strings.TrimSpace(kid) == "" {
			return nil, errors.ErrMissingKeyID
		}
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return nil, classify(err)
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.ErrMissingSubject
	}
	return claims, nil
}

// keyLookupErrors are returned from the key callback and already carry their kind.
var keyLookupErrors = []error{
	errors.ErrUnsupportedAlgorithm,
	errors.ErrMissingKeyID,
	errors.ErrKeyNotFound,
	errors.ErrKeySourceUnavailable,
}

func classify(err error) error {
	for _, kind := range keyLookupErrors {
		if stderrors.Is(err, kind) {
			return fmt.Errorf("%w: %v", kind, err)
		}
	}
	switch {
	case stderrors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", errors.ErrMalformedToken, err)
	case stderrors.Is(err, jwt.ErrTokenUnverifiable):
		// alg header missing or naming an algorithm the library does not know
		return fmt.Errorf("%w: %v", errors.ErrUnsupportedAlgorithm, err)
	case stderrors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", errors.ErrSignatureInvalid, err)
	case stderrors.Is(err, jwt.ErrTokenExpired),
		stderrors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %v", errors.ErrTokenExpired, err)
	case stderrors.Is(err, jwt.ErrTokenNotValidYet),
		stderrors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return fmt.Errorf("%w: %v", errors.ErrTokenNotYetValid, err)
	default:
		return fmt.Errorf("%w: %v", errors.ErrMalformedToken, err)
	}
}
