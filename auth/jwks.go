package auth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"gigchat/errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultKeySetTTL          = 10 * time.Minute
	DefaultFetchTimeout       = 5 * time.Second
	DefaultMinRefreshInterval = 30 * time.Second

	maxJWKSBytes = 1 << 20
)

// CognitoJWKSURL builds the key set location of a Cognito user pool.
func CognitoJWKSURL(region, userPoolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s/.well-known/jwks.json", region, userPoolID)
}

// KeySet caches the RSA verification keys published at a JWKS endpoint.
//
// Keys are served from memory while the cache is younger than the TTL.
// A stale cache, or a key id missing from a fresh one, triggers a refresh.
// Refreshes are single-flight: concurrent callers share one HTTP request,
// and a caller arriving after a refresh it was waiting for reuses its result.
// Miss-triggered refreshes are throttled so unknown key ids cannot be used
// to flood the issuer.
type KeySet struct {
	url     string
	client  *http.Client
	log     *slog.Logger
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	forced  *rate.Limiter
	group   singleflight.Group

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	fetches   int
}

type KeySetOption func(*KeySet)

func WithHTTPClient(client *http.Client) KeySetOption {
	return func(k *KeySet) { k.client = client }
}

func WithKeySetTTL(ttl time.Duration) KeySetOption {
	return func(k *KeySet) { k.ttl = ttl }
}

func WithFetchTimeout(timeout time.Duration) KeySetOption {
	return func(k *KeySet) { k.timeout = timeout }
}

// WithMinRefreshInterval bounds how often an unknown key id may force a refresh.
func WithMinRefreshInterval(interval time.Duration) KeySetOption {
	return func(k *KeySet) { k.forced = rate.NewLimiter(rate.Every(interval), 1) }
}

func WithKeySetClock(now func() time.Time) KeySetOption {
	return func(k *KeySet) { k.now = now }
}

func NewKeySet(log *slog.Logger, url string, opts ...KeySetOption) *KeySet {
	k := &KeySet{
		url:     url,
		client:  http.DefaultClient,
		log:     log,
		ttl:     DefaultKeySetTTL,
		timeout: DefaultFetchTimeout,
		now:     time.Now,
		forced:  rate.NewLimiter(rate.Every(DefaultMinRefreshInterval), 1),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Key returns the verification key registered under kid.
func (k *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	keys, generation, fresh := k.snapshot()
	if fresh {
		if key, ok := keys[kid]; ok {
			return key, nil
		}
		if !k.forced.Allow() {
			return nil, fmt.Errorf("%w: kid %q", errors.ErrKeyNotFound, kid)
		}
		k.log.Debug("Unknown key id, forcing key set refresh", "kid", kid)
	}

	keys, err := k.refresh(ctx, generation)
	if err != nil {
		return nil, err
	}
	if key, ok := keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid %q", errors.ErrKeyNotFound, kid)
}

// Refresh fetches the key set unless another caller already did since the
// cache was last observed.
func (k *KeySet) Refresh(ctx context.Context) error {
	_, generation, _ := k.snapshot()
	_, err := k.refresh(ctx, generation)
	return err
}

// Fetches returns how many successful network fetches have been made.
func (k *KeySet) Fetches() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.fetches
}

func (k *KeySet) TTL() time.Duration { return k.ttl }

func (k *KeySet) snapshot() (map[string]*rsa.PublicKey, int, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	fresh := k.keys != nil && k.now().Sub(k.fetchedAt) < k.ttl
	return k.keys, k.fetches, fresh
}

// refresh fetches the key set. seen is the generation the caller observed;
// if a newer one exists by the time the flight starts, no request is made.
func (k *KeySet) refresh(ctx context.Context, seen int) (map[string]*rsa.PublicKey, error) {
	ch := k.group.DoChan(k.url, func() (any, error) {
		k.mu.RLock()
		if k.keys != nil && k.fetches > seen {
			keys := k.keys
			k.mu.RUnlock()
			return keys, nil
		}
		k.mu.RUnlock()

		// The fetch outlives a canceled waiter: other callers may share it.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.timeout)
		defer cancel()
		keys, err := k.fetch(fetchCtx)
		if err != nil {
			k.log.Warn("Key set refresh failed", "url", k.url, "error", err)
			return nil, err
		}

		k.mu.Lock()
		k.keys = keys
		k.fetchedAt = k.now()
		k.fetches++
		k.mu.Unlock()
		k.log.Debug("Key set refreshed", "url", k.url, "keys", len(keys))
		return keys, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]*rsa.PublicKey), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", errors.ErrKeySourceUnavailable, ctx.Err())
	}
}

func (k *KeySet) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrKeySourceUnavailable, err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := k.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrKeySourceUnavailable, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", errors.ErrKeySourceUnavailable, response.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(response.Body, maxJWKSBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read key set: %w", errors.ErrKeySourceUnavailable, err)
	}
	// Unreadable keys are dropped from the set instead of failing it
	set, err := jwk.Parse(data, jwk.WithIgnoreParseError(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode key set: %w", errors.ErrKeySourceUnavailable, err)
	}

	keys := make(map[string]*rsa.PublicKey, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		kid, use := key.KeyID(), key.KeyUsage()
		if key.KeyType() != jwa.RSA || kid == "" || (use != "" && use != string(jwk.ForSignature)) {
			continue
		}
		var raw any
		if err := key.Raw(&raw); err != nil {
			k.log.Warn("Skipping unreadable key", "kid", kid, "error", err)
			continue
		}
		public, ok := raw.(*rsa.PublicKey)
		if !ok {
			k.log.Warn("Skipping non public key", "kid", kid, "type", fmt.Sprintf("%T", raw))
			continue
		}
		keys[kid] = public
	}
	return keys, nil
}
