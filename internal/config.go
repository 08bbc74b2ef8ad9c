package internal

import (
	"fmt"
	"gigchat/auth"
	"time"
)

const (
	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"
)

type Config struct {
	Host           string `env:"HOST,default=localhost"`
	Port           int    `env:"PORT,default=8080"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`

	CognitoRegion          string        `env:"COGNITO_REGION"`
	CognitoUserPoolID      string        `env:"COGNITO_USER_POOL_ID"`
	JWKSURL                string        `env:"JWKS_URL"`
	JWKSTTL                time.Duration `env:"JWKS_TTL,default=10m"`
	JWKSFetchTimeout       time.Duration `env:"JWKS_FETCH_TIMEOUT,default=5s"`
	JWKSMinRefreshInterval time.Duration `env:"JWKS_MIN_REFRESH_INTERVAL,default=30s"`
	ClockSkew              time.Duration `env:"CLOCK_SKEW,default=60s"`

	ForgotLimitCount       int           `env:"FORGOT_LIMIT_COUNT,default=5"`
	ForgotLimitWindow      time.Duration `env:"FORGOT_LIMIT_WINDOW,default=15m"`
	RateLimitBackend       string        `env:"RATE_LIMIT_BACKEND,default=memory"`
	RateLimitShards        int           `env:"RATE_LIMIT_SHARDS,default=64"`
	RateLimitMaxKeys       int           `env:"RATE_LIMIT_MAX_KEYS,default=100000"`
	RateLimitSweepInterval time.Duration `env:"RATE_LIMIT_SWEEP_INTERVAL,default=1m"`
	RedisAddr              string        `env:"REDIS_ADDR"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	EventBufferSize      int           `env:"EVENT_BUFFER_SIZE,default=1024"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`

	ResetTokenTTL         time.Duration `env:"RESET_TOKEN_TTL,default=30m"`
	ResetTokenPurgePeriod time.Duration `env:"RESET_TOKEN_PURGE_INTERVAL,default=10m"`
	ResetURL              string        `env:"RESET_URL,default=http://localhost:3000/#/forgot-password"`
}

// KeySetURL is JWKS_URL when set, the Cognito user pool key set otherwise.
func (c Config) KeySetURL() (string, error) {
	if c.JWKSURL != "" {
		return c.JWKSURL, nil
	}
	if c.CognitoRegion == "" || c.CognitoUserPoolID == "" {
		return "", fmt.Errorf("JWKS_URL or both COGNITO_REGION and COGNITO_USER_POOL_ID must be set")
	}
	return auth.CognitoJWKSURL(c.CognitoRegion, c.CognitoUserPoolID), nil
}

func (c Config) Validate() error {
	switch c.RateLimitBackend {
	case RateLimitMemory:
	case RateLimitRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when RATE_LIMIT_BACKEND is %q", RateLimitRedis)
		}
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND must be %q or %q, got %q", RateLimitMemory, RateLimitRedis, c.RateLimitBackend)
	}
	if c.ForgotLimitCount < 0 || c.ForgotLimitWindow <= 0 {
		return fmt.Errorf("FORGOT_LIMIT_COUNT must be >= 0 and FORGOT_LIMIT_WINDOW > 0")
	}
	// These drive tickers and expiries
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"JWKS_TTL", c.JWKSTTL},
		{"JWKS_FETCH_TIMEOUT", c.JWKSFetchTimeout},
		{"RATE_LIMIT_SWEEP_INTERVAL", c.RateLimitSweepInterval},
		{"RESET_TOKEN_TTL", c.ResetTokenTTL},
		{"RESET_TOKEN_PURGE_INTERVAL", c.ResetTokenPurgePeriod},
	} {
		if d.value <= 0 {
			return fmt.Errorf("%s must be > 0, got %s", d.name, d.value)
		}
	}
	_, err := c.KeySetURL()
	return err
}
