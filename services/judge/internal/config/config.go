// Package config holds the judge's process configuration, loaded from the
// environment, and the moderator-editable Settings.
package config

import (
	"errors"
	"time"

	platformconfig "github.com/example/twist-judge/internal/platform/config"
)

type RedditConfig struct {
	BaseURL        string
	AuthURL        string
	ClientID       string
	ClientSecret   string
	Username       string
	Password       string
	UserAgent      string
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// Enabled reports whether enough credentials are present to talk to Reddit.
func (c RedditConfig) Enabled() bool {
	return c.ClientID != "" && c.Username != ""
}

type Config struct {
	RedisURL    string
	RedisPrefix string
	NATSURL     string
	DatabaseURL string

	SweepInterval      time.Duration
	ResolveConcurrency int
	EventConcurrency   int
	EventBatchSize     int
	EventMaxDeliver    int
	IdempotencyTTL     time.Duration

	Reddit RedditConfig

	// Retry and circuit-breaker settings for the Reddit client.
	CBMaxRequests      uint32
	CBInterval         time.Duration
	CBTimeout          time.Duration
	CBFailureThreshold uint32

	JWTSecret string
}

func LoadService() (Config, error) {
	secret := platformconfig.Env("ADMIN_JWT_SECRET")
	if secret == "" {
		return Config{}, errors.New("ADMIN_JWT_SECRET is required")
	}
	return Config{
		RedisURL:    platformconfig.Env("REDIS_URL"),
		RedisPrefix: platformconfig.EnvDefault("REDIS_PREFIX", "judge"),
		NATSURL:     platformconfig.Env("NATS_URL"),
		DatabaseURL: platformconfig.Env("DATABASE_URL"),

		SweepInterval:      platformconfig.EnvDuration("SWEEP_INTERVAL", time.Minute),
		ResolveConcurrency: platformconfig.EnvInt("RESOLVE_CONCURRENCY", 8),
		EventConcurrency:   platformconfig.EnvInt("EVENT_CONCURRENCY", 8),
		EventBatchSize:     platformconfig.EnvInt("EVENT_BATCH_SIZE", 16),
		EventMaxDeliver:    platformconfig.EnvInt("EVENT_MAX_DELIVER", 5),
		IdempotencyTTL:     platformconfig.EnvDuration("IDEMPOTENCY_TTL", 72*time.Hour),

		Reddit: RedditConfig{
			BaseURL:        platformconfig.EnvDefault("REDDIT_BASE_URL", "https://oauth.reddit.com"),
			AuthURL:        platformconfig.EnvDefault("REDDIT_AUTH_URL", "https://www.reddit.com/api/v1/access_token"),
			ClientID:       platformconfig.Env("REDDIT_CLIENT_ID"),
			ClientSecret:   platformconfig.Env("REDDIT_CLIENT_SECRET"),
			Username:       platformconfig.Env("REDDIT_USERNAME"),
			Password:       platformconfig.Env("REDDIT_PASSWORD"),
			UserAgent:      platformconfig.EnvDefault("REDDIT_USER_AGENT", "twist-judge/1.0"),
			MaxRetries:     platformconfig.EnvInt("REDDIT_MAX_RETRIES", 3),
			RetryBaseDelay: platformconfig.EnvDuration("REDDIT_RETRY_BASE_DELAY", 500*time.Millisecond),
		},

		CBMaxRequests:      uint32(platformconfig.EnvInt("CB_MAX_REQUESTS", 5)),
		CBInterval:         platformconfig.EnvDuration("CB_INTERVAL", 60*time.Second),
		CBTimeout:          platformconfig.EnvDuration("CB_TIMEOUT", 30*time.Second),
		CBFailureThreshold: uint32(platformconfig.EnvInt("CB_FAILURE_THRESHOLD", 5)),

		JWTSecret: secret,
	}, nil
}
