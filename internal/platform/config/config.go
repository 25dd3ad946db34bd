package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	platformstrings "kycgate/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr     string
	LogLevel string

	DatabaseURL string
	Redis       RedisConfig
	JWT         JWTConfig
	Engine      EngineConfig
	Audit       AuditConfig
	RateLimit   RateLimitConfig

	// SubjectSeedFile optionally points at a JSON array of subjects loaded
	// at startup.
	SubjectSeedFile string

	// AdminTokenHash is the bcrypt hash of the adjudicator credential.
	// Empty disables the adjudicator routes.
	AdminTokenHash string
}

// RedisConfig configures the revocation list backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// JWTConfig configures bearer credential validation.
type JWTConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
	TTL        time.Duration
}

// EngineConfig configures the automated verification engine client.
// An empty URL selects the deterministic stub.
type EngineConfig struct {
	URL              string
	Timeout          time.Duration
	FailureThreshold int
	Cooldown         time.Duration
}

// AuditConfig configures the outbox relay. No brokers disables it.
type AuditConfig struct {
	Brokers      []string
	Topic        string
	PollInterval time.Duration
	BatchSize    int
}

// RateLimitConfig sets per-minute request budgets. The public route is
// budgeted per client IP, bearer routes per subject.
type RateLimitConfig struct {
	Disabled         bool
	PublicPerMinute  int
	SubjectPerMinute int
	// TrustedProxies are IPs or CIDRs allowed to vouch for a client through
	// X-Forwarded-For. Empty means budgets follow the TCP peer.
	TrustedProxies []string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:            getenv("KYCGATE_ADDR", ":8080"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		AdminTokenHash:  os.Getenv("ADMIN_TOKEN_HASH"),
		SubjectSeedFile: os.Getenv("SUBJECTS_SEED_FILE"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		JWT: JWTConfig{
			// Use a default for development - should be overridden in production
			SigningKey: getenv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:     getenv("JWT_ISSUER", "kycgate"),
			Audience:   getenv("JWT_AUDIENCE", "kycgate-api"),
			TTL:        time.Hour,
		},
		Engine: EngineConfig{
			URL:              os.Getenv("ENGINE_URL"),
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
		},
		Audit: AuditConfig{
			Brokers:      platformstrings.SplitList(os.Getenv("KAFKA_BROKERS")),
			Topic:        getenv("AUDIT_TOPIC", "kycgate.audit"),
			PollInterval: time.Second,
			BatchSize:    100,
		},
	}

	cfg.RateLimit = RateLimitConfig{
		Disabled:         os.Getenv("RATE_LIMIT_DISABLED") == "true",
		PublicPerMinute:  10,
		SubjectPerMinute: 60,
		TrustedProxies:   platformstrings.SplitList(os.Getenv("RATE_LIMIT_TRUSTED_PROXIES")),
	}

	var err error
	if cfg.Engine.Timeout, err = durationEnv("ENGINE_TIMEOUT", 10*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.JWT.TTL, err = durationEnv("JWT_TTL", cfg.JWT.TTL); err != nil {
		return Server{}, err
	}
	if cfg.Engine.FailureThreshold, err = positiveIntEnv("ENGINE_FAILURE_THRESHOLD", cfg.Engine.FailureThreshold); err != nil {
		return Server{}, err
	}
	if cfg.RateLimit.PublicPerMinute, err = positiveIntEnv("RATE_LIMIT_PUBLIC_PER_MINUTE", cfg.RateLimit.PublicPerMinute); err != nil {
		return Server{}, err
	}
	if cfg.RateLimit.SubjectPerMinute, err = positiveIntEnv("RATE_LIMIT_SUBJECT_PER_MINUTE", cfg.RateLimit.SubjectPerMinute); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func positiveIntEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}
