package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"kycgate/pkg/platform/sentinel"
)

const revokedTokenKeyPrefix = "trl:jti:"

// RedisTRL shares revocation state between server replicas.
type RedisTRL struct {
	client  *redis.Client
	latency prometheus.Histogram
}

// RedisTRLOption configures a RedisTRL instance.
type RedisTRLOption func(*RedisTRL)

// WithRedisMetrics registers the revocation-check latency histogram.
func WithRedisMetrics(reg prometheus.Registerer) RedisTRLOption {
	return func(t *RedisTRL) {
		t.latency = promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "kycgate_is_token_revoked_duration_ms",
			Help:    "Latency of token revocation checks in milliseconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		})
	}
}

// NewRedisTRL constructs a Redis-backed token revocation list.
func NewRedisTRL(client *redis.Client, opts ...RedisTRLOption) *RedisTRL {
	trl := &RedisTRL{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(trl)
		}
	}
	return trl
}

// RevokeToken marks jti revoked until ttl elapses.
func (t *RedisTRL) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return nil
	}
	if err := validateTTL(ttl); err != nil {
		return err
	}
	if err := t.client.Set(ctx, revokedTokenKeyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether jti is on the list. Expired entries are gone.
func (t *RedisTRL) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if t.latency != nil {
		start := time.Now()
		defer func() {
			t.latency.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
		}()
	}

	if jti == "" {
		return false, nil
	}
	err := t.client.Get(ctx, revokedTokenKeyPrefix+jti).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check token revocation: %w: %w", sentinel.ErrUnavailable, err)
	}
	return true, nil
}
