// Package revocation tracks bearer credentials revoked before they expire.
// Entries only need to outlive the token they revoke, so every backend
// stores a TTL alongside the jti.
package revocation

import (
	"context"
	"time"
)

// Clock returns the current time.
type Clock func() time.Time

// TokenRevocationList is implemented by every backend.
type TokenRevocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
