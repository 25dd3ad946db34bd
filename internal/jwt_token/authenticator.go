package jwttoken

import (
	"context"

	"kycgate/internal/auth/store/revocation"
	id "kycgate/pkg/domain"
	dErrors "kycgate/pkg/domain-errors"
	"kycgate/pkg/platform/middleware/auth"
)

// Authenticator resolves bearer tokens for the auth middleware.
type Authenticator struct {
	service     *JWTService
	revocations revocation.TokenRevocationList
}

var _ auth.Authenticator = (*Authenticator)(nil)

func NewAuthenticator(service *JWTService, revocations revocation.TokenRevocationList) *Authenticator {
	return &Authenticator{service: service, revocations: revocations}
}

// Authenticate fails closed: a revocation-list outage rejects the token.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (*auth.Principal, error) {
	claims, err := a.service.ValidateToken(credential)
	if err != nil {
		return nil, err
	}

	subjectID, err := id.ParseSubjectID(claims.SubjectID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}

	if a.revocations != nil {
		revoked, err := a.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "token revocation check failed")
		}
		if revoked {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has been revoked")
		}
	}

	return &auth.Principal{SubjectID: subjectID, TokenID: claims.ID}, nil
}

// Revoke adds the token to the revocation list until it would have expired.
// Already-expired tokens need no entry.
func (a *Authenticator) Revoke(ctx context.Context, credential string) error {
	claims, err := a.service.ValidateToken(credential)
	if err != nil {
		return err
	}
	ttl := claims.ExpiresAt.Sub(a.service.now())
	if ttl <= 0 {
		return nil
	}
	if err := a.revocations.RevokeToken(ctx, claims.ID, ttl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token")
	}
	return nil
}
