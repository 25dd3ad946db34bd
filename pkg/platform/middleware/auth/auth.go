package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "kycgate/pkg/domain"
	"kycgate/pkg/requestcontext"
)

// Authenticator resolves a bearer credential to the subject it was issued to.
// Implementations fail closed: any error means the caller is unauthenticated.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (*Principal, error)
}

// Principal is the verified identity behind a credential.
type Principal struct {
	SubjectID id.SubjectID
	TokenID   string
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth rejects requests without a valid bearer credential and places
// the authenticated subject in the request context.
func RequireAuth(authenticator Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			principal, err := authenticator.Authenticate(ctx, strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithSubjectID(ctx, principal.SubjectID)
			ctx = requestcontext.WithTokenID(ctx, principal.TokenID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
