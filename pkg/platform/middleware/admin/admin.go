package admin

import (
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"kycgate/pkg/requestcontext"
)

// RequireAdminToken guards adjudicator routes. The presented X-Admin-Token is
// checked against a bcrypt hash so the plaintext never sits in configuration.
// An empty hash disables every guarded route.
func RequireAdminToken(tokenHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := r.Header.Get("X-Admin-Token")
			if tokenHash == "" || token == "" ||
				bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)) != nil {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin token required"}`))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithAdjudicator(ctx)))
		})
	}
}
