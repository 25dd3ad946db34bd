package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	dErrors "kycgate/pkg/domain-errors"
	"kycgate/pkg/platform/httputil"
	"kycgate/pkg/requestcontext"
)

// Revoker revokes the bearer credential presented on the request.
type Revoker interface {
	Revoke(ctx context.Context, credential string) error
}

// Handler serves the token endpoints.
type Handler struct {
	revoker Revoker
	logger  *slog.Logger
}

func New(revoker Revoker, logger *slog.Logger) *Handler {
	return &Handler{revoker: revoker, logger: logger}
}

// Register mounts POST /auth/revoke. The caller must wrap r in RequireAuth.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/revoke", h.HandleRevoke)
}

// HandleRevoke revokes the caller's own token. Later requests carrying it
// are rejected by the auth middleware.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	if err := h.revoker.Revoke(ctx, strings.TrimSpace(token)); err != nil {
		h.logger.ErrorContext(ctx, "failed to revoke token",
			"request_id", requestID,
			"token_id", requestcontext.TokenID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "token revoked",
		"request_id", requestID,
		"token_id", requestcontext.TokenID(ctx),
	)
	w.WriteHeader(http.StatusNoContent)
}
