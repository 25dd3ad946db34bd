package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authhandler "kycgate/internal/auth/handler"
	httpmetrics "kycgate/internal/platform/metrics"
	"kycgate/internal/ratelimit"
	verificationhandler "kycgate/internal/verification/handler"
	"kycgate/pkg/platform/httputil"
	"kycgate/pkg/platform/middleware/admin"
	"kycgate/pkg/platform/middleware/auth"
	"kycgate/pkg/platform/middleware/metadata"
	"kycgate/pkg/platform/middleware/request"
	"kycgate/pkg/platform/middleware/requesttime"
)

type routerDeps struct {
	registry      *prometheus.Registry
	authenticator auth.Authenticator
	limiter       *ratelimit.Middleware
	verification  *verificationhandler.Handler
	tokens        *authhandler.Handler
}

func (s *Server) newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(s.logger))
	r.Use(request.Logger(s.logger))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(httpmetrics.New(d.registry).Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(d.limiter.ByIP("initial", ratelimit.PerMinute(s.cfg.RateLimit.PublicPerMinute)))
		d.verification.RegisterPublic(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(d.authenticator, s.logger))
		r.Use(d.limiter.BySubject("subject", ratelimit.PerMinute(s.cfg.RateLimit.SubjectPerMinute)))
		d.verification.RegisterSubject(r)
		d.tokens.Register(r)
	})

	if s.cfg.AdminTokenHash != "" {
		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdminToken(s.cfg.AdminTokenHash, s.logger))
			d.verification.RegisterAdjudicator(r)
		})
	} else {
		s.logger.Warn("ADMIN_TOKEN_HASH not set, adjudicator routes disabled")
	}

	return r
}

type healthResponse struct {
	Status   string `json:"status"`
	Postgres string `json:"postgres,omitempty"`
	Redis    string `json:"redis,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	status := http.StatusOK
	if s.db != nil {
		resp.Postgres = "ok"
		if err := s.db.PingContext(ctx); err != nil {
			resp.Postgres, resp.Status, status = "unavailable", "degraded", http.StatusServiceUnavailable
		}
	}
	if s.redis != nil {
		resp.Redis = "ok"
		if err := s.redis.Health(ctx); err != nil {
			resp.Redis, resp.Status, status = "unavailable", "degraded", http.StatusServiceUnavailable
		}
	}
	httputil.WriteJSON(w, status, resp)
}
