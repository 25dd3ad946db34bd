// Package server assembles kycgate from configuration: storage, identity,
// the verification engine, the audit trail and the HTTP surface.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	authhandler "kycgate/internal/auth/handler"
	"kycgate/internal/auth/store/revocation"
	jwttoken "kycgate/internal/jwt_token"
	"kycgate/internal/platform/config"
	"kycgate/internal/platform/httpserver"
	"kycgate/internal/platform/postgres"
	redisclient "kycgate/internal/platform/redis"
	"kycgate/internal/ratelimit"
	"kycgate/internal/verification/engine"
	verificationhandler "kycgate/internal/verification/handler"
	verificationmetrics "kycgate/internal/verification/metrics"
	"kycgate/internal/verification/models"
	"kycgate/internal/verification/service"
	requeststore "kycgate/internal/verification/store/request"
	subjectstore "kycgate/internal/verification/store/subject"
	audit "kycgate/pkg/platform/audit"
	"kycgate/pkg/platform/audit/outbox"
	"kycgate/pkg/platform/audit/publishers/compliance"
	auditmemory "kycgate/pkg/platform/audit/store/memory"
	auditpostgres "kycgate/pkg/platform/audit/store/postgres"
	"kycgate/pkg/platform/circuit"
	"kycgate/pkg/platform/tx"
)

const (
	shutdownTimeout = 10 * time.Second
	txTimeout       = 10 * time.Second

	revocationPurgeInterval = time.Hour
)

type subjectStore interface {
	service.SubjectStore
	subjectstore.Saver
}

// Server is a fully wired kycgate instance.
type Server struct {
	cfg    config.Server
	logger *slog.Logger

	db    *sql.DB
	redis *redisclient.Client

	subjects    subjectStore
	revocations revocation.TokenRevocationList
	relay       *outbox.Relay
	closers     []func()
	handler     http.Handler
}

// Option overrides a component New would otherwise build from config.
type Option func(*options)

type options struct {
	engine engine.Client
}

// WithEngine replaces the configured engine client. It is still wrapped in
// the timeout and circuit breaker.
func WithEngine(client engine.Client) Option {
	return func(o *options) {
		o.engine = client
	}
}

// New opens the configured backends and builds the HTTP handler. Callers
// must Close the returned Server.
func New(ctx context.Context, cfg config.Server, logger *slog.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{cfg: cfg, logger: logger}
	if err := s.openBackends(ctx); err != nil {
		s.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var (
		requests service.RequestStore
		auditLog audit.Store
		txRunner tx.Runner
	)
	if s.db != nil {
		requests = requeststore.NewPostgres(s.db)
		s.subjects = subjectstore.NewPostgres(s.db)
		auditLog = auditpostgres.New(s.db)
		txRunner = tx.NewSQLRunner(s.db, txTimeout)
	} else {
		requests = requeststore.NewInMemory()
		s.subjects = subjectstore.NewInMemory()
		auditLog = auditmemory.NewInMemoryStore()
		txRunner = tx.NewLocalRunner()
	}

	if cfg.SubjectSeedFile != "" {
		if err := s.seedFromFile(ctx, cfg.SubjectSeedFile); err != nil {
			s.Close()
			return nil, err
		}
	}

	s.revocations = s.buildRevocationList(reg)
	jwtService := jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience)
	authenticator := jwttoken.NewAuthenticator(jwtService, s.revocations)

	limiter, err := s.buildRateLimiter(reg)
	if err != nil {
		s.Close()
		return nil, err
	}

	verificationMetrics := verificationmetrics.New(reg)
	engineClient := s.buildEngine(o.engine, verificationMetrics)

	publisher := compliance.New(auditLog,
		compliance.WithLogger(logger),
		compliance.WithMetrics(compliance.NewMetrics(reg)),
	)
	svc := service.New(requests, s.subjects, engineClient,
		service.WithLogger(logger),
		service.WithAuditPublisher(publisher),
		service.WithMetrics(verificationMetrics),
		service.WithTxRunner(txRunner),
	)

	s.handler = s.newRouter(routerDeps{
		registry:      reg,
		authenticator: authenticator,
		limiter:       limiter,
		verification:  verificationhandler.New(svc, logger),
		tokens:        authhandler.New(authenticator, logger),
	})

	if s.db != nil && len(cfg.Audit.Brokers) > 0 {
		if err := s.buildRelay(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Handler is the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// SeedSubjects loads a JSON subject seed into the active subject store.
func (s *Server) SeedSubjects(ctx context.Context, r io.Reader) (int, error) {
	return subjectstore.LoadSeed(ctx, r, s.subjects, time.Now())
}

// Run serves HTTP on the configured address along with the background
// loops until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := httpserver.New(s.cfg.Addr, s.handler)
	g, gctx := errgroup.WithContext(ctx)

	if s.relay != nil {
		g.Go(func() error { return s.relay.Run(gctx) })
	}
	if trl, ok := s.revocations.(*revocation.PostgresTRL); ok {
		g.Go(func() error { return s.purgeRevocations(gctx, trl) })
	}

	g.Go(func() error {
		s.logger.Info("starting kycgate", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down kycgate")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close releases every backend New opened, in reverse order.
func (s *Server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func (s *Server) openBackends(ctx context.Context) error {
	if s.cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, s.cfg.DatabaseURL)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, func() {
			if err := db.Close(); err != nil {
				s.logger.Warn("failed to close database", "error", err)
			}
		})
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		s.db = db
		s.logger.Info("using postgres storage")
	} else {
		s.logger.Warn("DATABASE_URL not set, using in-memory storage")
	}

	client, err := redisclient.New(ctx, s.cfg.Redis)
	if err != nil {
		return err
	}
	if client != nil {
		s.redis = client
		s.closers = append(s.closers, func() {
			if err := client.Close(); err != nil {
				s.logger.Warn("failed to close redis client", "error", err)
			}
		})
	}
	return nil
}

func (s *Server) seedFromFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open subject seed: %w", err)
	}
	defer f.Close()

	n, err := s.SeedSubjects(ctx, f)
	if err != nil {
		return err
	}
	s.logger.Info("seeded subjects", "count", n, "file", path)
	return nil
}

// buildRevocationList prefers Redis, then Postgres, then process memory.
func (s *Server) buildRevocationList(reg prometheus.Registerer) revocation.TokenRevocationList {
	switch {
	case s.redis != nil:
		s.logger.Info("token revocation list backed by redis")
		return revocation.NewRedisTRL(s.redis.Client, revocation.WithRedisMetrics(reg))
	case s.db != nil:
		s.logger.Info("token revocation list backed by postgres")
		return revocation.NewPostgresTRL(s.db)
	default:
		s.logger.Warn("token revocation list is in-memory; revocations are lost on restart")
		return revocation.NewInMemoryTRL()
	}
}

func (s *Server) purgeRevocations(ctx context.Context, trl *revocation.PostgresTRL) error {
	ticker := time.NewTicker(revocationPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := trl.PurgeExpired(ctx)
			if err != nil {
				s.logger.WarnContext(ctx, "failed to purge expired revocations", "error", err)
				continue
			}
			if n > 0 {
				s.logger.DebugContext(ctx, "purged expired revocations", "count", n)
			}
		}
	}
}

func (s *Server) buildRateLimiter(reg prometheus.Registerer) (*ratelimit.Middleware, error) {
	proxies, err := ratelimit.ParseTrustedProxies(s.cfg.RateLimit.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_TRUSTED_PROXIES: %w", err)
	}
	var store ratelimit.Store = ratelimit.NewInMemoryStore()
	if s.redis != nil {
		store = ratelimit.NewRedisStore(s.redis.Client)
	}
	return ratelimit.New(store, s.logger,
		ratelimit.WithDisabled(s.cfg.RateLimit.Disabled),
		ratelimit.WithMetrics(reg),
		ratelimit.WithTrustedProxies(proxies),
	), nil
}

func (s *Server) buildEngine(override engine.Client, m *verificationmetrics.Metrics) engine.Client {
	cfg := s.cfg.Engine
	inner := override
	switch {
	case inner != nil:
	case cfg.URL != "":
		inner = engine.NewHTTPClient(cfg.URL)
		s.logger.Info("using remote verification engine", "url", cfg.URL)
	default:
		inner = engine.NewStub(models.StatusVerified)
		s.logger.Warn("ENGINE_URL not set, using stub engine")
	}

	breaker := circuit.New("verification-engine",
		circuit.WithFailureThreshold(cfg.FailureThreshold),
		circuit.WithCooldown(cfg.Cooldown),
	)
	return engine.NewGuarded(inner,
		engine.WithTimeout(cfg.Timeout),
		engine.WithBreaker(breaker),
		engine.WithLogger(s.logger),
		engine.WithMetrics(m),
	)
}

func (s *Server) buildRelay(ctx context.Context) error {
	cfg := s.cfg.Audit
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, client.Close)
	if err := outbox.EnsureTopic(ctx, client, cfg.Topic, 3, 1); err != nil {
		return err
	}
	s.relay = outbox.NewRelay(s.db, client, cfg.Topic,
		outbox.WithInterval(cfg.PollInterval),
		outbox.WithBatchSize(cfg.BatchSize),
		outbox.WithLogger(s.logger),
	)
	s.logger.Info("audit outbox relay enabled", "topic", cfg.Topic, "brokers", cfg.Brokers)
	return nil
}
