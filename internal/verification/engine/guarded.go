package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kycgate/internal/verification/metrics"
	id "kycgate/pkg/domain"
	"kycgate/pkg/platform/circuit"
)

const defaultTimeout = 10 * time.Second

// Guarded bounds every call with a timeout and short-circuits a failing
// engine through a circuit breaker.
type Guarded struct {
	inner   Client
	breaker *circuit.Breaker
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// GuardOption configures Guarded.
type GuardOption func(*Guarded)

func WithTimeout(d time.Duration) GuardOption {
	return func(g *Guarded) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) GuardOption {
	return func(g *Guarded) {
		if b != nil {
			g.breaker = b
		}
	}
}

func WithLogger(logger *slog.Logger) GuardOption {
	return func(g *Guarded) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) GuardOption {
	return func(g *Guarded) {
		g.metrics = m
	}
}

// NewGuarded wraps inner.
func NewGuarded(inner Client, opts ...GuardOption) *Guarded {
	g := &Guarded{
		inner:   inner,
		breaker: circuit.New("verification-engine", circuit.WithSuccessThreshold(1)),
		timeout: defaultTimeout,
		logger:  slog.Default(),
		tracer:  otel.Tracer("kycgate/verification/engine"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guarded) Evaluate(ctx context.Context, verificationID id.VerificationID) (*Result, error) {
	ctx, span := g.tracer.Start(ctx, "engine.Evaluate",
		trace.WithAttributes(attribute.String("verification_id", verificationID.String())))
	defer span.End()

	if !g.breaker.Allow() {
		g.metrics.IncEngineFailure(string(ErrorCircuitOpen))
		err := NewError(ErrorCircuitOpen, "engine circuit open", nil)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	result, err := g.inner.Evaluate(callCtx, verificationID)
	elapsed := time.Since(start)

	if err == nil && result == nil {
		err = NewError(ErrorBadResponse, "engine returned no result", nil)
	}
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = NewError(ErrorTimeout, "engine did not respond in time", err)
		}
		category := CategoryOf(err)
		g.metrics.ObserveEngineCall("failed", elapsed)
		g.metrics.IncEngineFailure(string(category))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(category))

		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "engine circuit opened",
				"breaker", g.breaker.Name(),
				"verification_id", verificationID.String(),
			)
		}
		return nil, err
	}

	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.InfoContext(ctx, "engine circuit closed", "breaker", g.breaker.Name())
	}

	outcome := "decided"
	if _, ok := result.Decision(); !ok {
		outcome = "inconclusive"
	}
	g.metrics.ObserveEngineCall(outcome, elapsed)
	span.SetAttributes(attribute.String("engine.status", string(result.Status)))
	return result, nil
}
