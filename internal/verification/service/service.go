// Package service holds the verification-request lifecycle: the workflow
// subjects drive and the adjudication adjudicators drive. Both paths apply
// decisions through the same model functions.
package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"kycgate/internal/verification/engine"
	"kycgate/internal/verification/metrics"
	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
	dErrors "kycgate/pkg/domain-errors"
	audit "kycgate/pkg/platform/audit"
	"kycgate/pkg/platform/sentinel"
	"kycgate/pkg/platform/tx"
	"kycgate/pkg/requestcontext"
)

type RequestStore interface {
	Create(ctx context.Context, req *models.VerificationRequest) error
	FindByID(ctx context.Context, verificationID id.VerificationID) (*models.VerificationRequest, error)
	ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]*models.VerificationRequest, error)
	ListPending(ctx context.Context) ([]*models.VerificationRequest, error)
	Execute(ctx context.Context, verificationID id.VerificationID, validate func(*models.VerificationRequest) error, mutate func(*models.VerificationRequest)) (*models.VerificationRequest, error)
}

type SubjectStore interface {
	FindByID(ctx context.Context, subjectID id.SubjectID) (*models.Subject, error)
	FindByIDs(ctx context.Context, ids []id.SubjectID) (map[id.SubjectID]*models.Subject, error)
	Execute(ctx context.Context, subjectID id.SubjectID, validate func(*models.Subject) error, mutate func(*models.Subject)) (*models.Subject, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Decision sources recorded in metrics and audit events.
const (
	SourceAutomated   = "automated"
	SourceAdjudicator = "adjudicator"
)

// Service orchestrates verification requests across the stores, the
// automated engine and the audit trail.
type Service struct {
	requests       RequestStore
	subjects       SubjectStore
	engine         engine.Client
	tx             tx.Runner
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTxRunner sets the unit-of-work boundary. Postgres deployments pass a
// tx.SQLRunner so request, subject and audit writes commit together.
func WithTxRunner(runner tx.Runner) Option {
	return func(s *Service) {
		if runner != nil {
			s.tx = runner
		}
	}
}

// New constructs a Service.
func New(requests RequestStore, subjects SubjectStore, client engine.Client, opts ...Option) *Service {
	s := &Service{
		requests: requests,
		subjects: subjects,
		engine:   client,
		tx:       tx.NewLocalRunner(),
		logger:   slog.Default(),
		tracer:   otel.Tracer("kycgate/verification/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) loadSubject(ctx context.Context, subjectID id.SubjectID) (*models.Subject, error) {
	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "subject not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load subject")
	}
	return subject, nil
}

func (s *Service) loadRequest(ctx context.Context, verificationID id.VerificationID) (*models.VerificationRequest, error) {
	req, err := s.requests.FindByID(ctx, verificationID)
	if err != nil {
		return nil, translateRequestErr(err, "failed to load verification request")
	}
	return req, nil
}

// translateRequestErr keeps coded errors raised inside Execute callbacks and
// maps store facts onto the domain taxonomy. An invariant violation can only
// come from decoding a stored row, so it is reported as internal.
func translateRequestErr(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case dErrors.HasCode(err, dErrors.CodeInvariantViolation):
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "verification request not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if s.auditPublisher == nil {
		return nil
	}
	event.Timestamp = requestcontext.Now(ctx)
	event.IP = requestcontext.ClientIP(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

func acceptAny[T any](T) error { return nil }
