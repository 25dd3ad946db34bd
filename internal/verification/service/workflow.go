package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kycgate/internal/verification/engine"
	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
	dErrors "kycgate/pkg/domain-errors"
	audit "kycgate/pkg/platform/audit"
	"kycgate/pkg/requestcontext"
)

// Outcome is a request after the engine was consulted. UpstreamErr is set
// when the engine failed; the request is still persisted and pending.
type Outcome struct {
	Request      *models.VerificationRequest
	EngineResult *engine.Result
	UpstreamErr  error
}

// errSuperseded aborts an automated decision when the request was decided
// or resubmitted between the engine call and the write.
var errSuperseded = errors.New("verification request superseded")

// InitiateInitial opens an initial verification with the KYC selfie and asks
// the engine for an immediate decision.
func (s *Service) InitiateInitial(ctx context.Context, subjectID id.SubjectID, photo string, device models.DeviceInfo) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "verification.InitiateInitial",
		trace.WithAttributes(attribute.String("subject_id", subjectID.String())))
	defer span.End()

	if strings.TrimSpace(photo) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "selfiePhoto is required")
	}
	if _, err := s.loadSubject(ctx, subjectID); err != nil {
		return nil, err
	}

	req, err := models.NewInitialRequest(subjectID, photo, device, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build verification request")
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.requests.Create(ctx, req); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create verification request")
		}
		return s.emit(ctx, audit.Event{
			SubjectID:      subjectID,
			VerificationID: req.ID.String(),
			Action:         string(audit.EventVerificationInitiated),
		})
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.metrics.IncRequestCreated(string(models.TypeInitial))
	s.logger.InfoContext(ctx, "initial verification opened",
		"request_id", requestcontext.RequestID(ctx),
		"subject_id", subjectID.String(),
		"verification_id", req.ID.String(),
	)

	return s.evaluate(ctx, req)
}

// InitiateReverification opens a re-verification after suspicious activity.
// The request waits for a photo, so the engine is not consulted.
func (s *Service) InitiateReverification(ctx context.Context, subjectID id.SubjectID, reason string, details json.RawMessage, device models.DeviceInfo) (*models.VerificationRequest, error) {
	ctx, span := s.tracer.Start(ctx, "verification.InitiateReverification",
		trace.WithAttributes(attribute.String("subject_id", subjectID.String())))
	defer span.End()

	if _, err := s.loadSubject(ctx, subjectID); err != nil {
		return nil, err
	}

	req, err := models.NewReverificationRequest(subjectID, strings.TrimSpace(reason), details, device, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build verification request")
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.requests.Create(ctx, req); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create verification request")
		}
		return s.emit(ctx, audit.Event{
			SubjectID:      subjectID,
			VerificationID: req.ID.String(),
			Action:         string(audit.EventReverificationInitiated),
			Reason:         req.SuspiciousActivity.Reason,
		})
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.metrics.IncRequestCreated(string(models.TypeReverification))
	s.logger.InfoContext(ctx, "re-verification opened",
		"request_id", requestcontext.RequestID(ctx),
		"subject_id", subjectID.String(),
		"verification_id", req.ID.String(),
		"reason", req.SuspiciousActivity.Reason,
	)
	return req, nil
}

// SubmitPhoto attaches a new photo, returns the request to pending with one
// more attempt, then asks the engine for a decision. Ownership is checked
// under the same lock as the mutation.
func (s *Service) SubmitPhoto(ctx context.Context, subjectID id.SubjectID, verificationID id.VerificationID, photo string) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "verification.SubmitPhoto",
		trace.WithAttributes(attribute.String("verification_id", verificationID.String())))
	defer span.End()

	if strings.TrimSpace(photo) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "photo is required")
	}
	now := requestcontext.Now(ctx)

	var updated *models.VerificationRequest
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.requests.Execute(ctx, verificationID,
			func(r *models.VerificationRequest) error {
				if !r.IsOwnedBy(subjectID) {
					return dErrors.New(dErrors.CodeForbidden, "verification request belongs to another subject")
				}
				return nil
			},
			func(r *models.VerificationRequest) {
				r.Resubmit(photo, now)
			},
		)
		if err != nil {
			return translateRequestErr(err, "failed to submit photo")
		}
		return s.emit(ctx, audit.Event{
			SubjectID:      subjectID,
			VerificationID: verificationID.String(),
			Action:         string(audit.EventPhotoSubmitted),
		})
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeForbidden) {
			s.logger.WarnContext(ctx, "photo submission by non-owner rejected",
				"request_id", requestcontext.RequestID(ctx),
				"subject_id", subjectID.String(),
				"verification_id", verificationID.String(),
			)
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.metrics.IncResubmission()
	s.logger.InfoContext(ctx, "verification photo submitted",
		"request_id", requestcontext.RequestID(ctx),
		"subject_id", subjectID.String(),
		"verification_id", verificationID.String(),
		"attempts", updated.Attempts,
	)

	return s.evaluate(ctx, updated)
}

// evaluate consults the engine for req and applies a conclusive answer to
// the request and its subject. Engine failures leave the request pending.
func (s *Service) evaluate(ctx context.Context, req *models.VerificationRequest) (*Outcome, error) {
	logger := s.logger.With(
		"request_id", requestcontext.RequestID(ctx),
		"subject_id", req.SubjectID.String(),
		"verification_id", req.ID.String(),
	)

	result, err := s.engine.Evaluate(ctx, req.ID)
	if err != nil {
		logger.WarnContext(ctx, "automated verification failed; request left pending",
			"category", string(engine.CategoryOf(err)),
			"error", err,
		)
		return &Outcome{Request: req, UpstreamErr: upstreamError(err)}, nil
	}

	decision, conclusive := result.Decision()
	now := requestcontext.Now(ctx)
	evaluatedAttempt := req.Attempts

	var updated *models.VerificationRequest
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.requests.Execute(ctx, req.ID,
			func(r *models.VerificationRequest) error {
				if r.Status != models.StatusPending || r.Attempts != evaluatedAttempt {
					return errSuperseded
				}
				return nil
			},
			func(r *models.VerificationRequest) {
				if len(result.Details) > 0 {
					r.AutomatedDetails = result.Details
				}
				if conclusive {
					r.ApplyDecision(decision, now)
				}
			},
		)
		if err != nil {
			return err
		}
		if !conclusive {
			return nil
		}
		if _, err := s.subjects.Execute(ctx, updated.SubjectID, acceptAny[*models.Subject], func(sub *models.Subject) {
			sub.ApplyDecision(decision, updated, now)
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update subject")
		}
		return s.emit(ctx, audit.Event{
			SubjectID:      updated.SubjectID,
			VerificationID: updated.ID.String(),
			Action:         string(audit.EventVerificationDecided),
			Decision:       string(decision),
			Source:         SourceAutomated,
		})
	})
	if errors.Is(err, errSuperseded) {
		logger.InfoContext(ctx, "automated decision discarded; request moved on",
			"evaluated_attempt", evaluatedAttempt,
		)
		current, err := s.loadRequest(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		return &Outcome{Request: current}, nil
	}
	if err != nil {
		return nil, translateRequestErr(err, "failed to apply automated decision")
	}

	if conclusive {
		s.metrics.IncDecision(SourceAutomated, string(decision))
		logger.InfoContext(ctx, "automated decision applied", "decision", string(decision))
	} else {
		logger.InfoContext(ctx, "automated verification inconclusive; awaiting adjudication")
	}
	return &Outcome{Request: updated, EngineResult: result}, nil
}

func upstreamError(err error) error {
	if engine.IsTimeout(err) {
		return dErrors.Wrap(err, dErrors.CodeUpstream, "automated verification timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeUpstream, "automated verification unavailable")
}

// CheckStatus returns a request the caller owns.
func (s *Service) CheckStatus(ctx context.Context, subjectID id.SubjectID, verificationID id.VerificationID) (*models.VerificationRequest, error) {
	req, err := s.loadRequest(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	if !req.IsOwnedBy(subjectID) {
		s.logger.WarnContext(ctx, "status check by non-owner rejected",
			"request_id", requestcontext.RequestID(ctx),
			"subject_id", subjectID.String(),
			"verification_id", verificationID.String(),
		)
		return nil, dErrors.New(dErrors.CodeForbidden, "verification request belongs to another subject")
	}
	return req, nil
}

// GetHistory lists every request the subject opened, newest first.
func (s *Service) GetHistory(ctx context.Context, subjectID id.SubjectID) ([]*models.VerificationRequest, error) {
	reqs, err := s.requests.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verification history")
	}
	return reqs, nil
}

// GetCurrentStatus returns the subject's verification standing.
func (s *Service) GetCurrentStatus(ctx context.Context, subjectID id.SubjectID) (*models.Subject, error) {
	return s.loadSubject(ctx, subjectID)
}
