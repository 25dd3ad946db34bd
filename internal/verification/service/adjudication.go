package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
	dErrors "kycgate/pkg/domain-errors"
	audit "kycgate/pkg/platform/audit"
	"kycgate/pkg/platform/sentinel"
	"kycgate/pkg/requestcontext"
)

// subjectLookupBatch bounds the id list of one subject lookup.
const subjectLookupBatch = 100

// ProcessVerification records an adjudicator's decision. The request and its
// subject change in one unit of work; re-adjudicating a decided request is
// allowed and re-derives the subject's status.
func (s *Service) ProcessVerification(ctx context.Context, verificationID id.VerificationID, status string, feedback string) (*models.VerificationRequest, error) {
	ctx, span := s.tracer.Start(ctx, "verification.ProcessVerification",
		trace.WithAttributes(attribute.String("verification_id", verificationID.String())))
	defer span.End()

	decision, err := models.ParseDecision(status)
	if err != nil {
		return nil, err
	}
	feedback = strings.TrimSpace(feedback)

	req, err := s.loadRequest(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	// Subject must exist before the request is touched.
	if _, err := s.loadSubject(ctx, req.SubjectID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var updated *models.VerificationRequest
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.requests.Execute(ctx, verificationID, acceptAny[*models.VerificationRequest],
			func(r *models.VerificationRequest) {
				r.ApplyDecision(decision, now)
				r.RecordReview(feedback, now)
			},
		)
		if err != nil {
			return translateRequestErr(err, "failed to record decision")
		}
		if _, err := s.subjects.Execute(ctx, updated.SubjectID, acceptAny[*models.Subject], func(sub *models.Subject) {
			sub.ApplyDecision(decision, updated, now)
		}); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "subject not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update subject")
		}
		return s.emit(ctx, audit.Event{
			SubjectID:      updated.SubjectID,
			VerificationID: verificationID.String(),
			Action:         string(audit.EventVerificationAdjudicated),
			Decision:       string(decision),
			Reason:         feedback,
			Source:         SourceAdjudicator,
			ActorID:        SourceAdjudicator,
		})
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.metrics.IncDecision(SourceAdjudicator, string(decision))
	s.logger.InfoContext(ctx, "verification adjudicated",
		"request_id", requestcontext.RequestID(ctx),
		"subject_id", updated.SubjectID.String(),
		"verification_id", verificationID.String(),
		"decision", string(decision),
		"previous_status", string(req.Status),
	)
	return updated, nil
}

// ListPending returns requests awaiting review, oldest first, each with its
// subject's display fields. Requests whose subject row is missing are still
// listed with empty display fields.
func (s *Service) ListPending(ctx context.Context) ([]models.PendingVerification, error) {
	ctx, span := s.tracer.Start(ctx, "verification.ListPending")
	defer span.End()

	reqs, err := s.requests.ListPending(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending verifications")
	}

	subjects, err := s.lookupSubjects(ctx, reqs)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load subjects")
	}

	out := make([]models.PendingVerification, 0, len(reqs))
	for _, r := range reqs {
		pv := models.PendingVerification{Request: r}
		if sub, ok := subjects[r.SubjectID]; ok {
			pv.SubjectName = sub.Name
			pv.SubjectEmail = sub.Email
		}
		out = append(out, pv)
	}
	span.SetAttributes(attribute.Int("pending.count", len(out)))
	return out, nil
}

// lookupSubjects fetches the distinct owners of reqs in concurrent batches.
func (s *Service) lookupSubjects(ctx context.Context, reqs []*models.VerificationRequest) (map[id.SubjectID]*models.Subject, error) {
	seen := make(map[id.SubjectID]struct{}, len(reqs))
	ids := make([]id.SubjectID, 0, len(reqs))
	for _, r := range reqs {
		if _, ok := seen[r.SubjectID]; ok {
			continue
		}
		seen[r.SubjectID] = struct{}{}
		ids = append(ids, r.SubjectID)
	}

	var batches [][]id.SubjectID
	for start := 0; start < len(ids); start += subjectLookupBatch {
		end := min(start+subjectLookupBatch, len(ids))
		batches = append(batches, ids[start:end])
	}

	results := make([]map[id.SubjectID]*models.Subject, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, batch := range batches {
		g.Go(func() error {
			found, err := s.subjects.FindByIDs(gctx, batch)
			if err != nil {
				return err
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[id.SubjectID]*models.Subject, len(ids))
	for _, found := range results {
		for k, v := range found {
			merged[k] = v
		}
	}
	return merged, nil
}
