package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"kycgate/internal/verification/engine"
	"kycgate/internal/verification/metrics"
	"kycgate/internal/verification/models"
	"kycgate/internal/verification/store/request"
	"kycgate/internal/verification/store/subject"
	id "kycgate/pkg/domain"
	dErrors "kycgate/pkg/domain-errors"
	audit "kycgate/pkg/platform/audit"
	"kycgate/pkg/platform/audit/publishers/compliance"
	auditmemory "kycgate/pkg/platform/audit/store/memory"
	"kycgate/pkg/platform/sentinel"
	"kycgate/pkg/requestcontext"
)

// countingEngine records how often the workflow consults the engine.
type countingEngine struct {
	inner engine.Client
	calls atomic.Int32
}

func (e *countingEngine) Evaluate(ctx context.Context, verificationID id.VerificationID) (*engine.Result, error) {
	e.calls.Add(1)
	return e.inner.Evaluate(ctx, verificationID)
}

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	requests *request.InMemoryStore
	subjects *subject.InMemoryStore
	audit    *auditmemory.InMemoryStore
	engine   *countingEngine
	stub     *engine.Stub
	metrics  *metrics.Metrics
	service  *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.requests = request.NewInMemory()
	s.subjects = subject.NewInMemory()
	s.audit = auditmemory.NewInMemoryStore()
	s.stub = engine.NewStub(models.StatusVerified)
	s.engine = &countingEngine{inner: s.stub}
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.requests, s.subjects, s.engine,
		WithAuditPublisher(compliance.New(s.audit)),
		WithMetrics(s.metrics),
	)
}

func (s *ServiceSuite) seedSubject(name string) id.SubjectID {
	sub := &models.Subject{
		ID:        id.SubjectID(uuid.New()),
		Name:      name,
		Email:     name + "@example.com",
		Status:    models.SubjectUnverified,
		UpdatedAt: s.now,
	}
	s.Require().NoError(s.subjects.Save(context.Background(), sub))
	return sub.ID
}

func (s *ServiceSuite) seedReverification(subjectID id.SubjectID) *models.VerificationRequest {
	req, err := s.service.InitiateReverification(s.ctx, subjectID, "", nil, unknownDevice())
	s.Require().NoError(err)
	return req
}

func (s *ServiceSuite) mustSubject(subjectID id.SubjectID) *models.Subject {
	sub, err := s.subjects.FindByID(context.Background(), subjectID)
	s.Require().NoError(err)
	return sub
}

func (s *ServiceSuite) mustRequest(verificationID id.VerificationID) *models.VerificationRequest {
	req, err := s.requests.FindByID(context.Background(), verificationID)
	s.Require().NoError(err)
	return req
}

func (s *ServiceSuite) actions(subjectID id.SubjectID) []string {
	events, err := s.audit.ListBySubject(context.Background(), subjectID)
	s.Require().NoError(err)
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

func unknownDevice() models.DeviceInfo {
	return models.DeviceInfo{
		MacAddress:        models.Unknown,
		IPAddress:         models.Unknown,
		DeviceFingerprint: models.Unknown,
		DeviceLabel:       "Unknown Device",
	}
}

func (s *ServiceSuite) TestInitiateInitial() {
	s.Run("verified by the engine verifies request and subject", func() {
		subjectID := s.seedSubject("ada")

		out, err := s.service.InitiateInitial(s.ctx, subjectID, "selfie-ref-1", unknownDevice())
		s.Require().NoError(err)
		s.Require().NoError(out.UpstreamErr)

		s.Equal(models.StatusVerified, out.Request.Status)
		s.Equal(models.TypeInitial, out.Request.Type)
		s.Require().NotNil(out.Request.VerifiedAt)
		s.Equal(s.now, *out.Request.VerifiedAt)
		s.NotEmpty(out.Request.AutomatedDetails)

		sub := s.mustSubject(subjectID)
		s.Equal(models.SubjectVerified, sub.Status)
		s.Require().NotNil(sub.LastVerifiedAt)
		s.Equal(*out.Request.VerifiedAt, *sub.LastVerifiedAt)

		s.Equal([]string{
			string(audit.EventVerificationInitiated),
			string(audit.EventVerificationDecided),
		}, s.actions(subjectID))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Decisions.WithLabelValues(SourceAutomated, "verified")))
	})

	s.Run("unknown subject is not found and nothing is created", func() {
		stranger := id.SubjectID(uuid.New())

		_, err := s.service.InitiateInitial(s.ctx, stranger, "selfie-ref", unknownDevice())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		history, err := s.service.GetHistory(s.ctx, stranger)
		s.Require().NoError(err)
		s.Empty(history)
	})

	s.Run("missing selfie is a validation error", func() {
		_, err := s.service.InitiateInitial(s.ctx, s.seedSubject("bob"), "  ", unknownDevice())
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestInitiateInitialEngineFailureLeavesRequestPending() {
	s.stub.Err = engine.NewError(engine.ErrorUnavailable, "engine down", nil)
	subjectID := s.seedSubject("carol")

	out, err := s.service.InitiateInitial(s.ctx, subjectID, "selfie-ref", unknownDevice())
	s.Require().NoError(err)
	s.True(dErrors.HasCode(out.UpstreamErr, dErrors.CodeUpstream))
	s.Equal(models.StatusPending, out.Request.Status)
	s.Nil(out.Request.VerifiedAt)

	stored := s.mustRequest(out.Request.ID)
	s.Equal(models.StatusPending, stored.Status)
	s.Equal(models.SubjectUnverified, s.mustSubject(subjectID).Status)
}

func (s *ServiceSuite) TestInitiateInitialEngineTimeoutIsReported() {
	s.stub.Err = engine.NewError(engine.ErrorTimeout, "too slow", nil)
	subjectID := s.seedSubject("dave")

	out, err := s.service.InitiateInitial(s.ctx, subjectID, "selfie-ref", unknownDevice())
	s.Require().NoError(err)
	s.ErrorIs(out.UpstreamErr, dErrors.New(dErrors.CodeUpstream, "automated verification timed out"))
}

func (s *ServiceSuite) TestInitiateInitialInconclusiveWaitsForAdjudication() {
	s.stub.Status = models.StatusPending
	subjectID := s.seedSubject("erin")

	out, err := s.service.InitiateInitial(s.ctx, subjectID, "selfie-ref", unknownDevice())
	s.Require().NoError(err)
	s.NoError(out.UpstreamErr)
	s.Equal(models.StatusPending, out.Request.Status)
	s.NotEmpty(out.Request.AutomatedDetails, "engine details are kept for the adjudicator")
	s.Equal(models.SubjectUnverified, s.mustSubject(subjectID).Status)
}

func (s *ServiceSuite) TestInitiateReverification() {
	s.Run("records the reason without consulting the engine", func() {
		subjectID := s.seedSubject("frank")
		details := json.RawMessage(`{"window":"24h"}`)

		req, err := s.service.InitiateReverification(s.ctx, subjectID, "velocity anomaly", details, unknownDevice())
		s.Require().NoError(err)

		s.Equal(models.TypeReverification, req.Type)
		s.Equal(models.StatusPending, req.Status)
		s.Equal(0, req.Attempts)
		s.Nil(req.Photo)
		s.Require().NotNil(req.SuspiciousActivity)
		s.Equal("velocity anomaly", req.SuspiciousActivity.Reason)
		s.JSONEq(`{"window":"24h"}`, string(req.SuspiciousActivity.AdditionalDetails))
		s.Equal(s.now, req.SuspiciousActivity.DetectedAt)
		s.Zero(s.engine.calls.Load())
	})

	s.Run("defaults reason and details", func() {
		req := s.seedReverification(s.seedSubject("grace"))
		s.Equal(models.DefaultSuspiciousReason, req.SuspiciousActivity.Reason)
		s.JSONEq(`{}`, string(req.SuspiciousActivity.AdditionalDetails))
	})

	s.Run("unknown subject is not found", func() {
		_, err := s.service.InitiateReverification(s.ctx, id.SubjectID(uuid.New()), "", nil, unknownDevice())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestSubmitPhoto() {
	s.Run("increments attempts then applies the engine decision", func() {
		s.stub.Status = models.StatusRejected
		subjectID := s.seedSubject("heidi")
		req := s.seedReverification(subjectID)

		out, err := s.service.SubmitPhoto(s.ctx, subjectID, req.ID, "photo-ref-1")
		s.Require().NoError(err)
		s.Require().NoError(out.UpstreamErr)

		s.Equal(1, out.Request.Attempts)
		s.Equal(models.StatusRejected, out.Request.Status)
		s.Require().NotNil(out.Request.Photo)
		s.Equal("photo-ref-1", *out.Request.Photo)
		s.Equal(models.SubjectRejected, s.mustSubject(subjectID).Status)
		s.Contains(s.actions(subjectID), string(audit.EventPhotoSubmitted))
	})

	s.Run("resubmission after a decision returns to pending and counts again", func() {
		s.stub.Status = models.StatusPending
		subjectID := s.seedSubject("ivan")
		req := s.seedReverification(subjectID)
		_, err := s.service.ProcessVerification(s.ctx, req.ID, "verified", "")
		s.Require().NoError(err)

		out, err := s.service.SubmitPhoto(s.ctx, subjectID, req.ID, "photo-ref-2")
		s.Require().NoError(err)
		s.Equal(1, out.Request.Attempts)
		s.Equal(models.StatusPending, out.Request.Status)
		s.Nil(out.Request.VerifiedAt)
	})

	s.Run("non-owner is forbidden and nothing changes", func() {
		owner := s.seedSubject("judy")
		req := s.seedReverification(owner)
		calls := s.engine.calls.Load()

		_, err := s.service.SubmitPhoto(s.ctx, s.seedSubject("mallory"), req.ID, "photo-ref")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		stored := s.mustRequest(req.ID)
		s.Equal(0, stored.Attempts)
		s.Nil(stored.Photo)
		s.Equal(calls, s.engine.calls.Load())
	})

	s.Run("missing photo is a validation error", func() {
		subjectID := s.seedSubject("ken")
		req := s.seedReverification(subjectID)

		for _, photo := range []string{"", "   "} {
			_, err := s.service.SubmitPhoto(s.ctx, subjectID, req.ID, photo)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), "photo %q", photo)
		}
		stored := s.mustRequest(req.ID)
		s.Equal(0, stored.Attempts)
		s.Nil(stored.Photo)
	})

	s.Run("unknown request is not found", func() {
		_, err := s.service.SubmitPhoto(s.ctx, s.seedSubject("leo"), id.NewVerificationID(), "photo-ref")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("engine failure keeps the resubmission", func() {
		s.stub.Err = engine.NewError(engine.ErrorUnavailable, "down", nil)
		defer func() { s.stub.Err = nil }()
		subjectID := s.seedSubject("mia")
		req := s.seedReverification(subjectID)

		out, err := s.service.SubmitPhoto(s.ctx, subjectID, req.ID, "photo-ref")
		s.Require().NoError(err)
		s.True(dErrors.HasCode(out.UpstreamErr, dErrors.CodeUpstream))
		s.Equal(1, s.mustRequest(req.ID).Attempts)
		s.Equal(models.StatusPending, s.mustRequest(req.ID).Status)
	})
}

func (s *ServiceSuite) TestSubmitPhotoConcurrentAttemptsAreNotLost() {
	s.stub.Status = models.StatusPending
	subjectID := s.seedSubject("nina")
	req := s.seedReverification(subjectID)

	const submissions = 25
	var wg sync.WaitGroup
	for range submissions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.SubmitPhoto(s.ctx, subjectID, req.ID, "photo-ref")
			s.NoError(err)
		}()
	}
	wg.Wait()

	s.Equal(submissions, s.mustRequest(req.ID).Attempts)
}

// gatedEngine parks each evaluation until the test releases it with a verdict.
type gatedEngine struct {
	pending chan chan models.RequestStatus
}

func newGatedEngine() *gatedEngine {
	return &gatedEngine{pending: make(chan chan models.RequestStatus)}
}

func (e *gatedEngine) Evaluate(ctx context.Context, _ id.VerificationID) (*engine.Result, error) {
	verdict := make(chan models.RequestStatus)
	select {
	case e.pending <- verdict:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case status := <-verdict:
		return &engine.Result{Status: status}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *ServiceSuite) TestSubmitPhotoStaleVerdictDoesNotLandOnNewerAttempt() {
	gated := newGatedEngine()
	svc := New(s.requests, s.subjects, gated, WithAuditPublisher(compliance.New(s.audit)))
	subjectID := s.seedSubject("quinn")
	req := s.seedReverification(subjectID)

	type submission struct {
		out *Outcome
		err error
	}
	submit := func(photo string) (<-chan submission, chan models.RequestStatus) {
		done := make(chan submission, 1)
		go func() {
			out, err := svc.SubmitPhoto(s.ctx, subjectID, req.ID, photo)
			done <- submission{out, err}
		}()
		return done, <-gated.pending
	}

	firstDone, firstVerdict := submit("photo-A")
	secondDone, secondVerdict := submit("photo-B")

	firstVerdict <- models.StatusVerified
	first := <-firstDone
	s.Require().NoError(first.err)
	s.Nil(first.out.EngineResult, "a superseded verdict is not reported")
	s.Equal(models.StatusPending, first.out.Request.Status)
	s.Equal(2, first.out.Request.Attempts)
	s.Equal(models.StatusPending, s.mustRequest(req.ID).Status)
	s.Equal(models.SubjectUnverified, s.mustSubject(subjectID).Status)

	secondVerdict <- models.StatusRejected
	second := <-secondDone
	s.Require().NoError(second.err)
	s.Require().NotNil(second.out.EngineResult)
	s.Equal(models.StatusRejected, second.out.EngineResult.Status)
	s.Equal(models.StatusRejected, second.out.Request.Status)

	stored := s.mustRequest(req.ID)
	s.Equal(models.StatusRejected, stored.Status)
	s.Equal(2, stored.Attempts)
	s.Require().NotNil(stored.Photo)
	s.Equal("photo-B", *stored.Photo)
	s.Nil(stored.VerifiedAt)
	s.Equal(models.SubjectRejected, s.mustSubject(subjectID).Status)
}

// corruptRowStore fails reads the way the Postgres store does when a row
// holds a status outside the closed set.
type corruptRowStore struct {
	*request.InMemoryStore
}

func (corruptRowStore) FindByID(context.Context, id.VerificationID) (*models.VerificationRequest, error) {
	_, err := models.ParseRequestStatus("photo_submitted")
	return nil, err
}

func (s *ServiceSuite) TestCorruptStoredRowIsInternal() {
	svc := New(corruptRowStore{s.requests}, s.subjects, s.engine)

	_, err := svc.CheckStatus(s.ctx, s.seedSubject("rhea"), id.NewVerificationID())

	s.True(dErrors.Is(err, dErrors.CodeInternal), "surfaces as 500, not 409")
}

func TestTranslateRequestErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want dErrors.Code
	}{
		{"callback forbidden passes through", dErrors.New(dErrors.CodeForbidden, "not yours"), dErrors.CodeForbidden},
		{"callback validation passes through", dErrors.New(dErrors.CodeValidation, "bad"), dErrors.CodeValidation},
		{"missing row", sentinel.ErrNotFound, dErrors.CodeNotFound},
		{"undecodable row", dErrors.New(dErrors.CodeInvariantViolation, "unknown request status: x"), dErrors.CodeInternal},
		{"store failure", errors.New("connection reset"), dErrors.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateRequestErr(tt.err, "failed")
			assert.Equal(t, tt.want, dErrors.CodeOf(got))
		})
	}
}

func (s *ServiceSuite) TestCheckStatus() {
	owner := s.seedSubject("olga")
	req := s.seedReverification(owner)

	s.Run("owner sees the request", func() {
		got, err := s.service.CheckStatus(s.ctx, owner, req.ID)
		s.Require().NoError(err)
		s.Equal(req.ID, got.ID)
		s.Equal(models.StatusPending, got.Status)
	})

	s.Run("another subject is forbidden", func() {
		_, err := s.service.CheckStatus(s.ctx, s.seedSubject("peggy"), req.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown request is not found", func() {
		_, err := s.service.CheckStatus(s.ctx, owner, id.NewVerificationID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestGetHistoryNewestFirst() {
	subjectID := s.seedSubject("quinn")
	var ids []id.VerificationID
	for i := range 3 {
		ctx := requestcontext.WithTime(context.Background(), s.now.Add(time.Duration(i)*time.Hour))
		req, err := s.service.InitiateReverification(ctx, subjectID, "", nil, unknownDevice())
		s.Require().NoError(err)
		ids = append(ids, req.ID)
	}
	_ = s.seedReverification(s.seedSubject("rupert"))

	history, err := s.service.GetHistory(s.ctx, subjectID)
	s.Require().NoError(err)
	s.Require().Len(history, 3)
	s.Equal(ids[2], history[0].ID)
	s.Equal(ids[1], history[1].ID)
	s.Equal(ids[0], history[2].ID)
}

func (s *ServiceSuite) TestGetCurrentStatus() {
	subjectID := s.seedSubject("sybil")
	sub, err := s.service.GetCurrentStatus(s.ctx, subjectID)
	s.Require().NoError(err)
	s.Equal(models.SubjectUnverified, sub.Status)
	s.Nil(sub.LastVerifiedAt)

	_, err = s.service.GetCurrentStatus(s.ctx, id.SubjectID(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
