package request

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
	dErrors "kycgate/pkg/domain-errors"
	"kycgate/pkg/platform/sentinel"
)

type RequestStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func (s *RequestStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestRequestStoreSuite(t *testing.T) {
	suite.Run(t, new(RequestStoreSuite))
}

func (s *RequestStoreSuite) newRequest(subjectID id.SubjectID, requestedAt time.Time) *models.VerificationRequest {
	req, err := models.NewReverificationRequest(subjectID, "", nil, models.DeviceInfo{
		MacAddress: models.Unknown, IPAddress: models.Unknown, DeviceFingerprint: models.Unknown,
	}, requestedAt)
	s.Require().NoError(err)
	return req
}

func (s *RequestStoreSuite) TestCreateAndFind() {
	s.Run("finds created request", func() {
		req := s.newRequest(id.SubjectID(uuid.New()), time.Now())
		s.Require().NoError(s.store.Create(s.ctx, req))

		found, err := s.store.FindByID(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(req.ID, found.ID)
		s.Equal(req.SuspiciousActivity.Reason, found.SuspiciousActivity.Reason)
	})

	s.Run("returns ErrNotFound for unknown ID", func() {
		_, err := s.store.FindByID(s.ctx, id.VerificationID(uuid.New()))
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("rejects duplicate ID", func() {
		req := s.newRequest(id.SubjectID(uuid.New()), time.Now())
		s.Require().NoError(s.store.Create(s.ctx, req))
		s.Require().ErrorIs(s.store.Create(s.ctx, req), sentinel.ErrConflict)
	})

	s.Run("returned copies do not alias stored state", func() {
		req := s.newRequest(id.SubjectID(uuid.New()), time.Now())
		s.Require().NoError(s.store.Create(s.ctx, req))

		found, err := s.store.FindByID(s.ctx, req.ID)
		s.Require().NoError(err)
		found.Attempts = 99
		found.SuspiciousActivity.Reason = "tampered"

		again, err := s.store.FindByID(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Zero(again.Attempts)
		s.Equal(models.DefaultSuspiciousReason, again.SuspiciousActivity.Reason)
	})
}

func (s *RequestStoreSuite) TestOrdering() {
	subjectID := id.SubjectID(uuid.New())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	oldest := s.newRequest(subjectID, base)
	middle := s.newRequest(subjectID, base.Add(time.Hour))
	newest := s.newRequest(subjectID, base.Add(2*time.Hour))
	other := s.newRequest(id.SubjectID(uuid.New()), base.Add(30*time.Minute))
	for _, r := range []*models.VerificationRequest{middle, newest, oldest, other} {
		s.Require().NoError(s.store.Create(s.ctx, r))
	}

	s.Run("history is newest first and scoped to the subject", func() {
		history, err := s.store.ListBySubject(s.ctx, subjectID)
		s.Require().NoError(err)
		s.Require().Len(history, 3)
		s.Equal(newest.ID, history[0].ID)
		s.Equal(middle.ID, history[1].ID)
		s.Equal(oldest.ID, history[2].ID)
	})

	s.Run("pending list is oldest first and skips decided requests", func() {
		_, err := s.store.Execute(s.ctx, middle.ID,
			func(*models.VerificationRequest) error { return nil },
			func(r *models.VerificationRequest) { r.ApplyDecision(models.DecisionRejected, base) },
		)
		s.Require().NoError(err)

		pending, err := s.store.ListPending(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(pending, 3)
		s.Equal(oldest.ID, pending[0].ID)
		s.Equal(other.ID, pending[1].ID)
		s.Equal(newest.ID, pending[2].ID)
	})

	s.Run("empty history is an empty slice", func() {
		history, err := s.store.ListBySubject(s.ctx, id.SubjectID(uuid.New()))
		s.Require().NoError(err)
		s.NotNil(history)
		s.Empty(history)
	})
}

func (s *RequestStoreSuite) TestExecute() {
	s.Run("validation failure leaves the request untouched", func() {
		req := s.newRequest(id.SubjectID(uuid.New()), time.Now())
		s.Require().NoError(s.store.Create(s.ctx, req))

		mutated := false
		_, err := s.store.Execute(s.ctx, req.ID,
			func(*models.VerificationRequest) error {
				return dErrors.New(dErrors.CodeForbidden, "not yours")
			},
			func(*models.VerificationRequest) { mutated = true },
		)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.False(mutated)
	})

	s.Run("unknown ID returns ErrNotFound", func() {
		_, err := s.store.Execute(s.ctx, id.VerificationID(uuid.New()),
			func(*models.VerificationRequest) error { return nil },
			func(*models.VerificationRequest) {},
		)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("concurrent resubmissions each add exactly one attempt", func() {
		req := s.newRequest(id.SubjectID(uuid.New()), time.Now())
		s.Require().NoError(s.store.Create(s.ctx, req))

		const goroutines = 50
		var wg sync.WaitGroup
		for range goroutines {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.store.Execute(s.ctx, req.ID,
					func(*models.VerificationRequest) error { return nil },
					func(r *models.VerificationRequest) { r.Resubmit("photo", time.Now()) },
				)
				s.NoError(err)
			}()
		}
		wg.Wait()

		found, err := s.store.FindByID(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(goroutines, found.Attempts)
	})
}
