package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
	dErrors "kycgate/pkg/domain-errors"
	audit "kycgate/pkg/platform/audit"
	"kycgate/pkg/requestcontext"
)

func (s *ServiceSuite) TestProcessVerificationTransitionTable() {
	tests := []struct {
		decision       string
		requestStatus  models.RequestStatus
		subjectStatus  models.SubjectStatus
		wantVerifiedAt bool
	}{
		{"verified", models.StatusVerified, models.SubjectVerified, true},
		{"rejected", models.StatusRejected, models.SubjectRejected, false},
		{"suspicious", models.StatusSuspicious, models.SubjectSuspended, false},
	}
	for _, tt := range tests {
		s.Run(tt.decision, func() {
			subjectID := s.seedSubject("t-" + tt.decision)
			req := s.seedReverification(subjectID)

			updated, err := s.service.ProcessVerification(s.ctx, req.ID, tt.decision, "looks fine")
			s.Require().NoError(err)

			s.Equal(tt.requestStatus, updated.Status)
			s.Equal(tt.wantVerifiedAt, updated.VerifiedAt != nil)
			s.Require().NotNil(updated.ReviewFeedback)
			s.Equal("looks fine", *updated.ReviewFeedback)

			sub := s.mustSubject(subjectID)
			s.Equal(tt.subjectStatus, sub.Status)
			s.Equal(tt.wantVerifiedAt, sub.LastVerifiedAt != nil)
			s.Contains(s.actions(subjectID), string(audit.EventVerificationAdjudicated))
		})
	}
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Decisions.WithLabelValues(SourceAdjudicator, "suspicious")))
}

func (s *ServiceSuite) TestProcessVerificationInvalidDecision() {
	subjectID := s.seedSubject("uma")
	req := s.seedReverification(subjectID)

	for _, status := range []string{"", "approved", "pending", "VERIFIED"} {
		s.Run(status, func() {
			_, err := s.service.ProcessVerification(s.ctx, req.ID, status, "")
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}

	stored := s.mustRequest(req.ID)
	s.Equal(models.StatusPending, stored.Status)
	s.Nil(stored.ReviewedAt)
	s.Equal(models.SubjectUnverified, s.mustSubject(subjectID).Status)

	s.Run("decision is checked before the request is looked up", func() {
		_, err := s.service.ProcessVerification(s.ctx, id.NewVerificationID(), "approved", "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestProcessVerificationNotFound() {
	_, err := s.service.ProcessVerification(s.ctx, id.NewVerificationID(), "verified", "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestProcessVerificationIsIdempotent() {
	subjectID := s.seedSubject("victor")
	req := s.seedReverification(subjectID)

	first, err := s.service.ProcessVerification(s.ctx, req.ID, "verified", "")
	s.Require().NoError(err)
	firstSubject := s.mustSubject(subjectID)

	later := requestcontext.WithTime(context.Background(), s.now.Add(2*time.Hour))
	second, err := s.service.ProcessVerification(later, req.ID, "verified", "")
	s.Require().NoError(err)
	secondSubject := s.mustSubject(subjectID)

	s.Equal(first.Status, second.Status)
	s.Equal(*first.VerifiedAt, *second.VerifiedAt)
	s.Equal(firstSubject.Status, secondSubject.Status)
	s.Equal(*firstSubject.LastVerifiedAt, *secondSubject.LastVerifiedAt)
}

func (s *ServiceSuite) TestReadjudicationRederivesSubjectStatus() {
	subjectID := s.seedSubject("wendy")
	req := s.seedReverification(subjectID)

	verified, err := s.service.ProcessVerification(s.ctx, req.ID, "verified", "")
	s.Require().NoError(err)

	updated, err := s.service.ProcessVerification(s.ctx, req.ID, "suspicious", "chargeback")
	s.Require().NoError(err)
	s.Equal(models.StatusSuspicious, updated.Status)
	s.Nil(updated.VerifiedAt)

	sub := s.mustSubject(subjectID)
	s.Equal(models.SubjectSuspended, sub.Status)
	s.Require().NotNil(sub.LastVerifiedAt, "last verification stays as history")
	s.Equal(*verified.VerifiedAt, *sub.LastVerifiedAt)
}

func (s *ServiceSuite) TestListPending() {
	s.stub.Status = models.StatusPending
	alice := s.seedSubject("alice")
	bob := s.seedSubject("bob")

	first, err := s.service.InitiateReverification(s.ctx, alice, "", nil, unknownDevice())
	s.Require().NoError(err)
	laterCtx := requestcontext.WithTime(context.Background(), s.now.Add(time.Minute))
	second, err := s.service.InitiateReverification(laterCtx, bob, "", nil, unknownDevice())
	s.Require().NoError(err)
	decided := s.seedReverification(alice)
	_, err = s.service.ProcessVerification(s.ctx, decided.ID, "rejected", "")
	s.Require().NoError(err)

	orphan, err := models.NewReverificationRequest(id.SubjectID(uuid.New()), "", nil, unknownDevice(), s.now.Add(time.Hour))
	s.Require().NoError(err)
	s.Require().NoError(s.requests.Create(context.Background(), orphan))

	pending, err := s.service.ListPending(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(pending, 3)

	s.Equal(first.ID, pending[0].Request.ID)
	s.Equal("alice", pending[0].SubjectName)
	s.Equal("alice@example.com", pending[0].SubjectEmail)
	s.Equal(second.ID, pending[1].Request.ID)
	s.Equal("bob", pending[1].SubjectName)
	s.Equal(orphan.ID, pending[2].Request.ID)
	s.Empty(pending[2].SubjectName)
}
