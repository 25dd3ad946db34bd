package models

import (
	"encoding/json"
	"time"

	id "kycgate/pkg/domain"
	dErrors "kycgate/pkg/domain-errors"
)

// Unknown fills device fields no source supplied.
const Unknown = "unknown"

// DefaultSuspiciousReason is used when re-verification is opened without one.
const DefaultSuspiciousReason = "Suspicious transaction pattern detected"

// Subject is the KYC-checked party. Only its verification standing and the
// display fields shown to adjudicators are tracked here.
type Subject struct {
	ID             id.SubjectID
	Name           string
	Email          string
	Status         SubjectStatus
	LastVerifiedAt *time.Time
	UpdatedAt      time.Time
}

// ApplyDecision moves the subject to the status a decision on req produces.
// lastVerifiedAt follows the request's verifiedAt so re-running the same
// decision leaves it unchanged; other decisions leave it as history.
func (s *Subject) ApplyDecision(d Decision, req *VerificationRequest, now time.Time) {
	s.Status = d.SubjectStatus()
	if d == DecisionVerified && req.VerifiedAt != nil {
		t := *req.VerifiedAt
		s.LastVerifiedAt = &t
	}
	s.UpdatedAt = now
}

// DeviceInfo is telemetry captured when a request is opened.
type DeviceInfo struct {
	MacAddress        string
	IPAddress         string
	DeviceFingerprint string
	// UserAgent is empty when the client sent none.
	UserAgent   string
	DeviceLabel string
}

// SuspiciousActivity explains why re-verification was requested.
type SuspiciousActivity struct {
	Reason            string
	DetectedAt        time.Time
	AdditionalDetails json.RawMessage
}

// VerificationRequest is one attempt to verify a subject.
type VerificationRequest struct {
	ID                 id.VerificationID
	SubjectID          id.SubjectID
	Device             DeviceInfo
	Type               VerificationType
	Photo              *string
	Status             RequestStatus
	Attempts           int
	SuspiciousActivity *SuspiciousActivity
	AutomatedDetails   json.RawMessage
	ReviewFeedback     *string
	ReviewedAt         *time.Time
	RequestedAt        time.Time
	VerifiedAt         *time.Time
	UpdatedAt          time.Time
}

// NewInitialRequest opens an initial verification carrying the KYC selfie.
func NewInitialRequest(subjectID id.SubjectID, photo string, device DeviceInfo, now time.Time) (*VerificationRequest, error) {
	if subjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "subject ID required")
	}
	req := newRequest(subjectID, TypeInitial, device, now)
	if photo != "" {
		req.Photo = &photo
	}
	return req, nil
}

// NewReverificationRequest opens a re-verification for suspicious activity.
// No photo exists yet, so the request waits in pending.
func NewReverificationRequest(subjectID id.SubjectID, reason string, details json.RawMessage, device DeviceInfo, now time.Time) (*VerificationRequest, error) {
	if subjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "subject ID required")
	}
	if reason == "" {
		reason = DefaultSuspiciousReason
	}
	if len(details) == 0 || string(details) == "null" {
		details = json.RawMessage(`{}`)
	}
	req := newRequest(subjectID, TypeReverification, device, now)
	req.SuspiciousActivity = &SuspiciousActivity{
		Reason:            reason,
		DetectedAt:        now,
		AdditionalDetails: details,
	}
	return req, nil
}

func newRequest(subjectID id.SubjectID, t VerificationType, device DeviceInfo, now time.Time) *VerificationRequest {
	return &VerificationRequest{
		ID:          id.NewVerificationID(),
		SubjectID:   subjectID,
		Device:      device,
		Type:        t,
		Status:      StatusPending,
		RequestedAt: now,
		UpdatedAt:   now,
	}
}

// IsOwnedBy reports whether subjectID opened the request.
func (r *VerificationRequest) IsOwnedBy(subjectID id.SubjectID) bool {
	return r.SubjectID == subjectID
}

// Resubmit attaches a new photo and sends the request back to pending.
// Attempts grow by exactly one whatever the prior status was. photo must
// already be validated as non-empty.
func (r *VerificationRequest) Resubmit(photo string, now time.Time) {
	r.Photo = &photo
	r.Status = StatusPending
	r.VerifiedAt = nil
	r.Attempts++
	r.UpdatedAt = now
}

// ApplyDecision moves the request to the decision's status. verifiedAt is set
// iff the result is verified; an already-verified request keeps its timestamp.
func (r *VerificationRequest) ApplyDecision(d Decision, now time.Time) {
	wasVerified := r.Status == StatusVerified && r.VerifiedAt != nil
	r.Status = d.RequestStatus()
	switch {
	case d == DecisionVerified && !wasVerified:
		t := now
		r.VerifiedAt = &t
	case d != DecisionVerified:
		r.VerifiedAt = nil
	}
	r.UpdatedAt = now
}

// RecordReview stores adjudicator feedback alongside the decision.
func (r *VerificationRequest) RecordReview(feedback string, now time.Time) {
	if feedback != "" {
		r.ReviewFeedback = &feedback
	} else {
		r.ReviewFeedback = nil
	}
	t := now
	r.ReviewedAt = &t
}

// PendingVerification is a request awaiting review with the owner's display fields.
type PendingVerification struct {
	Request      *VerificationRequest
	SubjectName  string
	SubjectEmail string
}
