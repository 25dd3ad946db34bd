package request

import (
	"encoding/json"
	"time"

	"kycgate/internal/verification/models"
)

// clone returns a deep copy so callers never alias stored state.
func clone(r *models.VerificationRequest) *models.VerificationRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.Photo = cloneString(r.Photo)
	c.ReviewFeedback = cloneString(r.ReviewFeedback)
	c.ReviewedAt = cloneTime(r.ReviewedAt)
	c.VerifiedAt = cloneTime(r.VerifiedAt)
	c.AutomatedDetails = cloneRaw(r.AutomatedDetails)
	if r.SuspiciousActivity != nil {
		sa := *r.SuspiciousActivity
		sa.AdditionalDetails = cloneRaw(r.SuspiciousActivity.AdditionalDetails)
		c.SuspiciousActivity = &sa
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneRaw(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	return append(json.RawMessage(nil), b...)
}
