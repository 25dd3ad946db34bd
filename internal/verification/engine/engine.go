// Package engine is the client side of the automated verification engine.
// The engine's decision logic lives elsewhere; this package only knows its
// request/response contract.
package engine

import (
	"context"
	"encoding/json"

	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
)

// Client evaluates a submitted verification request.
type Client interface {
	Evaluate(ctx context.Context, verificationID id.VerificationID) (*Result, error)
}

// Result is the engine's answer. A pending status means the engine could not
// decide and the request waits for an adjudicator.
type Result struct {
	Status  models.RequestStatus `json:"status"`
	Details json.RawMessage      `json:"details,omitempty"`
}

// Decision returns the decision to apply, or false when inconclusive.
func (r *Result) Decision() (models.Decision, bool) {
	if r == nil || r.Status == models.StatusPending {
		return "", false
	}
	d := models.Decision(r.Status)
	return d, d.IsValid()
}
