package engine

import (
	"context"
	"encoding/json"

	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
)

// Stub answers every request with a fixed status. It is used when no engine
// URL is configured and in tests.
type Stub struct {
	Status models.RequestStatus
	Err    error
}

// NewStub returns a stub that decides status for every request.
func NewStub(status models.RequestStatus) *Stub {
	return &Stub{Status: status}
}

func (s *Stub) Evaluate(ctx context.Context, verificationID id.VerificationID) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewError(ErrorTimeout, "context done before evaluation", err)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	details, _ := json.Marshal(map[string]string{
		"engine":          "stub",
		"verification_id": verificationID.String(),
	})
	return &Result{Status: s.Status, Details: details}, nil
}
