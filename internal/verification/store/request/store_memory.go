package request

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
	"kycgate/pkg/platform/sentinel"
)

// Error Contract:
// - Return ErrNotFound when the requested request does not exist
// - Return ErrConflict when creating a request whose ID is taken
// - Return validate's error unchanged from Execute

// InMemoryStore keeps verification requests in memory for tests/dev.
// The mutex is held across validate and mutate in Execute, so attempt
// increments never interleave.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[id.VerificationID]*models.VerificationRequest
}

// NewInMemory constructs an empty in-memory request store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		requests: make(map[id.VerificationID]*models.VerificationRequest),
	}
}

func (s *InMemoryStore) Create(_ context.Context, req *models.VerificationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; exists {
		return fmt.Errorf("verification request %s: %w", req.ID, sentinel.ErrConflict)
	}
	s.requests[req.ID] = clone(req)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, verificationID id.VerificationID) (*models.VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[verificationID]
	if !ok {
		return nil, fmt.Errorf("verification request not found: %w", sentinel.ErrNotFound)
	}
	return clone(req), nil
}

// ListBySubject returns the subject's requests, newest first.
func (s *InMemoryStore) ListBySubject(_ context.Context, subjectID id.SubjectID) ([]*models.VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.VerificationRequest, 0)
	for _, req := range s.requests {
		if req.SubjectID == subjectID {
			out = append(out, clone(req))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RequestedAt.After(out[j].RequestedAt)
	})
	return out, nil
}

// ListPending returns every pending request, oldest first.
func (s *InMemoryStore) ListPending(_ context.Context) ([]*models.VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.VerificationRequest, 0)
	for _, req := range s.requests {
		if req.Status == models.StatusPending {
			out = append(out, clone(req))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out, nil
}

// Execute runs validate then mutate on the stored request under the write lock.
// Nothing is changed when validate fails.
func (s *InMemoryStore) Execute(_ context.Context, verificationID id.VerificationID, validate func(*models.VerificationRequest) error, mutate func(*models.VerificationRequest)) (*models.VerificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.requests[verificationID]
	if !ok {
		return nil, fmt.Errorf("verification request not found: %w", sentinel.ErrNotFound)
	}
	working := clone(stored)
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.requests[verificationID] = working
	return clone(working), nil
}
