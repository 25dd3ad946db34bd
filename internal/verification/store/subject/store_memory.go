package subject

import (
	"context"
	"fmt"
	"sync"

	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
	"kycgate/pkg/platform/sentinel"
)

// InMemoryStore keeps subjects in memory for tests/dev.
type InMemoryStore struct {
	mu       sync.RWMutex
	subjects map[id.SubjectID]*models.Subject
}

// NewInMemory constructs an empty in-memory subject store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{subjects: make(map[id.SubjectID]*models.Subject)}
}

// Save inserts or replaces a subject. Subject profiles are owned by the KYC
// records system; this is how they are mirrored in.
func (s *InMemoryStore) Save(_ context.Context, subject *models.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects[subject.ID] = clone(subject)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, subjectID id.SubjectID) (*models.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subject, ok := s.subjects[subjectID]
	if !ok {
		return nil, fmt.Errorf("subject not found: %w", sentinel.ErrNotFound)
	}
	return clone(subject), nil
}

// FindByIDs returns the subjects that exist among ids. Missing IDs are skipped.
func (s *InMemoryStore) FindByIDs(_ context.Context, ids []id.SubjectID) (map[id.SubjectID]*models.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.SubjectID]*models.Subject, len(ids))
	for _, subjectID := range ids {
		if subject, ok := s.subjects[subjectID]; ok {
			out[subjectID] = clone(subject)
		}
	}
	return out, nil
}

// Execute runs validate then mutate on the stored subject under the write lock.
func (s *InMemoryStore) Execute(_ context.Context, subjectID id.SubjectID, validate func(*models.Subject) error, mutate func(*models.Subject)) (*models.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.subjects[subjectID]
	if !ok {
		return nil, fmt.Errorf("subject not found: %w", sentinel.ErrNotFound)
	}
	working := clone(stored)
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.subjects[subjectID] = working
	return clone(working), nil
}

func clone(subject *models.Subject) *models.Subject {
	c := *subject
	if subject.LastVerifiedAt != nil {
		t := *subject.LastVerifiedAt
		c.LastVerifiedAt = &t
	}
	return &c
}
