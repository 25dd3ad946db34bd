package subject

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
)

// Saver is the write side shared by both subject stores.
type Saver interface {
	Save(ctx context.Context, subject *models.Subject) error
}

// SeedRecord is one subject mirrored in from the KYC records system.
type SeedRecord struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

// LoadSeed reads a JSON array of SeedRecord and saves each subject. Status
// defaults to unverified. Existing subjects are overwritten.
func LoadSeed(ctx context.Context, r io.Reader, store Saver, now time.Time) (int, error) {
	var records []SeedRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return 0, fmt.Errorf("decode subject seed: %w", err)
	}

	subjects := make([]*models.Subject, 0, len(records))
	for i, rec := range records {
		subjectID, err := id.ParseSubjectID(strings.TrimSpace(rec.ID))
		if err != nil {
			return 0, fmt.Errorf("subject seed entry %d: %w", i, err)
		}
		status := models.SubjectUnverified
		if rec.Status != "" {
			if status, err = models.ParseSubjectStatus(rec.Status); err != nil {
				return 0, fmt.Errorf("subject seed entry %d: %w", i, err)
			}
		}
		subjects = append(subjects, &models.Subject{
			ID:        subjectID,
			Name:      rec.Name,
			Email:     rec.Email,
			Status:    status,
			UpdatedAt: now,
		})
	}

	for _, s := range subjects {
		if err := store.Save(ctx, s); err != nil {
			return 0, err
		}
	}
	return len(subjects), nil
}
