package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	audit "kycgate/pkg/platform/audit"
	txcontext "kycgate/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table and published to Kafka by the outbox relay.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Payload is the JSON structure published to Kafka.
type Payload struct {
	ID             string `json:"id"`
	Category       string `json:"category"`
	Timestamp      string `json:"timestamp"`
	SubjectID      string `json:"subject_id,omitempty"`
	VerificationID string `json:"verification_id,omitempty"`
	Action         string `json:"action"`
	Decision       string `json:"decision,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Source         string `json:"source,omitempty"`
	IP             string `json:"ip,omitempty"`
	RequestID      string `json:"request_id,omitempty"`
	ActorID        string `json:"actor_id,omitempty"`
}

// Append writes an audit event to the outbox table for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	// Always derive category from action - eventCategories map is the source of truth
	category := audit.AuditEvent(event.Action).Category()

	payload := Payload{
		ID:             eventID.String(),
		Category:       string(category),
		Timestamp:      event.Timestamp.UTC().Format(time.RFC3339Nano),
		VerificationID: event.VerificationID,
		Action:         event.Action,
		Decision:       event.Decision,
		Reason:         event.Reason,
		Source:         event.Source,
		IP:             event.IP,
		RequestID:      event.RequestID,
		ActorID:        event.ActorID,
	}
	if !event.SubjectID.IsNil() {
		payload.SubjectID = event.SubjectID.String()
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	// Events for one verification share a partition key so consumers see them in order.
	aggregateType := "audit"
	aggregateID := eventID.String()
	if event.VerificationID != "" {
		aggregateType = "verification"
		aggregateID = event.VerificationID
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		eventID,
		aggregateType,
		aggregateID,
		event.Action,
		string(payloadBytes),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}
