package audit

import (
	"context"
	"time"

	id "kycgate/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// Verification decisions must be reconstructable for KYC audits.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for operational visibility.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category       EventCategory
	Timestamp      time.Time
	SubjectID      id.SubjectID
	VerificationID string
	Action         string
	// Decision is the resulting request status, when the action decided one.
	Decision string
	Reason   string
	// Source is "automated" or "adjudicator" for decision events.
	Source    string
	IP        string
	RequestID string
	// ActorID is set when someone other than the subject acted.
	ActorID string
}

type AuditEvent string

const (
	EventVerificationInitiated   AuditEvent = "verification_initiated"
	EventReverificationInitiated AuditEvent = "reverification_initiated"
	EventPhotoSubmitted          AuditEvent = "verification_photo_submitted"
	EventVerificationDecided     AuditEvent = "verification_decided"
	EventVerificationAdjudicated AuditEvent = "verification_adjudicated"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventVerificationInitiated:   CategoryOperations,
	EventReverificationInitiated: CategoryCompliance,
	EventPhotoSubmitted:          CategoryOperations,
	EventVerificationDecided:     CategoryCompliance,
	EventVerificationAdjudicated: CategoryCompliance,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events. Outbox-backed stores join the transaction in ctx.
type Store interface {
	Append(ctx context.Context, event Event) error
}
