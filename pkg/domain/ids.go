// Package domain holds typed identifiers shared across modules. IDs are
// parsed at trust boundaries; direct conversion from uuid.UUID is reserved
// for code that generates fresh identifiers.
package domain

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "kycgate/pkg/domain-errors"
)

// SubjectID identifies the KYC-checked party.
type SubjectID uuid.UUID

// VerificationID identifies a single verification request.
type VerificationID uuid.UUID

// maxIDLength is well above the 45-char urn form uuid.Parse accepts.
const maxIDLength = 64

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" || strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxIDLength || !utf8.ValidString(s) {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	return u, nil
}

// ParseSubjectID validates external input as a SubjectID.
func ParseSubjectID(s string) (SubjectID, error) {
	u, err := parseUUID("subject_id", s)
	return SubjectID(u), err
}

// ParseVerificationID validates external input as a VerificationID.
func ParseVerificationID(s string) (VerificationID, error) {
	u, err := parseUUID("verification_id", s)
	return VerificationID(u), err
}

// NewVerificationID returns a fresh random ID.
func NewVerificationID() VerificationID {
	return VerificationID(uuid.New())
}

func (id SubjectID) String() string { return uuid.UUID(id).String() }
func (id SubjectID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id SubjectID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *SubjectID) UnmarshalText(b []byte) error {
	parsed, err := ParseSubjectID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id VerificationID) String() string { return uuid.UUID(id).String() }
func (id VerificationID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id VerificationID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *VerificationID) UnmarshalText(b []byte) error {
	parsed, err := ParseVerificationID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
