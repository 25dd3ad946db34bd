package models

import (
	dErrors "kycgate/pkg/domain-errors"
)

// SubjectStatus is the verification standing of a subject.
type SubjectStatus string

const (
	SubjectUnverified SubjectStatus = "unverified"
	SubjectPending    SubjectStatus = "pending"
	SubjectVerified   SubjectStatus = "verified"
	SubjectRejected   SubjectStatus = "rejected"
	SubjectSuspended  SubjectStatus = "suspended"
)

func (s SubjectStatus) IsValid() bool {
	switch s {
	case SubjectUnverified, SubjectPending, SubjectVerified, SubjectRejected, SubjectSuspended:
		return true
	}
	return false
}

func (s SubjectStatus) String() string { return string(s) }

// ParseSubjectStatus reads a persisted value. Unknown values are errors.
func ParseSubjectStatus(s string) (SubjectStatus, error) {
	status := SubjectStatus(s)
	if !status.IsValid() {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "unknown subject status: "+s)
	}
	return status, nil
}

// RequestStatus is the lifecycle position of a verification request.
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusVerified   RequestStatus = "verified"
	StatusRejected   RequestStatus = "rejected"
	StatusSuspicious RequestStatus = "suspicious"
)

func (s RequestStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusRejected, StatusSuspicious:
		return true
	}
	return false
}

// IsTerminal reports whether a decision has been applied.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusVerified || s == StatusRejected || s == StatusSuspicious
}

func (s RequestStatus) String() string { return string(s) }

// ParseRequestStatus reads a persisted value. Unknown values are errors.
func ParseRequestStatus(s string) (RequestStatus, error) {
	status := RequestStatus(s)
	if !status.IsValid() {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "unknown request status: "+s)
	}
	return status, nil
}

// VerificationType records why a request was opened.
type VerificationType string

const (
	TypeInitial        VerificationType = "initial"
	TypeReverification VerificationType = "re-verification"
)

func (t VerificationType) IsValid() bool {
	return t == TypeInitial || t == TypeReverification
}

func (t VerificationType) String() string { return string(t) }

// ParseVerificationType reads a persisted value. Unknown values are errors.
func ParseVerificationType(s string) (VerificationType, error) {
	t := VerificationType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "unknown verification type: "+s)
	}
	return t, nil
}

// Decision is an outcome that moves a pending request to a terminal status.
// Adjudicators and the automated engine produce the same set.
type Decision string

const (
	DecisionVerified   Decision = "verified"
	DecisionRejected   Decision = "rejected"
	DecisionSuspicious Decision = "suspicious"
)

func (d Decision) IsValid() bool {
	switch d {
	case DecisionVerified, DecisionRejected, DecisionSuspicious:
		return true
	}
	return false
}

func (d Decision) String() string { return string(d) }

// ParseDecision validates caller input. The match is exact.
func ParseDecision(s string) (Decision, error) {
	d := Decision(s)
	if !d.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "status must be one of verified, rejected, suspicious")
	}
	return d, nil
}

// RequestStatus is the request status a decision produces.
func (d Decision) RequestStatus() RequestStatus {
	switch d {
	case DecisionVerified:
		return StatusVerified
	case DecisionRejected:
		return StatusRejected
	default:
		return StatusSuspicious
	}
}

// SubjectStatus is the subject status a decision produces.
func (d Decision) SubjectStatus() SubjectStatus {
	switch d {
	case DecisionVerified:
		return SubjectVerified
	case DecisionRejected:
		return SubjectRejected
	default:
		return SubjectSuspended
	}
}
