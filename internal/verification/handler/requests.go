package handler

import (
	"bytes"
	"encoding/json"
	"strings"

	"kycgate/internal/verification/device"
	"kycgate/internal/verification/models"
	dErrors "kycgate/pkg/domain-errors"
)

const (
	maxPhotoRefLength    = 2048
	maxDeviceFieldLength = 256
	maxReasonLength      = 500
	maxFeedbackLength    = 1000
)

// deviceFields are the optional telemetry hints accepted on creation.
type deviceFields struct {
	DeviceFingerprint string `json:"deviceFingerprint"`
	MacAddress        string `json:"macAddress"`
}

func (d *deviceFields) validate() error {
	d.DeviceFingerprint = strings.TrimSpace(d.DeviceFingerprint)
	d.MacAddress = strings.TrimSpace(d.MacAddress)
	if len(d.DeviceFingerprint) > maxDeviceFieldLength || len(d.MacAddress) > maxDeviceFieldLength {
		return dErrors.New(dErrors.CodeValidation, "device fields must be at most 256 characters")
	}
	return nil
}

func (d deviceFields) hints() device.Hints {
	return device.Hints{MacAddress: d.MacAddress, DeviceFingerprint: d.DeviceFingerprint}
}

// InitialVerificationRequest is the body of POST /verification/initial/{subjectId}.
type InitialVerificationRequest struct {
	SelfiePhoto string `json:"selfiePhoto"`
	deviceFields
}

// Validate implements httputil.Validatable.
func (r *InitialVerificationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.SelfiePhoto = strings.TrimSpace(r.SelfiePhoto)
	if r.SelfiePhoto == "" {
		return dErrors.New(dErrors.CodeValidation, "selfiePhoto is required")
	}
	if len(r.SelfiePhoto) > maxPhotoRefLength {
		return dErrors.New(dErrors.CodeValidation, "selfiePhoto must be at most 2048 characters")
	}
	return r.deviceFields.validate()
}

// ReverificationRequest is the body of POST /verification/reverify. Every
// field is optional.
type ReverificationRequest struct {
	Reason  string          `json:"reason"`
	Details json.RawMessage `json:"details"`
	deviceFields
}

func (r *ReverificationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if len(r.Reason) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 500 characters")
	}
	if d := bytes.TrimSpace(r.Details); len(d) > 0 && !bytes.Equal(d, []byte("null")) && d[0] != '{' {
		return dErrors.New(dErrors.CodeValidation, "details must be a JSON object")
	}
	return r.deviceFields.validate()
}

// PhotoRequest is the body of POST /verification/{verificationId}/photo.
type PhotoRequest struct {
	Photo string `json:"photo"`
}

func (r *PhotoRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Photo = strings.TrimSpace(r.Photo)
	if r.Photo == "" {
		return dErrors.New(dErrors.CodeValidation, "photo is required")
	}
	if len(r.Photo) > maxPhotoRefLength {
		return dErrors.New(dErrors.CodeValidation, "photo must be at most 2048 characters")
	}
	return nil
}

// AdjudicationRequest is the body of POST /verification/{verificationId}/adjudicate.
type AdjudicationRequest struct {
	Status   string `json:"status"`
	Feedback string `json:"feedback"`
}

func (r *AdjudicationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Feedback = strings.TrimSpace(r.Feedback)
	if len(r.Feedback) > maxFeedbackLength {
		return dErrors.New(dErrors.CodeValidation, "feedback must be at most 1000 characters")
	}
	r.Status = strings.TrimSpace(r.Status)
	if _, err := models.ParseDecision(r.Status); err != nil {
		return err
	}
	return nil
}
