package handler

import (
	"encoding/json"
	"errors"
	"time"

	"kycgate/internal/verification/engine"
	"kycgate/internal/verification/models"
	dErrors "kycgate/pkg/domain-errors"
	"kycgate/pkg/platform/httputil"
)

// DeviceResponse mirrors models.DeviceInfo. userAgent is omitted when the
// client sent none.
type DeviceResponse struct {
	MacAddress        string `json:"macAddress"`
	IPAddress         string `json:"ipAddress"`
	DeviceFingerprint string `json:"deviceFingerprint"`
	UserAgent         string `json:"userAgent,omitempty"`
	DeviceLabel       string `json:"deviceLabel"`
}

type SuspiciousActivityResponse struct {
	Reason            string          `json:"reason"`
	DetectedAt        time.Time       `json:"detectedAt"`
	AdditionalDetails json.RawMessage `json:"additionalDetails"`
}

// VerificationResponse is the full view of a request.
type VerificationResponse struct {
	VerificationID     string                      `json:"verificationId"`
	SubjectID          string                      `json:"subjectId"`
	VerificationType   string                      `json:"verificationType"`
	VerificationStatus string                      `json:"verificationStatus"`
	Attempts           int                         `json:"verificationAttempts"`
	Photo              *string                     `json:"verificationPhoto"`
	DeviceInfo         DeviceResponse              `json:"deviceInfo"`
	SuspiciousActivity *SuspiciousActivityResponse `json:"suspiciousActivity,omitempty"`
	AutomatedDetails   json.RawMessage             `json:"automatedDetails,omitempty"`
	ReviewFeedback     *string                     `json:"reviewFeedback,omitempty"`
	ReviewedAt         *time.Time                  `json:"reviewedAt,omitempty"`
	RequestedAt        time.Time                   `json:"requestedAt"`
	VerifiedAt         *time.Time                  `json:"verifiedAt"`
}

func toVerificationResponse(r *models.VerificationRequest) VerificationResponse {
	resp := VerificationResponse{
		VerificationID:     r.ID.String(),
		SubjectID:          r.SubjectID.String(),
		VerificationType:   string(r.Type),
		VerificationStatus: string(r.Status),
		Attempts:           r.Attempts,
		Photo:              r.Photo,
		DeviceInfo: DeviceResponse{
			MacAddress:        r.Device.MacAddress,
			IPAddress:         r.Device.IPAddress,
			DeviceFingerprint: r.Device.DeviceFingerprint,
			UserAgent:         r.Device.UserAgent,
			DeviceLabel:       r.Device.DeviceLabel,
		},
		AutomatedDetails: r.AutomatedDetails,
		ReviewFeedback:   r.ReviewFeedback,
		ReviewedAt:       r.ReviewedAt,
		RequestedAt:      r.RequestedAt,
		VerifiedAt:       r.VerifiedAt,
	}
	if sa := r.SuspiciousActivity; sa != nil {
		resp.SuspiciousActivity = &SuspiciousActivityResponse{
			Reason:            sa.Reason,
			DetectedAt:        sa.DetectedAt,
			AdditionalDetails: sa.AdditionalDetails,
		}
	}
	return resp
}

// EngineResultResponse is the automated engine's answer as returned to clients.
type EngineResultResponse struct {
	Status  string          `json:"status"`
	Details json.RawMessage `json:"details,omitempty"`
}

func toEngineResult(r *engine.Result) *EngineResultResponse {
	if r == nil {
		return nil
	}
	return &EngineResultResponse{Status: string(r.Status), Details: r.Details}
}

// toUpstreamError reports an engine failure next to a persisted request.
func toUpstreamError(err error) *httputil.ErrorResponse {
	if err == nil {
		return nil
	}
	resp := &httputil.ErrorResponse{Error: string(dErrors.CodeUpstream)}
	var de *dErrors.Error
	if errors.As(err, &de) {
		resp.ErrorDescription = de.Message
	}
	return resp
}

// InitialVerificationResponse carries one authoritative status: the one the
// request holds after the engine was consulted.
type InitialVerificationResponse struct {
	Message        string                  `json:"message"`
	VerificationID string                  `json:"verificationId"`
	Status         string                  `json:"status"`
	Result         *EngineResultResponse   `json:"result"`
	UpstreamError  *httputil.ErrorResponse `json:"upstreamError,omitempty"`
}

type ReverificationResponse struct {
	Message        string `json:"message"`
	VerificationID string `json:"verificationId"`
	Status         string `json:"status"`
}

type PhotoResponse struct {
	Message       string                  `json:"message"`
	Status        string                  `json:"status"`
	Attempts      int                     `json:"verificationAttempts"`
	Result        *EngineResultResponse   `json:"result"`
	UpstreamError *httputil.ErrorResponse `json:"upstreamError,omitempty"`
}

type StatusResponse struct {
	Status      string     `json:"status"`
	RequestedAt time.Time  `json:"requestedAt"`
	VerifiedAt  *time.Time `json:"verifiedAt"`
	Attempts    int        `json:"attempts"`
}

type AdjudicationResponse struct {
	Message        string `json:"message"`
	VerificationID string `json:"verificationId"`
	Status         string `json:"status"`
}

type CurrentStatusResponse struct {
	VerificationStatus string     `json:"verificationStatus"`
	LastVerifiedAt     *time.Time `json:"lastVerifiedAt"`
}

// SubjectSummary is the minimal subject view shown to adjudicators.
type SubjectSummary struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type PendingVerificationResponse struct {
	VerificationResponse
	Subject SubjectSummary `json:"subject"`
}

func toPendingResponses(items []models.PendingVerification) []PendingVerificationResponse {
	out := make([]PendingVerificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, PendingVerificationResponse{
			VerificationResponse: toVerificationResponse(item.Request),
			Subject:              SubjectSummary{Name: item.SubjectName, Email: item.SubjectEmail},
		})
	}
	return out
}

func toHistoryResponse(reqs []*models.VerificationRequest) []VerificationResponse {
	out := make([]VerificationResponse, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, toVerificationResponse(r))
	}
	return out
}
