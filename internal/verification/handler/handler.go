package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"kycgate/internal/verification/device"
	"kycgate/internal/verification/models"
	"kycgate/internal/verification/service"
	id "kycgate/pkg/domain"
	dErrors "kycgate/pkg/domain-errors"
	"kycgate/pkg/platform/httputil"
	"kycgate/pkg/requestcontext"
)

// Service defines the verification operations the HTTP surface drives.
type Service interface {
	InitiateInitial(ctx context.Context, subjectID id.SubjectID, photo string, device models.DeviceInfo) (*service.Outcome, error)
	InitiateReverification(ctx context.Context, subjectID id.SubjectID, reason string, details json.RawMessage, device models.DeviceInfo) (*models.VerificationRequest, error)
	SubmitPhoto(ctx context.Context, subjectID id.SubjectID, verificationID id.VerificationID, photo string) (*service.Outcome, error)
	CheckStatus(ctx context.Context, subjectID id.SubjectID, verificationID id.VerificationID) (*models.VerificationRequest, error)
	GetHistory(ctx context.Context, subjectID id.SubjectID) ([]*models.VerificationRequest, error)
	GetCurrentStatus(ctx context.Context, subjectID id.SubjectID) (*models.Subject, error)
	ProcessVerification(ctx context.Context, verificationID id.VerificationID, status string, feedback string) (*models.VerificationRequest, error)
	ListPending(ctx context.Context) ([]models.PendingVerification, error)
}

// Handler wires verification endpoints to the verification service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a verification handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts the pre-authentication creation endpoint.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/verification/initial/{subjectId}", h.HandleInitiateInitial)
}

// RegisterSubject mounts endpoints that act for the authenticated subject.
// The router must already run the bearer auth middleware.
func (h *Handler) RegisterSubject(r chi.Router) {
	r.Post("/verification/reverify", h.HandleInitiateReverification)
	r.Post("/verification/{verificationId}/photo", h.HandleSubmitPhoto)
	r.Get("/verification/{verificationId}/status", h.HandleCheckStatus)
	r.Get("/verification/history", h.HandleHistory)
	r.Get("/verification/current-status", h.HandleCurrentStatus)
}

// RegisterAdjudicator mounts the review endpoints. The router must already
// run the admin token middleware.
func (h *Handler) RegisterAdjudicator(r chi.Router) {
	r.Get("/verification/pending", h.HandleListPending)
	r.Post("/verification/{verificationId}/adjudicate", h.HandleAdjudicate)
}

// HandleInitiateInitial handles POST /verification/initial/{subjectId}.
func (h *Handler) HandleInitiateInitial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	subjectID, err := id.ParseSubjectID(chi.URLParam(r, "subjectId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[InitialVerificationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	out, err := h.service.InitiateInitial(ctx, subjectID, req.SelfiePhoto, device.Extract(r, req.hints()))
	if err != nil {
		h.logFailure(ctx, "initial verification failed", err,
			"request_id", requestID,
			"subject_id", subjectID.String(),
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "initial verification handled",
		"request_id", requestID,
		"subject_id", subjectID.String(),
		"verification_id", out.Request.ID.String(),
		"status", string(out.Request.Status),
		"upstream_failed", out.UpstreamErr != nil,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, InitialVerificationResponse{
		Message:        "Verification request created",
		VerificationID: out.Request.ID.String(),
		Status:         string(out.Request.Status),
		Result:         toEngineResult(out.EngineResult),
		UpstreamError:  toUpstreamError(out.UpstreamErr),
	})
}

// HandleInitiateReverification handles POST /verification/reverify.
func (h *Handler) HandleInitiateReverification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	subjectID, ok := h.requireSubject(ctx, w)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[ReverificationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	created, err := h.service.InitiateReverification(ctx, subjectID, req.Reason, req.Details, device.Extract(r, req.hints()))
	if err != nil {
		h.logFailure(ctx, "re-verification failed", err,
			"request_id", requestID,
			"subject_id", subjectID.String(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, ReverificationResponse{
		Message:        "Re-verification request created",
		VerificationID: created.ID.String(),
		Status:         string(created.Status),
	})
}

// HandleSubmitPhoto handles POST /verification/{verificationId}/photo.
func (h *Handler) HandleSubmitPhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	subjectID, ok := h.requireSubject(ctx, w)
	if !ok {
		return
	}
	verificationID, err := id.ParseVerificationID(chi.URLParam(r, "verificationId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[PhotoRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	out, err := h.service.SubmitPhoto(ctx, subjectID, verificationID, req.Photo)
	if err != nil {
		h.logFailure(ctx, "photo submission failed", err,
			"request_id", requestID,
			"subject_id", subjectID.String(),
			"verification_id", verificationID.String(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, PhotoResponse{
		Message:       "Photo submitted",
		Status:        string(out.Request.Status),
		Attempts:      out.Request.Attempts,
		Result:        toEngineResult(out.EngineResult),
		UpstreamError: toUpstreamError(out.UpstreamErr),
	})
}

// HandleCheckStatus handles GET /verification/{verificationId}/status.
func (h *Handler) HandleCheckStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subjectID, ok := h.requireSubject(ctx, w)
	if !ok {
		return
	}
	verificationID, err := id.ParseVerificationID(chi.URLParam(r, "verificationId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, err := h.service.CheckStatus(ctx, subjectID, verificationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, StatusResponse{
		Status:      string(req.Status),
		RequestedAt: req.RequestedAt,
		VerifiedAt:  req.VerifiedAt,
		Attempts:    req.Attempts,
	})
}

// HandleHistory handles GET /verification/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subjectID, ok := h.requireSubject(ctx, w)
	if !ok {
		return
	}

	reqs, err := h.service.GetHistory(ctx, subjectID)
	if err != nil {
		h.logFailure(ctx, "history lookup failed", err,
			"request_id", requestcontext.RequestID(ctx),
			"subject_id", subjectID.String(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toHistoryResponse(reqs))
}

// HandleCurrentStatus handles GET /verification/current-status.
func (h *Handler) HandleCurrentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subjectID, ok := h.requireSubject(ctx, w)
	if !ok {
		return
	}

	sub, err := h.service.GetCurrentStatus(ctx, subjectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CurrentStatusResponse{
		VerificationStatus: string(sub.Status),
		LastVerifiedAt:     sub.LastVerifiedAt,
	})
}

// HandleAdjudicate handles POST /verification/{verificationId}/adjudicate.
func (h *Handler) HandleAdjudicate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	verificationID, err := id.ParseVerificationID(chi.URLParam(r, "verificationId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[AdjudicationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	updated, err := h.service.ProcessVerification(ctx, verificationID, req.Status, req.Feedback)
	if err != nil {
		h.logFailure(ctx, "adjudication failed", err,
			"request_id", requestID,
			"verification_id", verificationID.String(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, AdjudicationResponse{
		Message:        "Verification status updated",
		VerificationID: updated.ID.String(),
		Status:         string(updated.Status),
	})
}

// HandleListPending handles GET /verification/pending.
func (h *Handler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	items, err := h.service.ListPending(ctx)
	if err != nil {
		h.logFailure(ctx, "pending list failed", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPendingResponses(items))
}

func (h *Handler) requireSubject(ctx context.Context, w http.ResponseWriter) (id.SubjectID, bool) {
	subjectID := requestcontext.SubjectID(ctx)
	if subjectID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.SubjectID{}, false
	}
	return subjectID, true
}

// logFailure logs client errors at warn and everything else at error.
func (h *Handler) logFailure(ctx context.Context, msg string, err error, args ...any) {
	args = append(args, "error", err)
	if dErrors.HTTPStatus(dErrors.CodeOf(err)) < http.StatusInternalServerError {
		h.logger.WarnContext(ctx, msg, args...)
		return
	}
	h.logger.ErrorContext(ctx, msg, args...)
}
