package request

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
	"kycgate/pkg/platform/sentinel"
	txcontext "kycgate/pkg/platform/tx"
)

const requestColumns = `
	id, subject_id, type, status,
	device_mac, device_ip, device_fp, device_user_agent, device_label,
	photo, suspicious_reason, suspicious_details, suspicious_flagged_at,
	automated_details, review_feedback, reviewed_at,
	requested_at, verified_at, attempts, updated_at`

// PostgresStore persists verification requests in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed request store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, req *models.VerificationRequest) error {
	row := toRow(req)
	query := `INSERT INTO verification_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO NOTHING`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		row.ID, row.SubjectID, row.Type, row.Status,
		row.DeviceMac, row.DeviceIP, row.DeviceFP, row.DeviceUserAgent, row.DeviceLabel,
		row.Photo, row.SuspiciousReason, row.SuspiciousDetails, row.SuspiciousFlaggedAt,
		row.AutomatedDetails, row.ReviewFeedback, row.ReviewedAt,
		row.RequestedAt, row.VerifiedAt, row.Attempts, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert verification request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("verification request %s: %w", req.ID, sentinel.ErrConflict)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, verificationID id.VerificationID) (*models.VerificationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM verification_requests WHERE id = $1`
	req, err := scanRequest(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(verificationID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("verification request not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find verification request: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]*models.VerificationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM verification_requests
		WHERE subject_id = $1
		ORDER BY requested_at DESC`
	return s.list(ctx, query, uuid.UUID(subjectID))
}

func (s *PostgresStore) ListPending(ctx context.Context) ([]*models.VerificationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM verification_requests
		WHERE status = 'pending'
		ORDER BY requested_at ASC`
	return s.list(ctx, query)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.VerificationRequest, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query verification requests: %w", err)
	}
	defer rows.Close()

	out := make([]*models.VerificationRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verification requests: %w", err)
	}
	return out, nil
}

// Execute locks the row with SELECT ... FOR UPDATE, runs validate then mutate,
// and writes the result back. It joins a transaction already in ctx.
func (s *PostgresStore) Execute(ctx context.Context, verificationID id.VerificationID, validate func(*models.VerificationRequest) error, mutate func(*models.VerificationRequest)) (*models.VerificationRequest, error) {
	if tx, ok := txcontext.From(ctx); ok {
		return s.execute(ctx, tx, verificationID, validate, mutate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin verification request tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	req, err := s.execute(ctx, tx, verificationID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit verification request tx: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) execute(ctx context.Context, tx *sql.Tx, verificationID id.VerificationID, validate func(*models.VerificationRequest) error, mutate func(*models.VerificationRequest)) (*models.VerificationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM verification_requests WHERE id = $1 FOR UPDATE`
	req, err := scanRequest(tx.QueryRowContext(ctx, query, uuid.UUID(verificationID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("verification request not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("lock verification request: %w", err)
	}

	if err := validate(req); err != nil {
		return nil, err
	}
	mutate(req)

	row := toRow(req)
	update := `UPDATE verification_requests SET
			status = $2, photo = $3, automated_details = $4,
			review_feedback = $5, reviewed_at = $6,
			verified_at = $7, attempts = $8, updated_at = $9
		WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update,
		row.ID, row.Status, row.Photo, row.AutomatedDetails,
		row.ReviewFeedback, row.ReviewedAt,
		row.VerifiedAt, row.Attempts, row.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update verification request: %w", err)
	}
	return req, nil
}

type requestRow struct {
	ID                  uuid.UUID
	SubjectID           uuid.UUID
	Type                string
	Status              string
	DeviceMac           string
	DeviceIP            string
	DeviceFP            string
	DeviceUserAgent     string
	DeviceLabel         string
	Photo               sql.NullString
	SuspiciousReason    sql.NullString
	SuspiciousDetails   sql.NullString
	SuspiciousFlaggedAt sql.NullTime
	AutomatedDetails    sql.NullString
	ReviewFeedback      sql.NullString
	ReviewedAt          sql.NullTime
	RequestedAt         time.Time
	VerifiedAt          sql.NullTime
	Attempts            int
	UpdatedAt           time.Time
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(sc rowScanner) (*models.VerificationRequest, error) {
	var row requestRow
	if err := sc.Scan(
		&row.ID, &row.SubjectID, &row.Type, &row.Status,
		&row.DeviceMac, &row.DeviceIP, &row.DeviceFP, &row.DeviceUserAgent, &row.DeviceLabel,
		&row.Photo, &row.SuspiciousReason, &row.SuspiciousDetails, &row.SuspiciousFlaggedAt,
		&row.AutomatedDetails, &row.ReviewFeedback, &row.ReviewedAt,
		&row.RequestedAt, &row.VerifiedAt, &row.Attempts, &row.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return fromRow(row)
}

func toRow(req *models.VerificationRequest) requestRow {
	row := requestRow{
		ID:               uuid.UUID(req.ID),
		SubjectID:        uuid.UUID(req.SubjectID),
		Type:             string(req.Type),
		Status:           string(req.Status),
		DeviceMac:        req.Device.MacAddress,
		DeviceIP:         req.Device.IPAddress,
		DeviceFP:         req.Device.DeviceFingerprint,
		DeviceUserAgent:  req.Device.UserAgent,
		DeviceLabel:      req.Device.DeviceLabel,
		Photo:            nullString(req.Photo),
		AutomatedDetails: nullJSON(req.AutomatedDetails),
		ReviewFeedback:   nullString(req.ReviewFeedback),
		ReviewedAt:       nullTime(req.ReviewedAt),
		RequestedAt:      req.RequestedAt,
		VerifiedAt:       nullTime(req.VerifiedAt),
		Attempts:         req.Attempts,
		UpdatedAt:        req.UpdatedAt,
	}
	if sa := req.SuspiciousActivity; sa != nil {
		row.SuspiciousReason = sql.NullString{String: sa.Reason, Valid: true}
		row.SuspiciousDetails = nullJSON(sa.AdditionalDetails)
		row.SuspiciousFlaggedAt = sql.NullTime{Time: sa.DetectedAt, Valid: true}
	}
	return row
}

func fromRow(row requestRow) (*models.VerificationRequest, error) {
	verificationType, err := models.ParseVerificationType(row.Type)
	if err != nil {
		return nil, err
	}
	status, err := models.ParseRequestStatus(row.Status)
	if err != nil {
		return nil, err
	}
	req := &models.VerificationRequest{
		ID:        id.VerificationID(row.ID),
		SubjectID: id.SubjectID(row.SubjectID),
		Device: models.DeviceInfo{
			MacAddress:        row.DeviceMac,
			IPAddress:         row.DeviceIP,
			DeviceFingerprint: row.DeviceFP,
			UserAgent:         row.DeviceUserAgent,
			DeviceLabel:       row.DeviceLabel,
		},
		Type:             verificationType,
		Status:           status,
		Photo:            stringPtr(row.Photo),
		AutomatedDetails: rawJSON(row.AutomatedDetails),
		ReviewFeedback:   stringPtr(row.ReviewFeedback),
		ReviewedAt:       timePtr(row.ReviewedAt),
		RequestedAt:      row.RequestedAt,
		VerifiedAt:       timePtr(row.VerifiedAt),
		Attempts:         row.Attempts,
		UpdatedAt:        row.UpdatedAt,
	}
	if row.SuspiciousReason.Valid {
		req.SuspiciousActivity = &models.SuspiciousActivity{
			Reason:            row.SuspiciousReason.String,
			DetectedAt:        row.SuspiciousFlaggedAt.Time,
			AdditionalDetails: rawJSON(row.SuspiciousDetails),
		}
	}
	return req, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullJSON(b json.RawMessage) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}

func rawJSON(ns sql.NullString) json.RawMessage {
	if !ns.Valid {
		return nil
	}
	return json.RawMessage(ns.String)
}
