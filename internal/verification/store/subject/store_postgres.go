package subject

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
	"kycgate/pkg/platform/sentinel"
	txcontext "kycgate/pkg/platform/tx"
)

// PostgresStore persists subjects in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed subject store.
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

func (s *PostgresStore) Save(ctx context.Context, subject *models.Subject) error {
	query := `
		INSERT INTO subjects (id, name, email, status, last_verified_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			status = EXCLUDED.status,
			last_verified_at = EXCLUDED.last_verified_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(subject.ID), subject.Name, subject.Email, string(subject.Status),
		nullTime(subject), subject.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save subject: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, subjectID id.SubjectID) (*models.Subject, error) {
	query := `SELECT id, name, email, status, last_verified_at, updated_at FROM subjects WHERE id = $1`
	subject, err := scanSubject(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(subjectID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("subject not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find subject: %w", err)
	}
	return subject, nil
}

// FindByIDs loads many subjects in one round trip.
func (s *PostgresStore) FindByIDs(ctx context.Context, ids []id.SubjectID) (map[id.SubjectID]*models.Subject, error) {
	out := make(map[id.SubjectID]*models.Subject, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, 0, len(ids))
	for _, subjectID := range ids {
		keys = append(keys, subjectID.String())
	}

	query := `SELECT id, name, email, status, last_verified_at, updated_at
		FROM subjects WHERE id = ANY($1::uuid[])`
	rows, err := s.execer(ctx).QueryContext(ctx, query, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		subject, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		out[subject.ID] = subject
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w", err)
	}
	return out, nil
}

// Execute locks the subject row, runs validate then mutate, and writes the
// verification standing back. It joins a transaction already in ctx.
func (s *PostgresStore) Execute(ctx context.Context, subjectID id.SubjectID, validate func(*models.Subject) error, mutate func(*models.Subject)) (*models.Subject, error) {
	if tx, ok := txcontext.From(ctx); ok {
		return s.execute(ctx, tx, subjectID, validate, mutate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin subject tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	subject, err := s.execute(ctx, tx, subjectID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit subject tx: %w", err)
	}
	return subject, nil
}

func (s *PostgresStore) execute(ctx context.Context, tx *sql.Tx, subjectID id.SubjectID, validate func(*models.Subject) error, mutate func(*models.Subject)) (*models.Subject, error) {
	query := `SELECT id, name, email, status, last_verified_at, updated_at FROM subjects WHERE id = $1 FOR UPDATE`
	subject, err := scanSubject(tx.QueryRowContext(ctx, query, uuid.UUID(subjectID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("subject not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("lock subject: %w", err)
	}

	if err := validate(subject); err != nil {
		return nil, err
	}
	mutate(subject)

	update := `UPDATE subjects SET status = $2, last_verified_at = $3, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update,
		uuid.UUID(subject.ID), string(subject.Status), nullTime(subject), subject.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update subject: %w", err)
	}
	return subject, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubject(sc rowScanner) (*models.Subject, error) {
	var (
		rawID          uuid.UUID
		status         string
		lastVerifiedAt sql.NullTime
		subject        models.Subject
	)
	if err := sc.Scan(&rawID, &subject.Name, &subject.Email, &status, &lastVerifiedAt, &subject.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := models.ParseSubjectStatus(status)
	if err != nil {
		return nil, err
	}
	subject.ID = id.SubjectID(rawID)
	subject.Status = parsed
	if lastVerifiedAt.Valid {
		t := lastVerifiedAt.Time
		subject.LastVerifiedAt = &t
	}
	return &subject, nil
}

func nullTime(subject *models.Subject) sql.NullTime {
	if subject.LastVerifiedAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *subject.LastVerifiedAt, Valid: true}
}
