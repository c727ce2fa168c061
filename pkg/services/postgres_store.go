package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/investlabs/researchd/pkg/database"
	"github.com/investlabs/researchd/pkg/models"
)

// PostgresStore is the durable SessionStore backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an established database client.
func NewPostgresStore(client *database.Client) *PostgresStore {
	return &PostgresStore{db: client.DB()}
}

const sessionColumns = `id, status, started_at, completed_at, use_cached_data, result, synthesis_status, error_message`

// Create stores a new session.
func (p *PostgresStore) Create(ctx context.Context, sess *models.AnalysisSession) error {
	if sess.ID == "" {
		return NewValidationError("id", "must not be empty")
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO analysis_sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sess.ID, sess.Status, sess.StartedAt, sess.CompletedAt,
		sess.UseCachedData, sess.Result, sess.SynthesisStatus, sess.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", sess.ID, err)
	}
	return nil
}

// Get returns the session or ErrNotFound.
func (p *PostgresStore) Get(ctx context.Context, id string) (*models.AnalysisSession, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM analysis_sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query session %s: %w", id, err)
	}
	return sess, nil
}

// List returns all sessions, newest first.
func (p *PostgresStore) List(ctx context.Context) ([]*models.AnalysisSession, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM analysis_sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.AnalysisSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// UpdateStatus moves the session to a new status. Terminal statuses stamp
// completed_at exactly once.
func (p *PostgresStore) UpdateStatus(ctx context.Context, id string, status models.SessionStatus, upd models.SessionUpdate) error {
	var completedAt *time.Time
	if status.Terminal() {
		now := time.Now().UTC()
		completedAt = &now
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE analysis_sessions SET
			status = $2,
			completed_at = COALESCE(completed_at, $3),
			result = CASE WHEN $4 <> '' THEN $4 ELSE result END,
			synthesis_status = CASE WHEN $5 <> '' THEN $5 ELSE synthesis_status END,
			error_message = CASE WHEN $6 <> '' THEN $6 ELSE error_message END
		 WHERE id = $1`,
		id, status, completedAt, string(upd.Result), string(upd.SynthesisStatus), upd.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("update session %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session %s: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the session.
func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM analysis_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.AnalysisSession, error) {
	var sess models.AnalysisSession
	var completedAt sql.NullTime
	err := row.Scan(
		&sess.ID, &sess.Status, &sess.StartedAt, &completedAt,
		&sess.UseCachedData, &sess.Result, &sess.SynthesisStatus, &sess.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		sess.CompletedAt = &t
	}
	return &sess, nil
}
