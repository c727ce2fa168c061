// Package services implements the session store and its fallback behavior.
package services

import (
	"context"

	"github.com/investlabs/researchd/pkg/models"
)

// SessionStore persists analysis sessions. Implementations must be safe for
// concurrent use.
type SessionStore interface {
	// Create stores a new session. Returns ErrAlreadyExists on id collision.
	Create(ctx context.Context, sess *models.AnalysisSession) error

	// Get returns a copy of the session or ErrNotFound.
	Get(ctx context.Context, id string) (*models.AnalysisSession, error)

	// List returns all sessions, newest first.
	List(ctx context.Context) ([]*models.AnalysisSession, error)

	// UpdateStatus moves the session to a new status. Terminal statuses set
	// completed_at and record the fields carried in upd.
	UpdateStatus(ctx context.Context, id string, status models.SessionStatus, upd models.SessionUpdate) error

	// Delete removes the session or returns ErrNotFound.
	Delete(ctx context.Context, id string) error
}
