package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/investlabs/researchd/pkg/models"
)

// MemoryStore is an in-memory SessionStore. It backs DB-less deployments and
// serves as the fallback target when the durable store is unreachable.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.AnalysisSession
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.AnalysisSession),
	}
}

// Create stores a new session.
func (m *MemoryStore) Create(_ context.Context, sess *models.AnalysisSession) error {
	if sess.ID == "" {
		return NewValidationError("id", "must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[sess.ID]; exists {
		return ErrAlreadyExists
	}
	m.sessions[sess.ID] = sess.Clone()
	return nil
}

// Get returns a copy of the session.
func (m *MemoryStore) Get(_ context.Context, id string) (*models.AnalysisSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

// List returns all sessions, newest first.
func (m *MemoryStore) List(_ context.Context) ([]*models.AnalysisSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.AnalysisSession, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

// UpdateStatus moves the session to a new status.
func (m *MemoryStore) UpdateStatus(_ context.Context, id string, status models.SessionStatus, upd models.SessionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.Status = status
	if status.Terminal() && sess.CompletedAt == nil {
		now := time.Now().UTC()
		sess.CompletedAt = &now
	}
	if upd.Result != "" {
		sess.Result = upd.Result
	}
	if upd.SynthesisStatus != "" {
		sess.SynthesisStatus = upd.SynthesisStatus
	}
	if upd.ErrorMessage != "" {
		sess.ErrorMessage = upd.ErrorMessage
	}
	return nil
}

// Delete removes the session.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}
