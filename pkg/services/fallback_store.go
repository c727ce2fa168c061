package services

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/investlabs/researchd/pkg/models"
)

// FallbackStore wraps a durable primary store with an in-memory shadow.
// Every write lands in memory first, then best-effort in the primary. Reads
// prefer the primary and fall back to memory when it is unreachable, so the
// service keeps answering during database outages.
type FallbackStore struct {
	primary  SessionStore
	memory   *MemoryStore
	degraded atomic.Bool
}

// NewFallbackStore wraps primary with an in-memory shadow store.
func NewFallbackStore(primary SessionStore) *FallbackStore {
	return &FallbackStore{
		primary: primary,
		memory:  NewMemoryStore(),
	}
}

// Degraded reports whether the last primary operation failed.
func (f *FallbackStore) Degraded() bool {
	return f.degraded.Load()
}

func (f *FallbackStore) notePrimary(op string, err error) {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyExists) || IsValidationError(err) {
		f.degraded.Store(false)
		return
	}
	f.degraded.Store(true)
	slog.Warn("primary session store unavailable, serving from memory",
		"op", op, "error", err)
}

// Create writes to memory, then best-effort to the primary.
func (f *FallbackStore) Create(ctx context.Context, sess *models.AnalysisSession) error {
	if err := f.memory.Create(ctx, sess); err != nil {
		return err
	}
	err := f.primary.Create(ctx, sess)
	f.notePrimary("create", err)
	if err != nil && (errors.Is(err, ErrAlreadyExists) || IsValidationError(err)) {
		return err
	}
	return nil
}

// Get prefers the primary, falling back to memory on failure.
func (f *FallbackStore) Get(ctx context.Context, id string) (*models.AnalysisSession, error) {
	sess, err := f.primary.Get(ctx, id)
	f.notePrimary("get", err)
	if err == nil {
		return sess, nil
	}
	if mem, memErr := f.memory.Get(ctx, id); memErr == nil {
		return mem, nil
	}
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	return nil, err
}

// List prefers the primary, falling back to memory on failure.
func (f *FallbackStore) List(ctx context.Context) ([]*models.AnalysisSession, error) {
	sessions, err := f.primary.List(ctx)
	f.notePrimary("list", err)
	if err == nil {
		return sessions, nil
	}
	return f.memory.List(ctx)
}

// UpdateStatus updates memory, then best-effort the primary.
func (f *FallbackStore) UpdateStatus(ctx context.Context, id string, status models.SessionStatus, upd models.SessionUpdate) error {
	memErr := f.memory.UpdateStatus(ctx, id, status, upd)
	err := f.primary.UpdateStatus(ctx, id, status, upd)
	f.notePrimary("update_status", err)
	if err == nil || memErr == nil {
		return nil
	}
	return err
}

// Delete removes from both stores; success in either counts.
func (f *FallbackStore) Delete(ctx context.Context, id string) error {
	memErr := f.memory.Delete(ctx, id)
	err := f.primary.Delete(ctx, id)
	f.notePrimary("delete", err)
	if err == nil || memErr == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) && errors.Is(memErr, ErrNotFound) {
		return ErrNotFound
	}
	return err
}
