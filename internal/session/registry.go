package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/e7canasta/latent-explorer/internal/scene3d"
)

var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session: not found")

	// ErrRegistryClosed is returned by Create after Close.
	ErrRegistryClosed = errors.New("session: registry closed")
)

// Registry owns all live sessions and the scene arena they mount from.
// New sessions inherit the registry's gate state.
type Registry struct {
	cfg   Config
	arena *scene3d.Arena

	mu        sync.RWMutex
	sessions  map[uuid.UUID]*Session
	observers []func(*Session)
	enabled   bool
	closed    bool
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, arena *scene3d.Arena, enabled bool) *Registry {
	return &Registry{
		cfg:      cfg,
		arena:    arena,
		sessions: make(map[uuid.UUID]*Session),
		enabled:  enabled,
	}
}

// OnCreate registers fn to run for every session created afterwards.
// Observers run synchronously inside Create, before the session is
// handed to its caller.
func (r *Registry) OnCreate(fn func(*Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Create starts a new session. Its 3D scene render loop is bound to ctx.
func (r *Registry) Create(ctx context.Context) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}

	s, err := newSession(ctx, r.cfg, r.arena, r.enabled)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	r.sessions[s.ID()] = s
	for _, fn := range r.observers {
		fn(s)
	}
	slog.Info("session created", "session_id", s.ID(), "enabled", r.enabled)
	return s, nil
}

// Get returns a live session.
func (r *Registry) Get(id uuid.UUID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Remove closes and forgets a session. Unknown ids are a no-op.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		s.Close()
		slog.Info("session closed", "session_id", id)
	}
}

// List returns session snapshots ordered by creation time.
func (r *Registry) List() []Info {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SetEnabled propagates the gate to every session and to sessions
// created later.
func (r *Registry) SetEnabled(enabled bool) {
	r.mu.Lock()
	r.enabled = enabled
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.SetEnabled(enabled)
	}
}

// ResetAll resets the view of every session.
func (r *Registry) ResetAll() int {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		s.ResetView()
	}
	return len(sessions)
}

// Close closes every session and rejects further Create calls.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	sessions := r.sessions
	r.sessions = make(map[uuid.UUID]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
