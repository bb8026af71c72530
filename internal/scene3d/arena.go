package scene3d

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrArenaClosed is returned by Acquire after Close.
var ErrArenaClosed = errors.New("scene3d: arena closed")

// Arena owns the scenes of all view sessions. A scene lives until Dispose;
// acquiring the same id afterwards builds a fresh scene in default state.
type Arena struct {
	cfg     SceneConfig
	factory SurfaceFactory

	mu     sync.Mutex
	scenes map[uuid.UUID]*Scene
	closed bool
}

// NewArena creates an empty arena. A nil factory selects
// DefaultSurfaceFactory.
func NewArena(cfg SceneConfig, factory SurfaceFactory) *Arena {
	if factory == nil {
		factory = DefaultSurfaceFactory
	}
	return &Arena{
		cfg:     cfg,
		factory: factory,
		scenes:  make(map[uuid.UUID]*Scene),
	}
}

// Acquire returns the scene for id, creating it if needed. The render loop
// of a new scene stops when ctx is cancelled or the scene is disposed.
func (a *Arena) Acquire(ctx context.Context, id uuid.UUID) (*Scene, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrArenaClosed
	}
	if s, ok := a.scenes[id]; ok {
		return s, nil
	}

	s := newScene(ctx, id, a.cfg, a.factory)
	a.scenes[id] = s
	slog.Debug("scene created", "scene_id", id)
	return s, nil
}

// Dispose stops the scene's render loop and releases its surface.
// Disposing an unknown id is a no-op.
func (a *Arena) Dispose(id uuid.UUID) error {
	a.mu.Lock()
	s, ok := a.scenes[id]
	delete(a.scenes, id)
	a.mu.Unlock()

	if !ok {
		return nil
	}
	if err := s.dispose(); err != nil {
		return fmt.Errorf("dispose scene %s: %w", id, err)
	}
	slog.Debug("scene disposed", "scene_id", id)
	return nil
}

// Len returns the number of live scenes.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.scenes)
}

// Close disposes every scene and rejects further Acquire calls.
func (a *Arena) Close() error {
	a.mu.Lock()
	a.closed = true
	scenes := a.scenes
	a.scenes = make(map[uuid.UUID]*Scene)
	a.mu.Unlock()

	var errs []error
	for id, s := range scenes {
		if err := s.dispose(); err != nil {
			errs = append(errs, fmt.Errorf("dispose scene %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
