package scene3d

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/latent-explorer/internal/types"
)

// SceneConfig sizes the render surface and paces the render loop.
type SceneConfig struct {
	Controller Options
	Width      int
	Height     int
	FPS        int
}

// SurfaceFactory builds the render surface for a new scene.
type SurfaceFactory func(cfg SceneConfig) Surface

// DefaultSurfaceFactory renders with WireframeSurface.
func DefaultSurfaceFactory(cfg SceneConfig) Surface {
	return NewWireframeSurface(cfg.Width, cfg.Height, cfg.Controller.FovDeg)
}

// Scene binds a Controller to a Surface and a render loop.
//
// Input methods mutate the controller under the scene lock and mark the
// scene dirty; the loop renders at most once per tick and caches the
// encoded frame for Frame.
type Scene struct {
	id uuid.UUID

	mu      sync.Mutex
	ctrl    *Controller
	surface Surface
	dirty   bool
	frame   []byte
	frames  uint64

	cancel context.CancelFunc
	done   chan struct{}
}

func newScene(ctx context.Context, id uuid.UUID, cfg SceneConfig, factory SurfaceFactory) *Scene {
	loopCtx, cancel := context.WithCancel(ctx)
	s := &Scene{
		id:      id,
		ctrl:    NewController(cfg.Controller),
		surface: factory(cfg),
		dirty:   true,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.syncSurface(Pick{})

	fps := cfg.FPS
	if fps <= 0 {
		fps = 30
	}
	go s.renderLoop(loopCtx, time.Second/time.Duration(fps))
	return s
}

// ID returns the arena key of the scene.
func (s *Scene) ID() uuid.UUID {
	return s.id
}

// PointerDown starts a rotation drag.
func (s *Scene) PointerDown(p types.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.PointerDown(p)
}

// PointerUp ends any drag.
func (s *Scene) PointerUp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.PointerUp()
}

// PointerLeave ends any drag and hides the indicator.
func (s *Scene) PointerLeave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.PointerLeave()
	s.syncSurface(Pick{})
}

// PointerMove rotates (when dragging) and picks. The indicator follows the
// pick result.
func (s *Scene) PointerMove(p types.Point, rect types.Rect) (Pick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pick, err := s.ctrl.PointerMove(p, rect)
	if err != nil {
		return Pick{}, err
	}
	s.syncSurface(pick)
	return pick, nil
}

// Wheel dollies the camera.
func (s *Scene) Wheel(deltaY float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.Wheel(deltaY)
	s.syncCamera()
}

func (s *Scene) ZoomIn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.ZoomIn()
	s.syncCamera()
}

func (s *Scene) ZoomOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.ZoomOut()
	s.syncCamera()
}

// ResetView restores the default camera. The render loop keeps running.
func (s *Scene) ResetView() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.ResetView()
	s.syncSurface(Pick{})
}

// Camera returns a snapshot of the camera state.
func (s *Scene) Camera() CameraState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Camera()
}

// DragState returns the controller drag state.
func (s *Scene) DragState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.State()
}

// Frame returns the last encoded PNG frame, or nil before the first
// render.
func (s *Scene) Frame() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Frames returns how many frames the loop has rendered.
func (s *Scene) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// syncSurface pushes orientation, camera and indicator. Caller holds mu.
func (s *Scene) syncSurface(pick Pick) {
	s.surface.SetIndicator(pick.World, pick.Hit)
	s.syncCamera()
}

// syncCamera pushes orientation and distance. Caller holds mu.
func (s *Scene) syncCamera() {
	cam := s.ctrl.Camera()
	s.surface.SetOrientation(cam.Orientation)
	s.surface.SetCamera(cam.Distance)
	s.dirty = true
}

func (s *Scene) renderLoop(ctx context.Context, interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.renderIfDirty()
		}
	}
}

func (s *Scene) renderIfDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return
	}
	if err := s.surface.Render(); err != nil {
		slog.Warn("scene render failed", "scene_id", s.id, "error", err)
		return
	}
	var buf bytes.Buffer
	if err := s.surface.EncodePNG(&buf); err != nil {
		slog.Warn("scene encode failed", "scene_id", s.id, "error", err)
		return
	}
	s.frame = buf.Bytes()
	s.frames++
	s.dirty = false
}

// dispose stops the render loop and releases the surface.
func (s *Scene) dispose() error {
	s.cancel()
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = nil
	return s.surface.Dispose()
}
