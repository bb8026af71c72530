// Package session binds one interactive view to its controllers, its
// render pipeline and its result bus.
//
// A Session serializes every input handler behind one lock, so view state
// mutations are atomic per event. Results flow out through the session's
// bus; the only asynchronous work is the pipeline's fetch.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/latent-explorer/internal/mapper2d"
	"github.com/e7canasta/latent-explorer/internal/scene3d"
	"github.com/e7canasta/latent-explorer/internal/types"
	"github.com/e7canasta/latent-explorer/internal/view"
	"github.com/e7canasta/latent-explorer/modules/imagebus"
	"github.com/e7canasta/latent-explorer/modules/renderpipeline"
)

var (
	// ErrInputDisabled is returned for events received while the
	// enablement gate is closed. The event is ignored.
	ErrInputDisabled = errors.New("session: input disabled")

	// ErrSessionClosed is returned for events after Close.
	ErrSessionClosed = errors.New("session: closed")

	// ErrUnknownEvent is returned for unsupported event kinds.
	ErrUnknownEvent = errors.New("session: unknown event")

	// ErrInvalidMode is returned by set_mode with an unknown mode.
	ErrInvalidMode = errors.New("session: invalid view mode")

	// ErrNoScene is returned when the 3D scene is requested outside 3D mode.
	ErrNoScene = errors.New("session: no 3D scene mounted")
)

// Config is shared by every session of a Registry.
type Config struct {
	Mapper   mapper2d.Options
	Pipeline renderpipeline.Config
	Fetcher  renderpipeline.Fetcher
	Mode     types.ViewMode // initial mode, default 2d
}

// Feedback is the synchronous outcome of one input event.
type Feedback struct {
	Mode       types.ViewMode      `json:"mode" msgpack:"mode"`
	Coordinate *types.Coordinate   `json:"coordinate,omitempty" msgpack:"coordinate,omitempty"`
	Hit        bool                `json:"hit" msgpack:"hit"`
	Transform  *mapper2d.Transform `json:"transform,omitempty" msgpack:"transform,omitempty"`
	Camera     *CameraInfo         `json:"camera,omitempty" msgpack:"camera,omitempty"`
}

// CameraInfo is the wire form of the 3D camera state.
type CameraInfo struct {
	Distance    float64    `json:"distance" msgpack:"distance"`
	Orientation [4]float64 `json:"orientation" msgpack:"orientation"` // w, x, y, z
}

func cameraInfo(c scene3d.CameraState) *CameraInfo {
	q := c.Orientation
	return &CameraInfo{
		Distance:    c.Distance,
		Orientation: [4]float64{q.Real, q.Imag, q.Jmag, q.Kmag},
	}
}

// Info summarizes a session for listings.
type Info struct {
	ID        uuid.UUID            `json:"id"`
	Mode      types.ViewMode       `json:"mode"`
	Enabled   bool                 `json:"enabled"`
	CreatedAt time.Time            `json:"created_at"`
	View      view.State           `json:"view"`
	Pipeline  renderpipeline.Stats `json:"pipeline"`
}

// Session is one interactive view session.
type Session struct {
	id      uuid.UUID
	ctx     context.Context
	created time.Time
	arena   *scene3d.Arena

	bus        imagebus.Bus
	pipeline   renderpipeline.Pipeline
	display    *view.Display
	displaySub imagebus.Subscription

	mu      sync.Mutex
	mode    types.ViewMode
	enabled bool
	closed  bool
	mapper  *mapper2d.Mapper
	scene   *scene3d.Scene // mounted only in 3D mode

	// streaming is true while the last submission was a coordinate, so
	// repeated misses clear the pipeline once.
	streaming bool
}

func newSession(ctx context.Context, cfg Config, arena *scene3d.Arena, enabled bool) (*Session, error) {
	mode := cfg.Mode
	if mode == "" {
		mode = types.Mode2D
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	bus := imagebus.New()
	display := view.NewDisplay()
	sub, err := bus.Subscribe(display.Apply)
	if err != nil {
		return nil, fmt.Errorf("subscribe display: %w", err)
	}

	pcfg := cfg.Pipeline
	pcfg.StartDisabled = !enabled

	s := &Session{
		id:         uuid.New(),
		ctx:        ctx,
		created:    time.Now(),
		arena:      arena,
		bus:        bus,
		pipeline:   renderpipeline.New(pcfg, cfg.Fetcher, bus),
		display:    display,
		displaySub: sub,
		mode:       types.Mode2D,
		enabled:    enabled,
		mapper:     mapper2d.New(cfg.Mapper),
	}

	if mode == types.Mode3D {
		if err := s.mountLocked(mode); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Bus returns the session's result bus.
func (s *Session) Bus() imagebus.Bus {
	return s.bus
}

// Display returns the consumer view state fed by the bus.
func (s *Session) Display() *view.Display {
	return s.display
}

// Mode returns the active view mode.
func (s *Session) Mode() types.ViewMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Enabled reports the session's gate state.
func (s *Session) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Scene returns the mounted 3D scene.
func (s *Session) Scene() (*scene3d.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scene == nil {
		return nil, ErrNoScene
	}
	return s.scene, nil
}

// Info returns a listing snapshot.
func (s *Session) Info() Info {
	s.mu.Lock()
	mode, enabled := s.mode, s.enabled
	s.mu.Unlock()

	return Info{
		ID:        s.id,
		Mode:      mode,
		Enabled:   enabled,
		CreatedAt: s.created,
		View:      s.display.State(),
		Pipeline:  s.pipeline.Stats(),
	}
}

// SetEnabled drives the enablement gate. Closing it ends any drag, clears
// the published result and makes HandleEvent ignore input.
func (s *Session) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.enabled == enabled {
		return
	}
	s.enabled = enabled
	if !enabled {
		s.streaming = false
		s.mapper.PointerUp()
		if s.scene != nil {
			s.scene.PointerUp()
		}
	}
	s.pipeline.SetEnabled(enabled)
	slog.Debug("session gate changed", "session_id", s.id, "enabled", enabled)
}

// ResetView restores the default transform of the active controller.
// It is honored even while input is disabled.
func (s *Session) ResetView() Feedback {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scene != nil {
		s.scene.ResetView()
	} else {
		s.mapper.ResetView()
	}
	return s.feedbackLocked(nil, false)
}

// HandleEvent applies one input event.
//
// The returned Feedback carries the coordinate under the pointer (when
// there is one) and the controller state after the event. Dropped events
// return ErrInputDisabled, mapper2d.ErrInvalidPointerState or
// scene3d.ErrInvalidPointerState.
func (s *Session) HandleEvent(ev types.InputEvent) (Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Feedback{}, ErrSessionClosed
	}
	if !s.enabled {
		return Feedback{}, ErrInputDisabled
	}

	if ev.Kind == types.EventSetMode {
		if err := s.mountLocked(ev.Mode); err != nil {
			return Feedback{}, err
		}
		return s.feedbackLocked(nil, false), nil
	}

	if s.scene != nil {
		return s.handle3DLocked(ev)
	}
	return s.handle2DLocked(ev)
}

func (s *Session) handle2DLocked(ev types.InputEvent) (Feedback, error) {
	m := s.mapper

	switch ev.Kind {
	case types.EventPointerEnter:
		m.PointerEnter()
	case types.EventPointerMove:
		c, err := m.PointerMove(ev.Point(), ev.Rect)
		switch {
		case errors.Is(err, mapper2d.ErrOutsideHoverRegion):
			// The coordinate stream stops; nothing is submitted.
			return s.feedbackLocked(nil, false), nil
		case err != nil:
			return Feedback{}, err
		}
		s.submitLocked(&c)
		return s.feedbackLocked(&c, true), nil
	case types.EventPointerDown:
		m.PointerDown(ev.Point())
	case types.EventPointerUp:
		m.PointerUp()
	case types.EventPointerLeave:
		m.PointerLeave()
	case types.EventWheel:
		m.Wheel(ev.DeltaY)
	case types.EventZoomIn:
		m.ZoomIn()
	case types.EventZoomOut:
		m.ZoomOut()
	case types.EventResetView:
		m.ResetView()
	default:
		return Feedback{}, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Kind)
	}
	return s.feedbackLocked(nil, false), nil
}

func (s *Session) handle3DLocked(ev types.InputEvent) (Feedback, error) {
	sc := s.scene

	switch ev.Kind {
	case types.EventPointerEnter:
	case types.EventPointerMove:
		pick, err := sc.PointerMove(ev.Point(), ev.Rect)
		if err != nil {
			return Feedback{}, err
		}
		if !pick.Hit {
			s.submitLocked(nil)
			return s.feedbackLocked(nil, false), nil
		}
		c := pick.Coordinate
		s.submitLocked(&c)
		return s.feedbackLocked(&c, true), nil
	case types.EventPointerDown:
		sc.PointerDown(ev.Point())
	case types.EventPointerUp:
		sc.PointerUp()
	case types.EventPointerLeave:
		sc.PointerLeave()
		s.submitLocked(nil)
	case types.EventWheel:
		sc.Wheel(ev.DeltaY)
	case types.EventZoomIn:
		sc.ZoomIn()
	case types.EventZoomOut:
		sc.ZoomOut()
	case types.EventResetView:
		sc.ResetView()
	default:
		return Feedback{}, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Kind)
	}
	return s.feedbackLocked(nil, false), nil
}

// mountLocked switches view mode. Entering 3D acquires a scene from the
// arena; leaving it disposes the scene. Any published result is cleared.
func (s *Session) mountLocked(mode types.ViewMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if mode == s.mode && (mode == types.Mode2D || s.scene != nil) {
		return nil
	}

	switch mode {
	case types.Mode3D:
		sc, err := s.arena.Acquire(s.ctx, s.id)
		if err != nil {
			return fmt.Errorf("mount 3d scene: %w", err)
		}
		s.scene = sc
		s.mapper.PointerLeave()
	case types.Mode2D:
		s.unmountSceneLocked()
	}

	s.mode = mode
	s.submitLocked(nil)
	return nil
}

// submitLocked feeds the pipeline. A nil coordinate is only forwarded
// when a coordinate stream is active.
func (s *Session) submitLocked(c *types.Coordinate) {
	if c == nil && !s.streaming {
		return
	}
	s.streaming = c != nil
	s.pipeline.Submit(c)
}

func (s *Session) unmountSceneLocked() {
	if s.scene == nil {
		return
	}
	s.scene = nil
	if err := s.arena.Dispose(s.id); err != nil {
		slog.Warn("failed to dispose scene", "session_id", s.id, "error", err)
	}
}

func (s *Session) feedbackLocked(c *types.Coordinate, hit bool) Feedback {
	fb := Feedback{Mode: s.mode, Coordinate: c, Hit: hit}
	if s.scene != nil {
		fb.Camera = cameraInfo(s.scene.Camera())
	} else {
		t := s.mapper.Transform()
		fb.Transform = &t
	}
	return fb
}

// Close tears the session down: pipeline first (no publication after),
// then the scene and the bus. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.unmountSceneLocked()
	s.mu.Unlock()

	s.pipeline.Close()
	s.displaySub.Unsubscribe()
	s.bus.Close()
}
