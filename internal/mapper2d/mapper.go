// Package mapper2d maps pointer positions over a 2D widget into latent
// coordinates under a pan/zoom view transform.
package mapper2d

import (
	"errors"
	"math"

	"github.com/e7canasta/latent-explorer/internal/types"
)

var (
	// ErrInvalidPointerState is returned when there is no usable container
	// geometry at mapping time or the pointer is not a finite position.
	// The event should be dropped.
	ErrInvalidPointerState = errors.New("mapper2d: invalid pointer state")

	// ErrOutsideHoverRegion is returned when the pointer is not inside the
	// active hover region; the coordinate stream stops.
	ErrOutsideHoverRegion = errors.New("mapper2d: pointer outside hover region")
)

// Default tuning, chosen empirically for a hover widget.
const (
	DefaultZoomMin          = 0.1
	DefaultZoomMax          = 10.0
	DefaultWheelSensitivity = 0.01
	DefaultZoomStep         = 1.2
)

// Options configures the mapper bounds and sensitivities.
type Options struct {
	ZoomMin          float64
	ZoomMax          float64
	WheelSensitivity float64 // k in zoom *= 1 - deltaY*k
	ZoomStep         float64 // factor applied by ZoomIn/ZoomOut
}

// DefaultOptions returns the stock tuning.
func DefaultOptions() Options {
	return Options{
		ZoomMin:          DefaultZoomMin,
		ZoomMax:          DefaultZoomMax,
		WheelSensitivity: DefaultWheelSensitivity,
		ZoomStep:         DefaultZoomStep,
	}
}

// Transform is the pan/zoom state of a 2D view session.
type Transform struct {
	Zoom   float64     `json:"zoom" msgpack:"zoom"`
	Offset types.Point `json:"offset" msgpack:"offset"`
}

// Mapper owns the ViewTransform2D of one view session.
//
// Mapper is not safe for concurrent use; the owning session serializes
// all input handlers.
type Mapper struct {
	opts     Options
	zoom     float64
	offset   types.Point
	hovering bool

	dragging bool
	lastDrag types.Point
}

// New creates a mapper with identity transform.
func New(opts Options) *Mapper {
	m := &Mapper{opts: opts}
	m.ResetView()
	return m
}

// Transform returns a snapshot of the current view transform.
func (m *Mapper) Transform() Transform {
	return Transform{Zoom: m.zoom, Offset: m.offset}
}

// PointerEnter activates the hover region.
func (m *Mapper) PointerEnter() {
	m.hovering = true
}

// PointerLeave deactivates the hover region and stops any pan.
func (m *Mapper) PointerLeave() {
	m.hovering = false
	m.dragging = false
}

// PointerDown starts a pan drag at p. A non-finite position is ignored.
func (m *Mapper) PointerDown(p types.Point) {
	if !p.Finite() {
		return
	}
	m.dragging = true
	m.lastDrag = p
}

// PointerUp ends the pan drag.
func (m *Mapper) PointerUp() {
	m.dragging = false
}

// PointerMove maps p to a latent coordinate. While a drag is active the
// move pans the view first, so the coordinate follows the moved content.
func (m *Mapper) PointerMove(p types.Point, rect types.Rect) (types.Coordinate, error) {
	if !p.Finite() || rect.Empty() {
		return types.Coordinate{}, ErrInvalidPointerState
	}
	if m.dragging {
		m.DragDelta(p.X-m.lastDrag.X, p.Y-m.lastDrag.Y, rect)
		m.lastDrag = p
	}
	if !m.hovering || !rect.Contains(p) {
		return types.Coordinate{}, ErrOutsideHoverRegion
	}
	return m.Map(p, rect), nil
}

// Map is the pure mapping of p under the current transform. The
// normalization uses half of the shorter container side so the mapping
// stays square whatever the container shape.
func (m *Mapper) Map(p types.Point, rect types.Rect) types.Coordinate {
	half := math.Min(rect.Width, rect.Height) / 2
	cx := p.X - rect.X - rect.Width/2
	cy := p.Y - rect.Y - rect.Height/2

	return types.NewCoordinate2D(
		cx/half/m.zoom-m.offset.X,
		cy/half/m.zoom-m.offset.Y,
	)
}

// Wheel zooms by 1 - deltaY*k, clamped to the configured bounds.
func (m *Mapper) Wheel(deltaY float64) {
	m.setZoom(m.zoom * (1 - deltaY*m.opts.WheelSensitivity))
}

// ZoomIn multiplies zoom by the zoom step.
func (m *Mapper) ZoomIn() {
	m.setZoom(m.zoom * m.opts.ZoomStep)
}

// ZoomOut divides zoom by the zoom step.
func (m *Mapper) ZoomOut() {
	m.setZoom(m.zoom / m.opts.ZoomStep)
}

// DragDelta pans by a pixel delta. The pan is scaled inversely with zoom
// so a drag moves content by the same screen distance at any zoom level.
// Non-finite deltas are ignored.
func (m *Mapper) DragDelta(dx, dy float64, rect types.Rect) {
	if rect.Empty() {
		return
	}
	ox := m.offset.X - dx/rect.Width/m.zoom
	oy := m.offset.Y - dy/rect.Height/m.zoom
	if !types.Finite(ox) || !types.Finite(oy) {
		return
	}
	m.offset = types.Point{X: ox, Y: oy}
}

// ResetView restores zoom 1 and offset (0, 0).
func (m *Mapper) ResetView() {
	m.zoom = 1
	m.offset = types.Point{}
}

func (m *Mapper) setZoom(z float64) {
	if math.IsNaN(z) {
		return
	}
	m.zoom = math.Max(m.opts.ZoomMin, math.Min(m.opts.ZoomMax, z))
}
