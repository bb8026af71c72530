// Package scene3d implements the 3D latent-space interaction: a bounding
// volume rotated by drag, a perspective camera zoomed by wheel, and
// ray-cast picking from pointer to volume-local coordinates.
//
// Controller holds the pure interaction state. Scene adapts it to a render
// Surface and a render loop, and Arena owns one Scene per view session.
package scene3d

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/e7canasta/latent-explorer/internal/types"
)

// ErrInvalidPointerState is returned when picking is requested without
// usable container geometry or with a non-finite pointer. The event
// should be dropped.
var ErrInvalidPointerState = errors.New("scene3d: invalid pointer state")

// Default tuning, chosen empirically for a hover widget.
const (
	DefaultDistanceMin = 2.0
	DefaultDistanceMax = 15.0
	DefaultDistance    = 5.0
	DefaultRotateSpeed = 0.005
	DefaultWheelSpeed  = 0.1
	DefaultZoomStep    = 1.0
	DefaultFovDeg      = 75.0
)

// State is the drag state of the controller.
type State int

const (
	Idle State = iota
	Dragging
)

func (s State) String() string {
	switch s {
	case Dragging:
		return "dragging"
	default:
		return "idle"
	}
}

// Options configures camera bounds and sensitivities.
type Options struct {
	DistanceMin     float64
	DistanceMax     float64
	DefaultDistance float64
	RotateSpeed     float64 // radians per pixel of drag
	WheelSpeed      float64 // distance units per wheel delta unit
	ZoomStep        float64 // distance change for ZoomIn/ZoomOut
	FovDeg          float64
}

// DefaultOptions returns the stock tuning.
func DefaultOptions() Options {
	return Options{
		DistanceMin:     DefaultDistanceMin,
		DistanceMax:     DefaultDistanceMax,
		DefaultDistance: DefaultDistance,
		RotateSpeed:     DefaultRotateSpeed,
		WheelSpeed:      DefaultWheelSpeed,
		ZoomStep:        DefaultZoomStep,
		FovDeg:          DefaultFovDeg,
	}
}

var (
	axisX = r3.Vec{X: 1}
	axisY = r3.Vec{Y: 1}
	axisZ = r3.Vec{Z: 1}
)

func identity() quat.Number {
	return quat.Number{Real: 1}
}

// Controller is the SceneInteractionController3D state machine.
//
// It is not safe for concurrent use; Scene serializes access.
type Controller struct {
	opts        Options
	state       State
	distance    float64
	orientation quat.Number
	last        types.Point
}

// NewController creates a controller in its default state.
func NewController(opts Options) *Controller {
	c := &Controller{opts: opts}
	c.ResetView()
	return c
}

// State returns the current drag state.
func (c *Controller) State() State {
	return c.state
}

// Camera returns a snapshot of the camera state.
func (c *Controller) Camera() CameraState {
	return CameraState{Distance: c.distance, Orientation: c.orientation}
}

// PointerDown enters Dragging. A non-finite position is ignored.
func (c *Controller) PointerDown(p types.Point) {
	if !p.Finite() {
		return
	}
	c.state = Dragging
	c.last = p
}

// PointerUp leaves Dragging. It is accepted wherever the pointer is, so
// a release outside the widget still ends the drag.
func (c *Controller) PointerUp() {
	c.state = Idle
}

// PointerLeave cancels any drag.
func (c *Controller) PointerLeave() {
	c.state = Idle
}

// PointerMove rotates the volume when dragging, then ray-casts the pointer
// against the volume in its updated orientation.
func (c *Controller) PointerMove(p types.Point, rect types.Rect) (Pick, error) {
	if !p.Finite() || rect.Empty() {
		return Pick{}, ErrInvalidPointerState
	}
	if c.state == Dragging {
		c.Rotate(p.X-c.last.X, p.Y-c.last.Y)
		c.last = p
	}
	return c.Pick(p, rect)
}

// Rotate left-composes the incremental rotation for a pointer delta onto
// the orientation. The delta is built from Euler angles
// (dy*speed, dx*speed, 0) in XYZ order. Non-finite deltas are ignored.
func (c *Controller) Rotate(dx, dy float64) {
	ax, ay := dy*c.opts.RotateSpeed, dx*c.opts.RotateSpeed
	if !types.Finite(ax) || !types.Finite(ay) {
		return
	}
	delta := eulerXYZ(ax, ay, 0)
	c.orientation = normalize(quat.Mul(delta, c.orientation))
}

// Pick casts the pointer ray against the volume without changing state.
func (c *Controller) Pick(p types.Point, rect types.Rect) (Pick, error) {
	if !p.Finite() || rect.Empty() {
		return Pick{}, ErrInvalidPointerState
	}
	ndcX, ndcY := NDC(p, rect)
	origin, dir := c.Lens(rect).Ray(c.distance, ndcX, ndcY)
	return castVolume(c.orientation, origin, dir), nil
}

// Lens returns the projection for a container.
func (c *Controller) Lens(rect types.Rect) Lens {
	aspect := 1.0
	if !rect.Empty() {
		aspect = rect.Width / rect.Height
	}
	return Lens{FovDeg: c.opts.FovDeg, Aspect: aspect}
}

// Wheel moves the camera along the view axis. Orientation is untouched.
func (c *Controller) Wheel(deltaY float64) {
	c.setDistance(c.distance + deltaY*c.opts.WheelSpeed)
}

// ZoomIn moves the camera one step closer.
func (c *Controller) ZoomIn() {
	c.setDistance(c.distance - c.opts.ZoomStep)
}

// ZoomOut moves the camera one step away.
func (c *Controller) ZoomOut() {
	c.setDistance(c.distance + c.opts.ZoomStep)
}

// ResetView restores identity orientation and the default distance with
// the camera aimed at the origin.
func (c *Controller) ResetView() {
	c.orientation = identity()
	c.distance = c.opts.DefaultDistance
}

func (c *Controller) setDistance(d float64) {
	if math.IsNaN(d) {
		return
	}
	c.distance = math.Max(c.opts.DistanceMin, math.Min(c.opts.DistanceMax, d))
}

// eulerXYZ builds the quaternion for intrinsic XYZ Euler angles.
func eulerXYZ(x, y, z float64) quat.Number {
	qx := quat.Number(r3.NewRotation(x, axisX))
	qy := quat.Number(r3.NewRotation(y, axisY))
	qz := quat.Number(r3.NewRotation(z, axisZ))
	return quat.Mul(quat.Mul(qx, qy), qz)
}

func normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return identity()
	}
	return quat.Scale(1/n, q)
}
