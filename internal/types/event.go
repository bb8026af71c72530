package types

// EventKind identifies an input event coming from a visual widget.
type EventKind string

const (
	EventPointerEnter EventKind = "pointer_enter"
	EventPointerMove  EventKind = "pointer_move"
	EventPointerDown  EventKind = "pointer_down"
	EventPointerUp    EventKind = "pointer_up"
	EventPointerLeave EventKind = "pointer_leave"
	EventWheel        EventKind = "wheel"
	EventZoomIn       EventKind = "zoom_in"
	EventZoomOut      EventKind = "zoom_out"
	EventResetView    EventKind = "reset_view"
	EventSetMode      EventKind = "set_mode"
)

// ViewMode selects which interaction controller handles pointer input.
type ViewMode string

const (
	Mode2D ViewMode = "2d"
	Mode3D ViewMode = "3d"
)

// Valid reports whether m is a known view mode.
func (m ViewMode) Valid() bool {
	return m == Mode2D || m == Mode3D
}

// Point is a pointer position in client pixels.
type Point struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Rect is the container geometry in client pixels.
type Rect struct {
	X      float64 `json:"x" msgpack:"x"`
	Y      float64 `json:"y" msgpack:"y"`
	Width  float64 `json:"width" msgpack:"width"`
	Height float64 `json:"height" msgpack:"height"`
}

// Finite reports whether both components are finite numbers.
func (p Point) Finite() bool {
	return Finite(p.X) && Finite(p.Y)
}

// Empty reports whether the rect has no usable area. A rect with a
// non-finite component is empty.
func (r Rect) Empty() bool {
	if !Finite(r.X) || !Finite(r.Y) || !Finite(r.Width) || !Finite(r.Height) {
		return true
	}
	return r.Width <= 0 || r.Height <= 0
}

// Contains reports whether p lies inside r (edges inclusive).
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.Width && p.Y >= r.Y && p.Y <= r.Y+r.Height
}

// InputEvent is one pointer, wheel or view command from a widget.
type InputEvent struct {
	Kind   EventKind `json:"type" msgpack:"type"`
	X      float64   `json:"x,omitempty" msgpack:"x,omitempty"`
	Y      float64   `json:"y,omitempty" msgpack:"y,omitempty"`
	DeltaY float64   `json:"delta_y,omitempty" msgpack:"delta_y,omitempty"`
	Rect   Rect      `json:"rect" msgpack:"rect"`
	Mode   ViewMode  `json:"mode,omitempty" msgpack:"mode,omitempty"`
}

// Point returns the pointer position carried by the event.
func (e InputEvent) Point() Point {
	return Point{X: e.X, Y: e.Y}
}
