package scene3d

import (
	"errors"
	"io"

	"github.com/gogpu/gg"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrSurfaceDisposed is returned by a Surface used after Dispose.
var ErrSurfaceDisposed = errors.New("scene3d: surface disposed")

// Surface is the thin adapter between the interaction state and a
// rendering library. The volume and its wireframe outline are drawn from
// the single orientation pushed here, so they cannot drift apart.
type Surface interface {
	SetOrientation(q quat.Number)
	SetCamera(distance float64)
	SetIndicator(world r3.Vec, visible bool)
	Render() error
	EncodePNG(w io.Writer) error
	Dispose() error
}

// volumeCorners are the local corners of the 2x2x2 bounding volume.
var volumeCorners = [8]r3.Vec{
	{X: -1, Y: -1, Z: -1}, {X: 1, Y: -1, Z: -1}, {X: 1, Y: 1, Z: -1}, {X: -1, Y: 1, Z: -1},
	{X: -1, Y: -1, Z: 1}, {X: 1, Y: -1, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: -1, Y: 1, Z: 1},
}

// volumeEdges index volumeCorners pairwise.
var volumeEdges = [12][2]int{
	{0, 1}, {1, 2}, {2, 3}, {3, 0},
	{4, 5}, {5, 6}, {6, 7}, {7, 4},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

// WireframeSurface rasterizes the volume outline and the pick indicator
// with gogpu/gg's software renderer.
type WireframeSurface struct {
	dc       *gg.Context
	lens     Lens
	width    int
	height   int
	q        quat.Number
	distance float64

	indicator r3.Vec
	visible   bool
	disposed  bool
}

// NewWireframeSurface allocates a width x height render target.
func NewWireframeSurface(width, height int, fovDeg float64) *WireframeSurface {
	return &WireframeSurface{
		dc:       gg.NewContext(width, height),
		lens:     Lens{FovDeg: fovDeg, Aspect: float64(width) / float64(height)},
		width:    width,
		height:   height,
		q:        identity(),
		distance: DefaultDistance,
	}
}

func (s *WireframeSurface) SetOrientation(q quat.Number) { s.q = q }
func (s *WireframeSurface) SetCamera(distance float64) { s.distance = distance }

func (s *WireframeSurface) SetIndicator(world r3.Vec, visible bool) {
	s.indicator = world
	s.visible = visible
}

// Render draws one frame into the backing context.
func (s *WireframeSurface) Render() error {
	if s.disposed {
		return ErrSurfaceDisposed
	}

	s.dc.ClearWithColor(gg.RGB(0.13, 0.13, 0.13))

	rot := r3.Rotation(s.q)
	var pts [8][2]float64
	var inFront [8]bool
	for i, corner := range volumeCorners {
		pts[i][0], pts[i][1], inFront[i] = s.toPixels(rot.Rotate(corner))
	}

	s.dc.SetRGB(0, 0.5, 0.5)
	s.dc.SetLineWidth(1.5)
	for _, e := range volumeEdges {
		a, b := e[0], e[1]
		if !inFront[a] || !inFront[b] {
			continue
		}
		s.dc.DrawLine(pts[a][0], pts[a][1], pts[b][0], pts[b][1])
	}
	if err := s.dc.Stroke(); err != nil {
		return err
	}

	if s.visible {
		if x, y, ok := s.toPixels(s.indicator); ok {
			s.dc.SetRGB(0, 1, 1)
			s.dc.DrawCircle(x, y, 4)
			if err := s.dc.Fill(); err != nil {
				return err
			}
		}
	}
	return nil
}

// EncodePNG writes the last rendered frame.
func (s *WireframeSurface) EncodePNG(w io.Writer) error {
	if s.disposed {
		return ErrSurfaceDisposed
	}
	return s.dc.EncodePNG(w)
}

// Dispose releases the render context. It is idempotent.
func (s *WireframeSurface) Dispose() error {
	if s.disposed {
		return nil
	}
	s.disposed = true
	return s.dc.Close()
}

func (s *WireframeSurface) toPixels(world r3.Vec) (x, y float64, ok bool) {
	nx, ny, ok := s.lens.Project(s.distance, world)
	if !ok {
		return 0, 0, false
	}
	return (nx + 1) / 2 * float64(s.width), (1 - ny) / 2 * float64(s.height), true
}
