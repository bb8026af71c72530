package scene3d

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/e7canasta/latent-explorer/internal/types"
)

const tol = 1e-6

var square = types.Rect{Width: 400, Height: 400}

func center(r types.Rect) types.Point {
	return types.Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

func TestPickCenterHitsFrontFace(t *testing.T) {
	c := NewController(DefaultOptions())

	pick, err := c.Pick(center(square), square)
	if err != nil {
		t.Fatal(err)
	}
	if !pick.Hit {
		t.Fatal("center ray missed the volume")
	}
	got := pick.Coordinate
	if !got.Is3D() || got.X != 0 || got.Y != 0 || math.Abs(got.ZValue()-1) > tol {
		t.Errorf("coordinate = %v, want (0, 0, 1)", got)
	}
	if math.Abs(pick.World.Z-1) > tol {
		t.Errorf("world hit = %+v, want z=1", pick.World)
	}
}

func TestPickFollowsRotation(t *testing.T) {
	c := NewController(DefaultOptions())

	// A quarter turn about Y brings the local -X face to the camera.
	c.Rotate(math.Pi/2/c.opts.RotateSpeed, 0)

	pick, err := c.Pick(center(square), square)
	if err != nil {
		t.Fatal(err)
	}
	if !pick.Hit {
		t.Fatal("center ray missed the rotated volume")
	}
	got := pick.Coordinate
	if math.Abs(got.X+1) > tol || math.Abs(got.Y) > tol || math.Abs(got.ZValue()) > tol {
		t.Errorf("coordinate = %v, want (-1, 0, 0)", got)
	}
	// The world hit point is unchanged: the cube is symmetric.
	if math.Abs(pick.World.Z-1) > tol {
		t.Errorf("world hit = %+v, want z=1", pick.World)
	}
}

func TestPickRoundTripsProjectedPoint(t *testing.T) {
	c := NewController(DefaultOptions())
	rect := types.Rect{X: 20, Y: 10, Width: 640, Height: 480}

	tests := []r3.Vec{
		{X: 0.5, Y: -0.25, Z: 1},
		{X: -0.9, Y: 0.9, Z: 1},
		{X: 0, Y: 0.75, Z: 1},
	}

	for _, want := range tests {
		nx, ny, ok := c.Lens(rect).Project(c.Camera().Distance, want)
		if !ok {
			t.Fatalf("%+v projected behind camera", want)
		}
		pick, err := c.Pick(FromNDC(nx, ny, rect), rect)
		if err != nil {
			t.Fatal(err)
		}
		if !pick.Hit {
			t.Errorf("pick at projection of %+v missed", want)
			continue
		}
		got := pick.Coordinate
		if math.Abs(got.X-want.X) > tol || math.Abs(got.Y-want.Y) > tol || math.Abs(got.ZValue()-want.Z) > tol {
			t.Errorf("pick = %v, want %+v", got, want)
		}
	}
}

func TestPickAtVolumeCorner(t *testing.T) {
	c := NewController(DefaultOptions())

	for _, sx := range []float64{-1, 1} {
		for _, sy := range []float64{-1, 1} {
			corner := r3.Vec{X: sx, Y: sy, Z: 1}
			nx, ny, ok := c.Lens(square).Project(c.Camera().Distance, corner)
			if !ok {
				t.Fatalf("%+v projected behind camera", corner)
			}
			pick, err := c.Pick(FromNDC(nx, ny, square), square)
			if err != nil {
				t.Fatal(err)
			}
			if !pick.Hit {
				t.Errorf("corner %+v missed", corner)
				continue
			}
			got := pick.Coordinate
			if math.Abs(got.X-sx) > tol || math.Abs(got.Y-sy) > tol || math.Abs(got.ZValue()-1) > tol {
				t.Errorf("corner pick = %v, want %+v", got, corner)
			}
		}
	}
}

func TestPickMissesOutsideVolume(t *testing.T) {
	c := NewController(DefaultOptions())
	c.Wheel(1000)

	corner := FromNDC(0.95, 0.95, square)
	pick, err := c.Pick(corner, square)
	if err != nil {
		t.Fatal(err)
	}
	if pick.Hit {
		t.Errorf("expected miss at far distance, got %v", pick.Coordinate)
	}
}

func TestPickRejectsInvalidPointerState(t *testing.T) {
	nan, inf := math.NaN(), math.Inf(1)
	tests := []struct {
		name string
		p    types.Point
		rect types.Rect
	}{
		{"no geometry", types.Point{}, types.Rect{}},
		{"nan x", types.Point{X: nan, Y: 200}, square},
		{"infinite y", types.Point{X: 200, Y: -inf}, square},
		{"nan width", center(square), types.Rect{Width: nan, Height: 400}},
		{"infinite height", center(square), types.Rect{Width: 400, Height: inf}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(DefaultOptions())
			if _, err := c.Pick(tt.p, tt.rect); !errors.Is(err, ErrInvalidPointerState) {
				t.Errorf("Pick err = %v, want ErrInvalidPointerState", err)
			}

			c.PointerDown(center(square))
			if _, err := c.PointerMove(tt.p, tt.rect); !errors.Is(err, ErrInvalidPointerState) {
				t.Errorf("PointerMove err = %v, want ErrInvalidPointerState", err)
			}
			if c.Camera().Orientation != identity() {
				t.Errorf("rejected move rotated the volume: %v", c.Camera().Orientation)
			}
		})
	}
}

func TestNonFiniteDragKeepsOrientation(t *testing.T) {
	nan, inf := math.NaN(), math.Inf(1)
	tests := []struct {
		name   string
		dx, dy float64
	}{
		{"nan dx", nan, 0},
		{"nan dy", 0, nan},
		{"infinite dx", inf, 0},
		{"infinite dy", 0, -inf},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(DefaultOptions())
			c.Rotate(30, 10)
			before := c.Camera().Orientation

			c.Rotate(tt.dx, tt.dy)
			if got := c.Camera().Orientation; got != before {
				t.Fatalf("orientation = %v, want %v", got, before)
			}

			pick, err := c.Pick(center(square), square)
			if err != nil {
				t.Fatal(err)
			}
			w := pick.World
			if !pick.Hit || !types.Finite(w.X) || !types.Finite(w.Y) || !types.Finite(w.Z) {
				t.Errorf("center pick after rejected drag = %+v", pick)
			}
		})
	}
}

func TestPointerDownIgnoresNonFinitePosition(t *testing.T) {
	c := NewController(DefaultOptions())
	c.PointerDown(types.Point{X: math.NaN(), Y: 200})
	if c.State() != Idle {
		t.Fatalf("state = %v, want idle", c.State())
	}
	if _, err := c.PointerMove(center(square), square); err != nil {
		t.Fatal(err)
	}
	if c.Camera().Orientation != identity() {
		t.Error("move after rejected press rotated the volume")
	}
}

func TestDragRotatesOnlyWhileDragging(t *testing.T) {
	c := NewController(DefaultOptions())
	p := center(square)

	if _, err := c.PointerMove(types.Point{X: p.X + 50, Y: p.Y}, square); err != nil {
		t.Fatal(err)
	}
	if c.Camera().Orientation != identity() {
		t.Fatal("idle move rotated the volume")
	}

	c.PointerDown(p)
	if c.State() != Dragging {
		t.Fatalf("state = %v, want dragging", c.State())
	}
	if _, err := c.PointerMove(types.Point{X: p.X + 50, Y: p.Y + 20}, square); err != nil {
		t.Fatal(err)
	}
	rotated := c.Camera().Orientation
	if rotated == identity() {
		t.Fatal("drag did not rotate the volume")
	}

	// Release is honored wherever the pointer is.
	c.PointerUp()
	if c.State() != Idle {
		t.Fatalf("state = %v, want idle", c.State())
	}
	if _, err := c.PointerMove(types.Point{X: -500, Y: -500}, square); err != nil {
		t.Fatal(err)
	}
	if c.Camera().Orientation != rotated {
		t.Error("move after release rotated the volume")
	}
}

func TestPointerLeaveEndsDrag(t *testing.T) {
	c := NewController(DefaultOptions())
	c.PointerDown(center(square))
	c.PointerLeave()
	if c.State() != Idle {
		t.Errorf("state = %v, want idle", c.State())
	}
}

func TestWheelClampsDistance(t *testing.T) {
	opts := DefaultOptions()
	tests := []struct {
		name  string
		apply func(c *Controller)
		want  float64
	}{
		{"wheel out", func(c *Controller) { c.Wheel(10) }, 6},
		{"wheel in", func(c *Controller) { c.Wheel(-10) }, 4},
		{"clamp near", func(c *Controller) { c.Wheel(-1000) }, opts.DistanceMin},
		{"clamp far", func(c *Controller) { c.Wheel(1000) }, opts.DistanceMax},
		{"zoom in", func(c *Controller) { c.ZoomIn() }, 4},
		{"zoom out", func(c *Controller) { c.ZoomOut() }, 6},
		{"zoom in clamps", func(c *Controller) {
			for i := 0; i < 10; i++ {
				c.ZoomIn()
			}
		}, opts.DistanceMin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(opts)
			tt.apply(c)
			if got := c.Camera().Distance; math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("distance = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWheelKeepsOrientation(t *testing.T) {
	c := NewController(DefaultOptions())
	c.Rotate(37, -12)
	before := c.Camera().Orientation

	c.Wheel(25)
	c.ZoomIn()

	if c.Camera().Orientation != before {
		t.Error("zoom changed orientation")
	}
}

func TestResetViewIdempotent(t *testing.T) {
	c := NewController(DefaultOptions())
	c.Rotate(120, 80)
	c.Wheel(33)

	c.ResetView()
	once := c.Camera()
	c.ResetView()
	twice := c.Camera()

	if once != twice {
		t.Errorf("ResetView not idempotent: %+v vs %+v", once, twice)
	}
	if once.Orientation != identity() || once.Distance != DefaultDistance {
		t.Errorf("ResetView left %+v", once)
	}
}
