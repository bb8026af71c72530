package scene3d

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/e7canasta/latent-explorer/internal/types"
)

// CameraState is the CameraState3D of a view session: a perspective
// camera on the +Z axis aimed at the origin, and the orientation of the
// bounding volume.
type CameraState struct {
	Distance    float64     `json:"distance"`
	Orientation quat.Number `json:"orientation"`
}

// Lens describes the perspective projection.
type Lens struct {
	FovDeg float64 // vertical field of view
	Aspect float64 // width / height
}

func (l Lens) tanHalf() float64 {
	return math.Tan(l.FovDeg * math.Pi / 360)
}

// NDC converts a pointer position inside rect to normalized device
// coordinates, +Y up.
func NDC(p types.Point, rect types.Rect) (x, y float64) {
	x = (p.X-rect.X)/rect.Width*2 - 1
	y = -(p.Y-rect.Y)/rect.Height*2 + 1
	return x, y
}

// FromNDC is the inverse of NDC.
func FromNDC(x, y float64, rect types.Rect) types.Point {
	return types.Point{
		X: rect.X + (x+1)/2*rect.Width,
		Y: rect.Y + (1-y)/2*rect.Height,
	}
}

// Ray returns the world-space picking ray through an NDC position for a
// camera at (0, 0, distance) looking at the origin.
func (l Lens) Ray(distance, ndcX, ndcY float64) (origin, dir r3.Vec) {
	t := l.tanHalf()
	origin = r3.Vec{Z: distance}
	dir = r3.Unit(r3.Vec{X: ndcX * t * l.Aspect, Y: ndcY * t, Z: -1})
	return origin, dir
}

// Project maps a world point to NDC. ok is false for points at or
// behind the camera plane.
func (l Lens) Project(distance float64, world r3.Vec) (x, y float64, ok bool) {
	v := r3.Sub(world, r3.Vec{Z: distance})
	if v.Z >= 0 {
		return 0, 0, false
	}
	t := l.tanHalf()
	depth := -v.Z
	return v.X / depth / (t * l.Aspect), v.Y / depth / t, true
}
