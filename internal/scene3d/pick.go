package scene3d

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/e7canasta/latent-explorer/internal/types"
)

// halfExtent is the local half size of the bounding volume. The volume is
// 2 units per axis centered at the origin, so local coordinates are
// latent coordinates.
const halfExtent = 1.0

// slabEpsilon lets rays that graze an edge or corner count as hits.
const slabEpsilon = 1e-9

// Pick is the outcome of one ray cast.
type Pick struct {
	Hit        bool
	Coordinate types.Coordinate // local frame, clamped
	World      r3.Vec           // indicator position
}

// castVolume intersects a world ray with the bounding volume under
// orientation q. The ray is intersected in the volume's local frame; the
// world hit point is then mapped back through the inverse orientation.
func castVolume(q quat.Number, origin, dir r3.Vec) Pick {
	inv := r3.Rotation(quat.Conj(q))
	lo := inv.Rotate(origin)
	ld := inv.Rotate(dir)

	t, ok := intersectBox(lo, ld)
	if !ok {
		return Pick{}
	}

	world := r3.Add(origin, r3.Scale(t, dir))
	local := inv.Rotate(world)

	return Pick{
		Hit:        true,
		Coordinate: types.NewCoordinate3D(local.X, local.Y, local.Z),
		World:      world,
	}
}

// intersectBox is the slab test against [-1,1]^3. It returns the nearest
// non-negative ray parameter.
func intersectBox(o, d r3.Vec) (float64, bool) {
	tmin, tmax := math.Inf(-1), math.Inf(1)

	for _, axis := range [3][2]float64{{o.X, d.X}, {o.Y, d.Y}, {o.Z, d.Z}} {
		origin, dir := axis[0], axis[1]
		if math.Abs(dir) < 1e-12 {
			if origin < -halfExtent || origin > halfExtent {
				return 0, false
			}
			continue
		}
		t1 := (-halfExtent - origin) / dir
		t2 := (halfExtent - origin) / dir
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
	}

	if tmax < 0 || tmin > tmax+slabEpsilon {
		return 0, false
	}
	if tmin >= 0 {
		return tmin, true
	}
	// Ray starts inside the volume.
	return tmax, true
}
