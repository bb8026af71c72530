package types

import (
	"fmt"
	"math"
)

// Coordinate is a point in the normalized latent space.
//
// Every axis is clamped to [-1, 1] by the constructors. Z is nil for a
// 2D coordinate. Coordinates are values: once produced they are never
// mutated, so they can be shared between the pipeline, the bus and any
// number of consumers.
type Coordinate struct {
	X float64  `json:"x" msgpack:"x"`
	Y float64  `json:"y" msgpack:"y"`
	Z *float64 `json:"z,omitempty" msgpack:"z,omitempty"`
}

// NewCoordinate2D builds a clamped 2D coordinate.
func NewCoordinate2D(x, y float64) Coordinate {
	return Coordinate{X: Clamp(x), Y: Clamp(y)}
}

// NewCoordinate3D builds a clamped 3D coordinate.
func NewCoordinate3D(x, y, z float64) Coordinate {
	cz := Clamp(z)
	return Coordinate{X: Clamp(x), Y: Clamp(y), Z: &cz}
}

// Is3D reports whether the coordinate carries a z axis.
func (c Coordinate) Is3D() bool {
	return c.Z != nil
}

// ZValue returns z, or 0 for a 2D coordinate.
func (c Coordinate) ZValue() float64 {
	if c.Z == nil {
		return 0
	}
	return *c.Z
}

// Equal compares two coordinates axis by axis.
func (c Coordinate) Equal(o Coordinate) bool {
	if c.X != o.X || c.Y != o.Y || c.Is3D() != o.Is3D() {
		return false
	}
	return !c.Is3D() || *c.Z == *o.Z
}

// String formats the coordinate with three decimals, the precision used
// by the display surfaces.
func (c Coordinate) String() string {
	if c.Z == nil {
		return fmt.Sprintf("X: %.3f, Y: %.3f", c.X, c.Y)
	}
	return fmt.Sprintf("X: %.3f, Y: %.3f, Z: %.3f", c.X, c.Y, *c.Z)
}

// Clamp limits v to [-1, 1]. NaN collapses to 0.
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}

// Finite reports whether v is neither NaN nor an infinity.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
