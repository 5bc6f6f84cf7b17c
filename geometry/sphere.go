package geometry

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
)

// BoundingSphere is a sphere described by its center and radius.
type BoundingSphere struct {
	Center r3.Vector
	Radius float64
}

// Contains reports whether o lies strictly inside s.
func (s BoundingSphere) Contains(o BoundingSphere) bool {
	return s.Center.Distance(o.Center)+o.Radius < s.Radius
}

// Intersects reports whether s and o overlap.
func (s BoundingSphere) Intersects(o BoundingSphere) bool {
	return s.Center.Distance(o.Center) < s.Radius+o.Radius
}

// Transform returns the sphere moved by m. The radius is scaled by the largest
// axis scale of m so the result still encloses the transformed volume.
func (s BoundingSphere) Transform(m mgl64.Mat4) BoundingSphere {
	return BoundingSphere{
		Center: TransformPoint(m, s.Center),
		Radius: s.Radius * MaxScale(m),
	}
}
