package geometry

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
)

// Plane is the set of points p where Normal.Dot(p) + Distance == 0. Points on
// the side the normal points to have a positive signed distance.
type Plane struct {
	Normal   r3.Vector
	Distance float64
}

func newPlane(v mgl64.Vec4) Plane {
	p := Plane{
		Normal:   r3.Vector{X: v[0], Y: v[1], Z: v[2]},
		Distance: v[3],
	}

	if l := p.Normal.Norm(); l != 0 {
		p.Normal = p.Normal.Mul(1 / l)
		p.Distance /= l
	}
	return p
}

func (p Plane) SignedDistance(v r3.Vector) float64 {
	return p.Normal.Dot(v) + p.Distance
}

// Frustum plane indexes.
const (
	PlaneLeft = iota
	PlaneRight
	PlaneBottom
	PlaneTop
	PlaneNear
	PlaneFar
)

// Frustum is a view volume bounded by six planes whose normals point inward.
type Frustum struct {
	Planes [6]Plane
}

// NewFrustum extracts the frustum planes of a combined view-projection
// matrix that transforms column vectors.
func NewFrustum(viewProjection mgl64.Mat4) Frustum {
	row0 := viewProjection.Row(0)
	row1 := viewProjection.Row(1)
	row2 := viewProjection.Row(2)
	row3 := viewProjection.Row(3)

	var f Frustum
	f.Planes[PlaneLeft] = newPlane(row3.Add(row0))
	f.Planes[PlaneRight] = newPlane(row3.Sub(row0))
	f.Planes[PlaneBottom] = newPlane(row3.Add(row1))
	f.Planes[PlaneTop] = newPlane(row3.Sub(row1))
	f.Planes[PlaneNear] = newPlane(row3.Add(row2))
	f.Planes[PlaneFar] = newPlane(row3.Sub(row2))
	return f
}

// ContainsSphere reports whether s is at least partially inside the frustum.
func (f Frustum) ContainsSphere(s BoundingSphere) bool {
	for _, p := range f.Planes {
		if p.SignedDistance(s.Center) < -s.Radius {
			return false
		}
	}
	return true
}

// IntersectsBox reports whether b is at least partially inside the frustum,
// testing for each plane the box corner furthest along its normal.
func (f Frustum) IntersectsBox(b BoundingBox) bool {
	min, max := b.Min(), b.Max()

	for _, p := range f.Planes {
		v := min
		if p.Normal.X >= 0 {
			v.X = max.X
		}
		if p.Normal.Y >= 0 {
			v.Y = max.Y
		}
		if p.Normal.Z >= 0 {
			v.Z = max.Z
		}

		if p.SignedDistance(v) < 0 {
			return false
		}
	}
	return true
}

// ContainsBounds tests the sphere of b against the frustum. Bounds without a
// sphere always pass.
func (f Frustum) ContainsBounds(b Bounds) bool {
	if !b.hasSphere {
		return true
	}
	return f.ContainsSphere(b.sphere)
}

// ContainsBoundsTight is ContainsBounds followed by a box test when b has a
// box.
func (f Frustum) ContainsBoundsTight(b Bounds) bool {
	if !f.ContainsBounds(b) {
		return false
	}

	if !b.hasBox {
		return true
	}
	return f.IntersectsBox(b.box)
}
