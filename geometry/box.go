package geometry

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
)

// Corner indexes. A corner index sets bit 1 for max X, bit 2 for max Y and
// bit 4 for max Z.
const (
	CornerMin = 0
	CornerMax = 7
)

// BoundingBox is an axis-aligned box.
type BoundingBox struct {
	Corners     [8]r3.Vector
	Center      r3.Vector
	HalfExtents r3.Vector
}

// NewBoundingBox returns a box spanning min to max.
func NewBoundingBox(min, max r3.Vector) BoundingBox {
	var b BoundingBox
	b.InitWithMinMax(min, max)
	return b
}

// NewBoundingBoxFromCenter returns a box centered on center with the given
// full edge lengths.
func NewBoundingBoxFromCenter(center, size r3.Vector) BoundingBox {
	half := size.Mul(0.5)
	return NewBoundingBox(center.Sub(half), center.Add(half))
}

// InitWithMinMax sets the corners, center and half extents from two opposite
// corners. Inputs are not validated: min must not exceed max on any axis.
func (b *BoundingBox) InitWithMinMax(min, max r3.Vector) {
	for i := range b.Corners {
		c := min
		if i&1 != 0 {
			c.X = max.X
		}
		if i&2 != 0 {
			c.Y = max.Y
		}
		if i&4 != 0 {
			c.Z = max.Z
		}
		b.Corners[i] = c
	}

	b.Center = min.Add(max).Mul(0.5)
	b.HalfExtents = max.Sub(min).Mul(0.5)
}

func (b BoundingBox) Min() r3.Vector {
	return b.Corners[CornerMin]
}

func (b BoundingBox) Max() r3.Vector {
	return b.Corners[CornerMax]
}

// Size returns the full edge lengths of the box.
func (b BoundingBox) Size() r3.Vector {
	return b.HalfExtents.Mul(2)
}

// CreateSphere returns the sphere centered on the box with a radius of half
// its diagonal.
func (b BoundingBox) CreateSphere() BoundingSphere {
	return BoundingSphere{
		Center: b.Center,
		Radius: b.HalfExtents.Norm(),
	}
}

func (b BoundingBox) ContainsPoint(p r3.Vector) bool {
	min, max := b.Min(), b.Max()
	return p.X >= min.X && p.X <= max.X &&
		p.Y >= min.Y && p.Y <= max.Y &&
		p.Z >= min.Z && p.Z <= max.Z
}

// ContainsBox reports whether o is inside b on every axis.
func (b BoundingBox) ContainsBox(o BoundingBox) bool {
	bmin, bmax := b.Min(), b.Max()
	omin, omax := o.Min(), o.Max()
	return omin.X >= bmin.X && omax.X <= bmax.X &&
		omin.Y >= bmin.Y && omax.Y <= bmax.Y &&
		omin.Z >= bmin.Z && omax.Z <= bmax.Z
}

// IntersectsBox reports whether the intervals of b and o overlap on every
// axis.
func (b BoundingBox) IntersectsBox(o BoundingBox) bool {
	bmin, bmax := b.Min(), b.Max()
	omin, omax := o.Min(), o.Max()
	return bmin.X <= omax.X && bmax.X >= omin.X &&
		bmin.Y <= omax.Y && bmax.Y >= omin.Y &&
		bmin.Z <= omax.Z && bmax.Z >= omin.Z
}

// ContainsSphere reports whether the whole sphere is inside b.
func (b BoundingBox) ContainsSphere(s BoundingSphere) bool {
	r := r3.Vector{X: s.Radius, Y: s.Radius, Z: s.Radius}
	return b.ContainsPoint(s.Center.Sub(r)) && b.ContainsPoint(s.Center.Add(r))
}

// IntersectsSphere reports whether the squared distance from the sphere
// center to the closest point of b is within the squared radius.
func (b BoundingBox) IntersectsSphere(s BoundingSphere) bool {
	return b.SquaredDistance(s.Center) <= s.Radius*s.Radius
}

// SquaredDistance returns the squared distance from p to the closest point of
// b. It is zero when p is inside b.
func (b BoundingBox) SquaredDistance(p r3.Vector) float64 {
	min, max := b.Min(), b.Max()
	return axisSquaredDistance(p.X, min.X, max.X) +
		axisSquaredDistance(p.Y, min.Y, max.Y) +
		axisSquaredDistance(p.Z, min.Z, max.Z)
}

func axisSquaredDistance(v, min, max float64) float64 {
	switch {
	case v < min:
		return (min - v) * (min - v)
	case v > max:
		return (v - max) * (v - max)
	default:
		return 0
	}
}

// Transform returns the axis-aligned box enclosing the eight corners of b
// transformed by m.
func (b BoundingBox) Transform(m mgl64.Mat4) BoundingBox {
	min := r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	max := r3.Vector{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}

	for _, c := range b.Corners {
		p := TransformPoint(m, c)
		min = minVector(min, p)
		max = maxVector(max, p)
	}
	return NewBoundingBox(min, max)
}
