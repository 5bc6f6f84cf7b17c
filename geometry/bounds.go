package geometry

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
)

const (
	ErrTypeInvalidBounds = "invalid_bounds"
)

// Bounds is a bounding volume made of a sphere, a box, both or neither. The
// zero value carries neither and is invalid.
type Bounds struct {
	sphere BoundingSphere
	box    BoundingBox

	hasSphere bool
	hasBox    bool

	// Set when the sphere was computed from the box.
	derivedSphere bool
}

func NewSphereBounds(s BoundingSphere) Bounds {
	return Bounds{
		sphere:    s,
		hasSphere: true,
	}
}

// NewBoxBounds returns bounds made of b and the sphere enclosing it.
func NewBoxBounds(b BoundingBox) Bounds {
	return Bounds{
		sphere:        b.CreateSphere(),
		box:           b,
		hasSphere:     true,
		hasBox:        true,
		derivedSphere: true,
	}
}

func NewBounds(s BoundingSphere, b BoundingBox) Bounds {
	return Bounds{
		sphere:    s,
		box:       b,
		hasSphere: true,
		hasBox:    true,
	}
}

// Valid reports whether the bounds carry a sphere or a box.
func (b Bounds) Valid() bool {
	return b.hasSphere || b.hasBox
}

func (b Bounds) Sphere() (BoundingSphere, bool) {
	return b.sphere, b.hasSphere
}

func (b Bounds) Box() (BoundingBox, bool) {
	return b.box, b.hasBox
}

// Center returns the box center when there is a box, the sphere center
// otherwise.
func (b Bounds) Center() r3.Vector {
	if b.hasBox {
		return b.box.Center
	}
	return b.sphere.Center
}

// Contains reports whether o is inside b. Boxes are compared per axis. When
// only b has a box, the sphere of o must fit in the box. Otherwise spheres
// are compared with a strict distance test.
func (b Bounds) Contains(o Bounds) bool {
	switch {
	case !b.Valid() || !o.Valid():
		return false

	case b.hasBox && o.hasBox:
		return b.box.ContainsBox(o.box)

	case b.hasBox:
		return b.box.ContainsSphere(o.sphere)

	default:
		return b.sphere.Contains(o.sphere)
	}
}

// Intersects reports whether b and o overlap.
func (b Bounds) Intersects(o Bounds) bool {
	switch {
	case !b.Valid() || !o.Valid():
		return false

	case b.hasBox && o.hasBox:
		return b.box.IntersectsBox(o.box)

	case b.hasBox:
		return b.box.IntersectsSphere(o.sphere)

	case o.hasBox:
		return o.box.IntersectsSphere(b.sphere)

	default:
		return b.sphere.Intersects(o.sphere)
	}
}

// Transform returns the bounds moved into the space described by m. A sphere
// derived from a box is derived again from the transformed box.
func (b Bounds) Transform(m mgl64.Mat4) Bounds {
	t := b
	if b.hasBox {
		t.box = b.box.Transform(m)
	}

	if b.hasSphere {
		if b.derivedSphere {
			t.sphere = t.box.CreateSphere()
		} else {
			t.sphere = b.sphere.Transform(m)
		}
	}
	return t
}

// Validate returns an error when the bounds are empty or hold NaN, infinite,
// negative or inverted values.
func (b Bounds) Validate() error {
	if !b.Valid() {
		return errors.New("bounds are empty").
			WithType(ErrTypeInvalidBounds)
	}

	if b.hasSphere {
		if !IsFiniteVector(b.sphere.Center) || !isFinite(b.sphere.Radius) {
			return errors.New("sphere is not finite").
				WithType(ErrTypeInvalidBounds).
				WithTag("center", b.sphere.Center).
				WithTag("radius", b.sphere.Radius)
		}

		if b.sphere.Radius < 0 {
			return errors.New("sphere radius is negative").
				WithType(ErrTypeInvalidBounds).
				WithTag("radius", b.sphere.Radius)
		}
	}

	if b.hasBox {
		min, max := b.box.Min(), b.box.Max()
		if !IsFiniteVector(min) || !IsFiniteVector(max) {
			return errors.New("box is not finite").
				WithType(ErrTypeInvalidBounds).
				WithTag("min", min).
				WithTag("max", max)
		}

		if min.X > max.X || min.Y > max.Y || min.Z > max.Z {
			return errors.New("box min is greater than max").
				WithType(ErrTypeInvalidBounds).
				WithTag("min", min).
				WithTag("max", max)
		}
	}
	return nil
}
