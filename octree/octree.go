package octree

import (
	"math"

	"github.com/aukilabs/eihwaz/geometry"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/golang/geo/r3"
)

const (
	ErrTypeInvalidOptions = "invalid_octree_options"

	// The number of times the tree is grown to fit an entity before giving up.
	maxGrowAttempts = 40
)

// Options configures an octree.
type Options struct {
	// The world-space center of the initial root.
	Center r3.Vector

	// The edge length of the initial root, before loosening.
	InitialSize float64

	// The factor node bounds are inflated by. Must be at least 1.
	Looseness float64

	// The edge length under which nodes are not split anymore.
	MinNodeSize float64

	// The number of entities a node holds before it is split.
	MaxObjects int

	// Replaces the root by its only occupied octant after removals.
	Shrink bool

	// Tests boxes in addition to spheres during visibility queries.
	BoxCulling bool
}

func (o Options) validate() error {
	if !geometry.IsFiniteVector(o.Center) {
		return errors.New("center is not finite").
			WithType(ErrTypeInvalidOptions).
			WithTag("center", o.Center)
	}

	if !(o.InitialSize > 0) || math.IsInf(o.InitialSize, 0) {
		return errors.New("initial size must be a positive number").
			WithType(ErrTypeInvalidOptions).
			WithTag("initial_size", o.InitialSize)
	}

	if !(o.Looseness >= 1) || math.IsInf(o.Looseness, 0) {
		return errors.New("looseness must be greater than or equal to 1").
			WithType(ErrTypeInvalidOptions).
			WithTag("looseness", o.Looseness)
	}

	if !(o.MinNodeSize > 0) {
		return errors.New("min node size must be a positive number").
			WithType(ErrTypeInvalidOptions).
			WithTag("min_node_size", o.MinNodeSize)
	}

	if o.MaxObjects <= 0 {
		return errors.New("max objects must be greater than 0").
			WithType(ErrTypeInvalidOptions).
			WithTag("max_objects", o.MaxObjects)
	}
	return nil
}

// Octree is a dynamic loose octree. It grows when entities are added outside
// of its root and is not safe for concurrent use.
type Octree struct {
	root  *node
	count int

	initialSize float64
	minNodeSize float64
	looseness   float64
	maxObjects  int
	shrink      bool
	boxCulling  bool
}

// New returns an octree with a single empty root.
func New(opts Options) (*Octree, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	if opts.MinNodeSize > opts.InitialSize {
		logs.Warn(errors.New("min node size is greater than initial size").
			WithTag("min_node_size", opts.MinNodeSize).
			WithTag("initial_size", opts.InitialSize).
			WithTag("clamped_to", opts.InitialSize))
		opts.MinNodeSize = opts.InitialSize
	}

	t := &Octree{
		initialSize: opts.InitialSize,
		minNodeSize: opts.MinNodeSize,
		looseness:   opts.Looseness,
		maxObjects:  opts.MaxObjects,
		shrink:      opts.Shrink,
		boxCulling:  opts.BoxCulling,
	}
	t.root = t.newNode(opts.Center, opts.InitialSize)
	return t, nil
}

func (t *Octree) newNode(center r3.Vector, length float64) *node {
	return newNode(center, length, t.minNodeSize, t.looseness, t.maxObjects)
}

// Count returns the number of entities stored in the tree.
func (t *Octree) Count() int {
	return t.count
}

// Center returns the center of the root.
func (t *Octree) Center() r3.Vector {
	return t.root.center
}

// Length returns the edge length of the root, before loosening.
func (t *Octree) Length() float64 {
	return t.root.length
}

// Bounds returns the loose bounds of the root.
func (t *Octree) Bounds() geometry.Bounds {
	return t.root.bounds
}

// Add inserts e, growing the tree toward e until it fits. It returns false
// when e still does not fit after the maximum number of grow attempts, in
// which case the root is restored to what it was before growing.
// Entities with invalid bounds are accepted without being stored.
func (t *Octree) Add(e Entity) bool {
	b := e.TransformedBounds()
	if !b.Valid() {
		return true
	}

	root := t.root
	for grows := 0; !t.root.Add(e); grows++ {
		if grows == maxGrowAttempts {
			logs.Warn(errors.New("adding entity to octree failed").
				WithTag("entity_id", e.EntityID()).
				WithTag("entity_center", b.Center()).
				WithTag("grow_attempts", grows).
				WithTag("root_length", t.root.length))
			t.root = root
			instrumentAddFailure()
			return false
		}

		t.Grow(b.Center().Sub(t.root.center))
	}

	t.count++
	return true
}

// Grow doubles the root edge length. The new root is offset by half the old
// length toward direction on each axis and the old root becomes one of its
// children.
func (t *Octree) Grow(direction r3.Vector) {
	old := t.root
	half := old.length / 2
	offset := r3.Vector{
		X: growSign(direction.X) * half,
		Y: growSign(direction.Y) * half,
		Z: growSign(direction.Z) * half,
	}

	root := t.newNode(old.center.Add(offset), old.length*2)
	root.children = make([]*node, 8)

	oldIndex := root.bestFitChild(old.center)
	for i := range root.children {
		if i == oldIndex {
			root.children[i] = old
			continue
		}
		root.children[i] = t.newNode(root.childCenter(i), old.length)
	}

	t.root = root
	instrumentGrow()
}

func growSign(v float64) float64 {
	if v >= 0 {
		return 1
	}
	return -1
}

// Remove removes e from the tree and reports whether it was found.
func (t *Octree) Remove(e Entity) bool {
	if !t.root.Remove(e) {
		return false
	}

	t.count--
	t.Shrink()
	return true
}

// Shrink replaces the root by its only occupied octant when every entity fits
// in it. It does nothing unless shrinking is enabled, and never shrinks the
// root below the initial size.
func (t *Octree) Shrink() {
	if !t.shrink {
		return
	}

	if root := t.root.shrinkIfPossible(t.initialSize); root != t.root {
		t.root = root
		instrumentShrink()
	}
}

// Contains reports whether e is stored in the tree.
func (t *Octree) Contains(e Entity) bool {
	_, ok := t.root.find(e.EntityID())
	return ok
}

// NeedsReposition reports whether e is in the tree and its current bounds no
// longer fit the node storing it.
func (t *Octree) NeedsReposition(e Entity) bool {
	return t.root.NeedsReposition(e)
}

// Reposition moves e when its bounds left the node storing it. It reports
// whether e is in the tree afterward.
func (t *Octree) Reposition(e Entity) bool {
	if !t.NeedsReposition(e) {
		return t.Contains(e)
	}

	t.Remove(e)
	return t.Add(e)
}

// GetVisible appends to out the visible entities inside the frustum.
func (t *Octree) GetVisible(f geometry.Frustum, out []Entity) []Entity {
	return t.root.GetVisible(f, t.boxCulling, out)
}

// GetColliding appends to out the entities whose bounds intersect b.
func (t *Octree) GetColliding(b geometry.Bounds, out []Entity) []Entity {
	return t.root.GetColliding(b, out)
}
