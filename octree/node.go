package octree

import (
	"github.com/aukilabs/eihwaz/geometry"
	"github.com/golang/geo/r3"
)

// Octant bits of a child index. A bit is set when the child lies on the
// positive side of the parent center on that axis.
const (
	octantPosX = 1
	octantPosZ = 2
	octantPosY = 4
)

// node is a cell of the octree. It stores the entities that do not fit in a
// single child and, once split, exactly 8 children.
type node struct {
	center     r3.Vector
	length     float64
	minSize    float64
	looseness  float64
	maxObjects int

	// Loose bounds: a box centered on center with edges of length*looseness.
	bounds geometry.Bounds

	objects  []Entity
	children []*node
}

func newNode(center r3.Vector, length, minSize, looseness float64, maxObjects int) *node {
	n := &node{
		minSize:    minSize,
		looseness:  looseness,
		maxObjects: maxObjects,
	}
	n.setValues(center, length)
	return n
}

func (n *node) setValues(center r3.Vector, length float64) {
	n.center = center
	n.length = length
	n.bounds = looseBounds(center, length, n.looseness)
}

func looseBounds(center r3.Vector, length, looseness float64) geometry.Bounds {
	size := length * looseness
	return geometry.NewBoxBounds(geometry.NewBoundingBoxFromCenter(center, r3.Vector{X: size, Y: size, Z: size}))
}

func (n *node) isLeaf() bool {
	return n.children == nil
}

func (n *node) canSplit() bool {
	return n.length > 2*n.minSize
}

// Add stores e in n or one of its descendants. It returns false when e does
// not fit in the loose bounds of n. Entities with invalid bounds are
// considered placed without being stored.
func (n *node) Add(e Entity) bool {
	b := e.TransformedBounds()
	if !b.Valid() {
		return true
	}

	if !n.bounds.Contains(b) {
		return false
	}

	n.add(e, b)
	return true
}

func (n *node) add(e Entity, b geometry.Bounds) {
	if len(n.objects) < n.maxObjects || !n.canSplit() {
		n.objects = append(n.objects, e)
		return
	}

	if n.isLeaf() {
		n.split()
	}

	objects := n.objects[:0]
	for _, obj := range n.objects {
		child := n.children[n.bestFitChild(obj.TransformedBounds().Center())]
		if !child.Add(obj) {
			objects = append(objects, obj)
		}
	}
	clear(n.objects[len(objects):])
	n.objects = objects

	if !n.children[n.bestFitChild(b.Center())].Add(e) {
		n.objects = append(n.objects, e)
	}
}

// Remove removes e from n or its descendants and reports whether it was
// found.
func (n *node) Remove(e Entity) bool {
	removed := n.removeObject(e.EntityID())

	if !removed && !n.isLeaf() {
		for _, c := range n.children {
			if c.Remove(e) {
				removed = true
				break
			}
		}
	}

	if removed && !n.isLeaf() {
		n.merge()
	}
	return removed
}

func (n *node) removeObject(id uint32) bool {
	for i, obj := range n.objects {
		if obj.EntityID() != id {
			continue
		}

		last := len(n.objects) - 1
		n.objects[i] = n.objects[last]
		n.objects[last] = nil
		n.objects = n.objects[:last]
		return true
	}
	return false
}

// find returns the node that directly stores the entity with the given id.
func (n *node) find(id uint32) (*node, bool) {
	for _, obj := range n.objects {
		if obj.EntityID() == id {
			return n, true
		}
	}

	for _, c := range n.children {
		if found, ok := c.find(id); ok {
			return found, true
		}
	}
	return nil, false
}

// NeedsReposition reports whether e is stored in the tree under n and its
// current bounds left the loose bounds of the node storing it.
func (n *node) NeedsReposition(e Entity) bool {
	holder, ok := n.find(e.EntityID())
	if !ok {
		return false
	}
	return !holder.bounds.Contains(e.TransformedBounds())
}

func (n *node) split() {
	n.children = make([]*node, 8)
	for i := range n.children {
		n.children[i] = newNode(n.childCenter(i), n.length/2, n.minSize, n.looseness, n.maxObjects)
	}
	instrumentSplit()
}

// merge folds the children back into n when n and its children hold less
// than maxObjects entities and no child has children.
func (n *node) merge() bool {
	total := len(n.objects)
	for _, c := range n.children {
		if !c.isLeaf() {
			return false
		}
		total += len(c.objects)
	}

	if total >= n.maxObjects {
		return false
	}

	for _, c := range n.children {
		n.objects = append(n.objects, c.objects...)
	}
	n.children = nil
	instrumentMerge()
	return true
}

// bestFitChild returns the index of the child whose octant holds p.
func (n *node) bestFitChild(p r3.Vector) int {
	var i int
	if p.X > n.center.X {
		i |= octantPosX
	}
	if p.Z > n.center.Z {
		i |= octantPosZ
	}
	if p.Y > n.center.Y {
		i |= octantPosY
	}
	return i
}

func (n *node) childCenter(i int) r3.Vector {
	return octantCenter(n.center, n.length/4, i)
}

func octantCenter(center r3.Vector, offset float64, i int) r3.Vector {
	c := center.Sub(r3.Vector{X: offset, Y: offset, Z: offset})
	if i&octantPosX != 0 {
		c.X = center.X + offset
	}
	if i&octantPosZ != 0 {
		c.Z = center.Z + offset
	}
	if i&octantPosY != 0 {
		c.Y = center.Y + offset
	}
	return c
}

func (n *node) childBounds(i int) geometry.Bounds {
	return looseBounds(n.childCenter(i), n.length/2, n.looseness)
}

func (n *node) hasAnyObjects() bool {
	if len(n.objects) != 0 {
		return true
	}

	for _, c := range n.children {
		if c.hasAnyObjects() {
			return true
		}
	}
	return false
}

// GetVisible appends to out the visible entities of n and its descendants that
// pass the frustum test. Subtrees whose loose bounds fail the test are
// skipped.
func (n *node) GetVisible(f geometry.Frustum, tight bool, out []Entity) []Entity {
	if !frustumContains(f, n.bounds, tight) {
		return out
	}

	for _, obj := range n.objects {
		if !obj.Visible() {
			continue
		}

		if obj.NoCull() || frustumContains(f, obj.TransformedBounds(), tight) {
			out = append(out, obj)
		}
	}

	for _, c := range n.children {
		out = c.GetVisible(f, tight, out)
	}
	return out
}

func frustumContains(f geometry.Frustum, b geometry.Bounds, tight bool) bool {
	if tight {
		return f.ContainsBoundsTight(b)
	}
	return f.ContainsBounds(b)
}

// GetColliding appends to out the entities of n and its descendants whose
// bounds intersect b, regardless of their visibility.
func (n *node) GetColliding(b geometry.Bounds, out []Entity) []Entity {
	if !n.bounds.Intersects(b) {
		return out
	}

	for _, obj := range n.objects {
		if obj.TransformedBounds().Intersects(b) {
			out = append(out, obj)
		}
	}

	for _, c := range n.children {
		out = c.GetColliding(b, out)
	}
	return out
}

// shrinkIfPossible returns the node that can replace n as root: n itself
// resized to one of its octants when it is a leaf, or its only occupied
// child. It never goes below minLength.
func (n *node) shrinkIfPossible(minLength float64) *node {
	if n.length < 2*minLength {
		return n
	}

	if len(n.objects) == 0 && n.isLeaf() {
		return n
	}

	bestFit := -1
	for i, obj := range n.objects {
		b := obj.TransformedBounds()
		fit := n.bestFitChild(b.Center())
		if i != 0 && fit != bestFit {
			return n
		}

		if !n.childBounds(fit).Contains(b) {
			return n
		}
		bestFit = fit
	}

	if n.isLeaf() {
		n.setValues(n.childCenter(bestFit), n.length/2)
		return n
	}

	occupied := false
	for i, c := range n.children {
		if !c.hasAnyObjects() {
			continue
		}

		if occupied || (bestFit >= 0 && bestFit != i) {
			return n
		}
		occupied = true
		bestFit = i
	}

	if bestFit < 0 {
		return n
	}

	root := n.children[bestFit]
	root.objects = append(root.objects, n.objects...)
	return root
}
