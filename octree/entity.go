package octree

import "github.com/aukilabs/eihwaz/geometry"

// Entity is an object stored in an octree. The tree only keeps references to
// entities and identifies them by EntityID.
type Entity interface {
	// Returns an id that stays the same for the entity lifetime.
	EntityID() uint32

	// Returns the world-space bounds of the entity. Invalid bounds mean the
	// entity has no spatial extent.
	TransformedBounds() geometry.Bounds

	// Reports whether the entity is rendered. Invisible entities are never
	// returned by visibility queries.
	Visible() bool

	// Reports whether the entity skips frustum culling.
	NoCull() bool
}
