package models

import (
	"sync"

	"github.com/aukilabs/eihwaz/geometry"
	"github.com/go-gl/mathgl/mgl64"
)

// Entity is an object placed in a scene. Its world bounds are its local
// bounds transformed by its pose.
type Entity struct {
	ID            uint32
	ParticipantID uint32
	Persist       bool

	mutex       sync.RWMutex
	pose        Pose
	localBounds geometry.Bounds
	bounds      geometry.Bounds
	hidden      bool
	noCull      bool
}

func NewEntity(id, participantID uint32, localBounds geometry.Bounds, pose Pose) *Entity {
	e := &Entity{
		ID:            id,
		ParticipantID: participantID,
		localBounds:   localBounds,
	}
	e.SetPose(pose)
	return e
}

// SetPose sets the entity pose and transforms its bounds accordingly.
func (e *Entity) SetPose(v Pose) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.pose = v
	e.bounds = e.localBounds.Transform(v.Matrix())
}

func (e *Entity) Pose() Pose {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.pose
}

func (e *Entity) LocalBounds() geometry.Bounds {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.localBounds
}

func (e *Entity) SetHidden(v bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.hidden = v
}

func (e *Entity) SetNoCull(v bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.noCull = v
}

func (e *Entity) EntityID() uint32 {
	return e.ID
}

func (e *Entity) TransformedBounds() geometry.Bounds {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.bounds
}

func (e *Entity) Visible() bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return !e.hidden
}

func (e *Entity) NoCull() bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.noCull
}

// Pose is a position and a rotation quaternion.
type Pose struct {
	PX float32 `json:"px"`
	PY float32 `json:"py"`
	PZ float32 `json:"pz"`
	RX float32 `json:"rx"`
	RY float32 `json:"ry"`
	RZ float32 `json:"rz"`
	RW float32 `json:"rw"`
}

// Matrix returns the transform that rotates then translates by the pose. A
// zero rotation is treated as the identity.
func (p Pose) Matrix() mgl64.Mat4 {
	rotation := mgl64.Quat{
		W: float64(p.RW),
		V: mgl64.Vec3{float64(p.RX), float64(p.RY), float64(p.RZ)},
	}
	if rotation.Len() == 0 {
		rotation = mgl64.QuatIdent()
	}

	return mgl64.Translate3D(float64(p.PX), float64(p.PY), float64(p.PZ)).
		Mul4(rotation.Normalize().Mat4())
}

func EntityIDs(entities []*Entity) []uint32 {
	ids := make([]uint32, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	return ids
}
