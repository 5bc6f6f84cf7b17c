package models

import (
	"testing"
	"time"

	"github.com/aukilabs/eihwaz/geometry"
	"github.com/aukilabs/eihwaz/octree"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/benbjohnson/clock"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func testSceneConfig() SceneConfig {
	return SceneConfig{
		FrameDuration: time.Millisecond * 15,
		Clock:         clock.NewMock(),
		Octree: octree.Options{
			InitialSize: 100,
			Looseness:   1.25,
			MinNodeSize: 1,
			MaxObjects:  8,
		},
	}
}

func newTestScene(t *testing.T) *Scene {
	scene, err := NewScene(42, testSceneConfig())
	require.NoError(t, err)
	t.Cleanup(scene.Close)
	return scene
}

func TestNewScene(t *testing.T) {
	t.Run("scene is created", func(t *testing.T) {
		scene := newTestScene(t)
		require.Equal(t, uint32(42), scene.ID)
		require.NotEmpty(t, scene.UUID)
	})

	t.Run("invalid octree options", func(t *testing.T) {
		c := testSceneConfig()
		c.Octree.Looseness = 0.5

		_, err := NewScene(42, c)
		require.Error(t, err)
		require.Equal(t, octree.ErrTypeInvalidOptions, errors.Type(err))
	})
}

func TestSceneNewParticipantID(t *testing.T) {
	scene := newTestScene(t)
	require.NotZero(t, scene.NewParticipantID())
}

func TestSceneAddParticipant(t *testing.T) {
	participant := &Participant{ID: 777}
	scene := newTestScene(t)

	scene.AddParticipant(participant)
	require.Len(t, scene.participants, 1)
	require.Equal(t, participant, scene.participants[777])
	require.Equal(t, 1, scene.ParticipantCount())
}

func TestSceneRemoveParticipant(t *testing.T) {
	participant := &Participant{ID: 777}
	scene := newTestScene(t)

	scene.AddParticipant(participant)
	require.Len(t, scene.participants, 1)

	scene.RemoveParticipant(participant)
	require.Empty(t, scene.participants)
}

func TestSceneGetParticipants(t *testing.T) {
	participant := &Participant{ID: 777}
	scene := newTestScene(t)

	scene.AddParticipant(participant)

	participants := scene.GetParticipants()
	require.Len(t, participants, 1)
	require.Equal(t, participant, participants[0])
}

func TestSceneAddEntity(t *testing.T) {
	t.Run("entity is placed", func(t *testing.T) {
		scene := newTestScene(t)
		entity := NewEntity(scene.NewEntityID(), 1, unitSphere(), Pose{PX: 5})

		require.NoError(t, scene.AddEntity(entity))
		require.Len(t, scene.entities, 1)
		require.Equal(t, 1, scene.tree.Count())
		require.Equal(t, 1, scene.EntityCount())
	})

	t.Run("entity without bounds is registered", func(t *testing.T) {
		scene := newTestScene(t)
		entity := NewEntity(scene.NewEntityID(), 1, geometry.Bounds{}, Pose{})

		require.NoError(t, scene.AddEntity(entity))
		require.Len(t, scene.entities, 1)
		require.Zero(t, scene.tree.Count())
	})

	t.Run("entity that does not fit is rejected", func(t *testing.T) {
		scene := newTestScene(t)
		entity := NewEntity(scene.NewEntityID(), 1, geometry.NewSphereBounds(geometry.BoundingSphere{Radius: 1e300}), Pose{})

		err := scene.AddEntity(entity)
		require.Error(t, err)
		require.Equal(t, ErrTypeEntityNotPlaced, errors.Type(err))
		require.Empty(t, scene.entities)
	})
}

func TestSceneRemoveEntity(t *testing.T) {
	scene := newTestScene(t)
	entity := NewEntity(11, 1, unitSphere(), Pose{})

	require.NoError(t, scene.AddEntity(entity))
	scene.UpdateEntityPose(entity, Pose{PX: 3})
	require.Len(t, scene.pendingPoses, 1)

	scene.RemoveEntity(entity)
	require.Empty(t, scene.entities)
	require.Empty(t, scene.pendingPoses)
	require.Zero(t, scene.tree.Count())
}

func TestSceneEntityByID(t *testing.T) {
	scene := newTestScene(t)

	t.Run("entity is returned", func(t *testing.T) {
		entity := NewEntity(1, 1, unitSphere(), Pose{})
		require.NoError(t, scene.AddEntity(entity))

		rEntity, ok := scene.EntityByID(entity.ID)
		require.True(t, ok)
		require.Equal(t, entity, rEntity)
	})

	t.Run("entity is not returned", func(t *testing.T) {
		rEntity, ok := scene.EntityByID(2)
		require.False(t, ok)
		require.Nil(t, rEntity)
	})
}

func TestSceneEntities(t *testing.T) {
	scene := newTestScene(t)
	for _, id := range []uint32{3, 1, 2} {
		require.NoError(t, scene.AddEntity(NewEntity(id, 1, unitSphere(), Pose{})))
	}

	require.Equal(t, []uint32{1, 2, 3}, EntityIDs(scene.Entities()))
}

func TestSceneUpdateEntityPose(t *testing.T) {
	scene := newTestScene(t)
	entity := NewEntity(1, 1, unitSphere(), Pose{})
	require.NoError(t, scene.AddEntity(entity))

	scene.UpdateEntityPose(entity, Pose{PX: 400, PY: 400, PZ: 400})

	t.Run("pose is applied on the next frame", func(t *testing.T) {
		require.Equal(t, Pose{}, entity.Pose())

		scene.Step()
		require.Equal(t, float32(400), entity.Pose().PX)
		require.Empty(t, scene.pendingPoses)
	})

	t.Run("entity is repositioned", func(t *testing.T) {
		require.False(t, scene.tree.NeedsReposition(entity))
		require.Equal(t, 1, scene.tree.Count())

		query := geometry.NewSphereBounds(geometry.BoundingSphere{
			Center: r3.Vector{X: 400, Y: 400, Z: 400},
			Radius: 2,
		})
		require.Equal(t, []uint32{1}, EntityIDs(scene.Colliding(query)))
		require.Empty(t, scene.Colliding(unitSphere()))
	})

	t.Run("unknown entities are ignored", func(t *testing.T) {
		scene.UpdateEntityPose(&Entity{ID: 99}, Pose{PX: 1})
		require.Empty(t, scene.pendingPoses)
	})
}

func TestSceneUpdateEntityPoseOutOfReach(t *testing.T) {
	scene := newTestScene(t)
	scene.AppKey = "out-of-reach"
	entity := NewEntity(1, 1, unitSphere(), Pose{})
	require.NoError(t, scene.AddEntity(entity))
	require.Equal(t, 1.0, entityGaugeValue(t, scene.AppKey))

	t.Run("entity is dropped from the octree", func(t *testing.T) {
		scene.UpdateEntityPose(entity, Pose{PX: 3e38})
		scene.Step()

		require.Equal(t, 1, scene.EntityCount())
		require.False(t, scene.tree.Contains(entity))
		require.Zero(t, scene.tree.Count())
		require.Equal(t, 100.0, scene.tree.Length())
		require.Zero(t, entityGaugeValue(t, scene.AppKey))
	})

	t.Run("further moves out of reach do not change the gauge", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			scene.UpdateEntityPose(entity, Pose{PX: 3e38, PY: float32(i)})
			scene.Step()
		}

		require.Zero(t, scene.tree.Count())
		require.Zero(t, entityGaugeValue(t, scene.AppKey))
	})

	t.Run("entity is placed back when in reach", func(t *testing.T) {
		scene.UpdateEntityPose(entity, Pose{})
		scene.Step()

		require.True(t, scene.tree.Contains(entity))
		require.Equal(t, 1, scene.tree.Count())
		require.Equal(t, 1.0, entityGaugeValue(t, scene.AppKey))
		require.Equal(t, []uint32{1}, EntityIDs(scene.Colliding(unitSphere())))
	})
}

func entityGaugeValue(t *testing.T, appKey string) float64 {
	var m dto.Metric
	err := sceneEntityCount.
		With(prometheus.Labels{appKeyLabel: appKey}).
		Write(&m)
	require.NoError(t, err)
	return m.GetGauge().GetValue()
}

func TestSceneVisible(t *testing.T) {
	scene := newTestScene(t)
	require.NoError(t, scene.AddEntity(NewEntity(1, 1, unitSphere(), Pose{PX: -10})))
	require.NoError(t, scene.AddEntity(NewEntity(2, 1, unitSphere(), Pose{PX: 10})))

	hidden := NewEntity(3, 1, unitSphere(), Pose{PX: 20})
	hidden.SetHidden(true)
	require.NoError(t, scene.AddEntity(hidden))

	f := geometry.NewFrustum(mgl64.Ortho(0, 1000, -1000, 1000, -1000, 1000))
	require.Equal(t, []uint32{2}, EntityIDs(scene.Visible(f)))
}

func TestSceneOctreeDebugInfo(t *testing.T) {
	scene := newTestScene(t)
	require.NoError(t, scene.AddEntity(NewEntity(1, 1, unitSphere(), Pose{})))

	info := scene.OctreeDebugInfo()
	require.Equal(t, 1, info.EntityCount)
	require.Equal(t, 100.0, info.RootLength)
}

func TestSceneHandleFrame(t *testing.T) {
	scene := newTestScene(t)

	var calls int
	cancel := scene.HandleFrame(func() {
		calls++
	})

	scene.Step()
	require.Equal(t, 1, calls)

	cancel()
	scene.Step()
	require.Equal(t, 1, calls)
}

func TestSceneStartDispatchFrames(t *testing.T) {
	c := testSceneConfig()
	mock := c.Clock.(*clock.Mock)

	scene, err := NewScene(42, c)
	require.NoError(t, err)

	frames := make(chan struct{}, 1)
	scene.HandleFrame(func() {
		select {
		case frames <- struct{}{}:
		default:
		}
	})

	done := make(chan struct{})
	go func() {
		scene.StartDispatchFrames()
		close(done)
	}()

	mock.Add(c.FrameDuration)

	select {
	case <-frames:
	case <-time.After(time.Second):
		t.Fatal("frame was not dispatched")
	}

	scene.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("frame dispatch did not stop")
	}
}

func TestSceneStore(t *testing.T) {
	var store SceneStore

	scene := newTestScene(t)
	scene.ID = store.NewID()
	store.Add(scene)

	t.Run("global scene id", func(t *testing.T) {
		require.Equal(t, "eihwazx1", store.GlobalSceneID(scene.ID))
	})

	t.Run("get by global id", func(t *testing.T) {
		s, ok := store.GetByGlobalID(store.GlobalSceneID(scene.ID))
		require.True(t, ok)
		require.Equal(t, scene, s)

		_, ok = store.GetByGlobalID("eihwazx2")
		require.False(t, ok)
	})

	t.Run("list", func(t *testing.T) {
		other := newTestScene(t)
		other.ID = store.NewID()
		store.Add(other)

		scenes := store.List()
		require.Len(t, scenes, 2)
		require.Equal(t, scene, scenes[0])
		require.Equal(t, other, scenes[1])
	})

	t.Run("remove", func(t *testing.T) {
		store.Remove(scene)
		_, ok := store.GetByGlobalID(store.GlobalSceneID(scene.ID))
		require.False(t, ok)
		require.Len(t, store.List(), 1)
		require.Equal(t, uint32(1), store.NewID())
	})
}
