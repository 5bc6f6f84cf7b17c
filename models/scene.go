package models

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aukilabs/eihwaz/geometry"
	"github.com/aukilabs/eihwaz/octree"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

const (
	ErrTypeEntityNotPlaced = "entity_not_placed"

	defaultFrameDuration = time.Millisecond * 15
)

// SceneConfig configures a scene.
type SceneConfig struct {
	// The duration between two frames.
	FrameDuration time.Duration

	// The clock driving frames. Defaults to the system clock.
	Clock clock.Clock

	// The options of the octree indexing the scene entities.
	Octree octree.Options
}

// Scene is a 3D space where participants place entities. Entities are indexed
// in an octree that is updated once per frame.
type Scene struct {
	ID     uint32
	UUID   string
	AppKey string

	participantIDs   SequentialIDGenerator
	participantMutex sync.RWMutex
	participants     map[uint32]*Participant

	entityIDs    SequentialIDGenerator
	entityMutex  sync.RWMutex
	entities     map[uint32]*Entity
	pendingPoses map[uint32]Pose
	tree         *octree.Octree

	startFrameOnce  sync.Once
	closeFrameChan  chan struct{}
	frameTicker     *clock.Ticker
	frameHandlerIDs SequentialIDGenerator
	frameHandlers   map[uint32]func()
	frameMutex      sync.RWMutex

	closeOnce sync.Once
}

func NewScene(id uint32, c SceneConfig) (*Scene, error) {
	if c.Clock == nil {
		c.Clock = clock.New()
	}

	if c.FrameDuration <= 0 {
		c.FrameDuration = defaultFrameDuration
	}

	tree, err := octree.New(c.Octree)
	if err != nil {
		return nil, errors.New("creating scene octree failed").
			WithTag("scene_id", id).
			Wrap(err)
	}

	return &Scene{
		ID:             id,
		UUID:           uuid.New().String(),
		participants:   make(map[uint32]*Participant),
		entities:       make(map[uint32]*Entity),
		pendingPoses:   make(map[uint32]Pose),
		tree:           tree,
		closeFrameChan: make(chan struct{}, 1),
		frameTicker:    c.Clock.Ticker(c.FrameDuration),
		frameHandlers:  make(map[uint32]func()),
	}, nil
}

func (s *Scene) Close() {
	s.closeOnce.Do(func() {
		s.frameTicker.Stop()
		s.closeFrameChan <- struct{}{}

		s.entityMutex.RLock()
		instrumentEntityGauge(s.AppKey, -float64(s.tree.Count()))
		s.entityMutex.RUnlock()
	})
}

func (s *Scene) NewParticipantID() uint32 {
	return s.participantIDs.New()
}

func (s *Scene) AddParticipant(p *Participant) {
	s.participantMutex.Lock()
	defer s.participantMutex.Unlock()

	s.participants[p.ID] = p
}

func (s *Scene) RemoveParticipant(p *Participant) {
	s.participantMutex.Lock()
	defer s.participantMutex.Unlock()

	delete(s.participants, p.ID)
}

func (s *Scene) GetParticipants() []*Participant {
	s.participantMutex.RLock()
	defer s.participantMutex.RUnlock()

	participants := make([]*Participant, 0, len(s.participants))
	for _, p := range s.participants {
		participants = append(participants, p)
	}
	return participants
}

func (s *Scene) ParticipantCount() int {
	s.participantMutex.RLock()
	defer s.participantMutex.RUnlock()

	return len(s.participants)
}

func (s *Scene) NewEntityID() uint32 {
	return s.entityIDs.New()
}

// AddEntity places the entity in the scene octree. The entity is not added
// when it cannot be placed.
func (s *Scene) AddEntity(e *Entity) error {
	s.entityMutex.Lock()
	defer s.entityMutex.Unlock()

	if !s.tree.Add(e) {
		return errors.New("entity does not fit in the scene").
			WithType(ErrTypeEntityNotPlaced).
			WithTag("entity_id", e.ID).
			WithTag("center", e.TransformedBounds().Center())
	}

	s.entities[e.ID] = e
	if e.TransformedBounds().Valid() {
		instrumentEntityGauge(s.AppKey, 1)
	}
	return nil
}

func (s *Scene) RemoveEntity(e *Entity) {
	s.entityMutex.Lock()
	defer s.entityMutex.Unlock()

	delete(s.entities, e.ID)
	delete(s.pendingPoses, e.ID)

	if s.tree.Remove(e) {
		instrumentEntityGauge(s.AppKey, -1)
	}
}

func (s *Scene) EntityByID(id uint32) (*Entity, bool) {
	s.entityMutex.RLock()
	defer s.entityMutex.RUnlock()

	e, ok := s.entities[id]
	return e, ok
}

// Entities returns the scene entities sorted by id.
func (s *Scene) Entities() []*Entity {
	s.entityMutex.RLock()
	defer s.entityMutex.RUnlock()

	entities := make([]*Entity, 0, len(s.entities))
	for _, e := range s.entities {
		entities = append(entities, e)
	}

	sort.Slice(entities, func(i, j int) bool {
		return entities[i].ID < entities[j].ID
	})
	return entities
}

func (s *Scene) EntityCount() int {
	s.entityMutex.RLock()
	defer s.entityMutex.RUnlock()

	return len(s.entities)
}

// UpdateEntityPose schedules a pose change. It is applied on the next frame.
func (s *Scene) UpdateEntityPose(e *Entity, pose Pose) {
	s.entityMutex.Lock()
	defer s.entityMutex.Unlock()

	if _, ok := s.entities[e.ID]; !ok {
		return
	}
	s.pendingPoses[e.ID] = pose
}

// Step runs a frame: pending poses are applied, moved entities are
// repositioned in the octree, then frame handlers are called. Entities moved
// out of reach of the octree stay in the scene unindexed until a later pose
// brings them back.
func (s *Scene) Step() {
	start := time.Now()

	s.applyPendingPoses()

	s.frameMutex.RLock()
	for _, h := range s.frameHandlers {
		h()
	}
	s.frameMutex.RUnlock()

	instrumentFrameLatency(s.AppKey, time.Since(start))
}

func (s *Scene) applyPendingPoses() {
	s.entityMutex.Lock()
	defer s.entityMutex.Unlock()

	for id, pose := range s.pendingPoses {
		delete(s.pendingPoses, id)

		e, ok := s.entities[id]
		if !ok {
			continue
		}

		e.SetPose(pose)
		if !e.TransformedBounds().Valid() {
			continue
		}

		if !s.tree.Contains(e) {
			if s.tree.Add(e) {
				instrumentEntityGauge(s.AppKey, 1)
			}
			continue
		}

		if !s.tree.Reposition(e) {
			logs.Warn(errors.New("repositioning entity failed").
				WithType(ErrTypeEntityNotPlaced).
				WithTag("scene_id", s.ID).
				WithTag("entity_id", e.ID))
			instrumentEntityGauge(s.AppKey, -1)
		}
	}
}

// Visible returns the visible entities inside the frustum.
func (s *Scene) Visible(f geometry.Frustum) []*Entity {
	s.entityMutex.RLock()
	defer s.entityMutex.RUnlock()

	return toEntities(s.tree.GetVisible(f, nil))
}

// Colliding returns the entities whose bounds intersect b.
func (s *Scene) Colliding(b geometry.Bounds) []*Entity {
	s.entityMutex.RLock()
	defer s.entityMutex.RUnlock()

	return toEntities(s.tree.GetColliding(b, nil))
}

func toEntities(v []octree.Entity) []*Entity {
	entities := make([]*Entity, len(v))
	for i, e := range v {
		entities[i] = e.(*Entity)
	}
	return entities
}

func (s *Scene) OctreeDebugInfo() octree.DebugInfo {
	s.entityMutex.RLock()
	defer s.entityMutex.RUnlock()

	return s.tree.DebugInfo()
}

// HandleFrame registers a function called at each frame. The returned
// function unregisters it.
func (s *Scene) HandleFrame(h func()) (cancel func()) {
	s.frameMutex.Lock()
	defer s.frameMutex.Unlock()

	id := s.frameHandlerIDs.New()
	s.frameHandlers[id] = h

	return func() {
		s.frameMutex.Lock()
		defer s.frameMutex.Unlock()

		delete(s.frameHandlers, id)
		s.frameHandlerIDs.Reuse(id)
	}
}

// StartDispatchFrames runs frames until the scene is closed. Only the first
// call has an effect.
func (s *Scene) StartDispatchFrames() {
	s.startFrameOnce.Do(func() {
		for {
			select {
			case <-s.closeFrameChan:
				return

			case <-s.frameTicker.C:
				s.Step()
			}
		}
	})
}

type SceneStore struct {
	// The id of the server, used as global scene id prefix.
	ServerID string

	initOnce sync.Once
	mutex    sync.RWMutex
	scenes   map[string]*Scene
	ids      SequentialIDGenerator
}

func (s *SceneStore) init() {
	s.scenes = map[string]*Scene{}

	if s.ServerID == "" {
		s.ServerID = "eihwaz"
	}
}

func (s *SceneStore) NewID() uint32 {
	return s.ids.New()
}

func (s *SceneStore) Add(scene *Scene) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.scenes[s.GlobalSceneID(scene.ID)] = scene

	instrumentIncreaseSceneGauge(scene.AppKey)
	instrumentCountScene(scene.AppKey)
}

func (s *SceneStore) Remove(scene *Scene) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.scenes, s.GlobalSceneID(scene.ID))
	scene.Close()

	s.ids.Reuse(scene.ID)

	instrumentDecreaseSceneGauge(scene.AppKey)
}

func (s *SceneStore) GetByGlobalID(v string) (*Scene, bool) {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	scene, ok := s.scenes[v]
	return scene, ok
}

// List returns the scenes sorted by id.
func (s *SceneStore) List() []*Scene {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	scenes := make([]*Scene, 0, len(s.scenes))
	for _, scene := range s.scenes {
		scenes = append(scenes, scene)
	}

	sort.Slice(scenes, func(i, j int) bool {
		return scenes[i].ID < scenes[j].ID
	})
	return scenes
}

func (s *SceneStore) GlobalSceneID(sceneID uint32) string {
	s.initOnce.Do(s.init)
	return fmt.Sprintf("%sx%x", s.ServerID, sceneID)
}
