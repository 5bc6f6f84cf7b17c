package websocket

import (
	"context"
	"slices"
	"time"

	"github.com/aukilabs/eihwaz/featureflag"
	"github.com/aukilabs/eihwaz/geometry"
	"github.com/aukilabs/eihwaz/models"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	httpcmn "github.com/aukilabs/hagall-common/http"
	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/net/websocket"
)

// RealtimeHandler represents a service that manages a client connection to a
// scene and answers its spatial queries in realtime.
type RealtimeHandler struct {
	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	// The configuration of the scenes created by clients.
	SceneConfig models.SceneConfig

	// The store that contains all the server scenes.
	Scenes *models.SceneStore

	FeatureFlags featureflag.FeatureFlag

	conn               *websocket.Conn
	currentScene       *models.Scene
	currentParticipant *models.Participant

	stopFrameHandling func()
	camera            *geometry.Frustum
	lastVisible       []uint32

	clientID string
	appKey   string
}

func (h *RealtimeHandler) HandleConnect(conn *websocket.Conn) {
	req := conn.Request()
	h.clientID = req.Header.Get(httpcmn.HeaderPosemeshClientID)
	h.appKey = httpcmn.GetAppKeyFromHagallUserToken(httpcmn.GetUserTokenFromHTTPRequest(req))

	h.conn = conn
}

func (h *RealtimeHandler) HandleSceneJoin(ctx context.Context, handleFrame func(), respond ResponseSender, msg Msg) error {
	var req SceneJoinRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	if h.currentScene != nil && h.Scenes.GlobalSceneID(h.currentScene.ID) == req.SceneID {
		respond.Send(newErrorResponse(req.RequestID, ErrorCodeSceneAlreadyJoined))
		return nil
	}

	if h.currentParticipant != nil {
		h.leaveScene()
	}

	scene, ok := h.Scenes.GetByGlobalID(req.SceneID)
	if !ok && req.SceneID != "" {
		respond.Send(newErrorResponse(req.RequestID, ErrorCodeNotFound))
		return nil
	}

	if !ok {
		var err error
		scene, err = models.NewScene(h.Scenes.NewID(), h.SceneConfig)
		if err != nil {
			logs.WithClientID(h.clientID).Error(errors.New("creating scene failed").Wrap(err))
			respond.Send(newErrorResponse(req.RequestID, ErrorCodeInternalServerError))
			return nil
		}

		scene.AppKey = h.appKey
		h.Scenes.Add(scene)
		go scene.StartDispatchFrames()
	}

	participant := &models.Participant{
		ID: scene.NewParticipantID(),
	}
	scene.AddParticipant(participant)
	h.stopFrameHandling = scene.HandleFrame(handleFrame)

	res := &SceneJoinResponse{
		Header:        newHeader(MsgTypeSceneJoinResponse, req.RequestID),
		SceneID:       h.Scenes.GlobalSceneID(scene.ID),
		SceneUUID:     scene.UUID,
		ParticipantID: participant.ID,
	}
	h.FeatureFlags.IfNotSet(featureflag.FlagDisableSceneState, func() {
		res.Entities = entitiesData(scene.Entities())
	})
	respond.Send(res)

	h.currentScene = scene
	h.currentParticipant = participant
	return nil
}

func (h *RealtimeHandler) HandleDisconnect(_ error) {
	if h.currentParticipant != nil {
		h.leaveScene()
	}
}

func (h *RealtimeHandler) HandleEntityAdd(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req EntityAddRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	participant, scene, err := h.joined(msg)
	if err != nil {
		return err
	}

	bounds := req.Bounds.Bounds()
	if bounds.Valid() {
		if err := bounds.Validate(); err != nil {
			logs.WithClientID(h.clientID).Debug(err)
			respond.Send(newErrorResponse(req.RequestID, ErrorCodeBadRequest))
			return nil
		}
	}

	entity := models.NewEntity(scene.NewEntityID(), participant.ID, bounds, req.Pose)
	entity.Persist = req.Persist
	entity.SetHidden(req.Hidden)
	entity.SetNoCull(req.NoCull)

	if err := scene.AddEntity(entity); err != nil {
		logs.WithClientID(h.clientID).Warn(err)
		respond.Send(newErrorResponse(req.RequestID, ErrorCodeEntityNotPlaced))
		return nil
	}
	participant.AddEntity(entity)

	respond.Send(&EntityAddResponse{
		Header:   newHeader(MsgTypeEntityAddResponse, req.RequestID),
		EntityID: entity.ID,
	})
	return nil
}

func (h *RealtimeHandler) HandleEntityDelete(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req EntityDeleteRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	participant, scene, err := h.joined(msg)
	if err != nil {
		return err
	}

	entity, ok := scene.EntityByID(req.EntityID)
	if !ok {
		respond.Send(newErrorResponse(req.RequestID, ErrorCodeNotFound))
		return nil
	}

	if !participant.Owns(entity) {
		respond.Send(newErrorResponse(req.RequestID, ErrorCodeUnauthorized))
		return nil
	}

	scene.RemoveEntity(entity)
	participant.RemoveEntity(entity)

	respond.Send(&EntityDeleteResponse{
		Header:   newHeader(MsgTypeEntityDeleteResponse, req.RequestID),
		EntityID: entity.ID,
	})
	return nil
}

func (h *RealtimeHandler) HandleEntityUpdatePose(ctx context.Context, msg Msg) error {
	var req EntityUpdatePose
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	participant, scene, err := h.joined(msg)
	if err != nil {
		return err
	}

	entity, ok := scene.EntityByID(req.EntityID)
	if !ok || !participant.Owns(entity) {
		return nil
	}

	scene.UpdateEntityPose(entity, req.Pose)
	return nil
}

func (h *RealtimeHandler) HandleCameraUpdate(ctx context.Context, msg Msg) error {
	var req CameraUpdate
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	if _, _, err := h.joined(msg); err != nil {
		return err
	}

	h.lastVisible = nil
	if req.ViewProjection == nil {
		h.camera = nil
		return nil
	}

	camera := geometry.NewFrustum(mgl64.Mat4(*req.ViewProjection))
	h.camera = &camera
	return nil
}

func (h *RealtimeHandler) HandleVisibleQuery(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req VisibleQueryRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	_, scene, err := h.joined(msg)
	if err != nil {
		return err
	}

	frustum := geometry.NewFrustum(mgl64.Mat4(req.ViewProjection))
	respond.Send(&VisibleQueryResponse{
		Header:    newHeader(MsgTypeVisibleQueryResponse, req.RequestID),
		EntityIDs: models.EntityIDs(scene.Visible(frustum)),
	})
	return nil
}

func (h *RealtimeHandler) HandleCollidingQuery(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req CollidingQueryRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	_, scene, err := h.joined(msg)
	if err != nil {
		return err
	}

	bounds := req.Bounds.Bounds()
	if err := bounds.Validate(); err != nil {
		logs.WithClientID(h.clientID).Debug(err)
		respond.Send(newErrorResponse(req.RequestID, ErrorCodeBadRequest))
		return nil
	}

	respond.Send(&CollidingQueryResponse{
		Header:    newHeader(MsgTypeCollidingQueryResponse, req.RequestID),
		EntityIDs: models.EntityIDs(scene.Colliding(bounds)),
	})
	return nil
}

func (h *RealtimeHandler) HandleFrame(ctx context.Context, respond ResponseSender) error {
	scene := h.currentScene
	if scene == nil || h.camera == nil {
		return nil
	}

	var visible []uint32
	h.FeatureFlags.IfNotSet(featureflag.FlagDisableVisibleSet, func() {
		visible = models.EntityIDs(scene.Visible(*h.camera))
		slices.Sort(visible)
	})
	if visible == nil || slices.Equal(visible, h.lastVisible) {
		return nil
	}
	h.lastVisible = visible

	respond.Send(&VisibleSet{
		Header:    newHeader(MsgTypeVisibleSet, 0),
		EntityIDs: visible,
	})
	return nil
}

func (h *RealtimeHandler) Receiver() Receiver {
	return func() (Msg, int, error) {
		var data []byte
		if err := websocket.Message.Receive(h.conn, &data); err != nil {
			return Msg{}, 0, errors.New("receiving websocket message failed").Wrap(err)
		}

		msg, err := ParseMsg(data)
		return msg, len(data), err
	}
}

func (h *RealtimeHandler) Sender() Sender {
	return func(msg Msg) (int, error) {
		if err := websocket.Message.Send(h.conn, string(msg.Data)); err != nil {
			return 0, errors.New("sending websocket message failed").
				WithTag("msg_type", msg.Type).
				Wrap(err)
		}
		return len(msg.Data), nil
	}
}

func (h *RealtimeHandler) Close() {
}

func (h *RealtimeHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *RealtimeHandler) GetScenes() *models.SceneStore {
	return h.Scenes
}

func (h *RealtimeHandler) CurrentScene() *models.Scene {
	return h.currentScene
}

func (h *RealtimeHandler) CurrentParticipant() *models.Participant {
	return h.currentParticipant
}

func (h *RealtimeHandler) GetClientID() string {
	return h.clientID
}

func (h *RealtimeHandler) joined(msg Msg) (*models.Participant, *models.Scene, error) {
	participant := h.currentParticipant
	scene := h.currentScene
	if participant == nil || scene == nil {
		return nil, nil, errors.New("scene not joined").
			WithType(ErrTypeSceneNotJoined).
			WithTag("msg_type", msg.Type)
	}
	return participant, scene, nil
}

func (h *RealtimeHandler) leaveScene() {
	scene := h.currentScene
	participant := h.currentParticipant

	if participant == nil || scene == nil {
		return
	}

	for id := range participant.EntityIDs() {
		entity, ok := scene.EntityByID(id)
		if !ok || entity.Persist {
			continue
		}
		scene.RemoveEntity(entity)
	}

	if h.stopFrameHandling != nil {
		h.stopFrameHandling()
		h.stopFrameHandling = nil
	}
	scene.RemoveParticipant(participant)

	if scene.ParticipantCount() == 0 {
		h.Scenes.Remove(scene)
	}

	h.currentParticipant = nil
	h.currentScene = nil
	h.camera = nil
	h.lastVisible = nil
}
