package websocket

import (
	"time"

	"github.com/aukilabs/eihwaz/geometry"
	"github.com/aukilabs/eihwaz/models"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/golang/geo/r3"
	"github.com/segmentio/encoding/json"
)

// MsgType is the type of a realtime message.
type MsgType string

const (
	MsgTypeSceneJoinRequest       MsgType = "scene_join_request"
	MsgTypeSceneJoinResponse      MsgType = "scene_join_response"
	MsgTypeEntityAddRequest       MsgType = "entity_add_request"
	MsgTypeEntityAddResponse      MsgType = "entity_add_response"
	MsgTypeEntityDeleteRequest    MsgType = "entity_delete_request"
	MsgTypeEntityDeleteResponse   MsgType = "entity_delete_response"
	MsgTypeEntityUpdatePose       MsgType = "entity_update_pose"
	MsgTypeCameraUpdate           MsgType = "camera_update"
	MsgTypeVisibleQueryRequest    MsgType = "visible_query_request"
	MsgTypeVisibleQueryResponse   MsgType = "visible_query_response"
	MsgTypeCollidingQueryRequest  MsgType = "colliding_query_request"
	MsgTypeCollidingQueryResponse MsgType = "colliding_query_response"
	MsgTypeVisibleSet             MsgType = "visible_set"
	MsgTypeErrorResponse          MsgType = "error_response"
)

// ErrorCode is the code of an error response.
type ErrorCode string

const (
	ErrorCodeBadRequest          ErrorCode = "bad_request"
	ErrorCodeNotFound            ErrorCode = "not_found"
	ErrorCodeUnauthorized        ErrorCode = "unauthorized"
	ErrorCodeSceneAlreadyJoined  ErrorCode = "scene_already_joined"
	ErrorCodeEntityNotPlaced     ErrorCode = "entity_not_placed"
	ErrorCodeInternalServerError ErrorCode = "internal_server_error"
)

const (
	ErrTypeMsgInvalid     = "msg_invalid"
	ErrTypeSceneNotJoined = "scene_not_joined"
)

// Msg is a received or encoded message. Data holds the whole JSON document.
type Msg struct {
	Type MsgType
	Data []byte
}

// ParseMsg reads the type of a JSON message.
func ParseMsg(data []byte) (Msg, error) {
	var header Header
	if err := json.Unmarshal(data, &header); err != nil {
		return Msg{}, errors.New("decoding message header failed").
			WithType(ErrTypeMsgInvalid).
			Wrap(err)
	}

	if header.Type == "" {
		return Msg{}, errors.New("message has no type").
			WithType(ErrTypeMsgInvalid)
	}

	return Msg{
		Type: header.Type,
		Data: data,
	}, nil
}

// MsgFrom encodes the given message.
func MsgFrom(m Message) (Msg, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Msg{}, errors.New("encoding message failed").
			WithTag("msg_type", m.MsgType()).
			Wrap(err)
	}

	return Msg{
		Type: m.MsgType(),
		Data: data,
	}, nil
}

func (m Msg) TypeString() string {
	return string(m.Type)
}

// DataTo decodes the message into v.
func (m Msg) DataTo(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return errors.New("decoding message failed").
			WithType(ErrTypeMsgInvalid).
			WithTag("msg_type", m.Type).
			Wrap(err)
	}
	return nil
}

// Message is a message that can be sent to a client.
type Message interface {
	MsgType() MsgType
}

// Header contains the fields shared by every message.
type Header struct {
	Type      MsgType   `json:"type"`
	RequestID uint32    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func newHeader(t MsgType, requestID uint32) Header {
	return Header{
		Type:      t,
		RequestID: requestID,
		Timestamp: time.Now(),
	}
}

func (h Header) MsgType() MsgType {
	return h.Type
}

type SceneJoinRequest struct {
	Header

	// The global id of the scene to join. A new scene is created when empty.
	SceneID string `json:"scene_id,omitempty"`
}

type SceneJoinResponse struct {
	Header

	SceneID       string       `json:"scene_id"`
	SceneUUID     string       `json:"scene_uuid"`
	ParticipantID uint32       `json:"participant_id"`
	Entities      []EntityData `json:"entities,omitempty"`
}

type EntityAddRequest struct {
	Header

	Pose    models.Pose `json:"pose"`
	Bounds  BoundsData  `json:"bounds"`
	Persist bool        `json:"persist,omitempty"`
	Hidden  bool        `json:"hidden,omitempty"`
	NoCull  bool        `json:"no_cull,omitempty"`
}

type EntityAddResponse struct {
	Header

	EntityID uint32 `json:"entity_id"`
}

type EntityDeleteRequest struct {
	Header

	EntityID uint32 `json:"entity_id"`
}

type EntityDeleteResponse struct {
	Header

	EntityID uint32 `json:"entity_id"`
}

type EntityUpdatePose struct {
	Header

	EntityID uint32      `json:"entity_id"`
	Pose     models.Pose `json:"pose"`
}

// CameraUpdate sets the view-projection matrix used to push visible sets to
// the client at each frame. A null matrix stops the push.
type CameraUpdate struct {
	Header

	ViewProjection *[16]float64 `json:"view_projection"`
}

type VisibleQueryRequest struct {
	Header

	// A column-major view-projection matrix.
	ViewProjection [16]float64 `json:"view_projection"`
}

type VisibleQueryResponse struct {
	Header

	EntityIDs []uint32 `json:"entity_ids"`
}

type CollidingQueryRequest struct {
	Header

	Bounds BoundsData `json:"bounds"`
}

type CollidingQueryResponse struct {
	Header

	EntityIDs []uint32 `json:"entity_ids"`
}

// VisibleSet contains the sorted ids of the entities visible by the client
// camera. It is sent when the set changes.
type VisibleSet struct {
	Header

	EntityIDs []uint32 `json:"entity_ids"`
}

type ErrorResponse struct {
	Header

	Code ErrorCode `json:"code"`
}

func newErrorResponse(requestID uint32, code ErrorCode) *ErrorResponse {
	return &ErrorResponse{
		Header: newHeader(MsgTypeErrorResponse, requestID),
		Code:   code,
	}
}

type EntityData struct {
	ID            uint32      `json:"id"`
	ParticipantID uint32      `json:"participant_id"`
	Pose          models.Pose `json:"pose"`
	Bounds        BoundsData  `json:"bounds"`
	Persist       bool        `json:"persist,omitempty"`
	Hidden        bool        `json:"hidden,omitempty"`
	NoCull        bool        `json:"no_cull,omitempty"`
}

func entitiesData(entities []*models.Entity) []EntityData {
	res := make([]EntityData, len(entities))
	for i, e := range entities {
		res[i] = EntityData{
			ID:            e.ID,
			ParticipantID: e.ParticipantID,
			Pose:          e.Pose(),
			Bounds:        BoundsDataFrom(e.LocalBounds()),
			Persist:       e.Persist,
			Hidden:        !e.Visible(),
			NoCull:        e.NoCull(),
		}
	}
	return res
}

type SphereData struct {
	Center [3]float64 `json:"center"`
	Radius float64    `json:"radius"`
}

type BoxData struct {
	Min [3]float64 `json:"min"`
	Max [3]float64 `json:"max"`
}

// BoundsData is the wire representation of bounds. A box without a sphere
// gets its sphere derived from the box.
type BoundsData struct {
	Sphere *SphereData `json:"sphere,omitempty"`
	Box    *BoxData    `json:"box,omitempty"`
}

// BoundsDataFrom returns the wire representation of b. When b has a box, only
// the box is kept.
func BoundsDataFrom(b geometry.Bounds) BoundsData {
	if box, ok := b.Box(); ok {
		return BoundsData{
			Box: &BoxData{
				Min: vectorData(box.Min()),
				Max: vectorData(box.Max()),
			},
		}
	}

	if s, ok := b.Sphere(); ok {
		return BoundsData{
			Sphere: &SphereData{
				Center: vectorData(s.Center),
				Radius: s.Radius,
			},
		}
	}
	return BoundsData{}
}

func (d BoundsData) Bounds() geometry.Bounds {
	switch {
	case d.Sphere != nil && d.Box != nil:
		return geometry.NewBounds(d.Sphere.sphere(), d.Box.box())

	case d.Box != nil:
		return geometry.NewBoxBounds(d.Box.box())

	case d.Sphere != nil:
		return geometry.NewSphereBounds(d.Sphere.sphere())

	default:
		return geometry.Bounds{}
	}
}

func (d SphereData) sphere() geometry.BoundingSphere {
	return geometry.BoundingSphere{
		Center: vector(d.Center),
		Radius: d.Radius,
	}
}

func (d BoxData) box() geometry.BoundingBox {
	return geometry.NewBoundingBox(vector(d.Min), vector(d.Max))
}

func vector(v [3]float64) r3.Vector {
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

func vectorData(v r3.Vector) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}
