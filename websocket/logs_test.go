package websocket

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/eihwaz/models"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/stretchr/testify/require"
)

type logRecorder struct {
	mutex   sync.Mutex
	entries []logs.Entry
}

func recordLogs(t *testing.T) *logRecorder {
	r := &logRecorder{}
	logs.SetLogger(func(e logs.Entry) {
		r.mutex.Lock()
		defer r.mutex.Unlock()
		r.entries = append(r.entries, e)
	})
	t.Cleanup(func() {
		logs.SetLogger(func(logs.Entry) {})
	})
	return r
}

// find returns the last entry containing the given text.
func (r *logRecorder) find(text string) (logs.Entry, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i := len(r.entries) - 1; i >= 0; i-- {
		if strings.Contains(r.entries[i].String(), text) {
			return r.entries[i], true
		}
	}
	return nil, false
}

func newLoggedSceneHandler(t *testing.T) (*handlerWithLogs, *RealtimeHandler) {
	rh := &RealtimeHandler{
		ClientIdleTimeout: time.Minute,
		SceneConfig:       newTestSceneConfig(),
		Scenes:            &models.SceneStore{ServerID: "bob"},
		clientID:          "bob-client",
	}

	h := HandlerWithLogs(rh, time.Minute).(*handlerWithLogs)
	t.Cleanup(h.Close)
	return h, rh
}

func joinSceneWithHandler(t *testing.T, h Handler, sceneID string) []Message {
	var responses []Message
	respond := responseSender{
		send:    func(m Message) { responses = append(responses, m) },
		sendMsg: func(Msg) {},
	}

	msg, err := MsgFrom(&SceneJoinRequest{
		Header:  newHeader(MsgTypeSceneJoinRequest, 7),
		SceneID: sceneID,
	})
	require.NoError(t, err)

	err = h.HandleSceneJoin(context.Background(), func() {}, respond, msg)
	require.NoError(t, err)
	return responses
}

func TestHandlerWithLogsSceneJoin(t *testing.T) {
	t.Run("join tags the following logs with the scene", func(t *testing.T) {
		records := recordLogs(t)
		h, rh := newLoggedSceneHandler(t)

		responses := joinSceneWithHandler(t, h, "")
		require.Len(t, responses, 1)
		res, ok := responses[0].(*SceneJoinResponse)
		require.True(t, ok)

		scene := rh.CurrentScene()
		require.NotNil(t, scene)
		require.Equal(t, "bobx1", res.SceneID)
		require.Equal(t, "bobx1", h.sceneID)
		require.Equal(t, scene.UUID, h.sceneUUID)
		require.Equal(t, res.ParticipantID, h.participantID)

		e, ok := records.find("participant joined a scene")
		require.True(t, ok)
		require.Equal(t, "bobx1", e.Tags()[sceneIDTag])
		require.Equal(t, scene.UUID, e.Tags()[sceneUUIDTag])
		require.Equal(t, "bob-client", e.Tags()[logs.ClientIDTag])

		h.HandleDisconnect(nil)
		require.Nil(t, rh.CurrentScene())

		_, ok = rh.Scenes.GetByGlobalID("bobx1")
		require.False(t, ok)

		e, ok = records.find("client disconnected")
		require.True(t, ok)
		require.Equal(t, "bobx1", e.Tags()[sceneIDTag])
		require.Equal(t, scene.UUID, e.Tags()[sceneUUIDTag])
	})

	t.Run("failed join logs the requested scene", func(t *testing.T) {
		records := recordLogs(t)
		h, rh := newLoggedSceneHandler(t)

		responses := joinSceneWithHandler(t, h, "bobxff")
		require.Len(t, responses, 1)
		res, ok := responses[0].(*ErrorResponse)
		require.True(t, ok)
		require.Equal(t, ErrorCodeNotFound, res.Code)
		require.Nil(t, rh.CurrentScene())
		require.Empty(t, h.sceneID)

		e, ok := records.find("participant failed to join a scene")
		require.True(t, ok)
		require.Equal(t, "bobxff", e.Tags()[sceneIDTag])
		require.NotContains(t, e.Tags(), sceneUUIDTag)
	})
}

func TestHandlerWithLogsLogSummary(t *testing.T) {
	records := recordLogs(t)
	h, _ := newLoggedSceneHandler(t)
	joinSceneWithHandler(t, h, "")

	h.incCounter(string(MsgTypeCameraUpdate))
	h.incCounter(string(MsgTypeCameraUpdate))
	h.incCounter(string(MsgTypeEntityUpdatePose))
	require.Equal(t, 2, h.counter[string(MsgTypeCameraUpdate)])

	h.logSummary()
	require.Empty(t, h.counter)

	e, ok := records.find("inbound message summary")
	require.True(t, ok)
	require.Equal(t, "bobx1", e.Tags()[sceneIDTag])
	require.Equal(t, h.sceneUUID, e.Tags()[sceneUUIDTag])
	require.Equal(t, 2, e.Tags()[string(MsgTypeCameraUpdate)])
	require.Equal(t, 1, e.Tags()[string(MsgTypeEntityUpdatePose)])

	h.HandleDisconnect(nil)
}

func TestHandlerWithLogsStartSummaryWorker(t *testing.T) {
	summaries := make(chan logs.Entry, 1)
	logs.SetLogger(func(e logs.Entry) {
		if !strings.Contains(e.String(), "inbound message summary") {
			return
		}

		select {
		case summaries <- e:
		default:
		}
	})
	t.Cleanup(func() {
		logs.SetLogger(func(logs.Entry) {})
	})

	h := HandlerWithLogs(&RealtimeHandler{}, time.Millisecond).(*handlerWithLogs)
	defer h.Close()

	// Summaries are only logged once a message is counted.
	h.incCounter(string(MsgTypeVisibleQueryRequest))

	select {
	case e := <-summaries:
		require.Equal(t, 1, e.Tags()[string(MsgTypeVisibleQueryRequest)])

	case <-time.After(time.Second * 5):
		t.Fatal("no summary logged")
	}
}
