package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/eihwaz/models"
	"github.com/aukilabs/eihwaz/octree"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	httpcmn "github.com/aukilabs/hagall-common/http"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const testReceiveTimeout = time.Second * 5

// Creates a testing environement to unit test handlers.
func NewTestingEnv(t *testing.T, newHandler func() Handler) (*websocket.Conn, *websocket.Conn, func()) {
	var mutex sync.Mutex
	logger := t.Log

	logs.Encoder = func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	}

	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		if logger != nil {
			logger(e)
		}
	})

	errors.Encoder = json.Marshal

	clientA, clientB, close := newTestingEnv(t, newHandler)
	return clientA, clientB, func() {
		mutex.Lock()
		defer mutex.Unlock()
		logger = nil
		close()
	}
}

func newTestingEnv(t *testing.T, newHandler func() Handler) (*websocket.Conn, *websocket.Conn, func()) {
	server := httptest.NewServer(websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			handler := newHandler()
			defer handler.Close()

			Handle(context.Background(), conn, handler)
		},
	})

	newConn := func() *websocket.Conn {
		config, err := websocket.NewConfig(
			strings.ReplaceAll(server.URL, "http://", "ws://"),
			"http://localhost",
		)
		if err != nil {
			t.Fatalf("error initializing web socket: %s", err)
		}

		config.Header.Set("User-Agent", "ted")
		config.Header.Set("X-Forwarded-for", "192.0.0.0")
		config.Header.Set(httpcmn.HeaderPosemeshClientID, uuid.NewString())

		conn, err := websocket.DialConfig(config)
		if err != nil {
			t.Fatalf("error dialing web socket: %s", err)
		}

		return conn
	}

	clientA := newConn()
	clientB := newConn()

	return clientA, clientB, func() {
		clientA.Close()
		clientB.Close()
		server.Close()
	}
}

func newTestSceneConfig() models.SceneConfig {
	return models.SceneConfig{
		FrameDuration: time.Millisecond * 20,
		Octree: octree.Options{
			InitialSize: 100,
			Looseness:   1.25,
			MinNodeSize: 1,
			MaxObjects:  8,
		},
	}
}

func newTestHandler(options ...func(*RealtimeHandler)) func() Handler {
	sceneStore := &models.SceneStore{
		ServerID: "ted",
	}

	return func() Handler {
		rh := &RealtimeHandler{
			ClientIdleTimeout: time.Minute,
			SceneConfig:       newTestSceneConfig(),
			Scenes:            sceneStore,
		}
		for _, o := range options {
			o(rh)
		}

		var h Handler = rh
		h = HandlerWithLogs(h, time.Millisecond*100)
		h = HandlerWithMetrics(h, "https://auki-test.com")
		return h
	}
}

// SendTestMessage sends a message to the server.
func SendTestMessage(conn *websocket.Conn, m Message) error {
	msg, err := MsgFrom(m)
	if err != nil {
		return err
	}
	return websocket.Message.Send(conn, string(msg.Data))
}

// ReceiveTestMessage reads messages until one with the given type is received
// and decodes it into v.
func ReceiveTestMessage(conn *websocket.Conn, msgType MsgType, v any) error {
	if err := conn.SetReadDeadline(time.Now().Add(testReceiveTimeout)); err != nil {
		return err
	}
	defer conn.SetReadDeadline(time.Time{})

	for {
		var data []byte
		if err := websocket.Message.Receive(conn, &data); err != nil {
			return err
		}

		msg, err := ParseMsg(data)
		if err != nil {
			return err
		}

		if msg.Type == msgType {
			return msg.DataTo(v)
		}
	}
}
