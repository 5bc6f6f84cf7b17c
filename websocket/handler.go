package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/eihwaz/models"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

const (
	sendChanSize    = 512
	receiveChanSize = 64
)

// Receiver receives a message and returns the number of bytes read.
type Receiver func() (Msg, int, error)

// Sender sends a message and returns the number of bytes written.
type Sender func(Msg) (int, error)

// ResponseSender sends messages to the connected client.
type ResponseSender interface {
	Send(Message)
	SendMsg(Msg)
}

// Handler represents a realtime scene handler.
type Handler interface {
	// Handles a client connection.
	HandleConnect(conn *websocket.Conn)

	// Handles a request to join or create a scene. handleFrame is called by
	// the scene at each frame.
	HandleSceneJoin(ctx context.Context, handleFrame func(), respond ResponseSender, msg Msg) error

	// Handles a client's disconnection.
	HandleDisconnect(error)

	// Handles a request to place an entity in the scene.
	HandleEntityAdd(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to delete an entity.
	HandleEntityDelete(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles an entity pose update.
	HandleEntityUpdatePose(ctx context.Context, msg Msg) error

	// Handles a camera update.
	HandleCameraUpdate(ctx context.Context, msg Msg) error

	// Handles a request for the entities within a view frustum.
	HandleVisibleQuery(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request for the entities intersecting bounds.
	HandleCollidingQuery(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a scene frame.
	HandleFrame(ctx context.Context, respond ResponseSender) error

	// Creates a message receiver used to receive incoming messages.
	Receiver() Receiver

	// Creates a message sender passed in service methods in order to send
	// messages.
	Sender() Sender

	// Closes the service and releases its allocated resources.
	Close()

	// The time a client is idle before being disconnected.
	IdleTimeout() time.Duration

	// Returns the scene store.
	GetScenes() *models.SceneStore

	// The currently joined scene.
	CurrentScene() *models.Scene

	// The current participant.
	CurrentParticipant() *models.Participant

	// Get ClientID
	GetClientID() string
}

// Handle handles the given service.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	handler := handler{
		Conn:    conn,
		Handler: h,
	}

	handler.Handle(ctx)
}

type handler struct {
	// The WebSocket connection.
	Conn *websocket.Conn

	// The scene handler.
	Handler Handler

	sendChan       chan Msg
	sender         Sender
	receiveChan    chan Msg
	receiver       Receiver
	frameChan      chan struct{}
	disconnectChan chan error
}

func (h *handler) Handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.Handler.HandleConnect(h.Conn)

	h.disconnectChan = make(chan error, 8)
	defer func() {
		for len(h.disconnectChan) != 0 {
			<-h.disconnectChan
		}
	}()

	h.frameChan = make(chan struct{}, 1)

	var wg sync.WaitGroup

	h.sendChan = make(chan Msg, sendChanSize)
	h.sender = h.Handler.Sender()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startSending(ctx)
	}()

	h.receiveChan = make(chan Msg, receiveChanSize)
	h.receiver = h.Handler.Receiver()
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startReceiving(ctx)
	}()

	idleTimeout := h.Handler.IdleTimeout()
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

	var responder = responseSender{
		send:    h.send,
		sendMsg: h.sendMsg,
	}

	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
			h.disconnect(ctx.Err())

		case <-idleTimer.C:
			h.disconnect(errors.New("idle connection").WithTag("duration", h.Handler.IdleTimeout()))

		case <-h.frameChan:
			if err := h.Handler.HandleFrame(ctx, responder); err != nil {
				h.disconnect(errors.New("handling frame failed").Wrap(err))
			}

		case msg := <-h.receiveChan:
			idleTimer.Stop()
			idleTimer.Reset(idleTimeout)

			if err := h.handleMessage(ctx, msg, responder); err != nil {
				h.disconnect(errors.New("handling message failed").Wrap(err))
			}

		case err := <-h.disconnectChan:
			h.handleDisconnect(err)
			if ctx.Err() == nil {
				// cancel context so go routines can cleanly exit
				cancel()
			}
		}
	}

	wg.Wait()
}

// handleFrame is called from the scene frame loop. Frames are coalesced when
// the connection is busy.
func (h *handler) handleFrame() {
	select {
	case h.frameChan <- struct{}{}:
	default:
	}
}

func (h *handler) send(m Message) {
	msg, err := MsgFrom(m)
	if err != nil {
		logs.WithTag("message", m).
			WithClientID(h.Handler.GetClientID()).
			Debug(err)
		return
	}
	h.sendChan <- msg
}

func (h *handler) sendMsg(msg Msg) {
	h.sendChan <- msg
}

func (h *handler) startSending(ctx context.Context) {
	defer func() {
		for len(h.sendChan) != 0 {
			<-h.sendChan
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-h.sendChan:
			if _, err := h.sender(msg); err != nil {
				h.disconnect(errors.New("sending message failed").Wrap(err))
				return
			}
		}
	}
}

func (h *handler) startReceiving(ctx context.Context) {
	for {
		msg, _, err := h.receiver()
		if err != nil {
			h.disconnect(errors.New("receiving message failed").Wrap(err))
			return
		}

		select {
		case <-ctx.Done():
			return

		case h.receiveChan <- msg:
		}
	}
}

func (h *handler) handleMessage(ctx context.Context, msg Msg, responder ResponseSender) error {
	switch msg.Type {
	case MsgTypeSceneJoinRequest:
		return h.Handler.HandleSceneJoin(ctx, h.handleFrame, responder, msg)

	case MsgTypeEntityAddRequest:
		return h.Handler.HandleEntityAdd(ctx, responder, msg)

	case MsgTypeEntityDeleteRequest:
		return h.Handler.HandleEntityDelete(ctx, responder, msg)

	case MsgTypeEntityUpdatePose:
		return h.Handler.HandleEntityUpdatePose(ctx, msg)

	case MsgTypeCameraUpdate:
		return h.Handler.HandleCameraUpdate(ctx, msg)

	case MsgTypeVisibleQueryRequest:
		return h.Handler.HandleVisibleQuery(ctx, responder, msg)

	case MsgTypeCollidingQueryRequest:
		return h.Handler.HandleCollidingQuery(ctx, responder, msg)

	default:
		return nil
	}
}

func (h *handler) disconnect(err error) {
	select {
	case h.disconnectChan <- err:
	default:
	}
}

func (h *handler) handleDisconnect(err error) {
	h.Conn.Close()
	h.Handler.HandleDisconnect(err)
}

type responseSender struct {
	send    func(Message)
	sendMsg func(Msg)
}

func (r responseSender) Send(m Message) {
	r.send(m)
}

func (r responseSender) SendMsg(msg Msg) {
	r.sendMsg(msg)
}
