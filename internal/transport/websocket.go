// Package transport exposes explorer sessions over WebSocket.
//
// Each connection owns one session. Input events arrive as JSON text or
// msgpack binary frames; the server answers every event with a "pointer"
// frame and streams render results as "result" frames, always in the
// codec the client used last.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/e7canasta/latent-explorer/internal/session"
	"github.com/e7canasta/latent-explorer/internal/types"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	// ReceiverID is the bus subscriber id of the WebSocket writer.
	ReceiverID = "websocket"
)

// Handler upgrades HTTP requests to explorer sessions.
type Handler struct {
	registry *session.Registry
	upgrader websocket.Upgrader
	active   atomic.Int64
}

// NewHandler creates a WebSocket handler. An empty origin list accepts
// same-origin requests only; "*" accepts any origin.
func NewHandler(registry *session.Registry, allowedOrigins []string) *Handler {
	h := &Handler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if len(allowedOrigins) > 0 {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		}
	}
	return h
}

// Active returns the number of open connections.
func (h *Handler) Active() int64 {
	return h.active.Load()
}

// ServeHTTP handles GET /ws.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess, err := h.registry.Create(ctx)
	if err != nil {
		slog.Error("failed to create session", "error", err)
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "session unavailable"),
			time.Now().Add(writeWait))
		ws.Close()
		return
	}
	defer h.registry.Remove(sess.ID())

	h.active.Add(1)
	defer h.active.Add(-1)

	c := &conn{ws: ws, sess: sess}
	slog.Info("websocket client connected", "session_id", sess.ID(), "remote", r.RemoteAddr)
	c.run()
	slog.Info("websocket client disconnected", "session_id", sess.ID())
}

// conn serializes writes to one WebSocket; gorilla allows a single
// concurrent writer.
type conn struct {
	ws    *websocket.Conn
	sess  *session.Session
	codec atomic.Int32

	writeMu sync.Mutex
}

func (c *conn) run() {
	defer c.ws.Close()

	recv, err := c.sess.Bus().SubscribeLatest(ReceiverID)
	if err != nil {
		slog.Error("failed to subscribe websocket writer", "session_id", c.sess.ID(), "error", err)
		return
	}

	enabled := c.sess.Enabled()
	if err := c.send(Message{Type: MsgSession, SessionID: c.sess.ID().String(), Enabled: &enabled}); err != nil {
		recv.Close()
		return
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)

	// Result writer: latest-wins, so a slow client skips intermediate
	// results instead of queueing them. Closing the socket on exit
	// unblocks readLoop when the session is closed server side.
	go func() {
		defer wg.Done()
		defer c.ws.Close()
		for {
			result, ok := recv.Receive()
			if !ok {
				return
			}
			if err := c.send(Message{Type: MsgResult, Result: &result}); err != nil {
				slog.Debug("websocket result write failed", "session_id", c.sess.ID(), "error", err)
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.writeMu.Lock()
				err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				c.writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	c.readLoop()

	close(done)
	recv.Close()
	wg.Wait()
}

func (c *conn) readLoop() {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		frameType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read failed", "session_id", c.sess.ID(), "error", err)
			}
			return
		}

		if err := c.dispatch(frameType, data); err != nil {
			return
		}
	}
}

// dispatch decodes one frame and applies it. Malformed frames are
// answered with an error message. A non-nil error ends the connection.
func (c *conn) dispatch(frameType int, data []byte) error {
	ev, codec, err := Decode(frameType, data)
	c.codec.Store(int32(codec))
	if err != nil {
		slog.Debug("dropping malformed event", "session_id", c.sess.ID(), "error", err)
		return c.send(Message{Type: MsgError, Error: err.Error()})
	}
	return c.handle(ev)
}

// handle applies one event and answers with local feedback. Events
// ignored by a closed gate produce no frame.
func (c *conn) handle(ev types.InputEvent) error {
	fb, err := c.sess.HandleEvent(ev)
	switch {
	case errors.Is(err, session.ErrInputDisabled):
		return nil
	case errors.Is(err, session.ErrSessionClosed):
		return err
	case err != nil:
		slog.Debug("event rejected", "session_id", c.sess.ID(), "event", ev.Kind, "error", err)
		return c.send(Message{Type: MsgError, Error: err.Error()})
	}
	return c.send(Message{Type: MsgPointer, Pointer: &fb})
}

func (c *conn) send(msg Message) error {
	frameType, data, err := Encode(Codec(c.codec.Load()), msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(frameType, data)
}
