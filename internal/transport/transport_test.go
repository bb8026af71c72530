package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/e7canasta/latent-explorer/internal/mapper2d"
	"github.com/e7canasta/latent-explorer/internal/scene3d"
	"github.com/e7canasta/latent-explorer/internal/session"
	"github.com/e7canasta/latent-explorer/internal/types"
	"github.com/e7canasta/latent-explorer/modules/renderpipeline"
)

func TestDecode(t *testing.T) {
	ev := types.InputEvent{Kind: types.EventPointerMove, X: 10, Y: 20, Rect: types.Rect{Width: 100, Height: 50}}
	packed, err := msgpack.Marshal(&ev)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		frameType int
		data      []byte
		wantCodec Codec
		wantErr   bool
	}{
		{"json", websocket.TextMessage, []byte(`{"type":"pointer_move","x":10,"y":20,"rect":{"x":0,"y":0,"width":100,"height":50}}`), CodecJSON, false},
		{"msgpack", websocket.BinaryMessage, packed, CodecMsgpack, false},
		{"bad json", websocket.TextMessage, []byte(`{"type":`), CodecJSON, true},
		{"bad msgpack", websocket.BinaryMessage, []byte{0xc1}, CodecMsgpack, true},
		{"ping frame", websocket.PingMessage, nil, CodecJSON, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, codec, err := Decode(tt.frameType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() err = %v, wantErr %v", err, tt.wantErr)
			}
			if codec != tt.wantCodec {
				t.Errorf("codec = %s, want %s", codec, tt.wantCodec)
			}
			if !tt.wantErr && got != ev {
				t.Errorf("Decode() = %+v, want %+v", got, ev)
			}
		})
	}

	if _, _, err := Decode(websocket.PingMessage, nil); !errors.Is(err, ErrUnsupportedFrame) {
		t.Errorf("err = %v, want ErrUnsupportedFrame", err)
	}
}

func TestEncodeShape(t *testing.T) {
	c := types.NewCoordinate2D(0.5, -0.5)
	msg := Message{Type: MsgResult, Result: &types.RenderResult{ImageRef: "img", Coordinate: &c}}

	frameType, data, err := Encode(CodecJSON, msg)
	if err != nil {
		t.Fatal(err)
	}
	if frameType != websocket.TextMessage {
		t.Errorf("frame type = %d, want text", frameType)
	}
	want := `{"type":"result","result":{"image_ref":"img","loading":false,"coordinate":{"x":0.5,"y":-0.5}}}`
	if string(data) != want {
		t.Errorf("json = %s\nwant  %s", data, want)
	}

	frameType, data, err = Encode(CodecMsgpack, msg)
	if err != nil {
		t.Fatal(err)
	}
	if frameType != websocket.BinaryMessage {
		t.Errorf("frame type = %d, want binary", frameType)
	}
	var back Message
	if err := msgpack.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Type != MsgResult || back.Result == nil || back.Result.ImageRef != "img" || !back.Result.Coordinate.Equal(c) {
		t.Errorf("msgpack round trip = %+v", back)
	}
}

type nopSurface struct{}

func (nopSurface) SetOrientation(quat.Number) {}
func (nopSurface) SetCamera(float64) {}
func (nopSurface) SetIndicator(r3.Vec, bool) {}
func (nopSurface) Render() error { return nil }
func (nopSurface) EncodePNG(w io.Writer) error { return nil }
func (nopSurface) Dispose() error { return nil }

func newServer(t *testing.T) (*httptest.Server, *session.Registry, *Handler) {
	t.Helper()

	arena := scene3d.NewArena(scene3d.SceneConfig{
		Controller: scene3d.DefaultOptions(),
		Width:      16,
		Height:     16,
		FPS:        20,
	}, func(scene3d.SceneConfig) scene3d.Surface { return nopSurface{} })

	fetch := renderpipeline.FetcherFunc(func(_ context.Context, c types.Coordinate) (string, error) {
		return "img:" + c.String(), nil
	})
	reg := session.NewRegistry(session.Config{
		Mapper:   mapper2d.DefaultOptions(),
		Pipeline: renderpipeline.Config{Debounce: 10 * time.Millisecond},
		Fetcher:  fetch,
	}, arena, true)

	h := NewHandler(reg, nil)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		reg.Close()
		arena.Close()
	})
	return srv, reg, h
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ws.Close() })
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	return ws
}

func readJSON(t *testing.T, ws *websocket.Conn) Message {
	t.Helper()
	frameType, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if frameType != websocket.TextMessage {
		t.Fatalf("frame type = %d, want text", frameType)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestWebSocketJSONSession(t *testing.T) {
	srv, reg, _ := newServer(t)
	ws := dial(t, srv)

	hello := readJSON(t, ws)
	if hello.Type != MsgSession || hello.SessionID == "" || hello.Enabled == nil || !*hello.Enabled {
		t.Fatalf("hello = %+v", hello)
	}
	if reg.Len() != 1 {
		t.Errorf("registry holds %d sessions, want 1", reg.Len())
	}

	rect := types.Rect{Width: 100, Height: 100}
	for _, ev := range []types.InputEvent{
		{Kind: types.EventPointerEnter},
		{Kind: types.EventPointerMove, X: 50, Y: 50, Rect: rect},
	} {
		if err := ws.WriteJSON(ev); err != nil {
			t.Fatal(err)
		}
	}

	var pointers int
	for {
		msg := readJSON(t, ws)
		switch msg.Type {
		case MsgPointer:
			pointers++
		case MsgResult:
			if msg.Result.ImageRef == "" {
				continue
			}
			if msg.Result.ImageRef != "img:X: 0.000, Y: 0.000" {
				t.Errorf("image = %q", msg.Result.ImageRef)
			}
			if pointers == 0 {
				t.Error("no pointer feedback before the image")
			}
			return
		default:
			t.Fatalf("unexpected message %+v", msg)
		}
	}
}

func TestWebSocketMsgpackSwitchesCodec(t *testing.T) {
	srv, _, _ := newServer(t)
	ws := dial(t, srv)
	readJSON(t, ws)

	ev := types.InputEvent{Kind: types.EventZoomIn}
	data, err := msgpack.Marshal(&ev)
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.Fatal(err)
	}

	frameType, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if frameType != websocket.BinaryMessage {
		t.Fatalf("frame type = %d, want binary", frameType)
	}
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != MsgPointer || msg.Pointer == nil || msg.Pointer.Transform == nil || msg.Pointer.Transform.Zoom <= 1 {
		t.Errorf("pointer = %+v", msg)
	}
}

func writeMsgpack(t *testing.T, ws *websocket.Conn, ev types.InputEvent) {
	t.Helper()
	data, err := msgpack.Marshal(&ev)
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.Fatal(err)
	}
}

// readMsgpackType skips frames until one of the wanted type arrives.
func readMsgpackType(t *testing.T, ws *websocket.Conn, want string) Message {
	t.Helper()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		var msg Message
		if err := msgpack.Unmarshal(data, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Type == want {
			return msg
		}
	}
}

func TestWebSocketNonFinitePointerRejected(t *testing.T) {
	srv, _, _ := newServer(t)
	ws := dial(t, srv)
	readJSON(t, ws)

	rect := types.Rect{Width: 100, Height: 100}
	writeMsgpack(t, ws, types.InputEvent{Kind: types.EventPointerEnter})
	readMsgpackType(t, ws, MsgPointer)

	writeMsgpack(t, ws, types.InputEvent{Kind: types.EventPointerMove, X: math.NaN(), Y: 50, Rect: rect})
	msg := readMsgpackType(t, ws, MsgError)
	if !strings.Contains(msg.Error, "invalid pointer state") {
		t.Errorf("error = %q", msg.Error)
	}

	writeMsgpack(t, ws, types.InputEvent{Kind: types.EventPointerMove, X: 50, Y: 50, Rect: rect})
	msg = readMsgpackType(t, ws, MsgPointer)
	if msg.Pointer == nil || !msg.Pointer.Hit || msg.Pointer.Transform == nil || msg.Pointer.Transform.Offset != (types.Point{}) {
		t.Errorf("pointer after rejected move = %+v", msg.Pointer)
	}
}

func TestMalformedFrameOnDeadSocketEndsConnection(t *testing.T) {
	_, reg, _ := newServer(t)
	sess, err := reg.Create(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	upgraded := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		upgraded <- ws
	}))
	defer srv.Close()
	dial(t, srv)

	var server *websocket.Conn
	select {
	case server = <-upgraded:
	case <-time.After(5 * time.Second):
		t.Fatal("server side never upgraded")
	}

	c := &conn{ws: server, sess: sess}
	if err := c.dispatch(websocket.TextMessage, []byte(`{"type":`)); err != nil {
		t.Fatalf("malformed frame on live socket: %v", err)
	}

	server.Close()
	if err := c.dispatch(websocket.TextMessage, []byte(`{"type":`)); err == nil {
		t.Error("malformed frame on closed socket returned nil")
	}
}

func TestWebSocketRejectedEvent(t *testing.T) {
	srv, _, _ := newServer(t)
	ws := dial(t, srv)
	readJSON(t, ws)

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"pinch"}`)); err != nil {
		t.Fatal(err)
	}
	msg := readJSON(t, ws)
	if msg.Type != MsgError || !strings.Contains(msg.Error, "unknown event") {
		t.Errorf("msg = %+v", msg)
	}
}

func TestWebSocketDisconnectRemovesSession(t *testing.T) {
	srv, reg, h := newServer(t)
	ws := dial(t, srv)
	readJSON(t, ws)

	ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for reg.Len() != 0 || h.Active() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sessions = %d, active = %d after disconnect", reg.Len(), h.Active())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCheckOrigin(t *testing.T) {
	h := NewHandler(nil, []string{"https://app.example"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://app.example", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := h.upgrader.CheckOrigin(r); got != tt.want {
			t.Errorf("CheckOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
