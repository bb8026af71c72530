package transport

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/e7canasta/latent-explorer/internal/session"
	"github.com/e7canasta/latent-explorer/internal/types"
)

// ErrUnsupportedFrame is returned for WebSocket frames that carry neither
// JSON text nor msgpack binary.
var ErrUnsupportedFrame = errors.New("transport: unsupported frame type")

// Codec is the wire encoding of a connection. Clients pick it implicitly:
// text frames are JSON, binary frames are msgpack.
type Codec int

const (
	CodecJSON Codec = iota
	CodecMsgpack
)

func (c Codec) String() string {
	if c == CodecMsgpack {
		return "msgpack"
	}
	return "json"
}

// Server message types.
const (
	MsgSession = "session"
	MsgResult  = "result"
	MsgPointer = "pointer"
	MsgError   = "error"
)

// Message is one server to client frame.
type Message struct {
	Type      string              `json:"type" msgpack:"type"`
	SessionID string              `json:"session_id,omitempty" msgpack:"session_id,omitempty"`
	Enabled   *bool               `json:"enabled,omitempty" msgpack:"enabled,omitempty"`
	Result    *types.RenderResult `json:"result,omitempty" msgpack:"result,omitempty"`
	Pointer   *session.Feedback   `json:"pointer,omitempty" msgpack:"pointer,omitempty"`
	Error     string              `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Decode parses a client frame into an input event and reports the codec
// it was written in.
func Decode(frameType int, data []byte) (types.InputEvent, Codec, error) {
	var ev types.InputEvent
	switch frameType {
	case websocket.TextMessage:
		if err := json.Unmarshal(data, &ev); err != nil {
			return ev, CodecJSON, fmt.Errorf("decode json event: %w", err)
		}
		return ev, CodecJSON, nil
	case websocket.BinaryMessage:
		if err := msgpack.Unmarshal(data, &ev); err != nil {
			return ev, CodecMsgpack, fmt.Errorf("decode msgpack event: %w", err)
		}
		return ev, CodecMsgpack, nil
	default:
		return ev, CodecJSON, fmt.Errorf("%w: %d", ErrUnsupportedFrame, frameType)
	}
}

// Encode serializes msg in the given codec and returns the matching
// WebSocket frame type.
func Encode(c Codec, msg Message) (int, []byte, error) {
	if c == CodecMsgpack {
		data, err := msgpack.Marshal(&msg)
		if err != nil {
			return 0, nil, fmt.Errorf("encode msgpack message: %w", err)
		}
		return websocket.BinaryMessage, data, nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return 0, nil, fmt.Errorf("encode json message: %w", err)
	}
	return websocket.TextMessage, data, nil
}
