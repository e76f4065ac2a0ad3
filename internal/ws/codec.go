package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"nhooyr.io/websocket"

	"github.com/youngZwiebelandtheGemuseBeat/online_jigsaw_puzzle/server/internal/game"
)

// ---------- message envelope ----------

// Msg is the envelope for every frame in both directions.
type Msg struct {
	T string      `json:"t"`           // type
	M interface{} `json:"m,omitempty"` // payload
}

// server -> client
const (
	msgJoined   = "joined"
	msgSnapshot = "snapshot"
	msgDelta    = "delta"
	msgError    = "error"
)

// client -> server, besides the game.CommandKind values
const msgResync = "resync"

// error codes
const (
	codeRoomUnavailable = "ROOM_UNAVAILABLE"
	codeRoomFull        = "ROOM_FULL"
	codeBadRequest      = "BAD_REQUEST"
)

func errorMsg(code string) Msg {
	return Msg{T: msgError, M: map[string]interface{}{"code": code}}
}

var ErrBadRequest = errors.New("ws: malformed request")

// request is the decoded form of an inbound frame.
type request struct {
	T string  `json:"t"`
	M payload `json:"m"`
}

type payload struct {
	PieceID  *int       `json:"pieceId"`
	Position *game.Vec3 `json:"position"`
	X        float64    `json:"x"`
	Y        float64    `json:"y"`
}

// command converts a piece or cursor request into a game command.
func (r request) command() (game.Command, error) {
	kind := game.CommandKind(r.T)
	switch kind {
	case game.CommandCursor:
		return game.Command{Kind: kind, Cursor: game.Vec2{X: r.M.X, Y: r.M.Y}}, nil
	case game.CommandPickUp, game.CommandDragTo, game.CommandDrop:
	default:
		return game.Command{}, fmt.Errorf("%w: unknown type %q", ErrBadRequest, r.T)
	}
	if r.M.PieceID == nil {
		return game.Command{}, fmt.Errorf("%w: %s without pieceId", ErrBadRequest, r.T)
	}
	cmd := game.Command{Kind: kind, PieceID: *r.M.PieceID}
	if kind != game.CommandPickUp {
		if r.M.Position == nil {
			return game.Command{}, fmt.Errorf("%w: %s without position", ErrBadRequest, r.T)
		}
		cmd.Position = *r.M.Position
	}
	return cmd, nil
}

// ---------- codecs ----------

// codec turns envelopes into websocket frames and back.
type codec interface {
	Name() string
	MessageType() websocket.MessageType
	Encode(Msg) ([]byte, error)
	Decode([]byte) (request, error)
}

func codecFor(name string) codec {
	if name == "msgpack" {
		return msgpackCodec{}
	}
	return jsonCodec{}
}

type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) MessageType() websocket.MessageType { return websocket.MessageText }

func (jsonCodec) Encode(m Msg) ([]byte, error) { return json.Marshal(m) }

func (jsonCodec) Decode(b []byte) (request, error) {
	var r request
	if err := json.Unmarshal(b, &r); err != nil {
		return request{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return r, nil
}

// msgpackCodec reuses the json struct tags so both encodings share field names.
type msgpackCodec struct{}

func (msgpackCodec) Name() string                       { return "msgpack" }
func (msgpackCodec) MessageType() websocket.MessageType { return websocket.MessageBinary }

func (msgpackCodec) Encode(m Msg) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Decode(b []byte) (request, error) {
	var r request
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(&r); err != nil {
		return request{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return r, nil
}
