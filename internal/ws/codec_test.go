package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"nhooyr.io/websocket"

	"github.com/youngZwiebelandtheGemuseBeat/online_jigsaw_puzzle/server/internal/game"
)

func TestRequestCommand(t *testing.T) {
	id := 3
	pos := &game.Vec3{X: 1, Y: 2, Z: 3}
	cases := []struct {
		name    string
		req     request
		want    game.Command
		wantErr bool
	}{
		{"pick up", request{T: "pickUpRequest", M: payload{PieceID: &id}},
			game.Command{Kind: game.CommandPickUp, PieceID: 3}, false},
		{"drag", request{T: "dragToRequest", M: payload{PieceID: &id, Position: pos}},
			game.Command{Kind: game.CommandDragTo, PieceID: 3, Position: *pos}, false},
		{"drop", request{T: "dropRequest", M: payload{PieceID: &id, Position: pos}},
			game.Command{Kind: game.CommandDrop, PieceID: 3, Position: *pos}, false},
		{"cursor", request{T: "cursor", M: payload{X: 0.5, Y: -1}},
			game.Command{Kind: game.CommandCursor, Cursor: game.Vec2{X: 0.5, Y: -1}}, false},
		{"missing piece", request{T: "pickUpRequest"}, game.Command{}, true},
		{"missing position", request{T: "dropRequest", M: payload{PieceID: &id}}, game.Command{}, true},
		{"unknown", request{T: "rotate", M: payload{PieceID: &id}}, game.Command{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.req.command()
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrBadRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestJSONCodecDecode(t *testing.T) {
	c := codecFor("")
	assert.Equal(t, "json", c.Name())
	assert.Equal(t, websocket.MessageText, c.MessageType())

	req, err := c.Decode([]byte(`{"t":"dragToRequest","m":{"pieceId":7,"position":{"x":1.5,"y":0,"z":-2}}}`))
	require.NoError(t, err)
	cmd, err := req.command()
	require.NoError(t, err)
	assert.Equal(t, game.Command{Kind: game.CommandDragTo, PieceID: 7, Position: game.Vec3{X: 1.5, Z: -2}}, cmd)

	_, err = c.Decode([]byte(`{"t":`))
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = c.Decode([]byte(`{"t":"pickUpRequest","m":{"pieceId":1.5}}`))
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestMsgpackCodecUsesJSONFieldNames(t *testing.T) {
	c := codecFor("msgpack")
	assert.Equal(t, "msgpack", c.Name())
	assert.Equal(t, websocket.MessageBinary, c.MessageType())

	in, err := msgpack.Marshal(map[string]interface{}{
		"t": "dropRequest",
		"m": map[string]interface{}{"pieceId": 2, "position": map[string]interface{}{"x": 1.0, "y": 0.0, "z": 4.0}},
	})
	require.NoError(t, err)
	req, err := c.Decode(in)
	require.NoError(t, err)
	cmd, err := req.command()
	require.NoError(t, err)
	assert.Equal(t, game.Command{Kind: game.CommandDrop, PieceID: 2, Position: game.Vec3{X: 1, Z: 4}}, cmd)

	out, err := c.Encode(Msg{T: msgDelta, M: game.Delta{Left: []string{"s1"}}})
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, msgpack.Unmarshal(out, &decoded))
	assert.Equal(t, "delta", decoded["t"])
	m, ok := decoded["m"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"s1"}, m["left"])
	assert.NotContains(t, m, "pieces")
	assert.NotContains(t, m, "Accepted")
}
