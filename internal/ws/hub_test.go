package ws

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"nhooyr.io/websocket"

	"github.com/youngZwiebelandtheGemuseBeat/online_jigsaw_puzzle/server/internal/game"
	"github.com/youngZwiebelandtheGemuseBeat/online_jigsaw_puzzle/server/internal/metrics"
)

type envelope struct {
	T string          `json:"t"`
	M json.RawMessage `json:"m"`
}

func solvedRooms(maxSessions int) func(string) (game.Engine, error) {
	return func(id string) (game.Engine, error) {
		return game.NewRoom(game.RoomOptions{
			ID:          id,
			ImageURL:    "/images/puzzle.jpg",
			Cols:        2,
			Rows:        2,
			MaxSessions: maxSessions,
			Geometry:    game.DefaultGeometry(),
			Layout:      game.LayoutSolved,
			Rand:        rand.New(rand.NewSource(1)),
		})
	}
}

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *Hub) {
	t.Helper()
	if opts.NewRoom == nil {
		opts.NewRoom = solvedRooms(4)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(prometheus.NewRegistry())
	}
	hub := NewHub(opts)
	r := chi.NewRouter()
	hub.Mount(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, m interface{}) {
	t.Helper()
	b, err := json.Marshal(Msg{T: typ, M: m})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, b))
}

func next(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, b, err := conn.Read(ctx)
	require.NoError(t, err)
	var e envelope
	require.NoError(t, json.Unmarshal(b, &e))
	return e
}

func expect(t *testing.T, conn *websocket.Conn, typ string, into interface{}) {
	t.Helper()
	e := next(t, conn)
	require.Equal(t, typ, e.T, "payload: %s", e.M)
	if into != nil {
		require.NoError(t, json.Unmarshal(e.M, into))
	}
}

// join dials a room and consumes the joined and snapshot frames.
func join(t *testing.T, srv *httptest.Server, room string) (*websocket.Conn, string, game.Snapshot) {
	t.Helper()
	conn := dial(t, srv, "/ws/"+room)
	var joined struct {
		SessionID string `json:"sessionId"`
		Room      string `json:"room"`
	}
	expect(t, conn, msgJoined, &joined)
	require.NotEmpty(t, joined.SessionID)
	require.Equal(t, room, joined.Room)
	var snap game.Snapshot
	expect(t, conn, msgSnapshot, &snap)
	return conn, joined.SessionID, snap
}

func TestJoinSendsSnapshot(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	_, _, snap := join(t, srv, "alpha")

	assert.Equal(t, "alpha", snap.RoomID)
	assert.Equal(t, 2, snap.Rows)
	assert.Equal(t, 2, snap.Cols)
	assert.Len(t, snap.Pieces, 4)
	assert.Len(t, snap.Groups, 4)
	assert.Len(t, snap.Sessions, 1)
	assert.Equal(t, "/images/puzzle.jpg", snap.ImageURL)
}

func TestDropSnapsAndBroadcasts(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	a, aID, snap := join(t, srv, "beta")
	b, _, _ := join(t, srv, "beta")
	var joinedDelta game.Delta
	expect(t, a, msgDelta, &joinedDelta)
	require.Len(t, joinedDelta.Sessions, 1)

	send(t, a, "pickUpRequest", map[string]int{"pieceId": 0})
	for _, conn := range []*websocket.Conn{a, b} {
		var d game.Delta
		expect(t, conn, msgDelta, &d)
		require.Len(t, d.Pieces, 1)
		assert.Equal(t, aID, d.Pieces[0].HeldBy)
	}

	pos := snap.Pieces[0].Position
	pos.X += 0.2
	pos.Z -= 0.1
	send(t, a, "dropRequest", map[string]interface{}{"pieceId": 0, "position": pos})
	for _, conn := range []*websocket.Conn{a, b} {
		var d game.Delta
		expect(t, conn, msgDelta, &d)
		require.NotNil(t, d.Snap)
		assert.Equal(t, 0, d.Snap.Piece)
		assert.Equal(t, game.Right, d.Snap.Direction)
		assert.Equal(t, 1, d.Snap.Partner)
		assert.Equal(t, map[game.GroupID][]int{0: {0, 1}}, d.Groups)
		assert.Equal(t, []game.GroupID{1}, d.Removed)
		for _, p := range d.Pieces {
			assert.Empty(t, p.HeldBy)
			assert.Equal(t, game.GroupID(0), p.Group)
		}
	}
}

func TestRejectedRequestsAreSilent(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	a, aID, _ := join(t, srv, "gamma")
	b, _, _ := join(t, srv, "gamma")
	expect(t, a, msgDelta, nil)

	send(t, a, "pickUpRequest", map[string]int{"pieceId": 2})
	expect(t, a, msgDelta, nil)
	expect(t, b, msgDelta, nil)

	send(t, b, "pickUpRequest", map[string]int{"pieceId": 2})
	send(t, b, "dragToRequest", map[string]interface{}{"pieceId": 2, "position": game.Vec3{X: 9}})
	send(t, b, "resync", nil)

	var snap game.Snapshot
	expect(t, b, msgSnapshot, &snap)
	assert.Equal(t, aID, snap.Pieces[2].HeldBy)
	assert.NotEqual(t, 9.0, snap.Pieces[2].Position.X)
}

func TestDisconnectReleasesHeldPiece(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	a, aID, _ := join(t, srv, "delta")
	b, _, _ := join(t, srv, "delta")
	expect(t, a, msgDelta, nil)

	send(t, a, "pickUpRequest", map[string]int{"pieceId": 3})
	expect(t, b, msgDelta, nil)

	require.NoError(t, a.Close(websocket.StatusNormalClosure, "bye"))

	var d game.Delta
	expect(t, b, msgDelta, &d)
	assert.Equal(t, []string{aID}, d.Left)
	require.Len(t, d.Pieces, 1)
	assert.Equal(t, 3, d.Pieces[0].ID)
	assert.Empty(t, d.Pieces[0].HeldBy)

	send(t, b, "pickUpRequest", map[string]int{"pieceId": 3})
	expect(t, b, msgDelta, &d)
	assert.NotEmpty(t, d.Pieces[0].HeldBy)
}

func TestRoomFull(t *testing.T) {
	srv, _ := newTestServer(t, Options{NewRoom: solvedRooms(1)})
	join(t, srv, "full")

	conn := dial(t, srv, "/ws/full")
	var body map[string]string
	expect(t, conn, msgError, &body)
	assert.Equal(t, codeRoomFull, body["code"])
}

func TestRoomUnavailable(t *testing.T) {
	srv, hub := newTestServer(t, Options{NewRoom: func(string) (game.Engine, error) {
		return nil, errors.New("generation failed")
	}})
	conn := dial(t, srv, "/ws/broken")
	var body map[string]string
	expect(t, conn, msgError, &body)
	assert.Equal(t, codeRoomUnavailable, body["code"])

	hub.roomsMu.Lock()
	defer hub.roomsMu.Unlock()
	assert.Empty(t, hub.rooms)
	assert.Empty(t, hub.pending)
}

func TestRoomDisposedAfterLastLeave(t *testing.T) {
	srv, hub := newTestServer(t, Options{})
	a, _, _ := join(t, srv, "epsilon")

	res, err := http.Get(srv.URL + "/rooms")
	require.NoError(t, err)
	var listing struct {
		List []roomInfo `json:"list"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&listing))
	res.Body.Close()
	require.Len(t, listing.List, 1)
	assert.Equal(t, roomInfo{ID: "epsilon", Game: "jigsaw", Occupied: 1}, listing.List[0])

	require.NoError(t, a.Close(websocket.StatusNormalClosure, ""))
	assert.Eventually(t, func() bool {
		hub.roomsMu.Lock()
		defer hub.roomsMu.Unlock()
		return len(hub.rooms) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMalformedRequest(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	a, _, _ := join(t, srv, "zeta")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Write(ctx, websocket.MessageText, []byte("{nope")))
	var body map[string]string
	expect(t, a, msgError, &body)
	assert.Equal(t, codeBadRequest, body["code"])

	send(t, a, "dropRequest", map[string]int{"pieceId": 0})
	expect(t, a, msgError, &body)
	assert.Equal(t, codeBadRequest, body["code"])
}

func TestDragRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, Options{DragRate: 0.001, DragBurst: 1})
	a, _, _ := join(t, srv, "eta")

	send(t, a, "pickUpRequest", map[string]int{"pieceId": 0})
	expect(t, a, msgDelta, nil)

	send(t, a, "dragToRequest", map[string]interface{}{"pieceId": 0, "position": game.Vec3{X: 1}})
	var d game.Delta
	expect(t, a, msgDelta, &d)
	assert.Equal(t, 1.0, d.Pieces[0].Position.X)

	send(t, a, "dragToRequest", map[string]interface{}{"pieceId": 0, "position": game.Vec3{X: 2}})
	send(t, a, "dropRequest", map[string]interface{}{"pieceId": 0, "position": game.Vec3{X: 3}})
	expect(t, a, msgDelta, &d)
	assert.Equal(t, 3.0, d.Pieces[0].Position.X, "second drag is dropped, drop still applies")
}

func TestMsgpackClient(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	conn := dial(t, srv, "/ws/theta?codec=msgpack")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	typ, b, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageBinary, typ)

	var m map[string]interface{}
	require.NoError(t, msgpack.Unmarshal(b, &m))
	assert.Equal(t, msgJoined, m["t"])
}

func TestHandshakeRejections(t *testing.T) {
	srv, _ := newTestServer(t, Options{AllowedOrigins: []string{"http://ok.test"}})
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, res, err := websocket.Dial(ctx, url+"/ws/iota", &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"http://evil.test"}},
	})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	_, res, err = websocket.Dial(ctx, url+"/ws/bad.room", nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestRoomBuildDoesNotBlockOtherRooms(t *testing.T) {
	gate := make(chan struct{})
	var builds atomic.Int32
	newRoom := solvedRooms(4)
	hub := NewHub(Options{
		NewRoom: func(id string) (game.Engine, error) {
			if id == "slow" {
				builds.Add(1)
				<-gate
			}
			return newRoom(id)
		},
		Metrics: metrics.New(prometheus.NewRegistry()),
	})

	type result struct {
		l   *roomLoop
		err error
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			l, err := hub.acquire("slow")
			results <- result{l, err}
		}()
	}
	require.Eventually(t, func() bool {
		hub.roomsMu.Lock()
		defer hub.roomsMu.Unlock()
		p, ok := hub.pending["slow"]
		return ok && p.waiters == 1
	}, 2*time.Second, 5*time.Millisecond)

	fast, err := hub.acquire("fast")
	require.NoError(t, err)
	assert.Equal(t, []roomInfo{{ID: "fast", Game: "jigsaw"}}, hub.roomsSnapshot())

	close(gate)
	first, second := <-results, <-results
	require.NoError(t, first.err)
	require.NoError(t, second.err)
	assert.Same(t, first.l, second.l)
	assert.Equal(t, int32(1), builds.Load())

	hub.roomsMu.Lock()
	assert.Equal(t, 2, first.l.refs)
	assert.Empty(t, hub.pending)
	hub.roomsMu.Unlock()

	hub.release(first.l)
	hub.release(second.l)
	hub.release(fast)
	hub.roomsMu.Lock()
	defer hub.roomsMu.Unlock()
	assert.Empty(t, hub.rooms)
}
