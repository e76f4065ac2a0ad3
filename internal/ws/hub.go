package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"

	"github.com/youngZwiebelandtheGemuseBeat/online_jigsaw_puzzle/server/internal/game"
	"github.com/youngZwiebelandtheGemuseBeat/online_jigsaw_puzzle/server/internal/metrics"
)

var ErrRoomUnavailable = errors.New("ws: room could not be created")

const (
	readLimit   = 8 << 10
	defaultRoom = "lobby"
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

type Options struct {
	AllowedOrigins []string
	// NewRoom builds the engine for a room id on its first join.
	NewRoom      func(id string) (game.Engine, error)
	SendBuffer   int
	DragRate     rate.Limit
	DragBurst    int
	PingInterval time.Duration
	Metrics      *metrics.Recorder
}

// Hub owns the room registry. Rooms are created on first join and disposed
// when their last client leaves.
type Hub struct {
	opts         Options
	allowOrigins map[string]bool

	roomsMu sync.Mutex
	rooms   map[string]*roomLoop
	pending map[string]*pendingRoom
}

func NewHub(opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.DragRate <= 0 {
		opts.DragRate = rate.Inf
	}
	if opts.DragBurst <= 0 {
		opts.DragBurst = 1
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 15 * time.Second
	}
	m := map[string]bool{}
	for _, a := range opts.AllowedOrigins {
		if a != "" {
			m[a] = true
		}
	}
	return &Hub{
		opts:         opts,
		allowOrigins: m,
		rooms:        map[string]*roomLoop{},
		pending:      map[string]*pendingRoom{},
	}
}

// ---------- rooms ----------

// pendingRoom is a room whose engine is still being built. Joins that arrive
// meanwhile wait on done and take their reference through waiters.
type pendingRoom struct {
	done    chan struct{}
	waiters int
	loop    *roomLoop
	err     error
}

// acquire returns the running room for id, creating it if needed, and takes
// a reference on it. The engine is built outside roomsMu; concurrent joins to
// the same new id share one build.
func (h *Hub) acquire(id string) (*roomLoop, error) {
	h.roomsMu.Lock()
	if l, ok := h.rooms[id]; ok {
		l.refs++
		h.roomsMu.Unlock()
		return l, nil
	}
	if p, ok := h.pending[id]; ok {
		p.waiters++
		h.roomsMu.Unlock()
		<-p.done
		return p.loop, p.err
	}
	p := &pendingRoom{done: make(chan struct{})}
	h.pending[id] = p
	h.roomsMu.Unlock()
	defer close(p.done)

	start := time.Now()
	engine, err := h.opts.NewRoom(id)

	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	delete(h.pending, id)
	if err != nil {
		p.err = fmt.Errorf("%w: %w", ErrRoomUnavailable, err)
		return nil, p.err
	}
	h.opts.Metrics.Generated(time.Since(start))

	l := newRoomLoop(id, engine, h.opts.Metrics)
	l.refs = 1 + p.waiters
	h.rooms[id] = l
	p.loop = l
	go l.run()
	h.opts.Metrics.RoomOpened()
	log.Info().Str("room", id).Dur("generation", time.Since(start)).Msg("room created")
	return l, nil
}

func (h *Hub) release(l *roomLoop) {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()

	l.refs--
	if l.refs > 0 {
		return
	}
	delete(h.rooms, l.id)
	close(l.quit)
	h.opts.Metrics.RoomClosed()
	log.Info().Str("room", l.id).Msg("room disposed")
}

func (h *Hub) roomsSnapshot() []roomInfo {
	h.roomsMu.Lock()
	loops := make([]*roomLoop, 0, len(h.rooms))
	for _, l := range h.rooms {
		loops = append(loops, l)
	}
	h.roomsMu.Unlock()

	list := make([]roomInfo, 0, len(loops))
	for _, l := range loops {
		if ri, ok := l.info(); ok {
			list = append(list, ri)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// Mount registers the hub's endpoints on r.
func (h *Hub) Mount(r chi.Router) {
	r.Get("/ws", h.ServeWS)
	r.Get("/ws/{roomID}", h.ServeWS)
	r.Get("/rooms", h.ServeRooms)
}

// ServeRooms lists running rooms as JSON.
func (h *Hub) ServeRooms(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"list": h.roomsSnapshot()}); err != nil {
		log.Warn().Err(err).Msg("rooms listing failed")
	}
}

// ---------- websockets ----------

// ServeWS joins the caller to the room named by the {roomID} URL parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if roomID == "" {
		roomID = defaultRoom
	}
	if !roomIDPattern.MatchString(roomID) {
		http.Error(w, "bad room id", http.StatusBadRequest)
		return
	}

	origin := r.Header.Get("Origin")
	if origin != "" && !h.allowOrigins[origin] {
		http.Error(w, "forbidden origin", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		log.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	conn.SetReadLimit(readLimit)

	client := newClient(conn, roomID, codecFor(r.URL.Query().Get("codec")), h.opts)
	ctx := r.Context()

	// writer
	written := make(chan struct{})
	go func() {
		defer close(written)
		client.writePump(ctx, h.opts.PingInterval)
	}()
	defer func() {
		close(client.send)
		<-written
	}()

	room, err := h.acquire(roomID)
	if err != nil {
		client.log.Error().Err(err).Msg("room unavailable")
		client.sendMsg(errorMsg(codeRoomUnavailable))
		return
	}
	defer h.release(room)

	if err := room.join(client); err != nil {
		code := codeRoomUnavailable
		if errors.Is(err, game.ErrRoomFull) {
			code = codeRoomFull
		}
		client.log.Info().Err(err).Msg("join refused")
		client.sendMsg(errorMsg(code))
		return
	}
	defer room.leave(client)

	// reader
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			client.log.Debug().Err(err).Msg("read ended")
			break
		}
		req, err := client.codec.Decode(data)
		if err != nil {
			h.opts.Metrics.Dropped("malformed")
			client.sendMsg(errorMsg(codeBadRequest))
			continue
		}

		if req.T == msgResync {
			room.resync(client)
			continue
		}
		cmd, err := req.command()
		if err != nil {
			h.opts.Metrics.Dropped("malformed")
			client.log.Debug().Err(err).Msg("bad request")
			client.sendMsg(errorMsg(codeBadRequest))
			continue
		}
		if cmd.Kind == game.CommandDragTo && !client.drag.Allow() {
			h.opts.Metrics.Dropped("rate_limited")
			continue
		}
		room.apply(client, cmd)
	}
}
