package ws

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/youngZwiebelandtheGemuseBeat/online_jigsaw_puzzle/server/internal/game"
	"github.com/youngZwiebelandtheGemuseBeat/online_jigsaw_puzzle/server/internal/metrics"
)

// roomLoop owns one game.Engine. Every call into the engine runs on the
// loop's goroutine, one at a time, so a drop (translate, snap, cascade,
// release) is never interleaved with another request.
type roomLoop struct {
	id      string
	engine  game.Engine
	inbox   chan func()
	quit    chan struct{}
	clients map[string]*Client // loop goroutine only
	refs    int                // guarded by Hub.roomsMu
	log     zerolog.Logger
	metrics *metrics.Recorder
}

func newRoomLoop(id string, engine game.Engine, m *metrics.Recorder) *roomLoop {
	return &roomLoop{
		id:      id,
		engine:  engine,
		inbox:   make(chan func(), 64),
		quit:    make(chan struct{}),
		clients: map[string]*Client{},
		log:     log.With().Str("room", id).Logger(),
		metrics: m,
	}
}

func (l *roomLoop) run() {
	for {
		select {
		case fn := <-l.inbox:
			fn()
		case <-l.quit:
			return
		}
	}
}

// call runs fn on the loop goroutine and waits for it to finish. It reports
// false if the room was disposed first.
func (l *roomLoop) call(fn func()) bool {
	done := make(chan struct{})
	select {
	case l.inbox <- func() {
		defer close(done)
		fn()
	}:
	case <-l.quit:
		return false
	}
	select {
	case <-done:
		return true
	case <-l.quit:
		return false
	}
}

func (l *roomLoop) join(c *Client) (err error) {
	ok := l.call(func() {
		var snap game.Snapshot
		snap, err = l.engine.Join(c.id)
		if err != nil {
			return
		}
		l.broadcast(Msg{T: msgDelta, M: game.Delta{Sessions: []game.SessionState{{ID: c.id}}}})
		l.clients[c.id] = c
		c.sendMsg(Msg{T: msgJoined, M: map[string]interface{}{"sessionId": c.id, "room": l.id}})
		c.sendMsg(Msg{T: msgSnapshot, M: snap})
	})
	if !ok {
		return ErrRoomUnavailable
	}
	if err == nil {
		l.metrics.SessionJoined()
		c.log.Info().Msg("session joined")
	}
	return err
}

func (l *roomLoop) leave(c *Client) {
	l.call(func() {
		delete(l.clients, c.id)
		d, err := l.engine.Leave(c.id)
		if err != nil {
			c.log.Warn().Err(err).Msg("leave failed")
			return
		}
		l.broadcast(Msg{T: msgDelta, M: d})
		if len(d.Pieces) > 0 {
			c.log.Info().Int("released", len(d.Pieces)).Msg("released held pieces")
		}
	})
	l.metrics.SessionLeft()
	c.log.Info().Msg("session left")
}

func (l *roomLoop) apply(c *Client, cmd game.Command) {
	l.call(func() {
		kind := string(cmd.Kind)
		d, err := l.engine.ApplyCommand(c.id, cmd)
		switch {
		case errors.Is(err, game.ErrUnknownCommand):
			l.metrics.Command(kind, "error")
			c.sendMsg(errorMsg(codeBadRequest))
		case err != nil:
			l.metrics.Command(kind, "error")
			c.log.Error().Err(err).Str("kind", kind).Msg("command failed")
		case !d.Accepted:
			l.metrics.Command(kind, d.Reason)
			c.log.Debug().Str("kind", kind).Int("piece", cmd.PieceID).Str("reason", d.Reason).Msg("request ignored")
		default:
			l.metrics.Command(kind, "accepted")
			if d.Snap != nil {
				l.metrics.Snapped(d.Completed)
				c.log.Info().Int("piece", d.Snap.Piece).Int("partner", d.Snap.Partner).
					Int("seams", len(d.Snap.Seams)).Msg("snapped")
			}
			if d.Completed {
				l.log.Info().Msg("puzzle completed")
			}
			l.broadcast(Msg{T: msgDelta, M: d})
		}
	})
}

func (l *roomLoop) resync(c *Client) {
	l.call(func() {
		c.sendMsg(Msg{T: msgSnapshot, M: l.engine.Snapshot()})
	})
}

type roomInfo struct {
	ID        string `json:"id"`
	Game      string `json:"game"`
	Occupied  int    `json:"occupied"`
	Completed bool   `json:"completed"`
}

func (l *roomLoop) info() (ri roomInfo, ok bool) {
	ok = l.call(func() {
		ri = roomInfo{ID: l.id, Game: "jigsaw", Occupied: l.engine.Sessions(), Completed: l.engine.Completed()}
	})
	return ri, ok
}

// broadcast encodes m once per codec and queues it for every client.
func (l *roomLoop) broadcast(m Msg) {
	frames := map[codec]frame{}
	for _, c := range l.clients {
		f, ok := frames[c.codec]
		if !ok {
			b, err := c.codec.Encode(m)
			if err != nil {
				l.log.Error().Err(err).Str("type", m.T).Msg("encode failed")
				continue
			}
			f = frame{typ: c.codec.MessageType(), data: b}
			frames[c.codec] = f
		}
		c.enqueue(f)
	}
}
