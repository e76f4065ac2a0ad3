package ws

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"

	"github.com/youngZwiebelandtheGemuseBeat/online_jigsaw_puzzle/server/internal/metrics"
)

const writeTimeout = 5 * time.Second

type frame struct {
	typ  websocket.MessageType
	data []byte
}

// Client is one websocket session.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan frame
	codec   codec
	drag    *rate.Limiter
	log     zerolog.Logger
	metrics *metrics.Recorder
}

func newSessionID() string { return uuid.NewString() }

func newClient(conn *websocket.Conn, roomID string, c codec, opts Options) *Client {
	id := newSessionID()
	return &Client{
		id:      id,
		conn:    conn,
		send:    make(chan frame, opts.SendBuffer),
		codec:   c,
		drag:    rate.NewLimiter(opts.DragRate, opts.DragBurst),
		log:     log.With().Str("room", roomID).Str("session", id).Str("codec", c.Name()).Logger(),
		metrics: opts.Metrics,
	}
}

// enqueue never blocks the room; a full buffer drops the frame and the client
// can ask for a resync.
func (c *Client) enqueue(f frame) {
	select {
	case c.send <- f:
	default:
		c.metrics.Dropped("send_buffer_full")
		c.log.Warn().Msg("send buffer full, frame dropped")
	}
}

func (c *Client) sendMsg(m Msg) {
	b, err := c.codec.Encode(m)
	if err != nil {
		c.log.Error().Err(err).Str("type", m.T).Msg("encode failed")
		return
	}
	c.enqueue(frame{typ: c.codec.MessageType(), data: b})
}

// writePump drains send until it is closed, pinging on every interval.
func (c *Client) writePump(ctx context.Context, interval time.Duration) {
	ping := time.NewTicker(interval)
	defer func() { ping.Stop(); _ = c.conn.Close(websocket.StatusNormalClosure, "bye") }()
	for {
		select {
		case f, ok := <-c.send:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, f.typ, f.data)
			cancel()
			if err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				c.log.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}
