// Package metrics exposes prometheus collectors for rooms, sessions and the
// requests they process.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder groups the server's collectors. A nil *Recorder records nothing.
type Recorder struct {
	rooms      prometheus.Gauge
	sessions   prometheus.Gauge
	commands   *prometheus.CounterVec
	snaps      prometheus.Counter
	completed  prometheus.Counter
	generation prometheus.Histogram
	dropped    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		rooms: f.NewGauge(prometheus.GaugeOpts{
			Name: "puzzle_rooms_active",
			Help: "Rooms currently running",
		}),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "puzzle_sessions_active",
			Help: "Sessions currently joined to a room",
		}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "puzzle_commands_total",
			Help: "Client requests by kind and result",
		}, []string{"kind", "result"}),
		snaps: f.NewCounter(prometheus.CounterOpts{
			Name: "puzzle_snaps_total",
			Help: "Drops that snapped onto a neighbour",
		}),
		completed: f.NewCounter(prometheus.CounterOpts{
			Name: "puzzle_completed_total",
			Help: "Puzzles assembled into a single group",
		}),
		generation: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "puzzle_generation_duration_seconds",
			Help:    "Board generation time",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "puzzle_messages_dropped_total",
			Help: "Outbound or inbound messages dropped by reason",
		}, []string{"reason"}),
	}
}

func (r *Recorder) RoomOpened() {
	if r != nil {
		r.rooms.Inc()
	}
}

func (r *Recorder) RoomClosed() {
	if r != nil {
		r.rooms.Dec()
	}
}

func (r *Recorder) SessionJoined() {
	if r != nil {
		r.sessions.Inc()
	}
}

func (r *Recorder) SessionLeft() {
	if r != nil {
		r.sessions.Dec()
	}
}

// Command counts one request. result is "accepted", "error" or a rejection reason.
func (r *Recorder) Command(kind, result string) {
	if r != nil {
		r.commands.WithLabelValues(kind, result).Inc()
	}
}

func (r *Recorder) Snapped(completed bool) {
	if r == nil {
		return
	}
	r.snaps.Inc()
	if completed {
		r.completed.Inc()
	}
}

func (r *Recorder) Generated(d time.Duration) {
	if r != nil {
		r.generation.Observe(d.Seconds())
	}
}

func (r *Recorder) Dropped(reason string) {
	if r != nil {
		r.dropped.WithLabelValues(reason).Inc()
	}
}
