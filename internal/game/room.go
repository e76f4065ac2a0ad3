package game

import (
	"fmt"
	"math/rand"
	"sort"
	"time"
)

const DefaultMaxSessions = 4

type Session struct {
	ID       string
	Cursor   Vec2
	JoinedAt time.Time
}

type RoomOptions struct {
	ID          string
	ImageURL    string
	Cols        int
	Rows        int
	MaxSessions int
	Geometry    Geometry
	Layout      Layout
	Rand        *rand.Rand
}

// Room is the context of one puzzle instance: the board and the connected
// sessions. It implements Engine.
type Room struct {
	id          string
	imageURL    string
	maxSessions int
	board       *Board
	sessions    map[string]*Session
	completed   bool
	now         func() time.Time
}

var _ Engine = (*Room)(nil)

// NewRoom generates the board. A generation failure is returned as is and no
// room is created.
func NewRoom(opts RoomOptions) (*Room, error) {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	layout := opts.Layout
	if layout == "" {
		layout = LayoutScattered
	}
	board, err := Generate(rng, opts.Cols, opts.Rows, opts.Geometry, layout)
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", opts.ID, err)
	}
	limit := opts.MaxSessions
	if limit <= 0 {
		limit = DefaultMaxSessions
	}
	return &Room{
		id:          opts.ID,
		imageURL:    opts.ImageURL,
		maxSessions: limit,
		board:       board,
		sessions:    map[string]*Session{},
		completed:   board.Solved(),
		now:         time.Now,
	}, nil
}

func (r *Room) ID() string      { return r.id }
func (r *Room) Sessions() int   { return len(r.sessions) }
func (r *Room) Completed() bool { return r.completed }

// ---------- sessions ----------

func (r *Room) Join(sessionID string) (Snapshot, error) {
	if _, ok := r.sessions[sessionID]; ok {
		return Snapshot{}, ErrDuplicateSession
	}
	if len(r.sessions) >= r.maxSessions {
		return Snapshot{}, ErrRoomFull
	}
	r.sessions[sessionID] = &Session{ID: sessionID, JoinedAt: r.now()}
	return r.Snapshot(), nil
}

// Leave removes the session and releases every piece it still holds.
func (r *Room) Leave(sessionID string) (Delta, error) {
	if _, ok := r.sessions[sessionID]; !ok {
		return Delta{}, ErrUnknownSession
	}
	delete(r.sessions, sessionID)

	d := Delta{Accepted: true, Left: []string{sessionID}}
	for i := range r.board.Pieces {
		if r.board.Pieces[i].HeldBy == sessionID {
			r.board.Pieces[i].HeldBy = ""
			d.Pieces = append(d.Pieces, r.pieceState(i))
		}
	}
	return d, nil
}

// ---------- commands ----------

// ApplyCommand validates and applies one request from sessionID. Requests that
// fail an ownership or range check are ignored: the returned Delta has
// Accepted false and the error is nil.
func (r *Room) ApplyCommand(sessionID string, cmd Command) (Delta, error) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return Delta{}, ErrUnknownSession
	}

	switch cmd.Kind {
	case CommandCursor:
		if !cmd.Cursor.finite() {
			return rejected(ReasonBadPosition), nil
		}
		s.Cursor = cmd.Cursor
		return Delta{Accepted: true, Sessions: []SessionState{{ID: s.ID, Cursor: s.Cursor}}}, nil
	case CommandPickUp, CommandDragTo, CommandDrop:
	default:
		return Delta{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Kind)
	}

	if !r.board.Valid(cmd.PieceID) {
		return rejected(ReasonNoPiece), nil
	}
	p := &r.board.Pieces[cmd.PieceID]

	if cmd.Kind == CommandPickUp {
		if p.HeldBy != "" {
			return rejected(ReasonHeld), nil
		}
		p.HeldBy = sessionID
		return Delta{Accepted: true, Pieces: []PieceState{r.pieceState(p.Index)}}, nil
	}

	if p.HeldBy != sessionID {
		return rejected(ReasonNotHolder), nil
	}
	delta := cmd.Position.Sub(p.Position)
	if !cmd.Position.finite() || !r.board.CanTranslate(p.Group, delta) {
		return rejected(ReasonBadPosition), nil
	}

	r.board.Translate(p.Group, delta)
	if cmd.Kind == CommandDragTo {
		return Delta{Accepted: true, Pieces: r.groupStates(p.Group)}, nil
	}
	return r.drop(p), nil
}

// drop runs the snap check for the group of p and releases p. It runs to
// completion before any other request is applied.
func (r *Room) drop(p *Piece) Delta {
	d := Delta{Accepted: true}
	snap, ok := CheckSnap(r.board, p.Index)
	p.HeldBy = ""

	if ok {
		d.Snap = &snap
		d.Groups = map[GroupID][]int{snap.Group: r.board.Groups.Members(snap.Group)}
		d.Removed = []GroupID{snap.Absorbed}
		if !r.completed && r.board.Solved() {
			r.completed = true
			d.Completed = true
		}
	}
	d.Pieces = r.groupStates(p.Group)
	return d
}

// ---------- state views ----------

func (r *Room) pieceState(i int) PieceState {
	p := &r.board.Pieces[i]
	return PieceState{
		ID:       p.Index,
		Row:      p.Row,
		Col:      p.Col,
		Type:     p.Signature().String(),
		Position: p.Position,
		HeldBy:   p.HeldBy,
		Edges:    p.Edges,
		Group:    p.Group,
	}
}

func (r *Room) groupStates(id GroupID) []PieceState {
	members := r.board.Groups.members[id]
	out := make([]PieceState, 0, len(members))
	for _, i := range members {
		out = append(out, r.pieceState(i))
	}
	return out
}

func (r *Room) Snapshot() Snapshot {
	pieces := make([]PieceState, len(r.board.Pieces))
	for i := range r.board.Pieces {
		pieces[i] = r.pieceState(i)
	}
	sessions := make([]SessionState, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, SessionState{ID: s.ID, Cursor: s.Cursor})
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })

	return Snapshot{
		RoomID:    r.id,
		ImageURL:  r.imageURL,
		Rows:      r.board.Rows,
		Cols:      r.board.Cols,
		Geometry:  r.board.Geometry,
		Pieces:    pieces,
		Groups:    r.board.Groups.Snapshot(),
		Sessions:  sessions,
		Completed: r.completed,
	}
}
