package game

import "errors"

var (
	ErrUnknownSession   = errors.New("game: unknown session")
	ErrDuplicateSession = errors.New("game: session already joined")
	ErrRoomFull         = errors.New("game: room is full")
	ErrUnknownCommand   = errors.New("game: unknown command")
)

type CommandKind string

const (
	CommandPickUp CommandKind = "pickUpRequest"
	CommandDragTo CommandKind = "dragToRequest"
	CommandDrop   CommandKind = "dropRequest"
	CommandCursor CommandKind = "cursor"
)

// Command is one client request, already decoded from the wire.
type Command struct {
	Kind     CommandKind
	PieceID  int
	Position Vec3
	Cursor   Vec2
}

// Rejection reasons reported on an ignored command.
const (
	ReasonNoPiece     = "no_piece"
	ReasonHeld        = "held"
	ReasonNotHolder   = "not_holder"
	ReasonBadPosition = "bad_position"
)

type PieceState struct {
	ID       int     `json:"id"`
	Row      int     `json:"row"`
	Col      int     `json:"col"`
	Type     string  `json:"type"`
	Position Vec3    `json:"position"`
	HeldBy   string  `json:"heldBy"`
	Edges    [4]Edge `json:"edges"`
	Group    GroupID `json:"group"`
}

type SessionState struct {
	ID     string `json:"id"`
	Cursor Vec2   `json:"cursor"`
}

// Snapshot is the full room state sent to a session on join.
type Snapshot struct {
	RoomID    string            `json:"roomId"`
	ImageURL  string            `json:"imageUrl"`
	Rows      int               `json:"rows"`
	Cols      int               `json:"cols"`
	Geometry  Geometry          `json:"geometry"`
	Pieces    []PieceState      `json:"pieces"`
	Groups    map[GroupID][]int `json:"groups"`
	Sessions  []SessionState    `json:"sessions"`
	Completed bool              `json:"completed"`
}

// Delta is the change produced by one accepted request. A rejected request
// yields a zero Delta with Accepted false and nothing to publish.
type Delta struct {
	Accepted  bool              `json:"-"`
	Reason    string            `json:"-"`
	Pieces    []PieceState      `json:"pieces,omitempty"`
	Groups    map[GroupID][]int `json:"groups,omitempty"`
	Removed   []GroupID         `json:"removed,omitempty"`
	Sessions  []SessionState    `json:"sessions,omitempty"`
	Left      []string          `json:"left,omitempty"`
	Snap      *Snap             `json:"snap,omitempty"`
	Completed bool              `json:"completed,omitempty"`
}

func rejected(reason string) Delta { return Delta{Reason: reason} }

// Engine is the authoritative state of one room. Implementations are not safe
// for concurrent use; the transport serializes every call per room.
type Engine interface {
	Join(sessionID string) (Snapshot, error)
	Leave(sessionID string) (Delta, error)
	ApplyCommand(sessionID string, cmd Command) (Delta, error)
	Snapshot() Snapshot
	Sessions() int
	Completed() bool
}
