package game

import (
	"math"
	"strconv"
)

// Direction names one side of a piece. The order is the wire order of a
// signature: top, right, bottom, left.
type Direction int

const (
	Top Direction = iota
	Right
	Bottom
	Left
)

// Directions is the fixed scan order used by the generator and the snap detector.
var Directions = [4]Direction{Top, Right, Bottom, Left}

func (d Direction) Opposite() Direction { return (d + 2) % 4 }

func (d Direction) String() string {
	switch d {
	case Top:
		return "top"
	case Right:
		return "right"
	case Bottom:
		return "bottom"
	case Left:
		return "left"
	}
	return "direction(" + strconv.Itoa(int(d)) + ")"
}

// step returns the grid offset (row, col) to the neighbour on side d.
func (d Direction) step() (int, int) {
	switch d {
	case Top:
		return -1, 0
	case Right:
		return 0, 1
	case Bottom:
		return 1, 0
	default:
		return 0, -1
	}
}

// TabType is the shape of one edge.
type TabType int

const (
	Innie TabType = iota
	Outtie
	Flat
)

// Complement returns the tab type that seats against t. Flat pairs with flat.
func (t TabType) Complement() TabType {
	switch t {
	case Innie:
		return Outtie
	case Outtie:
		return Innie
	}
	return Flat
}

// Signature is the ordered tab types of a piece (top, right, bottom, left).
type Signature [4]TabType

// String renders the signature the way presentation assets are named, e.g. "2110".
func (s Signature) String() string {
	b := make([]byte, 4)
	for i, t := range s {
		b[i] = byte('0' + t)
	}
	return string(b)
}

type Edge struct {
	Type      TabType `json:"type"`
	Connected bool    `json:"connected"`
}

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) finite() bool {
	for _, f := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Vec2 is a cursor position in normalized device coordinates.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec2) finite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) && !math.IsNaN(v.Y) && !math.IsInf(v.Y, 0)
}
