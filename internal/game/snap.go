package game

import "math"

// Geometry holds the board's physical dimensions and snapping tolerances.
// Pieces lie on the X/Z plane; Y is never considered when seating.
type Geometry struct {
	PieceWidth          float64 `json:"pieceWidth"`
	PieceHeight         float64 `json:"pieceHeight"`
	ScaleX              float64 `json:"scaleX"`
	ScaleZ              float64 `json:"scaleZ"`
	SnapThreshold       float64 `json:"snapThreshold"`
	ConnectionThreshold float64 `json:"connectionThreshold"`
}

func DefaultGeometry() Geometry {
	return Geometry{
		PieceWidth:          2,
		PieceHeight:         2,
		ScaleX:              1,
		ScaleZ:              1,
		SnapThreshold:       0.5,
		ConnectionThreshold: 0.01,
	}
}

// AspectScale returns the scale factors that stretch the board to an image of
// the given aspect ratio (width / height) without shrinking either axis.
func AspectScale(ratio float64) (sx, sz float64) {
	if ratio <= 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return 1, 1
	}
	sx, sz = 1, 1
	if ratio >= 1 {
		sx = ratio
	}
	if ratio <= 1 {
		sz = 1 / ratio
	}
	return sx, sz
}

func (g Geometry) cellSize() (w, h float64) {
	return g.PieceWidth * g.ScaleX, g.PieceHeight * g.ScaleZ
}

// Expected returns the offset from a piece to a correctly seated partner on side d.
func (g Geometry) Expected(d Direction) Vec3 {
	w, h := g.cellSize()
	switch d {
	case Top:
		return Vec3{Z: -h}
	case Bottom:
		return Vec3{Z: h}
	case Left:
		return Vec3{X: -w}
	default:
		return Vec3{X: w}
	}
}

// SeatError measures how far partner is from the seated position next to
// piece on side d. It returns the Chebyshev error and the translation that
// would move piece into place.
func (g Geometry) SeatError(piece, partner Vec3, d Direction) (float64, Vec3) {
	exp := g.Expected(d)
	ex := (partner.X - piece.X) - exp.X
	ez := (partner.Z - piece.Z) - exp.Z
	return math.Max(math.Abs(ex), math.Abs(ez)), Vec3{X: ex, Z: ez}
}

// Seam names one edge pair: the piece and the side of it that was joined.
type Seam struct {
	Piece     int       `json:"piece"`
	Direction Direction `json:"direction"`
	Partner   int       `json:"partner"`
}

// Snap describes a successful snap after a drop.
type Snap struct {
	Seam
	Shift Vec3    `json:"shift"`
	Group GroupID `json:"group"`
	// Absorbed is the group id the merge deleted.
	Absorbed GroupID `json:"absorbed"`
	// Seams lists internal edges completed by the connection cascade.
	Seams []Seam `json:"seams,omitempty"`
}

// CheckSnap looks for an unconnected edge of the dropped group that sits
// within the snap threshold of its grid partner outside the group. The
// dropped piece is scanned first, then the rest of the group in index order;
// the first match wins. On a match the group is shifted into place, merged
// with the partner's group, and the merged group's internal seams are checked.
func CheckSnap(b *Board, dropped int) (Snap, bool) {
	group := b.Pieces[dropped].Group
	order := make([]int, 0, len(b.Groups.members[group]))
	order = append(order, dropped)
	for _, i := range b.Groups.members[group] {
		if i != dropped {
			order = append(order, i)
		}
	}

	for _, i := range order {
		p := &b.Pieces[i]
		for _, d := range Directions {
			if p.Edges[d].Connected {
				continue
			}
			j, ok := b.Partner(i, d)
			if !ok || b.Groups.Contains(group, j) {
				continue
			}
			e, shift := b.Geometry.SeatError(p.Position, b.Pieces[j].Position, d)
			if e >= b.Geometry.SnapThreshold {
				continue
			}

			b.Translate(group, shift)
			merged, absorbed := b.merge(i, j)
			b.connect(i, d)
			return Snap{
				Seam:     Seam{Piece: i, Direction: d, Partner: j},
				Shift:    shift,
				Group:    merged,
				Absorbed: absorbed,
				Seams:    CheckConnections(b, merged),
			}, true
		}
	}
	return Snap{}, false
}

// CheckConnections connects every unconnected edge pair inside the group whose
// pieces are seated within the connection threshold. Each pair is evaluated
// once per call.
func CheckConnections(b *Board, group GroupID) []Seam {
	type pairKey struct {
		piece int
		dir   Direction
	}
	seen := make(map[pairKey]struct{})
	var seams []Seam

	for _, i := range b.Groups.members[group] {
		for _, d := range Directions {
			if b.Pieces[i].Edges[d].Connected {
				continue
			}
			j, ok := b.Partner(i, d)
			if !ok || b.Pieces[j].Group != group {
				continue
			}
			key := pairKey{i, d}
			if d == Top || d == Left {
				key = pairKey{j, d.Opposite()}
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			e, _ := b.Geometry.SeatError(b.Pieces[i].Position, b.Pieces[j].Position, d)
			if e < b.Geometry.ConnectionThreshold {
				b.connect(i, d)
				seams = append(seams, Seam{Piece: i, Direction: d, Partner: j})
			}
		}
	}
	return seams
}
