package game

import (
	"errors"
	"fmt"
	"math/rand"
)

var (
	ErrInvalidDimensions = errors.New("game: grid dimensions must be positive")
	ErrNoCandidate       = errors.New("game: no signature satisfies cell constraints")
)

// Layout selects where pieces start.
type Layout string

const (
	// LayoutSolved places every piece at its seated position, centred on the origin.
	LayoutSolved Layout = "solved"
	// LayoutScattered spreads pieces randomly over an area twice the size of the board.
	LayoutScattered Layout = "scattered"
)

var catalog = buildCatalog()

// buildCatalog enumerates every signature over {innie, outtie, flat}.
func buildCatalog() []Signature {
	out := make([]Signature, 0, 81)
	for i := 0; i < 81; i++ {
		var s Signature
		n := i
		for d := 3; d >= 0; d-- {
			s[d] = TabType(n % 3)
			n /= 3
		}
		out = append(out, s)
	}
	return out
}

// Catalog returns a copy of the signature catalog in its stable order.
func Catalog() []Signature {
	return append([]Signature(nil), catalog...)
}

// tabRange is an inclusive range of allowed tab types for one edge.
type tabRange struct{ lo, hi TabType }

func (r tabRange) allows(t TabType) bool { return t >= r.lo && t <= r.hi }

// cellConstraints derives the allowed range per edge of the cell at (row, col).
// placed reports the signature of already generated cells.
func cellConstraints(row, col, cols, rows int, placed func(r, c int) (Signature, bool)) [4]tabRange {
	var rs [4]tabRange
	for _, d := range Directions {
		rs[d] = tabRange{Innie, Outtie}
		dr, dc := d.step()
		nr, nc := row+dr, col+dc
		if nr < 0 || nr >= rows || nc < 0 || nc >= cols {
			rs[d] = tabRange{Flat, Flat}
			continue
		}
		if sig, ok := placed(nr, nc); ok {
			req := sig[d.Opposite()].Complement()
			rs[d] = tabRange{req, req}
		}
	}
	return rs
}

func candidates(rs [4]tabRange) []Signature {
	var out []Signature
	for _, s := range catalog {
		ok := true
		for d, r := range rs {
			if !r.allows(s[d]) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, s)
		}
	}
	return out
}

// GenerateSignatures fills a rows x cols grid in row-major order, picking each
// cell uniformly among the catalog entries compatible with its borders and
// already placed neighbours.
func GenerateSignatures(rng *rand.Rand, cols, rows int) ([]Signature, error) {
	if cols < 1 || rows < 1 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, cols, rows)
	}
	sigs := make([]Signature, cols*rows)
	filled := make([]bool, cols*rows)
	placed := func(r, c int) (Signature, bool) {
		i := r*cols + c
		return sigs[i], filled[i]
	}
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			cands := candidates(cellConstraints(row, col, cols, rows, placed))
			if len(cands) == 0 {
				return nil, fmt.Errorf("%w at (%d,%d)", ErrNoCandidate, row, col)
			}
			i := row*cols + col
			sigs[i] = cands[rng.Intn(len(cands))]
			filled[i] = true
		}
	}
	return sigs, nil
}

// Generate builds a fresh board. Border edges start connected since nothing
// can ever snap there.
func Generate(rng *rand.Rand, cols, rows int, geom Geometry, layout Layout) (*Board, error) {
	sigs, err := GenerateSignatures(rng, cols, rows)
	if err != nil {
		return nil, err
	}

	b := &Board{
		Cols:     cols,
		Rows:     rows,
		Geometry: geom,
		Pieces:   make([]Piece, len(sigs)),
		Groups:   NewGroupRegistry(len(sigs)),
	}

	w, h := geom.cellSize()
	width, height := float64(cols)*w, float64(rows)*h
	for i, sig := range sigs {
		row, col := i/cols, i%cols
		p := Piece{Index: i, Row: row, Col: col, Group: GroupID(i)}
		for _, d := range Directions {
			p.Edges[d] = Edge{Type: sig[d]}
		}
		switch layout {
		case LayoutScattered:
			p.Position = Vec3{
				X: (rng.Float64() - 0.5) * 2 * width,
				Z: (rng.Float64() - 0.5) * 2 * height,
			}
		default:
			p.Position = Vec3{
				X: float64(col)*w - width/2 + w/2,
				Z: float64(row)*h - height/2 + h/2,
			}
		}
		b.Pieces[i] = p
	}

	for i := range b.Pieces {
		for _, d := range Directions {
			if _, ok := b.Partner(i, d); !ok {
				b.Pieces[i].Edges[d].Connected = true
			}
		}
	}
	return b, nil
}
