package game

// Piece is the authoritative record of one puzzle piece.
type Piece struct {
	Index    int
	Row      int
	Col      int
	Position Vec3
	HeldBy   string
	Edges    [4]Edge
	Group    GroupID
}

func (p *Piece) Signature() Signature {
	var s Signature
	for d, e := range p.Edges {
		s[d] = e.Type
	}
	return s
}

// Board is the piece registry: the flat, row-major list of pieces plus the
// group table. Indexes are row*Cols+col.
type Board struct {
	Cols     int
	Rows     int
	Geometry Geometry
	Pieces   []Piece
	Groups   *GroupRegistry
}

func (b *Board) Valid(i int) bool { return i >= 0 && i < len(b.Pieces) }

// Partner returns the grid neighbour of piece i on side d.
func (b *Board) Partner(i int, d Direction) (int, bool) {
	p := &b.Pieces[i]
	dr, dc := d.step()
	r, c := p.Row+dr, p.Col+dc
	if r < 0 || r >= b.Rows || c < 0 || c >= b.Cols {
		return 0, false
	}
	return r*b.Cols + c, true
}

// GroupOf returns the members of the group piece i belongs to.
func (b *Board) GroupOf(i int) []int {
	return b.Groups.Members(b.Pieces[i].Group)
}

// Translate moves every member of the group by delta.
func (b *Board) Translate(id GroupID, delta Vec3) {
	for _, i := range b.Groups.members[id] {
		b.Pieces[i].Position = b.Pieces[i].Position.Add(delta)
	}
}

// CanTranslate reports whether moving the group by delta leaves every member
// at a finite position.
func (b *Board) CanTranslate(id GroupID, delta Vec3) bool {
	if !delta.finite() {
		return false
	}
	for _, i := range b.Groups.members[id] {
		if !b.Pieces[i].Position.Add(delta).finite() {
			return false
		}
	}
	return true
}

// connect marks the edge of i on side d and the facing edge of its partner.
// Flags are never cleared.
func (b *Board) connect(i int, d Direction) {
	b.Pieces[i].Edges[d].Connected = true
	if j, ok := b.Partner(i, d); ok {
		b.Pieces[j].Edges[d.Opposite()].Connected = true
	}
}

// merge joins the groups of i and j, relabels the absorbed pieces and returns
// the surviving and the deleted group ids.
func (b *Board) merge(i, j int) (keep, absorbed GroupID) {
	gi, gj := b.Pieces[i].Group, b.Pieces[j].Group
	keep, moved := b.Groups.Merge(gi, gj)
	for _, k := range moved {
		b.Pieces[k].Group = keep
	}
	absorbed = gi
	if keep == gi {
		absorbed = gj
	}
	return keep, absorbed
}

// Solved reports whether every piece belongs to a single group.
func (b *Board) Solved() bool { return b.Groups.Len() == 1 }
