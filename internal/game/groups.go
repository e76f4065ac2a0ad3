package game

import "sort"

// GroupID identifies a set of rigidly joined pieces.
type GroupID int

// GroupRegistry maps group ids to their members. Groups start as singletons
// (group i holds piece i) and only ever merge.
type GroupRegistry struct {
	members map[GroupID][]int
}

func NewGroupRegistry(pieces int) *GroupRegistry {
	g := &GroupRegistry{members: make(map[GroupID][]int, pieces)}
	for i := 0; i < pieces; i++ {
		g.members[GroupID(i)] = []int{i}
	}
	return g
}

// Members returns the sorted member indexes of id.
func (g *GroupRegistry) Members(id GroupID) []int {
	return append([]int(nil), g.members[id]...)
}

func (g *GroupRegistry) Contains(id GroupID, piece int) bool {
	m := g.members[id]
	i := sort.SearchInts(m, piece)
	return i < len(m) && m[i] == piece
}

func (g *GroupRegistry) Len() int { return len(g.members) }

// Merge folds the smaller of a and b into the larger and returns the surviving
// id plus the pieces that must be relabelled. Ties keep the lower id.
func (g *GroupRegistry) Merge(a, b GroupID) (GroupID, []int) {
	if a == b {
		return a, nil
	}
	keep, drop := a, b
	if len(g.members[b]) > len(g.members[a]) || (len(g.members[b]) == len(g.members[a]) && b < a) {
		keep, drop = b, a
	}
	moved := g.members[drop]
	merged := make([]int, 0, len(g.members[keep])+len(moved))
	merged = append(merged, g.members[keep]...)
	merged = append(merged, moved...)
	sort.Ints(merged)
	g.members[keep] = merged
	delete(g.members, drop)
	return keep, moved
}

// Snapshot copies the full id -> members table.
func (g *GroupRegistry) Snapshot() map[GroupID][]int {
	out := make(map[GroupID][]int, len(g.members))
	for id, m := range g.members {
		out[id] = append([]int(nil), m...)
	}
	return out
}
