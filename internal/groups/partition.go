// Package groups provides the row partitions used by grouped evaluation.
//
// A Partition is an ordered list of groups, each a roaring bitmap of row
// indexes into a table of a known height. Groups are produced by hashing key
// columns, and rows can also be split into hash partitions for parallel
// aggregation.
package groups

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// Partition is an ordered set of row groups over a table of Height rows.
// Partitions are immutable once built and safe for concurrent reads.
type Partition struct {
	groups []*roaring.Bitmap
	height int
}

// New creates a partition from member bitmaps. The bitmaps must not be
// modified afterwards.
func New(height int, members []*roaring.Bitmap) *Partition {
	return &Partition{groups: members, height: height}
}

// FromIndices creates a partition from explicit row indexes per group
func FromIndices(height int, indices [][]int) *Partition {
	members := make([]*roaring.Bitmap, len(indices))
	for g, rows := range indices {
		bm := roaring.New()
		for _, row := range rows {
			bm.Add(uint32(row))
		}
		members[g] = bm
	}
	return New(height, members)
}

// FromRanges creates a partition of contiguous [offset, offset+length) groups
func FromRanges(height int, ranges [][2]int) *Partition {
	members := make([]*roaring.Bitmap, len(ranges))
	for g, r := range ranges {
		bm := roaring.New()
		bm.AddRange(uint64(r[0]), uint64(r[0]+r[1]))
		members[g] = bm
	}
	return New(height, members)
}

// Single creates a partition with one group holding every row
func Single(height int) *Partition {
	return FromRanges(height, [][2]int{{0, height}})
}

// Len returns the number of groups
func (p *Partition) Len() int {
	return len(p.groups)
}

// Height returns the number of rows of the partitioned table
func (p *Partition) Height() int {
	return p.height
}

// Group returns the member bitmap of group g. Callers must not modify it.
func (p *Partition) Group(g int) *roaring.Bitmap {
	return p.groups[g]
}

// Size returns the number of rows in group g
func (p *Partition) Size(g int) int {
	return int(p.groups[g].GetCardinality())
}

// Each calls fn for every row of group g in ascending order until fn returns false
func (p *Partition) Each(g int, fn func(row int) bool) {
	p.groups[g].Iterate(func(x uint32) bool {
		return fn(int(x))
	})
}

// Indices returns the rows of group g in ascending order
func (p *Partition) Indices(g int) []int {
	out := make([]int, 0, p.Size(g))
	p.Each(g, func(row int) bool {
		out = append(out, row)
		return true
	})
	return out
}

// First returns the first row of group g, or -1 for an empty group
func (p *Partition) First(g int) int {
	if p.groups[g].IsEmpty() {
		return -1
	}
	return int(p.groups[g].Minimum())
}

// RowGroups maps every row to its group, -1 for rows in no group
func (p *Partition) RowGroups() []int {
	out := make([]int, p.height)
	for i := range out {
		out[i] = -1
	}
	for g := range p.groups {
		p.Each(g, func(row int) bool {
			if row < len(out) {
				out[row] = g
			}
			return true
		})
	}
	return out
}

// Combinable reports whether a and b describe the same groups in the same order
func Combinable(a, b *Partition) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || len(a.groups) != len(b.groups) {
		return false
	}
	for g := range a.groups {
		if a.groups[g] != b.groups[g] && !a.groups[g].Equals(b.groups[g]) {
			return false
		}
	}
	return true
}
