package expr

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen/internal/errors"
	"github.com/paveg/whenthen/internal/groups"
	"github.com/paveg/whenthen/internal/series"
)

// AggStateKind tells how the column of an AggState lines up with the groups
type AggStateKind int

const (
	// RowLevel holds one value per input row
	RowLevel AggStateKind = iota
	// GroupScalar holds one value per group
	GroupScalar
	// GroupList holds one list of values per group
	GroupList
	// Constant holds a single value that applies to every row and group
	Constant
)

func (k AggStateKind) String() string {
	switch k {
	case RowLevel:
		return "row_level"
	case GroupScalar:
		return "group_scalar"
	case GroupList:
		return "group_list"
	case Constant:
		return "constant"
	default:
		return "unknown"
	}
}

// AggState is a column tagged with how it relates to the groups
type AggState struct {
	Kind   AggStateKind
	Column *series.Column
}

// AggregationContext carries the intermediate result of evaluating an
// expression on groups: the column in its aggregation state, the partition it
// refers to and whether consumers must derive new group boundaries from the
// result because list lengths no longer follow the partition.
type AggregationContext struct {
	state        AggState
	groups       *groups.Partition
	updateGroups bool
	mem          memory.Allocator
}

// NewAggregationContext creates a context holding col in the given state
func NewAggregationContext(mem memory.Allocator, p *groups.Partition, kind AggStateKind, col *series.Column) *AggregationContext {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &AggregationContext{
		state:  AggState{Kind: kind, Column: col},
		groups: p,
		mem:    mem,
	}
}

// State returns the current aggregation state
func (ac *AggregationContext) State() AggState {
	return ac.state
}

// Kind returns the kind of the current aggregation state
func (ac *AggregationContext) Kind() AggStateKind {
	return ac.state.Kind
}

// Column returns the column of the current state as stored
func (ac *AggregationContext) Column() *series.Column {
	return ac.state.Column
}

// Partition returns the partition the state refers to
func (ac *AggregationContext) Partition() *groups.Partition {
	return ac.groups
}

// UpdateGroups reports whether group boundaries must be re-derived from the result
func (ac *AggregationContext) UpdateGroups() bool {
	return ac.updateGroups
}

// CanCombine reports whether other refers to the same groups as ac
func (ac *AggregationContext) CanCombine(other *AggregationContext) bool {
	return groups.Combinable(ac.groups, other.groups)
}

// WithColumn replaces the state. An aggregated column becomes GroupList when
// it is a list column and GroupScalar otherwise; a non aggregated column is
// RowLevel. The context takes over the caller's reference to col and
// releases the column it replaces.
func (ac *AggregationContext) WithColumn(col *series.Column, aggregated, updateGroups bool) *AggregationContext {
	kind := RowLevel
	if aggregated {
		kind = GroupScalar
		if col.DataType().ID() == arrow.LIST {
			kind = GroupList
		}
	}
	ac.replace(kind, col)
	ac.updateGroups = updateGroups
	return ac
}

// WithState replaces the state with an explicit kind, with the same
// ownership rules as WithColumn.
func (ac *AggregationContext) WithState(kind AggStateKind, col *series.Column) *AggregationContext {
	ac.replace(kind, col)
	ac.updateGroups = false
	return ac
}

func (ac *AggregationContext) replace(kind AggStateKind, col *series.Column) {
	old := ac.state.Column
	ac.state = AggState{Kind: kind, Column: col}
	if old != nil && old != col {
		old.Release()
	}
}

// Aggregated returns the state as one entry per group: RowLevel becomes a
// list per group, Constant a list repeating the value for every member row,
// while GroupScalar and GroupList are returned as stored.
func (ac *AggregationContext) Aggregated() (*series.Column, error) {
	col := ac.state.Column
	switch ac.state.Kind {
	case RowLevel:
		return series.AggList(ac.mem, col, ac.groups)
	case Constant:
		if col.Len() == 0 {
			return nil, errors.NewInvalidInputError("Aggregated", "constant without a value")
		}
		return series.RepeatPerGroup(ac.mem, col, 0, ac.groups)
	default:
		col.Retain()
		return col, nil
	}
}

// Flatten returns the state as one value per row of the partitioned table.
// GroupScalar values are scattered to their member rows. A GroupList whose
// lists line up with the groups is scattered the same way; otherwise its
// values are exploded in group order. A Constant is repeated to the height.
// Flattening a RowLevel state returns it unchanged.
func (ac *AggregationContext) Flatten() (*series.Column, error) {
	col := ac.state.Column
	switch ac.state.Kind {
	case RowLevel:
		col.Retain()
		return col, nil
	case Constant:
		if col.Len() == 0 {
			return nil, errors.NewInvalidInputError("Flatten", "constant without a value")
		}
		return series.ExpandAtIndex(ac.mem, col, 0, ac.groups.Height())
	case GroupScalar:
		if col.Len() != ac.groups.Len() {
			errors.Invariant("Flatten", "group scalar has %d values for %d groups", col.Len(), ac.groups.Len())
		}
		return series.Take(ac.mem, col, ac.groups.RowGroups())
	case GroupList:
		return ac.flattenList(col)
	default:
		return nil, errors.NewInvalidInputError("Flatten", fmt.Sprintf("unknown state %d", ac.state.Kind))
	}
}

func (ac *AggregationContext) flattenList(col *series.Column) (*series.Column, error) {
	list, err := col.List(ac.mem)
	if err != nil {
		return nil, err
	}
	lengths := series.ListLengths(list)
	list.Release()

	if !ac.listsFollowGroups(lengths) {
		return series.Explode(ac.mem, col)
	}

	values, err := series.Explode(ac.mem, col)
	if err != nil {
		return nil, err
	}
	defer values.Release()

	// Position of each exploded value: null lists explode to one null each.
	positions := make([]int, ac.groups.Height())
	for i := range positions {
		positions[i] = -1
	}
	next := 0
	for g := 0; g < ac.groups.Len(); g++ {
		if lengths[g] <= 0 {
			next++
			continue
		}
		k := 0
		ac.groups.Each(g, func(row int) bool {
			positions[row] = next + k
			k++
			return true
		})
		next += lengths[g]
	}

	out, err := series.Take(ac.mem, values, positions)
	if err != nil {
		return nil, err
	}
	renamed := out.Rename(col.Name())
	out.Release()
	return renamed, nil
}

// listsFollowGroups reports whether every list holds exactly one value per
// member row of its group. A null list stands for a group of nulls.
func (ac *AggregationContext) listsFollowGroups(lengths []int) bool {
	if len(lengths) != ac.groups.Len() {
		return false
	}
	for g, l := range lengths {
		if l >= 0 && l != ac.groups.Size(g) {
			return false
		}
	}
	return true
}

// Groups returns the partition the current state should be read with. When
// the state is a GroupList flagged for a group update, the groups are
// re-derived as consecutive runs over the exploded list values.
func (ac *AggregationContext) Groups() (*groups.Partition, error) {
	if !ac.updateGroups || ac.state.Kind != GroupList {
		return ac.groups, nil
	}

	list, err := ac.state.Column.List(ac.mem)
	if err != nil {
		return nil, err
	}
	defer list.Release()

	lengths := series.ListLengths(list)
	ranges := make([][2]int, len(lengths))
	offset := 0
	for g, l := range lengths {
		if l <= 0 {
			l = 1
		}
		ranges[g] = [2]int{offset, l}
		offset += l
	}
	return groups.FromRanges(offset, ranges), nil
}

// Finalize returns the state as one row per group for a result table:
// RowLevel rows are collected into lists and a Constant is repeated once per
// group.
func (ac *AggregationContext) Finalize() (*series.Column, error) {
	switch ac.state.Kind {
	case RowLevel:
		return ac.Aggregated()
	case Constant:
		if ac.state.Column.Len() == 0 {
			return nil, errors.NewInvalidInputError("Finalize", "constant without a value")
		}
		return series.ExpandAtIndex(ac.mem, ac.state.Column, 0, ac.groups.Len())
	default:
		ac.state.Column.Retain()
		return ac.state.Column, nil
	}
}

// Release releases the column of the current state
func (ac *AggregationContext) Release() {
	if ac != nil && ac.state.Column != nil {
		ac.state.Column.Release()
		ac.state.Column = nil
	}
}

func releaseContexts(acs ...*AggregationContext) {
	for _, ac := range acs {
		ac.Release()
	}
}
