package fairness

import (
	"fmt"
	"iter"

	apperrors "github.com/ricesearch/fairrank/internal/pkg/errors"
)

// Partition splits item indexes by group label. Groups are kept in order of
// first occurrence; a label only exists if at least one item carries it.
type Partition[L comparable] struct {
	labels  []L
	members map[L][]int
	items   int
}

// NewPartition groups the item indexes of assign by label.
func NewPartition[L comparable](assign []L) *Partition[L] {
	p := &Partition[L]{
		members: make(map[L][]int),
		items:   len(assign),
	}
	for i, label := range assign {
		if _, ok := p.members[label]; !ok {
			p.labels = append(p.labels, label)
		}
		p.members[label] = append(p.members[label], i)
	}
	return p
}

// Labels returns the group labels in first-seen order.
func (p *Partition[L]) Labels() []L {
	return append([]L(nil), p.labels...)
}

// Members returns the item indexes of a group, nil for an unknown label.
func (p *Partition[L]) Members(label L) []int {
	return append([]int(nil), p.members[label]...)
}

// Len returns the number of groups.
func (p *Partition[L]) Len() int { return len(p.labels) }

// Items returns the number of partitioned items.
func (p *Partition[L]) Items() int { return p.items }

// Groups iterates over labels and copies of their member indexes in first-seen order.
func (p *Partition[L]) Groups() iter.Seq2[L, []int] {
	return func(yield func(L, []int) bool) {
		for _, label := range p.labels {
			if !yield(label, append([]int(nil), p.members[label]...)) {
				return
			}
		}
	}
}

// GroupValues maps group labels to one scalar each, in a fixed label order.
// It is immutable once built.
type GroupValues[L comparable] struct {
	labels []L
	values map[L]float64
}

// NewGroupValues builds GroupValues from parallel label and value slices.
// Labels must be unique.
func NewGroupValues[L comparable](labels []L, values []float64) (*GroupValues[L], error) {
	if len(labels) != len(values) {
		return nil, lengthMismatch("group values", len(values), len(labels))
	}
	g := &GroupValues[L]{values: make(map[L]float64, len(labels))}
	for i, label := range labels {
		if _, dup := g.values[label]; dup {
			return nil, apperrors.ValidationError(fmt.Sprintf("group %v listed twice", label))
		}
		g.add(label, values[i])
	}
	return g, nil
}

func newGroupValues[L comparable](capacity int) *GroupValues[L] {
	return &GroupValues[L]{
		labels: make([]L, 0, capacity),
		values: make(map[L]float64, capacity),
	}
}

func (g *GroupValues[L]) add(label L, v float64) {
	g.labels = append(g.labels, label)
	g.values[label] = v
}

// Labels returns the group labels in order.
func (g *GroupValues[L]) Labels() []L {
	return append([]L(nil), g.labels...)
}

// Get returns the value of a group and whether the group is present.
func (g *GroupValues[L]) Get(label L) (float64, bool) {
	v, ok := g.values[label]
	return v, ok
}

// Len returns the number of groups.
func (g *GroupValues[L]) Len() int { return len(g.labels) }

// All iterates over groups and values in order.
func (g *GroupValues[L]) All() iter.Seq2[L, float64] {
	return func(yield func(L, float64) bool) {
		for _, label := range g.labels {
			if !yield(label, g.values[label]) {
				return
			}
		}
	}
}

// Min returns the smallest value and its group. The first group wins ties.
// ok is false when there are no groups.
func (g *GroupValues[L]) Min() (label L, value float64, ok bool) {
	for i, l := range g.labels {
		if v := g.values[l]; i == 0 || v < value {
			label, value = l, v
		}
	}
	return label, value, len(g.labels) > 0
}

// Max returns the largest value and its group. The first group wins ties.
func (g *GroupValues[L]) Max() (label L, value float64, ok bool) {
	for i, l := range g.labels {
		if v := g.values[l]; i == 0 || v > value {
			label, value = l, v
		}
	}
	return label, value, len(g.labels) > 0
}
