// Copyright 2025 The devito-go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sym

import (
	"fmt"
	"slices"
	"strings"
)

// StencilEntry is the offset footprint along one dimension. Buffered is set
// when the entry was obtained by collapsing a buffered dimension onto Dim.
type StencilEntry struct {
	Dim      *Dimension
	Offsets  []int
	Buffered *Dimension
}

// Window returns the smallest and largest offset, widened to include zero.
func (e StencilEntry) Window() (lo, hi int) {
	for _, o := range e.Offsets {
		lo = min(lo, o)
		hi = max(hi, o)
	}
	return lo, hi
}

// Key identifies the loop an entry requires: two entries with equal keys can
// share one loop.
func (e StencilEntry) Key() EntryKey {
	lo, hi := e.Window()
	return EntryKey{Dim: e.Dim, Lo: lo, Hi: hi}
}

func (e StencilEntry) String() string {
	return fmt.Sprintf("%s%v", e.Dim.Name, e.Offsets)
}

// EntryKey is the (dimension, offset window) pair a loop is built for.
type EntryKey struct {
	Dim    *Dimension
	Lo, Hi int
}

// Stencil maps dimensions to the set of offsets an expression or cluster
// touches. Dimensions keep their order of first appearance.
type Stencil struct {
	dims []*Dimension
	offs map[*Dimension][]int
	buf  map[*Dimension]*Dimension
}

// NewStencil returns an empty stencil.
func NewStencil() *Stencil {
	return &Stencil{offs: map[*Dimension][]int{}, buf: map[*Dimension]*Dimension{}}
}

// StencilOf derives the stencil of an equation from every indexed access on
// either side.
func StencilOf(eq Eq) *Stencil {
	s := NewStencil()
	for _, side := range []Expr{eq.LHS, eq.RHS} {
		for _, i := range Indexeds(side) {
			for _, a := range i.Index {
				s.Add(a.Dim, a.Offset)
			}
		}
	}
	return s
}

// Add records offsets along d.
func (s *Stencil) Add(d *Dimension, offsets ...int) {
	cur, ok := s.offs[d]
	if !ok {
		s.dims = append(s.dims, d)
	}
	for _, o := range offsets {
		if !slices.Contains(cur, o) {
			cur = append(cur, o)
		}
	}
	slices.Sort(cur)
	s.offs[d] = cur
}

// Empty reports whether the stencil needs no loop at all.
func (s *Stencil) Empty() bool { return len(s.dims) == 0 }

// Dimensions returns the dimensions in order of first appearance.
func (s *Stencil) Dimensions() []*Dimension { return slices.Clone(s.dims) }

// Offsets returns the offsets along d.
func (s *Stencil) Offsets(d *Dimension) []int { return slices.Clone(s.offs[d]) }

// Clone returns a deep copy.
func (s *Stencil) Clone() *Stencil {
	c := NewStencil()
	for _, d := range s.dims {
		c.Add(d, s.offs[d]...)
		if b := s.buf[d]; b != nil {
			c.buf[d] = b
		}
	}
	return c
}

// Union returns the merge of s and o.
func (s *Stencil) Union(o *Stencil) *Stencil {
	c := s.Clone()
	for _, d := range o.dims {
		c.Add(d, o.offs[d]...)
		if b := o.buf[d]; b != nil {
			c.buf[d] = b
		}
	}
	return c
}

// Collapse folds the offsets of every buffered dimension into its parent, so
// that a single loop over the parent serves both.
func (s *Stencil) Collapse() *Stencil {
	c := NewStencil()
	for _, d := range s.dims {
		c.Add(d.Root(), s.offs[d]...)
		if d.IsBuffered() {
			c.buf[d.Root()] = d
		} else if b := s.buf[d]; b != nil {
			c.buf[d] = b
		}
	}
	return c
}

// Entries lists the stencil in loop order. Dimensions missing from ordering
// follow, in order of first appearance.
func (s *Stencil) Entries(ordering []*Dimension) []StencilEntry {
	dims := slices.Clone(s.dims)
	rank := func(d *Dimension) int {
		if i := slices.Index(ordering, d); i >= 0 {
			return i
		}
		return len(ordering)
	}
	slices.SortStableFunc(dims, func(a, b *Dimension) int { return rank(a) - rank(b) })
	out := make([]StencilEntry, len(dims))
	for i, d := range dims {
		out[i] = StencilEntry{Dim: d, Offsets: slices.Clone(s.offs[d]), Buffered: s.buf[d]}
	}
	return out
}

// Equal reports whether both stencils cover the same offsets.
func (s *Stencil) Equal(o *Stencil) bool {
	if len(s.dims) != len(o.dims) {
		return false
	}
	for _, d := range s.dims {
		if !slices.Equal(s.offs[d], o.offs[d]) {
			return false
		}
	}
	return true
}

func (s *Stencil) String() string {
	parts := make([]string, len(s.dims))
	for i, d := range s.dims {
		parts[i] = fmt.Sprintf("%s:%v", d.Name, s.offs[d])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
