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

// Package schedule builds the loop tree for an ordered list of clusters.
//
// Consecutive clusters that share a leading run of (dimension, offset
// window) entries share the loops built for that run: only the unmatched
// suffix is created, and it is grafted onto the innermost shared loop by
// rebuilding that loop and substituting it throughout the tree built so far.
package schedule

import (
	"slices"

	"github.com/samber/lo"

	"github.com/nogueirapeterson/devito/dse"
	"github.com/nogueirapeterson/devito/ir"
	"github.com/nogueirapeterson/devito/sym"
)

// LoopOrdering returns the dimensions of exprs in order of first
// appearance. A buffered dimension is followed by its parent.
func LoopOrdering(exprs []sym.Eq) []*sym.Dimension {
	var out []*sym.Dimension
	for _, eq := range exprs {
		for _, d := range sym.StencilOf(eq).Dimensions() {
			if !slices.Contains(out, d) {
				out = append(out, d)
			}
			if d.IsBuffered() && !slices.Contains(out, d.Parent) {
				out = append(out, d.Parent)
			}
		}
	}
	return out
}

// Stencils returns the stencil of each expression with buffered dimensions
// folded into their parents.
func Stencils(exprs []sym.Eq) []*sym.Stencil {
	return lo.Map(exprs, func(eq sym.Eq, _ int) *sym.Stencil {
		return sym.StencilOf(eq).Collapse()
	})
}

// link records the loop built for one entry of the currently open nest.
type link struct {
	key  sym.EntryKey
	node ir.NodeID
}

// Schedule lowers clusters into t and returns the top-level nodes in
// execution order. Sequential loops advance in direction dir.
func Schedule(t *ir.Tree, clusters []*dse.Cluster, ordering []*sym.Dimension, dir sym.Direction) []ir.NodeID {
	var processed []ir.NodeID
	var open []link
	for _, c := range clusters {
		leaves := lo.Map(c.Trace, func(eq sym.Eq, _ int) ir.NodeID {
			return t.NewExpression(eq, DTypeOf(eq))
		})
		entries := c.Stencil.Entries(ordering)
		if len(entries) == 0 {
			processed = append(processed, leaves...)
			open = nil
			continue
		}

		index := 0
		for index < len(entries) && index < len(open) && open[index].key == entries[index].Key() {
			index++
		}
		needed := entries[index:]

		graft, built := leaves, []ir.NodeID(nil)
		if len(needed) > 0 {
			levels := lo.Map(needed, func(e sym.StencilEntry, _ int) ir.Loop { return LoopFor(e, dir) })
			var outer ir.NodeID
			outer, built = t.Compose(levels, leaves)
			graft = []ir.NodeID{outer}
		}

		open = open[:index]
		if index == 0 {
			processed = append(processed, graft...)
		} else {
			root := open[index-1].node
			body := append(slices.Clone(t.At(root).Body), graft...)
			sub := t.Substitute(processed, map[ir.NodeID]ir.NodeID{root: t.Rebuild(root, body)})
			processed = sub.Roots
			for i := range open {
				open[i].node = sub.Lookup(open[i].node)
			}
		}
		for i, e := range needed {
			open = append(open, link{key: e.Key(), node: built[i]})
		}
	}
	return processed
}

// LoopFor returns the loop covering a stencil entry: the index runs from
// -lo to size-hi so that every offset stays in bounds.
func LoopFor(e sym.StencilEntry, dir sym.Direction) ir.Loop {
	low, high := e.Window()
	var size sym.Expr = sym.Var(e.Dim.SizeName(), sym.Int32)
	if e.Dim.Size > 0 {
		size = sym.Int(e.Dim.Size)
	}
	upper := size
	if high != 0 {
		upper = sym.Sub(size, sym.Int(high))
	}
	l := ir.Loop{
		Dim:      e.Dim,
		Buffered: e.Buffered,
		Index:    e.Dim.Name,
		Lo:       low,
		Hi:       high,
		Lower:    sym.Int(-low),
		Upper:    upper,
		Step:     sym.Int(1),
	}
	if e.Dim.Time {
		l.Direction = dir
		l.Props = ir.Sequential
	}
	return l
}

// DTypeOf returns the type of the value an equation assigns.
func DTypeOf(eq sym.Eq) sym.DType {
	switch lhs := eq.LHS.(type) {
	case *sym.Indexed:
		return lhs.F.DType
	case *sym.Symbol:
		return lhs.DType
	}
	return sym.Float32
}
