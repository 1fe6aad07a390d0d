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

package ir

import (
	"slices"
	"strconv"
	"strings"

	"github.com/nogueirapeterson/devito/sym"
)

// Visit walks the trees under roots depth-first, in statement order. fn gets
// each node together with the iterations enclosing it, outermost first; when
// fn returns false the node's children are skipped.
func (t *Tree) Visit(roots []NodeID, fn func(id NodeID, loops []NodeID) bool) {
	var walk func(id NodeID, loops []NodeID)
	walk = func(id NodeID, loops []NodeID) {
		if !fn(id, loops) {
			return
		}
		n := t.At(id)
		inner := loops
		if n.Kind == KindIteration {
			inner = append(slices.Clip(loops), id)
		}
		for _, c := range n.Children() {
			walk(c, inner)
		}
	}
	for _, r := range roots {
		walk(r, nil)
	}
}

// Scope pairs a statement with the iterations that enclose it.
type Scope struct {
	Node  NodeID
	Loops []NodeID
}

// FindScopes returns the scope of every expression, local declaration and
// elemental call under roots. queue is prepended to every scope; it carries
// the iterations enclosing a call site when the roots belong to the callee.
func (t *Tree) FindScopes(roots []NodeID, queue []NodeID) []Scope {
	var out []Scope
	t.Visit(roots, func(id NodeID, loops []NodeID) bool {
		switch t.At(id).Kind {
		case KindExpression, KindLocal, KindCall:
			scope := append(slices.Clone(queue), loops...)
			out = append(out, Scope{Node: id, Loops: scope})
			return false
		}
		return true
	})
	return out
}

// Section is a group of statements sharing the same chain of enclosing
// iterations.
type Section struct {
	Loops []NodeID
	Exprs []NodeID
}

// FindSections groups the expressions under root by iteration space, in
// order of first appearance.
func (t *Tree) FindSections(root NodeID) []Section {
	var out []Section
	index := map[string]int{}
	t.Visit([]NodeID{root}, func(id NodeID, loops []NodeID) bool {
		switch t.At(id).Kind {
		case KindExpression, KindLocal:
			key := loopKey(loops)
			i, ok := index[key]
			if !ok {
				i = len(out)
				index[key] = i
				out = append(out, Section{Loops: slices.Clone(loops)})
			}
			out[i].Exprs = append(out[i].Exprs, id)
			return false
		}
		return true
	})
	return out
}

func loopKey(loops []NodeID) string {
	parts := make([]string, len(loops))
	for i, l := range loops {
		parts[i] = strconv.Itoa(int(l))
	}
	return strings.Join(parts, ",")
}

// IsPerfect reports whether id heads a perfect loop nest: every level holds
// either exactly one nested iteration or only plain statements.
func (t *Tree) IsPerfect(id NodeID) bool {
	n := t.At(id)
	if n.Kind != KindIteration {
		return false
	}
	if len(n.Body) == 1 && t.At(n.Body[0]).Kind == KindIteration {
		return t.IsPerfect(n.Body[0])
	}
	for _, c := range n.Body {
		switch t.At(c).Kind {
		case KindExpression, KindLocal, KindElement:
		default:
			return false
		}
	}
	return true
}

// FindIterations returns every iteration under roots in pre-order.
func (t *Tree) FindIterations(roots []NodeID) []NodeID {
	return t.find(roots, KindIteration)
}

// FindExpressions returns every expression and local declaration under roots.
func (t *Tree) FindExpressions(roots []NodeID) []NodeID {
	return t.find(roots, KindExpression, KindLocal)
}

func (t *Tree) find(roots []NodeID, kinds ...Kind) []NodeID {
	var out []NodeID
	t.Visit(roots, func(id NodeID, _ []NodeID) bool {
		if slices.Contains(kinds, t.At(id).Kind) {
			out = append(out, id)
		}
		return true
	})
	return out
}

// Functions returns the grid functions accessed under roots, in order of
// first appearance; written functions come before those read in the same
// statement.
func (t *Tree) Functions(roots []NodeID) []*sym.Function {
	var out []*sym.Function
	for _, id := range t.FindExpressions(roots) {
		eq := t.At(id).Eq
		for _, side := range []sym.Expr{eq.LHS, eq.RHS} {
			for _, i := range sym.Indexeds(side) {
				if !slices.Contains(out, i.F) {
					out = append(out, i.F)
				}
			}
		}
	}
	return out
}

// Dimensions returns the dimensions iterated over or indexed under roots, in
// order of first appearance.
func (t *Tree) Dimensions(roots []NodeID) []*sym.Dimension {
	var out []*sym.Dimension
	add := func(d *sym.Dimension) {
		if d != nil && !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	t.Visit(roots, func(id NodeID, _ []NodeID) bool {
		n := t.At(id)
		switch n.Kind {
		case KindIteration:
			add(n.Loop.Dim)
			add(n.Loop.Buffered)
		case KindExpression, KindLocal:
			for _, side := range []sym.Expr{n.Eq.LHS, n.Eq.RHS} {
				for _, i := range sym.Indexeds(side) {
					for _, d := range i.F.Indices {
						add(d)
					}
				}
			}
		}
		return true
	})
	return out
}
