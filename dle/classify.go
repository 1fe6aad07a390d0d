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

package dle

import (
	"github.com/nogueirapeterson/devito/ir"
	"github.com/nogueirapeterson/devito/sym"
)

// classify sets the properties of every loop under roots.
func classify(t *ir.Tree, roots []ir.NodeID) []ir.NodeID {
	mapper := map[ir.NodeID]ir.NodeID{}
	t.Visit(roots, func(id ir.NodeID, loops []ir.NodeID) bool {
		if t.At(id).Kind != ir.KindIteration {
			return true
		}
		l := *t.At(id).Loop
		if props := properties(t, id, loops); props != l.Props {
			l.Props = props
			mapper[id] = t.WithLoop(id, l)
		}
		return true
	})
	return t.Substitute(roots, mapper).Roots
}

func properties(t *ir.Tree, id ir.NodeID, outer []ir.NodeID) ir.Property {
	l := t.At(id).Loop
	if l.Dim.Time || carriesDependence(t, id, outer) {
		return ir.Sequential
	}
	if len(t.FindIterations([]ir.NodeID{id})) == 1 {
		return ir.Parallel | ir.Vectorizable
	}
	return ir.Parallel
}

// carriesDependence reports whether loop id carries a dependence: a function
// written under it is accessed, under the same loop, at the same offsets
// along every enclosing loop but a different offset along the loop itself.
// Pairs that already differ along an enclosing loop are carried there.
func carriesDependence(t *ir.Tree, id ir.NodeID, outer []ir.NodeID) bool {
	d := t.At(id).Loop.Dim.Root()
	enclosing := make([]*sym.Dimension, 0, len(outer))
	for _, o := range outer {
		enclosing = append(enclosing, t.At(o).Loop.Dim.Root())
	}
	var eqs []*sym.Eq
	for _, e := range t.FindExpressions([]ir.NodeID{id}) {
		eqs = append(eqs, t.At(e).Eq)
	}
	for _, w := range eqs {
		write, ok := w.LHS.(*sym.Indexed)
		if !ok {
			continue
		}
		for _, r := range eqs {
			for _, side := range []sym.Expr{r.LHS, r.RHS} {
				for _, acc := range sym.Indexeds(side) {
					if acc.F == write.F && carried(write, acc, d, enclosing) {
						return true
					}
				}
			}
		}
	}
	return false
}

func carried(write, acc *sym.Indexed, d *sym.Dimension, enclosing []*sym.Dimension) bool {
	for _, e := range enclosing {
		if offsetAlong(write, e) != offsetAlong(acc, e) {
			return false
		}
	}
	return offsetAlong(write, d) != offsetAlong(acc, d)
}

func offsetAlong(i *sym.Indexed, d *sym.Dimension) int {
	for _, a := range i.Index {
		if a.Dim.Root() == d {
			return a.Offset
		}
	}
	return 0
}

// decorate attaches pragmas: an OpenMP work-sharing directive on the
// outermost parallel loop of the kernel when parallelism is enabled, and a
// vectorization hint on innermost loops. It reports whether OpenMP is used.
func decorate(t *ir.Tree, roots []ir.NodeID, callables []ir.Callable, opts Options) ([]ir.NodeID, bool) {
	mapper := map[ir.NodeID]ir.NodeID{}
	openmp := false
	mark := func(roots []ir.NodeID, allowOMP bool) {
		t.Visit(roots, func(id ir.NodeID, loops []ir.NodeID) bool {
			if t.At(id).Kind != ir.KindIteration {
				return true
			}
			l := *t.At(id).Loop
			var pragmas []string
			if allowOMP && opts.Parallelism && l.Is(ir.Parallel) && !enclosedByParallel(t, loops) {
				pragmas = append(pragmas, "omp parallel for schedule(static)")
				openmp = true
			}
			if l.Is(ir.Vectorizable) && len(pragmas) == 0 {
				pragmas = append(pragmas, "GCC ivdep")
			}
			if len(pragmas) > 0 {
				l.Pragmas = append(l.Pragmas, pragmas...)
				mapper[id] = t.WithLoop(id, l)
			}
			return true
		})
	}
	mark(roots, true)
	for _, c := range callables {
		mark([]ir.NodeID{c.Body}, false)
	}
	if len(mapper) == 0 {
		return roots, false
	}
	for i := range callables {
		callables[i].Body = t.Substitute([]ir.NodeID{callables[i].Body}, mapper).Roots[0]
	}
	return t.Substitute(roots, mapper).Roots, openmp
}

func enclosedByParallel(t *ir.Tree, loops []ir.NodeID) bool {
	for _, id := range loops {
		if t.At(id).Loop.Is(ir.Parallel) {
			return true
		}
	}
	return false
}
