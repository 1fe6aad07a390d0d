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
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/nogueirapeterson/devito/ir"
	"github.com/nogueirapeterson/devito/sym"
)

// blocker tiles the parallel band of every maximal perfect loop nest.
type blocker struct {
	tree      *ir.Tree
	opts      Options
	counters  map[*sym.Dimension]int
	args      []BlockArgument
	callables []ir.Callable
}

func (b *blocker) apply(roots []ir.NodeID) []ir.NodeID {
	t := b.tree
	mapper := map[ir.NodeID]ir.NodeID{}
	t.Visit(roots, func(id ir.NodeID, _ []ir.NodeID) bool {
		if t.At(id).Kind != ir.KindIteration || !t.IsPerfect(id) {
			return true
		}
		if target, img, ok := b.tile(id); ok {
			mapper[target] = img
		}
		return false
	})
	return t.Substitute(roots, mapper).Roots
}

// tile rewrites the nest headed by id. The band is the first run of
// non-sequential loops; the innermost loop joins it only with BlockInner.
// It returns the band's outermost loop and its replacement.
func (b *blocker) tile(id ir.NodeID) (ir.NodeID, ir.NodeID, bool) {
	t := b.tree
	chain := []ir.NodeID{id}
	for {
		body := t.At(chain[len(chain)-1]).Body
		if len(body) != 1 || t.At(body[0]).Kind != ir.KindIteration {
			break
		}
		chain = append(chain, body[0])
	}
	limit := len(chain)
	if !b.opts.BlockInner {
		limit--
	}
	first := slices.IndexFunc(chain[:limit], func(id ir.NodeID) bool { return !t.At(id).Loop.Is(ir.Sequential) })
	if first < 0 {
		return ir.Nil, ir.Nil, false
	}
	last := first
	for last < limit && !t.At(chain[last]).Loop.Is(ir.Sequential) {
		last++
	}
	band := chain[first:last]

	blocks := make([]ir.Loop, len(band))
	inners := make([]ir.Loop, len(band))
	for k, lid := range band {
		l := *t.At(lid).Loop
		n := b.counters[l.Dim]
		b.counters[l.Dim]++
		index := fmt.Sprintf("%s%d_blk", l.Index, n)
		size := fmt.Sprintf("%s%d_block_size", l.Index, n)

		blk := l
		blk.Index = index
		blk.Step = sym.Var(size, sym.Int32)
		blk.Block = size
		blk.Pragmas = nil
		blk.Props &^= ir.Vectorizable
		blocks[k] = blk

		in := l
		in.Lower = sym.Var(index, sym.Int32)
		in.Upper = &sym.Call{Name: "MIN", Args: []sym.Expr{
			sym.Add(sym.Var(index, sym.Int32), sym.Var(size, sym.Int32)),
			l.Upper,
		}}
		inners[k] = in

		b.args = append(b.args, BlockArgument{
			Name:  size,
			Dim:   l.Dim,
			Value: b.opts.BlockFunc,
			Fixed: b.opts.BlockSize,
			Loop:  l,
		})
	}

	inner, _ := t.Compose(inners, t.At(band[len(band)-1]).Body)
	tileBody := []ir.NodeID{inner}
	if b.opts.Elemental {
		if call, ok := b.extract(inner); ok {
			tileBody = []ir.NodeID{call}
		}
	}
	outer, _ := t.Compose(blocks, tileBody)
	return band[0], outer, true
}

// extract moves the tree under body into a new elemental function and
// returns the call that replaces it. Integer values the body reads from
// outside become int parameters, in name order, followed by the arrays it
// accesses. Stack temporaries are declared inside the function and are not
// passed. Bodies reading an outer floating-point scalar are left in place.
func (b *blocker) extract(body ir.NodeID) (ir.NodeID, bool) {
	t := b.tree
	bound := map[string]bool{}
	var ints []string
	var arrays []*sym.Function
	need := func(name string) {
		if !slices.Contains(ints, name) {
			ints = append(ints, name)
		}
	}
	ok := true
	t.Visit([]ir.NodeID{body}, func(id ir.NodeID, _ []ir.NodeID) bool {
		n := t.At(id)
		switch n.Kind {
		case ir.KindIteration:
			bound[n.Loop.Index] = true
			for _, e := range []sym.Expr{n.Loop.Lower, n.Loop.Upper, n.Loop.Step} {
				for _, s := range sym.Symbols(e) {
					need(s.Name)
				}
			}
		case ir.KindExpression, ir.KindLocal:
			for _, s := range sym.Symbols(n.Eq.RHS) {
				switch {
				case bound[s.Name]:
				case s.DType == sym.Int32:
					need(s.Name)
				default:
					ok = false
				}
			}
			if s, isSym := n.Eq.LHS.(*sym.Symbol); isSym {
				bound[s.Name] = true
			}
			for _, side := range []sym.Expr{n.Eq.LHS, n.Eq.RHS} {
				for _, i := range sym.Indexeds(side) {
					if i.F.Memory != sym.Stack && !slices.Contains(arrays, i.F) {
						arrays = append(arrays, i.F)
					}
					for _, a := range i.Index {
						need(a.Dim.Root().Name)
					}
				}
			}
		}
		return true
	})
	if !ok {
		return ir.Nil, false
	}
	for _, f := range arrays {
		for _, d := range f.Indices[min(1, len(f.Indices)):] {
			if d.Size == 0 && !d.IsBuffered() {
				need(d.SizeName())
			}
		}
	}
	ints = lo.Filter(ints, func(name string, _ int) bool { return !bound[name] })
	slices.Sort(ints)

	params := lo.Map(ints, func(name string, _ int) ir.Param { return ir.Param{Name: name} })
	for _, f := range arrays {
		params = append(params, ir.Param{Name: f.Name, Array: f})
	}
	name := fmt.Sprintf("f_%d", len(b.callables))
	b.callables = append(b.callables, ir.Callable{Name: name, Params: params, Body: body})
	args := lo.Map(params, func(p ir.Param, _ int) string { return p.Name })
	return t.NewCall(name, args...), true
}
