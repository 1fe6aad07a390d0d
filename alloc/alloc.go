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

// Package alloc places the declarations of the objects a kernel touches.
//
// Scalars assigned in the tree become local declarations at their first
// assignment. Grid functions supplied by the caller need nothing. Stack
// temporaries are declared at the head of the innermost loop of the outer run
// of loops they do not vary with. Every other temporary lives on the
// heap: it is allocated before and released after the whole kernel body.
package alloc

import (
	"slices"

	"github.com/samber/lo"

	"github.com/nogueirapeterson/devito/ir"
	"github.com/nogueirapeterson/devito/sym"
)

// Result is the planned kernel.
type Result struct {
	// Roots is the kernel body. When heap temporaries exist it is a single
	// list bracketing the body with their allocation and release.
	Roots     []ir.NodeID
	Callables []ir.Callable
	Heap      []*sym.Function
	Stack     []*sym.Function
}

// kernel is the owner of statements in the kernel body; statements of
// callable i have owner i.
const kernel = -1

type use struct {
	owner int
	scope ir.Scope
	// queued counts the call-site loops in front of scope.Loops.
	queued int
}

type planner struct {
	tree      *ir.Tree
	roots     []ir.NodeID
	callables []ir.Callable

	uses    map[*sym.Function][]use
	order   []*sym.Function
	scalars []use

	mapper map[ir.NodeID]ir.NodeID
	site   map[ir.NodeID][]ir.NodeID
	top    map[ir.NodeID][]ir.NodeID
}

// Plan declares every object referenced under roots and in callables. The
// rewrite is a single substitution over the kernel body and the callables,
// so nodes shared between them stay consistent.
func Plan(t *ir.Tree, roots []ir.NodeID, callables []ir.Callable) *Result {
	p := &planner{
		tree:      t,
		roots:     roots,
		callables: slices.Clone(callables),
		uses:      map[*sym.Function][]use{},
		mapper:    map[ir.NodeID]ir.NodeID{},
		site:      map[ir.NodeID][]ir.NodeID{},
		top:       map[ir.NodeID][]ir.NodeID{},
	}
	p.resolve(kernel, roots, nil, nil)

	res := &Result{}
	p.declareScalars()
	for _, f := range p.order {
		switch f.Memory {
		case sym.External:
		case sym.Stack:
			if p.declareStack(f) {
				res.Stack = append(res.Stack, f)
				continue
			}
			res.Heap = append(res.Heap, f)
		default:
			res.Heap = append(res.Heap, f)
		}
	}
	p.attach()

	all := append(slices.Clone(roots), lo.Map(p.callables, func(c ir.Callable, _ int) ir.NodeID { return c.Body })...)
	sub := t.Substitute(all, p.mapper)
	res.Roots = sub.Roots[:len(roots)]
	for i := range p.callables {
		p.callables[i].Body = sub.Roots[len(roots)+i]
	}
	res.Callables = p.callables

	if len(res.Heap) > 0 {
		var header, footer []ir.NodeID
		for _, f := range res.Heap {
			header = append(header, t.NewElement(ir.RoleDeclare, f), t.NewElement(ir.RoleAlloc, f))
			footer = append(footer, t.NewElement(ir.RoleFree, f))
		}
		res.Roots = []ir.NodeID{t.NewList(header, res.Roots, footer)}
	}
	return res
}

// resolve records the scope of every statement under roots. A call to an
// elemental function pulls in the callee's statements, with the loops around
// the call site queued in front of their scopes.
func (p *planner) resolve(owner int, roots, queue []ir.NodeID, seen []string) {
	for _, s := range p.tree.FindScopes(roots, queue) {
		n := p.tree.At(s.Node)
		if n.Kind == ir.KindCall {
			i := slices.IndexFunc(p.callables, func(c ir.Callable) bool { return c.Name == n.Callee })
			if i < 0 || slices.Contains(seen, n.Callee) {
				continue
			}
			p.resolve(i, []ir.NodeID{p.callables[i].Body}, s.Loops, append(seen, n.Callee))
			continue
		}
		u := use{owner: owner, scope: s, queued: len(queue)}
		if _, ok := n.Eq.LHS.(*sym.Symbol); ok && n.Kind == ir.KindExpression {
			p.scalars = append(p.scalars, u)
		}
		for _, side := range []sym.Expr{n.Eq.LHS, n.Eq.RHS} {
			for _, i := range sym.Indexeds(side) {
				if _, ok := p.uses[i.F]; !ok {
					p.order = append(p.order, i.F)
				}
				p.uses[i.F] = append(p.uses[i.F], u)
			}
		}
	}
}

// declareScalars turns the first assignment of each scalar, per function
// body, into a declaration.
func (p *planner) declareScalars() {
	type key struct {
		owner int
		name  string
	}
	declared := map[key]bool{}
	for _, u := range p.scalars {
		n := p.tree.At(u.scope.Node)
		k := key{u.owner, n.Eq.LHS.(*sym.Symbol).Name}
		if declared[k] {
			continue
		}
		declared[k] = true
		p.mapper[u.scope.Node] = p.tree.NewLocal(*n.Eq, n.DType)
	}
}

// declareStack places f in every function body using it. It reports false
// when the kernel body offers no loop to hold the declaration.
func (p *planner) declareStack(f *sym.Function) bool {
	byOwner := lo.GroupBy(p.uses[f], func(u use) int { return u.owner })
	if uses, ok := byOwner[kernel]; ok {
		site := stackSite(p.tree, f, commonLoops(lo.Map(uses, func(u use, _ int) []ir.NodeID { return u.scope.Loops })))
		if site == ir.Nil {
			return false
		}
		p.site[site] = append(p.site[site], p.tree.NewElement(ir.RoleDeclare, f))
	}
	owners := lo.Keys(byOwner)
	slices.Sort(owners)
	for _, owner := range owners {
		if owner == kernel {
			continue
		}
		uses := byOwner[owner]
		local := commonLoops(lo.Map(uses, func(u use, _ int) []ir.NodeID { return u.scope.Loops[u.queued:] }))
		decl := p.tree.NewElement(ir.RoleDeclare, f)
		if site := stackSite(p.tree, f, local); site != ir.Nil {
			p.site[site] = append(p.site[site], decl)
		} else {
			body := p.callables[owner].Body
			p.top[body] = append(p.top[body], decl)
		}
	}
	return true
}

// stackSite scans loops from the outermost and returns the innermost loop of
// the leading run that f does not vary along, or ir.Nil when the outermost
// loop already indexes f.
func stackSite(t *ir.Tree, f *sym.Function, loops []ir.NodeID) ir.NodeID {
	site := ir.Nil
	for _, id := range loops {
		if f.Indexes(t.At(id).Loop.Dim) {
			break
		}
		site = id
	}
	return site
}

// commonLoops returns the longest common prefix of the given loop chains.
func commonLoops(chains [][]ir.NodeID) []ir.NodeID {
	if len(chains) == 0 {
		return nil
	}
	out := chains[0]
	for _, c := range chains[1:] {
		n := 0
		for n < len(out) && n < len(c) && out[n] == c[n] {
			n++
		}
		out = out[:n]
	}
	return out
}

// attach adds the collected declarations to the mapper.
func (p *planner) attach() {
	t := p.tree
	targets := lo.Uniq(append(lo.Keys(p.site), lo.Keys(p.top)...))
	slices.Sort(targets)
	for _, id := range targets {
		img := id
		if decls := p.site[id]; len(decls) > 0 {
			img = t.Rebuild(id, append(slices.Clone(decls), t.At(id).Body...))
		}
		if decls := p.top[id]; len(decls) > 0 {
			img = t.NewList(decls, []ir.NodeID{img}, nil)
		}
		p.mapper[id] = img
	}
}
