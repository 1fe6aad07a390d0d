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
	"testing"

	"github.com/nogueirapeterson/devito/sym"
)

func testLoop(d *sym.Dimension) Loop {
	return Loop{Dim: d, Index: d.Name, Lower: sym.Int(0), Upper: sym.Var(d.SizeName(), sym.Int32), Step: sym.Int(1)}
}

func testExpr(t *Tree, f *sym.Function, dims ...*sym.Dimension) NodeID {
	idx := make([]sym.Access, len(dims))
	for i, d := range dims {
		idx[i] = sym.Idx(d)
	}
	return t.NewExpression(sym.Eq{LHS: f.At(idx...), RHS: sym.Num(1)}, sym.Float32)
}

func TestSubstituteRebuildsAncestors(t *testing.T) {
	x, y := sym.NewDimension("x"), sym.NewDimension("y")
	u := sym.NewFunction("u", sym.Float32, []*sym.Dimension{x, y}, []int{4, 4})
	tree := NewTree()

	e := testExpr(tree, u, x, y)
	inner := tree.NewIteration(testLoop(y), e)
	outer := tree.NewIteration(testLoop(x), inner)

	e2 := testExpr(tree, u, x, y)
	newInner := tree.Rebuild(inner, []NodeID{e, e2})
	sub := tree.Substitute([]NodeID{outer}, map[NodeID]NodeID{inner: newInner})

	root := sub.Roots[0]
	if root == outer {
		t.Fatal("outer loop was not rebuilt")
	}
	if got := sub.Lookup(outer); got != root {
		t.Errorf("Lookup(outer) = %d, want %d", got, root)
	}
	if got := sub.Lookup(inner); got != newInner {
		t.Errorf("Lookup(inner) = %d, want %d", got, newInner)
	}
	if body := tree.At(tree.At(root).Body[0]).Body; len(body) != 2 {
		t.Errorf("inner body has %d statements, want 2", len(body))
	}
	// The original nest is untouched.
	if body := tree.At(inner).Body; len(body) != 1 {
		t.Errorf("original inner body has %d statements, want 1", len(body))
	}
}

func TestSubstituteWrap(t *testing.T) {
	x := sym.NewDimension("x")
	u := sym.NewFunction("u", sym.Float32, []*sym.Dimension{x}, []int{4})
	tree := NewTree()

	loop := tree.NewIteration(testLoop(x), testExpr(tree, u, x))
	list := tree.NewList(nil, []NodeID{loop}, nil)
	timed := tree.NewTimed("loop_x_0", loop)

	sub := tree.Substitute([]NodeID{list}, map[NodeID]NodeID{loop: timed})
	body := tree.At(sub.Roots[0]).Body
	if len(body) != 1 || tree.At(body[0]).Kind != KindTimed {
		t.Fatalf("body = %v, want a single timed node", body)
	}
	if got := tree.At(body[0]).Body; len(got) != 1 || got[0] != loop {
		t.Errorf("timed body = %v, want [%d]", got, loop)
	}
}

func TestIsPerfectAndSections(t *testing.T) {
	x, y := sym.NewDimension("x"), sym.NewDimension("y")
	u := sym.NewFunction("u", sym.Float32, []*sym.Dimension{x, y}, []int{4, 4})
	tree := NewTree()

	y1 := tree.NewIteration(testLoop(y), testExpr(tree, u, x, y))
	y2 := tree.NewIteration(testLoop(y), testExpr(tree, u, x, y))
	outer := tree.NewIteration(testLoop(x), y1, y2)

	if tree.IsPerfect(outer) {
		t.Error("loop with two nested loops reported perfect")
	}
	if !tree.IsPerfect(y1) {
		t.Error("innermost loop reported imperfect")
	}
	sections := tree.FindSections(outer)
	if len(sections) != 2 {
		t.Fatalf("got %d sections, want 2", len(sections))
	}
	for i, s := range sections {
		if len(s.Loops) != 2 || s.Loops[0] != outer {
			t.Errorf("section %d loops = %v", i, s.Loops)
		}
	}
}

func TestFindScopesWithQueue(t *testing.T) {
	x := sym.NewDimension("x")
	u := sym.NewFunction("u", sym.Float32, []*sym.Dimension{x}, []int{4})
	tree := NewTree()

	e := testExpr(tree, u, x)
	loop := tree.NewIteration(testLoop(x), e)
	scopes := tree.FindScopes([]NodeID{loop}, []NodeID{42})
	if len(scopes) != 1 {
		t.Fatalf("got %d scopes", len(scopes))
	}
	if got := scopes[0].Loops; len(got) != 2 || got[0] != 42 || got[1] != loop {
		t.Errorf("scope = %v, want [42 %d]", got, loop)
	}
}
