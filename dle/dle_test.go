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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nogueirapeterson/devito/dse"
	"github.com/nogueirapeterson/devito/ir"
	"github.com/nogueirapeterson/devito/schedule"
	"github.com/nogueirapeterson/devito/sym"
)

func lower(t *testing.T, exprs []sym.Eq) (*ir.Tree, []ir.NodeID) {
	t.Helper()
	tree := ir.NewTree()
	clusters := dse.Clusterize(exprs, schedule.Stencils(exprs))
	return tree, schedule.Schedule(tree, clusters, schedule.LoopOrdering(exprs), sym.Forward)
}

type loopInfo struct {
	Index   string
	Props   ir.Property
	Pragmas []string
}

func loops(tree *ir.Tree, roots []ir.NodeID) []loopInfo {
	var out []loopInfo
	for _, id := range tree.FindIterations(roots) {
		l := tree.At(id).Loop
		out = append(out, loopInfo{Index: l.Index, Props: l.Props, Pragmas: l.Pragmas})
	}
	return out
}

func grid2D() (x, y *sym.Dimension, u, v *sym.Function) {
	x, y = sym.NewDimension("x"), sym.NewDimension("y")
	u = sym.NewFunction("u", sym.Float32, []*sym.Dimension{x, y}, []int{16, 16})
	v = sym.NewFunction("v", sym.Float32, []*sym.Dimension{x, y}, []int{16, 16})
	return
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		err  error
	}{
		{"", Noop, nil},
		{"None", Noop, nil},
		{"basic", Basic, nil},
		{" ADVANCED ", Advanced, nil},
		{"speculative", "", ErrUnknownMode},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if !errors.Is(err, tt.err) {
				t.Fatalf("ParseMode(%q) error = %v, want %v", tt.in, err, tt.err)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNoop(t *testing.T) {
	x, y, u, v := grid2D()
	tree, roots := lower(t, []sym.Eq{{LHS: u.At(sym.Idx(x), sym.Idx(y)), RHS: v.At(sym.Idx(x), sym.Idx(y))}})
	st, err := Default{}.Transform(tree, roots, Noop, Options{Parallelism: true})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(roots, st.Roots); diff != "" {
		t.Errorf("roots changed (-want +got):\n%s", diff)
	}
	if st.HasAppliedBlocking || len(st.Includes) != 0 {
		t.Errorf("noop produced blocking=%v includes=%v", st.HasAppliedBlocking, st.Includes)
	}
}

func TestBasicClassification(t *testing.T) {
	x, y, u, v := grid2D()
	time := sym.NewTimeDimension("time")
	w := sym.NewFunction("w", sym.Float32, []*sym.Dimension{time, x}, []int{4, 16})

	tests := []struct {
		name     string
		exprs    []sym.Eq
		opts     Options
		want     []loopInfo
		includes []string
	}{
		{
			name:  "parallel nest",
			exprs: []sym.Eq{{LHS: u.At(sym.Idx(x), sym.Idx(y)), RHS: sym.Add(v.At(sym.Idx(x), sym.Idx(y)), sym.Num(1))}},
			opts:  Options{Parallelism: true},
			want: []loopInfo{
				{Index: "x", Props: ir.Parallel, Pragmas: []string{"omp parallel for schedule(static)"}},
				{Index: "y", Props: ir.Parallel | ir.Vectorizable, Pragmas: []string{"GCC ivdep"}},
			},
			includes: []string{"omp.h"},
		},
		{
			name:  "serial build",
			exprs: []sym.Eq{{LHS: u.At(sym.Idx(x), sym.Idx(y)), RHS: v.At(sym.Idx(x), sym.Idx(y))}},
			want: []loopInfo{
				{Index: "x", Props: ir.Parallel},
				{Index: "y", Props: ir.Parallel | ir.Vectorizable, Pragmas: []string{"GCC ivdep"}},
			},
		},
		{
			name:  "carried dependence",
			exprs: []sym.Eq{{LHS: u.At(sym.Idx(x), sym.Idx(y)), RHS: u.At(sym.Off(x, -1), sym.Idx(y))}},
			opts:  Options{Parallelism: true},
			want: []loopInfo{
				{Index: "x", Props: ir.Sequential},
				{Index: "y", Props: ir.Parallel | ir.Vectorizable, Pragmas: []string{"omp parallel for schedule(static)"}},
			},
			includes: []string{"omp.h"},
		},
		{
			name:  "time stepping",
			exprs: []sym.Eq{{LHS: w.At(sym.Off(time, 1), sym.Idx(x)), RHS: w.At(sym.Idx(time), sym.Idx(x))}},
			want: []loopInfo{
				{Index: "time", Props: ir.Sequential},
				{Index: "x", Props: ir.Parallel | ir.Vectorizable, Pragmas: []string{"GCC ivdep"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, roots := lower(t, tt.exprs)
			st, err := Default{}.Transform(tree, roots, Basic, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, loops(tree, st.Roots)); diff != "" {
				t.Errorf("loops mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.includes, st.Includes); diff != "" {
				t.Errorf("includes mismatch (-want +got):\n%s", diff)
			}
			if len(st.Arguments) != 0 {
				t.Errorf("basic mode produced block arguments %v", st.Arguments)
			}
		})
	}
}

func TestAdvancedBlocking(t *testing.T) {
	x, y, u, v := grid2D()
	time := sym.NewTimeDimension("time")
	w := sym.NewFunction("w", sym.Float32, []*sym.Dimension{time, x, y}, []int{4, 16, 16})

	plain := []sym.Eq{{LHS: u.At(sym.Idx(x), sym.Idx(y)), RHS: v.At(sym.Idx(x), sym.Idx(y))}}
	stepped := []sym.Eq{{LHS: w.At(sym.Off(time, 1), sym.Idx(x), sym.Idx(y)), RHS: w.At(sym.Idx(time), sym.Idx(x), sym.Idx(y))}}

	tests := []struct {
		name       string
		exprs      []sym.Eq
		opts       Options
		loops      []string
		args       []string
		aggressive bool
	}{
		{"outer band", plain, Options{}, []string{"x0_blk", "x", "y"}, []string{"x0_block_size"}, false},
		{"block inner", plain, Options{BlockInner: true}, []string{"x0_blk", "y0_blk", "x", "y"}, []string{"x0_block_size", "y0_block_size"}, true},
		{"under time loop", stepped, Options{}, []string{"time", "x0_blk", "x", "y"}, []string{"x0_block_size"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, roots := lower(t, tt.exprs)
			st, err := Default{}.Transform(tree, roots, Advanced, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, l := range loops(tree, st.Roots) {
				got = append(got, l.Index)
			}
			if diff := cmp.Diff(tt.loops, got); diff != "" {
				t.Errorf("loops mismatch (-want +got):\n%s", diff)
			}
			var names []string
			for _, a := range st.Arguments {
				names = append(names, a.Name)
			}
			if diff := cmp.Diff(tt.args, names); diff != "" {
				t.Errorf("arguments mismatch (-want +got):\n%s", diff)
			}
			if !st.HasAppliedBlocking {
				t.Error("HasAppliedBlocking = false")
			}
			if st.NeedsAggressiveAutotuning != tt.aggressive {
				t.Errorf("NeedsAggressiveAutotuning = %v, want %v", st.NeedsAggressiveAutotuning, tt.aggressive)
			}
		})
	}
}

func TestBlockBounds(t *testing.T) {
	x, y, u, v := grid2D()
	tree, roots := lower(t, []sym.Eq{{LHS: u.At(sym.Idx(x), sym.Idx(y)), RHS: v.At(sym.Off(x, 1), sym.Idx(y))}})
	st, err := Default{}.Transform(tree, roots, Advanced, Options{BlockSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	iters := tree.FindIterations(st.Roots)
	blk, inner := tree.At(iters[0]).Loop, tree.At(iters[1]).Loop
	if got := blk.Step.String(); got != "x0_block_size" {
		t.Errorf("block step = %s", got)
	}
	if got := inner.Upper.String(); got != "MIN((x0_blk + x0_block_size), (x_size - 1))" {
		t.Errorf("inner upper = %s", got)
	}
	arg := st.Arguments[0]
	if arg.Fixed != 4 || arg.Dim != x || arg.Loop.End(16) != 15 {
		t.Errorf("argument = %+v", arg)
	}
}

func TestElementalExtraction(t *testing.T) {
	x, y, u, v := grid2D()
	tree, roots := lower(t, []sym.Eq{{LHS: u.At(sym.Idx(x), sym.Idx(y)), RHS: v.At(sym.Idx(x), sym.Idx(y))}})
	st, err := Default{}.Transform(tree, roots, Advanced, Options{Elemental: true, Parallelism: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Callables) != 1 {
		t.Fatalf("got %d callables, want 1", len(st.Callables))
	}
	c := st.Callables[0]
	var params []string
	for _, p := range c.Params {
		params = append(params, p.Name)
	}
	want := []string{"x0_blk", "x0_block_size", "x_size", "y_size", "u", "v"}
	if diff := cmp.Diff(want, params); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}

	blk := tree.At(st.Roots[0])
	if blk.Kind != ir.KindIteration || len(blk.Body) != 1 {
		t.Fatalf("unexpected root %+v", blk)
	}
	call := tree.At(blk.Body[0])
	if call.Kind != ir.KindCall || call.Callee != "f_0" {
		t.Fatalf("block body is %v %q, want call to f_0", call.Kind, call.Callee)
	}
	if diff := cmp.Diff(want, call.Args); diff != "" {
		t.Errorf("call args mismatch (-want +got):\n%s", diff)
	}
	if got := loops(tree, []ir.NodeID{c.Body}); len(got) != 2 || got[1].Pragmas[0] != "GCC ivdep" {
		t.Errorf("callable loops = %+v", got)
	}
}

func TestNeighbourReadsAcrossTimeSlots(t *testing.T) {
	x, y, _, _ := grid2D()
	time := sym.NewTimeDimension("time")
	tb := sym.NewBufferedDimension("t", time, 2)
	u := sym.NewFunction("u", sym.Float32, []*sym.Dimension{tb, x, y}, []int{2, 16, 16})
	at := func(dx, dy int) sym.Expr { return u.At(sym.Idx(tb), sym.Off(x, dx), sym.Off(y, dy)) }
	laplace := sym.Sub(sym.Add(at(-1, 0), at(1, 0), at(0, -1), at(0, 1)), sym.Mul(sym.Num(4), at(0, 0)))
	exprs := []sym.Eq{{LHS: u.At(sym.Off(tb, 1), sym.Idx(x), sym.Idx(y)), RHS: sym.Add(at(0, 0), laplace)}}

	tree, roots := lower(t, exprs)
	st, err := Default{}.Transform(tree, roots, Basic, Options{})
	if err != nil {
		t.Fatal(err)
	}
	want := []loopInfo{
		{Index: "time", Props: ir.Sequential},
		{Index: "x", Props: ir.Parallel},
		{Index: "y", Props: ir.Parallel | ir.Vectorizable, Pragmas: []string{"GCC ivdep"}},
	}
	if diff := cmp.Diff(want, loops(tree, st.Roots)); diff != "" {
		t.Errorf("loops mismatch (-want +got):\n%s", diff)
	}

	tree, roots = lower(t, exprs)
	st, err = Default{}.Transform(tree, roots, Advanced, Options{})
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, l := range loops(tree, st.Roots) {
		got = append(got, l.Index)
	}
	if diff := cmp.Diff([]string{"time", "x0_blk", "x", "y"}, got); diff != "" {
		t.Errorf("loops mismatch (-want +got):\n%s", diff)
	}
	if !st.HasAppliedBlocking {
		t.Error("HasAppliedBlocking = false")
	}
}

func TestSkewedDependence(t *testing.T) {
	x, y, u, _ := grid2D()
	tree, roots := lower(t, []sym.Eq{{LHS: u.At(sym.Idx(x), sym.Idx(y)), RHS: u.At(sym.Off(x, -1), sym.Off(y, 1))}})
	st, err := Default{}.Transform(tree, roots, Basic, Options{})
	if err != nil {
		t.Fatal(err)
	}
	want := []loopInfo{
		{Index: "x", Props: ir.Sequential},
		{Index: "y", Props: ir.Parallel | ir.Vectorizable, Pragmas: []string{"GCC ivdep"}},
	}
	if diff := cmp.Diff(want, loops(tree, st.Roots)); diff != "" {
		t.Errorf("loops mismatch (-want +got):\n%s", diff)
	}
}
