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

package dse

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nogueirapeterson/devito/sym"
)

func stencils(exprs []sym.Eq) []*sym.Stencil {
	out := make([]*sym.Stencil, len(exprs))
	for i, eq := range exprs {
		out[i] = sym.StencilOf(eq)
	}
	return out
}

func traces(clusters []*Cluster) [][]string {
	out := make([][]string, len(clusters))
	for i, c := range clusters {
		for _, eq := range c.Trace {
			out[i] = append(out[i], eq.String())
		}
	}
	return out
}

func TestClusterize(t *testing.T) {
	x, y := sym.NewDimension("x"), sym.NewDimension("y")
	u := sym.NewFunction("u", sym.Float32, []*sym.Dimension{x, y}, []int{4, 4})
	v := sym.NewFunction("v", sym.Float32, []*sym.Dimension{x}, []int{4})
	r := sym.Var("r", sym.Float32)

	exprs := []sym.Eq{
		{LHS: r, RHS: sym.Mul(v.At(sym.Idx(x)), sym.Num(2))},
		{LHS: u.At(sym.Idx(x), sym.Idx(y)), RHS: sym.Add(r, sym.Num(1))},
		{LHS: u.At(sym.Idx(x), sym.Idx(y)), RHS: sym.Add(u.At(sym.Idx(x), sym.Idx(y)), r)},
		{LHS: v.At(sym.Idx(x)), RHS: sym.Num(0)},
	}
	got := traces(Clusterize(exprs, stencils(exprs)))
	want := [][]string{
		{"r = (v[x] * 2)", "u[x, y] = (r + 1)", "u[x, y] = (u[x, y] + r)"},
		{"v[x] = 0"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("clusters mismatch (-want +got):\n%s", diff)
	}
}

func TestCommonSubexpressions(t *testing.T) {
	x := sym.NewDimension("x")
	u := sym.NewFunction("u", sym.Float64, []*sym.Dimension{x}, []int{8})
	v := sym.NewFunction("v", sym.Float64, []*sym.Dimension{x}, []int{8})
	w := sym.NewFunction("w", sym.Float64, []*sym.Dimension{x}, []int{8})

	sum := func() sym.Expr { return sym.Add(v.At(sym.Off(x, -1)), v.At(sym.Off(x, 1))) }
	exprs := []sym.Eq{
		{LHS: u.At(sym.Idx(x)), RHS: sym.Mul(sum(), sym.Num(0.5))},
		{LHS: w.At(sym.Idx(x)), RHS: sym.Sub(sum(), v.At(sym.Idx(x)))},
	}

	tests := []struct {
		mode string
		want []string
	}{
		{
			mode: "noop",
			want: []string{
				"u[x] = ((v[x - 1] + v[x + 1]) * 0.5)",
				"w[x] = ((v[x - 1] + v[x + 1]) - v[x])",
			},
		},
		{
			mode: "Advanced",
			want: []string{
				"r0 = (v[x - 1] + v[x + 1])",
				"u[x] = (r0 * 0.5)",
				"w[x] = (r0 - v[x])",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			rw, err := New(tt.mode)
			if err != nil {
				t.Fatalf("New(%q): %v", tt.mode, err)
			}
			clusters, err := rw.Rewrite(exprs, stencils(exprs))
			if err != nil {
				t.Fatalf("Rewrite: %v", err)
			}
			if len(clusters) != 1 {
				t.Fatalf("got %d clusters, want 1", len(clusters))
			}
			if diff := cmp.Diff(tt.want, traces(clusters)[0]); diff != "" {
				t.Errorf("trace mismatch (-want +got):\n%s", diff)
			}
			if tmp, ok := clusters[0].Trace[0].LHS.(*sym.Symbol); ok && tmp.DType != sym.Float64 {
				t.Errorf("temporary %s has type %v, want float64", tmp, tmp.DType)
			}
		})
	}
	// The input equations are left untouched.
	if got := exprs[0].RHS.String(); got != "((v[x - 1] + v[x + 1]) * 0.5)" {
		t.Errorf("input rewritten: %s", got)
	}
}

func TestCommonSubexpressionsAcrossWrites(t *testing.T) {
	x := sym.NewDimension("x")
	f := func(name string) *sym.Function {
		return sym.NewFunction(name, sym.Float32, []*sym.Dimension{x}, []int{8})
	}
	a, b, c, d, e := f("a"), f("b"), f("c"), f("d"), f("e")
	at := func(g *sym.Function) sym.Expr { return g.At(sym.Idx(x)) }
	prod := func() sym.Expr { return sym.Mul(at(b), at(c)) }

	tests := []struct {
		name  string
		exprs []sym.Eq
		want  []string
	}{
		{
			name: "operand overwritten",
			exprs: []sym.Eq{
				{LHS: at(a), RHS: sym.Add(prod(), sym.Num(1))},
				{LHS: at(b), RHS: sym.Num(5)},
				{LHS: at(d), RHS: sym.Add(prod(), sym.Num(2))},
			},
			want: []string{
				"a[x] = ((b[x] * c[x]) + 1)",
				"b[x] = 5",
				"d[x] = ((b[x] * c[x]) + 2)",
			},
		},
		{
			name: "unrelated write",
			exprs: []sym.Eq{
				{LHS: at(a), RHS: sym.Add(prod(), sym.Num(1))},
				{LHS: at(e), RHS: sym.Num(5)},
				{LHS: at(d), RHS: sym.Add(prod(), sym.Num(2))},
			},
			want: []string{
				"r0 = (b[x] * c[x])",
				"a[x] = (r0 + 1)",
				"e[x] = 5",
				"d[x] = (r0 + 2)",
			},
		},
		{
			name: "reuse after overwrite",
			exprs: []sym.Eq{
				{LHS: at(a), RHS: sym.Add(prod(), sym.Num(1))},
				{LHS: at(b), RHS: sym.Num(5)},
				{LHS: at(d), RHS: sym.Add(prod(), sym.Num(2))},
				{LHS: at(e), RHS: sym.Add(prod(), sym.Num(3))},
			},
			want: []string{
				"a[x] = ((b[x] * c[x]) + 1)",
				"b[x] = 5",
				"r0 = (b[x] * c[x])",
				"d[x] = (r0 + 2)",
				"e[x] = (r0 + 3)",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rw, err := New("basic")
			if err != nil {
				t.Fatal(err)
			}
			clusters, err := rw.Rewrite(tt.exprs, stencils(tt.exprs))
			if err != nil {
				t.Fatalf("Rewrite: %v", err)
			}
			if len(clusters) != 1 {
				t.Fatalf("got %d clusters, want 1", len(clusters))
			}
			if diff := cmp.Diff(tt.want, traces(clusters)[0]); diff != "" {
				t.Errorf("trace mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnknownMode(t *testing.T) {
	if _, err := New("aggressive"); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("New(aggressive) error = %v, want ErrUnknownMode", err)
	}
}
