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

package profiler

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nogueirapeterson/devito/ir"
	"github.com/nogueirapeterson/devito/sym"
)

func loop(d *sym.Dimension, lo, hi int) ir.Loop {
	return ir.Loop{Dim: d, Index: d.Name, Lo: lo, Hi: hi}
}

func TestInstrumentPerfectNest(t *testing.T) {
	time := sym.NewTimeDimension("time")
	x := sym.NewDimension("x")
	u := sym.NewFunction("u", sym.Float32, []*sym.Dimension{time, x}, []int{6, 10})

	tree := ir.NewTree()
	eq := tree.NewExpression(sym.Eq{
		LHS: u.At(sym.Off(time, 1), sym.Idx(x)),
		RHS: sym.Add(u.At(sym.Idx(time), sym.Idx(x)), sym.Num(1)),
	}, sym.Float32)
	root, _ := tree.Compose([]ir.Loop{loop(time, 0, 1), loop(x, 0, 0)}, []ir.NodeID{eq})

	roots, p := Instrument(tree, []ir.NodeID{root})
	if diff := cmp.Diff([]string{"loop_time_0"}, p.Names()); diff != "" {
		t.Fatalf("sections mismatch (-want +got):\n%s", diff)
	}
	timed := tree.At(roots[0])
	if timed.Kind != ir.KindTimed || timed.Body[0] != root {
		t.Fatalf("root is %v, want the time loop wrapped in a timer", timed.Kind)
	}
	if s := p.Sections[0]; s.Ops != 1 || s.Memory != 2 {
		t.Errorf("ops, memory = %d, %d; want 1, 2", s.Ops, s.Memory)
	}

	timings := p.NewTimings()
	timings.Set("loop_time_0", 0.5)
	sum := p.Summarize(timings, map[string]int{"time": 6, "x": 10}, sym.Float32.Size())
	if diff := cmp.Diff([]string{MainSection}, sum.Names()); diff != "" {
		t.Fatalf("summary names mismatch (-want +got):\n%s", diff)
	}
	e, _ := sum.Get(MainSection)
	want := Entry{Time: 0.5, GFlopss: 50 / 1e9 / 0.5, OI: 50.0 / 480, IterShape: []int{5, 10}, DataShape: []int{6, 10}}
	approx := cmp.Comparer(func(a, b float64) bool { return math.Abs(a-b) <= 1e-12*math.Max(1, math.Abs(b)) })
	if diff := cmp.Diff(want, e, approx); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}
}

func TestInstrumentImperfectOuterLoop(t *testing.T) {
	time := sym.NewTimeDimension("time")
	x, y := sym.NewDimension("x"), sym.NewDimension("y")
	u := sym.NewFunction("u", sym.Float64, []*sym.Dimension{time, x}, []int{4, 8})
	v := sym.NewFunction("v", sym.Float64, []*sym.Dimension{time, y}, []int{4, 8})

	tree := ir.NewTree()
	first, _ := tree.Compose([]ir.Loop{loop(x, 0, 0)}, []ir.NodeID{
		tree.NewExpression(sym.Eq{LHS: u.At(sym.Off(time, 1), sym.Idx(x)), RHS: u.At(sym.Idx(time), sym.Idx(x))}, sym.Float64),
	})
	second, _ := tree.Compose([]ir.Loop{loop(y, 0, 0)}, []ir.NodeID{
		tree.NewExpression(sym.Eq{LHS: v.At(sym.Off(time, 1), sym.Idx(y)), RHS: sym.Mul(v.At(sym.Idx(time), sym.Idx(y)), sym.Num(2))}, sym.Float64),
	})
	root := tree.NewIteration(loop(time, 0, 1), first, second)

	roots, p := Instrument(tree, []ir.NodeID{root})
	if diff := cmp.Diff([]string{"loop_x_0", "loop_y_1"}, p.Names()); diff != "" {
		t.Fatalf("sections mismatch (-want +got):\n%s", diff)
	}
	body := tree.At(roots[0]).Body
	for i, id := range body {
		if k := tree.At(id).Kind; k != ir.KindTimed {
			t.Errorf("child %d is %v, want timed", i, k)
		}
	}

	timings := p.NewTimings()
	timings.Set("loop_x_0", 2)
	timings.Set("loop_y_1", 1)
	if got := timings.Total(); got != 3 {
		t.Errorf("Total = %v, want 3", got)
	}
	sum := p.Summarize(timings, map[string]int{"time": 4, "x": 8, "y": 8}, sym.Float64.Size())
	if diff := cmp.Diff([]string{"loop_y_1", MainSection}, sum.Names()); diff != "" {
		t.Errorf("summary names mismatch (-want +got):\n%s", diff)
	}
	if got := sum.Timings()[MainSection]; got != 2 {
		t.Errorf("main time = %v, want 2", got)
	}
	if e, _ := sum.Get("loop_y_1"); e.GFlopss != 24/1e9/1.0 {
		t.Errorf("loop_y_1 throughput = %v, want 24 flops in one second", e.GFlopss)
	}

	timings.Reset()
	if got := timings.Total(); got != 0 {
		t.Errorf("Total after Reset = %v", got)
	}
}

func TestSummarizeZeroTime(t *testing.T) {
	x := sym.NewFixedDimension("x", 4)
	p := &Profiler{Sections: []Section{{Name: "loop_x_0", Loops: []ir.Loop{loop(x, 0, 0)}, Ops: 3}}}
	sum := p.Summarize(p.NewTimings(), nil, 4)
	e, ok := sum.Get(MainSection)
	if !ok {
		t.Fatal("main section missing")
	}
	if e.GFlopss != 0 || e.OI != 0 {
		t.Errorf("entry = %+v, want zero throughput and intensity", e)
	}
	if diff := cmp.Diff([]int{4}, e.DataShape); diff != "" {
		t.Errorf("data shape mismatch (-want +got):\n%s", diff)
	}
}
