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

package autotune

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCandidates(t *testing.T) {
	tests := []struct {
		name       string
		base       []int
		n          int
		aggressive bool
		want       []Candidate
	}{
		{
			name: "squares",
			base: []int{8, 16},
			n:    2,
			want: []Candidate{{8, 8}, {16, 16}},
		},
		{
			name: "no knobs",
			base: []int{8, 16},
			n:    0,
		},
		{
			name:       "aggressive",
			base:       []int{8, 16},
			n:          2,
			aggressive: true,
			want: []Candidate{
				{8, 8}, {16, 16},
				// last component swapped
				{8, 8}, {8, 16}, {16, 8}, {16, 16},
				// doubled subsets
				{16, 8}, {8, 16}, {16, 16},
				{32, 16}, {16, 32}, {32, 32},
			},
		},
		{
			name:       "aggressive single knob",
			base:       []int{4, 8, 16, 32},
			n:          1,
			aggressive: true,
			want: []Candidate{
				{4}, {8}, {16}, {32},
				{4}, {8}, {16}, {32},
				{4}, {8}, {16}, {32},
				{4}, {8}, {16}, {32},
				{8}, {16}, {32}, {64},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Candidates(tt.base, tt.n, tt.aggressive)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Candidates() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTuneSkipsIllegal(t *testing.T) {
	knobs := []Knob{{Name: "x0_block_size", Limit: 10}}
	var ran []int
	run := func(_ context.Context, values map[string]int) (float64, error) {
		ran = append(ran, values["x0_block_size"])
		return 1.0, nil
	}
	res, err := Tune(context.Background(), knobs, Candidates([]int{8, 16}, 1, false), run, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{8}, ran); diff != "" {
		t.Errorf("trials mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"x0_block_size": 8}, res.Values(knobs)); diff != "" {
		t.Errorf("best mismatch (-want +got):\n%s", diff)
	}
}

func TestTuneFirstMinimum(t *testing.T) {
	knobs := []Knob{{Name: "a", Limit: 100}, {Name: "b", Limit: 100}}
	times := map[int]float64{8: 3, 16: 1, 24: 1, 32: 2}
	run := func(_ context.Context, values map[string]int) (float64, error) {
		return times[values["a"]], nil
	}
	res, err := Tune(context.Background(), knobs, Candidates([]int{8, 16, 24, 32}, 2, false), run, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Candidate{16, 16}, res.Best); diff != "" {
		t.Errorf("best mismatch (-want +got):\n%s", diff)
	}
	if len(res.Trials) != 4 {
		t.Errorf("got %d trials, want 4", len(res.Trials))
	}
}

func TestTuneAllIllegal(t *testing.T) {
	knobs := []Knob{{Name: "a", Limit: 4}}
	run := func(context.Context, map[string]int) (float64, error) {
		t.Fatal("run called for an illegal candidate")
		return 0, nil
	}
	res, err := Tune(context.Background(), knobs, Candidates(DefaultBlockSizes, 1, false), run, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Best != nil || res.Values(knobs) != nil {
		t.Errorf("Best = %v, want none", res.Best)
	}
}

func TestTuneRunError(t *testing.T) {
	boom := errors.New("boom")
	run := func(context.Context, map[string]int) (float64, error) { return 0, boom }
	_, err := Tune(context.Background(), []Knob{{Name: "a", Limit: 64}}, []Candidate{{8}}, run, nil)
	if !errors.Is(err, boom) {
		t.Errorf("Tune() error = %v, want %v", err, boom)
	}
}

func TestCheck(t *testing.T) {
	knobs := []Knob{{Name: "a", Limit: 10}}
	if err := Check(knobs, Candidate{10}); err != nil {
		t.Errorf("Check(10) = %v", err)
	}
	if err := Check(knobs, Candidate{11}); !errors.Is(err, ErrIllegalBlockSize) {
		t.Errorf("Check(11) = %v, want ErrIllegalBlockSize", err)
	}
}
