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

// Package autotune searches block sizes empirically: it times a kernel
// under every legal candidate and keeps the fastest.
package autotune

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// ErrIllegalBlockSize marks a candidate value beyond its loop bound.
var ErrIllegalBlockSize = errors.New("autotune: illegal block size")

// DefaultBlockSizes are the square block sizes tried by default.
var DefaultBlockSizes = []int{8, 16, 24, 32, 40, 64, 128}

// DefaultSqueezer bounds sequential buffered loops during trials.
const DefaultSqueezer = 3

// Knob is one tunable block-size parameter.
type Knob struct {
	Name string
	// Limit is the largest legal value at the trial data.
	Limit int
}

// Candidate holds one value per knob, in knob order.
type Candidate []int

func (c Candidate) String() string {
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = strconv.Itoa(v)
	}
	return "<" + strings.Join(parts, ",") + ">"
}

// Candidates returns the search space for n knobs. Each base size yields
// one square candidate. An aggressive search adds, for each of the first
// three squares, every square with its last component replaced by another
// base size, and every square with a non-empty subset of its components
// doubled. Duplicates are kept in generation order.
func Candidates(base []int, n int, aggressive bool) []Candidate {
	if n == 0 {
		return nil
	}
	squares := make([]Candidate, len(base))
	for i, v := range base {
		c := make(Candidate, n)
		for j := range c {
			c[j] = v
		}
		squares[i] = c
	}
	out := append([]Candidate(nil), squares...)
	if !aggressive {
		return out
	}
	for _, lead := range squares[:min(3, len(squares))] {
		for _, other := range squares {
			c := append(Candidate(nil), lead[:n-1]...)
			out = append(out, append(c, other[n-1]))
		}
	}
	for _, sq := range squares {
		for k := 1; k <= n; k++ {
			for _, subset := range combinations(n, k) {
				c := append(Candidate(nil), sq...)
				for _, j := range subset {
					c[j] *= 2
				}
				out = append(out, c)
			}
		}
	}
	return out
}

// combinations lists the k-subsets of [0, n) in lexicographic order.
func combinations(n, k int) [][]int {
	var out [][]int
	var rec func(start int, cur []int)
	rec = func(start int, cur []int) {
		if len(cur) == k {
			out = append(out, append([]int(nil), cur...))
			return
		}
		for i := start; i < n; i++ {
			rec(i+1, append(cur, i))
		}
	}
	rec(0, nil)
	return out
}

// Check reports whether every value of c is within its knob's limit.
func Check(knobs []Knob, c Candidate) error {
	if len(c) != len(knobs) {
		return fmt.Errorf("autotune: candidate %v has %d values for %d knobs", c, len(c), len(knobs))
	}
	for i, k := range knobs {
		if c[i] > k.Limit {
			return fmt.Errorf("%w: %s = %d exceeds %d", ErrIllegalBlockSize, k.Name, c[i], k.Limit)
		}
	}
	return nil
}

// RunFunc runs the kernel once with the given knob values and returns the
// measured time in seconds.
type RunFunc func(ctx context.Context, values map[string]int) (float64, error)

// Trial is one timed candidate.
type Trial struct {
	Candidate Candidate
	Elapsed   float64
}

// Result is the outcome of a search.
type Result struct {
	Trials []Trial
	// Best is nil when no candidate was legal.
	Best Candidate
}

// Values maps knob names to the best values.
func (r *Result) Values(knobs []Knob) map[string]int {
	if r.Best == nil {
		return nil
	}
	m := make(map[string]int, len(knobs))
	for i, k := range knobs {
		m[k.Name] = r.Best[i]
	}
	return m
}

// Tune times every legal candidate sequentially and selects the first one
// with minimal time. Illegal candidates are skipped without running.
func Tune(ctx context.Context, knobs []Knob, candidates []Candidate, run RunFunc, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	res := &Result{}
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := Check(knobs, c); err != nil {
			logger.Debug("autotune skip", "candidate", c.String(), "err", err)
			continue
		}
		values := make(map[string]int, len(knobs))
		for i, k := range knobs {
			values[k.Name] = c[i]
		}
		elapsed, err := run(ctx, values)
		if err != nil {
			return nil, fmt.Errorf("autotune: candidate %v: %w", c, err)
		}
		logger.Debug("autotune trial", "candidate", c.String(), "elapsed", elapsed)
		res.Trials = append(res.Trials, Trial{Candidate: c, Elapsed: elapsed})
	}
	if len(res.Trials) == 0 {
		return res, nil
	}
	elapsed := make([]float64, len(res.Trials))
	for i, tr := range res.Trials {
		elapsed[i] = tr.Elapsed
	}
	res.Best = res.Trials[floats.MinIdx(elapsed)].Candidate
	logger.Info("auto-tuned block shape", "best", res.Best.String())
	return res, nil
}
