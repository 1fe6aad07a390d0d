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

package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nogueirapeterson/devito/dle"
	"github.com/nogueirapeterson/devito/operator"
	"github.com/nogueirapeterson/devito/profiler"
	"github.com/nogueirapeterson/devito/sym"
)

// problem is a demo equation set over an nx by ny grid.
type problem struct {
	eqs  []sym.Eq
	u    *sym.Function
	time *sym.Dimension
}

var problems = map[string]func(nx, ny, steps int, dtype sym.DType) problem{
	"diffusion": diffusion,
	"timestep":  timestep,
}

// diffusion is the explicit 2-D heat equation on a two-slot time buffer.
func diffusion(nx, ny, _ int, dtype sym.DType) problem {
	time := sym.NewTimeDimension("time")
	t := sym.NewBufferedDimension("t", time, 2)
	x, y := sym.NewDimension("x"), sym.NewDimension("y")
	u := sym.NewFunction("u", dtype, []*sym.Dimension{t, x, y}, []int{2, nx, ny})
	at := func(dx, dy int) sym.Expr { return u.At(sym.Idx(t), sym.Off(x, dx), sym.Off(y, dy)) }

	laplace := sym.Sub(sym.Add(at(-1, 0), at(1, 0), at(0, -1), at(0, 1)), sym.Mul(sym.Num(4), at(0, 0)))
	return problem{
		eqs: []sym.Eq{{
			LHS: u.At(sym.Off(t, 1), sym.Idx(x), sym.Idx(y)),
			RHS: sym.Add(at(0, 0), sym.Mul(sym.Var("a", dtype), laplace)),
		}},
		u:    u,
		time: time,
	}
}

// timestep adds one to every point at every step and keeps all steps.
func timestep(nx, ny, steps int, dtype sym.DType) problem {
	time := sym.NewTimeDimension("time")
	x, y := sym.NewDimension("x"), sym.NewDimension("y")
	u := sym.NewFunction("u", dtype, []*sym.Dimension{time, x, y}, []int{steps + 1, nx, ny})
	return problem{
		eqs: []sym.Eq{{
			LHS: u.At(sym.Off(time, 1), sym.Idx(x), sym.Idx(y)),
			RHS: sym.Add(u.At(sym.Idx(time), sym.Idx(x), sym.Idx(y)), sym.Num(1)),
		}},
		u:    u,
		time: time,
	}
}

func problemNames() []string {
	names := make([]string, 0, len(problems))
	for n := range problems {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type buildFlags struct {
	problem string
	nx, ny  int
	steps   int
	double  bool
	alpha   float64
	dle     string
	inner   bool
}

func (f *buildFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.problem, "problem", "diffusion", fmt.Sprintf("demo problem %v", problemNames()))
	cmd.Flags().IntVar(&f.nx, "nx", 64, "grid points along x")
	cmd.Flags().IntVar(&f.ny, "ny", 64, "grid points along y")
	cmd.Flags().IntVar(&f.steps, "steps", 10, "time steps")
	cmd.Flags().BoolVar(&f.double, "double", false, "use double precision")
	cmd.Flags().Float64Var(&f.alpha, "alpha", 0.1, "diffusion coefficient")
	cmd.Flags().StringVar(&f.dle, "dle", "", "loop transformation mode (default from configuration)")
	cmd.Flags().BoolVar(&f.inner, "blockinner", false, "also block the innermost loop")
}

func (a *app) build(f *buildFlags) (*operator.Operator, problem, error) {
	mk, ok := problems[f.problem]
	if !ok {
		return nil, problem{}, fail("unknown problem %q, want one of %v", f.problem, problemNames())
	}
	dtype := sym.Float32
	if f.double {
		dtype = sym.Float64
	}
	p := mk(f.nx, f.ny, f.steps, dtype)

	opts := a.cfg.Options(a.logger)
	mode := a.cfg.DLE
	if f.dle != "" {
		mode = f.dle
	}
	opts = append(opts,
		operator.WithDLE(mode, dle.Options{BlockInner: f.inner}),
		operator.WithSubs(map[string]sym.Expr{"a": sym.Num(f.alpha)}),
	)
	op, err := operator.New(p.eqs, opts...)
	if err != nil {
		return nil, problem{}, err
	}
	return op, p, nil
}

func newEmitCmd(a *app) *cobra.Command {
	f := &buildFlags{}
	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Print the C source of a demo kernel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			op, _, err := a.build(f)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), op.CCode())
			return err
		},
	}
	f.register(cmd)
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	f := &buildFlags{}
	var tune bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compile and run a demo kernel and print its performance summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			op, p, err := a.build(f)
			if err != nil {
				return err
			}
			p.u.Alloc()
			p.u.Data.Fill(1)
			summary, err := op.Apply(context.Background(), operator.Args{
				Sizes:    map[string]int{p.time.Name: f.steps + 1},
				Autotune: tune,
			})
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&tune, "autotune", false, "auto-tune block sizes before the run")
	return cmd
}

func printSummary(w io.Writer, s *profiler.Summary) {
	title := cases.Title(language.English)
	names := s.Names()
	slices.Reverse(names)
	for _, name := range names {
		e, _ := s.Get(name)
		fmt.Fprintf(w, "%s %v: OI=%.2f, %.2f s, %.2f GFlops/s\n", title.String(name), e.IterShape, e.OI, e.Time, e.GFlopss)
	}
}
