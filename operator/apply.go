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

package operator

import (
	"context"
	"fmt"
	"slices"

	"github.com/nogueirapeterson/devito/autotune"
	"github.com/nogueirapeterson/devito/codegen"
	"github.com/nogueirapeterson/devito/ir"
	"github.com/nogueirapeterson/devito/jit"
	"github.com/nogueirapeterson/devito/profiler"
	"github.com/nogueirapeterson/devito/sym"
)

// Compile builds the kernel once and returns the cached artifact on later
// calls.
func (op *Operator) Compile(ctx context.Context) (jit.Artifact, error) {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.compileLocked(ctx)
}

func (op *Operator) compileLocked(ctx context.Context) (jit.Artifact, error) {
	if op.artifact != nil {
		return *op.artifact, nil
	}
	a, err := op.cfg.compiler.Compile(ctx, op.source)
	if err != nil {
		return jit.Artifact{}, fmt.Errorf("operator %s: %w", op.cfg.name, err)
	}
	op.artifact = &a
	return a, nil
}

// Kernel compiles and loads the kernel on first use.
func (op *Operator) Kernel(ctx context.Context) (jit.Kernel, error) {
	if op.cfg.variant == Foreign {
		return nil, ErrNotExecutable
	}
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.kernel != nil {
		return op.kernel, nil
	}
	a, err := op.compileLocked(ctx)
	if err != nil {
		return nil, err
	}
	k, err := op.cfg.loader.Load(a, op.cfg.name, op.signature())
	if err != nil {
		return nil, fmt.Errorf("operator %s: %w", op.cfg.name, err)
	}
	op.kernel = k
	return k, nil
}

// run calls the kernel once with args.
func (op *Operator) run(ctx context.Context, args *Arguments) error {
	k, err := op.Kernel(ctx)
	if err != nil {
		return err
	}
	list, err := args.List()
	if err != nil {
		return err
	}
	if t := args.Timings(); t != nil {
		t.Reset()
	}
	rc, err := k.Call(list)
	if err != nil {
		return fmt.Errorf("operator %s: %w", op.cfg.name, err)
	}
	if rc != 0 {
		return fmt.Errorf("operator %s: kernel returned %d", op.cfg.name, rc)
	}
	return nil
}

// Apply resolves the arguments, runs the kernel and summarizes the timers.
func (op *Operator) Apply(ctx context.Context, in Args) (*profiler.Summary, error) {
	if op.cfg.variant == Foreign {
		return nil, ErrNotExecutable
	}
	args, err := op.Arguments(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := op.run(ctx, args); err != nil {
		return nil, err
	}
	timings := args.Timings()
	if timings == nil {
		timings = op.prof.NewTimings()
	}
	summary := op.prof.Summarize(timings, args.Sizes, op.dtype.Size())
	for _, name := range summary.Names() {
		e, _ := summary.Get(name)
		op.cfg.logger.Info("section",
			"name", name,
			"itershape", e.IterShape,
			"oi", fmt.Sprintf("%.2f", e.OI),
			"time", fmt.Sprintf("%.2fs", e.Time),
			"gflopss", fmt.Sprintf("%.2f", e.GFlopss))
	}
	return summary, nil
}

// Call runs the kernel like Apply and discards the summary.
func (op *Operator) Call(ctx context.Context, in Args) error {
	_, err := op.Apply(ctx, in)
	return err
}

// autotune overwrites the tunable block sizes of args with the fastest
// candidate. Trials run on private copies of the output data with
// sequential buffered loops squeezed.
func (op *Operator) autotune(ctx context.Context, args *Arguments) error {
	if !op.state.HasAppliedBlocking {
		return nil
	}
	if op.cfg.variant == Foreign {
		op.cfg.logger.Debug("autotune skipped for foreign operator", "name", op.cfg.name)
		return nil
	}

	trial := args.clone()
	for _, f := range op.outputs {
		if v, ok := trial.values[f.Name]; ok && v.Array != nil {
			trial.values[f.Name] = Value{Array: v.Array.Clone(), bound: true}
		}
	}
	for _, d := range op.squeezable() {
		if n, ok := trial.Sizes[d.Name]; ok {
			n = min(n, op.cfg.squeezer)
			trial.Sizes[d.Name] = n
			trial.setInt(d.SizeName(), n)
		}
	}
	timings := op.prof.NewTimings()
	for _, p := range op.params {
		if p.Kind == codegen.ProfilerParam {
			trial.values[p.Name] = Value{Timings: timings, bound: true}
		}
	}

	var knobs []autotune.Knob
	for _, b := range op.state.Arguments {
		size, ok := trial.Sizes[b.Dim.Name]
		if !ok {
			size = b.Dim.Size
		}
		knobs = append(knobs, autotune.Knob{Name: b.Name, Limit: b.Loop.End(size)})
	}
	candidates := autotune.Candidates(op.cfg.blockSizes, len(knobs), op.state.NeedsAggressiveAutotuning)

	res, err := autotune.Tune(ctx, knobs, candidates, func(ctx context.Context, values map[string]int) (float64, error) {
		for name, v := range values {
			trial.setInt(name, v)
		}
		if err := op.run(ctx, trial); err != nil {
			return 0, err
		}
		return timings.Total(), nil
	}, op.cfg.logger)
	if err != nil {
		return fmt.Errorf("operator %s: %w", op.cfg.name, err)
	}
	for name, v := range res.Values(knobs) {
		args.setInt(name, v)
	}
	return nil
}

// squeezable names the dimensions driving a sequential buffered loop.
func (op *Operator) squeezable() []*sym.Dimension {
	roots := append([]ir.NodeID(nil), op.plan.Roots...)
	for _, c := range op.plan.Callables {
		roots = append(roots, c.Body)
	}
	var out []*sym.Dimension
	for _, id := range op.tree.FindIterations(roots) {
		l := op.tree.At(id).Loop
		if l.Buffered != nil && l.Is(ir.Sequential) && !slices.Contains(out, l.Dim) {
			out = append(out, l.Dim)
		}
	}
	return out
}
