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
	"maps"
	"slices"

	"github.com/nogueirapeterson/devito/codegen"
	"github.com/nogueirapeterson/devito/jit"
	"github.com/nogueirapeterson/devito/profiler"
	"github.com/nogueirapeterson/devito/sym"
)

// Args is what a caller supplies for one invocation.
type Args struct {
	// Data replaces the backing array of a grid function by name. The
	// replacement must have the declared shape of the function.
	Data map[string]*sym.Array
	// Sizes are hints keyed by dimension name, and block sizes keyed by
	// block parameter name. A supplied block size is not tuned.
	Sizes map[string]int
	// Autotune searches block sizes before the run.
	Autotune bool
}

// Value is the actual argument of one parameter.
type Value struct {
	Array   *sym.Array
	Int     int
	Timings *profiler.Timings
	bound   bool
}

// Arguments is a resolved argument list.
type Arguments struct {
	params []codegen.Param
	values map[string]Value
	// Sizes maps dimension names to the extents inferred for this call.
	Sizes map[string]int
}

// Names returns the parameter names in signature order.
func (a *Arguments) Names() []string {
	names := make([]string, len(a.params))
	for i, p := range a.params {
		names[i] = p.Name
	}
	return names
}

// Get returns the value of a parameter.
func (a *Arguments) Get(name string) (Value, bool) {
	v, ok := a.values[name]
	return v, ok && v.bound
}

// Ints returns every integer argument by name.
func (a *Arguments) Ints() map[string]int {
	out := map[string]int{}
	for _, p := range a.params {
		if p.Kind == codegen.SizeParam || p.Kind == codegen.BlockParam {
			out[p.Name] = a.values[p.Name].Int
		}
	}
	return out
}

// Timings returns the timer struct passed to the kernel, if any.
func (a *Arguments) Timings() *profiler.Timings {
	for _, p := range a.params {
		if p.Kind == codegen.ProfilerParam {
			return a.values[p.Name].Timings
		}
	}
	return nil
}

func (a *Arguments) setInt(name string, v int) {
	a.values[name] = Value{Int: v, bound: true}
}

func (a *Arguments) clone() *Arguments {
	return &Arguments{params: a.params, values: maps.Clone(a.values), Sizes: maps.Clone(a.Sizes)}
}

// List returns the positional kernel arguments.
func (a *Arguments) List() ([]jit.Arg, error) {
	out := make([]jit.Arg, len(a.params))
	for i, p := range a.params {
		v, ok := a.Get(p.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedArgument, p.Name)
		}
		switch p.Kind {
		case codegen.ArrayParam:
			if v.Array == nil {
				return nil, &MissingDataError{Names: []string{p.Name}}
			}
			out[i] = jit.PointerArg(v.Array.Pointer(), p.Array.DType)
		case codegen.ProfilerParam:
			out[i] = jit.PointerArg(v.Timings.Pointer(), sym.Float64)
		default:
			out[i] = jit.IntArg(v.Int)
		}
	}
	return out, nil
}

// Arguments resolves the kernel arguments for one invocation. Grid functions
// without data are reported by a MissingDataError alongside otherwise
// complete arguments; every other failure returns no arguments.
func (op *Operator) Arguments(ctx context.Context, in Args) (*Arguments, error) {
	args := &Arguments{params: op.params, values: map[string]Value{}, Sizes: map[string]int{}}
	sizes := map[*sym.Dimension]int{}
	var missing []string

	for _, p := range op.params {
		if p.Kind != codegen.ArrayParam {
			continue
		}
		f := p.Array
		data := f.Data
		if o, ok := in.Data[p.Name]; ok {
			if !slices.Equal(o.Shape(), f.Shape) {
				return nil, fmt.Errorf("%w: %s has shape %v, got %v", ErrShapeMismatch, p.Name, f.Shape, o.Shape())
			}
			data = o
		}
		shape := f.Shape
		if data == nil {
			missing = append(missing, p.Name)
		} else {
			shape = data.Shape()
		}
		args.values[p.Name] = Value{Array: data, bound: data != nil}

		for i, d := range f.Indices {
			if d.Size != 0 {
				if !d.IsBuffered() && d.Size != shape[i] {
					return nil, fmt.Errorf("%w: %s spans %d along %s, want %d", ErrShapeMismatch, p.Name, shape[i], d.Name, d.Size)
				}
				continue
			}
			if hint, ok := in.Sizes[d.Name]; ok {
				sizes[d] = hint
			}
			if known, ok := sizes[d]; ok {
				if !d.IsBuffered() && known > shape[i] {
					return nil, fmt.Errorf("%w: %s spans %d along %s, need %d", ErrShapeMismatch, p.Name, shape[i], d.Name, known)
				}
				continue
			}
			sizes[d] = shape[i]
		}
	}

	// Extents no grid function spans come from the hints.
	for _, p := range op.params {
		if p.Kind != codegen.SizeParam {
			continue
		}
		if _, ok := sizes[p.Dim]; !ok {
			if hint, ok := in.Sizes[p.Dim.Name]; ok {
				sizes[p.Dim] = hint
			}
		}
	}
	for d, n := range sizes {
		if d.IsBuffered() {
			if _, ok := sizes[d.Parent]; !ok {
				sizes[d.Parent] = n
			}
		}
	}
	for d, n := range sizes {
		args.Sizes[d.Name] = n
	}

	tune := in.Autotune
	for _, b := range op.state.Arguments {
		size, ok := args.Sizes[b.Dim.Name]
		if !ok {
			size = b.Dim.Size
		}
		if size == 0 {
			return nil, fmt.Errorf("%w: no extent for %s of %s", ErrUnresolvedArgument, b.Dim.Name, b.Name)
		}
		switch hint, ok := in.Sizes[b.Name]; {
		case ok:
			args.setInt(b.Name, hint)
			tune = false
		case b.Fixed > 0:
			args.setInt(b.Name, b.Fixed)
			tune = false
		case b.Value != nil:
			args.setInt(b.Name, b.Value(size))
		default:
			args.setInt(b.Name, size)
		}
	}

	for _, p := range op.params {
		if p.Kind != codegen.SizeParam {
			continue
		}
		if n, ok := args.Sizes[p.Dim.Name]; ok {
			args.setInt(p.Name, n)
		}
	}

	if tune && len(missing) == 0 {
		if err := op.autotune(ctx, args); err != nil {
			return nil, err
		}
	}

	for _, p := range op.params {
		if p.Kind == codegen.ProfilerParam {
			args.values[p.Name] = Value{Timings: op.prof.NewTimings(), bound: true}
		}
	}

	for _, p := range op.params {
		if p.Kind == codegen.ArrayParam {
			continue
		}
		if _, ok := args.Get(p.Name); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedArgument, p.Name)
		}
	}
	if len(missing) > 0 {
		return args, &MissingDataError{Names: missing}
	}
	return args, nil
}
