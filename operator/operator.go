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

// Package operator compiles a set of stencil equations into one native
// kernel and runs it.
//
// Construction lowers the equations through the rewriting, scheduling,
// profiling, loop-optimization and allocation stages and renders C source.
// Compilation and loading happen lazily, at most once per Operator. Every
// invocation resolves its arguments, optionally auto-tunes block sizes and
// reports a performance summary.
package operator

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/nogueirapeterson/devito/alloc"
	"github.com/nogueirapeterson/devito/autotune"
	"github.com/nogueirapeterson/devito/codegen"
	"github.com/nogueirapeterson/devito/dle"
	"github.com/nogueirapeterson/devito/dse"
	"github.com/nogueirapeterson/devito/ir"
	"github.com/nogueirapeterson/devito/jit"
	"github.com/nogueirapeterson/devito/profiler"
	"github.com/nogueirapeterson/devito/schedule"
	"github.com/nogueirapeterson/devito/sym"
)

var (
	// ErrInvalidOperator is returned when the equations cannot form a kernel.
	ErrInvalidOperator = errors.New("operator: invalid equations")
	// ErrTypeMismatch is returned when the equations assign more than one
	// data type.
	ErrTypeMismatch = errors.New("operator: mixed data types")
	// ErrShapeMismatch is returned when supplied data disagrees with the
	// declared shape of a parameter.
	ErrShapeMismatch = errors.New("operator: shape mismatch")
	// ErrUnresolvedArgument is returned when a kernel parameter has no value.
	ErrUnresolvedArgument = errors.New("operator: unresolved argument")
	// ErrMissingData is matched by MissingDataError.
	ErrMissingData = errors.New("operator: missing data")
	// ErrNotExecutable is returned when a foreign operator is asked to run.
	ErrNotExecutable = errors.New("operator: not executable")
)

// MissingDataError lists the grid functions without backing data.
type MissingDataError struct {
	Names []string
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("operator: no data for %s", strings.Join(e.Names, ", "))
}

// Is matches ErrMissingData.
func (e *MissingDataError) Is(target error) bool { return target == ErrMissingData }

// Variant selects what an Operator can do with its kernel.
type Variant uint8

const (
	// Core operators compile, load and run their kernel and time it.
	Core Variant = iota
	// Foreign operators only render source and resolve arguments for an
	// external runtime that embeds the kernel.
	Foreign
)

func (v Variant) String() string {
	switch v {
	case Core:
		return "core"
	case Foreign:
		return "foreign"
	default:
		return fmt.Sprintf("Variant(%d)", uint8(v))
	}
}

type config struct {
	name      string
	subs      map[string]sym.Expr
	direction sym.Direction
	dse       string
	dle       string
	dleOpts   dle.Options
	engine    dle.Engine
	variant   Variant
	compiler  jit.Compiler
	loader    jit.Loader
	logger    *slog.Logger

	blockSizes []int
	squeezer   int
}

// Option configures New.
type Option func(*config)

// WithName sets the kernel symbol. The default is "Kernel".
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithSubs replaces symbols by expressions in every right-hand side.
func WithSubs(subs map[string]sym.Expr) Option {
	return func(c *config) { c.subs = subs }
}

// WithDirection sets the order of sequential loops.
func WithDirection(d sym.Direction) Option {
	return func(c *config) { c.direction = d }
}

// WithDSE selects the symbolic rewriting mode.
func WithDSE(mode string) Option {
	return func(c *config) { c.dse = mode }
}

// WithDLE selects the loop transformation mode and its options.
// Parallelism is always taken from the compiler when it is a toolchain.
func WithDLE(mode string, opts dle.Options) Option {
	return func(c *config) {
		c.dle = mode
		c.dleOpts = opts
	}
}

// WithEngine replaces the loop transformation engine.
func WithEngine(e dle.Engine) Option {
	return func(c *config) { c.engine = e }
}

// WithVariant selects a core or foreign operator.
func WithVariant(v Variant) Option {
	return func(c *config) { c.variant = v }
}

// WithCompiler sets the build collaborator.
func WithCompiler(cc jit.Compiler) Option {
	return func(c *config) { c.compiler = cc }
}

// WithLoader sets the load collaborator.
func WithLoader(l jit.Loader) Option {
	return func(c *config) { c.loader = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithAutotune sets the base block sizes and the squeezed extent of
// sequential buffered loops used by auto-tuning.
func WithAutotune(blockSizes []int, squeezer int) Option {
	return func(c *config) {
		c.blockSizes = slices.Clone(blockSizes)
		c.squeezer = squeezer
	}
}

// Operator is a compiled stencil kernel.
type Operator struct {
	cfg config

	exprs   []sym.Eq
	dtype   sym.DType
	tree    *ir.Tree
	state   *dle.State
	plan    *alloc.Result
	prof    *profiler.Profiler
	params  []codegen.Param
	source  string
	outputs []*sym.Function

	mu       sync.Mutex
	artifact *jit.Artifact
	kernel   jit.Kernel
}

// New lowers eqs into a kernel. Nothing is compiled yet.
func New(eqs []sym.Eq, opts ...Option) (*Operator, error) {
	cfg := config{
		name:       "Kernel",
		dse:        "advanced",
		dle:        "advanced",
		engine:     dle.Default{},
		blockSizes: autotune.DefaultBlockSizes,
		squeezer:   autotune.DefaultSqueezer,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.compiler == nil {
		cfg.compiler = &jit.Toolchain{Logger: cfg.logger}
	}
	if cfg.loader == nil {
		cfg.loader = &jit.DLLoader{}
	}
	if tc, ok := cfg.compiler.(*jit.Toolchain); ok {
		cfg.dleOpts.Parallelism = tc.OpenMP
	}

	exprs, err := lower(eqs, cfg.subs)
	if err != nil {
		return nil, err
	}
	op := &Operator{cfg: cfg, exprs: exprs, tree: ir.NewTree()}
	if op.dtype, err = targetType(exprs); err != nil {
		return nil, err
	}
	for _, eq := range exprs {
		if i, ok := eq.LHS.(*sym.Indexed); ok && !slices.Contains(op.outputs, i.F) {
			op.outputs = append(op.outputs, i.F)
		}
	}

	rw, err := dse.New(cfg.dse)
	if err != nil {
		return nil, fmt.Errorf("operator: %w", err)
	}
	clusters, err := rw.Rewrite(exprs, schedule.Stencils(exprs))
	if err != nil {
		return nil, fmt.Errorf("operator: rewrite: %w", err)
	}
	roots := schedule.Schedule(op.tree, clusters, schedule.LoopOrdering(exprs), cfg.direction)

	op.prof = &profiler.Profiler{}
	if cfg.variant == Core {
		roots, op.prof = profiler.Instrument(op.tree, roots)
	}

	mode, err := dle.ParseMode(cfg.dle)
	if err != nil {
		return nil, fmt.Errorf("operator: %w", err)
	}
	if op.state, err = cfg.engine.Transform(op.tree, roots, mode, cfg.dleOpts); err != nil {
		return nil, fmt.Errorf("operator: loop transformation: %w", err)
	}
	op.plan = alloc.Plan(op.tree, op.state.Roots, op.state.Callables)
	op.params = op.parameters()

	op.source = codegen.Emit(&codegen.Kernel{
		Name:      cfg.name,
		Tree:      op.tree,
		Roots:     op.plan.Roots,
		Callables: op.plan.Callables,
		Params:    op.params,
		Includes:  op.state.Includes,
		Sections:  op.prof.Names(),
	})
	cfg.logger.Debug("operator built", "name", cfg.name, "variant", cfg.variant,
		"params", len(op.params), "sections", len(op.prof.Sections), "blocking", op.state.HasAppliedBlocking)
	return op, nil
}

// lower checks that every equation is an assignment and applies subs.
func lower(eqs []sym.Eq, subs map[string]sym.Expr) ([]sym.Eq, error) {
	if len(eqs) == 0 {
		return nil, fmt.Errorf("%w: no equations", ErrInvalidOperator)
	}
	out := make([]sym.Eq, len(eqs))
	for i, eq := range eqs {
		switch eq.LHS.(type) {
		case *sym.Indexed, *sym.Symbol:
		default:
			return nil, fmt.Errorf("%w: equation %d assigns to %v", ErrInvalidOperator, i, eq.LHS)
		}
		if eq.RHS == nil {
			return nil, fmt.Errorf("%w: equation %d has no right-hand side", ErrInvalidOperator, i)
		}
		out[i] = sym.Eq{LHS: eq.LHS, RHS: eq.RHS}
		if len(subs) > 0 {
			out[i].RHS = sym.Substitute(eq.RHS, subs)
		}
	}
	return out, nil
}

// targetType returns the single data type the grid equations assign.
func targetType(exprs []sym.Eq) (sym.DType, error) {
	var types []sym.DType
	for _, eq := range exprs {
		if _, ok := eq.LHS.(*sym.Indexed); ok {
			types = append(types, schedule.DTypeOf(eq))
		}
	}
	types = lo.Uniq(types)
	switch len(types) {
	case 0:
		return schedule.DTypeOf(exprs[0]), nil
	case 1:
		return types[0], nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrTypeMismatch, types)
	}
}

// Name returns the kernel symbol.
func (op *Operator) Name() string { return op.cfg.name }

// Variant returns the kind of operator.
func (op *Operator) Variant() Variant { return op.cfg.variant }

// DType returns the element type of the grid functions the kernel writes.
func (op *Operator) DType() sym.DType { return op.dtype }

// CCode returns the rendered translation unit.
func (op *Operator) CCode() string { return op.source }

// Parameters returns the kernel parameters in signature order.
func (op *Operator) Parameters() []codegen.Param { return slices.Clone(op.params) }

// Outputs returns the grid functions the kernel writes.
func (op *Operator) Outputs() []*sym.Function { return slices.Clone(op.outputs) }

// Profiler returns the timed sections.
func (op *Operator) Profiler() *profiler.Profiler { return op.prof }

// State returns the outcome of loop transformation.
func (op *Operator) State() *dle.State { return op.state }

// Heap returns the temporaries allocated around the kernel body.
func (op *Operator) Heap() []*sym.Function { return slices.Clone(op.plan.Heap) }

// Stack returns the temporaries declared inside loops.
func (op *Operator) Stack() []*sym.Function { return slices.Clone(op.plan.Stack) }

// parameters lists, in order: the caller-supplied grid functions, the
// extents of open dimensions by name, the block sizes, and the timer handle.
func (op *Operator) parameters() []codegen.Param {
	t := op.tree
	all := append(slices.Clone(op.plan.Roots), lo.Map(op.plan.Callables, func(c ir.Callable, _ int) ir.NodeID { return c.Body })...)

	var params []codegen.Param
	for _, f := range t.Functions(all) {
		if f.Memory == sym.External && !slices.ContainsFunc(params, func(p codegen.Param) bool { return p.Name == f.Name }) {
			params = append(params, codegen.Param{Name: f.Name, Kind: codegen.ArrayParam, Array: f})
		}
	}

	var dims []*sym.Dimension
	for _, d := range t.Dimensions(all) {
		if d = d.Root(); d.Size == 0 && !slices.ContainsFunc(dims, func(o *sym.Dimension) bool { return o.Name == d.Name }) {
			dims = append(dims, d)
		}
	}
	slices.SortFunc(dims, func(a, b *sym.Dimension) int { return strings.Compare(a.Name, b.Name) })
	for _, d := range dims {
		params = append(params, codegen.Param{Name: d.SizeName(), Kind: codegen.SizeParam, Dim: d})
	}

	for _, a := range op.state.Arguments {
		params = append(params, codegen.Param{Name: a.Name, Kind: codegen.BlockParam, Dim: a.Dim})
	}
	if len(op.prof.Sections) > 0 {
		params = append(params, codegen.Param{Name: profiler.HandleName, Kind: codegen.ProfilerParam})
	}
	return params
}

// signature returns the argument types of the kernel.
func (op *Operator) signature() []jit.ArgType {
	sig := make([]jit.ArgType, len(op.params))
	for i, p := range op.params {
		switch p.Kind {
		case codegen.ArrayParam:
			sig[i] = jit.ArgType{Kind: jit.ArgPointer, Elem: p.Array.DType}
		case codegen.ProfilerParam:
			sig[i] = jit.ArgType{Kind: jit.ArgPointer, Elem: sym.Float64}
		default:
			sig[i] = jit.ArgType{Kind: jit.ArgInt}
		}
	}
	return sig
}
