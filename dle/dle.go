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

// Package dle transforms a scheduled loop tree: it classifies loops, adds
// pragmas and, in advanced mode, tiles perfect loop nests and optionally
// moves the tile bodies into elemental functions.
package dle

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nogueirapeterson/devito/ir"
	"github.com/nogueirapeterson/devito/sym"
)

// ErrUnknownMode is returned for an unsupported transformation mode.
var ErrUnknownMode = errors.New("dle: unknown mode")

// Mode selects the set of loop transformations.
type Mode string

const (
	Noop     Mode = "noop"
	Basic    Mode = "basic"
	Advanced Mode = "advanced"
)

// ParseMode normalises a mode name. The empty string and "none" mean Noop.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(cases.Lower(language.Und).String(strings.TrimSpace(s))); m {
	case "", "none", Noop:
		return Noop, nil
	case Basic, Advanced:
		return m, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownMode, s)
	}
}

// Options tune the transformations.
type Options struct {
	// Parallelism enables OpenMP pragmas on outer parallel loops.
	Parallelism bool
	// BlockInner also tiles the innermost loop of a nest.
	BlockInner bool
	// BlockSize fixes every block size to a literal; zero leaves them
	// tunable.
	BlockSize int
	// BlockFunc derives a block size from the extent of its dimension.
	BlockFunc func(size int) int
	// Elemental moves every tile body into its own function.
	Elemental bool
}

// BlockArgument is a tunable block-size parameter of the kernel.
type BlockArgument struct {
	Name string
	Dim  *sym.Dimension
	// Value derives the block size from the dimension extent.
	Value func(size int) int
	// Fixed is a block size chosen by the user; zero when tunable.
	Fixed int
	// Loop is the loop before tiling; its End bounds legal block sizes.
	Loop ir.Loop
}

// State is the outcome of a transformation.
type State struct {
	Roots     []ir.NodeID
	Callables []ir.Callable
	Includes  []string
	Arguments []BlockArgument

	HasAppliedBlocking        bool
	NeedsAggressiveAutotuning bool
}

// Engine transforms loop trees.
type Engine interface {
	Transform(t *ir.Tree, roots []ir.NodeID, mode Mode, opts Options) (*State, error)
}

// Default is the built-in engine.
type Default struct{}

var _ Engine = Default{}

// Transform applies mode to the trees under roots. New nodes are added to t;
// the input nodes are left untouched.
func (Default) Transform(t *ir.Tree, roots []ir.NodeID, mode Mode, opts Options) (*State, error) {
	st := &State{Roots: roots}
	switch mode {
	case Noop:
		return st, nil
	case Basic, Advanced:
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownMode, mode)
	}

	st.Roots = classify(t, st.Roots)
	if mode == Advanced {
		b := &blocker{tree: t, opts: opts, counters: map[*sym.Dimension]int{}}
		st.Roots = b.apply(st.Roots)
		st.Arguments = b.args
		st.Callables = b.callables
		st.HasAppliedBlocking = len(b.args) > 0
		st.NeedsAggressiveAutotuning = st.HasAppliedBlocking && opts.BlockInner
	}
	var parallel bool
	st.Roots, parallel = decorate(t, st.Roots, st.Callables, opts)
	if parallel {
		st.Includes = append(st.Includes, "omp.h")
	}
	return st, nil
}
