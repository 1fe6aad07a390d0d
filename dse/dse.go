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

// Package dse groups lowered equations into clusters and applies symbolic
// rewrites to them.
//
// A cluster is a run of equations that share one stencil and therefore one
// loop nest. The scheduler only relies on the ordered cluster list, each
// cluster's stencil and its trace; everything else in this package is an
// implementation of the rewriting collaborator.
package dse

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nogueirapeterson/devito/sym"
)

// ErrUnknownMode is returned for an unsupported rewriting mode.
var ErrUnknownMode = errors.New("dse: unknown mode")

// Cluster is a group of equations executed inside one loop nest.
type Cluster struct {
	// Trace lists the equations in execution order. Scalar temporaries are
	// defined before their first use.
	Trace   []sym.Eq
	Stencil *sym.Stencil
}

// IsIndex reports whether eq defines an integer index temporary.
func (c *Cluster) IsIndex(eq sym.Eq) bool {
	s, ok := eq.LHS.(*sym.Symbol)
	return ok && s.DType == sym.Int32
}

// Rewriter turns equations and their stencils into ordered clusters.
type Rewriter interface {
	Rewrite(exprs []sym.Eq, stencils []*sym.Stencil) ([]*Cluster, error)
}

// RewriterFunc adapts a function to Rewriter.
type RewriterFunc func(exprs []sym.Eq, stencils []*sym.Stencil) ([]*Cluster, error)

// Rewrite calls f.
func (f RewriterFunc) Rewrite(exprs []sym.Eq, stencils []*sym.Stencil) ([]*Cluster, error) {
	return f(exprs, stencils)
}

// New returns the rewriter for mode: "noop" (or empty) only clusterizes,
// "basic" and "advanced" also eliminate common sub-expressions.
func New(mode string) (Rewriter, error) {
	switch cases.Lower(language.Und).String(strings.TrimSpace(mode)) {
	case "", "noop", "none":
		return RewriterFunc(noop), nil
	case "basic", "advanced":
		return RewriterFunc(basic), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownMode, mode)
	}
}

func noop(exprs []sym.Eq, stencils []*sym.Stencil) ([]*Cluster, error) {
	if len(exprs) != len(stencils) {
		return nil, fmt.Errorf("dse: %d expressions with %d stencils", len(exprs), len(stencils))
	}
	return Clusterize(exprs, stencils), nil
}

func basic(exprs []sym.Eq, stencils []*sym.Stencil) ([]*Cluster, error) {
	clusters, err := noop(exprs, stencils)
	if err != nil {
		return nil, err
	}
	counter := 0
	for _, c := range clusters {
		c.Trace = eliminateCommonSubexpressions(c.Trace, &counter)
	}
	return clusters, nil
}

// Clusterize groups consecutive equations with equal stencils. A scalar
// temporary takes the union of its own stencil and the stencils of the
// equations that read it, so that it lands in the same loop nest as its
// consumers.
func Clusterize(exprs []sym.Eq, stencils []*sym.Stencil) []*Cluster {
	effective := make([]*sym.Stencil, len(stencils))
	for i := len(exprs) - 1; i >= 0; i-- {
		effective[i] = stencils[i].Clone()
		s, ok := exprs[i].LHS.(*sym.Symbol)
		if !ok {
			continue
		}
		for j := i + 1; j < len(exprs); j++ {
			if reads(exprs[j].RHS, s.Name) {
				effective[i] = effective[i].Union(effective[j])
			}
		}
	}

	var out []*Cluster
	for i, eq := range exprs {
		if n := len(out); n > 0 && out[n-1].Stencil.Equal(effective[i]) {
			out[n-1].Trace = append(out[n-1].Trace, eq)
			continue
		}
		out = append(out, &Cluster{Trace: []sym.Eq{eq}, Stencil: effective[i]})
	}
	return out
}

func reads(e sym.Expr, name string) bool {
	return slices.ContainsFunc(sym.Symbols(e), func(s *sym.Symbol) bool { return s.Name == name })
}

// eliminateCommonSubexpressions hoists every compound sub-expression that
// occurs more than once into a fresh temporary defined right before its
// first use. Occurrences separated by a write to an operand are not merged.
func eliminateCommonSubexpressions(trace []sym.Eq, counter *int) []sym.Eq {
	dtype := clusterDType(trace)
	for {
		target, sp, ok := mostProfitable(trace)
		if !ok {
			return trace
		}
		temp := sym.Var(fmt.Sprintf("r%d", *counter), dtype)
		*counter++
		key := target.String()
		replace := func(e sym.Expr) sym.Expr {
			return sym.Rewrite(e, func(n sym.Expr) (sym.Expr, bool) {
				if isCompound(n) && n.String() == key {
					return temp, true
				}
				return nil, false
			})
		}
		for i := sp.first; i <= sp.last; i++ {
			trace[i].RHS = replace(trace[i].RHS)
		}
		def := sym.Eq{LHS: temp, RHS: target}
		trace = slices.Insert(trace, sp.first, def)
	}
}

// span is a run of statements over which one sub-expression keeps its
// value.
type span struct {
	first, last int
	count       int
}

func mostProfitable(trace []sym.Eq) (sym.Expr, span, bool) {
	var order []sym.Expr
	seen := map[string]bool{}
	for _, eq := range trace {
		sym.Walk(eq.RHS, func(n sym.Expr) bool {
			if isCompound(n) && !seen[n.String()] {
				seen[n.String()] = true
				order = append(order, n)
			}
			return true
		})
	}
	var (
		best    sym.Expr
		bestRun span
	)
	for _, e := range order {
		run := longestRun(trace, e)
		if run.count < 2 {
			continue
		}
		if best == nil || len(e.String()) > len(best.String()) {
			best, bestRun = e, run
		}
	}
	return best, bestRun, best != nil
}

// longestRun returns the run of statements holding the most occurrences of
// e. A run ends after a statement that overwrites an operand of e.
func longestRun(trace []sym.Eq, e sym.Expr) span {
	key := e.String()
	var best, cur span
	cur.first = -1
	for i, eq := range trace {
		n := 0
		sym.Walk(eq.RHS, func(x sym.Expr) bool {
			if isCompound(x) && x.String() == key {
				n++
				return false
			}
			return true
		})
		if n > 0 {
			if cur.first < 0 {
				cur.first = i
			}
			cur.last = i
			cur.count += n
		}
		if cur.count > best.count {
			best = cur
		}
		if writesOperand(eq.LHS, e) {
			cur = span{first: -1}
		}
	}
	return best
}

func writesOperand(lhs, e sym.Expr) bool {
	switch w := lhs.(type) {
	case *sym.Indexed:
		key := w.String()
		return slices.ContainsFunc(sym.Indexeds(e), func(r *sym.Indexed) bool { return r.String() == key })
	case *sym.Symbol:
		return reads(e, w.Name)
	}
	return false
}

func isCompound(e sym.Expr) bool {
	switch e.(type) {
	case *sym.Binary, *sym.Call:
		return true
	}
	return false
}

func clusterDType(trace []sym.Eq) sym.DType {
	for _, eq := range trace {
		if i, ok := eq.LHS.(*sym.Indexed); ok {
			return i.F.DType
		}
	}
	for _, eq := range trace {
		if s, ok := eq.LHS.(*sym.Symbol); ok {
			return s.DType
		}
	}
	return sym.Float32
}
