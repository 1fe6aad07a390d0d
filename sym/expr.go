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

package sym

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is a node of a lowered expression tree.
type Expr interface {
	// String renders a canonical form; structurally equal trees render
	// identically.
	String() string
	isExpr()
}

// Const is a numeric literal.
type Const struct {
	Value float64
	Int   bool
}

// Symbol is a scalar variable: a temporary introduced by rewriting, or a
// placeholder the front end expects to be substituted away.
type Symbol struct {
	Name  string
	DType DType
}

// Access addresses one axis of an indexed function at a constant offset from
// the loop variable of Dim.
type Access struct {
	Dim    *Dimension
	Offset int
}

// Indexed is a read or write of a grid function element.
type Indexed struct {
	F     *Function
	Index []Access
}

// Op is a binary arithmetic operator.
type Op byte

const (
	OpAdd Op = '+'
	OpSub Op = '-'
	OpMul Op = '*'
	OpDiv Op = '/'
)

// Binary applies Op to two operands.
type Binary struct {
	Op   Op
	L, R Expr
}

// Call is an intrinsic math function call, rendered verbatim (sqrt, sin, ...).
type Call struct {
	Name string
	Args []Expr
}

func (Const) isExpr()    {}
func (*Symbol) isExpr()  {}
func (*Indexed) isExpr() {}
func (*Binary) isExpr()  {}
func (*Call) isExpr()    {}

func (c Const) String() string {
	if c.Int {
		return strconv.FormatInt(int64(c.Value), 10)
	}
	return strconv.FormatFloat(c.Value, 'g', -1, 64)
}

func (s *Symbol) String() string { return s.Name }

func (a Access) String() string {
	switch {
	case a.Offset > 0:
		return fmt.Sprintf("%s + %d", a.Dim.Name, a.Offset)
	case a.Offset < 0:
		return fmt.Sprintf("%s - %d", a.Dim.Name, -a.Offset)
	default:
		return a.Dim.Name
	}
}

func (i *Indexed) String() string {
	parts := make([]string, len(i.Index))
	for k, a := range i.Index {
		parts[k] = a.String()
	}
	return i.F.Name + "[" + strings.Join(parts, ", ") + "]"
}

func (b *Binary) String() string {
	return "(" + b.L.String() + " " + string(b.Op) + " " + b.R.String() + ")"
}

func (c *Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return c.Name + "(" + strings.Join(args, ", ") + ")"
}

// Eq is an assignment LHS = RHS.
type Eq struct {
	LHS Expr
	RHS Expr
}

func (e Eq) String() string {
	return e.LHS.String() + " = " + e.RHS.String()
}

// Num returns a floating-point literal.
func Num(v float64) Const { return Const{Value: v} }

// Int returns an integer literal.
func Int(v int) Const { return Const{Value: float64(v), Int: true} }

// Var returns a scalar symbol.
func Var(name string, dtype DType) *Symbol { return &Symbol{Name: name, DType: dtype} }

// Off addresses d at offset k.
func Off(d *Dimension, k int) Access { return Access{Dim: d, Offset: k} }

// Idx addresses d at offset zero.
func Idx(d *Dimension) Access { return Access{Dim: d} }

func fold(op Op, a, b Expr, more []Expr) Expr {
	e := Expr(&Binary{Op: op, L: a, R: b})
	for _, m := range more {
		e = &Binary{Op: op, L: e, R: m}
	}
	return e
}

// Add returns a + b + more...
func Add(a, b Expr, more ...Expr) Expr { return fold(OpAdd, a, b, more) }

// Sub returns a - b.
func Sub(a, b Expr) Expr { return &Binary{Op: OpSub, L: a, R: b} }

// Mul returns a * b * more...
func Mul(a, b Expr, more ...Expr) Expr { return fold(OpMul, a, b, more) }

// Div returns a / b.
func Div(a, b Expr) Expr { return &Binary{Op: OpDiv, L: a, R: b} }

// Walk visits e in pre-order. Children are skipped when fn returns false.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case *Binary:
		Walk(n.L, fn)
		Walk(n.R, fn)
	case *Call:
		for _, a := range n.Args {
			Walk(a, fn)
		}
	}
}

// Rewrite rebuilds e bottom-up, replacing every node for which fn returns
// true. Replaced nodes are not descended into.
func Rewrite(e Expr, fn func(Expr) (Expr, bool)) Expr {
	if r, ok := fn(e); ok {
		return r
	}
	switch n := e.(type) {
	case *Binary:
		l, r := Rewrite(n.L, fn), Rewrite(n.R, fn)
		if l == n.L && r == n.R {
			return n
		}
		return &Binary{Op: n.Op, L: l, R: r}
	case *Call:
		args := make([]Expr, len(n.Args))
		changed := false
		for i, a := range n.Args {
			args[i] = Rewrite(a, fn)
			changed = changed || args[i] != a
		}
		if !changed {
			return n
		}
		return &Call{Name: n.Name, Args: args}
	}
	return e
}

// Substitute replaces symbols by name.
func Substitute(e Expr, subs map[string]Expr) Expr {
	if len(subs) == 0 {
		return e
	}
	return Rewrite(e, func(n Expr) (Expr, bool) {
		if s, ok := n.(*Symbol); ok {
			if r, ok := subs[s.Name]; ok {
				return r, true
			}
		}
		return nil, false
	})
}

// Indexeds returns the indexed accesses of e in visiting order.
func Indexeds(e Expr) []*Indexed {
	var out []*Indexed
	Walk(e, func(n Expr) bool {
		if i, ok := n.(*Indexed); ok {
			out = append(out, i)
		}
		return true
	})
	return out
}

// Symbols returns the scalar symbols of e in visiting order.
func Symbols(e Expr) []*Symbol {
	var out []*Symbol
	Walk(e, func(n Expr) bool {
		if s, ok := n.(*Symbol); ok {
			out = append(out, s)
		}
		return true
	})
	return out
}
