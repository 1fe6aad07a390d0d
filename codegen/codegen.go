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

// Package codegen renders a planned loop tree as a C translation unit.
package codegen

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/nogueirapeterson/devito/ir"
	"github.com/nogueirapeterson/devito/profiler"
	"github.com/nogueirapeterson/devito/sym"
)

// Alignment is the byte alignment of planned temporaries.
const Alignment = 64

// DefaultIncludes are emitted by every kernel.
var DefaultIncludes = []string{"stdlib.h", "math.h", "sys/time.h"}

// ParamKind classifies kernel parameters.
type ParamKind uint8

const (
	// ArrayParam is a grid function passed as a flat pointer.
	ArrayParam ParamKind = iota
	// SizeParam is the extent of an open dimension.
	SizeParam
	// BlockParam is a block size produced by loop blocking.
	BlockParam
	// ProfilerParam points to the timer struct.
	ProfilerParam
)

func (k ParamKind) String() string {
	switch k {
	case ArrayParam:
		return "array"
	case SizeParam:
		return "size"
	case BlockParam:
		return "block"
	case ProfilerParam:
		return "profiler"
	default:
		return fmt.Sprintf("ParamKind(%d)", uint8(k))
	}
}

// Param is a formal parameter of the kernel.
type Param struct {
	Name  string
	Kind  ParamKind
	Array *sym.Function
	// Dim is the dimension a size or block parameter refers to.
	Dim *sym.Dimension
}

// CName is the name of the parameter in the kernel signature.
func (p Param) CName() string {
	if p.Kind == ArrayParam {
		return p.Name + "_vec"
	}
	return p.Name
}

// Kernel is everything needed to render one kernel.
type Kernel struct {
	Name      string
	Tree      *ir.Tree
	Roots     []ir.NodeID
	Callables []ir.Callable
	Params    []Param
	Includes  []string
	// Sections are the fields of the timer struct.
	Sections []string
}

// Emit renders k.
func Emit(k *Kernel) string {
	e := &emitter{tree: k.Tree}
	e.header(k.Includes)
	if len(k.Sections) > 0 {
		e.profilerStruct(k.Sections)
	}
	for _, c := range k.Callables {
		e.callable(c)
	}
	e.kernel(k)
	return e.buf.String()
}

type emitter struct {
	tree   *ir.Tree
	buf    bytes.Buffer
	indent int
}

func (e *emitter) writef(format string, args ...any) {
	for i := 0; i < e.indent; i++ {
		e.buf.WriteString("  ")
	}
	fmt.Fprintf(&e.buf, format, args...)
}

func (e *emitter) header(includes []string) {
	e.writef("#define _POSIX_C_SOURCE 200809L\n")
	e.writef("#define MIN(a,b) (((a) < (b)) ? (a) : (b))\n")
	seen := map[string]bool{}
	for _, inc := range append(append([]string{}, DefaultIncludes...), includes...) {
		if seen[inc] {
			continue
		}
		seen[inc] = true
		e.writef("#include <%s>\n", inc)
	}
	e.writef("\n")
}

func (e *emitter) profilerStruct(sections []string) {
	e.writef("struct %s\n{\n", profiler.StructName)
	for _, s := range sections {
		e.writef("  double %s;\n", s)
	}
	e.writef("};\n\n")
}

func (e *emitter) callable(c ir.Callable) {
	var params []string
	for _, p := range c.Params {
		if p.Array == nil {
			params = append(params, "const int "+p.Name)
			continue
		}
		params = append(params, arrayDecl(p.Array, p.Name, true))
	}
	e.writef("static void %s(%s)\n{\n", c.Name, strings.Join(params, ", "))
	e.indent++
	e.node(c.Body)
	e.indent--
	e.writef("}\n\n")
}

func (e *emitter) kernel(k *Kernel) {
	params := make([]string, len(k.Params))
	for i, p := range k.Params {
		switch p.Kind {
		case ArrayParam:
			params[i] = fmt.Sprintf("%s *restrict %s", p.Array.DType.CType(), p.CName())
		case ProfilerParam:
			params[i] = fmt.Sprintf("struct %s *%s", profiler.StructName, p.Name)
		default:
			params[i] = "const int " + p.Name
		}
	}
	e.writef("int %s(%s)\n{\n", k.Name, strings.Join(params, ", "))
	e.indent++
	for _, p := range k.Params {
		if p.Kind != ArrayParam {
			continue
		}
		e.writef("%s = (%s) %s;\n", arrayDecl(p.Array, p.Name, true), castType(p.Array), p.CName())
	}
	for _, r := range k.Roots {
		e.node(r)
	}
	e.writef("return 0;\n")
	e.indent--
	e.writef("}\n")
}

// arrayDecl declares name as a pointer to rows of f, or as a flat pointer
// for one-dimensional functions.
func arrayDecl(f *sym.Function, name string, restrict bool) string {
	qual := ""
	if restrict {
		qual = "restrict "
	}
	if len(f.Indices) <= 1 {
		return fmt.Sprintf("%s *%s%s", f.DType.CType(), qual, name)
	}
	return fmt.Sprintf("%s (*%s%s)%s", f.DType.CType(), qual, name, extents(f.Indices[1:]))
}

func castType(f *sym.Function) string {
	if len(f.Indices) <= 1 {
		return f.DType.CType() + " *"
	}
	return fmt.Sprintf("%s (*)%s", f.DType.CType(), extents(f.Indices[1:]))
}

func extents(dims []*sym.Dimension) string {
	var b strings.Builder
	for _, d := range dims {
		b.WriteString("[" + Extent(d) + "]")
	}
	return b.String()
}

// Extent renders the number of elements along d.
func Extent(d *sym.Dimension) string {
	switch {
	case d.Size > 0:
		return strconv.Itoa(d.Size)
	case d.IsBuffered():
		return strconv.Itoa(d.Modulo)
	default:
		return d.SizeName()
	}
}

func (e *emitter) node(id ir.NodeID) {
	n := e.tree.At(id)
	switch n.Kind {
	case ir.KindList:
		for _, c := range n.Children() {
			e.node(c)
		}
	case ir.KindIteration:
		e.loop(n)
	case ir.KindExpression:
		e.writef("%s = %s;\n", Expr(n.Eq.LHS, n.DType), Expr(n.Eq.RHS, n.DType))
	case ir.KindLocal:
		e.writef("%s %s = %s;\n", n.DType.CType(), Expr(n.Eq.LHS, n.DType), Expr(n.Eq.RHS, n.DType))
	case ir.KindElement:
		e.element(n)
	case ir.KindTimed:
		e.timed(n)
	case ir.KindCall:
		e.writef("%s(%s);\n", n.Callee, strings.Join(n.Args, ", "))
	default:
		panic(fmt.Sprintf("codegen: cannot render %v node", n.Kind))
	}
}

func (e *emitter) loop(n *ir.Node) {
	l := n.Loop
	for _, p := range l.Pragmas {
		e.writef("#pragma %s\n", p)
	}
	lower, upper, step := Expr(l.Lower, sym.Int32), Expr(l.Upper, sym.Int32), Expr(l.Step, sym.Int32)
	if l.Direction == sym.Backward {
		e.writef("for (int %s = %s - 1; %s >= %s; %s -= %s)\n", l.Index, upper, l.Index, lower, l.Index, step)
	} else {
		e.writef("for (int %s = %s; %s < %s; %s += %s)\n", l.Index, lower, l.Index, upper, l.Index, step)
	}
	e.writef("{\n")
	e.indent++
	for _, c := range n.Body {
		e.node(c)
	}
	e.indent--
	e.writef("}\n")
}

func (e *emitter) element(n *ir.Node) {
	f := n.Object
	switch n.Role {
	case ir.RoleStatement:
		for _, l := range n.Lines {
			e.writef("%s\n", l)
		}
	case ir.RoleDeclare:
		if f.Memory == sym.Stack {
			e.writef("%s %s%s __attribute__((aligned(%d)));\n", f.DType.CType(), f.Name, extents(f.Indices), Alignment)
			return
		}
		e.writef("%s;\n", arrayDecl(f, f.Name, false))
	case ir.RoleAlloc:
		e.writef("posix_memalign((void**)&%s, %d, sizeof(%s%s));\n", f.Name, Alignment, f.DType.CType(), extents(f.Indices))
	case ir.RoleFree:
		e.writef("free(%s);\n", f.Name)
	}
}

func (e *emitter) timed(n *ir.Node) {
	s := n.Section
	e.writef("{\n")
	e.indent++
	e.writef("struct timeval start_%s, end_%s;\n", s, s)
	e.writef("gettimeofday(&start_%s, NULL);\n", s)
	for _, c := range n.Body {
		e.node(c)
	}
	e.writef("gettimeofday(&end_%s, NULL);\n", s)
	e.writef("%s->%s += (double)(end_%s.tv_sec-start_%s.tv_sec)+(double)(end_%s.tv_usec-start_%s.tv_usec)/1000000;\n",
		profiler.HandleName, s, s, s, s, s)
	e.indent--
	e.writef("}\n")
}

// Expr renders x in C. Floating-point literals take the precision of dtype.
func Expr(x sym.Expr, dtype sym.DType) string {
	switch n := x.(type) {
	case sym.Const:
		return literal(n, dtype)
	case *sym.Symbol:
		return n.Name
	case *sym.Indexed:
		var b strings.Builder
		b.WriteString(n.F.Name)
		for _, a := range n.Index {
			b.WriteString("[" + access(a) + "]")
		}
		return b.String()
	case *sym.Binary:
		return "(" + Expr(n.L, dtype) + " " + string(n.Op) + " " + Expr(n.R, dtype) + ")"
	case *sym.Call:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = Expr(a, dtype)
		}
		return n.Name + "(" + strings.Join(args, ", ") + ")"
	default:
		panic(fmt.Sprintf("codegen: unsupported expression %T", x))
	}
}

func literal(c sym.Const, dtype sym.DType) string {
	if c.Int || dtype == sym.Int32 {
		return strconv.FormatInt(int64(c.Value), 10)
	}
	s := strconv.FormatFloat(c.Value, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEIN") {
		s += ".0"
	}
	if dtype == sym.Float32 {
		s += "F"
	}
	return s
}

func access(a sym.Access) string {
	idx := a.Dim.Root().Name
	switch {
	case a.Offset > 0:
		idx = fmt.Sprintf("%s + %d", idx, a.Offset)
	case a.Offset < 0:
		idx = fmt.Sprintf("%s - %d", idx, -a.Offset)
	}
	if a.Dim.IsBuffered() {
		if a.Offset != 0 {
			idx = "(" + idx + ")"
		}
		return fmt.Sprintf("%s %% %d", idx, a.Dim.Modulo)
	}
	return idx
}
