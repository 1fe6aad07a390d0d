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

// Package jit compiles generated C source into shared objects and calls the
// kernels they export.
package jit

import (
	"context"
	"errors"
	"fmt"
	"unsafe"

	"github.com/nogueirapeterson/devito/sym"
)

var (
	// ErrCompile is returned when the C compiler rejects a translation unit.
	ErrCompile = errors.New("jit: compilation failed")
	// ErrLoad is returned when a shared object or its symbol cannot be loaded.
	ErrLoad = errors.New("jit: load failed")
	// ErrSignature is returned when call arguments do not match the kernel.
	ErrSignature = errors.New("jit: signature mismatch")
)

// Artifact is a compiled shared object.
type Artifact struct {
	Path string
	// Hash identifies the source and flags the artifact was built from.
	Hash string
	// Cached reports that no compiler ran to produce the artifact.
	Cached bool
}

// Compiler turns C source into an artifact.
type Compiler interface {
	Compile(ctx context.Context, src string) (Artifact, error)
}

// Loader resolves a kernel symbol in an artifact.
type Loader interface {
	Load(a Artifact, symbol string, sig []ArgType) (Kernel, error)
}

// Kernel is a loaded native function.
type Kernel interface {
	Call(args []Arg) (int, error)
}

// maxArgs bounds the register and stack arguments purego.SyscallN forwards.
// Kernels with longer signatures fail to load.
const maxArgs = 15

// ArgKind is the machine class of an argument.
type ArgKind uint8

const (
	// ArgInt is a C int.
	ArgInt ArgKind = iota
	// ArgPointer is a pointer to contiguous elements.
	ArgPointer
)

// ArgType is the declared type of one kernel parameter.
type ArgType struct {
	Kind ArgKind
	// Elem is the element type of a pointer; it is ignored for ints.
	Elem sym.DType
}

func (t ArgType) String() string {
	if t.Kind == ArgInt {
		return "int"
	}
	return t.Elem.CType() + "*"
}

// Arg is one actual argument.
type Arg struct {
	Type ArgType
	Int  int64
	Ptr  unsafe.Pointer
}

// IntArg returns an int argument.
func IntArg(v int) Arg {
	return Arg{Type: ArgType{Kind: ArgInt}, Int: int64(v)}
}

// PointerArg returns a pointer argument.
func PointerArg(p unsafe.Pointer, elem sym.DType) Arg {
	return Arg{Type: ArgType{Kind: ArgPointer, Elem: elem}, Ptr: p}
}

// CheckArgs verifies args against sig.
func CheckArgs(sig []ArgType, args []Arg) error {
	if len(args) != len(sig) {
		return fmt.Errorf("%w: got %d arguments, want %d", ErrSignature, len(args), len(sig))
	}
	for i, a := range args {
		if a.Type.Kind != sig[i].Kind || (a.Type.Kind == ArgPointer && a.Type.Elem != sig[i].Elem) {
			return fmt.Errorf("%w: argument %d is %v, want %v", ErrSignature, i, a.Type, sig[i])
		}
	}
	return nil
}

// Func adapts a Go function to Kernel. It is the in-process stand-in for a
// native kernel.
type Func func(args []Arg) int

// Call calls f.
func (f Func) Call(args []Arg) (int, error) {
	return f(args), nil
}

// FuncLoader serves the same Func for every artifact. It checks the
// argument types on every call.
type FuncLoader struct {
	Func Func
}

// Load implements Loader.
func (l FuncLoader) Load(_ Artifact, _ string, sig []ArgType) (Kernel, error) {
	if l.Func == nil {
		return nil, fmt.Errorf("%w: no function", ErrLoad)
	}
	return &checkedFunc{fn: l.Func, sig: sig}, nil
}

type checkedFunc struct {
	fn  Func
	sig []ArgType
}

func (k *checkedFunc) Call(args []Arg) (int, error) {
	if err := CheckArgs(k.sig, args); err != nil {
		return 0, err
	}
	return k.fn(args), nil
}
