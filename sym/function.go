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
	"slices"
)

// Memory says where the storage of a Function lives during a kernel call.
type Memory uint8

const (
	// External storage is supplied by the caller as a kernel argument.
	External Memory = iota
	// Heap storage is allocated once around the whole kernel body.
	Heap
	// Stack storage is declared inside the loop that owns it.
	Stack
)

func (m Memory) String() string {
	switch m {
	case External:
		return "external"
	case Heap:
		return "heap"
	case Stack:
		return "stack"
	default:
		return fmt.Sprintf("Memory(%d)", uint8(m))
	}
}

// Function is a symbolic grid object: a named array indexed by dimensions.
// Data is optional; it is required only when a kernel is executed on it.
type Function struct {
	Name    string
	Indices []*Dimension
	Shape   []int
	DType   DType
	Memory  Memory
	Data    *Array
}

// NewFunction returns an externally supplied grid function. shape gives the
// declared extent along each of dims.
func NewFunction(name string, dtype DType, dims []*Dimension, shape []int) *Function {
	if len(dims) != len(shape) {
		panic(fmt.Sprintf("sym: function %s has %d dimensions but shape %v", name, len(dims), shape))
	}
	return &Function{
		Name:    name,
		Indices: slices.Clone(dims),
		Shape:   slices.Clone(shape),
		DType:   dtype,
	}
}

// NewTemporary returns a function whose storage is planned by the compiler.
func NewTemporary(name string, dtype DType, dims []*Dimension, mem Memory) *Function {
	shape := make([]int, len(dims))
	for i, d := range dims {
		shape[i] = d.Size
	}
	return &Function{Name: name, Indices: slices.Clone(dims), Shape: shape, DType: dtype, Memory: mem}
}

// Alloc attaches zeroed backing data of the declared shape and returns f.
func (f *Function) Alloc() *Function {
	f.Data = NewArray(f.DType, f.Shape...)
	return f
}

// WithData returns a copy of f bound to data. The copy has the shape of data.
func (f *Function) WithData(data *Array) *Function {
	c := *f
	c.Data = data
	c.Shape = data.Shape()
	return &c
}

// Indexes reports whether f varies along d, either directly or through a
// buffered dimension whose parent is d.
func (f *Function) Indexes(d *Dimension) bool {
	for _, i := range f.Indices {
		if i == d || i.Root() == d {
			return true
		}
	}
	return false
}

// At builds an indexed access. Each access addresses one of f's dimensions in
// order.
func (f *Function) At(index ...Access) *Indexed {
	if len(index) != len(f.Indices) {
		panic(fmt.Sprintf("sym: %s takes %d indices, got %d", f.Name, len(f.Indices), len(index)))
	}
	return &Indexed{F: f, Index: slices.Clone(index)}
}

func (f *Function) String() string {
	return f.Name
}
