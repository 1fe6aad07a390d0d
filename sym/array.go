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
	"unsafe"
)

// DType is the element type of a grid function.
type DType uint8

const (
	Float32 DType = iota
	Float64
	Int32
)

// Size returns the element width in bytes.
func (t DType) Size() int {
	switch t {
	case Float64:
		return 8
	default:
		return 4
	}
}

// CType returns the C spelling of the element type.
func (t DType) CType() string {
	switch t {
	case Float32:
		return "float"
	case Float64:
		return "double"
	case Int32:
		return "int"
	default:
		return fmt.Sprintf("/* %d */ float", t)
	}
}

func (t DType) String() string {
	switch t {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	default:
		return fmt.Sprintf("DType(%d)", uint8(t))
	}
}

// Array is a dense, row-major buffer handed to compiled kernels as a flat
// pointer. Exactly one of the typed slices is populated.
type Array struct {
	dtype DType
	shape []int
	f32   []float32
	f64   []float64
	i32   []int32
}

// NewArray allocates a zeroed array.
func NewArray(dtype DType, shape ...int) *Array {
	n := 1
	for _, s := range shape {
		if s < 0 {
			panic(fmt.Sprintf("sym: negative extent in shape %v", shape))
		}
		n *= s
	}
	a := &Array{dtype: dtype, shape: append([]int(nil), shape...)}
	switch dtype {
	case Float64:
		a.f64 = make([]float64, n)
	case Int32:
		a.i32 = make([]int32, n)
	default:
		a.f32 = make([]float32, n)
	}
	return a
}

// DType returns the element type.
func (a *Array) DType() DType { return a.dtype }

// Shape returns a copy of the extents.
func (a *Array) Shape() []int { return append([]int(nil), a.shape...) }

// Len returns the number of elements.
func (a *Array) Len() int {
	switch a.dtype {
	case Float64:
		return len(a.f64)
	case Int32:
		return len(a.i32)
	default:
		return len(a.f32)
	}
}

// Float32s returns the backing slice of a Float32 array, nil otherwise.
func (a *Array) Float32s() []float32 { return a.f32 }

// Float64s returns the backing slice of a Float64 array, nil otherwise.
func (a *Array) Float64s() []float64 { return a.f64 }

// Int32s returns the backing slice of an Int32 array, nil otherwise.
func (a *Array) Int32s() []int32 { return a.i32 }

// Pointer returns the address of the first element, or nil for an empty array.
func (a *Array) Pointer() unsafe.Pointer {
	if a.Len() == 0 {
		return nil
	}
	switch a.dtype {
	case Float64:
		return unsafe.Pointer(&a.f64[0])
	case Int32:
		return unsafe.Pointer(&a.i32[0])
	default:
		return unsafe.Pointer(&a.f32[0])
	}
}

// Bytes returns a byte view of the backing storage.
func (a *Array) Bytes() []byte {
	p := a.Pointer()
	if p == nil {
		return nil
	}
	return unsafe.Slice((*byte)(p), a.Len()*a.dtype.Size())
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	c := &Array{dtype: a.dtype, shape: append([]int(nil), a.shape...)}
	c.f32 = append([]float32(nil), a.f32...)
	c.f64 = append([]float64(nil), a.f64...)
	c.i32 = append([]int32(nil), a.i32...)
	return c
}

// CopyFrom overwrites a with the contents of src, which must have the same
// element type and length.
func (a *Array) CopyFrom(src *Array) error {
	if a.dtype != src.dtype || a.Len() != src.Len() {
		return fmt.Errorf("sym: copy %s%v into %s%v", src.dtype, src.shape, a.dtype, a.shape)
	}
	copy(a.f32, src.f32)
	copy(a.f64, src.f64)
	copy(a.i32, src.i32)
	return nil
}

// At reads the element at idx as a float64.
func (a *Array) At(idx ...int) float64 {
	o := a.offset(idx)
	switch a.dtype {
	case Float64:
		return a.f64[o]
	case Int32:
		return float64(a.i32[o])
	default:
		return float64(a.f32[o])
	}
}

// Set writes v at idx, converting to the element type.
func (a *Array) Set(v float64, idx ...int) {
	o := a.offset(idx)
	switch a.dtype {
	case Float64:
		a.f64[o] = v
	case Int32:
		a.i32[o] = int32(v)
	default:
		a.f32[o] = float32(v)
	}
}

// Fill sets every element to v.
func (a *Array) Fill(v float64) {
	for i := range a.f32 {
		a.f32[i] = float32(v)
	}
	for i := range a.f64 {
		a.f64[i] = v
	}
	for i := range a.i32 {
		a.i32[i] = int32(v)
	}
}

func (a *Array) offset(idx []int) int {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("sym: index %v into shape %v", idx, a.shape))
	}
	o := 0
	for i, x := range idx {
		if x < 0 || x >= a.shape[i] {
			panic(fmt.Sprintf("sym: index %v out of range for shape %v", idx, a.shape))
		}
		o = o*a.shape[i] + x
	}
	return o
}
