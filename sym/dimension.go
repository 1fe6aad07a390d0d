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

// Package sym holds the vocabulary shared by every stage of the stencil
// compiler: dimensions, grid functions and their backing arrays, the small
// expression language the front end lowers equations into, and stencils.
//
// Everything in this package is immutable once built, with the exception of
// Array contents, which kernels write into.
package sym

import "fmt"

// Dimension is an iteration axis of a grid.
//
// A Dimension with Size == 0 is open: its extent is only known at call time
// and becomes a kernel parameter named by SizeName. A buffered dimension is a
// rolling index over its Parent (for example a two-slot time buffer); its
// accesses are rendered modulo Modulo while the loop runs over the parent.
type Dimension struct {
	Name   string
	Size   int
	Parent *Dimension
	Modulo int

	// Time marks a dimension whose loop carries a dependence between
	// iterations and therefore must run sequentially.
	Time bool
}

// NewDimension returns an open space dimension.
func NewDimension(name string) *Dimension {
	return &Dimension{Name: name}
}

// NewFixedDimension returns a space dimension with a compile-time extent.
func NewFixedDimension(name string, size int) *Dimension {
	return &Dimension{Name: name, Size: size}
}

// NewTimeDimension returns an open, sequential dimension.
func NewTimeDimension(name string) *Dimension {
	return &Dimension{Name: name, Time: true}
}

// NewBufferedDimension returns a dimension that cycles through modulo slots
// while its parent advances.
func NewBufferedDimension(name string, parent *Dimension, modulo int) *Dimension {
	if parent == nil {
		panic(fmt.Sprintf("sym: buffered dimension %s without parent", name))
	}
	if modulo <= 0 {
		panic(fmt.Sprintf("sym: buffered dimension %s with modulo %d", name, modulo))
	}
	return &Dimension{Name: name, Parent: parent, Modulo: modulo, Time: parent.Time}
}

// IsBuffered reports whether d is a modulo dimension.
func (d *Dimension) IsBuffered() bool {
	return d.Parent != nil
}

// Root returns the dimension the loop actually iterates over: the parent for
// a buffered dimension, d itself otherwise.
func (d *Dimension) Root() *Dimension {
	if d.Parent != nil {
		return d.Parent
	}
	return d
}

// SizeName is the name of the kernel parameter carrying the extent of an
// open dimension.
func (d *Dimension) SizeName() string {
	return d.Name + "_size"
}

func (d *Dimension) String() string {
	return d.Name
}

// Direction selects the order in which sequential loops advance.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}
