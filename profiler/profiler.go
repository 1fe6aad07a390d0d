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

// Package profiler times the perfect loop nests of a kernel and turns the
// measured times into a performance summary.
package profiler

import (
	"fmt"
	"slices"
	"unsafe"

	"gonum.org/v1/gonum/floats"

	"github.com/nogueirapeterson/devito/ir"
	"github.com/nogueirapeterson/devito/sym"
)

const (
	// StructName is the C struct holding one double per section.
	StructName = "profiler"
	// HandleName is the kernel parameter pointing to that struct.
	HandleName = "timings"
	// MainSection is the name given to the most expensive section.
	MainSection = "main"
)

// Section is a timed region of the kernel.
type Section struct {
	Name string
	// Loops is the iteration space the section belongs to, outermost first.
	Loops []ir.Loop
	// Ops and Memory are the static operation count and the number of
	// distinct array accesses of one iteration.
	Ops, Memory int
}

// Profiler lists the sections of one kernel.
type Profiler struct {
	Sections []Section
}

// Instrument wraps the outermost perfect loop of every iteration space
// under roots in a timer. It returns the new roots and the sections in
// timer order.
func Instrument(t *ir.Tree, roots []ir.NodeID) ([]ir.NodeID, *Profiler) {
	p := &Profiler{}
	mapper := map[ir.NodeID]ir.NodeID{}
	for _, root := range roots {
		for _, s := range t.FindSections(root) {
			for _, l := range s.Loops {
				if !t.IsPerfect(l) {
					continue
				}
				if _, ok := mapper[l]; !ok {
					name := fmt.Sprintf("loop_%s_%d", t.At(l).Loop.Index, len(mapper))
					mapper[l] = t.NewTimed(name, l)
					p.Sections = append(p.Sections, section(t, name, s.Loops, l))
				}
				break
			}
		}
	}
	if len(mapper) == 0 {
		return roots, p
	}
	return t.Substitute(roots, mapper).Roots, p
}

func section(t *ir.Tree, name string, space []ir.NodeID, timed ir.NodeID) Section {
	var exprs []sym.Expr
	for _, id := range t.FindExpressions([]ir.NodeID{timed}) {
		eq := t.At(id).Eq
		exprs = append(exprs, eq.LHS, eq.RHS)
	}
	s := Section{Name: name, Ops: sym.EstimateCost(exprs), Memory: sym.EstimateMemory(exprs)}
	for _, id := range space {
		s.Loops = append(s.Loops, *t.At(id).Loop)
	}
	return s
}

// Names returns the section names in timer order.
func (p *Profiler) Names() []string {
	names := make([]string, len(p.Sections))
	for i, s := range p.Sections {
		names[i] = s.Name
	}
	return names
}

// NewTimings returns a zeroed timer struct for one invocation.
func (p *Profiler) NewTimings() *Timings {
	return &Timings{names: p.Names(), values: make([]float64, len(p.Sections))}
}

// Timings mirrors the C profiler struct: one double per section, in
// declaration order.
type Timings struct {
	names  []string
	values []float64
}

// Pointer returns the address passed to the kernel, or nil without
// sections.
func (t *Timings) Pointer() unsafe.Pointer {
	if len(t.values) == 0 {
		return nil
	}
	return unsafe.Pointer(&t.values[0])
}

// Reset zeroes every timer.
func (t *Timings) Reset() {
	clear(t.values)
}

// Get returns the time of a section in seconds.
func (t *Timings) Get(name string) float64 {
	if i := slices.Index(t.names, name); i >= 0 {
		return t.values[i]
	}
	return 0
}

// Set overwrites the time of a section.
func (t *Timings) Set(name string, seconds float64) {
	if i := slices.Index(t.names, name); i >= 0 {
		t.values[i] = seconds
	}
}

// Total returns the sum of all timers.
func (t *Timings) Total() float64 {
	return floats.Sum(t.values)
}

// Entry is the performance of one section.
type Entry struct {
	Time      float64
	GFlopss   float64
	OI        float64
	IterShape []int
	DataShape []int
}

// Summary is the ordered set of section entries of one invocation.
type Summary struct {
	names   []string
	entries map[string]Entry
}

// Summarize derives throughput and operational intensity for every section.
// sizes maps dimension names to their extent at this invocation and itemsize
// is the element width in bytes. The slowest section is renamed "main" and
// moved last.
func (p *Profiler) Summarize(timings *Timings, sizes map[string]int, itemsize int) *Summary {
	s := &Summary{entries: map[string]Entry{}}
	for _, sec := range p.Sections {
		var iter, data []int
		for _, l := range sec.Loops {
			size := l.Dim.Size
			if size == 0 {
				size = sizes[l.Dim.Name]
			}
			iter = append(iter, l.Extent(size))
			data = append(data, size)
		}
		e := Entry{Time: timings.Get(sec.Name), IterShape: iter, DataShape: data}
		flops := float64(sec.Ops) * float64(product(iter))
		if e.Time > 0 {
			e.GFlopss = flops / 1e9 / e.Time
		}
		if traffic := float64(sec.Memory) * float64(product(data)) * float64(itemsize); traffic > 0 {
			e.OI = flops / traffic
		}
		s.names = append(s.names, sec.Name)
		s.entries[sec.Name] = e
	}
	if len(s.names) > 0 {
		times := make([]float64, len(s.names))
		for i, n := range s.names {
			times[i] = s.entries[n].Time
		}
		slowest := s.names[floats.MaxIdx(times)]
		s.entries[MainSection] = s.entries[slowest]
		delete(s.entries, slowest)
		s.names = append(slices.DeleteFunc(s.names, func(n string) bool { return n == slowest }), MainSection)
	}
	return s
}

func product(xs []int) int {
	p := 1
	for _, x := range xs {
		p *= x
	}
	return p
}

// Names returns the section names in order.
func (s *Summary) Names() []string { return slices.Clone(s.names) }

// Get returns the entry of a section.
func (s *Summary) Get(name string) (Entry, bool) {
	e, ok := s.entries[name]
	return e, ok
}

// Len returns the number of sections.
func (s *Summary) Len() int { return len(s.names) }

// GFlopss returns the achieved throughput per section.
func (s *Summary) GFlopss() map[string]float64 {
	return s.column(func(e Entry) float64 { return e.GFlopss })
}

// OI returns the operational intensity per section.
func (s *Summary) OI() map[string]float64 {
	return s.column(func(e Entry) float64 { return e.OI })
}

// Timings returns the measured time per section.
func (s *Summary) Timings() map[string]float64 {
	return s.column(func(e Entry) float64 { return e.Time })
}

func (s *Summary) column(f func(Entry) float64) map[string]float64 {
	out := make(map[string]float64, len(s.names))
	for n, e := range s.entries {
		out[n] = f(e)
	}
	return out
}
