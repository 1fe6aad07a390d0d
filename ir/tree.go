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

// Package ir is the loop tree the stencil compiler schedules, optimizes and
// renders.
//
// Nodes live in an arena owned by a Tree and are addressed by NodeID. Nodes
// are never mutated after they are added: a structural change allocates a new
// node (Rebuild) and a substitution pass (Substitute) maps old IDs to new ones
// uniformly, reporting every node it rebuilt so that callers holding IDs can
// follow the change.
package ir

import (
	"fmt"
	"slices"

	"github.com/nogueirapeterson/devito/sym"
)

// NodeID addresses a node in a Tree.
type NodeID int32

// Nil is the absent node.
const Nil NodeID = -1

// Kind discriminates nodes.
type Kind uint8

const (
	// KindList groups Header, Body and Footer statements.
	KindList Kind = iota
	// KindIteration is a loop over Loop.Index.
	KindIteration
	// KindExpression assigns Eq.RHS to Eq.LHS.
	KindExpression
	// KindLocal declares and initializes a scalar temporary.
	KindLocal
	// KindElement is a verbatim statement.
	KindElement
	// KindTimed wraps Body with a profiling timer named Section.
	KindTimed
	// KindCall calls the elemental function Callee with Args.
	KindCall
)

func (k Kind) String() string {
	switch k {
	case KindList:
		return "List"
	case KindIteration:
		return "Iteration"
	case KindExpression:
		return "Expression"
	case KindLocal:
		return "Local"
	case KindElement:
		return "Element"
	case KindTimed:
		return "Timed"
	case KindCall:
		return "Call"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Property classifies a loop.
type Property uint8

const (
	Sequential Property = 1 << iota
	Parallel
	Vectorizable
)

// Loop describes an iteration. Upper is exclusive; bounds are expressed over
// the symbols the kernel sees at run time (dimension sizes, block sizes and
// enclosing loop indices).
type Loop struct {
	Dim      *sym.Dimension
	Buffered *sym.Dimension
	Index    string
	Lo, Hi   int

	Lower, Upper, Step sym.Expr
	Direction          sym.Direction
	Props              Property
	Pragmas            []string

	// Block is the size parameter of a block loop, empty otherwise.
	Block string
}

// Is reports whether every property in p is set.
func (l *Loop) Is(p Property) bool { return l.Props&p == p }

// End returns the exclusive upper bound of the unblocked loop for a
// dimension of the given size.
func (l *Loop) End(size int) int { return size - l.Hi }

// Extent returns the trip count of the unblocked loop for a dimension of the
// given size.
func (l *Loop) Extent(size int) int { return max(0, size-l.Hi+l.Lo) }

// ElementRole tags verbatim statements produced by allocation planning.
type ElementRole uint8

const (
	RoleStatement ElementRole = iota
	RoleDeclare
	RoleAlloc
	RoleFree
)

// Node is an element of the loop tree.
type Node struct {
	Kind   Kind
	Header []NodeID
	Body   []NodeID
	Footer []NodeID

	Loop  *Loop
	Eq    *sym.Eq
	DType sym.DType

	Lines  []string
	Role   ElementRole
	Object *sym.Function

	Section string

	Callee string
	Args   []string
}

// Children returns Header, Body and Footer in order.
func (n *Node) Children() []NodeID {
	out := make([]NodeID, 0, len(n.Header)+len(n.Body)+len(n.Footer))
	out = append(out, n.Header...)
	out = append(out, n.Body...)
	return append(out, n.Footer...)
}

// Tree is an arena of nodes.
type Tree struct {
	nodes []Node
}

// NewTree returns an empty arena.
func NewTree() *Tree {
	return &Tree{}
}

// Add appends n and returns its ID. The slices of n are copied.
func (t *Tree) Add(n Node) NodeID {
	n.Header = slices.Clone(n.Header)
	n.Body = slices.Clone(n.Body)
	n.Footer = slices.Clone(n.Footer)
	t.nodes = append(t.nodes, n)
	return NodeID(len(t.nodes) - 1)
}

// At returns the node with the given ID. The node must not be modified.
func (t *Tree) At(id NodeID) *Node {
	if id < 0 || int(id) >= len(t.nodes) {
		panic(fmt.Sprintf("ir: invalid node %d (arena holds %d)", id, len(t.nodes)))
	}
	return &t.nodes[id]
}

// Len returns the number of nodes ever added.
func (t *Tree) Len() int { return len(t.nodes) }

// Rebuild returns a copy of node id whose body is replaced.
func (t *Tree) Rebuild(id NodeID, body []NodeID) NodeID {
	n := *t.At(id)
	n.Body = body
	return t.Add(n)
}

// Constructors for the common node kinds.

// NewList adds a list node.
func (t *Tree) NewList(header, body, footer []NodeID) NodeID {
	return t.Add(Node{Kind: KindList, Header: header, Body: body, Footer: footer})
}

// NewIteration adds a loop node.
func (t *Tree) NewIteration(loop Loop, body ...NodeID) NodeID {
	l := loop
	l.Pragmas = slices.Clone(loop.Pragmas)
	return t.Add(Node{Kind: KindIteration, Loop: &l, Body: body})
}

// NewExpression adds an assignment.
func (t *Tree) NewExpression(eq sym.Eq, dtype sym.DType) NodeID {
	return t.Add(Node{Kind: KindExpression, Eq: &eq, DType: dtype})
}

// NewLocal adds a scalar declaration with initializer.
func (t *Tree) NewLocal(eq sym.Eq, dtype sym.DType) NodeID {
	return t.Add(Node{Kind: KindLocal, Eq: &eq, DType: dtype})
}

// NewElement adds verbatim statements.
func (t *Tree) NewElement(role ElementRole, obj *sym.Function, lines ...string) NodeID {
	return t.Add(Node{Kind: KindElement, Role: role, Object: obj, Lines: lines})
}

// NewTimed wraps body with the timer of section.
func (t *Tree) NewTimed(section string, body ...NodeID) NodeID {
	return t.Add(Node{Kind: KindTimed, Section: section, Body: body})
}

// NewCall adds a call to an elemental function.
func (t *Tree) NewCall(callee string, args ...string) NodeID {
	return t.Add(Node{Kind: KindCall, Callee: callee, Args: args})
}

// WithLoop returns a copy of iteration id with a new loop descriptor.
func (t *Tree) WithLoop(id NodeID, loop Loop) NodeID {
	n := *t.At(id)
	l := loop
	l.Pragmas = slices.Clone(loop.Pragmas)
	n.Loop = &l
	return t.Add(n)
}

// Compose nests levels: each iteration wraps the next, and the innermost
// wraps leaves. It returns the outermost node and the IDs of the iterations
// in nesting order. With no levels the leaves are wrapped in a list.
func (t *Tree) Compose(levels []Loop, leaves []NodeID) (NodeID, []NodeID) {
	ids := make([]NodeID, len(levels))
	body := leaves
	for i := len(levels) - 1; i >= 0; i-- {
		ids[i] = t.NewIteration(levels[i], body...)
		body = []NodeID{ids[i]}
	}
	if len(levels) == 0 {
		return t.NewList(nil, leaves, nil), nil
	}
	return ids[0], ids
}

// Param is a formal parameter of an elemental function.
type Param struct {
	Name  string
	Array *sym.Function
}

// Callable is a helper function extracted from the kernel.
type Callable struct {
	Name   string
	Params []Param
	Body   NodeID
}
