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

package ir

// Substitution is the outcome of a Substitute pass.
type Substitution struct {
	// Roots are the transformed roots, in input order.
	Roots []NodeID
	// Rebuilt maps every node that was replaced or rebuilt to its new ID.
	Rebuilt map[NodeID]NodeID
}

// Lookup follows id through the substitution.
func (s *Substitution) Lookup(id NodeID) NodeID {
	if n, ok := s.Rebuilt[id]; ok {
		return n
	}
	return id
}

// Substitute replaces every node in mapper by its image and rebuilds all the
// ancestors of a replaced node. The children of an image are transformed as
// well, except for an occurrence of the very node the image replaces, which
// is kept as is; this allows wrapping a node into a new parent.
func (t *Tree) Substitute(roots []NodeID, mapper map[NodeID]NodeID) *Substitution {
	s := &substituter{
		tree:    t,
		mapper:  mapper,
		done:    map[NodeID]NodeID{},
		rebuilt: map[NodeID]NodeID{},
	}
	out := make([]NodeID, len(roots))
	for i, r := range roots {
		out[i] = s.visit(r, Nil)
	}
	return &Substitution{Roots: out, Rebuilt: s.rebuilt}
}

type substituter struct {
	tree    *Tree
	mapper  map[NodeID]NodeID
	done    map[NodeID]NodeID
	rebuilt map[NodeID]NodeID
}

func (s *substituter) visit(id, guard NodeID) NodeID {
	if id != guard {
		if img, ok := s.mapper[id]; ok {
			if out, ok := s.done[id]; ok {
				return out
			}
			out := s.descend(img, id)
			s.done[id] = out
			s.rebuilt[id] = out
			return out
		}
	}
	if guard == Nil {
		if out, ok := s.done[id]; ok {
			return out
		}
	}
	out := s.descend(id, guard)
	if guard == Nil {
		s.done[id] = out
	}
	if out != id {
		s.rebuilt[id] = out
	}
	return out
}

func (s *substituter) descend(id, guard NodeID) NodeID {
	n := *s.tree.At(id)
	header, ch := s.visitAll(n.Header, guard)
	body, cb := s.visitAll(n.Body, guard)
	footer, cf := s.visitAll(n.Footer, guard)
	if !ch && !cb && !cf {
		return id
	}
	n.Header, n.Body, n.Footer = header, body, footer
	return s.tree.Add(n)
}

func (s *substituter) visitAll(ids []NodeID, guard NodeID) ([]NodeID, bool) {
	if len(ids) == 0 {
		return ids, false
	}
	out := make([]NodeID, len(ids))
	changed := false
	for i, id := range ids {
		out[i] = s.visit(id, guard)
		changed = changed || out[i] != id
	}
	return out, changed
}
