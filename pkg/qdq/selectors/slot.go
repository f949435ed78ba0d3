// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package selectors

import (
	"fmt"

	"github.com/gomlx/qdq/pkg/core/graph"
)

// Slot is one input position of a Selection: either Present with a boundary node, or Missing.
//
// The zero value is Missing.
type Slot struct {
	node    graph.NodeIndex
	present bool
}

// Present returns a Slot filled with the given node.
func Present(node graph.NodeIndex) Slot {
	return Slot{node: node, present: true}
}

// Missing returns an empty Slot, e.g.: the bias of a convolution without bias.
func Missing() Slot {
	return Slot{}
}

// IsMissing returns whether the slot has no node.
func (s Slot) IsMissing() bool {
	return !s.present
}

// Node returns the node in the slot and true, or graph.InvalidNode and false if it is missing.
func (s Slot) Node() (graph.NodeIndex, bool) {
	if !s.present {
		return graph.InvalidNode, false
	}
	return s.node, true
}

// String implements fmt.Stringer.
func (s Slot) String() string {
	if !s.present {
		return "<missing>"
	}
	return fmt.Sprintf("#%d", s.node)
}
