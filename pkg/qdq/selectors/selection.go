// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package selectors

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/qdq/pkg/core/graph"
	"github.com/gomlx/qdq/pkg/support/xslices"
)

// Selection is the immutable record of a matched QDQ pattern, to be consumed by a fusion stage.
//
// It refers to nodes by their graph.NodeIndex: it doesn't own them, and it is only valid until the
// graph is changed. After any change to the graph it must be discarded, and the node matched again.
type Selection struct {
	target        graph.NodeIndex
	inputs        []Slot
	outputs       []graph.NodeIndex
	variadicInput bool
}

// Target returns the central node of the pattern.
func (s *Selection) Target() graph.NodeIndex {
	return s.target
}

// InputNodes returns the dequantize nodes, one per input position. Positions padded by the selector
// (e.g. the bias of a convolution) are Missing.
//
// The returned slice is a copy.
func (s *Selection) InputNodes() []Slot {
	return slices.Clone(s.inputs)
}

// OutputNodes returns the quantize nodes, one per output of the target. The returned slice is a copy.
func (s *Selection) OutputNodes() []graph.NodeIndex {
	return slices.Clone(s.outputs)
}

// VariadicInput returns whether all input nodes form one variadic group (e.g. the inputs of a Concat),
// as opposed to one fixed position per declared input.
func (s *Selection) VariadicInput() bool {
	return s.variadicInput
}

// NumInputDefs returns the number of logical inputs of the target: 1 for a variadic group, otherwise
// the number of input positions.
func (s *Selection) NumInputDefs() int {
	if s.variadicInput {
		return 1
	}
	return len(s.inputs)
}

// AllNodes returns the present input nodes, the target and the output nodes, in this order.
func (s *Selection) AllNodes() []graph.NodeIndex {
	nodes := make([]graph.NodeIndex, 0, len(s.inputs)+1+len(s.outputs))
	for _, slot := range s.inputs {
		if node, ok := slot.Node(); ok {
			nodes = append(nodes, node)
		}
	}
	nodes = append(nodes, s.target)
	return append(nodes, s.outputs...)
}

// Equal returns whether both selections describe the same match.
func (s *Selection) Equal(other *Selection) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.target == other.target && s.variadicInput == other.variadicInput &&
		slices.Equal(s.inputs, other.inputs) && slices.Equal(s.outputs, other.outputs)
}

// String implements fmt.Stringer.
func (s *Selection) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "Selection(target=#%d, inputs=[%s]", s.target,
		strings.Join(xslices.Map(s.inputs, Slot.String), ", "))
	if s.variadicInput {
		sb.WriteString(" (variadic)")
	}
	_, _ = fmt.Fprintf(&sb, ", outputs=[%s])", strings.Join(
		xslices.Map(s.outputs, func(n graph.NodeIndex) string { return fmt.Sprintf("#%d", n) }), ", "))
	return sb.String()
}

// selectionBuilder accumulates the nodes of a match, before the selector normalizes it.
type selectionBuilder struct {
	target        graph.NodeIndex
	inputs        []Slot
	outputs       []graph.NodeIndex
	variadicInput bool
}

func newSelectionBuilder(target graph.NodeIndex, dqNodes, qNodes []graph.NodeIndex) *selectionBuilder {
	b := &selectionBuilder{
		target:  target,
		inputs:  make([]Slot, 0, len(dqNodes)),
		outputs: slices.Clone(qNodes),
	}
	for _, dq := range dqNodes {
		if dq == graph.InvalidNode {
			b.inputs = append(b.inputs, Missing())
		} else {
			b.inputs = append(b.inputs, Present(dq))
		}
	}
	return b
}

// padInputs grows (never shrinks) the inputs to numInputs positions, with Missing slots.
func (b *selectionBuilder) padInputs(numInputs int) {
	for len(b.inputs) < numInputs {
		b.inputs = append(b.inputs, Missing())
	}
}

// build returns the final Selection. The builder must not be used afterward.
func (b *selectionBuilder) build() *Selection {
	return &Selection{
		target:        b.target,
		inputs:        b.inputs,
		outputs:       b.outputs,
		variadicInput: b.variadicInput,
	}
}
