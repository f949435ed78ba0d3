// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package selectors

import "github.com/gomlx/qdq/pkg/core/graph"

const (
	// DequantizeOpType is the op type of the dequantize boundary nodes, expected before each input of a target.
	DequantizeOpType = "DequantizeLinear"

	// QuantizeOpType is the op type of the quantize boundary nodes, expected after each output of a target.
	QuantizeOpType = "QuantizeLinear"
)

// GraphView is the read-only view of the graph the selectors need.
//
// The graph must not be changed while selectors are matching on it. *graph.Graph implements it.
type GraphView interface {
	// NumNodes returns the number of nodes in the graph. Valid node indices are 0 to NumNodes()-1.
	NumNodes() int

	// InputDefs returns the descriptors of the node's input slots, in order, including absent optional slots.
	InputDefs(node graph.NodeIndex) []graph.ArgDef

	// OutputDefs returns the descriptors of the node's output slots, in order, including absent optional slots.
	OutputDefs(node graph.NodeIndex) []graph.ArgDef

	// ProducesGraphOutput returns whether any output of the node is consumed outside the graph.
	ProducesGraphOutput(node graph.NodeIndex) bool

	// FindParentsByType returns the immediate predecessors of the node with the given op type,
	// ordered by the input slot they feed.
	FindParentsByType(node graph.NodeIndex, opType string) []graph.NodeIndex

	// FindChildrenByType returns the immediate successors of the node with the given op type,
	// ordered by the output slot they consume.
	FindChildrenByType(node graph.NodeIndex, opType string) []graph.NodeIndex
}

var _ GraphView = (*graph.Graph)(nil)
