// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"strings"

	"github.com/gomlx/qdq/pkg/core/dtypes"
)

// NodeIndex identifies a node within a Graph. It is a non-owning handle.
type NodeIndex int

// InvalidNode is the NodeIndex used where there is no node.
const InvalidNode NodeIndex = -1

// ArgDef describes one input or output slot of a node.
//
// Exists is false for optional slots that were left empty. In that case DType is InvalidDType.
type ArgDef struct {
	Exists bool
	DType  dtypes.DType
}

// String implements fmt.Stringer.
func (a ArgDef) String() string {
	if !a.Exists {
		return "<absent>"
	}
	return a.DType.String()
}

// Node is an operation in the Graph.
type Node struct {
	graph  *Graph
	idx    NodeIndex
	name   string
	opType string

	// inputs and outputs slots: nil entries are absent optional slots.
	inputs, outputs []*value
}

// Index of the node in its Graph.
func (n *Node) Index() NodeIndex {
	return n.idx
}

// Name of the node, unique within its Graph.
func (n *Node) Name() string {
	return n.name
}

// OpType of the node, e.g.: "Conv", "DequantizeLinear".
func (n *Node) OpType() string {
	return n.opType
}

// Graph the node belongs to.
func (n *Node) Graph() *Graph {
	return n.graph
}

// InputNames returns the names of the values connected to the input slots, with "" for absent slots.
func (n *Node) InputNames() []string {
	return valueNames(n.inputs)
}

// OutputNames returns the names of the values connected to the output slots, with "" for absent slots.
func (n *Node) OutputNames() []string {
	return valueNames(n.outputs)
}

func valueNames(values []*value) []string {
	names := make([]string, len(values))
	for ii, v := range values {
		if v != nil {
			names[ii] = v.name
		}
	}
	return names
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	return fmt.Sprintf("#%d %s(%s): [%s] -> [%s]", n.idx, n.opType, n.name,
		strings.Join(n.InputNames(), ", "), strings.Join(n.OutputNames(), ", "))
}
