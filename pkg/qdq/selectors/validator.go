// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package selectors

import "github.com/gomlx/qdq/pkg/core/graph"

// ActualInputCount can be given to CheckQDQNodes as numDQInputs, to expect one dequantize node per existing
// input slot of the node.
const ActualInputCount = -1

// numActualValues counts the slots that exist, skipping absent optional ones.
func numActualValues(defs []graph.ArgDef) int {
	var count int
	for _, def := range defs {
		if def.Exists {
			count++
		}
	}
	return count
}

// CheckQDQNodes is the structural check shared by all selectors. It returns true iff:
//
//  1. the number of dequantize nodes is numDQInputs, or the number of existing input slots of the
//     node if numDQInputs is ActualInputCount;
//  2. the number of quantize nodes is the number of existing output slots of the node;
//  3. the node doesn't produce a graph output: replacing it would break the consumers outside the graph.
//
// Conditions are checked in order, and the first failing one stops the evaluation.
func CheckQDQNodes(g GraphView, node graph.NodeIndex, dqNodes, qNodes []graph.NodeIndex, numDQInputs int) bool {
	if numDQInputs == ActualInputCount {
		numDQInputs = numActualValues(g.InputDefs(node))
	}
	if numDQInputs != len(dqNodes) {
		return false
	}
	if numActualValues(g.OutputDefs(node)) != len(qNodes) {
		return false
	}
	return !g.ProducesGraphOutput(node)
}
