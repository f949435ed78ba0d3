// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package selectors

import (
	"fmt"

	"github.com/gomlx/qdq/pkg/core/dtypes"
	"github.com/gomlx/qdq/pkg/core/graph"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// PanicOnContractViolation makes the selectors panic when the GraphView breaks its contract, e.g.: a
// boundary node returned by FindParentsByType without the input slot that holds its quantized source.
//
// It should be enabled during development and in tests. When disabled (the default), the violation
// is logged and the node is simply not matched.
//
// It must be set before matching starts. Tests that change it must not run in parallel (t.Parallel)
// with any test that matches nodes.
var PanicOnContractViolation = false

// contractViolation reports a GraphView contract violation. It always returns false, so it can be used
// as the result of a failing check.
func contractViolation(format string, args ...any) bool {
	if PanicOnContractViolation {
		panic(errors.Errorf("selectors: graph contract violation: "+format, args...))
	}
	klog.Warningf("selectors: graph contract violation, node not matched: %s", fmt.Sprintf(format, args...))
	return false
}

// isValidNode checks that node is a valid index in g, before it is handed back to the GraphView.
func isValidNode(g GraphView, node graph.NodeIndex, role string) bool {
	if node < 0 || int(node) >= g.NumNodes() {
		return contractViolation("%s node index %d out of range, graph has %d nodes", role, node, g.NumNodes())
	}
	return true
}

// dqSourceDType returns the element type of the quantized value a DequantizeLinear node reads: its first input.
func dqSourceDType(g GraphView, dq graph.NodeIndex) (dtypes.DType, bool) {
	if !isValidNode(g, dq, "dequantize boundary") {
		return dtypes.InvalidDType, false
	}
	defs := g.InputDefs(dq)
	if len(defs) == 0 || !defs[0].Exists {
		return dtypes.InvalidDType, contractViolation("dequantize node #%d has no quantized input", dq)
	}
	return defs[0].DType, true
}

// qOutputDType returns the element type of the quantized value a QuantizeLinear node writes: its first output.
func qOutputDType(g GraphView, q graph.NodeIndex) (dtypes.DType, bool) {
	if !isValidNode(g, q, "quantize boundary") {
		return dtypes.InvalidDType, false
	}
	defs := g.OutputDefs(q)
	if len(defs) == 0 || !defs[0].Exists {
		return dtypes.InvalidDType, contractViolation("quantize node #%d has no quantized output", q)
	}
	return defs[0].DType, true
}
