// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package selectors finds quantized operator patterns ("QDQ" patterns) in a graph: a target node
// whose inputs are all produced by DequantizeLinear nodes and whose outputs are all consumed by
// QuantizeLinear nodes.
//
// Each Selector handles one operator Family, with its own structural and element type rules.
// Selector.Match checks a candidate node and, if it matches, returns an immutable Selection with the
// boundary nodes, normalized for the fusion stage that will rewrite the graph.
//
// Matching only reads the graph, and different nodes can be matched concurrently, as long as the
// graph is not changed meanwhile.
//
// Example:
//
//	registry := selectors.DefaultRegistry(selectors.Config{})
//	if selector, found := registry.Lookup(g.OpType(node)); found {
//		if selection, ok := selector.Match(g, node); ok {
//			fuse(selection)
//		}
//	}
package selectors

import (
	"strings"

	"github.com/gomlx/qdq/pkg/core/dtypes"
	"github.com/gomlx/qdq/pkg/core/graph"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Family of operators sharing the same QDQ matching rules.
type Family int

const (
	// FamilyUnary is for single input/output operators, e.g.: Relu, AveragePool, Reshape.
	FamilyUnary Family = iota

	// FamilyBinary is for elementwise operators with two inputs, e.g.: Add, Mul.
	FamilyBinary

	// FamilyVariadic is for operators with any number of inputs, e.g.: Concat.
	FamilyVariadic

	// FamilyConv is for convolutions, with data, weights and an optional bias.
	FamilyConv

	// FamilyMatMul is for matrix multiplications, with or without a quantized output.
	FamilyMatMul
)

// Families lists all the operator families.
var Families = []Family{FamilyUnary, FamilyBinary, FamilyVariadic, FamilyConv, FamilyMatMul}

// String implements fmt.Stringer.
func (f Family) String() string {
	switch f {
	case FamilyUnary:
		return "Unary"
	case FamilyBinary:
		return "Binary"
	case FamilyVariadic:
		return "Variadic"
	case FamilyConv:
		return "Conv"
	case FamilyMatMul:
		return "MatMul"
	default:
		return "unknown"
	}
}

// ParseFamily returns the Family with the given name, case-insensitive.
func ParseFamily(name string) (Family, error) {
	for _, f := range Families {
		if strings.EqualFold(f.String(), name) {
			return f, nil
		}
	}
	return 0, errors.Errorf("unknown selector family %q, valid values are %v", name, Families)
}

// convNumInputs is the number of input positions of a convolution: data, weights and bias.
const convNumInputs = 3

// Selector matches the QDQ pattern of one operator Family.
//
// It is a small value type, safe for concurrent use.
type Selector struct {
	family      Family
	int8Allowed bool
}

// NewUnary creates a selector for the unary family. Boundaries must be Uint8, or also Int8 if int8Allowed.
func NewUnary(int8Allowed bool) Selector {
	return Selector{family: FamilyUnary, int8Allowed: int8Allowed}
}

// NewBinary creates a selector for the binary family.
func NewBinary() Selector {
	return Selector{family: FamilyBinary}
}

// NewVariadic creates a selector for the variadic family.
func NewVariadic() Selector {
	return Selector{family: FamilyVariadic}
}

// NewConv creates a selector for the convolution family.
func NewConv() Selector {
	return Selector{family: FamilyConv}
}

// NewMatMul creates a selector for the matrix multiplication family.
func NewMatMul() Selector {
	return Selector{family: FamilyMatMul}
}

// Family returns the operator family handled by the selector.
func (s Selector) Family() Family {
	return s.family
}

// Int8Allowed returns whether the selector also accepts Int8 boundaries. Only used by FamilyUnary.
func (s Selector) Int8Allowed() bool {
	return s.int8Allowed
}

// String implements fmt.Stringer.
func (s Selector) String() string {
	if s.int8Allowed {
		return s.family.String() + "(int8)"
	}
	return s.family.String()
}

// Match checks whether node is the target of a QDQ pattern of the selector's family.
// It returns the Selection and true if it matches, or nil and false otherwise.
//
// The Selection is only valid until the graph is changed.
func (s Selector) Match(g GraphView, node graph.NodeIndex) (*Selection, bool) {
	if !isValidNode(g, node, "target") {
		return nil, false
	}
	dqNodes := g.FindParentsByType(node, DequantizeOpType)
	qNodes := g.FindChildrenByType(node, QuantizeOpType)
	if !s.Check(g, node, dqNodes, qNodes) {
		if klog.V(2).Enabled() {
			klog.Infof("%s selector: node #%d not matched (dequantize nodes=%v, quantize nodes=%v)",
				s, node, dqNodes, qNodes)
		}
		return nil, false
	}
	b := newSelectionBuilder(node, dqNodes, qNodes)
	s.normalize(b)
	return b.build(), true
}

// Check returns whether the boundary nodes found around node form a valid pattern for the selector's family.
//
// dqNodes are the DequantizeLinear parents of node, ordered by input slot, and qNodes the QuantizeLinear
// children, ordered by output slot.
func (s Selector) Check(g GraphView, node graph.NodeIndex, dqNodes, qNodes []graph.NodeIndex) bool {
	switch s.family {
	case FamilyUnary:
		return s.checkUnary(g, node, dqNodes, qNodes)
	case FamilyBinary:
		return checkBinary(g, node, dqNodes, qNodes)
	case FamilyVariadic:
		return checkVariadic(g, node, dqNodes, qNodes)
	case FamilyConv:
		return checkConv(g, node, dqNodes, qNodes)
	case FamilyMatMul:
		return checkMatMul(g, node, dqNodes, qNodes)
	default:
		panic(errors.Errorf("selectors: invalid selector family %d", s.family))
	}
}

// normalize adjusts the inputs of the Selection for the fusion stage.
func (s Selector) normalize(b *selectionBuilder) {
	switch s.family {
	case FamilyVariadic:
		// All inputs form a single repeatable operand.
		b.variadicInput = true
	case FamilyConv:
		// Bias is optional.
		b.padInputs(convNumInputs)
	case FamilyUnary, FamilyBinary, FamilyMatMul:
		// Nothing to adjust.
	default:
		panic(errors.Errorf("selectors: invalid selector family %d", s.family))
	}
}

// isUnaryDType checks the type of each side of a unary pattern independently.
func (s Selector) isUnaryDType(dtype dtypes.DType) bool {
	return dtype == dtypes.Uint8 || (s.int8Allowed && dtype == dtypes.Int8)
}

func (s Selector) checkUnary(g GraphView, node graph.NodeIndex, dqNodes, qNodes []graph.NodeIndex) bool {
	if !CheckQDQNodes(g, node, dqNodes, qNodes, 1) || len(qNodes) != 1 {
		return false
	}
	dtInput, ok := dqSourceDType(g, dqNodes[0])
	if !ok {
		return false
	}
	dtOutput, ok := qOutputDType(g, qNodes[0])
	if !ok {
		return false
	}
	return s.isUnaryDType(dtInput) && s.isUnaryDType(dtOutput)
}

func checkBinary(g GraphView, node graph.NodeIndex, dqNodes, qNodes []graph.NodeIndex) bool {
	if !CheckQDQNodes(g, node, dqNodes, qNodes, ActualInputCount) || len(dqNodes) != 2 || len(qNodes) == 0 {
		return false
	}
	dtInput0, ok := dqSourceDType(g, dqNodes[0])
	if !ok {
		return false
	}
	dtInput1, ok := dqSourceDType(g, dqNodes[1])
	if !ok {
		return false
	}
	dtOutput, ok := qOutputDType(g, qNodes[0])
	if !ok {
		return false
	}
	return dtInput0 == dtInput1 && dtInput0 == dtOutput
}

func checkVariadic(g GraphView, node graph.NodeIndex, dqNodes, qNodes []graph.NodeIndex) bool {
	if !CheckQDQNodes(g, node, dqNodes, qNodes, ActualInputCount) || len(dqNodes) == 0 || len(qNodes) == 0 {
		return false
	}
	dtInput, ok := dqSourceDType(g, dqNodes[0])
	if !ok {
		return false
	}
	for _, dq := range dqNodes[1:] {
		dt, ok := dqSourceDType(g, dq)
		if !ok || dt != dtInput {
			return false
		}
	}
	dtOutput, ok := qOutputDType(g, qNodes[0])
	return ok && dtInput == dtOutput
}

func checkConv(g GraphView, node graph.NodeIndex, dqNodes, qNodes []graph.NodeIndex) bool {
	if !CheckQDQNodes(g, node, dqNodes, qNodes, ActualInputCount) || len(dqNodes) == 0 || len(qNodes) == 0 {
		return false
	}
	dtInput, ok := dqSourceDType(g, dqNodes[0])
	if !ok {
		return false
	}
	dtOutput, ok := qOutputDType(g, qNodes[0])
	if !ok {
		return false
	}
	if dtInput != dtypes.Uint8 || dtOutput != dtypes.Uint8 {
		return false
	}
	if len(dqNodes) < convNumInputs {
		// No bias.
		return true
	}
	dtBias, ok := dqSourceDType(g, dqNodes[2])
	return ok && dtBias == dtypes.Int32
}

// checkMatMul accepts two shapes: with quantized outputs (fusable into a quantized matmul), or with no
// quantize node at all, when the matmul output stays in float (fusable into an integer matmul to float).
func checkMatMul(g GraphView, node graph.NodeIndex, dqNodes, qNodes []graph.NodeIndex) bool {
	if len(dqNodes) != 2 {
		return false
	}
	if len(qNodes) > 0 {
		if !CheckQDQNodes(g, node, dqNodes, qNodes, ActualInputCount) {
			return false
		}
		dtOutput, ok := qOutputDType(g, qNodes[0])
		if !ok || dtOutput != dtypes.Uint8 {
			return false
		}
	} else if g.ProducesGraphOutput(node) {
		// There are no quantize nodes to count, but nodes producing graph outputs are never matched.
		return false
	}
	dtInput, ok := dqSourceDType(g, dqNodes[0])
	return ok && dtInput == dtypes.Uint8
}
