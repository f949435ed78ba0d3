// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package selectors_test

import (
	"fmt"
	"testing"

	"github.com/gomlx/qdq/pkg/core/dtypes"
	"github.com/gomlx/qdq/pkg/core/graph"
	. "github.com/gomlx/qdq/pkg/core/graph/graphtest"
	"github.com/gomlx/qdq/pkg/qdq/selectors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	selectors.PanicOnContractViolation = true
}

func TestCheckQDQNodes(t *testing.T) {
	g, conv := QDQPattern(t, "Conv", []Input{DQ(dtypes.Uint8), DQ(dtypes.Int8), Absent()}, []Output{Q(dtypes.Uint8)})
	dqNodes := g.FindParentsByType(conv, selectors.DequantizeOpType)
	qNodes := g.FindChildrenByType(conv, selectors.QuantizeOpType)
	require.Len(t, dqNodes, 2)
	require.Len(t, qNodes, 1)

	// The absent bias doesn't count as an input.
	assert.True(t, selectors.CheckQDQNodes(g, conv, dqNodes, qNodes, selectors.ActualInputCount))
	assert.True(t, selectors.CheckQDQNodes(g, conv, dqNodes, qNodes, 2))
	assert.False(t, selectors.CheckQDQNodes(g, conv, dqNodes, qNodes, 3))
	assert.False(t, selectors.CheckQDQNodes(g, conv, dqNodes[:1], qNodes, selectors.ActualInputCount))
	assert.False(t, selectors.CheckQDQNodes(g, conv, dqNodes, nil, selectors.ActualInputCount))

	// An input not fed by a dequantize node.
	g, add := QDQPattern(t, "Add", []Input{DQ(dtypes.Uint8), Float()}, []Output{Q(dtypes.Uint8)})
	assert.False(t, selectors.CheckQDQNodes(g, add,
		g.FindParentsByType(add, selectors.DequantizeOpType), g.FindChildrenByType(add, selectors.QuantizeOpType),
		selectors.ActualInputCount))

	// Producing a graph output disqualifies the node, even if counts match.
	g, conv = QDQPattern(t, "Conv", []Input{DQ(dtypes.Uint8), DQ(dtypes.Int8)}, []Output{Q(dtypes.Uint8)},
		WithTargetAsGraphOutput())
	assert.False(t, selectors.CheckQDQNodes(g, conv,
		g.FindParentsByType(conv, selectors.DequantizeOpType), g.FindChildrenByType(conv, selectors.QuantizeOpType),
		selectors.ActualInputCount))
}

// matchingPatterns has, for each selector, a pattern that matches -- unless the target is a graph output.
var matchingPatterns = []struct {
	selector selectors.Selector
	opType   string
	inputs   []Input
	outputs  []Output
}{
	{selectors.NewUnary(false), "Relu", []Input{DQ(dtypes.Uint8)}, []Output{Q(dtypes.Uint8)}},
	{selectors.NewUnary(true), "Relu", []Input{DQ(dtypes.Int8)}, []Output{Q(dtypes.Int8)}},
	{selectors.NewBinary(), "Add", []Input{DQ(dtypes.Uint8), DQ(dtypes.Uint8)}, []Output{Q(dtypes.Uint8)}},
	{selectors.NewVariadic(), "Concat", []Input{DQ(dtypes.Uint8), DQ(dtypes.Uint8), DQ(dtypes.Uint8)}, []Output{Q(dtypes.Uint8)}},
	{selectors.NewConv(), "Conv", []Input{DQ(dtypes.Uint8), DQ(dtypes.Int8)}, []Output{Q(dtypes.Uint8)}},
	{selectors.NewConv(), "Conv", []Input{DQ(dtypes.Uint8), DQ(dtypes.Int8), DQ(dtypes.Int32)}, []Output{Q(dtypes.Uint8)}},
	{selectors.NewMatMul(), "MatMul", []Input{DQ(dtypes.Uint8), DQ(dtypes.Int8)}, []Output{Q(dtypes.Uint8)}},
	{selectors.NewMatMul(), "MatMul", []Input{DQ(dtypes.Uint8), DQ(dtypes.Int8)}, []Output{FloatOutput()}},
}

func TestMatch_GraphOutputNeverMatches(t *testing.T) {
	for ii, p := range matchingPatterns {
		t.Run(fmt.Sprintf("%d-%s-%s", ii, p.selector, p.opType), func(t *testing.T) {
			g, target := QDQPattern(t, p.opType, p.inputs, p.outputs)
			_, ok := p.selector.Match(g, target)
			require.True(t, ok, "pattern should match when the target is not a graph output")

			g, target = QDQPattern(t, p.opType, p.inputs, p.outputs, WithTargetAsGraphOutput())
			require.True(t, g.ProducesGraphOutput(target))
			selection, ok := p.selector.Match(g, target)
			assert.False(t, ok)
			assert.Nil(t, selection)
		})
	}
}

func TestMatch_Idempotent(t *testing.T) {
	for ii, p := range matchingPatterns {
		g, target := QDQPattern(t, p.opType, p.inputs, p.outputs)
		first, ok := p.selector.Match(g, target)
		require.True(t, ok)
		second, ok := p.selector.Match(g, target)
		require.True(t, ok)
		require.NotSame(t, first, second, "pattern #%d: each match must produce a fresh record", ii)
		assert.True(t, first.Equal(second), "pattern #%d", ii)
		if diff := cmp.Diff(first.InputNodes(), second.InputNodes(), cmp.AllowUnexported(selectors.Slot{})); diff != "" {
			t.Errorf("pattern #%d: input nodes differ (-first +second):\n%s", ii, diff)
		}
		assert.Equal(t, first.OutputNodes(), second.OutputNodes())
	}
}

func TestUnary(t *testing.T) {
	for _, tc := range []struct {
		int8Allowed   bool
		input, output dtypes.DType
		wantMatch     bool
	}{
		{false, dtypes.Uint8, dtypes.Uint8, true},
		{false, dtypes.Int8, dtypes.Uint8, false},
		{false, dtypes.Uint8, dtypes.Int8, false},
		{false, dtypes.Int8, dtypes.Int8, false},
		{true, dtypes.Uint8, dtypes.Uint8, true},
		{true, dtypes.Int8, dtypes.Uint8, true},
		{true, dtypes.Uint8, dtypes.Int8, true},
		{true, dtypes.Int8, dtypes.Int8, true},
		{true, dtypes.Int32, dtypes.Uint8, false},
		{true, dtypes.Uint8, dtypes.Uint16, false},
	} {
		name := fmt.Sprintf("int8=%v/%s->%s", tc.int8Allowed, tc.input, tc.output)
		t.Run(name, func(t *testing.T) {
			g, target := QDQPattern(t, "Relu", []Input{DQ(tc.input)}, []Output{Q(tc.output)})
			selection, ok := selectors.NewUnary(tc.int8Allowed).Match(g, target)
			require.Equal(t, tc.wantMatch, ok)
			if !ok {
				return
			}
			assert.Equal(t, target, selection.Target())
			assert.Equal(t, []selectors.Slot{selectors.Present(MustNode(t, g, "dq0"))}, selection.InputNodes())
			assert.Equal(t, []graph.NodeIndex{MustNode(t, g, "q0")}, selection.OutputNodes())
			assert.False(t, selection.VariadicInput())
			assert.Equal(t, 1, selection.NumInputDefs())
			assert.Equal(t, "Selection(target=#1, inputs=[#0], outputs=[#2])", selection.String())
		})
	}
}

func TestUnary_Counts(t *testing.T) {
	unary := selectors.NewUnary(true)
	for _, tc := range []struct {
		name    string
		inputs  []Input
		outputs []Output
	}{
		{"no dequantize", []Input{Float()}, []Output{Q(dtypes.Uint8)}},
		{"two dequantize", []Input{DQ(dtypes.Uint8), DQ(dtypes.Uint8)}, []Output{Q(dtypes.Uint8)}},
		{"no quantize", []Input{DQ(dtypes.Uint8)}, []Output{FloatOutput()}},
		{"two quantize", []Input{DQ(dtypes.Uint8)}, []Output{Q(dtypes.Uint8), Q(dtypes.Uint8)}},
		{"no outputs", []Input{DQ(dtypes.Uint8)}, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g, target := QDQPattern(t, "Relu", tc.inputs, tc.outputs)
			_, ok := unary.Match(g, target)
			assert.False(t, ok)
		})
	}
}

func TestBinary(t *testing.T) {
	for _, tc := range []struct {
		input0, input1, output dtypes.DType
		wantMatch              bool
	}{
		{dtypes.Uint8, dtypes.Uint8, dtypes.Uint8, true},
		{dtypes.Int8, dtypes.Int8, dtypes.Int8, true},
		{dtypes.Uint8, dtypes.Int8, dtypes.Uint8, false},
		{dtypes.Uint8, dtypes.Int8, dtypes.Int8, false},
		{dtypes.Int8, dtypes.Int8, dtypes.Uint8, false},
	} {
		name := fmt.Sprintf("%s,%s->%s", tc.input0, tc.input1, tc.output)
		t.Run(name, func(t *testing.T) {
			g, target := QDQPattern(t, "Add", []Input{DQ(tc.input0), DQ(tc.input1)}, []Output{Q(tc.output)})
			selection, ok := selectors.NewBinary().Match(g, target)
			require.Equal(t, tc.wantMatch, ok)
			if ok {
				assert.Equal(t, []selectors.Slot{
					selectors.Present(MustNode(t, g, "dq0")),
					selectors.Present(MustNode(t, g, "dq1")),
				}, selection.InputNodes())
				assert.Equal(t, 2, selection.NumInputDefs())
				assert.False(t, selection.VariadicInput())
			}
		})
	}

	// One of the inputs is not quantized.
	g, target := QDQPattern(t, "Add", []Input{DQ(dtypes.Uint8), Float()}, []Output{Q(dtypes.Uint8)})
	_, ok := selectors.NewBinary().Match(g, target)
	assert.False(t, ok)
}

func TestVariadic(t *testing.T) {
	variadic := selectors.NewVariadic()
	g, target := QDQPattern(t, "Concat",
		[]Input{DQ(dtypes.Uint8), DQ(dtypes.Uint8), DQ(dtypes.Uint8)}, []Output{Q(dtypes.Uint8)})
	selection, ok := variadic.Match(g, target)
	require.True(t, ok)
	assert.True(t, selection.VariadicInput())
	assert.Equal(t, 1, selection.NumInputDefs())
	assert.Len(t, selection.InputNodes(), 3)
	assert.Equal(t, "Selection(target=#3, inputs=[#0, #1, #2] (variadic), outputs=[#4])", selection.String())

	// A single input is a valid group.
	g, target = QDQPattern(t, "Concat", []Input{DQ(dtypes.Int8)}, []Output{Q(dtypes.Int8)})
	selection, ok = variadic.Match(g, target)
	require.True(t, ok)
	assert.Equal(t, 1, selection.NumInputDefs())

	for _, tc := range []struct {
		name    string
		inputs  []Input
		outputs []Output
	}{
		{"int8 among uint8", []Input{DQ(dtypes.Uint8), DQ(dtypes.Int8), DQ(dtypes.Uint8)}, []Output{Q(dtypes.Uint8)}},
		{"output type differs", []Input{DQ(dtypes.Uint8), DQ(dtypes.Uint8), DQ(dtypes.Uint8)}, []Output{Q(dtypes.Int8)}},
		{"float input", []Input{DQ(dtypes.Uint8), Float(), DQ(dtypes.Uint8)}, []Output{Q(dtypes.Uint8)}},
		{"no quantize", []Input{DQ(dtypes.Uint8), DQ(dtypes.Uint8)}, []Output{FloatOutput()}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g, target := QDQPattern(t, "Concat", tc.inputs, tc.outputs)
			_, ok := variadic.Match(g, target)
			assert.False(t, ok)
		})
	}
}

func TestConv(t *testing.T) {
	conv := selectors.NewConv()

	for _, inputs := range [][]Input{
		{DQ(dtypes.Uint8), DQ(dtypes.Int8)},
		{DQ(dtypes.Uint8), DQ(dtypes.Int8), Absent()},
	} {
		g, target := QDQPattern(t, "Conv", inputs, []Output{Q(dtypes.Uint8)})
		selection, ok := conv.Match(g, target)
		require.True(t, ok)
		assert.Equal(t, []selectors.Slot{
			selectors.Present(MustNode(t, g, "dq0")),
			selectors.Present(MustNode(t, g, "dq1")),
			selectors.Missing(),
		}, selection.InputNodes())
		assert.Equal(t, 3, selection.NumInputDefs())
		assert.False(t, selection.VariadicInput())
		assert.Equal(t, "Selection(target=#2, inputs=[#0, #1, <missing>], outputs=[#3])", selection.String())
		assert.Equal(t, []graph.NodeIndex{0, 1, 2, 3}, selection.AllNodes())
	}

	// With an Int32 bias.
	g, target := QDQPattern(t, "Conv", []Input{DQ(dtypes.Uint8), DQ(dtypes.Int8), DQ(dtypes.Int32)},
		[]Output{Q(dtypes.Uint8)})
	selection, ok := conv.Match(g, target)
	require.True(t, ok)
	inputs := selection.InputNodes()
	require.Len(t, inputs, 3)
	bias, present := inputs[2].Node()
	require.True(t, present)
	assert.Equal(t, MustNode(t, g, "dq2"), bias)

	for _, tc := range []struct {
		name    string
		inputs  []Input
		outputs []Output
	}{
		{"uint8 bias", []Input{DQ(dtypes.Uint8), DQ(dtypes.Int8), DQ(dtypes.Uint8)}, []Output{Q(dtypes.Uint8)}},
		{"int8 data", []Input{DQ(dtypes.Int8), DQ(dtypes.Int8)}, []Output{Q(dtypes.Uint8)}},
		{"int8 output", []Input{DQ(dtypes.Uint8), DQ(dtypes.Int8)}, []Output{Q(dtypes.Int8)}},
		{"float bias", []Input{DQ(dtypes.Uint8), DQ(dtypes.Int8), Float()}, []Output{Q(dtypes.Uint8)}},
		{"no quantize", []Input{DQ(dtypes.Uint8), DQ(dtypes.Int8)}, []Output{FloatOutput()}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g, target := QDQPattern(t, "Conv", tc.inputs, tc.outputs)
			_, ok := conv.Match(g, target)
			assert.False(t, ok)
		})
	}
}

func TestMatMul(t *testing.T) {
	matMul := selectors.NewMatMul()

	// Float output shape: no quantize nodes.
	g, target := QDQPattern(t, "MatMul", []Input{DQ(dtypes.Uint8), DQ(dtypes.Int8)}, []Output{FloatOutput()})
	selection, ok := matMul.Match(g, target)
	require.True(t, ok)
	assert.Len(t, selection.InputNodes(), 2)
	assert.Empty(t, selection.OutputNodes())
	assert.Equal(t, 2, selection.NumInputDefs())

	// Quantized output shape.
	g, target = QDQPattern(t, "MatMul", []Input{DQ(dtypes.Uint8), DQ(dtypes.Uint8)}, []Output{Q(dtypes.Uint8)})
	selection, ok = matMul.Match(g, target)
	require.True(t, ok)
	assert.Equal(t, []graph.NodeIndex{MustNode(t, g, "q0")}, selection.OutputNodes())

	for _, tc := range []struct {
		name    string
		inputs  []Input
		outputs []Output
	}{
		{"int8 output", []Input{DQ(dtypes.Uint8), DQ(dtypes.Int8)}, []Output{Q(dtypes.Int8)}},
		{"int8 first input, quantized", []Input{DQ(dtypes.Int8), DQ(dtypes.Int8)}, []Output{Q(dtypes.Uint8)}},
		{"int8 first input, float", []Input{DQ(dtypes.Int8), DQ(dtypes.Uint8)}, []Output{FloatOutput()}},
		{"one dequantize, quantized", []Input{DQ(dtypes.Uint8), Float()}, []Output{Q(dtypes.Uint8)}},
		{"one dequantize, float", []Input{DQ(dtypes.Uint8), Float()}, []Output{FloatOutput()}},
		{"three dequantize, quantized", []Input{DQ(dtypes.Uint8), DQ(dtypes.Uint8), DQ(dtypes.Uint8)}, []Output{Q(dtypes.Uint8)}},
		{"three dequantize, float", []Input{DQ(dtypes.Uint8), DQ(dtypes.Uint8), DQ(dtypes.Uint8)}, []Output{FloatOutput()}},
		{"one of two outputs quantized", []Input{DQ(dtypes.Uint8), DQ(dtypes.Uint8)}, []Output{Q(dtypes.Uint8), FloatOutput()}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g, target := QDQPattern(t, "MatMul", tc.inputs, tc.outputs)
			_, ok := matMul.Match(g, target)
			assert.False(t, ok)
		})
	}
}

func TestSelection_Immutable(t *testing.T) {
	g, target := QDQPattern(t, "Conv", []Input{DQ(dtypes.Uint8), DQ(dtypes.Int8)}, []Output{Q(dtypes.Uint8)})
	selection, ok := selectors.NewConv().Match(g, target)
	require.True(t, ok)

	inputs := selection.InputNodes()
	inputs[2] = selectors.Present(target)
	outputs := selection.OutputNodes()
	outputs[0] = graph.InvalidNode
	assert.True(t, selection.InputNodes()[2].IsMissing())
	assert.Equal(t, MustNode(t, g, "q0"), selection.OutputNodes()[0])

	var nilSelection *selectors.Selection
	assert.True(t, nilSelection.Equal(nil))
	assert.False(t, selection.Equal(nil))
}

func TestSlot(t *testing.T) {
	var zero selectors.Slot
	assert.True(t, zero.IsMissing())
	assert.Equal(t, selectors.Missing(), zero)
	node, ok := zero.Node()
	assert.False(t, ok)
	assert.Equal(t, graph.InvalidNode, node)

	present := selectors.Present(0)
	assert.False(t, present.IsMissing())
	node, ok = present.Node()
	assert.True(t, ok)
	assert.Equal(t, graph.NodeIndex(0), node)
	assert.Equal(t, "#0", present.String())
	assert.Equal(t, "<missing>", zero.String())
}

// brokenGraph hides the input slots of one node, breaking the contract of the dequantize boundary.
type brokenGraph struct {
	*graph.Graph
	broken graph.NodeIndex
}

func (b brokenGraph) InputDefs(node graph.NodeIndex) []graph.ArgDef {
	if node == b.broken {
		return nil
	}
	return b.Graph.InputDefs(node)
}

func TestContractViolation(t *testing.T) {
	g, target := QDQPattern(t, "Relu", []Input{DQ(dtypes.Uint8)}, []Output{Q(dtypes.Uint8)})
	view := brokenGraph{Graph: g, broken: MustNode(t, g, "dq0")}
	unary := selectors.NewUnary(false)

	require.Panics(t, func() { unary.Match(view, target) })

	selectors.PanicOnContractViolation = false
	defer func() { selectors.PanicOnContractViolation = true }()
	selection, ok := unary.Match(view, target)
	assert.False(t, ok)
	assert.Nil(t, selection)
}

// danglingParentGraph reports a dequantize parent past the end of the graph.
type danglingParentGraph struct {
	*graph.Graph
}

func (d danglingParentGraph) FindParentsByType(node graph.NodeIndex, opType string) []graph.NodeIndex {
	return []graph.NodeIndex{graph.NodeIndex(d.NumNodes())}
}

func TestContractViolation_OutOfRange(t *testing.T) {
	g, target := QDQPattern(t, "Relu", []Input{DQ(dtypes.Uint8)}, []Output{Q(dtypes.Uint8)})
	view := danglingParentGraph{Graph: g}
	unary := selectors.NewUnary(false)

	require.PanicsWithError(t,
		fmt.Sprintf("selectors: graph contract violation: dequantize boundary node index %d out of range, graph has %d nodes",
			g.NumNodes(), g.NumNodes()),
		func() { unary.Match(view, target) })

	selectors.PanicOnContractViolation = false
	defer func() { selectors.PanicOnContractViolation = true }()
	for _, node := range []graph.NodeIndex{target, graph.NodeIndex(g.NumNodes()), -1} {
		selection, ok := unary.Match(view, node)
		assert.False(t, ok, "node #%d", node)
		assert.Nil(t, selection)
	}
	_, ok := unary.Match(g, graph.NodeIndex(g.NumNodes()))
	assert.False(t, ok)
}
