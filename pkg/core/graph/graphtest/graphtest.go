// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graphtest holds test utilities for packages that depend on the graph package.
package graphtest

import (
	"fmt"
	"testing"

	"github.com/gomlx/qdq/pkg/core/dtypes"
	"github.com/gomlx/qdq/pkg/core/graph"
	"github.com/stretchr/testify/require"
)

// Builder wraps a graph.Graph under construction and fails the test on any building error.
type Builder struct {
	t testing.TB
	G *graph.Graph
}

// NewBuilder creates a Builder for a new graph with the given name.
func NewBuilder(t testing.TB, name string) *Builder {
	return &Builder{t: t, G: graph.New(name)}
}

// Value declares a value and returns its name.
func (b *Builder) Value(name string, dtype dtypes.DType) string {
	b.t.Helper()
	require.NoError(b.t, b.G.AddValue(name, dtype))
	return name
}

// Node adds a node and returns its index.
func (b *Builder) Node(name, opType string, inputs, outputs []string) graph.NodeIndex {
	b.t.Helper()
	n, err := b.G.AddNode(name, opType, inputs, outputs)
	require.NoError(b.t, err)
	return n.Index()
}

// Dequantize adds a DequantizeLinear node named name, whose quantized source has the given dtype.
// It returns the name of its float output value.
func (b *Builder) Dequantize(name string, dtype dtypes.DType) string {
	b.t.Helper()
	source := b.Value(name+"_src", dtype)
	scale := b.Value(name+"_scale", dtypes.Float32)
	zeroPoint := b.Value(name+"_zp", dtype)
	output := b.Value(name+"_out", dtypes.Float32)
	b.Node(name, "DequantizeLinear", []string{source, scale, zeroPoint}, []string{output})
	return output
}

// Quantize adds a QuantizeLinear node named name, consuming the float value input and producing a
// quantized value of the given dtype. It returns the name of the quantized output value.
func (b *Builder) Quantize(name, input string, dtype dtypes.DType) string {
	b.t.Helper()
	scale := b.Value(name+"_scale", dtypes.Float32)
	zeroPoint := b.Value(name+"_zp", dtype)
	output := b.Value(name+"_out", dtype)
	b.Node(name, "QuantizeLinear", []string{input, scale, zeroPoint}, []string{output})
	return output
}

// Outputs sets the graph outputs.
func (b *Builder) Outputs(names ...string) {
	b.t.Helper()
	require.NoError(b.t, b.G.SetOutputs(names...))
}

// Done finalizes and returns the graph.
func (b *Builder) Done() *graph.Graph {
	b.G.Finalize()
	return b.G
}

// InputKind enumerates how an input slot of the target of a QDQ pattern is fed.
type InputKind int

const (
	// InputDQ is fed by a DequantizeLinear node.
	InputDQ InputKind = iota

	// InputFloat is fed directly by a float graph input, with no dequantize node.
	InputFloat

	// InputAbsent is an optional input slot left empty.
	InputAbsent
)

// Input describes one input slot of the target of a QDQ pattern.
type Input struct {
	Kind  InputKind
	DType dtypes.DType
}

// DQ returns an Input fed by a DequantizeLinear with a quantized source of the given dtype.
func DQ(dtype dtypes.DType) Input { return Input{Kind: InputDQ, DType: dtype} }

// Float returns an Input fed by a float graph input.
func Float() Input { return Input{Kind: InputFloat, DType: dtypes.Float32} }

// Absent returns an empty optional Input.
func Absent() Input { return Input{Kind: InputAbsent} }

// Output describes one output slot of the target of a QDQ pattern.
type Output struct {
	// Quantized outputs are consumed by a QuantizeLinear of DType.
	Quantized bool
	DType     dtypes.DType
}

// Q returns an Output consumed by a QuantizeLinear producing the given dtype.
func Q(dtype dtypes.DType) Output { return Output{Quantized: true, DType: dtype} }

// FloatOutput returns an Output that is not quantized: it is left unconsumed, and it is not a graph output.
func FloatOutput() Output { return Output{DType: dtypes.Float32} }

// PatternOption configures QDQPattern.
type PatternOption func(p *patternConfig)

type patternConfig struct {
	targetIsGraphOutput bool
}

// WithTargetAsGraphOutput makes the first output of the target node also a graph output.
func WithTargetAsGraphOutput() PatternOption {
	return func(p *patternConfig) { p.targetIsGraphOutput = true }
}

// QDQPattern builds a finalized graph with a single node named "target" of the given op type,
// with its inputs and outputs fed/consumed as described.
//
// DequantizeLinear nodes are named "dq0", "dq1", ... following the input slot index, and
// QuantizeLinear nodes "q0", "q1", ... following the output slot index. Quantized outputs
// are the graph outputs, and so is the first target output with WithTargetAsGraphOutput.
func QDQPattern(t testing.TB, opType string, inputs []Input, outputs []Output, options ...PatternOption) (
	*graph.Graph, graph.NodeIndex) {
	t.Helper()
	var cfg patternConfig
	for _, option := range options {
		option(&cfg)
	}

	b := NewBuilder(t, opType+"_pattern")
	inputNames := make([]string, len(inputs))
	for ii, input := range inputs {
		switch input.Kind {
		case InputDQ:
			inputNames[ii] = b.Dequantize(fmt.Sprintf("dq%d", ii), input.DType)
		case InputFloat:
			inputNames[ii] = b.Value(fmt.Sprintf("input%d", ii), input.DType)
		case InputAbsent:
			inputNames[ii] = ""
		}
	}

	outputNames := make([]string, len(outputs))
	for ii := range outputs {
		outputNames[ii] = b.Value(fmt.Sprintf("target_out%d", ii), dtypes.Float32)
	}
	target := b.Node("target", opType, inputNames, outputNames)

	var graphOutputs []string
	if cfg.targetIsGraphOutput && len(outputNames) > 0 {
		graphOutputs = append(graphOutputs, outputNames[0])
	}
	for ii, output := range outputs {
		if output.Quantized {
			graphOutputs = append(graphOutputs, b.Quantize(fmt.Sprintf("q%d", ii), outputNames[ii], output.DType))
		}
	}
	b.Outputs(graphOutputs...)
	return b.Done(), target
}

// MustNode returns the index of the node with the given name, failing the test if it doesn't exist.
func MustNode(t testing.TB, g *graph.Graph, name string) graph.NodeIndex {
	t.Helper()
	n, found := g.NodeByName(name)
	require.Truef(t, found, "node %q not found in graph %q", name, g.Name())
	return n.Index()
}

// SampleModel builds a finalized graph with a few independent QDQ patterns, some of them matchable:
//
//   - "conv": Conv(DQ(uint8), DQ(int8)) -> Q(uint8), matchable.
//   - "relu": Relu(DQ(uint8)) -> Q(uint8), matchable.
//   - "add": Add(DQ(uint8), float input) -> Q(uint8), not matchable.
//   - "matmul": MatMul(DQ(uint8), DQ(uint8)) with a float output consumed by "softmax", matchable.
//   - "softmax": Softmax with no quantization around, producing a graph output, not matchable.
//
// Nodes are created in the order: dq_x, dq_w, conv, q_conv, dq_r, relu, q_relu, dq_a, add, q_add,
// dq_m0, dq_m1, matmul, softmax.
func SampleModel(t testing.TB) *graph.Graph {
	t.Helper()
	b := NewBuilder(t, "sample")
	x := b.Dequantize("dq_x", dtypes.Uint8)
	w := b.Dequantize("dq_w", dtypes.Int8)
	convOut := b.Value("conv_out", dtypes.Float32)
	b.Node("conv", "Conv", []string{x, w}, []string{convOut})
	convQ := b.Quantize("q_conv", convOut, dtypes.Uint8)

	r := b.Dequantize("dq_r", dtypes.Uint8)
	reluOut := b.Value("relu_out", dtypes.Float32)
	b.Node("relu", "Relu", []string{r}, []string{reluOut})
	reluQ := b.Quantize("q_relu", reluOut, dtypes.Uint8)

	a := b.Dequantize("dq_a", dtypes.Uint8)
	f := b.Value("float_in", dtypes.Float32)
	addOut := b.Value("add_out", dtypes.Float32)
	b.Node("add", "Add", []string{a, f}, []string{addOut})
	addQ := b.Quantize("q_add", addOut, dtypes.Uint8)

	m0 := b.Dequantize("dq_m0", dtypes.Uint8)
	m1 := b.Dequantize("dq_m1", dtypes.Uint8)
	mmOut := b.Value("matmul_out", dtypes.Float32)
	b.Node("matmul", "MatMul", []string{m0, m1}, []string{mmOut})
	probs := b.Value("probs", dtypes.Float32)
	b.Node("softmax", "Softmax", []string{mmOut}, []string{probs})

	b.Outputs(convQ, reluQ, addQ, probs)
	return b.Done()
}
