// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graph implements a small in-memory computation graph, in the style of an ONNX model:
// nodes have an op type and ordered input and output slots, and slots are connected through named
// values, each with an element type.
//
// It is the read-only view used by the QDQ selectors (see package
// github.com/gomlx/qdq/pkg/qdq/selectors) and by the whole-graph scan.
//
// The main elements in the package are:
//
//   - Graph: created with New, populated with AddValue, AddNode and SetOutputs and frozen with
//     Finalize. After Finalize the graph is immutable and safe for concurrent reads.
//
//   - Node: an operation, identified by its NodeIndex within the Graph. A NodeIndex is a
//     non-owning handle: it is only meaningful for the Graph that issued it.
//
//   - ArgDef: the descriptor of one input or output slot of a node. Optional slots that were
//     left empty are kept in position, with Exists set to false.
//
// # Error Handling
//
// Building methods return errors (wrapping the package sentinel errors, e.g. ErrUnknownValue),
// since graphs are usually built from external descriptions. Query methods panic on invalid
// NodeIndex values, since those are bugs in the caller.
package graph

import (
	"fmt"
	"strings"

	"github.com/gomlx/qdq/pkg/core/dtypes"
	"github.com/gomlx/qdq/pkg/support/sets"
	"github.com/pkg/errors"
)

var (
	// ErrFinalized is returned when trying to change a Graph after Finalize was called.
	ErrFinalized = errors.New("graph is finalized")

	// ErrUnknownValue is returned when a node or the graph outputs refer to a value that was not declared.
	ErrUnknownValue = errors.New("unknown value")

	// ErrDuplicateValue is returned when a value name is declared twice.
	ErrDuplicateValue = errors.New("duplicate value")

	// ErrDuplicateNode is returned when a node name is used twice.
	ErrDuplicateNode = errors.New("duplicate node")

	// ErrMultipleProducers is returned when a value is the output of more than one node (or of more than one
	// output slot of the same node).
	ErrMultipleProducers = errors.New("value produced more than once")
)

// panicf panics with the formatted description.
//
// It is only used for "bugs in the code" -- when parameters don't follow the specifications.
func panicf(format string, args ...any) {
	panic(errors.Errorf(format, args...))
}

// value is a named edge of the graph.
type value struct {
	name     string
	dtype    dtypes.DType
	producer NodeIndex

	// consumers in order of insertion, one entry per input slot using the value.
	consumers []NodeIndex
}

// Graph holds a list of nodes connected by named values.
//
// It is not safe for concurrent use while being built. After Finalize it becomes immutable and
// all query methods can be called concurrently.
type Graph struct {
	name string

	// nodes in order of insertion. Each node's idx is its position in this slice.
	nodes       []*Node
	nodesByName map[string]NodeIndex

	values map[string]*value

	// outputs are the graph outputs, in the order given to SetOutputs.
	outputs    []string
	outputsSet sets.Set[string]

	finalized bool
}

// New creates an empty Graph with the given name.
func New(name string) *Graph {
	return &Graph{
		name:        name,
		nodesByName: make(map[string]NodeIndex),
		values:      make(map[string]*value),
		outputsSet:  sets.Make[string](),
	}
}

// Name of the graph.
func (g *Graph) Name() string {
	return g.name
}

// IsFinalized returns whether Finalize was called, after which the graph is immutable.
func (g *Graph) IsFinalized() bool {
	return g.finalized
}

// checkMutable returns an error if the graph can no longer be changed.
func (g *Graph) checkMutable() error {
	if g == nil {
		return errors.New("graph is nil")
	}
	if g.finalized {
		return errors.Wrapf(ErrFinalized, "graph %q", g.name)
	}
	return nil
}

// AddValue declares a named value (an edge of the graph) with its element type.
func (g *Graph) AddValue(name string, dtype dtypes.DType) error {
	if err := g.checkMutable(); err != nil {
		return err
	}
	if name == "" {
		return errors.Errorf("graph %q: value name cannot be empty, empty names are reserved for absent optional slots", g.name)
	}
	if _, found := g.values[name]; found {
		return errors.Wrapf(ErrDuplicateValue, "graph %q: value %q", g.name, name)
	}
	g.values[name] = &value{name: name, dtype: dtype, producer: InvalidNode}
	return nil
}

// AddNode adds a node with the given op type, connected to the given input and output values.
//
// Values must have been declared with AddValue. An empty name marks an absent optional slot: it is
// kept in position and reported by InputDefs/OutputDefs with Exists set to false.
func (g *Graph) AddNode(name, opType string, inputs, outputs []string) (*Node, error) {
	if err := g.checkMutable(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errors.Errorf("graph %q: node name cannot be empty", g.name)
	}
	if _, found := g.nodesByName[name]; found {
		return nil, errors.Wrapf(ErrDuplicateNode, "graph %q: node %q", g.name, name)
	}
	inputValues, err := g.lookupValues(name, "input", inputs)
	if err != nil {
		return nil, err
	}
	outputValues, err := g.lookupValues(name, "output", outputs)
	if err != nil {
		return nil, err
	}
	seenOutputs := sets.Make[string](len(outputs))
	for _, v := range outputValues {
		if v == nil {
			continue
		}
		if v.producer != InvalidNode || seenOutputs.Has(v.name) {
			return nil, errors.Wrapf(ErrMultipleProducers, "graph %q: node %q output %q", g.name, name, v.name)
		}
		seenOutputs.Insert(v.name)
	}

	n := &Node{
		graph:   g,
		idx:     NodeIndex(len(g.nodes)),
		name:    name,
		opType:  opType,
		inputs:  inputValues,
		outputs: outputValues,
	}
	g.nodes = append(g.nodes, n)
	g.nodesByName[name] = n.idx
	for _, v := range inputValues {
		if v != nil {
			v.consumers = append(v.consumers, n.idx)
		}
	}
	for _, v := range outputValues {
		if v != nil {
			v.producer = n.idx
		}
	}
	return n, nil
}

// lookupValues converts value names to values, keeping nil for the empty names.
func (g *Graph) lookupValues(nodeName, kind string, names []string) ([]*value, error) {
	values := make([]*value, len(names))
	for ii, name := range names {
		if name == "" {
			continue
		}
		v, found := g.values[name]
		if !found {
			return nil, errors.Wrapf(ErrUnknownValue, "graph %q: node %q %s #%d %q", g.name, nodeName, kind, ii, name)
		}
		values[ii] = v
	}
	return values, nil
}

// SetOutputs sets the values that are outputs of the graph, consumed outside of it.
func (g *Graph) SetOutputs(names ...string) error {
	if err := g.checkMutable(); err != nil {
		return err
	}
	outputsSet := sets.Make[string](len(names))
	for _, name := range names {
		if _, found := g.values[name]; !found {
			return errors.Wrapf(ErrUnknownValue, "graph %q: output %q", g.name, name)
		}
		outputsSet.Insert(name)
	}
	g.outputs = append([]string(nil), names...)
	g.outputsSet = outputsSet
	return nil
}

// Finalize freezes the graph: further calls to AddValue, AddNode or SetOutputs fail with ErrFinalized.
// It is idempotent.
func (g *Graph) Finalize() {
	g.finalized = true
}

// Outputs returns the names of the graph outputs.
func (g *Graph) Outputs() []string {
	return append([]string(nil), g.outputs...)
}

// NumNodes returns the number of nodes in the graph. Valid indices are 0 to NumNodes()-1.
func (g *Graph) NumNodes() int {
	return len(g.nodes)
}

// Node returns the node with the given index. It panics for invalid indices.
func (g *Graph) Node(idx NodeIndex) *Node {
	if idx < 0 || int(idx) >= len(g.nodes) {
		panicf("graph %q: invalid node index %d, graph has %d nodes", g.name, idx, len(g.nodes))
	}
	return g.nodes[idx]
}

// NodeByName returns the node with the given name, if it exists.
func (g *Graph) NodeByName(name string) (*Node, bool) {
	idx, found := g.nodesByName[name]
	if !found {
		return nil, false
	}
	return g.nodes[idx], true
}

// NodeName returns the name of the node with the given index.
func (g *Graph) NodeName(idx NodeIndex) string {
	return g.Node(idx).name
}

// OpType returns the op type of the node with the given index.
func (g *Graph) OpType(idx NodeIndex) string {
	return g.Node(idx).opType
}

// InputDefs returns the descriptors of the input slots of the node, in order, including absent ones.
func (g *Graph) InputDefs(idx NodeIndex) []ArgDef {
	return argDefs(g.Node(idx).inputs)
}

// OutputDefs returns the descriptors of the output slots of the node, in order, including absent ones.
func (g *Graph) OutputDefs(idx NodeIndex) []ArgDef {
	return argDefs(g.Node(idx).outputs)
}

func argDefs(values []*value) []ArgDef {
	defs := make([]ArgDef, len(values))
	for ii, v := range values {
		if v != nil {
			defs[ii] = ArgDef{Exists: true, DType: v.dtype}
		}
	}
	return defs
}

// ProducesGraphOutput returns whether any of the outputs of the node is an output of the graph.
func (g *Graph) ProducesGraphOutput(idx NodeIndex) bool {
	for _, v := range g.Node(idx).outputs {
		if v != nil && g.outputsSet.Has(v.name) {
			return true
		}
	}
	return false
}

// FindParentsByType returns the nodes of the given op type that produce the inputs of the node.
//
// The result is ordered by the input slot they feed. Inputs that are absent, that are not produced by
// a node (graph inputs and initializers) or that are produced by a node of a different op type are
// skipped. A parent feeding more than one slot is listed once per slot.
func (g *Graph) FindParentsByType(idx NodeIndex, opType string) []NodeIndex {
	var parents []NodeIndex
	for _, v := range g.Node(idx).inputs {
		if v == nil || v.producer == InvalidNode {
			continue
		}
		if g.nodes[v.producer].opType == opType {
			parents = append(parents, v.producer)
		}
	}
	return parents
}

// FindChildrenByType returns the nodes of the given op type that consume the outputs of the node.
//
// The result is ordered by the output slot they consume, and for the same slot by the order in which
// the consumers were added to the graph.
func (g *Graph) FindChildrenByType(idx NodeIndex, opType string) []NodeIndex {
	var children []NodeIndex
	for _, v := range g.Node(idx).outputs {
		if v == nil {
			continue
		}
		for _, consumer := range v.consumers {
			if g.nodes[consumer].opType == opType {
				children = append(children, consumer)
			}
		}
	}
	return children
}

// String returns a multi-line description of the graph, one node per line.
func (g *Graph) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "Graph %q: %d nodes, outputs=%v\n", g.name, len(g.nodes), g.outputs)
	for _, n := range g.nodes {
		_, _ = fmt.Fprintf(&sb, "\t%s\n", n)
	}
	return sb.String()
}
