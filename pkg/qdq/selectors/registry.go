// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package selectors

import (
	"github.com/gomlx/qdq/pkg/support/sets"
	"github.com/gomlx/qdq/pkg/support/xslices"
	"github.com/pkg/errors"
)

// ErrDuplicateOpType is returned when registering a selector for an op type that already has one.
var ErrDuplicateOpType = errors.New("op type already has a selector")

// Op types registered by DefaultRegistry, per family.
var (
	UnaryOpTypes = []string{
		"AveragePool", "GlobalAveragePool", "LeakyRelu", "Relu", "Sigmoid", "Softmax", "Tanh",
		"Transpose", "Reshape", "Resize", "Flatten", "Slice",
	}
	BinaryOpTypes   = []string{"Add", "Sub", "Mul", "Div"}
	VariadicOpTypes = []string{"Concat", "Max", "Min"}
	ConvOpTypes     = []string{"Conv", "ConvTranspose"}
	MatMulOpTypes   = []string{"MatMul"}
)

// Config for DefaultRegistry.
type Config struct {
	// Int8Unary makes the unary selector also accept Int8 boundaries, for targets that support them.
	Int8Unary bool
}

// Registry maps op types to the Selector that handles them. There is at most one selector per op type.
//
// A Registry is not safe for concurrent registration, but after it is populated it can be used
// concurrently.
type Registry struct {
	selectors map[string]Selector
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{selectors: make(map[string]Selector)}
}

// DefaultRegistry returns a Registry with the selectors of all families for the usual ONNX op types.
func DefaultRegistry(cfg Config) *Registry {
	r := NewRegistry()
	for _, entry := range []struct {
		selector Selector
		opTypes  []string
	}{
		{NewUnary(cfg.Int8Unary), UnaryOpTypes},
		{NewBinary(), BinaryOpTypes},
		{NewVariadic(), VariadicOpTypes},
		{NewConv(), ConvOpTypes},
		{NewMatMul(), MatMulOpTypes},
	} {
		if err := r.Register(entry.selector, entry.opTypes...); err != nil {
			panic(errors.WithMessage(err, "DefaultRegistry: op type lists overlap"))
		}
	}
	return r
}

// Register the selector for the given op types. It fails without changing the registry if any of the
// op types already has a selector, or is repeated in opTypes.
func (r *Registry) Register(selector Selector, opTypes ...string) error {
	seen := sets.Make[string](len(opTypes))
	for _, opType := range opTypes {
		if existing, found := r.selectors[opType]; found {
			return errors.Wrapf(ErrDuplicateOpType, "op type %q is handled by the %s selector", opType, existing)
		}
		if seen.Has(opType) {
			return errors.Wrapf(ErrDuplicateOpType, "op type %q given more than once", opType)
		}
		seen.Insert(opType)
	}
	for _, opType := range opTypes {
		r.selectors[opType] = selector
	}
	return nil
}

// Lookup returns the selector for the op type, if there is one.
func (r *Registry) Lookup(opType string) (Selector, bool) {
	selector, found := r.selectors[opType]
	return selector, found
}

// Len returns the number of op types registered.
func (r *Registry) Len() int {
	return len(r.selectors)
}

// OpTypes returns the registered op types, sorted.
func (r *Registry) OpTypes() []string {
	return xslices.SortedKeys(r.selectors)
}

// Filter returns a new Registry with only the op types handled by selectors of the given families.
func (r *Registry) Filter(families ...Family) *Registry {
	keep := sets.MakeWith(families...)
	filtered := NewRegistry()
	for opType, selector := range r.selectors {
		if keep.Has(selector.family) {
			filtered.selectors[opType] = selector
		}
	}
	return filtered
}
