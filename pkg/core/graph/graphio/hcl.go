// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graphio

import (
	"github.com/gomlx/qdq/pkg/core/dtypes"
	"github.com/gomlx/qdq/pkg/core/graph"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"
	"github.com/zclconf/go-cty/cty"
)

// dtypesEvalContext exposes the dtype names (see dtypes.MapOfNames) as variables, so they can be
// used unquoted, as in `dtype = uint8`.
func dtypesEvalContext() *hcl.EvalContext {
	variables := make(map[string]cty.Value, len(dtypes.MapOfNames))
	for name, dtype := range dtypes.MapOfNames {
		variables[name] = cty.StringVal(dtype.String())
	}
	return &hcl.EvalContext{Variables: variables}
}

// ParseHCL parses a graph in HCL format, and returns it finalized.
// The filename is only used in error messages.
func ParseHCL(data []byte, filename string) (*graph.Graph, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, errors.Wrapf(diags, "failed to parse HCL graph %s", filename)
	}
	var doc document
	diags = gohcl.DecodeBody(file.Body, dtypesEvalContext(), &doc)
	if diags.HasErrors() {
		return nil, errors.Wrapf(diags, "failed to decode HCL graph %s", filename)
	}
	return doc.build()
}
