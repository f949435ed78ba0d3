// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graphio loads graphs from text descriptions, in YAML or HCL.
//
// Both formats describe the same document: the graph name, its typed values, its nodes (name, op type,
// input and output value names, with "" for an absent optional input) and the names of the graph outputs.
//
// YAML example:
//
//	name: relu
//	values:
//	  - {name: x_q, dtype: uint8}
//	  - {name: x, dtype: float32}
//	nodes:
//	  - {name: dq, op: DequantizeLinear, inputs: [x_q], outputs: [x]}
//	outputs: [x]
//
// HCL example, where dtypes can be given as bare identifiers:
//
//	name = "relu"
//	value "x_q" { dtype = uint8 }
//	value "x" { dtype = float32 }
//	node "dq" {
//	  op      = "DequantizeLinear"
//	  inputs  = ["x_q"]
//	  outputs = ["x"]
//	}
//	outputs = ["x"]
package graphio

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/qdq/pkg/core/dtypes"
	"github.com/gomlx/qdq/pkg/core/graph"
	"github.com/gomlx/qdq/pkg/support/fsutil"
	"github.com/pkg/errors"
)

// document is the structure shared by all the formats.
type document struct {
	Name    string      `yaml:"name" hcl:"name"`
	Values  []valueSpec `yaml:"values" hcl:"value,block"`
	Nodes   []nodeSpec  `yaml:"nodes" hcl:"node,block"`
	Outputs []string    `yaml:"outputs" hcl:"outputs,optional"`
}

type valueSpec struct {
	Name  string `yaml:"name" hcl:"name,label"`
	DType string `yaml:"dtype" hcl:"dtype"`
}

type nodeSpec struct {
	Name    string   `yaml:"name" hcl:"name,label"`
	Op      string   `yaml:"op" hcl:"op"`
	Inputs  []string `yaml:"inputs" hcl:"inputs,optional"`
	Outputs []string `yaml:"outputs" hcl:"outputs,optional"`
}

// LoadFile loads the graph described in the file, using the format given by its extension:
// ".yaml" or ".yml" for YAML, ".hcl" for HCL. A leading "~" in path is expanded to the home directory.
func LoadFile(path string) (*graph.Graph, error) {
	path, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read graph from %q", path)
	}
	var g *graph.Graph
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		g, err = ParseYAML(data)
	case ".hcl":
		g, err = ParseHCL(data, path)
	default:
		return nil, errors.Errorf("unknown graph format for %q: extension %q is not one of .yaml, .yml or .hcl",
			path, ext)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to load graph from %q", path)
	}
	return g, nil
}

// build creates the finalized graph described by doc.
func (doc *document) build() (*graph.Graph, error) {
	if doc.Name == "" {
		return nil, errors.New("graph name is missing")
	}
	g := graph.New(doc.Name)
	for _, v := range doc.Values {
		dtype, err := dtypes.FromName(v.DType)
		if err != nil {
			return nil, errors.WithMessagef(err, "value %q", v.Name)
		}
		if !dtype.IsValid() {
			return nil, errors.Errorf("value %q has invalid dtype %q", v.Name, v.DType)
		}
		if err = g.AddValue(v.Name, dtype); err != nil {
			return nil, err
		}
	}
	for _, n := range doc.Nodes {
		if n.Op == "" {
			return nil, errors.Errorf("node %q has no op type", n.Name)
		}
		if _, err := g.AddNode(n.Name, n.Op, n.Inputs, n.Outputs); err != nil {
			return nil, err
		}
	}
	if err := g.SetOutputs(doc.Outputs...); err != nil {
		return nil, err
	}
	g.Finalize()
	return g, nil
}
