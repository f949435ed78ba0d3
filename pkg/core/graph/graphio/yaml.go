// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graphio

import (
	"bytes"

	"github.com/gomlx/qdq/pkg/core/graph"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ParseYAML parses a graph in YAML format, and returns it finalized.
// Unknown fields are rejected.
func ParseYAML(data []byte) (*graph.Graph, error) {
	var doc document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse YAML graph")
	}
	return doc.build()
}
