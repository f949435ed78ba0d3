// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package report renders the results of a scan, as plain text or as terminal tables.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/qdq/pkg/core/graph"
	"github.com/gomlx/qdq/pkg/qdq/scan"
	"github.com/gomlx/qdq/pkg/qdq/selectors"
	"github.com/gomlx/qdq/pkg/support/sets"
	"github.com/gomlx/qdq/pkg/support/xslices"
	"github.com/pkg/errors"
)

// Graph is what the reports need from the scanned graph.
type Graph interface {
	scan.Graph
	Name() string
	NodeName(node graph.NodeIndex) string
}

var _ Graph = (*graph.Graph)(nil)

// MissingInput is how an absent optional input is displayed.
const MissingInput = "<missing>"

// FloatOutput is displayed for selections with no quantized outputs.
const FloatOutput = "<float>"

func nodeRef(g Graph, node graph.NodeIndex) string {
	return fmt.Sprintf("#%d %s", node, g.NodeName(node))
}

func inputsText(g Graph, s *selectors.Selection, withIndices bool) string {
	text := strings.Join(xslices.Map(s.InputNodes(), func(slot selectors.Slot) string {
		node, ok := slot.Node()
		if !ok {
			return MissingInput
		}
		if withIndices {
			return nodeRef(g, node)
		}
		return g.NodeName(node)
	}), ", ")
	if s.VariadicInput() {
		text += " (variadic)"
	}
	return text
}

func outputsText(g Graph, s *selectors.Selection, withIndices bool) string {
	outputs := s.OutputNodes()
	if len(outputs) == 0 {
		return FloatOutput
	}
	return strings.Join(xslices.Map(outputs, func(node graph.NodeIndex) string {
		if withIndices {
			return nodeRef(g, node)
		}
		return g.NodeName(node)
	}), ", ")
}

// NumFusedNodes returns the number of distinct nodes covered by the selections.
// A boundary node shared by more than one selection is counted once.
func NumFusedNodes(result *scan.Result) int {
	fused := sets.Make[graph.NodeIndex]()
	for _, s := range result.Selections {
		fused.Insert(s.AllNodes()...)
	}
	return len(fused)
}

// Summary returns a one line summary of the result, without timing information.
func Summary(g Graph, result *scan.Result) string {
	return fmt.Sprintf("Graph %q: %s nodes, %s candidates, %s selections covering %s nodes",
		g.Name(), humanize.Comma(int64(result.NumNodes)), humanize.Comma(int64(result.NumCandidates)),
		humanize.Comma(int64(len(result.Selections))), humanize.Comma(int64(NumFusedNodes(result))))
}

// WriteText writes a plain text report of the result: a summary line, followed by one entry per selection,
// in target order. The output is deterministic: it doesn't include timing or the scan ID.
func WriteText(w io.Writer, g Graph, result *scan.Result) error {
	var sb strings.Builder
	sb.WriteString(Summary(g, result))
	sb.WriteByte('\n')
	for _, s := range result.Selections {
		target := s.Target()
		_, _ = fmt.Fprintf(&sb, "#%d %s(%s)\n", target, g.OpType(target), g.NodeName(target))
		_, _ = fmt.Fprintf(&sb, "  inputs:  %s\n", inputsText(g, s, true))
		_, _ = fmt.Fprintf(&sb, "  outputs: %s\n", outputsText(g, s, true))
	}
	if _, err := io.WriteString(w, sb.String()); err != nil {
		return errors.Wrap(err, "failed to write report")
	}
	return nil
}
