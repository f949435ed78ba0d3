// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package report

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/qdq/pkg/qdq/scan"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)

	// TitleStyle is used for the titles printed before each table.
	TitleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

// newPlainTable creates a table with alternating row styles. The alignments are given per column,
// and the last one is used for the remaining columns.
func newPlainTable(alignments ...lipgloss.Position) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row == lgtable.HeaderRow {
				s = headerRowStyle
				return
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			} else if len(alignments) > 0 {
				alignment = alignments[len(alignments)-1]
			}
			s = s.Align(alignment)
			return
		})
}

// SummaryTable returns a two-column table with the statistics of the scan.
func SummaryTable(g Graph, result *scan.Result) *lgtable.Table {
	table := newPlainTable(lipgloss.Right, lipgloss.Left)
	numFused := NumFusedNodes(result)
	var coverage float64
	if result.NumNodes > 0 {
		coverage = 100 * float64(numFused) / float64(result.NumNodes)
	}
	table.Row("graph", g.Name())
	table.Row("# nodes", humanize.Comma(int64(result.NumNodes)))
	table.Row("# candidates", humanize.Comma(int64(result.NumCandidates)))
	table.Row("# selections", humanize.Comma(int64(len(result.Selections))))
	table.Row("# fused nodes", fmt.Sprintf("%s (%s%%)", humanize.Comma(int64(numFused)),
		humanize.FtoaWithDigits(coverage, 1)))
	table.Row("elapsed", result.Elapsed.String())
	table.Row("scan id", result.ID.String())
	return table
}

// Table returns a table with one row per selection, in target order.
func Table(g Graph, result *scan.Result) *lgtable.Table {
	table := newPlainTable(lipgloss.Right, lipgloss.Left, lipgloss.Left, lipgloss.Left, lipgloss.Right)
	table.Headers("Target", "Op", "Inputs", "Outputs", "Nodes")
	for _, s := range result.Selections {
		target := s.Target()
		table.Row(
			nodeRef(g, target),
			g.OpType(target),
			inputsText(g, s, false),
			outputsText(g, s, false),
			strconv.Itoa(len(s.AllNodes())),
		)
	}
	return table
}
