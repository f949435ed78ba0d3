// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// qdq_selections lists the QDQ patterns found in a graph described in a YAML or HCL file
// (see package graphio for the format).
//
// Usage:
//
//	qdq_selections [flags] <graph.yaml|graph.hcl>
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/qdq/pkg/core/graph/graphio"
	"github.com/gomlx/qdq/pkg/qdq/report"
	"github.com/gomlx/qdq/pkg/qdq/scan"
	"github.com/gomlx/qdq/pkg/qdq/selectors"
	"github.com/gomlx/qdq/pkg/support/fsutil"
	"github.com/gomlx/qdq/pkg/support/xslices"
	"github.com/janpfeifer/must"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

var (
	flagInt8Unary = flag.Bool("int8_unary", false,
		"Also accept Int8 quantization around unary operators, for targets that support it.")
	flagParallelism = flag.Int("parallelism", runtime.NumCPU(),
		"Maximum number of nodes matched concurrently. 0 matches sequentially, -1 is unlimited.")
	flagFamilies = xslices.Flag("families", nil,
		fmt.Sprintf("Comma-separated list of selector families to use, out of %v. Defaults to all.", selectors.Families),
		selectors.ParseFamily)
	flagStrict = flag.Bool("strict", false,
		"Fail on graph contract violations (e.g.: a dequantize node without inputs), instead of skipping the node.")
	flagFormat   = flag.String("format", "table", "Output format: \"table\" or \"text\".")
	flagProgress = flag.Bool("progress", false, "Display a progress bar while scanning.")
	flagColor    = flag.Bool("color", true, "Use colors in tables. Disable it when piping the output.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		klog.Errorf("Missing graph file to scan. See 'qdq_selections -help'")
		os.Exit(1)
	}
	if len(args) > 1 {
		klog.Errorf("Too many arguments. See 'qdq_selections -help'.")
		os.Exit(1)
	}
	if *flagFormat != "table" && *flagFormat != "text" {
		klog.Errorf("Invalid -format=%q, valid values are \"table\" or \"text\".", *flagFormat)
		os.Exit(1)
	}
	if !*flagColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	selectors.PanicOnContractViolation = *flagStrict

	graphPath := must.M1(fsutil.ExpandHome(args[0]))
	if !must.M1(fsutil.FileExists(graphPath)) {
		klog.Errorf("Graph file %q not found.", graphPath)
		os.Exit(1)
	}
	g := must.M1(graphio.LoadFile(graphPath))
	registry := selectors.DefaultRegistry(selectors.Config{Int8Unary: *flagInt8Unary})
	if len(*flagFamilies) > 0 {
		registry = registry.Filter(*flagFamilies...)
	}

	options := []scan.Option{scan.WithParallelism(*flagParallelism)}
	var bar *progressbar.ProgressBar
	if *flagProgress {
		bar = progressbar.NewOptions(len(scan.Candidates(g, registry)),
			progressbar.OptionSetDescription("Scanning"),
			progressbar.OptionSetItsString("nodes"),
			progressbar.OptionShowIts(),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish(),
		)
		options = append(options, scan.WithProgress(func() { _ = bar.Add(1) }))
	}
	result := must.M1(scan.Scan(g, registry, options...))
	if bar != nil {
		_ = bar.Finish()
	}

	switch *flagFormat {
	case "text":
		must.M(report.WriteText(os.Stdout, g, result))
	case "table":
		fmt.Println(report.TitleStyle.Render("Summary"))
		fmt.Println(report.SummaryTable(g, result).Render())
		if len(result.Selections) > 0 {
			fmt.Println(report.TitleStyle.Render("Selections"))
			fmt.Println(report.Table(g, result).Render())
		}
	}
}
