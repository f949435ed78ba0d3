// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package scan runs the QDQ selectors over every node of a graph.
//
// Nodes whose op type has a selector in the registry are candidates, and they are matched
// concurrently, since matching only reads the graph. The result lists the selections ordered
// by target node, independent of the parallelism used.
package scan

import (
	"cmp"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/qdq/internal/workerspool"
	"github.com/gomlx/qdq/pkg/core/graph"
	"github.com/gomlx/qdq/pkg/qdq/selectors"
	"github.com/gomlx/qdq/pkg/support/sets"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Graph is what Scan needs from a graph: the selectors' view, plus the op type of each node.
type Graph interface {
	selectors.GraphView
	OpType(node graph.NodeIndex) string
}

var _ Graph = (*graph.Graph)(nil)

// ErrNotFinalized is returned when scanning a graph that can still be changed.
var ErrNotFinalized = errors.New("graph is not finalized")

// Result of scanning a graph.
type Result struct {
	// ID identifies the scan in logs.
	ID uuid.UUID

	// Selections found, ordered by target node.
	Selections []*selectors.Selection

	// NumNodes in the graph, and NumCandidates, the number of nodes with a registered selector.
	NumNodes, NumCandidates int

	// Elapsed time scanning.
	Elapsed time.Duration
}

// Lookup returns the selection whose target is node, if it was matched.
func (r *Result) Lookup(node graph.NodeIndex) (*selectors.Selection, bool) {
	idx, found := slices.BinarySearchFunc(r.Selections, node, func(s *selectors.Selection, target graph.NodeIndex) int {
		return cmp.Compare(s.Target(), target)
	})
	if !found {
		return nil, false
	}
	return r.Selections[idx], true
}

// MatchedOpTypes returns the sorted op types of the matched targets.
func (r *Result) MatchedOpTypes(g Graph) []string {
	opTypes := sets.Make[string]()
	for _, s := range r.Selections {
		opTypes.Insert(g.OpType(s.Target()))
	}
	return sets.Sorted(opTypes)
}

// Option configures Scan.
type Option func(cfg *config)

type config struct {
	parallelism int
	progress    func()
}

// WithParallelism sets the maximum number of nodes matched concurrently.
// If 0 matching is sequential, and if negative it is unlimited. Default is runtime.NumCPU().
func WithParallelism(parallelism int) Option {
	return func(cfg *config) {
		cfg.parallelism = parallelism
	}
}

// WithProgress sets a function called after each candidate is matched.
// It may be called concurrently.
func WithProgress(fn func()) Option {
	return func(cfg *config) {
		cfg.progress = fn
	}
}

// finalizer is implemented by graphs that know whether they can still be changed.
type finalizer interface {
	IsFinalized() bool
}

type candidate struct {
	node     graph.NodeIndex
	selector selectors.Selector
}

func findCandidates(g Graph, registry *selectors.Registry) []candidate {
	var candidates []candidate
	for node := range graph.NodeIndex(g.NumNodes()) {
		if selector, found := registry.Lookup(g.OpType(node)); found {
			candidates = append(candidates, candidate{node: node, selector: selector})
		}
	}
	return candidates
}

// Candidates returns the nodes of g whose op type has a selector in the registry, in index order.
func Candidates(g Graph, registry *selectors.Registry) []graph.NodeIndex {
	candidates := findCandidates(g, registry)
	nodes := make([]graph.NodeIndex, len(candidates))
	for ii, c := range candidates {
		nodes[ii] = c.node
	}
	return nodes
}

// Scan matches every node of g that has a selector in the registry.
//
// The graph must not be changed during the scan. If g implements IsFinalized() and it returns false,
// it fails with ErrNotFinalized.
//
// Graph contract violations that panic (see selectors.PanicOnContractViolation) are returned as errors.
func Scan(g Graph, registry *selectors.Registry, options ...Option) (*Result, error) {
	if f, ok := g.(finalizer); ok && !f.IsFinalized() {
		return nil, ErrNotFinalized
	}
	cfg := config{parallelism: runtime.NumCPU()}
	for _, option := range options {
		option(&cfg)
	}

	start := time.Now()
	result := &Result{
		ID:       uuid.New(),
		NumNodes: g.NumNodes(),
	}
	candidates := findCandidates(g, registry)
	result.NumCandidates = len(candidates)

	matches := make([]*selectors.Selection, len(candidates))
	var (
		mu       sync.Mutex
		firstErr error
	)
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}
	pool := workerspool.New()
	pool.SetMaxParallelism(cfg.parallelism)
	for ii, c := range candidates {
		if failed() {
			break
		}
		pool.WaitToStart(func() {
			err := exceptions.TryCatch[error](func() {
				if selection, ok := c.selector.Match(g, c.node); ok {
					matches[ii] = selection
				}
			})
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = errors.WithMessagef(err, "scan: %s selector failed on node #%d (%s)",
						c.selector, c.node, g.OpType(c.node))
				}
				mu.Unlock()
			}
			if cfg.progress != nil {
				cfg.progress()
			}
		})
	}
	pool.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	for _, selection := range matches {
		if selection != nil {
			result.Selections = append(result.Selections, selection)
		}
	}
	result.Elapsed = time.Since(start)
	if klog.V(1).Enabled() {
		klog.Infof("scan %s: %d nodes, %d candidates, %d selections in %s",
			result.ID, result.NumNodes, result.NumCandidates, len(result.Selections), result.Elapsed)
	}
	return result, nil
}
