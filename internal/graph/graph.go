// Package graph builds and analyzes the execution DAG of a pipeline or
// composite subgraph (spec.md §4.4), grounded on execution_engine.py's
// _build_execution_graph / _group_by_execution_level (itself built on
// networkx.DiGraph) and, for idiomatic Go structuring of an adjacency-list
// DAG, on the other_examples dag.go reference file.
package graph

import "github.com/nodeforge/pipelinecore/internal/domain/pipeline"

// Graph is a directed graph over node ids, built from a pipeline Subgraph's
// edges. It tracks both successors and predecessors so level-grouping can
// query "are all of this node's dependencies satisfied" in O(1) per edge.
type Graph struct {
	nodes        []string
	successors   map[string][]string
	predecessors map[string][]string
}

// Build constructs a Graph from every node id and every edge's
// source->target dependency in sg.
func Build(sg pipeline.Subgraph) *Graph {
	g := &Graph{
		successors:   make(map[string][]string),
		predecessors: make(map[string][]string),
	}
	for _, n := range sg.Nodes {
		g.nodes = append(g.nodes, n.ID)
		if _, ok := g.successors[n.ID]; !ok {
			g.successors[n.ID] = nil
		}
		if _, ok := g.predecessors[n.ID]; !ok {
			g.predecessors[n.ID] = nil
		}
	}
	for _, e := range sg.Edges {
		g.successors[e.Source] = append(g.successors[e.Source], e.Target)
		g.predecessors[e.Target] = append(g.predecessors[e.Target], e.Source)
	}
	return g
}

// Nodes returns every node id in the graph, in insertion order.
func (g *Graph) Nodes() []string { return append([]string(nil), g.nodes...) }

// Predecessors returns node's direct dependencies.
func (g *Graph) Predecessors(node string) []string { return g.predecessors[node] }

// Successors returns node's direct dependents.
func (g *Graph) Successors(node string) []string { return g.successors[node] }

// IsDAG reports whether the graph has no directed cycle.
func (g *Graph) IsDAG() bool {
	return len(g.Cycles()) == 0
}

// Cycles enumerates simple cycles via DFS with a coloring scheme (white /
// gray / black). Equivalent in intent to networkx.simple_cycles but scoped
// to what the engine needs: at least one witness cycle per strongly
// connected loop, not an exhaustive enumeration of every simple cycle in a
// densely connected graph.
func (g *Graph) Cycles() [][]string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	stack := make([]string, 0, len(g.nodes))
	var cycles [][]string

	var visit func(node string)
	visit = func(node string) {
		color[node] = gray
		stack = append(stack, node)

		for _, next := range g.successors[node] {
			switch color[next] {
			case white:
				visit(next)
			case gray:
				cycles = append(cycles, extractCycle(stack, next))
			}
		}

		stack = stack[:len(stack)-1]
		color[node] = black
	}

	for _, n := range g.nodes {
		if color[n] == white {
			visit(n)
		}
	}
	return cycles
}

func extractCycle(stack []string, repeat string) []string {
	for i, n := range stack {
		if n == repeat {
			cycle := append([]string(nil), stack[i:]...)
			return cycle
		}
	}
	return []string{repeat}
}

// TopologicalOrder returns a valid topological ordering of the graph's
// nodes. Callers must check IsDAG first; TopologicalOrder on a cyclic graph
// returns a partial order omitting any node still waiting on an unresolved
// dependency.
func (g *Graph) TopologicalOrder() []string {
	indegree := make(map[string]int, len(g.nodes))
	for _, n := range g.nodes {
		indegree[n] = len(g.predecessors[n])
	}

	var queue []string
	for _, n := range g.nodes {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, next := range g.successors[node] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return order
}

// Levels groups execution order into parallel batches: a node joins a level
// once every predecessor has appeared in an earlier level. Ported directly
// from _group_by_execution_level, including its safety clause — if no
// remaining node currently qualifies (can only happen on a cyclic graph,
// which callers are expected to have already rejected via IsDAG) the first
// remaining node in order is forced into its own level rather
// than looping forever.
func (g *Graph) Levels(order []string) [][]string {
	remaining := make(map[string]bool, len(order))
	for _, n := range order {
		remaining[n] = true
	}
	executed := make(map[string]bool, len(order))

	var levels [][]string
	for len(remaining) > 0 {
		var current []string
		for _, n := range order {
			if !remaining[n] {
				continue
			}
			ready := true
			for _, pred := range g.predecessors[n] {
				if !executed[pred] {
					ready = false
					break
				}
			}
			if ready {
				current = append(current, n)
			}
		}

		if len(current) == 0 {
			for _, n := range order {
				if remaining[n] {
					current = []string{n}
					break
				}
			}
		}

		levels = append(levels, current)
		for _, n := range current {
			executed[n] = true
			delete(remaining, n)
		}
	}
	return levels
}
