package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/flowstate/internal/ir"
)

// Cycle describes pipelines that feed each other through source.pipeline.
//
// Unlike a cycle inside one pipeline, which SetInput refuses at run time,
// a cycle between pipeline definitions is caught before anything is built.
type Cycle struct {
	Path    []string `json:"path"`    // ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
}

// CycleError is returned by BuildOrder for cyclic definitions.
type CycleError struct {
	Cycles []Cycle
}

func (e *CycleError) Error() string {
	msgs := make([]string, len(e.Cycles))
	for i, c := range e.Cycles {
		msgs[i] = c.Message
	}
	return strings.Join(msgs, "; ")
}

// dependencyGraph maps pipeline name → upstream pipeline names.
type dependencyGraph map[string][]string

func buildDependencyGraph(specs []ir.PipelineSpec) dependencyGraph {
	graph := make(dependencyGraph, len(specs))
	for _, spec := range specs {
		if graph[spec.Name] == nil {
			graph[spec.Name] = []string{}
		}
		if up := spec.Source.Pipeline; up != "" {
			graph[spec.Name] = append(graph[spec.Name], up)
		}
	}
	return graph
}

// AnalyzeCycles finds pipelines whose upstream chain leads back to
// themselves.
//
// The algorithm:
//  1. Build pipeline → upstream graph from source.pipeline references
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-reference
//
// Nodes are visited in name order so results are deterministic.
func AnalyzeCycles(specs []ir.PipelineSpec) []Cycle {
	graph := buildDependencyGraph(specs)
	var cycles []Cycle
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			cycles = append(cycles, sccToCycle(scc, graph))
		}
	}
	return cycles
}

// BuildOrder returns the pipeline names with every upstream pipeline
// before the pipelines reading from it.
func BuildOrder(specs []ir.PipelineSpec) ([]string, error) {
	if cycles := AnalyzeCycles(specs); len(cycles) > 0 {
		return nil, &CycleError{Cycles: cycles}
	}
	graph := buildDependencyGraph(specs)
	var order []string
	// Tarjan emits a component only after everything it reaches.
	// Dangling upstream names are not graph keys and are left out.
	for _, scc := range tarjanSCC(graph) {
		for _, name := range scc {
			if _, defined := graph[name]; defined {
				order = append(order, name)
			}
		}
	}
	return order, nil
}

func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Components come out in reverse topological order: a component is emitted
// after every component reachable from it.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is the root of a component
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// sccToCycle walks the component from its smallest name back to itself.
func sccToCycle(scc []string, graph dependencyGraph) Cycle {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	start := slices.Min(scc)
	path := []string{start}
	visited := map[string]bool{start: true}
	for current := start; ; {
		next := ""
		for _, up := range graph[current] {
			if members[up] && (!visited[up] || up == start) {
				next = up
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		visited[next] = true
		current = next
	}
	return Cycle{
		Path:    path,
		Message: fmt.Sprintf("pipelines read from each other: %s", strings.Join(path, " → ")),
	}
}
