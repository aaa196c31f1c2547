package graph

import (
	"sort"

	"github.com/ekocloudsec/ctfctl/pkg/challenge"
	"github.com/ekocloudsec/ctfctl/pkg/errors"
)

// Graph is a dependency graph over a set of challenges. Edges come from
// declared depends_on entries and from ${challenge.output} placeholders
// discovered in variables.
type Graph struct {
	Nodes map[string]*Node
}

// Build constructs the graph for the given challenges. Every referenced
// challenge must be in the set; cycles are rejected.
func Build(challenges []*challenge.Challenge) (*Graph, error) {
	g := &Graph{Nodes: make(map[string]*Node, len(challenges))}

	for _, c := range challenges {
		g.Nodes[c.Name] = NewNode(c.Name)
	}

	for _, c := range challenges {
		for _, dep := range c.Dependencies() {
			if _, ok := g.Nodes[dep]; !ok {
				return nil, errors.UnknownReferenceError(c.Name, dep)
			}
			g.Nodes[c.Name].AddDependency(dep)
			g.Nodes[dep].AddDependent(c.Name)
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, errors.CycleError(cycle)
	}

	return g, nil
}

// GetNode returns a node by id, or nil.
func (g *Graph) GetNode(id string) *Node {
	return g.Nodes[id]
}

// Dependents returns the ids of every challenge that transitively depends
// on the given one, in ascending order.
func (g *Graph) Dependents(id string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(cur string) {
		node := g.Nodes[cur]
		if node == nil {
			return
		}
		for _, dep := range node.DependedOnBy {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(id)

	out := make([]string, 0, len(seen))
	for dep := range seen {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// TopologicalBatches groups nodes into deployment waves: every node in a
// batch only depends on nodes in earlier batches. Within a batch, ids are
// in ascending order.
func (g *Graph) TopologicalBatches() [][]string {
	inDegree := make(map[string]int, len(g.Nodes))
	for id, node := range g.Nodes {
		inDegree[id] = len(node.DependsOn)
	}

	var ready []string
	for id, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	var batches [][]string
	for len(ready) > 0 {
		batch := ready
		batches = append(batches, batch)

		ready = nil
		for _, id := range batch {
			for _, dependent := range g.Nodes[id].DependedOnBy {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					ready = append(ready, dependent)
				}
			}
		}
		sort.Strings(ready)
	}

	return batches
}

// ReverseBatches groups nodes into teardown waves: dependents come before
// the challenges they depend on.
func (g *Graph) ReverseBatches() [][]string {
	outDegree := make(map[string]int, len(g.Nodes))
	for id, node := range g.Nodes {
		outDegree[id] = len(node.DependedOnBy)
	}

	var ready []string
	for id, degree := range outDegree {
		if degree == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	var batches [][]string
	for len(ready) > 0 {
		batch := ready
		batches = append(batches, batch)

		ready = nil
		for _, id := range batch {
			for _, dep := range g.Nodes[id].DependsOn {
				outDegree[dep]--
				if outDegree[dep] == 0 {
					ready = append(ready, dep)
				}
			}
		}
		sort.Strings(ready)
	}

	return batches
}

// findCycle runs a DFS over the graph and returns the first cycle found
// as an ordered id list starting and ending at the same id, or nil.
func (g *Graph) findCycle() []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // fully explored
	)
	color := make(map[string]int, len(g.Nodes))
	var stack []string

	var ids []string
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var visit func(string) []string
	visit = func(id string) []string {
		color[id] = gray
		stack = append(stack, id)

		deps := append([]string(nil), g.Nodes[id].DependsOn...)
		sort.Strings(deps)
		for _, dep := range deps {
			switch color[dep] {
			case gray:
				// Slice the stack from the first occurrence of dep to
				// close the loop.
				for i, onPath := range stack {
					if onPath == dep {
						cycle := append([]string(nil), stack[i:]...)
						return append(cycle, dep)
					}
				}
			case white:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for _, id := range ids {
		if color[id] == white {
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
