// Package graph provides dependency graph construction and traversal for
// challenge deployments.
package graph

// Node represents one challenge in the dependency graph.
type Node struct {
	// ID is the challenge name.
	ID string

	// DependsOn lists IDs of challenges that must deploy before this one.
	DependsOn []string

	// DependedOnBy lists IDs of challenges that require this one.
	DependedOnBy []string
}

// NewNode creates a graph node for a challenge.
func NewNode(id string) *Node {
	return &Node{
		ID:           id,
		DependsOn:    []string{},
		DependedOnBy: []string{},
	}
}

// AddDependency records a dependency edge, ignoring duplicates.
func (n *Node) AddDependency(nodeID string) {
	for _, dep := range n.DependsOn {
		if dep == nodeID {
			return
		}
	}
	n.DependsOn = append(n.DependsOn, nodeID)
}

// AddDependent records a reverse edge, ignoring duplicates.
func (n *Node) AddDependent(nodeID string) {
	for _, dep := range n.DependedOnBy {
		if dep == nodeID {
			return
		}
	}
	n.DependedOnBy = append(n.DependedOnBy, nodeID)
}
