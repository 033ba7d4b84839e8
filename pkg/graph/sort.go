// Package graph orders workflow nodes for execution.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/flowlineio/flowline/pkg/models"
)

// CyclicError reports a directed cycle in the connection set. Nodes lists the
// node IDs still unresolved when the sort stalled.
type CyclicError struct {
	Nodes []string
}

func (e *CyclicError) Error() string {
	return fmt.Sprintf("cyclic dependency detected among nodes: %s", strings.Join(e.Nodes, ", "))
}

// UnknownNodeError reports a connection endpoint that references no node in
// the graph.
type UnknownNodeError struct {
	NodeID string
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("connection references unknown node %q", e.NodeID)
}

// Sort returns the nodes in topological order using Kahn's algorithm.
// The order is stable: among nodes that are ready at the same time, the one
// that appears first in the input slice runs first, so repeated calls on the
// same input produce identical output. Nodes with no incident connections are
// included like any other zero-indegree node. Every node ID appears exactly
// once in the result; duplicate connections collapse.
func Sort(nodes []*models.WorkflowNode, connections []*models.Connection) ([]*models.WorkflowNode, error) {
	if len(connections) == 0 {
		return append([]*models.WorkflowNode(nil), nodes...), nil
	}

	index := make(map[string]int, len(nodes))
	for i, node := range nodes {
		index[node.ID] = i
	}

	indegree := make(map[string]int, len(nodes))
	successors := make(map[string][]string, len(nodes))
	seen := make(map[string]bool, len(connections))

	for _, conn := range connections {
		if _, ok := index[conn.FromNodeID]; !ok {
			return nil, &UnknownNodeError{NodeID: conn.FromNodeID}
		}

		if _, ok := index[conn.ToNodeID]; !ok {
			return nil, &UnknownNodeError{NodeID: conn.ToNodeID}
		}

		// Legacy editors encoded island nodes as self-loops to force their
		// inclusion. They carry no ordering constraint.
		if conn.FromNodeID == conn.ToNodeID {
			continue
		}

		edge := conn.FromNodeID + "\x00" + conn.ToNodeID
		if seen[edge] {
			continue
		}

		seen[edge] = true
		successors[conn.FromNodeID] = append(successors[conn.FromNodeID], conn.ToNodeID)
		indegree[conn.ToNodeID]++
	}

	// Ready nodes, kept sorted by input position for deterministic order.
	ready := make([]string, 0, len(nodes))
	for _, node := range nodes {
		if indegree[node.ID] == 0 {
			ready = append(ready, node.ID)
		}
	}

	ordered := make([]*models.WorkflowNode, 0, len(nodes))

	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		ordered = append(ordered, nodes[index[id]])

		for _, next := range successors[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}

		sort.Slice(ready, func(i, j int) bool {
			return index[ready[i]] < index[ready[j]]
		})
	}

	if len(ordered) != len(nodes) {
		remaining := make([]string, 0, len(nodes)-len(ordered))
		for _, node := range nodes {
			if indegree[node.ID] > 0 {
				remaining = append(remaining, node.ID)
			}
		}

		return nil, &CyclicError{Nodes: remaining}
	}

	return ordered, nil
}
