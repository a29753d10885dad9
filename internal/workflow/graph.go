// Package workflow validates, orders and executes compliance workflow graphs.
package workflow

import (
	"fmt"

	"veritas/backend/internal/apperr"
	"veritas/backend/pkg/models"
)

// Validate checks the graph shape and reports every violation at once.
func Validate(nodes []models.Node, edges []models.Edge) error {
	var violations []string

	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if known[n.ID] {
			violations = append(violations, fmt.Sprintf("Node id '%s' is used more than once", n.ID))
		}
		known[n.ID] = true
	}

	targets := make(map[string]bool, len(edges))
	for _, e := range edges {
		if !known[e.Source] {
			violations = append(violations, fmt.Sprintf("Edge '%s' references unknown source '%s'", e.ID, e.Source))
		}
		if !known[e.Target] {
			violations = append(violations, fmt.Sprintf("Edge '%s' references unknown target '%s'", e.ID, e.Target))
		}
		targets[e.Target] = true
	}

	for _, n := range nodes {
		kind := n.Kind()
		if kind == models.NodeUnknown {
			violations = append(violations, fmt.Sprintf("Node '%s' has unknown type '%s'", n.ID, n.TypeTag()))
			continue
		}
		if kind.IsAnalysis() && !targets[n.ID] {
			violations = append(violations, fmt.Sprintf("Analysis node '%s' (%s) has no incoming connection", n.ID, kind))
		}
	}

	if len(violations) > 0 {
		return apperr.Validation(violations...)
	}
	return nil
}

// TopoOrder linearizes the graph with Kahn's algorithm. Ready nodes are
// scheduled first-discovered, first-scheduled: the queue is seeded in node
// order and successors are enqueued in edge order. Edges with an unknown
// endpoint are ignored here; Validate reports them.
func TopoOrder(nodes []models.Node, edges []models.Edge) ([]models.Node, error) {
	index := make(map[string]int, len(nodes))
	inDegree := make([]int, len(nodes))
	successors := make([][]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}
	for _, e := range edges {
		src, okSrc := index[e.Source]
		tgt, okTgt := index[e.Target]
		if !okSrc || !okTgt {
			continue
		}
		successors[src] = append(successors[src], tgt)
		inDegree[tgt]++
	}

	queue := make([]int, 0, len(nodes))
	for i := range nodes {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	ordered := make([]models.Node, 0, len(nodes))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		ordered = append(ordered, nodes[i])
		for _, next := range successors[i] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(ordered) != len(nodes) {
		return nil, apperr.Validation("Workflow graph contains a cycle or disconnected references.")
	}
	return ordered, nil
}
