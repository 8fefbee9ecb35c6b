// Package node implements the schema-driven node layer: hydration of nodes
// from lineage query results, input validation, and the manager that turns
// node operations into graph writes.
package node

import (
	"github.com/tributarydb/tributary/internal/storage"
)

// Edge statuses as stored on graph edges.
const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

// Edge is the temporal metadata carried by every graph edge. From and To are
// fixed-width timestamps, so string comparison is chronological comparison.
type Edge struct {
	Branch      string
	BranchLevel int
	Status      string
	From        string
	To          string
}

// ParseEdge extracts temporal metadata from a result cell holding an edge.
// Cells from unmatched OPTIONAL MATCH come back nil and parse to nil.
func ParseEdge(cell interface{}) (*Edge, error) {
	if cell == nil {
		return nil, nil
	}
	_, props, err := storage.ParseEdgeFromResult(cell)
	if err != nil {
		return nil, err
	}
	return &Edge{
		Branch:      storage.GetStringProperty(props, "branch"),
		BranchLevel: int(storage.GetInt64Property(props, "branch_level")),
		Status:      storage.GetStringProperty(props, "status"),
		From:        storage.GetStringProperty(props, "from"),
		To:          storage.GetStringProperty(props, "to"),
	}, nil
}

// Supersedes reports whether e wins over other under branch precedence:
// higher branch level first, then the later from, then deleted over active.
// A nil other never wins.
func (e *Edge) Supersedes(other *Edge) bool {
	if e == nil {
		return false
	}
	if other == nil {
		return true
	}
	if e.BranchLevel != other.BranchLevel {
		return e.BranchLevel > other.BranchLevel
	}
	if e.From != other.From {
		return e.From > other.From
	}
	if e.Status != other.Status {
		return e.Status == StatusDeleted
	}
	return false
}

// IsActive reports whether the edge carries live data rather than a
// tombstone.
func (e *Edge) IsActive() bool {
	return e != nil && e.Status == StatusActive
}

// candidate pairs an edge with the payload it carries; reduce keeps the
// winning pair.
type candidate struct {
	edge    *Edge
	payload interface{}
}

// reduce returns the candidate whose edge supersedes all others.
func reduce(candidates []candidate) candidate {
	var winner candidate
	for _, c := range candidates {
		if c.edge == nil {
			continue
		}
		if c.edge.Supersedes(winner.edge) {
			winner = c
		}
	}
	return winner
}
