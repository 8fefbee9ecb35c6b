package query

import (
	"fmt"
	"strings"

	"github.com/tributarydb/tributary/internal/core/branch"
	"github.com/tributarydb/tributary/internal/storage"
)

// BuildBranchCreate persists a branch record. Branch vertices are metadata,
// not versioned data: they live on the default branch at level 1 and are
// mutated in place.
func BuildBranchCreate(b *branch.Branch) *storage.GraphQuery {
	q := fmt.Sprintf(`MATCH (root:%s)
CREATE (b:%s $node_prop)
CREATE (b)-[:%s { branch: $branch, branch_level: 1, from: $at, status: "active" }]->(root)
RETURN b.uuid AS uuid`,
		LabelRoot,
		LabelBranch,
		EdgeIsPartOf,
	)

	return &storage.GraphQuery{
		Name:  "branch_create",
		Query: q,
		Parameters: map[string]interface{}{
			"node_prop": b.ToProperties(),
			"branch":    branch.DefaultBranchName,
			"at":        b.CreatedAt.String(),
		},
	}
}

// BuildBranchUpdate replaces the stored properties of a branch record.
func BuildBranchUpdate(b *branch.Branch) *storage.GraphQuery {
	q := fmt.Sprintf(`MATCH (b:%s { uuid: $uuid })
SET b = $node_prop
RETURN b.uuid AS uuid`, LabelBranch)

	return &storage.GraphQuery{
		Name:  "branch_update",
		Query: q,
		Parameters: map[string]interface{}{
			"uuid":      b.ID,
			"node_prop": b.ToProperties(),
		},
	}
}

// BuildBranchGet fetches one branch record by name.
func BuildBranchGet(name string) *storage.GraphQuery {
	return &storage.GraphQuery{
		Name:  "branch_get",
		Query: fmt.Sprintf("MATCH (b:%s { name: $name }) RETURN b", LabelBranch),
		Parameters: map[string]interface{}{
			"name": name,
		},
	}
}

// BuildBranchList fetches every branch record.
func BuildBranchList() *storage.GraphQuery {
	return &storage.GraphQuery{
		Name:       "branch_list",
		Query:      fmt.Sprintf("MATCH (b:%s) RETURN b ORDER BY b.name", LabelBranch),
		Parameters: map[string]interface{}{},
	}
}

// BuildBranchDelete removes a branch record entirely. Only used for
// abandoned branches; merged branches are kept with status MERGED.
func BuildBranchDelete(branchID string) *storage.GraphQuery {
	return &storage.GraphQuery{
		Name:  "branch_delete",
		Query: fmt.Sprintf("MATCH (b:%s { uuid: $uuid }) DETACH DELETE b", LabelBranch),
		Parameters: map[string]interface{}{
			"uuid": branchID,
		},
	}
}

// BuildBranchDataDelete removes every data edge stamped with the branch.
// The match is undirected so both edge directions hit the same relationship;
// deleting it twice inside one query is a no-op.
func BuildBranchDataDelete(branchName string) *storage.GraphQuery {
	return &storage.GraphQuery{
		Name:  "branch_data_delete",
		Query: "MATCH (s)-[r]-(d) WHERE r.branch = $branch DELETE r",
		Parameters: map[string]interface{}{
			"branch": branchName,
		},
	}
}

// BuildOrphanSweep returns one query per data label deleting vertices left
// without a single edge after a branch data delete. The sweep is
// label-scoped so Root and Branch records never match even on an empty
// graph.
func BuildOrphanSweep() []*storage.GraphQuery {
	labels := []string{LabelNode, LabelAttribute, LabelRelationship, LabelAttributeValue, LabelBoolean}
	queries := make([]*storage.GraphQuery, 0, len(labels))
	for _, label := range labels {
		queries = append(queries, &storage.GraphQuery{
			Name:       "orphan_sweep_" + strings.ToLower(label),
			Query:      fmt.Sprintf("MATCH (n:%s) WHERE NOT (n)--() DELETE n", label),
			Parameters: map[string]interface{}{},
		})
	}
	return queries
}
