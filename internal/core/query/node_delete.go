package query

import (
	"fmt"

	"github.com/tributarydb/tributary/internal/core/branch"
	"github.com/tributarydb/tributary/internal/core/timestamp"
	"github.com/tributarydb/tributary/internal/storage"
)

// DeleteScope carries the write position for delete builders, which also
// need the full branch for lineage matching.
type DeleteScope struct {
	Branch *branch.Branch
	At     timestamp.Timestamp
}

func (s DeleteScope) params() map[string]interface{} {
	return map[string]interface{}{
		"branch":       s.Branch.Name,
		"branch_level": s.Branch.HierarchyLevel,
		"at":           s.At.String(),
	}
}

// BuildNodeDeleteRoot closes the node's open IS_PART_OF edge on the write
// branch and adds the deleted duplicate that shadows lower levels.
func BuildNodeDeleteRoot(scope DeleteScope, nodeID string) *storage.GraphQuery {
	params := scope.params()
	params["uuid"] = nodeID

	q := fmt.Sprintf(`MATCH (root:%s)
MATCH (n:%s { uuid: $uuid })
OPTIONAL MATCH (n)-[r:%s]->(root)
WHERE r.branch = $branch AND r.to IS NULL AND r.status = "active"
SET r.to = $at
WITH DISTINCT n, root
CREATE (n)-[:%s %s]->(root)`,
		LabelRoot,
		LabelNode,
		EdgeIsPartOf,
		EdgeIsPartOf, edgeProps(StatusDeleted),
	)

	return &storage.GraphQuery{
		Name:       "node_delete_root",
		Query:      q,
		Parameters: params,
	}
}

// BuildNodeDeleteAttributes tombstones every attribute visible on the node
// at deletion time.
func BuildNodeDeleteAttributes(scope DeleteScope, nodeID string) *storage.GraphQuery {
	lineage, lineageParams := scope.Branch.QueryFilter([]string{"r1"}, scope.At, false)
	params := mergeParams(scope.params(), lineageParams)
	params["uuid"] = nodeID

	q := fmt.Sprintf(`MATCH (n:%s { uuid: $uuid })-[r1:%s]->(a:%s)
WHERE %s
 AND r1.status = "active"
OPTIONAL MATCH (n)-[ro:%s]->(a)
WHERE ro.branch = $branch AND ro.to IS NULL AND ro.status = "active"
SET ro.to = $at
WITH DISTINCT n, a
CREATE (n)-[:%s %s]->(a)`,
		LabelNode, EdgeHasAttribute, LabelAttribute,
		lineage[0],
		EdgeHasAttribute,
		EdgeHasAttribute, edgeProps(StatusDeleted),
	)

	return &storage.GraphQuery{
		Name:       "node_delete_attributes",
		Query:      q,
		Parameters: params,
	}
}

// BuildNodeDeleteRelationships tombstones both endpoint edges of every
// relationship the node participates in at deletion time.
func BuildNodeDeleteRelationships(scope DeleteScope, nodeID string) *storage.GraphQuery {
	lineage, lineageParams := scope.Branch.QueryFilter([]string{"r1", "r2"}, scope.At, false)
	params := mergeParams(scope.params(), lineageParams)
	params["uuid"] = nodeID

	q := fmt.Sprintf(`MATCH (n:%s { uuid: $uuid })-[r1:%s]->(rl:%s)
WHERE %s
 AND r1.status = "active"
MATCH (e:%s)-[r2:%s]->(rl)
WHERE %s
 AND r2.status = "active"
OPTIONAL MATCH (e)-[ro:%s]->(rl)
WHERE ro.branch = $branch AND ro.to IS NULL AND ro.status = "active"
SET ro.to = $at
WITH DISTINCT e, rl
CREATE (e)-[:%s %s]->(rl)`,
		LabelNode, EdgeIsRelated, LabelRelationship,
		lineage[0],
		LabelNode, EdgeIsRelated,
		lineage[1],
		EdgeIsRelated,
		EdgeIsRelated, edgeProps(StatusDeleted),
	)

	return &storage.GraphQuery{
		Name:       "node_delete_relationships",
		Query:      q,
		Parameters: params,
	}
}
