package query

import (
	"fmt"

	"github.com/tributarydb/tributary/internal/core/timestamp"
	"github.com/tributarydb/tributary/internal/storage"
)

// DiffScope bounds a change collection: one branch, one time window. Both
// window edges are inclusive.
type DiffScope struct {
	Branch string
	Start  timestamp.Timestamp
	End    timestamp.Timestamp
}

func (s DiffScope) params() map[string]interface{} {
	return map[string]interface{}{
		"branch": s.Branch,
		"start":  s.Start.String(),
		"end":    s.End.String(),
	}
}

// rangeClause matches edges created or closed inside the window.
func rangeClause(rel string) string {
	return fmt.Sprintf(
		"%[1]s.branch = $branch AND ((%[1]s.from >= $start AND %[1]s.from <= $end) OR (%[1]s.to IS NOT NULL AND %[1]s.to >= $start AND %[1]s.to <= $end))",
		rel,
	)
}

// BuildDiffNodeEdges collects IS_PART_OF changes: nodes added or deleted on
// the branch inside the window.
func BuildDiffNodeEdges(scope DiffScope) *storage.GraphQuery {
	q := fmt.Sprintf(`MATCH (root:%s)<-[r:%s]-(n:%s)
WHERE %s
RETURN n.uuid AS node_uuid, n.kind AS kind, r AS edge`,
		LabelRoot, EdgeIsPartOf, LabelNode,
		rangeClause("r"),
	)
	return &storage.GraphQuery{Name: "diff_node_edges", Query: q, Parameters: scope.params()}
}

// BuildDiffAttributeEdges collects HAS_ATTRIBUTE changes: attributes added
// or tombstoned inside the window.
func BuildDiffAttributeEdges(scope DiffScope) *storage.GraphQuery {
	q := fmt.Sprintf(`MATCH (n:%s)-[r:%s]->(a:%s)
WHERE %s
RETURN n.uuid AS node_uuid, n.kind AS kind, a.uuid AS attr_uuid, a.name AS attr_name, r AS edge`,
		LabelNode, EdgeHasAttribute, LabelAttribute,
		rangeClause("r"),
	)
	return &storage.GraphQuery{Name: "diff_attribute_edges", Query: q, Parameters: scope.params()}
}

// BuildDiffAttributePropertyEdges collects value, flag, source, and owner
// changes under every attribute.
func BuildDiffAttributePropertyEdges(scope DiffScope) *storage.GraphQuery {
	q := fmt.Sprintf(`MATCH (n:%s)-[:%s]->(a:%s)-[r:%s|%s|%s|%s|%s]->(t)
WHERE %s
RETURN DISTINCT n.uuid AS node_uuid, n.kind AS kind, a.uuid AS attr_uuid, a.name AS attr_name,
 type(r) AS prop_type, r AS edge, t.value AS target_value, t.uuid AS target_uuid`,
		LabelNode, EdgeHasAttribute, LabelAttribute,
		EdgeHasValue, EdgeIsVisible, EdgeIsProtected, EdgeHasSource, EdgeHasOwner,
		rangeClause("r"),
	)
	return &storage.GraphQuery{Name: "diff_attribute_property_edges", Query: q, Parameters: scope.params()}
}

// BuildDiffRelationshipEdges collects IS_RELATED changes: relationship
// endpoints added or tombstoned inside the window.
func BuildDiffRelationshipEdges(scope DiffScope) *storage.GraphQuery {
	q := fmt.Sprintf(`MATCH (e:%s)-[r:%s]->(rl:%s)
WHERE %s
RETURN e.uuid AS node_uuid, e.kind AS node_kind, rl.uuid AS rel_uuid, rl.name AS rel_name, r AS edge`,
		LabelNode, EdgeIsRelated, LabelRelationship,
		rangeClause("r"),
	)
	return &storage.GraphQuery{Name: "diff_relationship_edges", Query: q, Parameters: scope.params()}
}

// BuildDiffRelationshipPropertyEdges collects flag changes on relationship
// vertices, with the endpoint node ids for rendering.
func BuildDiffRelationshipPropertyEdges(scope DiffScope) *storage.GraphQuery {
	q := fmt.Sprintf(`MATCH (rl:%s)-[r:%s|%s]->(b:%s)
WHERE %s
OPTIONAL MATCH (p:%s)-[:%s]->(rl)
RETURN rl.uuid AS rel_uuid, rl.name AS rel_name, type(r) AS prop_type, r AS edge,
 b.value AS value, collect(DISTINCT p.uuid) AS peer_ids`,
		LabelRelationship, EdgeIsVisible, EdgeIsProtected, LabelBoolean,
		rangeClause("r"),
		LabelNode, EdgeIsRelated,
	)
	return &storage.GraphQuery{Name: "diff_relationship_property_edges", Query: q, Parameters: scope.params()}
}
