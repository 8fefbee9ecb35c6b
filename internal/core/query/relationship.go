package query

import (
	"fmt"

	"github.com/tributarydb/tributary/internal/storage"
)

// BuildRelationshipAdd links two existing nodes through a new Relationship
// vertex. Both IS_RELATED edges point into the vertex; the vertex carries
// the schema identifier so either endpoint can resolve the relationship.
func BuildRelationshipAdd(scope UpdateScope, rel RelationshipCreate, sourceID string) *storage.GraphQuery {
	params := scope.params()
	params["source"] = sourceID
	params["rel_uuid"] = rel.UUID
	params["identifier"] = rel.Identifier
	params["peer"] = rel.PeerID
	params["is_visible"] = rel.IsVisible
	params["is_protected"] = rel.IsProtected

	q := fmt.Sprintf(`MATCH (s:%s { uuid: $source })
MATCH (d:%s { uuid: $peer })
CREATE (rl:%s { uuid: $rel_uuid, name: $identifier })
CREATE (s)-[:%s %s]->(rl)<-[:%s %s]-(d)
MERGE (vis:%s { value: $is_visible })
CREATE (rl)-[:%s %s]->(vis)
MERGE (prot:%s { value: $is_protected })
CREATE (rl)-[:%s %s]->(prot)
RETURN rl.uuid AS uuid`,
		LabelNode,
		LabelNode,
		LabelRelationship,
		EdgeIsRelated, edgeProps(StatusActive), EdgeIsRelated, edgeProps(StatusActive),
		LabelBoolean,
		EdgeIsVisible, edgeProps(StatusActive),
		LabelBoolean,
		EdgeIsProtected, edgeProps(StatusActive),
	)

	return &storage.GraphQuery{
		Name:       "relationship_add",
		Query:      q,
		Parameters: params,
	}
}

// BuildRelationshipDelete tombstones one relationship: every endpoint edge
// visible at deletion time gets its same-branch open edge closed and a
// deleted duplicate created.
func BuildRelationshipDelete(scope DeleteScope, relationshipID string) *storage.GraphQuery {
	lineage, lineageParams := scope.Branch.QueryFilter([]string{"r"}, scope.At, false)
	params := mergeParams(scope.params(), lineageParams)
	params["rel_uuid"] = relationshipID

	q := fmt.Sprintf(`MATCH (e:%s)-[r:%s]->(rl:%s { uuid: $rel_uuid })
WHERE %s
 AND r.status = "active"
OPTIONAL MATCH (e)-[ro:%s]->(rl)
WHERE ro.branch = $branch AND ro.to IS NULL AND ro.status = "active"
SET ro.to = $at
WITH DISTINCT e, rl
CREATE (e)-[:%s %s]->(rl)`,
		LabelNode, EdgeIsRelated, LabelRelationship,
		lineage[0],
		EdgeIsRelated,
		EdgeIsRelated, edgeProps(StatusDeleted),
	)

	return &storage.GraphQuery{
		Name:       "relationship_delete",
		Query:      q,
		Parameters: params,
	}
}

// BuildRelationshipFlagUpdate rewires IS_VISIBLE or IS_PROTECTED on a
// relationship vertex.
func BuildRelationshipFlagUpdate(scope UpdateScope, relationshipID, edgeType string, value bool) (*storage.GraphQuery, error) {
	if edgeType != EdgeIsVisible && edgeType != EdgeIsProtected {
		return nil, errInvalidFlagEdge(edgeType)
	}

	params := scope.params()
	params["rel_uuid"] = relationshipID
	params["value"] = value

	q := fmt.Sprintf(`MATCH (rl:%s { uuid: $rel_uuid })
OPTIONAL MATCH (rl)-[r:%s]->(:%s)
WHERE r.branch = $branch AND r.to IS NULL
SET r.to = $at
WITH DISTINCT rl
MERGE (b:%s { value: $value })
CREATE (rl)-[:%s %s]->(b)`,
		LabelRelationship,
		edgeType, LabelBoolean,
		LabelBoolean,
		edgeType, edgeProps(StatusActive),
	)

	return &storage.GraphQuery{
		Name:       "relationship_flag_update",
		Query:      q,
		Parameters: params,
	}, nil
}
