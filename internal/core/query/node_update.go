package query

import (
	"fmt"

	"github.com/tributarydb/tributary/internal/core/timestamp"
	"github.com/tributarydb/tributary/internal/errdefs"
	"github.com/tributarydb/tributary/internal/storage"
)

// UpdateScope carries the write position shared by all update builders.
type UpdateScope struct {
	Branch      string
	BranchLevel int
	At          timestamp.Timestamp
}

func (s UpdateScope) params() map[string]interface{} {
	return map[string]interface{}{
		"branch":       s.Branch,
		"branch_level": s.BranchLevel,
		"at":           s.At.String(),
	}
}

// BuildAttributeValueUpdate closes the attribute's open HAS_VALUE edge on
// the write branch and links a new content-addressed value. Edges from other
// branches stay open; precedence handles the shadowing.
func BuildAttributeValueUpdate(scope UpdateScope, attributeID string, value interface{}) *storage.GraphQuery {
	params := scope.params()
	params["attr_uuid"] = attributeID
	params["value"] = NormalizeValue(value)

	q := fmt.Sprintf(`MATCH (a:%s { uuid: $attr_uuid })
OPTIONAL MATCH (a)-[r:%s]->(:%s)
WHERE r.branch = $branch AND r.to IS NULL
SET r.to = $at
WITH DISTINCT a
MERGE (av:%s { value: $value })
CREATE (a)-[:%s %s]->(av)`,
		LabelAttribute,
		EdgeHasValue, LabelAttributeValue,
		LabelAttributeValue,
		EdgeHasValue, edgeProps(StatusActive),
	)

	return &storage.GraphQuery{
		Name:       "attribute_value_update",
		Query:      q,
		Parameters: params,
	}
}

// BuildAttributeFlagUpdate rewires IS_VISIBLE or IS_PROTECTED to the Boolean
// vertex holding the new flag value.
func BuildAttributeFlagUpdate(scope UpdateScope, attributeID, edgeType string, value bool) (*storage.GraphQuery, error) {
	if edgeType != EdgeIsVisible && edgeType != EdgeIsProtected {
		return nil, errInvalidFlagEdge(edgeType)
	}

	params := scope.params()
	params["attr_uuid"] = attributeID
	params["value"] = value

	q := fmt.Sprintf(`MATCH (a:%s { uuid: $attr_uuid })
OPTIONAL MATCH (a)-[r:%s]->(:%s)
WHERE r.branch = $branch AND r.to IS NULL
SET r.to = $at
WITH DISTINCT a
MERGE (b:%s { value: $value })
CREATE (a)-[:%s %s]->(b)`,
		LabelAttribute,
		edgeType, LabelBoolean,
		LabelBoolean,
		edgeType, edgeProps(StatusActive),
	)

	return &storage.GraphQuery{
		Name:       "attribute_flag_update",
		Query:      q,
		Parameters: params,
	}, nil
}

// BuildAttributePeerUpdate repoints HAS_SOURCE or HAS_OWNER at another node.
func BuildAttributePeerUpdate(scope UpdateScope, attributeID, edgeType, peerID string) (*storage.GraphQuery, error) {
	if edgeType != EdgeHasSource && edgeType != EdgeHasOwner {
		return nil, errdefs.Newf(errdefs.KindValidation, "%q is not a peer edge", edgeType)
	}

	params := scope.params()
	params["attr_uuid"] = attributeID
	params["peer"] = peerID

	q := fmt.Sprintf(`MATCH (a:%s { uuid: $attr_uuid })
MATCH (peer:%s { uuid: $peer })
OPTIONAL MATCH (a)-[r:%s]->(:%s)
WHERE r.branch = $branch AND r.to IS NULL
SET r.to = $at
WITH DISTINCT a, peer
CREATE (a)-[:%s %s]->(peer)`,
		LabelAttribute,
		LabelNode,
		edgeType, LabelNode,
		edgeType, edgeProps(StatusActive),
	)

	return &storage.GraphQuery{
		Name:       "attribute_peer_update",
		Query:      q,
		Parameters: params,
	}, nil
}

// BuildAttributeAdd attaches a brand-new attribute to an existing node, used
// when the schema gained a field after the node was created.
func BuildAttributeAdd(scope UpdateScope, nodeID string, attr AttributeCreate) *storage.GraphQuery {
	params := scope.params()
	params["node_uuid"] = nodeID
	params["attr_uuid"] = attr.UUID
	params["attr_name"] = attr.Name
	params["value"] = NormalizeValue(attr.Value)
	params["is_visible"] = attr.IsVisible
	params["is_protected"] = attr.IsProtected

	q := fmt.Sprintf(`MATCH (n:%s { uuid: $node_uuid })
CREATE (a:%s { uuid: $attr_uuid, name: $attr_name })
CREATE (n)-[:%s %s]->(a)
MERGE (av:%s { value: $value })
CREATE (a)-[:%s %s]->(av)
MERGE (vis:%s { value: $is_visible })
CREATE (a)-[:%s %s]->(vis)
MERGE (prot:%s { value: $is_protected })
CREATE (a)-[:%s %s]->(prot)`,
		LabelNode,
		LabelAttribute,
		EdgeHasAttribute, edgeProps(StatusActive),
		LabelAttributeValue,
		EdgeHasValue, edgeProps(StatusActive),
		LabelBoolean,
		EdgeIsVisible, edgeProps(StatusActive),
		LabelBoolean,
		EdgeIsProtected, edgeProps(StatusActive),
	)

	return &storage.GraphQuery{
		Name:       "attribute_add",
		Query:      q,
		Parameters: params,
	}
}
