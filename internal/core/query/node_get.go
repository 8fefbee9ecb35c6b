package query

import (
	"fmt"
	"strings"

	"github.com/tributarydb/tributary/internal/core/branch"
	"github.com/tributarydb/tributary/internal/core/timestamp"
	"github.com/tributarydb/tributary/internal/errdefs"
	"github.com/tributarydb/tributary/internal/storage"
)

// AttributeFilter narrows a node listing by an attribute property, e.g.
// name__value=volt or color__is_visible=false.
type AttributeFilter struct {
	Name     string
	Property string
	Value    interface{}
}

// RelationshipFilter narrows a node listing by an attribute of a related
// peer, e.g. owner__name__value=John.
type RelationshipFilter struct {
	Identifier    string
	AttributeName string
	Value         interface{}
}

// NodeListOptions selects candidate nodes. Results carry every lineage edge
// that matches; the caller reduces them by branch precedence, so a node
// deleted on the branch still shows up here with its tombstone.
type NodeListOptions struct {
	Branch          *branch.Branch
	At              timestamp.Timestamp
	EphemeralRebase bool

	Kind                string
	IDs                 []string
	AttributeFilters    []AttributeFilter
	RelationshipFilters []RelationshipFilter
}

// BuildNodeList renders the candidate query for node listings.
//
// Filter blocks only match active edges; a filter hit can still be shadowed
// by a branch-level change, so callers re-check conditions after hydration.
func BuildNodeList(opts NodeListOptions) (*storage.GraphQuery, error) {
	filters, params := opts.Branch.QueryFilter([]string{"r"}, opts.At, opts.EphemeralRebase)

	var sb strings.Builder
	sb.WriteString("MATCH (root:Root)<-[r:" + EdgeIsPartOf + "]-(n:" + LabelNode + ")\n")

	conditions := []string{filters[0]}
	if opts.Kind != "" {
		params["kind"] = opts.Kind
		conditions = append(conditions, "n.kind = $kind")
	}
	if len(opts.IDs) > 0 {
		params["ids"] = toInterfaceSlice(opts.IDs)
		conditions = append(conditions, "n.uuid IN $ids")
	}
	sb.WriteString("WHERE " + strings.Join(conditions, "\n AND ") + "\n")

	for i, filter := range opts.AttributeFilters {
		prefix := fmt.Sprintf("f%d", i)
		block, blockParams, err := attributeFilterBlock(prefix, filter, opts)
		if err != nil {
			return nil, err
		}
		sb.WriteString(block)
		mergeParams(params, blockParams)
	}

	for i, filter := range opts.RelationshipFilters {
		prefix := fmt.Sprintf("g%d", i)
		block, blockParams := relationshipFilterBlock(prefix, filter, opts)
		sb.WriteString(block)
		mergeParams(params, blockParams)
	}

	sb.WriteString("RETURN DISTINCT n.uuid AS uuid, n.kind AS kind, r AS root_edge\n")
	sb.WriteString("ORDER BY uuid")

	return &storage.GraphQuery{
		Name:       "node_list",
		Query:      sb.String(),
		Parameters: params,
	}, nil
}

func attributeFilterBlock(prefix string, filter AttributeFilter, opts NodeListOptions) (string, map[string]interface{}, error) {
	var edgeType, targetLabel string
	switch filter.Property {
	case "value":
		edgeType, targetLabel = EdgeHasValue, LabelAttributeValue
	case "is_visible":
		edgeType, targetLabel = EdgeIsVisible, LabelBoolean
	case "is_protected":
		edgeType, targetLabel = EdgeIsProtected, LabelBoolean
	default:
		return "", nil, errdefs.Newf(errdefs.KindValidation, "unsupported attribute filter property %q", filter.Property)
	}

	r1, r2 := prefix+"r1", prefix+"r2"
	lineage, params := opts.Branch.QueryFilter([]string{r1, r2}, opts.At, opts.EphemeralRebase)

	params[prefix+"_name"] = filter.Name
	params[prefix+"_value"] = NormalizeValue(filter.Value)

	block := fmt.Sprintf(
		"MATCH (n)-[%s:%s]->(%sa:%s { name: $%s_name })-[%s:%s]->(:%s { value: $%s_value })\n"+
			"WHERE %s\n AND %s\n AND %s.status = \"active\" AND %s.status = \"active\"\n",
		r1, EdgeHasAttribute, prefix, LabelAttribute, prefix,
		r2, edgeType, targetLabel, prefix,
		lineage[0], lineage[1], r1, r2,
	)
	return block, params, nil
}

func relationshipFilterBlock(prefix string, filter RelationshipFilter, opts NodeListOptions) (string, map[string]interface{}) {
	r1, r2, r3, r4 := prefix+"r1", prefix+"r2", prefix+"r3", prefix+"r4"
	lineage, params := opts.Branch.QueryFilter([]string{r1, r2, r3, r4}, opts.At, opts.EphemeralRebase)

	params[prefix+"_identifier"] = filter.Identifier
	params[prefix+"_attr"] = filter.AttributeName
	params[prefix+"_value"] = NormalizeValue(filter.Value)

	block := fmt.Sprintf(
		"MATCH (n)-[%s:%s]->(:%s { name: $%s_identifier })<-[%s:%s]-(%speer:%s)\n"+
			"MATCH (%speer)-[%s:%s]->(:%s { name: $%s_attr })-[%s:%s]->(:%s { value: $%s_value })\n"+
			"WHERE %s\n AND %s\n AND %s\n AND %s\n"+
			" AND %s.status = \"active\" AND %s.status = \"active\" AND %s.status = \"active\" AND %s.status = \"active\"\n",
		r1, EdgeIsRelated, LabelRelationship, prefix, r2, EdgeIsRelated, prefix, LabelNode,
		prefix, r3, EdgeHasAttribute, LabelAttribute, prefix, r4, EdgeHasValue, LabelAttributeValue, prefix,
		lineage[0], lineage[1], lineage[2], lineage[3],
		r1, r2, r3, r4,
	)
	return block, params
}

// HydrateOptions selects the nodes whose attributes or relationships are
// being fetched. Fields narrows the attribute query to the named attributes;
// source and owner pointers cost an extra traversal each, so they are only
// fetched on request.
type HydrateOptions struct {
	Branch          *branch.Branch
	At              timestamp.Timestamp
	EphemeralRebase bool
	IDs             []string

	Fields        []string
	IncludeSource bool
	IncludeOwner  bool
}

// BuildAttributeList renders the attribute hydration query. Every candidate
// edge for every property comes back as its own row; reduction by branch
// precedence happens in the caller.
func BuildAttributeList(opts HydrateOptions) *storage.GraphQuery {
	rels := []string{"r1", "r2", "r3", "r4"}
	if opts.IncludeSource {
		rels = append(rels, "r5")
	}
	if opts.IncludeOwner {
		rels = append(rels, "r6")
	}
	lineage, params := opts.Branch.QueryFilter(rels, opts.At, opts.EphemeralRebase)
	params["ids"] = toInterfaceSlice(opts.IDs)

	var sb strings.Builder
	fmt.Fprintf(&sb, "MATCH (n:%s)-[r1:%s]->(a:%s)\nWHERE n.uuid IN $ids\n AND %s\n",
		LabelNode, EdgeHasAttribute, LabelAttribute, lineage[0])
	if len(opts.Fields) > 0 {
		params["fields"] = toInterfaceSlice(opts.Fields)
		sb.WriteString(" AND a.name IN $fields\n")
	}
	fmt.Fprintf(&sb, "OPTIONAL MATCH (a)-[r2:%s]->(av:%s)\nWHERE %s\n",
		EdgeHasValue, LabelAttributeValue, lineage[1])
	fmt.Fprintf(&sb, "OPTIONAL MATCH (a)-[r3:%s]->(vis:%s)\nWHERE %s\n",
		EdgeIsVisible, LabelBoolean, lineage[2])
	fmt.Fprintf(&sb, "OPTIONAL MATCH (a)-[r4:%s]->(prot:%s)\nWHERE %s\n",
		EdgeIsProtected, LabelBoolean, lineage[3])

	returns := []string{
		"n.uuid AS node_uuid", "a.uuid AS attr_uuid", "a.name AS attr_name", "r1 AS attr_edge",
		"av.value AS value", "r2 AS value_edge",
		"vis.value AS is_visible", "r3 AS visible_edge",
		"prot.value AS is_protected", "r4 AS protected_edge",
	}
	next := 4
	if opts.IncludeSource {
		fmt.Fprintf(&sb, "OPTIONAL MATCH (a)-[r5:%s]->(src:%s)\nWHERE %s\n",
			EdgeHasSource, LabelNode, lineage[next])
		next++
		returns = append(returns, "src.uuid AS source_uuid", "r5 AS source_edge")
	}
	if opts.IncludeOwner {
		fmt.Fprintf(&sb, "OPTIONAL MATCH (a)-[r6:%s]->(own:%s)\nWHERE %s\n",
			EdgeHasOwner, LabelNode, lineage[next])
		returns = append(returns, "own.uuid AS owner_uuid", "r6 AS owner_edge")
	}
	sb.WriteString("RETURN " + strings.Join(returns, ",\n "))

	return &storage.GraphQuery{
		Name:       "attribute_list",
		Query:      sb.String(),
		Parameters: params,
	}
}

// BuildRelationshipList renders the relationship hydration query for a set
// of nodes.
func BuildRelationshipList(opts HydrateOptions) *storage.GraphQuery {
	rels := []string{"r1", "r2", "r3", "r4"}
	lineage, params := opts.Branch.QueryFilter(rels, opts.At, opts.EphemeralRebase)
	params["ids"] = toInterfaceSlice(opts.IDs)

	q := fmt.Sprintf(`MATCH (n:%s)-[r1:%s]->(rl:%s)<-[r2:%s]-(peer:%s)
WHERE n.uuid IN $ids
 AND %s
 AND %s
OPTIONAL MATCH (rl)-[r3:%s]->(vis:%s)
WHERE %s
OPTIONAL MATCH (rl)-[r4:%s]->(prot:%s)
WHERE %s
RETURN n.uuid AS node_uuid, rl.uuid AS rel_uuid, rl.name AS rel_name,
 peer.uuid AS peer_uuid, peer.kind AS peer_kind,
 r1 AS out_edge, r2 AS in_edge,
 vis.value AS is_visible, r3 AS visible_edge,
 prot.value AS is_protected, r4 AS protected_edge`,
		LabelNode, EdgeIsRelated, LabelRelationship, EdgeIsRelated, LabelNode,
		lineage[0], lineage[1],
		EdgeIsVisible, LabelBoolean, lineage[2],
		EdgeIsProtected, LabelBoolean, lineage[3],
	)

	return &storage.GraphQuery{
		Name:       "relationship_list",
		Query:      q,
		Parameters: params,
	}
}

func toInterfaceSlice(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, value := range values {
		out[i] = value
	}
	return out
}
