package query

import (
	"fmt"
	"strings"

	"github.com/tributarydb/tributary/internal/core/timestamp"
	"github.com/tributarydb/tributary/internal/errdefs"
	"github.com/tributarydb/tributary/internal/storage"
)

var knownEdgeTypes = map[string]bool{
	EdgeIsPartOf:     true,
	EdgeHasAttribute: true,
	EdgeHasValue:     true,
	EdgeIsVisible:    true,
	EdgeIsProtected:  true,
	EdgeHasSource:    true,
	EdgeHasOwner:     true,
	EdgeIsRelated:    true,
}

// MergeEndpoint identifies one end of an edge being replayed onto the target
// branch. Identity vertices carry a uuid; literal vertices (AttributeValue,
// Boolean) carry their value; Root carries neither.
type MergeEndpoint struct {
	Labels []string
	UUID   string
	Value  interface{}
}

// structuralLabels in matching priority: literal labels first so a vertex
// reached through MERGE resolves by value, Node last because kind labels ride
// along with it.
var structuralLabels = []string{
	LabelRoot,
	LabelAttributeValue,
	LabelBoolean,
	LabelAttribute,
	LabelRelationship,
	LabelBranch,
	LabelNode,
}

func (e MergeEndpoint) structuralLabel() (string, error) {
	set := map[string]bool{}
	for _, label := range e.Labels {
		set[label] = true
	}
	for _, label := range structuralLabels {
		if set[label] {
			return label, nil
		}
	}
	return "", errdefs.Newf(errdefs.KindUnknown, "edge endpoint has no structural label: %v", e.Labels)
}

// isLiteral reports whether the endpoint is content-addressed.
func (e MergeEndpoint) isLiteral() bool {
	label, err := e.structuralLabel()
	if err != nil {
		return false
	}
	return label == LabelAttributeValue || label == LabelBoolean
}

// match renders a MATCH/MERGE clause binding varName to this endpoint and
// registers its parameters under prefix.
func (e MergeEndpoint) match(varName, prefix string, params map[string]interface{}) (string, error) {
	label, err := e.structuralLabel()
	if err != nil {
		return "", err
	}
	switch {
	case label == LabelRoot:
		return fmt.Sprintf("MATCH (%s:%s)", varName, LabelRoot), nil
	case e.isLiteral():
		params[prefix+"_value"] = NormalizeValue(e.Value)
		return fmt.Sprintf("MERGE (%s:%s { value: $%s_value })", varName, label, prefix), nil
	default:
		if e.UUID == "" {
			return "", errdefs.Newf(errdefs.KindUnknown, "%s endpoint is missing its uuid", label)
		}
		params[prefix+"_uuid"] = e.UUID
		return fmt.Sprintf("MATCH (%s:%s { uuid: $%s_uuid })", varName, label, prefix), nil
	}
}

// whereFragment renders an inline pattern fragment for close queries, where
// the endpoint is matched rather than created.
func (e MergeEndpoint) pattern(varName, prefix string, params map[string]interface{}) (string, error) {
	label, err := e.structuralLabel()
	if err != nil {
		return "", err
	}
	switch {
	case label == LabelRoot:
		return fmt.Sprintf("(%s:%s)", varName, LabelRoot), nil
	case e.isLiteral():
		params[prefix+"_value"] = NormalizeValue(e.Value)
		return fmt.Sprintf("(%s:%s { value: $%s_value })", varName, label, prefix), nil
	default:
		if e.UUID == "" {
			return "", errdefs.Newf(errdefs.KindUnknown, "%s endpoint is missing its uuid", label)
		}
		params[prefix+"_uuid"] = e.UUID
		return fmt.Sprintf("(%s:%s { uuid: $%s_uuid })", varName, label, prefix), nil
	}
}

// BuildMergeOpenEdges collects every open edge on the branch, with enough
// endpoint identity to replay it.
func BuildMergeOpenEdges(branchName string) *storage.GraphQuery {
	return &storage.GraphQuery{
		Name: "merge_open_edges",
		Query: `MATCH (s)-[r]->(d)
WHERE r.branch = $branch AND r.to IS NULL
RETURN labels(s) AS source_labels, s.uuid AS source_uuid, s.value AS source_value,
 type(r) AS edge_type, r AS edge,
 labels(d) AS dest_labels, d.uuid AS dest_uuid, d.value AS dest_value`,
		Parameters: map[string]interface{}{
			"branch": branchName,
		},
	}
}

// BuildMergeCloseEdgeFrom closes the open active edge of the given type
// leaving source on the target branch, whatever it points at. Used before
// replaying single-target properties such as HAS_VALUE.
func BuildMergeCloseEdgeFrom(targetBranch string, at timestamp.Timestamp, edgeType string, source MergeEndpoint) (*storage.GraphQuery, error) {
	if !knownEdgeTypes[edgeType] {
		return nil, errdefs.Newf(errdefs.KindUnknown, "unknown edge type %q", edgeType)
	}

	params := map[string]interface{}{
		"target_branch": targetBranch,
		"at":            at.String(),
	}
	sourcePattern, err := source.pattern("s", "s", params)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`MATCH %s-[r:%s]->()
WHERE r.branch = $target_branch AND r.to IS NULL AND r.status = "active"
SET r.to = $at`,
		sourcePattern, edgeType,
	)

	return &storage.GraphQuery{
		Name:       "merge_close_edge_from",
		Query:      q,
		Parameters: params,
	}, nil
}

// BuildMergeCloseEdgeBetween closes the open active edge of the given type
// between two specific endpoints on the target branch. Used before replaying
// a tombstone.
func BuildMergeCloseEdgeBetween(targetBranch string, at timestamp.Timestamp, edgeType string, source, dest MergeEndpoint) (*storage.GraphQuery, error) {
	if !knownEdgeTypes[edgeType] {
		return nil, errdefs.Newf(errdefs.KindUnknown, "unknown edge type %q", edgeType)
	}

	params := map[string]interface{}{
		"target_branch": targetBranch,
		"at":            at.String(),
	}
	sourcePattern, err := source.pattern("s", "s", params)
	if err != nil {
		return nil, err
	}
	destPattern, err := dest.pattern("d", "d", params)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`MATCH %s-[r:%s]->%s
WHERE r.branch = $target_branch AND r.to IS NULL AND r.status = "active"
SET r.to = $at`,
		sourcePattern, edgeType, destPattern,
	)

	return &storage.GraphQuery{
		Name:       "merge_close_edge_between",
		Query:      q,
		Parameters: params,
	}, nil
}

// BuildMergeCreateEdge replays one branch edge onto the target branch at
// level 1. Literal endpoints are MERGEd so a value first seen on the branch
// gains its vertex on demand.
func BuildMergeCreateEdge(targetBranch string, at timestamp.Timestamp, edgeType, status string, source, dest MergeEndpoint) (*storage.GraphQuery, error) {
	if !knownEdgeTypes[edgeType] {
		return nil, errdefs.Newf(errdefs.KindUnknown, "unknown edge type %q", edgeType)
	}
	if status != StatusActive && status != StatusDeleted {
		return nil, errdefs.Newf(errdefs.KindUnknown, "unknown edge status %q", status)
	}

	params := map[string]interface{}{
		"target_branch": targetBranch,
		"at":            at.String(),
		"status":        status,
	}
	sourceClause, err := source.match("s", "s", params)
	if err != nil {
		return nil, err
	}
	destClause, err := dest.match("d", "d", params)
	if err != nil {
		return nil, err
	}

	// MATCH clauses must precede MERGE clauses.
	first, second := sourceClause, destClause
	if strings.HasPrefix(first, "MERGE") && strings.HasPrefix(second, "MATCH") {
		first, second = second, first
	}

	q := fmt.Sprintf(`%s
%s
CREATE (s)-[:%s { branch: $target_branch, branch_level: 1, from: $at, status: $status }]->(d)`,
		first, second, edgeType,
	)

	return &storage.GraphQuery{
		Name:       "merge_create_edge",
		Query:      q,
		Parameters: params,
	}, nil
}
