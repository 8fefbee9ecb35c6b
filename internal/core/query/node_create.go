package query

import (
	"fmt"
	"strings"

	"github.com/tributarydb/tributary/internal/core/timestamp"
	"github.com/tributarydb/tributary/internal/storage"
)

// AttributeCreate describes one attribute of a node being created.
type AttributeCreate struct {
	UUID        string
	Name        string
	Value       interface{}
	IsVisible   bool
	IsProtected bool
	SourceID    string
	OwnerID     string
}

// RelationshipCreate describes one relationship of a node being created. The
// peer must already exist.
type RelationshipCreate struct {
	UUID        string
	Identifier  string
	PeerID      string
	IsVisible   bool
	IsProtected bool
}

// NodeCreate is the input for BuildNodeCreate.
type NodeCreate struct {
	UUID          string
	Kind          string
	Labels        []string
	Branch        string
	BranchLevel   int
	At            timestamp.Timestamp
	Attributes    []AttributeCreate
	Relationships []RelationshipCreate
}

// BuildNodeCreate renders the single statement that creates a node, its
// attributes with their value and flag edges, and its initial relationships.
// Values and flags are content-addressed: MERGE reuses an existing literal
// vertex, so two attributes holding "blue" share one AttributeValue.
func BuildNodeCreate(input NodeCreate) (*storage.GraphQuery, error) {
	labels, err := labelExpr(input.Labels)
	if err != nil {
		return nil, err
	}

	params := map[string]interface{}{
		"uuid":         input.UUID,
		"kind":         input.Kind,
		"branch":       input.Branch,
		"branch_level": input.BranchLevel,
		"at":           input.At.String(),
	}

	var matches, creates []string
	matches = append(matches, "MATCH (root:Root)")

	creates = append(creates,
		fmt.Sprintf("CREATE (n%s { uuid: $uuid, kind: $kind })", labels),
		fmt.Sprintf("CREATE (n)-[:%s %s]->(root)", EdgeIsPartOf, edgeProps(StatusActive)),
	)

	for i, attr := range input.Attributes {
		prefix := fmt.Sprintf("a%d", i)
		params[prefix+"_uuid"] = attr.UUID
		params[prefix+"_name"] = attr.Name
		params[prefix+"_value"] = NormalizeValue(attr.Value)
		params[prefix+"_is_visible"] = attr.IsVisible
		params[prefix+"_is_protected"] = attr.IsProtected

		creates = append(creates,
			fmt.Sprintf("CREATE (%s:%s { uuid: $%s_uuid, name: $%s_name })", prefix, LabelAttribute, prefix, prefix),
			fmt.Sprintf("CREATE (n)-[:%s %s]->(%s)", EdgeHasAttribute, edgeProps(StatusActive), prefix),
			fmt.Sprintf("MERGE (%sv:%s { value: $%s_value })", prefix, LabelAttributeValue, prefix),
			fmt.Sprintf("CREATE (%s)-[:%s %s]->(%sv)", prefix, EdgeHasValue, edgeProps(StatusActive), prefix),
			fmt.Sprintf("MERGE (%svis:%s { value: $%s_is_visible })", prefix, LabelBoolean, prefix),
			fmt.Sprintf("CREATE (%s)-[:%s %s]->(%svis)", prefix, EdgeIsVisible, edgeProps(StatusActive), prefix),
			fmt.Sprintf("MERGE (%sprot:%s { value: $%s_is_protected })", prefix, LabelBoolean, prefix),
			fmt.Sprintf("CREATE (%s)-[:%s %s]->(%sprot)", prefix, EdgeIsProtected, edgeProps(StatusActive), prefix),
		)

		if attr.SourceID != "" {
			params[prefix+"_source"] = attr.SourceID
			matches = append(matches, fmt.Sprintf("MATCH (%ssrc:%s { uuid: $%s_source })", prefix, LabelNode, prefix))
			creates = append(creates, fmt.Sprintf("CREATE (%s)-[:%s %s]->(%ssrc)", prefix, EdgeHasSource, edgeProps(StatusActive), prefix))
		}
		if attr.OwnerID != "" {
			params[prefix+"_owner"] = attr.OwnerID
			matches = append(matches, fmt.Sprintf("MATCH (%sown:%s { uuid: $%s_owner })", prefix, LabelNode, prefix))
			creates = append(creates, fmt.Sprintf("CREATE (%s)-[:%s %s]->(%sown)", prefix, EdgeHasOwner, edgeProps(StatusActive), prefix))
		}
	}

	for i, rel := range input.Relationships {
		prefix := fmt.Sprintf("rel%d", i)
		params[prefix+"_uuid"] = rel.UUID
		params[prefix+"_name"] = rel.Identifier
		params[prefix+"_peer"] = rel.PeerID
		params[prefix+"_is_visible"] = rel.IsVisible
		params[prefix+"_is_protected"] = rel.IsProtected

		matches = append(matches, fmt.Sprintf("MATCH (%speer:%s { uuid: $%s_peer })", prefix, LabelNode, prefix))
		creates = append(creates,
			fmt.Sprintf("CREATE (%s:%s { uuid: $%s_uuid, name: $%s_name })", prefix, LabelRelationship, prefix, prefix),
			fmt.Sprintf("CREATE (n)-[:%s %s]->(%s)<-[:%s %s]-(%speer)",
				EdgeIsRelated, edgeProps(StatusActive), prefix, EdgeIsRelated, edgeProps(StatusActive), prefix),
			fmt.Sprintf("MERGE (%svis:%s { value: $%s_is_visible })", prefix, LabelBoolean, prefix),
			fmt.Sprintf("CREATE (%s)-[:%s %s]->(%svis)", prefix, EdgeIsVisible, edgeProps(StatusActive), prefix),
			fmt.Sprintf("MERGE (%sprot:%s { value: $%s_is_protected })", prefix, LabelBoolean, prefix),
			fmt.Sprintf("CREATE (%s)-[:%s %s]->(%sprot)", prefix, EdgeIsProtected, edgeProps(StatusActive), prefix),
		)
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(matches, "\n"))
	sb.WriteString("\n")
	sb.WriteString(strings.Join(creates, "\n"))
	sb.WriteString("\nRETURN n.uuid AS uuid")

	return &storage.GraphQuery{
		Name:       "node_create",
		Query:      sb.String(),
		Parameters: params,
	}, nil
}
