package node

import (
	"sort"

	"github.com/tributarydb/tributary/internal/core/query"
	"github.com/tributarydb/tributary/internal/core/schema"
)

// Attribute is one hydrated attribute of a node: the winning value and
// property flags after branch precedence.
type Attribute struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Value       interface{} `json:"value"`
	IsVisible   bool        `json:"is_visible"`
	IsProtected bool        `json:"is_protected"`
	SourceID    string      `json:"source,omitempty"`
	OwnerID     string      `json:"owner,omitempty"`

	// Branch and UpdatedAt come from the winning HAS_VALUE edge: where the
	// current value was written and when.
	Branch    string `json:"branch,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// RelationshipPeer is one hydrated relationship endpoint seen from a node.
type RelationshipPeer struct {
	ID          string `json:"id"`
	Identifier  string `json:"identifier"`
	PeerID      string `json:"peer"`
	PeerKind    string `json:"peer_kind"`
	IsVisible   bool   `json:"is_visible"`
	IsProtected bool   `json:"is_protected"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// Node is a hydrated graph node at a branch and time.
type Node struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`

	// Branch the node was read on; CreatedAt is the from of the winning
	// IS_PART_OF edge.
	Branch    string `json:"branch"`
	CreatedAt string `json:"created_at,omitempty"`

	Schema        *schema.NodeSchema           `json:"-"`
	Attributes    map[string]*Attribute        `json:"attributes"`
	Relationships map[string][]*RelationshipPeer `json:"relationships"`
}

// Attribute returns the named attribute, or nil.
func (n *Node) Attribute(name string) *Attribute {
	return n.Attributes[name]
}

// Peers returns the peers of the named schema relationship.
func (n *Node) Peers(relName string) []*RelationshipPeer {
	if n.Schema == nil {
		return nil
	}
	rel := n.Schema.GetRelationship(relName)
	if rel == nil {
		return nil
	}
	return n.Relationships[rel.Identifier]
}

// AttributeValue returns the value of the named attribute, or nil when the
// attribute is absent. The stored NULL literal reads back as nil.
func (n *Node) AttributeValue(name string) interface{} {
	attr := n.Attributes[name]
	if attr == nil || attr.Value == query.NullValue {
		return nil
	}
	return attr.Value
}

// ToMap renders the node as a plain payload for transport.
func (n *Node) ToMap() map[string]interface{} {
	attrs := make(map[string]interface{}, len(n.Attributes))
	for name, attr := range n.Attributes {
		value := attr.Value
		if value == query.NullValue {
			value = nil
		}
		entry := map[string]interface{}{
			"id":           attr.ID,
			"value":        value,
			"is_visible":   attr.IsVisible,
			"is_protected": attr.IsProtected,
		}
		if attr.SourceID != "" {
			entry["source"] = attr.SourceID
		}
		if attr.OwnerID != "" {
			entry["owner"] = attr.OwnerID
		}
		if attr.UpdatedAt != "" {
			entry["updated_at"] = attr.UpdatedAt
		}
		attrs[name] = entry
	}

	rels := map[string]interface{}{}
	identifiers := make([]string, 0, len(n.Relationships))
	for identifier := range n.Relationships {
		identifiers = append(identifiers, identifier)
	}
	sort.Strings(identifiers)
	for _, identifier := range identifiers {
		peers := n.Relationships[identifier]
		entries := make([]map[string]interface{}, 0, len(peers))
		for _, peer := range peers {
			entries = append(entries, map[string]interface{}{
				"id":           peer.ID,
				"peer":         peer.PeerID,
				"peer_kind":    peer.PeerKind,
				"is_visible":   peer.IsVisible,
				"is_protected": peer.IsProtected,
			})
		}
		key := identifier
		if n.Schema != nil {
			if rel := n.Schema.GetRelationshipByIdentifier(identifier); rel != nil {
				key = rel.Name
			}
		}
		rels[key] = entries
	}

	return map[string]interface{}{
		"id":            n.ID,
		"kind":          n.Kind,
		"branch":        n.Branch,
		"attributes":    attrs,
		"relationships": rels,
	}
}
