// Package schema holds the immutable, per-branch schema snapshots the node
// manager validates against. Snapshots are installed whole and swapped
// atomically; nothing in this package reads files or talks to the graph.
package schema

import (
	"sort"
	"strings"

	"github.com/tributarydb/tributary/internal/errdefs"
)

// Cardinality constrains how many peers a relationship may hold.
type Cardinality string

const (
	CardinalityOne  Cardinality = "one"
	CardinalityMany Cardinality = "many"
)

// AttributeSchema describes one attribute of a node kind.
type AttributeSchema struct {
	Name        string      `json:"name" yaml:"name"`
	Kind        string      `json:"kind" yaml:"kind"`
	Label       string      `json:"label,omitempty" yaml:"label,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Default     interface{} `json:"default_value,omitempty" yaml:"default_value,omitempty"`
	Unique      bool        `json:"unique,omitempty" yaml:"unique,omitempty"`
	Optional    bool        `json:"optional,omitempty" yaml:"optional,omitempty"`
	MaxLength   int         `json:"max_length,omitempty" yaml:"max_length,omitempty"`
}

// RelationshipSchema describes one relationship of a node kind.
type RelationshipSchema struct {
	Name        string      `json:"name" yaml:"name"`
	Peer        string      `json:"peer" yaml:"peer"`
	Label       string      `json:"label,omitempty" yaml:"label,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Identifier  string      `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	Cardinality Cardinality `json:"cardinality,omitempty" yaml:"cardinality,omitempty"`
	Optional    bool        `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// NodeSchema describes a node kind: its attributes, relationships, and
// labels.
type NodeSchema struct {
	Name          string               `json:"name" yaml:"name"`
	Kind          string               `json:"kind" yaml:"kind"`
	Description   string               `json:"description,omitempty" yaml:"description,omitempty"`
	DefaultFilter string               `json:"default_filter,omitempty" yaml:"default_filter,omitempty"`
	DisplayLabels []string             `json:"display_labels,omitempty" yaml:"display_labels,omitempty"`
	InheritFrom   []string             `json:"inherit_from,omitempty" yaml:"inherit_from,omitempty"`
	Attributes    []AttributeSchema    `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Relationships []RelationshipSchema `json:"relationships,omitempty" yaml:"relationships,omitempty"`
}

// GetAttribute returns the attribute schema by name, or nil.
func (n *NodeSchema) GetAttribute(name string) *AttributeSchema {
	for i := range n.Attributes {
		if n.Attributes[i].Name == name {
			return &n.Attributes[i]
		}
	}
	return nil
}

// GetRelationship returns the relationship schema by name, or nil.
func (n *NodeSchema) GetRelationship(name string) *RelationshipSchema {
	for i := range n.Relationships {
		if n.Relationships[i].Name == name {
			return &n.Relationships[i]
		}
	}
	return nil
}

// GetRelationshipByIdentifier returns the relationship schema with the
// given storage identifier, or nil.
func (n *NodeSchema) GetRelationshipByIdentifier(identifier string) *RelationshipSchema {
	for i := range n.Relationships {
		if n.Relationships[i].Identifier == identifier {
			return &n.Relationships[i]
		}
	}
	return nil
}

// FieldNames returns attribute and relationship names, attributes first.
func (n *NodeSchema) FieldNames() []string {
	names := make([]string, 0, len(n.Attributes)+len(n.Relationships))
	for i := range n.Attributes {
		names = append(names, n.Attributes[i].Name)
	}
	for i := range n.Relationships {
		names = append(names, n.Relationships[i].Name)
	}
	return names
}

// Labels returns the graph labels for nodes of this kind: the kind itself
// plus everything it inherits from.
func (n *NodeSchema) Labels() []string {
	labels := make([]string, 0, 1+len(n.InheritFrom))
	labels = append(labels, n.Kind)
	labels = append(labels, n.InheritFrom...)
	return labels
}

// MandatoryAttributeNames returns the names of non-optional attributes
// without a default.
func (n *NodeSchema) MandatoryAttributeNames() []string {
	var names []string
	for i := range n.Attributes {
		attr := &n.Attributes[i]
		if !attr.Optional && attr.Default == nil {
			names = append(names, attr.Name)
		}
	}
	return names
}

// Clone returns a deep copy.
func (n *NodeSchema) Clone() *NodeSchema {
	c := *n
	c.DisplayLabels = append([]string(nil), n.DisplayLabels...)
	c.InheritFrom = append([]string(nil), n.InheritFrom...)
	c.Attributes = append([]AttributeSchema(nil), n.Attributes...)
	c.Relationships = append([]RelationshipSchema(nil), n.Relationships...)
	return &c
}

// Normalize fills derived fields: lowercased names, generated relationship
// identifiers, and cardinality defaults. Called once when a snapshot is
// assembled.
func (n *NodeSchema) Normalize() error {
	if n.Kind == "" {
		return errdefs.New(errdefs.KindValidation, "node schema without a kind")
	}
	if n.Name == "" {
		n.Name = strings.ToLower(n.Kind)
	}
	for i := range n.Attributes {
		attr := &n.Attributes[i]
		if attr.Name == "" {
			return errdefs.Newf(errdefs.KindValidation, "attribute without a name on %s", n.Kind)
		}
		if !IsValidKind(attr.Kind) {
			return errdefs.Newf(errdefs.KindValidation, "%s is not a valid attribute kind on %s.%s", attr.Kind, n.Kind, attr.Name)
		}
	}
	for i := range n.Relationships {
		rel := &n.Relationships[i]
		if rel.Name == "" {
			return errdefs.Newf(errdefs.KindValidation, "relationship without a name on %s", n.Kind)
		}
		if rel.Peer == "" {
			return errdefs.Newf(errdefs.KindValidation, "relationship %s.%s without a peer", n.Kind, rel.Name)
		}
		if rel.Cardinality == "" {
			rel.Cardinality = CardinalityMany
		}
		if rel.Identifier == "" {
			rel.Identifier = GenerateRelationshipIdentifier(n.Kind, rel.Peer)
		}
	}
	return nil
}

// GenerateRelationshipIdentifier derives the storage identifier for a
// relationship between two kinds: the kinds sorted, lowercased, and joined
// with a double underscore. Both endpoints derive the same identifier.
func GenerateRelationshipIdentifier(kind, peer string) string {
	parts := []string{kind, peer}
	sort.Strings(parts)
	return strings.ToLower(parts[0] + "__" + parts[1])
}
