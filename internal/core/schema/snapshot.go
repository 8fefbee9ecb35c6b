package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/tributarydb/tributary/internal/errdefs"
)

// Snapshot is the complete, immutable schema of one branch. Once installed
// in the cache it is never mutated; updates build a new Snapshot and swap.
type Snapshot struct {
	nodes map[string]*NodeSchema
	hash  string
}

// NewSnapshot assembles a snapshot from node schemas, normalizing each and
// computing the content hash. Duplicate kinds are rejected.
func NewSnapshot(nodes []*NodeSchema) (*Snapshot, error) {
	byKind := make(map[string]*NodeSchema, len(nodes))
	for _, node := range nodes {
		n := node.Clone()
		if err := n.Normalize(); err != nil {
			return nil, err
		}
		if _, exists := byKind[n.Kind]; exists {
			return nil, errdefs.Newf(errdefs.KindValidation, "duplicate schema for kind %s", n.Kind)
		}
		byKind[n.Kind] = n
	}

	s := &Snapshot{nodes: byKind}
	s.hash = s.computeHash()
	return s, nil
}

// Get returns the node schema for a kind, or nil.
func (s *Snapshot) Get(kind string) *NodeSchema {
	return s.nodes[kind]
}

// Kinds returns all kinds in the snapshot, sorted.
func (s *Snapshot) Kinds() []string {
	kinds := make([]string, 0, len(s.nodes))
	for kind := range s.nodes {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Hash returns the content hash of the snapshot.
func (s *Snapshot) Hash() string {
	return s.hash
}

// Clone returns a deep copy with the same hash.
func (s *Snapshot) Clone() *Snapshot {
	nodes := make(map[string]*NodeSchema, len(s.nodes))
	for kind, node := range s.nodes {
		nodes[kind] = node.Clone()
	}
	return &Snapshot{nodes: nodes, hash: s.hash}
}

// RelationshipByIdentifier resolves a relationship schema from its storage
// identifier. When both endpoints declare the relationship the schema on
// the lexicographically first kind wins, keeping lookups deterministic.
func (s *Snapshot) RelationshipByIdentifier(identifier string) *RelationshipSchema {
	for _, kind := range s.Kinds() {
		if rel := s.nodes[kind].GetRelationshipByIdentifier(identifier); rel != nil {
			return rel
		}
	}
	return nil
}

// computeHash hashes the canonical JSON of the snapshot: kinds sorted, and
// attributes/relationships sorted by name within each kind.
func (s *Snapshot) computeHash() string {
	type canonicalNode struct {
		Kind          string               `json:"kind"`
		Name          string               `json:"name"`
		DefaultFilter string               `json:"default_filter,omitempty"`
		InheritFrom   []string             `json:"inherit_from,omitempty"`
		Attributes    []AttributeSchema    `json:"attributes,omitempty"`
		Relationships []RelationshipSchema `json:"relationships,omitempty"`
	}

	canonical := make([]canonicalNode, 0, len(s.nodes))
	for _, kind := range s.Kinds() {
		node := s.nodes[kind]
		attrs := append([]AttributeSchema(nil), node.Attributes...)
		sort.Slice(attrs, func(i, j int) bool { return attrs[i].Name < attrs[j].Name })
		rels := append([]RelationshipSchema(nil), node.Relationships...)
		sort.Slice(rels, func(i, j int) bool { return rels[i].Name < rels[j].Name })

		canonical = append(canonical, canonicalNode{
			Kind:          node.Kind,
			Name:          node.Name,
			DefaultFilter: node.DefaultFilter,
			InheritFrom:   node.InheritFrom,
			Attributes:    attrs,
			Relationships: rels,
		})
	}

	data, err := json.Marshal(canonical)
	if err != nil {
		// Marshalling plain structs cannot fail; guard anyway.
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
