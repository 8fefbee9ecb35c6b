// Package diff collects the changes recorded on a branch inside a time
// window and derives the modified paths used for conflict detection between
// a branch and its origin.
package diff

import (
	"sort"
	"strings"

	"github.com/tributarydb/tributary/internal/core/timestamp"
)

// Action classifies a change.
type Action string

const (
	ActionAdded   Action = "added"
	ActionRemoved Action = "removed"
	ActionUpdated Action = "updated"
)

// PropertyDiff is one changed property edge under an attribute or a
// relationship: the value it points at now, and the value it pointed at when
// the window opened.
type PropertyDiff struct {
	Branch    string      `json:"branch"`
	Type      string      `json:"type"`
	Action    Action      `json:"action"`
	Value     interface{} `json:"value"`
	Previous  interface{} `json:"previous,omitempty"`
	ChangedAt string      `json:"changed_at"`
}

// AttributeDiff is one attribute with membership or property changes.
type AttributeDiff struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Action     Action          `json:"action"`
	ChangedAt  string          `json:"changed_at,omitempty"`
	Properties []*PropertyDiff `json:"properties"`
}

// NodeDiff is one node with changes inside the window.
type NodeDiff struct {
	Branch     string           `json:"branch"`
	ID         string           `json:"id"`
	Kind       string           `json:"kind"`
	Action     Action           `json:"action"`
	ChangedAt  string           `json:"changed_at,omitempty"`
	Attributes []*AttributeDiff `json:"attributes"`
}

// Peer is one endpoint of a changed relationship. Kind is known when the
// endpoint's membership edge was part of the diff, empty otherwise.
type Peer struct {
	ID   string `json:"id"`
	Kind string `json:"kind,omitempty"`
}

// RelationshipDiff is one relationship with membership or property changes.
type RelationshipDiff struct {
	Branch     string          `json:"branch"`
	ID         string          `json:"id"`
	Identifier string          `json:"identifier"`
	Peers      []Peer          `json:"peers"`
	Action     Action          `json:"action"`
	ChangedAt  string          `json:"changed_at,omitempty"`
	Properties []*PropertyDiff `json:"properties"`
}

// Peer returns the peer with the given id, or nil.
func (r *RelationshipDiff) Peer(id string) *Peer {
	for i := range r.Peers {
		if r.Peers[i].ID == id {
			return &r.Peers[i]
		}
	}
	return nil
}

// OtherPeer returns the endpoint opposite to the given node, or nil when the
// relationship has no second endpoint in the diff.
func (r *RelationshipDiff) OtherPeer(id string) *Peer {
	for i := range r.Peers {
		if r.Peers[i].ID != id {
			return &r.Peers[i]
		}
	}
	return nil
}

// Diff is everything that changed on one branch inside a window.
type Diff struct {
	Branch string              `json:"branch"`
	Start  timestamp.Timestamp `json:"start"`
	End    timestamp.Timestamp `json:"end"`

	Nodes         map[string]*NodeDiff         `json:"nodes"`
	Relationships map[string]*RelationshipDiff `json:"relationships"`
}

// NodeList returns the node diffs sorted by node id.
func (d *Diff) NodeList() []*NodeDiff {
	out := make([]*NodeDiff, 0, len(d.Nodes))
	for _, n := range d.Nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RelationshipList returns the relationship diffs sorted by id.
func (d *Diff) RelationshipList() []*RelationshipDiff {
	out := make([]*RelationshipDiff, 0, len(d.Relationships))
	for _, r := range d.Relationships {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IsEmpty reports whether nothing changed in the window.
func (d *Diff) IsEmpty() bool {
	return len(d.Nodes) == 0 && len(d.Relationships) == 0
}

// ModifiedPath addresses one changed element. Node paths read
// node/<node>/<attribute>/<edge type>, relationship paths
// relationships/<identifier>/<relationship>/<edge type>.
type ModifiedPath struct {
	Category string
	First    string
	Second   string
	Property string
}

func (p ModifiedPath) String() string {
	return strings.Join([]string{p.Category, p.First, p.Second, p.Property}, "/")
}

// Paths returns the modified paths of the diff, sorted and deduplicated.
// Membership changes contribute the edge type that carried them; property
// changes contribute their own type.
func (d *Diff) Paths() []ModifiedPath {
	seen := map[string]ModifiedPath{}
	add := func(p ModifiedPath) {
		seen[p.String()] = p
	}

	for _, n := range d.Nodes {
		for _, attr := range n.Attributes {
			if attr.Action != ActionUpdated {
				add(ModifiedPath{Category: "node", First: n.ID, Second: attr.Name, Property: "HAS_ATTRIBUTE"})
			}
			for _, prop := range attr.Properties {
				add(ModifiedPath{Category: "node", First: n.ID, Second: attr.Name, Property: prop.Type})
			}
		}
	}
	for _, r := range d.Relationships {
		if r.Action != ActionUpdated {
			add(ModifiedPath{Category: "relationships", First: r.Identifier, Second: r.ID, Property: "IS_RELATED"})
		}
		for _, prop := range r.Properties {
			add(ModifiedPath{Category: "relationships", First: r.Identifier, Second: r.ID, Property: prop.Type})
		}
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]ModifiedPath, len(keys))
	for i, key := range keys {
		out[i] = seen[key]
	}
	return out
}

// Conflict is one path modified on both the branch and its origin since the
// branch point.
type Conflict struct {
	Path   ModifiedPath `json:"path"`
	Branch string       `json:"branch"`
	Origin string       `json:"origin"`
}

// Message renders the conflict the way it is reported to callers.
func (c Conflict) Message() string {
	return "Conflict detected at " + c.Path.String()
}

// Intersect returns the paths present in both diffs as conflicts.
func Intersect(branchDiff, originDiff *Diff) []Conflict {
	origin := map[string]struct{}{}
	for _, p := range originDiff.Paths() {
		origin[p.String()] = struct{}{}
	}

	var conflicts []Conflict
	for _, p := range branchDiff.Paths() {
		if _, ok := origin[p.String()]; ok {
			conflicts = append(conflicts, Conflict{
				Path:   p,
				Branch: branchDiff.Branch,
				Origin: originDiff.Branch,
			})
		}
	}
	return conflicts
}
