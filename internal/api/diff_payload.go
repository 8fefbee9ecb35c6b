package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/tributarydb/tributary/internal/core/branch"
	"github.com/tributarydb/tributary/internal/core/diff"
	"github.com/tributarydb/tributary/internal/core/node"
	"github.com/tributarydb/tributary/internal/core/timestamp"
	"github.com/tributarydb/tributary/internal/logging"
)

// DiffAction is the wire rendering of a change classification.
type DiffAction string

const (
	DiffActionAdded     DiffAction = "ADDED"
	DiffActionUpdated   DiffAction = "UPDATED"
	DiffActionRemoved   DiffAction = "REMOVED"
	DiffActionUnchanged DiffAction = "UNCHANGED"
)

func wireAction(a diff.Action) DiffAction {
	switch a {
	case diff.ActionAdded:
		return DiffActionAdded
	case diff.ActionUpdated:
		return DiffActionUpdated
	case diff.ActionRemoved:
		return DiffActionRemoved
	default:
		return DiffActionUnchanged
	}
}

// BranchDiffPropertyValue pairs the current value of a property with the
// value it had when the window opened.
type BranchDiffPropertyValue struct {
	New      interface{} `json:"new"`
	Previous interface{} `json:"previous"`
}

// BranchDiffProperty is one changed property edge on the wire.
type BranchDiffProperty struct {
	Branch    string                  `json:"branch"`
	Type      string                  `json:"type"`
	ChangedAt string                  `json:"changed_at,omitempty"`
	Action    DiffAction              `json:"action"`
	Value     BranchDiffPropertyValue `json:"value"`
}

// BranchDiffAttribute is one changed attribute on the wire.
type BranchDiffAttribute struct {
	Name       string               `json:"name"`
	ID         string               `json:"id"`
	ChangedAt  string               `json:"changed_at,omitempty"`
	Action     DiffAction           `json:"action"`
	Properties []BranchDiffProperty `json:"properties"`
}

// BranchDiffPeerNode is the opposite endpoint of a changed relationship.
type BranchDiffPeerNode struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	DisplayLabel string `json:"display_label,omitempty"`
}

// BranchDiffRelationship is one changed relationship as seen from one of its
// endpoints. Name is the schema relationship name on that endpoint's kind.
type BranchDiffRelationship struct {
	Branch     string               `json:"branch"`
	ID         string               `json:"id"`
	Identifier string               `json:"identifier"`
	Name       string               `json:"name"`
	Peer       BranchDiffPeerNode   `json:"peer"`
	Properties []BranchDiffProperty `json:"properties"`
	ChangedAt  string               `json:"changed_at,omitempty"`
	Action     DiffAction           `json:"action"`
}

// BranchDiffNode is one changed node on the wire.
type BranchDiffNode struct {
	Branch        string                   `json:"branch"`
	Kind          string                   `json:"kind"`
	ID            string                   `json:"id"`
	ChangedAt     string                   `json:"changed_at,omitempty"`
	Action        DiffAction               `json:"action"`
	Attributes    []BranchDiffAttribute    `json:"attributes"`
	Relationships []BranchDiffRelationship `json:"relationships"`
}

// DiffSummary renders the changes on a branch as the REST diff payload,
// keyed by the branch each change was recorded on. With branchOnly false the
// parent's in-window changes are included under the parent's name.
//
// Relationship changes are attached to both endpoint nodes. A node touched
// only through its relationships is synthesized with action UPDATED and an
// empty attribute list, keyed under the relationship edge's branch.
func (s *Service) DiffSummary(ctx context.Context, branchName string, from, to timestamp.Timestamp, branchOnly bool) (map[string][]*BranchDiffNode, error) {
	b, err := s.Branch(branchName)
	if err != nil {
		return nil, err
	}

	diffs := make([]*diff.Diff, 0, 2)
	branchDiff, err := s.differ.BranchDiff(ctx, b, from, to)
	if err != nil {
		return nil, err
	}
	diffs = append(diffs, branchDiff)

	if !branchOnly && !b.IsDefault {
		originDiff, err := s.differ.OriginDiff(ctx, b, from, to)
		if err != nil {
			return nil, err
		}
		diffs = append(diffs, originDiff)
	}

	response := map[string][]*BranchDiffNode{}
	for _, d := range diffs {
		s.appendDiffNodes(ctx, b, d, response)
	}
	return response, nil
}

func (s *Service) appendDiffNodes(ctx context.Context, b *branch.Branch, d *diff.Diff, response map[string][]*BranchDiffNode) {
	// Index the relationship changes per endpoint so each node diff can
	// pick up the relationships touching it.
	relsPerNode := map[string][]*diff.RelationshipDiff{}
	for _, rel := range d.RelationshipList() {
		for _, peer := range rel.Peers {
			relsPerNode[peer.ID] = append(relsPerNode[peer.ID], rel)
		}
	}

	labels := s.peerDisplayLabels(ctx, b, d)

	inDiff := map[string]bool{}
	for _, entry := range d.NodeList() {
		nodeDiff := &BranchDiffNode{
			Branch:        entry.Branch,
			Kind:          entry.Kind,
			ID:            entry.ID,
			ChangedAt:     entry.ChangedAt,
			Action:        wireAction(entry.Action),
			Attributes:    wireAttributes(entry.Attributes),
			Relationships: []BranchDiffRelationship{},
		}

		nodeSchema, err := s.schemas.Get(entry.Kind, entry.Branch, branch.DefaultBranchName)
		if err == nil {
			for _, rel := range relsPerNode[entry.ID] {
				if relSchema := nodeSchema.GetRelationshipByIdentifier(rel.Identifier); relSchema != nil {
					nodeDiff.Relationships = append(nodeDiff.Relationships,
						wireRelationship(entry.ID, relSchema.Name, rel, labels))
				}
			}
		}

		response[entry.Branch] = append(response[entry.Branch], nodeDiff)
		inDiff[entry.ID] = true
	}

	// Second pass: nodes touched only through a relationship. They are
	// synthesized only when the relationship resolves through the node's
	// schema, mirroring the first pass.
	for _, entry := range d.RelationshipList() {
		for _, peer := range entry.Peers {
			if inDiff[peer.ID] || peer.Kind == "" {
				continue
			}

			var nodeDiff *BranchDiffNode
			for _, rel := range relsPerNode[peer.ID] {
				nodeSchema, err := s.schemas.Get(peer.Kind, rel.Branch, branch.DefaultBranchName)
				if err != nil {
					continue
				}
				relSchema := nodeSchema.GetRelationshipByIdentifier(rel.Identifier)
				if relSchema == nil {
					continue
				}
				if nodeDiff == nil {
					nodeDiff = &BranchDiffNode{
						Branch:        rel.Branch,
						Kind:          peer.Kind,
						ID:            peer.ID,
						Action:        DiffActionUpdated,
						Attributes:    []BranchDiffAttribute{},
						Relationships: []BranchDiffRelationship{},
					}
				}
				nodeDiff.Relationships = append(nodeDiff.Relationships,
					wireRelationship(peer.ID, relSchema.Name, rel, labels))
			}
			if nodeDiff != nil {
				response[nodeDiff.Branch] = append(response[nodeDiff.Branch], nodeDiff)
				inDiff[peer.ID] = true
			}
		}
	}
}

// peerDisplayLabels resolves the display label of every relationship
// endpoint at the close of the window. Best effort: a failed read leaves the
// labels empty rather than failing the diff.
func (s *Service) peerDisplayLabels(ctx context.Context, b *branch.Branch, d *diff.Diff) map[string]string {
	ids := make([]string, 0, len(d.Relationships)*2)
	seen := map[string]bool{}
	for _, rel := range d.Relationships {
		for _, peer := range rel.Peers {
			if !seen[peer.ID] {
				seen[peer.ID] = true
				ids = append(ids, peer.ID)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	// When every peer kind resolves a schema, hydration narrows to the
	// display attributes; an unresolved kind falls back to a full read.
	var opts []node.ReadOption
	if fields, ok := s.displayFields(b, d); ok {
		if len(fields) == 0 {
			return nil
		}
		opts = append(opts, node.WithFields(fields...))
	}

	pos := node.ReadPosition{Branch: b, At: d.End}
	nodes, err := s.nodes.GetMany(ctx, pos, ids, opts...)
	if err != nil {
		s.logger.WarnWithFields("display label resolution failed",
			logging.Field("branch", b.Name),
			logging.Field("error", err.Error()),
		)
		return nil
	}

	labels := make(map[string]string, len(nodes))
	for _, n := range nodes {
		if label := displayLabel(n); label != "" {
			labels[n.ID] = label
		}
	}
	return labels
}

// displayFields collects the display attributes of every peer kind in the
// diff. ok is false when a peer's kind or schema is unknown.
func (s *Service) displayFields(b *branch.Branch, d *diff.Diff) ([]string, bool) {
	fields := []string{}
	seen := map[string]bool{}
	for _, rel := range d.Relationships {
		for _, peer := range rel.Peers {
			if peer.Kind == "" {
				return nil, false
			}
			nodeSchema, err := s.schemas.Get(peer.Kind, b.Name, branch.DefaultBranchName)
			if err != nil {
				return nil, false
			}
			for _, field := range nodeSchema.DisplayLabels {
				name := displayFieldName(field)
				if !seen[name] {
					seen[name] = true
					fields = append(fields, name)
				}
			}
		}
	}
	return fields, true
}

// displayLabel joins the node's display attributes. Entries follow the
// field__property convention; only the value property participates.
func displayLabel(n *node.Node) string {
	if n == nil || n.Schema == nil || len(n.Schema.DisplayLabels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(n.Schema.DisplayLabels))
	for _, field := range n.Schema.DisplayLabels {
		if v := n.AttributeValue(displayFieldName(field)); v != nil {
			parts = append(parts, fmt.Sprintf("%v", v))
		}
	}
	return strings.Join(parts, " ")
}

// displayFieldName strips the property suffix from a display label entry,
// name__value becoming name.
func displayFieldName(field string) string {
	if i := strings.Index(field, "__"); i > 0 {
		return field[:i]
	}
	return field
}

func wireAttributes(attrs []*diff.AttributeDiff) []BranchDiffAttribute {
	out := make([]BranchDiffAttribute, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, BranchDiffAttribute{
			Name:       attr.Name,
			ID:         attr.ID,
			ChangedAt:  attr.ChangedAt,
			Action:     wireAction(attr.Action),
			Properties: wireProperties(attr.Properties),
		})
	}
	return out
}

func wireProperties(props []*diff.PropertyDiff) []BranchDiffProperty {
	out := make([]BranchDiffProperty, 0, len(props))
	for _, prop := range props {
		out = append(out, BranchDiffProperty{
			Branch:    prop.Branch,
			Type:      prop.Type,
			ChangedAt: prop.ChangedAt,
			Action:    wireAction(prop.Action),
			Value: BranchDiffPropertyValue{
				New:      prop.Value,
				Previous: prop.Previous,
			},
		})
	}
	return out
}

func wireRelationship(nodeID, name string, rel *diff.RelationshipDiff, labels map[string]string) BranchDiffRelationship {
	var peer BranchDiffPeerNode
	if other := rel.OtherPeer(nodeID); other != nil {
		peer = BranchDiffPeerNode{
			ID:           other.ID,
			Kind:         other.Kind,
			DisplayLabel: labels[other.ID],
		}
	}
	return BranchDiffRelationship{
		Branch:     rel.Branch,
		ID:         rel.ID,
		Identifier: rel.Identifier,
		Name:       name,
		Peer:       peer,
		Properties: wireProperties(rel.Properties),
		ChangedAt:  rel.ChangedAt,
		Action:     wireAction(rel.Action),
	}
}
