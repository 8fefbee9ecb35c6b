package node

import (
	"sort"

	"github.com/tributarydb/tributary/internal/storage"
)

// head is a node that survived root-edge reduction.
type head struct {
	ID        string
	Kind      string
	Branch    string
	CreatedAt string
}

type columns map[string]int

func indexColumns(result *storage.QueryResult) columns {
	idx := make(columns, len(result.Columns))
	for i, name := range result.Columns {
		idx[name] = i
	}
	return idx
}

func (c columns) cell(row []interface{}, name string) interface{} {
	i, ok := c[name]
	if !ok || i >= len(row) {
		return nil
	}
	return row[i]
}

func (c columns) str(row []interface{}, name string) string {
	value, _ := c.cell(row, name).(string)
	return value
}

func (c columns) boolean(row []interface{}, name string) bool {
	switch v := c.cell(row, name).(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

// reduceHeads folds the node-list result into the set of nodes alive at the
// query position. Every candidate IS_PART_OF edge competes; a winning
// tombstone removes the node.
func reduceHeads(result *storage.QueryResult) ([]head, error) {
	idx := indexColumns(result)

	type accumulator struct {
		kind       string
		candidates []candidate
	}
	byID := map[string]*accumulator{}

	for _, row := range result.Rows {
		id := idx.str(row, "uuid")
		if id == "" {
			continue
		}
		edge, err := ParseEdge(idx.cell(row, "root_edge"))
		if err != nil {
			return nil, err
		}
		acc, ok := byID[id]
		if !ok {
			acc = &accumulator{kind: idx.str(row, "kind")}
			byID[id] = acc
		}
		acc.candidates = append(acc.candidates, candidate{edge: edge})
	}

	heads := make([]head, 0, len(byID))
	for id, acc := range byID {
		winner := reduce(acc.candidates)
		if !winner.edge.IsActive() {
			continue
		}
		heads = append(heads, head{
			ID:        id,
			Kind:      acc.kind,
			Branch:    winner.edge.Branch,
			CreatedAt: winner.edge.From,
		})
	}
	sort.Slice(heads, func(i, j int) bool { return heads[i].ID < heads[j].ID })
	return heads, nil
}

type attrAccumulator struct {
	id        string
	presence  []candidate
	value     []candidate
	visible   []candidate
	protected []candidate
	source    []candidate
	owner     []candidate
}

// reduceAttributes folds the attribute hydration result into per-node
// attribute maps. Each property reduces independently: a branch can change
// the value while visibility still comes from the parent.
func reduceAttributes(result *storage.QueryResult) (map[string]map[string]*Attribute, error) {
	idx := indexColumns(result)

	type key struct{ nodeID, attrName string }
	accs := map[key]*attrAccumulator{}

	for _, row := range result.Rows {
		k := key{idx.str(row, "node_uuid"), idx.str(row, "attr_name")}
		if k.nodeID == "" || k.attrName == "" {
			continue
		}
		acc, ok := accs[k]
		if !ok {
			acc = &attrAccumulator{id: idx.str(row, "attr_uuid")}
			accs[k] = acc
		}

		presence, err := ParseEdge(idx.cell(row, "attr_edge"))
		if err != nil {
			return nil, err
		}
		acc.presence = append(acc.presence, candidate{edge: presence})

		if edge, err := ParseEdge(idx.cell(row, "value_edge")); err != nil {
			return nil, err
		} else if edge != nil {
			acc.value = append(acc.value, candidate{edge: edge, payload: idx.cell(row, "value")})
		}
		if edge, err := ParseEdge(idx.cell(row, "visible_edge")); err != nil {
			return nil, err
		} else if edge != nil {
			acc.visible = append(acc.visible, candidate{edge: edge, payload: idx.boolean(row, "is_visible")})
		}
		if edge, err := ParseEdge(idx.cell(row, "protected_edge")); err != nil {
			return nil, err
		} else if edge != nil {
			acc.protected = append(acc.protected, candidate{edge: edge, payload: idx.boolean(row, "is_protected")})
		}
		if edge, err := ParseEdge(idx.cell(row, "source_edge")); err != nil {
			return nil, err
		} else if edge != nil {
			acc.source = append(acc.source, candidate{edge: edge, payload: idx.str(row, "source_uuid")})
		}
		if edge, err := ParseEdge(idx.cell(row, "owner_edge")); err != nil {
			return nil, err
		} else if edge != nil {
			acc.owner = append(acc.owner, candidate{edge: edge, payload: idx.str(row, "owner_uuid")})
		}
	}

	out := map[string]map[string]*Attribute{}
	for k, acc := range accs {
		if !reduce(acc.presence).edge.IsActive() {
			continue
		}

		attr := &Attribute{ID: acc.id, Name: k.attrName}
		if winner := reduce(acc.value); winner.edge.IsActive() {
			attr.Value = winner.payload
			attr.Branch = winner.edge.Branch
			attr.UpdatedAt = winner.edge.From
		}
		if winner := reduce(acc.visible); winner.edge.IsActive() {
			attr.IsVisible, _ = winner.payload.(bool)
		}
		if winner := reduce(acc.protected); winner.edge.IsActive() {
			attr.IsProtected, _ = winner.payload.(bool)
		}
		if winner := reduce(acc.source); winner.edge.IsActive() {
			attr.SourceID, _ = winner.payload.(string)
		}
		if winner := reduce(acc.owner); winner.edge.IsActive() {
			attr.OwnerID, _ = winner.payload.(string)
		}

		nodeAttrs, ok := out[k.nodeID]
		if !ok {
			nodeAttrs = map[string]*Attribute{}
			out[k.nodeID] = nodeAttrs
		}
		nodeAttrs[k.attrName] = attr
	}
	return out, nil
}

type relAccumulator struct {
	identifier string
	peerID     string
	peerKind   string
	presence   []candidate
	visible    []candidate
	protected  []candidate
}

// reduceRelationships folds the relationship hydration result into per-node
// peer lists keyed by relationship identifier. A winning tombstone on either
// endpoint edge removes the relationship.
func reduceRelationships(result *storage.QueryResult) (map[string]map[string][]*RelationshipPeer, error) {
	idx := indexColumns(result)

	type key struct{ nodeID, relID string }
	accs := map[key]*relAccumulator{}

	for _, row := range result.Rows {
		k := key{idx.str(row, "node_uuid"), idx.str(row, "rel_uuid")}
		if k.nodeID == "" || k.relID == "" {
			continue
		}
		acc, ok := accs[k]
		if !ok {
			acc = &relAccumulator{
				identifier: idx.str(row, "rel_name"),
				peerID:     idx.str(row, "peer_uuid"),
				peerKind:   idx.str(row, "peer_kind"),
			}
			accs[k] = acc
		}

		for _, column := range []string{"out_edge", "in_edge"} {
			edge, err := ParseEdge(idx.cell(row, column))
			if err != nil {
				return nil, err
			}
			if edge != nil {
				acc.presence = append(acc.presence, candidate{edge: edge})
			}
		}
		if edge, err := ParseEdge(idx.cell(row, "visible_edge")); err != nil {
			return nil, err
		} else if edge != nil {
			acc.visible = append(acc.visible, candidate{edge: edge, payload: idx.boolean(row, "is_visible")})
		}
		if edge, err := ParseEdge(idx.cell(row, "protected_edge")); err != nil {
			return nil, err
		} else if edge != nil {
			acc.protected = append(acc.protected, candidate{edge: edge, payload: idx.boolean(row, "is_protected")})
		}
	}

	out := map[string]map[string][]*RelationshipPeer{}
	for k, acc := range accs {
		winner := reduce(acc.presence)
		if !winner.edge.IsActive() {
			continue
		}

		peer := &RelationshipPeer{
			ID:         k.relID,
			Identifier: acc.identifier,
			PeerID:     acc.peerID,
			PeerKind:   acc.peerKind,
			UpdatedAt:  winner.edge.From,
		}
		if w := reduce(acc.visible); w.edge.IsActive() {
			peer.IsVisible, _ = w.payload.(bool)
		}
		if w := reduce(acc.protected); w.edge.IsActive() {
			peer.IsProtected, _ = w.payload.(bool)
		}

		nodeRels, ok := out[k.nodeID]
		if !ok {
			nodeRels = map[string][]*RelationshipPeer{}
			out[k.nodeID] = nodeRels
		}
		nodeRels[acc.identifier] = append(nodeRels[acc.identifier], peer)
	}

	for _, nodeRels := range out {
		for identifier := range nodeRels {
			peers := nodeRels[identifier]
			sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
		}
	}
	return out, nil
}
