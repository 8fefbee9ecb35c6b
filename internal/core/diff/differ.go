package diff

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/tributarydb/tributary/internal/core/branch"
	"github.com/tributarydb/tributary/internal/core/node"
	"github.com/tributarydb/tributary/internal/core/query"
	"github.com/tributarydb/tributary/internal/core/timestamp"
	"github.com/tributarydb/tributary/internal/errdefs"
	"github.com/tributarydb/tributary/internal/logging"
	"github.com/tributarydb/tributary/internal/storage"
)

// Differ computes branch diffs from the edge history in the graph.
type Differ struct {
	client storage.Client
	logger *logging.Logger
}

// NewDiffer creates a Differ on the given storage client.
func NewDiffer(client storage.Client) *Differ {
	return &Differ{
		client: client,
		logger: logging.GetLogger("diff"),
	}
}

// BranchDiff collects the changes recorded on the branch itself. The window
// defaults to [branch creation, now]; an explicit start earlier than the
// branch creation is clamped, since nothing can precede it.
func (d *Differ) BranchDiff(ctx context.Context, b *branch.Branch, from, to timestamp.Timestamp) (*Diff, error) {
	start := from
	if start.IsZero() {
		start = b.CreatedAt
	}
	start = laterOf(start, b.CreatedAt)
	return d.Calculate(ctx, b.Name, start, endOrNow(to))
}

// OriginDiff collects the changes recorded on the branch's parent since the
// branch point. The window defaults to [branched_from, now]; an explicit
// start earlier than the branch point is clamped, since history before it is
// shared.
func (d *Differ) OriginDiff(ctx context.Context, b *branch.Branch, from, to timestamp.Timestamp) (*Diff, error) {
	if b.IsDefault {
		return nil, errdefs.Newf(errdefs.KindValidation, "the default branch has no origin to diff against")
	}
	start := from
	if start.IsZero() {
		start = b.BranchedFrom
	}
	start = laterOf(start, b.BranchedFrom)
	return d.Calculate(ctx, b.Parent, start, endOrNow(to))
}

// Conflicts returns the modified paths touched on both the branch and its
// origin since the branch point. An empty result means the branch can merge
// without overwriting origin changes.
func (d *Differ) Conflicts(ctx context.Context, b *branch.Branch, from, to timestamp.Timestamp) ([]Conflict, error) {
	if b.IsDefault {
		return nil, errdefs.Newf(errdefs.KindValidation, "the default branch has no origin to diff against")
	}

	var branchDiff, originDiff *Diff

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		branchDiff, err = d.BranchDiff(gctx, b, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		originDiff, err = d.OriginDiff(gctx, b, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	conflicts := Intersect(branchDiff, originDiff)
	if len(conflicts) > 0 {
		d.logger.InfoWithFields("conflicting changes between branch and origin",
			logging.Field("branch", b.Name),
			logging.Field("origin", b.Parent),
			logging.Field("conflicts", len(conflicts)),
		)
	}
	return conflicts, nil
}

// Calculate collects every edge change on one branch inside [start, end] and
// folds the rows into a Diff. The five edge classes are fetched concurrently.
func (d *Differ) Calculate(ctx context.Context, branchName string, start, end timestamp.Timestamp) (*Diff, error) {
	scope := query.DiffScope{Branch: branchName, Start: start, End: end}

	var (
		nodeEdges *storage.QueryResult
		attrEdges *storage.QueryResult
		attrProps *storage.QueryResult
		relEdges  *storage.QueryResult
		relProps  *storage.QueryResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		nodeEdges, err = d.client.ExecuteRead(gctx, query.BuildDiffNodeEdges(scope))
		return err
	})
	g.Go(func() error {
		var err error
		attrEdges, err = d.client.ExecuteRead(gctx, query.BuildDiffAttributeEdges(scope))
		return err
	})
	g.Go(func() error {
		var err error
		attrProps, err = d.client.ExecuteRead(gctx, query.BuildDiffAttributePropertyEdges(scope))
		return err
	})
	g.Go(func() error {
		var err error
		relEdges, err = d.client.ExecuteRead(gctx, query.BuildDiffRelationshipEdges(scope))
		return err
	})
	g.Go(func() error {
		var err error
		relProps, err = d.client.ExecuteRead(gctx, query.BuildDiffRelationshipPropertyEdges(scope))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c := newCollector(branchName)
	if err := c.collectNodeEdges(nodeEdges); err != nil {
		return nil, err
	}
	if err := c.collectAttributeEdges(attrEdges); err != nil {
		return nil, err
	}
	if err := c.collectAttributeProperties(attrProps); err != nil {
		return nil, err
	}
	if err := c.collectRelationshipEdges(relEdges); err != nil {
		return nil, err
	}
	if err := c.collectRelationshipProperties(relProps); err != nil {
		return nil, err
	}

	diff := c.finalize(start, end)
	d.logger.DebugWithFields("diff calculated",
		logging.Field("branch", branchName),
		logging.Field("nodes", len(diff.Nodes)),
		logging.Field("relationships", len(diff.Relationships)),
	)
	return diff, nil
}

func endOrNow(to timestamp.Timestamp) timestamp.Timestamp {
	if to.IsZero() {
		return timestamp.Now()
	}
	return to
}

func laterOf(a, b timestamp.Timestamp) timestamp.Timestamp {
	if a.Before(b) {
		return b
	}
	return a
}

// collector folds raw edge rows into diff entries. Rows are processed in
// ascending edge order so the last event inside the window decides the
// action: a node added and then deleted ends up removed.
type collector struct {
	branch string
	nodes  map[string]*NodeDiff
	rels   map[string]*RelationshipDiff
}

func newCollector(branchName string) *collector {
	return &collector{
		branch: branchName,
		nodes:  map[string]*NodeDiff{},
		rels:   map[string]*RelationshipDiff{},
	}
}

func (c *collector) node(id, kind string) *NodeDiff {
	if entry, ok := c.nodes[id]; ok {
		return entry
	}
	entry := &NodeDiff{Branch: c.branch, ID: id, Kind: kind}
	c.nodes[id] = entry
	return entry
}

func (c *collector) attribute(n *NodeDiff, id, name string) *AttributeDiff {
	for _, attr := range n.Attributes {
		if attr.ID == id {
			return attr
		}
	}
	attr := &AttributeDiff{ID: id, Name: name}
	n.Attributes = append(n.Attributes, attr)
	return attr
}

func (c *collector) relationship(id, identifier string) *RelationshipDiff {
	if entry, ok := c.rels[id]; ok {
		return entry
	}
	entry := &RelationshipDiff{Branch: c.branch, ID: id, Identifier: identifier}
	c.rels[id] = entry
	return entry
}

type membershipRow struct {
	ids  []string
	edge *node.Edge
}

func parseMembershipRows(result *storage.QueryResult, idColumns []string, edgeColumn string) ([]membershipRow, error) {
	cols := indexColumns(result.Columns)
	rows := make([]membershipRow, 0, len(result.Rows))
	for _, raw := range result.Rows {
		edge, err := node.ParseEdge(cols.cell(raw, edgeColumn))
		if err != nil {
			return nil, err
		}
		if edge == nil {
			continue
		}
		ids := make([]string, len(idColumns))
		for i, name := range idColumns {
			ids[i] = cols.str(raw, name)
		}
		rows = append(rows, membershipRow{ids: ids, edge: edge})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].edge.From < rows[j].edge.From })
	return rows, nil
}

// apply folds one membership edge into an entry: a tombstone marks it
// removed, an open active edge marks it added, a closed active edge only
// proves the entry existed before the change that closed it.
func applyMembership(edge *node.Edge, action *Action, changedAt *string) {
	switch {
	case edge.Status == node.StatusDeleted:
		*action = ActionRemoved
		*changedAt = edge.From
	case edge.To == "":
		*action = ActionAdded
		*changedAt = edge.From
	}
}

func (c *collector) collectNodeEdges(result *storage.QueryResult) error {
	rows, err := parseMembershipRows(result, []string{"node_uuid", "kind"}, "edge")
	if err != nil {
		return err
	}
	for _, row := range rows {
		entry := c.node(row.ids[0], row.ids[1])
		applyMembership(row.edge, &entry.Action, &entry.ChangedAt)
	}
	return nil
}

func (c *collector) collectAttributeEdges(result *storage.QueryResult) error {
	rows, err := parseMembershipRows(result, []string{"node_uuid", "kind", "attr_uuid", "attr_name"}, "edge")
	if err != nil {
		return err
	}
	for _, row := range rows {
		entry := c.node(row.ids[0], row.ids[1])
		attr := c.attribute(entry, row.ids[2], row.ids[3])
		applyMembership(row.edge, &attr.Action, &attr.ChangedAt)
	}
	return nil
}

func (c *collector) collectRelationshipEdges(result *storage.QueryResult) error {
	rows, err := parseMembershipRows(result, []string{"node_uuid", "node_kind", "rel_uuid", "rel_name"}, "edge")
	if err != nil {
		return err
	}
	for _, row := range rows {
		entry := c.relationship(row.ids[2], row.ids[3])
		entry.addPeer(row.ids[0], row.ids[1])
		applyMembership(row.edge, &entry.Action, &entry.ChangedAt)
	}
	return nil
}

func (r *RelationshipDiff) addPeer(id, kind string) {
	if id == "" {
		return
	}
	for i := range r.Peers {
		if r.Peers[i].ID == id {
			if r.Peers[i].Kind == "" {
				r.Peers[i].Kind = kind
			}
			return
		}
	}
	r.Peers = append(r.Peers, Peer{ID: id, Kind: kind})
}

type propertyRow struct {
	edge   *node.Edge
	target interface{}
}

type propertyGroup struct {
	attach func(*PropertyDiff)
	ptype  string
	rows   []propertyRow
}

// foldProperty reduces the edge rows of one property into a single diff
// entry. The first closed edge holds the value at window open, the open edge
// holds the current one; a window with only closed edges means the property
// lost its target without gaining a new one inside the window.
func (c *collector) foldProperty(group *propertyGroup) {
	sort.SliceStable(group.rows, func(i, j int) bool { return group.rows[i].edge.From < group.rows[j].edge.From })

	var current, lastClosed *propertyRow
	var previous interface{}
	previousSet := false
	for i := range group.rows {
		row := &group.rows[i]
		if row.edge.To != "" {
			if !previousSet {
				previous = row.target
				previousSet = true
			}
			lastClosed = row
			continue
		}
		current = row
	}

	prop := &PropertyDiff{Branch: c.branch, Type: group.ptype}
	switch {
	case current != nil:
		prop.Action = ActionUpdated
		prop.Value = current.target
		prop.ChangedAt = current.edge.From
		if previousSet {
			prop.Previous = previous
		}
	case lastClosed != nil:
		prop.Action = ActionRemoved
		prop.Value = lastClosed.target
		prop.ChangedAt = lastClosed.edge.To
	default:
		return
	}
	group.attach(prop)
}

func (c *collector) collectAttributeProperties(result *storage.QueryResult) error {
	cols := indexColumns(result.Columns)

	groups := map[string]*propertyGroup{}
	order := []string{}
	for _, raw := range result.Rows {
		edge, err := node.ParseEdge(cols.cell(raw, "edge"))
		if err != nil {
			return err
		}
		if edge == nil {
			continue
		}

		nodeID := cols.str(raw, "node_uuid")
		kind := cols.str(raw, "kind")
		attrID := cols.str(raw, "attr_uuid")
		attrName := cols.str(raw, "attr_name")
		ptype := cols.str(raw, "prop_type")

		target := cols.cell(raw, "target_value")
		if ptype == query.EdgeHasSource || ptype == query.EdgeHasOwner {
			target = cols.cell(raw, "target_uuid")
		}

		key := attrID + "|" + ptype
		group, ok := groups[key]
		if !ok {
			entry := c.node(nodeID, kind)
			attr := c.attribute(entry, attrID, attrName)
			group = &propertyGroup{
				ptype:  ptype,
				attach: func(p *PropertyDiff) { attr.Properties = append(attr.Properties, p) },
			}
			groups[key] = group
			order = append(order, key)
		}
		group.rows = append(group.rows, propertyRow{edge: edge, target: target})
	}

	for _, key := range order {
		c.foldProperty(groups[key])
	}
	return nil
}

func (c *collector) collectRelationshipProperties(result *storage.QueryResult) error {
	cols := indexColumns(result.Columns)

	groups := map[string]*propertyGroup{}
	order := []string{}
	for _, raw := range result.Rows {
		edge, err := node.ParseEdge(cols.cell(raw, "edge"))
		if err != nil {
			return err
		}
		if edge == nil {
			continue
		}

		relID := cols.str(raw, "rel_uuid")
		relName := cols.str(raw, "rel_name")
		ptype := cols.str(raw, "prop_type")

		entry := c.relationship(relID, relName)
		if peers, ok := cols.cell(raw, "peer_ids").([]interface{}); ok {
			for _, peer := range peers {
				if id, ok := peer.(string); ok {
					entry.addPeer(id, "")
				}
			}
		}

		key := relID + "|" + ptype
		group, ok := groups[key]
		if !ok {
			group = &propertyGroup{
				ptype:  ptype,
				attach: func(p *PropertyDiff) { entry.Properties = append(entry.Properties, p) },
			}
			groups[key] = group
			order = append(order, key)
		}
		group.rows = append(group.rows, propertyRow{edge: edge, target: cols.cell(raw, "value")})
	}

	for _, key := range order {
		c.foldProperty(groups[key])
	}
	return nil
}

// finalize settles default actions and sorts every slice for deterministic
// output. Properties created at the same instant as an added attribute are
// marked added themselves.
func (c *collector) finalize(start, end timestamp.Timestamp) *Diff {
	for _, entry := range c.nodes {
		if entry.Action == "" {
			entry.Action = ActionUpdated
		}
		for _, attr := range entry.Attributes {
			if attr.Action == "" {
				attr.Action = ActionUpdated
			}
			for _, prop := range attr.Properties {
				if attr.Action == ActionAdded && prop.ChangedAt == attr.ChangedAt {
					prop.Action = ActionAdded
				}
			}
			sort.Slice(attr.Properties, func(i, j int) bool { return attr.Properties[i].Type < attr.Properties[j].Type })
		}
		sort.Slice(entry.Attributes, func(i, j int) bool { return entry.Attributes[i].Name < entry.Attributes[j].Name })
	}
	for _, entry := range c.rels {
		if entry.Action == "" {
			entry.Action = ActionUpdated
		}
		for _, prop := range entry.Properties {
			if entry.Action == ActionAdded && prop.ChangedAt == entry.ChangedAt {
				prop.Action = ActionAdded
			}
		}
		sort.Slice(entry.Properties, func(i, j int) bool { return entry.Properties[i].Type < entry.Properties[j].Type })
		sort.Slice(entry.Peers, func(i, j int) bool { return entry.Peers[i].ID < entry.Peers[j].ID })
	}

	return &Diff{
		Branch:        c.branch,
		Start:         start,
		End:           end,
		Nodes:         c.nodes,
		Relationships: c.rels,
	}
}

type columnIndex map[string]int

func indexColumns(names []string) columnIndex {
	idx := make(columnIndex, len(names))
	for i, name := range names {
		idx[name] = i
	}
	return idx
}

func (c columnIndex) cell(row []interface{}, name string) interface{} {
	i, ok := c[name]
	if !ok || i >= len(row) {
		return nil
	}
	return row[i]
}

func (c columnIndex) str(row []interface{}, name string) string {
	if s, ok := c.cell(row, name).(string); ok {
		return s
	}
	return ""
}
