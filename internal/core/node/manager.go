package node

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/tributarydb/tributary/internal/core/branch"
	"github.com/tributarydb/tributary/internal/core/query"
	"github.com/tributarydb/tributary/internal/core/schema"
	"github.com/tributarydb/tributary/internal/core/timestamp"
	"github.com/tributarydb/tributary/internal/errdefs"
	"github.com/tributarydb/tributary/internal/logging"
	"github.com/tributarydb/tributary/internal/storage"
)

// ReadPosition pins a read to a branch lineage at an instant. With
// EphemeralRebase the parent side of the lineage moves from the branch point
// to the read instant, previewing a rebase.
type ReadPosition struct {
	Branch          *branch.Branch
	At              timestamp.Timestamp
	EphemeralRebase bool
}

// QueryOptions narrows a node listing. Filter keys follow the
// field__property convention: name__value, color__is_visible, and the
// three-part owner__name__value form that matches on a peer attribute.
// Fields and the include flags control hydration the same way the read
// options on GetOne do.
type QueryOptions struct {
	Kind    string
	IDs     []string
	Filters map[string]interface{}
	Offset  int
	Limit   int

	Fields        []string
	IncludeSource bool
	IncludeOwner  bool
}

// ReadOption adjusts how much of a node a read hydrates.
type ReadOption func(*readSettings)

type readSettings struct {
	fields        []string
	includeSource bool
	includeOwner  bool
}

func newReadSettings(opts []ReadOption) readSettings {
	var s readSettings
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithFields limits hydration to the named attributes and relationships.
// Names the schema does not know come back unset; calling with no names
// keeps everything.
func WithFields(fields ...string) ReadOption {
	return func(s *readSettings) { s.fields = fields }
}

// WithSource resolves each attribute's source pointer during hydration.
func WithSource() ReadOption {
	return func(s *readSettings) { s.includeSource = true }
}

// WithOwner resolves each attribute's owner pointer during hydration.
func WithOwner() ReadOption {
	return func(s *readSettings) { s.includeOwner = true }
}

// Manager runs node operations against the graph: schema-validated writes,
// branch-aware reads, and the reduction that turns candidate edges into the
// state visible at a position.
type Manager struct {
	client  storage.Client
	schemas *schema.Cache
	logger  *logging.Logger
}

// NewManager creates a node manager on top of a storage client and the
// schema cache.
func NewManager(client storage.Client, schemas *schema.Cache) *Manager {
	return &Manager{
		client:  client,
		schemas: schemas,
		logger:  logging.GetLogger("node"),
	}
}

func (m *Manager) schemaFor(kind string, br *branch.Branch) (*schema.NodeSchema, error) {
	return m.schemas.Get(kind, br.Name, branch.DefaultBranchName)
}

// Create validates the input against the schema of kind, verifies every
// referenced peer exists at the write position, and creates the node with
// all its attributes and relationships in one statement.
func (m *Manager) Create(ctx context.Context, br *branch.Branch, at timestamp.Timestamp, kind string, input map[string]interface{}) (*Node, error) {
	s, err := m.schemaFor(kind, br)
	if err != nil {
		return nil, err
	}

	plan, err := BuildCreatePlan(s, input)
	if err != nil {
		return nil, err
	}

	pos := ReadPosition{Branch: br, At: at}
	if err := m.checkPeersExist(ctx, pos, plan.PeerIDs); err != nil {
		return nil, err
	}

	create := query.NodeCreate{
		UUID:          uuid.NewString(),
		Kind:          s.Kind,
		Labels:        append([]string{query.LabelNode}, s.Labels()...),
		Branch:        br.Name,
		BranchLevel:   br.HierarchyLevel,
		At:            at,
		Attributes:    plan.Attributes,
		Relationships: plan.Relationships,
	}
	q, err := query.BuildNodeCreate(create)
	if err != nil {
		return nil, err
	}
	if _, err := m.client.ExecuteWrite(ctx, q); err != nil {
		return nil, err
	}

	m.logger.DebugWithFields("node created",
		logging.Field("kind", s.Kind),
		logging.Field("id", create.UUID),
		logging.Field("branch", br.Name),
	)
	return m.GetOne(ctx, pos, create.UUID, WithSource(), WithOwner())
}

// GetOne returns the node visible at the position, or a not-found error.
func (m *Manager) GetOne(ctx context.Context, pos ReadPosition, id string, opts ...ReadOption) (*Node, error) {
	nodes, err := m.fetch(ctx, pos, query.NodeListOptions{
		Branch:          pos.Branch,
		At:              pos.At,
		EphemeralRebase: pos.EphemeralRebase,
		IDs:             []string{id},
	}, newReadSettings(opts))
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, errdefs.Newf(errdefs.KindNotFound, "Unable to find the node %s in the database", id)
	}
	return nodes[0], nil
}

// GetMany returns the nodes from ids that are visible at the position.
// Missing ids are skipped, not errors.
func (m *Manager) GetMany(ctx context.Context, pos ReadPosition, ids []string, opts ...ReadOption) ([]*Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return m.fetch(ctx, pos, query.NodeListOptions{
		Branch:          pos.Branch,
		At:              pos.At,
		EphemeralRebase: pos.EphemeralRebase,
		IDs:             ids,
	}, newReadSettings(opts))
}

// Query lists nodes at the position. Filters are verified twice: once in the
// graph to narrow candidates, then against the reduced state, because a
// branch-level change can shadow a filter hit from the parent. Offset and
// limit apply after reduction so tombstoned nodes never consume page slots.
func (m *Manager) Query(ctx context.Context, pos ReadPosition, opts QueryOptions) ([]*Node, error) {
	listOpts := query.NodeListOptions{
		Branch:          pos.Branch,
		At:              pos.At,
		EphemeralRebase: pos.EphemeralRebase,
		Kind:            opts.Kind,
		IDs:             opts.IDs,
	}
	settings := readSettings{
		fields:        opts.Fields,
		includeSource: opts.IncludeSource,
		includeOwner:  opts.IncludeOwner,
	}

	if len(opts.Filters) > 0 {
		if opts.Kind == "" {
			return nil, errdefs.New(errdefs.KindValidation, "filters require a kind")
		}
		s, err := m.schemaFor(opts.Kind, pos.Branch)
		if err != nil {
			return nil, err
		}
		listOpts.AttributeFilters, listOpts.RelationshipFilters, err = parseFilters(s, opts.Filters)
		if err != nil {
			return nil, err
		}
		// A field-selected query still has to hydrate the filtered fields,
		// or the post-reduction check would drop every node.
		if len(settings.fields) > 0 {
			settings.fields = append(append([]string(nil), settings.fields...), filterFieldNames(opts.Filters)...)
		}
	}

	nodes, err := m.fetch(ctx, pos, listOpts, settings)
	if err != nil {
		return nil, err
	}

	for _, filter := range listOpts.AttributeFilters {
		nodes = keepNodes(nodes, func(n *Node) bool { return attributeFilterSatisfied(n, filter) })
	}
	for _, filter := range listOpts.RelationshipFilters {
		nodes, err = m.applyRelationshipFilter(ctx, pos, nodes, filter)
		if err != nil {
			return nil, err
		}
	}

	return paginate(nodes, opts.Offset, opts.Limit), nil
}

/// Update applies a partial input to an existing node: attribute values,
// flags, source and owner pointers, and relationship peer sets. Fields equal
// to the current state are skipped so no-op updates write nothing.
func (m *Manager) Update(ctx context.Context, br *branch.Branch, at timestamp.Timestamp, id string, input map[string]interface{}) (*Node, error) {
	pos := ReadPosition{Branch: br, At: at}
	// Source and owner pointers hydrate too, so an input repeating the
	// stored pointer is recognized as a no-op.
	current, err := m.GetOne(ctx, pos, id, WithSource(), WithOwner())
	if err != nil {
		return nil, err
	}
	s, err := m.schemaFor(current.Kind, br)
	if err != nil {
		return nil, err
	}

	for key := range input {
		if s.GetAttribute(key) == nil && s.GetRelationship(key) == nil {
			return nil, errdefs.Newf(errdefs.KindValidation, "%s is not a valid input for %s", key, s.Kind)
		}
	}

	scope := query.UpdateScope{Branch: br.Name, BranchLevel: br.HierarchyLevel, At: at}
	var writes []*storage.GraphQuery

	for _, key := range sortedKeys(input) {
		raw := input[key]
		if spec := s.GetAttribute(key); spec != nil {
			queries, err := m.planAttributeUpdate(ctx, pos, scope, s, spec, current, raw)
			if err != nil {
				return nil, err
			}
			writes = append(writes, queries...)
			continue
		}
		spec := s.GetRelationship(key)
		queries, err := m.planRelationshipUpdate(ctx, pos, scope, s, spec, current, raw)
		if err != nil {
			return nil, err
		}
		writes = append(writes, queries...)
	}

	if err := m.runWrites(ctx, writes); err != nil {
		return nil, err
	}
	return m.GetOne(ctx, pos, id, WithSource(), WithOwner())
}

func (m *Manager) planAttributeUpdate(ctx context.Context, pos ReadPosition, scope query.UpdateScope, s *schema.NodeSchema, spec *schema.AttributeSchema, current *Node, raw interface{}) ([]*storage.GraphQuery, error) {
	parsed, err := parseAttributeInput(s.Kind, spec.Name, raw)
	if err != nil {
		return nil, err
	}

	attr := current.Attribute(spec.Name)
	if attr == nil {
		// The schema gained this attribute after the node was created.
		create := query.AttributeCreate{
			UUID:      uuid.NewString(),
			Name:      spec.Name,
			IsVisible: true,
		}
		if parsed.HasValue {
			create.Value = parsed.Value
		} else if spec.Default != nil {
			create.Value = spec.Default
		}
		if create.Value == nil && !spec.Optional {
			return nil, errdefs.Newf(errdefs.KindValidation, "%s is mandatory for %s", spec.Name, s.Kind)
		}
		if err := checkValueKind(s.Kind, spec, create.Value); err != nil {
			return nil, err
		}
		if parsed.IsVisible != nil {
			create.IsVisible = *parsed.IsVisible
		}
		if parsed.IsProtected != nil {
			create.IsProtected = *parsed.IsProtected
		}
		return []*storage.GraphQuery{query.BuildAttributeAdd(scope, current.ID, create)}, nil
	}

	var writes []*storage.GraphQuery

	if parsed.HasValue {
		if parsed.Value == nil && !spec.Optional {
			return nil, errdefs.Newf(errdefs.KindValidation, "%s is mandatory for %s", spec.Name, s.Kind)
		}
		if err := checkValueKind(s.Kind, spec, parsed.Value); err != nil {
			return nil, err
		}
		if !looseEqual(attr.Value, parsed.Value) {
			writes = append(writes, query.BuildAttributeValueUpdate(scope, attr.ID, parsed.Value))
		}
	}
	if parsed.IsVisible != nil && *parsed.IsVisible != attr.IsVisible {
		q, err := query.BuildAttributeFlagUpdate(scope, attr.ID, query.EdgeIsVisible, *parsed.IsVisible)
		if err != nil {
			return nil, err
		}
		writes = append(writes, q)
	}
	if parsed.IsProtected != nil && *parsed.IsProtected != attr.IsProtected {
		q, err := query.BuildAttributeFlagUpdate(scope, attr.ID, query.EdgeIsProtected, *parsed.IsProtected)
		if err != nil {
			return nil, err
		}
		writes = append(writes, q)
	}
	if parsed.HasSource && parsed.Source != attr.SourceID {
		if err := m.checkPeersExist(ctx, pos, []string{parsed.Source}); err != nil {
			return nil, err
		}
		q, err := query.BuildAttributePeerUpdate(scope, attr.ID, query.EdgeHasSource, parsed.Source)
		if err != nil {
			return nil, err
		}
		writes = append(writes, q)
	}
	if parsed.HasOwner && parsed.Owner != attr.OwnerID {
		if err := m.checkPeersExist(ctx, pos, []string{parsed.Owner}); err != nil {
			return nil, err
		}
		q, err := query.BuildAttributePeerUpdate(scope, attr.ID, query.EdgeHasOwner, parsed.Owner)
		if err != nil {
			return nil, err
		}
		writes = append(writes, q)
	}
	return writes, nil
}

func (m *Manager) planRelationshipUpdate(ctx context.Context, pos ReadPosition, scope query.UpdateScope, s *schema.NodeSchema, spec *schema.RelationshipSchema, current *Node, raw interface{}) ([]*storage.GraphQuery, error) {
	inputs, err := parseRelationshipInputs(spec, s.Kind, raw)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 && !spec.Optional {
		return nil, errdefs.Newf(errdefs.KindValidation, "%s is mandatory for %s", spec.Name, s.Kind)
	}

	existing := map[string]*RelationshipPeer{}
	for _, peer := range current.Relationships[spec.Identifier] {
		existing[peer.PeerID] = peer
	}

	deleteScope := query.DeleteScope{Branch: pos.Branch, At: scope.At}
	var writes []*storage.GraphQuery
	desired := map[string]struct{}{}

	for _, in := range inputs {
		desired[in.PeerID] = struct{}{}
		peer, ok := existing[in.PeerID]
		if !ok {
			if err := m.checkPeersExist(ctx, pos, []string{in.PeerID}); err != nil {
				return nil, err
			}
			create := query.RelationshipCreate{
				UUID:       uuid.NewString(),
				Identifier: spec.Identifier,
				PeerID:     in.PeerID,
				IsVisible:  true,
			}
			if in.IsVisible != nil {
				create.IsVisible = *in.IsVisible
			}
			if in.IsProtected != nil {
				create.IsProtected = *in.IsProtected
			}
			writes = append(writes, query.BuildRelationshipAdd(scope, create, current.ID))
			continue
		}
		if in.IsVisible != nil && *in.IsVisible != peer.IsVisible {
			q, err := query.BuildRelationshipFlagUpdate(scope, peer.ID, query.EdgeIsVisible, *in.IsVisible)
			if err != nil {
				return nil, err
			}
			writes = append(writes, q)
		}
		if in.IsProtected != nil && *in.IsProtected != peer.IsProtected {
			q, err := query.BuildRelationshipFlagUpdate(scope, peer.ID, query.EdgeIsProtected, *in.IsProtected)
			if err != nil {
				return nil, err
			}
			writes = append(writes, q)
		}
	}

	// The input is the full desired peer set: peers absent from it are
	// detached.
	for _, peer := range current.Relationships[spec.Identifier] {
		if _, keep := desired[peer.PeerID]; !keep {
			writes = append(writes, query.BuildRelationshipDelete(deleteScope, peer.ID))
		}
	}
	return writes, nil
}

// Delete tombstones the node at the position: attribute edges first, then
// relationship edges, then the node's own IS_PART_OF edge, so a reader
// positioned after the delete never sees a half-detached node.
func (m *Manager) Delete(ctx context.Context, br *branch.Branch, at timestamp.Timestamp, id string) error {
	pos := ReadPosition{Branch: br, At: at}
	if _, err := m.GetOne(ctx, pos, id); err != nil {
		return err
	}

	scope := query.DeleteScope{Branch: br, At: at}
	writes := []*storage.GraphQuery{
		query.BuildNodeDeleteAttributes(scope, id),
		query.BuildNodeDeleteRelationships(scope, id),
		query.BuildNodeDeleteRoot(scope, id),
	}
	if err := m.runWrites(ctx, writes); err != nil {
		return err
	}

	m.logger.DebugWithFields("node deleted",
		logging.Field("id", id),
		logging.Field("branch", br.Name),
	)
	return nil
}

// AddRelationship links a peer to the node over the named relationship. On
// cardinality-one relationships the previous peer is detached first; adding
// an already-linked peer is a no-op.
func (m *Manager) AddRelationship(ctx context.Context, br *branch.Branch, at timestamp.Timestamp, nodeID, relName string, peer interface{}) (*Node, error) {
	pos := ReadPosition{Branch: br, At: at}
	current, err := m.GetOne(ctx, pos, nodeID)
	if err != nil {
		return nil, err
	}
	s, err := m.schemaFor(current.Kind, br)
	if err != nil {
		return nil, err
	}
	spec := s.GetRelationship(relName)
	if spec == nil {
		return nil, errdefs.Newf(errdefs.KindValidation, "%s is not a valid relationship for %s", relName, s.Kind)
	}

	in, err := parseRelationshipInput(s.Kind, relName, peer)
	if err != nil {
		return nil, err
	}

	existing := current.Relationships[spec.Identifier]
	for _, p := range existing {
		if p.PeerID == in.PeerID {
			return current, nil
		}
	}
	if err := m.checkPeersExist(ctx, pos, []string{in.PeerID}); err != nil {
		return nil, err
	}

	var writes []*storage.GraphQuery
	if spec.Cardinality == schema.CardinalityOne {
		deleteScope := query.DeleteScope{Branch: br, At: at}
		for _, p := range existing {
			writes = append(writes, query.BuildRelationshipDelete(deleteScope, p.ID))
		}
	}

	create := query.RelationshipCreate{
		UUID:       uuid.NewString(),
		Identifier: spec.Identifier,
		PeerID:     in.PeerID,
		IsVisible:  true,
	}
	if in.IsVisible != nil {
		create.IsVisible = *in.IsVisible
	}
	if in.IsProtected != nil {
		create.IsProtected = *in.IsProtected
	}
	scope := query.UpdateScope{Branch: br.Name, BranchLevel: br.HierarchyLevel, At: at}
	writes = append(writes, query.BuildRelationshipAdd(scope, create, nodeID))

	if err := m.runWrites(ctx, writes); err != nil {
		return nil, err
	}
	return m.GetOne(ctx, pos, nodeID)
}

// RemoveRelationship detaches a peer from the named relationship.
func (m *Manager) RemoveRelationship(ctx context.Context, br *branch.Branch, at timestamp.Timestamp, nodeID, relName, peerID string) (*Node, error) {
	pos := ReadPosition{Branch: br, At: at}
	current, err := m.GetOne(ctx, pos, nodeID)
	if err != nil {
		return nil, err
	}
	s, err := m.schemaFor(current.Kind, br)
	if err != nil {
		return nil, err
	}
	spec := s.GetRelationship(relName)
	if spec == nil {
		return nil, errdefs.Newf(errdefs.KindValidation, "%s is not a valid relationship for %s", relName, s.Kind)
	}

	var target *RelationshipPeer
	for _, p := range current.Relationships[spec.Identifier] {
		if p.PeerID == peerID {
			target = p
			break
		}
	}
	if target == nil {
		return nil, errdefs.Newf(errdefs.KindNotFound, "node %s has no %s relationship with %s", nodeID, relName, peerID)
	}

	q := query.BuildRelationshipDelete(query.DeleteScope{Branch: br, At: at}, target.ID)
	if _, err := m.client.ExecuteWrite(ctx, q); err != nil {
		return nil, err
	}
	return m.GetOne(ctx, pos, nodeID)
}

// fetch runs the list query, reduces the candidates, and hydrates the
// survivors.
func (m *Manager) fetch(ctx context.Context, pos ReadPosition, listOpts query.NodeListOptions, settings readSettings) ([]*Node, error) {
	q, err := query.BuildNodeList(listOpts)
	if err != nil {
		return nil, err
	}
	result, err := m.client.ExecuteRead(ctx, q)
	if err != nil {
		return nil, err
	}
	heads, err := reduceHeads(result)
	if err != nil {
		return nil, err
	}
	return m.hydrate(ctx, pos, heads, settings)
}

func (m *Manager) hydrate(ctx context.Context, pos ReadPosition, heads []head, settings readSettings) ([]*Node, error) {
	if len(heads) == 0 {
		return nil, nil
	}

	ids := make([]string, len(heads))
	for i, h := range heads {
		ids[i] = h.ID
	}
	opts := query.HydrateOptions{
		Branch:          pos.Branch,
		At:              pos.At,
		EphemeralRebase: pos.EphemeralRebase,
		IDs:             ids,
		Fields:          settings.fields,
		IncludeSource:   settings.includeSource,
		IncludeOwner:    settings.includeOwner,
	}

	attrResult, err := m.client.ExecuteRead(ctx, query.BuildAttributeList(opts))
	if err != nil {
		return nil, err
	}
	attrs, err := reduceAttributes(attrResult)
	if err != nil {
		return nil, err
	}

	relResult, err := m.client.ExecuteRead(ctx, query.BuildRelationshipList(opts))
	if err != nil {
		return nil, err
	}
	rels, err := reduceRelationships(relResult)
	if err != nil {
		return nil, err
	}

	nodes := make([]*Node, 0, len(heads))
	for _, h := range heads {
		n := &Node{
			ID:            h.ID,
			Kind:          h.Kind,
			Branch:        h.Branch,
			CreatedAt:     h.CreatedAt,
			Attributes:    attrs[h.ID],
			Relationships: rels[h.ID],
		}
		if n.Attributes == nil {
			n.Attributes = map[string]*Attribute{}
		}
		if n.Relationships == nil {
			n.Relationships = map[string][]*RelationshipPeer{}
		}
		if s, err := m.schemaFor(h.Kind, pos.Branch); err == nil {
			n.Schema = s
		}
		if len(settings.fields) > 0 {
			trimRelationships(n, settings.fields)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// trimRelationships drops the hydrated relationship groups whose schema name
// is not among the requested fields. The graph stores relationships by
// identifier, so the cut happens here where the node's schema is at hand.
func trimRelationships(n *Node, fields []string) {
	keep := map[string][]*RelationshipPeer{}
	if n.Schema != nil {
		for identifier, peers := range n.Relationships {
			rel := n.Schema.GetRelationshipByIdentifier(identifier)
			if rel == nil {
				continue
			}
			for _, field := range fields {
				if rel.Name == field {
					keep[identifier] = peers
					break
				}
			}
		}
	}
	n.Relationships = keep
}

func (m *Manager) checkPeersExist(ctx context.Context, pos ReadPosition, ids []string) error {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil
	}
	q, err := query.BuildNodeList(query.NodeListOptions{
		Branch:          pos.Branch,
		At:              pos.At,
		EphemeralRebase: pos.EphemeralRebase,
		IDs:             ids,
	})
	if err != nil {
		return err
	}
	result, err := m.client.ExecuteRead(ctx, q)
	if err != nil {
		return err
	}
	heads, err := reduceHeads(result)
	if err != nil {
		return err
	}
	found := make(map[string]struct{}, len(heads))
	for _, h := range heads {
		found[h.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return errdefs.Newf(errdefs.KindNotFound, "Unable to find the node %s in the database", id)
		}
	}
	return nil
}

func (m *Manager) runWrites(ctx context.Context, writes []*storage.GraphQuery) error {
	for _, q := range writes {
		if _, err := m.client.ExecuteWrite(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// applyRelationshipFilter keeps the nodes with at least one peer on the
// filtered relationship whose attribute matches. The peers are fetched and
// reduced themselves, so a peer attribute shadowed on the branch is compared
// by its visible value. Only the filtered attribute is hydrated.
func (m *Manager) applyRelationshipFilter(ctx context.Context, pos ReadPosition, nodes []*Node, filter query.RelationshipFilter) ([]*Node, error) {
	var peerIDs []string
	for _, n := range nodes {
		for _, peer := range n.Relationships[filter.Identifier] {
			peerIDs = append(peerIDs, peer.PeerID)
		}
	}
	peers, err := m.GetMany(ctx, pos, peerIDs, WithFields(filter.AttributeName))
	if err != nil {
		return nil, err
	}
	matching := map[string]struct{}{}
	for _, peer := range peers {
		if attr := peer.Attribute(filter.AttributeName); attr != nil && looseEqual(attr.Value, filter.Value) {
			matching[peer.ID] = struct{}{}
		}
	}

	return keepNodes(nodes, func(n *Node) bool {
		for _, peer := range n.Relationships[filter.Identifier] {
			if _, ok := matching[peer.PeerID]; ok {
				return true
			}
		}
		return false
	}), nil
}

// parseFilters resolves field__property keys against the schema. Two-part
// keys filter an attribute property, three-part keys filter an attribute of
// a related peer.
func parseFilters(s *schema.NodeSchema, filters map[string]interface{}) ([]query.AttributeFilter, []query.RelationshipFilter, error) {
	var attrFilters []query.AttributeFilter
	var relFilters []query.RelationshipFilter

	for _, key := range sortedKeys(filters) {
		value := filters[key]
		parts := strings.Split(key, "__")
		switch len(parts) {
		case 2:
			if s.GetAttribute(parts[0]) == nil {
				return nil, nil, errdefs.Newf(errdefs.KindValidation, "%s is not a valid filter for %s", key, s.Kind)
			}
			attrFilters = append(attrFilters, query.AttributeFilter{
				Name:     parts[0],
				Property: parts[1],
				Value:    value,
			})
		case 3:
			rel := s.GetRelationship(parts[0])
			if rel == nil || parts[2] != "value" {
				return nil, nil, errdefs.Newf(errdefs.KindValidation, "%s is not a valid filter for %s", key, s.Kind)
			}
			relFilters = append(relFilters, query.RelationshipFilter{
				Identifier:    rel.Identifier,
				AttributeName: parts[1],
				Value:         value,
			})
		default:
			return nil, nil, errdefs.Newf(errdefs.KindValidation, "%s is not a valid filter for %s", key, s.Kind)
		}
	}
	return attrFilters, relFilters, nil
}

// filterFieldNames lists the field half of every filter key, in key order.
func filterFieldNames(filters map[string]interface{}) []string {
	names := make([]string, 0, len(filters))
	for _, key := range sortedKeys(filters) {
		name := key
		if i := strings.Index(key, "__"); i > 0 {
			name = key[:i]
		}
		names = append(names, name)
	}
	return names
}

func attributeFilterSatisfied(n *Node, filter query.AttributeFilter) bool {
	attr := n.Attribute(filter.Name)
	if attr == nil {
		return false
	}
	switch filter.Property {
	case "value":
		return looseEqual(attr.Value, filter.Value)
	case "is_visible":
		want, ok := filter.Value.(bool)
		return ok && attr.IsVisible == want
	case "is_protected":
		want, ok := filter.Value.(bool)
		return ok && attr.IsProtected == want
	default:
		return false
	}
}

func keepNodes(nodes []*Node, keep func(*Node) bool) []*Node {
	out := nodes[:0]
	for _, n := range nodes {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

func paginate(nodes []*Node, offset, limit int) []*Node {
	if offset > 0 {
		if offset >= len(nodes) {
			return nil
		}
		nodes = nodes[offset:]
	}
	if limit > 0 && limit < len(nodes) {
		nodes = nodes[:limit]
	}
	return nodes
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// looseEqual compares a stored value with an input value across the numeric
// representations the graph and JSON decoding produce. The null literal
// stored in the graph equals nil.
func looseEqual(a, b interface{}) bool {
	return reflect.DeepEqual(normalizeComparable(a), normalizeComparable(b))
}

func normalizeComparable(v interface{}) interface{} {
	switch n := v.(type) {
	case nil:
		return query.NullValue
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	default:
		return v
	}
}
