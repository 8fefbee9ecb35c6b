package node

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributarydb/tributary/internal/core/branch"
	"github.com/tributarydb/tributary/internal/core/schema"
	"github.com/tributarydb/tributary/internal/core/timestamp"
	"github.com/tributarydb/tributary/internal/errdefs"
	"github.com/tributarydb/tributary/internal/storage"
)

type fakeGraph struct {
	mu     sync.Mutex
	reads  []*storage.GraphQuery
	writes []*storage.GraphQuery
	readFn func(q *storage.GraphQuery) (*storage.QueryResult, error)
}

func (f *fakeGraph) Connect(ctx context.Context) error { return nil }
func (f *fakeGraph) Close() error                      { return nil }
func (f *fakeGraph) Ping(ctx context.Context) error    { return nil }

func (f *fakeGraph) ExecuteRead(ctx context.Context, q *storage.GraphQuery) (*storage.QueryResult, error) {
	f.mu.Lock()
	f.reads = append(f.reads, q)
	fn := f.readFn
	f.mu.Unlock()
	if fn != nil {
		return fn(q)
	}
	return &storage.QueryResult{}, nil
}

func (f *fakeGraph) ExecuteWrite(ctx context.Context, q *storage.GraphQuery) (*storage.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, q)
	return &storage.QueryResult{}, nil
}

func (f *fakeGraph) InitializeSchema(ctx context.Context) error { return nil }
func (f *fakeGraph) GetGraphStats(ctx context.Context) (*storage.GraphStats, error) {
	return &storage.GraphStats{}, nil
}
func (f *fakeGraph) DeleteGraph(ctx context.Context) error { return nil }

func (f *fakeGraph) writeNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.writes))
	for i, q := range f.writes {
		names[i] = q.Name
	}
	return names
}

func mainBranch() *branch.Branch {
	return &branch.Branch{
		ID:             "b-main",
		Name:           "main",
		Status:         branch.StatusOpen,
		Parent:         "main",
		BranchedFrom:   timestamp.MustParse(t1),
		CreatedAt:      timestamp.MustParse(t1),
		HierarchyLevel: branch.DefaultHierarchyLevel,
		IsDefault:      true,
	}
}

func testSchemas(t *testing.T) *schema.Cache {
	t.Helper()
	snapshot, err := schema.NewSnapshot([]*schema.NodeSchema{deviceSchema(t), {
		Kind: "Site",
		Attributes: []schema.AttributeSchema{
			{Name: "name", Kind: "Text"},
		},
	}, {
		Kind: "Interface",
		Attributes: []schema.AttributeSchema{
			{Name: "name", Kind: "Text"},
		},
	}})
	require.NoError(t, err)

	cache := schema.NewCache()
	cache.SetBranch(branch.DefaultBranchName, snapshot)
	return cache
}

// deviceRows renders a hydrated Device as the three results the manager
// reads: heads, attributes, relationships.
type deviceRows struct {
	id     string
	name   string
	source string  // source peer id on the name attribute, empty for none
	site   string  // peer id on device__site, empty for none
	relID  string  // relationship vertex uuid for the site peer
}

func (d deviceRows) dispatch(q *storage.GraphQuery) (*storage.QueryResult, error) {
	switch q.Name {
	case "node_list":
		ids, _ := q.Parameters["ids"].([]interface{})
		if len(ids) > 0 && !containsValue(ids, d.id) {
			return &storage.QueryResult{Columns: []string{"uuid", "kind", "root_edge"}}, nil
		}
		return &storage.QueryResult{
			Columns: []string{"uuid", "kind", "root_edge"},
			Rows: [][]interface{}{
				{d.id, "Device", activeEdge("main", 1, t1)},
			},
		}, nil
	case "attribute_list":
		srcUUID, srcEdge := interface{}(nil), interface{}(nil)
		if d.source != "" {
			srcUUID, srcEdge = d.source, activeEdge("main", 1, t1)
		}
		return &storage.QueryResult{
			Columns: attributeColumns(),
			Rows: [][]interface{}{
				{d.id, "a1", "name", activeEdge("main", 1, t1),
					d.name, activeEdge("main", 1, t1),
					true, activeEdge("main", 1, t1),
					false, activeEdge("main", 1, t1),
					srcUUID, srcEdge,
					nil, nil},
			},
		}, nil
	case "relationship_list":
		result := &storage.QueryResult{Columns: relationshipColumns()}
		if d.site != "" {
			result.Rows = [][]interface{}{
				{d.id, d.relID, "device__site", d.site, "Site",
					activeEdge("main", 1, t1), activeEdge("main", 1, t1),
					true, activeEdge("main", 1, t1),
					false, activeEdge("main", 1, t1)},
			}
		}
		return result, nil
	default:
		return &storage.QueryResult{}, nil
	}
}

// findRead returns the latest recorded read with the given query name.
func findRead(t *testing.T, graph *fakeGraph, name string) *storage.GraphQuery {
	t.Helper()
	graph.mu.Lock()
	defer graph.mu.Unlock()
	for i := len(graph.reads) - 1; i >= 0; i-- {
		if graph.reads[i].Name == name {
			return graph.reads[i]
		}
	}
	t.Fatalf("no %s read issued", name)
	return nil
}

func containsValue(values []interface{}, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func TestManagerCreate(t *testing.T) {
	graph := &fakeGraph{}
	mgr := NewManager(graph, testSchemas(t))
	br := mainBranch()
	at := timestamp.MustParse(t2)

	// The id is minted inside Create; the reads that follow the write echo
	// the node back under whatever id the write carried.
	graph.readFn = func(q *storage.GraphQuery) (*storage.QueryResult, error) {
		graph.mu.Lock()
		var createdID string
		if len(graph.writes) > 0 {
			createdID, _ = graph.writes[0].Parameters["uuid"].(string)
		}
		graph.mu.Unlock()
		return deviceRows{id: createdID, name: "volt"}.dispatch(q)
	}

	n, err := mgr.Create(context.Background(), br, at, "Device", map[string]interface{}{"name": "volt"})
	require.NoError(t, err)

	require.Len(t, graph.writes, 1)
	assert.Equal(t, "node_create", graph.writes[0].Name)
	assert.Equal(t, "main", graph.writes[0].Parameters["branch"])
	assert.Equal(t, 1, graph.writes[0].Parameters["branch_level"])

	assert.Equal(t, graph.writes[0].Parameters["uuid"], n.ID)
	assert.Equal(t, "Device", n.Kind)
	assert.Equal(t, "volt", n.AttributeValue("name"))
}

func TestManagerCreateRejectsUnknownField(t *testing.T) {
	graph := &fakeGraph{}
	mgr := NewManager(graph, testSchemas(t))

	_, err := mgr.Create(context.Background(), mainBranch(), timestamp.MustParse(t2), "Device", map[string]interface{}{
		"name":  "volt",
		"bogus": 1,
	})
	require.EqualError(t, err, "bogus is not a valid input for Device")
	assert.True(t, errdefs.IsValidation(err))
	assert.Empty(t, graph.writes)
}

func TestManagerCreateMissingPeer(t *testing.T) {
	graph := &fakeGraph{}
	graph.readFn = func(q *storage.GraphQuery) (*storage.QueryResult, error) {
		return &storage.QueryResult{Columns: []string{"uuid", "kind", "root_edge"}}, nil
	}
	mgr := NewManager(graph, testSchemas(t))

	_, err := mgr.Create(context.Background(), mainBranch(), timestamp.MustParse(t2), "Device", map[string]interface{}{
		"name": "volt",
		"site": "missing",
	})
	require.EqualError(t, err, "Unable to find the node missing in the database")
	assert.True(t, errdefs.IsNotFound(err))
	assert.Empty(t, graph.writes)
}

func TestManagerCreateUnknownKind(t *testing.T) {
	graph := &fakeGraph{}
	mgr := NewManager(graph, testSchemas(t))

	_, err := mgr.Create(context.Background(), mainBranch(), timestamp.MustParse(t2), "Widget", map[string]interface{}{})
	require.EqualError(t, err, "Unable to find the schema Widget")
}

func TestManagerGetOneNotFound(t *testing.T) {
	graph := &fakeGraph{}
	mgr := NewManager(graph, testSchemas(t))

	_, err := mgr.GetOne(context.Background(), ReadPosition{Branch: mainBranch(), At: timestamp.MustParse(t2)}, "n-404")
	require.EqualError(t, err, "Unable to find the node n-404 in the database")
	assert.True(t, errdefs.IsNotFound(err))
}

func TestManagerGetOneHydrationOptions(t *testing.T) {
	graph := &fakeGraph{}
	graph.readFn = func(q *storage.GraphQuery) (*storage.QueryResult, error) {
		return deviceRows{id: "n1", name: "volt", site: "site-1", relID: "rl1"}.dispatch(q)
	}
	mgr := NewManager(graph, testSchemas(t))
	pos := ReadPosition{Branch: mainBranch(), At: timestamp.MustParse(t2)}

	// A plain read never traverses the source and owner pointers.
	_, err := mgr.GetOne(context.Background(), pos, "n1")
	require.NoError(t, err)
	attrQuery := findRead(t, graph, "attribute_list")
	assert.NotContains(t, attrQuery.Query, "HAS_SOURCE")
	assert.NotContains(t, attrQuery.Query, "HAS_OWNER")
	assert.NotContains(t, attrQuery.Parameters, "fields")

	n, err := mgr.GetOne(context.Background(), pos, "n1", WithSource(), WithOwner(), WithFields("name"))
	require.NoError(t, err)
	attrQuery = findRead(t, graph, "attribute_list")
	assert.Contains(t, attrQuery.Query, "HAS_SOURCE")
	assert.Contains(t, attrQuery.Query, "HAS_OWNER")
	assert.Equal(t, []interface{}{"name"}, attrQuery.Parameters["fields"])

	// Field selection also trims relationships the fields do not name.
	assert.Empty(t, n.Relationships)

	n, err = mgr.GetOne(context.Background(), pos, "n1", WithFields("name", "site"))
	require.NoError(t, err)
	require.Len(t, n.Relationships["device__site"], 1)
	assert.Equal(t, "site-1", n.Relationships["device__site"][0].PeerID)
}

func TestManagerQueryFiltersRequireKind(t *testing.T) {
	graph := &fakeGraph{}
	mgr := NewManager(graph, testSchemas(t))

	_, err := mgr.Query(context.Background(), ReadPosition{Branch: mainBranch(), At: timestamp.MustParse(t2)}, QueryOptions{
		Filters: map[string]interface{}{"name__value": "volt"},
	})
	require.EqualError(t, err, "filters require a kind")
}

func TestManagerQueryRejectsUnknownFilter(t *testing.T) {
	graph := &fakeGraph{}
	mgr := NewManager(graph, testSchemas(t))

	_, err := mgr.Query(context.Background(), ReadPosition{Branch: mainBranch(), At: timestamp.MustParse(t2)}, QueryOptions{
		Kind:    "Device",
		Filters: map[string]interface{}{"bogus__value": "x"},
	})
	require.EqualError(t, err, "bogus__value is not a valid filter for Device")
}

func TestManagerQueryDropsShadowedFilterHit(t *testing.T) {
	// The graph-side filter matched the parent value, but the branch
	// overwrote it; after reduction the node no longer satisfies the filter.
	graph := &fakeGraph{}
	graph.readFn = func(q *storage.GraphQuery) (*storage.QueryResult, error) {
		switch q.Name {
		case "node_list":
			return &storage.QueryResult{
				Columns: []string{"uuid", "kind", "root_edge"},
				Rows:    [][]interface{}{{"n1", "Device", activeEdge("main", 1, t1)}},
			}, nil
		case "attribute_list":
			return &storage.QueryResult{
				Columns: attributeColumns(),
				Rows: [][]interface{}{
					{"n1", "a1", "name", activeEdge("main", 1, t1),
						"volt", activeEdge("main", 1, t1),
						true, activeEdge("main", 1, t1),
						false, activeEdge("main", 1, t1),
						nil, nil, nil, nil},
					{"n1", "a1", "name", activeEdge("main", 1, t1),
						"renamed", activeEdge("change1", 2, t2),
						true, activeEdge("main", 1, t1),
						false, activeEdge("main", 1, t1),
						nil, nil, nil, nil},
				},
			}, nil
		default:
			return &storage.QueryResult{Columns: relationshipColumns()}, nil
		}
	}
	mgr := NewManager(graph, testSchemas(t))

	nodes, err := mgr.Query(context.Background(), ReadPosition{Branch: mainBranch(), At: timestamp.MustParse(t2)}, QueryOptions{
		Kind:    "Device",
		Filters: map[string]interface{}{"name__value": "volt"},
	})
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestManagerQueryPagination(t *testing.T) {
	graph := &fakeGraph{}
	graph.readFn = func(q *storage.GraphQuery) (*storage.QueryResult, error) {
		switch q.Name {
		case "node_list":
			return &storage.QueryResult{
				Columns: []string{"uuid", "kind", "root_edge"},
				Rows: [][]interface{}{
					{"n1", "Device", activeEdge("main", 1, t1)},
					{"n2", "Device", activeEdge("main", 1, t1)},
					{"n2", "Device", deletedEdge("change1", 2, t2)},
					{"n3", "Device", activeEdge("main", 1, t1)},
				},
			}, nil
		case "attribute_list":
			return &storage.QueryResult{Columns: attributeColumns()}, nil
		default:
			return &storage.QueryResult{Columns: relationshipColumns()}, nil
		}
	}
	mgr := NewManager(graph, testSchemas(t))
	pos := ReadPosition{Branch: mainBranch(), At: timestamp.MustParse(t2)}

	// n2 is tombstoned and must not consume a page slot.
	nodes, err := mgr.Query(context.Background(), pos, QueryOptions{Kind: "Device", Limit: 2})
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "n1", nodes[0].ID)
	assert.Equal(t, "n3", nodes[1].ID)

	nodes, err = mgr.Query(context.Background(), pos, QueryOptions{Kind: "Device", Offset: 1})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "n3", nodes[0].ID)
}

func TestManagerUpdateValueChange(t *testing.T) {
	graph := &fakeGraph{}
	graph.readFn = func(q *storage.GraphQuery) (*storage.QueryResult, error) {
		return deviceRows{id: "n1", name: "volt"}.dispatch(q)
	}
	mgr := NewManager(graph, testSchemas(t))

	_, err := mgr.Update(context.Background(), mainBranch(), timestamp.MustParse(t2), "n1", map[string]interface{}{
		"name": "volt2",
	})
	require.NoError(t, err)

	require.Equal(t, []string{"attribute_value_update"}, graph.writeNames())
	assert.Equal(t, "a1", graph.writes[0].Parameters["attr_uuid"])
	assert.Equal(t, "volt2", graph.writes[0].Parameters["value"])
	assert.Equal(t, t2, graph.writes[0].Parameters["at"])
}

func TestManagerUpdateSkipsNoop(t *testing.T) {
	graph := &fakeGraph{}
	graph.readFn = func(q *storage.GraphQuery) (*storage.QueryResult, error) {
		return deviceRows{id: "n1", name: "volt"}.dispatch(q)
	}
	mgr := NewManager(graph, testSchemas(t))

	_, err := mgr.Update(context.Background(), mainBranch(), timestamp.MustParse(t2), "n1", map[string]interface{}{
		"name": "volt",
	})
	require.NoError(t, err)
	assert.Empty(t, graph.writes)
}

func TestManagerUpdateSourceNoop(t *testing.T) {
	// The stored source pointer hydrates with the update's read, so an
	// input repeating it writes nothing and no peer lookup runs.
	graph := &fakeGraph{}
	graph.readFn = func(q *storage.GraphQuery) (*storage.QueryResult, error) {
		return deviceRows{id: "n1", name: "volt", source: "acc-1"}.dispatch(q)
	}
	mgr := NewManager(graph, testSchemas(t))

	_, err := mgr.Update(context.Background(), mainBranch(), timestamp.MustParse(t2), "n1", map[string]interface{}{
		"name": map[string]interface{}{"source": "acc-1"},
	})
	require.NoError(t, err)
	assert.Empty(t, graph.writes)
}

func TestManagerUpdateSourceChange(t *testing.T) {
	graph := &fakeGraph{}
	graph.readFn = func(q *storage.GraphQuery) (*storage.QueryResult, error) {
		if q.Name == "node_list" {
			ids, _ := q.Parameters["ids"].([]interface{})
			rows := [][]interface{}{}
			if containsValue(ids, "n1") {
				rows = append(rows, []interface{}{"n1", "Device", activeEdge("main", 1, t1)})
			}
			if containsValue(ids, "acc-2") {
				rows = append(rows, []interface{}{"acc-2", "Site", activeEdge("main", 1, t1)})
			}
			return &storage.QueryResult{Columns: []string{"uuid", "kind", "root_edge"}, Rows: rows}, nil
		}
		return deviceRows{id: "n1", name: "volt", source: "acc-1"}.dispatch(q)
	}
	mgr := NewManager(graph, testSchemas(t))

	_, err := mgr.Update(context.Background(), mainBranch(), timestamp.MustParse(t2), "n1", map[string]interface{}{
		"name": map[string]interface{}{"source": "acc-2"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"attribute_peer_update"}, graph.writeNames())
	assert.Equal(t, "acc-2", graph.writes[0].Parameters["peer"])
	assert.Equal(t, "a1", graph.writes[0].Parameters["attr_uuid"])
}

func TestManagerUpdateFlagsAndProtection(t *testing.T) {
	graph := &fakeGraph{}
	graph.readFn = func(q *storage.GraphQuery) (*storage.QueryResult, error) {
		return deviceRows{id: "n1", name: "volt"}.dispatch(q)
	}
	mgr := NewManager(graph, testSchemas(t))

	_, err := mgr.Update(context.Background(), mainBranch(), timestamp.MustParse(t2), "n1", map[string]interface{}{
		"name": map[string]interface{}{"is_protected": true},
	})
	require.NoError(t, err)

	require.Equal(t, []string{"attribute_flag_update"}, graph.writeNames())
	assert.Equal(t, true, graph.writes[0].Parameters["value"])
}

func TestManagerUpdateMandatoryToNull(t *testing.T) {
	graph := &fakeGraph{}
	graph.readFn = func(q *storage.GraphQuery) (*storage.QueryResult, error) {
		return deviceRows{id: "n1", name: "volt"}.dispatch(q)
	}
	mgr := NewManager(graph, testSchemas(t))

	_, err := mgr.Update(context.Background(), mainBranch(), timestamp.MustParse(t2), "n1", map[string]interface{}{
		"name": map[string]interface{}{"value": nil},
	})
	require.EqualError(t, err, "name is mandatory for Device")
	assert.Empty(t, graph.writes)
}

func TestManagerUpdateReplacesPeerSet(t *testing.T) {
	graph := &fakeGraph{}
	graph.readFn = func(q *storage.GraphQuery) (*storage.QueryResult, error) {
		if q.Name == "node_list" {
			// Both the device and the new peer resolve.
			ids, _ := q.Parameters["ids"].([]interface{})
			rows := [][]interface{}{}
			if containsValue(ids, "n1") {
				rows = append(rows, []interface{}{"n1", "Device", activeEdge("main", 1, t1)})
			}
			if containsValue(ids, "site-2") {
				rows = append(rows, []interface{}{"site-2", "Site", activeEdge("main", 1, t1)})
			}
			return &storage.QueryResult{Columns: []string{"uuid", "kind", "root_edge"}, Rows: rows}, nil
		}
		return deviceRows{id: "n1", name: "volt", site: "site-1", relID: "rl1"}.dispatch(q)
	}
	mgr := NewManager(graph, testSchemas(t))

	_, err := mgr.Update(context.Background(), mainBranch(), timestamp.MustParse(t2), "n1", map[string]interface{}{
		"site": "site-2",
	})
	require.NoError(t, err)

	names := graph.writeNames()
	require.Equal(t, []string{"relationship_add", "relationship_delete"}, names)
	assert.Equal(t, "site-2", graph.writes[0].Parameters["peer"])
	assert.Equal(t, "rl1", graph.writes[1].Parameters["rel_uuid"])
}

func TestManagerDelete(t *testing.T) {
	graph := &fakeGraph{}
	graph.readFn = func(q *storage.GraphQuery) (*storage.QueryResult, error) {
		return deviceRows{id: "n1", name: "volt"}.dispatch(q)
	}
	mgr := NewManager(graph, testSchemas(t))

	err := mgr.Delete(context.Background(), mainBranch(), timestamp.MustParse(t2), "n1")
	require.NoError(t, err)

	require.Equal(t, []string{
		"node_delete_attributes",
		"node_delete_relationships",
		"node_delete_root",
	}, graph.writeNames())
	for _, w := range graph.writes {
		assert.Equal(t, "n1", w.Parameters["uuid"])
		assert.Equal(t, t2, w.Parameters["at"])
	}
}

func TestManagerDeleteMissing(t *testing.T) {
	graph := &fakeGraph{}
	mgr := NewManager(graph, testSchemas(t))

	err := mgr.Delete(context.Background(), mainBranch(), timestamp.MustParse(t2), "n-404")
	require.EqualError(t, err, "Unable to find the node n-404 in the database")
	assert.Empty(t, graph.writes)
}

func TestManagerAddRelationshipCardinalityOneReplaces(t *testing.T) {
	graph := &fakeGraph{}
	graph.readFn = func(q *storage.GraphQuery) (*storage.QueryResult, error) {
		if q.Name == "node_list" {
			ids, _ := q.Parameters["ids"].([]interface{})
			rows := [][]interface{}{}
			if containsValue(ids, "n1") {
				rows = append(rows, []interface{}{"n1", "Device", activeEdge("main", 1, t1)})
			}
			if containsValue(ids, "site-2") {
				rows = append(rows, []interface{}{"site-2", "Site", activeEdge("main", 1, t1)})
			}
			return &storage.QueryResult{Columns: []string{"uuid", "kind", "root_edge"}, Rows: rows}, nil
		}
		return deviceRows{id: "n1", name: "volt", site: "site-1", relID: "rl1"}.dispatch(q)
	}
	mgr := NewManager(graph, testSchemas(t))

	_, err := mgr.AddRelationship(context.Background(), mainBranch(), timestamp.MustParse(t2), "n1", "site", "site-2")
	require.NoError(t, err)
	require.Equal(t, []string{"relationship_delete", "relationship_add"}, graph.writeNames())
}

func TestManagerAddRelationshipIdempotent(t *testing.T) {
	graph := &fakeGraph{}
	graph.readFn = func(q *storage.GraphQuery) (*storage.QueryResult, error) {
		return deviceRows{id: "n1", name: "volt", site: "site-1", relID: "rl1"}.dispatch(q)
	}
	mgr := NewManager(graph, testSchemas(t))

	n, err := mgr.AddRelationship(context.Background(), mainBranch(), timestamp.MustParse(t2), "n1", "site", "site-1")
	require.NoError(t, err)
	assert.Empty(t, graph.writes)
	assert.Equal(t, "n1", n.ID)
}

func TestManagerRemoveRelationship(t *testing.T) {
	graph := &fakeGraph{}
	graph.readFn = func(q *storage.GraphQuery) (*storage.QueryResult, error) {
		return deviceRows{id: "n1", name: "volt", site: "site-1", relID: "rl1"}.dispatch(q)
	}
	mgr := NewManager(graph, testSchemas(t))

	_, err := mgr.RemoveRelationship(context.Background(), mainBranch(), timestamp.MustParse(t2), "n1", "site", "site-1")
	require.NoError(t, err)
	require.Equal(t, []string{"relationship_delete"}, graph.writeNames())
	assert.Equal(t, "rl1", graph.writes[0].Parameters["rel_uuid"])
}

func TestManagerRemoveRelationshipMissingPeer(t *testing.T) {
	graph := &fakeGraph{}
	graph.readFn = func(q *storage.GraphQuery) (*storage.QueryResult, error) {
		return deviceRows{id: "n1", name: "volt"}.dispatch(q)
	}
	mgr := NewManager(graph, testSchemas(t))

	_, err := mgr.RemoveRelationship(context.Background(), mainBranch(), timestamp.MustParse(t2), "n1", "site", "site-9")
	require.EqualError(t, err, "node n1 has no site relationship with site-9")
	assert.True(t, errdefs.IsNotFound(err))
}
