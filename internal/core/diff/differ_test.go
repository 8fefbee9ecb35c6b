package diff

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributarydb/tributary/internal/core/branch"
	"github.com/tributarydb/tributary/internal/core/timestamp"
	"github.com/tributarydb/tributary/internal/errdefs"
	"github.com/tributarydb/tributary/internal/storage"
)

const (
	t0 = "2022-06-01T00:00:00.000000000Z"
	t1 = "2023-01-01T00:00:00.000000000Z"
	t2 = "2023-06-01T00:00:00.000000000Z"
	t3 = "2023-12-01T00:00:00.000000000Z"
)

type fakeGraph struct {
	mu     sync.Mutex
	reads  []*storage.GraphQuery
	readFn func(q *storage.GraphQuery) (*storage.QueryResult, error)
}

func (f *fakeGraph) Connect(ctx context.Context) error { return nil }
func (f *fakeGraph) Close() error                      { return nil }
func (f *fakeGraph) Ping(ctx context.Context) error    { return nil }

func (f *fakeGraph) ExecuteRead(ctx context.Context, q *storage.GraphQuery) (*storage.QueryResult, error) {
	f.mu.Lock()
	f.reads = append(f.reads, q)
	f.mu.Unlock()
	if f.readFn != nil {
		return f.readFn(q)
	}
	return &storage.QueryResult{}, nil
}

func (f *fakeGraph) ExecuteWrite(ctx context.Context, q *storage.GraphQuery) (*storage.QueryResult, error) {
	return &storage.QueryResult{}, nil
}

func (f *fakeGraph) InitializeSchema(ctx context.Context) error { return nil }
func (f *fakeGraph) GetGraphStats(ctx context.Context) (*storage.GraphStats, error) {
	return &storage.GraphStats{}, nil
}
func (f *fakeGraph) DeleteGraph(ctx context.Context) error { return nil }

func (f *fakeGraph) recordedReads() []*storage.GraphQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*storage.GraphQuery, len(f.reads))
	copy(out, f.reads)
	return out
}

func activeEdge(branchName string, level int, from string) map[string]interface{} {
	return map[string]interface{}{
		"branch": branchName, "branch_level": int64(level), "status": "active", "from": from,
	}
}

func closedEdge(branchName string, level int, from, to string) map[string]interface{} {
	return map[string]interface{}{
		"branch": branchName, "branch_level": int64(level), "status": "active", "from": from, "to": to,
	}
}

func deletedEdge(branchName string, level int, from string) map[string]interface{} {
	return map[string]interface{}{
		"branch": branchName, "branch_level": int64(level), "status": "deleted", "from": from,
	}
}

// fixture dispatches results by branch and query name so branch and origin
// diffs can run against the same fake.
type fixture map[string]map[string]*storage.QueryResult

func (fix fixture) graph() *fakeGraph {
	return &fakeGraph{readFn: func(q *storage.GraphQuery) (*storage.QueryResult, error) {
		branchName, _ := q.Parameters["branch"].(string)
		if byName, ok := fix[branchName]; ok {
			if result, ok := byName[q.Name]; ok {
				return result, nil
			}
		}
		return &storage.QueryResult{}, nil
	}}
}

func nodeEdgeRows(rows ...[]interface{}) *storage.QueryResult {
	return &storage.QueryResult{Columns: []string{"node_uuid", "kind", "edge"}, Rows: rows}
}

func attrEdgeRows(rows ...[]interface{}) *storage.QueryResult {
	return &storage.QueryResult{Columns: []string{"node_uuid", "kind", "attr_uuid", "attr_name", "edge"}, Rows: rows}
}

func attrPropRows(rows ...[]interface{}) *storage.QueryResult {
	return &storage.QueryResult{
		Columns: []string{"node_uuid", "kind", "attr_uuid", "attr_name", "prop_type", "edge", "target_value", "target_uuid"},
		Rows:    rows,
	}
}

func relEdgeRows(rows ...[]interface{}) *storage.QueryResult {
	return &storage.QueryResult{Columns: []string{"node_uuid", "node_kind", "rel_uuid", "rel_name", "edge"}, Rows: rows}
}

func relPropRows(rows ...[]interface{}) *storage.QueryResult {
	return &storage.QueryResult{
		Columns: []string{"rel_uuid", "rel_name", "prop_type", "edge", "value", "peer_ids"},
		Rows:    rows,
	}
}

func fork() *branch.Branch {
	return &branch.Branch{
		ID:             "b-change1",
		Name:           "change1",
		Status:         branch.StatusOpen,
		Parent:         branch.DefaultBranchName,
		BranchedFrom:   timestamp.MustParse(t1),
		CreatedAt:      timestamp.MustParse(t1),
		HierarchyLevel: branch.ForkHierarchyLevel,
	}
}

func mustCalculate(t *testing.T, fix fixture, branchName string) *Diff {
	t.Helper()
	d := NewDiffer(fix.graph())
	diff, err := d.Calculate(context.Background(), branchName, timestamp.MustParse(t1), timestamp.MustParse(t3))
	require.NoError(t, err)
	return diff
}

func TestCalculateValueUpdate(t *testing.T) {
	fix := fixture{
		"change1": {
			"diff_attribute_property_edges": attrPropRows(
				[]interface{}{"n1", "Device", "a1", "name", "HAS_VALUE", closedEdge("change1", 2, t1, t2), "volt", nil},
				[]interface{}{"n1", "Device", "a1", "name", "HAS_VALUE", activeEdge("change1", 2, t2), "volt2", nil},
			),
		},
	}

	diff := mustCalculate(t, fix, "change1")

	require.Len(t, diff.Nodes, 1)
	entry := diff.Nodes["n1"]
	require.NotNil(t, entry)
	assert.Equal(t, "Device", entry.Kind)
	assert.Equal(t, ActionUpdated, entry.Action)

	require.Len(t, entry.Attributes, 1)
	attr := entry.Attributes[0]
	assert.Equal(t, "name", attr.Name)
	assert.Equal(t, ActionUpdated, attr.Action)

	require.Len(t, attr.Properties, 1)
	prop := attr.Properties[0]
	assert.Equal(t, "HAS_VALUE", prop.Type)
	assert.Equal(t, ActionUpdated, prop.Action)
	assert.Equal(t, "volt2", prop.Value)
	assert.Equal(t, "volt", prop.Previous)
	assert.Equal(t, t2, prop.ChangedAt)

	paths := diff.Paths()
	require.Len(t, paths, 1)
	assert.Equal(t, "node/n1/name/HAS_VALUE", paths[0].String())
	assert.False(t, diff.IsEmpty())
}

func TestCalculateNodeAdded(t *testing.T) {
	fix := fixture{
		"change1": {
			"diff_node_edges": nodeEdgeRows(
				[]interface{}{"n1", "Device", activeEdge("change1", 2, t2)},
			),
			"diff_attribute_edges": attrEdgeRows(
				[]interface{}{"n1", "Device", "a1", "name", activeEdge("change1", 2, t2)},
			),
			"diff_attribute_property_edges": attrPropRows(
				[]interface{}{"n1", "Device", "a1", "name", "HAS_VALUE", activeEdge("change1", 2, t2), "volt", nil},
				[]interface{}{"n1", "Device", "a1", "name", "IS_VISIBLE", activeEdge("change1", 2, t2), true, nil},
				[]interface{}{"n1", "Device", "a1", "name", "HAS_SOURCE", activeEdge("change1", 2, t2), nil, "acc-1"},
			),
		},
	}

	diff := mustCalculate(t, fix, "change1")

	entry := diff.Nodes["n1"]
	require.NotNil(t, entry)
	assert.Equal(t, ActionAdded, entry.Action)
	assert.Equal(t, t2, entry.ChangedAt)

	require.Len(t, entry.Attributes, 1)
	attr := entry.Attributes[0]
	assert.Equal(t, ActionAdded, attr.Action)

	require.Len(t, attr.Properties, 3)
	byType := map[string]*PropertyDiff{}
	for _, prop := range attr.Properties {
		byType[prop.Type] = prop
	}
	assert.Equal(t, ActionAdded, byType["HAS_VALUE"].Action)
	assert.Equal(t, "volt", byType["HAS_VALUE"].Value)
	assert.Equal(t, ActionAdded, byType["IS_VISIBLE"].Action)
	assert.Equal(t, true, byType["IS_VISIBLE"].Value)
	assert.Equal(t, ActionAdded, byType["HAS_SOURCE"].Action)
	assert.Equal(t, "acc-1", byType["HAS_SOURCE"].Value)

	pathStrings := make([]string, 0)
	for _, p := range diff.Paths() {
		pathStrings = append(pathStrings, p.String())
	}
	assert.Contains(t, pathStrings, "node/n1/name/HAS_ATTRIBUTE")
	assert.Contains(t, pathStrings, "node/n1/name/HAS_VALUE")
}

func TestCalculateNodeRemoved(t *testing.T) {
	fix := fixture{
		"change1": {
			"diff_node_edges": nodeEdgeRows(
				[]interface{}{"n1", "Device", deletedEdge("change1", 2, t2)},
			),
			"diff_attribute_edges": attrEdgeRows(
				[]interface{}{"n1", "Device", "a1", "name", deletedEdge("change1", 2, t2)},
			),
			"diff_relationship_edges": relEdgeRows(
				[]interface{}{"n1", "Device", "rl1", "device__site", deletedEdge("change1", 2, t2)},
				[]interface{}{"s1", "Site", "rl1", "device__site", deletedEdge("change1", 2, t2)},
			),
		},
	}

	diff := mustCalculate(t, fix, "change1")

	entry := diff.Nodes["n1"]
	require.NotNil(t, entry)
	assert.Equal(t, ActionRemoved, entry.Action)
	assert.Equal(t, t2, entry.ChangedAt)
	require.Len(t, entry.Attributes, 1)
	assert.Equal(t, ActionRemoved, entry.Attributes[0].Action)

	rel := diff.Relationships["rl1"]
	require.NotNil(t, rel)
	assert.Equal(t, ActionRemoved, rel.Action)
	assert.Equal(t, []Peer{{ID: "n1", Kind: "Device"}, {ID: "s1", Kind: "Site"}}, rel.Peers)

	pathStrings := make([]string, 0)
	for _, p := range diff.Paths() {
		pathStrings = append(pathStrings, p.String())
	}
	assert.Contains(t, pathStrings, "node/n1/name/HAS_ATTRIBUTE")
	assert.Contains(t, pathStrings, "relationships/device__site/rl1/IS_RELATED")
}

func TestCalculateAddThenRemoveEndsRemoved(t *testing.T) {
	fix := fixture{
		"change1": {
			"diff_node_edges": nodeEdgeRows(
				[]interface{}{"n1", "Device", deletedEdge("change1", 2, t2)},
				[]interface{}{"n1", "Device", closedEdge("change1", 2, t1, t2)},
			),
		},
	}

	diff := mustCalculate(t, fix, "change1")

	entry := diff.Nodes["n1"]
	require.NotNil(t, entry)
	assert.Equal(t, ActionRemoved, entry.Action)
	assert.Equal(t, t2, entry.ChangedAt)
}

func TestCalculateRelationshipAdded(t *testing.T) {
	fix := fixture{
		"change1": {
			"diff_relationship_edges": relEdgeRows(
				[]interface{}{"n1", "Device", "rl1", "device__site", activeEdge("change1", 2, t2)},
				[]interface{}{"s1", "Site", "rl1", "device__site", activeEdge("change1", 2, t2)},
			),
			"diff_relationship_property_edges": relPropRows(
				[]interface{}{"rl1", "device__site", "IS_PROTECTED", activeEdge("change1", 2, t2), true, []interface{}{"n1", "s1"}},
			),
		},
	}

	diff := mustCalculate(t, fix, "change1")

	require.Len(t, diff.Relationships, 1)
	rel := diff.Relationships["rl1"]
	require.NotNil(t, rel)
	assert.Equal(t, ActionAdded, rel.Action)
	assert.Equal(t, "device__site", rel.Identifier)
	assert.Equal(t, []Peer{{ID: "n1", Kind: "Device"}, {ID: "s1", Kind: "Site"}}, rel.Peers)

	require.Len(t, rel.Properties, 1)
	prop := rel.Properties[0]
	assert.Equal(t, "IS_PROTECTED", prop.Type)
	assert.Equal(t, ActionAdded, prop.Action)
	assert.Equal(t, true, prop.Value)

	pathStrings := make([]string, 0)
	for _, p := range diff.Paths() {
		pathStrings = append(pathStrings, p.String())
	}
	assert.Contains(t, pathStrings, "relationships/device__site/rl1/IS_RELATED")
	assert.Contains(t, pathStrings, "relationships/device__site/rl1/IS_PROTECTED")
}

func TestCalculateRelationshipFlagUpdate(t *testing.T) {
	fix := fixture{
		"change1": {
			"diff_relationship_property_edges": relPropRows(
				[]interface{}{"rl1", "device__site", "IS_PROTECTED", closedEdge("change1", 2, t1, t2), false, []interface{}{"n1", "s1"}},
				[]interface{}{"rl1", "device__site", "IS_PROTECTED", activeEdge("change1", 2, t2), true, []interface{}{"n1", "s1"}},
			),
		},
	}

	diff := mustCalculate(t, fix, "change1")

	rel := diff.Relationships["rl1"]
	require.NotNil(t, rel)
	assert.Equal(t, ActionUpdated, rel.Action)

	require.Len(t, rel.Properties, 1)
	prop := rel.Properties[0]
	assert.Equal(t, ActionUpdated, prop.Action)
	assert.Equal(t, true, prop.Value)
	assert.Equal(t, false, prop.Previous)

	paths := diff.Paths()
	require.Len(t, paths, 1)
	assert.Equal(t, "relationships/device__site/rl1/IS_PROTECTED", paths[0].String())
}

func TestConflicts(t *testing.T) {
	fix := fixture{
		"change1": {
			"diff_attribute_property_edges": attrPropRows(
				[]interface{}{"n1", "Device", "a1", "name", "HAS_VALUE", activeEdge("change1", 2, t2), "volt2", nil},
			),
		},
		"main": {
			"diff_attribute_property_edges": attrPropRows(
				[]interface{}{"n1", "Device", "a1", "name", "HAS_VALUE", activeEdge("main", 1, t2), "volt-main", nil},
				[]interface{}{"n2", "Device", "a7", "name", "HAS_VALUE", activeEdge("main", 1, t2), "other", nil},
			),
		},
	}

	d := NewDiffer(fix.graph())
	conflicts, err := d.Conflicts(context.Background(), fork(), timestamp.Timestamp{}, timestamp.Timestamp{})
	require.NoError(t, err)

	require.Len(t, conflicts, 1)
	assert.Equal(t, "Conflict detected at node/n1/name/HAS_VALUE", conflicts[0].Message())
	assert.Equal(t, "change1", conflicts[0].Branch)
	assert.Equal(t, "main", conflicts[0].Origin)
}

func TestConflictsNoOverlap(t *testing.T) {
	fix := fixture{
		"change1": {
			"diff_attribute_property_edges": attrPropRows(
				[]interface{}{"n1", "Device", "a1", "name", "HAS_VALUE", activeEdge("change1", 2, t2), "volt2", nil},
			),
		},
		"main": {
			"diff_attribute_property_edges": attrPropRows(
				[]interface{}{"n2", "Device", "a7", "name", "HAS_VALUE", activeEdge("main", 1, t2), "other", nil},
			),
		},
	}

	d := NewDiffer(fix.graph())
	conflicts, err := d.Conflicts(context.Background(), fork(), timestamp.Timestamp{}, timestamp.Timestamp{})
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestBranchDiffWindowDefaults(t *testing.T) {
	graph := &fakeGraph{}
	d := NewDiffer(graph)

	_, err := d.BranchDiff(context.Background(), fork(), timestamp.Timestamp{}, timestamp.Timestamp{})
	require.NoError(t, err)

	reads := graph.recordedReads()
	require.Len(t, reads, 5)
	for _, q := range reads {
		assert.Equal(t, "change1", q.Parameters["branch"])
		assert.Equal(t, t1, q.Parameters["start"])
		assert.NotEmpty(t, q.Parameters["end"])
	}
}

func TestBranchDiffClampsStartToCreation(t *testing.T) {
	graph := &fakeGraph{}
	d := NewDiffer(graph)

	_, err := d.BranchDiff(context.Background(), fork(), timestamp.MustParse(t0), timestamp.MustParse(t3))
	require.NoError(t, err)

	for _, q := range graph.recordedReads() {
		assert.Equal(t, t1, q.Parameters["start"])
		assert.Equal(t, t3, q.Parameters["end"])
	}
}

func TestBranchDiffKeepsLaterStart(t *testing.T) {
	graph := &fakeGraph{}
	d := NewDiffer(graph)

	_, err := d.BranchDiff(context.Background(), fork(), timestamp.MustParse(t2), timestamp.MustParse(t3))
	require.NoError(t, err)

	for _, q := range graph.recordedReads() {
		assert.Equal(t, t2, q.Parameters["start"])
	}
}

func TestOriginDiffTargetsParentSinceBranchPoint(t *testing.T) {
	graph := &fakeGraph{}
	d := NewDiffer(graph)

	_, err := d.OriginDiff(context.Background(), fork(), timestamp.MustParse(t0), timestamp.MustParse(t3))
	require.NoError(t, err)

	reads := graph.recordedReads()
	require.Len(t, reads, 5)
	for _, q := range reads {
		assert.Equal(t, "main", q.Parameters["branch"])
		assert.Equal(t, t1, q.Parameters["start"])
	}
}

func TestOriginDiffRefusedOnDefaultBranch(t *testing.T) {
	def, err := branch.NewDefault()
	require.NoError(t, err)

	d := NewDiffer(&fakeGraph{})
	_, err = d.OriginDiff(context.Background(), def, timestamp.Timestamp{}, timestamp.Timestamp{})
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))

	_, err = d.Conflicts(context.Background(), def, timestamp.Timestamp{}, timestamp.Timestamp{})
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))
}
