package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributarydb/tributary/internal/errdefs"
)

func rootReadFn(rows [][]interface{}) func(*GraphQuery) (*QueryResult, error) {
	return func(query *GraphQuery) (*QueryResult, error) {
		if query.Name == "root_get" {
			return &QueryResult{Columns: []string{"uuid", "graph_version"}, Rows: rows}, nil
		}
		return &QueryResult{}, nil
	}
}

func writeNames(fake *fakeClient) []string {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	names := make([]string, 0, len(fake.writes))
	for _, write := range fake.writes {
		names = append(names, write.Name)
	}
	return names
}

func TestEnsureRootCreatesOnFreshGraph(t *testing.T) {
	fake := newFakeClient()
	fake.readFn = rootReadFn(nil)

	info, err := EnsureRoot(context.Background(), fake)
	require.NoError(t, err)
	assert.NotEmpty(t, info.UUID)
	assert.Equal(t, CurrentGraphVersion, info.GraphVersion)
	assert.Equal(t, []string{"root_create"}, writeNames(fake))
}

func TestEnsureRootReturnsExisting(t *testing.T) {
	fake := newFakeClient()
	fake.readFn = rootReadFn([][]interface{}{{"root-1", "0.2.0"}})

	info, err := EnsureRoot(context.Background(), fake)
	require.NoError(t, err)
	assert.Equal(t, "root-1", info.UUID)
	assert.Equal(t, "0.2.0", info.GraphVersion)
	assert.Equal(t, 0, fake.writeCount())
}

func TestEnsureRootRejectsMultipleRoots(t *testing.T) {
	fake := newFakeClient()
	fake.readFn = rootReadFn([][]interface{}{{"root-1", "0.2.0"}, {"root-2", "0.2.0"}})

	_, err := EnsureRoot(context.Background(), fake)
	require.Error(t, err)
	assert.True(t, errdefs.IsFatal(err))
	assert.EqualError(t, err, "Database is corrupted, more than 1 root node initialized")
}

func TestRunMigrationsFromLegacyGraph(t *testing.T) {
	fake := newFakeClient()
	fake.readFn = rootReadFn([][]interface{}{{"root-1", nil}})

	applied, err := RunMigrations(context.Background(), fake)
	require.NoError(t, err)
	assert.Equal(t, []string{"backfill-root-identity", "backfill-edge-branch-level"}, applied)
	assert.Equal(t, []string{
		"migrate_root_identity",
		"migrate_set_version",
		"migrate_edge_branch_level",
		"migrate_set_version",
	}, writeNames(fake))
}

func TestRunMigrationsFromIntermediateVersion(t *testing.T) {
	fake := newFakeClient()
	fake.readFn = rootReadFn([][]interface{}{{"root-1", "0.2.0"}})

	applied, err := RunMigrations(context.Background(), fake)
	require.NoError(t, err)
	assert.Equal(t, []string{"backfill-edge-branch-level"}, applied)
}

func TestRunMigrationsNoopWhenCurrent(t *testing.T) {
	fake := newFakeClient()
	fake.readFn = rootReadFn([][]interface{}{{"root-1", CurrentGraphVersion}})

	applied, err := RunMigrations(context.Background(), fake)
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.Equal(t, 0, fake.writeCount())
}

func TestRunMigrationsRejectsUnparseableVersion(t *testing.T) {
	fake := newFakeClient()
	fake.readFn = rootReadFn([][]interface{}{{"root-1", "not-a-version"}})

	_, err := RunMigrations(context.Background(), fake)
	require.Error(t, err)
	assert.True(t, errdefs.IsFatal(err))
}
