package branch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributarydb/tributary/internal/core/timestamp"
	"github.com/tributarydb/tributary/internal/errdefs"
)

func TestValidateName(t *testing.T) {
	valid := []string{
		"main",
		"change-123",
		"feature/dns",
		"user.name_01",
		"A",
		"0branch",
		strings.Repeat("a", 64),
	}
	for _, name := range valid {
		assert.NoError(t, ValidateName(name), "name %q", name)
	}

	invalid := []string{
		"",
		"-leading-dash",
		".leading-dot",
		"/leading-slash",
		"has space",
		"has$dollar",
		"é-accent",
		strings.Repeat("a", 65),
	}
	for _, name := range invalid {
		err := ValidateName(name)
		require.Error(t, err, "name %q", name)
		assert.True(t, errdefs.IsInvalidBranchName(err))
		assert.Equal(t, ErrInvalidNameMessage, err.Error())
	}
}

func TestNewBranchDefaults(t *testing.T) {
	b, err := New("change-1", "first change", true)
	require.NoError(t, err)

	assert.NotEmpty(t, b.ID)
	assert.Equal(t, "change-1", b.Name)
	assert.Equal(t, StatusOpen, b.Status)
	assert.Equal(t, DefaultBranchName, b.Parent)
	assert.Equal(t, ForkHierarchyLevel, b.HierarchyLevel)
	assert.False(t, b.IsDefault)
	assert.True(t, b.IsDataOnly)
	assert.True(t, b.BranchedFrom.Equal(b.CreatedAt))
}

func TestNewBranchRejectsBadName(t *testing.T) {
	_, err := New("not valid", "", false)
	require.Error(t, err)
	assert.True(t, errdefs.IsInvalidBranchName(err))
}

func TestNewDefault(t *testing.T) {
	b, err := NewDefault()
	require.NoError(t, err)
	assert.Equal(t, DefaultBranchName, b.Name)
	assert.Equal(t, DefaultHierarchyLevel, b.HierarchyLevel)
	assert.True(t, b.IsDefault)
	assert.Equal(t, DefaultBranchName, b.Parent)
}

func TestQueryBranchesOnDefault(t *testing.T) {
	b, err := NewDefault()
	require.NoError(t, err)

	at := timestamp.MustParse("2023-06-01T00:00:00Z")
	pairs := b.QueryBranches(at, false)

	require.Len(t, pairs, 1)
	assert.Equal(t, DefaultBranchName, pairs[0].Branch)
	assert.True(t, pairs[0].At.Equal(at))
}

func TestQueryBranchesOnFork(t *testing.T) {
	b, err := New("change-1", "", false)
	require.NoError(t, err)
	b.BranchedFrom = timestamp.MustParse("2023-06-01T00:00:00Z")

	at := timestamp.MustParse("2023-06-02T00:00:00Z")
	pairs := b.QueryBranches(at, false)

	require.Len(t, pairs, 2)
	// Parent is pinned at the fork point; the branch itself reads at the
	// query time.
	assert.Equal(t, DefaultBranchName, pairs[0].Branch)
	assert.True(t, pairs[0].At.Equal(b.BranchedFrom))
	assert.Equal(t, "change-1", pairs[1].Branch)
	assert.True(t, pairs[1].At.Equal(at))
}

func TestQueryBranchesEphemeralRebase(t *testing.T) {
	b, err := New("change-1", "", false)
	require.NoError(t, err)
	b.BranchedFrom = timestamp.MustParse("2023-06-01T00:00:00Z")

	at := timestamp.MustParse("2023-06-02T00:00:00Z")
	pairs := b.QueryBranches(at, true)

	require.Len(t, pairs, 2)
	assert.True(t, pairs[0].At.Equal(at), "ephemeral rebase reads the parent at the query time")
	assert.True(t, pairs[1].At.Equal(at))
}

func TestQueryFilterRendering(t *testing.T) {
	b, err := New("change-1", "", false)
	require.NoError(t, err)
	b.BranchedFrom = timestamp.MustParse("2023-06-01T00:00:00Z")

	at := timestamp.MustParse("2023-06-02T00:00:00Z")
	filters, params := b.QueryFilter([]string{"r1", "r2"}, at, false)

	require.Len(t, filters, 2)

	assert.Equal(t, "main", params["branch0"])
	assert.Equal(t, b.BranchedFrom.String(), params["time0"])
	assert.Equal(t, "change-1", params["branch1"])
	assert.Equal(t, at.String(), params["time1"])

	// Each filter covers both lineage pairs for its relationship variable.
	assert.Contains(t, filters[0], "r1.branch = $branch0")
	assert.Contains(t, filters[0], "r1.branch = $branch1")
	assert.Contains(t, filters[0], "r1.from <= $time0")
	assert.Contains(t, filters[0], "r1.to IS NULL")
	assert.Contains(t, filters[0], "r1.to > $time1")
	assert.NotContains(t, filters[0], "r2.")
	assert.Contains(t, filters[1], "r2.branch = $branch0")

	// Open-or-closed forms are OR-joined and parenthesized so callers can
	// AND-join per-relationship filters.
	assert.True(t, strings.HasPrefix(filters[0], "("))
	assert.True(t, strings.HasSuffix(filters[0], ")"))
}

func TestQueryFilterOnDefaultBranch(t *testing.T) {
	b, err := NewDefault()
	require.NoError(t, err)

	at := timestamp.MustParse("2023-06-02T00:00:00Z")
	filters, params := b.QueryFilter([]string{"r"}, at, false)

	require.Len(t, filters, 1)
	assert.Len(t, params, 2)
	assert.NotContains(t, filters[0], "$branch1")
}

func TestPropertiesRoundTrip(t *testing.T) {
	b, err := New("change-1", "round trip", true)
	require.NoError(t, err)
	b.SchemaHash = "abc123"

	restored, err := FromProperties(b.ToProperties())
	require.NoError(t, err)

	assert.Equal(t, b.ID, restored.ID)
	assert.Equal(t, b.Name, restored.Name)
	assert.Equal(t, b.Description, restored.Description)
	assert.Equal(t, b.Status, restored.Status)
	assert.Equal(t, b.Parent, restored.Parent)
	assert.True(t, b.BranchedFrom.Equal(restored.BranchedFrom))
	assert.True(t, b.CreatedAt.Equal(restored.CreatedAt))
	assert.Equal(t, b.HierarchyLevel, restored.HierarchyLevel)
	assert.Equal(t, b.IsDataOnly, restored.IsDataOnly)
	assert.Equal(t, b.SchemaHash, restored.SchemaHash)
}

func TestFromPropertiesRequiresName(t *testing.T) {
	_, err := FromProperties(map[string]interface{}{"status": StatusOpen})
	require.Error(t, err)
	assert.True(t, errdefs.IsFatal(err))
}

func TestLineageBranchNames(t *testing.T) {
	def, err := NewDefault()
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, def.LineageBranchNames())

	fork, err := New("change-1", "", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "change-1"}, fork.LineageBranchNames())
}
