package timestamp

import (
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributarydb/tributary/internal/errdefs"
)

func TestParseRFC3339(t *testing.T) {
	ts, err := Parse("2023-06-01T12:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2023-06-01T12:30:00.000000000Z", ts.String())

	withNanos, err := Parse("2023-06-01T12:30:00.123456789Z")
	require.NoError(t, err)
	assert.Equal(t, "2023-06-01T12:30:00.123456789Z", withNanos.String())
}

func TestParseNormalizesToUTC(t *testing.T) {
	ts, err := Parse("2023-06-01T14:30:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, "2023-06-01T12:30:00.000000000Z", ts.String())
}

func TestParseDelta(t *testing.T) {
	before := time.Now().UTC()
	ts, err := Parse("90m")
	require.NoError(t, err)

	expected := before.Add(-90 * time.Minute)
	assert.WithinDuration(t, expected, ts.Time(), 2*time.Second)
}

func TestParseInvalid(t *testing.T) {
	for _, input := range []string{"", "yesterday-ish", "2023-13-45", "-5s"} {
		_, err := Parse(input)
		require.Error(t, err, "input %q", input)
		assert.True(t, errdefs.IsValidation(err))
	}
}

func TestNewAcceptsFlexibleInputs(t *testing.T) {
	ref := MustParse("2023-06-01T00:00:00Z")
	refTime := ref.Time()
	refStr := "2023-06-01T00:00:00Z"

	tests := []struct {
		name  string
		input interface{}
	}{
		{"timestamp", ref},
		{"timestamp pointer", &ref},
		{"time.Time", refTime},
		{"time pointer", &refTime},
		{"string", refStr},
		{"string pointer", &refStr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, err := New(tt.input)
			require.NoError(t, err)
			assert.True(t, ts.Equal(ref))
		})
	}
}

func TestNewNilIsNow(t *testing.T) {
	ts, err := New(nil)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), ts.Time(), 2*time.Second)
}

func TestNewRejectsUnknownTypes(t *testing.T) {
	_, err := New(42)
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))
}

func TestOrdering(t *testing.T) {
	earlier := MustParse("2023-06-01T00:00:00Z")
	later := MustParse("2023-06-01T00:00:01Z")

	assert.True(t, earlier.Before(later))
	assert.True(t, later.After(earlier))
	assert.False(t, earlier.Equal(later))
	assert.True(t, earlier.Equal(earlier))
}

// The serialized form must order lexicographically the same way the
// instants order chronologically, because edge window comparisons happen on
// strings inside the graph.
func TestStringOrderMatchesTimeOrder(t *testing.T) {
	instants := []Timestamp{
		MustParse("2023-06-01T00:00:00.5Z"),
		MustParse("2023-06-01T00:00:00Z"),
		MustParse("2023-06-01T00:00:00.45Z"),
		MustParse("2022-12-31T23:59:59.999999999Z"),
		MustParse("2023-06-01T00:00:01Z"),
	}

	byTime := append([]Timestamp{}, instants...)
	sort.Slice(byTime, func(i, j int) bool { return byTime[i].Before(byTime[j]) })

	serialized := make([]string, len(instants))
	for i, ts := range instants {
		serialized[i] = ts.String()
	}
	sort.Strings(serialized)

	for i := range byTime {
		assert.Equal(t, byTime[i].String(), serialized[i])
	}
}

func TestAddAndSub(t *testing.T) {
	base := MustParse("2023-06-01T01:00:00Z")
	shifted := base.Add(-time.Hour)
	assert.Equal(t, "2023-06-01T00:00:00.000000000Z", shifted.String())
	assert.Equal(t, time.Hour, base.Sub(shifted))
}

func TestJSONRoundTrip(t *testing.T) {
	original := MustParse("2023-06-01T12:00:00.25Z")

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Equal(t, `"2023-06-01T12:00:00.250000000Z"`, string(data))

	var decoded Timestamp
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Equal(original))
}

func TestZeroValue(t *testing.T) {
	var ts Timestamp
	assert.True(t, ts.IsZero())
	assert.False(t, Now().IsZero())
}
