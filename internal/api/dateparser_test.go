package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributarydb/tributary/internal/errdefs"
)

func TestParseTimestampRFC3339(t *testing.T) {
	ts, err := ParseTimestamp("2023-06-01T12:30:00Z", "at")
	require.NoError(t, err)
	assert.Equal(t, "2023-06-01T12:30:00.000000000Z", ts.String())
}

func TestParseTimestampUnixSeconds(t *testing.T) {
	ts, err := ParseTimestamp("1685622600", "at")
	require.NoError(t, err)
	assert.Equal(t, int64(1685622600), ts.Time().Unix())
}

func TestParseTimestampNegativeUnixRejected(t *testing.T) {
	_, err := ParseTimestamp("-42", "at")
	require.Error(t, err)
	assert.Equal(t, errdefs.KindValidation, errdefs.KindOf(err))
}

func TestParseTimestampHumanReadable(t *testing.T) {
	before := time.Now().Add(-2 * time.Hour)
	ts, err := ParseTimestamp("2 hours ago", "time_from")
	require.NoError(t, err)
	after := time.Now().Add(-2 * time.Hour)

	parsed := ts.Time()
	assert.False(t, parsed.Before(before.Add(-time.Minute)), "parsed %v, expected near %v", parsed, before)
	assert.False(t, parsed.After(after.Add(time.Minute)), "parsed %v, expected near %v", parsed, after)
}

func TestParseTimestampInvalid(t *testing.T) {
	_, err := ParseTimestamp("not a date at all zzz", "time_to")
	require.Error(t, err)
	assert.Equal(t, errdefs.KindValidation, errdefs.KindOf(err))
	assert.Contains(t, err.Error(), "time_to")
}

func TestParseTimestampEmptyRequired(t *testing.T) {
	_, err := ParseTimestamp("", "at")
	require.Error(t, err)
	assert.Equal(t, errdefs.KindValidation, errdefs.KindOf(err))
	assert.Contains(t, err.Error(), "at is required")
}

func TestParseOptionalTimestampEmpty(t *testing.T) {
	ts, err := ParseOptionalTimestamp("", "time_from")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())
}

func TestParseOptionalTimestampDelegates(t *testing.T) {
	ts, err := ParseOptionalTimestamp("2023-06-01T00:00:00Z", "time_from")
	require.NoError(t, err)
	assert.False(t, ts.IsZero())

	_, err = ParseOptionalTimestamp("zzz not parseable zzz", "time_from")
	require.Error(t, err)
}
