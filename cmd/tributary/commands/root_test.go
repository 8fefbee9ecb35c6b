package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevelFlagsDefault(t *testing.T) {
	level, packages, err := parseLogLevelFlags([]string{"info"})
	require.NoError(t, err)
	assert.Equal(t, "info", level)
	assert.Empty(t, packages)
}

func TestParseLogLevelFlagsSimpleOverride(t *testing.T) {
	level, _, err := parseLogLevelFlags([]string{"debug"})
	require.NoError(t, err)
	assert.Equal(t, "debug", level)
}

func TestParseLogLevelFlagsPerPackage(t *testing.T) {
	level, packages, err := parseLogLevelFlags([]string{"default=warn", "storage.client=debug"})
	require.NoError(t, err)
	assert.Equal(t, "warn", level)
	assert.Equal(t, map[string]string{"storage.client": "debug"}, packages)
}

func TestParseLogLevelFlagsEnvLowerPriority(t *testing.T) {
	t.Setenv("LOG_LEVEL_REGISTRY", "debug")

	_, packages, err := parseLogLevelFlags([]string{"registry=error"})
	require.NoError(t, err)
	assert.Equal(t, "error", packages["registry"])
}

func TestParseLogLevelFlagsEnvOnly(t *testing.T) {
	t.Setenv("LOG_LEVEL_STORAGE_CLIENT", "debug")

	level, packages, err := parseLogLevelFlags([]string{"info"})
	require.NoError(t, err)
	assert.Equal(t, "info", level)
	assert.Equal(t, "debug", packages["storage.client"])
}

func TestParseLogLevelFlagsRejectsInvalidDefault(t *testing.T) {
	_, _, err := parseLogLevelFlags([]string{"verbose"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestParseLogLevelFlagsRejectsInvalidPackageLevel(t *testing.T) {
	_, _, err := parseLogLevelFlags([]string{"storage.client=loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.client")
}

func TestConvertEnvKeyToPackageName(t *testing.T) {
	assert.Equal(t, "storage.client", convertEnvKeyToPackageName("LOG_LEVEL_STORAGE_CLIENT"))
	assert.Equal(t, "registry", convertEnvKeyToPackageName("LOG_LEVEL_REGISTRY"))
}
