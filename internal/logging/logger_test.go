package logging

import (
	"bytes"
	"context"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureStdout redirects the stdout log stream for the duration of fn.
func captureStdout(fn func()) string {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)
	fn()
	return buf.String()
}

func TestLevelFiltering(t *testing.T) {
	require.NoError(t, Initialize("warn"))
	logger := GetLogger("test.filter")

	out := captureStdout(func() {
		logger.Debug("not shown")
		logger.Info("not shown either")
		logger.Warn("shown")
	})

	assert.NotContains(t, out, "not shown")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "[WARN]")
	assert.Contains(t, out, "test.filter")
}

func TestPrintfFormatting(t *testing.T) {
	require.NoError(t, Initialize("info"))
	logger := GetLogger("test.printf")

	out := captureStdout(func() {
		logger.Info("merging branch %s at level %d", "change-42", 2)
	})

	assert.Contains(t, out, "merging branch change-42 at level 2")
}

func TestStructuredFields(t *testing.T) {
	require.NoError(t, Initialize("info"))
	logger := GetLogger("test.fields")

	out := captureStdout(func() {
		logger.InfoWithFields("query complete",
			Field("branch", "main"),
			Field("rows", 3),
		)
	})

	assert.Contains(t, out, "query complete")
	assert.Contains(t, out, "branch=main")
	assert.Contains(t, out, "rows=3")
}

func TestWithFieldImmutability(t *testing.T) {
	require.NoError(t, Initialize("info"))
	base := GetLogger("test.immutable")
	child := base.WithField("branch", "change-1")

	out := captureStdout(func() {
		base.Info("from base")
	})
	assert.NotContains(t, out, "branch=change-1")

	out = captureStdout(func() {
		child.Info("from child")
	})
	assert.Contains(t, out, "branch=change-1")
}

func TestWithContextTraceFields(t *testing.T) {
	require.NoError(t, Initialize("info"))
	logger := GetLogger("test.ctx")

	ctx := context.WithValue(context.Background(), TraceIDKey(), "trace-abc")
	ctx = context.WithValue(ctx, SpanIDKey(), "span-def")

	out := captureStdout(func() {
		logger.WithContext(ctx).Info("handling request")
	})

	assert.Contains(t, out, "trace_id=trace-abc")
	assert.Contains(t, out, "span_id=span-def")
}

func TestPackageLevelOverrides(t *testing.T) {
	require.NoError(t, Initialize("info", map[string]string{
		"core.diff": "debug",
		"storage.*": "error",
	}))
	defer func() { _ = SetPackageLogLevels(map[string]string{}) }()

	diffLogger := GetLogger("core.diff")
	storageLogger := GetLogger("storage.client")

	out := captureStdout(func() {
		diffLogger.Debug("range computed")
		storageLogger.Info("suppressed by override")
	})

	assert.Contains(t, out, "range computed")
	assert.NotContains(t, out, "suppressed by override")
}

func TestPackageLevelWildcardSpecificity(t *testing.T) {
	require.NoError(t, SetPackageLogLevels(map[string]string{
		"core.*":      "error",
		"core.node.*": "debug",
	}))
	defer func() { _ = SetPackageLogLevels(map[string]string{}) }()

	assert.Equal(t, DEBUG, GetPackageLogLevel("core.node.manager"))
	assert.Equal(t, ERROR, GetPackageLogLevel("core.merge"))
	assert.Equal(t, LogLevel(-1), GetPackageLogLevel("events"))
}

func TestSetPackageLogLevelsInvalid(t *testing.T) {
	err := SetPackageLogLevels(map[string]string{"core.diff": "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestFatalUsesExitHook(t *testing.T) {
	require.NoError(t, Initialize("info"))
	logger := GetLogger("test.fatal")

	exitCode := -1
	origExit := exitFunc
	exitFunc = func(code int) { exitCode = code }
	defer func() { exitFunc = origExit }()

	logger.Fatal("going down")
	assert.Equal(t, 1, exitCode)
}
