package logging

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// LogLevel orders message severities.
type LogLevel int

const (
	// DEBUG level for detailed debugging output.
	DEBUG LogLevel = iota
	// INFO level for normal operational messages.
	INFO
	// WARN level for recoverable anomalies.
	WARN
	// ERROR level for failures that do not stop the process.
	ERROR
	// FATAL level for failures that terminate the process.
	FATAL
)

const (
	strDebug = "DEBUG"
	strInfo  = "INFO"
	strWarn  = "WARN"
	strError = "ERROR"
	strFatal = "FATAL"
)

// errInvalidLevel builds the error for an unparseable level string.
func errInvalidLevel(levelStr string) error {
	return fmt.Errorf("invalid level: %s (must be DEBUG, INFO, WARN, ERROR, or FATAL)", levelStr)
}

// LogField is a structured key-value pair attached to a log entry.
type LogField struct {
	Key   string
	Value interface{}
}

// Field creates a structured logging field.
func Field(key string, value interface{}) LogField {
	return LogField{Key: key, Value: value}
}

// Logger writes leveled log entries for a named component.
type Logger struct {
	level  LogLevel
	name   string
	fields map[string]interface{}
	ctx    context.Context
}

// packageLogLevels holds per-component overrides, keyed by exact name or a
// "prefix.*" wildcard pattern.
var (
	packageLogLevels = make(map[string]LogLevel)
	packageLogMutex  sync.RWMutex
)

// SetPackageLogLevels replaces the per-component overrides. Patterns like
// "core.*" match "core.diff", "core.merge", and so on. An invalid level name
// rejects the whole call.
func SetPackageLogLevels(levels map[string]string) error {
	if levels == nil {
		return nil
	}

	parsed := make(map[string]LogLevel, len(levels))
	for pkg, levelStr := range levels {
		level, err := parseLevel(levelStr)
		if err != nil {
			return fmt.Errorf("invalid log level for package %q: %w", pkg, err)
		}
		parsed[pkg] = level
	}

	packageLogMutex.Lock()
	defer packageLogMutex.Unlock()
	packageLogLevels = parsed
	return nil
}

// GetPackageLogLevel resolves the override for a component name. Exact
// matches win over wildcard patterns; among patterns the longest (most
// specific) wins. Returns -1 when no override applies.
func GetPackageLogLevel(packageName string) LogLevel {
	packageLogMutex.RLock()
	defer packageLogMutex.RUnlock()

	if level, exists := packageLogLevels[packageName]; exists {
		return level
	}

	var best string
	for pattern := range packageLogLevels {
		if matchesPattern(packageName, pattern) && len(pattern) > len(best) {
			best = pattern
		}
	}
	if best != "" {
		return packageLogLevels[best]
	}

	return LogLevel(-1)
}

// matchesPattern reports whether a component name matches an override key.
// "core.*" matches any name beginning with "core.".
func matchesPattern(packageName, pattern string) bool {
	if packageName == pattern {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, ".*")
		return strings.HasPrefix(packageName, prefix+".")
	}
	return false
}
