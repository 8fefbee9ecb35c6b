package api

import (
	"strconv"
	"time"

	dps "github.com/markusmobius/go-dateparser"

	"github.com/tributarydb/tributary/internal/core/timestamp"
	"github.com/tributarydb/tributary/internal/errdefs"
)

// ParseTimestamp parses a time parameter, supporting RFC 3339, Unix seconds,
// and human-readable dates ("2 hours ago", "yesterday").
// fieldName is used for error messages (e.g., "time_from", "at").
func ParseTimestamp(value, fieldName string) (timestamp.Timestamp, error) {
	if value == "" {
		return timestamp.Timestamp{}, errdefs.Newf(errdefs.KindValidation, "%s is required", fieldName)
	}

	if ts, err := timestamp.Parse(value); err == nil {
		return ts, nil
	}

	// Try Unix seconds before handing the string to the natural-language
	// parser: bare digits would otherwise parse as a year.
	if unix, err := strconv.ParseInt(value, 10, 64); err == nil {
		if unix < 0 {
			return timestamp.Timestamp{}, errdefs.Newf(errdefs.KindValidation, "%s must be non-negative", fieldName)
		}
		return timestamp.FromTime(time.Unix(unix, 0)), nil
	}

	parser := dps.Parser{}
	cfg := &dps.Configuration{
		// Interpret partial dates like "March" inside the current period
		// rather than the previous one.
		PreferredDateSource: dps.CurrentPeriod,
	}

	parsed, err := parser.Parse(cfg, value)
	if err != nil || parsed.IsZero() {
		return timestamp.Timestamp{}, errdefs.Newf(errdefs.KindValidation,
			"%s must be a valid timestamp or human-readable date: %q", fieldName, value)
	}

	return timestamp.FromTime(parsed.Time), nil
}

// ParseOptionalTimestamp parses an optional time parameter. An empty string
// returns the zero Timestamp, which downstream code treats as "use the
// default window bound".
func ParseOptionalTimestamp(value, fieldName string) (timestamp.Timestamp, error) {
	if value == "" {
		return timestamp.Timestamp{}, nil
	}
	return ParseTimestamp(value, fieldName)
}
