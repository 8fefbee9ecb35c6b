// Package timestamp provides the canonical time representation used across
// the data store. Every edge window, branch marker, and query parameter is a
// Timestamp; naked time.Time values never reach the graph.
package timestamp

import (
	"time"

	"github.com/tributarydb/tributary/internal/errdefs"
)

// Layout is the serialization format. The fractional seconds are fixed-width
// so that lexicographic ordering of serialized values matches chronological
// ordering, which the graph relies on when comparing edge windows.
const Layout = "2006-01-02T15:04:05.000000000Z"

// Timestamp is an immutable UTC instant.
type Timestamp struct {
	t time.Time
}

// Now returns the current instant.
func Now() Timestamp {
	return Timestamp{t: time.Now().UTC()}
}

// FromTime converts a time.Time, normalizing to UTC.
func FromTime(t time.Time) Timestamp {
	return Timestamp{t: t.UTC()}
}

// New builds a Timestamp from a flexible input:
//
//   - nil → Now()
//   - Timestamp / *Timestamp → as-is (nil pointer → Now())
//   - time.Time / *time.Time → converted
//   - string / *string → RFC 3339, or a delta like "10s" / "1h30m"
//     meaning that duration before now
//
// Anything else is a validation error.
func New(value interface{}) (Timestamp, error) {
	switch v := value.(type) {
	case nil:
		return Now(), nil
	case Timestamp:
		return v, nil
	case *Timestamp:
		if v == nil {
			return Now(), nil
		}
		return *v, nil
	case time.Time:
		return FromTime(v), nil
	case *time.Time:
		if v == nil {
			return Now(), nil
		}
		return FromTime(*v), nil
	case string:
		return Parse(v)
	case *string:
		if v == nil {
			return Now(), nil
		}
		return Parse(*v)
	default:
		return Timestamp{}, errdefs.Newf(errdefs.KindValidation, "%v is not a valid time", value)
	}
}

// Parse builds a Timestamp from an RFC 3339 string or a delta string
// ("10s", "1h30m") meaning that duration before now.
func Parse(s string) (Timestamp, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return FromTime(t), nil
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return Timestamp{t: time.Now().UTC().Add(-d)}, nil
	}
	return Timestamp{}, errdefs.Newf(errdefs.KindValidation, "%q is not a valid time", s)
}

// MustParse is Parse for static inputs in tests and fixtures; it panics on
// invalid input.
func MustParse(s string) Timestamp {
	ts, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return ts
}

// Time exposes the underlying instant.
func (ts Timestamp) Time() time.Time {
	return ts.t
}

// String serializes to the fixed-width RFC 3339 layout.
func (ts Timestamp) String() string {
	return ts.t.UTC().Format(Layout)
}

// IsZero reports whether the Timestamp is the zero value.
func (ts Timestamp) IsZero() bool {
	return ts.t.IsZero()
}

// Before reports whether ts is strictly earlier than other.
func (ts Timestamp) Before(other Timestamp) bool {
	return ts.t.Before(other.t)
}

// After reports whether ts is strictly later than other.
func (ts Timestamp) After(other Timestamp) bool {
	return ts.t.After(other.t)
}

// Equal reports whether both represent the same instant.
func (ts Timestamp) Equal(other Timestamp) bool {
	return ts.t.Equal(other.t)
}

// Add returns a Timestamp shifted by d (negative d moves into the past).
func (ts Timestamp) Add(d time.Duration) Timestamp {
	return Timestamp{t: ts.t.Add(d)}
}

// Sub returns the duration ts - other.
func (ts Timestamp) Sub(other Timestamp) time.Duration {
	return ts.t.Sub(other.t)
}

// MarshalJSON serializes as a quoted Layout string.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + ts.String() + `"`), nil
}

// UnmarshalJSON accepts any input Parse accepts.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}
