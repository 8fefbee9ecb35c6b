// Package query builds the Cypher statements the engine runs against the
// graph. Builders return storage.GraphQuery values with bound parameters;
// nothing caller-controlled is ever spliced into query text except label and
// relationship identifiers, which are validated first.
package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tributarydb/tributary/internal/errdefs"
)

// Edge types of the graph. Every edge carries branch, branch_level, from,
// status, and (once closed) to.
const (
	EdgeIsPartOf     = "IS_PART_OF"
	EdgeHasAttribute = "HAS_ATTRIBUTE"
	EdgeHasValue     = "HAS_VALUE"
	EdgeIsVisible    = "IS_VISIBLE"
	EdgeIsProtected  = "IS_PROTECTED"
	EdgeHasSource    = "HAS_SOURCE"
	EdgeHasOwner     = "HAS_OWNER"
	EdgeIsRelated    = "IS_RELATED"
)

// Edge status values. A deleted edge is a tombstone that shadows lower
// branch levels; history is never removed.
const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

// Vertex labels.
const (
	LabelRoot           = "Root"
	LabelBranch         = "Branch"
	LabelNode           = "Node"
	LabelAttribute      = "Attribute"
	LabelAttributeValue = "AttributeValue"
	LabelBoolean        = "Boolean"
	LabelRelationship   = "Relationship"
)

// NullValue stands in for nil attribute values so the content-addressed
// MERGE has a literal to work with.
const NullValue = "NULL"

var identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidateIdentifier checks a string that must be spliced into query text as
// a label or relationship type.
func ValidateIdentifier(value string) error {
	if !identifierPattern.MatchString(value) {
		return errdefs.Newf(errdefs.KindValidation, "%q is not a valid graph identifier", value)
	}
	return nil
}

// labelExpr renders ":Node:TestCar" style label chains after validating each
// part.
func labelExpr(labels []string) (string, error) {
	var sb strings.Builder
	for _, label := range labels {
		if err := ValidateIdentifier(label); err != nil {
			return "", err
		}
		sb.WriteString(":")
		sb.WriteString(label)
	}
	return sb.String(), nil
}

// edgeProps renders the property block of a freshly created edge. Branch,
// level, and time come from the shared $branch/$branch_level/$at parameters;
// status is a validated literal.
func edgeProps(status string) string {
	return fmt.Sprintf(`{ branch: $branch, branch_level: $branch_level, from: $at, status: "%s" }`, status)
}

// mergeParams folds src into dst, returning dst.
func mergeParams(dst map[string]interface{}, src map[string]interface{}) map[string]interface{} {
	for key, value := range src {
		dst[key] = value
	}
	return dst
}

// NormalizeValue maps nil to the NULL literal so every attribute value has a
// storable representation.
func NormalizeValue(value interface{}) interface{} {
	if value == nil {
		return NullValue
	}
	return value
}

func errInvalidFlagEdge(edgeType string) error {
	return errdefs.Newf(errdefs.KindValidation, "%q is not a flag edge", edgeType)
}
