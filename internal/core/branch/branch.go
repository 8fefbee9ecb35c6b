// Package branch defines branch records and the visibility filters that
// scope every graph read to a branch lineage at a point in time.
package branch

import (
	"regexp"

	"github.com/google/uuid"

	"github.com/tributarydb/tributary/internal/core/timestamp"
	"github.com/tributarydb/tributary/internal/errdefs"
)

const (
	// DefaultBranchName is the name of the default branch every other
	// branch forks from and merges back into.
	DefaultBranchName = "main"

	// StatusOpen marks a branch accepting reads and writes.
	StatusOpen = "OPEN"
	// StatusMerged marks a branch that was merged and soft-deleted. Kept
	// for audit; excluded from the active registry.
	StatusMerged = "MERGED"

	// DefaultHierarchyLevel is the level of the default branch. Edges on
	// higher levels shadow edges on lower ones.
	DefaultHierarchyLevel = 1
	// ForkHierarchyLevel is the level of every branch forked from the
	// default branch.
	ForkHierarchyLevel = 2
)

// nameRegexp is the accepted branch-name grammar: an alphanumeric head
// followed by up to 63 alphanumerics, underscores, hyphens, dots, or
// slashes.
var nameRegexp = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-./]{0,63}$`)

// ErrInvalidNameMessage is the message returned for names outside the
// grammar.
const ErrInvalidNameMessage = "Branch name contains invalid patterns or characters: disallowed ASCII characters/patterns"

// Branch is a line of development over the graph. All versioning state
// lives on edges; the record tracks lineage markers and schema identity.
type Branch struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`

	// Parent is the branch this one forked from. Every branch forks from
	// the default branch; the default branch points at itself.
	Parent string `json:"parent"`

	// BranchedFrom is the lineage cut-over point: reads on this branch see
	// the parent as of this instant. Rebase advances it.
	BranchedFrom timestamp.Timestamp `json:"branched_from"`

	CreatedAt      timestamp.Timestamp `json:"created_at"`
	HierarchyLevel int                 `json:"hierarchy_level"`
	IsDefault      bool                `json:"is_default"`

	// IsDataOnly branches carry data changes but no schema changes.
	IsDataOnly bool `json:"is_data_only"`

	// SchemaHash identifies the schema snapshot this branch was cut with.
	SchemaHash string `json:"schema_hash"`
}

// ValidateName rejects names outside the accepted grammar.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return errdefs.New(errdefs.KindInvalidBranchName, ErrInvalidNameMessage)
	}
	return nil
}

// New creates an OPEN branch record forked from the default branch at the
// current instant. The name is validated against the grammar.
func New(name, description string, isDataOnly bool) (*Branch, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	now := timestamp.Now()
	return &Branch{
		ID:             uuid.New().String(),
		Name:           name,
		Description:    description,
		Status:         StatusOpen,
		Parent:         DefaultBranchName,
		BranchedFrom:   now,
		CreatedAt:      now,
		HierarchyLevel: ForkHierarchyLevel,
		IsDataOnly:     isDataOnly,
	}, nil
}

// NewDefault creates the default branch record.
func NewDefault() (*Branch, error) {
	now := timestamp.Now()
	return &Branch{
		ID:             uuid.New().String(),
		Name:           DefaultBranchName,
		Description:    "Default branch",
		Status:         StatusOpen,
		Parent:         DefaultBranchName,
		BranchedFrom:   now,
		CreatedAt:      now,
		HierarchyLevel: DefaultHierarchyLevel,
		IsDefault:      true,
	}, nil
}

// Clone returns a copy. Registry mutations operate on clones so readers
// holding the previous snapshot never observe partial updates.
func (b *Branch) Clone() *Branch {
	c := *b
	return &c
}

// QueryTime pairs a branch name with the instant it is read at.
type QueryTime struct {
	Branch string
	At     timestamp.Timestamp
}

// QueryBranches returns the lineage and the per-branch read times for a
// query at the given instant. The branch itself is read at the query time;
// the parent is read at BranchedFrom so rebases alone decide when parent
// changes become visible. With ephemeralRebase the parent is read at the
// query time, previewing a rebase without committing one.
func (b *Branch) QueryBranches(at timestamp.Timestamp, ephemeralRebase bool) []QueryTime {
	if b.IsDefault {
		return []QueryTime{{Branch: b.Name, At: at}}
	}

	parentAt := b.BranchedFrom
	if ephemeralRebase {
		parentAt = at
	}
	return []QueryTime{
		{Branch: b.Parent, At: parentAt},
		{Branch: b.Name, At: at},
	}
}

// ToProperties maps the record onto graph node properties.
func (b *Branch) ToProperties() map[string]interface{} {
	return map[string]interface{}{
		"uuid":            b.ID,
		"name":            b.Name,
		"description":     b.Description,
		"status":          b.Status,
		"origin_branch":   b.Parent,
		"branched_from":   b.BranchedFrom.String(),
		"created_at":      b.CreatedAt.String(),
		"hierarchy_level": b.HierarchyLevel,
		"is_default":      b.IsDefault,
		"is_data_only":    b.IsDataOnly,
		"schema_hash":     b.SchemaHash,
	}
}

// FromProperties rebuilds a record from graph node properties.
func FromProperties(props map[string]interface{}) (*Branch, error) {
	b := &Branch{}

	var ok bool
	if b.Name, ok = props["name"].(string); !ok || b.Name == "" {
		return nil, errdefs.New(errdefs.KindFatal, "branch record without a name")
	}
	if id, ok := props["uuid"].(string); ok {
		b.ID = id
	} else {
		b.ID = uuid.New().String()
	}
	if desc, ok := props["description"].(string); ok {
		b.Description = desc
	}
	if status, ok := props["status"].(string); ok {
		b.Status = status
	} else {
		b.Status = StatusOpen
	}
	if parent, ok := props["origin_branch"].(string); ok && parent != "" {
		b.Parent = parent
	} else {
		b.Parent = DefaultBranchName
	}

	branchedFrom, err := timestamp.New(props["branched_from"])
	if err != nil {
		return nil, errdefs.Wrapf(errdefs.KindFatal, err, "branch %s has a malformed branched_from", b.Name)
	}
	b.BranchedFrom = branchedFrom

	createdAt, err := timestamp.New(props["created_at"])
	if err != nil {
		return nil, errdefs.Wrapf(errdefs.KindFatal, err, "branch %s has a malformed created_at", b.Name)
	}
	b.CreatedAt = createdAt

	b.HierarchyLevel = intProp(props, "hierarchy_level", ForkHierarchyLevel)
	if isDefault, ok := props["is_default"].(bool); ok {
		b.IsDefault = isDefault
	}
	if isDataOnly, ok := props["is_data_only"].(bool); ok {
		b.IsDataOnly = isDataOnly
	}
	if hash, ok := props["schema_hash"].(string); ok {
		b.SchemaHash = hash
	}

	return b, nil
}

func intProp(props map[string]interface{}, key string, fallback int) int {
	switch v := props[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}
