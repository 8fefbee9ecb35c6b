package branch

import (
	"fmt"
	"strings"

	"github.com/tributarydb/tributary/internal/core/timestamp"
)

// QueryFilter renders the edge-visibility predicate for each relationship
// variable in a read query. For every variable r and every lineage pair
// (branchN, timeN) it emits
//
//	(r.branch = $branchN AND r.from <= $timeN AND r.to IS NULL)
//	OR (r.branch = $branchN AND r.from <= $timeN AND r.to > $timeN)
//
// OR-joined across lineage pairs. One filter string is returned per
// relationship variable; callers AND-join them into the WHERE clause. The
// shared parameter map uses branch0/time0, branch1/time1, ...
func (b *Branch) QueryFilter(relNames []string, at timestamp.Timestamp, ephemeralRebase bool) ([]string, map[string]interface{}) {
	pairs := b.QueryBranches(at, ephemeralRebase)

	params := make(map[string]interface{}, len(pairs)*2)
	for i, pair := range pairs {
		params[fmt.Sprintf("branch%d", i)] = pair.Branch
		params[fmt.Sprintf("time%d", i)] = pair.At.String()
	}

	filters := make([]string, 0, len(relNames))
	for _, rel := range relNames {
		clauses := make([]string, 0, len(pairs))
		for i := range pairs {
			clauses = append(clauses, fmt.Sprintf(
				"(%[1]s.branch = $branch%[2]d AND %[1]s.from <= $time%[2]d AND %[1]s.to IS NULL)\n OR (%[1]s.branch = $branch%[2]d AND %[1]s.from <= $time%[2]d AND %[1]s.to > $time%[2]d)",
				rel, i,
			))
		}
		filters = append(filters, "("+strings.Join(clauses, "\n OR ")+")")
	}

	return filters, params
}

// LineageBranchNames returns the branch names visible from this branch,
// parent first.
func (b *Branch) LineageBranchNames() []string {
	if b.IsDefault {
		return []string{b.Name}
	}
	return []string{b.Parent, b.Name}
}
