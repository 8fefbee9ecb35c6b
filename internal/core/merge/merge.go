// Package merge lands the changes recorded on a branch onto its parent.
// Replay copies every open branch edge to the parent at level 1, closing the
// parent edges it supersedes; branch history is never rewritten, so the
// branch remains queryable as it was.
package merge

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/tributarydb/tributary/internal/core/branch"
	"github.com/tributarydb/tributary/internal/core/diff"
	"github.com/tributarydb/tributary/internal/core/node"
	"github.com/tributarydb/tributary/internal/core/query"
	"github.com/tributarydb/tributary/internal/core/schema"
	"github.com/tributarydb/tributary/internal/core/timestamp"
	"github.com/tributarydb/tributary/internal/errdefs"
	"github.com/tributarydb/tributary/internal/logging"
	"github.com/tributarydb/tributary/internal/storage"
)

// Resolution tells the merger which side of a conflicting path wins.
type Resolution string

const (
	// KeepBranch replays the branch change over the parent one.
	KeepBranch Resolution = "keep-branch"
	// KeepBase skips the branch change so the parent keeps its own.
	KeepBase Resolution = "keep-base"
)

// Report summarizes a completed merge.
type Report struct {
	Branch        string              `json:"branch"`
	Target        string              `json:"target"`
	MergedAt      timestamp.Timestamp `json:"merged_at"`
	EdgesReplayed int                 `json:"edges_replayed"`
	EdgesSkipped  int                 `json:"edges_skipped"`
	Conflicts     []diff.Conflict     `json:"conflicts,omitempty"`
}

// Merger validates and applies branch merges.
type Merger struct {
	client  storage.Client
	differ  *diff.Differ
	schemas *schema.Cache
	logger  *logging.Logger
}

// NewMerger creates a Merger sharing the given differ and schema cache.
func NewMerger(client storage.Client, differ *diff.Differ, schemas *schema.Cache) *Merger {
	return &Merger{
		client:  client,
		differ:  differ,
		schemas: schemas,
		logger:  logging.GetLogger("merge"),
	}
}

// Validate dry-runs the merge checks: the branch must be open, its schema
// must be compatible with the parent's, and the returned conflicts must be
// resolved before Merge will proceed. An empty result with a nil error means
// the branch merges cleanly.
func (m *Merger) Validate(ctx context.Context, b *branch.Branch) ([]diff.Conflict, error) {
	if err := m.guard(b); err != nil {
		return nil, err
	}
	branchDiff, originDiff, err := m.bothDiffs(ctx, b)
	if err != nil {
		return nil, err
	}
	return diff.Intersect(branchDiff, originDiff), nil
}

// Merge replays the branch onto its parent. Conflicting paths must each
// carry a resolution; keep-base resolutions leave the parent version in
// place. The caller marks the branch merged afterwards.
func (m *Merger) Merge(ctx context.Context, b *branch.Branch, resolutions map[string]Resolution) (*Report, error) {
	if err := m.guard(b); err != nil {
		return nil, err
	}

	branchDiff, originDiff, err := m.bothDiffs(ctx, b)
	if err != nil {
		return nil, err
	}
	conflicts := diff.Intersect(branchDiff, originDiff)

	skip, err := resolveConflicts(branchDiff, conflicts, resolutions)
	if err != nil {
		return nil, err
	}

	result, err := m.client.ExecuteRead(ctx, query.BuildMergeOpenEdges(b.Name))
	if err != nil {
		return nil, err
	}
	edges, err := parseOpenEdges(result)
	if err != nil {
		return nil, err
	}

	at := timestamp.Now()
	replayed, skipped, err := m.replay(ctx, b.Parent, at, edges, skip)
	if err != nil {
		return nil, err
	}

	m.logger.InfoWithFields("branch merged",
		logging.Field("branch", b.Name),
		logging.Field("target", b.Parent),
		logging.Field("replayed", replayed),
		logging.Field("skipped", skipped),
	)

	return &Report{
		Branch:        b.Name,
		Target:        b.Parent,
		MergedAt:      at,
		EdgesReplayed: replayed,
		EdgesSkipped:  skipped,
		Conflicts:     conflicts,
	}, nil
}

func (m *Merger) guard(b *branch.Branch) error {
	if b.IsDefault {
		return errdefs.Newf(errdefs.KindValidation, "the default branch cannot be merged")
	}
	if b.Status != branch.StatusOpen {
		return errdefs.Newf(errdefs.KindValidation, "the branch %s is not open", b.Name)
	}
	return m.checkSchema(b)
}

// checkSchema refuses merges whose schema changes would break the parent:
// identical hashes pass immediately, otherwise the branch snapshot must be a
// non-breaking superset of the parent's.
func (m *Merger) checkSchema(b *branch.Branch) error {
	parentSnapshot := m.schemas.Snapshot(b.Parent, "")
	branchSnapshot := m.schemas.Snapshot(b.Name, b.Parent)
	if parentSnapshot == nil || branchSnapshot == nil {
		return nil
	}

	ok, reasons := schema.Compatible(parentSnapshot, branchSnapshot)
	if !ok {
		return errdefs.Newf(errdefs.KindSchemaConflict,
			"the schema of branch %s is not compatible with %s", b.Name, b.Parent).
			WithDetails(map[string]interface{}{"reasons": reasons})
	}
	return nil
}

func (m *Merger) bothDiffs(ctx context.Context, b *branch.Branch) (*diff.Diff, *diff.Diff, error) {
	var branchDiff, originDiff *diff.Diff

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		branchDiff, err = m.differ.BranchDiff(gctx, b, timestamp.Timestamp{}, timestamp.Timestamp{})
		return err
	})
	g.Go(func() error {
		var err error
		originDiff, err = m.differ.OriginDiff(gctx, b, timestamp.Timestamp{}, timestamp.Timestamp{})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return branchDiff, originDiff, nil
}

// resolveConflicts checks that every conflict carries a valid resolution and
// returns the replay skip set for the keep-base ones.
func resolveConflicts(branchDiff *diff.Diff, conflicts []diff.Conflict, resolutions map[string]Resolution) (map[string]struct{}, error) {
	known := map[string]diff.Conflict{}
	for _, c := range conflicts {
		known[c.Path.String()] = c
	}

	for path, resolution := range resolutions {
		if resolution != KeepBranch && resolution != KeepBase {
			return nil, errdefs.Newf(errdefs.KindValidation, "%s is not a valid conflict resolution", resolution)
		}
		if _, ok := known[path]; !ok {
			return nil, errdefs.Newf(errdefs.KindValidation, "resolution %s does not match any conflict", path)
		}
	}

	var unresolved []string
	for _, c := range conflicts {
		if _, ok := resolutions[c.Path.String()]; !ok {
			unresolved = append(unresolved, c.Message())
		}
	}
	if len(unresolved) > 0 {
		sort.Strings(unresolved)
		return nil, errdefs.Newf(errdefs.KindMergeConflict,
			"cannot merge branch %s: %d unresolved conflicts", branchDiff.Branch, len(unresolved)).
			WithDetails(map[string]interface{}{"conflicts": unresolved})
	}

	skip := map[string]struct{}{}
	for path, resolution := range resolutions {
		if resolution != KeepBase {
			continue
		}
		for _, key := range skipKeysForPath(branchDiff, known[path].Path) {
			skip[key] = struct{}{}
		}
	}
	return skip, nil
}

// skipKeysForPath translates a conflict path back into the edge identity
// keys its branch changes replay under. Attribute paths name the attribute
// by its display name, so the id is recovered from the branch diff.
func skipKeysForPath(branchDiff *diff.Diff, path diff.ModifiedPath) []string {
	switch path.Category {
	case "node":
		entry, ok := branchDiff.Nodes[path.First]
		if !ok {
			return nil
		}
		for _, attr := range entry.Attributes {
			if attr.Name != path.Second {
				continue
			}
			if path.Property == query.EdgeHasAttribute {
				return []string{membershipKey(query.EdgeHasAttribute, attr.ID)}
			}
			return []string{propertyKey(attr.ID, path.Property)}
		}
	case "relationships":
		if path.Property == query.EdgeIsRelated {
			return []string{membershipKey(query.EdgeIsRelated, path.Second)}
		}
		return []string{propertyKey(path.Second, path.Property)}
	}
	return nil
}

func membershipKey(edgeType, targetID string) string {
	return "member|" + edgeType + "|" + targetID
}

func propertyKey(sourceID, edgeType string) string {
	return "prop|" + sourceID + "|" + edgeType
}

// openEdge is one branch edge due for replay.
type openEdge struct {
	edgeType string
	status   string
	from     string
	source   query.MergeEndpoint
	dest     query.MergeEndpoint
}

// key returns the edge's skip identity, empty when the edge is not
// addressable by conflict resolution (node membership).
func (e openEdge) key() string {
	switch e.edgeType {
	case query.EdgeHasAttribute, query.EdgeIsRelated:
		return membershipKey(e.edgeType, e.dest.UUID)
	case query.EdgeHasValue, query.EdgeIsVisible, query.EdgeIsProtected, query.EdgeHasSource, query.EdgeHasOwner:
		return propertyKey(e.source.UUID, e.edgeType)
	}
	return ""
}

func parseOpenEdges(result *storage.QueryResult) ([]openEdge, error) {
	cols := map[string]int{}
	for i, name := range result.Columns {
		cols[name] = i
	}
	cell := func(row []interface{}, name string) interface{} {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return nil
		}
		return row[i]
	}
	str := func(row []interface{}, name string) string {
		s, _ := cell(row, name).(string)
		return s
	}
	labels := func(row []interface{}, name string) []string {
		raw, _ := cell(row, name).([]interface{})
		out := make([]string, 0, len(raw))
		for _, l := range raw {
			if s, ok := l.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}

	edges := make([]openEdge, 0, len(result.Rows))
	for _, row := range result.Rows {
		parsed, err := node.ParseEdge(cell(row, "edge"))
		if err != nil {
			return nil, err
		}
		if parsed == nil {
			continue
		}
		edges = append(edges, openEdge{
			edgeType: str(row, "edge_type"),
			status:   parsed.Status,
			from:     parsed.From,
			source: query.MergeEndpoint{
				Labels: labels(row, "source_labels"),
				UUID:   str(row, "source_uuid"),
				Value:  cell(row, "source_value"),
			},
			dest: query.MergeEndpoint{
				Labels: labels(row, "dest_labels"),
				UUID:   str(row, "dest_uuid"),
				Value:  cell(row, "dest_value"),
			},
		})
	}
	return edges, nil
}

var propertyEdgeTypes = map[string]bool{
	query.EdgeHasValue:    true,
	query.EdgeIsVisible:   true,
	query.EdgeIsProtected: true,
	query.EdgeHasSource:   true,
	query.EdgeHasOwner:    true,
}

// replay copies the edges onto the target branch: additions first, then
// tombstones, relationship tombstones last so peers detach only after every
// surviving edge is in place. Each replayed edge closes what it supersedes
// before creating its own record, so an interrupted replay can be re-run.
func (m *Merger) replay(ctx context.Context, target string, at timestamp.Timestamp, edges []openEdge, skip map[string]struct{}) (int, int, error) {
	var actives, tombstones, relTombstones []openEdge
	for _, e := range edges {
		switch {
		case e.status == query.StatusActive:
			actives = append(actives, e)
		case e.edgeType == query.EdgeIsRelated:
			relTombstones = append(relTombstones, e)
		default:
			tombstones = append(tombstones, e)
		}
	}
	byFrom := func(phase []openEdge) {
		sort.SliceStable(phase, func(i, j int) bool { return phase[i].from < phase[j].from })
	}
	byFrom(actives)
	byFrom(tombstones)
	byFrom(relTombstones)

	ordered := make([]openEdge, 0, len(edges))
	ordered = append(ordered, actives...)
	ordered = append(ordered, tombstones...)
	ordered = append(ordered, relTombstones...)

	replayed, skipped := 0, 0
	for _, e := range ordered {
		if key := e.key(); key != "" {
			if _, ok := skip[key]; ok {
				skipped++
				continue
			}
		}

		var closeQuery *storage.GraphQuery
		var err error
		if e.status == query.StatusActive && propertyEdgeTypes[e.edgeType] {
			closeQuery, err = query.BuildMergeCloseEdgeFrom(target, at, e.edgeType, e.source)
		} else {
			closeQuery, err = query.BuildMergeCloseEdgeBetween(target, at, e.edgeType, e.source, e.dest)
		}
		if err != nil {
			return replayed, skipped, err
		}
		create, err := query.BuildMergeCreateEdge(target, at, e.edgeType, e.status, e.source, e.dest)
		if err != nil {
			return replayed, skipped, err
		}

		if _, err := m.client.ExecuteWrite(ctx, closeQuery); err != nil {
			return replayed, skipped, err
		}
		if _, err := m.client.ExecuteWrite(ctx, create); err != nil {
			return replayed, skipped, err
		}
		replayed++
	}
	return replayed, skipped, nil
}
