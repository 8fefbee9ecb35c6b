package api

import (
	"context"
	"sort"
	"sync"

	"github.com/tributarydb/tributary/internal/core/branch"
	"github.com/tributarydb/tributary/internal/core/diff"
	"github.com/tributarydb/tributary/internal/core/merge"
	"github.com/tributarydb/tributary/internal/core/node"
	"github.com/tributarydb/tributary/internal/core/registry"
	"github.com/tributarydb/tributary/internal/core/schema"
	"github.com/tributarydb/tributary/internal/core/timestamp"
	"github.com/tributarydb/tributary/internal/errdefs"
	"github.com/tributarydb/tributary/internal/events"
	"github.com/tributarydb/tributary/internal/logging"
	"github.com/tributarydb/tributary/internal/storage"
)

// Service is the typed facade over the core. Every transport (REST handlers,
// CLI commands) goes through it. Reads are lock-free against the registry
// and schema snapshots; writes on one branch are serialized behind a
// per-branch mutex.
type Service struct {
	registry *registry.Registry
	schemas  *schema.Cache
	nodes    *node.Manager
	differ   *diff.Differ
	merger   *merge.Merger
	events   *events.Pipeline
	logger   *logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService wires the facade on top of the storage client. The events
// pipeline may be nil; event emission is then skipped.
func NewService(client storage.Client, reg *registry.Registry, schemas *schema.Cache, pipeline *events.Pipeline) *Service {
	differ := diff.NewDiffer(client)
	return &Service{
		registry: reg,
		schemas:  schemas,
		nodes:    node.NewManager(client, schemas),
		differ:   differ,
		merger:   merge.NewMerger(client, differ, schemas),
		events:   pipeline,
		logger:   logging.GetLogger("api"),
		locks:    map[string]*sync.Mutex{},
	}
}

// writeLock serializes writes on one branch and returns the unlock func.
// Operations spanning two branches (merge) must lock the parent before the
// branch so concurrent merges cannot deadlock.
func (s *Service) writeLock(branchName string) func() {
	s.mu.Lock()
	mu, ok := s.locks[branchName]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[branchName] = mu
	}
	s.mu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func (s *Service) emit(event events.Event) {
	if s.events == nil {
		return
	}
	s.events.Publish(event)
}

// Branch returns the named branch. The empty name means the default branch.
func (s *Service) Branch(name string) (*branch.Branch, error) {
	if name == "" {
		return s.registry.Default()
	}
	return s.registry.Get(name)
}

// BranchList returns all branches, sorted by name.
func (s *Service) BranchList(ctx context.Context) []*branch.Branch {
	return s.registry.List()
}

// BranchGet returns the named branch.
func (s *Service) BranchGet(ctx context.Context, name string) (*branch.Branch, error) {
	return s.Branch(name)
}

// BranchCreate forks a new branch from the default branch.
func (s *Service) BranchCreate(ctx context.Context, name, description string, isDataOnly bool) (*branch.Branch, error) {
	b, err := s.registry.Create(ctx, name, description, isDataOnly)
	if err != nil {
		return nil, err
	}
	s.emit(events.NewBranchEvent(events.BranchCreated, b.Name))
	return b, nil
}

// BranchUpdate changes the description of a branch.
func (s *Service) BranchUpdate(ctx context.Context, name, description string) (*branch.Branch, error) {
	return s.registry.Update(ctx, name, description)
}

// BranchDelete removes an abandoned branch and every edge written on it.
// Other branches keep their history; shared vertices survive as long as any
// edge still reaches them.
func (s *Service) BranchDelete(ctx context.Context, name string) error {
	if err := s.registry.Delete(ctx, name); err != nil {
		return err
	}
	s.emit(events.NewBranchEvent(events.BranchDeleted, name))
	return nil
}

// BranchRebase advances the branch point to now, so the branch sees the
// parent's current state. Refused while the branch conflicts with its
// parent: the caller must merge or resolve first.
func (s *Service) BranchRebase(ctx context.Context, name string) (*branch.Branch, error) {
	b, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}

	unlock := s.writeLock(b.Name)
	defer unlock()

	conflicts, err := s.differ.Conflicts(ctx, b, timestamp.Timestamp{}, timestamp.Timestamp{})
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, errdefs.Newf(errdefs.KindMergeConflict,
			"cannot rebase branch %s: %d conflicts with %s", name, len(conflicts), b.Parent).
			WithDetails(map[string]interface{}{"conflicts": conflictMessages(conflicts)})
	}

	rebased, err := s.registry.Rebase(ctx, name, timestamp.Now())
	if err != nil {
		return nil, err
	}
	s.emit(events.NewBranchEvent(events.BranchRebased, name).WithPayload(map[string]interface{}{
		"branched_from": rebased.BranchedFrom.String(),
		"lineage":       rebased.LineageBranchNames(),
	}))
	return rebased, nil
}

// BranchValidate dry-runs the merge checks and reports the conflicts.
func (s *Service) BranchValidate(ctx context.Context, name string) (*BranchValidation, error) {
	b, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}

	conflicts, err := s.merger.Validate(ctx, b)
	if err != nil {
		return nil, err
	}
	return &BranchValidation{
		Valid:     len(conflicts) == 0,
		Conflicts: conflictMessages(conflicts),
	}, nil
}

// BranchValidation is the outcome of a merge dry-run.
type BranchValidation struct {
	Valid     bool     `json:"valid"`
	Conflicts []string `json:"conflicts"`
}

// BranchMerge replays the branch onto its parent and soft-deletes the
// branch record. resolutions maps conflict paths to keep-branch or
// keep-base.
func (s *Service) BranchMerge(ctx context.Context, name string, resolutions map[string]merge.Resolution) (*merge.Report, error) {
	b, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}

	// Parent first: the replay writes to it.
	unlockParent := s.writeLock(b.Parent)
	defer unlockParent()
	unlock := s.writeLock(b.Name)
	defer unlock()

	report, err := s.merger.Merge(ctx, b, resolutions)
	if err != nil {
		return nil, err
	}

	if _, err := s.registry.MarkMerged(ctx, name, report.MergedAt); err != nil {
		return nil, err
	}

	s.emit(events.NewBranchEvent(events.BranchMerged, name).WithPayload(map[string]interface{}{
		"target":         report.Target,
		"edges_replayed": report.EdgesReplayed,
		"edges_skipped":  report.EdgesSkipped,
	}))
	return report, nil
}

func conflictMessages(conflicts []diff.Conflict) []string {
	messages := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		messages = append(messages, c.Message())
	}
	sort.Strings(messages)
	return messages
}
