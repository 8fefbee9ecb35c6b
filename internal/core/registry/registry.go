// Package registry keeps the live set of branches. Reads are lock-free
// against an atomically swapped immutable map; mutations persist the branch
// record to the graph first, then swap a new map in.
package registry

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tributarydb/tributary/internal/core/branch"
	"github.com/tributarydb/tributary/internal/core/query"
	"github.com/tributarydb/tributary/internal/core/schema"
	"github.com/tributarydb/tributary/internal/core/timestamp"
	"github.com/tributarydb/tributary/internal/errdefs"
	"github.com/tributarydb/tributary/internal/logging"
	"github.com/tributarydb/tributary/internal/storage"
)

// Registry is the authority on which branches exist. It boots from the
// (:Branch) records in the graph, creating the default branch on first run.
type Registry struct {
	client  storage.Client
	schemas *schema.Cache
	logger  *logging.Logger

	mu       sync.Mutex   // serializes mutations; reads never take it
	branches atomic.Value // map[string]*branch.Branch
	loaded   atomic.Bool
}

// New creates an empty registry. Load must run before any other call.
func New(client storage.Client, schemas *schema.Cache) *Registry {
	r := &Registry{
		client:  client,
		schemas: schemas,
		logger:  logging.GetLogger("registry"),
	}
	r.branches.Store(make(map[string]*branch.Branch))
	return r
}

func (r *Registry) load() map[string]*branch.Branch {
	return r.branches.Load().(map[string]*branch.Branch)
}

// swap publishes a new map with one branch replaced or removed. Callers hold
// r.mu.
func (r *Registry) swap(name string, b *branch.Branch) {
	current := r.load()
	next := make(map[string]*branch.Branch, len(current)+1)
	for n, existing := range current {
		next[n] = existing
	}
	if b == nil {
		delete(next, name)
	} else {
		next[name] = b
	}
	r.branches.Store(next)
}

// Load reads every branch record from the graph. On a fresh graph the
// default branch is created and persisted.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.client.ExecuteRead(ctx, query.BuildBranchList())
	if err != nil {
		return err
	}

	branches := make(map[string]*branch.Branch, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) == 0 {
			continue
		}
		props, err := storage.ParseNodeFromResult(row[0])
		if err != nil {
			return err
		}
		b, err := branch.FromProperties(props)
		if err != nil {
			return err
		}
		branches[b.Name] = b
	}

	if _, ok := branches[branch.DefaultBranchName]; !ok {
		def, err := branch.NewDefault()
		if err != nil {
			return err
		}
		if _, err := r.client.ExecuteWrite(ctx, query.BuildBranchCreate(def)); err != nil {
			return err
		}
		branches[def.Name] = def
		r.logger.Info("default branch created")
	}

	r.branches.Store(branches)
	r.loaded.Store(true)
	r.logger.InfoWithFields("branch registry loaded", logging.Field("branches", len(branches)))
	return nil
}

// Start loads the branch set, making the registry a lifecycle component.
func (r *Registry) Start(ctx context.Context) error {
	return r.Load(ctx)
}

// Stop is a no-op; the registry holds no connections of its own.
func (r *Registry) Stop(ctx context.Context) error {
	return nil
}

// Name identifies the component to the lifecycle manager.
func (r *Registry) Name() string {
	return "branch-registry"
}

// IsReady reports whether the branch set has been loaded. The API server
// uses this for its readiness endpoint: a loaded registry implies storage
// came up and booted.
func (r *Registry) IsReady() bool {
	return r.loaded.Load()
}

// Default returns the default branch.
func (r *Registry) Default() (*branch.Branch, error) {
	return r.Get(branch.DefaultBranchName)
}

// Get returns a copy of the named branch.
func (r *Registry) Get(name string) (*branch.Branch, error) {
	b, ok := r.load()[name]
	if !ok {
		return nil, errdefs.Newf(errdefs.KindNotFound, "Branch: %s not found.", name)
	}
	return b.Clone(), nil
}

// List returns copies of all branches, sorted by name. Merged branches are
// included; callers filter on Status when they only want open ones.
func (r *Registry) List() []*branch.Branch {
	current := r.load()
	out := make([]*branch.Branch, 0, len(current))
	for _, b := range current {
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Create forks a new branch from the default branch at the current instant.
// Unless the branch is data-only, the default branch's schema snapshot is
// duplicated for it so later schema changes stay isolated.
func (r *Registry) Create(ctx context.Context, name, description string, isDataOnly bool) (*branch.Branch, error) {
	b, err := branch.New(name, description, isDataOnly)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.load()[name]; exists {
		return nil, errdefs.Newf(errdefs.KindBranchExists, "The branch %s, already exist", name)
	}

	if isDataOnly {
		b.SchemaHash = r.schemas.Hash(branch.DefaultBranchName)
	} else {
		hash, err := r.schemas.DuplicateBranch(branch.DefaultBranchName, name)
		if err != nil {
			// No schema loaded yet: the branch still forks, it just has no
			// snapshot to pin.
			r.logger.WarnWithFields("branch created without a schema snapshot", logging.Field("branch", name))
		} else {
			b.SchemaHash = hash
		}
	}

	if _, err := r.client.ExecuteWrite(ctx, query.BuildBranchCreate(b)); err != nil {
		if !isDataOnly {
			r.schemas.RemoveBranch(name)
		}
		return nil, err
	}

	r.swap(name, b)
	r.logger.InfoWithFields("branch created",
		logging.Field("branch", name),
		logging.Field("data_only", isDataOnly),
	)
	return b.Clone(), nil
}

// Update changes the description of a branch.
func (r *Registry) Update(ctx context.Context, name, description string) (*branch.Branch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.load()[name]
	if !ok {
		return nil, errdefs.Newf(errdefs.KindNotFound, "Branch: %s not found.", name)
	}

	next := current.Clone()
	next.Description = description
	if _, err := r.client.ExecuteWrite(ctx, query.BuildBranchUpdate(next)); err != nil {
		return nil, err
	}

	r.swap(name, next)
	return next.Clone(), nil
}

// Rebase advances the branch point to at: from then on the branch sees the
// default branch as of that instant. Conflict checking happens in the caller
// before the rebase is committed.
func (r *Registry) Rebase(ctx context.Context, name string, at timestamp.Timestamp) (*branch.Branch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.load()[name]
	if !ok {
		return nil, errdefs.Newf(errdefs.KindNotFound, "Branch: %s not found.", name)
	}
	if current.IsDefault {
		return nil, errdefs.New(errdefs.KindValidation, "the default branch cannot be rebased")
	}

	next := current.Clone()
	next.BranchedFrom = at
	if _, err := r.client.ExecuteWrite(ctx, query.BuildBranchUpdate(next)); err != nil {
		return nil, err
	}

	r.swap(name, next)
	r.logger.InfoWithFields("branch rebased",
		logging.Field("branch", name),
		logging.Field("branched_from", at.String()),
	)
	return next.Clone(), nil
}

// MarkMerged flags the branch as merged and advances its branch point to the
// merge instant. The record is kept for audit; reads on it stay valid.
func (r *Registry) MarkMerged(ctx context.Context, name string, at timestamp.Timestamp) (*branch.Branch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.load()[name]
	if !ok {
		return nil, errdefs.Newf(errdefs.KindNotFound, "Branch: %s not found.", name)
	}
	if current.IsDefault {
		return nil, errdefs.New(errdefs.KindValidation, "the default branch cannot be merged")
	}

	next := current.Clone()
	next.Status = branch.StatusMerged
	next.BranchedFrom = at
	if _, err := r.client.ExecuteWrite(ctx, query.BuildBranchUpdate(next)); err != nil {
		return nil, err
	}

	r.swap(name, next)
	return next.Clone(), nil
}

// Delete removes an abandoned branch: every data edge stamped with the
// branch name is dropped, vertices left without edges are swept, and the
// record and schema snapshot go last. History on other branches is
// untouched since edges never share a branch stamp.
func (r *Registry) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.load()[name]
	if !ok {
		return errdefs.Newf(errdefs.KindNotFound, "Branch: %s not found.", name)
	}
	if current.IsDefault {
		return errdefs.New(errdefs.KindValidation, "the default branch cannot be deleted")
	}

	if _, err := r.client.ExecuteWrite(ctx, query.BuildBranchDataDelete(name)); err != nil {
		return err
	}
	for _, sweep := range query.BuildOrphanSweep() {
		if _, err := r.client.ExecuteWrite(ctx, sweep); err != nil {
			return err
		}
	}

	if _, err := r.client.ExecuteWrite(ctx, query.BuildBranchDelete(current.ID)); err != nil {
		return err
	}

	r.schemas.RemoveBranch(name)
	r.swap(name, nil)
	r.logger.InfoWithFields("branch deleted", logging.Field("branch", name))
	return nil
}
