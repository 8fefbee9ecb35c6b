package schema

import (
	"sync/atomic"

	"github.com/tributarydb/tributary/internal/errdefs"
)

// Cache holds one schema snapshot per branch. Reads are lock-free against
// an atomically swapped immutable map; every mutation clones the map,
// applies the change, and swaps.
type Cache struct {
	branches atomic.Value // map[string]*Snapshot
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	c := &Cache{}
	c.branches.Store(make(map[string]*Snapshot))
	return c
}

func (c *Cache) load() map[string]*Snapshot {
	return c.branches.Load().(map[string]*Snapshot)
}

func (c *Cache) swap(mutate func(map[string]*Snapshot)) {
	current := c.load()
	next := make(map[string]*Snapshot, len(current)+1)
	for name, snapshot := range current {
		next[name] = snapshot
	}
	mutate(next)
	c.branches.Store(next)
}

// SetBranch installs (or replaces) the snapshot of a branch.
func (c *Cache) SetBranch(branchName string, snapshot *Snapshot) {
	c.swap(func(m map[string]*Snapshot) {
		m[branchName] = snapshot
	})
}

// RemoveBranch drops the snapshot of a branch.
func (c *Cache) RemoveBranch(branchName string) {
	c.swap(func(m map[string]*Snapshot) {
		delete(m, branchName)
	})
}

// DuplicateBranch clones the source branch snapshot into the target branch
// and returns the clone's hash. A missing source is an error.
func (c *Cache) DuplicateBranch(source, target string) (string, error) {
	snapshot, ok := c.load()[source]
	if !ok {
		return "", errdefs.Newf(errdefs.KindNotFound, "no schema loaded for branch %s", source)
	}
	clone := snapshot.Clone()
	c.SetBranch(target, clone)
	return clone.Hash(), nil
}

// Snapshot returns the snapshot of a branch, falling back to the fallback
// branch (normally the default branch). Nil when neither is loaded.
func (c *Cache) Snapshot(branchName, fallback string) *Snapshot {
	m := c.load()
	if snapshot, ok := m[branchName]; ok {
		return snapshot
	}
	return m[fallback]
}

// Get resolves the node schema for a kind on a branch, falling back to the
// fallback branch when the branch carries no snapshot of its own.
func (c *Cache) Get(kind, branchName, fallback string) (*NodeSchema, error) {
	snapshot := c.Snapshot(branchName, fallback)
	if snapshot == nil {
		return nil, errdefs.Newf(errdefs.KindSchemaMismatch, "Unable to find the schema %s", kind)
	}
	node := snapshot.Get(kind)
	if node == nil {
		return nil, errdefs.Newf(errdefs.KindSchemaMismatch, "Unable to find the schema %s", kind)
	}
	return node, nil
}

// Hash returns the snapshot hash of a branch, or the empty string when no
// snapshot is loaded.
func (c *Cache) Hash(branchName string) string {
	if snapshot, ok := c.load()[branchName]; ok {
		return snapshot.Hash()
	}
	return ""
}

// RelationshipByIdentifier resolves a relationship schema from its storage
// identifier on a branch (with fallback).
func (c *Cache) RelationshipByIdentifier(identifier, branchName, fallback string) *RelationshipSchema {
	snapshot := c.Snapshot(branchName, fallback)
	if snapshot == nil {
		return nil
	}
	return snapshot.RelationshipByIdentifier(identifier)
}
