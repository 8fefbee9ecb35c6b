package api

import (
	"context"

	"github.com/tributarydb/tributary/internal/core/node"
	"github.com/tributarydb/tributary/internal/core/timestamp"
	"github.com/tributarydb/tributary/internal/events"
	"github.com/tributarydb/tributary/internal/logging"
)

// position resolves a branch name and instant into a read position. A zero
// instant means now.
func (s *Service) position(branchName string, at timestamp.Timestamp, rebase bool) (node.ReadPosition, error) {
	b, err := s.Branch(branchName)
	if err != nil {
		return node.ReadPosition{}, err
	}
	if at.IsZero() {
		at = timestamp.Now()
	}
	return node.ReadPosition{Branch: b, At: at, EphemeralRebase: rebase}, nil
}

// NodeCreate creates a node of the given kind on the branch.
func (s *Service) NodeCreate(ctx context.Context, branchName, kind string, data map[string]interface{}) (*node.Node, error) {
	b, err := s.Branch(branchName)
	if err != nil {
		return nil, err
	}

	unlock := s.writeLock(b.Name)
	defer unlock()

	created, err := s.nodes.Create(ctx, b, timestamp.Now(), kind, data)
	if err != nil {
		return nil, err
	}
	s.emit(events.NewNodeEvent(events.NodeCreated, b.Name, created.ID, created.Kind))
	return created, nil
}

// NodeGet returns the node visible on the branch at the instant. Read
// options control hydration: source and owner pointers and field selection.
func (s *Service) NodeGet(ctx context.Context, branchName string, at timestamp.Timestamp, rebase bool, id string, opts ...node.ReadOption) (*node.Node, error) {
	pos, err := s.position(branchName, at, rebase)
	if err != nil {
		return nil, err
	}
	return s.nodes.GetOne(ctx, pos, id, opts...)
}

// NodeQuery lists the nodes visible on the branch at the instant.
func (s *Service) NodeQuery(ctx context.Context, branchName string, at timestamp.Timestamp, rebase bool, opts node.QueryOptions) ([]*node.Node, error) {
	pos, err := s.position(branchName, at, rebase)
	if err != nil {
		return nil, err
	}
	return s.nodes.Query(ctx, pos, opts)
}

// NodeUpdate applies attribute and relationship changes to a node.
func (s *Service) NodeUpdate(ctx context.Context, branchName, id string, data map[string]interface{}) (*node.Node, error) {
	b, err := s.Branch(branchName)
	if err != nil {
		return nil, err
	}

	unlock := s.writeLock(b.Name)
	defer unlock()

	updated, err := s.nodes.Update(ctx, b, timestamp.Now(), id, data)
	if err != nil {
		return nil, err
	}
	s.emit(events.NewNodeEvent(events.NodeUpdated, b.Name, updated.ID, updated.Kind))
	return updated, nil
}

// NodeDelete tombstones a node on the branch. The node stays readable at
// instants before the delete.
func (s *Service) NodeDelete(ctx context.Context, branchName, id string) error {
	b, err := s.Branch(branchName)
	if err != nil {
		return err
	}

	unlock := s.writeLock(b.Name)
	defer unlock()

	at := timestamp.Now()
	current, err := s.nodes.GetOne(ctx, node.ReadPosition{Branch: b, At: at}, id)
	if err != nil {
		return err
	}
	if err := s.nodes.Delete(ctx, b, at, id); err != nil {
		return err
	}
	s.emit(events.NewNodeEvent(events.NodeDeleted, b.Name, current.ID, current.Kind))

	s.logger.InfoWithFields("node deleted",
		logging.Field("id", id),
		logging.Field("kind", current.Kind),
		logging.Field("branch", b.Name),
	)
	return nil
}

// RelationshipAdd links a peer to the node's named relationship. peer is a
// node id or an object carrying the id and property flags.
func (s *Service) RelationshipAdd(ctx context.Context, branchName, nodeID, relName string, peer interface{}) (*node.Node, error) {
	b, err := s.Branch(branchName)
	if err != nil {
		return nil, err
	}

	unlock := s.writeLock(b.Name)
	defer unlock()

	updated, err := s.nodes.AddRelationship(ctx, b, timestamp.Now(), nodeID, relName, peer)
	if err != nil {
		return nil, err
	}
	s.emit(events.NewNodeEvent(events.NodeUpdated, b.Name, updated.ID, updated.Kind))
	return updated, nil
}

// RelationshipRemove unlinks a peer from the node's named relationship.
func (s *Service) RelationshipRemove(ctx context.Context, branchName, nodeID, relName, peerID string) (*node.Node, error) {
	b, err := s.Branch(branchName)
	if err != nil {
		return nil, err
	}

	unlock := s.writeLock(b.Name)
	defer unlock()

	updated, err := s.nodes.RemoveRelationship(ctx, b, timestamp.Now(), nodeID, relName, peerID)
	if err != nil {
		return nil, err
	}
	s.emit(events.NewNodeEvent(events.NodeUpdated, b.Name, updated.ID, updated.Kind))
	return updated, nil
}
