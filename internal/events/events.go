// Package events publishes change notifications for node and branch
// mutations. Delivery is write-behind: Publish enqueues and returns, a
// background flusher batches entries to a sink. Consumers that need
// durability should read the graph, not the event stream.
package events

import (
	"github.com/google/uuid"

	"github.com/tributarydb/tributary/internal/core/timestamp"
)

// Kind names what happened.
type Kind string

const (
	NodeCreated Kind = "node.created"
	NodeUpdated Kind = "node.updated"
	NodeDeleted Kind = "node.deleted"

	BranchCreated Kind = "branch.created"
	BranchRebased Kind = "branch.rebased"
	BranchMerged  Kind = "branch.merged"
	BranchDeleted Kind = "branch.deleted"
)

// Event is one change notification.
type Event struct {
	ID       string                 `json:"id"`
	Kind     Kind                   `json:"kind"`
	Branch   string                 `json:"branch"`
	NodeID   string                 `json:"node_id,omitempty"`
	NodeKind string                 `json:"node_kind,omitempty"`
	At       timestamp.Timestamp    `json:"at"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
}

// NewNodeEvent builds an event for a node mutation.
func NewNodeEvent(kind Kind, branchName, nodeID, nodeKind string) Event {
	return Event{
		ID:       uuid.NewString(),
		Kind:     kind,
		Branch:   branchName,
		NodeID:   nodeID,
		NodeKind: nodeKind,
		At:       timestamp.Now(),
	}
}

// NewBranchEvent builds an event for a branch lifecycle change.
func NewBranchEvent(kind Kind, branchName string) Event {
	return Event{
		ID:     uuid.NewString(),
		Kind:   kind,
		Branch: branchName,
		At:     timestamp.Now(),
	}
}

// WithPayload attaches extra payload fields and returns the event.
func (e Event) WithPayload(payload map[string]interface{}) Event {
	e.Payload = payload
	return e
}
