package schema

import "fmt"

// SnapshotDiff lists the kind-level differences between two snapshots.
type SnapshotDiff struct {
	AddedKinds   []string
	RemovedKinds []string
	ChangedKinds []string
}

// Diff compares two snapshots at kind granularity.
func Diff(base, other *Snapshot) SnapshotDiff {
	var d SnapshotDiff

	for _, kind := range base.Kinds() {
		if other.Get(kind) == nil {
			d.RemovedKinds = append(d.RemovedKinds, kind)
		}
	}
	for _, kind := range other.Kinds() {
		baseNode := base.Get(kind)
		if baseNode == nil {
			d.AddedKinds = append(d.AddedKinds, kind)
			continue
		}
		if nodeHashDiffers(baseNode, other.Get(kind)) {
			d.ChangedKinds = append(d.ChangedKinds, kind)
		}
	}
	return d
}

func nodeHashDiffers(a, b *NodeSchema) bool {
	sa, errA := NewSnapshot([]*NodeSchema{a})
	sb, errB := NewSnapshot([]*NodeSchema{b})
	if errA != nil || errB != nil {
		return true
	}
	return sa.Hash() != sb.Hash()
}

// Compatible reports whether merging a branch snapshot into its parent is
// non-breaking: every parent kind, attribute, and relationship survives
// unchanged in shape, and nothing becomes stricter. Additions of kinds,
// optional attributes, and optional relationships are allowed. The reasons
// list names every violation found.
func Compatible(parent, branchSnapshot *Snapshot) (bool, []string) {
	if parent.Hash() == branchSnapshot.Hash() {
		return true, nil
	}

	var reasons []string

	for _, kind := range parent.Kinds() {
		parentNode := parent.Get(kind)
		branchNode := branchSnapshot.Get(kind)
		if branchNode == nil {
			reasons = append(reasons, fmt.Sprintf("kind %s was removed", kind))
			continue
		}

		for i := range parentNode.Attributes {
			pa := &parentNode.Attributes[i]
			ba := branchNode.GetAttribute(pa.Name)
			if ba == nil {
				reasons = append(reasons, fmt.Sprintf("attribute %s.%s was removed", kind, pa.Name))
				continue
			}
			if ba.Kind != pa.Kind {
				reasons = append(reasons, fmt.Sprintf("attribute %s.%s changed kind from %s to %s", kind, pa.Name, pa.Kind, ba.Kind))
			}
			if pa.Optional && !ba.Optional {
				reasons = append(reasons, fmt.Sprintf("attribute %s.%s became mandatory", kind, pa.Name))
			}
		}

		for i := range parentNode.Relationships {
			pr := &parentNode.Relationships[i]
			br := branchNode.GetRelationship(pr.Name)
			if br == nil {
				reasons = append(reasons, fmt.Sprintf("relationship %s.%s was removed", kind, pr.Name))
				continue
			}
			if br.Peer != pr.Peer {
				reasons = append(reasons, fmt.Sprintf("relationship %s.%s changed peer from %s to %s", kind, pr.Name, pr.Peer, br.Peer))
			}
			if br.Cardinality != pr.Cardinality {
				reasons = append(reasons, fmt.Sprintf("relationship %s.%s changed cardinality from %s to %s", kind, pr.Name, pr.Cardinality, br.Cardinality))
			}
			if pr.Optional && !br.Optional {
				reasons = append(reasons, fmt.Sprintf("relationship %s.%s became mandatory", kind, pr.Name))
			}
		}

		// New mandatory attributes on a kind the parent already has would
		// invalidate existing nodes.
		for i := range branchNode.Attributes {
			ba := &branchNode.Attributes[i]
			if parentNode.GetAttribute(ba.Name) == nil && !ba.Optional && ba.Default == nil {
				reasons = append(reasons, fmt.Sprintf("attribute %s.%s is new and mandatory without a default", kind, ba.Name))
			}
		}
	}

	return len(reasons) == 0, reasons
}
