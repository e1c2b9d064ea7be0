// Package staleness decides whether a persisted index can be reused or
// must be rebuilt under the configured update policy.
package staleness

import (
	"time"

	"github.com/google/uuid"
	"github.com/mwantia/gridindex/data"
	"github.com/mwantia/gridindex/index"
)

type Decision int

const (
	Reuse Decision = iota + 1
	Rebuild
)

func (d Decision) String() string {
	switch d {
	case Reuse:
		return "reuse"
	case Rebuild:
		return "rebuild"
	default:
		return "unknown"
	}
}

// Reasons reported alongside a decision.
const (
	ReasonPolicyAlways   = "policy always"
	ReasonPolicyNoCheck  = "policy nocheck"
	ReasonPolicyNever    = "policy never"
	ReasonMissing        = "index missing"
	ReasonUpToDate       = "up to date"
	ReasonMembersChanged = "member set changed"
	ReasonFileChanged    = "member file changed"
	ReasonChildrenChange = "child set changed"
	ReasonChildNewer     = "child index newer"
	ReasonChildBuild     = "child rebuilt"
)

// ChildState is the live view of one child of a partition.
type ChildState struct {
	Ref     data.ChildRef
	BuildID uuid.UUID
	ModTime time.Time

	// Set when the child was rebuilt during the current run
	Rebuilt bool
}

// DecideCollection applies the policy table to a collection. A nil stored
// index means no usable index exists. Under PolicyNever a missing index
// returns data.ErrStaleIndexViolation.
func DecideCollection(policy data.UpdatePolicy, stored *index.CollectionIndex, live []data.Fingerprint) (Decision, string, error) {
	switch policy {
	case data.PolicyAlways:
		return Rebuild, ReasonPolicyAlways, nil
	case data.PolicyNever:
		if stored == nil {
			return 0, ReasonMissing, data.ErrStaleIndexViolation
		}
		return Reuse, ReasonPolicyNever, nil
	case data.PolicyNoCheck:
		if stored == nil {
			return Rebuild, ReasonMissing, nil
		}
		return Reuse, ReasonPolicyNoCheck, nil
	case data.PolicyTest:
		if stored == nil {
			return Rebuild, ReasonMissing, nil
		}
		if len(stored.Files) != len(live) {
			return Rebuild, ReasonMembersChanged, nil
		}
		for i := range live {
			if stored.Files[i].Name != live[i].Name {
				return Rebuild, ReasonMembersChanged, nil
			}
			if !stored.Files[i].Matches(live[i]) {
				return Rebuild, ReasonFileChanged, nil
			}
		}
		return Reuse, ReasonUpToDate, nil
	default:
		return 0, "", data.InvalidConfig("unknown update policy '%s'", policy)
	}
}

// DecidePartition applies the policy table to a partition. A descendant
// rebuilt during the current run forces a rebuild under every policy but
// PolicyNever.
func DecidePartition(policy data.UpdatePolicy, stored *index.PartitionIndex, live []ChildState) (Decision, string, error) {
	if policy == data.PolicyNever {
		if stored == nil {
			return 0, ReasonMissing, data.ErrStaleIndexViolation
		}
		return Reuse, ReasonPolicyNever, nil
	}

	if policy == data.PolicyAlways {
		return Rebuild, ReasonPolicyAlways, nil
	}
	if stored == nil {
		return Rebuild, ReasonMissing, nil
	}
	for _, child := range live {
		if child.Rebuilt {
			return Rebuild, ReasonChildBuild, nil
		}
	}

	switch policy {
	case data.PolicyNoCheck:
		return Reuse, ReasonPolicyNoCheck, nil
	case data.PolicyTest:
		if len(stored.Children) != len(live) {
			return Rebuild, ReasonChildrenChange, nil
		}
		for i, child := range live {
			recorded := stored.Children[i]
			if recorded.Name != child.Ref.Name || recorded.Kind != child.Ref.Kind || recorded.IndexPath != child.Ref.IndexPath {
				return Rebuild, ReasonChildrenChange, nil
			}
			if child.ModTime.After(stored.BuiltAt) {
				return Rebuild, ReasonChildNewer, nil
			}
			if recorded.BuildID != child.BuildID {
				return Rebuild, ReasonChildBuild, nil
			}
		}
		return Reuse, ReasonUpToDate, nil
	default:
		return 0, "", data.InvalidConfig("unknown update policy '%s'", policy)
	}
}
