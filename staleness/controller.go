package staleness

import (
	"errors"

	"github.com/mwantia/gridindex/data"
	"github.com/mwantia/gridindex/index"
	"github.com/mwantia/gridindex/log"
)

// Controller loads persisted indexes and decides their fate.
// Unreadable indexes (version mismatch, corruption) count as absent.
type Controller struct {
	store  *index.Store
	policy data.UpdatePolicy
	log    *log.Logger
}

func NewController(store *index.Store, policy data.UpdatePolicy, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.NewDiscard()
	}
	return &Controller{
		store:  store,
		policy: policy,
		log:    logger,
	}
}

func (c *Controller) Policy() data.UpdatePolicy {
	return c.policy
}

// Collection decides whether the collection index at path is reusable for
// the live member list. The stored index is returned when it was loaded.
func (c *Controller) Collection(path string, live []data.Fingerprint) (Decision, *index.CollectionIndex, error) {
	if c.policy == data.PolicyAlways {
		c.log.Debug("Collection '%s': %s", path, ReasonPolicyAlways)
		return Rebuild, nil, nil
	}

	stored, err := c.store.ReadCollection(path)
	if err != nil {
		if !index.Unusable(err) {
			return 0, nil, err
		}
		if !errors.Is(err, data.ErrIndexNotExist) {
			c.log.Warn("Ignoring unusable index: %v", err)
		}
		stored = nil
	}

	decision, reason, err := DecideCollection(c.policy, stored, live)
	if err != nil {
		if errors.Is(err, data.ErrStaleIndexViolation) {
			return 0, nil, data.StaleIndexViolation(path)
		}
		return 0, nil, err
	}

	c.log.Debug("Collection '%s': %s (%s)", path, decision, reason)
	return decision, stored, nil
}

// Partition decides whether the partition index at path is reusable for
// the live children. rebuilt reports children built during this run.
func (c *Controller) Partition(path string, children []data.ChildRef, rebuilt func(ref data.ChildRef) bool) (Decision, *index.PartitionIndex, error) {
	if c.policy == data.PolicyAlways {
		c.log.Debug("Partition '%s': %s", path, ReasonPolicyAlways)
		return Rebuild, nil, nil
	}

	stored, err := c.store.ReadPartition(path)
	if err != nil {
		if !index.Unusable(err) {
			return 0, nil, err
		}
		if !errors.Is(err, data.ErrIndexNotExist) {
			c.log.Warn("Ignoring unusable index: %v", err)
		}
		stored = nil
	}

	live := make([]ChildState, 0, len(children))
	for _, ref := range children {
		state := ChildState{Ref: ref}
		if rebuilt != nil {
			state.Rebuilt = rebuilt(ref)
		}

		// Child headers are only needed to compare against a stored index
		if stored != nil && c.policy == data.PolicyTest && !state.Rebuilt {
			if header, err := c.store.Header(ref.IndexPath); err == nil {
				state.BuildID = header.BuildID
			}
			if modTime, err := c.store.ModTime(ref.IndexPath); err == nil {
				state.ModTime = modTime
			}
		}
		live = append(live, state)
	}

	decision, reason, err := DecidePartition(c.policy, stored, live)
	if err != nil {
		if errors.Is(err, data.ErrStaleIndexViolation) {
			return 0, nil, data.StaleIndexViolation(path)
		}
		return 0, nil, err
	}

	c.log.Debug("Partition '%s': %s (%s)", path, decision, reason)
	return decision, stored, nil
}
