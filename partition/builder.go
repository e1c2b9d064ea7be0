package partition

import (
	"context"

	"github.com/mwantia/gridindex/data"
	"github.com/mwantia/gridindex/index"
	"github.com/mwantia/gridindex/log"
)

// Builder loads the indexes of a partition's children, merges them and
// persists the result. It never opens raw files.
type Builder[O any] struct {
	store *index.Store
	log   *log.Logger
}

func NewBuilder[O any](store *index.Store, logger *log.Logger) *Builder[O] {
	if logger == nil {
		logger = log.NewDiscard()
	}
	return &Builder[O]{
		store: store,
		log:   logger,
	}
}

// Build merges the children of mp and atomically writes the partition
// index to mp.IndexPath.
func (b *Builder[O]) Build(ctx context.Context, mp *data.MPartition[O]) (*index.PartitionIndex, error) {
	children := make([]Child, 0, len(mp.Children))
	for _, ref := range mp.Children {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		summary, buildID, err := b.store.ReadSummary(ref)
		if err != nil {
			return nil, data.ChildFailed(err, ref.IndexPath)
		}
		children = append(children, Child{Ref: ref, BuildID: buildID, Summary: summary})
	}

	pi := Merge(mp.Name, children)
	for _, ambiguity := range pi.Ambiguities {
		b.log.Warn("Partition '%s': %v", mp.Name, ambiguity.Err())
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.store.WritePartition(mp.IndexPath, pi); err != nil {
		return nil, err
	}

	b.log.Debug("Wrote partition '%s' with %d children to '%s'", pi.Name, len(pi.Children), mp.IndexPath)
	return pi, nil
}

// Load reads a persisted partition index.
func (b *Builder[O]) Load(path string) (*index.PartitionIndex, error) {
	return b.store.ReadPartition(path)
}
