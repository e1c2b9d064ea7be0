// Package gridindex builds persistent indexes over archive trees of
// meteorological record files. Every leaf directory (or file) becomes a
// collection index and every directory above it a partition index that
// merges the indexes of its children, so that later queries never have to
// open the raw files again.
package gridindex

import (
	"context"
	"errors"
	"sync"

	"github.com/mwantia/gridindex/catalog"
	"github.com/mwantia/gridindex/collection"
	"github.com/mwantia/gridindex/data"
	"github.com/mwantia/gridindex/index"
	"github.com/mwantia/gridindex/lock"
	"github.com/mwantia/gridindex/log"
	"github.com/mwantia/gridindex/partition"
	"github.com/mwantia/gridindex/publish"
	"github.com/mwantia/gridindex/scanner"
	"github.com/mwantia/gridindex/staleness"
	"github.com/mwantia/gridindex/walker"
)

// Unit statuses reported by the indexer.
const (
	StatusBuilt  = "built"
	StatusReused = "reused"
)

var ErrRunning = errors.New("gridindex: indexer is already running")

// Indexer wires traversal, staleness control, builders, locks, catalog and
// publisher together for one collection config.
type Indexer[O any] struct {
	cfg     data.CollectionConfig[O]
	walker  *walker.Walker[O]
	store   *index.Store
	control *staleness.Controller

	collections *collection.Builder[O]
	partitions  *partition.Builder[O]

	catalog   catalog.Catalog
	locker    lock.Locker
	publisher publish.Publisher
	log       *log.Logger

	mu      sync.Mutex
	running bool
	state   *runState
}

// runState is reset at the start of every run.
type runState struct {
	rebuilt     map[string]bool
	built       int
	reused      int
	ambiguities []PartitionAmbiguity
	aux         data.Errors
}

func newRunState() *runState {
	return &runState{
		rebuilt: make(map[string]bool),
	}
}

// PartitionAmbiguity is an ambiguity found while merging a partition.
type PartitionAmbiguity struct {
	Partition string
	index.Ambiguity
}

func New[O any](cfg data.CollectionConfig[O], sc scanner.Scanner[O], opts ...IndexerOption) (*Indexer[O], error) {
	options := newDefaultIndexerOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	if sc == nil {
		return nil, data.InvalidConfig("scanner must not be nil")
	}
	if options.Policy != "" {
		cfg.Policy = options.Policy
	}

	logger := options.Logger
	if logger == nil {
		logger = log.NewDiscard()
	}

	walkerOpts := []walker.WalkerOption{
		walker.WithFs(options.Fs),
		walker.WithWorkers(options.Workers),
		walker.WithLogger(logger.Named("walker")),
	}
	if ig, ok := sc.(scanner.Ignorer[O]); ok {
		aux := cfg.Options
		walkerOpts = append(walkerOpts, walker.WithIgnore(func(name string) bool {
			return ig.Ignore(name, aux)
		}))
	}

	w, err := walker.New(cfg, walkerOpts...)
	if err != nil {
		return nil, err
	}
	cfg = w.Config()

	store := index.NewStore(options.Fs)
	return &Indexer[O]{
		cfg:         cfg,
		walker:      w,
		store:       store,
		control:     staleness.NewController(store, cfg.Policy, logger.Named("staleness")),
		collections: collection.NewBuilder(sc, store, logger.Named("collection")),
		partitions:  partition.NewBuilder[O](store, logger.Named("partition")),
		catalog:     options.Catalog,
		locker:      options.Locker,
		publisher:   options.Publisher,
		log:         logger,
		state:       newRunState(),
	}, nil
}

// Config returns the validated collection config.
func (ix *Indexer[O]) Config() data.CollectionConfig[O] {
	return ix.cfg
}

// Store returns the index store the indexer reads and writes through.
func (ix *Indexer[O]) Store() *index.Store {
	return ix.store
}

// Run indexes the whole tree. The returned error is the failure of the
// root unit, the report lists every unit.
func (ix *Indexer[O]) Run(ctx context.Context) (*Report, error) {
	ix.mu.Lock()
	if ix.running {
		ix.mu.Unlock()
		return nil, ErrRunning
	}
	ix.running = true
	ix.state = newRunState()
	ix.mu.Unlock()

	defer func() {
		ix.mu.Lock()
		ix.running = false
		ix.mu.Unlock()
	}()

	ix.log.Info("Indexing '%s' below '%s' (policy %s, granularity %s)", ix.cfg.Name, ix.cfg.TopDir, ix.cfg.Policy, ix.cfg.Granularity)

	walked, err := ix.walker.Walk(ctx, ix.ProcessCollection, ix.ProcessPartition)

	ix.mu.Lock()
	report := &Report{
		Report:      walked,
		Built:       ix.state.built,
		Reused:      ix.state.reused,
		Ambiguities: ix.state.ambiguities,
		aux:         ix.state.aux.Errors(),
	}
	ix.mu.Unlock()

	if err != nil {
		ix.log.Error("Indexing '%s' failed: %v", ix.cfg.Name, err)
		return report, err
	}

	ix.log.Info("Indexed '%s': %d built, %d reused, %d failed", ix.cfg.Name, report.Built, report.Reused, len(report.Failed()))
	return report, nil
}

// ProcessCollection is the default collection callback. It reuses the
// persisted index when the staleness controller allows it and builds it
// otherwise.
func (ix *Indexer[O]) ProcessCollection(ctx context.Context, mc *data.MCollection[O]) (string, error) {
	release, err := ix.locker.Acquire(ctx, mc.IndexPath)
	if err != nil {
		return "", err
	}
	defer release()

	decision, ci, err := ix.control.Collection(mc.IndexPath, mc.Files)
	if err != nil {
		return "", err
	}

	status := StatusReused
	if decision == staleness.Rebuild {
		if ci, err = ix.collections.Build(ctx, mc); err != nil {
			return "", err
		}
		status = StatusBuilt
	}

	ix.complete(mc.IndexPath, status)
	ix.record(ctx, catalog.NewCollectionEntry(mc.Ref(), ci, status))
	if status == StatusBuilt {
		ix.publish(ctx, mc.IndexPath, mc.Name)
	}
	return status, nil
}

// ProcessPartition is the default partition callback. A partition is
// rebuilt whenever one of its children was rebuilt during this run.
func (ix *Indexer[O]) ProcessPartition(ctx context.Context, mp *data.MPartition[O]) (string, error) {
	release, err := ix.locker.Acquire(ctx, mp.IndexPath)
	if err != nil {
		return "", err
	}
	defer release()

	decision, pi, err := ix.control.Partition(mp.IndexPath, mp.Children, ix.wasRebuilt)
	if err != nil {
		return "", err
	}

	status := StatusReused
	if decision == staleness.Rebuild {
		if pi, err = ix.partitions.Build(ctx, mp); err != nil {
			return "", err
		}
		status = StatusBuilt
	}

	ix.complete(mp.IndexPath, status)
	ix.mu.Lock()
	for _, ambiguity := range pi.Ambiguities {
		ix.state.ambiguities = append(ix.state.ambiguities, PartitionAmbiguity{Partition: mp.Name, Ambiguity: ambiguity})
	}
	ix.mu.Unlock()

	ix.record(ctx, catalog.NewPartitionEntry(mp.Ref(), pi, status))
	if status == StatusBuilt {
		ix.publish(ctx, mp.IndexPath, mp.Name)
	}
	return status, nil
}

func (ix *Indexer[O]) complete(indexPath, status string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if status == StatusBuilt {
		ix.state.rebuilt[indexPath] = true
		ix.state.built++
	} else {
		ix.state.reused++
	}
}

func (ix *Indexer[O]) wasRebuilt(ref data.ChildRef) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	return ix.state.rebuilt[ref.IndexPath]
}

// record and publish never fail the unit, their errors end up in the report.
func (ix *Indexer[O]) record(ctx context.Context, entry *catalog.Entry) {
	if ix.catalog == nil {
		return
	}
	if err := ix.catalog.Record(ctx, entry); err != nil {
		ix.log.Error("Failed to record '%s' in catalog '%s': %v", entry.Name, ix.catalog.Name(), err)
		ix.state.aux.Add(err)
	}
}

func (ix *Indexer[O]) publish(ctx context.Context, indexPath, name string) {
	if ix.publisher == nil {
		return
	}
	if err := ix.publisher.Publish(ctx, ix.store.Fs(), indexPath, name); err != nil {
		ix.log.Error("Failed to publish '%s' via '%s': %v", name, ix.publisher.Name(), err)
		ix.state.aux.Add(err)
	}
}
