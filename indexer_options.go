package gridindex

import (
	"github.com/mwantia/gridindex/catalog"
	"github.com/mwantia/gridindex/data"
	"github.com/mwantia/gridindex/lock"
	"github.com/mwantia/gridindex/log"
	"github.com/mwantia/gridindex/publish"
	"github.com/spf13/afero"
)

type IndexerOptions struct {
	Fs        afero.Fs
	Logger    *log.Logger
	Catalog   catalog.Catalog
	Locker    lock.Locker
	Publisher publish.Publisher
	Workers   int
	// Overrides the policy of the collection config when set
	Policy data.UpdatePolicy
}

type IndexerOption func(*IndexerOptions) error

func newDefaultIndexerOptions() *IndexerOptions {
	return &IndexerOptions{
		Fs:      afero.NewOsFs(),
		Locker:  lock.NewLocal(),
		Workers: 1,
	}
}

func WithFs(fsys afero.Fs) IndexerOption {
	return func(opts *IndexerOptions) error {
		if fsys == nil {
			return data.InvalidConfig("file system must not be nil")
		}
		opts.Fs = fsys
		return nil
	}
}

func WithLogger(logger *log.Logger) IndexerOption {
	return func(opts *IndexerOptions) error {
		opts.Logger = logger
		return nil
	}
}

// WithCatalog records every processed unit in c. The caller opens and
// closes the catalog.
func WithCatalog(c catalog.Catalog) IndexerOption {
	return func(opts *IndexerOptions) error {
		opts.Catalog = c
		return nil
	}
}

func WithLocker(locker lock.Locker) IndexerOption {
	return func(opts *IndexerOptions) error {
		if locker == nil {
			return data.InvalidConfig("locker must not be nil")
		}
		opts.Locker = locker
		return nil
	}
}

// WithPublisher uploads every built index file through p. The caller
// opens and closes the publisher.
func WithPublisher(p publish.Publisher) IndexerOption {
	return func(opts *IndexerOptions) error {
		opts.Publisher = p
		return nil
	}
}

func WithWorkers(workers int) IndexerOption {
	return func(opts *IndexerOptions) error {
		if workers < 1 {
			return data.InvalidConfig("workers must be at least 1, got %d", workers)
		}
		opts.Workers = workers
		return nil
	}
}

func WithPolicy(policy data.UpdatePolicy) IndexerOption {
	return func(opts *IndexerOptions) error {
		if policy == "" {
			return nil
		}
		parsed, err := data.ParseUpdatePolicy(string(policy))
		if err != nil {
			return err
		}
		opts.Policy = parsed
		return nil
	}
}
