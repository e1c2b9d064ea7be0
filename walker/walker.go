// Package walker traverses an archive tree bottom-up and hands every leaf
// collection and internal partition to caller supplied callbacks.
package walker

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/mwantia/gridindex/data"
	"github.com/mwantia/gridindex/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Status recorded for a partition that was skipped because of a child.
const StatusChildFailed = "child failed"

// CollectionFunc processes one leaf collection and returns a free-form
// status for the report.
type CollectionFunc[O any] func(ctx context.Context, mc *data.MCollection[O]) (string, error)

// PartitionFunc processes one partition after all of its children.
type PartitionFunc[O any] func(ctx context.Context, mp *data.MPartition[O]) (string, error)

type Walker[O any] struct {
	cfg     data.CollectionConfig[O]
	fs      afero.Fs
	glob    glob.Glob
	ignore  func(name string) bool
	workers int
	log     *log.Logger
}

func New[O any](cfg data.CollectionConfig[O], opts ...WalkerOption) (*Walker[O], error) {
	options := newDefaultWalkerOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pattern, err := glob.Compile(cfg.Glob)
	if err != nil {
		return nil, data.InvalidConfig("invalid glob '%s': %v", cfg.Glob, err)
	}

	logger := options.Logger
	if logger == nil {
		logger = log.NewDiscard()
	}

	return &Walker[O]{
		cfg:     cfg,
		fs:      options.Fs,
		glob:    pattern,
		ignore:  options.Ignore,
		workers: options.Workers,
		log:     logger,
	}, nil
}

// Config returns the validated configuration.
func (w *Walker[O]) Config() data.CollectionConfig[O] {
	return w.cfg
}

// Walk visits the tree below the configured top directory. Every child is
// processed before its parent partition. A failed unit fails its ancestors
// but never its siblings. The returned error is the failure of the root
// node, the report lists every unit.
func (w *Walker[O]) Walk(ctx context.Context, onCollection CollectionFunc[O], onPartition PartitionFunc[O]) (*Report, error) {
	report := &Report{}

	root, err := w.walk(ctx, w.cfg.TopDir, report, onCollection, onPartition)
	if err != nil {
		return report, err
	}
	report.Root = root

	if root == nil {
		w.log.Warn("No files matching '%s' below '%s'", w.cfg.Glob, w.cfg.TopDir)
	}
	return report, nil
}

type listing struct {
	files   []data.Fingerprint
	subdirs []string
}

func (w *Walker[O]) list(dir string) (*listing, error) {
	entries, err := afero.ReadDir(w.fs, dir)
	if err != nil {
		return nil, data.DirectoryRead(err, dir)
	}

	result := &listing{}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		if entry.IsDir() {
			path := filepath.Join(dir, name)
			if w.cfg.IndexDir != "" && path == w.cfg.IndexDir {
				continue
			}
			result.subdirs = append(result.subdirs, path)
			continue
		}

		if !entry.Mode().IsRegular() || data.IsIndexArtifact(name) || w.ignored(name) || !w.glob.Match(name) {
			continue
		}
		result.files = append(result.files, data.NewFingerprint(name, entry))
	}
	return result, nil
}

func (w *Walker[O]) ignored(name string) bool {
	return w.ignore != nil && w.ignore(name)
}

// task produces at most one child node of a directory.
type task func(ctx context.Context) (*data.ChildRef, error)

func (w *Walker[O]) walk(ctx context.Context, dir string, report *Report, onCollection CollectionFunc[O], onPartition PartitionFunc[O]) (*data.ChildRef, error) {
	rel, err := filepath.Rel(w.cfg.TopDir, dir)
	if err != nil {
		return nil, data.DirectoryRead(err, dir)
	}
	name := w.cfg.UnitName(rel)

	if err := ctx.Err(); err != nil {
		report.add(Unit{Name: name, Kind: data.KindPartition, Dir: dir, Err: err})
		return nil, err
	}

	indexDir, err := w.cfg.IndexDirFor(dir)
	if err != nil {
		report.add(Unit{Name: name, Kind: data.KindPartition, Dir: dir, Err: err})
		return nil, err
	}

	listing, err := w.list(dir)
	if err != nil {
		w.log.Error("Failed to list '%s': %v", dir, err)
		report.add(Unit{Name: name, Kind: data.KindPartition, Dir: dir, Err: err})
		return nil, err
	}

	var tasks []task
	switch w.cfg.Granularity {
	case data.GranularityFile:
		for _, file := range listing.files {
			mc := &data.MCollection[O]{
				Name:  w.cfg.UnitName(filepath.Join(rel, file.Name)),
				Dir:   dir,
				Files: []data.Fingerprint{file},
				Aux:   w.cfg.Options,
			}
			mc.IndexPath = filepath.Join(indexDir, mc.Name+data.CollectionIndexExt)
			tasks = append(tasks, w.collectionTask(mc, report, onCollection))
		}
	default:
		if len(listing.files) > 0 {
			mc := &data.MCollection[O]{
				Name:      name,
				Dir:       dir,
				IndexPath: filepath.Join(indexDir, name+data.CollectionIndexExt),
				Files:     listing.files,
				Aux:       w.cfg.Options,
			}
			tasks = append(tasks, w.collectionTask(mc, report, onCollection))
		}
	}
	for _, subdir := range listing.subdirs {
		tasks = append(tasks, func(ctx context.Context) (*data.ChildRef, error) {
			return w.walk(ctx, subdir, report, onCollection, onPartition)
		})
	}

	refs, errs := w.run(ctx, tasks)

	// A directory holding only its own files is a leaf collection node
	if w.cfg.Granularity != data.GranularityFile && len(listing.files) > 0 && emptyTail(refs, errs) {
		return refs[0], errs[0]
	}

	mp := &data.MPartition[O]{
		Name:      name,
		Dir:       dir,
		IndexPath: filepath.Join(indexDir, name+data.PartitionIndexExt),
		Aux:       w.cfg.Options,
	}
	var failed error
	for i, ref := range refs {
		if errs[i] != nil {
			if failed == nil {
				failed = errs[i]
			}
			continue
		}
		if ref != nil {
			mp.Children = append(mp.Children, *ref)
		}
	}

	if failed != nil {
		err := data.ChildFailed(failed, dir)
		report.add(Unit{Name: name, Kind: data.KindPartition, Dir: dir, IndexPath: mp.IndexPath, Status: StatusChildFailed, Err: err})
		return nil, err
	}

	if len(mp.Children) == 0 {
		w.log.Debug("Skipping empty directory '%s'", dir)
		return nil, nil
	}

	status, err := onPartition(ctx, mp)
	report.add(Unit{Name: mp.Name, Kind: data.KindPartition, Dir: dir, IndexPath: mp.IndexPath, Status: status, Err: err})
	if err != nil {
		w.log.Error("Partition '%s' failed: %v", mp.Name, err)
		return nil, err
	}

	ref := mp.Ref()
	return &ref, nil
}

func (w *Walker[O]) collectionTask(mc *data.MCollection[O], report *Report, onCollection CollectionFunc[O]) task {
	return func(ctx context.Context) (*data.ChildRef, error) {
		if err := ctx.Err(); err != nil {
			report.add(Unit{Name: mc.Name, Kind: data.KindCollection, Dir: mc.Dir, IndexPath: mc.IndexPath, Err: err})
			return nil, err
		}

		status, err := onCollection(ctx, mc)
		report.add(Unit{Name: mc.Name, Kind: data.KindCollection, Dir: mc.Dir, IndexPath: mc.IndexPath, Status: status, Err: err})
		if err != nil {
			w.log.Error("Collection '%s' failed: %v", mc.Name, err)
			return nil, err
		}

		ref := mc.Ref()
		return &ref, nil
	}
}

// run executes the tasks of one directory, concurrently when more than one
// worker is configured. Results keep the task order. Failures are returned
// per task so that one failing sibling never cancels the others.
func (w *Walker[O]) run(ctx context.Context, tasks []task) ([]*data.ChildRef, []error) {
	refs := make([]*data.ChildRef, len(tasks))
	errs := make([]error, len(tasks))

	if w.workers <= 1 || len(tasks) <= 1 {
		for i, t := range tasks {
			refs[i], errs[i] = t(ctx)
		}
		return refs, errs
	}

	var g errgroup.Group
	g.SetLimit(w.workers)
	for i, t := range tasks {
		g.Go(func() error {
			refs[i], errs[i] = t(ctx)
			return nil
		})
	}
	g.Wait()

	return refs, errs
}

// emptyTail reports whether every task after the first produced nothing.
func emptyTail(refs []*data.ChildRef, errs []error) bool {
	for i := 1; i < len(refs); i++ {
		if refs[i] != nil || errs[i] != nil {
			return false
		}
	}
	return true
}
