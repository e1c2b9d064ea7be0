// Package collection builds the index of one leaf collection by scanning
// its member files.
package collection

import (
	"context"
	"errors"
	"time"

	"github.com/mwantia/gridindex/data"
	"github.com/mwantia/gridindex/index"
	"github.com/mwantia/gridindex/log"
	"github.com/mwantia/gridindex/scanner"
	"github.com/tidwall/btree"
)

// Builder scans member files with a format scanner and persists the
// resulting collection index.
type Builder[O any] struct {
	scanner scanner.Scanner[O]
	store   *index.Store
	log     *log.Logger
}

func NewBuilder[O any](sc scanner.Scanner[O], store *index.Store, logger *log.Logger) *Builder[O] {
	if logger == nil {
		logger = log.NewDiscard()
	}
	return &Builder[O]{
		scanner: sc,
		store:   store,
		log:     logger,
	}
}

// Build scans every member of mc and atomically writes the index to
// mc.IndexPath. Nothing is written when any member fails to decode.
func (b *Builder[O]) Build(ctx context.Context, mc *data.MCollection[O]) (*index.CollectionIndex, error) {
	ci, err := b.Index(ctx, mc)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.store.WriteCollection(mc.IndexPath, ci); err != nil {
		return nil, err
	}

	b.log.Debug("Wrote collection '%s' with %d records to '%s'", ci.Name, len(ci.Records), mc.IndexPath)
	return ci, nil
}

// Index scans every member of mc into an in-memory index.
func (b *Builder[O]) Index(ctx context.Context, mc *data.MCollection[O]) (*index.CollectionIndex, error) {
	acc := newAccumulator()
	fsys := b.store.Fs()

	for i := range mc.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := mc.FilePath(i)
		count := 0
		for rd, err := range b.scanner.Scan(ctx, fsys, path, mc.Aux) {
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil, err
				}
				if !errors.Is(err, data.ErrFormatDecode) {
					err = data.FormatDecode(err, path)
				}
				return nil, err
			}

			rd.FileID = i
			acc.add(rd)
			count++
		}
		b.log.Debug("Scanned %d records from '%s'", count, path)
	}

	return acc.index(mc.Name, mc.Files), nil
}

// Load reads a persisted collection index.
func (b *Builder[O]) Load(path string) (*index.CollectionIndex, error) {
	return b.store.ReadCollection(path)
}

type variableSet struct {
	variable data.Variable
	refs     btree.Set[int64]
	levels   *btree.BTreeG[data.Level]
}

type accumulator struct {
	records   *btree.BTreeG[data.RecordDescriptor]
	variables *btree.Map[string, *variableSet]
	refs      btree.Set[int64]
}

func newAccumulator() *accumulator {
	return &accumulator{
		records:   btree.NewBTreeG(data.LessRecord),
		variables: btree.NewMap[string, *variableSet](0),
	}
}

func lessLevel(a, b data.Level) bool {
	return data.CompareLevel(a, b) < 0
}

func (a *accumulator) add(rd data.RecordDescriptor) {
	a.records.Set(rd)

	key := rd.Variable.Key()
	vs, ok := a.variables.Get(key)
	if !ok {
		vs = &variableSet{
			variable: rd.Variable,
			levels:   btree.NewBTreeG(lessLevel),
		}
		a.variables.Set(key, vs)
	}

	ref := rd.ReferenceTime.UnixNano()
	vs.refs.Insert(ref)
	vs.levels.Set(rd.Level)
	a.refs.Insert(ref)
}

func (a *accumulator) index(name string, files []data.Fingerprint) *index.CollectionIndex {
	ci := &index.CollectionIndex{
		Name:           name,
		Files:          files,
		Records:        a.records.Items(),
		ReferenceTimes: times(&a.refs),
		Variables:      make([]index.VariableEntry, 0, a.variables.Len()),
	}

	// Records are ordered by variable key first, so each variable owns one
	// contiguous range in the same order as the variable table.
	first := 0
	a.variables.Scan(func(key string, vs *variableSet) bool {
		count := 0
		for first+count < len(ci.Records) && ci.Records[first+count].Variable.Key() == key {
			count++
		}

		ci.Variables = append(ci.Variables, index.VariableEntry{
			Variable:       vs.variable,
			ReferenceTimes: times(&vs.refs),
			Levels:         vs.levels.Items(),
			First:          first,
			Count:          count,
		})
		first += count
		return true
	})
	return ci
}

func times(set *btree.Set[int64]) []time.Time {
	result := make([]time.Time, 0, set.Len())
	set.Scan(func(ns int64) bool {
		result = append(result, time.Unix(0, ns).UTC())
		return true
	})
	return result
}
