// Package catalog records every unit processed by the indexer so that
// indexes can be located by name or by the variables they contain.
package catalog

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/mwantia/gridindex/data"
	"github.com/mwantia/gridindex/index"
)

// Entry describes one persisted collection or partition index.
type Entry struct {
	Name      string
	Kind      data.UnitKind
	IndexPath string
	BuildID   uuid.UUID
	BuiltAt   time.Time
	Status    string

	// Distinct variable names, sorted
	Variables []string
}

// Key identifies an entry. Collections and partitions may share a name.
func (e *Entry) Key() string {
	return Key(e.Kind, e.Name)
}

func Key(kind data.UnitKind, name string) string {
	return kind.String() + "/" + name
}

// HasVariable reports whether the entry lists the variable name.
func (e *Entry) HasVariable(name string) bool {
	_, found := slices.BinarySearch(e.Variables, name)
	return found
}

// Catalog stores entries. Implementations follow the Open/Close lifecycle
// and must be safe for concurrent use between the two.
type Catalog interface {
	Name() string

	Open(ctx context.Context) error
	Close(ctx context.Context) error

	// Record inserts or replaces the entry with the same key.
	Record(ctx context.Context, entry *Entry) error
	// Lookup returns data.ErrEntryNotExist for unknown entries.
	Lookup(ctx context.Context, kind data.UnitKind, name string) (*Entry, error)
	// Find returns every entry listing the variable name, ordered by key.
	Find(ctx context.Context, variable string) ([]*Entry, error)
	// List returns every entry ordered by key.
	List(ctx context.Context) ([]*Entry, error)
}

// VariableNames returns the distinct sorted names of a summary.
func VariableNames(summary index.Summary) []string {
	names := make([]string, 0, len(summary.Variables))
	for _, vs := range summary.Variables {
		names = append(names, vs.Variable.Name)
	}
	return SortVariables(names)
}

// SortVariables returns a sorted copy of names without duplicates.
func SortVariables(names []string) []string {
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	return slices.Compact(sorted)
}

// NewCollectionEntry describes a loaded collection index.
func NewCollectionEntry(ref data.ChildRef, ci *index.CollectionIndex, status string) *Entry {
	return &Entry{
		Name:      ref.Name,
		Kind:      data.KindCollection,
		IndexPath: ref.IndexPath,
		BuildID:   ci.BuildID,
		BuiltAt:   ci.BuiltAt,
		Status:    status,
		Variables: VariableNames(ci.Summary()),
	}
}

// NewPartitionEntry describes a loaded partition index.
func NewPartitionEntry(ref data.ChildRef, pi *index.PartitionIndex, status string) *Entry {
	return &Entry{
		Name:      ref.Name,
		Kind:      data.KindPartition,
		IndexPath: ref.IndexPath,
		BuildID:   pi.BuildID,
		BuiltAt:   pi.BuiltAt,
		Status:    status,
		Variables: VariableNames(pi.Summary()),
	}
}
