package index

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mwantia/gridindex/data"
)

// VariableEntry is one row of a collection's variable table.
type VariableEntry struct {
	Variable       data.Variable `cbor:"1,keyasint"`
	ReferenceTimes []time.Time   `cbor:"2,keyasint"`
	Levels         []data.Level  `cbor:"3,keyasint"`

	// Contiguous range of the variable in the record table
	First int `cbor:"4,keyasint"`
	Count int `cbor:"5,keyasint"`
}

// CollectionIndex is the persisted metadata of one leaf collection.
type CollectionIndex struct {
	Name    string    `cbor:"1,keyasint"`
	BuildID uuid.UUID `cbor:"-"`
	BuiltAt time.Time `cbor:"-"`

	Files          []data.Fingerprint      `cbor:"2,keyasint"`
	Variables      []VariableEntry         `cbor:"3,keyasint"`
	ReferenceTimes []time.Time             `cbor:"4,keyasint"`
	Records        []data.RecordDescriptor `cbor:"5,keyasint"`
}

// Summary returns the coordinate view used by partition merges.
func (ci *CollectionIndex) Summary() Summary {
	summary := Summary{
		ReferenceTimes: ci.ReferenceTimes,
		Variables:      make([]VariableSummary, 0, len(ci.Variables)),
	}
	for _, ve := range ci.Variables {
		summary.Variables = append(summary.Variables, VariableSummary{
			Variable:       ve.Variable,
			ReferenceTimes: ve.ReferenceTimes,
			Levels:         ve.Levels,
		})
	}
	return summary
}

// Lookup returns the variable table entry for v.
func (ci *CollectionIndex) Lookup(v data.Variable) (*VariableEntry, bool) {
	key := v.Key()
	i := sort.Search(len(ci.Variables), func(i int) bool {
		return ci.Variables[i].Variable.Key() >= key
	})
	if i < len(ci.Variables) && ci.Variables[i].Variable.Key() == key {
		return &ci.Variables[i], true
	}
	return nil, false
}

// Find binary-searches the record table for every record of v at the
// given reference time and level. The result shares the record table.
func (ci *CollectionIndex) Find(v data.Variable, ref time.Time, level data.Level) []data.RecordDescriptor {
	entry, ok := ci.Lookup(v)
	if !ok {
		return nil
	}

	records := ci.Records[entry.First : entry.First+entry.Count]
	start := sort.Search(len(records), func(i int) bool {
		return compareCoordinate(records[i], ref, level) >= 0
	})
	end := start + sort.Search(len(records)-start, func(i int) bool {
		return compareCoordinate(records[start+i], ref, level) > 0
	})
	return records[start:end]
}

func compareCoordinate(rd data.RecordDescriptor, ref time.Time, level data.Level) int {
	if c := rd.ReferenceTime.Compare(ref); c != 0 {
		return c
	}
	return data.CompareLevel(rd.Level, level)
}

// OwnedVariable is one row of a partition's reconciled variable table.
type OwnedVariable struct {
	Variable       data.Variable `cbor:"1,keyasint"`
	ReferenceTimes []time.Time   `cbor:"2,keyasint"`
	Levels         []data.Level  `cbor:"3,keyasint"`

	// Names of the direct children contributing this variable
	Owners []string `cbor:"4,keyasint"`
}

// ChildEntry references one child index and the build it was merged from.
type ChildEntry struct {
	data.ChildRef `cbor:"1,keyasint"`
	BuildID       uuid.UUID `cbor:"2,keyasint"`
}

// Ambiguity reports variants of one variable group that differ between
// sibling children. Every variant is retained in the partition.
type Ambiguity struct {
	Name     string          `cbor:"1,keyasint"`
	GridID   string          `cbor:"2,keyasint"`
	Variants []data.Variable `cbor:"3,keyasint"`
	Children []string        `cbor:"4,keyasint"`
}

// Err describes the ambiguity as an error wrapping
// data.ErrReconciliationAmbiguity.
func (a Ambiguity) Err() error {
	return fmt.Errorf("%w: %d variants of '%s' on grid '%s' across %v",
		data.ErrReconciliationAmbiguity, len(a.Variants), a.Name, a.GridID, a.Children)
}

// PartitionIndex is the persisted metadata of an internal directory.
type PartitionIndex struct {
	Name    string    `cbor:"1,keyasint"`
	BuildID uuid.UUID `cbor:"-"`
	BuiltAt time.Time `cbor:"-"`

	Children       []ChildEntry    `cbor:"2,keyasint"`
	Variables      []OwnedVariable `cbor:"3,keyasint"`
	ReferenceTimes []time.Time     `cbor:"4,keyasint"`
	Ambiguities    []Ambiguity     `cbor:"5,keyasint"`
}

func (pi *PartitionIndex) Summary() Summary {
	summary := Summary{
		ReferenceTimes: pi.ReferenceTimes,
		Variables:      make([]VariableSummary, 0, len(pi.Variables)),
	}
	for _, ov := range pi.Variables {
		summary.Variables = append(summary.Variables, VariableSummary{
			Variable:       ov.Variable,
			ReferenceTimes: ov.ReferenceTimes,
			Levels:         ov.Levels,
		})
	}
	return summary
}

// Contains reports whether any variant of the named variable is present
// anywhere below the partition.
func (pi *PartitionIndex) Contains(name string) bool {
	return slices.ContainsFunc(pi.Variables, func(ov OwnedVariable) bool {
		return ov.Variable.Name == name
	})
}

// Child returns the child entry with the given name.
func (pi *PartitionIndex) Child(name string) (*ChildEntry, bool) {
	for i := range pi.Children {
		if pi.Children[i].Name == name {
			return &pi.Children[i], true
		}
	}
	return nil, false
}

// VariableSummary is the coordinate set of one variable.
type VariableSummary struct {
	Variable       data.Variable
	ReferenceTimes []time.Time
	Levels         []data.Level
}

// Summary is the coordinate view shared by collections and partitions.
type Summary struct {
	Variables      []VariableSummary
	ReferenceTimes []time.Time
}

// VariableKeys returns the identity keys of every variable in order.
func (s Summary) VariableKeys() []string {
	keys := make([]string, 0, len(s.Variables))
	for _, vs := range s.Variables {
		keys = append(keys, vs.Variable.Key())
	}
	return keys
}

// Summarizer is implemented by both index kinds.
type Summarizer interface {
	Summary() Summary
}
