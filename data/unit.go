package data

import (
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// Index file extensions.
const (
	CollectionIndexExt = ".gcx"
	PartitionIndexExt  = ".gpx"
)

// IsIndexArtifact reports whether a base name belongs to an index file,
// including temporary files of builds in progress.
func IsIndexArtifact(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	ext := filepath.Ext(name)
	return ext == CollectionIndexExt || ext == PartitionIndexExt
}

// UnitKind distinguishes collections from partitions.
type UnitKind uint8

const (
	KindCollection UnitKind = iota + 1
	KindPartition
)

func (k UnitKind) String() string {
	switch k {
	case KindCollection:
		return "collection"
	case KindPartition:
		return "partition"
	default:
		return "unknown"
	}
}

// Fingerprint is a cheap change detector for one member file.
type Fingerprint struct {
	// Name relative to the collection directory
	Name    string    `cbor:"1,keyasint" json:"name"`
	Size    int64     `cbor:"2,keyasint" json:"size"`
	ModTime time.Time `cbor:"3,keyasint" json:"mod_time"`
}

// NewFingerprint captures the fingerprint of a listed file.
func NewFingerprint(name string, info fs.FileInfo) Fingerprint {
	return Fingerprint{
		Name:    name,
		Size:    info.Size(),
		ModTime: info.ModTime().UTC(),
	}
}

// Matches compares size and modification time at nanosecond precision.
func (f Fingerprint) Matches(other Fingerprint) bool {
	return f.Name == other.Name && f.Size == other.Size && f.ModTime.UnixNano() == other.ModTime.UnixNano()
}

// ChildRef is a non-owning reference from a partition to one child index.
type ChildRef struct {
	Name      string   `cbor:"1,keyasint" json:"name"`
	Kind      UnitKind `cbor:"2,keyasint" json:"kind"`
	IndexPath string   `cbor:"3,keyasint" json:"index_path"`
}

// MCollection is the live handle of one collection during a walk.
type MCollection[O any] struct {
	Name      string
	Dir       string
	IndexPath string

	// Member files sorted by name. RecordDescriptor.FileID indexes this slice.
	Files []Fingerprint

	// Typed auxiliary configuration threaded through from the caller
	Aux O
}

// FilePath resolves the absolute path of member i.
func (mc *MCollection[O]) FilePath(i int) string {
	return filepath.Join(mc.Dir, mc.Files[i].Name)
}

// Ref returns the reference a parent partition stores for this collection.
func (mc *MCollection[O]) Ref() ChildRef {
	return ChildRef{Name: mc.Name, Kind: KindCollection, IndexPath: mc.IndexPath}
}

// MPartition is the live handle of one partition during a walk.
type MPartition[O any] struct {
	Name      string
	Dir       string
	IndexPath string

	// Direct children in processing order
	Children []ChildRef

	Aux O
}

func (mp *MPartition[O]) Ref() ChildRef {
	return ChildRef{Name: mp.Name, Kind: KindPartition, IndexPath: mp.IndexPath}
}
