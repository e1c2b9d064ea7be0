package index

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mwantia/gridindex/data"
	"github.com/spf13/afero"
)

// Store reads and writes index files on an afero filesystem.
// Writes are atomic: readers observe either the previous index or the new
// one, never a partial file.
type Store struct {
	fs  afero.Fs
	now func() time.Time
}

func NewStore(fsys afero.Fs) *Store {
	return &Store{
		fs:  fsys,
		now: time.Now,
	}
}

// Fs returns the filesystem the store operates on.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// Exists reports whether an index file is present at path.
func (s *Store) Exists(path string) (bool, error) {
	return afero.Exists(s.fs, path)
}

// ModTime returns the modification time of the index file at path.
func (s *Store) ModTime(path string) (time.Time, error) {
	info, err := s.fs.Stat(path)
	if err != nil {
		return time.Time{}, s.notExist(err, path)
	}
	return info.ModTime(), nil
}

// Header reads only the fixed-size header of the index at path.
func (s *Store) Header(path string) (*Header, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, s.notExist(err, path)
	}
	defer f.Close()

	header, err := ReadHeader(f)
	if err != nil {
		return nil, wrapLoad(err, path)
	}
	return header, nil
}

func (s *Store) ReadCollection(path string) (*CollectionIndex, error) {
	var ci CollectionIndex
	header, err := s.read(path, data.KindCollection, &ci)
	if err != nil {
		return nil, err
	}

	ci.BuildID = header.BuildID
	ci.BuiltAt = header.BuiltAt
	return &ci, nil
}

func (s *Store) ReadPartition(path string) (*PartitionIndex, error) {
	var pi PartitionIndex
	header, err := s.read(path, data.KindPartition, &pi)
	if err != nil {
		return nil, err
	}

	pi.BuildID = header.BuildID
	pi.BuiltAt = header.BuiltAt
	return &pi, nil
}

// ReadSummary loads the coordinate view of either index kind.
func (s *Store) ReadSummary(ref data.ChildRef) (Summary, uuid.UUID, error) {
	switch ref.Kind {
	case data.KindCollection:
		ci, err := s.ReadCollection(ref.IndexPath)
		if err != nil {
			return Summary{}, uuid.Nil, err
		}
		return ci.Summary(), ci.BuildID, nil
	case data.KindPartition:
		pi, err := s.ReadPartition(ref.IndexPath)
		if err != nil {
			return Summary{}, uuid.Nil, err
		}
		return pi.Summary(), pi.BuildID, nil
	default:
		return Summary{}, uuid.Nil, fmt.Errorf("%w: unknown kind of child '%s'", data.ErrIndexKind, ref.Name)
	}
}

// WriteCollection assigns a fresh build identity to ci and persists it.
func (s *Store) WriteCollection(path string, ci *CollectionIndex) error {
	buildID, builtAt, err := s.stamp()
	if err != nil {
		return err
	}
	if err := s.write(path, data.KindCollection, buildID, builtAt, ci); err != nil {
		return err
	}

	ci.BuildID = buildID
	ci.BuiltAt = builtAt
	return nil
}

// WritePartition assigns a fresh build identity to pi and persists it.
func (s *Store) WritePartition(path string, pi *PartitionIndex) error {
	buildID, builtAt, err := s.stamp()
	if err != nil {
		return err
	}
	if err := s.write(path, data.KindPartition, buildID, builtAt, pi); err != nil {
		return err
	}

	pi.BuildID = buildID
	pi.BuiltAt = builtAt
	return nil
}

func (s *Store) stamp() (uuid.UUID, time.Time, error) {
	buildID, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("failed to generate build id: %w", err)
	}
	return buildID, s.now().UTC(), nil
}

func (s *Store) read(path string, kind data.UnitKind, v any) (*Header, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, s.notExist(err, path)
	}
	defer f.Close()

	header, err := Decode(bufio.NewReader(f), kind, v)
	if err != nil {
		return nil, wrapLoad(err, path)
	}
	return header, nil
}

// write encodes into a hidden temporary file next to path and renames it
// into place once the content is complete.
func (s *Store) write(path string, kind data.UnitKind, buildID uuid.UUID, builtAt time.Time, v any) error {
	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory '%s': %w", dir, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, ".gidx-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary index in '%s': %w", dir, err)
	}
	name := tmp.Name()

	cleanup := func(cause error) error {
		tmp.Close()
		if err := s.fs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errors.Join(cause, err)
		}
		return cause
	}

	w := bufio.NewWriter(tmp)
	if err := Encode(w, kind, buildID, builtAt, v); err != nil {
		return cleanup(fmt.Errorf("failed to write index '%s': %w", path, err))
	}
	if err := w.Flush(); err != nil {
		return cleanup(fmt.Errorf("failed to write index '%s': %w", path, err))
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(fmt.Errorf("failed to sync index '%s': %w", path, err))
	}
	if err := tmp.Close(); err != nil {
		return cleanup(fmt.Errorf("failed to close index '%s': %w", path, err))
	}

	if err := s.fs.Rename(name, path); err != nil {
		return cleanup(fmt.Errorf("failed to replace index '%s': %w", path, err))
	}
	return nil
}

func (s *Store) notExist(err error, path string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return &data.UnitError{Op: "load index", Path: path, Err: data.ErrIndexNotExist}
	}
	return &data.UnitError{Op: "load index", Path: path, Err: err}
}

func wrapLoad(err error, path string) error {
	return &data.UnitError{Op: "load index", Path: path, Err: err}
}

// Unusable reports whether err means the index must be treated as absent:
// missing, written by another format version or corrupted.
func Unusable(err error) bool {
	return errors.Is(err, data.ErrIndexNotExist) ||
		errors.Is(err, data.ErrVersionMismatch) ||
		errors.Is(err, data.ErrCorruptIndex) ||
		errors.Is(err, data.ErrIndexKind)
}
