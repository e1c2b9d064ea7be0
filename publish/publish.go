// Package publish copies freshly built index files to a distribution
// target.
package publish

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"

	"github.com/mwantia/gridindex/data"
	"github.com/spf13/afero"
)

// Publisher uploads an index file read from fsys. Implementations follow
// the Open/Close lifecycle.
type Publisher interface {
	Name() string

	Open(ctx context.Context) error
	Close(ctx context.Context) error

	// Publish stores the file at path under the unit name, keeping its
	// index extension.
	Publish(ctx context.Context, fsys afero.Fs, path, name string) error
}

// ObjectKey returns the destination key of an index file below prefix.
func ObjectKey(prefix, indexPath, name string) string {
	return path.Join(prefix, name+filepath.Ext(indexPath))
}

// DirPublisher copies index files into a directory of another file system.
type DirPublisher struct {
	target afero.Fs
	dir    string
}

var _ Publisher = (*DirPublisher)(nil)

func NewDirPublisher(target afero.Fs, dir string) *DirPublisher {
	return &DirPublisher{
		target: target,
		dir:    dir,
	}
}

// Returns the identifier name defined for this publisher
func (*DirPublisher) Name() string {
	return "dir"
}

func (dp *DirPublisher) Open(ctx context.Context) error {
	return dp.target.MkdirAll(dp.dir, 0o755)
}

func (dp *DirPublisher) Close(ctx context.Context) error {
	return nil
}

func (dp *DirPublisher) Publish(ctx context.Context, fsys afero.Fs, indexPath, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := fsys.Open(indexPath)
	if err != nil {
		return Failed(err, indexPath)
	}
	defer src.Close()

	dest := filepath.Join(dp.dir, filepath.FromSlash(ObjectKey("", indexPath, name)))
	tmp, err := afero.TempFile(dp.target, dp.dir, ".publish-*")
	if err != nil {
		return Failed(err, dest)
	}
	defer dp.target.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return Failed(err, dest)
	}
	if err := tmp.Close(); err != nil {
		return Failed(err, dest)
	}
	if err := dp.target.Rename(tmp.Name(), dest); err != nil {
		return Failed(err, dest)
	}
	return nil
}

// Failed wraps err with data.ErrPublishFailed.
func Failed(err error, path string) error {
	return &data.UnitError{
		Op:   "publish",
		Path: path,
		Err:  fmt.Errorf("%w: %w", data.ErrPublishFailed, err),
	}
}
