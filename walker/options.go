package walker

import (
	"github.com/mwantia/gridindex/data"
	"github.com/mwantia/gridindex/log"
	"github.com/spf13/afero"
)

type WalkerOptions struct {
	Fs      afero.Fs
	Workers int
	Logger  *log.Logger
	// Base names never taken as members, whatever the glob
	Ignore  func(name string) bool
}

type WalkerOption func(*WalkerOptions) error

func newDefaultWalkerOptions() *WalkerOptions {
	return &WalkerOptions{
		Fs:      afero.NewOsFs(),
		Workers: 1,
	}
}

// WithFs walks fsys instead of the operating system filesystem.
func WithFs(fsys afero.Fs) WalkerOption {
	return func(opts *WalkerOptions) error {
		if fsys == nil {
			return data.InvalidConfig("filesystem must not be nil")
		}
		opts.Fs = fsys
		return nil
	}
}

// WithWorkers processes up to n siblings of one directory concurrently.
func WithWorkers(n int) WalkerOption {
	return func(opts *WalkerOptions) error {
		if n < 1 {
			return data.InvalidConfig("workers must be at least 1, got %d", n)
		}
		opts.Workers = n
		return nil
	}
}

func WithLogger(logger *log.Logger) WalkerOption {
	return func(opts *WalkerOptions) error {
		opts.Logger = logger
		return nil
	}
}

// WithIgnore excludes files whose base name matches fn, such as sidecar
// files of the record format.
func WithIgnore(fn func(name string) bool) WalkerOption {
	return func(opts *WalkerOptions) error {
		opts.Ignore = fn
		return nil
	}
}
