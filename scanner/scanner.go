// Package scanner defines the capability the indexer consumes from record
// format decoders.
package scanner

import (
	"context"
	"iter"

	"github.com/mwantia/gridindex/data"
	"github.com/spf13/afero"
)

// Scanner decodes the record headers of one raw file.
//
// The returned sequence is lazy and finite. A decode failure is yielded as
// an error wrapping data.ErrFormatDecode, after which iteration stops.
type Scanner[O any] interface {
	Scan(ctx context.Context, fsys afero.Fs, path string, opts O) iter.Seq2[data.RecordDescriptor, error]
}

// Ignorer is implemented by scanners whose format keeps auxiliary files
// next to the raw files. Matching base names are never collection members.
type Ignorer[O any] interface {
	Ignore(name string, opts O) bool
}

// Func adapts a plain function into a Scanner.
type Func[O any] func(ctx context.Context, fsys afero.Fs, path string, opts O) iter.Seq2[data.RecordDescriptor, error]

func (f Func[O]) Scan(ctx context.Context, fsys afero.Fs, path string, opts O) iter.Seq2[data.RecordDescriptor, error] {
	return f(ctx, fsys, path, opts)
}

// Fail returns a sequence yielding only err.
func Fail(err error) iter.Seq2[data.RecordDescriptor, error] {
	return func(yield func(data.RecordDescriptor, error) bool) {
		yield(data.RecordDescriptor{}, err)
	}
}

// Collect drains a sequence, stopping at the first error.
func Collect(seq iter.Seq2[data.RecordDescriptor, error]) ([]data.RecordDescriptor, error) {
	var records []data.RecordDescriptor
	for rd, err := range seq {
		if err != nil {
			return nil, err
		}
		records = append(records, rd)
	}
	return records, nil
}
