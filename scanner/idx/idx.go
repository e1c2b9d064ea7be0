// Package idx scans the wgrib2 style inventory sidecar files published
// next to GRIB2 archives (for example "gfs.t00z.pgrb2.0p25.f006.idx").
//
// Every inventory line describes one message:
//
//	n:offset:d=YYYYMMDDHH:VAR:LEVEL:FTIME:[extra...]
//
// Sub-messages ("4.1", "4.2") share the byte offset of their parent message.
package idx

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mwantia/gridindex/data"
	"github.com/mwantia/gridindex/scanner"
	"github.com/spf13/afero"
)

const (
	DefaultSuffix = ".idx"
	DefaultGridID = "default"
)

// Options configure the inventory scanner.
type Options struct {
	// Suffix appended to the raw file path to locate the inventory
	Suffix string `yaml:"suffix"`
	// Grid identity assigned to every variable of the archive
	GridID string `yaml:"grid"`
}

func (o Options) withDefaults() Options {
	if o.Suffix == "" {
		o.Suffix = DefaultSuffix
	}
	if o.GridID == "" {
		o.GridID = DefaultGridID
	}
	return o
}

// Scanner implements scanner.Scanner[Options].
type Scanner struct{}

var (
	_ scanner.Scanner[Options] = (*Scanner)(nil)
	_ scanner.Ignorer[Options] = (*Scanner)(nil)
)

func New() *Scanner {
	return &Scanner{}
}

// Ignore reports whether name is an inventory sidecar.
func (s *Scanner) Ignore(name string, opts Options) bool {
	return strings.HasSuffix(name, opts.withDefaults().Suffix)
}

type entry struct {
	line   int
	offset int64
	rd     data.RecordDescriptor
}

func (s *Scanner) Scan(ctx context.Context, fsys afero.Fs, path string, opts Options) iter.Seq2[data.RecordDescriptor, error] {
	return func(yield func(data.RecordDescriptor, error) bool) {
		opts = opts.withDefaults()

		entries, size, err := readInventory(fsys, path, opts)
		if err != nil {
			yield(data.RecordDescriptor{}, err)
			return
		}

		offsets := distinctOffsets(entries)
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				yield(data.RecordDescriptor{}, err)
				return
			}

			end := size
			if i := sort.Search(len(offsets), func(i int) bool { return offsets[i] > e.offset }); i < len(offsets) {
				end = offsets[i]
			}
			if end <= e.offset {
				yield(data.RecordDescriptor{}, data.FormatDecode(fmt.Errorf("line %d: offset %d beyond file size %d", e.line, e.offset, size), path))
				return
			}

			rd := e.rd
			rd.Offset = e.offset
			rd.Length = end - e.offset
			if !yield(rd, nil) {
				return
			}
		}
	}
}

func readInventory(fsys afero.Fs, path string, opts Options) ([]entry, int64, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return nil, 0, data.FormatDecode(err, path)
	}

	content, err := afero.ReadFile(fsys, path+opts.Suffix)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, data.FormatDecode(fmt.Errorf("missing inventory '%s'", path+opts.Suffix), path)
		}
		return nil, 0, data.FormatDecode(err, path)
	}

	var entries []entry
	lines := bufio.NewScanner(bytes.NewReader(content))
	for n := 1; lines.Scan(); n++ {
		line := strings.TrimSpace(lines.Text())
		if line == "" {
			continue
		}

		e, err := parseLine(line, opts)
		if err != nil {
			return nil, 0, data.FormatDecode(fmt.Errorf("line %d: %w", n, err), path)
		}
		e.line = n
		entries = append(entries, e)
	}
	if err := lines.Err(); err != nil {
		return nil, 0, data.FormatDecode(err, path)
	}

	return entries, info.Size(), nil
}

func distinctOffsets(entries []entry) []int64 {
	seen := make(map[int64]struct{}, len(entries))
	offsets := make([]int64, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.offset]; ok {
			continue
		}
		seen[e.offset] = struct{}{}
		offsets = append(offsets, e.offset)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	return offsets
}

func parseLine(line string, opts Options) (entry, error) {
	fields := strings.Split(line, ":")
	if len(fields) < 6 {
		return entry{}, fmt.Errorf("expected at least 6 fields, got %d", len(fields))
	}

	offset, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || offset < 0 {
		return entry{}, fmt.Errorf("invalid offset '%s'", fields[1])
	}

	ref, err := parseReferenceTime(fields[2])
	if err != nil {
		return entry{}, err
	}

	name := strings.TrimSpace(fields[3])
	if name == "" {
		return entry{}, fmt.Errorf("empty variable name")
	}

	level, err := ParseLevel(fields[4])
	if err != nil {
		return entry{}, err
	}

	validity, err := ParseValidity(ref, fields[5])
	if err != nil {
		return entry{}, err
	}

	return entry{
		offset: offset,
		rd: data.RecordDescriptor{
			Variable: data.Variable{
				Name:      name,
				LevelType: level.Type,
				GridID:    opts.GridID,
				Stat:      validity.Kind,
			},
			ReferenceTime: ref,
			Validity:      validity,
			Level:         level,
		},
	}, nil
}

func parseReferenceTime(field string) (time.Time, error) {
	value, ok := strings.CutPrefix(strings.TrimSpace(field), "d=")
	if !ok {
		return time.Time{}, fmt.Errorf("invalid reference time '%s'", field)
	}

	var layout string
	switch len(value) {
	case 10:
		layout = "2006010215"
	case 12:
		layout = "200601021504"
	case 14:
		layout = "20060102150405"
	default:
		return time.Time{}, fmt.Errorf("invalid reference time '%s'", field)
	}

	t, err := time.ParseInLocation(layout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid reference time '%s': %w", field, err)
	}
	return t, nil
}
