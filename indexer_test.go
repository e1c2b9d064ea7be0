package gridindex_test

import (
	"context"
	"errors"
	"io/fs"
	"iter"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mwantia/gridindex"
	"github.com/mwantia/gridindex/catalog/memory"
	"github.com/mwantia/gridindex/data"
	"github.com/mwantia/gridindex/index"
	"github.com/mwantia/gridindex/publish"
	"github.com/mwantia/gridindex/scanner"
	"github.com/mwantia/gridindex/scanner/idx"
	"github.com/spf13/afero"
)

const (
	inventoryAnalysis = `1:0:d=2024010100:TMP:500 mb:anl:
2:100:d=2024010100:HGT:500 mb:anl:
3:200:d=2024010100:UGRD:10 m above ground:anl:
`
	inventoryForecast = `1:0:d=2024010106:TMP:850 mb:6 hour fcst:
2:120:d=2024010106:HGT:850 mb:6 hour fcst:
3:260:d=2024010106:APCP:surface:0-6 hour acc fcst:
`
	inventorySurface = `1:0:d=2024010112:TMP:2 m above ground:anl:
`
)

func writeRecordFile(t *testing.T, fsys afero.Fs, path, inventory string) {
	t.Helper()

	if err := afero.WriteFile(fsys, path, make([]byte, 400), 0o644); err != nil {
		t.Fatalf("Failed to write raw file: %v", err)
	}
	if err := afero.WriteFile(fsys, path+idx.DefaultSuffix, []byte(inventory), 0o644); err != nil {
		t.Fatalf("Failed to write inventory: %v", err)
	}
}

// countingScanner counts every raw file opened by the builders.
type countingScanner struct {
	calls atomic.Int32
	inner *idx.Scanner
}

func (cs *countingScanner) Scan(ctx context.Context, fsys afero.Fs, path string, opts idx.Options) iter.Seq2[data.RecordDescriptor, error] {
	cs.calls.Add(1)
	return cs.inner.Scan(ctx, fsys, path, opts)
}

var _ scanner.Scanner[idx.Options] = (*countingScanner)(nil)

func newConfig(topDir string, granularity data.Granularity) data.CollectionConfig[idx.Options] {
	return data.CollectionConfig[idx.Options]{
		Name:        "gfs",
		TopDir:      topDir,
		Glob:        "*.grib2",
		Granularity: granularity,
		Options:     idx.Options{GridID: "0p25"},
	}
}

func newIndexer(t *testing.T, fsys afero.Fs, cfg data.CollectionConfig[idx.Options], sc scanner.Scanner[idx.Options], opts ...gridindex.IndexerOption) *gridindex.Indexer[idx.Options] {
	t.Helper()

	ix, err := gridindex.New(cfg, sc, append([]gridindex.IndexerOption{gridindex.WithFs(fsys)}, opts...)...)
	if err != nil {
		t.Fatalf("Failed to create indexer: %v", err)
	}
	return ix
}

// indexFiles lists every index file below root.
func indexFiles(t *testing.T, fsys afero.Fs, root string) []string {
	t.Helper()

	var files []string
	err := afero.Walk(fsys, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && data.IsIndexArtifact(info.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	return files
}

func statuses(report *gridindex.Report) map[string]string {
	result := make(map[string]string)
	for _, unit := range report.Units {
		result[unit.Kind.String()+"/"+unit.Name] = unit.Status
	}
	return result
}

func TestIndexer_ReuseWithoutScanning(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeRecordFile(t, fsys, "/archive/run/a.grib2", inventoryAnalysis)
	writeRecordFile(t, fsys, "/archive/run/b.grib2", inventoryForecast)
	writeRecordFile(t, fsys, "/archive/run/c.grib2", inventorySurface)

	cfg := newConfig("/archive/run", data.GranularityDirectory)

	first := &countingScanner{inner: idx.New()}
	report, err := newIndexer(t, fsys, cfg, first, gridindex.WithPolicy(data.PolicyAlways)).Run(t.Context())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Built != 1 || report.Reused != 0 {
		t.Errorf("Expected 1 built unit, got %d built and %d reused", report.Built, report.Reused)
	}
	if got := first.calls.Load(); got != 3 {
		t.Errorf("Expected 3 scanned files, got %d", got)
	}
	if report.Root == nil || report.Root.IndexPath != "/archive/run/gfs.gcx" {
		t.Fatalf("Expected leaf collection root, got %+v", report.Root)
	}

	second := &countingScanner{inner: idx.New()}
	report, err = newIndexer(t, fsys, cfg, second, gridindex.WithPolicy(data.PolicyTest)).Run(t.Context())
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if report.Reused != 1 || report.Built != 0 {
		t.Errorf("Expected 1 reused unit, got %d built and %d reused", report.Built, report.Reused)
	}
	if got := second.calls.Load(); got != 0 {
		t.Errorf("Expected no scanned files, got %d", got)
	}

	// Touching a member invalidates the collection
	writeRecordFile(t, fsys, "/archive/run/c.grib2", inventorySurface+"2:200:d=2024010112:RH:2 m above ground:anl:\n")
	third := &countingScanner{inner: idx.New()}
	report, err = newIndexer(t, fsys, cfg, third).Run(t.Context())
	if err != nil {
		t.Fatalf("Third run failed: %v", err)
	}
	if report.Built != 1 || third.calls.Load() != 3 {
		t.Errorf("Expected rebuild of 3 files, got %d built and %d scans", report.Built, third.calls.Load())
	}
}

func TestIndexer_RebuildOnlyStaleBranch(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeRecordFile(t, fsys, "/archive/2024/01/a.grib2", inventoryAnalysis)
	writeRecordFile(t, fsys, "/archive/2024/02/b.grib2", inventoryForecast)

	cfg := newConfig("/archive/2024", data.GranularityDirectory)

	if _, err := newIndexer(t, fsys, cfg, idx.New()).Run(t.Context()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	store := index.NewStore(fsys)
	before, err := store.ReadPartition("/archive/2024/gfs.gpx")
	if err != nil {
		t.Fatalf("ReadPartition failed: %v", err)
	}

	if err := fsys.Remove("/archive/2024/01/gfs-01.gcx"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	sc := &countingScanner{inner: idx.New()}
	report, err := newIndexer(t, fsys, cfg, sc).Run(t.Context())
	if err != nil {
		t.Fatalf("Rerun failed: %v", err)
	}

	want := map[string]string{
		"collection/gfs-01": gridindex.StatusBuilt,
		"collection/gfs-02": gridindex.StatusReused,
		"partition/gfs":     gridindex.StatusBuilt,
	}
	got := statuses(report)
	for key, status := range want {
		if got[key] != status {
			t.Errorf("Expected %s to be %s, got '%s'", key, status, got[key])
		}
	}
	if calls := sc.calls.Load(); calls != 1 {
		t.Errorf("Expected only the stale leaf to be scanned, got %d scans", calls)
	}

	after, err := store.ReadPartition("/archive/2024/gfs.gpx")
	if err != nil {
		t.Fatalf("ReadPartition failed: %v", err)
	}
	if !slices.Equal(before.Summary().VariableKeys(), after.Summary().VariableKeys()) {
		t.Errorf("Expected the same union, got %v and %v", before.Summary().VariableKeys(), after.Summary().VariableKeys())
	}
	if before.BuildID == after.BuildID {
		t.Errorf("Expected a new partition build id")
	}

	child, ok := after.Child("gfs-02")
	if !ok {
		t.Fatalf("Child 'gfs-02' missing")
	}
	header, err := store.Header("/archive/2024/02/gfs-02.gcx")
	if err != nil {
		t.Fatalf("Header failed: %v", err)
	}
	if child.BuildID != header.BuildID {
		t.Errorf("Expected reused child build id %s, got %s", header.BuildID, child.BuildID)
	}
}

func TestIndexer_NeverWithoutIndex(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeRecordFile(t, fsys, "/archive/2024/01/a.grib2", inventoryAnalysis)
	writeRecordFile(t, fsys, "/archive/2024/02/b.grib2", inventoryForecast)

	sc := &countingScanner{inner: idx.New()}
	ix := newIndexer(t, fsys, newConfig("/archive/2024", data.GranularityDirectory), sc, gridindex.WithPolicy(data.PolicyNever))

	report, err := ix.Run(t.Context())
	if !errors.Is(err, data.ErrStaleIndexViolation) {
		t.Fatalf("Expected ErrStaleIndexViolation, got %v", err)
	}
	if !errors.Is(err, data.ErrChildFailed) {
		t.Errorf("Expected the root to fail because of its children, got %v", err)
	}
	if len(report.Failed()) != 3 {
		t.Errorf("Expected 3 failed units, got %d", len(report.Failed()))
	}
	if files := indexFiles(t, fsys, "/archive"); len(files) != 0 {
		t.Errorf("Expected no index files, got %v", files)
	}
	if calls := sc.calls.Load(); calls != 0 {
		t.Errorf("Expected no scanned files, got %d", calls)
	}
}

func TestIndexer_GranularityEquivalence(t *testing.T) {
	build := func(granularity data.Granularity) *index.PartitionIndex {
		fsys := afero.NewMemMapFs()
		writeRecordFile(t, fsys, "/archive/2024/01/a.grib2", inventoryAnalysis)
		writeRecordFile(t, fsys, "/archive/2024/01/b.grib2", inventoryForecast)
		writeRecordFile(t, fsys, "/archive/2024/02/c.grib2", inventorySurface)

		if _, err := newIndexer(t, fsys, newConfig("/archive/2024", granularity), idx.New()).Run(t.Context()); err != nil {
			t.Fatalf("Run with %s granularity failed: %v", granularity, err)
		}

		pi, err := index.NewStore(fsys).ReadPartition("/archive/2024/gfs.gpx")
		if err != nil {
			t.Fatalf("ReadPartition failed: %v", err)
		}
		return pi
	}

	directory := build(data.GranularityDirectory)
	file := build(data.GranularityFile)

	if !slices.Equal(directory.Summary().VariableKeys(), file.Summary().VariableKeys()) {
		t.Fatalf("Expected equal variables, got %v and %v", directory.Summary().VariableKeys(), file.Summary().VariableKeys())
	}
	for i, ov := range directory.Variables {
		other := file.Variables[i]
		if !slices.EqualFunc(ov.ReferenceTimes, other.ReferenceTimes, func(a, b time.Time) bool { return a.Equal(b) }) {
			t.Errorf("Variable %s: reference times differ", ov.Variable.Key())
		}
		if !slices.Equal(ov.Levels, other.Levels) {
			t.Errorf("Variable %s: levels differ", ov.Variable.Key())
		}
	}
	if len(directory.Ambiguities) != len(file.Ambiguities) {
		t.Errorf("Expected the same ambiguities, got %d and %d", len(directory.Ambiguities), len(file.Ambiguities))
	}
}

func TestIndexer_FailureIsolation(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeRecordFile(t, fsys, "/archive/2024/01/a.grib2", "1:0:broken\n")
	writeRecordFile(t, fsys, "/archive/2024/02/b.grib2", inventoryForecast)

	report, err := newIndexer(t, fsys, newConfig("/archive/2024", data.GranularityDirectory), idx.New(), gridindex.WithWorkers(2)).Run(t.Context())
	if !errors.Is(err, data.ErrChildFailed) {
		t.Fatalf("Expected ErrChildFailed, got %v", err)
	}

	got := statuses(report)
	if got["collection/gfs-02"] != gridindex.StatusBuilt {
		t.Errorf("Expected sibling to be built, got '%s'", got["collection/gfs-02"])
	}
	if unit, _ := report.Unit("gfs-01", data.KindCollection); !errors.Is(unit.Err, data.ErrFormatDecode) {
		t.Errorf("Expected ErrFormatDecode for gfs-01, got %v", unit.Err)
	}
	if !errors.Is(report.Err(), data.ErrFormatDecode) {
		t.Errorf("Expected report to carry the decode failure, got %v", report.Err())
	}
	if ok, _ := index.NewStore(fsys).Exists("/archive/2024/gfs.gpx"); ok {
		t.Errorf("Expected no partition index above a failed child")
	}
}

func TestIndexer_Ambiguities(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeRecordFile(t, fsys, "/archive/2024/01/a.grib2", inventoryAnalysis)
	writeRecordFile(t, fsys, "/archive/2024/02/b.grib2", inventorySurface)

	report, err := newIndexer(t, fsys, newConfig("/archive/2024", data.GranularityDirectory), idx.New()).Run(t.Context())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(report.Ambiguities) != 1 {
		t.Fatalf("Expected 1 ambiguity, got %d", len(report.Ambiguities))
	}
	ambiguity := report.Ambiguities[0]
	if ambiguity.Partition != "gfs" || ambiguity.Name != "TMP" || len(ambiguity.Variants) != 2 {
		t.Errorf("Unexpected ambiguity %+v", ambiguity)
	}
	if !errors.Is(ambiguity.Err(), data.ErrReconciliationAmbiguity) {
		t.Errorf("Expected ErrReconciliationAmbiguity, got %v", ambiguity.Err())
	}
}

func TestIndexer_CatalogAndPublisher(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeRecordFile(t, fsys, "/archive/2024/01/a.grib2", inventoryAnalysis)
	writeRecordFile(t, fsys, "/archive/2024/02/b.grib2", inventoryForecast)

	ctx := t.Context()

	cat := memory.NewMemoryCatalog()
	if err := cat.Open(ctx); err != nil {
		t.Fatalf("Catalog open failed: %v", err)
	}
	defer cat.Close(ctx)

	target := afero.NewMemMapFs()
	publisher := publish.NewDirPublisher(target, "/published")
	if err := publisher.Open(ctx); err != nil {
		t.Fatalf("Publisher open failed: %v", err)
	}
	defer publisher.Close(ctx)

	cfg := newConfig("/archive/2024", data.GranularityDirectory)
	report, err := newIndexer(t, fsys, cfg, idx.New(),
		gridindex.WithCatalog(cat),
		gridindex.WithPublisher(publisher)).Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := report.Err(); err != nil {
		t.Fatalf("Expected clean report, got %v", err)
	}

	entries, err := cat.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var keys []string
	for _, entry := range entries {
		keys = append(keys, entry.Key()+"="+entry.Status)
	}
	want := []string{"collection/gfs-01=built", "collection/gfs-02=built", "partition/gfs=built"}
	if !slices.Equal(keys, want) {
		t.Errorf("Expected %v, got %v", want, keys)
	}

	found, err := cat.Find(ctx, "APCP")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(found) != 2 {
		t.Errorf("Expected APCP in gfs-02 and gfs, got %d entries", len(found))
	}

	published, err := afero.ReadDir(target, "/published")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	var names []string
	for _, info := range published {
		names = append(names, info.Name())
	}
	if strings.Join(names, ",") != "gfs-01.gcx,gfs-02.gcx,gfs.gpx" {
		t.Errorf("Unexpected published files %v", names)
	}
}

func TestIndexer_DistinctUnitNames(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeRecordFile(t, fsys, "/archive/x-y/a.grib2", inventoryAnalysis)
	writeRecordFile(t, fsys, "/archive/x/y/b.grib2", inventoryForecast)

	ctx := t.Context()

	cat := memory.NewMemoryCatalog()
	if err := cat.Open(ctx); err != nil {
		t.Fatalf("Catalog open failed: %v", err)
	}
	defer cat.Close(ctx)

	target := afero.NewMemMapFs()
	publisher := publish.NewDirPublisher(target, "/published")
	if err := publisher.Open(ctx); err != nil {
		t.Fatalf("Publisher open failed: %v", err)
	}
	defer publisher.Close(ctx)

	report, err := newIndexer(t, fsys, newConfig("/archive", data.GranularityDirectory), idx.New(),
		gridindex.WithCatalog(cat),
		gridindex.WithPublisher(publisher)).Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Built != 4 {
		t.Errorf("Expected 4 built units, got %d", report.Built)
	}

	entries, err := cat.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var keys []string
	for _, entry := range entries {
		keys = append(keys, entry.Key()+"="+entry.IndexPath)
	}
	want := []string{
		"collection/gfs-x%2Dy=/archive/x-y/gfs-x%2Dy.gcx",
		"collection/gfs-x-y=/archive/x/y/gfs-x-y.gcx",
		"partition/gfs=/archive/gfs.gpx",
		"partition/gfs-x=/archive/x/gfs-x.gpx",
	}
	if !slices.Equal(keys, want) {
		t.Errorf("Expected %v, got %v", want, keys)
	}

	published, err := afero.ReadDir(target, "/published")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(published) != 4 {
		t.Errorf("Expected 4 published indexes, got %d", len(published))
	}

	root, err := index.NewStore(fsys).ReadPartition("/archive/gfs.gpx")
	if err != nil {
		t.Fatalf("ReadPartition failed: %v", err)
	}
	if len(root.Children) != 2 {
		t.Fatalf("Expected 2 children below root, got %+v", root.Children)
	}
	if !root.Contains("APCP") || !root.Contains("UGRD") {
		t.Error("Expected root to hold the variables of both branches")
	}
}

func TestIndexer_SkipsInventorySidecars(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeRecordFile(t, fsys, "/archive/run/a.grib2", inventoryAnalysis)
	writeRecordFile(t, fsys, "/archive/run/b.grib2", inventoryForecast)

	cfg := newConfig("/archive/run", data.GranularityDirectory)
	cfg.Glob = ""

	ix := newIndexer(t, fsys, cfg, idx.New())
	if _, err := ix.Run(t.Context()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	ci, err := ix.Store().ReadCollection("/archive/run/gfs.gcx")
	if err != nil {
		t.Fatalf("ReadCollection failed: %v", err)
	}
	if len(ci.Files) != 2 || ci.Files[0].Name != "a.grib2" || ci.Files[1].Name != "b.grib2" {
		t.Errorf("Expected members [a.grib2 b.grib2], got %+v", ci.Files)
	}
}

func TestIndexer_Cancelled(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeRecordFile(t, fsys, "/archive/run/a.grib2", inventoryAnalysis)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	report, err := newIndexer(t, fsys, newConfig("/archive/run", data.GranularityDirectory), idx.New()).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if !errors.Is(report.Err(), context.Canceled) {
		t.Errorf("Expected report to hold the cancellation, got %v", report.Err())
	}
	if files := indexFiles(t, fsys, "/archive"); len(files) != 0 {
		t.Errorf("Expected no index files, got %v", files)
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	cfg := newConfig("/archive", data.GranularityDirectory)

	tests := map[string][]gridindex.IndexerOption{
		"nil fs":       {gridindex.WithFs(nil)},
		"zero workers": {gridindex.WithWorkers(0)},
		"bad policy":   {gridindex.WithPolicy("sometimes")},
		"nil locker":   {gridindex.WithLocker(nil)},
	}
	for name, opts := range tests {
		t.Run(name, func(tst *testing.T) {
			if _, err := gridindex.New(cfg, idx.New(), opts...); !errors.Is(err, data.ErrInvalidConfig) {
				tst.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	if _, err := gridindex.New[idx.Options](cfg, nil); !errors.Is(err, data.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for nil scanner, got %v", err)
	}
}
