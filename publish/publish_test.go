package publish_test

import (
	"errors"
	"testing"

	"github.com/mwantia/gridindex/data"
	"github.com/mwantia/gridindex/publish"
	"github.com/spf13/afero"
)

func TestObjectKey(t *testing.T) {
	tests := map[string][3]string{
		"gfs/gfs-2024-01.gcx": {"gfs", "/archive/2024/01/gfs-2024-01.gcx", "gfs-2024-01"},
		"gfs.gpx":             {"", "/indexes/gfs.gpx", "gfs"},
		"a/b/gfs-2024.gpx":    {"a/b/", "/indexes/x.gpx", "gfs-2024"},
	}
	for want, args := range tests {
		if got := publish.ObjectKey(args[0], args[1], args[2]); got != want {
			t.Errorf("ObjectKey(%q, %q, %q) = %q, want %q", args[0], args[1], args[2], got, want)
		}
	}
}

func TestDirPublisher_Publish(t *testing.T) {
	ctx := t.Context()
	source := afero.NewMemMapFs()
	target := afero.NewMemMapFs()

	if err := afero.WriteFile(source, "/archive/2024/gfs-2024.gpx", []byte("GIDX payload"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	p := publish.NewDirPublisher(target, "/published")
	if err := p.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer p.Close(ctx)

	if err := p.Publish(ctx, source, "/archive/2024/gfs-2024.gpx", "gfs-2024"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	got, err := afero.ReadFile(target, "/published/gfs-2024.gpx")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != "GIDX payload" {
		t.Errorf("Expected published content, got %q", got)
	}

	entries, err := afero.ReadDir(target, "/published")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected only the published file, got %d entries", len(entries))
	}
}

func TestDirPublisher_MissingSource(t *testing.T) {
	ctx := t.Context()

	p := publish.NewDirPublisher(afero.NewMemMapFs(), "/published")
	if err := p.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	err := p.Publish(ctx, afero.NewMemMapFs(), "/missing.gcx", "missing")
	if !errors.Is(err, data.ErrPublishFailed) {
		t.Errorf("Expected ErrPublishFailed, got %v", err)
	}
}
