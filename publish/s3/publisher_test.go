package s3_test

import (
	"os"
	"testing"

	"github.com/mwantia/gridindex/publish/s3"
	"github.com/spf13/afero"
)

func TestS3Publisher_Key(t *testing.T) {
	publisher, err := s3.NewS3Publisher("localhost:9000", "indexes", "archive/", "minio", "minio123", false)
	if err != nil {
		t.Fatalf("NewS3Publisher failed: %v", err)
	}

	tests := []struct {
		indexPath string
		name      string
		want      string
	}{
		{"/data/gfs/2024/gfs-2024.gcx", "gfs-2024", "archive/gfs-2024.gcx"},
		{"/data/gfs/gfs-2024.gpx", "gfs-2024", "archive/gfs-2024.gpx"},
		{"/indexes/2024/01/current.gcx", "gfs-2024-01", "archive/gfs-2024-01.gcx"},
	}
	for _, tt := range tests {
		if got := publisher.Key(tt.indexPath, tt.name); got != tt.want {
			t.Errorf("Key(%q, %q) = %q, want %q", tt.indexPath, tt.name, got, tt.want)
		}
	}
}

func TestS3Publisher_Publish(t *testing.T) {
	endpoint := os.Getenv("GRIDINDEX_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("GRIDINDEX_S3_ENDPOINT not set")
	}

	publisher, err := s3.NewS3Publisher(endpoint, os.Getenv("GRIDINDEX_S3_BUCKET"), "test",
		os.Getenv("GRIDINDEX_S3_ACCESS_KEY"), os.Getenv("GRIDINDEX_S3_SECRET_KEY"), false)
	if err != nil {
		t.Fatalf("NewS3Publisher failed: %v", err)
	}
	if err := publisher.Open(t.Context()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer publisher.Close(t.Context())

	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "/idx/gfs.gcx", []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := publisher.Publish(t.Context(), fsys, "/idx/gfs.gcx", "gfs"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}
