package consul_test

import (
	"os"
	"testing"

	"github.com/mwantia/gridindex/lock/consul"
)

func TestConsulLocker_Key(t *testing.T) {
	locker, err := consul.NewConsulLocker(&consul.ConsulLockerConfig{Prefix: "archive/locks/"})
	if err != nil {
		t.Fatalf("NewConsulLocker failed: %v", err)
	}

	tests := map[string]string{
		"/indexes/gfs.gpx": "archive/locks/indexes/gfs.gpx",
		"gfs-2024-01.gcx":  "archive/locks/gfs-2024-01.gcx",
	}
	for key, want := range tests {
		if got := locker.Key(key); got != want {
			t.Errorf("Key(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestConsulLocker_Acquire(t *testing.T) {
	address := os.Getenv("GRIDINDEX_CONSUL_ADDR")
	if address == "" {
		t.Skip("GRIDINDEX_CONSUL_ADDR not set")
	}

	locker, err := consul.NewConsulLocker(&consul.ConsulLockerConfig{Address: address})
	if err != nil {
		t.Fatalf("NewConsulLocker failed: %v", err)
	}

	release, err := locker.Acquire(t.Context(), "/indexes/gfs.gpx")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	release()

	// The key is free again once released
	again, err := locker.Acquire(t.Context(), "/indexes/gfs.gpx")
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	again()
}
