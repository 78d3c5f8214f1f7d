package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFlockExclusiveConflictsAcrossDescriptors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	first, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	if err := FlockExclusive(first, true); err != nil {
		t.Fatalf("first lock failed: %v", err)
	}

	// A separate descriptor on the same file must not acquire the lock
	// while the first holds it.
	second, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	if err := FlockExclusive(second, true); err == nil {
		t.Fatal("second non-blocking lock succeeded while first was held")
	}

	// Closing the holder releases the lock.
	first.Close()
	if err := FlockExclusive(second, true); err != nil {
		t.Errorf("lock after release failed: %v", err)
	}
}
