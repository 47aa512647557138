// manager_test.go - Tests for the blob storage layer
package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func createTestStore(t *testing.T) *LocalStore {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates blob directory", func(t *testing.T) {
		blobDir := filepath.Join(t.TempDir(), "selections")

		store, err := NewLocalStore(blobDir)
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}

		if _, err := os.Stat(blobDir); os.IsNotExist(err) {
			t.Error("Expected blob directory to be created")
		}
		if store.Count() != 0 {
			t.Errorf("Expected empty store, got %d blobs", store.Count())
		}
	})
}

func TestLocalStore_Save(t *testing.T) {
	t.Run("saves file from reader", func(t *testing.T) {
		store := createTestStore(t)

		content := "Hello, World!"
		info, err := store.Save("hello.txt", strings.NewReader(content))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		if info.ID == "" {
			t.Error("Expected ID to be set")
		}
		if info.Name != "hello.txt" {
			t.Errorf("Expected name 'hello.txt', got %v", info.Name)
		}
		if info.Size != int64(len(content)) {
			t.Errorf("Expected size %d, got %d", len(content), info.Size)
		}
		if !strings.HasPrefix(info.DetectedType, "text/plain") {
			t.Errorf("Expected text/plain detection, got %s", info.DetectedType)
		}
	})

	t.Run("saves empty file", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("empty.bin", strings.NewReader(""))
		if err != nil {
			t.Fatalf("Failed to save empty file: %v", err)
		}
		if info.Size != 0 {
			t.Errorf("Expected size 0, got %d", info.Size)
		}
	})

	t.Run("keeps bytes past the sniff window", func(t *testing.T) {
		store := createTestStore(t)

		content := strings.Repeat("a", sniffLen*3+17)
		info, err := store.Save("long.txt", strings.NewReader(content))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		data, err := os.ReadFile(filepath.Join(store.blobDir, info.ID))
		if err != nil {
			t.Fatalf("Failed to read saved blob: %v", err)
		}
		if string(data) != content {
			t.Errorf("Expected %d bytes on disk, got %d", len(content), len(data))
		}
	})

	t.Run("detects png", func(t *testing.T) {
		store := createTestStore(t)

		png := "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"
		info, err := store.Save("pixel", strings.NewReader(png))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}
		if info.DetectedType != "image/png" {
			t.Errorf("Expected image/png, got %s", info.DetectedType)
		}
	})
}

func TestLocalStore_Open(t *testing.T) {
	t.Run("reads saved bytes", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("scan.txt", strings.NewReader("scanned"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		rc, err := store.Open(info.ID)
		if err != nil {
			t.Fatalf("Failed to open blob: %v", err)
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("Failed to read blob: %v", err)
		}
		if string(data) != "scanned" {
			t.Errorf("Expected 'scanned', got %q", string(data))
		}
	})

	t.Run("returns error for unknown blob", func(t *testing.T) {
		store := createTestStore(t)

		if _, err := store.Open("missing"); err == nil {
			t.Error("Expected error for unknown blob")
		}
	})
}

func TestLocalStore_Get(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save("a.txt", strings.NewReader("content"))
	if err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}

	got, err := store.Get(info.ID)
	if err != nil {
		t.Fatalf("Failed to get blob: %v", err)
	}
	if got.Name != "a.txt" {
		t.Errorf("Expected name a.txt, got %s", got.Name)
	}

	if _, err := store.Get("non-existent-id"); err == nil {
		t.Error("Expected error for non-existent blob")
	}
}

func TestLocalStore_Delete(t *testing.T) {
	t.Run("removes physical file and metadata", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("gone.txt", strings.NewReader("bye"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}
		path, err := store.GetFilePath(info.ID)
		if err != nil {
			t.Fatalf("Failed to get path: %v", err)
		}

		if err := store.Delete(info.ID); err != nil {
			t.Fatalf("Failed to delete blob: %v", err)
		}

		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("Expected blob file to be removed")
		}
		if _, err := store.Get(info.ID); err == nil {
			t.Error("Expected metadata to be removed")
		}
		if store.Count() != 0 {
			t.Errorf("Expected 0 blobs, got %d", store.Count())
		}
	})

	t.Run("returns error for unknown blob", func(t *testing.T) {
		store := createTestStore(t)

		if err := store.Delete("missing"); err == nil {
			t.Error("Expected error deleting unknown blob")
		}
	})
}

func TestLocalStore_PurgeUntracked(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "left-over"), []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	store, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	info, err := store.Save("keep.txt", strings.NewReader("keep"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	removed, err := store.PurgeUntracked()
	if err != nil {
		t.Fatalf("PurgeUntracked failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed file, got %d", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "left-over")); !os.IsNotExist(err) {
		t.Error("Expected stale file to be removed")
	}
	if _, err := store.Open(info.ID); err != nil {
		t.Errorf("Expected tracked blob to survive: %v", err)
	}
}
