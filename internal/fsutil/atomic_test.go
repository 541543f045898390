package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	if err := WriteFile(path, []byte("one"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := WriteFile(path, []byte("two"), 0644); err != nil {
		t.Fatalf("WriteFile overwrite: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "two" {
		t.Errorf("got %q, want %q", data, "two")
	}

	// No temp droppings left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type state struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	path := filepath.Join(t.TempDir(), "nested", "deep", "state.json")

	if err := EnsureDirAndWriteJSON(path, &state{Name: "relay", Count: 3}); err != nil {
		t.Fatalf("EnsureDirAndWriteJSON: %v", err)
	}
	var got state
	if err := LoadJSON(path, &got); err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if got.Name != "relay" || got.Count != 3 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestLoadJSONMissing(t *testing.T) {
	var v struct{}
	err := LoadJSON(filepath.Join(t.TempDir(), "absent.json"), &v)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !IsNotExist(err) {
		t.Errorf("expected IsNotExist, got %v", err)
	}
}
