package files

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCollectSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	writeFile(t, path, []byte("pdf bytes"))

	entries, err := Collect([]string{path})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}

	e := entries[0]
	if e.DisplayPath != "report.pdf" {
		t.Errorf("display path = %q", e.DisplayPath)
	}
	if e.Size != 9 {
		t.Errorf("size = %d", e.Size)
	}
	if e.Type != "application/pdf" {
		t.Errorf("mime = %q", e.Type)
	}
}

func TestCollectDirectoryPreservesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "project")
	writeFile(t, filepath.Join(root, "readme.txt"), []byte("hello"))
	writeFile(t, filepath.Join(root, "src", "main.go"), []byte("package main"))

	entries, err := Collect([]string{root})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	paths := map[string]bool{}
	for _, e := range entries {
		paths[e.DisplayPath] = true
	}
	if !paths["project/readme.txt"] || !paths["project/src/main.go"] {
		t.Errorf("display paths = %v", paths)
	}
}

func TestCollectMissingFileFailsBatch(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.txt")
	writeFile(t, good, []byte("ok"))

	_, err := Collect([]string{good, filepath.Join(dir, "missing.txt")})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "missing.txt") {
		t.Errorf("error does not name the bad file: %v", err)
	}
}

func TestCollectEmptyArgs(t *testing.T) {
	if _, err := Collect(nil); err == nil {
		t.Fatal("expected error for empty path list")
	}
}

func TestOpenReadsContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	writeFile(t, path, []byte("contents"))

	entries, err := Collect([]string{path})
	if err != nil {
		t.Fatal(err)
	}
	r, err := entries[0].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	buf := make([]byte, 16)
	n, _ := r.Read(buf)
	if string(buf[:n]) != "contents" {
		t.Errorf("read %q", buf[:n])
	}
}

func TestTotalSize(t *testing.T) {
	entries := []Entry{{Size: 10}, {Size: 32}}
	if got := TotalSize(entries); got != 42 {
		t.Errorf("total = %d", got)
	}
}
