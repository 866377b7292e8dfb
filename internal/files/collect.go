package files

import (
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// Entry describes one file staged for sending. DisplayPath is what the
// receiver sees: the bare filename for plain files, a slash-separated
// relative path for files collected out of a directory.
type Entry struct {
	AbsPath     string
	DisplayPath string
	Size        int64
	Type        string
}

// Open returns a fresh reader over the file. Called once per send
// attempt.
func (e Entry) Open() (io.ReadCloser, error) {
	return os.Open(e.AbsPath)
}

// Collect validates every argument and expands directories recursively.
// All paths must be valid; one bad argument fails the whole batch so
// nothing is half-sent.
func Collect(paths []string) ([]Entry, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files specified")
	}

	var entries []Entry
	var problems []string

	for _, path := range paths {
		collected, err := collectOne(path)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		entries = append(entries, collected...)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("file validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no files found under the given paths")
	}
	return entries, nil
}

func collectOne(path string) ([]Entry, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: file does not exist", path)
		}
		return nil, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}

	if stat.IsDir() {
		return collectDir(absPath)
	}

	entry, err := makeEntry(absPath, filepath.Base(absPath), stat.Size())
	if err != nil {
		return nil, err
	}
	return []Entry{entry}, nil
}

// collectDir walks a directory tree, keeping paths relative to the
// directory's parent so the receiver reproduces the tree under its
// download root.
func collectDir(root string) ([]Entry, error) {
	parent := filepath.Dir(root)

	var entries []Entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return err
		}

		entry, err := makeEntry(path, filepath.ToSlash(rel), info.Size())
		if err != nil {
			return err
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", root, err)
	}
	return entries, nil
}

func makeEntry(absPath, displayPath string, size int64) (Entry, error) {
	// Readability check up front, not at send time.
	file, err := os.Open(absPath)
	if err != nil {
		return Entry{}, fmt.Errorf("%s: cannot open file (check permissions): %w", displayPath, err)
	}
	file.Close()

	mimeType := mime.TypeByExtension(filepath.Ext(absPath))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return Entry{
		AbsPath:     absPath,
		DisplayPath: displayPath,
		Size:        size,
		Type:        mimeType,
	}, nil
}

// TotalSize sums the batch.
func TotalSize(entries []Entry) int64 {
	var total int64
	for _, e := range entries {
		total += e.Size
	}
	return total
}
