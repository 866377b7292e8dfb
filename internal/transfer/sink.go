package transfer

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Sink receives payload bytes for one incoming transfer. Write happens
// on the data path; Finalize and Abort are called at most once, and
// never both.
type Sink interface {
	Write(p []byte) (int, error)
	Finalize() error
	Abort()
	Dest() string
}

// newSink picks the buffering strategy: transfers that fit under the
// memory limit assemble in RAM and touch disk once, larger ones stream
// to disk in batches.
func newSink(dest string, size, memoryLimit, batchSize int64) (Sink, error) {
	if size <= memoryLimit {
		return newMemorySink(dest, size), nil
	}
	return newStreamSink(dest, batchSize)
}

// safeJoin anchors a peer-supplied relative path under base and rejects
// anything that would escape it.
func safeJoin(base, rel string) (string, error) {
	rel = filepath.FromSlash(rel)
	if rel == "" || filepath.IsAbs(rel) {
		return "", NewFileError("resolve path", rel, ErrUnsafePath)
	}
	joined := filepath.Join(base, rel)
	cleanBase := filepath.Clean(base)
	if joined != cleanBase && !strings.HasPrefix(joined, cleanBase+string(filepath.Separator)) {
		return "", NewFileError("resolve path", rel, ErrUnsafePath)
	}
	if joined == cleanBase {
		return "", NewFileError("resolve path", rel, ErrUnsafePath)
	}
	return joined, nil
}

// uniquePath appends " (1)", " (2)" and so on until the name is free.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(path)
	stem := path[:len(path)-len(ext)]

	counter := 1
	for {
		candidate := fmt.Sprintf("%s (%d)%s", stem, counter, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		counter++
	}
}

// memorySink accumulates the whole transfer in RAM and writes the file
// once on Finalize.
type memorySink struct {
	dest string
	buf  bytes.Buffer
}

func newMemorySink(dest string, size int64) *memorySink {
	s := &memorySink{dest: dest}
	if size > 0 {
		s.buf.Grow(int(size))
	}
	return s
}

func (s *memorySink) Write(p []byte) (int, error) {
	return s.buf.Write(p)
}

func (s *memorySink) Finalize() error {
	if err := os.MkdirAll(filepath.Dir(s.dest), 0755); err != nil {
		return NewFileError("create directory", s.dest, err)
	}
	if err := os.WriteFile(s.dest, s.buf.Bytes(), 0644); err != nil {
		return NewFileError("write file", s.dest, err)
	}
	s.buf.Reset()
	return nil
}

func (s *memorySink) Abort() {
	s.buf.Reset()
}

func (s *memorySink) Dest() string { return s.dest }

// streamSink appends to the destination file from a background writer.
// The data path only copies into the current batch, so slow disks eat
// into batching headroom before they stall the channel.
type streamSink struct {
	dest      string
	file      *os.File
	batchSize int64

	mu      sync.Mutex
	batch   []byte
	stopped bool

	flushCh chan []byte
	done    chan struct{}

	errMu    sync.Mutex
	writeErr error

	closeOnce sync.Once
}

func newStreamSink(dest string, batchSize int64) (*streamSink, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, NewFileError("create directory", dest, err)
	}
	file, err := os.Create(dest)
	if err != nil {
		return nil, NewFileError("create file", dest, err)
	}

	s := &streamSink{
		dest:      dest,
		file:      file,
		batchSize: batchSize,
		batch:     make([]byte, 0, batchSize),
		flushCh:   make(chan []byte, 4),
		done:      make(chan struct{}),
	}
	go s.writeLoop()
	return s, nil
}

func (s *streamSink) writeLoop() {
	defer close(s.done)
	for batch := range s.flushCh {
		if _, err := s.file.Write(batch); err != nil {
			s.errMu.Lock()
			if s.writeErr == nil {
				s.writeErr = NewFileError("write file", s.dest, err)
			}
			s.errMu.Unlock()
		}
	}
}

func (s *streamSink) err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.writeErr
}

func (s *streamSink) Write(p []byte) (int, error) {
	if err := s.err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, NewFileError("write file", s.dest, ErrSessionClosed)
	}
	s.batch = append(s.batch, p...)
	if int64(len(s.batch)) >= s.batchSize {
		// The send stays inside the critical section: Finalize and Abort
		// set stopped under this mutex before closing flushCh, so no send
		// can start after the stopped check and race the close.
		full := s.batch
		s.batch = make([]byte, 0, s.batchSize)
		s.flushCh <- full
	}
	return len(p), nil
}

func (s *streamSink) Finalize() error {
	s.mu.Lock()
	rest := s.batch
	s.batch = nil
	s.stopped = true
	s.mu.Unlock()

	s.closeOnce.Do(func() {
		if len(rest) > 0 {
			s.flushCh <- rest
		}
		close(s.flushCh)
	})
	<-s.done

	if err := s.err(); err != nil {
		s.file.Close()
		os.Remove(s.dest)
		return err
	}
	if err := s.file.Close(); err != nil {
		return NewFileError("close file", s.dest, err)
	}
	return nil
}

func (s *streamSink) Abort() {
	s.mu.Lock()
	s.batch = nil
	s.stopped = true
	s.mu.Unlock()

	s.closeOnce.Do(func() {
		close(s.flushCh)
	})
	<-s.done
	s.file.Close()
	os.Remove(s.dest)
}

func (s *streamSink) Dest() string { return s.dest }
