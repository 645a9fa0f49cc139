// Package staging hands out scratch files for a single job and removes
// all of them when the job's scope is closed.
package staging

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const filePrefix = "vingest-"

// Error is returned when a staging file cannot be created, written, read
// or removed. It is never retried.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("staging %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("staging %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Store is a directory that holds scratch files.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "vingest-staging")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, &Error{Op: "init", Path: dir, Err: err}
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// NewScope starts a scope. Close it with defer so files are removed on
// every exit path, including panics.
func (s *Store) NewScope() *Scope {
	return &Scope{store: s}
}

// Sweep removes staging files older than maxAge, typically left behind by
// a process that was killed mid-job.
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, &Error{Op: "sweep", Path: s.dir, Err: err}
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), filePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	if len(errs) > 0 {
		return removed, &Error{Op: "sweep", Path: s.dir, Err: errors.Join(errs...)}
	}
	return removed, nil
}

// Scope tracks the files acquired for one job.
type Scope struct {
	store *Store

	mu     sync.Mutex
	files  []*File
	closed bool
}

// Acquire creates an empty file in the staging directory. The pattern
// follows os.CreateTemp and should carry the file extension ffmpeg needs,
// e.g. "input-*.mp4".
func (sc *Scope) Acquire(pattern string) (*File, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.closed {
		return nil, &Error{Op: "acquire", Err: errors.New("scope already closed")}
	}

	f, err := os.CreateTemp(sc.store.dir, filePrefix+pattern)
	if err != nil {
		return nil, &Error{Op: "acquire", Path: sc.store.dir, Err: err}
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, &Error{Op: "acquire", Path: path, Err: err}
	}

	file := &File{path: path}
	sc.files = append(sc.files, file)
	return file, nil
}

// Close removes every file acquired through the scope. Files already gone
// are not an error. Close is safe to call more than once.
func (sc *Scope) Close() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.closed {
		return nil
	}
	sc.closed = true

	var errs []error
	for _, f := range sc.files {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove staging file", "path", f.path, "error", err)
			errs = append(errs, err)
		}
	}
	sc.files = nil

	if len(errs) > 0 {
		return &Error{Op: "cleanup", Path: sc.store.dir, Err: errors.Join(errs...)}
	}
	return nil
}

// File is a scratch file owned by a Scope.
type File struct {
	path string
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Write(data []byte) error {
	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return &Error{Op: "write", Path: f.path, Err: err}
	}
	return nil
}

func (f *File) ReadAll() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, &Error{Op: "read", Path: f.path, Err: err}
	}
	return data, nil
}
