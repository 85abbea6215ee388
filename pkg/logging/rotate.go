package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const (
	DefaultMaxSize    = 10 * 1024 * 1024 // 10MB
	DefaultMaxBackups = 3
)

// RotatingFile is an io.WriteCloser that shifts the current log to numbered
// backups (path.1, path.2, ...) once a write would push it past maxSize.
type RotatingFile struct {
	path       string
	maxSize    int64
	maxBackups int

	mu      sync.Mutex
	current *os.File
	written int64
}

type Option func(*RotatingFile)

func WithMaxSize(size int64) Option {
	return func(r *RotatingFile) {
		r.maxSize = size
	}
}

func WithMaxBackups(count int) Option {
	return func(r *RotatingFile) {
		r.maxBackups = count
	}
}

// NewRotatingFile opens (or creates) path for appending.
func NewRotatingFile(path string, opts ...Option) (*RotatingFile, error) {
	r := &RotatingFile{
		path:       path,
		maxSize:    DefaultMaxSize,
		maxBackups: DefaultMaxBackups,
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	if err := r.reopen(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RotatingFile) reopen() error {
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	r.current = f
	r.written = info.Size()
	return nil
}

func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.written > 0 && r.written+int64(len(p)) > r.maxSize {
		if err := r.shift(); err != nil {
			return 0, err
		}
	}

	n, err := r.current.Write(p)
	r.written += int64(n)
	return n, err
}

func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return nil
	}
	err := r.current.Close()
	r.current = nil
	return err
}

func (r *RotatingFile) backup(n int) string {
	return fmt.Sprintf("%s.%d", r.path, n)
}

// shift closes the current file, drops the oldest backup and moves every
// other file one slot up before reopening an empty log.
func (r *RotatingFile) shift() error {
	if err := r.current.Close(); err != nil {
		return err
	}

	if r.maxBackups < 1 {
		if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return r.reopen()
	}

	_ = os.Remove(r.backup(r.maxBackups))
	for i := r.maxBackups - 1; i >= 1; i-- {
		_ = os.Rename(r.backup(i), r.backup(i+1))
	}
	if err := os.Rename(r.path, r.backup(1)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return r.reopen()
}

// NewHandler returns the text handler used for debug logs.
func NewHandler(w io.Writer, debug bool) slog.Handler {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}
