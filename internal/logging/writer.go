package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileWriter appends to a log file and rolls it over once it crosses a
// size threshold, keeping a bounded chain of numbered backups
// (app.log.1 is the newest backup, app.log.<keep> the oldest).
type FileWriter struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	keep    int
	file    *os.File
	written int64
}

func NewFileWriter(path string, maxSize int64, keep int) (*FileWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("log path is required")
	}
	if maxSize <= 0 {
		return nil, fmt.Errorf("log size limit must be positive")
	}
	if keep < 0 {
		keep = 0
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	w := &FileWriter{path: path, maxSize: maxSize, keep: keep, file: f}
	if stat, err := f.Stat(); err == nil {
		w.written = stat.Size()
	}

	// A file left oversized by a previous run rolls before the first write.
	if w.written > w.maxSize {
		if err := w.roll(); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *FileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	// An entry larger than the whole limit still gets one write into an
	// empty file rather than rolling forever.
	if w.written > 0 && w.written+int64(len(p)) > w.maxSize {
		if err := w.roll(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// roll closes the active file, shifts the backup chain up by one, and
// reopens an empty file at the base path. Caller holds the mutex.
func (w *FileWriter) roll() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return err
		}
		w.file = nil
	}

	if w.keep == 0 {
		if err := removeIfExists(w.path); err != nil {
			return err
		}
	} else {
		if err := w.shiftChain(); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.written = 0
	return nil
}

func (w *FileWriter) shiftChain() error {
	if err := removeIfExists(w.backup(w.keep)); err != nil {
		return err
	}
	for i := w.keep - 1; i >= 1; i-- {
		src := w.backup(i)
		if _, err := os.Stat(src); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		dst := w.backup(i + 1)
		if err := removeIfExists(dst); err != nil {
			return err
		}
		if err := os.Rename(src, dst); err != nil {
			return err
		}
	}

	if _, err := os.Stat(w.path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := removeIfExists(w.backup(1)); err != nil {
		return err
	}
	return os.Rename(w.path, w.backup(1))
}

func (w *FileWriter) backup(i int) string {
	return fmt.Sprintf("%s.%d", w.path, i)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
