// Package lockfile keeps a second daemon from opening the same database.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ashureev/dayreview/internal/domain"
)

// Lock is an exclusive advisory lock on a file. The lock is released when
// the process exits, even without Release.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes the lock at path without blocking. It returns an error
// wrapping domain.ErrAlreadyRunning if another process holds it.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		if isContended(err) {
			return nil, fmt.Errorf("%w: lock %s is held by another process", domain.ErrAlreadyRunning, path)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &Lock{path: path, file: f}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks and closes the file. The file itself is left in place.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := unlockFile(l.file)
	if closeErr := l.file.Close(); err == nil {
		err = closeErr
	}
	l.file = nil
	return err
}
