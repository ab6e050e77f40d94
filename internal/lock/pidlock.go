// Package lock guards the SQLite database against a second formsedge
// daemon. Two dispatchers sharing one database would double-deliver every
// response, so start refuses to run without the lock.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// DBLock is a single-instance lock implemented via a PID file + flock(2).
// The lock lives as long as the file descriptor stays open; a crashed
// process releases it automatically.
type DBLock struct {
	path string
	f    *os.File
}

// LockPathFor derives the lock file path for a database path.
func LockPathFor(dbPath string) string {
	return dbPath + ".lock"
}

// Acquire takes an exclusive non-blocking lock guarding dbPath and records
// the current PID in it. A held lock yields an error naming the holder.
func Acquire(dbPath string) (*DBLock, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	lockPath := LockPathFor(dbPath)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		holder := readHolder(f)
		_ = f.Close()
		if holder != "" {
			return nil, fmt.Errorf("database %s is in use by pid %s", dbPath, holder)
		}
		return nil, fmt.Errorf("database %s is in use by another process", dbPath)
	}

	if err := writePID(f); err != nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
		return nil, err
	}

	return &DBLock{path: lockPath, f: f}, nil
}

// Path returns the lock file location.
func (l *DBLock) Path() string { return l.path }

// Release drops the lock. Safe to call on a nil or already-released lock.
func (l *DBLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("seek lock file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return fmt.Errorf("write pid: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync lock file: %w", err)
	}
	return nil
}

func readHolder(f *os.File) string {
	b := make([]byte, 32)
	n, err := f.ReadAt(b, 0)
	if err != nil && n == 0 {
		return ""
	}
	return strings.TrimSpace(string(b[:n]))
}
