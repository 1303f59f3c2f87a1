// Package transaction guards the output directory of a build and writes
// result files atomically.
package transaction

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// StaleLockThreshold is the maximum age of a lock before it's considered stale.
	StaleLockThreshold = 10 * time.Minute

	// LockSuffix is appended to the output directory to name its lock file.
	LockSuffix = ".lock"
)

var ErrLockExists = errors.New("output directory is locked: another seapack build may be in progress")

// Holder is the metadata a lock file records about the build holding it.
type Holder struct {
	PID      int
	RunID    string
	Acquired time.Time
}

// LockedError is returned when the output directory is held by another
// build. It matches ErrLockExists with errors.Is.
type LockedError struct {
	Path string
	// Holder is nil when the lock file could not be read.
	Holder *Holder
}

func (e *LockedError) Error() string {
	if e.Holder == nil {
		return fmt.Sprintf("%v (%s)", ErrLockExists, e.Path)
	}
	return fmt.Sprintf("%v (%s held by run %s, pid %d, since %s)", ErrLockExists, e.Path,
		e.Holder.RunID, e.Holder.PID, e.Holder.Acquired.Format(time.RFC3339))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrLockExists
}

// Lock represents an exclusive claim on an output directory.
type Lock struct {
	path string
	file *os.File
}

// LockPath returns the lock file guarding dir. The lock lives beside the
// directory since the directory itself is removed and recreated by a build.
func LockPath(dir string) string {
	return filepath.Clean(dir) + LockSuffix
}

// AcquireLock attempts to acquire an exclusive lock on the output directory.
// Uses O_CREATE|O_EXCL for atomic lock creation. runID is recorded in the
// lock file to identify the holder.
func AcquireLock(ctx context.Context, dir, runID string) (*Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lockPath := LockPath(dir)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		// Lock exists - check if it's stale
		if isStale, _ := isLockStale(lockPath); !isStale {
			return nil, lockedError(lockPath)
		}
		// Remove stale lock and retry once
		os.Remove(lockPath)
		file, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
		if err != nil {
			return nil, lockedError(lockPath)
		}
	}

	// Write lock metadata (PID, run and timestamp)
	lockData := fmt.Sprintf("pid=%d\nrun=%s\ntimestamp=%s\n", os.Getpid(), runID, time.Now().UTC().Format(time.RFC3339))
	if _, err := file.WriteString(lockData); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("write lock data: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("sync lock file: %w", err)
	}

	return &Lock{
		path: lockPath,
		file: file,
	}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release releases the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	if l.path != "" {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove lock file: %w", err)
		}
		l.path = ""
	}

	return nil
}

// isLockStale checks if a lock file is older than the stale lock threshold.
func isLockStale(lockPath string) (bool, error) {
	info, err := os.Stat(lockPath)
	if err != nil {
		return false, err
	}

	age := time.Since(info.ModTime())
	return age > StaleLockThreshold, nil
}

func lockedError(lockPath string) error {
	holder, _ := ReadHolder(lockPath)
	return &LockedError{Path: lockPath, Holder: holder}
}

// ReadHolder parses the metadata of the lock file at path. Unknown keys are
// ignored.
func ReadHolder(path string) (*Holder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var h Holder
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if h.PID, err = strconv.Atoi(value); err != nil {
				return nil, fmt.Errorf("parse lock pid: %w", err)
			}
		case "run":
			h.RunID = value
		case "timestamp":
			if h.Acquired, err = time.Parse(time.RFC3339, value); err != nil {
				return nil, fmt.Errorf("parse lock timestamp: %w", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read lock file: %w", err)
	}
	return &h, nil
}
