package transaction

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAcquireLock(t *testing.T) {
	t.Run("creates lock beside the directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "bin")
		ctx := context.Background()

		lock, err := AcquireLock(ctx, dir, "run-1")
		if err != nil {
			t.Fatalf("AcquireLock failed: %v", err)
		}
		defer lock.Release()

		want := dir + ".lock"
		if lock.Path() != want {
			t.Errorf("lock path = %s, want %s", lock.Path(), want)
		}
		if _, err := os.Stat(want); err != nil {
			t.Errorf("lock file not created: %v", err)
		}
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Error("output directory should not be created by the lock")
		}
	})

	t.Run("trailing separator names the same lock", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "bin")
		if LockPath(dir+string(filepath.Separator)) != LockPath(dir) {
			t.Errorf("LockPath differs for %q", dir+string(filepath.Separator))
		}
	})

	t.Run("prevents concurrent locks", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "bin")
		ctx := context.Background()

		lock1, err := AcquireLock(ctx, dir, "run-1")
		if err != nil {
			t.Fatalf("first AcquireLock failed: %v", err)
		}
		defer lock1.Release()

		_, err = AcquireLock(ctx, dir, "run-2")
		if !errors.Is(err, ErrLockExists) {
			t.Errorf("expected ErrLockExists, got %v", err)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "bin")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := AcquireLock(ctx, dir, "run-1"); err == nil {
			t.Error("expected error for cancelled context")
		}
		if _, err := os.Stat(LockPath(dir)); !os.IsNotExist(err) {
			t.Error("cancelled acquire should not leave a lock file")
		}
	})

	t.Run("creates parent directory if needed", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "out", "bin")

		lock, err := AcquireLock(context.Background(), dir, "run-1")
		if err != nil {
			t.Fatalf("AcquireLock failed: %v", err)
		}
		defer lock.Release()

		if _, err := os.Stat(filepath.Dir(dir)); err != nil {
			t.Errorf("parent directory not created: %v", err)
		}
	})

	t.Run("writes lock metadata", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "bin")

		lock, err := AcquireLock(context.Background(), dir, "6f1c")
		if err != nil {
			t.Fatalf("AcquireLock failed: %v", err)
		}
		defer lock.Release()

		data, err := os.ReadFile(lock.Path())
		if err != nil {
			t.Fatalf("failed to read lock file: %v", err)
		}
		for _, want := range []string{"pid=", "run=6f1c", "timestamp="} {
			if !strings.Contains(string(data), want) {
				t.Errorf("lock metadata missing %q:\n%s", want, data)
			}
		}
	})
}

func TestLockRelease(t *testing.T) {
	t.Run("removes lock file", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "bin")

		lock, err := AcquireLock(context.Background(), dir, "run-1")
		if err != nil {
			t.Fatalf("AcquireLock failed: %v", err)
		}
		lockPath := lock.Path()

		if err := lock.Release(); err != nil {
			t.Fatalf("Release failed: %v", err)
		}
		if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
			t.Error("lock file should be removed after release")
		}
	})

	t.Run("allows new lock after release", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "bin")
		ctx := context.Background()

		lock1, err := AcquireLock(ctx, dir, "run-1")
		if err != nil {
			t.Fatalf("first AcquireLock failed: %v", err)
		}
		lock1.Release()

		lock2, err := AcquireLock(ctx, dir, "run-2")
		if err != nil {
			t.Fatalf("second AcquireLock should succeed: %v", err)
		}
		defer lock2.Release()
	})

	t.Run("is idempotent", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "bin")

		lock, err := AcquireLock(context.Background(), dir, "run-1")
		if err != nil {
			t.Fatalf("AcquireLock failed: %v", err)
		}

		if err := lock.Release(); err != nil {
			t.Fatalf("first Release failed: %v", err)
		}
		if err := lock.Release(); err != nil {
			t.Fatalf("second Release should not error: %v", err)
		}
	})

	t.Run("second release keeps a newer holder's lock", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "bin")
		ctx := context.Background()

		lock1, err := AcquireLock(ctx, dir, "run-1")
		if err != nil {
			t.Fatal(err)
		}
		lock1.Release()

		lock2, err := AcquireLock(ctx, dir, "run-2")
		if err != nil {
			t.Fatal(err)
		}
		defer lock2.Release()

		lock1.Release()
		if _, err := os.Stat(lock2.Path()); err != nil {
			t.Errorf("stale Release removed the new lock: %v", err)
		}
	})
}

func TestStaleLockHandling(t *testing.T) {
	writeLock := func(t *testing.T, dir string, age time.Duration) {
		t.Helper()
		lockPath := LockPath(dir)
		if err := os.WriteFile(lockPath, []byte("pid=99999\nrun=old\ntimestamp=2020-01-01T00:00:00Z\n"), 0o600); err != nil {
			t.Fatalf("failed to create lock: %v", err)
		}
		mtime := time.Now().Add(-age)
		if err := os.Chtimes(lockPath, mtime, mtime); err != nil {
			t.Fatalf("failed to set lock time: %v", err)
		}
	}

	t.Run("removes stale lock and acquires new one", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "bin")
		writeLock(t, dir, StaleLockThreshold+time.Minute)

		lock, err := AcquireLock(context.Background(), dir, "run-1")
		if err != nil {
			t.Fatalf("AcquireLock should succeed with stale lock: %v", err)
		}
		defer lock.Release()
	})

	t.Run("fails for non-stale lock", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "bin")
		writeLock(t, dir, 0)

		_, err := AcquireLock(context.Background(), dir, "run-1")
		if !errors.Is(err, ErrLockExists) {
			t.Fatalf("expected ErrLockExists, got %v", err)
		}
		var locked *LockedError
		if !errors.As(err, &locked) || locked.Holder == nil {
			t.Fatalf("expected *LockedError with holder, got %v", err)
		}
		if locked.Holder.PID != 99999 || locked.Holder.RunID != "old" {
			t.Errorf("Holder = %+v", locked.Holder)
		}
		if !strings.Contains(err.Error(), "run old") {
			t.Errorf("error = %q, want holder run", err)
		}
	})
}

func TestReadHolder(t *testing.T) {
	dir := t.TempDir()

	t.Run("written by AcquireLock", func(t *testing.T) {
		lock, err := AcquireLock(context.Background(), filepath.Join(dir, "bin"), "run-42")
		if err != nil {
			t.Fatal(err)
		}
		defer lock.Release()

		h, err := ReadHolder(lock.Path())
		if err != nil {
			t.Fatalf("ReadHolder failed: %v", err)
		}
		if h.PID != os.Getpid() || h.RunID != "run-42" {
			t.Errorf("Holder = %+v", h)
		}
		if time.Since(h.Acquired) > time.Minute {
			t.Errorf("Acquired = %v", h.Acquired)
		}
	})

	t.Run("malformed pid", func(t *testing.T) {
		path := filepath.Join(dir, "bad.lock")
		if err := os.WriteFile(path, []byte("pid=abc\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := ReadHolder(path); err == nil {
			t.Error("expected error for malformed pid")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := ReadHolder(filepath.Join(dir, "none.lock")); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected ErrNotExist, got %v", err)
		}
	})
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reports", "run.yaml")

	if err := WriteFileAtomic(path, []byte("first\n"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("second\n"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic overwrite failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second\n" {
		t.Errorf("content = %q", data)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}
