// Package signtool finds the Windows SDK signing tool on disk.
//
// A Locator searches
//
//	<root>/Windows Kits/<kit>/bin/<release>/<arch>/signtool.exe
//
// and remembers the answer per root, including "not found". Concurrent
// callers asking about the same root share a single directory scan. When no
// tool is found the bare name "signtool.exe" is returned so the process
// search path can resolve it, and a warning is logged once for that root.
package signtool

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/ZebulonRouseFrantzich/seapack/internal/logging"
)

const (
	// ToolName is the executable name, also used as the fallback path.
	ToolName = "signtool.exe"
	// DefaultArch is the tool flavor searched for under each release.
	DefaultArch = "x64"
	// DefaultProgramFiles is used when no ProgramFiles variable is set.
	DefaultProgramFiles = `C:\Program Files (x86)`

	kitsDir = "Windows Kits"
)

// FS is the file system view used for the search.
type FS interface {
	ReadDir(name string) ([]fs.DirEntry, error)
	Stat(name string) (fs.FileInfo, error)
}

// OSFS reads the real file system.
type OSFS struct{}

func (OSFS) ReadDir(name string) ([]fs.DirEntry, error) { return os.ReadDir(name) }
func (OSFS) Stat(name string) (fs.FileInfo, error)      { return os.Stat(name) }

// lookup is a cached search outcome. An empty path means not found.
type lookup struct {
	path string
}

// Locator finds signtool.exe and caches the result per search root.
// It is safe for concurrent use. The zero value is not usable; call New.
type Locator struct {
	fsys   FS
	arch   string
	logger logging.Logger

	mu    sync.Mutex
	cache map[string]lookup
	group singleflight.Group
	scans atomic.Int64
}

// Option configures a Locator.
type Option func(*Locator)

// WithFS replaces the file system.
func WithFS(fsys FS) Option {
	return func(l *Locator) { l.fsys = fsys }
}

// WithArch sets the tool flavor directory, e.g. "x64" or "arm64".
func WithArch(arch string) Option {
	return func(l *Locator) {
		if arch != "" {
			l.arch = arch
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(l *Locator) { l.logger = logger }
}

// New creates a Locator with an empty cache.
func New(opts ...Option) *Locator {
	l := &Locator{
		fsys:   OSFS{},
		arch:   DefaultArch,
		logger: logging.Nop(),
		cache:  make(map[string]lookup),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Locate returns the path of signtool.exe under root, or ToolName if none
// exists. Only the first call for a root touches the file system.
func (l *Locator) Locate(ctx context.Context, root string) string {
	if res, ok := l.cached(root); ok {
		return res.resolve()
	}

	// DoChan lets a canceled caller stop waiting while the scan finishes
	// for the others.
	ch := l.group.DoChan(root, func() (any, error) {
		if res, ok := l.cached(root); ok {
			return res, nil
		}

		res := l.scan(root)

		l.mu.Lock()
		l.cache[root] = res
		l.mu.Unlock()
		return res, nil
	})

	select {
	case r := <-ch:
		return r.Val.(lookup).resolve()
	case <-ctx.Done():
		return ToolName
	}
}

// Scans returns how many directory scans have been performed.
func (l *Locator) Scans() int64 {
	return l.scans.Load()
}

func (l *Locator) cached(root string) (lookup, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.cache[root]
	return res, ok
}

func (r lookup) resolve() string {
	if r.path == "" {
		return ToolName
	}
	return r.path
}

// scan walks the kit and release directories in listing order and returns
// the first regular file found. Output grouping is left to the caller.
func (l *Locator) scan(root string) lookup {
	l.scans.Add(1)

	kitsRoot := filepath.Join(root, kitsDir)
	l.logger.Debug("searching for signtool", "dir", kitsRoot)

	kits, err := l.fsys.ReadDir(kitsRoot)
	if err != nil {
		l.logger.Debug("cannot list windows kits", "dir", kitsRoot, "error", err)
	}

	for _, kit := range kits {
		if !kit.IsDir() {
			continue
		}
		binDir := filepath.Join(kitsRoot, kit.Name(), "bin")
		l.logger.Debug("examining kit", "dir", binDir)

		releases, err := l.fsys.ReadDir(binDir)
		if err != nil {
			l.logger.Debug("skipping kit", "dir", binDir, "error", err)
			continue
		}

		for _, release := range releases {
			if !release.IsDir() {
				continue
			}
			candidate := filepath.Join(binDir, release.Name(), l.arch, ToolName)
			info, err := l.fsys.Stat(candidate)
			if err != nil || !info.Mode().IsRegular() {
				l.logger.Debug("skipping candidate", "path", candidate)
				continue
			}
			if abs, err := filepath.Abs(candidate); err == nil {
				candidate = abs
			}
			l.logger.Info("discovered signtool", "path", candidate)
			return lookup{path: candidate}
		}
	}

	l.logger.Warn("signtool not found, relying on PATH", "root", root)
	return lookup{}
}

// ProgramFiles returns the directory that normally holds the Windows Kits.
func ProgramFiles() string {
	for _, key := range []string{"ProgramFiles(x86)", "ProgramFiles"} {
		if dir := os.Getenv(key); dir != "" {
			return dir
		}
	}
	return DefaultProgramFiles
}
