package pack

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/seapack/internal/platform"
)

// PrepareOutputDir deletes dir and everything in it, then recreates it
// empty. It returns the absolute path. Call it once per run, before any
// target is packaged.
func PrepareOutputDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve output directory: %w", err)
	}
	if err := os.RemoveAll(abs); err != nil {
		return "", fmt.Errorf("clear output directory %s: %w", abs, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("create output directory %s: %w", abs, err)
	}
	return abs, nil
}

// OutputPath returns <dir>/<app>-<platform>-<arch>[.exe], with the platform
// spelled as in distribution names (darwin, linux, win).
func OutputPath(dir, app string, target platform.Target) string {
	return filepath.Join(dir, app+"-"+target.String()+target.Platform.ExeSuffix())
}
