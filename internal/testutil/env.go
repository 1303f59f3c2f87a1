// Package testutil provides helpers for testing seapack in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// credentialEnv lists variables that must never leak from the developer's
// shell into a test run.
var credentialEnv = []string{
	"MAC_DEVELOPER_CN",
	"WIN_DEVELOPER_PFX",
	"WIN_DEVELOPER_PWD",
	"GITHUB_WORKFLOW",
	"SEAPACK_CONFIG",
	"SEAPACK_NODE_VERSION",
	"SEAPACK_MIRROR",
}

// SetupTestEnv isolates a test from signing credentials, CI detection and
// seapack configuration in the surrounding environment. It returns a fresh
// working directory. Cleanup is handled by t.Setenv and t.TempDir.
func SetupTestEnv(t *testing.T) string {
	t.Helper()

	for _, key := range credentialEnv {
		t.Setenv(key, "")
	}

	tmpDir := t.TempDir()
	workDir := filepath.Join(tmpDir, "work")
	if err := os.MkdirAll(workDir, 0o750); err != nil {
		t.Fatalf("failed to create test directory %s: %v", workDir, err)
	}
	return workDir
}
