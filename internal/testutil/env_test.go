package testutil_test

import (
	"os"
	"testing"

	"github.com/ZebulonRouseFrantzich/seapack/internal/testutil"
)

func TestSetupTestEnv(t *testing.T) {
	t.Setenv("MAC_DEVELOPER_CN", "Developer ID Application: Example")

	t.Run("isolated", func(t *testing.T) {
		dir := testutil.SetupTestEnv(t)

		if got := os.Getenv("MAC_DEVELOPER_CN"); got != "" {
			t.Errorf("MAC_DEVELOPER_CN = %q, want empty", got)
		}
		if got := os.Getenv("GITHUB_WORKFLOW"); got != "" {
			t.Errorf("GITHUB_WORKFLOW = %q, want empty", got)
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("work dir %s not created: %v", dir, err)
		}
	})

	if got := os.Getenv("MAC_DEVELOPER_CN"); got == "" {
		t.Error("outer environment not restored after subtest")
	}
}

func TestSetupTestEnv_Isolation(t *testing.T) {
	dir1 := testutil.SetupTestEnv(t)

	t.Run("subtest", func(t *testing.T) {
		dir2 := testutil.SetupTestEnv(t)
		if dir1 == dir2 {
			t.Error("expected different temp directories for different test contexts")
		}
	})
}
