package archive

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ZebulonRouseFrantzich/seapack/internal/platform"
	"github.com/ZebulonRouseFrantzich/seapack/internal/testutil"
)

func TestExtract_SingleMatch(t *testing.T) {
	const body = "\x7fELF runtime"

	tests := []struct {
		name     string
		platform platform.Platform
		data     []byte
		wantPath string
	}{
		{
			name:     "linux tar.xz",
			platform: platform.Linux,
			data:     testutil.BuildTarXz(t, testutil.NodeDistEntries("node-v22.8.0-linux-x64", body)...),
			wantPath: "node-v22.8.0-linux-x64/bin/node",
		},
		{
			name:     "windows zip",
			platform: platform.Windows,
			data:     testutil.BuildZip(t, testutil.ZipStreamed, testutil.NodeWinDistEntries("node-v22.8.0-win-x64", body)...),
			wantPath: "node-v22.8.0-win-x64/node.exe",
		},
		{
			name:     "windows stored zip",
			platform: platform.Windows,
			data:     testutil.BuildZip(t, testutil.ZipStored, testutil.NodeWinDistEntries("node-v22.8.0-win-arm64", body)...),
			wantPath: "node-v22.8.0-win-arm64/node.exe",
		},
		{
			name:     "windows stored zip with descriptors",
			platform: platform.Windows,
			data:     testutil.BuildZip(t, testutil.ZipStoredStreamed, testutil.NodeWinDistEntries("node-v22.8.0-win-x64", body)...),
			wantPath: "node-v22.8.0-win-x64/node.exe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := bytes.NewReader(tt.data)
			var sink bytes.Buffer

			res, err := NewExtractor(nil).Extract(context.Background(), ForPlatform(tt.platform), src, BinaryTarget(tt.platform), &sink)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if sink.String() != body {
				t.Errorf("sink = %q, want %q", sink.String(), body)
			}
			if res.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", res.Path, tt.wantPath)
			}
			if res.Bytes != int64(len(body)) {
				t.Errorf("Bytes = %d, want %d", res.Bytes, len(body))
			}
			if src.Len() != 0 {
				t.Errorf("stream not drained: %d bytes left", src.Len())
			}
		})
	}
}

func TestExtract_NotFound(t *testing.T) {
	data := testutil.BuildTarXz(t,
		testutil.ArchiveEntry{Name: "node/README.md", Body: "x"},
		testutil.ArchiveEntry{Name: "node/lib/node_modules/npm/bin/npm", Body: "y"},
	)

	var sink bytes.Buffer
	_, err := NewExtractor(nil).Extract(context.Background(), TarXz{}, bytes.NewReader(data), BinaryTarget(platform.Linux), &sink)

	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Extract() error = %v, want ErrNotFound", err)
	}
	if sink.Len() != 0 {
		t.Errorf("sink received %d bytes, want 0", sink.Len())
	}
}

func TestExtract_DirectoryDoesNotMatch(t *testing.T) {
	// A directory named like the target is not the target.
	data := testutil.BuildTarXz(t, testutil.ArchiveEntry{Name: "node/bin/node/"})

	_, err := NewExtractor(nil).Extract(context.Background(), TarXz{}, bytes.NewReader(data), Target{Suffix: "/bin/node/"}, &bytes.Buffer{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Extract() error = %v, want ErrNotFound", err)
	}
}

func TestExtract_EmptyMatchIsNotFound(t *testing.T) {
	data := testutil.BuildZip(t, testutil.ZipStreamed, testutil.ArchiveEntry{Name: "node/node.exe", Body: ""})

	_, err := NewExtractor(nil).Extract(context.Background(), Zip{}, bytes.NewReader(data), BinaryTarget(platform.Windows), &bytes.Buffer{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Extract() error = %v, want ErrNotFound", err)
	}
}

func TestExtract_Ambiguous(t *testing.T) {
	data := testutil.BuildTarXz(t,
		testutil.ArchiveEntry{Name: "a/bin/node", Body: "first"},
		testutil.ArchiveEntry{Name: "b/bin/node", Body: "second"},
	)

	_, err := NewExtractor(nil).Extract(context.Background(), TarXz{}, bytes.NewReader(data), BinaryTarget(platform.Mac), &bytes.Buffer{})

	var exErr *ExtractionError
	if !errors.As(err, &exErr) {
		t.Fatalf("Extract() error = %v, want *ExtractionError", err)
	}
	if !errors.Is(err, ErrAmbiguous) {
		t.Errorf("Kind = %v, want ErrAmbiguous", exErr.Kind)
	}
	if len(exErr.Paths) != 2 {
		t.Errorf("Paths = %v, want both matches", exErr.Paths)
	}
}

func TestExtract_StreamFailure(t *testing.T) {
	data := testutil.BuildTarXz(t, testutil.NodeDistEntries("node", "runtime")...)
	data = data[:len(data)/2]

	_, err := NewExtractor(nil).Extract(context.Background(), TarXz{}, bytes.NewReader(data), BinaryTarget(platform.Linux), &bytes.Buffer{})
	if !errors.Is(err, ErrStream) {
		t.Errorf("Extract() error = %v, want ErrStream", err)
	}
}

func TestExtract_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data := testutil.BuildTarXz(t, testutil.NodeDistEntries("node", "runtime")...)
	_, err := NewExtractor(nil).Extract(ctx, TarXz{}, bytes.NewReader(data), BinaryTarget(platform.Linux), &bytes.Buffer{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Extract() error = %v, want context.Canceled", err)
	}
}

func TestExtractToFile(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "app-linux-x64")
	data := testutil.BuildTarXz(t, testutil.NodeDistEntries("node-v22.8.0-linux-x64", "runtime")...)

	if _, err := NewExtractor(nil).ExtractToFile(context.Background(), TarXz{}, bytes.NewReader(data), BinaryTarget(platform.Linux), dest, nil); err != nil {
		t.Fatalf("ExtractToFile() error = %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != "runtime" {
		t.Errorf("content = %q", got)
	}

	info, err := os.Stat(dest)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0111 == 0 {
		t.Errorf("mode = %v, want executable", info.Mode())
	}
	if _, err := os.Stat(dest + ".partial"); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}
}

func TestExtractToFile_FailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "app-linux-x64")
	data := testutil.BuildTarXz(t, testutil.ArchiveEntry{Name: "node/README.md", Body: "x"})

	_, err := NewExtractor(nil).ExtractToFile(context.Background(), TarXz{}, bytes.NewReader(data), BinaryTarget(platform.Linux), dest, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ExtractToFile() error = %v, want ErrNotFound", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("output dir not empty after failure: %v", entries)
	}
}

func TestExtractToFile_CheckFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "app-linux-x64")
	data := testutil.BuildTarXz(t, testutil.NodeDistEntries("node", "runtime")...)
	checkErr := errors.New("digest mismatch")

	_, err := NewExtractor(nil).ExtractToFile(context.Background(), TarXz{}, bytes.NewReader(data), BinaryTarget(platform.Linux), dest,
		func() error { return checkErr })
	if !errors.Is(err, checkErr) {
		t.Fatalf("ExtractToFile() error = %v, want check error", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("output left behind after failed check")
	}
}
