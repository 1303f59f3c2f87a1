package archive

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/ZebulonRouseFrantzich/seapack/internal/platform"
	"github.com/ZebulonRouseFrantzich/seapack/internal/testutil"
)

// readAll walks an archive, consuming every regular file.
func readAll(t *testing.T, f Format, data []byte) map[string]string {
	t.Helper()

	r, err := f.Open(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	files := make(map[string]string)
	for {
		e, err := r.Next()
		if err == io.EOF {
			return files
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if e.Kind != KindFile {
			if err := e.Skip(); err != nil {
				t.Fatalf("Skip(%s) error = %v", e.Path, err)
			}
			continue
		}
		var buf bytes.Buffer
		if _, err := e.Consume(&buf); err != nil {
			t.Fatalf("Consume(%s) error = %v", e.Path, err)
		}
		files[e.Path] = buf.String()
	}
}

func TestFormats_ReadAllEntries(t *testing.T) {
	entries := []testutil.ArchiveEntry{
		{Name: "root/"},
		{Name: "root/a.txt", Body: "alpha"},
		{Name: "root/sub/b.txt", Body: string(bytes.Repeat([]byte("bravo "), 4096))},
		{Name: "root/empty.txt", Body: ""},
	}

	tests := []struct {
		name   string
		format Format
		data   []byte
	}{
		{"zip streamed", Zip{}, testutil.BuildZip(t, testutil.ZipStreamed, entries...)},
		{"zip stored", Zip{}, testutil.BuildZip(t, testutil.ZipStored, entries...)},
		{"zip deflated sized", Zip{}, testutil.BuildZip(t, testutil.ZipDeflatedSized, entries...)},
		{"zip stored streamed", Zip{}, testutil.BuildZip(t, testutil.ZipStoredStreamed, entries...)},
		{"tar.xz", TarXz{}, testutil.BuildTarXz(t, entries...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readAll(t, tt.format, tt.data)
			for _, e := range entries {
				if e.Name[len(e.Name)-1] == '/' {
					if _, ok := got[e.Name]; ok {
						t.Errorf("directory %s reported as file", e.Name)
					}
					continue
				}
				if got[e.Name] != e.Body {
					t.Errorf("%s: got %d bytes, want %d", e.Name, len(got[e.Name]), len(e.Body))
				}
			}
		})
	}
}

func TestFormats_SkipAll(t *testing.T) {
	entries := testutil.NodeDistEntries("node-v22.8.0-linux-x64", "ELF")

	tests := []struct {
		name   string
		format Format
		data   []byte
	}{
		{"zip streamed", Zip{}, testutil.BuildZip(t, testutil.ZipStreamed, entries...)},
		{"zip stored", Zip{}, testutil.BuildZip(t, testutil.ZipStored, entries...)},
		{"zip stored streamed", Zip{}, testutil.BuildZip(t, testutil.ZipStoredStreamed, entries...)},
		{"tar.xz", TarXz{}, testutil.BuildTarXz(t, entries...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := bytes.NewReader(tt.data)
			r, err := tt.format.Open(src)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}

			count := 0
			for {
				e, err := r.Next()
				if err == io.EOF {
					break
				}
				if err != nil {
					t.Fatalf("Next() error = %v", err)
				}
				count++
				if err := e.Skip(); err != nil {
					t.Fatalf("Skip(%s) error = %v", e.Path, err)
				}
			}

			if count != len(entries) {
				t.Errorf("saw %d entries, want %d", count, len(entries))
			}
			if src.Len() != 0 {
				t.Errorf("%d bytes of the stream left unread", src.Len())
			}
			// Next stays at EOF.
			if _, err := r.Next(); err != io.EOF {
				t.Errorf("Next() after end = %v, want io.EOF", err)
			}
		})
	}
}

func TestReader_UnsettledEntry(t *testing.T) {
	entries := []testutil.ArchiveEntry{
		{Name: "a.txt", Body: "a"},
		{Name: "b.txt", Body: "b"},
	}

	for _, tt := range []struct {
		name   string
		format Format
		data   []byte
	}{
		{"zip", Zip{}, testutil.BuildZip(t, testutil.ZipStreamed, entries...)},
		{"tar.xz", TarXz{}, testutil.BuildTarXz(t, entries...)},
	} {
		t.Run(tt.name, func(t *testing.T) {
			r, err := tt.format.Open(bytes.NewReader(tt.data))
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			e, err := r.Next()
			if err != nil {
				t.Fatalf("Next() error = %v", err)
			}

			if _, err := r.Next(); !errors.Is(err, ErrUnsettled) {
				t.Fatalf("Next() with unsettled entry = %v, want ErrUnsettled", err)
			}

			if err := e.Skip(); err != nil {
				t.Fatalf("Skip() error = %v", err)
			}
			if err := e.Skip(); !errors.Is(err, ErrSettled) {
				t.Errorf("second Skip() = %v, want ErrSettled", err)
			}
			if _, err := e.Consume(io.Discard); !errors.Is(err, ErrSettled) {
				t.Errorf("Consume() after Skip() = %v, want ErrSettled", err)
			}

			next, err := r.Next()
			if err != nil {
				t.Fatalf("Next() after settling = %v", err)
			}
			if next.Path != "b.txt" {
				t.Errorf("Path = %q, want b.txt", next.Path)
			}
		})
	}
}

func TestZip_CorruptCRC(t *testing.T) {
	data := testutil.BuildZip(t, testutil.ZipStored, testutil.ArchiveEntry{Name: "a.txt", Body: "hello"})
	// Flip a content byte. Local header is 30 bytes plus the name.
	data[30+len("a.txt")] ^= 0xff

	r, _ := Zip{}.Open(bytes.NewReader(data))
	e, err := r.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if _, err := e.Consume(io.Discard); !errors.Is(err, ErrChecksum) {
		t.Fatalf("Consume() = %v, want ErrChecksum", err)
	}
	// The reader is unusable after a failed entry.
	if _, err := r.Next(); err == nil {
		t.Error("Next() after failure returned nil error")
	}
}

func TestZip_StoredDescriptorSignatureInData(t *testing.T) {
	// A descriptor signature inside the data is followed by values that
	// do not match what was read so far.
	body := "MZ\x50\x4b\x07\x08\x01\x02\x03\x04\x05\x06\x07\x08\x09\x0a\x0b\x0c tail"
	data := testutil.BuildZip(t, testutil.ZipStoredStreamed,
		testutil.ArchiveEntry{Name: "node/node.exe", Body: body},
		testutil.ArchiveEntry{Name: "node/README.md", Body: "node\n"},
	)

	got := readAll(t, Zip{}, data)
	if got["node/node.exe"] != body {
		t.Errorf("node.exe = %q, want %q", got["node/node.exe"], body)
	}
	if got["node/README.md"] != "node\n" {
		t.Errorf("README.md = %q", got["node/README.md"])
	}

	t.Run("truncated", func(t *testing.T) {
		r, _ := Zip{}.Open(bytes.NewReader(data[:60]))
		e, err := r.Next()
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if err := e.Skip(); !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("Skip() = %v, want io.ErrUnexpectedEOF", err)
		}
	})
}

func TestZip_TruncatedStream(t *testing.T) {
	data := testutil.BuildZip(t, testutil.ZipStreamed, testutil.ArchiveEntry{Name: "bin/node", Body: "0123456789abcdef"})
	data = data[:40]

	r, _ := Zip{}.Open(bytes.NewReader(data))
	e, err := r.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if _, err := e.Consume(io.Discard); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Consume() = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestZip_GarbageSignature(t *testing.T) {
	r, _ := Zip{}.Open(bytes.NewReader([]byte("not a zip file at all")))
	if _, err := r.Next(); err == nil || err == io.EOF {
		t.Errorf("Next() = %v, want format error", err)
	}
}

func TestTarXz_NotXz(t *testing.T) {
	if _, err := (TarXz{}).Open(bytes.NewReader([]byte("plain text"))); err == nil {
		t.Error("Open() accepted a non-xz stream")
	}
}

func TestForPlatform(t *testing.T) {
	tests := []struct {
		platform platform.Platform
		want     string
	}{
		{platform.Windows, "zip"},
		{platform.Linux, "tar.xz"},
		{platform.Mac, "tar.xz"},
	}
	for _, tt := range tests {
		if got := ForPlatform(tt.platform).Name(); got != tt.want {
			t.Errorf("ForPlatform(%s) = %s, want %s", tt.platform, got, tt.want)
		}
	}
}
