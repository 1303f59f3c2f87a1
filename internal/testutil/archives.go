package testutil

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/flate"
	"hash/crc32"
	"testing"

	"github.com/ulikunitz/xz"
)

// ArchiveEntry is one member of a synthetic test archive. Names ending in
// "/" are directories.
type ArchiveEntry struct {
	Name string
	Body string
}

// ZipMode selects how BuildZip lays out entries.
type ZipMode int

const (
	// ZipStreamed deflates entries and writes sizes in a trailing data
	// descriptor, as streaming zip writers do.
	ZipStreamed ZipMode = iota
	// ZipStored stores entries uncompressed with sizes in the local header.
	ZipStored
	// ZipDeflatedSized deflates entries with sizes in the local header.
	ZipDeflatedSized
	// ZipStoredStreamed stores entries uncompressed with sizes in a
	// trailing data descriptor.
	ZipStoredStreamed
)

// BuildZip returns a zip archive containing entries in order.
func BuildZip(t *testing.T, mode ZipMode, entries ...ArchiveEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, e := range entries {
		if isDir(e.Name) {
			if _, err := zw.Create(e.Name); err != nil {
				t.Fatalf("failed to add directory %s: %v", e.Name, err)
			}
			continue
		}

		switch mode {
		case ZipStreamed, ZipStoredStreamed:
			hdr := &zip.FileHeader{Name: e.Name, Method: zip.Deflate}
			if mode == ZipStoredStreamed {
				hdr.Method = zip.Store
			}
			w, err := zw.CreateHeader(hdr)
			if err != nil {
				t.Fatalf("failed to create entry %s: %v", e.Name, err)
			}
			if _, err := w.Write([]byte(e.Body)); err != nil {
				t.Fatalf("failed to write entry %s: %v", e.Name, err)
			}
		case ZipStored, ZipDeflatedSized:
			writeSizedZipEntry(t, zw, e, mode)
		}
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finish zip: %v", err)
	}
	return buf.Bytes()
}

func writeSizedZipEntry(t *testing.T, zw *zip.Writer, e ArchiveEntry, mode ZipMode) {
	t.Helper()

	data := []byte(e.Body)
	hdr := &zip.FileHeader{
		Name:               e.Name,
		Method:             zip.Store,
		CRC32:              crc32.ChecksumIEEE(data),
		UncompressedSize64: uint64(len(data)),
	}

	if mode == ZipDeflatedSized {
		var compressed bytes.Buffer
		fw, err := flate.NewWriter(&compressed, flate.DefaultCompression)
		if err != nil {
			t.Fatalf("failed to create deflate writer: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("failed to deflate %s: %v", e.Name, err)
		}
		if err := fw.Close(); err != nil {
			t.Fatalf("failed to deflate %s: %v", e.Name, err)
		}
		hdr.Method = zip.Deflate
		data = compressed.Bytes()
	}
	hdr.CompressedSize64 = uint64(len(data))

	w, err := zw.CreateRaw(hdr)
	if err != nil {
		t.Fatalf("failed to create entry %s: %v", e.Name, err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("failed to write entry %s: %v", e.Name, err)
	}
}

// BuildTarXz returns an xz compressed tar archive containing entries in order.
func BuildTarXz(t *testing.T, entries ...ArchiveEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("failed to create xz writer: %v", err)
	}
	tw := tar.NewWriter(xw)

	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.Name,
			Mode:     0o755,
			Size:     int64(len(e.Body)),
			Typeflag: tar.TypeReg,
		}
		if isDir(e.Name) {
			hdr.Typeflag = tar.TypeDir
			hdr.Size = 0
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("failed to write header for %s: %v", e.Name, err)
		}
		if hdr.Size > 0 {
			if _, err := tw.Write([]byte(e.Body)); err != nil {
				t.Fatalf("failed to write content for %s: %v", e.Name, err)
			}
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("failed to finish tar: %v", err)
	}
	if err := xw.Close(); err != nil {
		t.Fatalf("failed to finish xz: %v", err)
	}
	return buf.Bytes()
}

// NodeDistEntries returns the members of a minimal runtime distribution for
// a unix-like platform, with the executable holding body.
func NodeDistEntries(root, body string) []ArchiveEntry {
	return []ArchiveEntry{
		{Name: root + "/"},
		{Name: root + "/CHANGELOG.md", Body: "# changelog\n"},
		{Name: root + "/bin/"},
		{Name: root + "/bin/node", Body: body},
		{Name: root + "/include/node/node.h", Body: "#pragma once\n"},
		{Name: root + "/share/doc/node/README.md", Body: "node\n"},
	}
}

// NodeWinDistEntries returns the members of a minimal windows runtime
// distribution, with node.exe holding body.
func NodeWinDistEntries(root, body string) []ArchiveEntry {
	return []ArchiveEntry{
		{Name: root + "/"},
		{Name: root + "/README.md", Body: "node\n"},
		{Name: root + "/node.exe", Body: body},
		{Name: root + "/node_modules/npm/package.json", Body: "{}\n"},
	}
}

func isDir(name string) bool {
	return len(name) > 0 && name[len(name)-1] == '/'
}
