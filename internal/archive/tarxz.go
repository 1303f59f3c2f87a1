package archive

import (
	"archive/tar"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// TarXz reads xz compressed tar archives.
type TarXz struct{}

// Name returns "tar.xz".
func (TarXz) Name() string { return "tar.xz" }

// Open reads the xz stream header from r and starts the tar demuxer.
func (TarXz) Open(r io.Reader) (Reader, error) {
	xzr, err := xz.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xz stream: %w", err)
	}
	return &tarXzReader{xz: xzr, tr: tar.NewReader(xzr)}, nil
}

type tarXzReader struct {
	xz   *xz.Reader
	tr   *tar.Reader
	cur  *Entry
	done bool
}

func (t *tarXzReader) Next() (*Entry, error) {
	if t.cur != nil && !t.cur.settled {
		return nil, ErrUnsettled
	}
	t.cur = nil
	if t.done {
		return nil, io.EOF
	}

	hdr, err := t.tr.Next()
	if err == io.EOF {
		// Read past the tar trailer so the xz index and footer are checked.
		if _, err := io.Copy(io.Discard, t.xz); err != nil {
			return nil, fmt.Errorf("drain xz stream: %w", err)
		}
		t.done = true
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("read tar header: %w", err)
	}

	entry := &Entry{
		Path: hdr.Name,
		Kind: KindOther,
		Size: hdr.Size,
		body: tarEntry{tr: t.tr, name: hdr.Name},
	}
	// '\x00' is the pre-POSIX regular file type.
	if hdr.Typeflag == tar.TypeReg || hdr.Typeflag == '\x00' {
		entry.Kind = KindFile
	}

	t.cur = entry
	return entry, nil
}

type tarEntry struct {
	tr   *tar.Reader
	name string
}

func (e tarEntry) consume(w io.Writer) (int64, error) {
	n, err := io.Copy(w, e.tr)
	if err != nil {
		return n, fmt.Errorf("read tar entry %s: %w", e.name, err)
	}
	return n, nil
}

func (e tarEntry) skip() error {
	if _, err := io.Copy(io.Discard, e.tr); err != nil {
		return fmt.Errorf("skip tar entry %s: %w", e.name, err)
	}
	return nil
}
