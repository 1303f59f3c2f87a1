// Package archive extracts a single file from a compressed archive stream.
//
// Archives arrive as live network streams, so neither format may seek.
// Both strategies expose the archive as a lazy, finite, non-restartable
// sequence of entries. Every entry must be settled, either by consuming its
// content into a writer or by skipping it, before Reader.Next is called
// again. Next returns ErrUnsettled otherwise: sequential formats cannot
// reach the next header until the current entry's bytes have been read.
//
// # Formats
//
//   - Zip: parses local file headers in stream order. Stored and deflated
//     entries are supported, with or without a trailing data descriptor.
//     The central directory is drained and ignored.
//   - TarXz: xz decompression feeding a tar demuxer.
package archive

import (
	"errors"
	"io"

	"github.com/ZebulonRouseFrantzich/seapack/internal/platform"
)

var (
	// ErrUnsettled is returned by Reader.Next when the previous entry was
	// neither consumed nor skipped.
	ErrUnsettled = errors.New("previous archive entry was not consumed or skipped")
	// ErrSettled is returned when Consume or Skip is called twice on one entry.
	ErrSettled = errors.New("archive entry already consumed or skipped")
	// ErrChecksum is returned when an entry's content does not match its
	// recorded CRC-32 or size.
	ErrChecksum = errors.New("archive entry checksum mismatch")
	// ErrUnsupported is returned for archive features seapack does not read.
	ErrUnsupported = errors.New("unsupported archive feature")
)

// Kind classifies an archive entry.
type Kind int

const (
	// KindFile is a regular file.
	KindFile Kind = iota
	// KindOther is a directory, link or any other non-regular entry.
	KindOther
)

func (k Kind) String() string {
	if k == KindFile {
		return "file"
	}
	return "other"
}

// Format is an archive extraction strategy.
type Format interface {
	// Name returns a short format name for logs.
	Name() string
	// Open starts reading an archive from r.
	Open(r io.Reader) (Reader, error)
}

// Reader yields archive entries in stream order.
type Reader interface {
	// Next returns the next entry, or io.EOF after the last one.
	Next() (*Entry, error)
}

// entryBody is the format specific way to read or discard entry content.
type entryBody interface {
	consume(w io.Writer) (int64, error)
	skip() error
}

// Entry is one archive member. It is only valid until the next call to
// Reader.Next.
type Entry struct {
	// Path is the member path with forward slashes.
	Path string
	// Kind is KindFile for regular files.
	Kind Kind
	// Size is the uncompressed size, or -1 if the header does not record it.
	Size int64

	body    entryBody
	settled bool
}

// Consume copies the entry's decompressed content to w.
func (e *Entry) Consume(w io.Writer) (int64, error) {
	if e.settled {
		return 0, ErrSettled
	}
	e.settled = true
	return e.body.consume(w)
}

// Skip discards the entry's content so the reader can advance.
func (e *Entry) Skip() error {
	if e.settled {
		return ErrSettled
	}
	e.settled = true
	return e.body.skip()
}

// Settled reports whether Consume or Skip has been called.
func (e *Entry) Settled() bool {
	return e.settled
}

// ForPlatform returns the archive format used by the runtime distribution
// for p: zip for windows, tar.xz everywhere else.
func ForPlatform(p platform.Platform) Format {
	if p == platform.Windows {
		return Zip{}
	}
	return TarXz{}
}
