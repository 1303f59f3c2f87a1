package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ZebulonRouseFrantzich/seapack/internal/logging"
	"github.com/ZebulonRouseFrantzich/seapack/internal/platform"
)

// Extraction failure kinds. Use errors.Is against an *ExtractionError.
var (
	ErrNotFound  = errors.New("target not found in archive")
	ErrAmbiguous = errors.New("more than one archive entry matches target")
	ErrStream    = errors.New("archive stream failed")
)

// ExtractionError describes why a single-file extraction failed.
type ExtractionError struct {
	// Kind is ErrNotFound, ErrAmbiguous or ErrStream.
	Kind error
	// Target is the path suffix that was searched for.
	Target string
	// Paths holds the matching entry paths, if any were seen.
	Paths []string
	// Err is the underlying cause for ErrStream.
	Err error
}

func (e *ExtractionError) Error() string {
	switch {
	case errors.Is(e.Kind, ErrAmbiguous):
		return fmt.Sprintf("extract %s: %v: %s", e.Target, e.Kind, strings.Join(e.Paths, ", "))
	case e.Err != nil:
		return fmt.Sprintf("extract %s: %v: %v", e.Target, e.Kind, e.Err)
	default:
		return fmt.Sprintf("extract %s: %v", e.Target, e.Kind)
	}
}

func (e *ExtractionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Target selects the one archive entry to extract.
type Target struct {
	// Suffix is matched against the end of each regular file's path.
	Suffix string
}

// Matches reports whether e is a regular file whose path ends with the suffix.
func (t Target) Matches(e *Entry) bool {
	return e.Kind == KindFile && strings.HasSuffix(e.Path, t.Suffix)
}

// BinaryTarget returns the runtime executable inside a distribution archive
// for p. Archives nest everything under a versioned top-level directory, so
// matching is by suffix.
func BinaryTarget(p platform.Platform) Target {
	if p == platform.Windows {
		return Target{Suffix: "/node.exe"}
	}
	return Target{Suffix: "/bin/node"}
}

// Result summarizes a successful extraction.
type Result struct {
	// Path is the archive path of the extracted entry.
	Path string
	// Bytes is the number of bytes written to the sink.
	Bytes int64
	// Entries is the number of entries read from the archive.
	Entries int
}

// Extractor pulls a single file out of an archive stream.
type Extractor struct {
	logger logging.Logger
}

// NewExtractor creates an extractor. A nil logger discards output.
func NewExtractor(logger logging.Logger) *Extractor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Extractor{logger: logger}
}

// Extract reads src with format and copies the one entry matching target
// into sink. Every other entry is skipped. The whole stream is read so
// trailing metadata is verified and a second match is detected.
//
// If nothing matches, sink receives zero bytes and the error kind is
// ErrNotFound. A matching entry with no content is reported the same way.
func (x *Extractor) Extract(ctx context.Context, format Format, src io.Reader, target Target, sink io.Writer) (*Result, error) {
	streamErr := func(err error) error {
		return &ExtractionError{Kind: ErrStream, Target: target.Suffix, Err: err}
	}

	r, err := format.Open(src)
	if err != nil {
		return nil, streamErr(err)
	}

	res := &Result{}
	var matches []string
	for {
		if err := ctx.Err(); err != nil {
			return nil, streamErr(err)
		}

		entry, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, streamErr(err)
		}
		res.Entries++

		if !target.Matches(entry) {
			if err := entry.Skip(); err != nil {
				return nil, streamErr(err)
			}
			continue
		}

		matches = append(matches, entry.Path)
		if len(matches) > 1 {
			return nil, &ExtractionError{Kind: ErrAmbiguous, Target: target.Suffix, Paths: matches}
		}

		x.logger.Debug("extracting archive entry", "format", format.Name(), "path", entry.Path)
		n, err := entry.Consume(sink)
		if err != nil {
			return nil, streamErr(err)
		}
		res.Path = entry.Path
		res.Bytes = n
	}

	if len(matches) == 0 {
		return nil, &ExtractionError{Kind: ErrNotFound, Target: target.Suffix}
	}
	if res.Bytes == 0 {
		return nil, &ExtractionError{Kind: ErrNotFound, Target: target.Suffix, Paths: matches, Err: errors.New("entry is empty")}
	}
	return res, nil
}

// ExtractToFile extracts target into dest with mode 0755. Content is staged
// in dest+".partial" and renamed on success, so dest never holds a truncated
// or empty file. If check is not nil it runs after the whole stream has been
// read and before the rename; an error from it discards the output.
func (x *Extractor) ExtractToFile(ctx context.Context, format Format, src io.Reader, target Target, dest string, check func() error) (*Result, error) {
	partial := dest + ".partial"
	f, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	cleanup := func() {
		f.Close()
		os.Remove(partial)
	}

	res, err := x.Extract(ctx, format, src, target, f)
	if err != nil {
		cleanup()
		return nil, err
	}
	if check != nil {
		if err := check(); err != nil {
			cleanup()
			return nil, err
		}
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to flush output file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(partial)
		return nil, fmt.Errorf("failed to close output file: %w", err)
	}

	// The umask may have cleared execute bits at create time.
	if err := os.Chmod(partial, 0755); err != nil {
		os.Remove(partial)
		return nil, fmt.Errorf("failed to set executable permission: %w", err)
	}
	if err := os.Rename(partial, dest); err != nil {
		os.Remove(partial)
		return nil, fmt.Errorf("failed to move output file into place: %w", err)
	}
	return res, nil
}
