// Package verify checks downloaded runtime archives against the checksums
// published next to them.
//
// The distribution publishes SHASUMS256.txt and a clearsigned copy,
// SHASUMS256.txt.asc. With a keyring the signed copy is fetched and its
// OpenPGP signature checked before any digest is trusted; without one the
// plain file is used. Archives are hashed while they stream, so no extra
// pass over the data is needed.
package verify

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
)

const (
	// ChecksumFile is the plain checksum list in a version directory.
	ChecksumFile = "SHASUMS256.txt"
	// SignedChecksumFile is the clearsigned checksum list.
	SignedChecksumFile = "SHASUMS256.txt.asc"
)

var (
	// ErrChecksumMismatch is returned when a stream's digest differs from
	// the published one.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrChecksumNotFound is returned when no checksum is listed for a file.
	ErrChecksumNotFound = errors.New("checksum not found")
	// ErrBadSignature is returned when the checksum list signature does not
	// verify against the keyring.
	ErrBadSignature = errors.New("checksum signature verification failed")
)

// Checksums maps file names to lowercase hex SHA-256 digests.
type Checksums map[string]string

// ParseChecksums reads "<hex>  <filename>" lines. Blank lines and lines
// without two fields are ignored. A leading "*" (binary mode marker) on the
// file name is dropped.
func ParseChecksums(r io.Reader) (Checksums, error) {
	sums := make(Checksums)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}
		digest := strings.ToLower(parts[0])
		if _, err := hex.DecodeString(digest); err != nil || len(digest) != sha256.Size*2 {
			continue
		}
		name := strings.TrimPrefix(parts[1], "*")
		sums[name] = digest
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan checksum file: %w", err)
	}
	return sums, nil
}

// Lookup returns the digest for filename. Entries listed with a directory
// prefix match on their base name.
func (c Checksums) Lookup(filename string) (string, error) {
	if sum, ok := c[filename]; ok {
		return sum, nil
	}
	for name, sum := range c {
		if path.Base(name) == filename {
			return sum, nil
		}
	}
	return "", fmt.Errorf("%w for %s", ErrChecksumNotFound, filename)
}

// LoadKeyring reads an armored or binary OpenPGP public keyring.
func LoadKeyring(keyringPath string) (openpgp.EntityList, error) {
	data, err := os.ReadFile(keyringPath)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return ReadKeyring(data)
}

// ReadKeyring parses an armored or binary OpenPGP public keyring.
func ReadKeyring(data []byte) (openpgp.EntityList, error) {
	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		keyring, err = openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring is empty")
	}
	return keyring, nil
}

// VerifyClearsigned checks a clearsigned message against keyring and
// returns the signed text.
func VerifyClearsigned(data []byte, keyring openpgp.KeyRing) ([]byte, error) {
	block, _ := clearsign.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no clearsigned block found", ErrBadSignature)
	}

	if _, err := openpgp.CheckDetachedSignature(keyring, bytes.NewReader(block.Bytes), block.ArmoredSignature.Body, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return block.Plaintext, nil
}

// Fetcher retrieves small files from a runtime version directory.
type Fetcher interface {
	Fetch(ctx context.Context, version, name string) ([]byte, error)
}

// FetchChecksums downloads the checksum list for version. With a non-nil
// keyring the clearsigned list is fetched and verified first.
func FetchChecksums(ctx context.Context, f Fetcher, version string, keyring openpgp.KeyRing) (Checksums, error) {
	if keyring == nil {
		data, err := f.Fetch(ctx, version, ChecksumFile)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", ChecksumFile, err)
		}
		return ParseChecksums(bytes.NewReader(data))
	}

	data, err := f.Fetch(ctx, version, SignedChecksumFile)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", SignedChecksumFile, err)
	}
	text, err := VerifyClearsigned(data, keyring)
	if err != nil {
		return nil, err
	}
	return ParseChecksums(bytes.NewReader(text))
}

// HashingReader computes the SHA-256 of everything read through it.
type HashingReader struct {
	r io.Reader
	h hash.Hash
	n int64
}

// NewHashingReader wraps r.
func NewHashingReader(r io.Reader) *HashingReader {
	return &HashingReader{r: r, h: sha256.New()}
}

func (h *HashingReader) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	if n > 0 {
		h.h.Write(p[:n])
		h.n += int64(n)
	}
	return n, err
}

// Sum returns the hex digest of the bytes read so far.
func (h *HashingReader) Sum() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

// Len returns the number of bytes read so far.
func (h *HashingReader) Len() int64 {
	return h.n
}

// Check compares the digest with expected, ignoring case.
func (h *HashingReader) Check(expected string) error {
	actual := h.Sum()
	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("%w:\nactual:   %s\nexpected: %s", ErrChecksumMismatch, actual, expected)
	}
	return nil
}
