package archive

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
)

const (
	zipLocalHeaderSig   = 0x04034b50
	zipDescriptorSig    = 0x08074b50
	zipCentralDirSig    = 0x02014b50
	zipEndOfCentralSig  = 0x06054b50
	zip64EndSig         = 0x06064b50
	zipArchiveExtraSig  = 0x08064b50
	zipDigitalSigSig    = 0x05054b50
	zipLocalHeaderLen   = 26 // fixed part after the signature
	zip64ExtraID        = 0x0001
	zipFlagEncrypted    = 0x0001
	zipFlagDescriptor   = 0x0008
	zipMethodStore      = 0
	zipMethodDeflate    = 8
	zipSizeSentinel     = 0xFFFFFFFF
	zipStreamBufferSize = 64 << 10
)

// Zip reads zip archives sequentially from their local file headers.
type Zip struct{}

// Name returns "zip".
func (Zip) Name() string { return "zip" }

// Open starts reading a zip stream.
func (Zip) Open(r io.Reader) (Reader, error) {
	return &zipReader{br: bufio.NewReaderSize(r, zipStreamBufferSize)}, nil
}

type zipReader struct {
	br   *bufio.Reader
	cur  *Entry
	done bool
	err  error
}

// zipEntry holds what the local header says about one member.
type zipEntry struct {
	z          *zipReader
	name       string
	flags      uint16
	method     uint16
	crc        uint32
	csize      uint64
	usize      uint64
	zip64      bool
	descriptor bool
}

func (z *zipReader) Next() (*Entry, error) {
	if z.cur != nil && !z.cur.settled {
		return nil, ErrUnsettled
	}
	z.cur = nil
	if z.err != nil {
		return nil, z.err
	}
	if z.done {
		return nil, io.EOF
	}

	var sigBuf [4]byte
	if _, err := io.ReadFull(z.br, sigBuf[:]); err != nil {
		if err == io.EOF {
			// Stream ended without a central directory. Treat as the end.
			z.done = true
			return nil, io.EOF
		}
		return nil, z.fail(fmt.Errorf("read zip signature: %w", err))
	}

	switch sig := binary.LittleEndian.Uint32(sigBuf[:]); sig {
	case zipLocalHeaderSig:
		return z.readLocalHeader()
	case zipCentralDirSig, zipEndOfCentralSig, zip64EndSig, zipArchiveExtraSig, zipDigitalSigSig:
		// Everything after the last member is metadata we don't need,
		// but the stream still has to be read to its end.
		if _, err := io.Copy(io.Discard, z.br); err != nil {
			return nil, z.fail(fmt.Errorf("drain zip central directory: %w", err))
		}
		z.done = true
		return nil, io.EOF
	default:
		return nil, z.fail(fmt.Errorf("unexpected zip signature 0x%08x", sig))
	}
}

func (z *zipReader) fail(err error) error {
	z.err = err
	return err
}

func (z *zipReader) readLocalHeader() (*Entry, error) {
	var hdr [zipLocalHeaderLen]byte
	if _, err := io.ReadFull(z.br, hdr[:]); err != nil {
		return nil, z.fail(fmt.Errorf("read zip local header: %w", unexpectedEOF(err)))
	}

	ze := &zipEntry{
		z:      z,
		flags:  binary.LittleEndian.Uint16(hdr[2:4]),
		method: binary.LittleEndian.Uint16(hdr[4:6]),
		crc:    binary.LittleEndian.Uint32(hdr[10:14]),
		csize:  uint64(binary.LittleEndian.Uint32(hdr[14:18])),
		usize:  uint64(binary.LittleEndian.Uint32(hdr[18:22])),
	}
	ze.descriptor = ze.flags&zipFlagDescriptor != 0
	nameLen := int(binary.LittleEndian.Uint16(hdr[22:24]))
	extraLen := int(binary.LittleEndian.Uint16(hdr[24:26]))

	buf := make([]byte, nameLen+extraLen)
	if _, err := io.ReadFull(z.br, buf); err != nil {
		return nil, z.fail(fmt.Errorf("read zip entry name: %w", unexpectedEOF(err)))
	}
	ze.name = strings.ReplaceAll(string(buf[:nameLen]), "\\", "/")
	ze.readExtra(buf[nameLen:])

	entry := &Entry{
		Path: ze.name,
		Kind: KindFile,
		Size: int64(ze.usize),
		body: ze,
	}
	if strings.HasSuffix(ze.name, "/") {
		entry.Kind = KindOther
	}
	if ze.descriptor {
		entry.Size = -1
	}

	z.cur = entry
	return entry, nil
}

// readExtra picks up 64-bit sizes from the zip64 extended information field.
// In a local header the field carries both sizes, uncompressed first.
func (ze *zipEntry) readExtra(extra []byte) {
	for len(extra) >= 4 {
		id := binary.LittleEndian.Uint16(extra[0:2])
		size := int(binary.LittleEndian.Uint16(extra[2:4]))
		extra = extra[4:]
		if size > len(extra) {
			return
		}
		data := extra[:size]
		extra = extra[size:]

		if id != zip64ExtraID {
			continue
		}
		ze.zip64 = true
		if ze.usize == zipSizeSentinel && len(data) >= 8 {
			ze.usize = binary.LittleEndian.Uint64(data[0:8])
			data = data[8:]
		}
		if ze.csize == zipSizeSentinel && len(data) >= 8 {
			ze.csize = binary.LittleEndian.Uint64(data[0:8])
		}
	}
}

func (ze *zipEntry) consume(w io.Writer) (int64, error) {
	if ze.flags&zipFlagEncrypted != 0 {
		return 0, ze.z.fail(fmt.Errorf("%w: zip entry %s is encrypted", ErrUnsupported, ze.name))
	}
	n, err := ze.read(w)
	if err != nil {
		return n, ze.z.fail(err)
	}
	return n, nil
}

func (ze *zipEntry) skip() error {
	if !ze.descriptor {
		// Sizes are known up front, so the raw bytes can be discarded
		// without decompressing them.
		n, err := io.CopyN(io.Discard, ze.z.br, int64(ze.csize))
		if err != nil {
			return ze.z.fail(fmt.Errorf("skip zip entry %s after %d bytes: %w", ze.name, n, unexpectedEOF(err)))
		}
		return nil
	}
	if ze.flags&zipFlagEncrypted != 0 {
		return ze.z.fail(fmt.Errorf("%w: cannot skip encrypted zip entry %s with data descriptor", ErrUnsupported, ze.name))
	}
	if _, err := ze.read(io.Discard); err != nil {
		return ze.z.fail(err)
	}
	return nil
}

// read decompresses the entry into w and verifies its CRC-32 and size.
func (ze *zipEntry) read(w io.Writer) (int64, error) {
	if ze.descriptor {
		return ze.readWithDescriptor(w)
	}

	raw := io.LimitReader(ze.z.br, int64(ze.csize))
	rc, err := ze.decompressor(raw)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	hasher := crc32.NewIEEE()
	n, err := io.Copy(io.MultiWriter(w, hasher), rc)
	if err != nil {
		return n, fmt.Errorf("read zip entry %s: %w", ze.name, unexpectedEOF(err))
	}
	// Some deflate encoders leave padding after the final block.
	if _, err := io.Copy(io.Discard, raw); err != nil {
		return n, fmt.Errorf("read zip entry %s: %w", ze.name, unexpectedEOF(err))
	}

	if err := ze.verify(uint64(n), hasher.Sum32(), ze.crc, ze.usize); err != nil {
		return n, err
	}
	return n, nil
}

// readWithDescriptor handles entries whose sizes and CRC follow the data.
func (ze *zipEntry) readWithDescriptor(w io.Writer) (int64, error) {
	switch ze.method {
	case zipMethodDeflate:
	case zipMethodStore:
		return ze.readStoredWithDescriptor(w)
	default:
		return 0, fmt.Errorf("%w: zip entry %s uses method %d with a data descriptor", ErrUnsupported, ze.name, ze.method)
	}

	// flate reads byte by byte from an io.ByteReader, so it stops exactly
	// at the end of the compressed data and the descriptor stays unread.
	counter := &countingByteReader{r: ze.z.br}
	fr := flate.NewReader(counter)
	defer fr.Close()

	hasher := crc32.NewIEEE()
	n, err := io.Copy(io.MultiWriter(w, hasher), fr)
	if err != nil {
		return n, fmt.Errorf("read zip entry %s: %w", ze.name, unexpectedEOF(err))
	}

	crc, csize, usize, err := ze.readDescriptor()
	if err != nil {
		return n, err
	}
	if csize != uint64(counter.n) {
		return n, fmt.Errorf("%w: zip entry %s compressed size %d, descriptor says %d", ErrChecksum, ze.name, counter.n, csize)
	}
	if err := ze.verify(uint64(n), hasher.Sum32(), crc, usize); err != nil {
		return n, err
	}
	return n, nil
}

// readStoredWithDescriptor copies a stored entry up to the first descriptor
// signature whose sizes and CRC-32 agree with the bytes before it. A
// signature that does not agree is part of the data.
func (ze *zipEntry) readStoredWithDescriptor(w io.Writer) (int64, error) {
	var sig [4]byte
	binary.LittleEndian.PutUint32(sig[:], zipDescriptorSig)
	descLen := len(sig) + ze.descriptorLen()

	hasher := crc32.NewIEEE()
	out := io.MultiWriter(w, hasher)
	var n int64
	emit := func(p []byte) error {
		if _, err := out.Write(p); err != nil {
			return fmt.Errorf("read zip entry %s: %w", ze.name, err)
		}
		n += int64(len(p))
		_, err := ze.z.br.Discard(len(p))
		return err
	}

	br := ze.z.br
	for {
		window, peekErr := br.Peek(br.Size())
		i := bytes.Index(window, sig[:])
		if i < 0 {
			// Hold back a partial signature at the end of the window.
			keep := len(window) - (len(sig) - 1)
			if peekErr != nil || keep <= 0 {
				if peekErr == nil {
					peekErr = io.EOF
				}
				return n, fmt.Errorf("read zip entry %s: no data descriptor: %w", ze.name, unexpectedEOF(peekErr))
			}
			if err := emit(window[:keep]); err != nil {
				return n, err
			}
			continue
		}
		if err := emit(window[:i]); err != nil {
			return n, err
		}

		cand, err := br.Peek(descLen)
		if err != nil {
			return n, fmt.Errorf("read zip data descriptor for %s: %w", ze.name, unexpectedEOF(err))
		}
		crc, csize, usize := ze.parseDescriptor(cand[len(sig):])
		if csize == uint64(n) && crc == hasher.Sum32() {
			if _, err := br.Discard(descLen); err != nil {
				return n, fmt.Errorf("read zip data descriptor for %s: %w", ze.name, err)
			}
			if err := ze.verify(uint64(n), crc, crc, usize); err != nil {
				return n, err
			}
			return n, nil
		}
		if err := emit(cand[:1]); err != nil {
			return n, err
		}
	}
}

// descriptorLen is the size of the data descriptor without its signature.
func (ze *zipEntry) descriptorLen() int {
	if ze.zip64 {
		return 4 + 2*8
	}
	return 4 + 2*4
}

func (ze *zipEntry) parseDescriptor(buf []byte) (crc uint32, csize, usize uint64) {
	crc = binary.LittleEndian.Uint32(buf[0:4])
	if ze.zip64 {
		csize = binary.LittleEndian.Uint64(buf[4:12])
		usize = binary.LittleEndian.Uint64(buf[12:20])
	} else {
		csize = uint64(binary.LittleEndian.Uint32(buf[4:8]))
		usize = uint64(binary.LittleEndian.Uint32(buf[8:12]))
	}
	return crc, csize, usize
}

func (ze *zipEntry) readDescriptor() (crc uint32, csize, usize uint64, err error) {
	peek, err := ze.z.br.Peek(4)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("read zip data descriptor for %s: %w", ze.name, unexpectedEOF(err))
	}
	// The descriptor signature is optional.
	if binary.LittleEndian.Uint32(peek) == zipDescriptorSig {
		if _, err := ze.z.br.Discard(4); err != nil {
			return 0, 0, 0, fmt.Errorf("read zip data descriptor for %s: %w", ze.name, err)
		}
	}

	buf := make([]byte, ze.descriptorLen())
	if _, err := io.ReadFull(ze.z.br, buf); err != nil {
		return 0, 0, 0, fmt.Errorf("read zip data descriptor for %s: %w", ze.name, unexpectedEOF(err))
	}
	crc, csize, usize = ze.parseDescriptor(buf)
	return crc, csize, usize, nil
}

func (ze *zipEntry) decompressor(r io.Reader) (io.ReadCloser, error) {
	switch ze.method {
	case zipMethodStore:
		return io.NopCloser(r), nil
	case zipMethodDeflate:
		return flate.NewReader(r), nil
	default:
		return nil, fmt.Errorf("%w: zip entry %s uses compression method %d", ErrUnsupported, ze.name, ze.method)
	}
}

func (ze *zipEntry) verify(n uint64, gotCRC, wantCRC uint32, wantSize uint64) error {
	if n != wantSize {
		return fmt.Errorf("%w: zip entry %s has %d bytes, header says %d", ErrChecksum, ze.name, n, wantSize)
	}
	if gotCRC != wantCRC {
		return fmt.Errorf("%w: zip entry %s crc32 %08x, header says %08x", ErrChecksum, ze.name, gotCRC, wantCRC)
	}
	return nil
}

// countingByteReader counts bytes handed to the decompressor.
type countingByteReader struct {
	r *bufio.Reader
	n int64
}

func (c *countingByteReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingByteReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}

// unexpectedEOF turns a bare io.EOF in the middle of a record into
// io.ErrUnexpectedEOF.
func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
