package undump

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

// reader decodes the primitive fields of a chunk from an unbuffered byte source.
// It tracks the absolute offset for diagnostics.
type reader struct {
	r      io.Reader
	offset int64
	buf    [8]byte
}

func newReader(r io.Reader) *reader {
	return &reader{r: r}
}

func (rd *reader) readBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrTruncated, n)
	}
	var out []byte
	if n <= len(rd.buf) {
		out = rd.buf[:n]
	} else {
		out = make([]byte, n)
	}
	got, err := io.ReadFull(rd.r, out)
	rd.offset += int64(got)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: wanted %d bytes at offset %d, got %d", ErrTruncated, n, rd.offset-int64(got), got)
		}
		return nil, err
	}
	return out, nil
}

func (rd *reader) readU8() (uint8, error) {
	b, err := rd.readBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (rd *reader) readU32() (uint32, error) {
	b, err := rd.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// readSize reads a size_t field, always 8 bytes wide.
func (rd *reader) readSize() (uint64, error) {
	b, err := rd.readBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (rd *reader) readBool() (bool, error) {
	b, err := rd.readU8()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (rd *reader) readNumber() (float64, error) {
	b, err := rd.readBytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// readString reads a size_t length followed by that many bytes, the last of
// which is a terminator that is dropped. A zero length is the empty string.
func (rd *reader) readString() (string, error) {
	n, err := rd.readSize()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	if n > maxStringLen {
		return "", fmt.Errorf("%w: string length %d exceeds limit", ErrTruncated, n)
	}
	b, err := rd.readBytes(int(n))
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(b[:n-1]), "�"), nil
}

// maxStringLen caps a single string field; longer declared lengths are
// reported as truncation.
const maxStringLen = 1 << 30
