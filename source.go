// source.go
//
// The I/O boundary. The codec operates over in-memory byte slices; the
// facade pulls those slices from a ByteSource and pushes packed archives to
// a ByteSink. File-backed sources are memory-mapped so extraction never
// copies more than the spans it decodes.

package chm

import (
	"fmt"
	"io"

	"golang.org/x/exp/mmap"
)

// ByteSource is the read-side collaborator: random access over the raw
// archive bytes.
type ByteSource interface {
	io.ReaderAt
	Size() int64
}

// ByteSink is the write-side collaborator.
type ByteSink = io.Writer

// BytesSource adapts an in-memory buffer to ByteSource.
type BytesSource struct {
	data []byte
}

func NewBytesSource(data []byte) *BytesSource { return &BytesSource{data: data} }

func (s *BytesSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(s.data)) {
		return 0, fmt.Errorf("read at %d outside buffer of %d bytes: %w", off, len(s.data), ErrEndOfStream)
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *BytesSource) Size() int64 { return int64(len(s.data)) }

// fileSource is a memory-mapped file. Closing the Archive unmaps it.
type fileSource struct {
	r *mmap.ReaderAt
}

func openFileSource(path string) (*fileSource, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	return &fileSource{r: r}, nil
}

func (s *fileSource) ReadAt(p []byte, off int64) (int, error) { return s.r.ReadAt(p, off) }
func (s *fileSource) Size() int64                             { return int64(s.r.Len()) }
func (s *fileSource) Close() error                            { return s.r.Close() }

// readExact reads [off, off+n) from src, failing loudly on truncation.
func readExact(src ByteSource, off int64, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if off < 0 || off+int64(n) > src.Size() {
		return nil, ErrHeaderTruncated
	}
	buf := make([]byte, n)
	got, err := src.ReadAt(buf, off)
	if got < n {
		if err == nil || err == io.EOF {
			err = ErrHeaderTruncated
		}
		return nil, fmt.Errorf("read %d bytes at %d: %w", n, off, err)
	}
	return buf, nil
}
