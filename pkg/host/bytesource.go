package host

import (
	"bufio"
	"io"
)

// ByteSource hands out a vector stream one byte at a time.
type ByteSource struct {
	r   *bufio.Reader
	off int64
}

// NewByteSource buffers r.
func NewByteSource(r io.Reader) *ByteSource {
	return &ByteSource{r: bufio.NewReader(r)}
}

// Next returns the next byte, or io.EOF once the stream is exhausted.
func (s *ByteSource) Next() (byte, error) {
	b, err := s.r.ReadByte()
	if err != nil {
		return 0, err
	}
	s.off++
	return b, nil
}

// Offset reports how many bytes have been consumed.
func (s *ByteSource) Offset() int64 {
	return s.off
}
