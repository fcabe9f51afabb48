// Package stream provides binary reading and writing utilities for CTF
// containers. All multi-byte values are little-endian.
package stream

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// Errors returned by Reader.
var (
	ErrUnexpectedEOF  = errors.New("stream: unexpected end of data")
	ErrInvalidString  = errors.New("stream: invalid string reference")
	ErrNegativeOffset = errors.New("stream: negative offset")
)

// Reader provides sequential access to a byte buffer.
type Reader struct {
	data   []byte
	offset int
}

// NewReader creates a Reader from a byte slice.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Offset returns the current read position.
func (r *Reader) Offset() int {
	return r.offset
}

// SetOffset sets the read position.
func (r *Reader) SetOffset(offset int) error {
	if offset < 0 {
		return ErrNegativeOffset
	}
	r.offset = offset
	return nil
}

// Remaining returns the number of bytes remaining.
func (r *Reader) Remaining() int {
	if r.offset >= len(r.data) {
		return 0
	}
	return len(r.data) - r.offset
}

// Skip advances the read position by n bytes.
func (r *Reader) Skip(n int) error {
	if n < 0 || r.offset+n > len(r.data) {
		return ErrUnexpectedEOF
	}
	r.offset += n
	return nil
}

// ReadU8 reads an unsigned 8-bit integer.
func (r *Reader) ReadU8() (uint8, error) {
	if r.offset >= len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	v := r.data[r.offset]
	r.offset++
	return v, nil
}

// ReadU16 reads an unsigned 16-bit integer.
func (r *Reader) ReadU16() (uint16, error) {
	if r.offset+2 > len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint16(r.data[r.offset:])
	r.offset += 2
	return v, nil
}

// ReadU32 reads an unsigned 32-bit integer.
func (r *Reader) ReadU32() (uint32, error) {
	if r.offset+4 > len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	return v, nil
}

// ReadI32 reads a signed 32-bit integer.
func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

// ReadBytesRef returns a reference to n bytes without copying.
// The returned slice is only valid as long as the underlying data.
func (r *Reader) ReadBytesRef(n int) ([]byte, error) {
	if n < 0 || r.offset+n > len(r.data) {
		return nil, ErrUnexpectedEOF
	}
	v := r.data[r.offset : r.offset+n]
	r.offset += n
	return v, nil
}

// CStringAt returns the NUL-terminated string starting at the given offset
// without moving the read position. This is the access pattern for string
// table references.
func (r *Reader) CStringAt(offset int) (string, error) {
	if offset < 0 || offset >= len(r.data) {
		return "", ErrInvalidString
	}
	end := bytes.IndexByte(r.data[offset:], 0)
	if end < 0 {
		return "", ErrInvalidString
	}
	return string(r.data[offset : offset+end]), nil
}

// Data returns the underlying byte slice.
func (r *Reader) Data() []byte {
	return r.data
}
