package samp

import (
	"encoding/binary"

	"golang.org/x/text/encoding"
)

// Reader is a little-endian cursor over a reply datagram.
// Every read is bounds checked; a read that would cross the end of the
// buffer fails with a *DecodeError and leaves the offset unchanged.
type Reader struct {
	charset encoding.Encoding
	data    []byte
	offset  int
}

// NewReader returns a Reader positioned at the start of data.
// Strings are decoded with charset, or DefaultCharset when nil.
func NewReader(data []byte, charset encoding.Encoding) *Reader {
	return &Reader{data: data, charset: charset}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int {
	return r.offset
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.offset
}

// need reserves n bytes and returns the offset they start at.
func (r *Reader) need(field string, n int) (int, error) {
	if n < 0 || n > len(r.data)-r.offset {
		return 0, &DecodeError{Field: field, Offset: r.offset, Need: n, Size: len(r.data)}
	}
	off := r.offset
	r.offset += n

	return off, nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(field string, n int) error {
	_, err := r.need(field, n)
	return err
}

// Uint8 reads a single byte.
func (r *Reader) Uint8(field string) (uint8, error) {
	off, err := r.need(field, 1)
	if err != nil {
		return 0, err
	}

	return r.data[off], nil
}

// Uint16 reads a little-endian 16-bit value.
func (r *Reader) Uint16(field string) (uint16, error) {
	off, err := r.need(field, 2)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint16(r.data[off:]), nil
}

// PaddedUint16 reads a little-endian 16-bit value stored in a 4-byte slot.
// The upper two bytes are ignored.
func (r *Reader) PaddedUint16(field string) (uint16, error) {
	off, err := r.need(field, 4)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint16(r.data[off:]), nil
}

// String reads n bytes and decodes them with the reader's charset.
func (r *Reader) String(field string, n int) (string, error) {
	off, err := r.need(field, n)
	if err != nil {
		return "", err
	}

	return decodeText(r.charset, r.data[off:off+n])
}

// String8 reads a string prefixed by a one-byte length.
func (r *Reader) String8(field string) (string, error) {
	n, err := r.Uint8(field + " length")
	if err != nil {
		return "", err
	}

	return r.String(field, int(n))
}

// String32 reads a string prefixed by a four-byte length slot of which only
// the low 16 bits carry the length.
func (r *Reader) String32(field string) (string, error) {
	n, err := r.PaddedUint16(field + " length")
	if err != nil {
		return "", err
	}

	return r.String(field, int(n))
}
