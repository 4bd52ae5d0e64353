// Package cursor provides the seekable read cursor every codec consumes.
package cursor

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/goopsie/pixcodec/pkg/pixel"
)

// Cursor is a read position over a fully materialised byte slice.
type Cursor struct {
	data []byte
	pos  int
}

// New returns a cursor positioned at offset 0.
func New(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Bytes returns the whole underlying slice.
func (c *Cursor) Bytes() []byte { return c.data }

// Len returns the total length.
func (c *Cursor) Len() int { return len(c.data) }

// Pos returns the current offset.
func (c *Cursor) Pos() int { return c.pos }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.data) - c.pos }

// Need fails with a TruncatedDataError unless n bytes remain.
func (c *Cursor) Need(n int) error {
	if n < 0 || c.Remaining() < n {
		return &pixel.TruncatedDataError{Need: n, Have: c.Remaining()}
	}
	return nil
}

// Read returns the next n bytes and advances. The slice aliases the cursor data.
func (c *Cursor) Read(n int) ([]byte, error) {
	b, err := c.Peek(n)
	if err != nil {
		return nil, err
	}
	c.pos += n
	return b, nil
}

// Peek returns the next n bytes without advancing.
func (c *Cursor) Peek(n int) ([]byte, error) {
	if err := c.Need(n); err != nil {
		return nil, err
	}
	return c.data[c.pos : c.pos+n], nil
}

// PeekAt returns n bytes at an absolute offset without moving.
func (c *Cursor) PeekAt(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > len(c.data) {
		have := len(c.data) - off
		if have < 0 {
			have = 0
		}
		return nil, &pixel.TruncatedDataError{Need: n, Have: have}
	}
	return c.data[off : off+n], nil
}

// Seek implements io.Seeker semantics over the slice.
func (c *Cursor) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(c.pos) + offset
	case io.SeekEnd:
		abs = int64(len(c.data)) + offset
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if abs < 0 || abs > int64(len(c.data)) {
		return 0, fmt.Errorf("seek: offset %d outside [0, %d]", abs, len(c.data))
	}
	c.pos = int(abs)
	return abs, nil
}

// SeekTo moves to an absolute offset.
func (c *Cursor) SeekTo(off int) error {
	_, err := c.Seek(int64(off), io.SeekStart)
	return err
}

// Skip moves relative to the current offset.
func (c *Cursor) Skip(n int) error {
	_, err := c.Seek(int64(n), io.SeekCurrent)
	return err
}

// Clone returns an independent cursor over the same data at offset 0.
func (c *Cursor) Clone() *Cursor { return New(c.data) }

// Uint8 reads one byte.
func (c *Cursor) Uint8() (uint8, error) {
	b, err := c.Read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16 reads a 16-bit word in the given byte order.
func (c *Cursor) Uint16(order binary.ByteOrder) (uint16, error) {
	b, err := c.Read(2)
	if err != nil {
		return 0, err
	}
	return order.Uint16(b), nil
}

// Uint32 reads a 32-bit word in the given byte order.
func (c *Cursor) Uint32(order binary.ByteOrder) (uint32, error) {
	b, err := c.Read(4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(b), nil
}

// Uint64 reads a 64-bit word in the given byte order.
func (c *Cursor) Uint64(order binary.ByteOrder) (uint64, error) {
	b, err := c.Read(8)
	if err != nil {
		return 0, err
	}
	return order.Uint64(b), nil
}
