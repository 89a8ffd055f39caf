// Package wire implements the bounds-checked binary codec the rest of
// nettap uses to read and write wire formats over a caller-owned byte
// buffer. Every operation advances an explicit cursor and fails closed:
// a read or write that would run past the buffer's end returns
// ErrBounds and leaves the cursor untouched.
package wire

import (
	"encoding/binary"
	"errors"
)

// ErrBounds is returned by any Cursor operation that would read or
// write past the end of the underlying buffer.
var ErrBounds = errors.New("wire: operation exceeds buffer bounds")

// Cursor is a bounds-checked read/write head over a caller-owned byte
// slice. The zero value is not usable; construct with NewCursor.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor wraps buf for bounds-checked reading and writing starting
// at offset 0.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Pos returns the current cursor offset into the underlying buffer.
func (c *Cursor) Pos() int { return c.pos }

// Len returns the length of the underlying buffer.
func (c *Cursor) Len() int { return len(c.buf) }

// Remaining reports how many bytes are available for reading or
// writing ahead of the cursor.
func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

// Bytes returns the underlying buffer truncated to the bytes written
// so far (i.e. buf[:c.Pos()]). It does not copy.
func (c *Cursor) Bytes() []byte { return c.buf[:c.pos] }

// Seek repositions the cursor to an absolute offset. It does not
// bounds-check against pending operations; out-of-range reads/writes
// after a Seek still fail with ErrBounds.
func (c *Cursor) Seek(pos int) { c.pos = pos }

func (c *Cursor) checkRoom(n int) error {
	if c.pos+n > len(c.buf) {
		return ErrBounds
	}
	return nil
}

// ReadU8 reads one byte and advances the cursor by 1.
func (c *Cursor) ReadU8() (uint8, error) {
	if err := c.checkRoom(1); err != nil {
		return 0, err
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

// WriteU8 writes one byte and advances the cursor by 1.
func (c *Cursor) WriteU8(v uint8) error {
	if err := c.checkRoom(1); err != nil {
		return err
	}
	c.buf[c.pos] = v
	c.pos++
	return nil
}

// ReadU16 reads a big-endian uint16 and advances the cursor by 2.
func (c *Cursor) ReadU16() (uint16, error) {
	if err := c.checkRoom(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v, nil
}

// WriteU16 writes v in big-endian order and advances the cursor by 2.
func (c *Cursor) WriteU16(v uint16) error {
	if err := c.checkRoom(2); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(c.buf[c.pos:], v)
	c.pos += 2
	return nil
}

// ReadU32 reads a big-endian uint32 and advances the cursor by 4.
func (c *Cursor) ReadU32() (uint32, error) {
	if err := c.checkRoom(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

// WriteU32 writes v in big-endian order and advances the cursor by 4.
func (c *Cursor) WriteU32(v uint32) error {
	if err := c.checkRoom(4); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(c.buf[c.pos:], v)
	c.pos += 4
	return nil
}

// ReadMAC reads a raw 6-byte hardware address (no byte-order
// conversion) and advances the cursor by 6.
func (c *Cursor) ReadMAC() (mac [6]byte, err error) {
	if err = c.checkRoom(6); err != nil {
		return mac, err
	}
	copy(mac[:], c.buf[c.pos:c.pos+6])
	c.pos += 6
	return mac, nil
}

// WriteMAC writes a raw 6-byte hardware address and advances the
// cursor by 6.
func (c *Cursor) WriteMAC(mac [6]byte) error {
	if err := c.checkRoom(6); err != nil {
		return err
	}
	copy(c.buf[c.pos:c.pos+6], mac[:])
	c.pos += 6
	return nil
}

// IPv4Fields1 holds the packed version/IHL byte of an IPv4 header.
type IPv4Fields1 struct {
	Version uint8
	IHL     uint8
}

// ReadIPv4Fields1 reads the packed (version<<4)|ihl byte.
func (c *Cursor) ReadIPv4Fields1() (IPv4Fields1, error) {
	b, err := c.ReadU8()
	if err != nil {
		return IPv4Fields1{}, err
	}
	return IPv4Fields1{Version: b >> 4, IHL: b & 0xF}, nil
}

// WriteIPv4Fields1 writes f packed as (version<<4)|(ihl&0xF).
func (c *Cursor) WriteIPv4Fields1(f IPv4Fields1) error {
	return c.WriteU8(f.Version<<4 | f.IHL&0xF)
}

// IPv4Fields2 holds the packed flags/fragment-offset pair of an IPv4
// header.
type IPv4Fields2 struct {
	Flags      uint16
	FragOffset uint16
}

// ReadIPv4Fields2 reads the packed (flags<<13)|fragOffset 16-bit field.
func (c *Cursor) ReadIPv4Fields2() (IPv4Fields2, error) {
	v, err := c.ReadU16()
	if err != nil {
		return IPv4Fields2{}, err
	}
	return IPv4Fields2{Flags: v >> 13, FragOffset: v & 0x1FFF}, nil
}

// WriteIPv4Fields2 writes f packed as (flags<<13)|(fragOffset&0x1FFF).
func (c *Cursor) WriteIPv4Fields2(f IPv4Fields2) error {
	return c.WriteU16(f.Flags<<13 | f.FragOffset&0x1FFF)
}

// Borrow returns a view of the next n bytes and advances the cursor by
// n. The returned slice aliases the underlying buffer; it must not be
// used after the buffer is reused or released.
func (c *Cursor) Borrow(n int) ([]byte, error) {
	if err := c.checkRoom(n); err != nil {
		return nil, err
	}
	v := c.buf[c.pos : c.pos+n]
	c.pos += n
	return v, nil
}

// WriteBytes copies b into the buffer at the cursor and advances by
// len(b).
func (c *Cursor) WriteBytes(b []byte) error {
	if err := c.checkRoom(len(b)); err != nil {
		return err
	}
	copy(c.buf[c.pos:], b)
	c.pos += len(b)
	return nil
}

// WriteZeros writes n zero bytes and advances the cursor by n.
func (c *Cursor) WriteZeros(n int) error {
	if err := c.checkRoom(n); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		c.buf[c.pos+i] = 0
	}
	c.pos += n
	return nil
}
