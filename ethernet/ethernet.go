// Package ethernet decodes and encodes Ethernet II frames carried over
// the tap device: 6-byte destination, 6-byte source, a 2-byte EtherType
// (or 802.3 length, when the value is below EtherTypeMax), a payload,
// and a trailing 4-byte CRC-32 frame check sequence.
package ethernet

import (
	"errors"

	"github.com/soypat/nettap/wire"
)

// HeaderSize is the size in bytes of the fixed Ethernet II header
// (destination, source, EtherType), not counting payload or FCS.
const HeaderSize = 14

// FCSSize is the size in bytes of the trailing frame check sequence.
const FCSSize = 4

// MinFrameSize is the smallest legal Ethernet frame, FCS included.
// Frames decoded from or destined for the wire are padded to this size.
const MinFrameSize = 64

// MTU is the largest Ethernet payload this stack will emit.
const MTU = 1500

// MaxFrameSize is the largest frame, FCS included, that fits HeaderSize
// plus MTU plus FCSSize.
const MaxFrameSize = HeaderSize + MTU + FCSSize

// EtherType identifies the payload protocol carried by a frame, or,
// when its value is below EtherTypeMax, an 802.3 length field.
type EtherType uint16

const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
	EtherTypeIPv6 EtherType = 0x86DD
	// EtherTypeMax is the boundary below which the EtherType field is
	// instead interpreted as an 802.3 frame length.
	EtherTypeMax EtherType = 0x0600
)

// MAC is a 6-byte hardware address.
type MAC [6]byte

// Broadcast is the all-ones hardware address.
var Broadcast = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ErrShortFrame is returned when a buffer is too small to contain a
// valid Ethernet header and FCS.
var ErrShortFrame = errors.New("ethernet: frame shorter than header and FCS")

// ErrBadFCS is returned by Parse when VerifyFCS is requested and the
// trailing CRC-32 does not match the computed checksum of the frame.
var ErrBadFCS = errors.New("ethernet: frame check sequence mismatch")

// Frame is a parsed Ethernet II frame. Payload aliases the buffer Parse
// was given; it must not outlive that buffer's reuse.
type Frame struct {
	Dst       MAC
	Src       MAC
	EtherType EtherType
	Payload   []byte
	FCS       uint32
}

// ParseOptions controls optional validation Parse performs beyond
// structural bounds checking.
type ParseOptions struct {
	// VerifyFCS recomputes the CRC-32 over dst+src+ethertype+payload
	// and compares it against the frame's trailing FCS.
	VerifyFCS bool
}

// Parse decodes an Ethernet II frame out of buf. If opts.VerifyFCS is
// set and the checksum does not match, Parse returns the decoded frame
// together with ErrBadFCS so callers can choose to log and drop it.
func Parse(buf []byte, opts ParseOptions) (Frame, error) {
	if len(buf) < HeaderSize+FCSSize {
		return Frame{}, ErrShortFrame
	}
	c := wire.NewCursor(buf)
	var f Frame
	var err error
	if f.Dst, err = c.ReadMAC(); err != nil {
		return Frame{}, err
	}
	if f.Src, err = c.ReadMAC(); err != nil {
		return Frame{}, err
	}
	etherTypeOrLen, err := c.ReadU16()
	if err != nil {
		return Frame{}, err
	}
	f.EtherType = EtherType(etherTypeOrLen)

	payloadSize := len(buf) - HeaderSize - FCSSize
	if f.EtherType < EtherTypeMax {
		payloadSize = int(etherTypeOrLen)
	}
	if c.Remaining() < payloadSize+FCSSize {
		return Frame{}, ErrShortFrame
	}
	f.Payload, err = c.Borrow(payloadSize)
	if err != nil {
		return Frame{}, err
	}
	// Skip any 802.3 padding between the declared payload size and the
	// trailing FCS so the cursor lands exactly on the FCS field.
	c.Seek(len(buf) - FCSSize)
	f.FCS, err = c.ReadU32()
	if err != nil {
		return Frame{}, err
	}
	if opts.VerifyFCS {
		want := CRC32(0, buf[:len(buf)-FCSSize])
		if want != f.FCS {
			return f, ErrBadFCS
		}
	}
	return f, nil
}

// Emit writes a frame for dst/src/etherType/payload into buf, padding
// to MinFrameSize and appending a freshly computed CRC-32 seeded with
// seed. It returns the number of bytes written. seed is normally 0;
// non-zero seeds exist to support chained-CRC emission, see the arp
// and ipv4 packages' ChainedCRC option.
func Emit(buf []byte, dst, src MAC, etherType EtherType, payload []byte, seed uint32) (int, error) {
	bodyLen := HeaderSize + len(payload)
	padTo := bodyLen
	if padTo < MinFrameSize-FCSSize {
		padTo = MinFrameSize - FCSSize
	}
	total := padTo + FCSSize
	if len(buf) < total {
		return 0, ErrShortFrame
	}
	c := wire.NewCursor(buf)
	if err := c.WriteMAC(dst); err != nil {
		return 0, err
	}
	if err := c.WriteMAC(src); err != nil {
		return 0, err
	}
	if err := c.WriteU16(uint16(etherType)); err != nil {
		return 0, err
	}
	if err := c.WriteBytes(payload); err != nil {
		return 0, err
	}
	if pad := padTo - bodyLen; pad > 0 {
		if err := c.WriteZeros(pad); err != nil {
			return 0, err
		}
	}
	crc := CRC32(seed, buf[:padTo])
	if err := c.WriteU32(crc); err != nil {
		return 0, err
	}
	return total, nil
}

// crcTable is the standard reflected CRC-32 table for polynomial
// 0xEDB88320.
var crcTable = func() [256]uint32 {
	var t [256]uint32
	const poly = 0xEDB88320
	for i := range t {
		crc := uint32(i)
		for bit := 0; bit < 8; bit++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ poly
			} else {
				crc >>= 1
			}
		}
		t[i] = crc
	}
	return t
}()

// CRC32 computes the reflected CRC-32 (polynomial 0xEDB88320, init/final
// XOR 0xFFFFFFFF) over b, continuing from seed. Passing 0 as seed
// computes an independent CRC; passing a previous frame's CRC chains
// it, per the ChainedCRC behavior documented on the arp and ipv4
// handlers.
func CRC32(seed uint32, b []byte) uint32 {
	crc := seed ^ 0xFFFFFFFF
	for _, by := range b {
		crc = crcTable[byte(crc)^by] ^ (crc >> 8)
	}
	return crc ^ 0xFFFFFFFF
}
