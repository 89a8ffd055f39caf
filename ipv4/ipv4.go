// Package ipv4 validates inbound IPv4 packets and answers ICMPv4 echo
// requests, the two operations this stack needs to keep a host
// reachable over a tap device.
package ipv4

import (
	"errors"
	"sync/atomic"

	"github.com/soypat/nettap/ethernet"
	"github.com/soypat/nettap/wire"
)

// HeaderSize is the size of a fixed (no-options) IPv4 header.
const HeaderSize = 20

// ICMPHeaderSize is the size of the fixed ICMP header (type, code,
// checksum) preceding any type-specific payload.
const ICMPHeaderSize = 4

const (
	Version4 uint8 = 4

	ProtoICMP uint8 = 1
	ProtoTCP  uint8 = 6
	ProtoUDP  uint8 = 17
)

const (
	ICMPTypeEchoReply   uint8 = 0
	ICMPTypeUnreachable uint8 = 3
	ICMPTypeEchoRequest uint8 = 8
)

// IPv4 is a 4-byte IPv4 address.
type IPv4 [4]byte

var ErrShortPacket = errors.New("ipv4: packet shorter than header")
var ErrBadVersion = errors.New("ipv4: header version is not 4")
var ErrBadIHL = errors.New("ipv4: header length field is too small")
var ErrTTLExpired = errors.New("ipv4: time to live is zero")
var ErrBadChecksum = errors.New("ipv4: header checksum does not verify")
var ErrUnsupportedProto = errors.New("ipv4: unsupported protocol")
var ErrUnsupportedICMPType = errors.New("ipv4: unsupported ICMP message type")

// Header is a parsed fixed IPv4 header. Options, when IHL>5, are left
// unparsed in the owning buffer.
type Header struct {
	Version     uint8
	IHL         uint8
	TOS         uint8
	TotalLength uint16
	ID          uint16
	Flags       uint16
	FragOffset  uint16
	TTL         uint8
	Protocol    uint8
	Checksum    uint16
	Src         IPv4
	Dst         IPv4
}

// OnesComplementSum computes the one's-complement 16-bit checksum over
// b: 16-bit words are summed with end-around carry folding, and an odd
// trailing byte is padded with a zero low byte. The header checksum
// field itself is included in the sum when verifying, so a correct
// checksum (with the checksum field populated) sums to 0xFFFF before
// the final complement, and the exported helper returns that
// complement directly (sum-then-NOT), matching the verification rule
// "whole header sums to 0" once the caller NOTs nothing further and
// just compares against 0.
func OnesComplementSum(b []byte) uint16 {
	var sum uint32
	n := len(b)
	i := 0
	for ; i+1 < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if i < n {
		sum += uint32(b[i]) << 8
	}
	for sum>>16 != 0 {
		sum = sum&0xFFFF + sum>>16
	}
	return ^uint16(sum)
}

// ParseHeader decodes the fixed 20-byte IPv4 header from buf and
// validates version, IHL, TTL and checksum per the invariants this
// stack enforces on every inbound packet.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrShortPacket
	}
	c := wire.NewCursor(buf)
	var h Header
	f1, err := c.ReadIPv4Fields1()
	if err != nil {
		return Header{}, err
	}
	h.Version, h.IHL = f1.Version, f1.IHL
	if h.Version != Version4 {
		return Header{}, ErrBadVersion
	}
	if h.IHL < 5 {
		return Header{}, ErrBadIHL
	}
	if h.TOS, err = c.ReadU8(); err != nil {
		return Header{}, err
	}
	if h.TotalLength, err = c.ReadU16(); err != nil {
		return Header{}, err
	}
	if h.ID, err = c.ReadU16(); err != nil {
		return Header{}, err
	}
	f2, err := c.ReadIPv4Fields2()
	if err != nil {
		return Header{}, err
	}
	h.Flags, h.FragOffset = f2.Flags, f2.FragOffset
	if h.TTL, err = c.ReadU8(); err != nil {
		return Header{}, err
	}
	if h.TTL == 0 {
		return Header{}, ErrTTLExpired
	}
	if h.Protocol, err = c.ReadU8(); err != nil {
		return Header{}, err
	}
	if h.Checksum, err = c.ReadU16(); err != nil {
		return Header{}, err
	}
	srcRaw, err := c.ReadU32()
	if err != nil {
		return Header{}, err
	}
	h.Src = ipv4FromU32(srcRaw)
	dstRaw, err := c.ReadU32()
	if err != nil {
		return Header{}, err
	}
	h.Dst = ipv4FromU32(dstRaw)

	if OnesComplementSum(buf[:HeaderSize]) != 0 {
		return Header{}, ErrBadChecksum
	}
	return h, nil
}

func ipv4FromU32(v uint32) IPv4 {
	return IPv4{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func u32FromIPv4(a IPv4) uint32 {
	return uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3])
}

// ICMPEcho is a parsed echo request or reply payload.
type ICMPEcho struct {
	ID       uint16
	Sequence uint16
	Data     []byte
}

// ICMPUnreachable is a parsed destination-unreachable payload: the
// unused word followed by as much of the offending IP header and
// leading payload as the original packet carried.
type ICMPUnreachable struct {
	Code     uint8
	Original []byte
}

// Packet is a parsed IPv4 packet carrying an ICMP message.
type Packet struct {
	Header
	ICMPType uint8
	ICMPCode uint8
	Echo     ICMPEcho
	Unreach  ICMPUnreachable
}

// ParseICMP decodes the ICMP portion of an IPv4 packet whose Header has
// already been validated by ParseHeader. buf must start at the IPv4
// header and include the full packet; bytes past the header's
// TotalLength (such as Ethernet padding) are ignored.
func ParseICMP(h Header, buf []byte) (Packet, error) {
	if h.Protocol != ProtoICMP {
		return Packet{}, ErrUnsupportedProto
	}
	if int(h.TotalLength) >= HeaderSize && int(h.TotalLength) <= len(buf) {
		buf = buf[:h.TotalLength]
	}
	body := buf[HeaderSize:]
	if len(body) < ICMPHeaderSize {
		return Packet{}, ErrShortPacket
	}
	p := Packet{Header: h}
	p.ICMPType = body[0]
	p.ICMPCode = body[1]
	rest := body[ICMPHeaderSize:]
	switch p.ICMPType {
	case ICMPTypeEchoRequest, ICMPTypeEchoReply:
		if len(rest) < 4 {
			return Packet{}, ErrShortPacket
		}
		p.Echo.ID = uint16(rest[0])<<8 | uint16(rest[1])
		p.Echo.Sequence = uint16(rest[2])<<8 | uint16(rest[3])
		p.Echo.Data = rest[4:]
	case ICMPTypeUnreachable:
		if len(rest) < 4 {
			return Packet{}, ErrShortPacket
		}
		p.Unreach.Code = p.ICMPCode
		p.Unreach.Original = rest[4:]
	default:
		return Packet{}, ErrUnsupportedICMPType
	}
	return p, nil
}

// Handler answers ICMPv4 echo requests by constructing an echo reply
// carried in a fresh IPv4 header with a monotonically increasing
// identification field.
type Handler struct {
	DeviceMAC ethernet.MAC
	nextID    uint32
	// ChainedCRC, when true, seeds the reply frame's CRC-32 with the
	// CRC of the frame it answers instead of computing an independent
	// checksum. Off by default.
	ChainedCRC bool

	// AcquireFrame, if set, hands back a full-size Ethernet frame
	// buffer and a func to return it once the caller is done writing
	// it to the device. Nil falls back to a plain heap allocation,
	// which is what the handler's own tests exercise.
	AcquireFrame func() (buf []byte, release func())
	// AllocatePayload, if set, hands back a buffer of the requested
	// size for the reply's IPv4+ICMP payload and a func to release it
	// once Emit has copied it into the frame buffer. Nil falls back to
	// a plain heap allocation.
	AllocatePayload func(size int) (buf []byte, release func())
}

func noop() {}

func (h *Handler) acquireFrame() ([]byte, func()) {
	if h.AcquireFrame != nil {
		return h.AcquireFrame()
	}
	return make([]byte, ethernet.MaxFrameSize), noop
}

func (h *Handler) allocatePayload(size int) ([]byte, func()) {
	if h.AllocatePayload != nil {
		return h.AllocatePayload(size)
	}
	return make([]byte, size), noop
}

// Handle answers an ICMP echo request carried in frame with an echo
// reply frame and a release func the caller must call once it is done
// with replyBuf. Any other ICMP type, or any non-ICMP protocol, is
// rejected without a reply.
func (h *Handler) Handle(frame ethernet.Frame) (reply ethernet.Frame, replyBuf []byte, release func(), err error) {
	ipHeader, err := ParseHeader(frame.Payload)
	if err != nil {
		return ethernet.Frame{}, nil, noop, err
	}
	pkt, err := ParseICMP(ipHeader, frame.Payload)
	if err != nil {
		return ethernet.Frame{}, nil, noop, err
	}
	if pkt.ICMPType != ICMPTypeEchoRequest {
		return ethernet.Frame{}, nil, noop, ErrUnsupportedICMPType
	}
	return h.replyEcho(frame, ipHeader, pkt)
}

// replyEcho builds the IPv4+ICMP reply using a placeholder-then-patch
// emission order: the IPv4 and ICMP headers are written with zeroed
// checksum and length fields first, then those fields are patched once
// every byte they cover has been written.
func (h *Handler) replyEcho(frame ethernet.Frame, reqHeader Header, pkt Packet) (ethernet.Frame, []byte, func(), error) {
	size := HeaderSize + ICMPHeaderSize + 4 + len(pkt.Echo.Data)
	payload, releasePayload := h.allocatePayload(size)
	defer releasePayload()
	c := wire.NewCursor(payload)

	ipStart := c.Pos()
	c.WriteIPv4Fields1(wire.IPv4Fields1{Version: Version4, IHL: 5})
	c.WriteU8(reqHeader.TOS)
	totalLenPos := c.Pos()
	c.WriteU16(0) // patched below
	id := uint16(atomic.AddUint32(&h.nextID, 1))
	c.WriteU16(id)
	c.WriteIPv4Fields2(wire.IPv4Fields2{Flags: 0, FragOffset: 0})
	c.WriteU8(64)
	c.WriteU8(ProtoICMP)
	ipChecksumPos := c.Pos()
	c.WriteU16(0) // patched below
	c.WriteU32(u32FromIPv4(reqHeader.Dst))
	c.WriteU32(u32FromIPv4(reqHeader.Src))

	icmpStart := c.Pos()
	c.WriteU8(ICMPTypeEchoReply)
	c.WriteU8(0)
	icmpChecksumPos := c.Pos()
	c.WriteU16(0) // patched below
	c.WriteU16(pkt.Echo.ID)
	c.WriteU16(pkt.Echo.Sequence)
	c.WriteBytes(pkt.Echo.Data)
	icmpEnd := c.Pos()

	totalLen := uint16(icmpEnd - ipStart)
	wire.NewCursor(payload[totalLenPos:]).WriteU16(totalLen)
	icmpChecksum := OnesComplementSum(payload[icmpStart:icmpEnd])
	wire.NewCursor(payload[icmpChecksumPos:]).WriteU16(icmpChecksum)
	ipChecksum := OnesComplementSum(payload[ipStart : ipStart+HeaderSize])
	wire.NewCursor(payload[ipChecksumPos:]).WriteU16(ipChecksum)

	seed := uint32(0)
	if h.ChainedCRC {
		seed = frame.FCS
	}
	buf, releaseFrame := h.acquireFrame()
	n, err := ethernet.Emit(buf, frame.Src, h.DeviceMAC, ethernet.EtherTypeIPv4, payload[:icmpEnd], seed)
	if err != nil {
		releaseFrame()
		return ethernet.Frame{}, nil, noop, err
	}
	out, err := ethernet.Parse(buf[:n], ethernet.ParseOptions{})
	if err != nil {
		releaseFrame()
		return ethernet.Frame{}, nil, noop, err
	}
	return out, buf[:n], releaseFrame, nil
}
