// Package arp maintains an IPv4-to-hardware-address resolution cache
// and answers ARP requests arriving over Ethernet, mirroring the
// request/reply exchange described in RFC 826.
package arp

import (
	"errors"
	"sync"

	"github.com/soypat/nettap/ethernet"
	"github.com/soypat/nettap/wire"
)

// HeaderSize is the fixed portion of an ARP header preceding the
// protocol-specific address fields.
const HeaderSize = 8

// PayloadIPv4Size is the size of the sender/target hardware and
// protocol address block for IPv4-over-Ethernet ARP.
const PayloadIPv4Size = 20

const (
	HWTypeEthernet uint16 = 1
	ProtoTypeIPv4  uint16 = 0x0800
)

const (
	OpRequest uint16 = 1
	OpReply   uint16 = 2
)

// IPv4 is a 4-byte IPv4 address.
type IPv4 [4]byte

// ErrShortPacket is returned when a buffer is too small to hold an ARP
// header and payload.
var ErrShortPacket = errors.New("arp: packet shorter than header and payload")

// ErrUnsupportedHardware is returned when the header's hardware or
// protocol type is not Ethernet-over-IPv4.
var ErrUnsupportedHardware = errors.New("arp: unsupported hardware or protocol type")

// ErrUnsupportedOp is returned by Handle when the opcode is not
// OpRequest; this stack never originates ARP requests of its own, so
// replies are not meaningful to receive and every other opcode is
// rejected.
var ErrUnsupportedOp = errors.New("arp: unsupported opcode")

// Header is a parsed ARP header, excluding the address payload.
type Header struct {
	HWType    uint16
	ProtoType uint16
	HWSize    uint8
	ProtoSize uint8
	Op        uint16
}

// PayloadIPv4 is the sender/target address block for Ethernet/IPv4 ARP.
type PayloadIPv4 struct {
	SenderHW MAC
	SenderPA IPv4
	TargetHW MAC
	TargetPA IPv4
}

// MAC is a 6-byte hardware address, aliasing ethernet.MAC's shape.
type MAC = ethernet.MAC

// Packet is a fully parsed ARP message.
type Packet struct {
	Header
	PayloadIPv4
}

// Parse decodes an ARP header and, if it describes Ethernet/IPv4
// addressing, its IPv4 payload out of buf.
func Parse(buf []byte) (Packet, error) {
	if len(buf) < HeaderSize+PayloadIPv4Size {
		return Packet{}, ErrShortPacket
	}
	c := wire.NewCursor(buf)
	var p Packet
	var err error
	if p.HWType, err = c.ReadU16(); err != nil {
		return Packet{}, err
	}
	if p.ProtoType, err = c.ReadU16(); err != nil {
		return Packet{}, err
	}
	if p.HWSize, err = c.ReadU8(); err != nil {
		return Packet{}, err
	}
	if p.ProtoSize, err = c.ReadU8(); err != nil {
		return Packet{}, err
	}
	if p.Op, err = c.ReadU16(); err != nil {
		return Packet{}, err
	}
	if p.HWType != HWTypeEthernet || p.ProtoType != ProtoTypeIPv4 {
		return Packet{}, ErrUnsupportedHardware
	}
	if p.SenderHW, err = c.ReadMAC(); err != nil {
		return Packet{}, err
	}
	if sa, err2 := c.ReadU32(); err2 != nil {
		return Packet{}, err2
	} else {
		p.SenderPA = ipv4FromU32(sa)
	}
	if p.TargetHW, err = c.ReadMAC(); err != nil {
		return Packet{}, err
	}
	if ta, err2 := c.ReadU32(); err2 != nil {
		return Packet{}, err2
	} else {
		p.TargetPA = ipv4FromU32(ta)
	}
	return p, nil
}

func ipv4FromU32(v uint32) IPv4 {
	return IPv4{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func u32FromIPv4(a IPv4) uint32 {
	return uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3])
}

// Entry is one resolved IPv4-to-hardware-address mapping.
type Entry struct {
	HWType uint16
	MAC    MAC
}

// Cache stores IPv4-to-hardware-address resolutions learned from
// inbound ARP traffic. The stack's driver loop is single-threaded, so
// the mutex exists only to let Cache be inspected safely from a
// concurrent metrics or debug path, not to support concurrent packet
// handling.
type Cache struct {
	mu      sync.RWMutex
	entries map[IPv4]Entry
}

// NewCache constructs an empty resolution cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[IPv4]Entry)}
}

// Lookup returns the cached entry for addr, if any.
func (c *Cache) Lookup(addr IPv4) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[addr]
	return e, ok
}

// Upsert records or overwrites the resolution for addr.
func (c *Cache) Upsert(addr IPv4, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[addr] = e
}

// Len reports the number of resolved entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a copy of every cached entry, keyed by address. It
// is meant for debug dumps and metrics, not the hot path.
func (c *Cache) Snapshot() map[IPv4]Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[IPv4]Entry, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Handler answers inbound ARP requests and learns resolutions from
// every well-formed ARP message it sees, request or otherwise.
type Handler struct {
	Cache *Cache
	// DeviceMAC is this stack's own hardware address, used as the
	// source address and sender hardware address of replies.
	DeviceMAC MAC
	// ChainedCRC, when true, seeds a reply frame's CRC-32 with the CRC
	// of the frame it is replying to instead of computing an
	// independent checksum. Off by default.
	ChainedCRC bool

	// AcquireFrame, if set, hands back a full-size Ethernet frame
	// buffer and a func to return it once the caller is done writing
	// it to the device. Nil falls back to a plain heap allocation,
	// which is what the handler's own tests exercise.
	AcquireFrame func() (buf []byte, release func())
	// AllocatePayload, if set, hands back a buffer of the requested
	// size for the reply's ARP payload and a func to release it once
	// Emit has copied it into the frame buffer. Nil falls back to a
	// plain heap allocation.
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

// Handle processes one inbound ARP-carrying Ethernet frame. It always
// upserts the cache with the sender's address, and for request
// messages, returns a reply frame ready to write to the device along
// with a release func the caller must call once it is done with
// replyBuf. For any other opcode it returns ErrUnsupportedOp after
// learning the sender's mapping.
func (h *Handler) Handle(frame ethernet.Frame) (reply ethernet.Frame, replyBuf []byte, release func(), err error) {
	pkt, err := Parse(frame.Payload)
	if err != nil {
		return ethernet.Frame{}, nil, noop, err
	}
	h.Cache.Upsert(pkt.SenderPA, Entry{HWType: pkt.HWType, MAC: pkt.SenderHW})

	if pkt.Op != OpRequest {
		return ethernet.Frame{}, nil, noop, ErrUnsupportedOp
	}

	payload, releasePayload := h.allocatePayload(HeaderSize + PayloadIPv4Size)
	defer releasePayload()
	c := wire.NewCursor(payload)
	c.WriteU16(pkt.HWType)
	c.WriteU16(pkt.ProtoType)
	c.WriteU8(pkt.HWSize)
	c.WriteU8(pkt.ProtoSize)
	c.WriteU16(OpReply)
	c.WriteMAC(h.DeviceMAC)
	c.WriteU32(u32FromIPv4(pkt.TargetPA))
	c.WriteMAC(pkt.SenderHW)
	c.WriteU32(u32FromIPv4(pkt.SenderPA))

	seed := uint32(0)
	if h.ChainedCRC {
		seed = frame.FCS
	}
	buf, releaseFrame := h.acquireFrame()
	n, err := ethernet.Emit(buf, frame.Src, h.DeviceMAC, ethernet.EtherTypeARP, payload, seed)
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
