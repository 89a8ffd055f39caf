// Package stack drives the single-threaded packet-processing loop:
// read a frame from the device, dispatch it to the ARP or IPv4
// handler, and write back whatever reply comes out. Nothing here runs
// concurrently with itself, so the pool, allocator, and ARP cache it
// owns are exercised from one goroutine at a time during normal
// operation.
package stack

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/soypat/nettap/arp"
	"github.com/soypat/nettap/buddy"
	"github.com/soypat/nettap/device"
	"github.com/soypat/nettap/ethernet"
	"github.com/soypat/nettap/ipv4"
	"github.com/soypat/nettap/metrics"
	"github.com/soypat/nettap/pool"
)

// packetBuffer is the pool element type: a fixed array big enough to
// hold one full Ethernet frame, so Acquire never allocates.
type packetBuffer [ethernet.MaxFrameSize]byte

// Stack owns every piece of state the driver loop touches: the device,
// the two memory substrates, the ARP cache, and the protocol handlers.
type Stack struct {
	Device device.Device

	pool  *pool.Pool[packetBuffer]
	alloc *buddy.Allocator

	buddyBytesMu    sync.Mutex
	buddyBytesInUse int

	Cache       *arp.Cache
	ARPHandler  *arp.Handler
	IPv4Handler *ipv4.Handler

	Log     *zap.Logger
	Metrics *metrics.Recorder
}

// Options configures a new Stack.
type Options struct {
	Device       device.Device
	DeviceMAC    ethernet.MAC
	PoolCapacity int
	BuddyOrders  int
	BuddyBlocks  int
	ChainedCRC   bool
	Log          *zap.Logger
	Metrics      *metrics.Recorder
}

// New constructs a Stack ready to serve frames.
func New(opts Options) *Stack {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	cache := arp.NewCache()
	s := &Stack{
		Device:  opts.Device,
		pool:    pool.New[packetBuffer](opts.PoolCapacity),
		alloc:   buddy.New(opts.BuddyOrders, opts.BuddyBlocks),
		Cache:   cache,
		Log:     log,
		Metrics: opts.Metrics,
	}
	s.ARPHandler = &arp.Handler{
		Cache:           cache,
		DeviceMAC:       opts.DeviceMAC,
		ChainedCRC:      opts.ChainedCRC,
		AcquireFrame:    s.acquireFrame,
		AllocatePayload: s.allocatePayload,
	}
	s.IPv4Handler = &ipv4.Handler{
		DeviceMAC:       opts.DeviceMAC,
		ChainedCRC:      opts.ChainedCRC,
		AcquireFrame:    s.acquireFrame,
		AllocatePayload: s.allocatePayload,
	}
	return s
}

// acquireFrame hands the ARP and IPv4 handlers a full-size frame
// buffer cut from the same packet pool inbound frames use, instead of
// a fresh heap allocation per reply. If the pool is momentarily
// exhausted, it falls back to the heap rather than dropping the reply.
func (s *Stack) acquireFrame() ([]byte, func()) {
	ptr, idx, err := s.pool.Acquire()
	if err != nil {
		s.Log.Debug("packet pool exhausted, falling back to heap for reply frame", zap.Error(err))
		return make([]byte, ethernet.MaxFrameSize), func() {}
	}
	if s.Metrics != nil {
		s.Metrics.SetPoolInUse(s.pool.InUse())
	}
	return ptr[:], func() {
		s.pool.Release(idx)
		if s.Metrics != nil {
			s.Metrics.SetPoolInUse(s.pool.InUse())
		}
	}
}

// allocatePayload hands the ARP and IPv4 handlers a buddy-allocated
// buffer sized for the reply payload they are about to build, instead
// of a fresh heap allocation. If the arena is exhausted or size exceeds
// its largest order, it falls back to the heap.
func (s *Stack) allocatePayload(size int) ([]byte, func()) {
	buf, order, addr, err := s.alloc.Allocate(size)
	if err != nil {
		s.Log.Debug("buddy allocator exhausted, falling back to heap for reply payload", zap.Error(err))
		return make([]byte, size), func() {}
	}
	s.addBuddyBytesInUse(s.alloc.BlockSize(order))
	return buf[:size], func() {
		if err := s.alloc.Deallocate(order, addr); err == nil {
			s.addBuddyBytesInUse(-s.alloc.BlockSize(order))
		}
	}
}

func (s *Stack) addBuddyBytesInUse(delta int) {
	s.buddyBytesMu.Lock()
	s.buddyBytesInUse += delta
	n := s.buddyBytesInUse
	s.buddyBytesMu.Unlock()
	if s.Metrics != nil {
		s.Metrics.SetBuddyBytesInUse(n)
	}
}

// BuddyBytesInUse reports how many bytes are currently allocated out
// of the buddy allocator arena by in-flight reply payloads.
func (s *Stack) BuddyBytesInUse() int {
	s.buddyBytesMu.Lock()
	defer s.buddyBytesMu.Unlock()
	return s.buddyBytesInUse
}

// ServeOne reads and processes exactly one frame from the device. It
// returns a nil error for frames it legitimately declines to answer
// (unsupported protocol, non-request ARP, non-echo ICMP); those are
// logged and dropped rather than propagated, matching the stack's
// "parse errors never abort the loop" error model. A non-nil error
// indicates a device-level failure the caller should treat as fatal to
// this iteration of the loop (closed device, canceled context).
func (s *Stack) ServeOne(ctx context.Context) error {
	bufPtr, idx, err := s.pool.Acquire()
	if err != nil {
		return err
	}
	defer func() {
		s.pool.Release(idx)
		if s.Metrics != nil {
			s.Metrics.SetPoolInUse(s.pool.InUse())
		}
	}()

	n, err := s.Device.ReadFrame(ctx, bufPtr[:])
	if err != nil {
		return err
	}
	s.observeCacheSize()

	frame, err := ethernet.Parse(bufPtr[:n], ethernet.ParseOptions{})
	if err != nil {
		s.Log.Debug("dropping unparsable frame", zap.Error(err))
		s.observeFrame("in", "malformed")
		return nil
	}

	switch frame.EtherType {
	case ethernet.EtherTypeARP:
		s.observeFrame("in", "arp")
		_, replyBuf, release, err := s.ARPHandler.Handle(frame)
		if err != nil {
			if !errors.Is(err, arp.ErrUnsupportedOp) {
				s.Log.Debug("arp handling failed", zap.Error(err))
			}
			return nil
		}
		defer release()
		s.observeFrame("out", "arp")
		return s.Device.WriteFrame(ctx, replyBuf)

	case ethernet.EtherTypeIPv4:
		s.observeFrame("in", "ipv4")
		_, replyBuf, release, err := s.IPv4Handler.Handle(frame)
		if err != nil {
			s.Log.Debug("ipv4 handling failed", zap.Error(err))
			return nil
		}
		defer release()
		s.observeFrame("out", "icmp")
		return s.Device.WriteFrame(ctx, replyBuf)

	default:
		s.observeFrame("in", "unsupported")
		return nil
	}
}

func (s *Stack) observeFrame(dir, kind string) {
	if s.Metrics != nil {
		s.Metrics.ObserveFrame(dir, kind)
	}
}

func (s *Stack) observeCacheSize() {
	if s.Metrics != nil {
		s.Metrics.SetARPCacheSize(s.Cache.Len())
	}
}

// Run calls ServeOne in a loop until ctx is canceled or ServeOne
// returns an error.
func (s *Stack) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.ServeOne(ctx); err != nil {
			return err
		}
	}
}

// Allocator exposes the buddy allocator so debug/metrics paths can read
// its utilization without the stack needing bespoke accessors for
// every field.
func (s *Stack) Allocator() *buddy.Allocator { return s.alloc }

// PoolInUse reports the packet buffer pool's current utilization.
func (s *Stack) PoolInUse() int { return s.pool.InUse() }
