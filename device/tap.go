package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/songgao/water"
	"github.com/soypat/nettap/ethernet"
)

// TAP is a Device backed by a Linux tap character device, opened
// through songgao/water with IFF_TAP|IFF_NO_PI semantics.
type TAP struct {
	name  string
	iface *water.Interface

	mu     sync.Mutex
	closed bool

	macOnce sync.Once
	mac     ethernet.MAC
	macErr  error
}

// Config describes how to open a TAP device.
type Config struct {
	// Name requests a specific interface name (e.g. "tap0"). Empty
	// lets the kernel choose one.
	Name string
	// Persistent, when true, keeps the interface alive after the
	// process that created it exits.
	Persistent bool
}

// NewTAP opens (or creates) a tap device per cfg.
func NewTAP(cfg Config) (*TAP, error) {
	iface, err := water.New(water.Config{
		DeviceType: water.TAP,
		PlatformSpecificParams: water.PlatformSpecificParams{
			Name:       cfg.Name,
			Persist:    cfg.Persistent,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("device: opening tap: %w", err)
	}
	return &TAP{name: iface.Name(), iface: iface}, nil
}

// Name returns the kernel-assigned or requested interface name.
func (t *TAP) Name() string { return t.name }

// MACAddress returns the interface's hardware address, queried once
// via SIOCGIFHWADDR and cached.
func (t *TAP) MACAddress() (ethernet.MAC, error) {
	t.macOnce.Do(func() {
		t.mac, t.macErr = queryMACAddress(t.name)
	})
	return t.mac, t.macErr
}

// ReadFrame blocks on the underlying device until a frame arrives or
// ctx is canceled. songgao/water's Read is not itself
// context-aware, so cancellation is observed only between reads; a
// close unblocks any in-flight read by closing the descriptor.
func (t *TAP) ReadFrame(ctx context.Context, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	n, err := t.iface.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("device: reading frame: %w", err)
	}
	return n, nil
}

// WriteFrame writes a complete frame to the device.
func (t *TAP) WriteFrame(ctx context.Context, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}
	_, err := t.iface.Write(buf)
	if err != nil {
		return fmt.Errorf("device: writing frame: %w", err)
	}
	return nil
}

// Close closes the underlying descriptor. Calling Close more than once
// is a no-op.
func (t *TAP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.iface.Close()
}
