// Package device abstracts the tap character device the stack reads
// Ethernet frames from and writes replies to.
package device

//go:generate mockgen -destination=mock/mock_device.go -package=mock_device github.com/soypat/nettap/device Device

import (
	"context"
	"errors"

	"github.com/soypat/nettap/ethernet"
)

// ErrClosed is returned by ReadFrame/WriteFrame once Close has been
// called.
var ErrClosed = errors.New("device: already closed")

// Device is anything that can hand the stack raw Ethernet frames and
// accept frames to transmit. TAP is the production implementation;
// tests substitute device/mock's generated mock.
type Device interface {
	// MACAddress returns this interface's own hardware address.
	MACAddress() (ethernet.MAC, error)
	// ReadFrame blocks until a frame is available, ctx is canceled, or
	// the device is closed, and copies the frame into buf.
	ReadFrame(ctx context.Context, buf []byte) (int, error)
	// WriteFrame writes buf, a complete Ethernet frame, to the device.
	WriteFrame(ctx context.Context, buf []byte) error
	// Close releases the underlying file descriptor. Close is
	// idempotent.
	Close() error
}
