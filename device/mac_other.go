//go:build !linux

package device

import (
	"errors"

	"github.com/soypat/nettap/ethernet"
)

var errNoIoctl = errors.New("device: hardware address query is only implemented on linux")

func queryMACAddress(name string) (ethernet.MAC, error) {
	return ethernet.MAC{}, errNoIoctl
}
