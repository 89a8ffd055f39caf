//go:build linux

package device

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
	"github.com/soypat/nettap/ethernet"
)

// ifreqHWAddr mirrors the portion of struct ifreq the SIOCGIFHWADDR
// ioctl fills in: an interface name followed by a sockaddr whose
// sa_data carries the 6-byte hardware address starting at offset 2.
type ifreqHWAddr struct {
	name [unix.IFNAMSIZ]byte
	family uint16
	data   [14]byte
}

// queryMACAddress looks up name's hardware address via the
// SIOCGIFHWADDR ioctl, the same call the original tap device wrapper
// used to cache its own MAC address.
func queryMACAddress(name string) (ethernet.MAC, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return ethernet.MAC{}, fmt.Errorf("device: opening ioctl socket: %w", err)
	}
	defer unix.Close(fd)

	var ifr ifreqHWAddr
	copy(ifr.name[:], name)

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(unix.SIOCGIFHWADDR), uintptr(unsafe.Pointer(&ifr)))
	if errno != 0 {
		return ethernet.MAC{}, fmt.Errorf("device: SIOCGIFHWADDR: %w", errno)
	}
	var mac ethernet.MAC
	copy(mac[:], ifr.data[:6])
	return mac, nil
}
