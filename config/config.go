// Package config loads nettapd's configuration from layered sources:
// built-in defaults, an optional YAML file, then environment variables
// prefixed NETTAP_, each layer overriding the last.
package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds every tunable the driver loop and its components need.
type Config struct {
	// Device is the tap interface name to open; empty lets the kernel
	// assign one.
	Device string `koanf:"device"`
	// DeviceIPv4 is this stack's own address. nettapd only reports it
	// in its startup log; the ARP and ICMP handlers do not read it and
	// answer with the address each request was sent to.
	DeviceIPv4 string `koanf:"device_ipv4"`
	// PoolCapacity is the number of packet buffers the object pool
	// keeps in reserve.
	PoolCapacity int `koanf:"pool_capacity"`
	// BuddyOrders and BuddyBlocks size the buddy allocator's arena:
	// BuddyBlocks blocks of size SmallestSize<<(BuddyOrders-1) each.
	BuddyOrders int `koanf:"buddy_orders"`
	BuddyBlocks int `koanf:"buddy_blocks"`
	// ChainedCRC gates the chained frame-check-sequence quirk; false
	// gives every reply frame its own independent checksum.
	ChainedCRC bool `koanf:"chained_crc"`
	// MetricsAddr, if non-empty, is the address the Prometheus
	// /metrics endpoint listens on.
	MetricsAddr string `koanf:"metrics_addr"`
}

// Defaults returns the built-in baseline configuration, matched before
// any file or environment overrides are layered on.
func Defaults() Config {
	return Config{
		Device:       "",
		DeviceIPv4:   "192.168.100.1",
		PoolCapacity: 256,
		BuddyOrders:  6,
		BuddyBlocks:  512,
		ChainedCRC:   false,
		MetricsAddr:  "",
	}
}

// Load builds a Config from defaults, an optional YAML file at path
// (skipped entirely if path is empty), and environment variables
// prefixed NETTAP_ (e.g. NETTAP_DEVICE_IPV4 maps to device_ipv4).
func Load(path string) (Config, error) {
	k := koanf.New(".")
	def := Defaults()
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"device":        def.Device,
		"device_ipv4":   def.DeviceIPv4,
		"pool_capacity": def.PoolCapacity,
		"buddy_orders":  def.BuddyOrders,
		"buddy_blocks":  def.BuddyBlocks,
		"chained_crc":   def.ChainedCRC,
		"metrics_addr":  def.MetricsAddr,
	}, "."), nil); err != nil {
		return Config{}, err
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, err
		}
	}

	if err := k.Load(env.Provider("NETTAP_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "NETTAP_"))
	}), nil); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
