package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soypat/nettap/config"
	"github.com/soypat/nettap/device"
	"github.com/soypat/nettap/metrics"
	"github.com/soypat/nettap/stack"
)

func runCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "open the tap device and start serving ARP and ICMP traffic",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(*configPath)
		},
	}
}

func run(configPath string) error {
	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer log.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tap, err := device.NewTAP(device.Config{Name: cfg.Device})
	if err != nil {
		return fmt.Errorf("opening tap device: %w", err)
	}
	defer tap.Close()

	deviceMAC, err := tap.MACAddress()
	if err != nil {
		log.Warn("could not query device hardware address", zap.Error(err))
	}

	var rec *metrics.Recorder
	if cfg.MetricsAddr != "" {
		rec, err = metrics.NewRecorder(prometheus.DefaultRegisterer)
		if err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
		go serveMetrics(log, cfg.MetricsAddr)
	}

	s := stack.New(stack.Options{
		Device:       tap,
		DeviceMAC:    deviceMAC,
		PoolCapacity: cfg.PoolCapacity,
		BuddyOrders:  cfg.BuddyOrders,
		BuddyBlocks:  cfg.BuddyBlocks,
		ChainedCRC:   cfg.ChainedCRC,
		Log:          log,
		Metrics:      rec,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("nettapd serving", zap.String("device", tap.Name()), zap.String("device_ipv4", cfg.DeviceIPv4))
	if err := s.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stack run loop exited: %w", err)
	}
	return nil
}

func serveMetrics(log *zap.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("metrics listener failed", zap.Error(err))
		return
	}
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		log.Error("metrics server stopped", zap.Error(err))
	}
}
