// Package metrics exposes Prometheus counters and gauges describing
// the stack's packet-processing activity: frames seen, ARP cache size,
// and the two memory substrates' utilization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder wraps the Prometheus collectors the stack updates as it
// processes frames. A nil *Recorder is valid and every method on it is
// a no-op, so instrumentation can be wired in optionally.
type Recorder struct {
	framesTotal      *prometheus.CounterVec
	arpCacheSize     prometheus.Gauge
	poolInUse        prometheus.Gauge
	buddyBytesInUse  prometheus.Gauge
}

// NewRecorder constructs a Recorder and registers its collectors with
// reg. Passing prometheus.DefaultRegisterer is the common case.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nettap_frames_total",
			Help: "Ethernet frames processed, partitioned by direction and kind.",
		}, []string{"dir", "kind"}),
		arpCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nettap_arp_cache_size",
			Help: "Number of resolved entries currently held in the ARP cache.",
		}),
		poolInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nettap_pool_in_use",
			Help: "Number of packet buffer pool slots currently acquired.",
		}),
		buddyBytesInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nettap_buddy_bytes_allocated",
			Help: "Bytes currently allocated out of the buddy allocator arena.",
		}),
	}
	for _, c := range []prometheus.Collector{r.framesTotal, r.arpCacheSize, r.poolInUse, r.buddyBytesInUse} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ObserveFrame increments the frame counter for a direction ("in" or
// "out") and kind ("arp", "icmp", "dropped", ...).
func (r *Recorder) ObserveFrame(dir, kind string) {
	if r == nil {
		return
	}
	r.framesTotal.WithLabelValues(dir, kind).Inc()
}

// SetARPCacheSize records the current number of cached ARP entries.
func (r *Recorder) SetARPCacheSize(n int) {
	if r == nil {
		return
	}
	r.arpCacheSize.Set(float64(n))
}

// SetPoolInUse records the current number of acquired pool slots.
func (r *Recorder) SetPoolInUse(n int) {
	if r == nil {
		return
	}
	r.poolInUse.Set(float64(n))
}

// SetBuddyBytesInUse records the current number of bytes allocated out
// of the buddy allocator arena.
func (r *Recorder) SetBuddyBytesInUse(n int) {
	if r == nil {
		return
	}
	r.buddyBytesInUse.Set(float64(n))
}
