package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNilRecorderMethodsAreNoOps(t *testing.T) {
	var r *Recorder
	r.ObserveFrame("in", "arp")
	r.SetARPCacheSize(3)
	r.SetPoolInUse(1)
	r.SetBuddyBytesInUse(64)
}

func TestRecorderUpdatesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	r.SetARPCacheSize(5)
	r.ObserveFrame("in", "icmp")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range mfs {
		found[mf.GetName()] = true
		if mf.GetName() == "nettap_arp_cache_size" {
			if got := mf.Metric[0].GetGauge().GetValue(); got != 5 {
				t.Fatalf("arp cache size = %v, want 5", got)
			}
		}
	}
	if !found["nettap_frames_total"] {
		t.Fatal("nettap_frames_total not registered")
	}
	var _ *dto.MetricFamily
}
