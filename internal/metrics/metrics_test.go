package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CallsTotal.WithLabelValues("answered").Inc()
	m.CallsActive.Inc()
	m.RegisterAttempts.Inc()
	m.Registered.Set(1)
	m.ResponsesDropped.Inc()
	m.DTMFSent.Inc()
	m.CallDuration.Observe(42)

	if got := testutil.ToFloat64(m.CallsTotal.WithLabelValues("answered")); got != 1 {
		t.Errorf("calls total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Registered); got != 1 {
		t.Errorf("registered gauge = %v, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) < 6 {
		t.Errorf("expected at least 6 metric families, got %d", len(families))
	}
}

func TestIsolatedRegistries(t *testing.T) {
	// Two instances must not collide, each registry is independent.
	m1 := New(prometheus.NewRegistry())
	m2 := New(prometheus.NewRegistry())

	m1.CallsActive.Inc()
	if got := testutil.ToFloat64(m2.CallsActive); got != 0 {
		t.Errorf("second registry gauge = %v, want 0", got)
	}
}
