package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistryObserveJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistry(reg)

	m.ObserveJob("CollectEntities", 10*time.Millisecond, true)
	m.ObserveJob("CollectEntities", 20*time.Millisecond, false)

	if got := testutil.ToFloat64(m.JobsCompleted.WithLabelValues("CollectEntities")); got != 1 {
		t.Errorf("completed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.JobsFailed.WithLabelValues("CollectEntities")); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.JobDuration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestNilRegistryIsSafe(t *testing.T) {
	var m *Registry
	m.ObserveJob("A", time.Millisecond, true)
}

func TestConfigBuild(t *testing.T) {
	if got := (Config{Enabled: false}).Build(); got != nil {
		t.Error("disabled config should build a nil registry")
	}

	reg := prometheus.NewRegistry()
	m := Config{
		Enabled:   true,
		Registry:  reg,
		Namespace: "overlay",
		Labels:    prometheus.Labels{"instance": "test"},
	}.Build()
	if m == nil {
		t.Fatal("enabled config should build a registry")
	}

	m.Ticks.Inc()
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "overlay_host_ticks_total" {
			found = true
			labels := f.GetMetric()[0].GetLabel()
			if len(labels) != 1 || labels[0].GetValue() != "test" {
				t.Errorf("constant label missing: %v", labels)
			}
		}
	}
	if !found {
		t.Error("overlay_host_ticks_total not registered")
	}
}
