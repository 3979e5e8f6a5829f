package stats

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/tickflow/internal/testutil"
)

type fixedSource struct {
	name string
	snap Snapshot
}

func (f *fixedSource) Name() string    { return f.name }
func (f *fixedSource) Stats() Snapshot { return f.snap }

func TestCoeff(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want float64
	}{
		{"no reads", Snapshot{}, 0},
		{"all cached", Snapshot{CacheReads: 10}, 100},
		{"all source", Snapshot{SourceReads: 4}, 0},
		{"three quarters", Snapshot{SourceReads: 1, CacheReads: 3}, 75},
		{"hundred gets", Snapshot{SourceReads: 1, CacheReads: 99}, 99},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertEqual(t, tt.snap.Coeff(), tt.want)
		})
	}
}

func TestSnapshotString(t *testing.T) {
	s := Snapshot{Name: "camera", Count: 1, SourceReads: 1, CacheReads: 3}
	got := s.String()
	if !strings.Contains(got, "camera") || !strings.Contains(got, "coeff=75.0%") {
		t.Fatalf("unexpected string %q", got)
	}
}

func TestAggregator(t *testing.T) {
	a := NewAggregator()

	testutil.AssertNoError(t, a.Register(&fixedSource{name: "b", snap: Snapshot{Count: 2, SourceReads: 2, CacheReads: 8, Evictions: 1}}))
	testutil.AssertNoError(t, a.Register(&fixedSource{name: "a", snap: Snapshot{Count: 1, SourceReads: 3, CacheReads: 1}}))
	testutil.AssertError(t, a.Register(&fixedSource{name: "a"}))
	testutil.AssertError(t, a.Register(&fixedSource{}))
	testutil.AssertError(t, a.Register(nil))

	snaps := a.Snapshots()
	testutil.AssertEqual(t, len(snaps), 2)
	testutil.AssertEqual(t, snaps[0].Name, "a")
	testutil.AssertEqual(t, snaps[1].Name, "b")

	total := a.Total()
	testutil.AssertEqual(t, total, Snapshot{Name: "total", Count: 3, SourceReads: 5, CacheReads: 9, Evictions: 1})

	testutil.AssertEqual(t, a.Unregister("a"), true)
	testutil.AssertEqual(t, a.Unregister("a"), false)
	testutil.AssertEqual(t, len(a.Sources()), 1)
}

func TestCollector(t *testing.T) {
	a := NewAggregator()
	src := &fixedSource{name: "camera", snap: Snapshot{Count: 1, SourceReads: 1, CacheReads: 3}}
	testutil.AssertNoError(t, a.Register(src))

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(a, ""))

	expected := `
# HELP tickflow_cache_cache_reads_total Reads served from a valid stored value
# TYPE tickflow_cache_cache_reads_total counter
tickflow_cache_cache_reads_total{cache="camera"} 3
# HELP tickflow_cache_source_reads_total Reads that ran the compute function
# TYPE tickflow_cache_source_reads_total counter
tickflow_cache_source_reads_total{cache="camera"} 1
`
	err := promtest.GatherAndCompare(reg, strings.NewReader(expected),
		"tickflow_cache_cache_reads_total", "tickflow_cache_source_reads_total")
	testutil.AssertNoError(t, err)

	// Sources added later show up without re-registration.
	testutil.AssertNoError(t, a.Register(&fixedSource{name: "entities"}))
	n, err := promtest.GatherAndCount(reg, "tickflow_cache_entries")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 2)
}
