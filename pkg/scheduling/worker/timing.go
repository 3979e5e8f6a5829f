package worker

import (
	"sync"
	"time"
)

// DefaultWindow is the number of samples kept per worker.
const DefaultWindow = 512

// TimingStats is a point-in-time view of a Timing buffer.
type TimingStats struct {
	// Last is the duration of the most recent execution.
	Last time.Duration `json:"last"`

	// Total is the sum of every recorded execution since the buffer was
	// created or last cleared.
	Total time.Duration `json:"total"`

	// Count is the number of executions recorded into Total.
	Count int64 `json:"count"`

	// Min, Max and Avg cover the samples currently in the window.
	Min time.Duration `json:"min"`
	Max time.Duration `json:"max"`
	Avg time.Duration `json:"avg"`

	// Samples is how many slots of the window are filled.
	Samples int `json:"samples"`

	// Generation counts how many times the worker owning this buffer was
	// recreated after a sweep. It starts at 0.
	Generation int `json:"generation"`
}

// Timing is a fixed-size ring buffer of execution durations.
type Timing struct {
	mu         sync.Mutex
	samples    []time.Duration
	next       int
	filled     bool
	last       time.Duration
	total      time.Duration
	count      int64
	generation int
}

// NewTiming creates a buffer holding window samples.
// A non-positive window uses DefaultWindow.
func NewTiming(window int) *Timing {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Timing{samples: make([]time.Duration, window)}
}

// Record adds one sample.
func (t *Timing) Record(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples[t.next] = d
	t.next++
	if t.next == len(t.samples) {
		t.next = 0
		t.filled = true
	}
	t.last = d
	t.total += d
	t.count++
}

// Restart marks the buffer as belonging to a recreated worker. With retain
// false every sample is dropped; with retain true history is kept. The
// generation advances either way so consumers can tell the two apart.
func (t *Timing) Restart(retain bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.generation++
	if retain {
		return
	}
	for i := range t.samples {
		t.samples[i] = 0
	}
	t.next = 0
	t.filled = false
	t.last = 0
	t.total = 0
	t.count = 0
}

// Snapshot returns the current statistics.
func (t *Timing) Snapshot() TimingStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.next
	if t.filled {
		n = len(t.samples)
	}
	st := TimingStats{
		Last:       t.last,
		Total:      t.total,
		Count:      t.count,
		Samples:    n,
		Generation: t.generation,
	}
	if n == 0 {
		return st
	}

	var sum time.Duration
	st.Min = t.samples[0]
	for _, d := range t.samples[:n] {
		sum += d
		if d < st.Min {
			st.Min = d
		}
		if d > st.Max {
			st.Max = d
		}
	}
	st.Avg = sum / time.Duration(n)
	return st
}
