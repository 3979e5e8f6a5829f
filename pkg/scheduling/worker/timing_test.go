package worker

import (
	"testing"
	"time"

	"github.com/vnykmshr/tickflow/internal/testutil"
)

func TestTimingSnapshot(t *testing.T) {
	tm := NewTiming(4)

	empty := tm.Snapshot()
	testutil.AssertEqual(t, empty.Samples, 0)
	testutil.AssertEqual(t, empty.Avg, time.Duration(0))

	for _, ms := range []int{10, 20, 30} {
		tm.Record(time.Duration(ms) * time.Millisecond)
	}

	st := tm.Snapshot()
	testutil.AssertEqual(t, st.Samples, 3)
	testutil.AssertEqual(t, st.Count, int64(3))
	testutil.AssertEqual(t, st.Last, 30*time.Millisecond)
	testutil.AssertEqual(t, st.Min, 10*time.Millisecond)
	testutil.AssertEqual(t, st.Max, 30*time.Millisecond)
	testutil.AssertEqual(t, st.Avg, 20*time.Millisecond)
	testutil.AssertEqual(t, st.Total, 60*time.Millisecond)
}

func TestTimingWraps(t *testing.T) {
	tm := NewTiming(2)
	tm.Record(100 * time.Millisecond)
	tm.Record(10 * time.Millisecond)
	tm.Record(20 * time.Millisecond)

	st := tm.Snapshot()
	testutil.AssertEqual(t, st.Samples, 2)
	testutil.AssertEqual(t, st.Max, 20*time.Millisecond)
	testutil.AssertEqual(t, st.Avg, 15*time.Millisecond)
	// Total covers every sample, not just the window.
	testutil.AssertEqual(t, st.Total, 130*time.Millisecond)
	testutil.AssertEqual(t, st.Count, int64(3))
}

func TestTimingRestart(t *testing.T) {
	t.Run("fresh", func(t *testing.T) {
		tm := NewTiming(8)
		tm.Record(time.Millisecond)
		tm.Restart(false)

		st := tm.Snapshot()
		testutil.AssertEqual(t, st.Generation, 1)
		testutil.AssertEqual(t, st.Count, int64(0))
		testutil.AssertEqual(t, st.Samples, 0)
	})

	t.Run("retained", func(t *testing.T) {
		tm := NewTiming(8)
		tm.Record(time.Millisecond)
		tm.Restart(true)

		st := tm.Snapshot()
		testutil.AssertEqual(t, st.Generation, 1)
		testutil.AssertEqual(t, st.Count, int64(1))
		testutil.AssertEqual(t, st.Samples, 1)
	})
}

func TestDefaultWindow(t *testing.T) {
	tm := NewTiming(0)
	for i := 0; i < DefaultWindow+10; i++ {
		tm.Record(time.Microsecond)
	}
	testutil.AssertEqual(t, tm.Snapshot().Samples, DefaultWindow)
}
