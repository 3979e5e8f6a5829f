package memo

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/vnykmshr/tickflow/internal/testutil"
)

func TestValue(t *testing.T) {
	epoch := newEpoch(1)
	var calls int64
	var last int64
	v := NewValue(ValueConfig[int64]{
		Name:  "local_player",
		Epoch: epoch.Now,
		Compute: func(context.Context) (int64, error) {
			return atomic.AddInt64(&calls, 1), nil
		},
		OnUpdate: func(n int64) { atomic.StoreInt64(&last, n) },
	})
	ctx := context.Background()

	testutil.AssertEqual(t, v.Name(), "local_player")

	_, ok := v.Peek()
	testutil.AssertEqual(t, ok, false)

	got, err := v.Get(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got, int64(1))
	got, _ = v.Get(ctx)
	testutil.AssertEqual(t, got, int64(1))

	peeked, ok := v.Peek()
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, peeked, int64(1))

	epoch.Advance()
	got, _ = v.Get(ctx)
	testutil.AssertEqual(t, got, int64(2))
	testutil.AssertEqual(t, atomic.LoadInt64(&last), int64(2))

	testutil.AssertEqual(t, v.Invalidate(), true)
	testutil.AssertEqual(t, v.InvalidateAll(), 0)

	s := v.Stats()
	testutil.AssertEqual(t, s.Count, 1)
	testutil.AssertEqual(t, s.SourceReads, uint64(2))
	testutil.AssertEqual(t, s.CacheReads, uint64(1))
	testutil.AssertEqual(t, s.Evictions, uint64(1))
}
