package benchmark

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vnykmshr/tickflow/internal/entities"
	"github.com/vnykmshr/tickflow/pkg/cache/memo"
	"github.com/vnykmshr/tickflow/pkg/host"
	"github.com/vnykmshr/tickflow/pkg/logx"
	"github.com/vnykmshr/tickflow/pkg/remote"
	"github.com/vnykmshr/tickflow/pkg/scheduling/job"
	"github.com/vnykmshr/tickflow/pkg/scheduling/scheduler"
)

const base = 0x600000

func image(n int) []byte {
	ents := make([]entities.Entity, n)
	for i := range ents {
		ents[i] = entities.Entity{ID: uint32(i + 1), Health: float32(i % 100)}
	}
	return entities.BuildImage(base, ents)
}

// BenchmarkHostTick measures the cost of one tick: sweep plus submission of
// the collect job and each plugin job.
func BenchmarkHostTick(b *testing.B) {
	for _, plugins := range []int{0, 4, 16} {
		b.Run(fmt.Sprintf("plugins-%d", plugins), func(b *testing.B) {
			h, err := host.New(host.Config{
				Collect: func(context.Context) error { return nil },
				Logger:  logx.Nop(),
			})
			if err != nil {
				b.Fatalf("create host: %v", err)
			}
			defer func() { <-h.Close() }()

			for i := 0; i < plugins; i++ {
				p := host.PluginFunc(fmt.Sprintf("p%02d", i), func(context.Context) error { return nil })
				if err := h.AddPlugin(p, 0); err != nil {
					b.Fatalf("add plugin: %v", err)
				}
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				h.Tick()
			}
		})
	}
}

// BenchmarkSchedulerSubmitBusy measures a rejected submission, the common
// case under load.
func BenchmarkSchedulerSubmitBusy(b *testing.B) {
	sched := scheduler.New()
	release := make(chan struct{})
	defer func() {
		close(release)
		<-sched.Close()
	}()

	sched.Submit("busy", job.New("busy", time.Hour, func(context.Context) error {
		<-release
		return nil
	}))
	for sched.Current("busy").State() != job.Running {
		time.Sleep(time.Millisecond)
	}

	noop := func(context.Context) error { return nil }
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sched.Submit("busy", job.New("busy", time.Hour, noop))
	}
}

// BenchmarkEntityRead compares a tick's first read of the entity table with
// the cached reads that follow it within the same tick.
func BenchmarkEntityRead(b *testing.B) {
	for _, n := range []int{16, 256} {
		snap := remote.NewSnapshotReader(base, image(n))

		b.Run(fmt.Sprintf("fresh-%d", n), func(b *testing.B) {
			var epoch atomic.Uint64
			c := entities.NewCollector(snap, base, epoch.Load, logx.Nop())
			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				epoch.Add(1)
				if _, err := c.Read(ctx); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run(fmt.Sprintf("cached-%d", n), func(b *testing.B) {
			var epoch atomic.Uint64
			epoch.Store(1)
			c := entities.NewCollector(snap, base, epoch.Load, logx.Nop())
			ctx := context.Background()
			if _, err := c.Read(ctx); err != nil {
				b.Fatal(err)
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := c.Read(ctx); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkMemoParallelGet measures contended cache hits on one key.
func BenchmarkMemoParallelGet(b *testing.B) {
	var epoch atomic.Uint64
	epoch.Store(1)
	r := memo.New(memo.Config[int, int]{
		Name:    "bench",
		Epoch:   epoch.Load,
		Compute: func(_ context.Context, k int) (int, error) { return k * 2, nil },
	})

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			if _, err := r.Get(ctx, 7); err != nil {
				b.Error(err)
			}
		}
	})
}
