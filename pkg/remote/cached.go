package remote

import (
	"context"

	"github.com/vnykmshr/tickflow/pkg/cache/memo"
	"github.com/vnykmshr/tickflow/pkg/cache/stats"
	"github.com/vnykmshr/tickflow/pkg/logx"
)

// Region identifies one read.
type Region struct {
	Addr uint64
	Size int
}

// CachedReader memoizes reads by region for one epoch. Identical reads
// issued by different jobs within a tick hit the source once.
//
// Returned slices are shared between callers and must not be modified.
type CachedReader struct {
	mem *memo.Reader[Region, []byte]
}

// NewCachedReader wraps src. epoch is usually the host's Epoch method.
func NewCachedReader(name string, src Reader, epoch func() uint64, log logx.Logger) *CachedReader {
	return &CachedReader{mem: memo.New(memo.Config[Region, []byte]{
		Name:   name,
		Epoch:  epoch,
		Logger: log,
		Compute: func(ctx context.Context, rg Region) ([]byte, error) {
			return src.Read(ctx, rg.Addr, rg.Size)
		},
	})}
}

func (c *CachedReader) Read(ctx context.Context, addr uint64, size int) ([]byte, error) {
	return c.mem.Get(ctx, Region{Addr: addr, Size: size})
}

func (c *CachedReader) Name() string          { return c.mem.Name() }
func (c *CachedReader) Stats() stats.Snapshot { return c.mem.Stats() }
func (c *CachedReader) InvalidateAll() int    { return c.mem.InvalidateAll() }

// Prune drops every region entry. Regions are keyed by address, so without
// pruning a reader following moving objects grows without bound.
func (c *CachedReader) Prune() int {
	return c.mem.Clear()
}
