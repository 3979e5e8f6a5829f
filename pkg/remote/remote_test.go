package remote

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/vnykmshr/tickflow/internal/testutil"
	"github.com/vnykmshr/tickflow/pkg/logx"
)

const base = 0x1000

// image builds a snapshot with a pointer chain:
// 0x1000 -> 0x1010, 0x1010+8 -> 0x1020, value at 0x1020+4.
func image() []byte {
	data := make([]byte, 64)
	binary.LittleEndian.PutUint64(data[0x00:], base+0x10)
	binary.LittleEndian.PutUint64(data[0x18:], base+0x20)
	binary.LittleEndian.PutUint32(data[0x24:], math.Float32bits(97.5))
	binary.LittleEndian.PutUint32(data[0x30:], 1234)
	return data
}

func TestSnapshotReader(t *testing.T) {
	r := NewSnapshotReader(base, image())
	ctx := context.Background()

	testutil.AssertEqual(t, r.Base(), uint64(base))
	testutil.AssertEqual(t, r.Len(), 64)

	b, err := r.Read(ctx, base+0x30, 4)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, binary.LittleEndian.Uint32(b), uint32(1234))

	// Reads return copies.
	b[0] = 0xff
	again, _ := r.Read(ctx, base+0x30, 4)
	testutil.AssertEqual(t, again[0], byte(0xd2))

	_, err = r.Read(ctx, base+60, 4)
	testutil.AssertNoError(t, err)

	for _, tc := range []struct {
		addr uint64
		size int
	}{
		{base - 1, 1},
		{base + 61, 4},
		{base + 64, 1},
		{base, -1},
		{math.MaxUint64, 8},
	} {
		if _, err := r.Read(ctx, tc.addr, tc.size); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Read(%#x, %d) = %v, want ErrOutOfRange", tc.addr, tc.size, err)
		}
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = r.Read(canceled, base, 1)
	testutil.AssertEqual(t, errors.Is(err, context.Canceled), true)
}

func TestLoadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")
	testutil.AssertNoError(t, os.WriteFile(path, image(), 0o600))

	r, err := LoadSnapshot(path, base)
	testutil.AssertNoError(t, err)
	v, err := Uint32(context.Background(), r, base+0x30)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, uint32(1234))

	_, err = LoadSnapshot(filepath.Join(t.TempDir(), "missing"), base)
	testutil.AssertError(t, err)
}

func TestDecoders(t *testing.T) {
	r := NewSnapshotReader(base, image())
	ctx := context.Background()

	u64, err := Uint64(ctx, r, base)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, u64, uint64(base+0x10))

	p, err := Pointer(ctx, r, base, 0x08, 0x04)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, p, uint64(base+0x24))

	f, err := Float32(ctx, r, p)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, f, float32(97.5))

	// A zero pointer in the chain is an error, not a read at 0.
	_, err = Pointer(ctx, r, base+0x08, 0x10)
	testutil.AssertError(t, err)

	_, err = Uint32(ctx, r, base+62)
	testutil.AssertEqual(t, errors.Is(err, ErrOutOfRange), true)
}

func TestShortRead(t *testing.T) {
	short := ReaderFunc(func(context.Context, uint64, int) ([]byte, error) {
		return []byte{1, 2}, nil
	})
	_, err := Uint32(context.Background(), short, 0)
	testutil.AssertError(t, err)
}

func TestCachedReader(t *testing.T) {
	snap := NewSnapshotReader(base, image())
	var reads int64
	counting := ReaderFunc(func(ctx context.Context, addr uint64, size int) ([]byte, error) {
		atomic.AddInt64(&reads, 1)
		return snap.Read(ctx, addr, size)
	})

	var epoch atomic.Uint64
	epoch.Store(1)
	c := NewCachedReader("memory", counting, epoch.Load, logx.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := Uint32(ctx, c, base+0x30)
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, v, uint32(1234))
	}
	testutil.AssertEqual(t, atomic.LoadInt64(&reads), int64(1))

	// A different size is a different region.
	Uint64(ctx, c, base+0x30)
	testutil.AssertEqual(t, atomic.LoadInt64(&reads), int64(2))

	epoch.Add(1)
	Uint32(ctx, c, base+0x30)
	testutil.AssertEqual(t, atomic.LoadInt64(&reads), int64(3))

	s := c.Stats()
	testutil.AssertEqual(t, s.Name, "memory")
	testutil.AssertEqual(t, s.SourceReads, uint64(3))
	testutil.AssertEqual(t, s.CacheReads, uint64(2))

	testutil.AssertEqual(t, c.InvalidateAll(), 2)
	testutil.AssertEqual(t, c.Prune(), 2)
	testutil.AssertEqual(t, c.Stats().Count, 0)
}
