// Package remote adapts the injected read primitive of the attached process.
//
// How memory is physically read is outside this module; callers supply a
// Reader. The package adds an in-memory snapshot reader, little-endian
// decoding helpers and a frame-scoped caching wrapper.
package remote

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	tferrors "github.com/vnykmshr/tickflow/pkg/common/errors"
)

// ErrOutOfRange is returned for reads outside the readable region.
var ErrOutOfRange = errors.New("remote: address out of range")

// PointerSize is the width of a pointer in the target process.
const PointerSize = 8

// Reader reads size bytes at addr from the target process.
type Reader interface {
	Read(ctx context.Context, addr uint64, size int) ([]byte, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context, addr uint64, size int) ([]byte, error)

func (f ReaderFunc) Read(ctx context.Context, addr uint64, size int) ([]byte, error) {
	return f(ctx, addr, size)
}

// SnapshotReader serves reads from a captured memory image mapped at Base.
type SnapshotReader struct {
	base uint64
	data []byte
}

// NewSnapshotReader maps data at base. data is not copied.
func NewSnapshotReader(base uint64, data []byte) *SnapshotReader {
	return &SnapshotReader{base: base, data: data}
}

// LoadSnapshot reads an image file and maps it at base.
func LoadSnapshot(path string, base uint64) (*SnapshotReader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, tferrors.NewOperationError("remote", "load snapshot", err).WithContext(path)
	}
	return NewSnapshotReader(base, data), nil
}

// Base returns the address the image is mapped at.
func (s *SnapshotReader) Base() uint64 { return s.base }

// Len returns the image size in bytes.
func (s *SnapshotReader) Len() int { return len(s.data) }

// Read returns a copy of the requested bytes.
func (s *SnapshotReader) Read(ctx context.Context, addr uint64, size int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if size < 0 || addr < s.base {
		return nil, fmt.Errorf("%w: read %d bytes at %#x", ErrOutOfRange, size, addr)
	}
	off := addr - s.base
	if off > uint64(len(s.data)) || uint64(size) > uint64(len(s.data))-off {
		return nil, fmt.Errorf("%w: read %d bytes at %#x", ErrOutOfRange, size, addr)
	}
	out := make([]byte, size)
	copy(out, s.data[off:off+uint64(size)])
	return out, nil
}

func readExact(ctx context.Context, r Reader, addr uint64, size int) ([]byte, error) {
	b, err := r.Read(ctx, addr, size)
	if err != nil {
		return nil, err
	}
	if len(b) < size {
		return nil, fmt.Errorf("remote: short read at %#x: got %d of %d bytes", addr, len(b), size)
	}
	return b, nil
}

// Uint32 reads a little-endian uint32 at addr.
func Uint32(ctx context.Context, r Reader, addr uint64) (uint32, error) {
	b, err := readExact(ctx, r, addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Uint64 reads a little-endian uint64 at addr.
func Uint64(ctx context.Context, r Reader, addr uint64) (uint64, error) {
	b, err := readExact(ctx, r, addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Float32 reads a little-endian IEEE 754 float at addr.
func Float32(ctx context.Context, r Reader, addr uint64) (float32, error) {
	bits, err := Uint32(ctx, r, addr)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

// Pointer reads a pointer at addr and follows the offsets chain: each offset
// is added to the current pointer and the result dereferenced, except the
// last, which is only added.
func Pointer(ctx context.Context, r Reader, addr uint64, offsets ...uint64) (uint64, error) {
	p, err := Uint64(ctx, r, addr)
	if err != nil {
		return 0, err
	}
	for i, off := range offsets {
		if p == 0 {
			return 0, fmt.Errorf("remote: nil pointer at level %d from %#x", i, addr)
		}
		if i == len(offsets)-1 {
			return p + off, nil
		}
		if p, err = Uint64(ctx, r, p+off); err != nil {
			return 0, err
		}
	}
	return p, nil
}
