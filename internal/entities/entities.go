// Package entities reads the entity table of the target process through the
// frame caches. It is the body of the CollectEntities job and of the
// built-in plugins.
//
// Image layout, little-endian, relative to the table header address:
//
//	+0x00 uint32 entity count
//	+0x08 uint64 pointer to the first entity record
//
// Each record is RecordSize bytes: uint32 id, float32 health, float32 x,
// float32 y.
package entities

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/vnykmshr/tickflow/pkg/cache/memo"
	"github.com/vnykmshr/tickflow/pkg/cache/stats"
	tfctx "github.com/vnykmshr/tickflow/pkg/common/context"
	"github.com/vnykmshr/tickflow/pkg/logx"
	"github.com/vnykmshr/tickflow/pkg/remote"
)

const (
	HeaderSize = 16
	RecordSize = 16

	// MaxEntities bounds the count read from the header.
	MaxEntities = 4096
)

// Entity is one decoded record.
type Entity struct {
	Addr   uint64
	ID     uint32
	Health float32
	X, Y   float32
}

// Collector owns the entity caches.
type Collector struct {
	mem    remote.Reader
	header uint64
	log    logx.Logger

	list     *memo.Value[[]uint64]
	entities *memo.Reader[uint64, Entity]

	latest atomic.Pointer[[]Entity]
}

// NewCollector creates a collector reading the table at header through mem.
// epoch is the host's epoch source.
func NewCollector(mem remote.Reader, header uint64, epoch func() uint64, log logx.Logger) *Collector {
	c := &Collector{mem: mem, header: header, log: log.With(logx.String("component", "entities"))}
	c.list = memo.NewValue(memo.ValueConfig[[]uint64]{
		Name:    "entity_list",
		Epoch:   epoch,
		Compute: c.readList,
		Logger:  log,
	})
	c.entities = memo.New(memo.Config[uint64, Entity]{
		Name:    "entities",
		Epoch:   epoch,
		Compute: c.readEntity,
		Logger:  log,
	})
	return c
}

// Caches returns both caches for registration with the host.
func (c *Collector) Caches() []stats.Source {
	return []stats.Source{c.list, c.entities}
}

// List returns the cache of entity addresses.
func (c *Collector) List() *memo.Value[[]uint64] { return c.list }

// Entities returns the per-address entity cache.
func (c *Collector) Entities() *memo.Reader[uint64, Entity] { return c.entities }

func (c *Collector) readList(ctx context.Context) ([]uint64, error) {
	count, err := remote.Uint32(ctx, c.mem, c.header)
	if err != nil {
		return nil, fmt.Errorf("entity count: %w", err)
	}
	if count > MaxEntities {
		return nil, fmt.Errorf("entity count %d exceeds %d", count, MaxEntities)
	}
	table, err := remote.Uint64(ctx, c.mem, c.header+8)
	if err != nil {
		return nil, fmt.Errorf("entity table: %w", err)
	}

	addrs := make([]uint64, count)
	for i := range addrs {
		addrs[i] = table + uint64(i)*RecordSize
	}
	return addrs, nil
}

func (c *Collector) readEntity(ctx context.Context, addr uint64) (Entity, error) {
	b, err := c.mem.Read(ctx, addr, RecordSize)
	if err != nil {
		return Entity{}, err
	}
	if len(b) < RecordSize {
		return Entity{}, fmt.Errorf("short entity record at %#x", addr)
	}
	return Entity{
		Addr:   addr,
		ID:     binary.LittleEndian.Uint32(b[0:]),
		Health: math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		X:      math.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
		Y:      math.Float32frombits(binary.LittleEndian.Uint32(b[12:])),
	}, nil
}

// Read returns every entity at the current epoch. Records are read at most
// once per epoch however many jobs call Read.
func (c *Collector) Read(ctx context.Context) ([]Entity, error) {
	addrs, err := c.list.Get(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entity, 0, len(addrs))
	for _, addr := range addrs {
		if err := tfctx.Checkpoint(ctx); err != nil {
			return nil, err
		}
		e, err := c.entities.Get(ctx, addr)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Collect is the CollectEntities job body. It publishes the entities read
// this epoch for Latest.
func (c *Collector) Collect(ctx context.Context) error {
	ents, err := c.Read(ctx)
	if err != nil {
		return err
	}
	c.latest.Store(&ents)
	return nil
}

// Latest returns the entities of the last successful Collect.
func (c *Collector) Latest() []Entity {
	if p := c.latest.Load(); p != nil {
		return *p
	}
	return nil
}

// Summary aggregates one epoch of entities.
type Summary struct {
	Count     int
	Alive     int
	AvgHealth float32
	Lowest    Entity
}

// Summarize computes a Summary. Lowest is the living entity with the least
// health.
func Summarize(ents []Entity) Summary {
	s := Summary{Count: len(ents)}
	var total float32
	for _, e := range ents {
		if e.Health <= 0 {
			continue
		}
		s.Alive++
		total += e.Health
		if s.Alive == 1 || e.Health < s.Lowest.Health {
			s.Lowest = e
		}
	}
	if s.Alive > 0 {
		s.AvgHealth = total / float32(s.Alive)
	}
	return s
}
