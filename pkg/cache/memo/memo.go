package memo

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/vnykmshr/tickflow/pkg/cache/stats"
	tferrors "github.com/vnykmshr/tickflow/pkg/common/errors"
	"github.com/vnykmshr/tickflow/pkg/logx"
)

// ComputeFunc produces the value for key. It may block on remote reads.
type ComputeFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Config holds the parameters of a Reader.
type Config[K comparable, V any] struct {
	// Name identifies the cache in statistics and errors. Required.
	Name string

	// Compute produces a value on a miss. Required.
	Compute ComputeFunc[K, V]

	// Epoch returns the current invalidation generation. Required.
	Epoch func() uint64

	// Validity defaults to FrameValidity.
	Validity Validity

	// OnUpdate is called after every successful compute, on the goroutine
	// that ran it, before the result is released to waiting readers.
	OnUpdate func(key K, value V)

	Logger logx.Logger
}

// call is one in-flight compute. Its result, failure included, is handed
// to the readers that joined it.
type call[V any] struct {
	done  chan struct{}
	epoch uint64
	gen   uint64

	val V
	err error
	// abandoned is set when compute failed because its caller's context
	// ended. Joined readers run compute themselves instead of sharing that.
	abandoned bool
}

type entry[V any] struct {
	mu       sync.Mutex
	value    V
	has      bool
	stamp    uint64
	gen      uint64
	inflight *call[V]
	// detached is set once the entry has left the reader's map and its
	// counters have been folded into the cache totals.
	detached bool

	sourceReads atomic.Uint64
	cacheReads  atomic.Uint64
	evictions   atomic.Uint64
}

// lookup returns the stored value if it is valid at epoch.
func (e *entry[V]) lookup(valid Validity, epoch uint64) (V, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.has && valid(e.stamp, epoch) {
		return e.value, true
	}
	var zero V
	return zero, false
}

// drop clears the stored value and reports whether there was one.
func (e *entry[V]) drop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detached {
		return false
	}
	return e.dropLocked()
}

func (e *entry[V]) dropLocked() bool {
	e.gen++
	if !e.has {
		return false
	}
	var zero V
	e.value = zero
	e.has = false
	e.evictions.Add(1)
	return true
}

// detach drops the value, marks the entry removed and returns its final
// counters. Later reads through e are tallied on the reader.
func (e *entry[V]) detach() stats.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dropLocked()
	e.detached = true
	return e.snapshot()
}

func (e *entry[V]) snapshot() stats.Snapshot {
	return stats.Snapshot{
		SourceReads: e.sourceReads.Load(),
		CacheReads:  e.cacheReads.Load(),
		Evictions:   e.evictions.Load(),
	}
}

// Reader memoizes Compute per key. Within one validity window each key is
// computed at most once, however many goroutines call Get.
type Reader[K comparable, V any] struct {
	name     string
	compute  ComputeFunc[K, V]
	epoch    func() uint64
	valid    Validity
	onUpdate func(K, V)
	log      logx.Logger

	mu      sync.RWMutex
	entries map[K]*entry[V]
	removed stats.Snapshot
}

// New creates a Reader from cfg. It panics on a missing name, compute
// function or epoch source.
func New[K comparable, V any](cfg Config[K, V]) *Reader[K, V] {
	if cfg.Name == "" {
		panic("memo: cache name cannot be empty")
	}
	if cfg.Compute == nil {
		panic("memo: compute function cannot be nil")
	}
	if cfg.Epoch == nil {
		panic("memo: epoch source cannot be nil")
	}
	valid := cfg.Validity
	if valid == nil {
		valid = FrameValidity
	}

	return &Reader[K, V]{
		name:     cfg.Name,
		compute:  cfg.Compute,
		epoch:    cfg.Epoch,
		valid:    valid,
		onUpdate: cfg.OnUpdate,
		log:      cfg.Logger.With(logx.String("cache", cfg.Name)),
		entries:  make(map[K]*entry[V]),
	}
}

// Name returns the cache name.
func (r *Reader[K, V]) Name() string { return r.name }

func (r *Reader[K, V]) entry(key K) *entry[V] {
	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.entries[key]; !ok {
		e = &entry[V]{}
		r.entries[key] = e
	}
	return e
}

// tally counts one read on e, or on the cache totals if e was removed
// while the read was in progress.
func (r *Reader[K, V]) tally(e *entry[V], source bool) {
	e.mu.Lock()
	if !e.detached {
		if source {
			e.sourceReads.Add(1)
		} else {
			e.cacheReads.Add(1)
		}
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	r.mu.Lock()
	if source {
		r.removed.SourceReads++
	} else {
		r.removed.CacheReads++
	}
	r.mu.Unlock()
}

// Get returns the value for key, computing it if the stored value is absent
// or no longer valid. Concurrent callers for the same key share one compute
// and all observe its result, including a failure.
//
// A compute failure is returned as a *errors.ComputeError and nothing is
// stored; the next Get tries again. If ctx ends while waiting on another
// caller's compute, Get returns the context's error and the call is not
// counted in the statistics.
func (r *Reader[K, V]) Get(ctx context.Context, key K) (V, error) {
	e := r.entry(key)

	for {
		e.mu.Lock()
		epoch := r.epoch()
		if e.has && r.valid(e.stamp, epoch) {
			v := e.value
			e.mu.Unlock()
			r.tally(e, false)
			return v, nil
		}

		c := e.inflight
		if c == nil {
			return r.fill(ctx, e, key, epoch)
		}
		// A flight started before an invalidation cannot answer this read.
		joined := c.gen == e.gen
		e.mu.Unlock()

		select {
		case <-c.done:
		case <-ctx.Done():
			var zero V
			return zero, context.Cause(ctx)
		}

		if joined && !c.abandoned && r.valid(c.epoch, epoch) {
			r.tally(e, false)
			return c.val, c.err
		}
	}
}

// fill runs compute as the single flight for e. It is called with e.mu held
// and releases it before computing.
func (r *Reader[K, V]) fill(ctx context.Context, e *entry[V], key K, epoch uint64) (v V, err error) {
	c := &call[V]{done: make(chan struct{}), epoch: epoch, gen: e.gen}
	e.inflight = c
	e.mu.Unlock()

	defer func() {
		c.val, c.err = v, err
		c.abandoned = err != nil && ctx.Err() != nil
		e.mu.Lock()
		e.inflight = nil
		e.mu.Unlock()
		close(c.done)
	}()

	r.tally(e, true)
	v, err = r.invoke(ctx, key)
	if err != nil {
		r.log.Debug("compute failed", logx.Any("key", key), logx.Err(err))
		var zero V
		return zero, tferrors.NewComputeError(r.name, key, err)
	}

	e.mu.Lock()
	// An invalidation during compute means v may predate it; hand it to
	// this caller but do not keep it.
	if e.gen == c.gen {
		e.value = v
		e.has = true
		e.stamp = epoch
	}
	e.mu.Unlock()

	if r.onUpdate != nil {
		r.onUpdate(key, v)
	}
	return v, nil
}

func (r *Reader[K, V]) invoke(ctx context.Context, key K) (v V, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()
	return r.compute(ctx, key)
}

// Peek returns the stored value without computing or counting a read.
// ok is false when there is no value valid at the current epoch.
func (r *Reader[K, V]) Peek(key K) (v V, ok bool) {
	r.mu.RLock()
	e, exists := r.entries[key]
	r.mu.RUnlock()
	if !exists {
		return v, false
	}
	return e.lookup(r.valid, r.epoch())
}

// Invalidate drops the stored value for key so the next Get recomputes it.
// Evictions are counted only when a value was actually dropped.
func (r *Reader[K, V]) Invalidate(key K) bool {
	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return e.drop()
}

// InvalidateAll drops every stored value and returns how many were dropped.
func (r *Reader[K, V]) InvalidateAll() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dropped := 0
	for _, e := range r.entries {
		if e.drop() {
			dropped++
		}
	}
	return dropped
}

// Remove deletes the entry for key. Its counters stay in the cache totals.
func (r *Reader[K, V]) Remove(key K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return false
	}
	r.removed = r.removed.Add(e.detach())
	delete(r.entries, key)
	return true
}

// Clear deletes every entry and returns how many there were. Counters of
// the deleted entries stay in the cache totals.
func (r *Reader[K, V]) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.entries)
	for key, e := range r.entries {
		r.removed = r.removed.Add(e.detach())
		delete(r.entries, key)
	}
	return n
}

// Len returns the number of entries.
func (r *Reader[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Stats returns the cache's counters summed over every entry it has held.
func (r *Reader[K, V]) Stats() stats.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.removed
	for _, e := range r.entries {
		s = s.Add(e.snapshot())
	}
	s.Name = r.name
	s.Count = len(r.entries)
	return s
}

// EntryStats returns the counters of a single key.
func (r *Reader[K, V]) EntryStats(key K) (stats.Snapshot, bool) {
	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return stats.Snapshot{}, false
	}
	s := e.snapshot()
	s.Name = fmt.Sprintf("%s[%v]", r.name, key)
	s.Count = 1
	return s, true
}
