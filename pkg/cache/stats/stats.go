// Package stats rolls up memoization counters from named caches.
package stats

import (
	"fmt"
	"sort"
	"sync"
)

// Snapshot is a point-in-time copy of one cache's counters.
type Snapshot struct {
	Name string `json:"name"`

	// Count is the number of entries currently held.
	Count int `json:"count"`

	// SourceReads counts Get calls that ran the compute function.
	SourceReads uint64 `json:"source_reads"`

	// CacheReads counts Get calls served from a valid stored value.
	CacheReads uint64 `json:"cache_reads"`

	// Evictions counts invalidations that dropped a stored value.
	Evictions uint64 `json:"evictions"`
}

// Reads is the total number of completed Get calls.
func (s Snapshot) Reads() uint64 {
	return s.SourceReads + s.CacheReads
}

// Coeff is the cache hit percentage, CacheReads / Reads * 100. It is 0 when
// nothing has been read.
func (s Snapshot) Coeff() float64 {
	total := s.Reads()
	if total == 0 {
		return 0
	}
	return float64(s.CacheReads) / float64(total) * 100
}

// Add returns the element-wise sum of s and o, keeping s's name.
func (s Snapshot) Add(o Snapshot) Snapshot {
	return Snapshot{
		Name:        s.Name,
		Count:       s.Count + o.Count,
		SourceReads: s.SourceReads + o.SourceReads,
		CacheReads:  s.CacheReads + o.CacheReads,
		Evictions:   s.Evictions + o.Evictions,
	}
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%s: count=%d source=%d cache=%d evicted=%d coeff=%.1f%%",
		s.Name, s.Count, s.SourceReads, s.CacheReads, s.Evictions, s.Coeff())
}

// Source is anything that reports cache counters under a stable name.
type Source interface {
	Name() string
	Stats() Snapshot
}

// Aggregator is a registry of named sources.
type Aggregator struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{sources: make(map[string]Source)}
}

// Register adds src. Names must be unique.
func (a *Aggregator) Register(src Source) error {
	if src == nil {
		return fmt.Errorf("stats source cannot be nil")
	}
	name := src.Name()
	if name == "" {
		return fmt.Errorf("stats source name cannot be empty")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.sources[name]; exists {
		return fmt.Errorf("stats source %q already registered", name)
	}
	a.sources[name] = src
	return nil
}

// Unregister removes the source registered under name.
func (a *Aggregator) Unregister(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.sources[name]; !ok {
		return false
	}
	delete(a.sources, name)
	return true
}

// Sources returns the registered sources sorted by name.
func (a *Aggregator) Sources() []Source {
	a.mu.RLock()
	out := make([]Source, 0, len(a.sources))
	for _, src := range a.sources {
		out = append(out, src)
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Snapshots collects one snapshot per source, sorted by name.
func (a *Aggregator) Snapshots() []Snapshot {
	sources := a.Sources()
	out := make([]Snapshot, len(sources))
	for i, src := range sources {
		snap := src.Stats()
		snap.Name = src.Name()
		out[i] = snap
	}
	return out
}

// Total sums every source into one snapshot named "total".
func (a *Aggregator) Total() Snapshot {
	total := Snapshot{Name: "total"}
	for _, snap := range a.Snapshots() {
		total = total.Add(snap)
	}
	return total
}
