// Package host runs the tick loop that drives the scheduler and the caches.
package host

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vnykmshr/tickflow/pkg/cache/stats"
	tferrors "github.com/vnykmshr/tickflow/pkg/common/errors"
	"github.com/vnykmshr/tickflow/pkg/common/validation"
	"github.com/vnykmshr/tickflow/pkg/logx"
	"github.com/vnykmshr/tickflow/pkg/metrics"
	"github.com/vnykmshr/tickflow/pkg/ratelimit/bucket"
	"github.com/vnykmshr/tickflow/pkg/remote"
	"github.com/vnykmshr/tickflow/pkg/scheduling/job"
	"github.com/vnykmshr/tickflow/pkg/scheduling/scheduler"
	"github.com/vnykmshr/tickflow/pkg/telemetry"
)

// Job names submitted by the host.
const (
	CollectJobName  = "CollectEntities"
	ReportJobName   = "Report"
	PluginJobPrefix = "Plugin_Tick_"
)

const (
	DefaultTargetFPS      = 60
	DefaultCollectTimeout = 500 * time.Millisecond
	DefaultReportTimeout  = 2 * time.Second
)

// Plugin is user extension logic run once per tick on its own worker.
type Plugin interface {
	Name() string
	Tick(ctx context.Context) error
}

type pluginFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (p pluginFunc) Name() string                   { return p.name }
func (p pluginFunc) Tick(ctx context.Context) error { return p.fn(ctx) }

// PluginFunc adapts a function to Plugin.
func PluginFunc(name string, fn func(ctx context.Context) error) Plugin {
	return pluginFunc{name: name, fn: fn}
}

// Publisher receives periodic reports.
type Publisher interface {
	Publish(ctx context.Context, r telemetry.Report) error
}

// Invalidator is implemented by caches that can drop every stored value.
type Invalidator interface {
	InvalidateAll() int
}

// Config holds host configuration.
type Config struct {
	// Scheduler configures the host's scheduler. Logger and Metrics default
	// to the host's.
	Scheduler scheduler.Config

	// Collect is the entity collection body submitted every tick. Optional.
	Collect        job.Body
	CollectTimeout time.Duration

	// Memory is the remote read primitive. When set, Memory() returns a
	// frame-cached view of it registered as cache "memory".
	Memory remote.Reader

	TargetFPS float64

	// ReportSchedule is a cron expression for the report job. Empty
	// disables reports.
	ReportSchedule string
	ReportTimeout  time.Duration
	Publisher      Publisher

	Metrics *metrics.Registry
	Logger  logx.Logger

	// Clock defaults to time.Now. Job budgets and report schedules use it.
	Clock func() time.Time
}

// TickStats summarizes one tick.
type TickStats struct {
	Epoch     uint64
	Reclaimed int
	Submitted int
	Rejected  int
}

// PluginInfo describes a registered plugin.
type PluginInfo struct {
	Name    string        `json:"name"`
	Enabled bool          `json:"enabled"`
	Timeout time.Duration `json:"timeout"`
}

type plugin struct {
	p       Plugin
	enabled bool
	timeout time.Duration
}

// Host owns the epoch counter and everything the tick loop touches. It is
// the explicit context object passed to components; there are no globals.
type Host struct {
	epoch atomic.Uint64

	sched    *scheduler.Scheduler
	periodic *scheduler.Periodic
	caches   *stats.Aggregator
	memory   remote.Reader
	pacer    *bucket.Bucket

	collect        job.Body
	collectTimeout time.Duration
	reportTimeout  time.Duration
	publisher      Publisher

	metrics *metrics.Registry
	log     logx.Logger
	now     func() time.Time

	mu      sync.RWMutex
	plugins map[string]*plugin
}

// New creates a host and its scheduler.
func New(cfg Config) (*Host, error) {
	fps := cfg.TargetFPS
	if fps == 0 {
		fps = DefaultTargetFPS
	}
	if err := validation.ValidatePositiveFloat("host", "TargetFPS", fps); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegativeDuration("host", "CollectTimeout", cfg.CollectTimeout); err != nil {
		return nil, err
	}
	collectTimeout := cfg.CollectTimeout
	if collectTimeout == 0 {
		collectTimeout = DefaultCollectTimeout
	}
	reportTimeout := cfg.ReportTimeout
	if reportTimeout <= 0 {
		reportTimeout = DefaultReportTimeout
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	// One token: a late tick runs at once but never lets the loop catch up
	// with a burst.
	pacer, err := bucket.New(bucket.Config{Rate: bucket.Limit(fps), Burst: 1, InitialTokens: -1})
	if err != nil {
		return nil, err
	}

	schedCfg := cfg.Scheduler
	if schedCfg.Logger.IsZero() {
		schedCfg.Logger = cfg.Logger
	}
	if schedCfg.Metrics == nil {
		schedCfg.Metrics = cfg.Metrics
	}
	sched := scheduler.NewWithConfig(schedCfg)

	h := &Host{
		sched:          sched,
		caches:         stats.NewAggregator(),
		pacer:          pacer,
		collect:        cfg.Collect,
		collectTimeout: collectTimeout,
		reportTimeout:  reportTimeout,
		publisher:      cfg.Publisher,
		metrics:        cfg.Metrics,
		log:            cfg.Logger.With(logx.String("component", "host")),
		now:            now,
		plugins:        make(map[string]*plugin),
	}
	h.periodic = scheduler.NewPeriodic(sched, time.Local)

	if cfg.Memory != nil {
		cached := remote.NewCachedReader("memory", cfg.Memory, h.Epoch, cfg.Logger)
		if err := h.caches.Register(cached); err != nil {
			<-sched.Close()
			return nil, err
		}
		h.memory = cached
	}

	if cfg.ReportSchedule != "" {
		if err := h.periodic.Add(ReportJobName, cfg.ReportSchedule, h.reportJob, now()); err != nil {
			<-sched.Close()
			return nil, tferrors.NewValidationError("host", "ReportSchedule", cfg.ReportSchedule, err.Error())
		}
	}
	return h, nil
}

// Epoch is the current tick index, the validity source of every
// frame-scoped cache.
func (h *Host) Epoch() uint64 { return h.epoch.Load() }

// Scheduler returns the host's scheduler.
func (h *Host) Scheduler() *scheduler.Scheduler { return h.sched }

// Periodic returns the cron submitter polled on every tick.
func (h *Host) Periodic() *scheduler.Periodic { return h.periodic }

// Caches returns the cache statistics registry.
func (h *Host) Caches() *stats.Aggregator { return h.caches }

// Memory returns the frame-cached remote reader, or nil when no Memory was
// configured.
func (h *Host) Memory() remote.Reader { return h.memory }

// RegisterCache adds a cache to the statistics registry. Caches that
// implement Invalidator are also reset by AreaChanged.
func (h *Host) RegisterCache(src stats.Source) error {
	return h.caches.Register(src)
}

// AddPlugin registers p, enabled, with the given per-tick budget.
func (h *Host) AddPlugin(p Plugin, timeout time.Duration) error {
	if err := validation.ValidateNotNil("host", "Plugin", p); err != nil {
		return err
	}
	if err := validation.ValidateNotEmpty("host", "PluginName", p.Name()); err != nil {
		return err
	}
	if err := validation.ValidateNonNegativeDuration("host", "PluginTimeout", timeout); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.plugins[p.Name()]; exists {
		return fmt.Errorf("plugin %q already registered", p.Name())
	}
	h.plugins[p.Name()] = &plugin{p: p, enabled: true, timeout: timeout}
	return nil
}

// SetPlugin enables or disables a plugin and updates its budget. A zero
// timeout keeps the current one. It returns false for unknown names.
func (h *Host) SetPlugin(name string, enabled bool, timeout time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	pl, ok := h.plugins[name]
	if !ok {
		return false
	}
	pl.enabled = enabled
	if timeout > 0 {
		pl.timeout = timeout
	}
	return true
}

// Plugins lists registered plugins sorted by name.
func (h *Host) Plugins() []PluginInfo {
	h.mu.RLock()
	out := make([]PluginInfo, 0, len(h.plugins))
	for name, pl := range h.plugins {
		out = append(out, PluginInfo{Name: name, Enabled: pl.enabled, Timeout: pl.timeout})
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetTargetFPS changes the tick rate of Run, effective from the next tick.
func (h *Host) SetTargetFPS(fps float64) error {
	if err := validation.ValidatePositiveFloat("host", "TargetFPS", fps); err != nil {
		return err
	}
	h.pacer.SetLimit(bucket.Limit(fps))
	return nil
}

// TargetFPS returns the current tick rate.
func (h *Host) TargetFPS() float64 { return float64(h.pacer.Limit()) }

// Tick advances the epoch, reclaims overrun workers, and submits this
// tick's jobs. It never waits for a job: work still running from an earlier
// tick simply causes a rejected submission.
func (h *Host) Tick() TickStats {
	st := TickStats{Epoch: h.epoch.Add(1)}
	if h.metrics != nil {
		h.metrics.Ticks.Inc()
		h.metrics.Epoch.Set(float64(st.Epoch))
	}

	st.Reclaimed = h.sched.Sweep()

	submit := func(name string, j *job.Job) {
		if h.sched.Submit(name, j) {
			st.Submitted++
		} else {
			st.Rejected++
		}
	}

	if h.collect != nil {
		submit(CollectJobName, h.newJob(CollectJobName, h.collectTimeout, h.collect))
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.plugins))
	for name, pl := range h.plugins {
		if pl.enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	jobs := make([]*job.Job, len(names))
	for i, name := range names {
		pl := h.plugins[name]
		jobs[i] = h.newJob(PluginJobPrefix+name, pl.timeout, pl.p.Tick)
	}
	h.mu.RUnlock()

	for _, j := range jobs {
		submit(j.Name(), j)
	}

	st.Submitted += h.periodic.Run(h.now())
	return st
}

func (h *Host) newJob(name string, timeout time.Duration, body job.Body) *job.Job {
	return job.NewWithConfig(job.Config{Name: name, Timeout: timeout, Body: body, Clock: h.now})
}

// Run ticks at the target rate until ctx is done.
func (h *Host) Run(ctx context.Context) error {
	h.log.Info("tick loop started",
		logx.Float64("target_fps", h.TargetFPS()),
		logx.Duration("interval", h.pacer.Limit().Interval()))
	defer h.log.Info("tick loop stopped", logx.Uint64("epoch", h.Epoch()))

	for {
		start := time.Now()
		if err := h.pacer.Wait(ctx); err != nil {
			return nil
		}
		if h.metrics != nil {
			h.metrics.TickWait.Observe(time.Since(start).Seconds())
		}
		st := h.Tick()
		if st.Reclaimed > 0 {
			h.log.Warn("overrun jobs reclaimed", logx.Uint64("epoch", st.Epoch), logx.Int("reclaimed", st.Reclaimed))
		}
	}
}

// AreaChanged drops every cached value. Call it when the remote process
// switches to a new area and every cached address becomes meaningless.
func (h *Host) AreaChanged() int {
	dropped := 0
	for _, src := range h.caches.Sources() {
		if inv, ok := src.(Invalidator); ok {
			dropped += inv.InvalidateAll()
		}
	}
	h.log.Info("area changed, caches invalidated", logx.Uint64("epoch", h.Epoch()), logx.Int("dropped", dropped))
	return dropped
}

// Report captures the current worker and cache state.
func (h *Host) Report() telemetry.Report {
	return telemetry.Report{
		Epoch:       h.Epoch(),
		PublishedAt: h.now(),
		Workers:     h.sched.Workers(),
		Caches:      h.caches.Snapshots(),
	}
}

func (h *Host) reportJob() *job.Job {
	return h.newJob(ReportJobName, h.reportTimeout, func(ctx context.Context) error {
		r := h.Report()
		for _, w := range r.Workers {
			h.log.Debug("worker timing",
				logx.String("job", w.Name),
				logx.String("state", w.State),
				logx.Duration("last", w.Timing.Last),
				logx.Duration("avg", w.Timing.Avg),
				logx.Duration("max", w.Timing.Max),
				logx.Int("generation", w.Timing.Generation),
			)
		}
		total := h.caches.Total()
		h.log.Info("cache report",
			logx.Uint64("epoch", r.Epoch),
			logx.Int("caches", len(r.Caches)),
			logx.Int("entries", total.Count),
			logx.Uint64("source_reads", total.SourceReads),
			logx.Uint64("cache_reads", total.CacheReads),
			logx.Uint64("evictions", total.Evictions),
			logx.Float64("coeff", total.Coeff()),
		)

		if h.publisher == nil {
			return nil
		}
		return h.publisher.Publish(ctx, r)
	})
}

// Close stops every worker. The returned channel closes when all worker
// goroutines have exited.
func (h *Host) Close() <-chan struct{} {
	return h.sched.Close()
}
