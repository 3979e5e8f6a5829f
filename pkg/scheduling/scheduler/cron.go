package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/vnykmshr/tickflow/pkg/logx"
	"github.com/vnykmshr/tickflow/pkg/scheduling/job"
)

// Factory builds a fresh job for one periodic run.
type Factory func() *job.Job

// PeriodicEntry describes one registered periodic job.
type PeriodicEntry struct {
	Name       string
	Expression string
	NextRun    time.Time
	LastRun    time.Time
	Runs       int64
	Skipped    int64
}

type periodicEntry struct {
	PeriodicEntry
	schedule cron.Schedule
	factory  Factory
}

// Periodic submits jobs into a Scheduler on cron schedules. It owns no
// goroutine: the host calls Run once per tick, so periodic submissions
// happen on the tick thread like every other submission and obey the same
// at-most-one-in-flight rule. A run that finds the previous one still in
// flight is skipped, not queued.
type Periodic struct {
	sched    *Scheduler
	parser   cron.Parser
	location *time.Location
	log      logx.Logger

	mu      sync.Mutex
	entries map[string]*periodicEntry
}

// NewPeriodic creates a Periodic that submits into sched. Expressions use
// the six-field form with seconds, or descriptors such as "@every 10s".
func NewPeriodic(sched *Scheduler, location *time.Location) *Periodic {
	if location == nil {
		location = time.Local
	}
	return &Periodic{
		sched:    sched,
		parser:   cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		location: location,
		log:      sched.log.With(logx.String("component", "periodic")),
		entries:  make(map[string]*periodicEntry),
	}
}

// Add registers factory under name with a cron expression. The first run
// is the schedule's next activation after now.
func (p *Periodic) Add(name, expr string, factory Factory, now time.Time) error {
	if name == "" {
		return fmt.Errorf("periodic job name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("periodic job factory cannot be nil")
	}
	schedule, err := p.Validate(expr)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.entries[name]; exists {
		return fmt.Errorf("periodic job %q already exists, remove it first", name)
	}
	p.entries[name] = &periodicEntry{
		PeriodicEntry: PeriodicEntry{
			Name:       name,
			Expression: expr,
			NextRun:    schedule.Next(now.In(p.location)),
		},
		schedule: schedule,
		factory:  factory,
	}
	return nil
}

// Validate parses expr without registering anything.
func (p *Periodic) Validate(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, fmt.Errorf("cron expression cannot be empty")
	}
	schedule, err := p.parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// Remove unregisters name. It returns false if name was not registered.
func (p *Periodic) Remove(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[name]; !ok {
		return false
	}
	delete(p.entries, name)
	return true
}

// Run submits every entry that is due at now and advances its next run.
// It returns the number of jobs the scheduler accepted.
func (p *Periodic) Run(now time.Time) int {
	p.mu.Lock()
	due := make([]*periodicEntry, 0, len(p.entries))
	for _, e := range p.entries {
		if !now.Before(e.NextRun) {
			due = append(due, e)
			e.NextRun = e.schedule.Next(now.In(p.location))
			e.LastRun = now
		}
	}
	p.mu.Unlock()

	accepted := 0
	for _, e := range due {
		ok := p.sched.Submit(e.Name, e.factory())

		p.mu.Lock()
		if ok {
			e.Runs++
			accepted++
		} else {
			e.Skipped++
		}
		p.mu.Unlock()

		if !ok {
			p.log.Debug("periodic run skipped, previous run in flight", logx.String("job", e.Name))
		}
	}
	return accepted
}

// Entries lists registered periodic jobs ordered by next run.
func (p *Periodic) Entries() []PeriodicEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]PeriodicEntry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.PeriodicEntry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NextRun.Before(out[j].NextRun)
	})
	return out
}
