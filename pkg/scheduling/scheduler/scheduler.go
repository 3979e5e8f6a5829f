package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	tferrors "github.com/vnykmshr/tickflow/pkg/common/errors"
	"github.com/vnykmshr/tickflow/pkg/logx"
	"github.com/vnykmshr/tickflow/pkg/metrics"
	"github.com/vnykmshr/tickflow/pkg/scheduling/job"
	"github.com/vnykmshr/tickflow/pkg/scheduling/worker"
)

// Config holds scheduler configuration.
type Config struct {
	// Context is the parent context of every job body.
	Context context.Context

	Logger logx.Logger

	// Metrics receives job and worker metrics. Nil disables metrics.
	Metrics *metrics.Registry

	// TimingWindow is the per-worker sample buffer size (default: worker.DefaultWindow).
	TimingWindow int

	// RetainTiming makes a worker recreated after a sweep inherit the timing
	// history of the worker it replaces. When false the history starts over.
	// The timing generation is incremented in both cases.
	RetainTiming bool

	// LockOSThread pins every worker goroutine to its own OS thread.
	LockOSThread bool

	// OnJobComplete is called on the worker goroutine after each job returns.
	OnJobComplete func(name string, j *job.Job)
}

// WorkerInfo describes one registered worker for observability.
type WorkerInfo struct {
	Name     string             `json:"name"`
	State    string             `json:"state"`
	JobID    string             `json:"job_id,omitempty"`
	JobState string             `json:"job_state,omitempty"`
	Elapsed  time.Duration      `json:"elapsed"`
	Timeout  time.Duration      `json:"timeout"`
	Timing   worker.TimingStats `json:"timing"`
}

// Scheduler owns the name -> worker registry. Workers are created lazily on
// the first submission of a name and removed only by Sweep or Close.
type Scheduler struct {
	ctx          context.Context
	log          logx.Logger
	metrics      *metrics.Registry
	window       int
	retainTiming bool
	lockThread   bool
	onComplete   func(string, *job.Job)

	mu      sync.Mutex
	workers map[string]*worker.Worker
	retired map[string]*worker.Timing
	closed  bool
}

// New creates a scheduler with default configuration.
func New() *Scheduler {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a scheduler with custom configuration.
func NewWithConfig(cfg Config) *Scheduler {
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}

	return &Scheduler{
		ctx:          ctx,
		log:          cfg.Logger.With(logx.String("component", "scheduler")),
		metrics:      cfg.Metrics,
		window:       cfg.TimingWindow,
		retainTiming: cfg.RetainTiming,
		lockThread:   cfg.LockOSThread,
		onComplete:   cfg.OnJobComplete,
		workers:      make(map[string]*worker.Worker),
		retired:      make(map[string]*worker.Timing),
	}
}

// Submit hands j to the worker bound to name, creating the worker if needed.
// It returns false without disturbing anything when the worker's current job
// has started and is not yet terminal. Submit never blocks on job execution.
func (s *Scheduler) Submit(name string, j *job.Job) bool {
	if name == "" || j == nil {
		s.log.Warn("invalid submission", logx.String("job", name), logx.Bool("nil_job", j == nil))
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	w, ok := s.workers[name]
	if !ok {
		w = s.spawnLocked(name)
		s.workers[name] = w
		s.setWorkerGaugeLocked()
	}
	accepted := w.Assign(j)
	s.mu.Unlock()

	if !accepted {
		s.log.Debug("submission rejected, previous run in flight", logx.String("job", name))
		if s.metrics != nil {
			s.metrics.JobsRejected.WithLabelValues(name).Inc()
		}
		return false
	}
	if s.metrics != nil {
		s.metrics.JobsSubmitted.WithLabelValues(name).Inc()
	}
	return true
}

// spawnLocked starts a worker for name, handing it the timing buffer of a
// previously reclaimed worker when there is one.
func (s *Scheduler) spawnLocked(name string) *worker.Worker {
	timing := s.retired[name]
	if timing != nil {
		delete(s.retired, name)
		timing.Restart(s.retainTiming)
	}

	return worker.NewWithConfig(worker.Config{
		Name:          name,
		Context:       s.ctx,
		Timing:        timing,
		Window:        s.window,
		LockOSThread:  s.lockThread,
		Logger:        s.log,
		OnJobComplete: s.jobComplete,
	})
}

// Sweep reclaims every worker whose running job is over budget: the job is
// aborted with a timeout error, the worker is stopped and removed so the
// next submission of that name starts a fresh worker. Sweep only inspects
// timing fields and never waits on a worker. It returns the number of
// workers reclaimed.
func (s *Scheduler) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	reclaimed := 0
	for name, w := range s.workers {
		j := w.Current()
		if j == nil || j.State() != job.Running || !j.IsOverBudget() {
			continue
		}

		elapsed := j.Elapsed()
		j.Abort(tferrors.NewJobTimedOut(name, elapsed, j.Timeout()))
		w.Stop()
		delete(s.workers, name)
		s.retired[name] = w.Timing()
		reclaimed++

		s.log.Error("worker reclaimed, job over budget",
			logx.String("job", name),
			logx.String("job_id", j.ID()),
			logx.Duration("timeout", j.Timeout()),
			logx.Duration("elapsed", elapsed),
		)
		if s.metrics != nil {
			s.metrics.JobsTimedOut.WithLabelValues(name).Inc()
		}
	}

	if reclaimed > 0 {
		s.setWorkerGaugeLocked()
	}
	return reclaimed
}

// Workers returns a snapshot of every registered worker, sorted by name.
func (s *Scheduler) Workers() []WorkerInfo {
	s.mu.Lock()
	workers := make([]*worker.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()

	infos := make([]WorkerInfo, 0, len(workers))
	for _, w := range workers {
		info := WorkerInfo{
			Name:   w.Name(),
			State:  w.State().String(),
			Timing: w.Timing().Snapshot(),
		}
		if j := w.Current(); j != nil {
			info.JobID = j.ID()
			info.JobState = j.State().String()
			info.Elapsed = j.Elapsed()
			info.Timeout = j.Timeout()
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Current returns the job held by the worker bound to name, or nil.
func (s *Scheduler) Current(name string) *job.Job {
	s.mu.Lock()
	w := s.workers[name]
	s.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Current()
}

// Len returns the number of registered workers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// Close stops every worker and rejects further submissions. The returned
// channel closes once all worker goroutines have exited.
func (s *Scheduler) Close() <-chan struct{} {
	s.mu.Lock()
	s.closed = true
	stopped := make([]<-chan struct{}, 0, len(s.workers))
	for name, w := range s.workers {
		stopped = append(stopped, w.Stop())
		delete(s.workers, name)
	}
	s.setWorkerGaugeLocked()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, ch := range stopped {
			<-ch
		}
	}()
	return done
}

func (s *Scheduler) jobComplete(name string, j *job.Job) {
	err := j.Err()
	switch {
	case errors.Is(err, tferrors.ErrJobTimedOut):
		// Counted and logged by Sweep.
	case err != nil:
		s.log.Warn("job failed",
			logx.String("job", name),
			logx.String("job_id", j.ID()),
			logx.Duration("elapsed", j.Elapsed()),
			logx.Err(err),
		)
		s.metrics.ObserveJob(name, j.Elapsed(), false)
	default:
		s.metrics.ObserveJob(name, j.Elapsed(), true)
	}

	if s.onComplete != nil {
		s.onComplete(name, j)
	}
}

func (s *Scheduler) setWorkerGaugeLocked() {
	if s.metrics != nil {
		s.metrics.Workers.Set(float64(len(s.workers)))
	}
}
