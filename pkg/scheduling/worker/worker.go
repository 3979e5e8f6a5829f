package worker

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/vnykmshr/tickflow/pkg/logx"
	"github.com/vnykmshr/tickflow/pkg/scheduling/job"
)

// State is the worker's execution state.
type State int

const (
	Idle State = iota
	Executing
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Executing:
		return "executing"
	default:
		return "stopped"
	}
}

// Config holds configuration for a Worker.
type Config struct {
	// Name is the job name this worker is bound to. Required.
	Name string

	// Context is the parent of every job body context. Canceling it cancels
	// running bodies but does not stop the worker; use Stop for that.
	Context context.Context

	// Timing receives one sample per executed job. If nil a fresh buffer of
	// Window samples is created.
	Timing *Timing
	Window int

	// LockOSThread pins the worker goroutine to its own OS thread for its
	// whole lifetime.
	LockOSThread bool

	Logger logx.Logger

	// OnJobComplete is called on the worker goroutine after each job returns,
	// including jobs that were aborted while running.
	OnJobComplete func(name string, j *job.Job)
}

// Worker is one goroutine bound to one job name. It holds a single job slot
// and executes whatever job is assigned while it is idle.
type Worker struct {
	name       string
	timing     *Timing
	log        logx.Logger
	onComplete func(string, *job.Job)
	lockThread bool

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	current   *job.Job
	executing bool
	stopped   bool

	wake     chan struct{}
	stopCh   chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

// New creates and starts a worker for name.
func New(name string) *Worker {
	return NewWithConfig(Config{Name: name})
}

// NewWithConfig creates and starts a worker from cfg.
func NewWithConfig(cfg Config) *Worker {
	if cfg.Name == "" {
		panic("worker name cannot be empty")
	}

	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	timing := cfg.Timing
	if timing == nil {
		timing = NewTiming(cfg.Window)
	}

	w := &Worker{
		name:       cfg.Name,
		timing:     timing,
		log:        cfg.Logger.With(logx.String("worker", cfg.Name)),
		onComplete: cfg.OnJobComplete,
		lockThread: cfg.LockOSThread,
		ctx:        ctx,
		cancel:     cancel,
		wake:       make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		exited:     make(chan struct{}),
	}

	go w.run()
	return w
}

// Name returns the job name the worker is bound to.
func (w *Worker) Name() string { return w.name }

// Timing returns the worker's sample buffer.
func (w *Worker) Timing() *Timing { return w.timing }

// Current returns the job in the worker's slot, or nil.
func (w *Worker) Current() *job.Job {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// State reports whether the worker is idle, executing or stopped.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.stopped:
		return Stopped
	case w.executing:
		return Executing
	default:
		return Idle
	}
}

// Assign places j in the worker's slot and wakes the worker. It returns
// false without touching the slot when the current job has started and is
// not yet terminal, or when the worker has been stopped. A current job that
// was assigned but not yet started is replaced.
func (w *Worker) Assign(j *job.Job) bool {
	if j == nil {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return false
	}
	if cur := w.current; cur != nil && cur.Started() && !cur.State().Terminal() {
		return false
	}

	w.current = j
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

// Stop tears the worker down. The context of a running body is canceled and
// the goroutine exits as soon as that body returns. Stop does not wait; the
// returned channel is closed when the goroutine has exited.
func (w *Worker) Stop() <-chan struct{} {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		w.mu.Unlock()

		close(w.stopCh)
		w.cancel()
	})
	return w.exited
}

func (w *Worker) run() {
	defer close(w.exited)

	if w.lockThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	for {
		j := w.next()
		if j == nil {
			return
		}

		start := time.Now()
		j.Run(w.ctx)
		elapsed := time.Since(start)

		// A stopped worker's buffer may already belong to its replacement.
		// Recording under w.mu orders the check against Stop.
		w.mu.Lock()
		w.executing = false
		if !w.stopped {
			w.timing.Record(elapsed)
		}
		w.mu.Unlock()

		if err := j.Err(); err != nil {
			w.log.Debug("job ended with error",
				logx.String("job_id", j.ID()),
				logx.Duration("elapsed", elapsed),
				logx.Err(err),
			)
		}
		if w.onComplete != nil {
			w.onComplete(w.name, j)
		}
	}
}

// next blocks until there is a pending job to run or the worker is stopped.
// The job is claimed under the worker lock so Assign never sees a job that
// was picked up but not yet marked Running.
func (w *Worker) next() *job.Job {
	for {
		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			return nil
		}
		if j := w.current; j != nil && j.Start() {
			w.executing = true
			w.mu.Unlock()
			return j
		}
		w.mu.Unlock()

		select {
		case <-w.wake:
		case <-w.stopCh:
		}
	}
}
