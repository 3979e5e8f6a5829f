package job

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	tferrors "github.com/vnykmshr/tickflow/pkg/common/errors"
)

// DefaultTimeout is the budget used when a job is created without one.
const DefaultTimeout = time.Second

// State is the lifecycle position of a Job.
type State int32

const (
	Pending State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether s is Completed or Failed.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// Body is the work a job performs. The context is canceled when the job is
// aborted; bodies should check it between slow steps.
type Body func(ctx context.Context) error

// Config holds the parameters of a Job.
type Config struct {
	// Name identifies the logical task. Required.
	Name string

	// Body is the work to run. Required.
	Body Body

	// Timeout is the budget a sweep compares elapsed time against.
	// Zero uses DefaultTimeout.
	Timeout time.Duration

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Job is a named unit of deferred work with a time budget.
// A Job runs at most once; it moves Pending -> Running -> Completed|Failed
// and never leaves a terminal state.
type Job struct {
	id      string
	name    string
	body    Body
	timeout time.Duration
	now     func() time.Time

	state atomic.Int32
	once  sync.Once
	done  chan struct{}

	mu        sync.Mutex
	startedAt time.Time
	elapsed   time.Duration
	err       error
	cancel    context.CancelCauseFunc
}

// New creates a job with the given name, budget and body.
func New(name string, timeout time.Duration, body Body) *Job {
	return NewWithConfig(Config{Name: name, Timeout: timeout, Body: body})
}

// NewWithConfig creates a job from cfg. It panics on an empty name, a nil
// body or a negative timeout, mirroring how other constructors in this
// module treat programmer errors.
func NewWithConfig(cfg Config) *Job {
	if cfg.Name == "" {
		panic("job name cannot be empty")
	}
	if cfg.Body == nil {
		panic("job body cannot be nil")
	}
	if cfg.Timeout < 0 {
		panic("job timeout cannot be negative")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &Job{
		id:      uuid.NewString(),
		name:    cfg.Name,
		body:    cfg.Body,
		timeout: timeout,
		now:     now,
		done:    make(chan struct{}),
	}
}

// ID is a unique identifier for this job instance, used to correlate logs.
func (j *Job) ID() string { return j.id }

// Name returns the logical task name.
func (j *Job) Name() string { return j.name }

// Timeout returns the job's budget.
func (j *Job) Timeout() time.Duration { return j.timeout }

// State returns the current lifecycle state.
func (j *Job) State() State { return State(j.state.Load()) }

// Started reports whether the job has left Pending.
func (j *Job) Started() bool { return j.State() != Pending }

// Done is closed once the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Err returns the failure recorded for a Failed job, nil otherwise.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// StartedAt returns when the job moved to Running; zero if it has not.
func (j *Job) StartedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.startedAt
}

// Elapsed returns the wall-clock time spent running. While Running it grows
// with the clock; once terminal it is frozen.
func (j *Job) Elapsed() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.elapsedLocked()
}

func (j *Job) elapsedLocked() time.Duration {
	switch State(j.state.Load()) {
	case Pending:
		return 0
	case Running:
		return j.now().Sub(j.startedAt)
	default:
		return j.elapsed
	}
}

// IsOverBudget reports whether the job has run longer than its timeout.
// Only a sweep acts on this; the job never cancels itself.
func (j *Job) IsOverBudget() bool {
	return j.Elapsed() > j.timeout
}

// Start moves the job from Pending to Running and records the start time.
// It returns false if the job had already left Pending.
func (j *Job) Start() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.state.CompareAndSwap(int32(Pending), int32(Running)) {
		return false
	}
	j.startedAt = j.now()
	return true
}

// Run executes the body once and records the outcome. It starts the job if
// the caller has not. Run never panics: a body error or panic marks the job
// Failed. If the job was aborted before or during the body, the body's
// result is discarded.
func (j *Job) Run(parent context.Context) {
	j.Start()
	if j.State() != Running {
		return
	}

	j.once.Do(func() {
		if parent == nil {
			parent = context.Background()
		}
		ctx, cancel := context.WithCancelCause(parent)
		defer cancel(nil)

		j.mu.Lock()
		j.cancel = cancel
		aborted := State(j.state.Load()) != Running
		j.mu.Unlock()
		if aborted {
			return
		}

		err := j.invoke(ctx)
		if err != nil {
			j.finish(Failed, func(elapsed time.Duration) error {
				return tferrors.NewJobFailed(j.name, err, elapsed)
			})
			return
		}
		j.finish(Completed, nil)
	})
}

func (j *Job) invoke(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return j.body(ctx)
}

// Abort marks a non-terminal job Failed with err and cancels the context its
// body runs under. The body is not interrupted; whatever it returns later is
// ignored. Abort returns false if the job was already terminal.
func (j *Job) Abort(err error) bool {
	if err == nil {
		err = tferrors.ErrJobFailed
	}
	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()

	ok := j.finish(Failed, func(time.Duration) error { return err })
	if ok && cancel != nil {
		cancel(err)
	}
	return ok
}

// finish moves the job into a terminal state exactly once.
func (j *Job) finish(to State, mkErr func(elapsed time.Duration) error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	from := State(j.state.Load())
	if from.Terminal() {
		return false
	}
	elapsed := j.elapsedLocked()
	if !j.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	j.elapsed = elapsed
	if mkErr != nil {
		j.err = mkErr(elapsed)
	}
	close(j.done)
	return true
}
