/*
Package scheduler provides the name -> worker registry at the core of the
tickflow tick loop.

Once per tick the host submits a small fixed set of named jobs and runs a
sweep:

	sched := scheduler.NewWithConfig(scheduler.Config{
		Logger:  log,
		Metrics: metrics.NewRegistry(reg),
	})
	defer func() { <-sched.Close() }()

	for range ticker.C {
		sched.Sweep()
		sched.Submit("CollectEntities", job.New("CollectEntities", 500*time.Millisecond, collect))
	}

Submission semantics:

  - The first submission of a name creates a dedicated worker for it.
  - A submission made while the previous job of that name is still running
    returns false and is dropped. Callers resubmit on a later tick; a
    rejection is an expected outcome under load, not an error.
  - A submission replaces a job that was assigned but never started.

Sweep:

Sweep reclaims workers whose running job has exceeded its budget. The job is
aborted (marked Failed with an errors.ErrJobTimedOut error and its context
canceled), the worker is stopped and removed, and the next submission of the
name creates a new worker. Sweep never waits for a body to return.

Timing history:

Each worker keeps a ring buffer of execution times, exposed through Workers.
When a reclaimed name is recreated, Config.RetainTiming decides whether the
new worker continues the old history or starts over. The Generation field
of the timing stats is incremented on every recreation in both modes.

Periodic:

Periodic submits jobs on cron schedules (robfig/cron syntax with seconds).
It has no goroutine of its own; the host calls Periodic.Run every tick.
*/
package scheduler
