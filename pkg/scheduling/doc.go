/*
Package scheduling groups the execution primitives of the tick loop.

  - job: a named body with a time budget and a one-way state machine
  - worker: a dedicated goroutine that runs one job at a time for one name
  - scheduler: creates workers lazily, rejects submissions for busy names,
    and reclaims workers whose job overran its budget

A minimal loop:

	sched := scheduler.New()
	defer func() { <-sched.Close() }()

	for range ticker.C {
		sched.Sweep()
		sched.Submit("Collect", job.New("Collect", 100*time.Millisecond, collect))
	}

Job bodies receive a context that is canceled when the job is aborted. A
body that ignores it keeps running on its own, but its result is discarded
and its worker has already been replaced.
*/
package scheduling
