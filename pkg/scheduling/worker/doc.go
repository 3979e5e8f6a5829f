/*
Package worker provides Worker, a long-lived goroutine bound to a single job
name.

A worker idles until a job is assigned, runs it, records how long it took and
goes back to idle. It holds exactly one job slot: assigning while the current
job is running is rejected rather than queued, which is how tickflow keeps at
most one execution in flight per name.

	w := worker.New("CollectEntities")
	defer w.Stop()

	if !w.Assign(j) {
		// previous run still in progress; try again next tick
	}

Per-worker execution times are kept in a Timing ring buffer (DefaultWindow
samples) for observability.

Stop never waits for the running body. It cancels the body's context and
returns a channel that is closed once the goroutine has exited.
*/
package worker
