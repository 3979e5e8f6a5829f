/*
Package job defines Job, the named and time-budgeted unit of work executed by
tickflow workers.

A job is created Pending, moved to Running by the worker that claims it, and
ends Completed or Failed:

	j := job.New("CollectEntities", 500*time.Millisecond, func(ctx context.Context) error {
		return collect(ctx)
	})

	go j.Run(ctx)
	<-j.Done()
	if err := j.Err(); err != nil {
		log.Printf("collect failed: %v", err)
	}

Run never panics past its own boundary. Errors and panics raised by the body
are recorded as a *errors.JobError matching errors.ErrJobFailed.

Jobs do not enforce their own budget. IsOverBudget is consulted by the
scheduler's sweep, which calls Abort with an errors.ErrJobTimedOut error.
Abort cancels the body's context so cooperative bodies can stop at their next
checkpoint; a body that ignores cancellation keeps running, but its result is
discarded and the job stays Failed.
*/
package job
