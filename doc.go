/*
Package tickflow is a tick-driven job scheduler and frame-scoped read cache
for instrumenting a live process from the outside.

A host advances an epoch counter at a target rate. Every tick it reclaims
jobs that overran their budget and submits a fixed set of named jobs, each
onto its own dedicated worker. Remote reads go through caches that compute
a value at most once per epoch, however many jobs ask for it.

Scheduling (pkg/scheduling):
  - job: a named unit of work with a budget and a Pending -> Running ->
    Completed|Failed lifecycle
  - worker: one goroutine and one job slot per name, with a timing history
  - scheduler: the name -> worker registry, sweep, and cron-driven
    periodic jobs

Caching (pkg/cache):
  - memo: keyed and single-value memoizing readers validated against the epoch
  - stats: per-cache read counters, aggregation, and a Prometheus collector

Host (pkg/host):
  - the tick loop, plugins, and the report job

Example usage:

	h, _ := host.New(host.Config{TargetFPS: 60, Memory: snapshot, Logger: log})
	defer func() { <-h.Close() }()

	players := memo.New(memo.Config[uint64, Player]{
		Name:    "players",
		Epoch:   h.Epoch,
		Compute: readPlayer,
	})
	_ = h.RegisterCache(players)

	_ = h.Run(ctx)
*/
package tickflow
