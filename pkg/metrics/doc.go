// Package metrics provides Prometheus instrumentation for tickflow components.
//
// # Overview
//
// A Registry groups the job scheduling metrics. It is always built on a
// caller supplied prometheus.Registerer; there is no package-level default,
// so tests and embedded hosts can use isolated registries:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewRegistry(reg)
//
//	sched := scheduler.NewWithConfig(scheduler.Config{Metrics: m})
//
// Cache statistics are exported separately by stats.Collector, which reads
// every registered cache at scrape time.
//
// # Available Metrics
//
//   - tickflow_scheduler_jobs_submitted_total{job}: accepted submissions
//   - tickflow_scheduler_jobs_rejected_total{job}: submissions dropped because
//     the previous run was still in flight
//   - tickflow_scheduler_jobs_completed_total{job}
//   - tickflow_scheduler_jobs_failed_total{job}: body returned an error or panicked
//   - tickflow_scheduler_jobs_timed_out_total{job}: reclaimed by a sweep
//   - tickflow_scheduler_job_duration_seconds{job}: execution time histogram
//   - tickflow_scheduler_workers: registered workers
//   - tickflow_host_ticks_total: host ticks
//   - tickflow_host_epoch: current epoch
package metrics
