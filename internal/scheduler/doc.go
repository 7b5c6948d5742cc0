// Package scheduler dispatches the jobs of admitted runs over a bounded
// worker pool, respecting the partial order imposed by `needs`.
//
// Each run is driven by a single-writer event loop: completion reports,
// cancellation sweeps and group preemption all arrive as events on one
// ordered channel, so a "job completed" can never race a "group cancelled"
// into a lost update. When both arrive for the same job, cancellation wins.
//
// The scheduler also enforces concurrency groups across runs: admitting a
// run whose group key matches an in-flight run with cancel-in-progress set
// first transitions all of the prior run's non-terminal jobs to cancelled.
package scheduler
