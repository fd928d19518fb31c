// Package eventlimit decides, per process, whether an error event should be
// forwarded to an error-reporting backend or dropped because its error group
// has exhausted a per-window volume budget.
//
// Events are grouped by fingerprint (see the fingerprint package) and counted
// against a fixed time window. The first N events of a group in a window pass,
// the rest are dropped; the next window starts fresh. This keeps high-volume
// issues flowing at a steady, limited rate instead of consuming the reporting
// quota or being silenced entirely.
//
// What this does protect against:
//   - one noisy error burning the backend event quota for the whole process
//   - high-cardinality error storms growing memory without bound (the
//     tracked-fingerprint map is hard-capped, idle groups are evicted)
//   - log/alert spam from repeat offenders, with callbacks for visibility
//     into what is being dropped
//
// What this does NOT protect against:
//   - fleet-wide volume: the budget is per process, N replicas send up to
//     N times the budget
//   - backend-side grouping disagreeing with the local fingerprint; the
//     local grouping is a deliberate approximation
//
// Every decision runs synchronously on the calling goroutine and never
// performs I/O, sleeps, or takes a process-wide lock around counting. Counts
// are not persisted: a restart (or an eviction) resets a group's budget.
package eventlimit
