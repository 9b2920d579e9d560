// Package queue implements the priority job scheduler: one QueueManager per
// resource class (attr, config, checksum, fetch, build, install, package,
// clean), each holding a priority-ordered queue, a list of active jobs, and
// a stalled list for jobs that lost a race for an exclusive resource.
//
// Job carries priority and load and a work contract; Manager owns
// admission. Job.Priority is a live method rather than a stored field
// because a port's priority changes as the dependency graph propagates
// increases — the manager always reads the current value when sorting.
package queue

import "errors"

// ErrStalled is returned by Job.Start to indicate the job cannot proceed
// right now because an exclusive resource (a distfile lock, the config
// lock) is held elsewhere. The manager moves the job to its stalled list
// and tries the next candidate; Start must leave no partial state behind
// when it returns this error.
var ErrStalled = errors.New("queue: job stalled")

// Job is a unit of scheduled work. Implementations are expected to be
// pointer types so queue membership can be tested by identity.
type Job interface {
	// Priority orders admission; higher runs first. Read fresh on every
	// sort, since a port's priority can grow after the job was queued.
	Priority() int

	// Load is the job's resource cost against its queue's load cap.
	Load() int

	// Start begins the job's work against mgr, having already been moved
	// into mgr's active list. Returning ErrStalled (directly or wrapped)
	// tells the manager to move the job to the stalled list instead; any
	// other non-nil error is a caller bug (queue jobs signal failure
	// through their own completion signals, not through Start's
	// return value).
	Start(mgr *Manager) error
}
