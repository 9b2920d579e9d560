// Package stage implements the per-stage protocol — guard, complete
// shortcut, pre-make, finalise — and the stack builders that drive a port
// through all of one stack's stages in order, enqueueing each stage's Job
// as its predecessor completes. There is no per-stage class hierarchy:
// port.Port tracks stages_completed/CanRun/DependReady directly, so a
// single per-port completion signal plus a retry-on-event check is enough
// to answer "is this port ready to advance."
package stage

import (
	"portforge/port"
	"portforge/queue"
	"portforge/signal"
)

// Job implements the five-step Stage protocol generically. Only Complete,
// Check, and PreMake differ per stage; they're supplied as fields rather
// than through subclassing.
type Job struct {
	St   port.Stage
	Port *port.Port

	// Complete reports whether the stage's observable effect is already
	// in place. When true, Start finalises through Poster.Post rather
	// than running PreMake — finalise never runs inside Start itself.
	Complete func(p *port.Port) bool

	// Check is the Guard step's static pre-test. False keeps
	// the job stalled; the caller is expected to re-add it once
	// conditions may have changed (e.g. a shared lock was released).
	Check func(p *port.Port) bool

	// PreMake starts the stage's real work. It must arrange to call
	// done exactly once on the loop thread with the final
	// success/failure; post-make collapses straight into Finalise, since
	// a stage needing an async follow-up (Config's re-query) expresses
	// it as another PreMake invocation chained by the stack builder.
	// PreMake may instead return queue.ErrStalled having done nothing.
	PreMake func(p *port.Port, done func(failed bool)) error

	Poster signal.Poster

	// LoadWeight is the job's cost against its queue's load cap. Zero
	// means 1. Build jobs set it to the port's jobs_number so a -j8
	// build claims eight slots of the build queue's budget.
	LoadWeight int

	mgr *queue.Manager
}

// Priority reads the port's current priority, fresh on every queue sort.
func (j *Job) Priority() int { return j.Port.Priority }

// Load reports the job's resource cost, at least 1.
func (j *Job) Load() int {
	if j.LoadWeight > 1 {
		return j.LoadWeight
	}
	return 1
}

// Start implements queue.Job, running the Guard, Complete-shortcut and
// Pre-make steps.
func (j *Job) Start(mgr *queue.Manager) error {
	j.mgr = mgr
	j.Port.Begin(j.St)

	if j.Complete != nil && j.Complete(j.Port) {
		j.Poster.Post(func() { j.finalise(false) })
		return nil
	}

	if j.Check != nil && !j.Check(j.Port) {
		j.Port.Abort(j.St)
		return queue.ErrStalled
	}

	if err := j.PreMake(j.Port, func(failed bool) { j.finalise(failed) }); err != nil {
		j.Port.Abort(j.St)
		return err
	}
	return nil
}

func (j *Job) finalise(failed bool) {
	j.mgr.Done(j)
	j.Port.Finalise(j.St, failed)
}
