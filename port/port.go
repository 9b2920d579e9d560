package port

import (
	"time"

	"portforge/signal"
)

// InstallStatus is the port's install state relative to the recipe's
// declared version.
type InstallStatus int

const (
	Absent InstallStatus = iota
	Older
	Current
	Newer
)

func (s InstallStatus) String() string {
	switch s {
	case Absent:
		return "absent"
	case Older:
		return "older"
	case Current:
		return "current"
	case Newer:
		return "newer"
	default:
		return "unknown"
	}
}

// Stack is a port's substate within one of the four pipelines. working is
// true for at most one stage of one stack on one port at a time — the
// per-port-per-stack re-entrance guard the stage state machine's Guard
// step checks.
type Stack struct {
	Name    StackName
	Failed  bool
	working bool
	since   time.Time
}

// Working reports whether a stage of this stack is currently executing on
// the owning port.
func (s *Stack) Working() bool { return s.working }

// Since returns when the current stage started, the zero time if idle.
func (s *Stack) Since() time.Time { return s.since }

func (s *Stack) begin() {
	s.working = true
	s.since = time.Now()
}

func (s *Stack) end() {
	s.working = false
}

// StageCompletedEvent is the payload of Port.StageCompleted: which stage
// finished, on which port, and whether it failed.
type StageCompletedEvent struct {
	Port   *Port
	Stage  Stage
	Failed bool
}

// Port is the per-origin mutable state the event loop owns exclusively —
// created lazily by Cache on first reference, never destroyed during a
// run, mutated only from the loop thread.
type Port struct {
	Origin string
	handle Handle

	Attrs         Attributes
	InstallStatus InstallStatus

	// Priority grows with distfile size and is propagated transitively
	// from dependants (see depgraph's priority propagation); queues read
	// it fresh on every sort via queue.Job.Priority.
	Priority int

	LogFile string

	// Failed is sticky-true once any stage finalises with failure on the
	// common stack. Per-stack failure is tracked on the individual Stack
	// record instead.
	Failed bool

	stagesCompleted map[Stage]bool
	stacks          map[StackName]*Stack

	// depReady tracks, per stage, whether this port's dependency record
	// for that stage currently reports RESOLVED (no outstanding deps,
	// none failed). depgraph updates this directly; the stage guard
	// consults it instead of importing depgraph (which imports port).
	depReady map[Stage]bool

	StageCompleted *signal.Signal[StageCompletedEvent]
}

// newPort constructs a Port. Unexported: always obtained through a Cache
// so the origin→Port mapping stays unique for the life of a run.
func newPort(origin string, poster signal.Poster) *Port {
	p := &Port{
		Origin:          origin,
		stagesCompleted: make(map[Stage]bool),
		depReady:        make(map[Stage]bool),
		stacks: map[StackName]*Stack{
			StackCommon:  {Name: StackCommon},
			StackBuild:   {Name: StackBuild},
			StackPackage: {Name: StackPackage},
			StackRepo:    {Name: StackRepo},
		},
	}
	p.StageCompleted = signal.New[StageCompletedEvent]("Port.stage_completed", poster)
	return p
}

// Handle is this port's stable index in its owning Cache.
func (p *Port) Handle() Handle { return p.handle }

// Stack returns the substate for the named pipeline.
func (p *Port) Stack(name StackName) *Stack { return p.stacks[name] }

// HasCompleted reports whether s is in stages_completed.
func (p *Port) HasCompleted(s Stage) bool { return p.stagesCompleted[s] }

// CanRun implements the stage Guard step: s's
// predecessor is completed, its stack hasn't failed, and its stack isn't
// currently working on another stage.
func (p *Port) CanRun(s Stage) bool {
	if prev, ok := s.Prev(); ok && !p.stagesCompleted[prev] {
		return false
	}
	stack := p.stacks[s.Stack()]
	if stack.Failed || stack.working {
		return false
	}
	return true
}

// Begin marks s's stack as working, for the duration of the stage.
func (p *Port) Begin(s Stage) {
	p.stacks[s.Stack()].begin()
}

// Finalise implements the stage Finalise step:
// clears the stack's working flag, latches failure onto the stack (and,
// for common-stack stages, onto the whole port), unconditionally adds s
// to stages_completed, and emits stage_completed — unless the relevant
// failure latch was already set, in which case the emission is
// suppressed (the FAILED-observability Open Question decision: once
// failed latches, no further FAILED emissions for that stack).
func (p *Port) Finalise(s Stage, failed bool) {
	stack := p.stacks[s.Stack()]
	alreadyLatched := stack.Failed || (s.Stack() == StackCommon && p.Failed)
	stack.end()

	if failed {
		stack.Failed = true
		if s.Stack() == StackCommon {
			p.Failed = true
			for _, other := range p.stacks {
				other.Failed = true
			}
		}
	}
	p.stagesCompleted[s] = true

	if failed && alreadyLatched {
		return
	}
	p.StageCompleted.Emit(StageCompletedEvent{Port: p, Stage: s, Failed: failed})
}

// Abort clears s's stack working flag without completing the stage —
// used when a stage cannot proceed right now (the Guard's check failed,
// or Pre-make itself stalled on a lock) and must be retried once
// conditions change, rather than finalised.
func (p *Port) Abort(s Stage) {
	p.stacks[s.Stack()].end()
}

// SetDependReady records whether s's dependency requirements are
// currently satisfied (no outstanding, unfailed). depgraph calls this as
// dependency status changes propagate.
func (p *Port) SetDependReady(s Stage, ready bool) {
	p.depReady[s] = ready
}

// DependReady reports whether s's dependency requirements are satisfied.
// Stages with no dependency requirement (per StageDepends) are always
// ready.
func (p *Port) DependReady(s Stage) bool {
	if len(StageDepends(s)) == 0 {
		return true
	}
	return p.depReady[s]
}

// AddPriority increases the port's own priority by delta. Propagation to
// the dependency closure is depgraph's responsibility; this only updates
// the local field queue.Job.Priority reads.
func (p *Port) AddPriority(delta int) {
	p.Priority += delta
}
