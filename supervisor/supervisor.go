// Package supervisor runs environment.Environment commands off the event
// loop thread and reports completion back onto it. A build's actual `make`
// invocation blocks for minutes, and nothing on the loop thread may block
// since that would stall every other port's progress.
//
// Environment.Execute (environment/environment.go) is itself synchronous,
// so Supervisor's entire job is the asynchronous wrapper around it: run
// Execute on its own goroutine, and deliver the ExecResult back through a
// Poster so the continuation still only ever runs on the loop thread —
// no user code runs in parallel with other user code.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"portforge/environment"
	"portforge/signal"
)

// Handle identifies one in-flight command.
type Handle uint64

// Result is delivered once, on the loop thread, when a command finishes.
type Result struct {
	Handle Handle
	Res    *environment.ExecResult
	Err    error
}

// Supervisor dispatches commands to an Environment and reports completion
// through signals posted via poster.
type Supervisor struct {
	env    environment.Environment
	poster signal.Poster
	nextID uint64

	inFlight int64

	// dryRun substitutes a fake handle for every command: nothing is
	// executed, a synthetic success is posted back to the loop, and the
	// would-be command line is printed to trace (when non-nil).
	dryRun bool
	trace  io.Writer

	mu      sync.Mutex
	cancels map[Handle]context.CancelFunc
}

// New creates a Supervisor running commands against env, delivering
// completions through poster (normally the event loop).
func New(env environment.Environment, poster signal.Poster) *Supervisor {
	return &Supervisor{env: env, poster: poster, cancels: make(map[Handle]context.CancelFunc)}
}

// SetDryRun switches the supervisor to fake handles: commands are not
// executed, synthetic successes are posted, and each command line is
// written to trace (nil to stay silent).
func (s *Supervisor) SetDryRun(trace io.Writer) {
	s.dryRun = true
	s.trace = trace
}

// InFlight reports how many commands are currently running — the
// loop.ActivitySource signal for the stage families using this
// supervisor (a non-zero count means the loop must keep running even
// with an empty FIFO).
func (s *Supervisor) InFlight() int64 { return atomic.LoadInt64(&s.inFlight) }

// Active implements loop.ActivitySource.
func (s *Supervisor) Active() bool { return s.InFlight() > 0 }

// Run executes cmd asynchronously. done is invoked on the loop thread
// exactly once with the result. A spawn failure (the environment itself
// refusing the command, e.g. because Setup was never called) is
// delivered through done as a synthetic result with Err set, rather than
// panicking the goroutine — a bad fork reports a failed exit, it doesn't
// crash the whole run.
func (s *Supervisor) Run(ctx context.Context, cmd *environment.ExecCommand, done func(Result)) Handle {
	id := Handle(atomic.AddUint64(&s.nextID, 1))

	if s.dryRun {
		if s.trace != nil {
			fmt.Fprintf(s.trace, "%s %s\n", cmd.Command, strings.Join(cmd.Args, " "))
		}
		s.poster.Post(func() {
			done(Result{Handle: id, Res: &environment.ExecResult{ExitCode: 0}})
		})
		return id
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancels[id] = cancel
	s.mu.Unlock()
	atomic.AddInt64(&s.inFlight, 1)

	go func() {
		res, err := s.env.Execute(ctx, cmd)
		s.mu.Lock()
		delete(s.cancels, id)
		s.mu.Unlock()
		cancel()
		atomic.AddInt64(&s.inFlight, -1)
		s.poster.Post(func() { done(Result{Handle: id, Res: res, Err: err}) })
	}()

	return id
}

// Terminate cancels every in-flight command's context, which kills the
// underlying process group. Completions still arrive through each
// command's done callback (with a non-zero exit or an error), so the
// normal finalisation path observes the kill as an ordinary stage
// failure.
func (s *Supervisor) Terminate() {
	s.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.cancels))
	for _, c := range s.cancels {
		cancels = append(cancels, c)
	}
	s.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}
