// Package loop implements the single-threaded cooperative event dispatcher
// that the rest of the orchestrator runs on: one FIFO of deferred
// callbacks, plus a readiness channel standing in for an OS-level
// process-exit/timer notifier in the kqueue mould.
//
// Go has no portable kqueue binding, so readiness here is a buffered
// channel of bound callbacks (loop.Ready()) fed by one goroutine per
// in-flight child process — each doing nothing but blocking on Wait and
// sending a single event — and by a ticking goroutine for timer filters.
// Every such callback still only ever runs inside Run, on the loop's own
// goroutine, so "no user code runs in parallel with other user code" holds:
// the helper goroutines touch nothing but the channel.
package loop

import "portforge/signal"

// drainBatch bounds how many FIFO entries run before the loop checks for
// newly-arrived readiness events, so a readiness burst doesn't starve
// behind an unbounded stream of self-posting callbacks.
const drainBatch = 50

// ActivitySource reports whether a component (typically a queue manager)
// still has work that could eventually post back to the loop. Run treats
// "FIFO empty and no source active" as the natural exit condition.
type ActivitySource interface {
	Active() bool
}

// Loop is the event-loop dispatcher. The zero value is not usable; build
// one with New.
type Loop struct {
	fifo    []func()
	ready   chan func()
	sources []ActivitySource

	eventCount    uint64
	stopRequested bool

	// Start and Stop fire once per Run call, synchronously (see
	// InlineSignal): lifecycle events must not wait for a FIFO round
	// trip.
	Start *signal.InlineSignal[struct{}]
	Stop  *signal.InlineSignal[struct{}]
}

// New creates a Loop ready to accept Post calls and Watch registrations
// before its first Run.
func New() *Loop {
	return &Loop{
		ready: make(chan func(), 256),
		Start: signal.NewInline[struct{}](),
		Stop:  signal.NewInline[struct{}](),
	}
}

// Post appends fn to the FIFO. Must only be called from the loop thread —
// i.e. from inside a callback already running under Run, or before Run has
// started. Cross-goroutine producers must use Ready() instead.
func (l *Loop) Post(fn func()) {
	l.fifo = append(l.fifo, fn)
}

// Ready returns the channel readiness sources use to deliver a callback for
// the loop to run on its own thread. Safe to send on from any goroutine.
func (l *Loop) Ready() chan<- func() {
	return l.ready
}

// Watch registers src so Run's quiescence check considers its Active state.
func (l *Loop) Watch(src ActivitySource) {
	l.sources = append(l.sources, src)
}

// RequestStop asks the loop to halt after the callback currently draining
// returns. Expressed as a flag checked by Run rather than an emitted
// event, since by the time a stop is requested there may be nothing left
// to post to.
func (l *Loop) RequestStop() {
	l.stopRequested = true
}

// EventCount returns the number of FIFO callbacks run so far, for
// diagnostics and tests.
func (l *Loop) EventCount() uint64 {
	return l.eventCount
}

// Pending reports the current FIFO depth.
func (l *Loop) Pending() int {
	return len(l.fifo)
}

func (l *Loop) anyActive() bool {
	for _, s := range l.sources {
		if s.Active() {
			return true
		}
	}
	return false
}

// Run drains the FIFO and readiness channel until both are empty and no
// watched source reports activity, or until RequestStop is called.
//
// Each full pass: drain up to drainBatch FIFO entries (checking for a
// stop request and opportunistically folding in any readiness callbacks
// that arrived meanwhile without blocking), then, once the FIFO empties,
// block on the readiness channel if any source is still active.
func (l *Loop) Run() {
	l.Start.Emit(struct{}{})
	defer l.Stop.Emit(struct{}{})

	for !l.stopRequested {
		drained := 0
		for len(l.fifo) > 0 {
			if l.stopRequested {
				break
			}
			fn := l.fifo[0]
			l.fifo = l.fifo[1:]
			l.eventCount++
			fn()

			drained++
			if drained == drainBatch {
				l.pollReady()
				drained = 0
			}
		}
		if l.stopRequested {
			break
		}
		if len(l.fifo) == 0 && !l.anyActive() {
			break
		}
		l.blockForReady()
	}
}

// pollReady folds in any readiness callbacks already waiting, without
// blocking.
func (l *Loop) pollReady() {
	for {
		select {
		case fn := <-l.ready:
			fn()
		default:
			return
		}
	}
}

// blockForReady waits for at least one readiness callback, runs it, then
// opportunistically drains any more that arrived in the meantime.
func (l *Loop) blockForReady() {
	fn := <-l.ready
	fn()
	l.pollReady()
}
