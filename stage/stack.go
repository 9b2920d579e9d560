package stage

import (
	"portforge/port"
	"portforge/queue"
	"portforge/signal"
)

// JobFactory builds the Job for one stage of a port, freshly, each time
// the stack builder decides that stage is ready to run.
type JobFactory func(p *port.Port) *Job

// StackBuilder drives a port through every stage of one stack, in order,
// queuing each stage's job as soon as its predecessor finishes and its
// own StageDepends requirement is satisfied. Implements resolver.Stack.
type StackBuilder struct {
	Name   port.StackName
	Stages []port.Stage // in pipeline order for this stack
	Jobs   map[port.Stage]JobFactory
	Queues map[port.Stage]*queue.Manager
	Poster signal.Poster

	completion map[*port.Port]*signal.Signal[*port.Port]
}

// NewStackBuilder constructs a StackBuilder. stages must list the stack's
// stages in pipeline order (e.g. Checksum, Fetch, Build, Install, Package
// for the build stack).
func NewStackBuilder(name port.StackName, stages []port.Stage, jobs map[port.Stage]JobFactory, queues map[port.Stage]*queue.Manager, poster signal.Poster) *StackBuilder {
	return &StackBuilder{
		Name:       name,
		Stages:     stages,
		Jobs:       jobs,
		Queues:     queues,
		Poster:     poster,
		completion: make(map[*port.Port]*signal.Signal[*port.Port]),
	}
}

// Add begins (or rejoins) driving p through this stack, returning a
// signal that fires once when the stack finishes — successfully (every
// stage completed) or not (some stage in this stack failed).
func (b *StackBuilder) Add(p *port.Port) *signal.Signal[*port.Port] {
	if sig, ok := b.completion[p]; ok {
		return sig
	}

	sig := signal.New[*port.Port]("stack:"+b.Name.String(), b.Poster)
	b.completion[p] = sig

	var tok signal.Token
	tok = p.StageCompleted.Connect(func(ev port.StageCompletedEvent) {
		if ev.Port != p || ev.Stage.Stack() != b.Name {
			return
		}
		if ev.Failed || ev.Stage == b.Stages[len(b.Stages)-1] {
			p.StageCompleted.Disconnect(tok)
			delete(b.completion, p)
			sig.Emit(p)
			return
		}
		b.tryAdvance(p)
	})

	b.tryAdvance(p)
	return sig
}

// tryAdvance queues the job for the first not-yet-completed stage whose
// Guard (port.CanRun) and dependency requirement (port.DependReady) are
// currently satisfied. It is a no-op if none is ready yet — the stack
// advances again the next time a StageCompleted or DependReady change
// fires.
func (b *StackBuilder) tryAdvance(p *port.Port) {
	for _, st := range b.Stages {
		if p.HasCompleted(st) {
			continue
		}
		if !p.CanRun(st) || !p.DependReady(st) {
			return
		}
		factory, ok := b.Jobs[st]
		if !ok {
			return
		}
		b.Queues[st].Add(factory(p))
		return
	}
}
