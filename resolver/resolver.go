// Package resolver implements cross-stack dependency resolution: given a
// port that needs to be resolved as someone's dependency, try the
// configured methods (build-from-source, local package, remote repo) in
// order, falling back on soft failure and cascading a hard failure to
// dependants only once every method is exhausted.
package resolver

import (
	"portforge/port"
	"portforge/signal"
)

// Method names one resolution stack.
type Method string

const (
	MethodBuild   Method = "build"
	MethodPackage Method = "package"
	MethodRepo    Method = "repo"
)

func (m Method) stackName() port.StackName {
	switch m {
	case MethodPackage:
		return port.StackPackage
	case MethodRepo:
		return port.StackRepo
	default:
		return port.StackBuild
	}
}

// Stack starts a port down one resolution stack and reports completion.
// The three stack builders in package stage each implement this; Resolver
// depends only on the interface to avoid stage and resolver importing one
// another (stage itself calls back into Resolver to resolve a port's own
// dependencies during its Depend stage).
type Stack interface {
	// Add begins resolving p through this stack if not already in
	// progress for p, returning a signal that fires exactly once when
	// this stack's attempt finalises. Success or failure is read off
	// p.Stack(stackName).Failed after the signal fires, not from the
	// signal's payload.
	Add(p *port.Port) *signal.Signal[*port.Port]
}

// Resolver implements the fallback retry loop.
type Resolver struct {
	poster signal.Poster
	order  []Method
	stacks map[Method]Stack

	inProgress map[*port.Port]*signal.Signal[*port.Port]
	finished   map[*port.Port]bool
	attempt    map[*port.Port]int
}

// New creates a Resolver trying methods in order against the given stack
// implementations. order is typically []Method{MethodBuild}, optionally
// followed by MethodPackage and/or MethodRepo.
func New(poster signal.Poster, order []Method, stacks map[Method]Stack) *Resolver {
	return &Resolver{
		poster:     poster,
		order:      order,
		stacks:     stacks,
		inProgress: make(map[*port.Port]*signal.Signal[*port.Port]),
		finished:   make(map[*port.Port]bool),
		attempt:    make(map[*port.Port]int),
	}
}

// Resolve resolves p, returning a signal that fires exactly once with p
// once resolution completes, successfully or by exhausting every method.
// A port already installed at the recipe's version short-circuits
// straight to resolved without entering any stack — the incremental
// path: re-running over an already-completed port set spawns nothing.
func (r *Resolver) Resolve(p *port.Port) *signal.Signal[*port.Port] {
	if sig, ok := r.inProgress[p]; ok {
		return sig
	}

	sig := signal.New[*port.Port]("resolve:"+p.Origin, r.poster)
	if r.finished[p] || p.Failed || p.InstallStatus == port.Current {
		r.finished[p] = true
		r.poster.Post(func() { sig.Emit(p) })
		return sig
	}

	r.inProgress[p] = sig
	r.attempt[p] = 0
	r.tryNext(p)
	return sig
}

// tryNext attempts the next configured method, or hard-fails p once the
// list is exhausted.
func (r *Resolver) tryNext(p *port.Port) {
	for r.attempt[p] < len(r.order) {
		method := r.order[r.attempt[p]]
		r.attempt[p]++

		stack, ok := r.stacks[method]
		if !ok {
			continue
		}

		completion := stack.Add(p)
		completion.Connect(func(done *port.Port) { r.onStackDone(method, done) })
		return
	}
	r.hardFail(p)
}

func (r *Resolver) onStackDone(method Method, p *port.Port) {
	if p.Stack(method.stackName()).Failed {
		r.tryNext(p)
		return
	}
	r.finish(p)
}

func (r *Resolver) hardFail(p *port.Port) {
	p.Failed = true
	r.finish(p)
}

func (r *Resolver) finish(p *port.Port) {
	sig := r.inProgress[p]
	delete(r.inProgress, p)
	delete(r.attempt, p)
	r.finished[p] = true
	sig.Emit(p)
}

// Finished reports whether p has completed resolution (successfully or
// not) at least once.
func (r *Resolver) Finished(p *port.Port) bool { return r.finished[p] }
