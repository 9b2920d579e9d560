// Package depgraph implements the bidirectional dependency/dependant
// records for every port referenced during a run, the outstanding-count
// bookkeeping that drives a port's resolution status, and breadth-first
// priority propagation across the dependency closure.
//
// One Graph owns a record per port, keyed by *port.Port; the garbage
// collector makes the mutual dependant/dependency references safe without
// weak-reference indirection.
package depgraph

import "portforge/port"

// Status is a port's resolution state as seen by its dependants.
type Status int

const (
	Unresolved Status = iota
	Resolved
	Failure
)

func (s Status) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Resolved:
		return "resolved"
	case Failure:
		return "failure"
	default:
		return "status(?)"
	}
}

type dependantEdge struct {
	kind      port.DependKind
	dependant *port.Port
}

// record is one port's combined Dependent+Dependency bookkeeping.
type record struct {
	dependencies [7][]*port.Port
	dependants   [7][]dependantEdge

	outstanding int
	status      Status
	failed      bool // a dependency has failed (Dependency.failed)

	// propagate controls whether a failed dependency turns this port's own
	// status to Failure, and so cascades on to its dependants
	// (propagate=false keeps this port UNRESOLVED; failed is still set).
	propagate bool
}

// Graph owns every port's dependency record for the life of a run.
type Graph struct {
	records map[*port.Port]*record
}

// New creates an empty dependency graph.
func New() *Graph {
	return &Graph{records: make(map[*port.Port]*record)}
}

func (g *Graph) recordFor(p *port.Port) *record {
	r, ok := g.records[p]
	if !ok {
		r = &record{status: Unresolved, propagate: true}
		g.records[p] = r
	}
	return r
}

// SetPropagate controls whether a failed dependency hard-fails p (and,
// through p, p's dependants).
func (g *Graph) SetPropagate(p *port.Port, propagate bool) {
	g.recordFor(p).propagate = propagate
}

// Status returns p's current resolution status.
func (g *Graph) Status(p *port.Port) Status {
	return g.recordFor(p).status
}

// Failed reports whether any of p's dependencies has failed.
func (g *Graph) Failed(p *port.Port) bool {
	return g.recordFor(p).failed
}

// OutstandingCount returns the number of p's dependencies not yet
// Resolved — maintained incrementally, never recomputed from scratch,
// kept equal to the number of dependencies not yet resolved.
func (g *Graph) OutstandingCount(p *port.Port) int {
	return g.recordFor(p).outstanding
}

// Dependencies returns p's dependency set for one kind.
func (g *Graph) Dependencies(p *port.Port, kind port.DependKind) []*port.Port {
	return g.records[p].dependencies[kind]
}

// AddDependency records that p depends on dep via kind, and the symmetric
// dependant edge on dep. Safe to call more than once for the same
// (p, dep, kind) triple — later calls are no-ops.
func (g *Graph) AddDependency(p, dep *port.Port, kind port.DependKind, field string) {
	r := g.recordFor(p)
	for _, existing := range r.dependencies[kind] {
		if existing == dep {
			return
		}
	}
	dr := g.recordFor(dep)

	r.dependencies[kind] = append(r.dependencies[kind], dep)
	dr.dependants[kind] = append(dr.dependants[kind], dependantEdge{kind: kind, dependant: p})

	switch dr.status {
	case Unresolved:
		r.outstanding++
	case Failure:
		r.outstanding++
		g.markFailed(p)
	case Resolved:
		// already satisfied, no outstanding credit needed
	}
	g.recomputeDependReady(p)
}

// MarkUnresolvable records that a declared dependency origin could not be
// resolved at all (cache miss on the port directory) — a stale dependency,
// which hard-fails the referring port unconditionally.
func (g *Graph) MarkUnresolvable(p *port.Port) {
	g.markFailed(p)
	g.SetStatus(p, Failure)
}

func (g *Graph) markFailed(p *port.Port) {
	g.recordFor(p).failed = true
}

// SetStatus transitions p to status, adjusting every dependant's
// outstanding_count by exactly its multiplicity in dependencies (once per
// kind edge, so a port depending on p via two kinds sees two updates) and
// cascading failure unless the dependant has propagate=false.
func (g *Graph) SetStatus(p *port.Port, status Status) {
	r := g.recordFor(p)
	if r.status == status {
		return
	}
	old := r.status
	r.status = status

	for kind := range r.dependants {
		for _, edge := range r.dependants[kind] {
			g.applyTransition(edge.dependant, old, status)
		}
	}
}

func (g *Graph) applyTransition(dependant *port.Port, old, new Status) {
	dr := g.recordFor(dependant)

	wasOutstanding := old != Resolved
	isOutstanding := new != Resolved
	switch {
	case wasOutstanding && !isOutstanding:
		dr.outstanding--
	case !wasOutstanding && isOutstanding:
		dr.outstanding++
	}
	if dr.outstanding < 0 {
		dr.outstanding = 0
	}

	if new == Failure {
		dr.failed = true
	}

	g.recomputeDependReady(dependant)

	if dr.failed && dr.propagate {
		g.SetStatus(dependant, Failure)
	} else if dr.outstanding == 0 && !dr.failed {
		g.SetStatus(dependant, Resolved)
	} else if dr.outstanding > 0 {
		g.SetStatus(dependant, Unresolved)
	}
}

// recomputeDependReady keeps port.Port.DependReady in sync with this
// graph's view, so the stage state machine's guard can consult the port
// directly without importing depgraph (which imports port).
func (g *Graph) recomputeDependReady(p *port.Port) {
	for _, s := range port.AllStages() {
		kinds := port.StageDepends(s)
		if len(kinds) == 0 {
			continue
		}
		p.SetDependReady(s, g.stageReady(p, kinds))
	}
}

func (g *Graph) stageReady(p *port.Port, kinds []port.DependKind) bool {
	r := g.records[p]
	if r == nil {
		return true
	}
	for _, kind := range kinds {
		for _, dep := range r.dependencies[kind] {
			if g.recordFor(dep).status != Resolved {
				return false
			}
		}
	}
	return true
}
