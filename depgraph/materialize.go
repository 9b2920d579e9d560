package depgraph

import "portforge/port"

// Lookup resolves a dependency origin to its cached Port, reporting
// whether the origin exists at all (false = stale dependency, a cache
// miss on the port directory, which hard-fails the referring port).
type Lookup func(origin string) (*port.Port, bool)

// Materialize wires a port's parsed dependencies into the graph once its
// Depend stage runs: for every (field, origin)
// in the parsed dependency vectors, look the origin up, wire the
// dependency/dependant edges, and hard-fail p if any origin is stale.
//
// Call this only after checking DetectCycle on the not-yet-materialized
// attribute graph — Materialize itself assumes an acyclic dependency set
// and does not re-check.
func (g *Graph) Materialize(p *port.Port, lookup Lookup) {
	any := false
	for _, kind := range []port.DependKind{
		port.DependFetch, port.DependExtract, port.DependPatch,
		port.DependBuild, port.DependLib, port.DependRun,
	} {
		for _, dt := range p.Attrs.DependsFor(kind) {
			any = true
			dep, ok := lookup(dt.Origin)
			if !ok {
				g.MarkUnresolvable(p)
				continue
			}
			g.AddDependency(p, dep, kind, dt.Field)
		}
	}

	if !any || g.recordFor(p).outstanding == 0 {
		if !g.recordFor(p).failed {
			g.SetStatus(p, Resolved)
		}
	}
}

// DependenciesOf returns every port p depends on, across all kinds,
// suitable as the dependenciesOf callback to DetectCycle once the
// attribute-derived dependency tuples have been looked up but before
// Materialize commits them — callers typically run a dry lookup pass,
// build a temporary adjacency map, and call DetectCycle against that
// instead of the live graph, to catch cycles before any edge is added.
func (g *Graph) DependenciesOf(p *port.Port) []*port.Port {
	return g.directDependencies(p)
}
