package stage

import (
	"portforge/depgraph"
	"portforge/port"
	"portforge/resolver"
	"portforge/signal"
)

// NewDependJob builds the Depend stage's Job: it materialises p's
// dependencies into graph (wiring dependency/dependant edges,
// hard-failing on any stale origin) and kicks off cross-stack
// resolution for each one via res, relaying each dependency's own
// completion back into the graph's status transitions. Depend itself
// requires no dependency kinds resolved first (absent from
// port.StageDepends), so it finalises as soon as materialisation and
// resolution kickoff are done — it does not wait for those resolutions
// to finish; later stages gated on StageDepends do that waiting via
// port.DependReady.
func NewDependJob(p *port.Port, poster signal.Poster, graph *depgraph.Graph, lookup depgraph.Lookup, res *resolver.Resolver, reorder func()) *Job {
	return &Job{
		St:     port.StageDepend,
		Port:   p,
		Poster: poster,
		PreMake: func(p *port.Port, done func(bool)) error {
			graph.Materialize(p, lookup)

			// A port's accumulated priority flows into its freshly
			// wired dependency closure; any change re-sorts the queues.
			prioritised := false
			graph.InheritPriority(p, func(*port.Port) { prioritised = true })
			if prioritised && reorder != nil {
				reorder()
			}

			for _, kind := range port.AllDependKinds() {
				for _, dep := range graph.Dependencies(p, kind) {
					res.Resolve(dep).Connect(func(resolved *port.Port) {
						if resolved.Failed {
							graph.SetStatus(resolved, depgraph.Failure)
						} else {
							graph.SetStatus(resolved, depgraph.Resolved)
						}
					})
				}
			}

			done(graph.Failed(p))
			return nil
		},
	}
}
