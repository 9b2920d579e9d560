package depgraph

import "portforge/port"

// PropagatePriority increases p's own priority by delta (the caller's
// responsibility, e.g. on discovering a large distfile) and then walks
// the transitive dependency closure breadth-first, adding delta to every
// ancestor exactly once — a visited set prevents a diamond-shaped graph
// from crediting the same dependency twice for one propagation event.
//
// touched, if non-nil, is called once per port whose priority changed
// (including p itself), so the caller can call queue.Reorder() on every
// queue holding a job for that port exactly once per propagation.
func (g *Graph) PropagatePriority(p *port.Port, delta int, touched func(*port.Port)) {
	p.AddPriority(delta)
	if touched != nil {
		touched(p)
	}

	visited := map[*port.Port]bool{p: true}
	queue := g.directDependencies(p)

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true

		cur.AddPriority(delta)
		if touched != nil {
			touched(cur)
		}
		queue = append(queue, g.directDependencies(cur)...)
	}
}

func (g *Graph) directDependencies(p *port.Port) []*port.Port {
	r, ok := g.records[p]
	if !ok {
		return nil
	}
	var out []*port.Port
	for _, kind := range r.dependencies {
		out = append(out, kind...)
	}
	return out
}

// InheritPriority credits p's current priority to its freshly
// materialised dependency closure without growing p itself — the wiring
// step after Materialize, so a port seeded with a high priority (big
// distfile, explicit target) pulls its whole dependency tree forward in
// every queue. Same visited-set discipline as PropagatePriority.
func (g *Graph) InheritPriority(p *port.Port, touched func(*port.Port)) {
	delta := p.Priority
	if delta == 0 {
		return
	}

	visited := map[*port.Port]bool{p: true}
	queue := g.directDependencies(p)

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true

		cur.AddPriority(delta)
		if touched != nil {
			touched(cur)
		}
		queue = append(queue, g.directDependencies(cur)...)
	}
}
