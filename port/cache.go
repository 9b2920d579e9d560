package port

import "portforge/signal"

// Handle is a stable index into a Cache's port arena. It exists for
// diagnostics, deterministic iteration, and status dumps; the rest of the
// core (depgraph, resolver, stage) holds *Port directly, since the
// garbage collector makes the cyclic dependant/dependency references
// safe without indirection.
type Handle uint32

// Cache is the port cache: lazy creation on first reference, one Port per
// origin for the life of a run.
type Cache struct {
	poster signal.Poster
	ports  []*Port
	index  map[string]Handle
}

// NewCache creates an empty port cache. poster is threaded to every Port
// created through it, so stage_completed emissions go through the same
// event loop.
func NewCache(poster signal.Poster) *Cache {
	return &Cache{poster: poster, index: make(map[string]Handle)}
}

// Get returns the Port for origin, creating it if this is the first
// reference.
func (c *Cache) Get(origin string) *Port {
	if h, ok := c.index[origin]; ok {
		return c.ports[h]
	}
	p := newPort(origin, c.poster)
	h := Handle(len(c.ports))
	p.handle = h
	c.ports = append(c.ports, p)
	c.index[origin] = h
	return p
}

// Lookup returns the Port for origin without creating one.
func (c *Cache) Lookup(origin string) (*Port, bool) {
	h, ok := c.index[origin]
	if !ok {
		return nil, false
	}
	return c.ports[h], true
}

// ByHandle returns the port at a previously-issued Handle.
func (c *Cache) ByHandle(h Handle) *Port { return c.ports[h] }

// Len returns how many distinct origins have been referenced.
func (c *Cache) Len() int { return len(c.ports) }

// All returns every port in creation order, for status/diagnostic dumps.
func (c *Cache) All() []*Port {
	out := make([]*Port, len(c.ports))
	copy(out, c.ports)
	return out
}
