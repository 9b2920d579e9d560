package queue

// StandardCaps holds the set of queue managers a run needs, sized from the
// host's logical CPU count per the standard resource-class table: attr and
// build scale with CPUS, checksum gets half (floor 1), everything else
// serializes to 1. Clean starts at 1 and is boosted to cpus on shutdown so
// cleanup can drain quickly once new work has stopped being admitted.
type StandardCaps struct {
	Attr     *Manager
	Config   *Manager
	Checksum *Manager
	Fetch    *Manager
	Build    *Manager
	Install  *Manager
	Package  *Manager
	Clean    *Manager
}

// NewStandardCaps builds the eight queue managers a run needs, sized from
// cpus (the host's logical CPU count).
func NewStandardCaps(cpus int) *StandardCaps {
	if cpus < 1 {
		cpus = 1
	}
	half := cpus / 2
	if half < 1 {
		half = 1
	}
	return &StandardCaps{
		Attr:     NewManager("attr", cpus*2),
		Config:   NewManager("config", 1),
		Checksum: NewManager("checksum", half),
		Fetch:    NewManager("fetch", 1),
		Build:    NewManager("build", cpus*2),
		Install:  NewManager("install", 1),
		Package:  NewManager("package", 1),
		Clean:    NewManager("clean", 1),
	}
}

// All returns every managed queue, in a fixed order used for shutdown
// escalation and reorder fan-out.
func (c *StandardCaps) All() []*Manager {
	return []*Manager{c.Attr, c.Config, c.Checksum, c.Fetch, c.Build, c.Install, c.Package, c.Clean}
}

// Stop zeroes every queue's load cap, blocking further admission, and
// boosts Clean to cpus so in-flight cleanup jobs can drain quickly. It does
// not itself touch active jobs — the caller signals those PIDs separately
// (see the supervisor's shutdown escalation).
func (c *StandardCaps) Stop(cpus int) {
	if cpus < 1 {
		cpus = 1
	}
	for _, m := range c.All() {
		if m == c.Clean {
			continue
		}
		m.SetLoadCap(0)
	}
	c.Clean.SetLoadCap(cpus)
}
