package queue

import (
	"errors"
	"sort"
)

// Manager schedules Jobs against a single load budget. All operations run
// on the event-loop thread; no internal locking is needed (see the
// concurrency model this mirrors: one dispatcher thread owns all
// application state).
type Manager struct {
	name       string
	loadCap    int
	activeLoad int
	dirty      bool

	queue   []Job
	active  []Job
	stalled []Job
}

// NewManager creates a Manager with the given starting load cap. Use
// NewStandardCaps in caps.go for the standard per-resource-class configuration.
func NewManager(name string, loadCap int) *Manager {
	return &Manager{name: name, loadCap: loadCap}
}

// Name identifies the resource class this manager schedules (attr, build,
// fetch, ...), for logging and CLI status output.
func (m *Manager) Name() string { return m.name }

// LoadCap returns the current admission ceiling.
func (m *Manager) LoadCap() int { return m.loadCap }

// SetLoadCap changes the admission ceiling. Raising it may admit queued or
// stalled jobs immediately; lowering it only blocks new admission — jobs
// already active run to completion.
func (m *Manager) SetLoadCap(cap int) {
	raise := cap > m.loadCap
	m.loadCap = cap
	if raise {
		m.run()
	}
}

// ActiveLoad returns the load currently committed to running jobs.
func (m *Manager) ActiveLoad() int { return m.activeLoad }

// Len returns the total number of jobs known to this manager across all
// three lists.
func (m *Manager) Len() int { return len(m.queue) + len(m.active) + len(m.stalled) }

// Active reports whether this manager has jobs running, satisfying
// loop.ActivitySource — the event loop keeps running as long as any queue
// has active jobs, even with an empty FIFO, since those jobs will
// eventually deliver a process-exit event.
func (m *Manager) Active() bool { return len(m.active) > 0 }

// ActiveJobs returns the jobs currently running, for shutdown escalation
// (sending SIGTERM/SIGKILL to each one's process group).
func (m *Manager) ActiveJobs() []Job {
	out := make([]Job, len(m.active))
	copy(out, m.active)
	return out
}

// Add inserts j into the queue at its priority position and attempts to
// start it immediately if load allows.
func (m *Manager) Add(j Job) {
	insertSorted(&m.queue, j)
	if m.activeLoad < m.loadCap {
		m.run()
	}
}

// Done removes j from the active list, releases its load, and tries to
// admit more work. Job implementations call this from their own
// process-exit handling; the manager never calls it on their behalf.
func (m *Manager) Done(j Job) {
	removeJob(&m.active, j)
	m.activeLoad -= j.Load()
	if m.activeLoad < m.loadCap {
		m.run()
	}
}

// Reorder marks the queue and stalled lists dirty; the next admission pass
// re-sorts both rather than paying an O(n log n) resort on every priority
// change (priority propagation can touch many ports at once).
func (m *Manager) Reorder() { m.dirty = true }

// Remove drops j from the pending queue (not active, not stalled). Returns
// false if j was not queued.
func (m *Manager) Remove(j Job) bool {
	return removeJob(&m.queue, j)
}

// run fills the remaining load budget with jobs from stalled, then queue,
// using the best-fit-by-load admission rule: take the head if it fits;
// otherwise the first job in scan order that fits; otherwise the
// smallest-load job (it will stall again, and having been moved to the
// stalled list this run, stays at the front of it next time — the
// stall-and-retry loop prefers forward progress to a stuck head).
func (m *Manager) run() {
	if m.dirty {
		m.dirty = false
		sortByPriority(m.stalled)
		sortByPriority(m.queue)
	}

	var newlyStalled []Job
	for _, bucket := range []*[]Job{&m.stalled, &m.queue} {
		for m.activeLoad < m.loadCap && len(*bucket) > 0 {
			remaining := m.loadCap - m.activeLoad
			job := popBestFit(bucket, remaining)

			m.activeLoad += job.Load()
			m.active = append(m.active, job)

			err := job.Start(m)
			if err != nil {
				if !errors.Is(err, ErrStalled) {
					// Start's only defined failure mode for a scheduler is
					// stalling; anything else is a bug in the job, and we'd
					// rather leave bookkeeping consistent than silently eat it.
					panic(err)
				}
				m.activeLoad -= job.Load()
				removeJob(&m.active, job)
				newlyStalled = append(newlyStalled, job)
			}
		}
	}
	if len(newlyStalled) > 0 {
		m.stalled = append(m.stalled, newlyStalled...)
		sortByPriority(m.stalled)
	}
}

// popBestFit removes and returns the best-fit job from queue for the given
// remaining load: the head if it fits, else the first job (in order) that
// fits, else the job with the smallest load.
func popBestFit(queue *[]Job, remaining int) Job {
	q := *queue
	if q[0].Load() <= remaining {
		job := q[0]
		*queue = append(q[:0:0], q[1:]...)
		return job
	}

	bestIdx := 0
	for idx := 1; idx < len(q); idx++ {
		if q[idx].Load() <= remaining {
			job := q[idx]
			*queue = removeAt(q, idx)
			return job
		}
		if q[bestIdx].Load() > q[idx].Load() {
			bestIdx = idx
		}
	}
	job := q[bestIdx]
	*queue = removeAt(q, bestIdx)
	return job
}

func removeAt(q []Job, idx int) []Job {
	out := make([]Job, 0, len(q)-1)
	out = append(out, q[:idx]...)
	out = append(out, q[idx+1:]...)
	return out
}

// insertSorted inserts j before the first entry with strictly lower
// priority than j, preserving insertion order among equal priorities
// (descending priority, FIFO ties — mirrors bisect.insort against a
// reverse-priority ordering).
func insertSorted(bucket *[]Job, j Job) {
	q := *bucket
	idx := len(q)
	for i, existing := range q {
		if existing.Priority() < j.Priority() {
			idx = i
			break
		}
	}
	q = append(q, nil)
	copy(q[idx+1:], q[idx:])
	q[idx] = j
	*bucket = q
}

// sortByPriority stable-sorts in descending-priority order, so equal
// priorities retain their relative order.
func sortByPriority(q []Job) {
	sort.SliceStable(q, func(i, j int) bool {
		return q[i].Priority() > q[j].Priority()
	})
}

func removeJob(bucket *[]Job, j Job) bool {
	q := *bucket
	for i, existing := range q {
		if existing == j {
			*bucket = removeAt(q, i)
			return true
		}
	}
	return false
}
