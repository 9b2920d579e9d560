package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"portforge/port"
)

type fakePoster struct{}

func (fakePoster) Post(fn func()) { fn() }

func newTestPort(origin string) *port.Port {
	c := port.NewCache(fakePoster{})
	return c.Get(origin)
}

func TestGraph_AddDependencySetsOutstanding(t *testing.T) {
	g := New()
	p := newTestPort("editors/vim")
	dep := newTestPort("devel/gettext")

	g.AddDependency(p, dep, port.DependLib, "LIB_DEPENDS")

	assert.Equal(t, 1, g.OutstandingCount(p))
	assert.Contains(t, g.Dependencies(p, port.DependLib), dep)
}

func TestGraph_AddDependencyIsIdempotent(t *testing.T) {
	g := New()
	p := newTestPort("editors/vim")
	dep := newTestPort("devel/gettext")

	g.AddDependency(p, dep, port.DependLib, "LIB_DEPENDS")
	g.AddDependency(p, dep, port.DependLib, "LIB_DEPENDS")

	assert.Equal(t, 1, g.OutstandingCount(p))
	assert.Len(t, g.Dependencies(p, port.DependLib), 1)
}

func TestGraph_StatusTransitionDecrementsOutstandingByMultiplicity(t *testing.T) {
	g := New()
	p := newTestPort("editors/vim")
	dep := newTestPort("devel/gettext")

	// p depends on dep via two kinds — multiplicity 2.
	g.AddDependency(p, dep, port.DependLib, "LIB_DEPENDS")
	g.AddDependency(p, dep, port.DependRun, "RUN_DEPENDS")
	require.Equal(t, 2, g.OutstandingCount(p))

	g.SetStatus(dep, Resolved)

	assert.Equal(t, 0, g.OutstandingCount(p))
	assert.Equal(t, Resolved, g.Status(p), "p resolves once all dependencies are resolved")
}

func TestGraph_FailurePropagatesByDefault(t *testing.T) {
	g := New()
	x := newTestPort("x")
	y := newTestPort("y")
	g.AddDependency(x, y, port.DependBuild, "BUILD_DEPENDS")

	g.SetStatus(y, Failure)

	assert.Equal(t, Failure, g.Status(x))
	assert.True(t, g.Failed(x))
}

func TestGraph_PropagateFalseKeepsDependantUnresolved(t *testing.T) {
	// propagate = false on the dependant x; y fails; x
	// stays UNRESOLVED, x.Failed stays false, x is never enqueued.
	g := New()
	x := newTestPort("x")
	y := newTestPort("y")
	g.AddDependency(x, y, port.DependBuild, "BUILD_DEPENDS")
	g.SetPropagate(x, false)

	g.SetStatus(y, Failure)

	assert.Equal(t, Unresolved, g.Status(x))
	assert.False(t, x.Failed)
}

func TestGraph_StaleDependencyHardFails(t *testing.T) {
	g := New()
	p := newTestPort("editors/vim")

	g.MarkUnresolvable(p)

	assert.True(t, g.Failed(p))
	assert.Equal(t, Failure, g.Status(p))
}

func TestGraph_MaterializeResolvesImmediatelyWithNoDependencies(t *testing.T) {
	g := New()
	p := newTestPort("lang/foo")

	g.Materialize(p, func(origin string) (*port.Port, bool) { return nil, false })

	assert.Equal(t, Resolved, g.Status(p))
}

func TestGraph_MaterializeHardFailsOnStaleOrigin(t *testing.T) {
	g := New()
	p := newTestPort("editors/vim")
	p.Attrs.LibDepends = []port.DependTuple{{Field: "LIB_DEPENDS", Origin: "devel/missing"}}

	g.Materialize(p, func(origin string) (*port.Port, bool) { return nil, false })

	assert.True(t, g.Failed(p))
}

func TestGraph_PriorityPropagatesOnceAcrossDiamond(t *testing.T) {
	g := New()
	root := newTestPort("root")
	a := newTestPort("a")
	b := newTestPort("b")
	shared := newTestPort("shared")

	g.AddDependency(root, a, port.DependBuild, "BUILD_DEPENDS")
	g.AddDependency(root, b, port.DependBuild, "BUILD_DEPENDS")
	g.AddDependency(a, shared, port.DependBuild, "BUILD_DEPENDS")
	g.AddDependency(b, shared, port.DependBuild, "BUILD_DEPENDS")

	var touched []string
	g.PropagatePriority(root, 100, func(p *port.Port) { touched = append(touched, p.Origin) })

	assert.Equal(t, 100, root.Priority)
	assert.Equal(t, 100, a.Priority)
	assert.Equal(t, 100, b.Priority)
	assert.Equal(t, 100, shared.Priority, "shared gets +100 exactly once despite two paths")
	assert.Equal(t, 4, len(touched), "each ancestor touched exactly once")
}

func TestDetectCycle_FindsTwoNodeCycle(t *testing.T) {
	a := newTestPort("a")
	b := newTestPort("b")
	edges := map[*port.Port][]*port.Port{
		a: {b},
		b: {a},
	}

	err := DetectCycle(a, func(p *port.Port) []*port.Port { return edges[p] })

	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "a")
	assert.Contains(t, err.Error(), "b")
}

func TestDetectCycle_AcyclicReturnsNil(t *testing.T) {
	a := newTestPort("a")
	b := newTestPort("b")
	c := newTestPort("c")
	edges := map[*port.Port][]*port.Port{
		a: {b, c},
		b: {c},
		c: {},
	}

	err := DetectCycle(a, func(p *port.Port) []*port.Port { return edges[p] })

	assert.Nil(t, err)
}

func TestGraph_InheritPriorityCreditsClosureOnce(t *testing.T) {
	g := New()
	cache := port.NewCache(fakePoster{})

	root := cache.Get("a/root")
	left := cache.Get("b/left")
	right := cache.Get("c/right")
	shared := cache.Get("d/shared")

	g.AddDependency(root, left, port.DependBuild, "BUILD_DEPENDS")
	g.AddDependency(root, right, port.DependLib, "LIB_DEPENDS")
	g.AddDependency(left, shared, port.DependRun, "RUN_DEPENDS")
	g.AddDependency(right, shared, port.DependRun, "RUN_DEPENDS")

	root.AddPriority(100)
	touched := 0
	g.InheritPriority(root, func(*port.Port) { touched++ })

	if root.Priority != 100 {
		t.Errorf("root priority = %d, want 100 (unchanged)", root.Priority)
	}
	for _, p := range []*port.Port{left, right, shared} {
		if p.Priority != 100 {
			t.Errorf("%s priority = %d, want 100", p.Origin, p.Priority)
		}
	}
	if touched != 3 {
		t.Errorf("touched = %d, want 3", touched)
	}
}

func TestGraph_InheritPriorityZeroIsNoOp(t *testing.T) {
	g := New()
	cache := port.NewCache(fakePoster{})
	root := cache.Get("a/root")
	dep := cache.Get("b/dep")
	g.AddDependency(root, dep, port.DependBuild, "BUILD_DEPENDS")

	g.InheritPriority(root, func(*port.Port) { t.Fatal("nothing should be touched") })
	if dep.Priority != 0 {
		t.Errorf("dep priority = %d, want 0", dep.Priority)
	}
}
