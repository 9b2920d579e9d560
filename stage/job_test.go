package stage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"portforge/port"
	"portforge/queue"
)

type fakePoster struct{ posted []func() }

func (f *fakePoster) Post(fn func()) { f.posted = append(f.posted, fn) }
func (f *fakePoster) drain() {
	for len(f.posted) > 0 {
		fn := f.posted[0]
		f.posted = f.posted[1:]
		fn()
	}
}

func newTestPort(origin string) *port.Port {
	return port.NewCache(&fakePoster{}).Get(origin)
}

func TestJob_CompleteShortcutFinalisesWithoutPreMake(t *testing.T) {
	p := newTestPort("editors/vim")
	poster := &fakePoster{}
	mgr := queue.NewManager("test", 4)

	premakeCalled := false
	j := &Job{
		St:       port.StageConfig,
		Port:     p,
		Poster:   poster,
		Complete: func(p *port.Port) bool { return true },
		PreMake: func(p *port.Port, done func(bool)) error {
			premakeCalled = true
			done(false)
			return nil
		},
	}

	mgr.Add(j)
	poster.drain()

	assert.False(t, premakeCalled)
	assert.True(t, p.HasCompleted(port.StageConfig))
	assert.False(t, p.Failed)
}

func TestJob_CheckFalseStallsAndReleasesWorking(t *testing.T) {
	p := newTestPort("editors/vim")
	poster := &fakePoster{}
	mgr := queue.NewManager("test", 4)

	j := &Job{
		St:     port.StageFetch,
		Port:   p,
		Poster: poster,
		Check:  func(p *port.Port) bool { return false },
		PreMake: func(p *port.Port, done func(bool)) error {
			t.Fatal("PreMake must not run when Check fails")
			return nil
		},
	}

	mgr.Add(j)

	assert.False(t, p.Stack(port.StackBuild).Working())
	assert.False(t, p.HasCompleted(port.StageFetch))
}

func TestJob_PreMakeFailureFinalisesFailedAndReleasesLoad(t *testing.T) {
	p := newTestPort("editors/vim")
	mgr := queue.NewManager("test", 1)

	var done func(bool)
	j := &Job{
		St:   port.StageBuild,
		Port: p,
		PreMake: func(p *port.Port, d func(bool)) error {
			done = d
			return nil
		},
	}

	mgr.Add(j)
	require.NotNil(t, done)
	assert.Equal(t, 1, mgr.ActiveLoad())

	done(true)

	assert.Equal(t, 0, mgr.ActiveLoad())
	assert.True(t, p.HasCompleted(port.StageBuild))
	assert.True(t, p.Stack(port.StackBuild).Failed)
}

func TestJob_PreMakeStalledErrorReleasesWorking(t *testing.T) {
	p := newTestPort("editors/vim")
	mgr := queue.NewManager("test", 1)

	j := &Job{
		St:   port.StageBuild,
		Port: p,
		PreMake: func(p *port.Port, done func(bool)) error {
			return queue.ErrStalled
		},
	}

	mgr.Add(j)

	assert.False(t, p.Stack(port.StackBuild).Working())
	assert.Equal(t, 0, mgr.ActiveLoad())
}
