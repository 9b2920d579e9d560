package stage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"portforge/port"
	"portforge/queue"
)

// completeCommonStack marks Config and Depend done so the build stack's
// own predecessor chain (Checksum's prev is Depend) is satisfied.
func completeCommonStack(p *port.Port) {
	p.Begin(port.StageConfig)
	p.Finalise(port.StageConfig, false)
	p.Begin(port.StageDepend)
	p.Finalise(port.StageDepend, false)
}

func TestStackBuilder_AdvancesThroughStagesInOrder(t *testing.T) {
	// The port's StageCompleted signal posts through the poster the test
	// drains; the port has no dependencies, so its dependency gates are open.
	poster := &fakePoster{}
	p := port.NewCache(poster).Get("editors/vim")
	completeCommonStack(p)
	p.SetDependReady(port.StageFetch, true)
	p.SetDependReady(port.StageBuild, true)

	stages := []port.Stage{port.StageChecksum, port.StageFetch, port.StageBuild}
	mgrs := map[port.Stage]*queue.Manager{
		port.StageChecksum: queue.NewManager("checksum", 4),
		port.StageFetch:    queue.NewManager("fetch", 4),
		port.StageBuild:    queue.NewManager("build", 4),
	}

	var doneFns []func(bool)
	factory := func(st port.Stage) JobFactory {
		return func(p *port.Port) *Job {
			return &Job{
				St:   st,
				Port: p,
				PreMake: func(p *port.Port, done func(bool)) error {
					doneFns = append(doneFns, done)
					return nil
				},
			}
		}
	}
	jobs := map[port.Stage]JobFactory{
		port.StageChecksum: factory(port.StageChecksum),
		port.StageFetch:     factory(port.StageFetch),
		port.StageBuild:     factory(port.StageBuild),
	}

	b := NewStackBuilder(port.StackBuild, stages, jobs, mgrs, poster)

	var result *port.Port
	b.Add(p).Connect(func(done *port.Port) { result = done })

	require.Len(t, doneFns, 1, "only checksum should be queued first")
	doneFns[0](false)
	poster.drain()

	require.Len(t, doneFns, 2, "fetch queued once checksum completes")
	doneFns[1](false)
	poster.drain()

	require.Len(t, doneFns, 3, "build queued once fetch completes")
	doneFns[2](false)
	poster.drain()

	assert.Equal(t, p, result)
	assert.True(t, p.HasCompleted(port.StageBuild))
}

func TestStackBuilder_FailureStopsAdvancingAndFiresCompletion(t *testing.T) {
	// The port's StageCompleted signal posts through the poster the test drains.
	poster := &fakePoster{}
	p := port.NewCache(poster).Get("editors/vim")
	completeCommonStack(p)

	stages := []port.Stage{port.StageChecksum, port.StageFetch}
	mgrs := map[port.Stage]*queue.Manager{
		port.StageChecksum: queue.NewManager("checksum", 4),
		port.StageFetch:    queue.NewManager("fetch", 4),
	}

	var fetchQueued bool
	jobs := map[port.Stage]JobFactory{
		port.StageChecksum: func(p *port.Port) *Job {
			return &Job{St: port.StageChecksum, Port: p, PreMake: func(p *port.Port, done func(bool)) error {
				done(true)
				return nil
			}}
		},
		port.StageFetch: func(p *port.Port) *Job {
			fetchQueued = true
			return &Job{St: port.StageFetch, Port: p, PreMake: func(p *port.Port, done func(bool)) error { return nil }}
		},
	}

	b := NewStackBuilder(port.StackBuild, stages, jobs, mgrs, poster)

	var result *port.Port
	b.Add(p).Connect(func(done *port.Port) { result = done })
	poster.drain()

	assert.False(t, fetchQueued, "a failed checksum must not queue fetch")
	assert.Equal(t, p, result)
}

func TestStackBuilder_AddIsIdempotentWhileInProgress(t *testing.T) {
	p := newTestPort("editors/vim")
	completeCommonStack(p)
	poster := &fakePoster{}
	stages := []port.Stage{port.StageChecksum}
	mgrs := map[port.Stage]*queue.Manager{port.StageChecksum: queue.NewManager("checksum", 4)}
	jobs := map[port.Stage]JobFactory{
		port.StageChecksum: func(p *port.Port) *Job {
			return &Job{St: port.StageChecksum, Port: p, PreMake: func(p *port.Port, done func(bool)) error { return nil }}
		},
	}

	b := NewStackBuilder(port.StackBuild, stages, jobs, mgrs, poster)

	first := b.Add(p)
	second := b.Add(p)

	assert.Same(t, first, second)
}
