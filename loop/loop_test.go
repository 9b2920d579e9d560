package loop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_EmptyFIFOExitsImmediately(t *testing.T) {
	l := New()
	l.Run()
	assert.Equal(t, uint64(0), l.EventCount())
}

func TestLoop_DrainsPostedCallbacksInOrder(t *testing.T) {
	l := New()
	var order []int
	l.Post(func() { order = append(order, 1) })
	l.Post(func() { order = append(order, 2) })
	l.Post(func() { order = append(order, 3) })

	l.Run()

	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, uint64(3), l.EventCount())
}

func TestLoop_CallbackCanPostMore(t *testing.T) {
	l := New()
	count := 0
	var again func()
	again = func() {
		count++
		if count < 5 {
			l.Post(again)
		}
	}
	l.Post(again)

	l.Run()

	assert.Equal(t, 5, count)
}

// fakeSource reports Active until told otherwise, simulating a queue with
// in-flight jobs that will eventually deliver a readiness event.
type fakeSource struct {
	active bool
}

func (f *fakeSource) Active() bool { return f.active }

func TestLoop_WaitsOnReadyWhileSourceActive(t *testing.T) {
	l := New()
	src := &fakeSource{active: true}
	l.Watch(src)

	done := make(chan struct{})
	go func() {
		l.Run()
		close(done)
	}()

	// Deliver a readiness event that flips the source inactive and stops
	// posting further work, so the loop should exit after this.
	l.Ready() <- func() {
		src.active = false
	}

	<-done
	assert.False(t, src.active)
}

func TestLoop_RequestStopHaltsAfterCurrentDrain(t *testing.T) {
	l := New()
	ran := 0
	l.Post(func() {
		ran++
		l.RequestStop()
		l.Post(func() { ran++ }) // must not run — stop takes effect first
	})

	l.Run()

	require.Equal(t, 1, ran, "stop halts the loop before the post-stop callback runs")
}

func TestLoop_StartStopFireExactlyOncePerRun(t *testing.T) {
	l := New()
	starts, stops := 0, 0
	l.Start.Connect(func(struct{}) { starts++ })
	l.Stop.Connect(func(struct{}) { stops++ })

	l.Run()

	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
}
