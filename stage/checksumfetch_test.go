package stage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistfileState_TryLockIsAllOrNothing(t *testing.T) {
	d := NewDistfileState()

	assert.True(t, d.tryLock([]string{"a.tgz", "b.tgz"}))

	// b.tgz is held, so a set overlapping it must not acquire anything.
	assert.False(t, d.tryLock([]string{"b.tgz", "c.tgz"}))
	assert.False(t, d.locked["c.tgz"])

	d.unlock([]string{"a.tgz", "b.tgz"})
	assert.True(t, d.tryLock([]string{"b.tgz", "c.tgz"}))
}

func TestDistfileState_MarkChecksumTracksOutcomes(t *testing.T) {
	d := NewDistfileState()

	d.markChecksum([]string{"good.tgz"}, true)
	d.markChecksum([]string{"bad.tgz"}, false)

	assert.True(t, d.fetched["good.tgz"])
	assert.True(t, d.badChecksum["bad.tgz"])
	assert.False(t, d.fetched["bad.tgz"])
}

func TestDistfileState_AllFetchFailed(t *testing.T) {
	d := NewDistfileState()

	assert.False(t, d.allFetchFailed(nil))
	assert.False(t, d.allFetchFailed([]string{"x.tgz"}))

	d.markFetch([]string{"x.tgz"}, false)
	assert.True(t, d.allFetchFailed([]string{"x.tgz"}))
	assert.False(t, d.allFetchFailed([]string{"x.tgz", "y.tgz"}))
}

// Two ports share dist.tgz: after the first port's checksum marks it
// known-good, the second port's Checksum job completes via the set
// lookup without ever spawning a subprocess.
func TestChecksumJob_SharedDistfileCompletesBySetLookup(t *testing.T) {
	d := NewDistfileState()
	poster := &fakePoster{}

	a := newTestPort("cat/a")
	a.Attrs.Distfiles = []string{"dist.tgz"}
	b := newTestPort("cat/b")
	b.Attrs.Distfiles = []string{"dist.tgz"}

	d.markChecksum(a.Attrs.Distfiles, true)

	j := NewChecksumJob(b, d, nil, poster, "make", nil, nil)
	assert.True(t, j.Complete(b))
}
