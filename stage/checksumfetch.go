package stage

import (
	"context"
	"io"

	"portforge/environment"
	"portforge/port"
	"portforge/queue"
	"portforge/signal"
	"portforge/supervisor"
)

// DistfileState holds the process-wide distfile bookkeeping Checksum and
// Fetch share: which distfiles are known-good, known to
// have a bad checksum, or permanently failed to fetch, plus file-level
// locks so two ports sharing a distfile never fetch or checksum it at
// the same time. All access happens on the loop thread (PreMake only
// ever runs there), so — matching queue.Manager's own invariant — no
// internal locking is needed.
type DistfileState struct {
	fetched     map[string]bool
	badChecksum map[string]bool
	fetchFailed map[string]bool
	locked      map[string]bool
}

// NewDistfileState creates empty distfile bookkeeping.
func NewDistfileState() *DistfileState {
	return &DistfileState{
		fetched:     make(map[string]bool),
		badChecksum: make(map[string]bool),
		fetchFailed: make(map[string]bool),
		locked:      make(map[string]bool),
	}
}

// tryLock acquires every name atomically, all-or-nothing.
func (d *DistfileState) tryLock(names []string) bool {
	for _, n := range names {
		if d.locked[n] {
			return false
		}
	}
	for _, n := range names {
		d.locked[n] = true
	}
	return true
}

func (d *DistfileState) unlock(names []string) {
	for _, n := range names {
		delete(d.locked, n)
	}
}

// allFetchFailed reports whether every one of names has already
// permanently failed to fetch elsewhere.
func (d *DistfileState) allFetchFailed(names []string) bool {
	if len(names) == 0 {
		return false
	}
	for _, n := range names {
		if !d.fetchFailed[n] {
			return false
		}
	}
	return true
}

func (d *DistfileState) markFetch(names []string, ok bool) {
	for _, n := range names {
		if ok {
			d.fetched[n] = true
		} else {
			d.fetchFailed[n] = true
		}
	}
}

func (d *DistfileState) markChecksum(names []string, ok bool) {
	for _, n := range names {
		if ok {
			d.fetched[n] = true
		} else {
			d.badChecksum[n] = true
		}
	}
}

// allFetched reports whether every one of names is already known-good.
func (d *DistfileState) allFetched(names []string) bool {
	if len(names) == 0 {
		return false
	}
	for _, n := range names {
		if !d.fetched[n] {
			return false
		}
	}
	return true
}

// NewChecksumJob builds the Checksum stage's Job: runs the recipe's
// checksum target with FETCH_REGET=0 (verify only, never re-download),
// marking every distfile bad on failure (the checksum target itself
// failing, or any expected file simply absent — ExecResult.ExitCode
// captures both) and good on success. A port whose whole distfile set is
// already known-good completes without spawning: the second of two ports
// sharing a distfile rides on the first one's verification.
func NewChecksumJob(p *port.Port, dist *DistfileState, sup *supervisor.Supervisor, poster signal.Poster, makeBin string, env map[string]string, out io.Writer) *Job {
	return &Job{
		St:       port.StageChecksum,
		Port:     p,
		Poster:   poster,
		Complete: func(p *port.Port) bool { return dist.allFetched(p.Attrs.Distfiles) },
		PreMake: func(p *port.Port, done func(bool)) error {
			if !dist.tryLock(p.Attrs.Distfiles) {
				return queue.ErrStalled
			}
			cmd := &environment.ExecCommand{
				Command: makeBin,
				Args:    []string{"checksum"},
				WorkDir: p.Attrs.WrkDir,
				Env:     mergeEnv(env, map[string]string{"FETCH_REGET": "0"}),
				Stdout:  out,
				Stderr:  out,
			}
			sup.Run(context.Background(), cmd, func(res supervisor.Result) {
				ok := res.Err == nil && res.Res.ExitCode == 0
				dist.markChecksum(p.Attrs.Distfiles, ok)
				dist.unlock(p.Attrs.Distfiles)
				done(!ok)
			})
			return nil
		},
	}
}

// NewFetchJob builds the Fetch stage's Job, invoked through the recipe's
// checksum target so missing files are downloaded and verified in one
// step. If every one of the port's distfiles has already permanently
// failed to fetch elsewhere, the stage finalises failed immediately
// without spawning anything — stalling instead would hide a dependency
// soft-failure the resolver needs to see in order to fall back to
// another method. A set already known-good completes without spawning.
func NewFetchJob(p *port.Port, dist *DistfileState, sup *supervisor.Supervisor, poster signal.Poster, makeBin string, env map[string]string, out io.Writer) *Job {
	return &Job{
		St:       port.StageFetch,
		Port:     p,
		Poster:   poster,
		Complete: func(p *port.Port) bool { return dist.allFetched(p.Attrs.Distfiles) },
		PreMake: func(p *port.Port, done func(bool)) error {
			if dist.allFetchFailed(p.Attrs.Distfiles) {
				done(true)
				return nil
			}
			if !dist.tryLock(p.Attrs.Distfiles) {
				return queue.ErrStalled
			}
			cmd := &environment.ExecCommand{
				Command: makeBin,
				Args:    []string{"checksum"},
				WorkDir: p.Attrs.WrkDir,
				Env:     env,
				Stdout:  out,
				Stderr:  out,
			}
			sup.Run(context.Background(), cmd, func(res supervisor.Result) {
				ok := res.Err == nil && res.Res.ExitCode == 0
				dist.markFetch(p.Attrs.Distfiles, ok)
				dist.unlock(p.Attrs.Distfiles)
				done(!ok)
			})
			return nil
		},
	}
}
