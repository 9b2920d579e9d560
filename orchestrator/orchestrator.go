// Package orchestrator wires the event loop, queue managers, dependency
// graph, attribute fetcher, resolver and stack builders into one run:
// attribute discovery fans out first, then every discovered port is
// driven through the stage protocol until the loop goes quiescent.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"portforge/attrs"
	"portforge/builddb"
	"portforge/config"
	"portforge/depgraph"
	"portforge/environment"
	_ "portforge/environment/bsd"
	"portforge/log"
	"portforge/loop"
	"portforge/pkgdb"
	"portforge/port"
	"portforge/queue"
	"portforge/resolver"
	"portforge/signal"
	"portforge/stage"
	"portforge/stats"
	"portforge/supervisor"
)

// Stats summarizes one run across every port the resolver touched.
type Stats struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int // already installed at the current CRC, Force not set
	Aborted   bool
}

// Options selects what a run builds and how.
type Options struct {
	// Methods is the resolver's method order. Empty means build-only.
	Methods []resolver.Method

	// ConfigPolicy controls when the Config stage reruns. Batch forces
	// PolicyNone regardless.
	ConfigPolicy stage.Policy

	// Batch suppresses the interactive configurator entirely.
	Batch bool

	// FetchOnly stops the build stack after Fetch: distfiles are
	// verified and downloaded, nothing is compiled or installed.
	FetchOnly bool

	// WithPackage appends the Package stage after Install.
	WithPackage bool

	// DryRun substitutes fake subprocess handles: every recipe
	// invocation is printed to Trace and reported as an immediate
	// success.
	DryRun bool

	// Force rebuilds ports whose recorded CRC still matches.
	Force bool

	// MakeEnv carries user -D definitions and VAR=VALUE overrides,
	// layered over the per-stage recipe environment.
	MakeEnv map[string]string

	// Trace receives dry-run command echo. Defaults to os.Stdout when
	// DryRun is set and Trace is nil.
	Trace io.Writer

	// Observer, when non-nil, receives every port's stage transitions —
	// the hook the terminal dashboard hangs off.
	Observer func(ev port.StageCompletedEvent)

	// Control, when non-nil, is armed so a concurrent caller (a signal
	// handler) can stop the run.
	Control *Control

	// HostDB overrides the host package database (tests). Nil means a
	// real pkg(8)-backed one for cfg.PackagerBin.
	HostDB pkgdb.PackageDB
}

// Control lets a goroutine outside the event loop stop a running build,
// with escalation: a graceful stop blocks new admissions and lets active
// recipes finish, kill terminates the active recipes too, and killClean
// additionally abandons cleanup and halts the loop outright.
type Control struct {
	mu      sync.Mutex
	apply   func(kill, killClean bool)
	stops   int
	pending []stopRequest
}

type stopRequest struct{ kill, killClean bool }

// NewControl creates a Control to pass in Options.Control.
func NewControl() *Control { return &Control{} }

// Stop requests a shutdown. Safe to call from any goroutine, any number
// of times; requests made before the run has armed the control are
// replayed once it does.
func (c *Control) Stop(kill, killClean bool) {
	c.mu.Lock()
	apply := c.apply
	if apply == nil {
		c.pending = append(c.pending, stopRequest{kill, killClean})
	}
	c.mu.Unlock()
	if apply != nil {
		apply(kill, killClean)
	}
}

// Stops reports how many times Stop has been requested, for the
// front-end's repeated-interrupt escalation.
func (c *Control) Stops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

func (c *Control) arm(apply func(kill, killClean bool)) {
	c.mu.Lock()
	c.apply = func(kill, killClean bool) {
		c.mu.Lock()
		c.stops++
		c.mu.Unlock()
		apply(kill, killClean)
	}
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, req := range pending {
		c.apply(req.kill, req.killClean)
	}
}

// recipeEnv builds the environment overrides passed on every recipe
// invocation: the standard batch-build knobs, then the user's own
// definitions on top.
func recipeEnv(user map[string]string) map[string]string {
	env := map[string]string{
		"BATCH":             "true",
		"NO_DEPENDS":        "true",
		"DISABLE_CONFLICTS": "true",
		"NOCLEANDEPENDS":    "true",
	}
	for k, v := range user {
		env[k] = v
	}
	return env
}

// Run fetches attributes for origins and their full transitive dependency
// closure, then drives every discovered port through the stage protocol
// to completion (successfully, via fallback to another method, or by
// hard failure), returning summary stats and every port that entered the
// run.
//
// Run owns one full event-loop lifetime: it constructs a fresh Loop,
// Cache, Graph, queue set, Supervisor and Resolver, and blocks until the
// loop goes quiescent. It is not safe to call twice concurrently for the
// same cfg.BuildBase (the environment backend's worker-0 base directory
// is reused across the whole run).
func Run(ctx context.Context, cfg *config.Config, logger log.LibraryLogger, db *builddb.DB, origins []string, opts Options) (*Stats, []*port.Port, error) {
	if len(origins) == 0 {
		return nil, nil, fmt.Errorf("orchestrator: no ports specified")
	}
	if len(opts.Methods) == 0 {
		opts.Methods = []resolver.Method{resolver.MethodBuild}
	}

	l := loop.New()
	cache := port.NewCache(l)
	graph := depgraph.New()
	fetcher := attrs.NewFetcher(cfg.MakeBin, cfg.DPortsPath)

	closure, fetchFailed, err := discoverClosure(ctx, cache, fetcher, origins, cfg.MaxWorkers)
	if err != nil {
		return nil, nil, err
	}
	for origin, ferr := range fetchFailed {
		logger.Warn("attrs: %s: %v", origin, ferr)
	}

	// The host packager owns the truth about what is installed; refresh
	// the cached view once per run. A failed listing (no pkg on the
	// host, empty jail) degrades to an empty database, i.e. everything
	// reads as absent and gets built.
	hostDB := opts.HostDB
	if hostDB == nil {
		hostDB = pkgdb.NewPkgNG(cfg.PackagerBin)
	}
	if err := hostDB.Load(); err != nil {
		logger.Warn("pkgdb: %v", err)
	}

	markInstallStatus(cache, closure, db, hostDB, cfg.DPortsPath, opts.Force)
	seedPriorities(cache, closure)
	failCycles(cache, closure, logger)

	env, err := environment.New(cfg.Backend)
	if err != nil {
		return nil, nil, fmt.Errorf("orchestrator: environment %q: %w", cfg.Backend, err)
	}
	if err := env.Setup(0, cfg, logger); err != nil {
		return nil, nil, fmt.Errorf("orchestrator: environment setup: %w", err)
	}
	defer env.Cleanup()

	sup := supervisor.New(env, l)
	if opts.DryRun {
		trace := opts.Trace
		if trace == nil {
			trace = os.Stdout
		}
		sup.SetDryRun(trace)
	}
	l.Watch(sup)

	caps := queue.NewStandardCaps(cfg.MaxWorkers)
	for _, mgr := range caps.All() {
		l.Watch(mgr)
	}

	baseEnv := recipeEnv(opts.MakeEnv)
	lookup := func(origin string) (*port.Port, bool) { return cache.Lookup(origin) }

	// One append-only log per port, opened lazily the first time one of
	// its recipe invocations needs somewhere to stream.
	portLogs := make(map[*port.Port]*log.PackageLogger)
	logFor := func(p *port.Port) *log.PackageLogger {
		pl, ok := portLogs[p]
		if !ok {
			pl = log.NewPackageLogger(cfg, p.Origin)
			pl.WriteHeader()
			p.LogFile = pl.Path()
			portLogs[p] = pl
		}
		return pl
	}
	defer func() {
		for _, pl := range portLogs {
			pl.Close()
		}
	}()

	var res *resolver.Resolver

	configPolicy := opts.ConfigPolicy
	if opts.Batch {
		configPolicy = stage.PolicyNone
	}

	commonBuilder := stage.NewStackBuilder(port.StackCommon,
		[]port.Stage{port.StageConfig, port.StageDepend},
		map[port.Stage]stage.JobFactory{
			port.StageConfig: func(p *port.Port) *stage.Job {
				return stage.NewConfigJob(p, l, cfg.MakeBin, configPolicy)
			},
			port.StageDepend: func(p *port.Port) *stage.Job {
				return stage.NewDependJob(p, l, graph, lookup, res, func() {
					for _, mgr := range caps.All() {
						mgr.Reorder()
					}
				})
			},
		},
		map[port.Stage]*queue.Manager{
			port.StageConfig: caps.Config,
			port.StageDepend: caps.Attr,
		}, l)

	packageFileExists := func(p *port.Port) bool {
		if p.Attrs.PkgFile == "" {
			return false
		}
		_, err := os.Stat(filepath.Join(cfg.PackagesPath, p.Attrs.PkgFile))
		return err == nil
	}

	onInstalled := func(p *port.Port) {
		// Drop any older recorded version of this port before recording
		// the fresh install, keeping the cached host view in sync.
		hostDB.Remove(p.Origin, p.Attrs.PkgName)
		hostDB.Add(p.Origin, p.Attrs.PkgName)
		graph.SetStatus(p, depgraph.Resolved)
	}

	// RepoConfig verifies a repo package's option set against the
	// configured one before the repo stack may install it: option names
	// the run knows about must agree on/off with what the repository
	// built. An unqueryable package reads as a mismatch, so the
	// resolver falls back to another method instead of installing an
	// unverified package.
	repoOptionsMatch := func(p *port.Port) bool {
		if len(p.Attrs.Options) == 0 {
			return true
		}
		remote, err := hostDB.Options(p.Attrs.PkgName, true)
		if err != nil {
			return false
		}
		want := make(map[string]bool, len(p.Attrs.Options))
		for _, opt := range p.Attrs.Options {
			want[opt.Name] = opt.Default
		}
		if of, ok := stage.ReadOptionsFile(p.Attrs.OptionsFile); ok {
			for name, on := range of.Options {
				want[name] = on
			}
		}
		for name, on := range remote {
			if cfgOn, known := want[name]; known && cfgOn != on {
				return false
			}
		}
		return true
	}

	dist := stage.NewDistfileState()

	buildStages := []port.Stage{port.StageChecksum, port.StageFetch, port.StageBuild, port.StageInstall}
	if opts.FetchOnly {
		buildStages = []port.Stage{port.StageChecksum, port.StageFetch}
	} else if opts.WithPackage {
		buildStages = append(buildStages, port.StagePackage)
	}

	buildBuilder := stage.NewStackBuilder(port.StackBuild,
		buildStages,
		map[port.Stage]stage.JobFactory{
			port.StageChecksum: func(p *port.Port) *stage.Job {
				pl := logFor(p)
				pl.WritePhase("checksum")
				return stage.NewChecksumJob(p, dist, sup, l, cfg.MakeBin, baseEnv, pl)
			},
			port.StageFetch: func(p *port.Port) *stage.Job {
				pl := logFor(p)
				pl.WritePhase("fetch")
				return stage.NewFetchJob(p, dist, sup, l, cfg.MakeBin, baseEnv, pl)
			},
			port.StageBuild: func(p *port.Port) *stage.Job {
				pl := logFor(p)
				pl.WritePhase("build")
				return stage.NewBuildJob(p, sup, cfg.MakeBin, stage.MakeTarget{Target: "all", Env: baseEnv, Output: pl})
			},
			port.StageInstall: func(p *port.Port) *stage.Job {
				pl := logFor(p)
				pl.WritePhase("install")
				return stage.NewInstallJob(p, sup, cfg.MakeBin, baseEnv, pl, onInstalled)
			},
			port.StagePackage: func(p *port.Port) *stage.Job {
				pl := logFor(p)
				pl.WritePhase("package")
				return stage.NewPackageJob(p, l, sup, cfg.MakeBin, stage.MakeTarget{Target: "package", Env: baseEnv, Output: pl})
			},
		},
		map[port.Stage]*queue.Manager{
			port.StageChecksum: caps.Checksum,
			port.StageFetch:    caps.Fetch,
			port.StageBuild:    caps.Build,
			port.StageInstall:  caps.Install,
			port.StagePackage:  caps.Package,
		}, l)

	packageBuilder := stage.NewStackBuilder(port.StackPackage,
		[]port.Stage{port.StagePkgInstall},
		map[port.Stage]stage.JobFactory{
			port.StagePkgInstall: func(p *port.Port) *stage.Job {
				return stage.NewPkgInstallJob(p, sup, cfg.PackagerBin, packageFileExists)
			},
		},
		map[port.Stage]*queue.Manager{port.StagePkgInstall: caps.Install}, l)

	repoBuilder := stage.NewStackBuilder(port.StackRepo,
		[]port.Stage{port.StageRepoConfig, port.StageRepoFetch, port.StageRepoInstall},
		map[port.Stage]stage.JobFactory{
			port.StageRepoConfig:  func(p *port.Port) *stage.Job { return stage.NewRepoConfigJob(p, l, repoOptionsMatch) },
			port.StageRepoFetch:   func(p *port.Port) *stage.Job { return stage.NewRepoFetchJob(p, l, sup, cfg.PackagerBin, packageFileExists) },
			port.StageRepoInstall: func(p *port.Port) *stage.Job { return stage.NewRepoInstallJob(p, sup, cfg.PackagerBin, onInstalled) },
		},
		map[port.Stage]*queue.Manager{
			port.StageRepoConfig:  caps.Attr,
			port.StageRepoFetch:   caps.Fetch,
			port.StageRepoInstall: caps.Install,
		}, l)

	gate := newCommonGate(commonBuilder, l)
	stacks := make(map[resolver.Method]resolver.Stack)
	for _, m := range opts.Methods {
		switch m {
		case resolver.MethodBuild:
			stacks[m] = newGatedStack(gate, buildBuilder, l)
		case resolver.MethodPackage:
			stacks[m] = newGatedStack(gate, packageBuilder, l)
		case resolver.MethodRepo:
			stacks[m] = newGatedStack(gate, repoBuilder, l)
		}
	}
	res = resolver.New(l, opts.Methods, stacks)

	runStats := &Stats{Total: len(closure)}

	if opts.Control != nil {
		opts.Control.arm(func(kill, killClean bool) {
			l.Ready() <- func() {
				runStats.Aborted = true
				caps.Stop(cfg.MaxWorkers)
				if kill {
					sup.Terminate()
				}
				if killClean {
					caps.Clean.SetLoadCap(0)
					l.RequestStop()
				}
			}
		})
	}

	if opts.Observer != nil {
		for _, origin := range closure {
			p, _ := cache.Lookup(origin)
			p.StageCompleted.Connect(opts.Observer)
		}
	}

	stopThrottle := startThrottler(l, caps.Build, cfg.MaxWorkers)
	defer stopThrottle()

	remaining := len(closure)
	for _, origin := range closure {
		p, _ := cache.Lookup(origin)
		if p.InstallStatus == port.Current {
			runStats.Skipped++
		}
		res.Resolve(p).Connect(func(done *port.Port) {
			remaining--
			if done.Failed {
				runStats.Failed++
			} else {
				runStats.Succeeded++
				if !opts.FetchOnly && done.HasCompleted(port.StageBuild) {
					caps.Clean.Add(&cleanJob{p: done, sup: sup, makeBin: cfg.MakeBin, env: baseEnv})
				}
			}
			if remaining == 0 {
				l.RequestStop()
			}
		})
	}

	l.Run()

	// With a stop requested the resolver never finishes the stragglers;
	// count them as failed so the totals still add up.
	if runStats.Aborted {
		runStats.Failed = runStats.Total - runStats.Succeeded
	}

	out := make([]*port.Port, 0, len(closure))
	for _, origin := range closure {
		p, _ := cache.Lookup(origin)
		out = append(out, p)
	}
	return runStats, out, nil
}

// cleanJob runs the recipe's clean target for a port whose build
// completed. It is an ordinary queue job rather than a stage: cleanup
// isn't part of any stack's pipeline and must keep draining after a
// graceful stop has zeroed every other queue.
type cleanJob struct {
	p       *port.Port
	sup     *supervisor.Supervisor
	makeBin string
	env     map[string]string
}

func (j *cleanJob) Priority() int { return j.p.Priority }
func (j *cleanJob) Load() int     { return 1 }

func (j *cleanJob) Start(mgr *queue.Manager) error {
	cmd := &environment.ExecCommand{
		Command: j.makeBin,
		Args:    []string{"clean"},
		WorkDir: j.p.Attrs.WrkDir,
		Env:     j.env,
	}
	j.sup.Run(context.Background(), cmd, func(supervisor.Result) {
		mgr.Done(j)
	})
	return nil
}

// startThrottler samples host load and swap every few seconds and posts a
// build-queue cap adjustment onto the loop, so a box drowning in I/O
// admits fewer parallel builds. Returns a func that stops the sampler.
func startThrottler(l *loop.Loop, build *queue.Manager, maxWorkers int) func() {
	throttler := stats.NewWorkerThrottler(maxWorkers, false)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				load, swapPct := stats.SystemHealth()
				dynMax := throttler.CalculateDynMax(load, swapPct)
				select {
				case l.Ready() <- func() {
					if build.LoadCap() > 0 {
						build.SetLoadCap(dynMax * 2)
					}
				}:
				case <-done:
					return
				}
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// PlanEntry describes one port's place in a planned (not yet executed) run.
type PlanEntry struct {
	Origin    string
	NeedBuild bool
}

// Plan runs attribute discovery and the host-status/CRC check without
// constructing the event loop or touching the environment backend —
// everything GetBuildPlan needs to show the caller what a real Run would
// do, at a fraction of the cost.
func Plan(ctx context.Context, cfg *config.Config, db *builddb.DB, origins []string, force bool) ([]PlanEntry, error) {
	if len(origins) == 0 {
		return nil, fmt.Errorf("orchestrator: no ports specified")
	}

	cache := port.NewCache(noopPoster{})
	fetcher := attrs.NewFetcher(cfg.MakeBin, cfg.DPortsPath)

	closure, _, err := discoverClosure(ctx, cache, fetcher, origins, cfg.MaxWorkers)
	if err != nil {
		return nil, err
	}
	// Planning still works against an empty host view if the listing
	// fails; everything then reads as needing a build.
	hostDB := pkgdb.NewPkgNG(cfg.PackagerBin)
	_ = hostDB.Load()
	markInstallStatus(cache, closure, db, hostDB, cfg.DPortsPath, force)

	entries := make([]PlanEntry, 0, len(closure))
	for _, origin := range closure {
		p, _ := cache.Lookup(origin)
		entries = append(entries, PlanEntry{Origin: origin, NeedBuild: p.InstallStatus != port.Current})
	}
	return entries, nil
}

// noopPoster lets Plan build a Cache without a running Loop — Plan never
// runs a stage Job, so no Port ever actually emits StageCompleted.
type noopPoster struct{}

func (noopPoster) Post(fn func()) { fn() }

// discoverClosure breadth-first fetches attributes for roots and every
// origin reachable through their six dependency vectors, populating
// cache so depgraph.Materialize's Lookup always finds an already-known
// Port. A port whose attribute fetch fails is marked Failed and its own
// (unknown) dependencies are not traversed; its origin is still included
// in the returned closure so the caller sees it in the final stats.
func discoverClosure(ctx context.Context, cache *port.Cache, fetcher *attrs.Fetcher, roots []string, concurrency int) ([]string, map[string]error, error) {
	visited := make(map[string]bool)
	var order []string
	allFailed := make(map[string]error)

	frontier := append([]string{}, roots...)
	for len(frontier) > 0 {
		var batch []string
		for _, o := range frontier {
			if !visited[o] {
				visited[o] = true
				batch = append(batch, o)
				order = append(order, o)
			}
		}
		if len(batch) == 0 {
			break
		}

		results, failed := fetcher.FetchAll(ctx, batch, concurrency)
		for origin, ferr := range failed {
			allFailed[origin] = ferr
		}

		var next []string
		for _, origin := range batch {
			p := cache.Get(origin)
			a, ok := results[origin]
			if !ok {
				p.Failed = true
				continue
			}
			p.Attrs = a
			for _, kind := range port.AllDependKinds() {
				for _, dt := range a.DependsFor(kind) {
					if !visited[dt.Origin] {
						next = append(next, dt.Origin)
					}
				}
			}
		}
		frontier = next
	}

	return order, allFailed, nil
}

// markInstallStatus seeds every port's InstallStatus from the host
// package database — the packager's own record of what is installed,
// refreshed at startup — then demotes a Current reading to Older when
// the run is forced or the recorded recipe CRC no longer matches the
// ports tree. A port only short-circuits to resolved when both the host
// says it is installed at the recipe's version and the build ledger
// says nothing changed underneath it since that build.
func markInstallStatus(cache *port.Cache, closure []string, db *builddb.DB, hostDB pkgdb.PackageDB, dportsPath string, force bool) {
	for _, origin := range closure {
		p, ok := cache.Lookup(origin)
		if !ok || p.Failed {
			continue
		}
		p.InstallStatus = hostDB.Status(origin, p.Attrs.PkgName)
		if p.InstallStatus != port.Current {
			continue
		}
		if force {
			p.InstallStatus = port.Older
			continue
		}
		if db == nil {
			continue
		}
		crc, err := builddb.ComputePortCRC(filepath.Join(dportsPath, origin))
		if err != nil {
			p.InstallStatus = port.Older
			continue
		}
		if needsBuild, err := db.NeedsBuild(origin, crc); err != nil || needsBuild {
			p.InstallStatus = port.Older
		}
	}
}

// failCycles runs the topological check over the discovered attribute
// graph before anything is enqueued: a dependency cycle would otherwise
// surface as an outstanding count that never reaches zero — a deadlocked
// run instead of a diagnosable failure. Every port on a cycle is
// hard-failed up front.
func failCycles(cache *port.Cache, closure []string, logger log.LibraryLogger) {
	depsOf := func(p *port.Port) []*port.Port {
		var out []*port.Port
		for _, kind := range port.AllDependKinds() {
			for _, dt := range p.Attrs.DependsFor(kind) {
				if d, ok := cache.Lookup(dt.Origin); ok {
					out = append(out, d)
				}
			}
		}
		return out
	}

	for _, origin := range closure {
		p, ok := cache.Lookup(origin)
		if !ok || p.Failed {
			continue
		}
		if cerr := depgraph.DetectCycle(p, depsOf); cerr != nil {
			logger.Error("depend: %v", cerr)
			p.Failed = true
		}
	}
}

// priorityPerMiB converts distfile bytes into priority points: big
// downloads start earlier so fetch latency overlaps other ports' builds.
const priorityPerMiB = 1

// seedPriorities grows each port's starting priority by its on-disk
// distfile size. Missing files contribute nothing — their size is
// unknown until fetched.
func seedPriorities(cache *port.Cache, closure []string) {
	for _, origin := range closure {
		p, ok := cache.Lookup(origin)
		if !ok || p.Failed {
			continue
		}
		var total int64
		for _, f := range p.Attrs.Distfiles {
			if info, err := os.Stat(filepath.Join(p.Attrs.Distdir, f)); err == nil {
				total += info.Size()
			}
		}
		if mib := int(total / (1 << 20)); mib > 0 {
			p.AddPriority(mib * priorityPerMiB)
		}
	}
}

// commonGate runs a port through the Common stack (Config, Depend)
// exactly once no matter how many resolution methods attempt it,
// fanning its one-time outcome out to every later caller. resolver.Stack
// implementations for the build/package/repo methods all depend on
// Common having already completed (Checksum's guard requires Depend
// done), so every gatedStack shares one commonGate instance rather than
// calling StackBuilder.Add on the same port more than once — Add's
// second call on an already-finished port would register a fresh
// StageCompleted listener that never fires, since the port's Common
// stages won't complete a second time.
type commonGate struct {
	builder *stage.StackBuilder
	poster  signal.Poster

	done    map[*port.Port]bool
	failed  map[*port.Port]bool
	waiters map[*port.Port][]func(*port.Port)
}

func newCommonGate(builder *stage.StackBuilder, poster signal.Poster) *commonGate {
	return &commonGate{
		builder: builder,
		poster:  poster,
		done:    make(map[*port.Port]bool),
		failed:  make(map[*port.Port]bool),
		waiters: make(map[*port.Port][]func(*port.Port)),
	}
}

// onReady calls fn(p) once p's Common stack has finished, immediately
// (deferred through poster) if it already has.
func (g *commonGate) onReady(p *port.Port, fn func(*port.Port)) {
	if g.done[p] {
		g.poster.Post(func() { fn(p) })
		return
	}
	if _, inFlight := g.waiters[p]; inFlight {
		g.waiters[p] = append(g.waiters[p], fn)
		return
	}
	g.waiters[p] = []func(*port.Port){fn}
	g.builder.Add(p).Connect(func(done *port.Port) {
		g.done[done] = true
		g.failed[done] = done.Stack(port.StackCommon).Failed
		waiters := g.waiters[done]
		delete(g.waiters, done)
		for _, w := range waiters {
			w(done)
		}
	})
}

// gatedStack implements resolver.Stack for one method, running Common
// through gate before the method's own StackBuilder.
type gatedStack struct {
	gate   *commonGate
	inner  resolver.Stack
	poster signal.Poster

	pending map[*port.Port]*signal.Signal[*port.Port]
}

func newGatedStack(gate *commonGate, inner resolver.Stack, poster signal.Poster) *gatedStack {
	return &gatedStack{gate: gate, inner: inner, poster: poster, pending: make(map[*port.Port]*signal.Signal[*port.Port])}
}

func (s *gatedStack) Add(p *port.Port) *signal.Signal[*port.Port] {
	if sig, ok := s.pending[p]; ok {
		return sig
	}
	sig := signal.New[*port.Port]("gated:"+p.Origin, s.poster)
	s.pending[p] = sig
	s.gate.onReady(p, func(done *port.Port) {
		delete(s.pending, done)
		if s.gate.failed[done] {
			sig.Emit(done)
			return
		}
		s.inner.Add(done).Connect(func(finished *port.Port) { sig.Emit(finished) })
	})
	return sig
}
