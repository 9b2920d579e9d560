package stage

import (
	"context"
	"io"

	"portforge/environment"
	"portforge/port"
	"portforge/signal"
	"portforge/supervisor"
)

// MakeTarget configures one Make-family stage's recipe invocation: the
// target name, any per-phase argument/environment overrides, and where
// the recipe's output streams (normally the port's own log file).
type MakeTarget struct {
	Target string
	Args   []string
	Env    map[string]string
	Output io.Writer
}

// mergeEnv overlays extra onto base without mutating either. Nil maps
// pass through untouched.
func mergeEnv(base, extra map[string]string) map[string]string {
	if len(extra) == 0 {
		return base
	}
	if len(base) == 0 {
		return extra
	}
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func makeCommand(makeBin string, p *port.Port, t MakeTarget) *environment.ExecCommand {
	return &environment.ExecCommand{
		Command: makeBin,
		Args:    append([]string{t.Target}, t.Args...),
		WorkDir: p.Attrs.WrkDir,
		Env:     t.Env,
		Stdout:  t.Output,
		Stderr:  t.Output,
	}
}

// NewBuildJob builds the Build stage's Job: a single recipe invocation.
// The job's load against the build queue is the port's jobs_number, so a
// parallel make claims a matching share of the queue's budget.
func NewBuildJob(p *port.Port, sup *supervisor.Supervisor, makeBin string, target MakeTarget) *Job {
	return &Job{
		St:         port.StageBuild,
		Port:       p,
		LoadWeight: p.Attrs.JobsNumber,
		PreMake: func(p *port.Port, done func(bool)) error {
			sup.Run(context.Background(), makeCommand(makeBin, p, target), func(res supervisor.Result) {
				done(res.Err != nil || res.Res.ExitCode != 0)
			})
			return nil
		},
	}
}

// NewInstallJob builds the Install stage's Job: runs `install` when the
// port isn't currently installed, otherwise `deinstall` followed by
// `reinstall`. On success it records InstallStatus and
// notifies onInstalled so the caller can propagate the change to the
// dependency graph.
func NewInstallJob(p *port.Port, sup *supervisor.Supervisor, makeBin string, env map[string]string, out io.Writer, onInstalled func(p *port.Port)) *Job {
	finish := func(p *port.Port, ok bool, done func(bool)) {
		if ok {
			p.InstallStatus = port.Current
			if onInstalled != nil {
				onInstalled(p)
			}
		}
		done(!ok)
	}

	return &Job{
		St:   port.StageInstall,
		Port: p,
		PreMake: func(p *port.Port, done func(bool)) error {
			if p.InstallStatus == port.Absent {
				cmd := makeCommand(makeBin, p, MakeTarget{Target: "install", Env: env, Output: out})
				sup.Run(context.Background(), cmd, func(res supervisor.Result) {
					finish(p, res.Err == nil && res.Res.ExitCode == 0, done)
				})
				return nil
			}

			deinstall := makeCommand(makeBin, p, MakeTarget{Target: "deinstall", Env: env, Output: out})
			sup.Run(context.Background(), deinstall, func(res supervisor.Result) {
				if res.Err != nil || res.Res.ExitCode != 0 {
					done(true)
					return
				}
				reinstall := makeCommand(makeBin, p, MakeTarget{Target: "reinstall", Env: env, Output: out})
				sup.Run(context.Background(), reinstall, func(res supervisor.Result) {
					finish(p, res.Err == nil && res.Res.ExitCode == 0, done)
				})
			})
			return nil
		},
	}
}

// NewPackageJob builds the Package stage's Job. A port whose recipe
// declares no_package is trivially complete.
func NewPackageJob(p *port.Port, poster signal.Poster, sup *supervisor.Supervisor, makeBin string, target MakeTarget) *Job {
	return &Job{
		St:       port.StagePackage,
		Port:     p,
		Poster:   poster,
		Complete: func(p *port.Port) bool { return p.Attrs.NoPackage },
		PreMake: func(p *port.Port, done func(bool)) error {
			sup.Run(context.Background(), makeCommand(makeBin, p, target), func(res supervisor.Result) {
				done(res.Err != nil || res.Res.ExitCode != 0)
			})
			return nil
		},
	}
}
