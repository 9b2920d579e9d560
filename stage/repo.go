package stage

import (
	"context"

	"portforge/environment"
	"portforge/port"
	"portforge/signal"
	"portforge/supervisor"
)

// NewRepoConfigJob builds the RepoConfig stage's Job: verifies a fetched
// repo package's option set matches the currently configured options via
// the host packager's query interface. A mismatch finalises as failure
// so the resolver can fall back to the next method.
// optionsMatch runs off the loop thread since a packager query is itself
// a subprocess in all real backends, but it isn't modeled as an
// environment.ExecCommand here since it returns a parsed answer rather
// than an exit code — callers implementing it are expected to invoke the
// query and compare option sets themselves.
func NewRepoConfigJob(p *port.Port, poster signal.Poster, optionsMatch func(p *port.Port) bool) *Job {
	return &Job{
		St:     port.StageRepoConfig,
		Port:   p,
		Poster: poster,
		PreMake: func(p *port.Port, done func(bool)) error {
			go func() {
				ok := optionsMatch(p)
				poster.Post(func() { done(!ok) })
			}()
			return nil
		},
	}
}

// NewRepoFetchJob builds the RepoFetch stage's Job: skipped (trivially
// complete) if the package is already cached; otherwise fetches it via
// the host packager.
func NewRepoFetchJob(p *port.Port, poster signal.Poster, sup *supervisor.Supervisor, packagerBin string, cached func(p *port.Port) bool) *Job {
	return &Job{
		St:       port.StageRepoFetch,
		Port:     p,
		Poster:   poster,
		Complete: cached,
		PreMake: func(p *port.Port, done func(bool)) error {
			cmd := &environment.ExecCommand{Command: packagerBin, Args: []string{"fetch", "-y", p.Attrs.PkgName}}
			sup.Run(context.Background(), cmd, func(res supervisor.Result) {
				done(res.Err != nil || res.Res.ExitCode != 0)
			})
			return nil
		},
	}
}

// NewRepoInstallJob builds the RepoInstall stage's Job: the actual
// repo-based install, via the host packager.
func NewRepoInstallJob(p *port.Port, sup *supervisor.Supervisor, packagerBin string, onInstalled func(p *port.Port)) *Job {
	return &Job{
		St:   port.StageRepoInstall,
		Port: p,
		PreMake: func(p *port.Port, done func(bool)) error {
			cmd := &environment.ExecCommand{Command: packagerBin, Args: []string{"install", "-y", p.Attrs.PkgName}}
			sup.Run(context.Background(), cmd, func(res supervisor.Result) {
				ok := res.Err == nil && res.Res.ExitCode == 0
				if ok {
					p.InstallStatus = port.Current
					if onInstalled != nil {
						onInstalled(p)
					}
				}
				done(!ok)
			})
			return nil
		},
	}
}
