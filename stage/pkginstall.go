package stage

import (
	"context"

	"portforge/environment"
	"portforge/port"
	"portforge/supervisor"
)

// NewPkgInstallJob builds the PkgInstall stage's Job. If the local
// package file doesn't exist, the stage finalises failed immediately
// rather than stalling: a soft failure the resolver can see and fall
// back from is what's needed here, not an indefinite wait for a file
// that may never be produced by this run. Otherwise it invokes the host
// packager's add command directly — not a `make` target.
func NewPkgInstallJob(p *port.Port, sup *supervisor.Supervisor, packagerBin string, packageFileExists func(p *port.Port) bool) *Job {
	return &Job{
		St:   port.StagePkgInstall,
		Port: p,
		PreMake: func(p *port.Port, done func(bool)) error {
			if !packageFileExists(p) {
				done(true)
				return nil
			}
			cmd := &environment.ExecCommand{Command: packagerBin, Args: []string{"add", p.Attrs.PkgFile}}
			sup.Run(context.Background(), cmd, func(res supervisor.Result) {
				done(res.Err != nil || res.Res.ExitCode != 0)
			})
			return nil
		},
	}
}
