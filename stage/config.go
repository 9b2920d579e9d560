package stage

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/creack/pty"

	"portforge/pkgdb"
	"portforge/port"
	"portforge/signal"
)

// globalConfigMu serializes every Config stage process-wide: the recipe
// step is interactive (it may prompt on a terminal), so only one recipe
// may own the terminal at a time.
var globalConfigMu sync.Mutex

// Policy controls when the Config stage reruns.
type Policy int

const (
	// PolicyChanged reruns iff the recipe's option set differs from the
	// one recorded in the options file. The default.
	PolicyChanged Policy = iota
	// PolicyAll always reruns.
	PolicyAll
	// PolicyNewer reruns iff the recipe's package name is newer than
	// the _OPTIONS_READ one the options file was last written for.
	PolicyNewer
	// PolicyNone never reruns.
	PolicyNone
)

// OptionsFile is the parsed state of a port's recorded options file.
type OptionsFile struct {
	// PkgName is the _OPTIONS_READ value: the package name the file was
	// last written for.
	PkgName string

	// Options maps each recorded option name to its setting — WITH_X=true
	// lines record enabled options, WITHOUT_X=true disabled ones.
	Options map[string]bool
}

// ReadOptionsFile parses the options file at path. ok is false when the
// file doesn't exist or can't be read — a port that has never been
// configured.
func ReadOptionsFile(path string) (of OptionsFile, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		return OptionsFile{}, false
	}
	defer f.Close()

	of.Options = make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "_OPTIONS_READ="):
			of.PkgName = strings.TrimPrefix(line, "_OPTIONS_READ=")
		case strings.HasPrefix(line, "WITH"):
			// WITH_FOO=true and WITHOUT_FOO=true both name the option
			// after their first underscore.
			rest := line[strings.IndexByte(line, '_')+1:]
			name, _, found := strings.Cut(rest, "=")
			if found && name != "" {
				of.Options[name] = strings.HasPrefix(line, "WITH_")
			}
		}
	}
	return of, true
}

// configUpToDate decides whether the recorded options file satisfies
// policy for p, making the Config stage trivially complete. A port with
// no options never needs configuring; otherwise "changed" asks whether
// the recorded option-name set still matches the recipe's, and "newer"
// whether the recipe's package name has moved past the recorded
// _OPTIONS_READ one.
func configUpToDate(p *port.Port, policy Policy) bool {
	if len(p.Attrs.Options) == 0 || policy == PolicyNone {
		return true
	}
	if policy == PolicyAll {
		return false
	}

	of, ok := ReadOptionsFile(p.Attrs.OptionsFile)
	if !ok {
		return false
	}

	switch policy {
	case PolicyChanged:
		if len(of.Options) != len(p.Attrs.Options) {
			return false
		}
		for _, opt := range p.Attrs.Options {
			if _, recorded := of.Options[opt.Name]; !recorded {
				return false
			}
		}
		return true
	case PolicyNewer:
		return pkgdb.Compare(p.Attrs.PkgName, of.PkgName) <= 0
	}
	return true
}

// NewConfigJob builds the Config stage's Job. Unlike every other stage,
// PreMake runs synchronously on the loop thread instead of handing off to
// supervisor.Supervisor: the event loop itself stays suspended for the
// duration of an interactive config run, so that its prompts aren't
// interleaved with other ports' output on stdout — a goroutine hand-off
// would defeat exactly that suspension. The pty
// attachment (rather than a plain os/exec pipe) is what lets the recipe's
// prompts and options menu render normally.
func NewConfigJob(p *port.Port, poster signal.Poster, makeBin string, policy Policy) *Job {
	return &Job{
		St:       port.StageConfig,
		Port:     p,
		Poster:   poster,
		Complete: func(p *port.Port) bool { return configUpToDate(p, policy) },
		PreMake: func(p *port.Port, done func(bool)) error {
			globalConfigMu.Lock()
			defer globalConfigMu.Unlock()

			cmd := exec.Command(makeBin, "-C", p.Attrs.WrkDir, "config")
			tty, err := pty.Start(cmd)
			if err != nil {
				done(true)
				return nil
			}
			defer tty.Close()

			// Stdin copying blocks on a read that may never return once the
			// child exits, so it runs detached rather than joined.
			go io.Copy(tty, os.Stdin)
			io.Copy(os.Stdout, tty)

			waitErr := cmd.Wait()
			done(waitErr != nil)
			return nil
		},
	}
}
