package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"portforge/config"
)

// PackageLogger writes one port's append-only build log: header, phase
// markers, raw recipe output, and the final success/failure trailer. The
// file lives at <LogsPath>/<origin with "/" replaced>.log. A logger whose
// file failed to open degrades to a no-op rather than failing the build —
// losing one port's log is not worth losing the port.
type PackageLogger struct {
	cfg     *config.Config
	portDir string
	file    *os.File
	mu      sync.Mutex
}

// NewPackageLogger opens (or creates) the per-port log file for portDir.
func NewPackageLogger(cfg *config.Config, portDir string) *PackageLogger {
	pl := &PackageLogger{cfg: cfg, portDir: portDir}

	name := strings.ReplaceAll(portDir, "/", "___") + ".log"
	f, err := os.OpenFile(filepath.Join(cfg.LogsPath, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err == nil {
		pl.file = f
	}
	return pl
}

// Path returns the log file's path, empty if the file never opened.
func (pl *PackageLogger) Path() string {
	if pl.file == nil {
		return ""
	}
	return pl.file.Name()
}

// Close closes the underlying file. Safe to call more than once.
func (pl *PackageLogger) Close() {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.file != nil {
		pl.file.Close()
		pl.file = nil
	}
}

// WriteHeader writes the opening banner.
func (pl *PackageLogger) WriteHeader() {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.file == nil {
		return
	}
	fmt.Fprintf(pl.file, "%s\n", strings.Repeat("=", 70))
	fmt.Fprintf(pl.file, "Build Log: %s\n", pl.portDir)
	fmt.Fprintf(pl.file, "Started: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(pl.file, "%s\n\n", strings.Repeat("=", 70))
	pl.file.Sync()
}

// WritePhase marks the start of one recipe phase.
func (pl *PackageLogger) WritePhase(phase string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.file == nil {
		return
	}
	fmt.Fprintf(pl.file, "\n")
	fmt.Fprintf(pl.file, "%s\n", strings.Repeat("=", 70))
	fmt.Fprintf(pl.file, "Phase: %s\n", phase)
	fmt.Fprintf(pl.file, "Time: %s\n", time.Now().Format("15:04:05"))
	fmt.Fprintf(pl.file, "%s\n", strings.Repeat("=", 70))
	pl.file.Sync()
}

// Write appends raw recipe output, satisfying io.Writer so a subprocess's
// stdout/stderr can stream straight into the log.
func (pl *PackageLogger) Write(p []byte) (int, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.file == nil {
		return len(p), nil
	}
	return pl.file.Write(p)
}

// WriteString appends a line of text.
func (pl *PackageLogger) WriteString(s string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.file == nil {
		return
	}
	pl.file.WriteString(s)
}

// WriteCommand records the command line about to run.
func (pl *PackageLogger) WriteCommand(cmd string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.file == nil {
		return
	}
	fmt.Fprintf(pl.file, "\n>>> %s\n", cmd)
	pl.file.Sync()
}

// WriteWarning records a non-fatal problem.
func (pl *PackageLogger) WriteWarning(msg string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.file == nil {
		return
	}
	fmt.Fprintf(pl.file, "WARNING: %s\n", msg)
	pl.file.Sync()
}

// WriteError records an error.
func (pl *PackageLogger) WriteError(msg string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.file == nil {
		return
	}
	fmt.Fprintf(pl.file, "ERROR: %s\n", msg)
	pl.file.Sync()
}

// WriteSuccess writes the closing success trailer.
func (pl *PackageLogger) WriteSuccess(duration time.Duration) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.file == nil {
		return
	}
	fmt.Fprintf(pl.file, "\n")
	fmt.Fprintf(pl.file, "%s\n", strings.Repeat("=", 70))
	fmt.Fprintf(pl.file, "BUILD SUCCESS\n")
	fmt.Fprintf(pl.file, "Completed: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(pl.file, "Duration: %s\n", duration)
	fmt.Fprintf(pl.file, "%s\n", strings.Repeat("=", 70))
	pl.file.Sync()
}

// WriteFailure writes the closing failure trailer.
func (pl *PackageLogger) WriteFailure(duration time.Duration, reason string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.file == nil {
		return
	}
	fmt.Fprintf(pl.file, "\n")
	fmt.Fprintf(pl.file, "%s\n", strings.Repeat("=", 70))
	fmt.Fprintf(pl.file, "BUILD FAILED\n")
	fmt.Fprintf(pl.file, "Reason: %s\n", reason)
	fmt.Fprintf(pl.file, "Completed: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(pl.file, "Duration: %s\n", duration)
	fmt.Fprintf(pl.file, "%s\n", strings.Repeat("=", 70))
	pl.file.Sync()
}
