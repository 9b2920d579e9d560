package service

import (
	"time"

	"portforge/builddb"
	"portforge/orchestrator"
	"portforge/port"
	"portforge/resolver"
	"portforge/stage"
)

// BuildOptions contains options for the Build service.
type BuildOptions struct {
	PortList []string // List of ports to build

	Methods      []resolver.Method // Resolution method order; empty = build-only
	ConfigPolicy stage.Policy      // When the Config stage reruns
	Batch        bool              // Suppress the interactive configurator
	FetchOnly    bool              // Checksum+Fetch only, no build or install
	WithPackage  bool              // Package after install
	DryRun       bool              // Print recipe commands, execute nothing
	Force        bool              // Force rebuild even if up-to-date

	MakeEnv map[string]string // User -D definitions and VAR=VALUE overrides

	Observer func(ev port.StageCompletedEvent) // Optional per-stage hook (dashboard)
	Control  *orchestrator.Control             // Optional stop control (signal handling)
}

// BuildStats summarizes the outcome of one run across every port the
// resolver touched.
type BuildStats struct {
	Total     int  // Ports entered into the run
	Succeeded int  // Resolver finished without Failed set
	Failed    int  // Resolver finished with Failed set (all methods exhausted)
	Skipped   int  // Already up-to-date and not forced
	Aborted   bool // Run was stopped before every port resolved
}

// BuildResult contains the results of a build operation.
type BuildResult struct {
	Stats     *BuildStats   // Build statistics
	Packages  []*port.Port  // All ports that entered the run (including dependencies)
	NeedBuild int           // Number of ports that needed building
	Duration  time.Duration // Total build duration
}

// InitOptions contains options for the Initialize service.
type InitOptions struct {
	AutoMigrate     bool // Automatically migrate legacy CRC data if found
	SkipSystemFiles bool // Skip copying system files (for testing)
}

// InitResult contains the results of an initialization operation.
type InitResult struct {
	DirsCreated        []string // List of directories created
	TemplateCreated    bool     // Whether template directory was created
	DatabaseInitalized bool     // Whether database was initialized
	MigrationNeeded    bool     // Whether legacy CRC migration is needed
	MigrationPerformed bool     // Whether migration was performed
	PortsFound         int      // Number of entries found in ports directory
	Warnings           []string // Non-fatal warnings
}

// StatusOptions contains options for the GetStatus service.
type StatusOptions struct {
	PortList []string // List of ports to check status for (empty = all)
}

// StatusResult contains the results of a status query.
type StatusResult struct {
	Ports        []PortStatus     // Status of individual ports
	DatabaseSize int64            // Size of BuildDB in bytes
	Stats        *builddb.DBStats // Database statistics
}

// PortStatus contains status information for a single port.
type PortStatus struct {
	PortDir    string               // Port directory (e.g., "editors/vim")
	Version    string               // Port version
	LastBuild  *builddb.BuildRecord // Most recent build record (nil if never built)
	NeedsBuild bool                 // Whether port needs rebuilding
	CRC        uint32               // Current CRC value
}

// CleanupOptions contains options for the Cleanup service.
type CleanupOptions struct {
	Force bool // Force cleanup even if mounts are in use
}

// CleanupResult contains the results of a cleanup operation.
type CleanupResult struct {
	WorkersCleaned int     // Number of workers cleaned up
	Errors         []error // Non-fatal errors encountered
}

// DatabaseOptions contains options for database operations.
type DatabaseOptions struct {
	Backup bool // Create backup before operation
	Force  bool // Force operation without confirmation
}
