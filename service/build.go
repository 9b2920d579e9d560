package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"portforge/builddb"
	"portforge/migration"
	"portforge/orchestrator"
	"portforge/port"
	"portforge/stats"
)

// Build orchestrates the complete build workflow for the specified ports.
//
// The build process includes:
//  1. Optional migration of legacy CRC data (if enabled and needed)
//  2. Attribute discovery and dependency resolution
//  3. CRC-based incremental skip detection
//  4. Driving every discovered port through its stages on the event loop
//  5. Recording a run ledger entry per port in the build database
//
// This method handles all the business logic but does not interact with
// the user. The caller is responsible for:
//   - Displaying progress/status to the user
//   - Prompting for confirmations
//   - Signal handling (Ctrl+C, etc.)
//
// Returns BuildResult containing stats and port information, or an error
// if the build could not start at all. A run that started but had port
// failures still returns a result — per-port failure lives in Stats.
func (s *Service) Build(opts BuildOptions) (*BuildResult, error) {
	startTime := time.Now()

	if err := s.detectAndMigrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	if len(opts.PortList) == 0 {
		return nil, fmt.Errorf("no ports specified")
	}

	runID := uuid.NewString()
	if err := s.db.StartRun(runID, startTime); err != nil {
		s.logger.Warn("build: recording run start: %v", err)
	}

	// Live stats: the collector samples once a second and persists a
	// snapshot onto the run record, which is what `portforge monitor`
	// in another terminal polls.
	collectorCtx, stopCollector := context.WithCancel(context.Background())
	collector := stats.NewStatsCollector(collectorCtx, s.cfg.MaxWorkers)
	collector.AddConsumer(stats.NewBuildDBWriter(s.db, runID))
	defer func() {
		stopCollector()
		collector.Close()
	}()

	observer := func(ev port.StageCompletedEvent) {
		if ev.Stage == port.StageInstall || ev.Stage == port.StagePkgInstall || ev.Stage == port.StageRepoInstall {
			if ev.Failed {
				collector.RecordCompletion(stats.BuildFailed)
			} else {
				collector.RecordCompletion(stats.BuildSuccess)
			}
		}
		if opts.Observer != nil {
			opts.Observer(ev)
		}
	}

	runStats, ports, err := orchestrator.Run(context.Background(), s.cfg, s.logger, s.db, opts.PortList, orchestrator.Options{
		Methods:      opts.Methods,
		ConfigPolicy: opts.ConfigPolicy,
		Batch:        opts.Batch,
		FetchOnly:    opts.FetchOnly,
		WithPackage:  opts.WithPackage,
		DryRun:       opts.DryRun,
		Force:        opts.Force,
		MakeEnv:      opts.MakeEnv,
		Observer:     observer,
		Control:      opts.Control,
	})
	if err != nil {
		return nil, fmt.Errorf("build failed: %w", err)
	}

	s.recordOutcomes(runID, ports, startTime)
	if err := s.db.FinishRun(runID, builddb.RunStats{
		Total:   runStats.Total,
		Success: runStats.Succeeded,
		Failed:  runStats.Failed,
		Skipped: runStats.Skipped,
	}, time.Now(), runStats.Aborted); err != nil {
		s.logger.Warn("build: recording run finish: %v", err)
	}

	needBuild := 0
	for _, p := range ports {
		if p.InstallStatus != port.Current {
			needBuild++
		}
	}

	return &BuildResult{
		Stats: &BuildStats{
			Total:     runStats.Total,
			Succeeded: runStats.Succeeded,
			Failed:    runStats.Failed,
			Skipped:   runStats.Skipped,
			Aborted:   runStats.Aborted,
		},
		Packages:  ports,
		NeedBuild: needBuild,
		Duration:  time.Since(startTime),
	}, nil
}

// recordOutcomes appends a build record for every port of the run (ports
// that never completed Depend are recorded as skipped), and refreshes the CRC index for the successes so the next run's skip
// detection sees them as current.
func (s *Service) recordOutcomes(runID string, ports []*port.Port, startTime time.Time) {
	now := time.Now()
	for _, p := range ports {
		status := builddb.RunStatusSuccess
		switch {
		case p.Failed:
			status = builddb.RunStatusFailed
		case !p.HasCompleted(port.StageDepend):
			status = builddb.RunStatusSkipped
		}

		rec := &builddb.BuildRecord{
			UUID:      uuid.NewString(),
			PortDir:   p.Origin,
			Version:   p.Attrs.PkgName,
			Status:    status,
			StartTime: startTime,
			EndTime:   now,
		}
		if err := s.db.SaveRecord(rec); err != nil {
			s.logger.Warn("build: recording %s: %v", p.Origin, err)
			continue
		}
		if err := s.db.PutRunPackage(runID, &builddb.RunPackageRecord{
			PortDir:   p.Origin,
			Version:   p.Attrs.PkgName,
			Status:    status,
			StartTime: startTime,
			EndTime:   now,
		}); err != nil {
			s.logger.Warn("build: run ledger %s: %v", p.Origin, err)
		}

		if status != builddb.RunStatusSuccess {
			continue
		}
		if crc, err := builddb.ComputePortCRC(filepath.Join(s.cfg.DPortsPath, p.Origin)); err == nil {
			if err := s.db.UpdateCRC(p.Origin, crc); err != nil {
				s.logger.Warn("build: CRC index %s: %v", p.Origin, err)
			}
		}
	}
}

// markNeedingBuild determines which ports need building based on CRC
// comparison. If force is true, every port is counted regardless of CRC
// status.
func (s *Service) markNeedingBuild(ports []*port.Port, force bool) (int, error) {
	if force {
		return len(ports), nil
	}

	needBuild := 0
	for _, p := range ports {
		crc, err := builddb.ComputePortCRC(filepath.Join(s.cfg.DPortsPath, p.Origin))
		if err != nil {
			needBuild++
			continue
		}
		needs, err := s.db.NeedsBuild(p.Origin, crc)
		if err != nil || needs {
			needBuild++
		}
	}
	return needBuild, nil
}

// GetBuildPlan returns information about what would be built without
// actually building — attribute discovery and the CRC check run, the
// event loop and environment backend do not.
func (s *Service) GetBuildPlan(portList []string) (*BuildPlan, error) {
	if len(portList) == 0 {
		return nil, fmt.Errorf("no ports specified")
	}

	entries, err := orchestrator.Plan(context.Background(), s.cfg, s.db, portList, false)
	if err != nil {
		return nil, err
	}

	var toBuild, toSkip []string
	for _, e := range entries {
		if e.NeedBuild {
			toBuild = append(toBuild, e.Origin)
		} else {
			toSkip = append(toSkip, e.Origin)
		}
	}

	return &BuildPlan{
		TotalPackages: len(entries),
		ToBuild:       toBuild,
		ToSkip:        toSkip,
		NeedBuild:     len(toBuild),
	}, nil
}

// BuildPlan contains information about a planned build.
type BuildPlan struct {
	TotalPackages int      // Total number of ports (including dependencies)
	ToBuild       []string // Ports that will be built
	ToSkip        []string // Ports that will be skipped (already built, up-to-date)
	NeedBuild     int      // Number of ports that need building
}

// detectAndMigrate checks for legacy CRC data and migrates it if
// configured and needed.
func (s *Service) detectAndMigrate() error {
	if !s.cfg.Migration.AutoMigrate {
		return nil
	}

	if !migration.DetectMigrationNeeded(s.cfg) {
		return nil
	}

	s.logger.Info("Migrating legacy CRC data...")
	if err := migration.MigrateLegacyCRC(s.cfg, s.db, s.logger); err != nil {
		return fmt.Errorf("CRC migration failed: %w", err)
	}
	s.logger.Info("Migration complete")

	return nil
}

// MigrationStatus returns information about legacy CRC migration.
type MigrationStatus struct {
	Needed     bool   // Whether migration is needed
	LegacyFile string // Path to legacy CRC file (if it exists)
}

// CheckMigrationStatus checks if legacy CRC migration is needed.
func (s *Service) CheckMigrationStatus() (*MigrationStatus, error) {
	needed := migration.DetectMigrationNeeded(s.cfg)
	var legacyFile string
	if needed {
		legacyFile = s.cfg.BuildBase + "/crc_index"
		if _, err := os.Stat(legacyFile); err != nil {
			// File doesn't exist despite detection (race condition?)
			needed = false
		}
	}

	return &MigrationStatus{
		Needed:     needed,
		LegacyFile: legacyFile,
	}, nil
}

// PerformMigration manually triggers legacy CRC migration.
//
// This is useful when the caller wants explicit control over when
// migration happens, rather than relying on auto-migration during
// Build().
func (s *Service) PerformMigration() error {
	if !migration.DetectMigrationNeeded(s.cfg) {
		return fmt.Errorf("no migration needed")
	}

	s.logger.Info("Starting manual migration of legacy CRC data...")
	if err := migration.MigrateLegacyCRC(s.cfg, s.db, s.logger); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	s.logger.Info("Migration complete")

	return nil
}
