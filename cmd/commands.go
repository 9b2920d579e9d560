package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"portforge/config"
	"portforge/service"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the build environment and database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()
		svc, err := service.NewService(cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		migrate := false
		if svc.NeedsMigration() {
			fmt.Println("Legacy CRC data detected")
			migrate = confirm("Migrate legacy CRC data into the build database?")
		}

		result, err := svc.Initialize(service.InitOptions{AutoMigrate: migrate})
		if err != nil {
			return err
		}

		for _, dir := range result.DirsCreated {
			fmt.Printf("  ✓ %s\n", dir)
		}
		if result.TemplateCreated {
			fmt.Println("  ✓ Template directory")
		}
		if result.DatabaseInitalized {
			fmt.Printf("  ✓ Build database: %s\n", cfg.Database.Path)
		}
		if result.MigrationPerformed {
			fmt.Println("  ✓ Legacy CRC data migrated successfully")
		}
		for _, w := range result.Warnings {
			fmt.Printf("  ! %s\n", w)
		}
		if result.PortsFound > 0 {
			fmt.Printf("  ✓ Ports tree: %d entries\n", result.PortsFound)
		}

		fmt.Println("\nInitialization complete")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [origins...]",
	Short: "Show build database status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()
		svc, err := service.NewService(cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		result, err := svc.GetStatus(service.StatusOptions{PortList: args})
		if err != nil {
			return err
		}

		if len(args) == 0 {
			fmt.Println("Build Database Status")
			fmt.Println("=====================")
			fmt.Printf("Database:      %s\n", svc.GetDatabasePath())
			fmt.Printf("Size:          %d bytes\n", result.DatabaseSize)
			fmt.Printf("Total builds:  %d\n", result.Stats.TotalBuilds)
			fmt.Printf("Total ports:   %d\n", result.Stats.TotalPorts)
			return nil
		}

		for _, ps := range result.Ports {
			fmt.Printf("%s\n", ps.PortDir)
			if ps.LastBuild == nil {
				fmt.Println("  never built")
				continue
			}
			fmt.Printf("  last build:  %s (%s)\n", ps.LastBuild.UUID, ps.LastBuild.Status)
			fmt.Printf("  version:     %s\n", ps.Version)
			fmt.Printf("  finished:    %s\n", ps.LastBuild.EndTime.Format("2006-01-02 15:04:05"))
			if ps.CRC != 0 {
				fmt.Printf("  CRC:         0x%08x\n", ps.CRC)
			}
			fmt.Printf("  needs build: %v\n", ps.NeedsBuild)
		}
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stale worker directories and mounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()
		svc, err := service.NewService(cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		result, err := svc.CleanupStaleWorkers(service.CleanupOptions{})
		if err != nil {
			return err
		}

		fmt.Printf("Cleaned up %d worker director", result.WorkersCleaned)
		if result.WorkersCleaned == 1 {
			fmt.Println("y")
		} else {
			fmt.Println("ies")
		}
		for _, cerr := range result.Errors {
			fmt.Printf("  ! %v\n", cerr)
		}
		return nil
	},
}

var resetDBCmd = &cobra.Command{
	Use:   "reset-db",
	Short: "Delete the build database and all build history",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()
		svc, err := service.NewService(cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		if !confirm("Delete the build database and all build history?") {
			fmt.Println("Reset cancelled")
			exitCode = ExitAborted
			return nil
		}

		result, err := svc.ResetDatabase()
		if err != nil {
			return err
		}
		for _, f := range result.FilesRemoved {
			fmt.Printf("  ✓ removed %s\n", f)
		}
		fmt.Println("Database reset complete")
		return nil
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor [export PATH]",
	Short: "Watch an active build's progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		return DoMonitor(config.GetConfig(), args)
	},
}

func init() {
	rootCmd.AddCommand(initCmd, statusCmd, cleanupCmd, resetDBCmd, monitorCmd)
}
