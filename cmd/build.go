package cmd

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"portforge/config"
	"portforge/orchestrator"
	"portforge/port"
	"portforge/resolver"
	"portforge/service"
	"portforge/stage"
	"portforge/ui"
)

var (
	flagDefines      []string
	flagOriginsFile  string
	flagDryRun       bool
	flagNoOp         bool
	flagConfigPolicy string
	flagFetchOnly    bool
	flagWithPackage  bool
	flagBatch        bool
	flagForce        bool
	flagMethods      []string
	flagDashboard    bool
)

var buildCmd = &cobra.Command{
	Use:   "build [origins... | VAR=VALUE...]",
	Short: "Build ports and their dependencies",
	Long: `Build the named ports and everything they depend on. Origins are
category/name paths relative to the ports tree; VAR=VALUE arguments are
passed to every recipe invocation as environment overrides.`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringArrayVarP(&flagDefines, "define", "D", nil, "define VAR for every recipe invocation (repeatable)")
	buildCmd.Flags().StringVarP(&flagOriginsFile, "file", "f", "", "read origins from FILE, one per line")
	buildCmd.Flags().BoolVarP(&flagDryRun, "dry-run", "n", false, "print recipe commands without executing them")
	buildCmd.Flags().BoolVarP(&flagNoOp, "no-op", "N", false, "resolve and plan only; print nothing, execute nothing")
	buildCmd.Flags().StringVarP(&flagConfigPolicy, "config-policy", "c", "changed", "when to rerun configuration: none, all, newer, changed")
	buildCmd.Flags().BoolVarP(&flagFetchOnly, "fetch-only", "F", false, "checksum and fetch distfiles only")
	buildCmd.Flags().BoolVarP(&flagWithPackage, "package", "p", false, "package each port after install")
	buildCmd.Flags().BoolVarP(&flagBatch, "batch", "b", false, "batch mode: never run the interactive configurator")
	buildCmd.Flags().BoolVar(&flagForce, "force", false, "rebuild even when up to date")
	buildCmd.Flags().StringSliceVar(&flagMethods, "method", []string{"build"}, "resolution method order: build, package, repo")
	buildCmd.Flags().BoolVar(&flagDashboard, "ui", false, "full-screen terminal dashboard")
	rootCmd.AddCommand(buildCmd)
}

// splitArgs separates origin arguments from VAR=VALUE overrides.
func splitArgs(args []string) (origins []string, env map[string]string) {
	env = make(map[string]string)
	for _, a := range args {
		if i := strings.IndexByte(a, '='); i > 0 {
			env[a[:i]] = a[i+1:]
			continue
		}
		origins = append(origins, a)
	}
	return origins, env
}

// readOriginsFile reads one origin per line, ignoring blanks and #
// comments.
func readOriginsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var origins []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		origins = append(origins, line)
	}
	return origins, scanner.Err()
}

func parseConfigPolicy(name string) (stage.Policy, error) {
	switch name {
	case "none":
		return stage.PolicyNone, nil
	case "all":
		return stage.PolicyAll, nil
	case "newer":
		return stage.PolicyNewer, nil
	case "changed":
		return stage.PolicyChanged, nil
	default:
		return 0, fmt.Errorf("unknown config policy %q (want none, all, newer or changed)", name)
	}
}

func parseMethods(names []string) ([]resolver.Method, error) {
	var methods []resolver.Method
	for _, n := range names {
		switch n {
		case "build":
			methods = append(methods, resolver.MethodBuild)
		case "package":
			methods = append(methods, resolver.MethodPackage)
		case "repo":
			methods = append(methods, resolver.MethodRepo)
		default:
			return nil, fmt.Errorf("unknown resolution method %q (want build, package or repo)", n)
		}
	}
	return methods, nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	origins, makeEnv := splitArgs(args)
	for _, v := range flagDefines {
		makeEnv[v] = "1"
	}
	if flagOriginsFile != "" {
		fromFile, err := readOriginsFile(flagOriginsFile)
		if err != nil {
			return fmt.Errorf("reading origins file: %w", err)
		}
		origins = append(origins, fromFile...)
	}
	if len(origins) == 0 {
		return fmt.Errorf("no ports specified")
	}

	policy, err := parseConfigPolicy(flagConfigPolicy)
	if err != nil {
		return err
	}
	methods, err := parseMethods(flagMethods)
	if err != nil {
		return err
	}

	cfg := config.GetConfig()
	svc, err := service.NewService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	// -N resolves the plan and stops: nothing printed, nothing run.
	if flagNoOp {
		if _, err := svc.GetBuildPlan(origins); err != nil {
			return err
		}
		exitCode = ExitAborted
		return nil
	}

	if !flagDryRun {
		plan, err := svc.GetBuildPlan(origins)
		if err != nil {
			return err
		}
		if plan.NeedBuild == 0 && !flagForce {
			fmt.Println("All ports are up to date!")
			return nil
		}
		if !confirm(fmt.Sprintf("Build %d ports?", plan.NeedBuild)) {
			fmt.Println("Build cancelled")
			exitCode = ExitAborted
			return nil
		}
	}

	ctl := orchestrator.NewControl()

	// Repeated interrupts escalate: first blocks new admissions, second
	// kills the active recipes, third abandons cleanup too.
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			switch ctl.Stops() {
			case 0:
				fmt.Fprintln(os.Stderr, "\nInterrupt: stopping after active builds finish (again to kill)")
				ctl.Stop(false, false)
			case 1:
				fmt.Fprintln(os.Stderr, "\nInterrupt: killing active builds (again to abandon cleanup)")
				ctl.Stop(true, false)
			default:
				fmt.Fprintln(os.Stderr, "\nInterrupt: abandoning cleanup")
				ctl.Stop(true, true)
			}
		}
	}()

	var display ui.BuildUI = ui.NewStdoutUI()
	if flagDashboard && !flagDryRun && !cfg.DisableUI {
		dash := ui.NewDashboard()
		dash.SetInterruptHandler(func() { ctl.Stop(false, false) })
		display = dash
	}
	if err := display.Start(); err != nil {
		return err
	}
	defer display.Stop()

	start := time.Now()
	result, err := svc.Build(service.BuildOptions{
		PortList:     origins,
		Methods:      methods,
		ConfigPolicy: policy,
		Batch:        flagBatch,
		FetchOnly:    flagFetchOnly,
		WithPackage:  flagWithPackage,
		DryRun:       flagDryRun,
		Force:        flagForce,
		MakeEnv:      makeEnv,
		Observer: func(ev port.StageCompletedEvent) {
			display.StageEvent(ev)
		},
		Control: ctl,
	})
	if err != nil {
		return err
	}

	display.UpdateProgress(ui.Progress{
		Total:     result.Stats.Total,
		Succeeded: result.Stats.Succeeded,
		Failed:    result.Stats.Failed,
		Skipped:   result.Stats.Skipped,
		Elapsed:   time.Since(start).Round(time.Second).String(),
	})
	display.Stop()

	fmt.Printf("\nBuild Statistics:\n")
	fmt.Printf("  Total ports:    %d\n", result.Stats.Total)
	fmt.Printf("  Success:        %d\n", result.Stats.Succeeded)
	fmt.Printf("  Failed:         %d\n", result.Stats.Failed)
	fmt.Printf("  Skipped:        %d\n", result.Stats.Skipped)
	fmt.Printf("  Duration:       %s\n\n", result.Duration.Round(time.Second))

	svc.Logger().WriteSummary(result.Stats.Total, result.Stats.Succeeded,
		result.Stats.Failed, result.Stats.Skipped, 0, result.Duration)

	switch {
	case flagDryRun, result.Stats.Aborted:
		exitCode = ExitAborted
	case result.Stats.Failed > 0:
		exitCode = ExitInternal
	}
	return nil
}
