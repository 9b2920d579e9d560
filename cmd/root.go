// Package cmd implements the portforge command-line front-end: argument
// parsing, user interaction and output formatting over the service layer.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"portforge/config"
	"portforge/util"
)

// Exit codes: success, user-requested dry-run or forced abort, and
// internal error.
const (
	ExitOK       = 0
	ExitAborted  = 254
	ExitInternal = 255
)

var (
	flagConfigDir string
	flagProfile   string
	flagYes       bool

	// exitCode carries a command's non-error exit status (a dry run or
	// an aborted build exits 254 without being an Execute error).
	exitCode = ExitOK
)

var rootCmd = &cobra.Command{
	Use:   "portforge",
	Short: "Concurrent ports builder",
	Long: `portforge builds a set of ports and their transitive dependencies
concurrently, driving each port through its configure/fetch/build/install
stages on a single event loop with per-resource-class scheduling queues.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(flagConfigDir, flagProfile)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		if flagYes {
			cfg.YesAll = true
		}
		config.SetConfig(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfigDir, "config", "C", "", "configuration directory")
	rootCmd.PersistentFlags().StringVar(&flagProfile, "profile", "", "configuration profile")
	rootCmd.PersistentFlags().BoolVarP(&flagYes, "yes", "y", false, "assume yes to all prompts")
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "portforge: %v\n", err)
		return ExitInternal
	}
	return exitCode
}

// confirm prompts the user unless -y was given.
func confirm(prompt string) bool {
	cfg := config.GetConfig()
	if cfg != nil && cfg.YesAll {
		return true
	}
	return util.AskYN(prompt, true)
}
