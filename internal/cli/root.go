// Package cli defines Cobra command definitions for the medchat CLI.
// This file contains the root command, version flag, and help output.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/medchat-dev/medchat/internal/tui"
	"github.com/medchat-dev/medchat/internal/tui/app"
)

var (
	apiBaseFlag string
	version     = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "medchat",
	Short: "Terminal client for the MedChat assistant",
	Long: `MedChat is a terminal client for the MedChat medical assistant backend.
It keeps your session signed in across restarts, caches conversations
locally, and supports text and image questions.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// When no subcommand is provided, launch TUI if TTY, show help otherwise
		if !tui.IsTTY() {
			return cmd.Help()
		}

		env, err := bootstrap()
		if err != nil {
			return err
		}
		defer env.close()

		return tui.Run(app.New(env.cfg, env.store, env.session, env.service))
	},
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiBaseFlag, "api-base", "", "Backend origin (overrides config)")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(convosCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(backfillCmd)
}
