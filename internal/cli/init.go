// init.go implements "medchat config init" which writes a default
// config file to ~/.medchat/config.yaml.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/medchat-dev/medchat/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration and preferences",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var initForceFlag bool

func init() {
	configInitCmd.Flags().BoolVar(&initForceFlag, "force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(setCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home directory: %w", err)
	}

	if _, err := config.ReadConfig(home); err == nil && !initForceFlag {
		return fmt.Errorf("config already exists. Use --force to overwrite")
	}

	cfg := config.DefaultConfig()
	if apiBaseFlag != "" {
		cfg.APIBase = apiBaseFlag
	}

	if err := config.WriteConfig(home, cfg); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", filepath.Join(home, ".medchat", "config.yaml"))
	return nil
}
