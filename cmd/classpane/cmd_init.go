package main

import (
	"fmt"
	"os"

	"classpane/internal/config"

	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file for the workspace",
	Long: `Writes the default configuration to <workspace>/.classpane/config.yaml,
or to the path given with --config. An existing file is kept unless
--force is set.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfgPath); err == nil && !initForce {
		return fmt.Errorf("%s already exists, use --force to overwrite", cfgPath)
	}
	if err := config.DefaultConfig().Save(cfgPath); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", cfgPath)
	return nil
}
