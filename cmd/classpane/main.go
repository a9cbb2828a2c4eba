// Package main implements the classpane CLI: an element class editor for a
// live Chrome page or an offline HTML document.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"classpane/internal/config"
	"classpane/internal/logging"
	"classpane/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Set by the release build.
var version = "dev"

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string

	// Resolved in PersistentPreRunE
	cfgPath  string
	cfg      *config.Config
	registry *prometheus.Registry
	metrics  *telemetry.Metrics

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "classpane",
	Short: "Edit the class list of a page element from the terminal",
	Long: `classpane shows the classes of one element as a checklist.

Classes can be toggled, added with completion from the page's stylesheets,
and previewed before they are committed. Edits are written back as the
element's class attribute, to a live Chrome page over the DevTools protocol
or to an HTML file on disk.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		// version needs no workspace
		if cmd == versionCmd {
			return nil
		}
		return loadWorkspace(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the classpane version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "classpane %s\n", version)
	},
}

// loadWorkspace resolves the workspace, reads its config and starts the
// category loggers and the metrics endpoint.
func loadWorkspace(ctx context.Context) error {
	ws := workspace
	if ws == "" {
		var err error
		if ws, err = config.FindWorkspaceRoot(); err != nil {
			return fmt.Errorf("failed to find workspace: %w", err)
		}
	}
	path := configPath
	if path == "" {
		path = config.DefaultPath(ws)
	}

	cfgPath = path
	var err error
	cfg, err = config.Load(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}
	if verbose {
		cfg.Logging.DebugMode = true
	}
	if err := logging.Initialize(filepath.Join(ws, config.DirName), cfg.Logging.Settings()); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logging.Boot("workspace loaded", zap.String("workspace", ws), zap.String("config", path))

	registry = prometheus.NewRegistry()
	metrics = telemetry.NewMetrics(registry)
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := telemetry.Serve(ctx, cfg.Metrics.Addr, registry, logging.Get(logging.CategoryBoot)); err != nil {
				logging.BootWarn("metrics server stopped", zap.Error(err))
			}
		}()
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default <workspace>/.classpane/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: auto-detect)")

	attachCmd.Flags().StringVar(&attachTarget, "target", "", "Attach to an existing page target instead of opening a URL")
	attachCmd.Flags().StringVar(&attachSelector, "selector", "", "CSS selector of the initially selected element")

	openCmd.Flags().BoolVar(&openWatch, "watch", false, "Reload when the file changes on disk")
	openCmd.Flags().BoolVar(&openAutosave, "autosave", false, "Write the file back after every change")
	openCmd.Flags().StringVar(&openSelector, "selector", "", "CSS selector of the initially selected element")
	openCmd.Flags().StringVar(&openSave, "save", "", "Write the edited document to this path on exit")

	applyCmd.Flags().StringVar(&applySelector, "selector", "", "CSS selector of the element to edit")
	applyCmd.Flags().StringSliceVar(&applyAdd, "add", nil, "Classes to enable")
	applyCmd.Flags().StringSliceVar(&applyRemove, "remove", nil, "Classes to disable")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Print the result without saving the file")
	applyCmd.Flags().StringVar(&applyOutput, "output", "", "Write the edited document here instead of over the source")
	_ = applyCmd.MarkFlagRequired("selector")

	completeCmd.Flags().StringVar(&completeSelector, "selector", "", "CSS selector of the element being edited")
	_ = completeCmd.MarkFlagRequired("selector")

	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")

	rootCmd.AddCommand(
		initCmd,
		attachCmd,
		targetsCmd,
		openCmd,
		applyCmd,
		completeCmd,
		versionCmd,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
