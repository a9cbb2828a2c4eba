package main

import (
	"fmt"

	"classpane/cmd/classpane/ui"
	"classpane/internal/htmldoc"
	"classpane/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	openWatch    bool
	openAutosave bool
	openSelector string
	openSave     string
)

var openCmd = &cobra.Command{
	Use:   "open <file-or-url>",
	Short: "Edit element classes in an HTML document",
	Long: `Loads an HTML file or URL and shows the class pane for it.

Edits stay in memory unless --autosave is set, in which case a local file
is rewritten after every change. --watch reloads the file when another
program changes it. Both default to the htmldoc section of the config.`,
	Args: cobra.ExactArgs(1),
	RunE: runOpen,
}

func runOpen(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	autosave := cfg.HTMLDoc.Autosave
	if cmd.Flags().Changed("autosave") {
		autosave = openAutosave
	}
	watch := cfg.HTMLDoc.Watch
	if cmd.Flags().Changed("watch") {
		watch = openWatch
	}

	doc, err := htmldoc.Load(ctx, args[0], htmldoc.Options{
		Autosave: autosave,
		Logger:   logging.Get(logging.CategoryHTMLDoc),
	})
	if err != nil {
		return err
	}
	defer doc.Close()

	if watch {
		if doc.Path() == "" {
			return fmt.Errorf("--watch needs a local file, got %s", args[0])
		}
		if err := doc.Watch(ctx); err != nil {
			return err
		}
	}
	if err := ui.Run(ctx, doc, ui.NewProgramLoop(), panelOptions(openSelector, nil)); err != nil {
		return err
	}
	if openSave != "" {
		if err := doc.Save(openSave); err != nil {
			return fmt.Errorf("save %s: %w", openSave, err)
		}
		logging.Boot("document saved", zap.String("path", openSave))
	}
	return nil
}
