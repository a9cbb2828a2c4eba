package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"classpane/cmd/classpane/ui"
	"classpane/internal/browser"
	"classpane/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	attachTarget   string
	attachSelector string
)

var attachCmd = &cobra.Command{
	Use:   "attach [url]",
	Short: "Edit element classes in a live Chrome page",
	Long: `Connects to the Chrome configured under browser.debugger_url, or
launches one, and shows the class pane for a page.

With a URL a new tab is opened and navigated there. With --target an
existing tab is used instead; run "classpane targets" to list them.

Example:
  classpane attach http://localhost:8080 --selector "#main"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAttach,
}

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List the page targets of the configured Chrome",
	Args:  cobra.NoArgs,
	RunE:  listTargets,
}

func runAttach(cmd *cobra.Command, args []string) error {
	if attachTarget == "" && len(args) == 0 {
		return fmt.Errorf("attach needs a url or --target")
	}
	ctx := cmd.Context()

	mgr := browser.NewSessionManager(browserConfig(), logging.Get(logging.CategoryBrowser))
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		if err := mgr.Shutdown(context.Background()); err != nil {
			logger.Warn("browser shutdown failed", zap.Error(err))
		}
	}()

	var (
		session *browser.Session
		err     error
	)
	if attachTarget != "" {
		session, err = mgr.Attach(ctx, attachTarget)
	} else {
		session, err = mgr.CreateSession(ctx, args[0])
	}
	if err != nil {
		return err
	}
	logging.Boot("session ready", zap.String("session", session.ID), zap.String("url", session.URL))

	loop := ui.NewProgramLoop()
	doc, err := mgr.Document(ctx, session.ID, browser.Options{
		OnDocumentUpdated: loop.DocumentReplaced,
	})
	if err != nil {
		return fmt.Errorf("failed to open document: %w", err)
	}
	return ui.Run(ctx, doc, loop, panelOptions(attachSelector, doc))
}

func listTargets(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	mgr := browser.NewSessionManager(browserConfig(), logging.Get(logging.CategoryBrowser))
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer mgr.Shutdown(context.Background())

	targets, err := mgr.Targets(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tURL")
	for _, t := range targets {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Title, t.URL)
	}
	return w.Flush()
}
