package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"classpane/internal/classes"
	"classpane/internal/completion"
	"classpane/internal/document"
	"classpane/internal/eventloop"
	"classpane/internal/htmldoc"
	"classpane/internal/logging"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
)

var (
	applySelector string
	applyAdd      []string
	applyRemove   []string
	applyDryRun   bool
	applyOutput   string

	completeSelector string
)

var applyCmd = &cobra.Command{
	Use:   "apply <file-or-url>",
	Short: "Enable or disable classes without the interactive pane",
	Long: `Edits the class list of the element matching --selector, waits for
the write to land and prints the resulting class attribute. Local files
are saved in place unless --dry-run or --output is set.

Example:
  classpane apply index.html --selector "#main" --add btn,btn-primary --remove card`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

var completeCmd = &cobra.Command{
	Use:   "complete <file-or-url> [prefix]",
	Short: "Print the class names that complete prefix",
	Long: `Prints one suggestion per line for the element matching --selector,
drawn from the stylesheets of its frame and the classes its document
already uses. Without a prefix every known name is printed.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runComplete,
}

// loadTarget loads src and resolves selector to the element edits apply to.
func loadTarget(ctx context.Context, src, selector string, autosave bool) (*htmldoc.Document, document.NodeID, error) {
	doc, err := htmldoc.Load(ctx, src, htmldoc.Options{
		Autosave: autosave,
		Logger:   logging.Get(logging.CategoryHTMLDoc),
	})
	if err != nil {
		return nil, document.NoNode, err
	}
	node, err := doc.QuerySelector(ctx, selector)
	if err != nil {
		doc.Close()
		return nil, document.NoNode, fmt.Errorf("selector %q: %w", selector, err)
	}
	return doc, doc.EnclosingElementOrSelf(node), nil
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	doc, node, err := loadTarget(ctx, args[0], applySelector, !applyDryRun && applyOutput == "")
	if err != nil {
		return err
	}
	defer doc.Close()

	loop := eventloop.New()
	var writeErr error
	opts := engineOptions()
	opts.OnWriteError = func(n document.NodeID, value string, err error) {
		writeErr = multierror.Append(writeErr, fmt.Errorf("%s: %w", doc.Describe(n), err))
	}
	engine := classes.New(doc, loop, opts)
	defer engine.Close()

	for _, name := range classes.SplitInput(strings.Join(applyRemove, " ")) {
		engine.Toggle(node, name, false)
	}
	for _, name := range classes.SplitInput(strings.Join(applyAdd, " ")) {
		engine.Toggle(node, name, true)
	}
	engine.Install(node, "")

	if err := settle(ctx, loop, engine, cfg.GetFlushDelay()+cfg.GetWriteTimeout()+time.Second); err != nil {
		return err
	}
	if writeErr != nil {
		return writeErr
	}

	if applyOutput != "" && !applyDryRun {
		if err := doc.Save(applyOutput); err != nil {
			return fmt.Errorf("save %s: %w", applyOutput, err)
		}
	}

	value, _ := doc.Attribute(node, "class")
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

// settle drives loop on the calling goroutine until engine has no flush or
// write outstanding.
func settle(ctx context.Context, loop *eventloop.Loop, engine *classes.Engine, limit time.Duration) error {
	deadline := time.Now().Add(limit)
	for !engine.Settled() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("class edits did not settle within %s", limit)
		}
		loop.RunNext(50 * time.Millisecond)
	}
	loop.Drain()
	return nil
}

func runComplete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	doc, node, err := loadTarget(ctx, args[0], completeSelector, false)
	if err != nil {
		return err
	}
	defer doc.Close()

	prefix := ""
	if len(args) == 2 {
		prefix = args[1]
	}
	c := completion.New(doc, completionOptions())
	for _, s := range c.Complete(ctx, node, prefix, prefix, prefix == "") {
		fmt.Fprintln(cmd.OutOrStdout(), s.Text)
	}
	return nil
}
