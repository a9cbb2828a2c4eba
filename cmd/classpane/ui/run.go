package ui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"classpane/internal/classes"
	"classpane/internal/completion"
	"classpane/internal/document"
)

// Run shows the class pane for doc until the user quits or ctx ends. loop
// must be unattached; Run attaches it to the program and closes it.
func Run(ctx context.Context, doc document.Backend, loop *ProgramLoop, opts Options) error {
	defer loop.Close()

	var panel *Panel
	engineOpts := opts.Engine
	onWriteError := engineOpts.OnWriteError
	engineOpts.OnWriteError = func(node document.NodeID, value string, err error) {
		if panel != nil {
			panel.status = fmt.Sprintf("could not write class to %s: %v", doc.Describe(node), err)
		}
		if onWriteError != nil {
			onWriteError(node, value, err)
		}
	}

	engine := classes.New(doc, loop, engineOpts)
	defer engine.Close()
	ctrl := classes.NewController(engine, doc)
	completer := completion.New(doc, opts.Completion)

	cancel := doc.OnMutation(func(node document.NodeID) {
		loop.Post(func() { ctrl.OnExternalMutation(node) })
	})
	defer cancel()

	panel = NewPanel(doc, ctrl, completer, opts)
	programOpts := append([]tea.ProgramOption{tea.WithContext(ctx)}, opts.ProgramOptions...)
	p := tea.NewProgram(panel, programOpts...)
	loop.Attach(p)

	if _, err := p.Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("class pane: %w", err)
	}
	if !engine.Settled() && panel.log != nil {
		panel.log.Warn("quit with class edits still pending")
	}
	panel.log.Debug("class pane closed", zap.String("state", ctrl.State().String()))
	return nil
}
