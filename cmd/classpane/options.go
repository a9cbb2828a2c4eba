package main

import (
	"classpane/cmd/classpane/ui"
	"classpane/internal/browser"
	"classpane/internal/classes"
	"classpane/internal/completion"
	"classpane/internal/logging"

	tea "github.com/charmbracelet/bubbletea"
)

// engineOptions builds the class engine settings from the loaded config.
func engineOptions() classes.Options {
	return classes.Options{
		FlushDelay:   cfg.GetFlushDelay(),
		WriteTimeout: cfg.GetWriteTimeout(),
		Logger:       logging.Get(logging.CategoryEngine),
		Metrics:      metrics,
	}
}

func completionOptions() completion.Options {
	return completion.Options{
		FetchTimeout: cfg.GetFetchTimeout(),
		Logger:       logging.Get(logging.CategoryCompletion),
		Metrics:      metrics,
	}
}

// panelOptions configures the terminal pane. picker may be nil.
func panelOptions(selector string, picker ui.Picker) ui.Options {
	return ui.Options{
		Selector:       selector,
		Picker:         picker,
		Logger:         logging.Get(logging.CategoryUI),
		Engine:         engineOptions(),
		Completion:     completionOptions(),
		ProgramOptions: []tea.ProgramOption{tea.WithAltScreen()},
	}
}

// browserConfig maps the workspace config onto the session manager's.
func browserConfig() browser.Config {
	bc := browser.DefaultConfig()
	bc.DebuggerURL = cfg.Browser.DebuggerURL
	bc.Launch = cfg.Browser.Launch
	bc.Headless = cfg.Browser.Headless
	bc.NavigationTimeout = cfg.GetNavigationTimeout()
	bc.EchoTimeout = cfg.GetEchoTimeout()
	return bc
}
