// Package ui is the terminal class pane: an input with class-name
// completion, a checkbox list of the selected element's classes and a
// selector line, built on bubbletea.
package ui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette.
var (
	// Light Mode Colors (Default)
	LightForeground = lipgloss.Color("#1f2328")
	LightPrimary    = lipgloss.Color("#1a73e8") // DevTools blue
	LightAccent     = lipgloss.Color("#188038")
	LightMuted      = lipgloss.Color("#80868b")
	LightBorder     = lipgloss.Color("#dadce0")
	LightSelection  = lipgloss.Color("#e8f0fe")

	// Dark Mode Colors
	DarkForeground = lipgloss.Color("#e8eaed")
	DarkPrimary    = lipgloss.Color("#8ab4f8")
	DarkAccent     = lipgloss.Color("#81c995")
	DarkMuted      = lipgloss.Color("#9aa0a6")
	DarkBorder     = lipgloss.Color("#3c4043")
	DarkSelection  = lipgloss.Color("#174ea6")

	// Semantic Colors (same in both modes)
	Destructive = lipgloss.Color("#e53935")
	Warning     = lipgloss.Color("#FFC107")
)

// Theme holds the current color scheme
type Theme struct {
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	Selection  lipgloss.Color
	IsDark     bool
}

// LightTheme returns the light mode theme
func LightTheme() Theme {
	return Theme{
		Foreground: LightForeground,
		Primary:    LightPrimary,
		Accent:     LightAccent,
		Muted:      LightMuted,
		Border:     LightBorder,
		Selection:  LightSelection,
	}
}

// DarkTheme returns the dark mode theme
func DarkTheme() Theme {
	return Theme{
		Foreground: DarkForeground,
		Primary:    DarkPrimary,
		Accent:     DarkAccent,
		Muted:      DarkMuted,
		Border:     DarkBorder,
		Selection:  DarkSelection,
		IsDark:     true,
	}
}

// DetectTheme picks the dark theme when COLORFGBG reports a dark
// background or CLASSPANE_DARK_MODE=1, and the light theme otherwise.
func DetectTheme() Theme {
	// Format is usually "foreground;background"
	if parts := strings.Split(os.Getenv("COLORFGBG"), ";"); len(parts) == 2 {
		if bgIdx, err := strconv.Atoi(parts[1]); err == nil {
			// 0-6 and 8 (dark grey) are likely dark backgrounds
			if (bgIdx >= 0 && bgIdx <= 6) || bgIdx == 8 {
				return DarkTheme()
			}
		}
	}
	if os.Getenv("CLASSPANE_DARK_MODE") == "1" {
		return DarkTheme()
	}
	return LightTheme()
}

// Styles holds all the styled components
type Styles struct {
	Theme Theme

	// Layout
	Pane   lipgloss.Style
	Header lipgloss.Style
	Footer lipgloss.Style

	// Text
	Title    lipgloss.Style
	Muted    lipgloss.Style
	Selector lipgloss.Style

	// Interactive
	Prompt    lipgloss.Style
	UserInput lipgloss.Style
	Checked   lipgloss.Style
	Unchecked lipgloss.Style
	Cursor    lipgloss.Style
	Toolbar   lipgloss.Style

	// Status
	Error   lipgloss.Style
	Warning lipgloss.Style
}

// NewStyles creates a new Styles instance with the given theme
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme: theme,

		Pane: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border).
			Padding(0, 1),

		Header: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true),

		Footer: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Title: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			Bold(true),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Selector: lipgloss.NewStyle().
			Foreground(theme.Primary),

		Prompt: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),

		UserInput: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		Checked: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		// Disabled classes are shown struck through, as in the Elements panel.
		Unchecked: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Strikethrough(true),

		Cursor: lipgloss.NewStyle().
			Background(theme.Selection),

		Toolbar: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Padding(0, 1).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(theme.Border),

		Error: lipgloss.NewStyle().
			Foreground(Destructive).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(Warning),
	}
}

// DefaultStyles returns styles for the detected theme.
func DefaultStyles() Styles {
	return NewStyles(DetectTheme())
}

// RenderDivider returns a horizontal divider
func (s Styles) RenderDivider(width int) string {
	return s.Muted.Render(strings.Repeat("─", width))
}
