package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"classpane/internal/classes"
	"classpane/internal/completion"
	"classpane/internal/document"
)

const (
	defaultQueryTimeout = 5 * time.Second
	pickTimeout         = 2 * time.Minute
)

const helpMarkdown = `# Element classes

| Key | Action |
|-----|--------|
| ctrl+t | show or hide the pane |
| enter | accept the suggestion, then add the typed classes |
| esc | discard the typed classes |
| tab | accept the suggestion |
| ctrl+space | complete now |
| shift+tab | switch between the input and the class list |
| space | enable or disable the class under the cursor |
| ctrl+f | select an element by CSS selector |
| ctrl+o | pick an element in the page |
| ? | this help |
| ctrl+c | quit |

Typed classes are previewed on the element while you type.
Separate several classes with spaces or dots.
`

type focus int

const (
	focusInput focus = iota
	focusList
	focusSelector
)

// Picker selects an element interactively in the document's own view.
type Picker interface {
	Pick(ctx context.Context) (document.NodeID, error)
}

// Options configures a Panel.
type Options struct {
	// Selector is resolved on start and becomes the initial selection.
	Selector string
	// Picker enables ctrl+o. It may be nil.
	Picker Picker
	// Styles defaults to DefaultStyles.
	Styles *Styles

	QueryTimeout time.Duration
	Logger       *zap.Logger

	Engine     classes.Options
	Completion completion.Options

	ProgramOptions []tea.ProgramOption
}

type selectedMsg struct {
	node     document.NodeID
	selector string
	err      error
}

type suggestionsMsg struct {
	gen   uint64
	head  string
	items []completion.Suggestion
}

// Panel is the bubbletea model of the class pane.
type Panel struct {
	doc       document.Backend
	ctrl      *classes.Controller
	completer *completion.Completer
	opts      Options
	styles    Styles
	log       *zap.Logger
	renderer  *glamour.TermRenderer

	input      textinput.Model
	selector   textinput.Model
	focus      focus
	cursor     int
	view       classes.View
	suggestion string
	source     string // where the current suggestions came from
	gen        uint64
	lastQuery  string

	help   bool
	status string
	width  int
}

// NewPanel builds the model. ctrl must run on the loop that delivers
// taskMsg values to this panel.
func NewPanel(doc document.Backend, ctrl *classes.Controller, completer *completion.Completer, opts Options) *Panel {
	styles := DefaultStyles()
	if opts.Styles != nil {
		styles = *opts.Styles
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = defaultQueryTimeout
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	ti := textinput.New()
	ti.Placeholder = "Add new class"
	ti.Prompt = "› "
	ti.CharLimit = 1024
	ti.Width = 40
	ti.ShowSuggestions = true
	ti.PromptStyle = styles.Prompt
	ti.TextStyle = styles.UserInput

	sel := textinput.New()
	sel.Placeholder = "CSS selector"
	sel.Prompt = "selector: "
	sel.PromptStyle = styles.Muted
	sel.TextStyle = styles.Selector

	p := &Panel{
		doc:       doc,
		ctrl:      ctrl,
		completer: completer,
		opts:      opts,
		styles:    styles,
		log:       log,
		renderer:  newRenderer(styles, 72),
		input:     ti,
		selector:  sel,
	}
	ctrl.OnRender(p.render)
	return p
}

func newRenderer(styles Styles, width int) *glamour.TermRenderer {
	var r *glamour.TermRenderer
	if styles.Theme.IsDark {
		r, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
	} else {
		r, _ = glamour.NewTermRenderer(
			glamour.WithStylePath("light"),
			glamour.WithWordWrap(width),
		)
	}
	return r
}

// render receives every view the controller builds.
func (p *Panel) render(v classes.View) {
	p.view = v
	if p.cursor >= len(v.Items) {
		p.cursor = len(v.Items) - 1
	}
	if p.cursor < 0 {
		p.cursor = 0
	}
}

// Init implements tea.Model.
func (p *Panel) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink}
	if p.opts.Selector != "" {
		cmds = append(cmds, p.query(p.opts.Selector))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (p *Panel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case taskMsg:
		msg()
		return p, nil

	case documentReplacedMsg:
		// Old ids resolve to nothing now, so neither call writes.
		p.clearInput()
		p.ctrl.SetInput("", "")
		p.ctrl.OnSelectionChanged(document.NoNode)
		if p.lastQuery != "" {
			return p, p.query(p.lastQuery)
		}
		return p, nil

	case selectedMsg:
		if msg.err != nil {
			p.status = msg.err.Error()
			return p, nil
		}
		p.status = ""
		if msg.selector != "" {
			p.lastQuery = msg.selector
		}
		// The controller commits typed text to the previous element.
		p.ctrl.OnSelectionChanged(msg.node)
		p.clearInput()
		return p, nil

	case suggestionsMsg:
		if msg.gen != p.gen {
			return p, nil
		}
		list := make([]string, 0, len(msg.items))
		for _, s := range msg.items {
			list = append(list, msg.head+s.Text)
		}
		p.input.SetSuggestions(list)
		p.source = ""
		if frame, ok := p.completer.Cached(); ok && len(list) > 0 {
			p.source = fmt.Sprintf("%d from frame %s", len(list), frame)
		}
		p.syncInput()
		return p, nil

	case tea.WindowSizeMsg:
		p.width = msg.Width
		p.input.Width = max(msg.Width-8, 10)
		p.selector.Width = max(msg.Width-18, 10)
		p.renderer = newRenderer(p.styles, max(msg.Width-4, 20))
		return p, nil

	case tea.KeyMsg:
		return p.handleKey(msg)
	}
	return p, nil
}

func (p *Panel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return p, tea.Quit
	case "ctrl+t":
		p.help = false
		p.ctrl.Toggle()
		if p.ctrl.Visible() {
			return p, p.focusOn(focusInput)
		}
		p.input.Blur()
		return p, nil
	case "?":
		if p.focus != focusInput || p.input.Value() == "" {
			p.help = !p.help
			return p, nil
		}
	}

	if p.help {
		if msg.Type == tea.KeyEsc {
			p.help = false
		}
		return p, nil
	}

	switch msg.String() {
	case "ctrl+f":
		p.selector.SetValue(p.lastQuery)
		p.selector.CursorEnd()
		return p, p.focusOn(focusSelector)
	case "ctrl+o":
		return p, p.pick()
	case "shift+tab":
		if p.ctrl.Visible() && p.focus != focusSelector {
			if p.focus == focusInput {
				return p, p.focusOn(focusList)
			}
			return p, p.focusOn(focusInput)
		}
		return p, nil
	}

	switch p.focus {
	case focusSelector:
		return p.updateSelector(msg)
	case focusList:
		return p.updateList(msg)
	default:
		return p.updateInput(msg)
	}
}

func (p *Panel) focusOn(f focus) tea.Cmd {
	p.focus = f
	p.input.Blur()
	p.selector.Blur()
	switch f {
	case focusInput:
		return p.input.Focus()
	case focusSelector:
		return p.selector.Focus()
	}
	return nil
}

func (p *Panel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !p.ctrl.Visible() || !p.view.InputEnabled {
		return p, nil
	}

	switch msg.Type {
	case tea.KeyEnter:
		if p.ctrl.Submit() {
			// First enter only takes the suggestion into the input.
			text := p.ctrl.Text()
			p.input.SetValue(text)
			p.input.CursorEnd()
			p.suggestion = ""
			p.ctrl.SetInput(text, "")
			return p, nil
		}
		p.clearInput()
		return p, nil

	case tea.KeyEsc:
		consumed := p.ctrl.Cancel()
		p.clearInput()
		if !consumed {
			p.ctrl.Hide()
			p.input.Blur()
		}
		return p, nil
	}

	if msg.String() == "ctrl+@" {
		return p, p.complete(true)
	}

	before := p.input.Value()
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	if p.input.Value() != before {
		p.syncInput()
		return p, tea.Batch(cmd, p.complete(false))
	}
	p.syncInput()
	return p, cmd
}

// syncInput hands the text and the suggestion now shown to the controller
// when either changed, which previews them on the element.
func (p *Panel) syncInput() {
	text := p.input.Value()
	suggestion := p.input.CurrentSuggestion()
	if text == "" {
		suggestion = ""
	}
	if text == p.ctrl.Text() && suggestion == p.suggestion {
		return
	}
	p.suggestion = suggestion
	p.ctrl.SetInput(text, suggestion)
}

func (p *Panel) clearInput() {
	p.input.Reset()
	p.input.SetSuggestions(nil)
	p.suggestion = ""
	p.source = ""
	p.gen++
}

// complete fetches suggestions for the word being typed. Suggestions are
// handed to the text input as whole values, so its current suggestion is
// the input text with the completion applied.
func (p *Panel) complete(force bool) tea.Cmd {
	p.gen++
	gen := p.gen
	text := p.input.Value()
	head, prefix := splitPrefix(text)
	if prefix == "" && !force {
		p.completer.Invalidate()
		p.input.SetSuggestions(nil)
		p.source = ""
		return nil
	}

	node := p.view.Target
	c := p.completer
	timeout := p.opts.QueryTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return suggestionsMsg{gen: gen, head: head, items: c.Complete(ctx, node, text, prefix, force)}
	}
}

// splitPrefix splits text into everything up to the word being typed and
// that word.
func splitPrefix(text string) (head, prefix string) {
	i := strings.LastIndexAny(text, " \t")
	return text[:i+1], text[i+1:]
}

func (p *Panel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if p.cursor > 0 {
			p.cursor--
		}
	case "down", "j":
		if p.cursor < len(p.view.Items)-1 {
			p.cursor++
		}
	case " ", "space":
		if p.cursor < len(p.view.Items) {
			item := p.view.Items[p.cursor]
			p.ctrl.Click(item.Name, !item.Enabled)
		}
	case "esc":
		return p, p.focusOn(focusInput)
	}
	return p, nil
}

func (p *Panel) updateSelector(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		sel := strings.TrimSpace(p.selector.Value())
		focusCmd := p.focusOn(focusInput)
		if sel == "" {
			return p, focusCmd
		}
		return p, tea.Batch(focusCmd, p.query(sel))
	case tea.KeyEsc:
		return p, p.focusOn(focusInput)
	}
	var cmd tea.Cmd
	p.selector, cmd = p.selector.Update(msg)
	return p, cmd
}

func (p *Panel) query(selector string) tea.Cmd {
	doc := p.doc
	timeout := p.opts.QueryTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		node, err := doc.QuerySelector(ctx, selector)
		if err != nil {
			return selectedMsg{err: fmt.Errorf("select %q: %w", selector, err)}
		}
		return selectedMsg{node: node, selector: selector}
	}
}

func (p *Panel) pick() tea.Cmd {
	if p.opts.Picker == nil {
		p.status = "picking needs a live browser page"
		return nil
	}
	p.status = "click an element in the page"
	picker := p.opts.Picker
	log := p.log
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), pickTimeout)
		defer cancel()
		node, err := picker.Pick(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = errors.New("pick timed out")
			}
			log.Debug("pick failed", zap.Error(err))
			return selectedMsg{err: err}
		}
		return selectedMsg{node: node}
	}
}

// View implements tea.Model.
func (p *Panel) View() string {
	if p.help {
		return p.helpView()
	}

	var b strings.Builder
	if !p.ctrl.Visible() {
		b.WriteString(p.styles.Toolbar.Render(".cls"))
		b.WriteString(" ")
		b.WriteString(p.styles.Muted.Render("ctrl+t shows the class pane"))
		b.WriteString("\n")
		b.WriteString(p.selectionLine())
		b.WriteString(p.statusLine())
		return b.String()
	}

	b.WriteString(p.styles.Header.Render("Element classes"))
	b.WriteString("\n")
	b.WriteString(p.selectionLine())

	if !p.view.InputEnabled {
		b.WriteString(p.styles.Muted.Render("Select an element with ctrl+f or ctrl+o"))
		b.WriteString("\n")
	} else {
		b.WriteString(p.input.View())
		b.WriteString("\n")
		if p.source != "" {
			b.WriteString(p.styles.Muted.Render("suggestions: " + p.source))
			b.WriteString("\n")
		}
		if len(p.view.Items) == 0 {
			b.WriteString(p.styles.Muted.Render("no classes"))
			b.WriteString("\n")
		}
		for i, item := range p.view.Items {
			b.WriteString(p.itemLine(i, item))
			b.WriteString("\n")
		}
	}

	b.WriteString(p.statusLine())
	b.WriteString(p.styles.Footer.Render("enter add · esc cancel · shift+tab list · ? help"))
	return p.styles.Pane.Render(b.String())
}

func (p *Panel) itemLine(i int, item classes.Item) string {
	box, style := "[ ]", p.styles.Unchecked
	if item.Enabled {
		box, style = "[x]", p.styles.Checked
	}
	line := box + " " + style.Render(item.Name)
	if p.focus == focusList && i == p.cursor {
		return p.styles.Cursor.Render("> " + line)
	}
	return "  " + line
}

func (p *Panel) selectionLine() string {
	if p.focus == focusSelector {
		return p.selector.View() + "\n"
	}
	label := "no element selected"
	node := p.ctrl.Selected()
	if p.ctrl.Visible() && p.view.Target != document.NoNode {
		node = p.view.Target
	}
	if node != document.NoNode {
		label = p.doc.Describe(node)
	}
	return p.styles.Selector.Render(label) + "\n"
}

func (p *Panel) statusLine() string {
	if p.status == "" {
		return ""
	}
	return p.styles.Warning.Render(p.status) + "\n"
}

func (p *Panel) helpView() string {
	if p.renderer != nil {
		if out, err := p.renderer.Render(helpMarkdown); err == nil {
			return out
		}
	}
	return helpMarkdown
}
