package viz

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/trinity/internal/config"
	"github.com/san-kum/trinity/internal/storage"
	"github.com/san-kum/trinity/internal/trinity"
)

const (
	historyCapacity = 60
	previewWidth    = 40
	previewHeight   = 10
	tickInterval    = 100 * time.Millisecond
)

// PanelState is the render sink behind the panel. Update owns it; the
// model only holds a pointer so copies of the model share one state.
type PanelState struct {
	loading   *trinity.Request
	result    *trinity.Result
	shown     trinity.Request
	err       error
	stale     bool
	stability []float64
	preview   string
}

func (s *PanelState) ShowLoading(req trinity.Request) {
	s.loading = &req
}

func (s *PanelState) ShowResult(res *trinity.Result) {
	s.loading = nil
	s.result, s.err, s.stale = res, nil, false
	if v, ok := res.Metrics["stability"]; ok {
		s.stability = append(s.stability, v)
		if len(s.stability) > historyCapacity {
			s.stability = s.stability[len(s.stability)-historyCapacity:]
		}
	}
	s.preview = ""
	if strings.HasPrefix(res.Image.MIME, "image/png") && len(res.Image.Data) > 0 {
		if c, err := PreviewPNG(res.Image.Data, previewWidth, previewHeight); err == nil {
			s.preview = c.String()
		}
	}
}

func (s *PanelState) ShowError(err error) {
	s.loading = nil
	s.err = err
	s.stale = s.result != nil
}

func (s *PanelState) Loading() bool { return s.loading != nil }

func (s *PanelState) Result() *trinity.Result { return s.result }

func (s *PanelState) Err() error { return s.err }

// Stale reports whether an error followed the displayed render.
func (s *PanelState) Stale() bool { return s.stale }

type (
	selectMsg     trinity.Preset
	completionMsg trinity.Completion
	savedMsg      struct {
		id  string
		err error
	}
	tickMsg time.Time
)

// Model is the panel's bubbletea model.
type Model struct {
	ctrl    *trinity.Controller
	state   *PanelState
	store   *storage.Store
	log     *slog.Logger
	presets []config.PresetInfo
	initial trinity.Preset

	theme   Theme
	st      styles
	cursor  int
	editing bool
	editBuf string
	// inputErr is the last rejected custom value.
	inputErr error
	notice   string
	frame    int
	ticking  bool
	width    int
}

type PanelOption func(*Model)

func WithStore(s *storage.Store) PanelOption {
	return func(m *Model) { m.store = s }
}

func WithTheme(name string) PanelOption {
	return func(m *Model) { m.theme = GetTheme(name) }
}

func WithLogger(l *slog.Logger) PanelOption {
	return func(m *Model) { m.log = l }
}

// WithInitialPreset selects p when the panel starts.
func WithInitialPreset(p trinity.Preset) PanelOption {
	return func(m *Model) { m.initial = p }
}

// NewPanel builds a panel around f. The controller and its dispatcher are
// created here so the panel state can be the sink.
func NewPanel(f trinity.Fetcher, opts ...PanelOption) Model {
	m := Model{
		state:   &PanelState{},
		log:     slog.Default(),
		presets: config.ListPresets(),
		initial: trinity.DefaultPreset,
		theme:   ThemeCyberpunk,
		width:   80,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.st = newStyles(m.theme)
	m.ctrl = trinity.NewController(trinity.NewDispatcher(f, m.state, trinity.WithLogger(m.log)))
	m.cursor = m.indexOf(m.initial)
	return m
}

func (m Model) Controller() *trinity.Controller { return m.ctrl }

func (m Model) State() *PanelState { return m.state }

func (m Model) Init() tea.Cmd {
	p := m.initial
	return func() tea.Msg { return selectMsg(p) }
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.editing {
			return m.editKey(msg)
		}
		return m.menuKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case selectMsg:
		return m.selectPreset(trinity.Preset(msg))
	case completionMsg:
		c := trinity.Completion(msg)
		o := m.ctrl.Complete(c)
		if o == trinity.OutcomeRendered {
			m.state.shown = c.Request
		}
		m.log.Debug("completion", "seq", c.Request.Seq, "outcome", o, "elapsed", c.Elapsed)
	case savedMsg:
		if msg.err != nil {
			m.notice = "save failed: " + msg.err.Error()
		} else {
			m.notice = "saved " + msg.id
		}
	case tickMsg:
		if m.state.Loading() {
			m.frame++
			return m, tick()
		}
		m.ticking = false
	}
	return m, nil
}

func (m Model) menuKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "q", "ctrl+c":
		m.ctrl.Close()
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.presets)-1 {
			m.cursor++
		}
	case "enter", " ":
		return m.selectPreset(m.presets[m.cursor].Name)
	case "1", "2", "3", "4", "5":
		i := int(key[0] - '1')
		if i < len(m.presets) {
			m.cursor = i
			return m.selectPreset(m.presets[i].Name)
		}
	case "c":
		m.cursor = m.indexOf(trinity.Custom)
		m.startEditing()
	case "s":
		return m, m.save()
	case "t":
		m.theme = NextTheme(m.theme)
		m.st = newStyles(m.theme)
	}
	return m, nil
}

func (m Model) editKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		f, err := m.ctrl.SetCustomValue(m.editBuf)
		if err != nil {
			m.inputErr = err
			return m, nil
		}
		m.editing, m.inputErr = false, nil
		cmd := m.launch(f)
		return m, cmd
	case "esc":
		m.editing, m.editBuf, m.inputErr = false, "", nil
	case "backspace":
		if len(m.editBuf) > 0 {
			m.editBuf = m.editBuf[:len(m.editBuf)-1]
		}
	case "ctrl+c":
		m.ctrl.Close()
		return m, tea.Quit
	default:
		for _, r := range msg.Runes {
			if (r >= '0' && r <= '9') || r == '.' || r == '-' {
				m.editBuf += string(r)
			}
		}
	}
	return m, nil
}

func (m Model) selectPreset(p trinity.Preset) (Model, tea.Cmd) {
	m.notice = ""
	f, err := m.ctrl.SelectPreset(p)
	if err != nil {
		m.notice = err.Error()
		return m, nil
	}
	if p == trinity.Custom {
		m.cursor = m.indexOf(trinity.Custom)
		m.startEditing()
	}
	cmd := m.launch(f)
	return m, cmd
}

func (m *Model) startEditing() {
	m.editing, m.inputErr = true, nil
	m.editBuf = ""
	if v, ok := m.ctrl.Params().Damping(); ok {
		m.editBuf = strconv.FormatFloat(v, 'f', -1, 64)
	}
}

// launch turns a dispatched flight into a command whose completion comes
// back through Update.
func (m *Model) launch(f *trinity.Flight) tea.Cmd {
	if f == nil {
		return nil
	}
	run := func() tea.Msg { return completionMsg(f.Run()) }
	if m.ticking {
		return run
	}
	m.ticking = true
	return tea.Batch(run, tick())
}

func (m Model) save() tea.Cmd {
	res := m.state.result
	switch {
	case m.store == nil:
		return func() tea.Msg { return savedMsg{err: errors.New("no data directory")} }
	case res == nil:
		return func() tea.Msg { return savedMsg{err: errors.New("nothing rendered yet")} }
	}
	store, req := m.store, m.state.shown
	return func() tea.Msg {
		id, err := store.Save(req, res)
		return savedMsg{id: id, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) indexOf(p trinity.Preset) int {
	for i, info := range m.presets {
		if info.Name == p {
			return i
		}
	}
	return 0
}

func (m Model) View() string {
	var b strings.Builder
	s := m.st
	b.WriteString("\n  " + s.title.Render("TRINITY DYNAMICS") + "\n  " + s.subtle.Render("damping response panel") + "\n  " + s.separator(30) + "\n\n")

	active := m.ctrl.Params().Preset()
	for i, info := range m.presets {
		name := fmt.Sprintf("%d %-11s", i+1, info.Name)
		desc := info.Description
		if info.Name != trinity.Custom {
			desc = fmt.Sprintf("ζ=%.2f  %s", info.Damping, desc)
		} else if v, ok := m.ctrl.Params().Damping(); ok {
			desc = fmt.Sprintf("ζ=%s  %s", strconv.FormatFloat(v, 'g', -1, 64), desc)
		}
		marker := "  "
		if info.Name == active {
			marker = s.selected.Render("● ")
		}
		if i == m.cursor {
			b.WriteString("  " + s.cursor.Render("▸ ") + marker + s.selected.Render(name) + "  " + s.item.Render(desc) + "\n")
		} else {
			b.WriteString("    " + marker + s.subtle.Render(name) + "  " + s.subtle.Render(desc) + "\n")
		}
	}

	if m.editing {
		b.WriteString(fmt.Sprintf("\n  %s %s\n", s.label.Render("custom ζ"), s.value.Render(m.editBuf+"_")))
		b.WriteString("  " + s.subtle.Render(fmt.Sprintf("range %.1f to %.1f", trinity.MinDamping, trinity.MaxDamping)) + "\n")
		if m.inputErr != nil {
			b.WriteString("  " + s.errText.Render(m.inputErr.Error()) + "\n")
		}
	}

	b.WriteString("\n" + m.viewResult() + "\n")

	if m.notice != "" {
		b.WriteString("  " + s.subtle.Render(m.notice) + "\n")
	}
	if m.editing {
		b.WriteString("\n  " + s.keyHints("enter", "commit", "esc", "cancel", "⌫", "delete") + "\n")
	} else {
		b.WriteString("\n  " + s.keyHints("j/k", "navigate", "enter", "select", "c", "custom", "s", "save", "t", "theme", "q", "quit") + "\n")
	}
	return b.String()
}

func (m Model) viewResult() string {
	s, st := m.st, m.state
	var b strings.Builder

	switch {
	case st.loading != nil:
		b.WriteString(s.loading.Render(fmt.Sprintf("%s rendering #%d %s", AnimatedSpinner(m.frame), st.loading.Seq, st.loading.Snapshot)) + "\n")
	case st.err != nil && st.stale:
		b.WriteString(s.errText.Render("✖ "+st.err.Error()) + "\n" + s.stale.Render(fmt.Sprintf("showing stale render #%d", st.result.Seq)) + "\n")
	case st.err != nil:
		b.WriteString(s.errText.Render("✖ "+st.err.Error()) + "\n")
	case st.result != nil:
		b.WriteString(s.ok.Render(fmt.Sprintf("✔ render #%d", st.result.Seq)) + "\n")
	default:
		b.WriteString(s.subtle.Render("no render yet") + "\n")
	}

	if st.result == nil {
		return s.panel.Render(b.String())
	}
	if st.preview != "" {
		b.WriteString(s.item.Render(st.preview))
	} else if st.result.Image.URI != "" {
		b.WriteString(s.subtle.Render("image: "+st.result.Image.URI) + "\n")
	}
	b.WriteString("\n" + s.item.Render(st.result.DiagnosticText) + "\n")
	if v, ok := st.result.Metrics["stability"]; ok {
		b.WriteString(s.label.Render("stability") + s.ok.Render(ProgressBar(v, 20)) + " " + s.value.Render(fmt.Sprintf("%.0f%%", v*100)) + "\n")
	}
	if len(st.stability) > 1 {
		chart := asciigraph.Plot(st.stability, asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("stability history"))
		b.WriteString(s.graph.Render(chart) + "\n")
	}
	return s.panel.Render(b.String())
}

// Run starts the panel and blocks until the user quits. Pending requests
// are abandoned on exit.
func Run(m Model) error {
	defer m.ctrl.Close()
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
