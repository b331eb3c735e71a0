package output

import (
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tkjaer/latgraph/internal/history"
	"github.com/tkjaer/latgraph/internal/probe"
	"github.com/tkjaer/latgraph/internal/shared"
	"github.com/tkjaer/latgraph/pkg/ptr"
)

// SettingsSink receives the settings changes made in the TUI
type SettingsSink interface {
	Current() probe.Settings
	Apply(probe.Settings) error
}

// TUIOutput draws a live latency graph using Bubble Tea
type TUIOutput struct {
	mu       sync.Mutex
	program  *tea.Program
	model    *tuiModel
	updateCh chan tea.Msg
	quitCh   chan struct{}
	doneCh   chan struct{}
}

// tuiUpdateMsg is sent when a sample changes
type tuiUpdateMsg struct {
	sample shared.Sample
	stats  shared.LatencyStats
}

type tuiErrorMsg struct {
	kind probe.ErrorKind
	err  error
}

// ptrResolvedMsg is sent when a PTR lookup finished
type ptrResolvedMsg struct {
	host string
}

// tickMsg is sent periodically to refresh the display
type tickMsg time.Time

type tuiModel struct {
	// Data
	info       shared.OutputInfo
	samples    []shared.Sample // ordered by seq, contiguous
	maxSamples int
	stats      shared.LatencyStats
	remote     string
	lastErr    string
	ptr        *ptr.PtrManager
	settings   SettingsSink

	// UI state
	width  int
	height int
	help   help.Model
	keys   keyMap

	updateCh chan tea.Msg
	quitCh   chan struct{}
	quitOnce *sync.Once
}

// keyMap defines keyboard shortcuts
type keyMap struct {
	Toggle key.Binding
	Slower key.Binding
	Faster key.Binding
	Quit   key.Binding
	Help   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Quit, k.Help}
}

// FullHelp returns keybindings for the expanded help view
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Slower, k.Faster},
		{k.Quit, k.Help},
	}
}

var keys = keyMap{
	Toggle: key.NewBinding(
		key.WithKeys(" "),
		key.WithHelp("space", "start/stop"),
	),
	Slower: key.NewBinding(
		key.WithKeys("+", "="),
		key.WithHelp("+", "longer interval"),
	),
	Faster: key.NewBinding(
		key.WithKeys("-", "_"),
		key.WithHelp("-", "shorter interval"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "toggle help"),
	),
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FBBF24"))

	axisStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9CA3AF"))

	statsGoodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#34D399"))

	statsWarningStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FBBF24"))

	statsBadStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

// intervalSteps are the intervals offered by the +/- keys
var intervalSteps = []time.Duration{
	10 * time.Millisecond,
	20 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	200 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	2 * time.Second,
	5 * time.Second,
}

// stepInterval moves to the next step above (dir > 0) or below the current
// interval
func stepInterval(cur time.Duration, dir int) time.Duration {
	if dir > 0 {
		for _, s := range intervalSteps {
			if s > cur {
				return s
			}
		}
		return intervalSteps[len(intervalSteps)-1]
	}
	for _, s := range slices.Backward(intervalSteps) {
		if s < cur {
			return s
		}
	}
	return intervalSteps[0]
}

func formatLatency(us int64) string {
	switch {
	case us >= 1000000:
		return fmt.Sprintf("%.2fs", float64(us)/1e6)
	case us >= 1000:
		return fmt.Sprintf("%.1fms", float64(us)/1e3)
	default:
		return fmt.Sprintf("%dµs", us)
	}
}

func lossStyle(pct float64) lipgloss.Style {
	switch {
	case pct == 0:
		return statsGoodStyle
	case pct < 5:
		return statsWarningStyle
	default:
		return statsBadStyle
	}
}

// NewTUIOutput creates a new Bubble Tea TUI output
func NewTUIOutput(info shared.OutputInfo, settings SettingsSink) *TUIOutput {
	if info.Capacity <= 0 {
		info.Capacity = history.DefaultCapacity
	}
	updateCh := make(chan tea.Msg, 1000)
	quitCh := make(chan struct{})

	model := &tuiModel{
		info:       info,
		maxSamples: info.Capacity,
		remote:     info.Remote,
		ptr:        ptr.NewPtrManager(),
		settings:   settings,
		help:       help.New(),
		keys:       keys,
		updateCh:   updateCh,
		quitCh:     quitCh,
		quitOnce:   &sync.Once{},
	}

	return &TUIOutput{
		model:    model,
		updateCh: updateCh,
		quitCh:   quitCh,
	}
}

// Start initializes and starts the Bubble Tea program
func (b *TUIOutput) Start(opts ...tea.ProgramOption) {
	doneCh := make(chan struct{})
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)

	b.mu.Lock()
	b.doneCh = doneCh
	b.program = tea.NewProgram(b.model, opts...)
	program := b.program
	b.mu.Unlock()

	go func() {
		// Ensure cleanup happens even if there's a panic
		defer func() {
			close(doneCh)
			if r := recover(); r != nil {
				slog.Error("TUI panic", "error", r)
				program.Kill()
			}
		}()

		if _, err := program.Run(); err != nil {
			slog.Error("Error running TUI", "error", err)
		}
		b.model.quit()
	}()
}

// QuitChan is closed when the user quits the TUI
func (b *TUIOutput) QuitChan() <-chan struct{} {
	return b.quitCh
}

func (b *TUIOutput) UpdateSample(sample shared.Sample, stats shared.LatencyStats) {
	b.send(tuiUpdateMsg{sample: sample, stats: stats})
}

func (b *TUIOutput) ReportError(kind probe.ErrorKind, err error) {
	b.send(tuiErrorMsg{kind: kind, err: err})
}

func (b *TUIOutput) send(msg tea.Msg) {
	select {
	case b.updateCh <- msg:
	default:
		// Channel full, skip update
	}
}

func (b *TUIOutput) Close() error {
	b.mu.Lock()
	program := b.program
	doneCh := b.doneCh
	b.program = nil
	b.doneCh = nil
	b.mu.Unlock()

	if program != nil {
		// Request graceful shutdown
		program.Quit()

		select {
		case <-doneCh:
		case <-time.After(500 * time.Millisecond):
			// Force cleanup if it takes too long
			program.Kill()
			<-doneCh
		}
	}
	b.model.quit()
	return nil
}

func (m *tuiModel) quit() {
	m.quitOnce.Do(func() { close(m.quitCh) })
}

// Init is the initial I/O for Bubble Tea
func (m *tuiModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		waitForUpdate(m.updateCh),
		m.lookupPTR(m.remote),
	)
}

// Update handles messages and updates the model
func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quit()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Toggle):
			cur := m.settings.Current()
			cur.Running = !cur.Running
			m.apply(cur)
		case key.Matches(msg, m.keys.Slower):
			cur := m.settings.Current()
			cur.Interval = stepInterval(cur.PollingInterval(), 1)
			m.apply(cur)
		case key.Matches(msg, m.keys.Faster):
			cur := m.settings.Current()
			cur.Interval = stepInterval(cur.PollingInterval(), -1)
			m.apply(cur)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tuiUpdateMsg:
		m.addSample(msg.sample)
		m.stats = msg.stats
		var cmd tea.Cmd
		if msg.sample.Remote != "" && msg.sample.Remote != m.remote {
			m.remote = msg.sample.Remote
			m.lastErr = ""
			cmd = m.lookupPTR(m.remote)
		}
		return m, tea.Batch(waitForUpdate(m.updateCh), cmd)

	case tuiErrorMsg:
		if msg.err != nil {
			m.lastErr = fmt.Sprintf("%s: %v", msg.kind, msg.err)
		} else {
			m.lastErr = string(msg.kind)
		}
		return m, waitForUpdate(m.updateCh)

	case ptrResolvedMsg:
		// Nothing to store, View reads the cache

	case tickMsg:
		return m, tickCmd()
	}

	return m, nil
}

func (m *tuiModel) apply(s probe.Settings) {
	if err := m.settings.Apply(s); err != nil {
		m.lastErr = err.Error()
		return
	}
	m.lastErr = ""
}

// addSample inserts or replaces a sample, keeping the window contiguous
func (m *tuiModel) addSample(s shared.Sample) {
	if len(m.samples) > 0 {
		first := m.samples[0].Seq
		last := m.samples[len(m.samples)-1].Seq
		switch {
		case s.Seq < first:
			return
		case s.Seq <= last:
			m.samples[s.Seq-first] = s
			return
		case s.Seq != last+1:
			// A gap means a new session, start over
			m.samples = m.samples[:0]
		}
	}
	m.samples = append(m.samples, s)
	if len(m.samples) > m.maxSamples {
		m.samples = slices.Delete(m.samples, 0, len(m.samples)-m.maxSamples)
	}
}

func (m *tuiModel) lookupPTR(remote string) tea.Cmd {
	host := remoteHost(remote)
	if net.ParseIP(host) == nil {
		return nil
	}
	pm := m.ptr
	return func() tea.Msg {
		pm.RequestPTR(host)
		return ptrResolvedMsg{host: host}
	}
}

func remoteHost(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}

// View renders the UI
func (m *tuiModel) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Width(m.width).Render(m.title()))
	b.WriteString("\n")
	b.WriteString(m.renderStats())
	b.WriteString("\n\n")

	helpView := m.help.View(m.keys)
	graphHeight := m.height - 5 - lipgloss.Height(helpView)
	b.WriteString(renderGraph(m.samples, m.width, graphHeight))
	b.WriteString("\n")
	if m.lastErr != "" {
		b.WriteString(statsBadStyle.Render(m.lastErr))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(helpView))
	return b.String()
}

func (m *tuiModel) title() string {
	s := probe.DefaultSettings()
	if m.settings != nil {
		s = m.settings.Current()
	}
	remote := m.remote
	if remote == "" {
		remote = "(no remote)"
	}
	if name, ok := m.ptr.GetPTR(remoteHost(m.remote)); ok {
		remote = fmt.Sprintf("%s (%s)", remote, name)
	}
	state := "paused"
	if s.Running {
		state = "running"
	}
	return fmt.Sprintf(" Latency to %s | %s | every %s ", remote, state, s.PollingInterval())
}

func (m *tuiModel) renderStats() string {
	st := m.stats
	if st.Received == 0 {
		return headerStyle.Render(fmt.Sprintf("Sent %d  waiting for replies", st.Sent))
	}
	line := fmt.Sprintf("Last %s  Avg %s  Min %s  Max %s  StdDev %s  Sent %d  Lost %d  Dup %d  ",
		formatLatency(st.Last), formatLatency(st.Avg), formatLatency(st.Min), formatLatency(st.Max),
		formatLatency(int64(st.StdDev)), st.Sent, st.Lost, st.Duplicates)
	return headerStyle.Render(line) + lossStyle(st.LossPct).Render(fmt.Sprintf("Loss %.1f%%", st.LossPct))
}

// eighths are the partial block characters for bar tops
var eighths = []rune{' ', '▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

const axisWidth = 9

// renderGraph draws the newest samples as vertical bars, right aligned.
// Lost probes are drawn as a full height marker.
func renderGraph(samples []shared.Sample, width, height int) string {
	if height < 1 {
		height = 1
	}
	cols := max(width-axisWidth, 1)
	visible := samples[max(len(samples)-cols, 0):]

	var peak int64
	for _, s := range visible {
		if s.Received() && s.Latency > peak {
			peak = s.Latency
		}
	}
	peak = max(peak, 1000)

	var b strings.Builder
	for row := height - 1; row >= 0; row-- {
		label := ""
		switch row {
		case height - 1:
			label = formatLatency(peak)
		case 0:
			label = formatLatency(0)
		}
		b.WriteString(axisStyle.Render(fmt.Sprintf("%*s ", axisWidth-2, label)))
		b.WriteString("│")

		b.WriteString(strings.Repeat(" ", cols-len(visible)))
		for _, s := range visible {
			switch {
			case s.Lost:
				b.WriteString(statsBadStyle.Render("╳"))
			case s.Received():
				b.WriteRune(barRune(max(s.Latency*int64(height)*8/peak, 1), row))
			default:
				b.WriteRune(' ')
			}
		}
		if row > 0 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// barRune returns the character for row (0 = bottom) of a bar that is
// h8 eighths of a row tall
func barRune(h8 int64, row int) rune {
	filled := h8 - int64(row)*8
	switch {
	case filled >= 8:
		return eighths[8]
	case filled > 0:
		return eighths[filled]
	default:
		return ' '
	}
}

// waitForUpdate waits for the next update message
func waitForUpdate(updateCh chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-updateCh
	}
}

// tickCmd returns a command that sends a tick message periodically
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
