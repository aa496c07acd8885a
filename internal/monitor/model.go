// Package monitor is the `--debug` terminal dashboard: a small Bubble Tea
// program layered over the headless orchestrond server, in the same spirit
// as the teacher's supercollider.StartupProgressModel — a secondary
// interactive surface, never the primary interface.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/orchestron/internal/persistence"
	"github.com/schollz/orchestron/internal/registry"
	"github.com/schollz/orchestron/internal/session"
	"github.com/schollz/orchestron/internal/types"
)

const (
	tickInterval  = 500 * time.Millisecond
	maxEventLines = 8
	waveformCells = 48
)

type tickMsg time.Time
type eventMsg types.Event
type subClosedMsg struct{}
type waveformMsg struct {
	strip string
	err   error
}

// Model is a read-only view onto one running session: lifecycle state,
// sequencer status, recent event-bus activity, and (when the session's
// patch binds a gen_soundfile) a Braille preview of that sample.
type Model struct {
	mgr       *session.Manager
	gateway   *persistence.Gateway
	sessionID string

	width, height int

	state  types.SessionState
	status string
	events []string

	waveform    string
	waveformErr string
}

// NewModel builds the dashboard for sessionID, owned by mgr and backed by
// gateway for the one-time sample-preview lookup.
func NewModel(mgr *session.Manager, gateway *persistence.Gateway, sessionID string) Model {
	return Model{mgr: mgr, gateway: gateway, sessionID: sessionID}
}

// Run blocks, driving the dashboard in the current terminal until the user
// quits or the session disappears.
func Run(mgr *session.Manager, gateway *persistence.Gateway, sessionID string) error {
	p := tea.NewProgram(NewModel(mgr, gateway, sessionID), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	sess, ok := m.mgr.Get(m.sessionID)
	if !ok {
		return func() tea.Msg { return subClosedMsg{} }
	}
	return tea.Batch(tickCmd(), waitForEvent(sess.Subscribe()), m.loadWaveform())
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitForEvent(sub *session.Subscription) tea.Cmd {
	return func() tea.Msg {
		ev, err := sub.Next(context.Background())
		if err != nil {
			return subClosedMsg{}
		}
		return eventMsg(ev)
	}
}

// loadWaveform resolves the session's first assigned patch that binds a
// gen_soundfile node and decodes a downsampled preview of it, per
// SPEC_FULL.md's waveform-strip requirement. Sessions with no such node
// render no waveform at all, which is a valid and common case.
func (m Model) loadWaveform() tea.Cmd {
	return func() tea.Msg {
		sess, ok := m.mgr.Get(m.sessionID)
		if !ok {
			return waveformMsg{}
		}
		for _, a := range sess.Assignments() {
			patch, err := m.gateway.LoadPatch(a.PatchID)
			if err != nil {
				continue
			}
			for _, n := range patch.Nodes {
				if n.OpcodeName != "gen_soundfile" {
					continue
				}
				file, ok := n.Params["file"]
				if !ok || file.Kind != types.ParamString {
					continue
				}
				preview, err := registry.SamplePreview(file.Text, waveformCells)
				if err != nil {
					return waveformMsg{err: err}
				}
				return waveformMsg{strip: renderWaveform(waveformCells, 3, preview)}
			}
		}
		return waveformMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
		return m, nil

	case tickMsg:
		sess, ok := m.mgr.Get(m.sessionID)
		if !ok {
			return m, tea.Quit
		}
		m.state = sess.State()
		if st, err := m.mgr.SequencerStatus(m.sessionID); err == nil {
			if st.Running {
				m.status = fmt.Sprintf("running, next step @%dms, %d tracks", st.StepAtMillis, len(st.Tracks))
			} else {
				m.status = "stopped"
			}
		}
		return m, tickCmd()

	case eventMsg:
		line := fmt.Sprintf("[%s] %s", msg.Kind, msg.Message)
		m.events = append(m.events, line)
		if len(m.events) > maxEventLines {
			m.events = m.events[len(m.events)-maxEventLines:]
		}
		sess, ok := m.mgr.Get(m.sessionID)
		if !ok {
			return m, nil
		}
		return m, waitForEvent(sess.Subscribe())

	case waveformMsg:
		if msg.err != nil {
			m.waveformErr = msg.err.Error()
		} else {
			m.waveform = msg.strip
		}
		return m, nil

	case subClosedMsg:
		return m, tea.Quit
	}
	return m, nil
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	eventStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	waveStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
)

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("orchestron — session %s", m.sessionID)))
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("state: "))
	b.WriteString(m.state.String())
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("sequencer: "))
	b.WriteString(m.status)
	b.WriteString("\n\n")

	if m.waveform != "" {
		b.WriteString(waveStyle.Render(m.waveform))
		b.WriteString("\n\n")
	} else if m.waveformErr != "" {
		b.WriteString(labelStyle.Render("waveform: " + m.waveformErr))
		b.WriteString("\n\n")
	}

	b.WriteString(labelStyle.Render("recent events:"))
	b.WriteString("\n")
	for _, line := range m.events {
		b.WriteString(eventStyle.Render(line))
		b.WriteString("\n")
	}
	b.WriteString("\n(press q to quit)\n")
	return b.String()
}
