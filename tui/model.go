// Package tui is a terminal validator console: a manual entry field, the current
// check-in state and the event's recent entries.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ticketfy-checkin/checkin"
	"ticketfy-checkin/models"
)

const (
	recentRefresh = 2 * time.Second
	recentShown   = 10
)

// Console is the part of *checkin.Coordinator the UI drives.
type Console interface {
	Submit(ctx context.Context, raw string, source models.Source) (checkin.State, error)
	Confirm(ctx context.Context) (checkin.State, error)
	Dismiss() (checkin.State, error)
	State() checkin.State
	Recent() []models.RecentEntry
	Watch() (<-chan checkin.State, func())
}

// DeepLink holds the ticket passed on the command line until it is checked in.
type DeepLink struct {
	mu     sync.Mutex
	ticket string
}

func NewDeepLink(ticket string) *DeepLink { return &DeepLink{ticket: ticket} }

func (d *DeepLink) ClearTicketParam() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ticket = ""
}

func (d *DeepLink) Ticket() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ticket
}

type stateMsg checkin.State

type resultMsg struct{ err error }

type recentMsg []models.RecentEntry

type recentTickMsg struct{}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	confirmStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("10")).Padding(0, 1)
)

type Model struct {
	console Console
	link    *DeepLink
	keys    KeyMap
	input   textinput.Model
	states  <-chan checkin.State
	stop    func()

	state   checkin.State
	recent  []models.RecentEntry
	message string
	isError bool
	width   int
}

// NewModel subscribes to the console's state. link may be nil.
func NewModel(console Console, link *DeepLink) Model {
	input := textinput.New()
	input.Placeholder = "scan or type a ticket id"
	input.CharLimit = 512
	input.Prompt = "ticket › "
	input.Focus()

	states, stop := console.Watch()
	return Model{
		console: console,
		link:    link,
		keys:    DefaultKeyMap,
		input:   input,
		states:  states,
		stop:    stop,
		state:   console.State(),
		recent:  console.Recent(),
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, waitForState(m.states), tickRecent()}
	if m.link != nil && m.link.Ticket() != "" {
		cmds = append(cmds, m.submit(m.link.Ticket(), models.SourceDeepLink))
	}
	return tea.Batch(cmds...)
}

func waitForState(states <-chan checkin.State) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-states
		if !ok {
			return nil
		}
		return stateMsg(s)
	}
}

func tickRecent() tea.Cmd {
	return tea.Tick(recentRefresh, func(time.Time) tea.Msg { return recentTickMsg{} })
}

func (m Model) submit(raw string, source models.Source) tea.Cmd {
	console := m.console
	return func() tea.Msg {
		_, err := console.Submit(context.Background(), raw, source)
		return resultMsg{err: err}
	}
}

func (m Model) confirm() tea.Cmd {
	console := m.console
	return func() tea.Msg {
		_, err := console.Confirm(context.Background())
		return resultMsg{err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case stateMsg:
		m.state = checkin.State(msg)
		return m, tea.Batch(waitForState(m.states), func() tea.Msg { return recentMsg(m.console.Recent()) })

	case resultMsg:
		// The watch channel may already be ahead of the returned snapshot.
		m.state = m.console.State()
		m.setResult(msg.err)
		return m, nil

	case recentMsg:
		m.recent = msg
		return m, nil

	case recentTickMsg:
		m.recent = m.console.Recent()
		return m, tickRecent()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.stop != nil {
				m.stop()
			}
			return m, tea.Quit
		case key.Matches(msg, m.keys.Lookup):
			raw := strings.TrimSpace(m.input.Value())
			if raw == "" {
				return m, nil
			}
			m.input.Reset()
			m.message = ""
			return m, m.submit(raw, models.SourceManual)
		case key.Matches(msg, m.keys.Confirm):
			if !m.state.CanConfirm {
				m.message = m.state.ConfirmLabel
				m.isError = false
				return m, nil
			}
			m.message = "checking in..."
			m.isError = false
			return m, m.confirm()
		case key.Matches(msg, m.keys.Dismiss):
			state, err := m.console.Dismiss()
			m.state = state
			m.setResult(err)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) setResult(err error) {
	m.isError = err != nil
	switch {
	case err != nil:
		m.message = errorText(err)
	case m.state.Last != nil && m.state.Phase != checkin.PhaseReadyToConfirm:
		m.message = m.state.Last.Message
	default:
		m.message = ""
	}
}

func errorText(err error) string {
	var e *models.Error
	if errors.As(err, &e) {
		return models.MessageOf(err)
	}
	return err.Error()
}

func (m Model) View() string {
	var b strings.Builder

	title := "Ticketfy validator console"
	if m.state.Authorization.EventID != "" {
		title += "  " + labelStyle.Render(m.state.Authorization.EventID)
	}
	b.WriteString(titleStyle.Render(title) + "\n")
	b.WriteString(m.authLine() + "\n")
	b.WriteString(labelStyle.Render(m.statsLine()) + "\n\n")
	b.WriteString(m.input.View() + "\n\n")
	panel := panelStyle
	if m.width > 4 {
		panel = panel.Width(m.width - 4)
	}
	b.WriteString(panel.Render(m.statePanel()) + "\n")
	b.WriteString(panel.Render(m.recentPanel()) + "\n")
	b.WriteString(helpStyle.Render(m.keys.help()))
	return b.String()
}

func (m Model) authLine() string {
	auth := m.state.Authorization
	switch {
	case auth.Authorized && m.state.ReadOnly:
		return warnStyle.Render("validator " + auth.Identity + " (read-only)")
	case auth.Authorized:
		return okStyle.Render("validator " + auth.Identity)
	case auth.Identity == "":
		return warnStyle.Render("no validator key, read-only")
	}
	return errorStyle.Render(models.DefaultMessage(models.KindUnauthorized))
}

// statsLine counts the event's check-ins against tickets sold. The sold count comes
// from the last validator check, which is re-run after every check-in.
func (m Model) statsLine() string {
	return joinDot([]string{
		fmt.Sprintf("validated %d", len(m.recent)),
		fmt.Sprintf("sold %d", m.state.Authorization.Event.TotalTicketsSold),
	})
}

func (m Model) statePanel() string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("state ") + string(m.state.Phase))
	if m.link != nil && m.link.Ticket() != "" {
		b.WriteString(labelStyle.Render("  link ") + m.link.Ticket())
	}
	b.WriteString("\n")

	if t := m.state.Ticket; t != nil {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("ticket"), t.TicketID)
		fmt.Fprintf(&b, "%s  %s\n", labelStyle.Render("owner"), t.DisplayOwner())
		if t.Redeemed {
			b.WriteString(warnStyle.Render("already checked in") + "\n")
		}
	} else if m.state.TicketID != "" {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("ticket"), m.state.TicketID)
	}

	if m.state.CanConfirm {
		b.WriteString(confirmStyle.Render(m.state.ConfirmLabel+" (C-s)") + "\n")
	} else if m.state.ConfirmLabel != "" {
		b.WriteString(labelStyle.Render(m.state.ConfirmLabel) + "\n")
	}

	if m.message != "" {
		style := okStyle
		if m.isError || (m.state.Last != nil && m.state.Last.Outcome == models.OutcomeFailed) {
			style = errorStyle
		}
		b.WriteString(style.Render(m.message))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) recentPanel() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d)\n", titleStyle.Render("recent entries"), len(m.recent))
	if len(m.recent) == 0 {
		b.WriteString(labelStyle.Render("no tickets checked in yet"))
		return b.String()
	}
	for i, e := range m.recent {
		if i == recentShown {
			fmt.Fprintf(&b, "%s", labelStyle.Render(fmt.Sprintf("... %d more", len(m.recent)-recentShown)))
			break
		}
		fmt.Fprintf(&b, "%-20s %s\n", e.DisplayOwner(), labelStyle.Render(e.RedeemedAt))
	}
	return strings.TrimRight(b.String(), "\n")
}

func joinDot(parts []string) string {
	return strings.Join(parts, " · ")
}
