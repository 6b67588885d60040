package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	watchTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	watchOKStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	watchErrStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	watchPendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func newWatchCommand(rootOpts *rootOptions) *cobra.Command {
	var sessionID string
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll a session's metadata and render its state live",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := newWatchModel(rootOpts.baseURL, sessionID, interval)
			p := tea.NewProgram(m)
			_, err := p.Run()
			return err
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session id to watch")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval")
	_ = cmd.MarkFlagRequired("session-id")
	return cmd
}

type watchTickMsg struct{}

type watchResultMsg struct {
	metadata *sessionMetadata
	errKind  string
	err      error
}

type watchModel struct {
	client    *apiClient
	sessionID string
	interval  time.Duration

	latest  *sessionMetadata
	errKind string
	lastErr error
	polls   int
}

func newWatchModel(baseURL, sessionID string, interval time.Duration) watchModel {
	return watchModel{client: newAPIClient(baseURL), sessionID: sessionID, interval: interval}
}

func (m watchModel) Init() tea.Cmd {
	return m.poll()
}

func (m watchModel) poll() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		env, err := m.client.getSession(ctx, m.sessionID)
		if err != nil {
			return watchResultMsg{err: err}
		}
		if env.Data.Error != nil {
			return watchResultMsg{errKind: env.Data.Error.Kind}
		}
		return watchResultMsg{metadata: env.Data.SessionMetadata}
	}
}

func (m watchModel) waitTick() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return watchTickMsg{} })
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case watchResultMsg:
		m.polls++
		m.latest, m.errKind, m.lastErr = msg.metadata, msg.errKind, msg.err
		if m.latest != nil && m.latest.Verified {
			return m, tea.Quit
		}
		return m, m.waitTick()
	case watchTickMsg:
		return m, m.poll()
	}
	return m, nil
}

func (m watchModel) View() string {
	header := watchTitleStyle.Render(fmt.Sprintf("verifyctl watch  session=%s  polls=%d", m.sessionID, m.polls))
	var body string
	switch {
	case m.lastErr != nil:
		body = watchErrStyle.Render("transport error: " + m.lastErr.Error())
	case m.errKind != "":
		body = watchErrStyle.Render("session error: " + m.errKind)
	case m.latest == nil:
		body = watchPendingStyle.Render("waiting for first poll...")
	case m.latest.Verified:
		body = watchOKStyle.Render(fmt.Sprintf("verified  e164=%d", m.latest.E164))
	default:
		body = watchPendingStyle.Render(fmt.Sprintf("pending  e164=%d", m.latest.E164))
	}
	return header + "\n\n" + body + "\n\npress q to quit\n"
}
