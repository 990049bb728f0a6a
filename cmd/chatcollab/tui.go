package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chatcollab/internal/chat"
)

const (
	timelineMaxLines = 12
	timelineMaxChars = 1600
	maxLogLines      = 50
	syncBuffer       = 256
)

type tabID int

const (
	tabChat tabID = iota
	tabHelp
	tabCount
)

// chatClient is the part of syncclient.Client the UI drives.
type chatClient interface {
	Connect()
	Disconnect()
	Reconnect()
	Submit(text string)
}

type model struct {
	client      chatClient
	username    string
	sessionID   string
	server      string
	transport   string
	syncInbound chan tea.Msg

	messages     []chat.Message
	participants []chat.Participant
	stage        chat.StageInfo
	conn         chat.ConnectionView

	statusLine  string
	logs        []string
	activeTab   tabID
	quitConfirm bool

	width  int
	height int

	input    textinput.Model
	timeline viewport.Model
	sidebar  viewport.Model
	spinner  spinner.Model

	theme uiTheme
}

type syncAppendMsg struct{ msg chat.Message }
type syncResetMsg struct{ msgs []chat.Message }
type syncParticipantMsg struct{ participant chat.Participant }
type syncStageMsg struct{ stage chat.StageInfo }
type syncConnectionMsg struct{ view chat.ConnectionView }

// teaRenderer forwards client notifications into the bubbletea program.
type teaRenderer struct {
	out  chan<- tea.Msg
	done <-chan struct{}
}

func (r teaRenderer) send(msg tea.Msg) {
	select {
	case r.out <- msg:
	case <-r.done:
	}
}

func (r teaRenderer) AppendMessage(msg chat.Message) { r.send(syncAppendMsg{msg: msg}) }
func (r teaRenderer) ResetMessages(msgs []chat.Message) { r.send(syncResetMsg{msgs: msgs}) }
func (r teaRenderer) UpdateParticipant(p chat.Participant) { r.send(syncParticipantMsg{participant: p}) }
func (r teaRenderer) UpdateStage(stage chat.StageInfo) { r.send(syncStageMsg{stage: stage}) }
func (r teaRenderer) UpdateConnection(view chat.ConnectionView) {
	r.send(syncConnectionMsg{view: view})
}

func waitSyncMsg(ch <-chan tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func newModel(cfg appConfig, client chatClient, username string, inbound chan tea.Msg) model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000
	input.Placeholder = "Type a message. /help lists commands."
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true
	timeline.MouseWheelDelta = 4
	sidebar := viewport.New(0, 0)
	sidebar.MouseWheelEnabled = true
	sidebar.MouseWheelDelta = 4

	return model{
		client:      client,
		username:    username,
		sessionID:   cfg.session,
		server:      cfg.server,
		transport:   cfg.transport,
		syncInbound: inbound,
		conn:        chat.ConnectionView{State: chat.Disconnected},
		statusLine:  "starting...",
		logs:        []string{},
		activeTab:   tabChat,
		input:       input,
		timeline:    timeline,
		sidebar:     sidebar,
		spinner:     sp,
		theme:       newTheme(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitSyncMsg(m.syncInbound),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case syncAppendMsg:
		m.messages = append(m.messages, msg.msg)
		if msg.msg.Role == chat.RoleSystem {
			m.appendLog(msg.msg.Text)
		}
		m.renderPanes()
		cmds = append(cmds, waitSyncMsg(m.syncInbound))
	case syncResetMsg:
		m.messages = append([]chat.Message(nil), msg.msgs...)
		m.appendLog(fmt.Sprintf("history loaded: %d messages", len(msg.msgs)))
		m.renderPanes()
		cmds = append(cmds, waitSyncMsg(m.syncInbound))
	case syncParticipantMsg:
		m.upsertParticipant(msg.participant)
		m.renderPanes()
		cmds = append(cmds, waitSyncMsg(m.syncInbound))
	case syncStageMsg:
		if msg.stage.ID != m.stage.ID && !msg.stage.Empty() {
			m.appendLog("stage: " + msg.stage.Label())
		}
		m.stage = msg.stage
		m.renderPanes()
		cmds = append(cmds, waitSyncMsg(m.syncInbound))
	case syncConnectionMsg:
		m.applyConnection(msg.view)
		m.renderPanes()
		cmds = append(cmds, waitSyncMsg(m.syncInbound))
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderPanes()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case tea.MouseMsg:
		if m.quitConfirm || m.activeTab != tabChat {
			break
		}
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		cmds = append(cmds, cmd)
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.quitConfirm {
			switch msg.String() {
			case "y", "Y", "enter":
				return m, tea.Quit
			case "n", "N", "esc":
				m.quitConfirm = false
				m.statusLine = "quit canceled"
				m.renderPanes()
			}
			return m, tea.Batch(cmds...)
		}

		switch msg.String() {
		case "esc":
			if m.activeTab == tabChat {
				m.beginQuitConfirm()
				return m, tea.Batch(cmds...)
			}
			m.switchTab(tabChat)
			return m, tea.Batch(cmds...)
		case "tab":
			m.switchTab((m.activeTab + 1) % tabCount)
			return m, tea.Batch(cmds...)
		case "shift+tab":
			m.switchTab((m.activeTab + tabCount - 1) % tabCount)
			return m, tea.Batch(cmds...)
		case "ctrl+r":
			m.client.Reconnect()
			m.statusLine = "reconnecting..."
			m.appendLog("manual reconnect")
			return m, tea.Batch(cmds...)
		}

		switch m.activeTab {
		case tabChat:
			switch msg.String() {
			case "enter":
				raw := strings.TrimSpace(m.input.Value())
				if raw == "" {
					return m, tea.Batch(cmds...)
				}
				if strings.HasPrefix(raw, "/") {
					m.input.SetValue("")
					if cmd := m.handleSlash(raw); cmd != nil {
						cmds = append(cmds, cmd)
					}
					return m, tea.Batch(cmds...)
				}
				if !m.conn.InputEnabled {
					// Keep the draft; it can be sent once the session is back.
					if m.conn.Sending {
						m.statusLine = "still sending previous message"
					} else {
						m.statusLine = "not connected · Ctrl+R to reconnect"
					}
					return m, tea.Batch(cmds...)
				}
				m.input.SetValue("")
				m.client.Submit(raw)
				m.statusLine = "sending..."
				return m, tea.Batch(cmds...)
			case "pgup", "ctrl+b":
				m.timeline.LineUp(8)
				return m, tea.Batch(cmds...)
			case "pgdown", "ctrl+f":
				m.timeline.LineDown(8)
				return m, tea.Batch(cmds...)
			case "up":
				if strings.TrimSpace(m.input.Value()) == "" {
					m.timeline.LineUp(4)
					return m, tea.Batch(cmds...)
				}
			case "down":
				if strings.TrimSpace(m.input.Value()) == "" {
					m.timeline.LineDown(4)
					return m, tea.Batch(cmds...)
				}
			case "home":
				m.timeline.GotoTop()
				return m, tea.Batch(cmds...)
			case "end":
				m.timeline.GotoBottom()
				return m, tea.Batch(cmds...)
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		case tabHelp:
			switch msg.String() {
			case "pgup", "k", "up":
				m.sidebar.LineUp(4)
			case "pgdown", "j", "down":
				m.sidebar.LineDown(4)
			}
		}
	}
	return m, tea.Batch(cmds...)
}

func (m *model) handleSlash(raw string) tea.Cmd {
	parts := strings.Fields(strings.TrimSpace(raw))
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(parts[0])
	switch cmd {
	case "/help":
		m.switchTab(tabHelp)
	case "/quit", "/exit":
		m.beginQuitConfirm()
	case "/reconnect":
		m.client.Reconnect()
		m.statusLine = "reconnecting..."
		m.appendLog("manual reconnect")
	case "/connect":
		m.client.Connect()
		m.statusLine = "connecting..."
	case "/disconnect":
		m.client.Disconnect()
		m.statusLine = "disconnected by user"
		m.appendLog("manual disconnect")
	default:
		m.statusLine = "unknown command: " + cmd
	}
	return nil
}

func (m *model) switchTab(tab tabID) {
	m.activeTab = tab
	if m.activeTab == tabChat {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
	m.renderPanes()
}

func (m *model) beginQuitConfirm() {
	m.quitConfirm = true
	m.statusLine = "quit chatcollab?"
}

func (m *model) upsertParticipant(p chat.Participant) {
	for i := range m.participants {
		if m.participants[i].Key == p.Key {
			m.participants[i] = p
			return
		}
	}
	m.participants = append(m.participants, p)
}

func (m *model) applyConnection(view chat.ConnectionView) {
	prev := m.conn
	m.conn = view
	if prev.State == view.State {
		if prev.Sending && !view.Sending && view.State == chat.Connected {
			m.statusLine = "connected"
		}
		return
	}
	switch view.State {
	case chat.Connected:
		m.statusLine = "connected"
	case chat.Connecting:
		m.statusLine = "connecting..."
	case chat.Disconnected:
		m.statusLine = "disconnected"
	}
	m.appendLog("connection " + string(view.State))
}

// typingNames lists participants currently typing, in roster order.
func (m *model) typingNames() []string {
	var names []string
	for _, p := range m.participants {
		if p.Status == chat.StatusTyping {
			names = append(names, p.Name)
		}
	}
	return names
}

func (m *model) appendLog(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	m.logs = append(m.logs, fmt.Sprintf("%s %s", time.Now().Format("15:04:05"), compactSingleLine(trimmed, 220)))
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
}

// runTUI owns the program lifecycle: session wiring, the bubbletea loop and teardown.
func runTUI(parent context.Context, cfg appConfig) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	logger, closeLog, err := newLogger(cfg, nil)
	if err != nil {
		return err
	}
	defer closeLog()

	inbound := make(chan tea.Msg, syncBuffer)
	uiDone := make(chan struct{})
	renderer := teaRenderer{out: inbound, done: uiDone}
	sess, notes, err := newSession(cfg, renderer, logger)
	if err != nil {
		return err
	}

	m := newModel(cfg, sess.client, sess.username, inbound)
	for _, note := range notes {
		m.appendLog(note)
	}
	sess.start(ctx)

	opts := []tea.ProgramOption{tea.WithMouseCellMotion(), tea.WithContext(ctx)}
	if cfg.altScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	_, runErr := tea.NewProgram(m, opts...).Run()
	close(uiDone)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	sess.stop(stopCtx)
	if runErr != nil {
		return fmt.Errorf("tui: %w", runErr)
	}
	return nil
}
