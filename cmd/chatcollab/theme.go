package main

import (
	"github.com/charmbracelet/lipgloss"

	"chatcollab/internal/chat"
)

type uiTheme struct {
	root        lipgloss.Style
	header      lipgloss.Style
	tabActive   lipgloss.Style
	tabInactive lipgloss.Style
	panel       lipgloss.Style
	panelTitle  lipgloss.Style
	footer      lipgloss.Style
	status      lipgloss.Style
	errorStatus lipgloss.Style
	warnStatus  lipgloss.Style
	inputPanel  lipgloss.Style
	helpText    lipgloss.Style
	highlight   lipgloss.Style
	modalFrame  lipgloss.Style
	modalAccent lipgloss.Style
	barFilled   lipgloss.Style
	barEmpty    lipgloss.Style
	taskDone    lipgloss.Style
	chatRole    map[chat.Role]lipgloss.Style
	agentColors []lipgloss.Style
	canvas      lipgloss.Color
}

func newTheme() uiTheme {
	pink := lipgloss.Color("#ff71ce")
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	gold := lipgloss.Color("#ffd166")
	bg := lipgloss.Color("#120924")
	panelBg := lipgloss.Color("#1b0f35")
	text := lipgloss.Color("#f3f3ff")
	muted := lipgloss.Color("#9ca3d8")

	return uiTheme{
		root: lipgloss.NewStyle().
			Background(bg).
			Foreground(text).
			Padding(0, 1),
		header: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(text).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		tabActive: lipgloss.NewStyle().
			Background(pink).
			Foreground(lipgloss.Color("#22062f")).
			Bold(true).
			Padding(0, 1),
		tabInactive: lipgloss.NewStyle().
			Background(lipgloss.Color("#2a184a")).
			Foreground(muted).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		panelTitle: lipgloss.NewStyle().
			Foreground(mint).
			Bold(true),
		footer: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(muted).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(pink).
			Padding(0, 1),
		status:      lipgloss.NewStyle().Foreground(blue).Bold(true),
		errorStatus: lipgloss.NewStyle().Foreground(pink).Bold(true),
		warnStatus:  lipgloss.NewStyle().Foreground(gold).Bold(true),
		inputPanel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(mint).
			Padding(0, 1),
		helpText:  lipgloss.NewStyle().Foreground(muted),
		highlight: lipgloss.NewStyle().Foreground(pink).Bold(true),
		modalFrame: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(blue).
			Padding(1, 2),
		modalAccent: lipgloss.NewStyle().
			Foreground(mint).
			Bold(true),
		barFilled: lipgloss.NewStyle().Foreground(mint),
		barEmpty:  lipgloss.NewStyle().Foreground(lipgloss.Color("#3b2a66")),
		taskDone:  lipgloss.NewStyle().Foreground(mint).Strikethrough(true),
		chatRole: map[chat.Role]lipgloss.Style{
			chat.RoleUser:   lipgloss.NewStyle().Foreground(mint).Bold(true),
			chat.RoleAgent:  lipgloss.NewStyle().Foreground(pink).Bold(true),
			chat.RoleSystem: lipgloss.NewStyle().Foreground(muted).Bold(true),
		},
		agentColors: []lipgloss.Style{
			lipgloss.NewStyle().Foreground(pink).Bold(true),
			lipgloss.NewStyle().Foreground(blue).Bold(true),
			lipgloss.NewStyle().Foreground(gold).Bold(true),
			lipgloss.NewStyle().Foreground(lipgloss.Color("#b967ff")).Bold(true),
		},
		canvas: bg,
	}
}

// senderStyle gives each agent a stable color by roster position.
func (t uiTheme) senderStyle(msg chat.Message, participants []chat.Participant) lipgloss.Style {
	if msg.Role != chat.RoleAgent {
		return t.chatRole[msg.Role]
	}
	agentIdx := 0
	for _, p := range participants {
		if p.Role != chat.RoleAgent {
			continue
		}
		if p.Name == msg.SenderName || p.Name == msg.Sender {
			return t.agentColors[agentIdx%len(t.agentColors)]
		}
		agentIdx++
	}
	return t.chatRole[chat.RoleAgent]
}

func (t uiTheme) connectionStyle(state chat.ConnectionState) lipgloss.Style {
	switch state {
	case chat.Connected:
		return t.status
	case chat.Connecting:
		return t.warnStatus
	default:
		return t.errorStatus
	}
}
