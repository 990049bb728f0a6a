package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"chatcollab/internal/chat"
)

func (m model) View() string {
	header := m.renderHeader()
	content := m.renderContent()
	input := m.renderInput()
	footer := m.renderFooter()
	out := lipgloss.JoinVertical(lipgloss.Left, header, content, input, footer)
	if m.quitConfirm {
		out = m.renderQuitModal()
	}
	return m.theme.root.Render(out)
}

func (m *model) renderHeader() string {
	tabs := []struct {
		id    tabID
		label string
	}{
		{tabChat, "Chat"},
		{tabHelp, "Help"},
	}
	segments := make([]string, 0, len(tabs)+1)
	for _, tab := range tabs {
		style := m.theme.tabInactive
		if tab.id == m.activeTab {
			style = m.theme.tabActive
		}
		segments = append(segments, style.Render(tab.label))
	}
	meta := fmt.Sprintf(" Session: %s · You: %s · %s", nullCoalesce(m.sessionID, "default"), m.username, m.transport)
	segments = append(segments, m.theme.helpText.Render(meta))
	joined := lipgloss.JoinHorizontal(lipgloss.Left, segments...)
	return m.theme.header.Width(maxInt(20, m.width-4)).Render(joined)
}

// paneWidths splits the content width between timeline and sidebar.
func paneWidths(contentWidth int) (left, right int) {
	left = int(float64(contentWidth) * 0.66)
	right = contentWidth - left - 1
	if right < 30 {
		right = 30
		left = contentWidth - right - 1
	}
	return left, right
}

func (m *model) renderContent() string {
	contentHeight := maxInt(8, m.height-12)
	contentWidth := maxInt(40, m.width-4)

	switch m.activeTab {
	case tabChat:
		leftWidth, rightWidth := paneWidths(contentWidth)
		title := "Live Timeline"
		if typing := m.typingNames(); len(typing) > 0 {
			title += "  " + m.theme.highlight.Render(typingLabel(typing))
		}
		left := m.theme.panel.Width(leftWidth).Height(contentHeight).Render(
			m.theme.panelTitle.Render(title) + "\n" + m.timeline.View(),
		)
		right := m.theme.panel.Width(rightWidth).Height(contentHeight).Render(
			m.theme.panelTitle.Render("Session") + "\n" + m.sidebar.View(),
		)
		return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	case tabHelp:
		panel := m.theme.panel.Width(contentWidth).Height(contentHeight)
		return panel.Render(m.theme.panelTitle.Render("chatcollab Help") + "\n" + m.sidebar.View())
	default:
		return ""
	}
}

func (m *model) renderInput() string {
	contentWidth := maxInt(40, m.width-4)
	if m.activeTab != tabChat {
		return m.theme.inputPanel.Width(contentWidth).Render(m.theme.helpText.Render("Input disabled outside Chat tab. Press Tab to return."))
	}
	inputView := m.input.View()
	switch {
	case m.conn.Sending:
		inputView = m.spinner.View() + " sending... " + inputView
	case m.conn.State == chat.Connecting:
		inputView = m.spinner.View() + " connecting... " + inputView
	case !m.conn.InputEnabled:
		inputView = m.theme.helpText.Render("[offline] ") + inputView
	}
	return m.theme.inputPanel.Width(contentWidth).Render(inputView)
}

func (m *model) renderFooter() string {
	contentWidth := maxInt(40, m.width-4)
	statusStyle := m.theme.status
	lower := strings.ToLower(m.statusLine)
	if strings.Contains(lower, "failed") || strings.Contains(lower, "error") || strings.Contains(lower, "not connected") {
		statusStyle = m.theme.errorStatus
	}
	conn := m.theme.connectionStyle(m.conn.State).Render("● " + string(m.conn.State))
	line := conn + "  " + statusStyle.Render(compactSingleLine(m.statusLine, 160))
	hints := m.theme.helpText.Render("Keys: Enter send · Ctrl+R reconnect · Tab switch view · PgUp/PgDn scroll · Esc quit prompt · Ctrl+C quit")
	return m.theme.footer.Width(contentWidth).Render(line + "\n" + hints)
}

func (m *model) renderQuitModal() string {
	canvasWidth := maxInt(40, m.width-4)
	canvasHeight := maxInt(12, m.height-4)
	modalWidth := clampInt(int(float64(canvasWidth)*0.56), 42, 78)
	if modalWidth > canvasWidth-2 {
		modalWidth = canvasWidth - 2
	}

	title := m.theme.errorStatus.Render("LEAVE SESSION?")
	subtitle := m.theme.helpText.Render("The conversation continues on the server without you.")
	prompt := m.theme.highlight.Render("[Y / Enter] Quit") + "    " + m.theme.helpText.Render("[N / Esc] Return")
	accent := m.theme.modalAccent.Render(strings.Repeat("=", 40))
	body := strings.Join([]string{
		title,
		subtitle,
		"",
		accent,
		"",
		prompt,
	}, "\n")
	panel := m.theme.modalFrame.Width(modalWidth).Render(body)
	return lipgloss.Place(
		canvasWidth,
		canvasHeight,
		lipgloss.Center,
		lipgloss.Center,
		panel,
		lipgloss.WithWhitespaceBackground(m.theme.canvas),
	)
}

func (m *model) renderPanes() {
	prevTimelineYOffset := m.timeline.YOffset
	prevTimelineAtBottom := m.timeline.AtBottom()

	contentHeight := maxInt(8, m.height-12)
	contentWidth := maxInt(40, m.width-4)
	leftWidth, rightWidth := paneWidths(contentWidth)

	m.timeline.Width = maxInt(20, leftWidth-4)
	m.timeline.Height = maxInt(5, contentHeight-3)
	if m.activeTab == tabHelp {
		m.sidebar.Width = maxInt(20, contentWidth-4)
	} else {
		m.sidebar.Width = maxInt(20, rightWidth-4)
	}
	m.sidebar.Height = maxInt(5, contentHeight-3)

	m.timeline.SetContent(m.renderTimeline())
	if prevTimelineAtBottom {
		m.timeline.GotoBottom()
	} else {
		m.timeline.SetYOffset(prevTimelineYOffset)
	}
	if m.activeTab == tabHelp {
		m.sidebar.SetContent(m.renderHelp())
	} else {
		m.sidebar.SetContent(m.renderSidebar())
	}
}

func (m *model) resize() {
	contentWidth := maxInt(40, m.width-4)
	m.input.Width = maxInt(20, contentWidth-6)
}

func (m *model) renderTimeline() string {
	if len(m.messages) == 0 {
		if m.conn.State == chat.Connected {
			return "No messages yet. Say hello."
		}
		return "Waiting for the session..."
	}
	var b strings.Builder
	for _, msg := range m.messages {
		style := m.theme.senderStyle(msg, m.participants)
		header := fmt.Sprintf("%s [%s/%s]", msg.Time().Format("15:04:05"), msg.SenderName, msg.Role)
		b.WriteString(style.Render(header))
		b.WriteString("\n")
		preview := compactTimelineMessage(msg.Text, timelineMaxLines, timelineMaxChars)
		b.WriteString(wrapText(preview, maxInt(24, m.timeline.Width-2)))
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

func (m *model) renderSidebar() string {
	width := maxInt(20, m.sidebar.Width)
	lines := []string{m.theme.panelTitle.Render("Participants")}
	for _, p := range m.participants {
		name := p.Name
		if p.Role == chat.RoleUser {
			name += " (you)"
		}
		lines = append(lines, fmt.Sprintf("%s %s %s",
			statusGlyph(p.Status),
			padRight(compactSingleLine(name, width-12), width-12),
			m.statusStyle(p.Status).Render(string(p.Status)),
		))
	}

	if !m.stage.Empty() {
		lines = append(lines, "", m.theme.panelTitle.Render("Stage"))
		lines = append(lines, compactSingleLine(m.stage.Label(), width))
		lines = append(lines, m.progressBar(m.stage.Progress, width-6)+fmt.Sprintf(" %3.0f%%", m.stage.Progress))
		if len(m.stage.Markers) > 0 {
			markers := make([]string, 0, len(m.stage.Markers))
			for _, marker := range m.stage.Markers {
				label := compactSingleLine(marker.Name, 18)
				if marker.Active {
					label = m.theme.highlight.Render("▶ " + label)
				}
				markers = append(markers, label)
			}
			lines = append(lines, m.theme.helpText.Render("Markers:"), strings.Join(markers, " · "))
		}
		if desc := strings.TrimSpace(m.stage.Description); desc != "" {
			lines = append(lines, m.theme.helpText.Render(wrapText(desc, width)))
		}
		if len(m.stage.Tasks) > 0 {
			lines = append(lines, fmt.Sprintf("Tasks %d/%d", m.stage.CompletedTasks(), len(m.stage.Tasks)))
			for _, task := range m.stage.Tasks {
				desc := compactSingleLine(task.Description, width-4)
				if task.Completed {
					lines = append(lines, "[x] "+m.theme.taskDone.Render(desc))
				} else {
					lines = append(lines, "[ ] "+desc)
				}
			}
		}
	}

	if len(m.logs) > 0 {
		lines = append(lines, "", m.theme.panelTitle.Render("Log"))
		start := maxInt(0, len(m.logs)-8)
		for _, entry := range m.logs[start:] {
			lines = append(lines, m.theme.helpText.Render(compactSingleLine(entry, width)))
		}
	}
	return strings.Join(lines, "\n")
}

func (m *model) statusStyle(status chat.Status) lipgloss.Style {
	switch status {
	case chat.StatusTyping:
		return m.theme.status
	case chat.StatusThinking:
		return m.theme.warnStatus
	default:
		return m.theme.helpText
	}
}

func statusGlyph(status chat.Status) string {
	switch status {
	case chat.StatusTyping:
		return "✎"
	case chat.StatusThinking:
		return "…"
	default:
		return "·"
	}
}

func typingLabel(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing..."
	default:
		return strings.Join(names, ", ") + " are typing..."
	}
}

func (m *model) progressBar(percent float64, width int) string {
	width = maxInt(4, width)
	filled := clampInt(int(percent/100*float64(width)+0.5), 0, width)
	return m.theme.barFilled.Render(strings.Repeat("█", filled)) +
		m.theme.barEmpty.Render(strings.Repeat("░", width-filled))
}

func (m *model) renderHelp() string {
	lines := []string{
		"Core Keys",
		"- Enter: send message (Chat tab)",
		"- Ctrl+R: drop the connection and reconnect",
		"- Tab / Shift+Tab: switch views",
		"- Timeline scroll: PgUp/PgDn, Up/Down (input empty), Home/End",
		"- Esc in chat: quit confirmation; elsewhere: back to chat",
		"- Ctrl+C: quit",
		"",
		"Slash Commands",
		"- /reconnect",
		"- /connect",
		"- /disconnect",
		"- /help",
		"- /quit",
		"",
		"Connection",
		"- Input is enabled only while connected and no message is in flight",
		"- After a connection failure the client retries automatically",
		"- History is reloaded every time the connection opens",
	}
	return m.theme.helpText.Render(strings.Join(lines, "\n"))
}
