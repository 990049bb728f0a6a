package output

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"chatcollab/internal/chat"
)

const timeLayout = "15:04:05"

// ConsoleRenderer prints session changes as plain lines. Participant and connection updates are
// printed only when they change something.
type ConsoleRenderer struct {
	UI       *UI
	Location *time.Location

	mu       sync.Mutex
	statuses map[string]chat.Status
	state    chat.ConnectionState
	stageKey string
}

func NewConsoleRenderer(ui *UI) *ConsoleRenderer {
	return &ConsoleRenderer{UI: ui, Location: time.Local}
}

func (r *ConsoleRenderer) stamp(msg chat.Message) string {
	loc := r.Location
	if loc == nil {
		loc = time.Local
	}
	return msg.Time().In(loc).Format(timeLayout)
}

func (r *ConsoleRenderer) line(msg chat.Message) string {
	return fmt.Sprintf("%s %s: %s", faint("["+r.stamp(msg)+"]"), SenderColor(msg.SenderName, msg.Role), msg.Text)
}

func (r *ConsoleRenderer) AppendMessage(msg chat.Message) {
	fmt.Fprintln(r.UI.Out, r.line(msg))
}

func (r *ConsoleRenderer) ResetMessages(msgs []chat.Message) {
	r.UI.Info("history: %d messages", len(msgs))
	for _, msg := range msgs {
		fmt.Fprintln(r.UI.Out, r.line(msg))
	}
}

func (r *ConsoleRenderer) UpdateParticipant(p chat.Participant) {
	r.mu.Lock()
	if r.statuses == nil {
		r.statuses = map[string]chat.Status{}
	}
	prev, seen := r.statuses[p.Key]
	r.statuses[p.Key] = p.Status
	r.mu.Unlock()

	if prev == p.Status || (!seen && p.Status == chat.StatusIdle) {
		return
	}
	r.UI.VerboseLog("%s is %s", p.Name, StatusColor(p.Status))
}

func (r *ConsoleRenderer) UpdateStage(stage chat.StageInfo) {
	key := fmt.Sprintf("%s|%.0f|%d", stage.ID, stage.Progress, stage.CompletedTasks())
	r.mu.Lock()
	changed := key != r.stageKey
	r.stageKey = key
	r.mu.Unlock()
	if !changed {
		return
	}

	r.UI.Info("%s %s", stage.Label(), faint(fmt.Sprintf("%.0f%%", stage.Progress)))
	if len(stage.Tasks) > 0 {
		r.UI.VerboseLog("tasks %d/%d done", stage.CompletedTasks(), len(stage.Tasks))
	}
}

func (r *ConsoleRenderer) UpdateConnection(view chat.ConnectionView) {
	r.mu.Lock()
	changed := view.State != r.state
	r.state = view.State
	r.mu.Unlock()
	if !changed {
		return
	}
	switch view.State {
	case chat.Connected:
		r.UI.Success("connection %s", ConnectionColor(view.State))
	case chat.Disconnected:
		r.UI.Warning("connection %s", ConnectionColor(view.State))
	default:
		r.UI.Info("connection %s", ConnectionColor(view.State))
	}
}

// HistoryTable prints messages as a table: time, sender, role, text.
func (u *UI) HistoryTable(msgs []chat.Message, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	table := u.Table([]string{"TIME", "SENDER", "ROLE", "MESSAGE"})
	for _, msg := range msgs {
		if err := table.Append([]string{
			msg.Time().In(loc).Format(time.DateTime),
			msg.SenderName,
			string(msg.Role),
			oneLine(msg.Text),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

// StageSummary prints the stage label, progress and subtasks.
func (u *UI) StageSummary(stage chat.StageInfo) {
	if stage.Empty() {
		return
	}
	u.Info("%s (%.0f%%)", stage.Label(), stage.Progress)
	if desc := strings.TrimSpace(stage.Description); desc != "" {
		fmt.Fprintf(u.Out, "  %s\n", desc)
	}
	for _, task := range stage.Tasks {
		mark := "[ ]"
		if task.Completed {
			mark = green("[x]")
		}
		fmt.Fprintf(u.Out, "  %s %s\n", mark, task.Description)
	}
}
