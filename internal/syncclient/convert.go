package syncclient

import (
	"strings"
	"time"

	"chatcollab/internal/chat"
	"chatcollab/internal/event"
)

// ToMessage derives the log entry for ev as seen by username. A missing timestamp becomes now.
func ToMessage(ev event.Message, username string, now time.Time) chat.Message {
	name := ev.DisplayName()
	text := ev.Text
	if strings.TrimSpace(text) == "" {
		text = emptyMessageText
	}
	ts := ev.Timestamp
	if ts <= 0 {
		ts = now.UnixMilli()
	}
	role := chat.RoleAgent
	switch {
	case name == username:
		role = chat.RoleUser
	case strings.EqualFold(ev.Source, chat.SystemSender):
		role = chat.RoleSystem
	}
	return chat.Message{
		Sender:     ev.Source,
		SenderName: name,
		Text:       text,
		Timestamp:  ts,
		Role:       role,
	}
}

// ReduceStage folds a stage update into the previous stage. Subtasks completed earlier in the
// same stage stay completed; progress falls back to the active marker's position, then 0.
func ReduceStage(prev chat.StageInfo, ev event.Stage) chat.StageInfo {
	next := chat.StageInfo{
		ID:          ev.ID,
		Name:        ev.Name,
		Description: ev.Description,
	}

	for i, marker := range ev.Markers {
		name := marker.Name
		if name == "" {
			name = "Stage " + marker.ID
		}
		next.Markers = append(next.Markers, chat.StageMarker{
			ID:       marker.ID,
			Name:     name,
			Position: chat.MarkerPosition(i, len(ev.Markers)),
			Active:   marker.ID == ev.ID,
		})
	}

	completedBefore := map[string]bool{}
	if prev.ID == next.ID {
		for _, task := range prev.Tasks {
			if task.Completed && task.ID != "" {
				completedBefore[task.ID] = true
			}
		}
	}
	for _, task := range ev.Tasks {
		next.Tasks = append(next.Tasks, chat.Task{
			ID:          task.ID,
			Description: task.Description,
			Completed:   task.Completed || completedBefore[task.ID],
		})
	}

	progress := 0.0
	switch {
	case ev.Progress != nil:
		progress = *ev.Progress
	case next.Index() > 0:
		progress = next.Markers[next.Index()-1].Position
	}
	next.Progress = chat.ClampPercent(progress)
	return next
}
