// Package chat holds the value types mirrored by the session client.
package chat

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// SystemSender is the source used by the server (and the client) for system-authored messages.
const SystemSender = "System"

type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

type Status string

const (
	StatusIdle     Status = "idle"
	StatusTyping   Status = "typing"
	StatusThinking Status = "thinking"
)

// ParseStatus accepts the three statuses the server emits, case-insensitively.
func ParseStatus(raw string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusIdle:
		return StatusIdle, true
	case StatusTyping:
		return StatusTyping, true
	case StatusThinking:
		return StatusThinking, true
	default:
		return "", false
	}
}

// Participant is a chat identity. Key and Name are fixed at session init.
type Participant struct {
	Key    string
	Name   string
	Role   Role
	Status Status
}

// Message is one entry of the append-only chat log.
type Message struct {
	Sender     string
	SenderName string
	Text       string
	Timestamp  int64 // epoch millis
	Role       Role
}

func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

type ConnectionState string

const (
	Connecting   ConnectionState = "connecting"
	Connected    ConnectionState = "connected"
	Disconnected ConnectionState = "disconnected"
)

// ConnectionView is what the renderer needs to draw the connection panel and gate input.
type ConnectionView struct {
	State        ConnectionState
	InputEnabled bool
	Sending      bool
}

type StageMarker struct {
	ID       string
	Name     string
	Position float64 // percent along the progress bar
	Active   bool
}

type Task struct {
	ID          string
	Description string
	Completed   bool
}

// StageInfo describes the current phase of a guided session.
type StageInfo struct {
	ID          string
	Name        string
	Description string
	Progress    float64
	Markers     []StageMarker
	Tasks       []Task
}

func (s StageInfo) Empty() bool {
	return s.ID == "" && s.Name == ""
}

// Index returns the 1-based position of the active marker, or 0 when none is active.
func (s StageInfo) Index() int {
	for i, marker := range s.Markers {
		if marker.Active {
			return i + 1
		}
	}
	return 0
}

// DisplayName falls back to the stage id when the server sent an empty name.
func (s StageInfo) DisplayName() string {
	if strings.TrimSpace(s.Name) != "" {
		return s.Name
	}
	return "Stage " + s.ID
}

// Label renders "Stage k/n: name", using "?" when the current stage has no marker.
func (s StageInfo) Label() string {
	if len(s.Markers) == 0 {
		return s.DisplayName()
	}
	current := "?"
	if idx := s.Index(); idx > 0 {
		current = fmt.Sprintf("%d", idx)
	}
	return fmt.Sprintf("Stage %s/%d: %s", current, len(s.Markers), s.DisplayName())
}

// CompletedTasks counts finished subtasks.
func (s StageInfo) CompletedTasks() int {
	done := 0
	for _, task := range s.Tasks {
		if task.Completed {
			done++
		}
	}
	return done
}

// ClampPercent bounds v to [0,100]; NaN becomes 0.
func ClampPercent(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// MarkerPosition spreads n markers evenly across the bar.
func MarkerPosition(idx, n int) float64 {
	if n <= 1 {
		return 0
	}
	return float64(idx) * 100 / float64(n-1)
}
