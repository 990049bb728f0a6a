package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcollab/internal/chat"
)

func newTestUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	color.NoColor = true
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &UI{Out: out, ErrOut: errOut}, out, errOut
}

func TestInfo(t *testing.T) {
	u, out, _ := newTestUI()
	u.Info("hello %s", "world")
	assert.Contains(t, out.String(), "hello world")
}

func TestWarningAndErrorGoToErrOut(t *testing.T) {
	u, out, errOut := newTestUI()
	u.Warning("careful %s", "now")
	u.Error("failed %s", "badly")
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "careful now")
	assert.Contains(t, errOut.String(), "failed badly")
}

func TestVerboseLog(t *testing.T) {
	u, out, _ := newTestUI()
	u.VerboseLog("hidden")
	assert.Empty(t, out.String())

	u.Verbose = true
	u.VerboseLog("detail %d", 1)
	assert.Contains(t, out.String(), "detail 1")
}

func TestColorHelpers(t *testing.T) {
	newTestUI()
	assert.Equal(t, "typing", StatusColor(chat.StatusTyping))
	assert.Equal(t, "idle", StatusColor(chat.StatusIdle))
	assert.Equal(t, "connected", ConnectionColor(chat.Connected))
	assert.Equal(t, "Coder", SenderColor("Coder", chat.RoleAgent))
}

func TestHistoryTable(t *testing.T) {
	u, out, _ := newTestUI()
	msgs := []chat.Message{
		{SenderName: "System", Text: "welcome", Timestamp: 0, Role: chat.RoleSystem},
		{SenderName: "Coder", Text: "line one\nline two", Timestamp: 60_000, Role: chat.RoleAgent},
	}
	require.NoError(t, u.HistoryTable(msgs, time.UTC))

	result := out.String()
	assert.Contains(t, result, "1970-01-01 00:01:00")
	assert.Contains(t, result, "line one line two")
	assert.Contains(t, result, "Coder")
	assert.Contains(t, result, "system")
}

func TestStageSummary(t *testing.T) {
	u, out, _ := newTestUI()
	u.StageSummary(chat.StageInfo{})
	assert.Empty(t, out.String())

	u.StageSummary(chat.StageInfo{
		ID:          "2",
		Name:        "Design",
		Description: "Sketch the API",
		Progress:    50,
		Markers:     []chat.StageMarker{{ID: "1"}, {ID: "2", Active: true}, {ID: "3"}},
		Tasks:       []chat.Task{{Description: "draft", Completed: true}, {Description: "review"}},
	})
	result := out.String()
	assert.Contains(t, result, "Stage 2/3: Design (50%)")
	assert.Contains(t, result, "Sketch the API")
	assert.Contains(t, result, "[x] draft")
	assert.Contains(t, result, "[ ] review")
}

func TestConsoleRenderer(t *testing.T) {
	u, out, errOut := newTestUI()
	u.Verbose = true
	r := NewConsoleRenderer(u)
	r.Location = time.UTC

	r.UpdateConnection(chat.ConnectionView{State: chat.Connecting})
	r.UpdateConnection(chat.ConnectionView{State: chat.Connecting})
	r.UpdateConnection(chat.ConnectionView{State: chat.Connected, InputEnabled: true})
	r.UpdateParticipant(chat.Participant{Key: "Coder", Name: "Coder", Status: chat.StatusIdle})
	r.UpdateParticipant(chat.Participant{Key: "Coder", Name: "Coder", Status: chat.StatusTyping})
	r.ResetMessages([]chat.Message{{SenderName: "System", Text: "hi", Timestamp: 1000, Role: chat.RoleSystem}})
	r.AppendMessage(chat.Message{SenderName: "Coder", Text: "done", Timestamp: 61_000, Role: chat.RoleAgent})
	r.UpdateStage(chat.StageInfo{ID: "1", Name: "Plan", Progress: 10})
	r.UpdateStage(chat.StageInfo{ID: "1", Name: "Plan", Progress: 10})
	r.UpdateConnection(chat.ConnectionView{State: chat.Disconnected})

	result := out.String()
	assert.Equal(t, 1, strings.Count(result, "connection connecting"))
	assert.Contains(t, result, "connection connected")
	assert.NotContains(t, result, "Coder is idle")
	assert.Contains(t, result, "Coder is typing")
	assert.Contains(t, result, "history: 1 messages")
	assert.Contains(t, result, "[00:00:01] System: hi")
	assert.Contains(t, result, "[00:01:01] Coder: done")
	assert.Equal(t, 1, strings.Count(result, "Plan 10%"))
	assert.Contains(t, errOut.String(), "connection disconnected")
}
