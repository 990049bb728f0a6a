// Package event decodes server-pushed payloads into a closed set of event kinds.
// Anything that does not validate is rejected here and never reaches the client state.
package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"chatcollab/internal/chat"
)

type Kind string

const (
	KindMessage     Kind = "new_message"
	KindStatus      Kind = "agent_status"
	KindStage       Kind = "stage_update"
	KindServerError Kind = "error"
)

// Event is implemented by Message, Status, Stage and ServerError.
type Event interface {
	Kind() Kind
}

type Message struct {
	Source     string
	SenderName string
	Text       string
	Timestamp  int64 // epoch millis, 0 when absent
}

func (Message) Kind() Kind { return KindMessage }

// DisplayName prefers sender_name over the raw source.
func (m Message) DisplayName() string {
	if strings.TrimSpace(m.SenderName) != "" {
		return m.SenderName
	}
	return m.Source
}

type Status struct {
	AgentName string
	Status    chat.Status
}

func (Status) Kind() Kind { return KindStatus }

type Marker struct {
	ID   string
	Name string
}

type Task struct {
	ID          string
	Description string
	Completed   bool
}

type Stage struct {
	ID          string
	Name        string
	Description string
	Progress    *float64
	Markers     []Marker
	Tasks       []Task
}

func (Stage) Kind() Kind { return KindStage }

type ServerError struct {
	Message string
}

func (ServerError) Kind() Kind { return KindServerError }

// ErrUnknownKind is returned for event names the client does not consume (keep-alives, acks).
var ErrUnknownKind = errors.New("unknown event kind")

// PayloadError reports a payload that failed validation.
type PayloadError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *PayloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s payload: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %s payload: %s", e.Kind, e.Reason)
}

func (e *PayloadError) Unwrap() error { return e.Err }

// Decode validates data as the event named kind.
func Decode(kind string, data []byte) (Event, error) {
	k := Kind(strings.TrimSpace(kind))
	switch k {
	case KindMessage:
		return decodeMessage(data)
	case KindStatus:
		return decodeStatus(data)
	case KindStage:
		return decodeStage(data)
	case KindServerError:
		return decodeServerError(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// ID accepts either a JSON string or a JSON number.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*id = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Millis accepts a JSON number or numeric string, possibly fractional.
type Millis int64

func (m *Millis) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*m = 0
		return nil
	}
	raw := string(trimmed)
	if trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*m = 0
			return nil
		}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("timestamp %q is not numeric", raw)
	}
	*m = Millis(int64(f))
	return nil
}

type messageContent struct {
	Text       string `json:"text"`
	SenderName string `json:"sender_name"`
}

type messageWire struct {
	Source    string          `json:"source"`
	Content   *messageContent `json:"content"`
	Timestamp Millis          `json:"timestamp"`
}

func decodeMessage(data []byte) (Event, error) {
	var wire messageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &PayloadError{Kind: KindMessage, Reason: "malformed json", Err: err}
	}
	return messageFromWire(wire)
}

func messageFromWire(wire messageWire) (Message, error) {
	msg := Message{
		Source:    strings.TrimSpace(wire.Source),
		Timestamp: int64(wire.Timestamp),
	}
	if wire.Content != nil {
		msg.Text = wire.Content.Text
		msg.SenderName = strings.TrimSpace(wire.Content.SenderName)
	}
	if msg.Source == "" && msg.SenderName == "" {
		return Message{}, &PayloadError{Kind: KindMessage, Reason: "missing sender"}
	}
	if msg.Source == "" {
		msg.Source = msg.SenderName
	}
	return msg, nil
}

type statusWire struct {
	Content *struct {
		AgentName string `json:"agent_name"`
		Status    string `json:"status"`
	} `json:"content"`
}

func decodeStatus(data []byte) (Event, error) {
	var wire statusWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &PayloadError{Kind: KindStatus, Reason: "malformed json", Err: err}
	}
	if wire.Content == nil {
		return nil, &PayloadError{Kind: KindStatus, Reason: "missing content"}
	}
	name := strings.TrimSpace(wire.Content.AgentName)
	if name == "" {
		return nil, &PayloadError{Kind: KindStatus, Reason: "missing agent_name"}
	}
	status, ok := chat.ParseStatus(wire.Content.Status)
	if !ok {
		return nil, &PayloadError{Kind: KindStatus, Reason: fmt.Sprintf("unsupported status %q", wire.Content.Status)}
	}
	return Status{AgentName: name, Status: status}, nil
}

type stageContent struct {
	ID             ID              `json:"id"`
	CurrentStageID ID              `json:"current_stage_id"`
	Name           *string         `json:"name"`
	Description    string          `json:"description"`
	Progress       json.RawMessage `json:"progress_bar_percent"`
	Markers        []struct {
		ID   ID     `json:"id"`
		Name string `json:"name"`
	} `json:"main_stage_markers"`
	Tasks []struct {
		ID          ID     `json:"id"`
		Description string `json:"description"`
		Completed   bool   `json:"completed"`
	} `json:"tasks"`
}

type stageWire struct {
	Content *stageContent `json:"content"`
}

func decodeStage(data []byte) (Event, error) {
	var wire stageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &PayloadError{Kind: KindStage, Reason: "malformed json", Err: err}
	}
	if wire.Content == nil {
		return nil, &PayloadError{Kind: KindStage, Reason: "missing content"}
	}
	return stageFromContent(*wire.Content)
}

func stageFromContent(content stageContent) (Stage, error) {
	id := string(content.ID)
	if id == "" {
		id = string(content.CurrentStageID)
	}
	if id == "" {
		return Stage{}, &PayloadError{Kind: KindStage, Reason: "missing id"}
	}
	if content.Name == nil {
		return Stage{}, &PayloadError{Kind: KindStage, Reason: "missing name"}
	}
	stage := Stage{
		ID:          id,
		Name:        strings.TrimSpace(*content.Name),
		Description: strings.TrimSpace(content.Description),
		Progress:    parsePercent(content.Progress),
	}
	for _, marker := range content.Markers {
		stage.Markers = append(stage.Markers, Marker{ID: string(marker.ID), Name: strings.TrimSpace(marker.Name)})
	}
	for _, task := range content.Tasks {
		stage.Tasks = append(stage.Tasks, Task{
			ID:          string(task.ID),
			Description: strings.TrimSpace(task.Description),
			Completed:   task.Completed,
		})
	}
	return stage, nil
}

// parsePercent only honours JSON numbers; any other shape counts as absent.
func parsePercent(raw json.RawMessage) *float64 {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] == '"' || string(trimmed) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return nil
	}
	return &f
}

func decodeServerError(data []byte) (Event, error) {
	var wire struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &PayloadError{Kind: KindServerError, Reason: "malformed json", Err: err}
	}
	text := strings.TrimSpace(wire.Message)
	if text == "" {
		text = strings.TrimSpace(wire.Error)
	}
	if text == "" {
		return nil, &PayloadError{Kind: KindServerError, Reason: "missing message"}
	}
	return ServerError{Message: text}, nil
}
