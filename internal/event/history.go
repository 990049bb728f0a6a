package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// History is the decoded result of a history pull.
type History struct {
	Messages []Message
	Stage    *Stage
	// Skipped counts records that failed validation and were dropped.
	Skipped int
}

// historyRecord is the pushed message shape plus the flat {sender, sender_name, text} form
// some servers store in their logs.
type historyRecord struct {
	messageWire
	Sender     string `json:"sender"`
	SenderName string `json:"sender_name"`
	Text       string `json:"text"`
}

func decodeHistoryRecord(data []byte) (Message, error) {
	var rec historyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Message{}, &PayloadError{Kind: KindMessage, Reason: "malformed json", Err: err}
	}
	if strings.TrimSpace(rec.Source) != "" || rec.Content != nil {
		return messageFromWire(rec.messageWire)
	}
	return messageFromWire(messageWire{
		Source:    nullCoalesce(rec.Sender, rec.SenderName),
		Content:   &messageContent{Text: rec.Text, SenderName: rec.SenderName},
		Timestamp: rec.Timestamp,
	})
}

func nullCoalesce(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

type historyEnvelope struct {
	History  []json.RawMessage `json:"history"`
	Messages []json.RawMessage `json:"messages"`
	Stage    *stageContent     `json:"stage"`
}

// DecodeHistory accepts either a bare array of message records or an object wrapping them
// under "history" or "messages", optionally with a "stage" block.
func DecodeHistory(data []byte) (History, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return History{}, errors.New("empty history payload")
	}

	var (
		records []json.RawMessage
		stage   *stageContent
	)
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return History{}, fmt.Errorf("decode history list: %w", err)
		}
	case '{':
		var env historyEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return History{}, fmt.Errorf("decode history object: %w", err)
		}
		records = env.History
		if records == nil {
			records = env.Messages
		}
		stage = env.Stage
	default:
		return History{}, fmt.Errorf("unexpected history payload starting with %q", trimmed[0])
	}

	out := History{Messages: make([]Message, 0, len(records))}
	for _, record := range records {
		msg, err := decodeHistoryRecord(record)
		if err != nil {
			out.Skipped++
			continue
		}
		out.Messages = append(out.Messages, msg)
	}
	if stage != nil {
		decoded, err := stageFromContent(*stage)
		if err != nil {
			out.Skipped++
		} else {
			out.Stage = &decoded
		}
	}
	return out, nil
}
