package syncclient

import (
	"errors"
	"strings"
	"time"

	"chatcollab/internal/chat"
	"chatcollab/internal/event"
	"chatcollab/internal/metrics"
)

func (c *Client) apply(ev event.Event) {
	switch ev := ev.(type) {
	case event.Message:
		c.onMessage(ev)
	case event.Status:
		c.onStatus(ev)
	case event.Stage:
		c.onStage(ev)
	case event.ServerError:
		c.onServerError(ev)
	default:
		c.logger.Warn("unhandled event", "kind", ev.Kind())
		metrics.ObserveDrop("unhandled")
	}
}

func (c *Client) dropInvalid(err error) {
	reason := "payload"
	var payloadErr *event.PayloadError
	if errors.As(err, &payloadErr) {
		reason = string(payloadErr.Kind)
	}
	c.logger.Warn("dropping malformed event", "error", err)
	metrics.ObserveDrop(reason)
}

func (c *Client) onMessage(ev event.Message) {
	c.appendMessage(c.toMessage(ev))
	metrics.ObserveEvent(string(event.KindMessage))

	// A message from a participant ends whatever they were doing.
	idx, ok := c.lookup(ev.DisplayName())
	if !ok {
		idx, ok = c.lookup(ev.Source)
	}
	if ok && c.participants[idx].Status != chat.StatusIdle {
		c.setStatus(idx, chat.StatusIdle)
	}
}

func (c *Client) onStatus(ev event.Status) {
	idx, ok := c.lookup(ev.AgentName)
	if !ok {
		err := &UnknownParticipantError{Name: ev.AgentName}
		c.logger.Warn("dropping status event", "error", err, "status", ev.Status, "known", c.participantKeys())
		metrics.ObserveDrop("unknown_participant")
		return
	}
	c.setStatus(idx, ev.Status)
	metrics.ObserveEvent(string(event.KindStatus))
}

func (c *Client) onStage(ev event.Stage) {
	c.applyStage(ev)
	metrics.ObserveEvent(string(event.KindStage))
}

func (c *Client) onServerError(ev event.ServerError) {
	c.logger.Warn("server reported error", "message", ev.Message)
	c.appendSystem("Error: " + ev.Message)
	metrics.ObserveEvent(string(event.KindServerError))
}

func (c *Client) applyHistory(history event.History, err error, started time.Time) {
	elapsed := c.clock.Now().Sub(started)
	if err != nil {
		metrics.ObserveHistoryFetch(elapsed, false)
		c.logger.Error("history unavailable", "error", &HistoryFetchError{Err: err})
		c.appendSystem(historyErrorText)
		return
	}
	metrics.ObserveHistoryFetch(elapsed, true)
	if history.Skipped > 0 {
		c.logger.Warn("history contained invalid records", "skipped", history.Skipped)
	}

	messages := make([]chat.Message, 0, len(history.Messages))
	for _, msg := range history.Messages {
		messages = append(messages, c.toMessage(msg))
	}
	c.messages = messages
	c.renderer.ResetMessages(append([]chat.Message(nil), messages...))
	c.logger.Info("history loaded", "messages", len(messages))

	if history.Stage != nil {
		c.applyStage(*history.Stage)
	}
}

func (c *Client) applyStage(ev event.Stage) {
	c.stage = ReduceStage(c.stage, ev)
	c.renderer.UpdateStage(c.stage)
}

func (c *Client) toMessage(ev event.Message) chat.Message {
	return ToMessage(ev, c.username, c.clock.Now())
}

func (c *Client) appendMessage(msg chat.Message) {
	c.messages = append(c.messages, msg)
	c.renderer.AppendMessage(msg)
}

func (c *Client) appendSystem(text string) {
	c.appendMessage(chat.Message{
		Sender:     chat.SystemSender,
		SenderName: chat.SystemSender,
		Text:       text,
		Timestamp:  c.clock.Now().UnixMilli(),
		Role:       chat.RoleSystem,
	})
}

func (c *Client) lookup(name string) (int, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return 0, false
	}
	idx, ok := c.byKey[key]
	return idx, ok
}

// setStatus is the only writer of participant status and the typing set.
func (c *Client) setStatus(idx int, status chat.Status) {
	p := &c.participants[idx]
	p.Status = status
	if status == chat.StatusTyping {
		c.typing[p.Key] = struct{}{}
	} else {
		delete(c.typing, p.Key)
	}
	c.renderer.UpdateParticipant(*p)
}

func (c *Client) resetStatuses() {
	for idx := range c.participants {
		c.setStatus(idx, chat.StatusIdle)
	}
}

func (c *Client) participantKeys() []string {
	keys := make([]string, 0, len(c.participants))
	for _, p := range c.participants {
		keys = append(keys, p.Key)
	}
	return keys
}
