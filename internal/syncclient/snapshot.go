package syncclient

import (
	"chatcollab/internal/chat"
)

// Snapshot is a detached copy of the client state.
type Snapshot struct {
	Connection   chat.ConnectionState
	InputEnabled bool
	Sending      bool
	RetryPending bool
	Username     string
	Messages     []chat.Message
	Participants []chat.Participant
	Typing       []string
	Stage        chat.StageInfo
}

// Snapshot must run on the loop (inside a posted task, or after Drain in tests).
func (c *Client) Snapshot() Snapshot {
	return Snapshot{
		Connection:   c.state,
		InputEnabled: c.inputEnabled(),
		Sending:      c.sending,
		RetryPending: c.retry != nil,
		Username:     c.username,
		Messages:     append([]chat.Message(nil), c.messages...),
		Participants: append([]chat.Participant(nil), c.participants...),
		Typing:       c.typingNames(),
		Stage:        c.stage,
	}
}

// typingNames lists typing participants in roster order.
func (c *Client) typingNames() []string {
	names := []string{}
	for _, p := range c.participants {
		if _, ok := c.typing[p.Key]; ok {
			names = append(names, p.Name)
		}
	}
	return names
}

// Username is fixed at construction and safe to read from any goroutine.
func (c *Client) Username() string {
	return c.username
}
