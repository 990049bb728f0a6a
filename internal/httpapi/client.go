// Package httpapi talks to the session server's request/response endpoints and derives the
// push endpoint URLs.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatcollab/internal/event"
	"chatcollab/internal/syncclient"
)

const maxErrorBody = 4 << 10

// StatusError is a non-2xx response. Message carries the server's "error" text when present.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s failed: %s", e.Method, e.Path, e.Status)
}

// Client wraps the session API. An empty SessionID addresses the server's default session.
type Client struct {
	BaseURL   string
	SessionID string
	HTTP      *http.Client
	Timeout   time.Duration
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func (c *Client) path(prefix string) string {
	if c.SessionID == "" {
		return prefix
	}
	return prefix + "/" + url.PathEscape(c.SessionID)
}

// StreamURL is the SSE endpoint for the session.
func (c *Client) StreamURL() string {
	return c.base() + c.path("/stream")
}

// WebSocketURL maps the base URL onto ws:// or wss:// and appends /ws.
func (c *Client) WebSocketURL() (string, error) {
	u, err := url.Parse(c.base())
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// Origin is the value sent as the WebSocket Origin header.
func (c *Client) Origin() string {
	return c.base()
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: c.Timeout}
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Method:  req.Method,
			Path:    req.URL.Path,
			Code:    resp.StatusCode,
			Status:  resp.Status,
			Message: errorText(body),
		}
	}
	return io.ReadAll(resp.Body)
}

func errorText(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}

// FetchHistory pulls the session log and, when the server includes it, the current stage.
func (c *Client) FetchHistory(ctx context.Context) (event.History, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+c.path("/history"), nil)
	if err != nil {
		return event.History{}, err
	}
	req.Header.Set("Accept", "application/json")
	body, err := c.do(req)
	if err != nil {
		return event.History{}, err
	}
	return event.DecodeHistory(body)
}

type sendRequest struct {
	Text       string `json:"text"`
	SenderName string `json:"sender_name"`
	RequestID  string `json:"request_id,omitempty"`
}

// Send posts a user message. The server echoes accepted messages over the push stream.
func (c *Client) Send(ctx context.Context, msg syncclient.Outbound) error {
	data, err := json.Marshal(sendRequest{Text: msg.Text, SenderName: msg.SenderName, RequestID: msg.RequestID})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+c.path("/send_message"), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(req)
	return err
}
