package sse

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// Frame is one dispatched server-sent event.
type Frame struct {
	Event string
	ID    string
	Data  string
}

// ReadFrames parses an event stream and calls fn for every dispatched frame until fn returns
// false or the stream ends. A clean end of stream is reported as io.EOF.
func ReadFrames(r io.Reader, fn func(Frame) bool) error {
	reader := bufio.NewReader(r)
	var (
		eventType string
		eventID   string
		dataLines []string
	)

	dispatch := func() bool {
		if len(dataLines) == 0 {
			eventType = ""
			return true
		}
		frame := Frame{Event: eventType, ID: eventID, Data: strings.Join(dataLines, "\n")}
		if frame.Event == "" {
			frame.Event = "message"
		}
		dataLines = dataLines[:0]
		eventType = ""
		return fn(frame)
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if !dispatch() {
				return nil
			}
		case strings.HasPrefix(line, ":"):
			// comment / heartbeat
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				eventType = value
			case "id":
				eventID = value
			case "data":
				dataLines = append(dataLines, value)
			}
		}
		if err != nil {
			// Final line had no terminator; a partial frame is never dispatched.
			return err
		}
	}
}
