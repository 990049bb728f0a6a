package sse

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, stream string) ([]Frame, error) {
	t.Helper()
	var frames []Frame
	err := ReadFrames(strings.NewReader(stream), func(f Frame) bool {
		frames = append(frames, f)
		return true
	})
	return frames, err
}

func TestReadFramesParsesFields(t *testing.T) {
	stream := "event: new_message\nid: 7\ndata: {\"a\":1}\n\n" +
		": keep-alive comment\n\n" +
		"data: first\ndata: second\n\n" +
		"event:agent_status\r\ndata:{}\r\n\r\n"

	frames, err := collect(t, stream)
	require.ErrorIs(t, err, io.EOF)
	require.Len(t, frames, 3)

	assert.Equal(t, Frame{Event: "new_message", ID: "7", Data: `{"a":1}`}, frames[0])
	assert.Equal(t, Frame{Event: "message", ID: "7", Data: "first\nsecond"}, frames[1])
	assert.Equal(t, Frame{Event: "agent_status", ID: "7", Data: "{}"}, frames[2])
}

func TestReadFramesDropsPartialTrailingFrame(t *testing.T) {
	frames, err := collect(t, "event: new_message\ndata: {}\n\nevent: stage_update\ndata: {")
	require.ErrorIs(t, err, io.EOF)
	require.Len(t, frames, 1)
	assert.Equal(t, "new_message", frames[0].Event)
}

func TestReadFramesEventWithoutDataIsSkipped(t *testing.T) {
	frames, err := collect(t, "event: ping\n\ndata: x\n\n")
	require.ErrorIs(t, err, io.EOF)
	require.Len(t, frames, 1)
	assert.Equal(t, Frame{Event: "message", Data: "x"}, frames[0])
}

func TestReadFramesStopsWhenHandlerDeclines(t *testing.T) {
	count := 0
	err := ReadFrames(strings.NewReader("data: 1\n\ndata: 2\n\n"), func(Frame) bool {
		count++
		return false
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}
