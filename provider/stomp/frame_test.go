package stomp

import (
	"testing"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrame_ReadsBack(t *testing.T) {
	msg := frame.New(frame.MESSAGE,
		frame.Subscription, "sub-1",
		"note", "a:b\nc",
	)
	msg.Body = []byte(`{"symbol":"AAPL"}`)

	data, err := encodeFrame(msg)
	require.NoError(t, err)

	frames, err := decodeFrames(data)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, frame.MESSAGE, frames[0].Command)
	assert.Equal(t, "sub-1", frames[0].Header.Get(frame.Subscription))
	assert.Equal(t, "a:b\nc", frames[0].Header.Get("note"), "header values are escaped on the wire")
	assert.Equal(t, `{"symbol":"AAPL"}`, string(frames[0].Body))
}

func TestSubscribeFrame(t *testing.T) {
	f := subscribeFrame(&subscriptionEntry{id: "sub-7", destination: "/topic/trades/AAPL"})

	assert.Equal(t, frame.SUBSCRIBE, f.Command)
	assert.Equal(t, "sub-7", f.Header.Get(frame.Id))
	assert.Equal(t, "/topic/trades/AAPL", f.Header.Get(frame.Destination))
	assert.Equal(t, "auto", f.Header.Get(frame.Ack))
}

func TestDecodeFrames(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		commands []string
	}{
		{"Single", "CONNECTED\nversion:1.2\n\n\x00", []string{frame.CONNECTED}},
		{"CRLFLines", "CONNECTED\r\nversion:1.2\r\n\r\n\x00", []string{frame.CONNECTED}},
		{"Batched", "MESSAGE\nsubscription:sub-1\n\n{}\x00\nMESSAGE\nsubscription:sub-2\n\n[]\x00\n", []string{frame.MESSAGE, frame.MESSAGE}},
		{"HeartBeatOnly", "\n", nil},
		{"Empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, err := decodeFrames([]byte(tt.raw))
			require.NoError(t, err)

			var commands []string
			for _, f := range frames {
				commands = append(commands, f.Command)
			}
			assert.Equal(t, tt.commands, commands)
		})
	}
}

func TestDecodeFrames_ContentLength(t *testing.T) {
	raw := "MESSAGE\nsubscription:sub-1\ncontent-length:5\n\na\x00b\x00c\x00"

	frames, err := decodeFrames([]byte(raw))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte("a\x00b\x00c"), frames[0].Body)
}

func TestDecodeFrames_Malformed(t *testing.T) {
	raw := "CONNECTED\nversion:1.2\n\n\x00MESSAGE\nbroken-header\n\n{}\x00"

	frames, err := decodeFrames([]byte(raw))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedFrame))
	require.Len(t, frames, 1, "frames before the broken one are kept")
	assert.Equal(t, frame.CONNECTED, frames[0].Command)
}
