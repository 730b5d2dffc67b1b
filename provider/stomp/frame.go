package stomp

import (
	"bytes"
	"io"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/pkg/errors"
)

var ErrMalformedFrame = errors.New("malformed stomp frame")

// encodeFrame renders one frame as a single websocket message.
func encodeFrame(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, errors.Wrap(err, "encode stomp frame")
	}
	return buf.Bytes(), nil
}

// decodeFrames reads every frame carried by one websocket message. Heart-beat
// EOLs are skipped. On a malformed frame the frames decoded so far are
// returned together with the error.
func decodeFrames(msg []byte) ([]*frame.Frame, error) {
	reader := frame.NewReader(bytes.NewReader(msg))

	var frames []*frame.Frame
	for {
		f, err := reader.Read()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, errors.Wrapf(ErrMalformedFrame, "%v", err)
		}
		if f == nil {
			continue
		}
		frames = append(frames, f)
	}
}

func subscribeFrame(entry *subscriptionEntry) *frame.Frame {
	return frame.New(frame.SUBSCRIBE,
		frame.Id, entry.id,
		frame.Destination, entry.destination,
		frame.Ack, "auto",
	)
}
