package stream

import (
	"bytes"
	"testing"
	"time"

	"live-transcriber/internal/logging"
)

// TestReaderSourceChunksFixedFrames verifies the pump emits fixed-size
// frames and a short trailing read before closing.
func TestReaderSourceChunksFixedFrames(t *testing.T) {
	data := []byte("abcdefghij") // 10 bytes, frame size 4 -> 4, 4, 2
	src := NewReaderSource(bytes.NewReader(data), 4, logging.NewNop())
	defer src.Close()

	var frames [][]byte
	for frame := range src.Frames() {
		frames = append(frames, frame)
	}
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}
	if string(frames[0]) != "abcd" || string(frames[1]) != "efgh" || string(frames[2]) != "ij" {
		t.Fatalf("frame contents = %q %q %q", frames[0], frames[1], frames[2])
	}
}

// TestReaderSourceCloseStopsPump verifies Close drains promptly even when
// the consumer stops reading.
func TestReaderSourceCloseStopsPump(t *testing.T) {
	data := bytes.Repeat([]byte{0x7f}, 1<<16)
	src := NewReaderSource(bytes.NewReader(data), 4, logging.NewNop())

	if err := src.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case _, ok := <-waitClosed(src.Frames()):
		if ok {
			t.Fatal("expected frame channel to close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame channel did not close after Close")
	}
}

// waitClosed drains a channel in the background and signals once it closes.
func waitClosed(frames <-chan []byte) <-chan []byte {
	out := make(chan []byte)
	go func() {
		for range frames {
		}
		close(out)
	}()
	return out
}
