package stream

import (
	"io"
	"sync"

	"live-transcriber/internal/logging"
)

// FrameSource supplies captured audio frames until released.
type FrameSource interface {
	Frames() <-chan []byte
	Close() error
}

// ReaderSource chunks raw PCM from an io.Reader into fixed-size frames.
// It stands in for a platform capture device: anything that can produce a
// PCM byte stream (a capture pipe, a file, a test buffer) becomes a frame
// source.
type ReaderSource struct {
	reader     io.Reader
	frameBytes int
	log        *logging.Logger

	frames    chan []byte
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewReaderSource starts chunking the reader into frames of frameBytes.
func NewReaderSource(reader io.Reader, frameBytes int, log *logging.Logger) *ReaderSource {
	if frameBytes <= 0 {
		frameBytes = 3200 // 100ms of 16kHz mono s16le
	}

	s := &ReaderSource{
		reader:     reader,
		frameBytes: frameBytes,
		log:        log,
		frames:     make(chan []byte, 16),
		done:       make(chan struct{}),
	}

	s.wg.Add(1)
	go s.pump()
	return s
}

// Frames returns the capture frame channel; it closes when the source ends.
func (s *ReaderSource) Frames() <-chan []byte {
	return s.frames
}

// Close releases the capture handle and stops the pump.
func (s *ReaderSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if closer, ok := s.reader.(io.Closer); ok {
			_ = closer.Close()
		}
	})
	s.wg.Wait()
	return nil
}

// pump reads fixed-size frames until EOF, read error, or Close.
func (s *ReaderSource) pump() {
	defer s.wg.Done()
	defer close(s.frames)

	for {
		frame := make([]byte, s.frameBytes)
		n, err := io.ReadFull(s.reader, frame)
		if n > 0 {
			select {
			case s.frames <- frame[:n]:
			case <-s.done:
				return
			}
		}
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				s.log.Debug("capture read ended", "error", err)
			}
			return
		}

		select {
		case <-s.done:
			return
		default:
		}
	}
}
