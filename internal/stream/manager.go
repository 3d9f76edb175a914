package stream

import (
	"context"
	"sync"
	"time"

	"live-transcriber/internal/domain"
	"live-transcriber/internal/logging"
	"live-transcriber/internal/metrics"
)

// reconnectCap bounds the exponential reconnect delay.
const reconnectCap = 15 * time.Second

// Handlers route inbound events and the terminal failure signal. OnDelta
// and OnTurnComplete feed the segmenter; OnTerminalError fires once when
// the retry budget is exhausted and recovery requires a user restart.
type Handlers struct {
	OnDelta         func(text string)
	OnTurnComplete  func()
	OnTerminalError func(err error)
}

// Manager owns the bidirectional streaming session to the transcription
// source. It forwards captured audio frames while recording, routes inbound
// events, and recovers from transport failures with capped exponential
// backoff. The retry counter resets on every successful open.
type Manager struct {
	dialer     Dialer
	frames     <-chan []byte
	status     func() domain.RecorderStatus
	handlers   Handlers
	maxRetries int
	log        *logging.Logger
	met        *metrics.Metrics

	mu             sync.Mutex
	conn           Conn
	retryCount     int
	closed         bool
	reconnectTimer *time.Timer

	done chan struct{}
	wg   sync.WaitGroup

	afterFunc func(time.Duration, func()) *time.Timer
}

// NewManager creates a connection manager. frames supplies captured audio;
// status is consulted before every forward and before every reconnect.
func NewManager(dialer Dialer, frames <-chan []byte, status func() domain.RecorderStatus, handlers Handlers, maxRetries int, log *logging.Logger, met *metrics.Metrics) *Manager {
	m := &Manager{
		dialer:     dialer,
		frames:     frames,
		status:     status,
		handlers:   handlers,
		maxRetries: maxRetries,
		log:        log,
		met:        met,
		done:       make(chan struct{}),
	}
	m.afterFunc = time.AfterFunc
	return m
}

// Start opens the session asynchronously and begins forwarding frames.
func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.connect()
	}()

	m.wg.Add(1)
	go m.writeLoop()
}

// Close tears down the session unconditionally and cancels any pending
// reconnect. Safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	close(m.done)
	m.wg.Wait()
}

// RetryCount returns the current reconnect attempt counter.
func (m *Manager) RetryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retryCount
}

// connect dials one session; failure feeds the shared transport error path.
func (m *Manager) connect() {
	conn, err := m.dialer.Dial(context.Background())
	if err != nil {
		m.handleTransportError(nil, err)
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.retryCount = 0
	m.wg.Add(1)
	m.mu.Unlock()

	m.log.Info("stream session open")
	go func() {
		defer m.wg.Done()
		m.readLoop(conn)
	}()
}

// readLoop routes inbound events until the session fails or closes.
func (m *Manager) readLoop(conn Conn) {
	for {
		event, err := conn.ReadEvent()
		if err != nil {
			m.handleTransportError(conn, err)
			return
		}

		switch event.Type {
		case EventTranscript:
			m.met.DeltasReceived.Inc()
			if m.handlers.OnDelta != nil {
				m.handlers.OnDelta(event.Text)
			}
		case EventTurnComplete:
			if m.handlers.OnTurnComplete != nil {
				m.handlers.OnTurnComplete()
			}
		default:
			m.log.Debug("ignoring unknown stream event", "type", event.Type)
		}
	}
}

// writeLoop forwards captured frames for the lifetime of the manager.
// Frames arriving while paused or between sessions are dropped; capture
// stays attached so resume is just resumed forwarding.
func (m *Manager) writeLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case frame, ok := <-m.frames:
			if !ok {
				return
			}
			if m.status() != domain.RecorderStatusRecording {
				continue
			}

			m.mu.Lock()
			conn := m.conn
			m.mu.Unlock()
			if conn == nil {
				continue
			}

			if err := conn.WriteFrame(frame); err != nil {
				m.handleTransportError(conn, err)
				continue
			}
			m.met.FramesForwarded.Inc()
		}
	}
}

// handleTransportError recovers from one session failure. The conn guard
// collapses concurrent read/write failures of the same session into a
// single recovery pass.
func (m *Manager) handleTransportError(conn Conn, cause error) {
	m.mu.Lock()
	if m.closed || (conn != nil && m.conn != conn) {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.met.TransportErrors.Inc()

	status := m.status()
	if status != domain.RecorderStatusRecording && status != domain.RecorderStatusPaused {
		// The user already stopped; nothing to recover.
		return
	}

	m.mu.Lock()
	attempt := m.retryCount
	m.retryCount++
	exhausted := m.retryCount >= m.maxRetries
	m.mu.Unlock()

	if exhausted {
		m.log.Error("stream retries exhausted", "attempts", attempt+1, "error", cause)
		if m.handlers.OnTerminalError != nil {
			m.handlers.OnTerminalError(cause)
		}
		return
	}

	delay := reconnectDelay(attempt)
	m.log.Warn("stream transport error, reconnecting", "attempt", attempt+1, "delay", delay, "error", cause)
	m.met.Reconnects.Inc()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = m.afterFunc(delay, func() {
		m.mu.Lock()
		m.reconnectTimer = nil
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return
		}
		m.connect()
	})
	m.mu.Unlock()
}

// reconnectDelay computes the capped exponential backoff for one attempt.
func reconnectDelay(attempt int) time.Duration {
	delay := time.Second << uint(attempt)
	if delay > reconnectCap {
		delay = reconnectCap
	}
	return delay
}
