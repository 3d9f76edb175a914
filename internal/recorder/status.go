package recorder

import (
	"errors"
	"fmt"
	"sync"

	"live-transcriber/internal/domain"
)

// ErrAlreadyRecording is returned when starting while a session is active.
var ErrAlreadyRecording = errors.New("recording already in progress")

// ErrNotRecording is returned for pause/resume/stop requests in idle state.
var ErrNotRecording = errors.New("no recording in progress")

// StatusManager owns the process-wide recorder status and validates its
// transitions. It is the only writer; the connection manager and the
// enrichment queue read snapshots through Current.
type StatusManager struct {
	mu      sync.RWMutex
	current domain.RecorderStatus
}

// NewStatusManager creates a manager in idle state.
func NewStatusManager() *StatusManager {
	return &StatusManager{current: domain.RecorderStatusIdle}
}

// Current returns a snapshot of the recorder status.
func (m *StatusManager) Current() domain.RecorderStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition validates and applies one status change.
func (m *StatusManager) Transition(status domain.RecorderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if status == m.current {
		return nil
	}
	if !isValidTransition(m.current, status) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current, status)
	}

	m.current = status
	return nil
}

// IsActive reports whether a session is currently running or paused.
func (m *StatusManager) IsActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current == domain.RecorderStatusRecording || m.current == domain.RecorderStatusPaused
}

// isValidTransition enforces the recorder lifecycle edges. Error is terminal
// until the user explicitly restarts or resets.
func isValidTransition(from, to domain.RecorderStatus) bool {
	switch from {
	case domain.RecorderStatusIdle:
		return to == domain.RecorderStatusRecording
	case domain.RecorderStatusRecording:
		return to == domain.RecorderStatusPaused || to == domain.RecorderStatusIdle || to == domain.RecorderStatusError
	case domain.RecorderStatusPaused:
		return to == domain.RecorderStatusRecording || to == domain.RecorderStatusIdle || to == domain.RecorderStatusError
	case domain.RecorderStatusError:
		return to == domain.RecorderStatusRecording || to == domain.RecorderStatusIdle
	default:
		return false
	}
}
