package recorder

import (
	"sync"

	"github.com/samber/lo"

	"live-transcriber/internal/domain"
)

// SegmentStore holds the live segment list for the in-progress recording.
// The segmenter is the only appender; the enrichment queue is the only field
// mutator. All reads return copies, and writes identify segments by id so an
// update composes correctly with list changes that happened in between.
type SegmentStore struct {
	mu       sync.RWMutex
	segments []domain.TranscriptionSegment
}

// NewSegmentStore creates an empty live segment store.
func NewSegmentStore() *SegmentStore {
	return &SegmentStore{}
}

// Append adds one finalized segment to the end of the live list.
func (s *SegmentStore) Append(segment domain.TranscriptionSegment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = append(s.segments, segment)
}

// Get returns the segment with the given id, if present.
func (s *SegmentStore) Get(id string) (domain.TranscriptionSegment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Find(s.segments, func(seg domain.TranscriptionSegment) bool {
		return seg.ID == id
	})
}

// Before returns up to limit segments immediately preceding the segment with
// the given id, oldest first. Used as refinement context.
func (s *SegmentStore) Before(id string, limit int) []domain.TranscriptionSegment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, idx, found := lo.FindIndexOf(s.segments, func(seg domain.TranscriptionSegment) bool {
		return seg.ID == id
	})
	if !found || limit <= 0 {
		return nil
	}

	start := idx - limit
	if start < 0 {
		start = 0
	}
	out := make([]domain.TranscriptionSegment, idx-start)
	copy(out, s.segments[start:idx])
	return out
}

// SetText replaces the text of the segment with the given id.
func (s *SegmentStore) SetText(id, text string) bool {
	return s.update(id, func(seg *domain.TranscriptionSegment) {
		seg.Text = text
	})
}

// SetTranslatedText replaces the translation of the segment with the given id.
func (s *SegmentStore) SetTranslatedText(id, text string) bool {
	return s.update(id, func(seg *domain.TranscriptionSegment) {
		seg.TranslatedText = text
	})
}

// Snapshot returns a copy of the current segment list.
func (s *SegmentStore) Snapshot() []domain.TranscriptionSegment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TranscriptionSegment, len(s.segments))
	copy(out, s.segments)
	return out
}

// Len returns the number of live segments.
func (s *SegmentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments)
}

// Reset clears the live list for a new recording.
func (s *SegmentStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = nil
}

// update applies fn to the segment with the given id, by id, never by
// position.
func (s *SegmentStore) update(id string, fn func(*domain.TranscriptionSegment)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.segments {
		if s.segments[i].ID == id {
			fn(&s.segments[i])
			return true
		}
	}
	return false
}
