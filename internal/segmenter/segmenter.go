package segmenter

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"

	"live-transcriber/internal/domain"
	"live-transcriber/internal/logging"
	"live-transcriber/internal/metrics"
	"live-transcriber/internal/textnorm"
)

// sentenceEnders are the trailing marks that allow an early finalize once
// the buffer passes the punctuation floor. Both Latin and CJK forms count.
const sentenceEnders = ".!?。！？\n"

// Config contains the segmentation thresholds, in logical characters.
type Config struct {
	MaxBufferChars   int
	PunctuationFloor int
	MinSegmentChars  int
}

// Segmenter turns a stream of transcript deltas into finalized, time-stamped
// segments. It accumulates raw deltas, cleans the whole buffer on every
// update (a hallucinated repeat can straddle delta boundaries), and closes
// the buffer into a segment when a trigger fires. Finalized segments are
// handed to OnFinal in trigger order; consecutive segments tile the elapsed
// timeline with no gaps.
type Segmenter struct {
	cfg     Config
	log     *logging.Logger
	met     *metrics.Metrics
	elapsed func() int64
	newID   func() string
	onFinal func(domain.TranscriptionSegment)

	mu           sync.Mutex
	buffer       strings.Builder
	lastBoundary int64
}

// New creates a segmenter. elapsed reports current recording seconds and
// onFinal receives each finalized segment synchronously.
func New(cfg Config, log *logging.Logger, met *metrics.Metrics, elapsed func() int64, onFinal func(domain.TranscriptionSegment)) *Segmenter {
	return &Segmenter{
		cfg:     cfg,
		log:     log,
		met:     met,
		elapsed: elapsed,
		newID:   uuid.NewString,
		onFinal: onFinal,
	}
}

// Reset clears the pending buffer and rewinds the boundary for a new
// recording.
func (s *Segmenter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer.Reset()
	s.lastBoundary = 0
}

// AppendDelta adds one transcript delta and finalizes when a length or
// punctuation trigger fires.
func (s *Segmenter) AppendDelta(text string) {
	s.mu.Lock()
	s.buffer.WriteString(text)
	raw := s.buffer.String()
	cleaned := textnorm.Clean(raw)

	// A trailing newline counts as a sentence break but is trimmed by
	// cleaning, so it has to be checked on the raw buffer.
	length := utf8.RuneCountInString(cleaned)
	sentenceBreak := endsWithSentenceMark(cleaned) || strings.HasSuffix(raw, "\n")
	trigger := length > s.cfg.MaxBufferChars ||
		(length > s.cfg.PunctuationFloor && sentenceBreak)

	var segment domain.TranscriptionSegment
	finalized := false
	if trigger {
		segment, finalized = s.finalizeLocked(cleaned)
	}
	s.mu.Unlock()

	if finalized {
		s.onFinal(segment)
	}
}

// TurnComplete finalizes the pending buffer unconditionally, because the
// source reported the utterance has ended.
func (s *Segmenter) TurnComplete() {
	s.flush()
}

// Flush finalizes any partial trailing text, used on stop and pause.
func (s *Segmenter) Flush() {
	s.flush()
}

// PartialText returns the cleaned pending buffer for live display.
func (s *Segmenter) PartialText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return textnorm.Clean(s.buffer.String())
}

// LastBoundary returns the end time of the most recently finalized segment.
func (s *Segmenter) LastBoundary() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBoundary
}

// flush runs one unconditional finalize pass.
func (s *Segmenter) flush() {
	s.mu.Lock()
	cleaned := textnorm.Clean(s.buffer.String())
	segment, finalized := s.finalizeLocked(cleaned)
	s.mu.Unlock()

	if finalized {
		s.onFinal(segment)
	}
}

// finalizeLocked closes the buffer into a segment. Noise-only utterances
// below the minimum floor are discarded without advancing the boundary, so
// a later real utterance still starts at the previous segment's end.
func (s *Segmenter) finalizeLocked(cleaned string) (domain.TranscriptionSegment, bool) {
	s.buffer.Reset()

	if utf8.RuneCountInString(cleaned) < s.cfg.MinSegmentChars {
		if cleaned != "" {
			s.log.Debug("discarding sub-minimum utterance", "text", cleaned)
			s.met.SegmentsDiscarded.Inc()
		}
		return domain.TranscriptionSegment{}, false
	}

	end := s.elapsed()
	if end < s.lastBoundary+1 {
		end = s.lastBoundary + 1
	}

	segment := domain.TranscriptionSegment{
		ID:        s.newID(),
		StartTime: s.lastBoundary,
		EndTime:   end,
		Text:      cleaned,
		IsFinal:   true,
	}
	s.lastBoundary = end
	s.met.SegmentsFinalized.Inc()

	s.log.Debug("finalized segment",
		"segment_id", segment.ID,
		"start", segment.StartTime,
		"end", segment.EndTime,
		"chars", utf8.RuneCountInString(cleaned),
	)
	return segment, true
}

// endsWithSentenceMark reports whether the last character closes a sentence.
func endsWithSentenceMark(text string) bool {
	last, size := utf8.DecodeLastRuneInString(text)
	if size == 0 {
		return false
	}
	return strings.ContainsRune(sentenceEnders, last)
}
