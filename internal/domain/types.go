package domain

import "time"

// RecorderStatus tracks the single process-wide recording lifecycle state.
type RecorderStatus string

const (
	RecorderStatusIdle      RecorderStatus = "idle"
	RecorderStatusRecording RecorderStatus = "recording"
	RecorderStatusPaused    RecorderStatus = "paused"
	RecorderStatusError     RecorderStatus = "error"
)

// TranscriptionSegment is one finalized, time-stamped span of transcribed
// speech. Identity is fixed at creation; only Text and TranslatedText are
// mutated afterwards, exclusively by enrichment results. Times are elapsed
// recording seconds; consecutive segments tile the timeline without gaps.
type TranscriptionSegment struct {
	ID             string `json:"id"`
	StartTime      int64  `json:"startTime"`
	EndTime        int64  `json:"endTime"`
	Text           string `json:"text"`
	TranslatedText string `json:"translatedText,omitempty"`
	IsFinal        bool   `json:"isFinal"`
}

// SessionArchive is one stored recording with its finalized segments.
type SessionArchive struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	CreatedAt time.Time              `json:"createdAt"`
	Bilingual bool                   `json:"bilingual"`
	Segments  []TranscriptionSegment `json:"segments"`
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	PrimaryLanguage     string `json:"primaryLanguage"`
	TranslationLanguage string `json:"translationLanguage"`
	Bilingual           bool   `json:"bilingual"`
}
