package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"live-transcriber/internal/config"
	"live-transcriber/internal/diagnostics"
	"live-transcriber/internal/domain"
	"live-transcriber/internal/enrich"
	"live-transcriber/internal/events"
	"live-transcriber/internal/logging"
	"live-transcriber/internal/metrics"
	"live-transcriber/internal/recorder"
	"live-transcriber/internal/segmenter"
	"live-transcriber/internal/sessions"
	"live-transcriber/internal/stream"
)

// titleMaker isolates fire-and-forget title generation behind an interface.
type titleMaker interface {
	Title(ctx context.Context, text string) (string, error)
}

// titleSegmentCount is how many opening segments seed the session title.
const titleSegmentCount = 3

// App wires configuration, recorder state, segmentation, enrichment, the
// streaming connection, session persistence, and the event bus. It is the
// single surface the UI collaborator talks to, and it implements
// enrich.Target so the queue resolves segments against whichever collection
// is currently authoritative.
type App struct {
	Config      config.Config
	Diagnostics domain.DiagnosticReport

	log     *logging.Logger
	met     *metrics.Metrics
	checker *diagnostics.Checker
	bus     *events.Bus
	status  *recorder.StatusManager
	clock   *recorder.Clock
	live    *recorder.SegmentStore
	seg     *segmenter.Segmenter
	queue   *enrich.Queue
	store   sessions.Store
	titler  titleMaker

	// Injectable construction seams for tests.
	newDialer    func() stream.Dialer
	newSource    func() (stream.FrameSource, error)
	titleTimeout time.Duration

	mu        sync.Mutex
	manager   *stream.Manager
	source    stream.FrameSource
	sessionID string
	archived  bool
	viewed    *domain.SessionArchive
	settings  domain.Settings
}

// New builds the application from validated configuration and runs startup
// diagnostics. The enrichment worker starts immediately; it outlives
// individual recordings so queued jobs keep draining after stop.
func New(cfg config.Config, log *logging.Logger, met *metrics.Metrics) (*App, error) {
	a := &App{
		Config:  cfg,
		log:     log,
		met:     met,
		checker: diagnostics.NewChecker(),
		bus:     events.NewBus(1000),
		status:  recorder.NewStatusManager(),
		clock:   recorder.NewClock(),
		live:    recorder.NewSegmentStore(),
		store:   sessions.NewJSONStore(cfg.Sessions.Dir),
		settings: domain.Settings{
			PrimaryLanguage:     cfg.Languages.Primary,
			TranslationLanguage: cfg.Languages.Translation,
			Bilingual:           cfg.Languages.Bilingual,
		},
		titleTimeout: cfg.Refiner.RefinerTimeout(),
	}

	refiner, err := enrich.NewHTTPRefiner(enrich.RefinerOptions{
		Endpoint: cfg.Refiner.Endpoint,
		APIKey:   cfg.Refiner.APIKey,
		Model:    cfg.Refiner.Model,
		Timeout:  cfg.Refiner.RefinerTimeout(),
	}, a.languageSnapshot, log)
	if err != nil {
		return nil, fmt.Errorf("build refiner client: %w", err)
	}
	a.titler = refiner

	a.queue = enrich.NewQueue(enrich.Options{
		MaxRetries:     cfg.Queue.MaxRetries,
		BackoffBase:    time.Duration(cfg.Queue.BackoffBaseMS) * time.Millisecond,
		Cooldown:       time.Duration(cfg.Queue.CooldownMS) * time.Millisecond,
		CooldownMin:    time.Duration(cfg.Queue.CooldownMinMS) * time.Millisecond,
		CooldownMax:    time.Duration(cfg.Queue.CooldownMaxMS) * time.Millisecond,
		CooldownGrow:   cfg.Queue.CooldownGrow,
		CooldownShrink: cfg.Queue.CooldownShrink,
		ContextWindow:  cfg.Queue.ContextWindow,
	}, log, met, refiner, a)

	a.seg = segmenter.New(segmenter.Config{
		MaxBufferChars:   cfg.Segmenter.MaxBufferChars,
		PunctuationFloor: cfg.Segmenter.PunctuationFloor,
		MinSegmentChars:  cfg.Segmenter.MinSegmentChars,
	}, log, met, a.clock.ElapsedSeconds, a.handleFinal)

	a.newDialer = func() stream.Dialer {
		return &stream.WSDialer{URL: cfg.Source.URL, APIKey: cfg.Source.APIKey}
	}
	a.newSource = func() (stream.FrameSource, error) {
		return stream.NewReaderSource(os.Stdin, 0, log), nil
	}

	a.Diagnostics = a.checker.Run(cfg)
	a.queue.Start()
	return a, nil
}

// Close stops any open recording session and shuts the enrichment worker
// down. A session in error state still holds transport goroutines, so stop
// runs whenever a manager exists.
func (a *App) Close() {
	if err := a.StopRecording(); err != nil && !errors.Is(err, recorder.ErrNotRecording) {
		a.log.Warn("stop recording during shutdown", "error", err)
	}
	a.queue.Close()
}

// StartRecording opens the capture source and the streaming session and
// begins a fresh recording timeline.
func (a *App) StartRecording() error {
	if a.status.IsActive() {
		return recorder.ErrAlreadyRecording
	}
	if err := a.status.Transition(domain.RecorderStatusRecording); err != nil {
		return err
	}

	source, err := a.newSource()
	if err != nil {
		_ = a.status.Transition(domain.RecorderStatusIdle)
		return fmt.Errorf("open capture source: %w", err)
	}

	manager := stream.NewManager(a.newDialer(), source.Frames(), a.status.Current, stream.Handlers{
		OnDelta:         a.handleDelta,
		OnTurnComplete:  a.handleTurnComplete,
		OnTerminalError: a.handleTerminalError,
	}, a.Config.Source.MaxRetries, a.log, a.met)

	a.mu.Lock()
	a.sessionID = uuid.NewString()
	a.archived = false
	a.viewed = nil
	a.source = source
	a.manager = manager
	sessionID := a.sessionID
	a.mu.Unlock()

	a.live.Reset()
	a.seg.Reset()
	a.clock.Start()
	manager.Start()

	a.log.Info("recording started", "session_id", sessionID)
	a.publishStatus("Recording started")
	return nil
}

// PauseRecording suspends frame forwarding and the elapsed clock. The
// streaming session stays open so resume is instant.
func (a *App) PauseRecording() error {
	if a.status.Current() != domain.RecorderStatusRecording {
		return recorder.ErrNotRecording
	}
	if err := a.status.Transition(domain.RecorderStatusPaused); err != nil {
		return err
	}
	a.clock.Pause()
	a.publishStatus("Recording paused")
	return nil
}

// ResumeRecording restarts frame forwarding after a pause.
func (a *App) ResumeRecording() error {
	if a.status.Current() != domain.RecorderStatusPaused {
		return recorder.ErrNotRecording
	}
	if err := a.status.Transition(domain.RecorderStatusRecording); err != nil {
		return err
	}
	a.clock.Resume()
	a.publishStatus("Recording resumed")
	return nil
}

// StopRecording closes capture and the streaming session, flushes the
// trailing partial, archives the session, and kicks off title generation.
// It also clears a terminal error state.
func (a *App) StopRecording() error {
	a.mu.Lock()
	manager := a.manager
	source := a.source
	sessionID := a.sessionID
	a.manager = nil
	a.source = nil
	a.mu.Unlock()

	if manager == nil {
		return recorder.ErrNotRecording
	}

	manager.Close()
	if source != nil {
		_ = source.Close()
	}
	a.seg.Flush()
	a.clock.Stop()
	if err := a.status.Transition(domain.RecorderStatusIdle); err != nil {
		return err
	}

	segments := a.live.Snapshot()
	if len(segments) > 0 {
		archive := domain.SessionArchive{
			ID:        sessionID,
			Title:     defaultTitle(time.Now()),
			CreatedAt: time.Now().UTC(),
			Bilingual: a.BilingualActive(),
			Segments:  segments,
		}
		if err := a.store.Save(archive); err != nil {
			a.log.Error("archive session", "session_id", sessionID, "error", err)
			a.publishError(fmt.Sprintf("archive session: %v", err))
		} else {
			a.mu.Lock()
			a.archived = true
			a.mu.Unlock()
			go a.generateTitle(sessionID, segments)
		}
	}

	a.log.Info("recording stopped", "session_id", sessionID, "segments", len(segments))
	a.publishStatus("Recording stopped")
	return nil
}

// Status returns the current recorder status.
func (a *App) Status() domain.RecorderStatus {
	return a.status.Current()
}

// ElapsedSeconds returns whole recorded seconds, excluding paused spans.
func (a *App) ElapsedSeconds() int64 {
	return a.clock.ElapsedSeconds()
}

// LiveSegments returns a snapshot of the current recording's segments.
func (a *App) LiveSegments() []domain.TranscriptionSegment {
	return a.live.Snapshot()
}

// PartialText returns the cleaned pending buffer for live display.
func (a *App) PartialText() string {
	return a.seg.PartialText()
}

// Events returns all events with sequence greater than sinceSeq.
func (a *App) Events(sinceSeq int64) []events.Event {
	return a.bus.Since(sinceSeq)
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// RefreshDiagnostics reruns all startup checks.
func (a *App) RefreshDiagnostics() domain.DiagnosticReport {
	report := a.checker.Run(a.Config)
	a.mu.Lock()
	a.Diagnostics = report
	a.mu.Unlock()
	return report
}

// GetSettings returns the current runtime settings.
func (a *App) GetSettings() domain.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// UpdateSettings validates and applies the language pairing and bilingual
// flag. Segments already finalized keep their existing enrichment.
func (a *App) UpdateSettings(settings domain.Settings) (domain.Settings, error) {
	settings.PrimaryLanguage = strings.TrimSpace(settings.PrimaryLanguage)
	settings.TranslationLanguage = strings.TrimSpace(settings.TranslationLanguage)
	if !domain.SupportedLanguagePair(settings.PrimaryLanguage, settings.TranslationLanguage) {
		return domain.Settings{}, fmt.Errorf("unsupported language pair: %s/%s",
			settings.PrimaryLanguage, settings.TranslationLanguage)
	}

	a.mu.Lock()
	a.settings = settings
	a.mu.Unlock()
	return settings, nil
}

// SetBilingual toggles translation for segments finalized from now on.
func (a *App) SetBilingual(on bool) {
	a.mu.Lock()
	a.settings.Bilingual = on
	a.mu.Unlock()
	a.log.Info("bilingual mode changed", "enabled", on)
}

// LanguagePairs returns the built-in bilingual pairings.
func (a *App) LanguagePairs() []domain.LanguagePairOption {
	return domain.LanguagePairs()
}

// ListSessions returns archived sessions, newest first.
func (a *App) ListSessions() ([]domain.SessionArchive, error) {
	return a.store.List()
}

// ViewSession loads an archived session and makes it the enrichment target
// for late-arriving queue results.
func (a *App) ViewSession(id string) (domain.SessionArchive, error) {
	archive, err := a.store.Load(id)
	if err != nil {
		return domain.SessionArchive{}, err
	}

	a.mu.Lock()
	a.viewed = &archive
	a.mu.Unlock()
	return archive, nil
}

// CloseView drops the viewed archived session.
func (a *App) CloseView() {
	a.mu.Lock()
	a.viewed = nil
	a.mu.Unlock()
}

// RenameSession updates an archived session's title.
func (a *App) RenameSession(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("session title is empty")
	}
	if err := a.store.Rename(id, title); err != nil {
		return err
	}

	a.mu.Lock()
	if a.viewed != nil && a.viewed.ID == id {
		a.viewed.Title = title
	}
	a.mu.Unlock()
	return nil
}

// DeleteSession removes an archived session.
func (a *App) DeleteSession(id string) error {
	if err := a.store.Delete(id); err != nil {
		return err
	}

	a.mu.Lock()
	if a.viewed != nil && a.viewed.ID == id {
		a.viewed = nil
	}
	if a.sessionID == id {
		a.archived = false
	}
	a.mu.Unlock()
	return nil
}

// Resolve implements enrich.Target against the live list first, then the
// viewed archived session.
func (a *App) Resolve(segmentID string) (domain.TranscriptionSegment, bool) {
	if segment, ok := a.live.Get(segmentID); ok {
		return segment, true
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.viewed != nil {
		for _, segment := range a.viewed.Segments {
			if segment.ID == segmentID {
				return segment, true
			}
		}
	}
	return domain.TranscriptionSegment{}, false
}

// Context implements enrich.Target: up to limit segments preceding the
// given one, oldest first.
func (a *App) Context(segmentID string, limit int) []domain.TranscriptionSegment {
	if prior := a.live.Before(segmentID, limit); prior != nil {
		return prior
	}
	if _, ok := a.live.Get(segmentID); ok {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.viewed == nil || limit <= 0 {
		return nil
	}
	for i, segment := range a.viewed.Segments {
		if segment.ID != segmentID {
			continue
		}
		start := i - limit
		if start < 0 {
			start = 0
		}
		out := make([]domain.TranscriptionSegment, i-start)
		copy(out, a.viewed.Segments[start:i])
		return out
	}
	return nil
}

// languageSnapshot reports the current pairing for refiner calls, so a
// settings change applies to the next call.
func (a *App) languageSnapshot() (string, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings.PrimaryLanguage, a.settings.TranslationLanguage
}

// BilingualActive implements enrich.Target.
func (a *App) BilingualActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings.Bilingual
}

// ApplyText implements enrich.Target: the single update path for polished
// text, with write-through to the archive when one exists.
func (a *App) ApplyText(segmentID, text string) {
	a.applyEnrichment(segmentID, text, false)
}

// ApplyTranslation implements enrich.Target.
func (a *App) ApplyTranslation(segmentID, text string) {
	a.applyEnrichment(segmentID, text, true)
}

// applyEnrichment updates the segment wherever it lives and republishes it.
// Archive write-through is best effort; the in-memory copy stays current.
func (a *App) applyEnrichment(segmentID, text string, translation bool) {
	var applied bool
	if translation {
		applied = a.live.SetTranslatedText(segmentID, text)
	} else {
		applied = a.live.SetText(segmentID, text)
	}

	archiveID := ""
	a.mu.Lock()
	if applied && a.archived {
		archiveID = a.sessionID
	}
	if a.viewed != nil {
		for i := range a.viewed.Segments {
			if a.viewed.Segments[i].ID != segmentID {
				continue
			}
			if translation {
				a.viewed.Segments[i].TranslatedText = text
			} else {
				a.viewed.Segments[i].Text = text
			}
			archiveID = a.viewed.ID
			applied = true
		}
	}
	a.mu.Unlock()

	if !applied {
		return
	}

	if archiveID != "" {
		var err error
		if translation {
			err = a.store.ApplyTranslation(archiveID, segmentID, text)
		} else {
			err = a.store.ApplyText(archiveID, segmentID, text)
		}
		if err != nil {
			a.log.Warn("write enrichment to archive",
				"session_id", archiveID, "segment_id", segmentID, "error", err)
		}
	}

	if segment, ok := a.Resolve(segmentID); ok {
		a.publishSegment(segment)
	}
}

// handleFinal receives finalized segments from the segmenter.
func (a *App) handleFinal(segment domain.TranscriptionSegment) {
	a.live.Append(segment)
	a.publishSegment(segment)

	a.queue.Enqueue(enrich.Job{SegmentID: segment.ID, Kind: enrich.KindPolish})
	if a.BilingualActive() {
		a.queue.Enqueue(enrich.Job{SegmentID: segment.ID, Kind: enrich.KindTranslate})
	}
}

// handleDelta feeds one transcript delta into the segmenter.
func (a *App) handleDelta(text string) {
	a.seg.AppendDelta(text)
	a.publishPartial(a.seg.PartialText())
}

// handleTurnComplete finalizes the pending utterance.
func (a *App) handleTurnComplete() {
	a.seg.TurnComplete()
	a.publishPartial(a.seg.PartialText())
}

// handleTerminalError fires once when the connection retry budget is
// exhausted. The timeline freezes; segments stay available and stop still
// archives them.
func (a *App) handleTerminalError(err error) {
	a.clock.Pause()
	if terr := a.status.Transition(domain.RecorderStatusError); terr != nil {
		a.log.Warn("transition to error state", "error", terr)
	}
	a.log.Error("streaming connection lost", "error", err)
	a.publishError(fmt.Sprintf("streaming connection lost: %v", err))
	a.publishStatus("Connection lost")
}

// generateTitle asks the refiner for a session title from the opening
// segments. Failures leave the timestamp default in place.
func (a *App) generateTitle(sessionID string, segments []domain.TranscriptionSegment) {
	count := len(segments)
	if count > titleSegmentCount {
		count = titleSegmentCount
	}
	opening := make([]string, 0, count)
	for _, segment := range segments[:count] {
		opening = append(opening, segment.Text)
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.titleTimeout)
	defer cancel()

	title, err := a.titler.Title(ctx, strings.Join(opening, " "))
	if err != nil {
		a.log.Warn("session title generation failed", "session_id", sessionID, "error", err)
		return
	}
	if err := a.RenameSession(sessionID, title); err != nil {
		a.log.Warn("apply generated title", "session_id", sessionID, "error", err)
	}
}

// publishStatus sends a status event with the current recorder state.
func (a *App) publishStatus(message string) {
	a.bus.Publish(events.Event{
		Type:    events.TypeStatus,
		Status:  a.status.Current(),
		Message: message,
	})
}

// publishSegment sends the full segment so subscribers see enrichment
// results without re-reading the live list.
func (a *App) publishSegment(segment domain.TranscriptionSegment) {
	a.bus.Publish(events.Event{
		Type:    events.TypeSegment,
		Segment: &segment,
	})
}

// publishPartial sends the pending buffer text for live display.
func (a *App) publishPartial(text string) {
	a.bus.Publish(events.Event{
		Type:    events.TypePartial,
		Partial: text,
	})
}

// publishError sends a user-visible error message.
func (a *App) publishError(message string) {
	a.bus.Publish(events.Event{
		Type:    events.TypeError,
		Message: message,
	})
}

// defaultTitle is the placeholder before title generation completes.
func defaultTitle(at time.Time) string {
	return "Session " + at.Format("2006-01-02 15:04")
}
