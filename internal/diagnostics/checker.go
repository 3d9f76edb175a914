package diagnostics

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"live-transcriber/internal/config"
	"live-transcriber/internal/domain"
)

// Checker validates external endpoints and required filesystem paths.
type Checker struct {
	stat       func(string) (os.FileInfo, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(cfg config.Config) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkSourceURL(cfg.Source.URL),
		c.checkAPIKey("source_key", "Source API key", cfg.Source.APIKey),
		c.checkRefinerEndpoint(cfg.Refiner.Endpoint),
		c.checkAPIKey("refiner_key", "Refiner API key", cfg.Refiner.APIKey),
		c.checkSessionsDir(cfg.Sessions.Dir),
		c.checkLanguagePair(cfg.Languages.Primary, cfg.Languages.Translation),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkSourceURL validates the transcription stream endpoint.
func (c *Checker) checkSourceURL(raw string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "source_url",
		Name: "Transcription stream URL",
	}

	if strings.TrimSpace(raw) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Stream URL is empty."
		item.Hint = "Set source.url to the ws:// or wss:// endpoint of the transcription service."
		return item
	}

	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "ws" && parsed.Scheme != "wss") || parsed.Host == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Stream URL is not a valid ws:// or wss:// address: %s", raw)
		item.Hint = "Use a websocket URL, for example wss://example.com/v1/stream."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Stream endpoint configured: %s", parsed.Host)
	return item
}

// checkRefinerEndpoint validates the enrichment HTTP endpoint.
func (c *Checker) checkRefinerEndpoint(raw string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "refiner_endpoint",
		Name: "Refiner endpoint",
	}

	if strings.TrimSpace(raw) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Refiner endpoint is empty."
		item.Hint = "Set refiner.endpoint to the HTTP address of the text refinement service."
		return item
	}

	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Refiner endpoint is not a valid http:// or https:// address: %s", raw)
		item.Hint = "Use an HTTP URL, for example https://example.com/v1/refine."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Refiner endpoint configured: %s", parsed.Host)
	return item
}

// checkAPIKey verifies a credential is configured without revealing it.
func (c *Checker) checkAPIKey(id, name, key string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   id,
		Name: name,
	}

	if strings.TrimSpace(key) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "API key is not set."
		item.Hint = "Configure the key in the config file or the matching environment variable."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = "API key is set."
	return item
}

// checkSessionsDir validates session archive directory existence and
// write access.
func (c *Checker) checkSessionsDir(dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "sessions_dir",
		Name: "Sessions directory",
	}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Sessions directory is empty."
		item.Hint = "Set sessions.dir to a writable location for archived transcripts."
		return item
	}

	if info, err := c.stat(dir); err == nil && !info.IsDir() {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Sessions path exists but is not a directory: %s", dir)
		item.Hint = "Move the file aside or point sessions.dir elsewhere."
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create sessions directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Sessions directory is not writable: %s", dir)
		item.Hint = "Choose a writable directory for session archives."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// checkLanguagePair validates the configured bilingual pairing against the
// built-in catalog.
func (c *Checker) checkLanguagePair(primary, translation string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "language_pair",
		Name: "Language pair",
	}

	if domain.SupportedLanguagePair(primary, translation) {
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Pairing %s/%s is supported.", primary, translation)
		return item
	}

	item.Status = domain.DiagnosticStatusFail
	item.Message = fmt.Sprintf("Pairing %s/%s is not a supported combination.", primary, translation)
	item.Hint = "Pick a pairing from the built-in catalog."
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	stat func(string) (os.FileInfo, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		stat:       stat,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}

// IsNotExist reports whether error represents file-not-found.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
