package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"live-transcriber/internal/domain"
	"live-transcriber/internal/logging"
)

// RefinerOptions configures the external refinement endpoint.
type RefinerOptions struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// HTTPRefiner calls the refinement API over HTTP. Each method performs
// exactly one request; retry and pacing belong to the queue.
type HTTPRefiner struct {
	opts       RefinerOptions
	httpClient *http.Client
	languages  func() (primary, translation string)
	log        *logging.Logger
}

// refineRequest is the JSON payload for every refinement task.
type refineRequest struct {
	Task           string   `json:"task"`
	Model          string   `json:"model,omitempty"`
	Text           string   `json:"text"`
	Context        []string `json:"context,omitempty"`
	SourceLanguage string   `json:"source_language,omitempty"`
	TargetLanguage string   `json:"target_language,omitempty"`
}

// refineResponse is the JSON payload returned by the refinement API.
type refineResponse struct {
	Text string `json:"text"`
}

// NewHTTPRefiner creates a refinement client. languages reports the current
// primary and counterpart language codes at call time, so a settings change
// applies to the next call without rebuilding the client.
func NewHTTPRefiner(opts RefinerOptions, languages func() (string, string), log *logging.Logger) (*HTTPRefiner, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	return &HTTPRefiner{
		opts: opts,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		languages: languages,
		log:       log,
	}, nil
}

// Polish rewrites segment text for fluency and transcription-error
// correction, using up to the prior segments as context.
func (r *HTTPRefiner) Polish(ctx context.Context, text string, prior []domain.TranscriptionSegment) (string, error) {
	priorText := make([]string, 0, len(prior))
	for _, seg := range prior {
		priorText = append(priorText, seg.Text)
	}

	primary, _ := r.languages()
	return r.doRequest(ctx, refineRequest{
		Task:           "polish",
		Model:          r.opts.Model,
		Text:           text,
		Context:        priorText,
		SourceLanguage: primary,
	})
}

// Translate produces the counterpart-language rendition of segment text.
func (r *HTTPRefiner) Translate(ctx context.Context, text string) (string, error) {
	primary, translation := r.languages()
	return r.doRequest(ctx, refineRequest{
		Task:           "translate",
		Model:          r.opts.Model,
		Text:           text,
		SourceLanguage: primary,
		TargetLanguage: translation,
	})
}

// Title produces a short session title from opening transcript text. It is
// a fire-and-forget call on stop, outside the queue's retry policy.
func (r *HTTPRefiner) Title(ctx context.Context, text string) (string, error) {
	primary, _ := r.languages()
	return r.doRequest(ctx, refineRequest{
		Task:           "title",
		Model:          r.opts.Model,
		Text:           text,
		SourceLanguage: primary,
	})
}

// doRequest performs one refinement API request.
func (r *HTTPRefiner) doRequest(ctx context.Context, request refineRequest) (string, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("encode refine request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create refine request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if r.opts.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.opts.APIKey)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("refine request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read refine response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("refine HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed refineResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse refine response: %w", err)
	}
	if parsed.Text == "" {
		return "", fmt.Errorf("refine response has no text")
	}
	return parsed.Text, nil
}
