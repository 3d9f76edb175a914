package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"live-transcriber/internal/domain"
	"live-transcriber/internal/logging"
)

// capturedRequest records one refinement API call for assertions.
type capturedRequest struct {
	auth string
	body refineRequest
}

func newRefinerServer(t *testing.T, respond func(refineRequest) (int, string)) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body refineRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		captured = append(captured, capturedRequest{auth: r.Header.Get("Authorization"), body: body})

		status, text := respond(body)
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(refineResponse{Text: text})
	}))
	t.Cleanup(server.Close)
	return server, &captured
}

func newTestRefiner(t *testing.T, endpoint string) *HTTPRefiner {
	t.Helper()
	refiner, err := NewHTTPRefiner(RefinerOptions{
		Endpoint: endpoint,
		APIKey:   "sk-test",
		Model:    "default",
		Timeout:  5 * time.Second,
	}, func() (string, string) { return "zh", "en" }, logging.NewNop())
	if err != nil {
		t.Fatalf("build refiner: %v", err)
	}
	return refiner
}

// TestPolishRequestShape verifies task, languages, context, and auth for a
// polish call.
func TestPolishRequestShape(t *testing.T) {
	server, captured := newRefinerServer(t, func(refineRequest) (int, string) {
		return http.StatusOK, "polished"
	})
	refiner := newTestRefiner(t, server.URL)

	prior := []domain.TranscriptionSegment{
		{ID: "a", Text: "first"},
		{ID: "b", Text: "second"},
	}
	got, err := refiner.Polish(context.Background(), "rough", prior)
	if err != nil {
		t.Fatalf("polish: %v", err)
	}
	if got != "polished" {
		t.Fatalf("polish result = %q", got)
	}

	if len(*captured) != 1 {
		t.Fatalf("requests = %d, want 1", len(*captured))
	}
	req := (*captured)[0]
	if req.auth != "Bearer sk-test" {
		t.Fatalf("authorization = %q", req.auth)
	}
	if req.body.Task != "polish" || req.body.Text != "rough" {
		t.Fatalf("request body = %+v", req.body)
	}
	if len(req.body.Context) != 2 || req.body.Context[0] != "first" || req.body.Context[1] != "second" {
		t.Fatalf("context = %v", req.body.Context)
	}
	if req.body.SourceLanguage != "zh" || req.body.TargetLanguage != "" {
		t.Fatalf("languages = %q -> %q", req.body.SourceLanguage, req.body.TargetLanguage)
	}
}

// TestTranslateRequestShape verifies the counterpart language is carried.
func TestTranslateRequestShape(t *testing.T) {
	server, captured := newRefinerServer(t, func(refineRequest) (int, string) {
		return http.StatusOK, "translated"
	})
	refiner := newTestRefiner(t, server.URL)

	got, err := refiner.Translate(context.Background(), "原文")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got != "translated" {
		t.Fatalf("translate result = %q", got)
	}

	req := (*captured)[0]
	if req.body.Task != "translate" || req.body.SourceLanguage != "zh" || req.body.TargetLanguage != "en" {
		t.Fatalf("request body = %+v", req.body)
	}
}

// TestTitleRequestShape verifies the title task payload.
func TestTitleRequestShape(t *testing.T) {
	server, captured := newRefinerServer(t, func(refineRequest) (int, string) {
		return http.StatusOK, "Weekly sync"
	})
	refiner := newTestRefiner(t, server.URL)

	got, err := refiner.Title(context.Background(), "opening text")
	if err != nil {
		t.Fatalf("title: %v", err)
	}
	if got != "Weekly sync" {
		t.Fatalf("title result = %q", got)
	}

	req := (*captured)[0]
	if req.body.Task != "title" || req.body.Text != "opening text" {
		t.Fatalf("request body = %+v", req.body)
	}
}

// TestRefinerHTTPErrorSurfaces verifies non-2xx responses become errors
// without internal retries.
func TestRefinerHTTPErrorSurfaces(t *testing.T) {
	server, captured := newRefinerServer(t, func(refineRequest) (int, string) {
		return http.StatusTooManyRequests, ""
	})
	refiner := newTestRefiner(t, server.URL)

	if _, err := refiner.Polish(context.Background(), "text", nil); err == nil {
		t.Fatal("expected HTTP error to surface")
	}
	if len(*captured) != 1 {
		t.Fatalf("requests = %d, want exactly 1 (no retry)", len(*captured))
	}
}

// TestRefinerEmptyTextRejected verifies a 2xx response without text fails.
func TestRefinerEmptyTextRejected(t *testing.T) {
	server, _ := newRefinerServer(t, func(refineRequest) (int, string) {
		return http.StatusOK, ""
	})
	refiner := newTestRefiner(t, server.URL)

	if _, err := refiner.Translate(context.Background(), "text"); err == nil {
		t.Fatal("expected empty response text to be rejected")
	}
}

// TestRefinerRequiresEndpoint verifies construction fails fast.
func TestRefinerRequiresEndpoint(t *testing.T) {
	_, err := NewHTTPRefiner(RefinerOptions{}, func() (string, string) { return "zh", "en" }, logging.NewNop())
	if err == nil {
		t.Fatal("expected empty endpoint to be rejected")
	}
}
