package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/toodo84/ai-pronunciation-app/internal/audio"
	"github.com/toodo84/ai-pronunciation-app/internal/backend"
	"github.com/toodo84/ai-pronunciation-app/internal/config"
	"github.com/toodo84/ai-pronunciation-app/internal/metrics"
	"github.com/toodo84/ai-pronunciation-app/internal/transport"
)

type fakeRecognizer struct {
	text string
	err  error
	wav  []byte
}

func (f *fakeRecognizer) Recognize(ctx context.Context, wav []byte) (string, error) {
	f.wav = wav
	return f.text, f.err
}

type failingSuggester struct{}

func (failingSuggester) Suggest(ctx context.Context, text string) ([]string, error) {
	return nil, errors.New("model offline")
}

func newTestServer(t *testing.T, rec backend.Recognizer) (*HTTPServer, *metrics.Metrics) {
	t.Helper()

	m := metrics.NewMetrics()
	h, err := NewHTTPServer(config.Default(), Services{
		Recognizer: rec,
		Suggester:  backend.RuleSuggester{},
		Advisor:    backend.NewPinyinAdvisor(),
	}, nil, m)
	if err != nil {
		t.Fatalf("NewHTTPServer failed: %v", err)
	}
	return h, m
}

func multipartUpload(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if filename == "" {
		if err := w.WriteField(field, string(data)); err != nil {
			t.Fatalf("WriteField failed: %v", err)
		}
	} else {
		part, err := w.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("CreateFormFile failed: %v", err)
		}
		part.Write(data)
	}
	w.Close()
	return &body, w.FormDataContentType()
}

func serve(h *HTTPServer, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestNewHTTPServerRequiresServices(t *testing.T) {
	if _, err := NewHTTPServer(config.Default(), Services{}, nil, nil); err == nil {
		t.Error("Expected error without services")
	}
}

func TestTranscribe(t *testing.T) {
	wav := audio.EncodeWAV([]audio.Frame{{0.1, 0.2, 0.3}}, 16000)

	tests := []struct {
		name       string
		recognizer *fakeRecognizer
		want       transport.Transcription
		result     string
	}{
		{
			name:       "recognized",
			recognizer: &fakeRecognizer{text: "你好"},
			want:       transport.Transcription{Text: "你好"},
			result:     "recognized",
		},
		{
			name:       "no speech",
			recognizer: &fakeRecognizer{err: backend.ErrNoSpeech},
			want:       transport.Transcription{Text: transport.NoSpeechText},
			result:     "no_speech",
		},
		{
			name:       "recognizer error",
			recognizer: &fakeRecognizer{err: errors.New("quota exceeded")},
			want:       transport.Transcription{Error: "Speech service error: quota exceeded"},
			result:     "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, m := newTestServer(t, tt.recognizer)

			body, contentType := multipartUpload(t, transport.AudioField, transport.AudioFilename, wav)
			req := httptest.NewRequest(http.MethodPost, transport.PathTranscribe, body)
			req.Header.Set("Content-Type", contentType)

			rec := serve(h, req)
			if rec.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d", rec.Code)
			}

			got := decode[transport.Transcription](t, rec)
			if got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
			if !bytes.Equal(tt.recognizer.wav, wav) {
				t.Error("Recognizer did not receive the uploaded WAV")
			}
			if got := testutil.ToFloat64(m.Recognitions.WithLabelValues(tt.result)); got != 1 {
				t.Errorf("Expected one %s recognition, got %v", tt.result, got)
			}
		})
	}
}

func TestTranscribeRejectsBadUploads(t *testing.T) {
	wav := audio.EncodeWAV([]audio.Frame{{0.1}}, 16000)

	tests := []struct {
		name     string
		field    string
		filename string
		data     []byte
		want     string
	}{
		{"missing field", "other", "x.wav", wav, "No audio data"},
		{"empty filename", transport.AudioField, "", wav, "No selected file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestServer(t, &fakeRecognizer{text: "你好"})

			body, contentType := multipartUpload(t, tt.field, tt.filename, tt.data)
			req := httptest.NewRequest(http.MethodPost, transport.PathTranscribe, body)
			req.Header.Set("Content-Type", contentType)

			rec := serve(h, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", rec.Code)
			}
			if got := decode[transport.ErrorResponse](t, rec); got.Error != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got.Error)
			}
		})
	}

	t.Run("not multipart", func(t *testing.T) {
		h, _ := newTestServer(t, &fakeRecognizer{text: "你好"})
		req := httptest.NewRequest(http.MethodPost, transport.PathTranscribe, strings.NewReader("raw"))

		rec := serve(h, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})
}

func TestTranscribeInvalidWAVIsErrorPayload(t *testing.T) {
	recognizer := &fakeRecognizer{text: "你好"}
	h, _ := newTestServer(t, recognizer)

	body, contentType := multipartUpload(t, transport.AudioField, transport.AudioFilename, []byte("not a wav"))
	req := httptest.NewRequest(http.MethodPost, transport.PathTranscribe, body)
	req.Header.Set("Content-Type", contentType)

	rec := serve(h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if got := decode[transport.Transcription](t, rec); got.Error == "" || got.Text != "" {
		t.Errorf("Expected error payload, got %+v", got)
	}
	if recognizer.wav != nil {
		t.Error("Recognizer should not be called for invalid WAV")
	}
	if stats := h.GetStats(); stats.RejectedUploads != 1 {
		t.Errorf("Expected 1 rejected upload, got %d", stats.RejectedUploads)
	}
}

func TestTranscribeTooLarge(t *testing.T) {
	h, _ := newTestServer(t, &fakeRecognizer{text: "你好"})
	h.config.HTTP.MaxUploadSize = 1024

	big := audio.EncodeWAV([]audio.Frame{make(audio.Frame, 4096)}, 16000)
	body, contentType := multipartUpload(t, transport.AudioField, transport.AudioFilename, big)
	req := httptest.NewRequest(http.MethodPost, transport.PathTranscribe, body)
	req.Header.Set("Content-Type", contentType)

	rec := serve(h, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d", rec.Code)
	}
}

func TestSuggestions(t *testing.T) {
	h, _ := newTestServer(t, &fakeRecognizer{})

	req := httptest.NewRequest(http.MethodPost, transport.PathSuggestions, strings.NewReader(`{"text":"今天好"}`))
	rec := serve(h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	got := decode[transport.SuggestionsResponse](t, rec)
	want := []string{"今天好嗎？", "今天吧"}
	if len(got.Suggestions) != 2 || got.Suggestions[0] != want[0] || got.Suggestions[1] != want[1] {
		t.Errorf("Expected %v, got %v", want, got.Suggestions)
	}
}

func TestSuggestionsFailure(t *testing.T) {
	h, err := NewHTTPServer(config.Default(), Services{
		Recognizer: &fakeRecognizer{},
		Suggester:  failingSuggester{},
		Advisor:    backend.NewPinyinAdvisor(),
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewHTTPServer failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, transport.PathSuggestions, strings.NewReader(`{"text":"你好"}`))
	rec := serve(h, req)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
}

func TestInvalidJSON(t *testing.T) {
	h, m := newTestServer(t, &fakeRecognizer{})

	for _, path := range []string{transport.PathSuggestions, transport.PathAdvice, transport.PathFeedback} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("{"))
		rec := serve(h, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, rec.Code)
		}
		if got := decode[transport.ErrorResponse](t, rec); got.Error != "Invalid JSON body" {
			t.Errorf("%s: unexpected error %q", path, got.Error)
		}
		if got := testutil.ToFloat64(m.HTTPErrors.WithLabelValues(http.MethodPost, path, "client_error")); got != 1 {
			t.Errorf("%s: expected one client error, got %v", path, got)
		}
	}
}

func TestAdvice(t *testing.T) {
	h, _ := newTestServer(t, &fakeRecognizer{})

	req := httptest.NewRequest(http.MethodPost, transport.PathAdvice,
		strings.NewReader(`{"wrong_text":"四","correct_text":"是"}`))
	rec := serve(h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	got := decode[transport.AdviceResponse](t, rec)
	if !strings.Contains(got.Advice, "ㄕ") {
		t.Errorf("Expected retroflex hint, got %q", got.Advice)
	}
}

func TestFeedback(t *testing.T) {
	h, _ := newTestServer(t, &fakeRecognizer{})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, transport.PathFeedback,
			strings.NewReader(`{"feedback":"perfect","text":"你好"}`))
		rec := serve(h, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}

		got := decode[transport.FeedbackResponse](t, rec)
		if got.Status != "success" || got.Message != FeedbackThanks {
			t.Errorf("Unexpected response %+v", got)
		}
	}

	if stats := h.GetStats(); stats.Feedback["perfect"] != 2 {
		t.Errorf("Expected 2 perfect reports, got %v", stats.Feedback)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newTestServer(t, &fakeRecognizer{})

	rec := serve(h, httptest.NewRequest(http.MethodGet, transport.PathTranscribe, nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestMonitoringEndpoints(t *testing.T) {
	h, _ := newTestServer(t, &fakeRecognizer{})

	for _, path := range []string{"/", "/health", "/stats", "/metrics"} {
		rec := serve(h, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	health := decode[map[string]any](t, rec)
	if health["status"] != "healthy" {
		t.Errorf("Unexpected health %v", health)
	}

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "coach_http_requests_total") {
		t.Error("Expected HTTP request metrics in exposition")
	}
}

func TestClientAgainstServer(t *testing.T) {
	h, _ := newTestServer(t, backend.StaticRecognizer{Text: "獅子"})
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	client, err := transport.NewClient(transport.Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	wav := audio.EncodeWAV([]audio.Frame{{0.25, -0.25}}, 16000)

	tr, err := client.Transcribe(ctx, wav)
	if err != nil || tr.Text != "獅子" {
		t.Fatalf("Transcribe = %+v, %v", tr, err)
	}

	suggestions, err := client.Suggest(ctx, tr.Text)
	if err != nil || suggestions[0] != "八百標兵奔北坡" {
		t.Fatalf("Suggest = %v, %v", suggestions, err)
	}

	advice, err := client.Advise(ctx, "藍", "男")
	if err != nil || !strings.Contains(advice, "ㄋ") {
		t.Fatalf("Advise = %q, %v", advice, err)
	}

	if err := client.ReportFeedback(ctx, "perfect", tr.Text); err != nil {
		t.Fatalf("ReportFeedback failed: %v", err)
	}

	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats failed: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	var stats Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if stats.Recognized != 1 || stats.Suggestions != 1 || stats.Advice != 1 || stats.Feedback["perfect"] != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}
