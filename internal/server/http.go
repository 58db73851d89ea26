package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/toodo84/ai-pronunciation-app/internal/audio"
	"github.com/toodo84/ai-pronunciation-app/internal/backend"
	"github.com/toodo84/ai-pronunciation-app/internal/config"
	"github.com/toodo84/ai-pronunciation-app/internal/metrics"
	"github.com/toodo84/ai-pronunciation-app/internal/transport"
)

const (
	serviceName    = "pronunciation-coach"
	serviceVersion = "1.0.0"

	// FeedbackThanks acknowledges every feedback report
	FeedbackThanks = "感謝您的回饋！"
)

// Error texts returned to clients
const (
	errNoAudio        = "No audio data"
	errNoFile         = "No selected file"
	errTooLarge       = "Recording too large"
	errInvalidJSON    = "Invalid JSON body"
	speechErrorFormat = "Speech service error: %v"
)

// Services are the backends behind the API
type Services struct {
	Recognizer backend.Recognizer
	Suggester  backend.Suggester
	Advisor    backend.Advisor
}

// Stats holds request counters for the /stats endpoint
type Stats struct {
	Uptime            string            `json:"uptime"`
	Transcriptions    uint64            `json:"transcriptions"`
	Recognized        uint64            `json:"recognized"`
	NoSpeech          uint64            `json:"no_speech"`
	RecognitionErrors uint64            `json:"recognition_errors"`
	RejectedUploads   uint64            `json:"rejected_uploads"`
	Suggestions       uint64            `json:"suggestions"`
	Advice            uint64            `json:"advice"`
	Feedback          map[string]uint64 `json:"feedback"`
}

// HTTPServer serves the transcription, suggestion, advice and feedback API
type HTTPServer struct {
	server   *http.Server
	router   chi.Router
	logger   *slog.Logger
	config   *config.Config
	services Services
	metrics  *metrics.Metrics

	// Server state
	startTime time.Time
	stats     Stats
	mu        sync.RWMutex
}

// NewHTTPServer creates the API server. All services must be set.
func NewHTTPServer(cfg *config.Config, services Services, logger *slog.Logger, m *metrics.Metrics) (*HTTPServer, error) {
	if services.Recognizer == nil || services.Suggester == nil || services.Advisor == nil {
		return nil, fmt.Errorf("recognizer, suggester and advisor are required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	h := &HTTPServer{
		logger:    logger.With(slog.String("component", "http_server")),
		config:    cfg,
		services:  services,
		metrics:   m,
		startTime: time.Now(),
		stats:     Stats{Feedback: make(map[string]uint64)},
	}

	h.router = chi.NewRouter()
	h.setupRoutes(h.router)

	h.server = &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      h.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Recognizer.GetTimeoutDuration() + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h, nil
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(r chi.Router) {
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post(transport.PathTranscribe, h.withMetrics(transport.PathTranscribe, h.handleTranscribe))
	r.Post(transport.PathSuggestions, h.withMetrics(transport.PathSuggestions, h.handleSuggestions))
	r.Post(transport.PathAdvice, h.withMetrics(transport.PathAdvice, h.handleAdvice))
	r.Post(transport.PathFeedback, h.withMetrics(transport.PathFeedback, h.handleFeedback))

	r.Get("/health", h.withMetrics("/health", h.handleHealth))
	r.Get("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler())
	}

	r.Get("/", h.withMetrics("/", h.handleRoot))
}

// Handler returns the routed handler, for tests and embedding
func (h *HTTPServer) Handler() http.Handler {
	return h.router
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// GetStats returns a snapshot of the request counters
func (h *HTTPServer) GetStats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := h.stats
	stats.Uptime = time.Since(h.startTime).String()
	stats.Feedback = make(map[string]uint64, len(h.stats.Feedback))
	for k, v := range h.stats.Feedback {
		stats.Feedback[k] = v
	}
	return stats
}

func (h *HTTPServer) count(update func(s *Stats)) {
	h.mu.Lock()
	update(&h.stats)
	h.mu.Unlock()
}

// handleTranscribe implements POST /transcribe. Recognizer failures are
// answered with 200 and an error payload; only malformed uploads get 4xx.
func (h *HTTPServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	maxSize := h.config.HTTP.MaxUploadSize
	if r.ContentLength > maxSize {
		h.count(func(s *Stats) { s.RejectedUploads++ })
		writeJSON(w, http.StatusRequestEntityTooLarge, transport.ErrorResponse{Error: errTooLarge})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		h.count(func(s *Stats) { s.RejectedUploads++ })

		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, transport.ErrorResponse{Error: errTooLarge})
			return
		}
		writeJSON(w, http.StatusBadRequest, transport.ErrorResponse{Error: errNoAudio})
		return
	}

	file, _, err := r.FormFile(transport.AudioField)
	if err != nil {
		h.count(func(s *Stats) { s.RejectedUploads++ })

		// A part without a filename is parsed as a plain value
		if _, ok := r.MultipartForm.Value[transport.AudioField]; ok {
			writeJSON(w, http.StatusBadRequest, transport.ErrorResponse{Error: errNoFile})
			return
		}
		writeJSON(w, http.StatusBadRequest, transport.ErrorResponse{Error: errNoAudio})
		return
	}
	defer file.Close()

	wav, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusOK, transport.Transcription{Error: fmt.Sprintf("failed to read upload: %v", err)})
		return
	}

	logger := h.logger.With(slog.String("request_id", middleware.GetReqID(r.Context())))

	if err := audio.ValidateWAV(wav); err != nil {
		h.count(func(s *Stats) { s.RejectedUploads++ })
		logger.Warn("Invalid recording uploaded", slog.String("error", err.Error()))
		writeJSON(w, http.StatusOK, transport.Transcription{Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.config.Recognizer.GetTimeoutDuration())
	defer cancel()

	start := time.Now()
	text, err := h.services.Recognizer.Recognize(ctx, wav)
	duration := time.Since(start)

	h.count(func(s *Stats) { s.Transcriptions++ })

	switch {
	case errors.Is(err, backend.ErrNoSpeech):
		h.count(func(s *Stats) { s.NoSpeech++ })
		h.metrics.RecordRecognition("no_speech", duration.Seconds())
		logger.Info("No speech recognized", slog.Duration("duration", duration))
		writeJSON(w, http.StatusOK, transport.Transcription{Text: transport.NoSpeechText})

	case err != nil:
		h.count(func(s *Stats) { s.RecognitionErrors++ })
		h.metrics.RecordRecognition("error", duration.Seconds())
		logger.Error("Recognition failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusOK, transport.Transcription{Error: fmt.Sprintf(speechErrorFormat, err)})

	default:
		h.count(func(s *Stats) { s.Recognized++ })
		h.metrics.RecordRecognition("recognized", duration.Seconds())
		logger.Info("Recording transcribed",
			slog.Int("bytes", len(wav)),
			slog.Duration("duration", duration),
		)
		writeJSON(w, http.StatusOK, transport.Transcription{Text: text})
	}
}

// handleSuggestions implements POST /get_similar_suggestions
func (h *HTTPServer) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	var req transport.SuggestionsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	suggestions, err := h.services.Suggester.Suggest(r.Context(), req.Text)
	if err != nil {
		h.logger.Error("Suggestion failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, transport.ErrorResponse{Error: err.Error()})
		return
	}

	h.count(func(s *Stats) { s.Suggestions++ })
	writeJSON(w, http.StatusOK, transport.SuggestionsResponse{Suggestions: suggestions})
}

// handleAdvice implements POST /analyze_correction
func (h *HTTPServer) handleAdvice(w http.ResponseWriter, r *http.Request) {
	var req transport.AdviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	advice, err := h.services.Advisor.Advise(r.Context(), req.WrongText, req.CorrectText)
	if err != nil {
		h.logger.Error("Advice failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, transport.ErrorResponse{Error: err.Error()})
		return
	}

	h.count(func(s *Stats) { s.Advice++ })
	writeJSON(w, http.StatusOK, transport.AdviceResponse{Advice: advice})
}

// handleFeedback implements POST /submit_feedback
func (h *HTTPServer) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req transport.FeedbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	h.logger.Info("Received user feedback",
		slog.String("feedback", req.Feedback),
		slog.String("text", req.Text),
	)
	h.count(func(s *Stats) { s.Feedback[req.Feedback]++ })

	writeJSON(w, http.StatusOK, transport.FeedbackResponse{Status: "success", Message: FeedbackThanks})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": map[string]interface{}{
			"recognizer": map[string]interface{}{
				"provider": h.config.Recognizer.Provider,
				"language": h.config.Recognizer.Language,
			},
			"suggestions": map[string]interface{}{
				"provider": h.config.Suggestions.Provider,
			},
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.GetStats())
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	apiDoc := map[string]interface{}{
		"service": "Pronunciation Coach API",
		"version": serviceVersion,
		"endpoints": map[string]interface{}{
			"GET /":                               "API documentation",
			"GET /health":                         "Service health check",
			"GET /stats":                          "Request statistics",
			"GET /metrics":                        "Prometheus metrics",
			"POST " + transport.PathTranscribe:    "Transcribe a WAV recording (multipart field audio_data)",
			"POST " + transport.PathSuggestions:   "Two alternative phrasings for a text",
			"POST " + transport.PathAdvice:        "Pronunciation advice for a corrected text",
			"POST " + transport.PathFeedback:      "Report feedback on a transcription",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, transport.ErrorResponse{Error: errInvalidJSON})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
