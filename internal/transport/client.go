package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/toodo84/ai-pronunciation-app/internal/metrics"
)

// Client talks to the pronunciation backend. Requests are never retried; a
// failed exchange is reported to the caller as *Error.
type Client struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{}
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains backend client configuration
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	MaxConcurrent int
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// NewClient creates a new backend HTTP client
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
		logger:     logger.With(slog.String("component", "transport")),
		metrics:    config.Metrics,
	}, nil
}

// Transcribe uploads a WAV recording. A backend error payload is returned as
// Transcription.Error, not as a Go error. A response with neither text nor
// error yields an empty Transcription.
func (c *Client) Transcribe(ctx context.Context, wav []byte) (Transcription, error) {
	var result Transcription

	body, contentType, err := createMultipartBody(wav)
	if err != nil {
		return result, &Error{Exchange: ExchangeTranscribe, Err: err}
	}

	status, respBody, err := c.do(ctx, ExchangeTranscribe, PathTranscribe, contentType, body)
	if err != nil {
		return result, err
	}

	// The backend answers recognizer and validation failures with an error
	// payload, sometimes alongside a 4xx status. Both are data for the caller.
	if jsonErr := json.Unmarshal(respBody, &result); jsonErr != nil {
		return Transcription{}, c.fail(ExchangeTranscribe, status, fmt.Errorf("failed to parse response JSON: %w", jsonErr))
	}
	if !isSuccess(status) && result.Error == "" {
		return Transcription{}, c.fail(ExchangeTranscribe, status, errors.New(snippet(respBody)))
	}
	c.succeed()
	if result.Error != "" {
		c.logger.Info("Backend reported transcription error", slog.String("error", result.Error))
	}
	return result, nil
}

// Suggest asks for two alternative phrasings of text
func (c *Client) Suggest(ctx context.Context, text string) ([]string, error) {
	var resp SuggestionsResponse
	if err := c.postJSON(ctx, ExchangeSuggest, PathSuggestions, SuggestionsRequest{Text: text}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Suggestions) != 2 {
		c.recordFailure()
		return nil, &Error{
			Exchange: ExchangeSuggest,
			Err:      fmt.Errorf("%w, got %d", ErrUnexpectedSuggestions, len(resp.Suggestions)),
		}
	}

	c.succeed()
	return resp.Suggestions, nil
}

// Advise sends a correction pair and returns pronunciation advice
func (c *Client) Advise(ctx context.Context, wrongText, correctText string) (string, error) {
	var resp AdviceResponse
	req := AdviceRequest{WrongText: wrongText, CorrectText: correctText}
	if err := c.postJSON(ctx, ExchangeAdvise, PathAdvice, req, &resp); err != nil {
		return "", err
	}

	c.succeed()
	return resp.Advice, nil
}

// ReportFeedback records the user's confidence choice for a transcription
func (c *Client) ReportFeedback(ctx context.Context, feedback, text string) error {
	var resp FeedbackResponse
	req := FeedbackRequest{Feedback: feedback, Text: text}
	if err := c.postJSON(ctx, ExchangeFeedback, PathFeedback, req, &resp); err != nil {
		return err
	}

	c.succeed()
	return nil
}

// postJSON sends payload and decodes a 2xx JSON answer into out
func (c *Client) postJSON(ctx context.Context, exchange, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return &Error{Exchange: exchange, Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	status, respBody, err := c.do(ctx, exchange, path, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}

	if !isSuccess(status) {
		var errResp ErrorResponse
		msg := snippet(respBody)
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return c.fail(exchange, status, errors.New(msg))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return c.fail(exchange, status, fmt.Errorf("failed to parse response JSON: %w", err))
	}

	return nil
}

// do performs a single HTTP request under the concurrency limit and returns
// the status and body. A Go error here is always a transport failure.
func (c *Client) do(ctx context.Context, exchange, path, contentType string, body io.Reader) (int, []byte, error) {
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return 0, nil, &Error{Exchange: exchange, Err: ctx.Err()}
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, body)
	if err != nil {
		return 0, nil, c.fail(exchange, 0, fmt.Errorf("failed to create HTTP request: %w", err))
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "Pronunciation-Coach/1.0")
	httpReq.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, c.fail(exchange, 0, fmt.Errorf("HTTP request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, c.fail(exchange, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err))
	}

	elapsed := time.Since(startTime)
	c.updateAvgResponseTime(elapsed)
	c.metrics.RecordExchange(exchange, outcomeLabel(resp.StatusCode), elapsed.Seconds())

	c.logger.Debug("Backend exchange completed",
		slog.String("exchange", exchange),
		slog.String("request_id", requestID),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", elapsed),
	)

	return resp.StatusCode, respBody, nil
}

// createMultipartBody creates the multipart/form-data upload of a recording
func createMultipartBody(wav []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile(AudioField, AudioFilename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := fileWriter.Write(wav); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

func (c *Client) fail(exchange string, status int, err error) error {
	c.recordFailure()
	c.logger.Warn("Backend exchange failed",
		slog.String("exchange", exchange),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)
	if status == 0 {
		c.metrics.RecordExchange(exchange, "failure", 0)
	}
	return &Error{Exchange: exchange, StatusCode: status, Err: err}
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) succeed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func outcomeLabel(status int) string {
	switch {
	case isSuccess(status):
		return "success"
	case status >= 500:
		return "server_error"
	default:
		return "client_error"
	}
}

// snippet shortens a response body for error messages
func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

// Close waits for in-flight requests to finish
func (c *Client) Close() error {
	for i := 0; i < c.config.MaxConcurrent; i++ {
		c.semaphore <- struct{}{}
	}
	return nil
}
