package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MaxGrace bounds the capture grace delay
const MaxGrace = time.Second

// Config represents the complete application configuration
type Config struct {
	Capture     CaptureConfig     `yaml:"capture"`
	Client      ClientConfig      `yaml:"client"`
	HTTP        HTTPConfig        `yaml:"http"`
	Recognizer  RecognizerConfig  `yaml:"recognizer"`
	Suggestions SuggestionsConfig `yaml:"suggestions"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// CaptureConfig contains microphone capture parameters
type CaptureConfig struct {
	Device     string `yaml:"device"`      // "mic" or "file"
	File       string `yaml:"file"`        // WAV replayed when device is "file"
	SampleRate int    `yaml:"sample_rate"` // requested device rate, 0 = device default
	FrameSize  int    `yaml:"frame_size"`  // samples per callback tick
	GraceMs    int    `yaml:"grace_ms"`    // wait before finalizing on stop
}

// ClientConfig contains settings for calls to the companion backend
type ClientConfig struct {
	ServerURL     string `yaml:"server_url"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port          int    `yaml:"port"`
	Address       string `yaml:"address"`
	MaxUploadSize int64  `yaml:"max_upload_size"` // bytes
}

// RecognizerConfig selects the speech recognition backend
type RecognizerConfig struct {
	Provider        string `yaml:"provider"` // "google" or "static"
	Language        string `yaml:"language"`
	CredentialsFile string `yaml:"credentials_file"`
	StaticText      string `yaml:"static_text"`
	Timeout         int    `yaml:"timeout"` // seconds
	// Uploads whose energy stays below this level skip recognition, 0 disables
	SilenceThreshold float32 `yaml:"silence_threshold"`
}

// SuggestionsConfig selects how alternative phrasings are produced
type SuggestionsConfig struct {
	Provider string `yaml:"provider"` // "rules" or "openai"
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration usable without a file
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			Device:    "mic",
			FrameSize: 4096,
		},
		Client: ClientConfig{
			ServerURL:     "http://localhost:5001",
			Timeout:       30,
			MaxConcurrent: 4,
		},
		HTTP: HTTPConfig{
			Port:          5001,
			Address:       "0.0.0.0",
			MaxUploadSize: 10 << 20,
		},
		Recognizer: RecognizerConfig{
			Provider:   "static",
			Language:   "zh-TW",
			StaticText:       "你好",
			Timeout:          30,
			SilenceThreshold: 0.02,
		},
		Suggestions: SuggestionsConfig{
			Provider: "rules",
			Model:    "gpt-4o-mini",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file. An empty path yields the
// defaults. Values from a .env file and the environment are applied on top.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := LoadEnv(); err != nil {
		return nil, err
	}
	config.ApplyEnv(os.Getenv)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// LoadEnv loads a .env file from the working directory when one exists.
// Variables already set in the environment win.
func LoadEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// ApplyEnv overrides selected fields from environment variables
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("COACH_SERVER_URL"); v != "" {
		c.Client.ServerURL = v
	}
	if v := getenv("COACH_AUDIO_FILE"); v != "" {
		c.Capture.Device = "file"
		c.Capture.File = v
	}
	if v := getenv("OPENAI_API_KEY"); v != "" && c.Suggestions.APIKey == "" {
		c.Suggestions.APIKey = v
	}
	if v := getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" && c.Recognizer.CredentialsFile == "" {
		c.Recognizer.CredentialsFile = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Client.Validate(); err != nil {
		return fmt.Errorf("client config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Recognizer.Validate(); err != nil {
		return fmt.Errorf("recognizer config: %w", err)
	}

	if err := c.Suggestions.Validate(); err != nil {
		return fmt.Errorf("suggestions config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates capture configuration
func (a *CaptureConfig) Validate() error {
	switch a.Device {
	case "mic":
	case "file":
		if a.File == "" {
			return fmt.Errorf("file cannot be empty when device is 'file'")
		}
	default:
		return fmt.Errorf("device must be 'mic' or 'file', got '%s'", a.Device)
	}

	if a.SampleRate < 0 {
		return fmt.Errorf("sample_rate cannot be negative, got %d", a.SampleRate)
	}

	if a.FrameSize < 256 || a.FrameSize > 16384 {
		return fmt.Errorf("frame_size must be between 256 and 16384 samples, got %d", a.FrameSize)
	}

	if a.GraceMs < 0 || time.Duration(a.GraceMs)*time.Millisecond > MaxGrace {
		return fmt.Errorf("grace_ms must be between 0 and %d, got %d", MaxGrace.Milliseconds(), a.GraceMs)
	}

	return nil
}

// Validate validates client configuration
func (cl *ClientConfig) Validate() error {
	if cl.ServerURL == "" {
		return fmt.Errorf("server_url cannot be empty")
	}

	if !strings.HasPrefix(cl.ServerURL, "http://") && !strings.HasPrefix(cl.ServerURL, "https://") {
		return fmt.Errorf("server_url must be an http(s) URL, got '%s'", cl.ServerURL)
	}

	if cl.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", cl.Timeout)
	}

	if cl.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", cl.MaxConcurrent)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("http address cannot be empty")
	}

	if h.MaxUploadSize < 1024 {
		return fmt.Errorf("max_upload_size must be at least 1024 bytes, got %d", h.MaxUploadSize)
	}

	return nil
}

// Validate validates recognizer configuration
func (r *RecognizerConfig) Validate() error {
	switch r.Provider {
	case "google", "static":
	default:
		return fmt.Errorf("provider must be 'google' or 'static', got '%s'", r.Provider)
	}

	if r.Language == "" {
		return fmt.Errorf("language cannot be empty")
	}

	if r.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", r.Timeout)
	}

	if r.SilenceThreshold < 0 || r.SilenceThreshold > 1 {
		return fmt.Errorf("silence_threshold must be between 0 and 1, got %f", r.SilenceThreshold)
	}

	return nil
}

// Validate validates suggestion configuration
func (s *SuggestionsConfig) Validate() error {
	switch s.Provider {
	case "rules":
	case "openai":
		if s.APIKey == "" {
			return fmt.Errorf("api_key cannot be empty when provider is 'openai'")
		}
		if s.Model == "" {
			return fmt.Errorf("model cannot be empty when provider is 'openai'")
		}
	default:
		return fmt.Errorf("provider must be 'rules' or 'openai', got '%s'", s.Provider)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetGraceDuration returns the capture grace delay as a time.Duration
func (a *CaptureConfig) GetGraceDuration() time.Duration {
	return time.Duration(a.GraceMs) * time.Millisecond
}

// GetTimeoutDuration returns the client request timeout as a time.Duration
func (cl *ClientConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(cl.Timeout) * time.Second
}

// GetTimeoutDuration returns the recognition timeout as a time.Duration
func (r *RecognizerConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}

// Addr returns the listen address of the HTTP server
func (h *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}
