package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/toodo84/ai-pronunciation-app/internal/backend"
	"github.com/toodo84/ai-pronunciation-app/internal/config"
	"github.com/toodo84/ai-pronunciation-app/internal/logging"
	"github.com/toodo84/ai-pronunciation-app/internal/metrics"
	"github.com/toodo84/ai-pronunciation-app/internal/server"
	"github.com/toodo84/ai-pronunciation-app/internal/vad"
)

const (
	serviceName    = "pronunciation-coach-server"
	serviceVersion = "1.0.0"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (defaults are used when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.HTTP.Addr()),
		slog.Int64("max_upload_size", cfg.HTTP.MaxUploadSize),
		slog.String("recognizer", cfg.Recognizer.Provider),
		slog.String("language", cfg.Recognizer.Language),
		slog.String("suggestions", cfg.Suggestions.Provider),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	recognizer, closeRecognizer, err := newRecognizer(ctx, cfg.Recognizer, logger)
	if err != nil {
		logger.Error("Failed to create recognizer", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeRecognizer()

	var detector *vad.Detector
	if cfg.Recognizer.SilenceThreshold > 0 {
		detector, err = vad.NewDetector(cfg.Recognizer.SilenceThreshold, vad.DefaultWindowSize, vad.DefaultMinVoiceWindows)
		if err != nil {
			logger.Error("Failed to create speech detector", slog.String("error", err.Error()))
			os.Exit(1)
		}
		recognizer = backend.NewGatedRecognizer(recognizer, detector, logger)
		logger.Info("Silence gate enabled", slog.Float64("threshold", float64(cfg.Recognizer.SilenceThreshold)))
	}

	httpServer, err := server.NewHTTPServer(cfg, server.Services{
		Recognizer: recognizer,
		Suggester:  newSuggester(cfg.Suggestions, logger),
		Advisor:    backend.NewPinyinAdvisor(),
	}, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	stats := httpServer.GetStats()
	logger.Info("Final server statistics",
		slog.Uint64("transcriptions", stats.Transcriptions),
		slog.Uint64("recognized", stats.Recognized),
		slog.Uint64("no_speech", stats.NoSpeech),
		slog.Uint64("recognition_errors", stats.RecognitionErrors),
		slog.Uint64("suggestions", stats.Suggestions),
		slog.Uint64("advice", stats.Advice),
	)

	if detector != nil {
		vadStats := detector.GetStats()
		logger.Info("Final silence gate statistics",
			slog.Uint64("recordings", vadStats.Recordings),
			slog.Uint64("silent_recordings", vadStats.SilentRecordings),
			slog.Float64("voice_percentage", vadStats.VoicePercentage),
		)
	}

	logger.Info("Service stopped")
}

// newRecognizer selects the speech backend. The returned func releases it.
func newRecognizer(ctx context.Context, cfg config.RecognizerConfig, logger *slog.Logger) (backend.Recognizer, func(), error) {
	if cfg.Provider == "static" {
		logger.Warn("Using static recognizer", slog.String("text", cfg.StaticText))
		return backend.StaticRecognizer{Text: cfg.StaticText}, func() {}, nil
	}

	// The Speech client reads credentials from the environment
	if cfg.CredentialsFile != "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", cfg.CredentialsFile)
	}

	recognizer, err := backend.NewGoogleRecognizer(ctx, cfg.Language, logger)
	if err != nil {
		return nil, nil, err
	}

	return recognizer, func() {
		if err := recognizer.Close(); err != nil {
			logger.Warn("Failed to close recognizer", slog.String("error", err.Error()))
		}
	}, nil
}

func newSuggester(cfg config.SuggestionsConfig, logger *slog.Logger) backend.Suggester {
	if cfg.Provider == "openai" {
		logger.Info("Using OpenAI suggestions", slog.String("model", cfg.Model))
		return backend.NewOpenAISuggester(cfg.APIKey, cfg.BaseURL, cfg.Model, logger)
	}
	return backend.RuleSuggester{}
}
