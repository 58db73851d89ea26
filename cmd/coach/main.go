package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/toodo84/ai-pronunciation-app/internal/capture"
	"github.com/toodo84/ai-pronunciation-app/internal/config"
	"github.com/toodo84/ai-pronunciation-app/internal/console"
	"github.com/toodo84/ai-pronunciation-app/internal/feedback"
	"github.com/toodo84/ai-pronunciation-app/internal/logging"
	"github.com/toodo84/ai-pronunciation-app/internal/metrics"
	"github.com/toodo84/ai-pronunciation-app/internal/transcript"
	"github.com/toodo84/ai-pronunciation-app/internal/transport"
)

const (
	serviceName    = "pronunciation-coach"
	serviceVersion = "1.0.0"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (defaults are used when empty)")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address when set")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// The terminal belongs to the transcript
	if cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}
	logger := logging.New(cfg.Logging)

	logger.Info("Client starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("server_url", cfg.Client.ServerURL),
		slog.String("device", cfg.Capture.Device),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appMetrics := metrics.NewMetrics()
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, appMetrics, logger)
	}

	client, err := transport.NewClient(transport.Config{
		BaseURL:       cfg.Client.ServerURL,
		Timeout:       cfg.Client.GetTimeoutDuration(),
		MaxConcurrent: cfg.Client.MaxConcurrent,
		Logger:        logger,
		Metrics:       appMetrics,
	})
	if err != nil {
		logger.Error("Failed to create backend client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer client.Close()

	renderer := console.NewRenderer(os.Stdout)

	session := transcript.NewSession(logger)
	session.Subscribe(renderer.Handle)

	flow, err := feedback.New(feedback.Config{
		Session:     session,
		Transcriber: client,
		Suggester:   client,
		Advisor:     client,
		Reporter:    client,
		Logger:      logger,
		Metrics:     appMetrics,
		OnStatus:    renderer.Status,
	})
	if err != nil {
		logger.Error("Failed to create feedback flow", slog.String("error", err.Error()))
		os.Exit(1)
	}

	recorder := capture.New(newDevice(cfg.Capture, logger), capture.Options{
		FrameSize: cfg.Capture.FrameSize,
		Grace:     cfg.Capture.GetGraceDuration(),
		Logger:    logger,
		Metrics:   appMetrics,
		OnStatus:  renderer.Status,
	})

	controller := console.NewController(recorder, flow, session, renderer, logger)
	renderer.Message(console.MessageHelp)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	run(ctx, controller, lines, logger)

	// Abort backend requests still in flight
	stop()

	closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	controller.Close(closeCtx)

	stats := client.GetStats()
	logger.Info("Client stopped",
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("failed_requests", stats.FailedRequests),
	)
}

func run(ctx context.Context, controller *console.Controller, lines <-chan string, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			err := controller.Handle(ctx, line)
			if errors.Is(err, console.ErrQuit) {
				return
			}
			if err != nil {
				logger.Error("Input handling failed", slog.String("error", err.Error()))
			}
		}
	}
}

func newDevice(cfg config.CaptureConfig, logger *slog.Logger) capture.Device {
	if cfg.Device == "file" {
		logger.Info("Replaying recording as microphone", slog.String("file", cfg.File))
		return capture.NewFileDevice(cfg.File)
	}
	return capture.NewMicDevice(cfg.SampleRate, logger)
}

func serveMetrics(addr string, m *metrics.Metrics, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	logger.Info("Serving metrics", slog.String("address", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Metrics server error", slog.String("error", err.Error()))
	}
}
