package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/toodo84/ai-pronunciation-app/internal/audio"
)

// SpeechDetector reports whether PCM samples contain voice activity
type SpeechDetector interface {
	HasSpeech(samples []int16) bool
}

// GatedRecognizer answers silent recordings with ErrNoSpeech and passes the
// rest to the wrapped recognizer
type GatedRecognizer struct {
	next     Recognizer
	detector SpeechDetector
	logger   *slog.Logger
}

// NewGatedRecognizer wraps next with a silence check
func NewGatedRecognizer(next Recognizer, detector SpeechDetector, logger *slog.Logger) *GatedRecognizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &GatedRecognizer{
		next:     next,
		detector: detector,
		logger:   logger.With(slog.String("component", "speech_gate")),
	}
}

// Recognize decodes the recording and skips recognition when it is silent
func (g *GatedRecognizer) Recognize(ctx context.Context, wav []byte) (string, error) {
	samples, sampleRate, err := audio.DecodeWAV(wav)
	if err != nil {
		return "", fmt.Errorf("invalid WAV data: %w", err)
	}

	if !g.detector.HasSpeech(samples) {
		g.logger.Debug("Skipping silent recording",
			slog.Int("samples", len(samples)),
			slog.Int("sample_rate", sampleRate),
		)
		return "", ErrNoSpeech
	}

	return g.next.Recognize(ctx, wav)
}
