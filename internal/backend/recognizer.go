package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/toodo84/ai-pronunciation-app/internal/audio"
)

// ErrNoSpeech is returned when the audio contains nothing recognizable
var ErrNoSpeech = errors.New("no speech recognized")

// Recognizer converts a 16-bit mono WAV recording to text
type Recognizer interface {
	Recognize(ctx context.Context, wav []byte) (string, error)
}

// GoogleRecognizer uses Google Cloud Speech-to-Text synchronous recognition.
// Credentials come from GOOGLE_APPLICATION_CREDENTIALS.
type GoogleRecognizer struct {
	client   *speech.Client
	language string
	logger   *slog.Logger
}

// NewGoogleRecognizer creates a Speech-to-Text client for language
func NewGoogleRecognizer(ctx context.Context, language string, logger *slog.Logger) (*GoogleRecognizer, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &GoogleRecognizer{
		client:   client,
		language: language,
		logger:   logger.With(slog.String("component", "google_recognizer")),
	}, nil
}

// Recognize sends the PCM payload as LINEAR16 at the file's sample rate
func (g *GoogleRecognizer) Recognize(ctx context.Context, wav []byte) (string, error) {
	req, err := recognizeRequest(wav, g.language)
	if err != nil {
		return "", err
	}

	resp, err := g.client.Recognize(ctx, req)
	if err != nil {
		return "", fmt.Errorf("recognize request failed: %w", err)
	}

	var parts []string
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		parts = append(parts, alts[0].GetTranscript())
	}

	text := strings.TrimSpace(strings.Join(parts, ""))
	if text == "" {
		return "", ErrNoSpeech
	}

	g.logger.Debug("Recognition completed", slog.Int("results", len(parts)))
	return text, nil
}

// Close releases the underlying gRPC connection
func (g *GoogleRecognizer) Close() error {
	return g.client.Close()
}

// recognizeRequest builds the request for a validated WAV file
func recognizeRequest(wav []byte, language string) (*speechpb.RecognizeRequest, error) {
	info, err := audio.GetWAVInfo(wav)
	if err != nil {
		return nil, fmt.Errorf("invalid WAV data: %w", err)
	}

	return &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:          speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:   int32(info.SampleRate),
			AudioChannelCount: int32(info.Channels),
			LanguageCode:      language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{
				Content: wav[audio.WAVHeaderSize:],
			},
		},
	}, nil
}

// StaticRecognizer answers every recording with the same text. An empty
// Text behaves like unrecognizable speech.
type StaticRecognizer struct {
	Text string
}

// Recognize returns the configured text
func (s StaticRecognizer) Recognize(ctx context.Context, wav []byte) (string, error) {
	if _, err := audio.GetWAVInfo(wav); err != nil {
		return "", fmt.Errorf("invalid WAV data: %w", err)
	}
	if s.Text == "" {
		return "", ErrNoSpeech
	}
	return s.Text, nil
}
