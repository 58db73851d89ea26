package vad

import (
	"fmt"
	"math"
	"sync"
)

// Defaults for NewDetector
const (
	DefaultThreshold       = 0.02
	DefaultWindowSize      = 512 // 32ms at 16kHz
	DefaultMinVoiceWindows = 3
)

// Energy that maps to probability 1
const fullScaleRMS = 10000.0

// Detector classifies fixed windows of samples as voice or silence
type Detector struct {
	threshold  float32
	windowSize int
	minWindows int

	// Statistics
	recordings       uint64
	silentRecordings uint64
	totalWindows     uint64
	voiceWindows     uint64

	mu sync.Mutex
}

// Segment is a run of consecutive voice windows, in sample offsets
type Segment struct {
	Start   int `json:"start"`
	End     int `json:"end"`
	Windows int `json:"windows"`
}

// Stats represents detector statistics
type Stats struct {
	Threshold        float32 `json:"threshold"`
	Recordings       uint64  `json:"recordings"`
	SilentRecordings uint64  `json:"silent_recordings"`
	TotalWindows     uint64  `json:"total_windows"`
	VoiceWindows     uint64  `json:"voice_windows"`
	VoicePercentage  float64 `json:"voice_percentage"`
}

// NewDetector creates a detector. A recording has speech when at least
// minWindows consecutive windows reach threshold.
func NewDetector(threshold float32, windowSize, minWindows int) (*Detector, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}

	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", windowSize)
	}

	if minWindows <= 0 {
		return nil, fmt.Errorf("min voice windows must be positive, got %d", minWindows)
	}

	return &Detector{
		threshold:  threshold,
		windowSize: windowSize,
		minWindows: minWindows,
	}, nil
}

// Probability returns the voice probability of one window: its RMS energy
// normalized to [0, 1]
func Probability(samples []int16) float32 {
	if len(samples) == 0 {
		return 0
	}

	var energy float64
	for _, sample := range samples {
		energy += float64(sample) * float64(sample)
	}
	energy = math.Sqrt(energy / float64(len(samples)))

	normalized := energy / fullScaleRMS
	if normalized > 1.0 {
		normalized = 1.0
	}
	return float32(normalized)
}

// Segments splits samples into windows and returns the voice segments. A
// trailing partial window is evaluated on its own.
func (d *Detector) Segments(samples []int16) []Segment {
	var segments []Segment
	var current *Segment
	var total, voice uint64

	for start := 0; start < len(samples); start += d.windowSize {
		end := start + d.windowSize
		if end > len(samples) {
			end = len(samples)
		}

		total++
		if Probability(samples[start:end]) >= d.threshold {
			voice++
			if current == nil {
				current = &Segment{Start: start}
			}
			current.End = end
			current.Windows++
			continue
		}

		if current != nil {
			segments = append(segments, *current)
			current = nil
		}
	}

	// Close any remaining segment
	if current != nil {
		segments = append(segments, *current)
	}

	d.mu.Lock()
	d.totalWindows += total
	d.voiceWindows += voice
	d.mu.Unlock()

	return segments
}

// HasSpeech reports whether any segment is long enough to be speech
func (d *Detector) HasSpeech(samples []int16) bool {
	speech := false
	for _, s := range d.Segments(samples) {
		if s.Windows >= d.minWindows {
			speech = true
			break
		}
	}

	d.mu.Lock()
	d.recordings++
	if !speech {
		d.silentRecordings++
	}
	d.mu.Unlock()

	return speech
}

// GetStats returns current detector statistics
func (d *Detector) GetStats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	voicePercentage := float64(0)
	if d.totalWindows > 0 {
		voicePercentage = float64(d.voiceWindows) / float64(d.totalWindows) * 100
	}

	return Stats{
		Threshold:        d.threshold,
		Recordings:       d.recordings,
		SilentRecordings: d.silentRecordings,
		TotalWindows:     d.totalWindows,
		VoiceWindows:     d.voiceWindows,
		VoicePercentage:  voicePercentage,
	}
}
