package capture

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/toodo84/ai-pronunciation-app/internal/audio"
)

func TestFramerEmitsFixedSizeFrames(t *testing.T) {
	var frames []audio.Frame
	fr := newFramer(4, func(f audio.Frame) {
		frames = append(frames, append(audio.Frame(nil), f...))
	})

	fr.write([]float32{1, 2, 3})
	if len(frames) != 0 {
		t.Fatalf("Expected no frame yet, got %d", len(frames))
	}

	fr.write([]float32{4, 5, 6, 7, 8, 9, 10})
	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	if frames[0][0] != 1 || frames[0][3] != 4 || frames[1][0] != 5 || frames[1][3] != 8 {
		t.Errorf("Unexpected frame contents: %v", frames)
	}
	if fr.buffered() != 2 {
		t.Errorf("Expected 2 buffered samples, got %d", fr.buffered())
	}
}

func TestFramerLargeWrite(t *testing.T) {
	count := 0
	fr := newFramer(3, func(f audio.Frame) {
		if len(f) != 3 {
			t.Errorf("Frame of size %d", len(f))
		}
		count++
	})

	fr.write(make([]float32, 10))
	if count != 3 || fr.buffered() != 1 {
		t.Errorf("Expected 3 frames and 1 buffered, got %d and %d", count, fr.buffered())
	}
}

func TestDecodeFloat32(t *testing.T) {
	raw := make([]byte, 12)
	for i, v := range []float32{0.25, -1, 0.5} {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}

	got := decodeFloat32(nil, raw, 3)
	if len(got) != 3 || got[0] != 0.25 || got[1] != -1 || got[2] != 0.5 {
		t.Errorf("Unexpected samples: %v", got)
	}

	// Frame count larger than the buffer is truncated
	if got := decodeFloat32(nil, raw[:8], 3); len(got) != 2 {
		t.Errorf("Expected 2 samples, got %d", len(got))
	}
}

func writeTestWAV(t *testing.T, frames []audio.Frame, rate int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.wav")
	if err := os.WriteFile(path, audio.EncodeWAV(frames, rate), 0644); err != nil {
		t.Fatalf("Failed to write WAV: %v", err)
	}
	return path
}

func TestFileDeviceReplaysFrames(t *testing.T) {
	path := writeTestWAV(t, []audio.Frame{
		constFrame(4, 0.25),
		constFrame(4, -0.25),
		constFrame(2, 0.5),
	}, 8000)

	var (
		mu     sync.Mutex
		frames []audio.Frame
	)
	dev := &FileDevice{Path: path, Interval: time.Millisecond}
	stream, err := dev.Open(4, func(f audio.Frame) {
		mu.Lock()
		defer mu.Unlock()
		frames = append(frames, append(audio.Frame(nil), f...))
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if stream.SampleRate() != 8000 {
		t.Errorf("Expected sample rate 8000, got %d", stream.SampleRate())
	}

	time.Sleep(50 * time.Millisecond)
	if err := stream.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()

	// Ten samples in fours: the trailing two are dropped
	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	const tolerance = 2.0 / 32768
	if math.Abs(float64(frames[0][0]-0.25)) > tolerance {
		t.Errorf("Expected ~0.25, got %v", frames[0][0])
	}
	if math.Abs(float64(frames[1][3]+0.25)) > tolerance {
		t.Errorf("Expected ~-0.25, got %v", frames[1][3])
	}
}

func TestFileDeviceMissingFile(t *testing.T) {
	dev := NewFileDevice(filepath.Join(t.TempDir(), "missing.wav"))
	if _, err := dev.Open(4, func(audio.Frame) {}); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestFileDeviceThroughCapture(t *testing.T) {
	path := writeTestWAV(t, []audio.Frame{constFrame(8, 0.1), constFrame(8, 0.2)}, 16000)

	c := New(&FileDevice{Path: path, Interval: time.Millisecond}, Options{FrameSize: 8})
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	rec, err := c.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if rec == nil || rec.Frames != 2 || rec.SampleRate != 16000 {
		t.Errorf("Unexpected recording: %+v", rec)
	}
}
