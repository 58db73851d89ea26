package audio

import (
	"sync"
	"testing"
	"time"
)

func TestNewSampleBuffer(t *testing.T) {
	buffer := NewSampleBuffer(16)

	if buffer == nil {
		t.Fatal("NewSampleBuffer returned nil")
	}

	if buffer.Len() != 0 {
		t.Errorf("Expected initial size 0, got %d", buffer.Len())
	}

	if buffer.FrameCount() != 0 {
		t.Errorf("Expected 0 frames, got %d", buffer.FrameCount())
	}
}

func TestAppendKeepsOrderAndCount(t *testing.T) {
	buffer := NewSampleBuffer(0)

	buffer.Append(Frame{0.1, 0.2})
	buffer.Append(Frame{0.3})
	buffer.Append(Frame{0.4, 0.5, 0.6})

	if buffer.Len() != 6 {
		t.Errorf("Expected 6 samples, got %d", buffer.Len())
	}

	if buffer.FrameCount() != 3 {
		t.Errorf("Expected 3 frames, got %d", buffer.FrameCount())
	}

	want := []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}
	got := buffer.Samples()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sample %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestAppendCopiesFrame(t *testing.T) {
	buffer := NewSampleBuffer(1)

	frame := Frame{0.5, -0.5}
	buffer.Append(frame)
	frame[0] = 1

	if got := buffer.Frames()[0][0]; got != 0.5 {
		t.Errorf("Stored frame changed after caller mutation: got %v", got)
	}
}

func TestAppendIgnoresEmptyFrame(t *testing.T) {
	buffer := NewSampleBuffer(1)
	buffer.Append(nil)
	buffer.Append(Frame{})

	if buffer.FrameCount() != 0 {
		t.Errorf("Expected empty frames to be ignored, got %d frames", buffer.FrameCount())
	}
}

func TestReset(t *testing.T) {
	buffer := NewSampleBuffer(1)
	buffer.Append(make(Frame, 128))
	buffer.Reset()

	stats := buffer.Stats()
	if stats.Frames != 0 || stats.Samples != 0 {
		t.Errorf("Expected empty buffer after reset, got %+v", stats)
	}
}

func TestDuration(t *testing.T) {
	buffer := NewSampleBuffer(2)
	buffer.Append(make(Frame, 4000))
	buffer.Append(make(Frame, 4000))

	if got := buffer.Duration(8000); got != time.Second {
		t.Errorf("Expected 1s, got %v", got)
	}

	if got := buffer.Duration(0); got != 0 {
		t.Errorf("Expected 0 for invalid rate, got %v", got)
	}
}

func TestConcurrentAppend(t *testing.T) {
	buffer := NewSampleBuffer(0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buffer.Append(make(Frame, 32))
				_ = buffer.Len()
			}
		}()
	}
	wg.Wait()

	if buffer.FrameCount() != 800 {
		t.Errorf("Expected 800 frames, got %d", buffer.FrameCount())
	}
	if buffer.Len() != 800*32 {
		t.Errorf("Expected %d samples, got %d", 800*32, buffer.Len())
	}
}

func TestEncodeBuffer(t *testing.T) {
	buffer := NewSampleBuffer(2)
	buffer.Append(Frame{1, -1})

	data := EncodeBuffer(buffer, 22050)
	samples, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != 22050 {
		t.Errorf("Expected sample rate 22050, got %d", rate)
	}
	if len(samples) != 2 || samples[0] != 32767 || samples[1] != -32768 {
		t.Errorf("Unexpected samples %v", samples)
	}
}
