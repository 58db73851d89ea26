package audio

import (
	"sync"
	"time"
)

// DefaultFrameSize is the number of samples delivered per capture tick
const DefaultFrameSize = 4096

// Frame is one capture tick worth of normalized samples in [-1.0, 1.0].
// Frames stored in a SampleBuffer are private copies and never modified.
type Frame []float32

// SampleBuffer accumulates frames in capture order together with a running
// sample count. The audio callback appends while the capture session
// finalizes, so all access goes through the mutex.
type SampleBuffer struct {
	frames     []Frame
	samples    int
	firstFrame time.Time
	lastFrame  time.Time

	mu sync.RWMutex
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	Frames    int           `json:"frames"`
	Samples   int           `json:"samples"`
	Span      time.Duration `json:"span"`
	LastFrame time.Time     `json:"last_frame"`
}

// NewSampleBuffer creates an empty buffer sized for roughly capacityFrames frames
func NewSampleBuffer(capacityFrames int) *SampleBuffer {
	if capacityFrames < 0 {
		capacityFrames = 0
	}
	return &SampleBuffer{
		frames: make([]Frame, 0, capacityFrames),
	}
}

// Append copies frame onto the end of the buffer. Empty frames are ignored.
func (b *SampleBuffer) Append(frame Frame) {
	if len(frame) == 0 {
		return
	}

	stored := make(Frame, len(frame))
	copy(stored, frame)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if len(b.frames) == 0 {
		b.firstFrame = now
	}
	b.lastFrame = now
	b.frames = append(b.frames, stored)
	b.samples += len(stored)
}

// Frames returns the stored frames in append order. The slice is a snapshot;
// the frames themselves are shared and must not be modified.
func (b *SampleBuffer) Frames() []Frame {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Frame, len(b.frames))
	copy(out, b.frames)
	return out
}

// Len returns the total number of samples across all frames
func (b *SampleBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.samples
}

// FrameCount returns the number of frames appended so far
func (b *SampleBuffer) FrameCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.frames)
}

// Reset discards all frames
func (b *SampleBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.frames = nil
	b.samples = 0
	b.firstFrame = time.Time{}
	b.lastFrame = time.Time{}
}

// Samples flattens the buffer into one contiguous slice in capture order
func (b *SampleBuffer) Samples() []float32 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]float32, 0, b.samples)
	for _, f := range b.frames {
		out = append(out, f...)
	}
	return out
}

// Stats returns current buffer statistics
func (b *SampleBuffer) Stats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return BufferStats{
		Frames:    len(b.frames),
		Samples:   b.samples,
		Span:      b.lastFrame.Sub(b.firstFrame),
		LastFrame: b.lastFrame,
	}
}

// Duration returns how much audio the buffer holds at the given sample rate
func (b *SampleBuffer) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Len()) * time.Second / time.Duration(sampleRate)
}
