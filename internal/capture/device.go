package capture

import (
	"github.com/toodo84/ai-pronunciation-app/internal/audio"
)

// FrameFunc receives one fixed-size frame per capture tick. The frame is only
// valid for the duration of the call.
type FrameFunc func(frame audio.Frame)

// Device is an audio input that can be opened for a single capture session
type Device interface {
	// Open acquires the input and starts delivering frames of frameSize
	// samples to onFrame, possibly from another goroutine.
	Open(frameSize int, onFrame FrameFunc) (Stream, error)
}

// Stream is an open device session
type Stream interface {
	// SampleRate returns the rate the device actually runs at
	SampleRate() int
	// Close halts delivery and releases the device. It is safe to call more
	// than once.
	Close() error
}

// framer cuts arbitrarily sized callback buffers into fixed-size frames.
// A trailing partial frame is never emitted.
type framer struct {
	size    int
	pending audio.Frame
	emit    FrameFunc
}

func newFramer(size int, emit FrameFunc) *framer {
	return &framer{
		size:    size,
		pending: make(audio.Frame, 0, size),
		emit:    emit,
	}
}

// write appends samples and emits every frame they complete
func (f *framer) write(samples []float32) {
	for len(samples) > 0 {
		n := f.size - len(f.pending)
		if n > len(samples) {
			n = len(samples)
		}
		f.pending = append(f.pending, samples[:n]...)
		samples = samples[n:]

		if len(f.pending) == f.size {
			f.emit(f.pending)
			f.pending = f.pending[:0]
		}
	}
}

// buffered returns how many samples are waiting for a full frame
func (f *framer) buffered() int {
	return len(f.pending)
}
