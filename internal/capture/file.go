package capture

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// FileDevice replays a WAV file as if it were a microphone. Frames are
// delivered at real-time cadence unless Interval overrides it. When the file
// runs out the device goes silent; the trailing partial frame is dropped.
type FileDevice struct {
	Path     string
	Interval time.Duration
}

// NewFileDevice creates a device that replays the WAV file at path
func NewFileDevice(path string) *FileDevice {
	return &FileDevice{Path: path}
}

// Open decodes the file header and starts the replay goroutine
func (d *FileDevice) Open(frameSize int, onFrame FrameFunc) (Stream, error) {
	f, err := os.Open(d.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}

	streamer, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode audio file: %w", err)
	}

	interval := d.Interval
	if interval <= 0 {
		interval = time.Duration(frameSize) * time.Second / time.Duration(format.SampleRate)
	}

	s := &fileStream{
		streamer:   streamer,
		sampleRate: int(format.SampleRate),
		done:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
	go s.run(frameSize, interval, onFrame)

	return s, nil
}

type fileStream struct {
	streamer   beep.StreamSeekCloser
	sampleRate int
	done       chan struct{}
	finished   chan struct{}
	once       sync.Once
	err        error
}

func (s *fileStream) run(frameSize int, interval time.Duration, onFrame FrameFunc) {
	defer close(s.finished)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	stereo := make([][2]float64, frameSize)
	frame := make([]float32, frameSize)

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		n, ok := s.streamer.Stream(stereo)
		if !ok || n < frameSize {
			return
		}
		for i := 0; i < n; i++ {
			frame[i] = float32((stereo[i][0] + stereo[i][1]) / 2)
		}
		onFrame(frame)
	}
}

func (s *fileStream) SampleRate() int {
	return s.sampleRate
}

func (s *fileStream) Close() error {
	s.once.Do(func() {
		close(s.done)
		<-s.finished
		s.err = s.streamer.Close()
	})
	return s.err
}
