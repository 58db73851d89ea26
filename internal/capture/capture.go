package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/toodo84/ai-pronunciation-app/internal/audio"
	"github.com/toodo84/ai-pronunciation-app/internal/metrics"
)

// MaxGrace is the upper bound on the delay between a stop request and
// finalization of the buffer
const MaxGrace = time.Second

// Status texts shown to the user while recording
const (
	StatusRecording         = "正在錄音..."
	StatusProcessing        = "處理中..."
	StatusDeviceUnavailable = "無法存取麥克風。"
)

// ErrDeviceUnavailable is returned by Start when no input device can be
// acquired, either because permission was denied or none exists
var ErrDeviceUnavailable = errors.New("audio input device unavailable")

// State describes where the capture lifecycle currently is
type State int

const (
	// StateIdle - no session; Start may acquire the device.
	StateIdle State = iota
	// StateRecording - a session is open and frames are appended.
	StateRecording
	// StateStopping - stop was requested and the grace window is running.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRecording:
		return "RECORDING"
	case StateStopping:
		return "STOPPING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Recording is the finalized result of one capture session
type Recording struct {
	WAV        []byte
	SampleRate int
	Samples    int
	Frames     int
	Duration   time.Duration
}

// Options configures a Capture
type Options struct {
	FrameSize int
	Grace     time.Duration
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	// OnStatus receives user-visible status text
	OnStatus func(status string)
}

// Capture owns the microphone lifecycle. At most one session exists at a
// time; it is created by Start and torn down by Stop.
type Capture struct {
	device Device
	opts   Options
	logger *slog.Logger

	state  State
	active *session
	mu     sync.Mutex
}

// session is one open device plus the buffer it feeds
type session struct {
	stream     Stream
	buffer     *audio.SampleBuffer
	sampleRate int
	started    time.Time

	accepting bool
	mu        sync.Mutex
}

// push appends a frame unless the stop request has taken effect. The check
// and the append happen under one lock so no frame lands after halt returns.
func (s *session) push(frame audio.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.accepting {
		return false
	}
	s.buffer.Append(frame)
	return true
}

// halt stops accepting frames
func (s *session) halt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepting = false
}

// New creates a Capture for the given device
func New(device Device, opts Options) *Capture {
	if opts.FrameSize <= 0 {
		opts.FrameSize = audio.DefaultFrameSize
	}
	if opts.Grace < 0 {
		opts.Grace = 0
	}
	if opts.Grace > MaxGrace {
		opts.Grace = MaxGrace
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Capture{
		device: device,
		opts:   opts,
		logger: logger.With(slog.String("component", "capture")),
	}
}

// Start acquires the device and begins accumulating frames. It is a no-op
// while a session is recording or stopping.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		c.logger.Debug("Start ignored, capture already active", slog.String("state", c.state.String()))
		return nil
	}

	sess := &session{
		buffer:    audio.NewSampleBuffer(64),
		accepting: true,
	}

	stream, err := c.device.Open(c.opts.FrameSize, func(frame audio.Frame) {
		c.opts.Metrics.RecordFrame(sess.push(frame))
	})
	if err != nil {
		c.opts.Metrics.RecordDeviceError()
		c.logger.Error("Failed to open audio input", slog.String("error", err.Error()))
		c.status(StatusDeviceUnavailable)
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	sess.stream = stream
	sess.sampleRate = stream.SampleRate()
	sess.started = time.Now()

	c.active = sess
	c.state = StateRecording
	c.opts.Metrics.RecordRecordingStarted()

	c.logger.Info("Recording started",
		slog.Int("sample_rate", sess.sampleRate),
		slog.Int("frame_size", c.opts.FrameSize),
	)
	c.status(StatusRecording)

	return nil
}

// Stop ends the active session and returns its recording. Calling it with no
// active session, or while another Stop is finishing, returns nil. A session
// that captured no frames also returns nil and nothing is encoded.
//
// Frames keep arriving during the grace delay; ctx cancellation cuts the
// delay short. The device is always released before Stop returns.
func (c *Capture) Stop(ctx context.Context) (*Recording, error) {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return nil, nil
	}
	sess := c.active
	c.state = StateStopping
	c.mu.Unlock()

	c.status(StatusProcessing)

	if c.opts.Grace > 0 {
		timer := time.NewTimer(c.opts.Grace)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}

	sess.halt()
	closeErr := sess.stream.Close()

	c.mu.Lock()
	c.active = nil
	c.state = StateIdle
	c.mu.Unlock()

	if closeErr != nil {
		c.logger.Warn("Error closing audio input", slog.String("error", closeErr.Error()))
	}

	frames := sess.buffer.FrameCount()
	if frames == 0 {
		c.opts.Metrics.RecordRecordingEmpty()
		c.logger.Info("Recording stopped without audio")
		c.status("")
		return nil, nil
	}

	wav := audio.EncodeBuffer(sess.buffer, sess.sampleRate)
	rec := &Recording{
		WAV:        wav,
		SampleRate: sess.sampleRate,
		Samples:    sess.buffer.Len(),
		Frames:     frames,
		Duration:   sess.buffer.Duration(sess.sampleRate),
	}
	sess.buffer.Reset()

	c.opts.Metrics.RecordRecordingFinished(rec.Duration.Seconds(), len(rec.WAV))
	c.logger.Info("Recording finished",
		slog.Int("frames", rec.Frames),
		slog.Int("samples", rec.Samples),
		slog.Duration("duration", rec.Duration),
		slog.Duration("wall_time", time.Since(sess.started)),
	)

	return rec, nil
}

// State returns the current lifecycle state
func (c *Capture) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Recording reports whether a session is accepting frames
func (c *Capture) Recording() bool {
	return c.State() == StateRecording
}

func (c *Capture) status(text string) {
	if c.opts.OnStatus != nil {
		c.opts.OnStatus(text)
	}
}
