package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/toodo84/ai-pronunciation-app/internal/audio"
	"github.com/toodo84/ai-pronunciation-app/internal/metrics"
)

type fakeStream struct {
	rate   int
	closed int
	mu     sync.Mutex
}

func (s *fakeStream) SampleRate() int { return s.rate }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeDevice hands frames to the capture only when the test emits them
type fakeDevice struct {
	rate    int
	openErr error

	opens   int
	onFrame FrameFunc
	stream  *fakeStream
	mu      sync.Mutex
}

func (d *fakeDevice) Open(frameSize int, onFrame FrameFunc) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.opens++
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.onFrame = onFrame
	d.stream = &fakeStream{rate: d.rate}
	return d.stream, nil
}

func (d *fakeDevice) emit(frame audio.Frame) {
	d.mu.Lock()
	fn := d.onFrame
	d.mu.Unlock()
	fn(frame)
}

func (d *fakeDevice) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

type statusLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *statusLog) record(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, s)
}

func (l *statusLog) last() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return ""
	}
	return l.entries[len(l.entries)-1]
}

func constFrame(n int, v float32) audio.Frame {
	f := make(audio.Frame, n)
	for i := range f {
		f[i] = v
	}
	return f
}

func TestStartStopProducesWAV(t *testing.T) {
	dev := &fakeDevice{rate: 16000}
	m := metrics.NewMetrics()
	c := New(dev, Options{FrameSize: 4, Metrics: m})

	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !c.Recording() {
		t.Fatal("Expected capture to be recording")
	}

	dev.emit(constFrame(4, 0.5))
	dev.emit(constFrame(4, -0.5))

	rec, err := c.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if rec == nil {
		t.Fatal("Expected a recording")
	}

	if rec.Frames != 2 || rec.Samples != 8 {
		t.Errorf("Expected 2 frames / 8 samples, got %d / %d", rec.Frames, rec.Samples)
	}
	if rec.SampleRate != 16000 {
		t.Errorf("Expected sample rate from device, got %d", rec.SampleRate)
	}
	if len(rec.WAV) != audio.WAVHeaderSize+16 {
		t.Errorf("Expected %d bytes, got %d", audio.WAVHeaderSize+16, len(rec.WAV))
	}

	samples, rate, err := audio.DecodeWAV(rec.WAV)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != 16000 {
		t.Errorf("Expected WAV sample rate 16000, got %d", rate)
	}
	if samples[0] != 16383 || samples[4] != -16384 {
		t.Errorf("Unexpected samples: %v", samples)
	}

	if dev.stream.closeCount() != 1 {
		t.Errorf("Expected device closed once, got %d", dev.stream.closeCount())
	}
	if c.State() != StateIdle {
		t.Errorf("Expected IDLE after stop, got %s", c.State())
	}
	if got := testutil.ToFloat64(m.FramesCaptured); got != 2 {
		t.Errorf("Expected 2 captured frames, got %v", got)
	}
	if got := testutil.ToFloat64(m.RecordingsFinished); got != 1 {
		t.Errorf("Expected 1 finished recording, got %v", got)
	}
}

func TestStartWhileRecordingIsNoop(t *testing.T) {
	dev := &fakeDevice{rate: 8000}
	c := New(dev, Options{FrameSize: 2})

	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	dev.emit(constFrame(2, 0.1))

	if err := c.Start(); err != nil {
		t.Fatalf("Second Start failed: %v", err)
	}
	if dev.openCount() != 1 {
		t.Errorf("Expected device opened once, got %d", dev.openCount())
	}

	rec, _ := c.Stop(context.Background())
	if rec == nil || rec.Frames != 1 {
		t.Errorf("Expected the original session to keep its frame, got %+v", rec)
	}
}

func TestStopWithoutStart(t *testing.T) {
	c := New(&fakeDevice{rate: 8000}, Options{})

	rec, err := c.Stop(context.Background())
	if err != nil || rec != nil {
		t.Errorf("Expected nil recording and no error, got %v, %v", rec, err)
	}
}

func TestStopBeforeAnyFrame(t *testing.T) {
	dev := &fakeDevice{rate: 8000}
	m := metrics.NewMetrics()
	status := &statusLog{}
	c := New(dev, Options{Metrics: m, OnStatus: status.record})

	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	rec, err := c.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if rec != nil {
		t.Errorf("Expected no recording for an empty session, got %+v", rec)
	}
	if dev.stream.closeCount() != 1 {
		t.Errorf("Expected device released, got %d closes", dev.stream.closeCount())
	}
	if got := testutil.ToFloat64(m.RecordingsEmpty); got != 1 {
		t.Errorf("Expected 1 empty recording, got %v", got)
	}
	if status.last() != "" {
		t.Errorf("Expected status cleared, got %q", status.last())
	}
}

func TestStopTwiceIsIdempotent(t *testing.T) {
	dev := &fakeDevice{rate: 8000}
	c := New(dev, Options{FrameSize: 2})

	_ = c.Start()
	dev.emit(constFrame(2, 0.2))

	first, err := c.Stop(context.Background())
	if err != nil || first == nil {
		t.Fatalf("First stop: rec=%v err=%v", first, err)
	}

	second, err := c.Stop(context.Background())
	if err != nil || second != nil {
		t.Errorf("Second stop should be a no-op, got rec=%v err=%v", second, err)
	}
	if dev.stream.closeCount() != 1 {
		t.Errorf("Expected one device close, got %d", dev.stream.closeCount())
	}
}

func TestFramesAfterStopAreIgnored(t *testing.T) {
	dev := &fakeDevice{rate: 8000}
	m := metrics.NewMetrics()
	c := New(dev, Options{FrameSize: 2, Metrics: m})

	_ = c.Start()
	dev.emit(constFrame(2, 0.3))

	rec, _ := c.Stop(context.Background())
	if rec == nil {
		t.Fatal("Expected a recording")
	}

	// A late device callback must not panic or reach any buffer
	dev.emit(constFrame(2, 0.9))

	if got := testutil.ToFloat64(m.FramesDropped); got != 1 {
		t.Errorf("Expected 1 dropped frame, got %v", got)
	}
	if rec.Frames != 1 {
		t.Errorf("Recording changed after stop: %d frames", rec.Frames)
	}

	// A new session starts from an empty buffer
	_ = c.Start()
	next, _ := c.Stop(context.Background())
	if next != nil {
		t.Errorf("Expected fresh session to be empty, got %+v", next)
	}
}

func TestDeviceUnavailable(t *testing.T) {
	dev := &fakeDevice{rate: 8000, openErr: errors.New("permission denied")}
	m := metrics.NewMetrics()
	status := &statusLog{}
	c := New(dev, Options{Metrics: m, OnStatus: status.record})

	err := c.Start()
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Expected ErrDeviceUnavailable, got %v", err)
	}
	if status.last() != StatusDeviceUnavailable {
		t.Errorf("Expected status %q, got %q", StatusDeviceUnavailable, status.last())
	}
	if c.State() != StateIdle {
		t.Errorf("Expected IDLE after failed start, got %s", c.State())
	}
	if got := testutil.ToFloat64(m.DeviceErrors); got != 1 {
		t.Errorf("Expected 1 device error, got %v", got)
	}

	// The user can retry once the device is available
	dev.openErr = nil
	if err := c.Start(); err != nil {
		t.Errorf("Retry failed: %v", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	dev := &fakeDevice{rate: 8000}
	status := &statusLog{}
	c := New(dev, Options{FrameSize: 2, OnStatus: status.record})

	_ = c.Start()
	if status.last() != StatusRecording {
		t.Errorf("Expected %q, got %q", StatusRecording, status.last())
	}

	dev.emit(constFrame(2, 0.1))
	_, _ = c.Stop(context.Background())
	if status.last() != StatusProcessing {
		t.Errorf("Expected %q, got %q", StatusProcessing, status.last())
	}
}

func TestGraceWindowKeepsAccepting(t *testing.T) {
	dev := &fakeDevice{rate: 8000}
	c := New(dev, Options{FrameSize: 2, Grace: 100 * time.Millisecond})

	_ = c.Start()
	dev.emit(constFrame(2, 0.1))

	var (
		rec  *Recording
		wg   sync.WaitGroup
		stop = make(chan struct{})
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		close(stop)
		rec, _ = c.Stop(context.Background())
	}()

	<-stop
	deadline := time.Now().Add(time.Second)
	for c.State() != StateStopping && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if c.State() != StateStopping {
		t.Fatalf("Expected STOPPING, got %s", c.State())
	}

	// Frames during the grace window still count
	dev.emit(constFrame(2, 0.2))

	// Start and a second Stop during the window are no-ops
	if err := c.Start(); err != nil {
		t.Errorf("Start during grace failed: %v", err)
	}
	if again, _ := c.Stop(context.Background()); again != nil {
		t.Errorf("Concurrent stop should return nil, got %+v", again)
	}

	wg.Wait()
	if rec == nil || rec.Frames != 2 {
		t.Errorf("Expected 2 frames including the grace window, got %+v", rec)
	}
	if dev.openCount() != 1 {
		t.Errorf("Expected a single device open, got %d", dev.openCount())
	}
}

func TestGraceCutShortByContext(t *testing.T) {
	dev := &fakeDevice{rate: 8000}
	c := New(dev, Options{FrameSize: 2, Grace: MaxGrace})

	_ = c.Start()
	dev.emit(constFrame(2, 0.1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	rec, err := c.Stop(ctx)
	if err != nil || rec == nil {
		t.Fatalf("Stop failed: rec=%v err=%v", rec, err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Stop should not wait out the grace after cancel, took %v", elapsed)
	}
}

func TestGraceIsClamped(t *testing.T) {
	c := New(&fakeDevice{}, Options{Grace: 5 * time.Second})
	if c.opts.Grace != MaxGrace {
		t.Errorf("Expected grace clamped to %v, got %v", MaxGrace, c.opts.Grace)
	}

	c = New(&fakeDevice{}, Options{})
	if c.opts.FrameSize != audio.DefaultFrameSize {
		t.Errorf("Expected default frame size, got %d", c.opts.FrameSize)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "IDLE"},
		{StateRecording, "RECORDING"},
		{StateStopping, "STOPPING"},
		{State(9), "UNKNOWN(9)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}
