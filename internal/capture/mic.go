package capture

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// MicDevice captures mono float32 audio from the default input device
type MicDevice struct {
	// SampleRate requests a capture rate; zero lets the device choose
	SampleRate int
	Logger     *slog.Logger
}

// NewMicDevice creates a microphone device
func NewMicDevice(sampleRate int, logger *slog.Logger) *MicDevice {
	if logger == nil {
		logger = slog.Default()
	}
	return &MicDevice{
		SampleRate: sampleRate,
		Logger:     logger.With(slog.String("component", "mic")),
	}
}

// Open initializes the audio backend and starts the capture device
func (d *MicDevice) Open(frameSize int, onFrame FrameFunc) (Stream, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		d.Logger.Debug("malgo", slog.String("message", message))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(d.SampleRate)
	cfg.Alsa.NoMMap = 1

	fr := newFramer(frameSize, onFrame)
	var scratch []float32

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			scratch = decodeFloat32(scratch[:0], input, int(frameCount))
			fr.write(scratch)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("failed to init capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("failed to start capture device: %w", err)
	}

	d.Logger.Debug("Capture device started",
		slog.Int("sample_rate", int(device.SampleRate())),
		slog.Int("frame_size", frameSize),
	)

	return &micStream{
		ctx:    mctx,
		device: device,
	}, nil
}

type micStream struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	once   sync.Once
	err    error
}

func (s *micStream) SampleRate() int {
	return int(s.device.SampleRate())
}

func (s *micStream) Close() error {
	s.once.Do(func() {
		s.device.Uninit()
		s.err = s.ctx.Uninit()
		s.ctx.Free()
	})
	return s.err
}

// decodeFloat32 reads n little-endian float32 samples from raw
func decodeFloat32(dst []float32, raw []byte, n int) []float32 {
	if n*4 > len(raw) {
		n = len(raw) / 4
	}
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		dst = append(dst, math.Float32frombits(bits))
	}
	return dst
}
