package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
)

// MinVoiceAmplitude is the peak level below which a frame is considered
// silent regardless of what any detector says.
const MinVoiceAmplitude = 0.01

// Capture reads microphone audio and delivers fixed-size frames to its
// sink. Pause keeps the device reading but stops delivery, so the driver's
// internal buffers never back up while the pipeline is suspended.
type Capture interface {
	Run(ctx context.Context) error
	Ready() bool
	Pause()
	Resume()
	// EchoCancelled reports which strategy the capture ended up with.
	EchoCancelled() bool
}

// CaptureConfig configures a capture strategy.
type CaptureConfig struct {
	// SampleRate of delivered frames, Hz.
	SampleRate int
	// FrameSamples is the delivered frame size in samples.
	FrameSamples int
	// EchoCancellation requests the echo-suppressed strategy. When the
	// suppressor is missing the plain strategy is used instead.
	EchoCancellation bool
	// Suppressor is the shared detector fed by the playback path.
	Suppressor *EchoSuppressor
	// Sink receives every delivered frame.
	Sink func(Frame)

	Log *slog.Logger
}

func (c *CaptureConfig) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.FrameSamples <= 0 {
		c.FrameSamples = 512
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
}

// NewCapture selects the capture strategy. Echo cancellation is used when
// requested and a suppressor is available; otherwise frames are delivered
// raw and the monitor's detector decides what is speech.
func NewCapture(cfg CaptureConfig) (Capture, error) {
	cfg.applyDefaults()
	if cfg.Sink == nil {
		return nil, fmt.Errorf("audio: capture needs a sink")
	}
	echo := cfg.EchoCancellation && cfg.Suppressor != nil
	if cfg.EchoCancellation && cfg.Suppressor == nil {
		cfg.Log.Warn("echo cancellation requested without a suppressor, using plain capture")
	}
	strategy := "plain"
	if echo {
		strategy = "echo-cancelled"
	}
	cfg.Log.Info("audio capture strategy selected", "strategy", strategy,
		"sample_rate", cfg.SampleRate, "frame_samples", cfg.FrameSamples)
	return &deviceCapture{cfg: cfg, echo: echo}, nil
}

// deviceCapture drives a malgo capture device and chunks the incoming
// stream into fixed-size frames.
type deviceCapture struct {
	cfg    CaptureConfig
	echo   bool
	ready  atomic.Bool
	paused atomic.Bool

	mu      sync.Mutex
	pending []byte
}

var _ Capture = (*deviceCapture)(nil)

func (d *deviceCapture) Ready() bool         { return d.ready.Load() }
func (d *deviceCapture) Pause()              { d.paused.Store(true) }
func (d *deviceCapture) Resume()             { d.paused.Store(false) }
func (d *deviceCapture) EchoCancelled() bool { return d.echo }

// Run opens the device and blocks until the context is canceled.
func (d *deviceCapture) Run(ctx context.Context) error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("audio: init context: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(d.cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, _ uint32) {
			d.onInput(pInput)
		},
	})
	if err != nil {
		return fmt.Errorf("audio: init capture device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("audio: start capture device: %w", err)
	}
	d.ready.Store(true)
	defer d.ready.Store(false)

	<-ctx.Done()
	return nil
}

func (d *deviceCapture) onInput(pInput []byte) {
	if len(pInput) == 0 {
		return
	}
	frameBytes := d.cfg.FrameSamples * 2

	d.mu.Lock()
	d.pending = append(d.pending, pInput...)
	var chunks [][]byte
	for len(d.pending) >= frameBytes {
		chunk := make([]byte, frameBytes)
		copy(chunk, d.pending[:frameBytes])
		d.pending = d.pending[frameBytes:]
		chunks = append(chunks, chunk)
	}
	d.mu.Unlock()

	// A paused capture keeps reading so the device buffer stays drained,
	// it just stops delivering.
	if d.paused.Load() {
		return
	}
	for _, chunk := range chunks {
		d.cfg.Sink(d.frame(chunk))
	}
}

func (d *deviceCapture) frame(chunk []byte) Frame {
	f := Frame{
		PCM:        chunk,
		SampleRate: d.cfg.SampleRate,
		Timestamp:  time.Now(),
	}
	if d.echo {
		f.HasVAD = true
		f.VoiceActive = PeakAmplitude(chunk) >= MinVoiceAmplitude && !d.cfg.Suppressor.IsEcho(chunk)
	}
	return f
}
