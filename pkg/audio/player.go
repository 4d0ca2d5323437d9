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

// Player owns the speaker device. Play blocks until the clip has drained
// through the device, which is what gives the playback stage its pacing.
// Everything written to the speaker is also fed to the echo suppressor so
// capture can recognize it coming back in.
type Player struct {
	sampleRate int
	suppressor *EchoSuppressor
	log        *slog.Logger

	mu      sync.Mutex
	pending []byte

	ready atomic.Bool
}

// NewPlayer returns a player for the given device sample rate. The
// suppressor may be nil.
func NewPlayer(sampleRate int, suppressor *EchoSuppressor, log *slog.Logger) *Player {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if log == nil {
		log = slog.Default()
	}
	return &Player{sampleRate: sampleRate, suppressor: suppressor, log: log}
}

// Ready reports whether the speaker device is open.
func (p *Player) Ready() bool { return p.ready.Load() }

// Run opens the playback device and blocks until the context is canceled.
func (p *Player) Run(ctx context.Context) error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("audio: init context: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(p.sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, _ uint32) {
			p.onOutput(pOutput)
		},
	})
	if err != nil {
		return fmt.Errorf("audio: init playback device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("audio: start playback device: %w", err)
	}
	p.ready.Store(true)
	defer p.ready.Store(false)

	<-ctx.Done()
	return nil
}

func (p *Player) onOutput(pOutput []byte) {
	p.mu.Lock()
	n := copy(pOutput, p.pending)
	p.pending = p.pending[n:]
	p.mu.Unlock()

	if n > 0 && p.suppressor != nil {
		p.suppressor.RecordPlayed(pOutput[:n])
	}
	for i := n; i < len(pOutput); i++ {
		pOutput[i] = 0
	}
}

// Play queues the clip and blocks until the device has consumed it or the
// context is canceled. Input at a different sample rate is resampled to
// the device rate first.
func (p *Player) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	if len(pcm) == 0 {
		return nil
	}
	if !p.ready.Load() {
		return fmt.Errorf("audio: playback device not open")
	}
	if sampleRate > 0 && sampleRate != p.sampleRate {
		pcm = ResampleMono16(pcm, sampleRate, p.sampleRate)
	}

	p.mu.Lock()
	p.pending = append(p.pending, pcm...)
	p.mu.Unlock()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.Flush()
			return ctx.Err()
		case <-ticker.C:
			p.mu.Lock()
			remaining := len(p.pending)
			p.mu.Unlock()
			if remaining == 0 {
				return nil
			}
		}
	}
}

// Flush drops any queued audio without closing the device.
func (p *Player) Flush() {
	p.mu.Lock()
	p.pending = nil
	p.mu.Unlock()
	if p.suppressor != nil {
		p.suppressor.Clear()
	}
}
