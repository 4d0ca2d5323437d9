package api

import (
	"context"
	"log/slog"
	"sync"

	"github.com/auricle-ai/auricle/internal/config"
)

// Voice load states as reported by the models endpoints.
const (
	LoadIdle      = "idle"
	LoadLoading   = "loading"
	LoadCompleted = "completed"
	LoadFailed    = "failed"
)

// VoiceSwapper installs a new synthesis voice on the running pipeline. The
// TTS stage satisfies it through a small adapter in the command wiring.
type VoiceSwapper interface {
	Swap(ctx context.Context, v config.VoiceConfig) error
}

// voiceLoader serializes voice swaps and tracks their progress for the
// status endpoint.
type voiceLoader struct {
	voices  *config.VoiceRegistry
	swapper VoiceSwapper
	log     *slog.Logger

	mu      sync.Mutex
	status  string
	loading string
	current string
	message string
}

func newVoiceLoader(voices *config.VoiceRegistry, swapper VoiceSwapper, current string, log *slog.Logger) *voiceLoader {
	return &voiceLoader{
		voices:  voices,
		swapper: swapper,
		log:     log,
		status:  LoadIdle,
		current: current,
	}
}

// load starts a background swap to the given voice. The returned flags are
// (accepted, busy): busy means another voice is currently loading.
func (l *voiceLoader) load(ctx context.Context, v config.VoiceConfig) (bool, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status == LoadLoading {
		return l.loading == v.ID, true
	}
	if l.current == v.ID {
		return true, false
	}

	l.status = LoadLoading
	l.loading = v.ID
	l.message = ""

	go l.swap(ctx, v)
	return true, false
}

func (l *voiceLoader) swap(ctx context.Context, v config.VoiceConfig) {
	err := l.swapper.Swap(ctx, v)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.loading = ""
	if err != nil {
		l.status = LoadFailed
		l.message = err.Error()
		l.log.Error("voice load failed", "voice", v.ID, "error", err)
		return
	}
	l.status = LoadCompleted
	l.current = v.ID
	l.log.Info("voice loaded", "voice", v.ID)
}

// snapshot returns (status, loading id, current id, message).
func (l *voiceLoader) snapshot() (string, string, string, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status, l.loading, l.current, l.message
}

// voiceStatus resolves the per-voice status shown in the model list.
func (l *voiceLoader) voiceStatus(id string) string {
	_, loading, current, _ := l.snapshot()
	switch id {
	case loading:
		return "loading"
	case current:
		return "loaded"
	}
	return "available"
}
