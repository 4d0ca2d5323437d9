// Package mock provides a scriptable test double for tts.Engine.
package mock

import (
	"context"
	"sync"

	"github.com/auricle-ai/auricle/pkg/provider/tts"
)

// Clip is one scripted synthesis result.
type Clip struct {
	PCM        []byte
	SampleRate int
}

// Engine is a mock implementation of tts.Engine.
type Engine struct {
	mu sync.Mutex

	// Clips are returned by successive Synthesize calls. Once exhausted,
	// Default is returned.
	Clips []Clip
	// Default is the clip after Clips runs out. A zero Default yields
	// empty PCM at 16 kHz.
	Default Clip
	// SynthesizeErr, if non-nil, is returned by every Synthesize call.
	SynthesizeErr error
	// SetupErr and WarmupErr, if non-nil, are returned by the lifecycle
	// calls.
	SetupErr  error
	WarmupErr error

	// Texts records every synthesized sentence in order.
	Texts []string
	// SetupCalls and WarmupCalls count lifecycle invocations.
	SetupCalls  int
	WarmupCalls int
	// Closed reports whether Close was called.
	Closed bool
}

var _ tts.Engine = (*Engine)(nil)

// Setup records the call and returns SetupErr.
func (e *Engine) Setup(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.SetupCalls++
	return e.SetupErr
}

// Warmup records the call and returns WarmupErr.
func (e *Engine) Warmup(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.WarmupCalls++
	return e.WarmupErr
}

// Synthesize records the text and returns the next scripted clip.
func (e *Engine) Synthesize(_ context.Context, text string) ([]byte, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Texts = append(e.Texts, text)
	if e.SynthesizeErr != nil {
		return nil, 0, e.SynthesizeErr
	}
	clip := e.Default
	if len(e.Clips) > 0 {
		clip = e.Clips[0]
		e.Clips = e.Clips[1:]
	}
	if clip.SampleRate == 0 {
		clip.SampleRate = 16000
	}
	return clip.PCM, clip.SampleRate, nil
}

// Close marks the engine closed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Closed = true
	return nil
}
