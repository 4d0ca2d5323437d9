// Package mock provides a scriptable test double for asr.Engine.
package mock

import (
	"context"
	"sync"

	"github.com/auricle-ai/auricle/pkg/provider/asr"
)

// TranscribeCall records one Transcribe invocation.
type TranscribeCall struct {
	Samples  []float32
	Language string
}

// Engine is a mock implementation of asr.Engine.
type Engine struct {
	mu sync.Mutex

	// Results are returned by successive Transcribe calls. Once
	// exhausted, "" is returned.
	Results []string
	// TranscribeErr, if non-nil, is returned by every Transcribe call.
	TranscribeErr error
	// SetupErr, if non-nil, is returned by Setup.
	SetupErr error
	// WarmupErr, if non-nil, is returned by Warmup.
	WarmupErr error

	// Calls records every Transcribe invocation in order.
	Calls []TranscribeCall
	// SetupCalls and WarmupCalls count lifecycle invocations.
	SetupCalls  int
	WarmupCalls int
	// Closed reports whether Close was called.
	Closed bool
}

var _ asr.Engine = (*Engine)(nil)

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

// Transcribe records the call and returns the next scripted result.
func (e *Engine) Transcribe(_ context.Context, samples []float32, language string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	e.Calls = append(e.Calls, TranscribeCall{Samples: cp, Language: language})
	if e.TranscribeErr != nil {
		return "", e.TranscribeErr
	}
	if len(e.Results) > 0 {
		r := e.Results[0]
		e.Results = e.Results[1:]
		return r, nil
	}
	return "", nil
}

// Close marks the engine closed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Closed = true
	return nil
}
