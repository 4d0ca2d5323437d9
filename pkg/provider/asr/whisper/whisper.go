// Package whisper implements speech recognition with the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once in Setup and shared; each Transcribe call runs
// on a fresh whisper context because contexts are not thread-safe while
// the model is.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/auricle-ai/auricle/pkg/provider/asr"
)

// Engine is a whisper.cpp-backed asr.Engine.
type Engine struct {
	modelPath string
	language  string

	mu    sync.Mutex
	model whisperlib.Model
}

var _ asr.Engine = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLanguage sets the transcription language code. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(e *Engine) { e.language = lang }
}

// New returns an engine that will load the whisper model from modelPath on
// Setup.
func New(modelPath string, opts ...Option) (*Engine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	e := &Engine{modelPath: modelPath, language: "en"}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Setup loads the model. Subsequent calls are no-ops.
func (e *Engine) Setup(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil {
		return nil
	}
	model, err := whisperlib.New(e.modelPath)
	if err != nil {
		return fmt.Errorf("whisper: load model %q: %w", e.modelPath, err)
	}
	e.model = model
	return nil
}

// Warmup runs inference over one second of silence so the first utterance
// does not pay model cold-start costs.
func (e *Engine) Warmup(ctx context.Context) error {
	_, err := e.Transcribe(ctx, make([]float32, 16000), e.language)
	return err
}

// Transcribe runs whisper inference over the utterance and returns the
// concatenated segment text.
func (e *Engine) Transcribe(ctx context.Context, samples []float32, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	e.mu.Lock()
	model := e.model
	e.mu.Unlock()
	if model == nil {
		return "", errors.New("whisper: engine not set up")
	}

	wctx, err := model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if language == "" {
		language = e.language
	}
	if err := wctx.SetLanguage(language); err != nil {
		return "", fmt.Errorf("whisper: set language %q: %w", language, err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// Close releases the model.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil
	}
	err := e.model.Close()
	e.model = nil
	return err
}
