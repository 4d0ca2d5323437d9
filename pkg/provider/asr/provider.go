// Package asr defines the Engine interface for speech recognition
// backends.
//
// An ASR engine turns one complete utterance into text. The pipeline's
// recognition stage is batch-per-utterance rather than streaming: the
// speech monitor has already decided where the utterance ends, so the
// engine receives whole clips and may take its time with them.
//
// Implementations must be safe for concurrent use.
package asr

import "context"

// Engine is the abstraction over any speech recognition backend.
type Engine interface {
	// Setup performs one-time initialization such as loading model
	// weights or probing a remote runtime. It must be called before
	// Transcribe; calling it again is a no-op.
	Setup(ctx context.Context) error

	// Warmup runs a throwaway inference so the first real utterance does
	// not pay cold-start costs. Failures are not fatal to the pipeline
	// and should be logged by the caller.
	Warmup(ctx context.Context) error

	// Transcribe converts one utterance to text. Samples are normalized
	// mono float32 at 16 kHz. The language is a BCP-47 code such as "zh"
	// or "en"; engines bound to a single language may ignore it. An empty
	// string result with a nil error means the engine heard nothing
	// intelligible.
	Transcribe(ctx context.Context, samples []float32, language string) (string, error)

	// Close releases engine resources. Closing twice is safe.
	Close() error
}
