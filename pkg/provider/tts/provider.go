// Package tts defines the Engine interface for text-to-speech backends.
//
// An engine synthesizes one sentence at a time: the LLM stage has already
// segmented the answer, so the pipeline gains nothing from stream-in
// synthesis and keeps the contract batch-per-sentence. Low latency comes
// from sentence-level pipelining, not from intra-sentence streaming.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Engine is the abstraction over any speech synthesis backend.
type Engine interface {
	// Setup performs one-time initialization such as loading voice
	// weights or probing a remote runtime. Calling it again is a no-op.
	Setup(ctx context.Context) error

	// Warmup synthesizes a throwaway sentence so the first real answer
	// does not pay cold-start costs. Failures should be logged by the
	// caller, not treated as fatal.
	Warmup(ctx context.Context) error

	// Synthesize renders the sentence and returns 16-bit little-endian
	// mono PCM with its sample rate.
	Synthesize(ctx context.Context, text string) (pcm []byte, sampleRate int, err error)

	// Close releases engine resources. Closing twice is safe.
	Close() error
}
