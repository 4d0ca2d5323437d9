// Package vad defines the Engine interface for voice activity detection
// backends.
//
// A VAD engine wraps a window-level speech classifier (e.g. Silero, or a
// plain energy detector) and surfaces it as a stateful per-stream session.
// Each session keeps its own internal state (model recurrence, context
// samples) so concurrent audio streams can be scored independently.
//
// Detection is synchronous by design: Process returns immediately with a
// decision, which is what the speech monitor's per-frame loop needs.
package vad

import "errors"

// ErrWindowSize is returned when a window does not match the session's
// configured sample count.
var ErrWindowSize = errors.New("vad: wrong window size")

// Config holds the parameters for a detection session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Silero supports 8000 and
	// 16000.
	SampleRate int

	// WindowSamples is the fixed number of samples per Process call.
	// 512 at 16 kHz, 256 at 8 kHz.
	WindowSamples int

	// Threshold is the speech probability above which a window counts as
	// voice. Range (0, 1].
	Threshold float32
}

// DefaultConfig returns the detection parameters the pipeline runs with:
// 512-sample windows at 16 kHz scored against a 0.7 threshold.
func DefaultConfig() Config {
	return Config{SampleRate: 16000, WindowSamples: 512, Threshold: 0.7}
}

// Session scores consecutive windows of one audio stream. Sessions are not
// safe for concurrent use; give each stream its own.
type Session interface {
	// Process scores one window of normalized float32 samples and reports
	// whether it contains speech. The window length must equal the
	// configured WindowSamples.
	Process(window []float32) (bool, error)

	// Reset clears accumulated detector state without closing the
	// session. Use it when the stream is interrupted so stale recurrence
	// does not bleed into the next utterance.
	Reset()

	// Close releases session resources. Closing twice is safe.
	Close() error
}

// Engine is the factory for detection sessions, implemented by each VAD
// backend. Implementations must be safe for concurrent NewSession calls.
type Engine interface {
	NewSession(cfg Config) (Session, error)
}
