// Package audio provides the microphone and speaker plumbing of the voice
// pipeline: capture strategies, playback, echo suppression, PCM helpers,
// and WAV encoding. All PCM handled here is 16-bit little-endian mono
// unless a function says otherwise.
package audio

import "time"

// Frame is one fixed-size chunk of captured microphone audio flowing to
// the speech monitor.
type Frame struct {
	// PCM is 16-bit little-endian mono audio.
	PCM []byte

	// SampleRate in Hz.
	SampleRate int

	// VoiceActive reports the capture strategy's own speech decision.
	// Only meaningful when HasVAD is true; otherwise the monitor runs its
	// configured detector over the samples itself.
	VoiceActive bool
	HasVAD      bool

	// Timestamp marks when the frame was captured.
	Timestamp time.Time
}

// Duration returns the frame length derived from the sample count.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || len(f.PCM) < 2 {
		return 0
	}
	return time.Duration(len(f.PCM)/2) * time.Second / time.Duration(f.SampleRate)
}
