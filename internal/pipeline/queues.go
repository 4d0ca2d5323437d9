package pipeline

import (
	"log/slog"

	"github.com/auricle-ai/auricle/internal/task"
	"github.com/auricle-ai/auricle/pkg/audio"
)

// Capacities configures the bound of each inter-stage queue.
type Capacities struct {
	Frames   int
	ASR      int
	LLM      int
	TTS      int
	Playback int
	Display  int
}

// DefaultCapacities returns the bounds the pipeline runs with unless the
// configuration overrides them. Audio frames arrive at ~16 per second, so
// 256 buffers roughly sixteen seconds of microphone input.
func DefaultCapacities() Capacities {
	return Capacities{
		Frames:   256,
		ASR:      16,
		LLM:      16,
		TTS:      32,
		Playback: 32,
		Display:  128,
	}
}

// Queues is the full set of hand-offs between pipeline stages, constructed
// once and shared by every stage.
type Queues struct {
	// Frames carries captured microphone audio to the speech monitor.
	Frames *Queue[audio.Frame]
	// ASR carries detected utterances from the monitor to recognition.
	ASR *Queue[task.VoiceTask]
	// LLM carries transcribed tasks to answer generation.
	LLM *Queue[task.VoiceTask]
	// TTS carries per-sentence clones to synthesis.
	TTS *Queue[task.VoiceTask]
	// Playback carries synthesized clips to the speaker.
	Playback *Queue[task.VoiceTask]
	// Display carries question/answer events to the websocket hub.
	Display *Queue[task.Message]
}

// NewQueues builds the queue set with the given bounds.
func NewQueues(caps Capacities, log *slog.Logger) *Queues {
	return &Queues{
		Frames:   NewQueue[audio.Frame]("frames", caps.Frames, log),
		ASR:      NewQueue[task.VoiceTask]("asr", caps.ASR, log),
		LLM:      NewQueue[task.VoiceTask]("llm", caps.LLM, log),
		TTS:      NewQueue[task.VoiceTask]("tts", caps.TTS, log),
		Playback: NewQueue[task.VoiceTask]("playback", caps.Playback, log),
		Display:  NewQueue[task.Message]("display", caps.Display, log),
	}
}
