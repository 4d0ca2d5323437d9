// Package task defines the unit of work that flows through the voice
// pipeline. A VoiceTask is created by the speech monitor for every detected
// utterance and is progressively filled in by the ASR, LLM, and TTS stages
// before being played back. Tasks are passed between stages by value; every
// queue hand-off carries an independent Clone so that no two stages share
// mutable state.
package task

import "time"

// Language selects the recognition and prompt language for a task.
type Language string

const (
	LanguageChinese Language = "zh"
	LanguageEnglish Language = "en"
)

// IsValid reports whether l is a supported language.
func (l Language) IsValid() bool {
	return l == LanguageChinese || l == LanguageEnglish
}

// AudioClip is a chunk of 16-bit little-endian mono PCM with its sample rate.
type AudioClip struct {
	PCM        []byte
	SampleRate int
}

// Duration returns the clip length derived from the sample count.
func (c AudioClip) Duration() time.Duration {
	if c.SampleRate <= 0 || len(c.PCM) < 2 {
		return 0
	}
	samples := len(c.PCM) / 2
	return time.Duration(samples) * time.Second / time.Duration(c.SampleRate)
}

// Clone returns a deep copy of the clip.
func (c AudioClip) Clone() AudioClip {
	cp := c
	if c.PCM != nil {
		cp.PCM = make([]byte, len(c.PCM))
		copy(cp.PCM, c.PCM)
	}
	return cp
}

// Timings holds per-stage timestamps used for end-to-end latency reporting.
// A zero time means the stage has not touched the task yet.
type Timings struct {
	MonitorSend time.Time
	ASRStart    time.Time
	ASREnd      time.Time
	LLMStart    time.Time
	LLMEnd      time.Time
	TTSStart    time.Time
	TTSEnd      time.Time
	PlayStart   time.Time
}

// VoiceTask carries one user utterance through the pipeline. The monitor
// fills ID, SessionID, AnswerID, UserVoice, and LongUtterance; the ASR stage
// replaces UserVoice with Transcript; the LLM stage emits one clone per
// sentence with Sentence and SentenceIndex set; the TTS stage attaches
// Speech.
type VoiceTask struct {
	// ID is the utterance identity assigned by the state registry. All
	// sentence clones fanned out from one utterance share it.
	ID string
	// SessionID pins the task to the dialogue session that produced it.
	SessionID string
	// AnswerID identifies the answer this task contributes to. Marking an
	// answer dropped invalidates every clone that carries its id.
	AnswerID string

	// UserVoice is the captured utterance audio. The ASR stage clears it
	// once a transcript exists so clones stop carrying the recording.
	UserVoice AudioClip
	// LongUtterance marks a fragment flushed before end of speech; the ASR
	// stage accumulates fragments until the closing non-flagged task.
	LongUtterance bool

	Language   Language
	Transcript string

	// Sentence and SentenceIndex are set by the LLM stage, one clone per
	// segmented sentence, indices starting at zero.
	Sentence      string
	SentenceIndex int

	// Speech is the synthesized audio for Sentence.
	Speech AudioClip

	Timings Timings
}

// Clone returns a deep copy of the task. Stages must enqueue clones, never
// the value they are still mutating.
func (t VoiceTask) Clone() VoiceTask {
	cp := t
	cp.UserVoice = t.UserVoice.Clone()
	cp.Speech = t.Speech.Clone()
	return cp
}

// FirstSentence reports whether this clone carries the opening sentence of
// its answer.
func (t VoiceTask) FirstSentence() bool { return t.SentenceIndex == 0 }
