// Package playback implements the final pipeline stage: it gates each
// synthesized sentence on the user being quiet, publishes the answer to the
// UI, folds it into the dialogue history, and plays it.
package playback

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/auricle-ai/auricle/internal/observe"
	"github.com/auricle-ai/auricle/internal/pipeline"
	"github.com/auricle-ai/auricle/internal/service"
	"github.com/auricle-ai/auricle/internal/state"
	"github.com/auricle-ai/auricle/internal/task"
)

// gatePoll is how often the stage re-checks the silence gate while holding
// a sentence back.
const gatePoll = 50 * time.Millisecond

// Sink is where rendered audio goes. *audio.Player satisfies it.
type Sink interface {
	Play(ctx context.Context, pcm []byte, sampleRate int) error
}

// Config carries the optional collaborators of the playback stage.
type Config struct {
	Metrics *observe.Metrics
	Log     *slog.Logger
}

// Stage is the playback service.
type Stage struct {
	guard   *state.Guard
	in      *pipeline.Queue[task.VoiceTask]
	display *pipeline.Queue[task.Message]
	sink    Sink

	// stopped mutes output while keeping the drain and bookkeeping going,
	// so a muted system still converses silently instead of backing up.
	stopped atomic.Bool

	metrics *observe.Metrics
	log     *slog.Logger
	ready   atomic.Bool
}

var _ service.Service = (*Stage)(nil)

// New wires a playback stage consuming the synthesis queue. display may be
// nil when no UI is attached.
func New(guard *state.Guard, sink Sink, in *pipeline.Queue[task.VoiceTask], display *pipeline.Queue[task.Message], cfg Config) *Stage {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Stage{
		guard:   guard,
		in:      in,
		display: display,
		sink:    sink,
		metrics: cfg.Metrics,
		log:     cfg.Log,
	}
}

// Ready reports whether the playback loop is consuming.
func (s *Stage) Ready() bool { return s.ready.Load() }

// Stop mutes audio output. Bookkeeping and UI events continue.
func (s *Stage) Stop() { s.stopped.Store(true) }

// Resume re-enables audio output.
func (s *Stage) Resume() { s.stopped.Store(false) }

// Stopped reports whether output is muted.
func (s *Stage) Stopped() bool { return s.stopped.Load() }

// Run processes synthesized sentences until the context is cancelled.
func (s *Stage) Run(ctx context.Context) error {
	s.ready.Store(true)
	defer s.ready.Store(false)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		vt, ok := s.in.Get(pipeline.PollInterval)
		if !ok {
			continue
		}
		s.process(ctx, vt)
	}
}

// process holds the sentence at the silence gate, re-validating while it
// waits, then publishes and plays it.
func (s *Stage) process(ctx context.Context, vt task.VoiceTask) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if s.guard.HandleUserSpeaking(vt) {
			s.metrics.RecordDrop(ctx, "playback", "user_speaking")
			return
		}
		if !s.guard.ValidTask(vt) {
			s.metrics.RecordDrop(ctx, "playback", "invalid_task")
			return
		}
		if !s.guard.SilenceDone.IsSet() {
			time.Sleep(gatePoll)
			continue
		}

		if s.display != nil {
			s.display.Put(task.NewAnswerMessage(vt))
		}
		s.logTimings(vt)
		s.guard.Registry.AppendExchange(vt.SessionID, vt.AnswerID, vt.Transcript, vt.Sentence)
		s.guard.Registry.SetAudioPlaying(vt.ID)
		s.guard.Registry.ResetTaskID()

		if !s.stopped.Load() {
			vt.Timings.PlayStart = time.Now()
			if !vt.Timings.MonitorSend.IsZero() {
				s.metrics.PipelineDuration.Record(ctx, vt.Timings.PlayStart.Sub(vt.Timings.MonitorSend).Seconds())
			}
			if err := s.sink.Play(ctx, vt.Speech.PCM, vt.Speech.SampleRate); err != nil {
				s.log.Error("audio playback failed", "task_id", vt.ID, "error", err)
			}
			s.metrics.SentencesPlayed.Add(ctx, 1)
		}
		return
	}
}

func (s *Stage) logTimings(vt task.VoiceTask) {
	tm := vt.Timings
	s.log.Debug("sentence timings",
		"task_id", vt.ID,
		"index", vt.SentenceIndex,
		"asr", tm.ASREnd.Sub(tm.ASRStart),
		"llm", tm.LLMEnd.Sub(tm.LLMStart),
		"tts", tm.TTSEnd.Sub(tm.TTSStart),
		"clip", vt.Speech.Duration(),
	)
}
