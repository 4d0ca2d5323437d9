// Package tts implements the synthesis stage: it renders each generated
// answer sentence to audio, applying the barge-in drop rules before paying
// for synthesis.
package tts

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/auricle-ai/auricle/internal/observe"
	"github.com/auricle-ai/auricle/internal/pipeline"
	"github.com/auricle-ai/auricle/internal/service"
	"github.com/auricle-ai/auricle/internal/state"
	"github.com/auricle-ai/auricle/internal/task"
	ttsprov "github.com/auricle-ai/auricle/pkg/provider/tts"
)

// wordPattern matches anything speakable: CJK ideographs, Latin letters, or
// digits. Sentences without a single match are punctuation noise.
var wordPattern = regexp.MustCompile(`[\x{4e00}-\x{9fa5}a-zA-Z0-9]`)

// hasNoWords reports whether the sentence carries nothing worth speaking.
func hasNoWords(sentence string) bool {
	return !wordPattern.MatchString(sentence)
}

// Config carries the optional collaborators of the synthesis stage.
type Config struct {
	Metrics *observe.Metrics
	Log     *slog.Logger
}

// Stage is the speech synthesis service. The engine can be swapped at
// runtime while the stage keeps consuming.
type Stage struct {
	guard *state.Guard
	in    *pipeline.Queue[task.VoiceTask]
	out   *pipeline.Queue[task.VoiceTask]

	mu     sync.RWMutex
	engine ttsprov.Engine

	metrics *observe.Metrics
	log     *slog.Logger
	ready   atomic.Bool
}

var _ service.Service = (*Stage)(nil)

// New wires a synthesis stage between the sentence and playback queues.
func New(guard *state.Guard, engine ttsprov.Engine, in, out *pipeline.Queue[task.VoiceTask], cfg Config) *Stage {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Stage{
		guard:   guard,
		in:      in,
		out:     out,
		engine:  engine,
		metrics: cfg.Metrics,
		log:     cfg.Log,
	}
}

// Ready reports whether the engine is set up and the loop is consuming.
func (s *Stage) Ready() bool { return s.ready.Load() }

// Engine returns the engine currently in use.
func (s *Stage) Engine() ttsprov.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SwapEngine replaces the synthesis engine. The previous engine is returned
// so the caller can close it once in-flight synthesis is done.
func (s *Stage) SwapEngine(ctx context.Context, engine ttsprov.Engine) (ttsprov.Engine, error) {
	if err := engine.Setup(ctx); err != nil {
		return nil, err
	}
	if err := engine.Warmup(ctx); err != nil {
		s.log.Warn("synthesis warmup failed", "error", err)
	}
	s.mu.Lock()
	old := s.engine
	s.engine = engine
	s.mu.Unlock()
	return old, nil
}

// Run sets up the engine and processes sentences until the context is
// cancelled.
func (s *Stage) Run(ctx context.Context) error {
	engine := s.Engine()
	if err := engine.Setup(ctx); err != nil {
		return err
	}
	if err := engine.Warmup(ctx); err != nil {
		s.log.Warn("synthesis warmup failed", "error", err)
	}
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

func (s *Stage) process(ctx context.Context, vt task.VoiceTask) {
	if vt.Sentence == "" {
		return
	}
	if s.guard.HandleUserSpeaking(vt) {
		s.metrics.RecordDrop(ctx, "tts", "user_speaking")
		return
	}
	if !s.guard.ValidTask(vt) {
		s.metrics.RecordDrop(ctx, "tts", "invalid_task")
		return
	}
	if hasNoWords(vt.Sentence) {
		s.log.Info("skipping unspeakable sentence", "task_id", vt.ID, "sentence", vt.Sentence)
		return
	}

	vt.Timings.TTSStart = time.Now()
	pcm, rate, err := s.Engine().Synthesize(ctx, vt.Sentence)
	if err != nil {
		s.log.Error("synthesis failed", "task_id", vt.ID, "error", err)
		s.metrics.RecordEngineError(ctx, "tts")
		s.guard.Registry.ResetTaskID()
		return
	}
	vt.Speech = task.AudioClip{PCM: pcm, SampleRate: rate}
	vt.Timings.TTSEnd = time.Now()
	s.metrics.RecordStage(ctx, "tts", vt.Timings.TTSEnd.Sub(vt.Timings.TTSStart))

	s.out.Put(vt.Clone())
	s.metrics.RecordQueueDepth(ctx, s.out.Name(), s.out.Len())
}
