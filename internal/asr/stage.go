// Package asr implements the speech recognition stage: it turns detected
// utterances into transcripts and stitches long-utterance fragments back
// into one question.
package asr

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/auricle-ai/auricle/internal/observe"
	"github.com/auricle-ai/auricle/internal/pipeline"
	"github.com/auricle-ai/auricle/internal/service"
	"github.com/auricle-ai/auricle/internal/state"
	"github.com/auricle-ai/auricle/internal/task"
	"github.com/auricle-ai/auricle/pkg/audio"
	asrprov "github.com/auricle-ai/auricle/pkg/provider/asr"
)

const (
	// fragmentCacheSize bounds how many long utterances can have fragments
	// in flight at once.
	fragmentCacheSize = 10

	// minClipDuration is the shortest clip the recognition models handle
	// well; shorter clips are padded up to it.
	minClipDuration = time.Second

	// padToneHz is the frequency of the padding tone. A pure tone keeps
	// the models from hallucinating words into trailing dead air.
	padToneHz = 440.0
)

// Config carries the optional collaborators of the recognition stage.
type Config struct {
	// Language is stamped on every task and forwarded to the engine.
	Language task.Language

	Metrics *observe.Metrics
	Log     *slog.Logger
}

// Stage is the speech recognition service.
type Stage struct {
	guard    *state.Guard
	in       *pipeline.Queue[task.VoiceTask]
	out      *pipeline.Queue[task.VoiceTask]
	engine   asrprov.Engine
	language task.Language

	// fragments accumulates transcribed fragment texts per long utterance,
	// keyed by task id.
	fragments *state.LRU[string, []string]

	metrics *observe.Metrics
	log     *slog.Logger
	ready   atomic.Bool
}

var _ service.Service = (*Stage)(nil)

// New wires a recognition stage between the utterance and transcript queues.
func New(guard *state.Guard, engine asrprov.Engine, in, out *pipeline.Queue[task.VoiceTask], cfg Config) *Stage {
	if cfg.Language == "" {
		cfg.Language = task.LanguageEnglish
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Stage{
		guard:     guard,
		in:        in,
		out:       out,
		engine:    engine,
		language:  cfg.Language,
		fragments: state.NewLRU[string, []string](fragmentCacheSize),
		metrics:   cfg.Metrics,
		log:       cfg.Log,
	}
}

// Ready reports whether the engine is set up and the loop is consuming.
func (s *Stage) Ready() bool { return s.ready.Load() }

// Run sets up the engine and processes utterances until the context is
// cancelled.
func (s *Stage) Run(ctx context.Context) error {
	if err := s.engine.Setup(ctx); err != nil {
		return err
	}
	if err := s.engine.Warmup(ctx); err != nil {
		s.log.Warn("recognition warmup failed", "error", err)
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
	vt.Language = s.language
	vt.Timings.ASRStart = time.Now()

	samples := ensureMinimumDuration(audio.BytesToFloat32(vt.UserVoice.PCM), vt.UserVoice.SampleRate)
	text, err := s.engine.Transcribe(ctx, samples, string(s.language))
	if err != nil {
		s.log.Error("transcription failed", "task_id", vt.ID, "error", err)
		s.metrics.RecordEngineError(ctx, "asr")
		s.guard.Registry.ResetTaskID()
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		// Nothing intelligible: release the pipeline for the next utterance.
		s.guard.Registry.ResetTaskID()
		return
	}

	vt.Timings.ASREnd = time.Now()
	s.metrics.RecordStage(ctx, "asr", vt.Timings.ASREnd.Sub(vt.Timings.ASRStart))
	s.log.Info("utterance transcribed", "task_id", vt.ID, "text", text)

	// Long utterances arrive as fragments sharing one task id; stash every
	// fragment so the closing task can forward the full question.
	cached, _ := s.fragments.Get(vt.ID)
	if vt.LongUtterance {
		cached = append(cached, text)
		s.fragments.Put(vt.ID, cached)
	}

	if s.guard.HandleUserSpeaking(vt) {
		return
	}
	if s.guard.Registry.IsAnswerDropped(vt.AnswerID) {
		return
	}

	if len(cached) > 0 {
		vt.Transcript = strings.Join(cached, " ")
	} else {
		vt.Transcript = text
	}
	vt.UserVoice = task.AudioClip{}

	s.out.Put(vt.Clone())
	s.metrics.RecordQueueDepth(ctx, s.out.Name(), s.out.Len())
}

// ensureMinimumDuration pads short clips with a soft tone until they reach
// minClipDuration.
func ensureMinimumDuration(samples []float32, sampleRate int) []float32 {
	if sampleRate <= 0 {
		return samples
	}
	minSamples := int(minClipDuration.Seconds() * float64(sampleRate))
	if len(samples) >= minSamples {
		return samples
	}
	padSamples := minSamples - len(samples) + sampleRate/10
	padded := make([]float32, 0, len(samples)+padSamples)
	padded = append(padded, samples...)
	for i := 0; i < padSamples; i++ {
		t := float64(i) / float64(sampleRate)
		padded = append(padded, float32(0.5*math.Sin(2*math.Pi*padToneHz*t)))
	}
	return padded
}
