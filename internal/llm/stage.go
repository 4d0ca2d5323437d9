// Package llm implements the answer generation stage: it streams a model
// response for each transcribed question and fans the stream out as
// sentence-sized task clones for synthesis.
package llm

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
	llmprov "github.com/auricle-ai/auricle/pkg/provider/llm"
)

// defaultHistoryWindow is how many past exchanges accompany each question.
const defaultHistoryWindow = 3

// skipMarkers are streamed chunks that carry model scaffolding rather than
// answer text.
var skipMarkers = map[string]bool{"<think>": true, "\n\n": true, "</think>": true}

// PromptFunc resolves the system prompt for a language.
type PromptFunc func(task.Language) string

// Config carries the optional collaborators of the generation stage.
type Config struct {
	// Prompts resolves the per-language system prompt. Nil means no system
	// prompt.
	Prompts PromptFunc

	// HistoryWindow is the number of past exchanges sent with each
	// question. Defaults to 3.
	HistoryWindow int

	// Temperature and MaxTokens are forwarded to the provider; zero means
	// provider default.
	Temperature float64
	MaxTokens   int

	// SkipWarmup disables the startup warmup request.
	SkipWarmup bool

	Metrics *observe.Metrics
	Log     *slog.Logger
}

// Stage is the answer generation service.
type Stage struct {
	guard    *state.Guard
	provider llmprov.Provider
	in       *pipeline.Queue[task.VoiceTask]
	out      *pipeline.Queue[task.VoiceTask]
	display  *pipeline.Queue[task.Message]
	cfg      Config
	log      *slog.Logger
	metrics  *observe.Metrics
	ready    atomic.Bool
}

var _ service.Service = (*Stage)(nil)

// New wires a generation stage between the transcript and synthesis queues.
// display may be nil when no UI is attached.
func New(guard *state.Guard, provider llmprov.Provider, in, out *pipeline.Queue[task.VoiceTask], display *pipeline.Queue[task.Message], cfg Config) *Stage {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Stage{
		guard:    guard,
		provider: provider,
		in:       in,
		out:      out,
		display:  display,
		cfg:      cfg,
		log:      cfg.Log,
		metrics:  cfg.Metrics,
	}
}

// Ready reports whether the generation loop is consuming.
func (s *Stage) Ready() bool { return s.ready.Load() }

// Run warms the model up and processes questions until the context is
// cancelled.
func (s *Stage) Run(ctx context.Context) error {
	if !s.cfg.SkipWarmup {
		s.warmup(ctx)
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

// warmup runs one throwaway completion so the first question does not pay
// model cold-start costs.
func (s *Stage) warmup(ctx context.Context) {
	req := llmprov.Request{
		SystemPrompt: s.systemPrompt(task.LanguageChinese),
		Messages:     []llmprov.Message{{Role: llmprov.RoleUser, Content: "你好"}},
		MaxTokens:    16,
	}
	if _, err := s.provider.Complete(ctx, req); err != nil {
		s.log.Warn("generation warmup failed", "error", err)
	}
}

func (s *Stage) systemPrompt(lang task.Language) string {
	if s.cfg.Prompts == nil {
		return ""
	}
	return s.cfg.Prompts(lang)
}

func (s *Stage) process(ctx context.Context, vt task.VoiceTask) {
	question := vt.Transcript
	s.log.Info("user question", "task_id", vt.ID, "question", question)
	if s.display != nil {
		s.display.Put(task.NewQuestionMessage(vt))
	}

	vt.Timings.LLMStart = time.Now()

	stream, err := s.provider.Stream(ctx, s.buildRequest(vt))
	if err != nil {
		s.log.Error("answer stream failed to start", "task_id", vt.ID, "error", err)
		s.metrics.RecordEngineError(ctx, "llm")
		return
	}

	seg := newSegmenter()
	index := 0
	for chunk := range stream {
		if !s.guard.ValidTask(vt) {
			s.metrics.RecordDrop(ctx, "llm", "invalid_task")
			go drain(stream)
			return
		}
		if chunk.FinishReason == llmprov.FinishReasonError {
			s.log.Error("answer stream failed", "task_id", vt.ID, "error", chunk.Text)
			s.metrics.RecordEngineError(ctx, "llm")
			go drain(stream)
			return
		}
		if chunk.Text == "" || skipMarkers[chunk.Text] {
			continue
		}
		if sentence, ok := seg.feed(chunk.Text); ok {
			s.emit(ctx, &vt, sentence, &index)
		}
	}
	if sentence, ok := seg.flush(); ok {
		s.emit(ctx, &vt, sentence, &index)
	}
}

// buildRequest assembles the provider request: system prompt, windowed
// history, and the current question.
func (s *Stage) buildRequest(vt task.VoiceTask) llmprov.Request {
	history := s.guard.Registry.Window(vt.SessionID, s.cfg.HistoryWindow)
	messages := make([]llmprov.Message, 0, 2*len(history)+1)
	for _, turn := range history {
		messages = append(messages,
			llmprov.Message{Role: llmprov.RoleUser, Content: turn.Question},
			llmprov.Message{Role: llmprov.RoleAssistant, Content: turn.Answer},
		)
	}
	messages = append(messages, llmprov.Message{Role: llmprov.RoleUser, Content: vt.Transcript})

	return llmprov.Request{
		SystemPrompt: s.systemPrompt(vt.Language),
		Messages:     messages,
		Temperature:  s.cfg.Temperature,
		MaxTokens:    s.cfg.MaxTokens,
	}
}

// emit forwards one completed sentence as its own task clone.
func (s *Stage) emit(ctx context.Context, vt *task.VoiceTask, sentence string, index *int) {
	vt.Sentence = sentence
	vt.SentenceIndex = *index
	vt.Timings.LLMEnd = time.Now()
	s.out.Put(vt.Clone())
	s.metrics.RecordStage(ctx, "llm", vt.Timings.LLMEnd.Sub(vt.Timings.LLMStart))
	s.metrics.RecordQueueDepth(ctx, s.out.Name(), s.out.Len())
	s.log.Info("answer sentence", "task_id", vt.ID, "index", *index, "sentence", sentence)
	*index++
	vt.Timings.LLMStart = time.Now()
}

func drain(ch <-chan llmprov.Chunk) {
	for range ch {
	}
}
