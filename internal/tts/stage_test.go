package tts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/auricle-ai/auricle/internal/observe"
	"github.com/auricle-ai/auricle/internal/pipeline"
	"github.com/auricle-ai/auricle/internal/state"
	"github.com/auricle-ai/auricle/internal/task"
	ttsmock "github.com/auricle-ai/auricle/pkg/provider/tts/mock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	guard  *state.Guard
	engine *ttsmock.Engine
	in     *pipeline.Queue[task.VoiceTask]
	out    *pipeline.Queue[task.VoiceTask]
	stage  *Stage
}

func newFixture(t *testing.T, engine *ttsmock.Engine) *fixture {
	t.Helper()
	log := discardLogger()
	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	f := &fixture{
		guard:  state.NewGuard(state.NewRegistry(), log),
		engine: engine,
		in:     pipeline.NewQueue[task.VoiceTask]("tts", 32, log),
		out:    pipeline.NewQueue[task.VoiceTask]("playback", 32, log),
	}
	f.stage = New(f.guard, engine, f.in, f.out, Config{Metrics: metrics, Log: log})
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.stage.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(2 * time.Second)
	for !f.stage.Ready() {
		if time.Now().After(deadline) {
			t.Fatal("stage never became ready")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (f *fixture) newTask(sentence string) task.VoiceTask {
	return task.VoiceTask{
		ID:        f.guard.Registry.CreateTaskID(),
		SessionID: f.guard.Registry.SessionID(),
		AnswerID:  "answer-1",
		Sentence:  sentence,
	}
}

func waitTask(t *testing.T, q *pipeline.Queue[task.VoiceTask]) task.VoiceTask {
	t.Helper()
	vt, ok := q.Get(2 * time.Second)
	if !ok {
		t.Fatal("no clip forwarded")
	}
	return vt
}

func TestHasNoWords(t *testing.T) {
	t.Parallel()
	tests := []struct {
		sentence string
		want     bool
	}{
		{"hello", false},
		{"你好", false},
		{"42", false},
		{"...!?", true},
		{"，。！", true},
		{"", true},
		{"  ~ ~ ", true},
	}
	for _, tc := range tests {
		if got := hasNoWords(tc.sentence); got != tc.want {
			t.Errorf("hasNoWords(%q) = %v, want %v", tc.sentence, got, tc.want)
		}
	}
}

func TestStage_SynthesizesAndForwards(t *testing.T) {
	t.Parallel()
	engine := &ttsmock.Engine{Clips: []ttsmock.Clip{{PCM: []byte{1, 0, 2, 0}, SampleRate: 24000}}}
	f := newFixture(t, engine)
	f.start(t)

	f.in.Put(f.newTask("Hello there."))

	got := waitTask(t, f.out)
	if got.Speech.SampleRate != 24000 || len(got.Speech.PCM) != 4 {
		t.Errorf("speech clip = %d bytes at %d Hz, want 4 bytes at 24000 Hz", len(got.Speech.PCM), got.Speech.SampleRate)
	}
	if got.Timings.TTSStart.IsZero() || got.Timings.TTSEnd.IsZero() {
		t.Error("synthesis timings not stamped")
	}
	if len(engine.Texts) != 1 || engine.Texts[0] != "Hello there." {
		t.Errorf("synthesized texts = %q, want [%q]", engine.Texts, "Hello there.")
	}
}

func TestStage_SkipsEmptySentence(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &ttsmock.Engine{})
	f.start(t)

	f.in.Put(f.newTask(""))

	time.Sleep(300 * time.Millisecond)
	if _, ok := f.out.TryGet(); ok {
		t.Error("empty sentence was forwarded")
	}
	if len(f.engine.Texts) != 0 {
		t.Error("engine called for empty sentence")
	}
}

func TestStage_SkipsPunctuationOnlySentence(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &ttsmock.Engine{})
	f.start(t)

	f.in.Put(f.newTask("...!?"))

	time.Sleep(300 * time.Millisecond)
	if _, ok := f.out.TryGet(); ok {
		t.Error("punctuation-only sentence was forwarded")
	}
}

func TestStage_UserSpeakingDropsTask(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &ttsmock.Engine{})
	f.start(t)

	f.guard.UserSpeaking.Set()
	vt := f.newTask("Too late.")
	f.in.Put(vt)

	deadline := time.Now().Add(2 * time.Second)
	for !f.guard.Registry.IsAnswerDropped(vt.AnswerID) {
		if time.Now().After(deadline) {
			t.Fatal("answer not marked dropped")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := f.out.TryGet(); ok {
		t.Error("dropped task was forwarded")
	}
	if len(f.engine.Texts) != 0 {
		t.Error("engine called for dropped task")
	}
}

func TestStage_InvalidTaskIsDiscarded(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &ttsmock.Engine{})
	f.start(t)

	vt := f.newTask("Stale answer.")
	f.guard.Registry.MarkAnswerDropped(vt.AnswerID)
	f.in.Put(vt)

	time.Sleep(300 * time.Millisecond)
	if _, ok := f.out.TryGet(); ok {
		t.Error("invalid task was forwarded")
	}
}

func TestStage_SynthesisErrorReleasesPipeline(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &ttsmock.Engine{SynthesizeErr: errors.New("voice server down")})
	f.start(t)

	f.in.Put(f.newTask("Doomed sentence."))

	deadline := time.Now().Add(2 * time.Second)
	for f.guard.Registry.TaskID() != "" {
		if time.Now().After(deadline) {
			t.Fatal("task id not reset after synthesis failure")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := f.out.TryGet(); ok {
		t.Error("failed synthesis was forwarded")
	}
}

func TestStage_SetupFailureAbortsRun(t *testing.T) {
	t.Parallel()
	wantErr := errors.New("no voices")
	f := newFixture(t, &ttsmock.Engine{SetupErr: wantErr})

	if err := f.stage.Run(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("Run error = %v, want %v", err, wantErr)
	}
}

func TestStage_SwapEngine(t *testing.T) {
	t.Parallel()
	first := &ttsmock.Engine{Default: ttsmock.Clip{PCM: []byte{1, 0}, SampleRate: 16000}}
	f := newFixture(t, first)
	f.start(t)

	replacement := &ttsmock.Engine{Default: ttsmock.Clip{PCM: []byte{9, 0}, SampleRate: 48000}}
	old, err := f.stage.SwapEngine(context.Background(), replacement)
	if err != nil {
		t.Fatalf("SwapEngine: %v", err)
	}
	if old != first {
		t.Error("SwapEngine did not return the previous engine")
	}
	if replacement.SetupCalls != 1 || replacement.WarmupCalls != 1 {
		t.Errorf("replacement lifecycle calls = %d/%d, want 1/1", replacement.SetupCalls, replacement.WarmupCalls)
	}

	f.in.Put(f.newTask("After the swap."))
	got := waitTask(t, f.out)
	if got.Speech.SampleRate != 48000 {
		t.Errorf("speech sample rate = %d, want 48000", got.Speech.SampleRate)
	}
}

func TestStage_SwapEngineSetupFailureKeepsOld(t *testing.T) {
	t.Parallel()
	first := &ttsmock.Engine{}
	f := newFixture(t, first)
	f.start(t)

	bad := &ttsmock.Engine{SetupErr: errors.New("bad model")}
	if _, err := f.stage.SwapEngine(context.Background(), bad); err == nil {
		t.Fatal("SwapEngine succeeded with failing setup")
	}
	if f.stage.Engine() != first {
		t.Error("failing swap replaced the engine")
	}
}
