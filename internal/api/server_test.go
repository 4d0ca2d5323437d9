package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/auricle-ai/auricle/internal/config"
	"github.com/auricle-ai/auricle/internal/observe"
	"github.com/auricle-ai/auricle/internal/service"
	"github.com/auricle-ai/auricle/internal/state"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// idleService becomes ready after an optional delay and runs until
// cancelled.
type idleService struct {
	readyDelay time.Duration
	ready      atomic.Bool
}

func (s *idleService) Run(ctx context.Context) error {
	if s.readyDelay > 0 {
		select {
		case <-time.After(s.readyDelay):
		case <-ctx.Done():
			return nil
		}
	}
	s.ready.Store(true)
	<-ctx.Done()
	s.ready.Store(false)
	return nil
}

func (s *idleService) Ready() bool { return s.ready.Load() }

// stubSwapper records swap requests and fails on demand.
type stubSwapper struct {
	err     error
	swapped atomic.Value
}

func (s *stubSwapper) Swap(_ context.Context, v config.VoiceConfig) error {
	if s.err != nil {
		return s.err
	}
	s.swapped.Store(v.ID)
	return nil
}

type fixture struct {
	server   *Server
	registry *state.Registry
	manager  *service.Manager
	swapper  *stubSwapper
	client   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithCaptureDelay(t, 0)
}

// newFixtureWithCaptureDelay builds a fixture whose capture service takes
// readyDelay to report ready, like a real device opening.
func newFixtureWithCaptureDelay(t *testing.T, readyDelay time.Duration) *fixture {
	t.Helper()
	log := discardLogger()
	registry := state.NewRegistry()
	manager := service.NewManager(log)
	t.Cleanup(manager.StopAll)

	defs := func(bool) []service.Definition {
		return []service.Definition{{
			Name:           "capture",
			Factory:        func() (service.Service, error) { return &idleService{readyDelay: readyDelay}, nil },
			Required:       true,
			StartupTimeout: 2 * time.Second,
		}}
	}

	cfg := config.Default()
	cfg.ASR.WhisperModelPath = "/models/ggml-base.en.bin"
	swapper := &stubSwapper{}
	srv := NewServer(Options{
		Config:       cfg,
		System:       NewSystem(manager, registry, defs, log),
		Manager:      manager,
		Prompts:      config.NewPromptStoreAt(filepath.Join(t.TempDir(), "prompts.json"), log),
		Voices:       config.DefaultVoiceRegistry(),
		VoiceSwapper: swapper,
		CurrentVoice: "af_heart",
		Metrics:      testMetrics(t),
		Log:          log,
	})

	client := httptest.NewServer(srv.Handler())
	t.Cleanup(client.Close)
	return &fixture{server: srv, registry: registry, manager: manager, swapper: swapper, client: client}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.client.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := f.client.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && json.Unmarshal(raw, &decoded) != nil {
		decoded = map[string]any{"_raw": string(raw)}
	}
	return resp, decoded
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSystem_StartStopLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	firstSession := f.registry.SessionID()

	resp, body := f.do(t, "POST", "/api/v1/system/start", `{"enable_echo_cancellation": false}`)
	if resp.StatusCode != http.StatusAccepted || body["success"] != true {
		t.Fatalf("start = %d %v", resp.StatusCode, body)
	}
	if f.registry.SessionID() == firstSession {
		t.Error("start did not begin a new session")
	}

	waitFor(t, "system running", func() bool { return f.server.system.Status() == SystemRunning })
	if !f.manager.IsRunning("capture") {
		t.Error("capture service not running after start")
	}

	// A second start is rejected while running.
	_, body = f.do(t, "POST", "/api/v1/system/start", "")
	if body["success"] != false {
		t.Error("second start accepted while running")
	}

	resp, body = f.do(t, "POST", "/api/v1/system/stop", "")
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("stop = %d %v", resp.StatusCode, body)
	}
	if f.manager.IsRunning("capture") {
		t.Error("capture service still running after stop")
	}

	_, body = f.do(t, "POST", "/api/v1/system/stop", "")
	if body["success"] != false {
		t.Error("second stop reported success")
	}
}

func TestSystem_StartSurvivesRequestCompletion(t *testing.T) {
	t.Parallel()
	f := newFixtureWithCaptureDelay(t, 300*time.Millisecond)

	// The request context is cancelled the moment the 202 is written; the
	// capture service is still opening its device at that point and must
	// keep starting regardless.
	resp, body := f.do(t, "POST", "/api/v1/system/start", "")
	if resp.StatusCode != http.StatusAccepted || body["success"] != true {
		t.Fatalf("start = %d %v", resp.StatusCode, body)
	}

	waitFor(t, "system running", func() bool { return f.server.system.Status() == SystemRunning })
	if !f.manager.IsRunning("capture") {
		t.Error("capture service not running after a slow start")
	}
}

func TestSystem_RestartSurvivesRequestCompletion(t *testing.T) {
	t.Parallel()
	f := newFixtureWithCaptureDelay(t, 200*time.Millisecond)

	resp, _ := f.do(t, "POST", "/api/v1/system/restart", "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("restart = %d, want 202", resp.StatusCode)
	}
	waitFor(t, "system running after restart", func() bool {
		return f.server.system.Status() == SystemRunning
	})
}

func TestSystem_Status(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp, body := f.do(t, "GET", "/api/v1/system/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != SystemStopped {
		t.Errorf("status = %v, want stopped", body["status"])
	}
	if body["uptime_seconds"] != float64(0) {
		t.Errorf("uptime = %v, want 0 while stopped", body["uptime_seconds"])
	}
}

func TestASR_Languages(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp, body := f.do(t, "GET", "/api/v1/asr/languages", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("languages = %d", resp.StatusCode)
	}
	if body["current"] != "en" {
		t.Errorf("current = %v, want en", body["current"])
	}
	langs, _ := body["languages"].([]any)
	if len(langs) != 2 {
		t.Errorf("languages = %v, want [en zh]", body["languages"])
	}
}

func TestTTS_ModelsListAndLoad(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp, body := f.do(t, "GET", "/api/v1/tts/models", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("models = %d", resp.StatusCode)
	}
	if body["current_model_id"] != "af_heart" {
		t.Errorf("current = %v, want af_heart", body["current_model_id"])
	}
	models, _ := body["models"].([]any)
	if len(models) == 0 {
		t.Fatal("no models listed")
	}
	first, _ := models[0].(map[string]any)
	if first["id"] != "af_heart" || first["status"] != "loaded" {
		t.Errorf("first model = %v, want loaded af_heart", first)
	}

	resp, _ = f.do(t, "POST", "/api/v1/tts/models/load", `{"model_id": "zf_xiaoxiao"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("load = %d, want 202", resp.StatusCode)
	}
	waitFor(t, "swap to complete", func() bool {
		id, _ := f.swapper.swapped.Load().(string)
		return id == "zf_xiaoxiao"
	})

	waitFor(t, "status completed", func() bool {
		_, body := f.do(t, "GET", "/api/v1/tts/models/status", "")
		return body["status"] == LoadCompleted && body["current_model_id"] == "zf_xiaoxiao"
	})
}

func TestTTS_LoadUnknownModel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp, _ := f.do(t, "POST", "/api/v1/tts/models/load", `{"model_id": "ghost"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("load unknown = %d, want 404", resp.StatusCode)
	}

	resp, _ = f.do(t, "POST", "/api/v1/tts/models/load", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("load without id = %d, want 400", resp.StatusCode)
	}
}

func TestTTS_LoadFailureReported(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.swapper.err = errors.New("kokoro unreachable")

	resp, _ := f.do(t, "POST", "/api/v1/tts/models/load", `{"model_id": "zf_xiaoxiao"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("load = %d, want 202", resp.StatusCode)
	}

	waitFor(t, "status failed", func() bool {
		_, body := f.do(t, "GET", "/api/v1/tts/models/status", "")
		return body["status"] == LoadFailed
	})
	_, body := f.do(t, "GET", "/api/v1/tts/models/status", "")
	if body["current_model_id"] != "af_heart" {
		t.Errorf("current after failure = %v, want af_heart kept", body["current_model_id"])
	}
}

func TestSettings_PromptsRoundTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, body := f.do(t, "GET", "/api/v1/settings/prompts", "")
	if body["is_custom"] != false {
		t.Error("fresh store reports custom prompts")
	}

	resp, _ := f.do(t, "POST", "/api/v1/settings/prompts", `{"english_prompt": "Answer in one word."}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update = %d", resp.StatusCode)
	}

	_, body = f.do(t, "GET", "/api/v1/settings/prompts", "")
	if body["english_prompt"] != "Answer in one word." || body["is_custom"] != true {
		t.Errorf("prompts after update = %v", body)
	}
	if body["chinese_prompt"] != config.ChineseSystemPrompt {
		t.Error("untouched chinese prompt no longer the default")
	}

	resp, _ = f.do(t, "DELETE", "/api/v1/settings/prompts", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset = %d", resp.StatusCode)
	}
	_, body = f.do(t, "GET", "/api/v1/settings/prompts", "")
	if body["english_prompt"] != config.EnglishSystemPrompt || body["is_custom"] != false {
		t.Errorf("prompts after reset = %v", body)
	}
}

func TestSettings_PromptUpdateValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp, _ := f.do(t, "POST", "/api/v1/settings/prompts", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty update = %d, want 400", resp.StatusCode)
	}

	resp, _ = f.do(t, "POST", "/api/v1/settings/prompts", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid json = %d, want 400", resp.StatusCode)
	}
}

func TestSettings_DefaultPrompts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, body := f.do(t, "GET", "/api/v1/settings/prompts/default", "")
	if body["chinese_prompt"] != config.ChineseSystemPrompt || body["english_prompt"] != config.EnglishSystemPrompt {
		t.Error("default prompts endpoint does not return the built-ins")
	}
}

func TestOperationalEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp, _ := f.do(t, "GET", "/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d", resp.StatusCode)
	}
	resp, _ = f.do(t, "GET", "/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics = %d", resp.StatusCode)
	}
}
