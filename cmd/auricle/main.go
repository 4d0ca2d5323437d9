// Command auricle is the main entry point for the Auricle voice dialogue
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/auricle-ai/auricle/internal/api"
	asrstage "github.com/auricle-ai/auricle/internal/asr"
	"github.com/auricle-ai/auricle/internal/config"
	"github.com/auricle-ai/auricle/internal/health"
	llmstage "github.com/auricle-ai/auricle/internal/llm"
	"github.com/auricle-ai/auricle/internal/monitor"
	"github.com/auricle-ai/auricle/internal/observe"
	"github.com/auricle-ai/auricle/internal/pipeline"
	"github.com/auricle-ai/auricle/internal/playback"
	"github.com/auricle-ai/auricle/internal/service"
	"github.com/auricle-ai/auricle/internal/state"
	"github.com/auricle-ai/auricle/internal/task"
	ttsstage "github.com/auricle-ai/auricle/internal/tts"
	"github.com/auricle-ai/auricle/internal/ws"
	"github.com/auricle-ai/auricle/pkg/audio"
	asrprov "github.com/auricle-ai/auricle/pkg/provider/asr"
	"github.com/auricle-ai/auricle/pkg/provider/asr/funasr"
	"github.com/auricle-ai/auricle/pkg/provider/asr/whisper"
	llmprov "github.com/auricle-ai/auricle/pkg/provider/llm"
	"github.com/auricle-ai/auricle/pkg/provider/llm/anyllm"
	ttsprov "github.com/auricle-ai/auricle/pkg/provider/tts"
	"github.com/auricle-ai/auricle/pkg/provider/tts/kokoro"
	"github.com/auricle-ai/auricle/pkg/provider/vad"
	"github.com/auricle-ai/auricle/pkg/provider/vad/energy"
	"github.com/auricle-ai/auricle/pkg/provider/vad/silero"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "auricle.yaml", "path to the YAML configuration file")
	flag.Parse()

	// .env is optional; provider API keys can come from it.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "auricle: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "auricle: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("auricle starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "auricle",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Shared state ──────────────────────────────────────────────────────────
	registry := state.NewRegistry()
	guard := state.NewGuard(registry, logger)
	queues := pipeline.NewQueues(pipeline.DefaultCapacities(), logger)

	prompts, err := config.NewPromptStore(logger)
	if err != nil {
		slog.Error("failed to open prompt store", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	asrEngine, err := buildASREngine(cfg)
	if err != nil {
		slog.Error("failed to build asr engine", "err", err)
		return 1
	}
	llmProvider, err := buildLLMProvider(cfg)
	if err != nil {
		slog.Error("failed to build llm provider", "err", err)
		return 1
	}
	voices := config.DefaultVoiceRegistry()
	ttsEngine, err := buildTTSEngine(cfg, voices)
	if err != nil {
		slog.Error("failed to build tts engine", "err", err)
		return 1
	}
	detector, err := buildDetector(cfg)
	if err != nil {
		slog.Error("failed to build voice activity detector", "err", err)
		return 1
	}
	if detector != nil {
		defer detector.Close()
	}

	// ── Pipeline stages ───────────────────────────────────────────────────────
	suppressor := audio.NewEchoSuppressor(cfg.Audio.SampleRate)
	player := audio.NewPlayer(cfg.Audio.SampleRate, suppressor, logger)

	asrSvc := asrstage.New(guard, asrEngine, queues.ASR, queues.LLM, asrstage.Config{
		Language: task.Language(cfg.ASR.Language),
		Metrics:  metrics,
		Log:      logger,
	})
	llmSvc := llmstage.New(guard, llmProvider, queues.LLM, queues.TTS, queues.Display, llmstage.Config{
		Prompts:       prompts.Prompt,
		HistoryWindow: cfg.LLM.HistoryWindow,
		Temperature:   cfg.LLM.Temperature,
		MaxTokens:     cfg.LLM.MaxTokens,
		Metrics:       metrics,
		Log:           logger,
	})
	ttsSvc := ttsstage.New(guard, ttsEngine, queues.TTS, queues.Playback, ttsstage.Config{
		Metrics: metrics,
		Log:     logger,
	})
	playbackSvc := playback.New(guard, player, queues.Playback, queues.Display, playback.Config{
		Metrics: metrics,
		Log:     logger,
	})
	hub := ws.NewHub(registry, queues.Display, ws.Config{Metrics: metrics, Log: logger})

	// ── Service manager ───────────────────────────────────────────────────────
	manager := service.NewManager(logger)
	defer manager.StopAll()

	coreServices := []service.Definition{
		asService("player", player, nil, service.DefaultStartupTimeout),
		asService("hub", hub, nil, service.DefaultStartupTimeout),
		asService("asr", asrSvc, nil, service.DefaultStartupTimeout),
		asService("llm", llmSvc, nil, service.LLMStartupTimeout),
		asService("tts", ttsSvc, nil, service.TTSStartupTimeout),
		asService("playback", playbackSvc, []string{"player", "tts"}, service.DefaultStartupTimeout),
	}
	if err := manager.StartAll(ctx, coreServices); err != nil {
		slog.Error("failed to start pipeline services", "err", err)
		return 1
	}

	// ── HTTP surface ──────────────────────────────────────────────────────────
	captureDefs := captureDefinitions(cfg, suppressor, detector, guard, queues, metrics, logger)
	system := api.NewSystem(manager, registry, captureDefs, logger)

	server := api.NewServer(api.Options{
		Config:       cfg,
		System:       system,
		Manager:      manager,
		Prompts:      prompts,
		Voices:       voices,
		VoiceSwapper: &kokoroSwapper{stage: ttsSvc, baseURL: cfg.TTS.BaseURL},
		CurrentVoice: cfg.TTS.Voice,
		WebSocket:    hub.Handler(),
		Health: health.New(
			health.ServiceChecker("asr", asrSvc.Ready),
			health.ServiceChecker("llm", llmSvc.Ready),
			health.ServiceChecker("tts", ttsSvc.Ready),
			health.ServiceChecker("playback", playbackSvc.Ready),
		),
		Metrics: metrics,
		Log:     logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	printStartupSummary(cfg)
	slog.Info("server ready, POST /api/v1/system/start to begin a session")

	select {
	case err := <-httpErr:
		slog.Error("http server error", "err", err)
		return 1
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	system.Stop()
	manager.StopAll()
	slog.Info("goodbye")
	return 0
}

// ── Service wiring ────────────────────────────────────────────────────────────

// asService declares an already-built stage to the manager.
func asService(name string, svc service.Service, deps []string, timeout time.Duration) service.Definition {
	return service.Definition{
		Name:           name,
		Factory:        func() (service.Service, error) { return svc, nil },
		Dependencies:   deps,
		Required:       true,
		StartupTimeout: timeout,
	}
}

// captureDefinitions builds the audio front end the system endpoints start
// and stop: the microphone capture and the speech monitor reading from it.
func captureDefinitions(
	cfg *config.Config,
	suppressor *audio.EchoSuppressor,
	detector vad.Session,
	guard *state.Guard,
	queues *pipeline.Queues,
	metrics *observe.Metrics,
	logger *slog.Logger,
) api.CaptureDefinitions {
	frameSamples := cfg.Audio.SampleRate * cfg.Audio.FrameDurationMS / 1000
	return func(echoCancellation bool) []service.Definition {
		return []service.Definition{
			{
				Name: "capture",
				Factory: func() (service.Service, error) {
					return audio.NewCapture(audio.CaptureConfig{
						SampleRate:       cfg.Audio.SampleRate,
						FrameSamples:     frameSamples,
						EchoCancellation: echoCancellation,
						Suppressor:       suppressor,
						Sink:             func(f audio.Frame) { queues.Frames.Put(f) },
						Log:              logger,
					})
				},
				Required:       true,
				StartupTimeout: service.DefaultStartupTimeout,
			},
			{
				Name: "monitor",
				Factory: func() (service.Service, error) {
					return monitor.New(guard, queues.Frames, queues.ASR, monitor.Config{
						SampleRate: cfg.Audio.SampleRate,
						Detector:   detector,
						Metrics:    metrics,
						Log:        logger,
					}), nil
				},
				Dependencies:   []string{"capture"},
				Required:       true,
				StartupTimeout: service.DefaultStartupTimeout,
			},
		}
	}
}

// ── Providers ─────────────────────────────────────────────────────────────────

func buildASREngine(cfg *config.Config) (asrprov.Engine, error) {
	switch cfg.ASR.Engine {
	case "funasr":
		return funasr.New(cfg.ASR.FunASRURL, funasr.WithSampleRate(cfg.Audio.SampleRate))
	default:
		return whisper.New(cfg.ASR.WhisperModelPath, whisper.WithLanguage(cfg.ASR.Language))
	}
}

func buildLLMProvider(cfg *config.Config) (llmprov.Provider, error) {
	var opts []anyllmlib.Option
	if cfg.LLM.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(cfg.LLM.APIKey))
	}
	if cfg.LLM.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.LLM.BaseURL))
	}
	return anyllm.New(cfg.LLM.Provider, cfg.LLM.Model, opts...)
}

func buildTTSEngine(cfg *config.Config, voices *config.VoiceRegistry) (ttsprov.Engine, error) {
	voice, err := voices.Get(cfg.TTS.Voice)
	if err != nil {
		return nil, fmt.Errorf("tts voice %q: %w", cfg.TTS.Voice, err)
	}
	speed := cfg.TTS.Speed
	if speed == 0 {
		speed = voice.Speed
	}
	return kokoro.New(cfg.TTS.BaseURL, kokoro.WithVoice(voice.Preset), kokoro.WithSpeed(speed))
}

// buildDetector returns nil when no detector is configured; the monitor
// then falls back to capture flags and peak amplitude.
func buildDetector(cfg *config.Config) (vad.Session, error) {
	switch cfg.Monitor.VAD {
	case "silero":
		engine, err := silero.New(cfg.Monitor.SileroModelPath)
		if err != nil {
			return nil, err
		}
		return engine.NewSession(vad.DefaultConfig())
	case "energy":
		return energy.New().NewSession(vad.DefaultConfig())
	default:
		return nil, nil
	}
}

// kokoroSwapper installs a different Kokoro voice on the running synthesis
// stage.
type kokoroSwapper struct {
	stage   *ttsstage.Stage
	baseURL string
}

func (s *kokoroSwapper) Swap(ctx context.Context, v config.VoiceConfig) error {
	engine, err := kokoro.New(s.baseURL, kokoro.WithVoice(v.Preset), kokoro.WithSpeed(v.Speed))
	if err != nil {
		return err
	}
	_, err = s.stage.SwapEngine(ctx, engine)
	return err
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Auricle startup summary        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEntry("ASR", cfg.ASR.Engine+" / "+cfg.ASR.Language)
	printEntry("LLM", cfg.LLM.Provider+" / "+cfg.LLM.Model)
	printEntry("TTS", cfg.TTS.Engine+" / "+cfg.TTS.Voice)
	printEntry("VAD", cfg.Monitor.VAD)
	printEntry("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printEntry(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
