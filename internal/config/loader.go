package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Known engine and provider names per concern. [Validate] rejects names
// outside these sets.
var (
	ValidVADNames    = []string{"silero", "energy", "none"}
	ValidASREngines  = []string{"whisper", "funasr"}
	ValidTTSEngines  = []string{"kokoro"}
	ValidLLMBackends = []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}
	ValidLanguages   = []string{"en", "zh"}
)

// Load reads the YAML configuration file at path, overlays it on the
// defaults, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameDurationMS <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_duration_ms %d must be positive", cfg.Audio.FrameDurationMS))
	}

	if !slices.Contains(ValidVADNames, cfg.Monitor.VAD) {
		errs = append(errs, fmt.Errorf("monitor.vad %q is invalid; valid values: %v", cfg.Monitor.VAD, ValidVADNames))
	}
	if cfg.Monitor.VAD == "silero" && cfg.Monitor.SileroModelPath == "" {
		errs = append(errs, errors.New("monitor.silero_model_path is required for the silero detector"))
	}

	if !slices.Contains(ValidLanguages, cfg.ASR.Language) {
		errs = append(errs, fmt.Errorf("asr.language %q is invalid; valid values: %v", cfg.ASR.Language, ValidLanguages))
	}
	switch {
	case !slices.Contains(ValidASREngines, cfg.ASR.Engine):
		errs = append(errs, fmt.Errorf("asr.engine %q is invalid; valid values: %v", cfg.ASR.Engine, ValidASREngines))
	case cfg.ASR.Engine == "whisper" && cfg.ASR.WhisperModelPath == "":
		errs = append(errs, errors.New("asr.whisper_model_path is required for the whisper engine"))
	case cfg.ASR.Engine == "funasr" && cfg.ASR.FunASRURL == "":
		errs = append(errs, errors.New("asr.funasr_url is required for the funasr engine"))
	}

	if !slices.Contains(ValidLLMBackends, cfg.LLM.Provider) {
		errs = append(errs, fmt.Errorf("llm.provider %q is invalid; valid values: %v", cfg.LLM.Provider, ValidLLMBackends))
	}
	if cfg.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f is out of range [0, 2]", cfg.LLM.Temperature))
	}
	if cfg.LLM.HistoryWindow < 0 {
		errs = append(errs, fmt.Errorf("llm.history_window %d must not be negative", cfg.LLM.HistoryWindow))
	}

	if !slices.Contains(ValidTTSEngines, cfg.TTS.Engine) {
		errs = append(errs, fmt.Errorf("tts.engine %q is invalid; valid values: %v", cfg.TTS.Engine, ValidTTSEngines))
	}
	if cfg.TTS.Engine == "kokoro" && cfg.TTS.BaseURL == "" {
		errs = append(errs, errors.New("tts.base_url is required for the kokoro engine"))
	}
	if cfg.TTS.Speed != 0 && (cfg.TTS.Speed < 0.5 || cfg.TTS.Speed > 2.0) {
		errs = append(errs, fmt.Errorf("tts.speed %.2f is out of range [0.5, 2.0]", cfg.TTS.Speed))
	}

	return errors.Join(errs...)
}
