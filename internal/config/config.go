// Package config provides the configuration schema, loader, prompt store,
// and voice registry for the Auricle voice dialogue system.
package config

import "time"

// LogLevel controls log verbosity for the Auricle server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Auricle.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Audio   AudioConfig   `yaml:"audio"`
	Monitor MonitorConfig `yaml:"monitor"`
	ASR     ASRConfig     `yaml:"asr"`
	LLM     LLMConfig     `yaml:"llm"`
	TTS     TTSConfig     `yaml:"tts"`
}

// ServerConfig holds network and logging settings for the HTTP surface.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig holds the capture and playback parameters.
type AudioConfig struct {
	// SampleRate is the microphone capture rate in Hz.
	SampleRate int `yaml:"sample_rate"`

	// FrameDurationMS is the size of one captured audio frame in
	// milliseconds.
	FrameDurationMS int `yaml:"frame_duration_ms"`

	// EchoCancellation requests the echo-suppressing duplex capture. When
	// the duplex device cannot be opened the system falls back to plain
	// capture.
	EchoCancellation bool `yaml:"echo_cancellation"`
}

// FrameDuration returns the frame size as a duration.
func (c AudioConfig) FrameDuration() time.Duration {
	return time.Duration(c.FrameDurationMS) * time.Millisecond
}

// MonitorConfig selects the voice activity detector for the speech monitor.
type MonitorConfig struct {
	// VAD names the detector: "silero", "energy", or "none". With "none"
	// the monitor relies on capture-provided flags and peak amplitude.
	VAD string `yaml:"vad"`

	// SileroModelPath is the ONNX model file, required for "silero".
	SileroModelPath string `yaml:"silero_model_path"`
}

// ASRConfig selects and configures the speech recognition engine.
type ASRConfig struct {
	// Language is the recognition language, "en" or "zh". It is fixed for
	// the lifetime of a running instance.
	Language string `yaml:"language"`

	// Engine names the recognizer: "whisper" (native) or "funasr" (HTTP).
	Engine string `yaml:"engine"`

	// WhisperModelPath is the GGML model file, required for "whisper".
	WhisperModelPath string `yaml:"whisper_model_path"`

	// FunASRURL is the base URL of a local FunASR runtime, required for
	// "funasr".
	FunASRURL string `yaml:"funasr_url"`
}

// LLMConfig configures the answer-generation backend.
type LLMConfig struct {
	// Provider names the backend: "openai", "ollama", "llamacpp", and the
	// other any-llm backends.
	Provider string `yaml:"provider"`

	// Model is the model identifier passed to the backend.
	Model string `yaml:"model"`

	// BaseURL overrides the backend's default endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against hosted backends. Local backends ignore
	// it.
	APIKey string `yaml:"api_key"`

	// Temperature is the sampling temperature.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens bounds the generated answer length.
	MaxTokens int `yaml:"max_tokens"`

	// HistoryWindow is how many past exchanges are replayed as context.
	HistoryWindow int `yaml:"history_window"`
}

// TTSConfig configures the speech synthesis engine.
type TTSConfig struct {
	// Engine names the synthesizer. Only "kokoro" is currently supported.
	Engine string `yaml:"engine"`

	// BaseURL is the Kokoro server base URL.
	BaseURL string `yaml:"base_url"`

	// Voice is the id of the voice preset from the voice registry.
	Voice string `yaml:"voice"`

	// Speed adjusts the speaking rate. 1.0 is normal speed.
	Speed float64 `yaml:"speed"`
}

// Default returns the configuration the system runs with when no file is
// given. Paths to model files have no useful default and stay empty.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8000",
			LogLevel:   LogInfo,
		},
		Audio: AudioConfig{
			SampleRate:      16000,
			FrameDurationMS: 100,
		},
		Monitor: MonitorConfig{
			VAD: "energy",
		},
		ASR: ASRConfig{
			Language:  "en",
			Engine:    "whisper",
			FunASRURL: "http://127.0.0.1:10095",
		},
		LLM: LLMConfig{
			Provider:      "llamacpp",
			Model:         "qwen3-8b",
			Temperature:   0.7,
			MaxTokens:     32768,
			HistoryWindow: 3,
		},
		TTS: TTSConfig{
			Engine:  "kokoro",
			BaseURL: "http://127.0.0.1:8880",
			Voice:   "af_heart",
			Speed:   1.0,
		},
	}
}
