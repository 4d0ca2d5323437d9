// Package kokoro implements speech synthesis against a local
// Kokoro-FastAPI server, which exposes the OpenAI speech API shape. The
// server renders WAV; the engine unwraps it to raw PCM for the playback
// path.
package kokoro

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/auricle-ai/auricle/pkg/audio"
	"github.com/auricle-ai/auricle/pkg/provider/tts"
)

const (
	defaultTimeout = 60 * time.Second
	defaultVoice   = "af_heart"
	defaultModel   = "kokoro"
)

// Engine is an HTTP tts.Engine for a Kokoro-FastAPI server.
type Engine struct {
	baseURL    string
	voice      string
	model      string
	speed      float64
	httpClient *http.Client
}

var _ tts.Engine = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithVoice selects the voice preset, e.g. "af_heart" or "zf_xiaoxiao".
func WithVoice(voice string) Option {
	return func(e *Engine) { e.voice = voice }
}

// WithSpeed adjusts the speaking rate. 1.0 is normal speed.
func WithSpeed(speed float64) Option {
	return func(e *Engine) { e.speed = speed }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.httpClient = c }
}

// New returns an engine talking to the Kokoro server at baseURL, e.g.
// "http://127.0.0.1:8880".
func New(baseURL string, opts ...Option) (*Engine, error) {
	if baseURL == "" {
		return nil, errors.New("kokoro: baseURL must not be empty")
	}
	e := &Engine{
		baseURL:    strings.TrimRight(baseURL, "/"),
		voice:      defaultVoice,
		model:      defaultModel,
		speed:      1.0,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Voice returns the configured voice preset.
func (e *Engine) Voice() string { return e.voice }

// Setup probes the server so startup fails fast when it is unreachable.
func (e *Engine) Setup(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("kokoro: build health request: %w", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kokoro: server unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("kokoro: server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Warmup renders a short throwaway sentence.
func (e *Engine) Warmup(ctx context.Context) error {
	_, _, err := e.Synthesize(ctx, "Ready.")
	return err
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed,omitempty"`
}

// Synthesize renders the sentence through /v1/audio/speech and unwraps the
// returned WAV.
func (e *Engine) Synthesize(ctx context.Context, text string) ([]byte, int, error) {
	payload, err := json.Marshal(speechRequest{
		Model:          e.model,
		Input:          text,
		Voice:          e.voice,
		ResponseFormat: "wav",
		Speed:          e.speed,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("kokoro: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("kokoro: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("kokoro: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, 0, fmt.Errorf("kokoro: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("kokoro: read response: %w", err)
	}
	pcm, rate, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, 0, fmt.Errorf("kokoro: decode audio: %w", err)
	}
	return pcm, rate, nil
}

// Close is a no-op; the engine holds no persistent resources.
func (e *Engine) Close() error { return nil }
