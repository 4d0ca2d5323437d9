// Package funasr implements speech recognition against a local FunASR
// runtime over HTTP. It posts each utterance as a WAV file and reads the
// recognized text back as JSON, which keeps the heavyweight Paraformer
// models out of this process.
package funasr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/auricle-ai/auricle/pkg/audio"
	"github.com/auricle-ai/auricle/pkg/provider/asr"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultSampleRate = 16000
)

// Engine is an HTTP asr.Engine for a FunASR runtime.
type Engine struct {
	baseURL    string
	httpClient *http.Client
	sampleRate int
}

var _ asr.Engine = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.httpClient = c }
}

// WithSampleRate sets the PCM sample rate of submitted utterances.
// Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(e *Engine) { e.sampleRate = rate }
}

// New returns an engine talking to the FunASR runtime at baseURL, e.g.
// "http://127.0.0.1:10095".
func New(baseURL string, opts ...Option) (*Engine, error) {
	if baseURL == "" {
		return nil, errors.New("funasr: baseURL must not be empty")
	}
	e := &Engine{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Setup probes the runtime so startup fails fast when it is unreachable.
func (e *Engine) Setup(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("funasr: build health request: %w", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("funasr: runtime unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("funasr: runtime unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Warmup submits one second of silence so the runtime's first-inference
// costs are paid before a user is waiting.
func (e *Engine) Warmup(ctx context.Context) error {
	_, err := e.Transcribe(ctx, make([]float32, e.sampleRate), "zh")
	return err
}

type recognizeResponse struct {
	Text string `json:"text"`
}

// Transcribe posts the utterance and returns the recognized text.
func (e *Engine) Transcribe(ctx context.Context, samples []float32, _ string) (string, error) {
	wav := audio.EncodeWAV(audio.Float32ToBytes(samples), e.sampleRate)

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("funasr: create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("funasr: write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("funasr: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/recognize", body)
	if err != nil {
		return "", fmt.Errorf("funasr: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("funasr: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("funasr: status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var out recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("funasr: decode response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

// Close is a no-op; the engine holds no persistent resources.
func (e *Engine) Close() error { return nil }
