// Package silero implements voice activity detection with the Silero VAD
// ONNX model through the onnxruntime bindings. One Engine owns the shared
// runtime environment; each session runs its own model state so streams
// stay independent.
package silero

import (
	"fmt"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/auricle-ai/auricle/pkg/provider/vad"
)

// stateResetInterval bounds how long model recurrence accumulates before
// it is cleared. Keeps the ONNX state from drifting on long streams.
const stateResetInterval = 5 * time.Second

var (
	initOnce sync.Once
	initErr  error
)

// Engine loads the Silero model once and mints sessions from it.
type Engine struct {
	modelPath string
}

var _ vad.Engine = (*Engine)(nil)

// New returns an engine backed by the ONNX model at modelPath. The shared
// onnxruntime environment is initialized on first use; set the library
// location with ort.SetSharedLibraryPath before calling New if it is not
// on the default search path.
func New(modelPath string) (*Engine, error) {
	initOnce.Do(func() {
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return nil, fmt.Errorf("silero: initialize onnxruntime: %w", initErr)
	}
	return &Engine{modelPath: modelPath}, nil
}

// NewSession creates an independent detection session.
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	if cfg.SampleRate != 8000 && cfg.SampleRate != 16000 {
		return nil, fmt.Errorf("silero: unsupported sample rate %d", cfg.SampleRate)
	}
	want := 512
	contextSize := 64
	if cfg.SampleRate == 8000 {
		want = 256
		contextSize = 32
	}
	if cfg.WindowSamples != want {
		return nil, fmt.Errorf("silero: window must be %d samples at %d Hz, got %d",
			want, cfg.SampleRate, cfg.WindowSamples)
	}
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("silero: threshold %v out of range", cfg.Threshold)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("silero: session options: %w", err)
	}
	defer options.Destroy()
	if err := options.SetIntraOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("silero: set threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("silero: set threads: %w", err)
	}

	sess, err := ort.NewDynamicAdvancedSession(e.modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		options)
	if err != nil {
		return nil, fmt.Errorf("silero: create session: %w", err)
	}

	s := &session{
		cfg:         cfg,
		sess:        sess,
		contextSize: contextSize,
	}
	s.Reset()
	return s, nil
}

// session holds the model recurrence for one stream: the (2, 1, 128) state
// tensor and the context tail prepended to every window.
type session struct {
	cfg         vad.Config
	sess        *ort.DynamicAdvancedSession
	contextSize int

	state     []float32
	context   []float32
	lastReset time.Time
	closed    bool
}

var _ vad.Session = (*session)(nil)

func (s *session) Reset() {
	s.state = make([]float32, 2*1*128)
	s.context = make([]float32, s.contextSize)
	s.lastReset = time.Now()
}

func (s *session) Process(window []float32) (bool, error) {
	if s.closed {
		return false, fmt.Errorf("silero: session closed")
	}
	if len(window) != s.cfg.WindowSamples {
		return false, fmt.Errorf("%w: got %d, want %d", vad.ErrWindowSize, len(window), s.cfg.WindowSamples)
	}
	if time.Since(s.lastReset) >= stateResetInterval {
		s.Reset()
	}

	input := make([]float32, s.contextSize+len(window))
	copy(input, s.context)
	copy(input[s.contextSize:], window)

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(input))), input)
	if err != nil {
		return false, fmt.Errorf("silero: input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	stateTensor, err := ort.NewTensor(ort.NewShape(2, 1, 128), s.state)
	if err != nil {
		return false, fmt.Errorf("silero: state tensor: %w", err)
	}
	defer stateTensor.Destroy()

	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(s.cfg.SampleRate)})
	if err != nil {
		return false, fmt.Errorf("silero: sr tensor: %w", err)
	}
	defer srTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return false, fmt.Errorf("silero: output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	stateOutTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128))
	if err != nil {
		return false, fmt.Errorf("silero: state output tensor: %w", err)
	}
	defer stateOutTensor.Destroy()

	err = s.sess.Run(
		[]ort.ArbitraryTensor{inputTensor, stateTensor, srTensor},
		[]ort.ArbitraryTensor{outputTensor, stateOutTensor},
	)
	if err != nil {
		return false, fmt.Errorf("silero: inference: %w", err)
	}

	confidence := outputTensor.GetData()[0]
	copy(s.state, stateOutTensor.GetData())
	s.context = input[len(input)-s.contextSize:]

	return confidence >= s.cfg.Threshold, nil
}

func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.sess != nil {
		s.sess.Destroy()
		s.sess = nil
	}
	return nil
}
