// Package energy implements a dependency-free RMS voice activity detector.
// It is the fallback when no Silero model is available: less accurate
// around breath noise and keyboard clatter, but it never fails to load.
package energy

import (
	"math"

	"github.com/auricle-ai/auricle/pkg/provider/vad"
)

// Engine mints RMS-threshold sessions.
type Engine struct{}

var _ vad.Engine = Engine{}

// New returns the energy engine.
func New() Engine { return Engine{} }

// NewSession creates a session. The configured Threshold is interpreted as
// a normalized RMS level rather than a model probability; useful values
// sit around 0.01 to 0.05.
func (Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	return &session{cfg: cfg}, nil
}

type session struct {
	cfg vad.Config
}

var _ vad.Session = (*session)(nil)

func (s *session) Process(window []float32) (bool, error) {
	if s.cfg.WindowSamples > 0 && len(window) != s.cfg.WindowSamples {
		return false, vad.ErrWindowSize
	}
	if len(window) == 0 {
		return false, nil
	}
	var sum float64
	for _, v := range window {
		sum += float64(v) * float64(v)
	}
	rms := math.Sqrt(sum / float64(len(window)))
	return rms >= float64(s.cfg.Threshold), nil
}

func (s *session) Reset()       {}
func (s *session) Close() error { return nil }
