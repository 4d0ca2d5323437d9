// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config.
// Use Session to script per-window speech decisions and inspect the
// windows that were submitted.
package mock

import (
	"sync"

	"github.com/auricle-ai/auricle/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil, a fresh default Session
	// is returned.
	Session vad.Session

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// Configs records the Config of every NewSession call in order.
	Configs []vad.Config
}

var _ vad.Engine = (*Engine)(nil)

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Configs = append(e.Configs, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Session is a scriptable vad.Session.
type Session struct {
	mu sync.Mutex

	// Decisions are returned by successive Process calls. Once exhausted,
	// Default is returned.
	Decisions []bool
	// Default is the decision after Decisions runs out.
	Default bool
	// ProcessErr, if non-nil, is returned by every Process call.
	ProcessErr error

	// Windows records every submitted window.
	Windows [][]float32
	// ResetCalls counts Reset invocations.
	ResetCalls int
	// Closed reports whether Close was called.
	Closed bool
}

var _ vad.Session = (*Session)(nil)

// Process records the window and returns the next scripted decision.
func (s *Session) Process(window []float32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]float32, len(window))
	copy(cp, window)
	s.Windows = append(s.Windows, cp)
	if s.ProcessErr != nil {
		return false, s.ProcessErr
	}
	if len(s.Decisions) > 0 {
		d := s.Decisions[0]
		s.Decisions = s.Decisions[1:]
		return d, nil
	}
	return s.Default, nil
}

// Reset increments ResetCalls.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCalls++
}

// Close marks the session closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}
