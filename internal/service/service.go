// Package service implements the lifecycle manager that starts, supervises,
// and stops the long-running components of the voice pipeline. Components
// are declared as definitions with explicit dependencies; the manager
// starts them in dependency order, waits for each to report ready, and
// stops them in reverse order on shutdown.
package service

import (
	"context"
	"errors"
	"time"
)

// Startup deadlines. Model-backed services load weights on first start and
// get a longer leash.
const (
	DefaultStartupTimeout = 60 * time.Second
	LLMStartupTimeout     = 180 * time.Second
	TTSStartupTimeout     = 120 * time.Second

	readinessPollInterval = 100 * time.Millisecond
	stopWait              = 5 * time.Second
)

var (
	// ErrAlreadyRunning is returned when a definition's name is already
	// registered with the manager.
	ErrAlreadyRunning = errors.New("service: already running")
	// ErrNotRunning is returned when the named service is not registered.
	ErrNotRunning = errors.New("service: not running")
	// ErrDependencyNotRunning is returned when a definition names a
	// dependency that has not been started.
	ErrDependencyNotRunning = errors.New("service: dependency not running")
	// ErrStartupTimeout is returned when a service fails to report ready
	// within its startup deadline.
	ErrStartupTimeout = errors.New("service: startup timeout")
)

// Service is a long-running pipeline component. Run blocks until the
// context is canceled; Ready reports whether the component has finished
// initializing and is doing useful work.
type Service interface {
	Run(ctx context.Context) error
	Ready() bool
}

// Pausable is implemented by services that can suspend their effect while
// keeping their resources open, such as the audio capture during a system
// stop.
type Pausable interface {
	Pause()
	Resume()
}

// Definition declares a service to the manager.
type Definition struct {
	// Name registers the service and is referenced by Dependencies.
	Name string
	// Factory builds the service instance. Called once per Start.
	Factory func() (Service, error)
	// Dependencies lists service names that must be running first.
	Dependencies []string
	// Required services abort startup on failure; optional ones log and
	// continue.
	Required bool
	// StartupTimeout bounds the wait for readiness. Zero means
	// DefaultStartupTimeout.
	StartupTimeout time.Duration
	// HealthCheck, when set, replaces Service.Ready as the readiness
	// probe during startup.
	HealthCheck func(ctx context.Context) error
}

func (d Definition) startupTimeout() time.Duration {
	if d.StartupTimeout > 0 {
		return d.StartupTimeout
	}
	return DefaultStartupTimeout
}

// Status is a point-in-time snapshot of one managed service.
type Status struct {
	Name       string        `json:"name"`
	Running    bool          `json:"running"`
	Ready      bool          `json:"ready"`
	Required   bool          `json:"required"`
	StartedAt  time.Time     `json:"started_at"`
	StartupFor time.Duration `json:"startup_duration"`
	LastError  string        `json:"last_error,omitempty"`
}

// ManagerStatus is the snapshot of all managed services.
type ManagerStatus struct {
	Total    int      `json:"total"`
	Running  int      `json:"running"`
	Ready    int      `json:"ready"`
	Services []Status `json:"services"`
	// StartupErrors maps service names to the failure of their most
	// recent start attempt; a successful start clears the entry.
	StartupErrors map[string]string `json:"startup_errors,omitempty"`
}
