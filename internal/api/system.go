package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/auricle-ai/auricle/internal/service"
	"github.com/auricle-ai/auricle/internal/state"
)

// System lifecycle states.
const (
	SystemStopped  = "stopped"
	SystemStarting = "starting"
	SystemRunning  = "running"
	SystemStopping = "stopping"
)

// CaptureDefinitions builds the service definitions of the audio front end,
// capture first. The flag requests the echo-cancelled capture path.
type CaptureDefinitions func(echoCancellation bool) []service.Definition

// System drives the start/stop lifecycle of the audio front end. The rest
// of the pipeline keeps running while the system is stopped; without
// capture no tasks enter it.
type System struct {
	manager     *service.Manager
	registry    *state.Registry
	definitions CaptureDefinitions
	log         *slog.Logger

	mu        sync.Mutex
	status    string
	names     []string
	startedAt time.Time
}

// NewSystem returns a stopped system.
func NewSystem(manager *service.Manager, registry *state.Registry, defs CaptureDefinitions, log *slog.Logger) *System {
	if log == nil {
		log = slog.Default()
	}
	return &System{
		manager:     manager,
		registry:    registry,
		definitions: defs,
		log:         log,
		status:      SystemStopped,
	}
}

// Start begins a new dialogue session and brings the capture services up in
// the background. It reports false when the system is already running or
// starting.
func (s *System) Start(ctx context.Context, echoCancellation bool) bool {
	s.mu.Lock()
	if s.status == SystemRunning || s.status == SystemStarting {
		s.mu.Unlock()
		return false
	}
	s.status = SystemStarting
	s.mu.Unlock()

	session := s.registry.ResetSession()
	s.log.Info("starting voice system", "session_id", session, "echo_cancellation", echoCancellation)

	go s.startServices(ctx, echoCancellation)
	return true
}

func (s *System) startServices(ctx context.Context, echoCancellation bool) {
	defs := s.definitions(echoCancellation)
	if err := s.manager.StartAll(ctx, defs); err != nil {
		s.log.Error("voice system start failed", "error", err)
		s.mu.Lock()
		s.status = SystemStopped
		s.names = nil
		s.mu.Unlock()
		return
	}

	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}

	s.mu.Lock()
	s.status = SystemRunning
	s.names = names
	s.startedAt = time.Now()
	s.mu.Unlock()
	s.log.Info("voice system running", "services", names)
}

// Stop tears the capture services down in reverse start order. It reports
// false when the system is already stopped.
func (s *System) Stop() bool {
	s.mu.Lock()
	if s.status == SystemStopped {
		s.mu.Unlock()
		return false
	}
	s.status = SystemStopping
	names := s.names
	s.mu.Unlock()

	for i := len(names) - 1; i >= 0; i-- {
		if err := s.manager.Stop(names[i]); err != nil {
			s.log.Warn("failed to stop service", "service", names[i], "error", err)
		}
	}

	s.mu.Lock()
	s.status = SystemStopped
	s.names = nil
	s.startedAt = time.Time{}
	s.mu.Unlock()
	s.log.Info("voice system stopped")
	return true
}

// Restart stops the system if needed and starts it again.
func (s *System) Restart(ctx context.Context, echoCancellation bool) bool {
	s.Stop()
	return s.Start(ctx, echoCancellation)
}

// Status returns the lifecycle state.
func (s *System) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Uptime returns how long the system has been running, zero when stopped.
func (s *System) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}
