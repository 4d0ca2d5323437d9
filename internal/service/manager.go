package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type managed struct {
	def       Definition
	svc       Service
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
	startup   time.Duration
	lastErr   error
	mu        sync.Mutex
}

func (m *managed) setErr(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *managed) errString() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastErr == nil {
		return ""
	}
	return m.lastErr.Error()
}

// Manager owns the lifecycle of the pipeline's long-running services.
type Manager struct {
	log *slog.Logger

	mu          sync.Mutex
	services    map[string]*managed
	order       []string
	hooks       []func()
	startupErrs map[string]string
}

// NewManager returns an empty manager.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:         log,
		services:    make(map[string]*managed),
		startupErrs: make(map[string]string),
	}
}

// recordStartupErr keeps the failure visible through Status until the next
// successful start of the same service.
func (m *Manager) recordStartupErr(name string, err error) {
	m.mu.Lock()
	m.startupErrs[name] = err.Error()
	m.mu.Unlock()
}

// Start builds the service from its definition, launches it, and blocks
// until it reports ready or its startup deadline passes. Dependencies must
// already be running.
func (m *Manager) Start(ctx context.Context, def Definition) error {
	m.mu.Lock()
	if _, ok := m.services[def.Name]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, def.Name)
	}
	for _, dep := range def.Dependencies {
		entry, ok := m.services[dep]
		if !ok {
			m.mu.Unlock()
			err := fmt.Errorf("%w: %s requires %s", ErrDependencyNotRunning, def.Name, dep)
			m.recordStartupErr(def.Name, err)
			return err
		}
		alive := true
		select {
		case <-entry.done:
			alive = false
		default:
		}
		if !alive || !entry.svc.Ready() {
			m.mu.Unlock()
			err := fmt.Errorf("%w: %s requires %s, which is not ready", ErrDependencyNotRunning, def.Name, dep)
			m.recordStartupErr(def.Name, err)
			return err
		}
	}
	m.mu.Unlock()

	svc, err := def.Factory()
	if err != nil {
		err = fmt.Errorf("service: build %s: %w", def.Name, err)
		m.recordStartupErr(def.Name, err)
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	entry := &managed{
		def:       def,
		svc:       svc,
		cancel:    cancel,
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}

	go func() {
		defer close(entry.done)
		if err := svc.Run(runCtx); err != nil && runCtx.Err() == nil {
			entry.setErr(err)
			m.log.Error("service exited", "service", def.Name, "err", err)
		}
	}()

	if err := m.awaitReady(ctx, entry); err != nil {
		cancel()
		select {
		case <-entry.done:
		case <-time.After(stopWait):
		}
		m.recordStartupErr(def.Name, err)
		return err
	}
	entry.startup = time.Since(entry.startedAt)

	m.mu.Lock()
	m.services[def.Name] = entry
	m.order = append(m.order, def.Name)
	delete(m.startupErrs, def.Name)
	m.mu.Unlock()

	m.log.Info("service started", "service", def.Name, "startup", entry.startup)
	return nil
}

func (m *Manager) awaitReady(ctx context.Context, entry *managed) error {
	deadline := time.Now().Add(entry.def.startupTimeout())
	ticker := time.NewTicker(readinessPollInterval)
	defer ticker.Stop()
	for {
		if m.probe(ctx, entry) {
			return nil
		}
		select {
		case <-entry.done:
			entry.mu.Lock()
			err := entry.lastErr
			entry.mu.Unlock()
			if err != nil {
				return fmt.Errorf("service: %s failed during startup: %w", entry.def.Name, err)
			}
			return fmt.Errorf("service: %s exited during startup", entry.def.Name)
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s after %s", ErrStartupTimeout, entry.def.Name, entry.def.startupTimeout())
		}
	}
}

func (m *Manager) probe(ctx context.Context, entry *managed) bool {
	if entry.def.HealthCheck != nil {
		probeCtx, cancel := context.WithTimeout(ctx, readinessPollInterval*10)
		defer cancel()
		return entry.def.HealthCheck(probeCtx) == nil
	}
	return entry.svc.Ready()
}

// StartAll starts the definitions in the given order, which must already be
// dependency-sorted. A required service failing aborts the sequence;
// optional failures are logged and skipped.
func (m *Manager) StartAll(ctx context.Context, defs []Definition) error {
	for _, def := range defs {
		if err := m.Start(ctx, def); err != nil {
			if def.Required {
				return err
			}
			m.log.Warn("optional service failed to start", "service", def.Name, "err", err)
		}
	}
	return nil
}

// Stop cancels the named service, waits up to the stop deadline for it to
// exit, and removes it from the registry so it can be started again.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	entry, ok := m.services[name]
	if ok {
		delete(m.services, name)
		for i, n := range m.order {
			if n == name {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}

	entry.cancel()
	select {
	case <-entry.done:
		m.log.Info("service stopped", "service", name)
	case <-time.After(stopWait):
		m.log.Warn("service did not stop in time", "service", name, "wait", stopWait)
	}
	return nil
}

// StopAll runs the shutdown hooks, then stops every service in reverse
// start order.
func (m *Manager) StopAll() {
	m.mu.Lock()
	hooks := make([]func(), len(m.hooks))
	copy(hooks, m.hooks)
	order := make([]string, len(m.order))
	copy(order, m.order)
	m.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
	for i := len(order) - 1; i >= 0; i-- {
		if err := m.Stop(order[i]); err != nil {
			m.log.Warn("stop failed", "service", order[i], "err", err)
		}
	}
}

// AddShutdownHook registers fn to run at the start of StopAll, before any
// service is stopped.
func (m *Manager) AddShutdownHook(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Get returns the running service registered under name.
func (m *Manager) Get(name string) (Service, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.services[name]
	if !ok {
		return nil, false
	}
	return entry.svc, true
}

// IsRunning reports whether the named service is registered.
func (m *Manager) IsRunning(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.services[name]
	return ok
}

// Status returns a snapshot of all managed services in start order.
func (m *Manager) Status() ManagerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := ManagerStatus{Total: len(m.order)}
	if len(m.startupErrs) > 0 {
		out.StartupErrors = make(map[string]string, len(m.startupErrs))
		for name, msg := range m.startupErrs {
			out.StartupErrors[name] = msg
		}
	}
	for _, name := range m.order {
		entry := m.services[name]
		running := true
		select {
		case <-entry.done:
			running = false
		default:
		}
		ready := entry.svc.Ready()
		if running {
			out.Running++
		}
		if ready {
			out.Ready++
		}
		out.Services = append(out.Services, Status{
			Name:       name,
			Running:    running,
			Ready:      ready,
			Required:   entry.def.Required,
			StartedAt:  entry.startedAt,
			StartupFor: entry.startup,
			LastError:  entry.errString(),
		})
	}
	return out
}
