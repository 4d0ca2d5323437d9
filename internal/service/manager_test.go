package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeService becomes ready after readyDelay and runs until cancelled.
type fakeService struct {
	readyDelay time.Duration
	runErr     error
	neverReady bool

	ready   atomic.Bool
	started atomic.Int32
}

func (f *fakeService) Run(ctx context.Context) error {
	f.started.Add(1)
	if f.runErr != nil {
		return f.runErr
	}
	if !f.neverReady {
		time.Sleep(f.readyDelay)
		f.ready.Store(true)
	}
	<-ctx.Done()
	f.ready.Store(false)
	return nil
}

func (f *fakeService) Ready() bool { return f.ready.Load() }

func def(name string, svc Service, mod ...func(*Definition)) Definition {
	d := Definition{
		Name:           name,
		Factory:        func() (Service, error) { return svc, nil },
		Required:       true,
		StartupTimeout: 2 * time.Second,
	}
	for _, m := range mod {
		m(&d)
	}
	return d
}

func TestManager_StartAndStatus(t *testing.T) {
	t.Parallel()
	m := NewManager(testLogger())
	t.Cleanup(m.StopAll)

	if err := m.Start(context.Background(), def("capture", &fakeService{})); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if !m.IsRunning("capture") {
		t.Error("started service not reported running")
	}
	if _, ok := m.Get("capture"); !ok {
		t.Error("Get did not find the started service")
	}

	st := m.Status()
	if st.Total != 1 || st.Running != 1 || st.Ready != 1 {
		t.Errorf("status = %+v, want 1/1/1", st)
	}
	if st.Services[0].Name != "capture" || !st.Services[0].Ready {
		t.Errorf("service status = %+v", st.Services[0])
	}
}

func TestManager_StartDuplicate(t *testing.T) {
	t.Parallel()
	m := NewManager(testLogger())
	t.Cleanup(m.StopAll)

	if err := m.Start(context.Background(), def("asr", &fakeService{})); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start(context.Background(), def("asr", &fakeService{})); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("duplicate Start error = %v, want ErrAlreadyRunning", err)
	}
}

func TestManager_DependencyMustBeRunning(t *testing.T) {
	t.Parallel()
	m := NewManager(testLogger())
	t.Cleanup(m.StopAll)

	withDep := def("monitor", &fakeService{}, func(d *Definition) {
		d.Dependencies = []string{"capture"}
	})
	if err := m.Start(context.Background(), withDep); !errors.Is(err, ErrDependencyNotRunning) {
		t.Fatalf("Start error = %v, want ErrDependencyNotRunning", err)
	}

	if err := m.Start(context.Background(), def("capture", &fakeService{})); err != nil {
		t.Fatalf("Start capture: %v", err)
	}
	if err := m.Start(context.Background(), withDep); err != nil {
		t.Errorf("Start with satisfied dependency: %v", err)
	}
}

func TestManager_DependencyMustBeReady(t *testing.T) {
	t.Parallel()
	m := NewManager(testLogger())
	t.Cleanup(m.StopAll)

	capture := &fakeService{}
	if err := m.Start(context.Background(), def("capture", capture)); err != nil {
		t.Fatalf("Start capture: %v", err)
	}

	// A registered dependency that no longer reports ready must not
	// satisfy the check.
	capture.ready.Store(false)
	withDep := def("monitor", &fakeService{}, func(d *Definition) {
		d.Dependencies = []string{"capture"}
	})
	if err := m.Start(context.Background(), withDep); !errors.Is(err, ErrDependencyNotRunning) {
		t.Fatalf("Start error = %v, want ErrDependencyNotRunning", err)
	}

	capture.ready.Store(true)
	if err := m.Start(context.Background(), withDep); err != nil {
		t.Errorf("Start with ready dependency: %v", err)
	}
}

func TestManager_DependencyDiedAfterStart(t *testing.T) {
	t.Parallel()
	m := NewManager(testLogger())
	t.Cleanup(m.StopAll)

	capture := &haltService{quit: make(chan struct{})}
	if err := m.Start(context.Background(), def("capture", capture)); err != nil {
		t.Fatalf("Start capture: %v", err)
	}

	close(capture.quit)
	deadline := time.Now().Add(2 * time.Second)
	for m.Status().Running != 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for capture to exit")
		}
		time.Sleep(10 * time.Millisecond)
	}

	withDep := def("monitor", &fakeService{}, func(d *Definition) {
		d.Dependencies = []string{"capture"}
	})
	if err := m.Start(context.Background(), withDep); !errors.Is(err, ErrDependencyNotRunning) {
		t.Errorf("Start error = %v, want ErrDependencyNotRunning for a dead dependency", err)
	}
}

// haltService stays ready while running and exits when told to, so a
// dependency can be killed out from under the manager.
type haltService struct {
	quit  chan struct{}
	ready atomic.Bool
}

func (s *haltService) Run(ctx context.Context) error {
	s.ready.Store(true)
	select {
	case <-s.quit:
	case <-ctx.Done():
	}
	return nil
}

func (s *haltService) Ready() bool { return s.ready.Load() }

func TestManager_StatusReportsStartupErrors(t *testing.T) {
	t.Parallel()
	m := NewManager(testLogger())
	t.Cleanup(m.StopAll)

	if err := m.Start(context.Background(), def("capture", &fakeService{runErr: errors.New("device busy")})); err == nil {
		t.Fatal("failing Start succeeded")
	}
	msg, ok := m.Status().StartupErrors["capture"]
	if !ok || !strings.Contains(msg, "device busy") {
		t.Errorf("startup error = %q, want the run failure recorded", msg)
	}

	if err := m.Start(context.Background(), def("capture", &fakeService{})); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if _, ok := m.Status().StartupErrors["capture"]; ok {
		t.Error("successful restart left the startup error in place")
	}
}

func TestManager_StartupTimeout(t *testing.T) {
	t.Parallel()
	m := NewManager(testLogger())
	t.Cleanup(m.StopAll)

	slow := def("tts", &fakeService{neverReady: true}, func(d *Definition) {
		d.StartupTimeout = 150 * time.Millisecond
	})
	if err := m.Start(context.Background(), slow); !errors.Is(err, ErrStartupTimeout) {
		t.Errorf("Start error = %v, want ErrStartupTimeout", err)
	}
	if m.IsRunning("tts") {
		t.Error("timed-out service left registered")
	}
}

func TestManager_FactoryError(t *testing.T) {
	t.Parallel()
	m := NewManager(testLogger())

	wantErr := errors.New("missing model")
	d := Definition{
		Name:    "asr",
		Factory: func() (Service, error) { return nil, wantErr },
	}
	if err := m.Start(context.Background(), d); !errors.Is(err, wantErr) {
		t.Errorf("Start error = %v, want %v", err, wantErr)
	}
}

func TestManager_RunFailureDuringStartup(t *testing.T) {
	t.Parallel()
	m := NewManager(testLogger())

	wantErr := errors.New("device busy")
	if err := m.Start(context.Background(), def("capture", &fakeService{runErr: wantErr})); !errors.Is(err, wantErr) {
		t.Errorf("Start error = %v, want %v", err, wantErr)
	}
	if m.IsRunning("capture") {
		t.Error("failed service left registered")
	}
}

func TestManager_HealthCheckOverridesReady(t *testing.T) {
	t.Parallel()
	m := NewManager(testLogger())
	t.Cleanup(m.StopAll)

	probed := def("llm", &fakeService{neverReady: true}, func(d *Definition) {
		d.HealthCheck = func(context.Context) error { return nil }
	})
	if err := m.Start(context.Background(), probed); err != nil {
		t.Errorf("Start with health check: %v", err)
	}
}

func TestManager_StopAllowsRestart(t *testing.T) {
	t.Parallel()
	m := NewManager(testLogger())
	t.Cleanup(m.StopAll)

	svc := &fakeService{}
	if err := m.Start(context.Background(), def("capture", svc)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Stop("capture"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if m.IsRunning("capture") {
		t.Error("stopped service still registered")
	}

	restarted := &fakeService{}
	if err := m.Start(context.Background(), def("capture", restarted)); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if restarted.started.Load() != 1 {
		t.Errorf("restart ran %d times, want 1", restarted.started.Load())
	}
}

func TestManager_StopUnknown(t *testing.T) {
	t.Parallel()
	m := NewManager(testLogger())
	if err := m.Stop("ghost"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop error = %v, want ErrNotRunning", err)
	}
}

func TestManager_StopAllReverseOrderWithHooks(t *testing.T) {
	t.Parallel()
	m := NewManager(testLogger())

	var mu sync.Mutex
	var events []string
	record := func(ev string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}

	mkSvc := func(name string) Service {
		return &trackingService{onStop: func() { record("stop:" + name) }}
	}
	for _, name := range []string{"capture", "monitor", "asr"} {
		if err := m.Start(context.Background(), def(name, mkSvc(name))); err != nil {
			t.Fatalf("Start %s: %v", name, err)
		}
	}
	m.AddShutdownHook(func() { record("hook") })

	m.StopAll()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"hook", "stop:asr", "stop:monitor", "stop:capture"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}

// trackingService is ready immediately and reports its shutdown.
type trackingService struct {
	onStop func()
	ready  atomic.Bool
}

func (s *trackingService) Run(ctx context.Context) error {
	s.ready.Store(true)
	<-ctx.Done()
	s.onStop()
	return nil
}

func (s *trackingService) Ready() bool { return s.ready.Load() }

func TestManager_StartAll(t *testing.T) {
	t.Parallel()
	m := NewManager(testLogger())
	t.Cleanup(m.StopAll)

	optFail := def("display", &fakeService{runErr: errors.New("no screen")}, func(d *Definition) {
		d.Required = false
	})
	defs := []Definition{
		def("capture", &fakeService{}),
		optFail,
		def("monitor", &fakeService{}),
	}
	if err := m.StartAll(context.Background(), defs); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if !m.IsRunning("capture") || !m.IsRunning("monitor") {
		t.Error("required services not running")
	}
	if m.IsRunning("display") {
		t.Error("failed optional service registered")
	}

	reqFail := []Definition{def("asr", &fakeService{runErr: errors.New("boom")})}
	if err := m.StartAll(context.Background(), reqFail); err == nil {
		t.Error("StartAll ignored a required failure")
	}
}
