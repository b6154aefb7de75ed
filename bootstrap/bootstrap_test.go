package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestContainer(t *testing.T) {
	container := NewContainer()

	// Test component registration
	err := container.Register("test-service", func(c Container) (interface{}, error) {
		return "test-instance", nil
	})
	if err != nil {
		t.Fatalf("Failed to register component: %v", err)
	}

	// Test component resolution
	instance, err := container.Resolve("test-service")
	if err != nil {
		t.Fatalf("Failed to resolve component: %v", err)
	}

	if instance != "test-instance" {
		t.Errorf("Expected 'test-instance', got %v", instance)
	}

	// Test component exists
	if !container.Has("test-service") {
		t.Error("Container should have test-service")
	}

	if err := container.RegisterInstance("test-service", "other"); err == nil {
		t.Error("Expected error registering a duplicate name")
	}
	if err := container.RegisterInstance("answer", 42); err != nil {
		t.Fatalf("Failed to register instance: %v", err)
	}

	// Test component names
	names := container.Names()
	if len(names) != 2 || names[0] != "answer" || names[1] != "test-service" {
		t.Errorf("Expected [answer test-service], got %v", names)
	}

	if _, err := container.Resolve("missing"); err == nil {
		t.Error("Expected error resolving an unregistered component")
	}
}

func TestContainerFactoryRunsOnce(t *testing.T) {
	container := NewContainer()

	calls := 0
	container.Register("counter", func(c Container) (interface{}, error) {
		calls++
		return &TestService{name: "counter"}, nil
	})

	first, err := ResolveAs[*TestService](container, "counter")
	if err != nil {
		t.Fatalf("Failed to resolve component: %v", err)
	}
	second, err := ResolveAs[*TestService](container, "counter")
	if err != nil {
		t.Fatalf("Failed to resolve component: %v", err)
	}

	if first != second {
		t.Error("Factory components should be created once")
	}
	if calls != 1 {
		t.Errorf("Expected 1 factory call, got %d", calls)
	}

	if _, err := ResolveAs[string](container, "counter"); err == nil {
		t.Error("Expected error resolving with the wrong type")
	}

	container.Register("broken", func(c Container) (interface{}, error) {
		return nil, errors.New("boom")
	})
	if _, err := container.Resolve("broken"); err == nil {
		t.Error("Expected factory error to be returned")
	}
}

func TestLifecycleManager(t *testing.T) {
	lm := NewLifecycleManager(nil)

	// Create a test service
	testService := &TestService{name: "test"}

	// Register service
	err := lm.Register("test", testService)
	if err != nil {
		t.Fatalf("Failed to register service: %v", err)
	}

	// Test start
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = lm.Start(ctx)
	if err != nil {
		t.Fatalf("Failed to start services: %v", err)
	}

	if !testService.started {
		t.Error("Test service should be started")
	}

	if err := lm.Register("late", &TestService{name: "late"}); err == nil {
		t.Error("Expected error registering after start")
	}

	// Test health check
	health, err := lm.Health(ctx)
	if err != nil {
		t.Fatalf("Failed to get health status: %v", err)
	}

	if health["test"].State != HealthHealthy {
		t.Errorf("Expected healthy state, got %v", health["test"].State)
	}
	if health["test"].LastCheck.IsZero() {
		t.Error("Health status should carry the check time")
	}

	// Test stop
	err = lm.Stop(ctx)
	if err != nil {
		t.Fatalf("Failed to stop services: %v", err)
	}

	if !testService.stopped {
		t.Error("Test service should be stopped")
	}
}

func TestLifecycleDependencyOrder(t *testing.T) {
	lm := NewLifecycleManager(nil)
	journal := &journal{}

	// c depends on b, b depends on a
	lm.Register("c", &orderedService{name: "c", journal: journal}, "b")
	lm.Register("a", &orderedService{name: "a", journal: journal})
	lm.Register("b", &orderedService{name: "b", journal: journal}, "a")

	ctx := context.Background()
	if err := lm.Start(ctx); err != nil {
		t.Fatalf("Failed to start services: %v", err)
	}
	if err := lm.Stop(ctx); err != nil {
		t.Fatalf("Failed to stop services: %v", err)
	}

	expected := []string{"start a", "start b", "start c", "stop c", "stop b", "stop a"}
	if got := journal.entries(); fmt.Sprint(got) != fmt.Sprint(expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}

	deps, ok := lm.GetDependencies("c")
	if !ok || len(deps) != 1 || deps[0] != "b" {
		t.Errorf("Expected dependencies [b], got %v", deps)
	}
}

func TestLifecycleStartRollback(t *testing.T) {
	lm := NewLifecycleManager(nil)
	journal := &journal{}

	lm.Register("a", &orderedService{name: "a", journal: journal})
	lm.Register("b", &orderedService{name: "b", journal: journal, startErr: errors.New("port in use")}, "a")

	err := lm.Start(context.Background())
	if err == nil {
		t.Fatal("Expected start to fail")
	}

	var appErr *ApplicationError
	if !errors.As(err, &appErr) || appErr.Service != "b" {
		t.Errorf("Expected ApplicationError for service b, got %v", err)
	}

	expected := []string{"start a", "start b", "stop a"}
	if got := journal.entries(); fmt.Sprint(got) != fmt.Sprint(expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
	if lm.IsStarted() {
		t.Error("Lifecycle manager should not be started after a failed start")
	}
}

func TestLifecycleInvalidDependencies(t *testing.T) {
	tests := []struct {
		name     string
		register func(lm *DefaultLifecycleManager)
	}{
		{
			name: "missing dependency",
			register: func(lm *DefaultLifecycleManager) {
				lm.Register("a", &TestService{name: "a"}, "ghost")
			},
		},
		{
			name: "circular dependency",
			register: func(lm *DefaultLifecycleManager) {
				lm.Register("a", &TestService{name: "a"}, "b")
				lm.Register("b", &TestService{name: "b"}, "a")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lm := NewLifecycleManager(nil)
			tt.register(lm)
			if err := lm.Start(context.Background()); err == nil {
				t.Error("Expected start to fail")
			}
		})
	}
}

func TestLifecycleStopCollectsErrors(t *testing.T) {
	lm := NewLifecycleManager(nil)
	journal := &journal{}

	lm.Register("a", &orderedService{name: "a", journal: journal, stopErr: errors.New("a stuck")})
	lm.Register("b", &orderedService{name: "b", journal: journal, stopErr: errors.New("b stuck")}, "a")

	ctx := context.Background()
	if err := lm.Start(ctx); err != nil {
		t.Fatalf("Failed to start services: %v", err)
	}

	err := lm.Stop(ctx)
	if err == nil {
		t.Fatal("Expected stop errors")
	}
	for _, want := range []string{"a stuck", "b stuck"} {
		found := false
		for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
			if errors.Unwrap(e).Error() == want {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected error %q in %v", want, err)
		}
	}
}

func TestLifecycleEvents(t *testing.T) {
	lm := NewLifecycleManager(nil)
	lm.Register("test", &TestService{name: "test"})

	got := make(chan string, 32)
	lm.AddListener(func(e LifecycleEvent) {
		got <- e.Type
	})

	if err := lm.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start services: %v", err)
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case typ := <-got:
			if typ == EventLifecycleStarted {
				return
			}
		case <-timeout:
			t.Fatal("lifecycle.started was not delivered to the listener")
		}
	}
}

// TestService is a simple service implementation for testing
type TestService struct {
	name    string
	started bool
	stopped bool
}

func (s *TestService) Name() string {
	return s.name
}

func (s *TestService) Start(ctx context.Context) error {
	s.started = true
	return nil
}

func (s *TestService) Stop(ctx context.Context) error {
	s.stopped = true
	return nil
}

func (s *TestService) Health(ctx context.Context) (HealthStatus, error) {
	if s.started && !s.stopped {
		return HealthStatus{
			State:   HealthHealthy,
			Message: "Service is running",
		}, nil
	}
	return HealthStatus{
		State:   HealthUnhealthy,
		Message: "Service is not running",
	}, nil
}

type journal struct {
	mu  sync.Mutex
	log []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.log = append(j.log, entry)
}

func (j *journal) entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.log...)
}

// orderedService records its start and stop calls
type orderedService struct {
	name     string
	journal  *journal
	startErr error
	stopErr  error
}

func (s *orderedService) Name() string { return s.name }

func (s *orderedService) Start(ctx context.Context) error {
	s.journal.add("start " + s.name)
	return s.startErr
}

func (s *orderedService) Stop(ctx context.Context) error {
	s.journal.add("stop " + s.name)
	return s.stopErr
}

func (s *orderedService) Health(ctx context.Context) (HealthStatus, error) {
	return HealthStatus{State: HealthHealthy}, nil
}
