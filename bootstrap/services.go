package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	natsadapter "github.com/najoast/sntrace/adapters/nats"
	promadapter "github.com/najoast/sntrace/adapters/prometheus"
	"github.com/najoast/sntrace/config"
	"github.com/najoast/sntrace/core"
	"github.com/najoast/sntrace/trace"
)

// Service names used by DefaultApplication
const (
	ServiceScheduler     = "scheduler"
	ServiceTracing       = "tracing"
	ServiceMonitor       = "monitor"
	ServiceConfigWatcher = "config-watcher"
)

// SchedulerService manages the shared worker pool
type SchedulerService struct {
	app *DefaultApplication
}

func (s *SchedulerService) Name() string {
	return ServiceScheduler
}

func (s *SchedulerService) scheduler() (*core.Scheduler, error) {
	return ResolveAs[*core.Scheduler](s.app.container, ComponentScheduler)
}

func (s *SchedulerService) Start(ctx context.Context) error {
	sched, err := s.scheduler()
	if err != nil {
		return err
	}
	if sched.Closed() {
		return core.ErrSchedulerClosed
	}
	return nil
}

// Stop waits up to scheduler.shutdown_timeout for running handlers
func (s *SchedulerService) Stop(ctx context.Context) error {
	if timeout := s.app.Config().Scheduler.ShutdownTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sched, err := s.scheduler()
	if err != nil {
		return err
	}
	return sched.Shutdown(ctx)
}

func (s *SchedulerService) Health(ctx context.Context) (HealthStatus, error) {
	sched, err := s.scheduler()
	if err != nil {
		return HealthStatus{State: HealthUnhealthy, Message: err.Error()}, nil
	}
	if sched.Closed() {
		return HealthStatus{
			State:   HealthStopped,
			Message: "Scheduler shut down",
		}, nil
	}

	return HealthStatus{
		State:   HealthHealthy,
		Message: "Scheduler running",
		Data: map[string]interface{}{
			"pool_size": sched.Pool().Size(),
			"inflight":  sched.Inflight(),
		},
	}, nil
}

// TracingService runs the tracing actor and owns its sink. It is the
// Logger behind the application Tracer; records logged while the service
// is not running are counted and discarded.
type TracingService struct {
	app *DefaultApplication

	svc     atomic.Pointer[trace.Service]
	closers []io.Closer
	mutex   sync.Mutex

	// records logged while no service was running
	discarded atomic.Int64
}

func (s *TracingService) Name() string {
	return ServiceTracing
}

// Log implements trace.Logger
func (s *TracingService) Log(r *trace.Record) {
	if svc := s.svc.Load(); svc != nil {
		svc.Log(r)
		return
	}
	s.discarded.Inc()
}

// Service returns the running tracing actor, nil when stopped
func (s *TracingService) Service() *trace.Service {
	return s.svc.Load()
}

func (s *TracingService) Start(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.svc.Load() != nil {
		return nil
	}

	sched, err := ResolveAs[*core.Scheduler](s.app.container, ComponentScheduler)
	if err != nil {
		return err
	}
	actors, err := ResolveAs[*core.Registry](s.app.container, ComponentActors)
	if err != nil {
		return err
	}
	tracer, err := ResolveAs[*trace.Tracer](s.app.container, ComponentTracer)
	if err != nil {
		return err
	}

	sink, closers, err := s.app.buildSink()
	if err != nil {
		return err
	}

	cfg := s.app.Config()
	svc := trace.NewService(sched, sink,
		trace.WithDiagnostics(trace.NewLoggerDiagnostics(s.app.log)),
		trace.WithActorOptions(cfg.MailboxOptions()...),
		trace.WithActorOptions(core.WithDropHandler(s.onDrop)),
	)
	if err := actors.Register(svc); err != nil {
		closeAll(closers)
		return err
	}

	s.closers = closers
	s.svc.Store(svc)
	s.app.log.Info("tracing service started", "sink", cfg.Sink.Type, "min_level", tracer.MinLevel())
	return nil
}

// Stop drains queued records, then closes the sink
func (s *TracingService) Stop(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	svc := s.svc.Swap(nil)
	if svc == nil {
		return nil
	}

	if timeout := s.app.Config().Scheduler.ShutdownTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := svc.Shutdown(ctx)
	if actors, resolveErr := ResolveAs[*core.Registry](s.app.container, ComponentActors); resolveErr == nil {
		_ = actors.Unregister(svc.ID())
	}

	if closeErr := closeAll(s.closers); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	s.closers = nil

	stats := svc.Stats()
	s.app.log.Info("tracing service stopped",
		"processed", stats.MessagesProcessed,
		"dropped", stats.MessagesDropped,
		"faults", stats.Faults,
	)
	return err
}

func (s *TracingService) Health(ctx context.Context) (HealthStatus, error) {
	svc := s.svc.Load()
	if svc == nil {
		return HealthStatus{
			State:   HealthStopped,
			Message: "Tracing service not running",
			Data:    map[string]interface{}{"discarded": s.discarded.Load()},
		}, nil
	}

	stats := svc.Stats()
	status := HealthStatus{
		State:   HealthHealthy,
		Message: "Tracing service running",
		Data: map[string]interface{}{
			"state":        stats.State.String(),
			"mailbox_size": stats.MailboxSize,
			"posted":       stats.MessagesPosted,
			"processed":    stats.MessagesProcessed,
			"dropped":      stats.MessagesDropped,
			"faults":       stats.Faults,
		},
	}
	if svc.Closing() {
		status.State = HealthStopping
		status.Message = "Tracing service draining"
	}
	if s.app.Config().Sink.Type == config.SinkNATS {
		s.natsHealth(&status)
	}
	return status, nil
}

// natsHealth reports the state of the shared NATS connection. The sink
// holds a lease while running, so this never dials a new connection.
func (s *TracingService) natsHealth(status *HealthStatus) {
	connect, err := ResolveAs[natsadapter.Connector](s.app.container, ComponentNATS)
	if err != nil {
		status.State = HealthUnhealthy
		status.Message = err.Error()
		return
	}
	nc, release, err := connect()
	if err != nil {
		status.State = HealthUnhealthy
		status.Message = "NATS unavailable: " + err.Error()
		return
	}
	defer release()

	status.Data["nats"] = nc.Status().String()
	if !nc.IsConnected() && status.State == HealthHealthy {
		status.State = HealthUnhealthy
		status.Message = "NATS connection " + nc.Status().String()
	}
}

func (s *TracingService) onDrop(actorID string, msg any, reason core.DropReason) {
	s.app.log.Debug("trace record dropped", "actor", actorID, "reason", reason)
}

// buildSink creates the configured sink and the closers that release it
func (app *DefaultApplication) buildSink() (trace.Sink, []io.Closer, error) {
	if app.sink != nil {
		return app.sink, nil, nil
	}

	cfg := app.Config()

	slogSink := func() (trace.Sink, io.Closer, error) {
		w, closer, err := openOutput(cfg.Sink.Output)
		if err != nil {
			return nil, nil, err
		}
		h, err := newHandler(cfg.Sink.Format, w, trace.LevelTrace.SlogLevel())
		if err != nil {
			_ = closer.Close()
			return nil, nil, err
		}
		return trace.NewSlogSink(h), closer, nil
	}

	switch cfg.Sink.Type {
	case config.SinkNATS:
		connect, err := ResolveAs[natsadapter.Connector](app.container, ComponentNATS)
		if err != nil {
			return nil, nil, err
		}

		ns, err := natsadapter.NewSink(connect, natsadapter.WithSubjectPrefix(cfg.Sink.NATS.SubjectPrefix))
		if err != nil {
			return nil, nil, err
		}
		if !cfg.Sink.NATS.Mirror {
			return ns, []io.Closer{ns}, nil
		}

		mirror, closer, err := slogSink()
		if err != nil {
			_ = ns.Close()
			return nil, nil, err
		}
		return trace.NewMultiSink(ns, mirror), []io.Closer{ns, closer}, nil

	default:
		sink, closer, err := slogSink()
		if err != nil {
			return nil, nil, err
		}
		return sink, []io.Closer{closer}, nil
	}
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HealthFunc reports the health of every service
type HealthFunc func(ctx context.Context) (map[string]HealthStatus, error)

// MonitorService serves Prometheus metrics and service health over HTTP
type MonitorService struct {
	cfg      config.HTTPMonitorConfig
	gatherer prometheus.Gatherer
	health   HealthFunc
	log      *slog.Logger

	mutex    sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewMonitorService creates a monitor for the given gatherer and health source
func NewMonitorService(cfg config.HTTPMonitorConfig, gatherer prometheus.Gatherer, health HealthFunc, log *slog.Logger) *MonitorService {
	if log == nil {
		log = slog.Default()
	}
	return &MonitorService{
		cfg:      cfg,
		gatherer: gatherer,
		health:   health,
		log:      log,
	}
}

func (m *MonitorService) Name() string {
	return ServiceMonitor
}

// Handler returns the monitor routes
func (m *MonitorService) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(m.cfg.MetricsPath, promadapter.Handler(m.gatherer))
	mux.HandleFunc(m.cfg.HealthPath, m.serveHealth)
	return mux
}

type healthReport struct {
	Status   HealthState             `json:"status"`
	Services map[string]HealthStatus `json:"services"`
}

func (m *MonitorService) serveHealth(w http.ResponseWriter, r *http.Request) {
	services, err := m.health(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	report := healthReport{Status: HealthHealthy, Services: services}
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if services[name].State != HealthHealthy {
			report.Status = HealthUnhealthy
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if report.Status != HealthHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(report); err != nil {
		m.log.Warn("failed to write health report", "error", err)
	}
}

func (m *MonitorService) Start(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.server != nil {
		return nil
	}

	ln, err := net.Listen("tcp", m.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.cfg.Addr(), err)
	}

	srv := &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error("monitor server stopped", "error", err)
		}
	}()

	m.server = srv
	m.listener = ln
	m.log.Info("monitor listening", "addr", ln.Addr().String(),
		"metrics", m.cfg.MetricsPath, "health", m.cfg.HealthPath)
	return nil
}

func (m *MonitorService) Stop(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.server == nil {
		return nil
	}
	err := m.server.Shutdown(ctx)
	m.server = nil
	m.listener = nil
	return err
}

// Addr returns the bound address, empty when not running
func (m *MonitorService) Addr() string {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

func (m *MonitorService) Health(ctx context.Context) (HealthStatus, error) {
	addr := m.Addr()
	if addr == "" {
		return HealthStatus{State: HealthStopped, Message: "Monitor not listening"}, nil
	}
	return HealthStatus{
		State:   HealthHealthy,
		Message: "Monitor listening",
		Data:    map[string]interface{}{"addr": addr},
	}, nil
}

// ConfigWatchService reloads the configuration file and applies the
// settings that can change at runtime
type ConfigWatchService struct {
	app      *DefaultApplication
	file     string
	debounce time.Duration

	mutex    sync.Mutex
	provider *config.FileProvider
	cancel   context.CancelFunc
	reloads  atomic.Int64
}

func (s *ConfigWatchService) Name() string {
	return ServiceConfigWatcher
}

func (s *ConfigWatchService) Start(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.provider != nil {
		return nil
	}

	provider, err := config.NewFileProvider(s.file, s.app.loader)
	if err != nil {
		return err
	}
	provider.Watcher().SetLogger(s.app.log.With("component", "config"))
	if s.debounce > 0 {
		provider.Watcher().SetDebounce(s.debounce)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	if err := provider.Watch(watchCtx, s.apply); err != nil {
		cancel()
		_ = provider.Close()
		return err
	}

	s.provider = provider
	s.cancel = cancel
	return nil
}

func (s *ConfigWatchService) apply(oldConfig, newConfig *config.Config) {
	s.reloads.Inc()
	s.app.setConfig(newConfig)

	oldLevel, newLevel := oldConfig.TraceMinLevel(), newConfig.TraceMinLevel()
	if oldLevel != newLevel {
		tracer, err := ResolveAs[*trace.Tracer](s.app.container, ComponentTracer)
		if err != nil {
			s.app.log.Error("failed to apply trace level", "error", err)
			return
		}
		tracer.SetMinLevel(newLevel)
		s.app.log.Info("trace level changed", "from", oldLevel, "to", newLevel)
	}
}

func (s *ConfigWatchService) Stop(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.provider == nil {
		return nil
	}
	err := s.provider.Close()
	s.cancel()
	s.provider = nil
	return err
}

func (s *ConfigWatchService) Health(ctx context.Context) (HealthStatus, error) {
	s.mutex.Lock()
	running := s.provider != nil
	s.mutex.Unlock()

	if !running {
		return HealthStatus{State: HealthStopped, Message: "Config watcher not running"}, nil
	}
	return HealthStatus{
		State:   HealthHealthy,
		Message: "Watching " + s.file,
		Data:    map[string]interface{}{"reloads": s.reloads.Load()},
	}, nil
}
