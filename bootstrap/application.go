package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	natsadapter "github.com/najoast/sntrace/adapters/nats"
	promadapter "github.com/najoast/sntrace/adapters/prometheus"
	"github.com/najoast/sntrace/config"
	"github.com/najoast/sntrace/core"
	"github.com/najoast/sntrace/trace"
)

// ErrApplicationStopped is returned when starting an application that
// was already shut down
var ErrApplicationStopped = errors.New("application already shut down")

// Option configures a DefaultApplication
type Option func(*DefaultApplication)

// WithConfigFile enables hot reload of the given configuration file
func WithConfigFile(path string) Option {
	return func(app *DefaultApplication) {
		app.configFile = path
	}
}

// WithConfigDebounce sets the delay between a file change and the reload
func WithConfigDebounce(d time.Duration) Option {
	return func(app *DefaultApplication) {
		app.configDebounce = d
	}
}

// WithLogger replaces the logger built from the log configuration
func WithLogger(log *slog.Logger) Option {
	return func(app *DefaultApplication) {
		if log != nil {
			app.log = log
		}
	}
}

// WithSink replaces the sink built from the sink configuration
func WithSink(sink trace.Sink) Option {
	return func(app *DefaultApplication) {
		app.sink = sink
	}
}

// WithLoader sets the loader used for reloads
func WithLoader(loader *config.Loader) Option {
	return func(app *DefaultApplication) {
		if loader != nil {
			app.loader = loader
		}
	}
}

// WithService registers an additional service. It starts after the
// tracing service unless deps say otherwise.
func WithService(name string, service Service, deps ...string) Option {
	return func(app *DefaultApplication) {
		if len(deps) == 0 {
			deps = []string{ServiceTracing}
		}
		app.extra = append(app.extra, extraService{name: name, service: service, deps: deps})
	}
}

// ConfigFunc returns the current configuration. It is registered in the
// container because reloads replace the configuration.
type ConfigFunc func() *config.Config

type extraService struct {
	name    string
	service Service
	deps    []string
}

// DefaultApplication runs the tracing pipeline: a shared scheduler, the
// tracing actor with its sink, the monitor endpoint and the config watcher
type DefaultApplication struct {
	// config holds the current configuration
	config   *config.Config
	configMu sync.RWMutex

	configFile     string
	configDebounce time.Duration
	loader         *config.Loader

	log     *slog.Logger
	closers []io.Closer

	// sink overrides the configured sink when set
	sink trace.Sink

	container *DefaultContainer
	lifecycle *DefaultLifecycleManager

	registry  *prometheus.Registry
	scheduler *core.Scheduler
	actors    *core.Registry
	tracing   *TracingService
	tracer    *trace.Tracer
	monitor   *MonitorService

	extra []extraService

	// mutex protects running and stopped
	mutex   sync.Mutex
	running bool
	stopped bool
}

// NewApplication creates an application from cfg. A nil cfg uses the
// defaults.
func NewApplication(cfg *config.Config, opts ...Option) (*DefaultApplication, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ApplicationError{Operation: "configure", Err: err}
	}

	app := &DefaultApplication{
		config:    cfg,
		loader:    config.NewLoader(),
		container: NewContainer(),
	}
	for _, opt := range opts {
		opt(app)
	}

	if app.log == nil {
		log, closer, err := NewLogger(cfg.Log)
		if err != nil {
			return nil, &ApplicationError{Operation: "configure", Service: ComponentLogger, Err: err}
		}
		app.log = log
		app.closers = append(app.closers, closer)
	}
	app.log = app.log.With("app", cfg.App.Name)

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app.scheduler = core.NewScheduler(
		core.WithPoolSize(cfg.Scheduler.PoolSize),
		core.WithLogger(app.log.With("component", "scheduler")),
		core.WithMetrics(promadapter.NewMetrics(app.registry)),
	)
	app.actors = core.NewRegistry()
	app.tracing = &TracingService{app: app}
	app.tracer = trace.NewTracer(app.tracing,
		trace.WithMinLevel(cfg.TraceMinLevel()),
		trace.WithLoggerName(cfg.App.Name),
		trace.WithTracerDiagnostics(trace.NewLoggerDiagnostics(app.log)),
	)

	app.lifecycle = NewLifecycleManager(app.log.With("component", "lifecycle"))
	app.lifecycle.AddListener(func(e LifecycleEvent) {
		if e.Error != nil {
			app.log.Warn("lifecycle event", "type", e.Type, "service", e.Service, "error", e.Error)
			return
		}
		app.log.Debug("lifecycle event", "type", e.Type, "service", e.Service)
	})

	if err := app.register(); err != nil {
		_ = app.scheduler.Shutdown(context.Background())
		_ = closeAll(app.closers)
		return nil, err
	}

	return app, nil
}

// Load reads the configuration file, or discovers one when configFile is
// empty, and creates an application that reloads it on change
func Load(configFile string, opts ...Option) (*DefaultApplication, error) {
	loader := config.NewLoader()
	cfg, err := loader.Load(configFile)
	if err != nil {
		return nil, &ApplicationError{Operation: "load config", Err: err}
	}

	base := []Option{WithLoader(loader)}
	if configFile != "" {
		base = append(base, WithConfigFile(configFile))
	}
	return NewApplication(cfg, append(base, opts...)...)
}

func (app *DefaultApplication) register() error {
	if err := app.registerServices(); err != nil {
		return err
	}
	return app.registerComponents()
}

func (app *DefaultApplication) registerServices() error {
	cfg := app.Config()

	if err := app.lifecycle.Register(ServiceScheduler, &SchedulerService{app: app}); err != nil {
		return err
	}
	if err := app.lifecycle.Register(ServiceTracing, app.tracing, ServiceScheduler); err != nil {
		return err
	}

	if cfg.Monitor.Enabled && cfg.Monitor.HTTP.Enabled {
		app.monitor = NewMonitorService(cfg.Monitor.HTTP, app.registry, app.lifecycle.Health,
			app.log.With("component", "monitor"))
		if err := app.lifecycle.Register(ServiceMonitor, app.monitor, ServiceTracing); err != nil {
			return err
		}
	}

	if app.configFile != "" {
		watcher := &ConfigWatchService{app: app, file: app.configFile, debounce: app.configDebounce}
		if err := app.lifecycle.Register(ServiceConfigWatcher, watcher, ServiceTracing); err != nil {
			return err
		}
	}

	for _, e := range app.extra {
		if err := app.lifecycle.Register(e.name, e.service, e.deps...); err != nil {
			return err
		}
	}
	return nil
}

func (app *DefaultApplication) registerComponents() error {
	components := []struct {
		name     string
		instance interface{}
	}{
		{ComponentConfig, ConfigFunc(app.Config)},
		{ComponentLogger, app.log},
		{ComponentScheduler, app.scheduler},
		{ComponentActors, app.actors},
		{ComponentTracing, app.tracing},
		{ComponentTracer, app.tracer},
		{ComponentMetrics, app.registry},
	}
	for _, c := range components {
		if err := app.container.RegisterInstance(c.name, c.instance); err != nil {
			return err
		}
	}
	return app.container.Register(ComponentNATS, app.natsConnector)
}

// natsConnector builds the shared NATS connection used by the sink and the
// tracing health check. Nothing connects until the first lease.
func (app *DefaultApplication) natsConnector(Container) (interface{}, error) {
	cfg := app.Config()
	opts := []natsgo.Option{
		natsgo.Name(cfg.App.Name),
		natsgo.MaxReconnects(cfg.Sink.NATS.MaxReconnects),
	}

	connect := natsadapter.ConnectDefault(opts...)
	if cfg.Sink.NATS.URL != "" {
		connect = natsadapter.ConnectURL(cfg.Sink.NATS.URL, opts...)
	}
	return natsadapter.ReuseConnection(connect), nil
}

// Start starts every service in dependency order
func (app *DefaultApplication) Start(ctx context.Context) error {
	app.mutex.Lock()
	defer app.mutex.Unlock()

	if app.stopped {
		return ErrApplicationStopped
	}
	if app.running {
		return fmt.Errorf("application is already running")
	}

	if err := app.lifecycle.Start(ctx); err != nil {
		return err
	}
	app.running = true
	return nil
}

// Run starts the application and blocks until ctx is done or SIGINT or
// SIGTERM arrives, then shuts down
func (app *DefaultApplication) Run(ctx context.Context) error {
	if err := app.Start(ctx); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()
	app.log.Info("shutting down", "cause", context.Cause(sigCtx))

	return app.Shutdown(context.Background())
}

// Shutdown stops every service in reverse order: queued trace records are
// drained before the scheduler stops
func (app *DefaultApplication) Shutdown(ctx context.Context) error {
	app.mutex.Lock()
	defer app.mutex.Unlock()

	if !app.running {
		return nil
	}
	app.running = false
	app.stopped = true

	err := app.lifecycle.Stop(ctx)
	if closeErr := closeAll(app.closers); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	app.closers = nil
	return err
}

// Health returns the health status of all services
func (app *DefaultApplication) Health(ctx context.Context) (map[string]HealthStatus, error) {
	return app.lifecycle.Health(ctx)
}

// Config returns the current configuration
func (app *DefaultApplication) Config() *config.Config {
	app.configMu.RLock()
	defer app.configMu.RUnlock()
	return app.config
}

func (app *DefaultApplication) setConfig(cfg *config.Config) {
	app.configMu.Lock()
	defer app.configMu.Unlock()
	app.config = cfg
}

// Logger returns the application logger
func (app *DefaultApplication) Logger() *slog.Logger {
	return app.log
}

// Scheduler returns the shared scheduler
func (app *DefaultApplication) Scheduler() *core.Scheduler {
	return app.scheduler
}

// Actors returns the registry of running actors
func (app *DefaultApplication) Actors() *core.Registry {
	return app.actors
}

// Tracer returns the application Tracer
func (app *DefaultApplication) Tracer() *trace.Tracer {
	return app.tracer
}

// Tracing returns the tracing service
func (app *DefaultApplication) Tracing() *TracingService {
	return app.tracing
}

// Monitor returns the monitor service, nil when monitoring is disabled
func (app *DefaultApplication) Monitor() *MonitorService {
	return app.monitor
}

// Registry returns the Prometheus registry
func (app *DefaultApplication) Registry() *prometheus.Registry {
	return app.registry
}

// Container returns the component container
func (app *DefaultApplication) Container() Container {
	return app.container
}

// LifecycleManager returns the lifecycle manager
func (app *DefaultApplication) LifecycleManager() LifecycleManager {
	return app.lifecycle
}

var _ Application = (*DefaultApplication)(nil)
