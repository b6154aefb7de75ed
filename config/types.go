// Package config provides configuration management for SNTRACE applications
package config

import (
	"fmt"
	"time"

	"github.com/najoast/sntrace/core"
	"github.com/najoast/sntrace/trace"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// String returns the string representation of Environment
func (e Environment) String() string {
	return string(e)
}

// IsValid checks if the environment is valid
func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvTesting, EnvStaging, EnvProduction:
		return true
	default:
		return false
	}
}

// LogLevel represents the level of the application's own logger
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	return string(l)
}

// IsValid checks if the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// Sink types
const (
	SinkSlog = "slog"
	SinkNATS = "nats"
)

// Config represents the complete SNTRACE configuration
type Config struct {
	// Application configuration
	App AppConfig `yaml:"app" json:"app"`

	// Logging configuration
	Log LogConfig `yaml:"log" json:"log"`

	// Scheduler and worker pool configuration
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`

	// Tracing service mailbox configuration
	Mailbox MailboxConfig `yaml:"mailbox" json:"mailbox"`

	// Trace record destination
	Sink SinkConfig `yaml:"sink" json:"sink"`

	// Monitoring configuration
	Monitor MonitorConfig `yaml:"monitor" json:"monitor"`

	// Custom configurations (for user-defined services)
	Custom map[string]interface{} `yaml:"custom,omitempty" json:"custom,omitempty"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	// Application name
	Name string `yaml:"name" json:"name"`

	// Application version
	Version string `yaml:"version" json:"version"`

	// Deployment environment
	Environment Environment `yaml:"environment" json:"environment"`

	// Debug mode
	Debug bool `yaml:"debug" json:"debug"`

	// Application description
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Application metadata
	Metadata map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	// Level of the application logger
	Level LogLevel `yaml:"level" json:"level"`

	// Log format (json, text)
	Format string `yaml:"format" json:"format"`

	// Output destination (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`

	// Minimum trace level posted by the Tracer (trace..off or 0..6)
	MinLevel string `yaml:"min_level" json:"min_level"`

	// Fields to include in log output
	Fields map[string]interface{} `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// SchedulerConfig contains worker pool settings
type SchedulerConfig struct {
	// Number of shared workers, 0 for GOMAXPROCS
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// Time allowed for running handlers at shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// MailboxConfig contains mailbox bounds for the tracing service
type MailboxConfig struct {
	// Maximum queued records, 0 for unbounded
	Capacity int `yaml:"capacity" json:"capacity"`

	// Overflow policy (unbounded, drop_newest, reject)
	Overflow string `yaml:"overflow" json:"overflow"`
}

// SinkConfig selects where trace records go
type SinkConfig struct {
	// Sink type (slog, nats)
	Type string `yaml:"type" json:"type"`

	// Record format for the slog sink (json, text)
	Format string `yaml:"format" json:"format"`

	// Output for the slog sink (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`

	// NATS sink settings
	NATS NATSConfig `yaml:"nats" json:"nats"`
}

// NATSConfig contains NATS publishing settings
type NATSConfig struct {
	// Server URL, empty to use NATS_URL
	URL string `yaml:"url" json:"url"`

	// Subject prefix; records go to <prefix>.<level>
	SubjectPrefix string `yaml:"subject_prefix" json:"subject_prefix"`

	// Maximum reconnect attempts
	MaxReconnects int `yaml:"max_reconnects" json:"max_reconnects"`

	// Also write records to the slog sink
	Mirror bool `yaml:"mirror" json:"mirror"`
}

// MonitorConfig contains monitoring configuration
type MonitorConfig struct {
	// Enable monitoring
	Enabled bool `yaml:"enabled" json:"enabled"`

	// HTTP server for metrics
	HTTP HTTPMonitorConfig `yaml:"http" json:"http"`
}

// HTTPMonitorConfig contains HTTP monitoring server settings
type HTTPMonitorConfig struct {
	// Enable HTTP monitoring server
	Enabled bool `yaml:"enabled" json:"enabled"`

	// HTTP server address
	Address string `yaml:"address" json:"address"`

	// HTTP server port
	Port int `yaml:"port" json:"port"`

	// Metrics endpoint path
	MetricsPath string `yaml:"metrics_path" json:"metrics_path"`

	// Health endpoint path
	HealthPath string `yaml:"health_path" json:"health_path"`
}

// Addr returns the listen address of the monitoring server
func (h HTTPMonitorConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "sntrace-app",
			Version:     "1.0.0",
			Environment: EnvDevelopment,
			Debug:       true,
			Description: "SNTRACE application",
		},
		Log: LogConfig{
			Level:    LogLevelInfo,
			Format:   "text",
			Output:   "stdout",
			MinLevel: "trace",
		},
		Scheduler: SchedulerConfig{
			PoolSize:        0,
			ShutdownTimeout: 10 * time.Second,
		},
		Mailbox: MailboxConfig{
			Capacity: 0,
			Overflow: "unbounded",
		},
		Sink: SinkConfig{
			Type:   SinkSlog,
			Format: "json",
			Output: "stdout",
			NATS: NATSConfig{
				SubjectPrefix: "sntrace",
				MaxReconnects: 3,
			},
		},
		Monitor: MonitorConfig{
			Enabled: true,
			HTTP: HTTPMonitorConfig{
				Enabled:     true,
				Address:     "0.0.0.0",
				Port:        9090,
				MetricsPath: "/metrics",
				HealthPath:  "/health",
			},
		},
		Custom: make(map[string]interface{}),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate app config
	if c.App.Name == "" {
		return ErrInvalidAppName
	}
	if !c.App.Environment.IsValid() {
		return ErrInvalidEnvironment
	}

	// Validate log config
	if !c.Log.Level.IsValid() {
		return ErrInvalidLogLevel
	}
	if _, err := trace.ParseLevel(c.Log.MinLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMinLevel, err)
	}

	// Validate scheduler config
	if c.Scheduler.PoolSize < 0 {
		return ErrInvalidPoolSize
	}
	if c.Scheduler.ShutdownTimeout < 0 {
		return ErrInvalidTimeout
	}

	// Validate mailbox config
	policy, err := core.ParseOverflowPolicy(c.Mailbox.Overflow)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidOverflow, c.Mailbox.Overflow)
	}
	if c.Mailbox.Capacity < 0 || (policy != core.OverflowUnbounded && c.Mailbox.Capacity == 0) {
		return ErrInvalidMailboxSize
	}

	// Validate sink config
	switch c.Sink.Type {
	case SinkSlog, SinkNATS:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSinkType, c.Sink.Type)
	}

	// Validate monitor config
	if c.Monitor.Enabled && c.Monitor.HTTP.Enabled {
		if c.Monitor.HTTP.Port <= 0 || c.Monitor.HTTP.Port > 65535 {
			return ErrInvalidPort
		}
	}

	return nil
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// TraceMinLevel returns the parsed minimum trace level
func (c *Config) TraceMinLevel() trace.Level {
	level, err := trace.ParseLevel(c.Log.MinLevel)
	if err != nil {
		return trace.LevelInfo
	}
	return level
}

// MailboxOptions returns the actor options for the tracing service mailbox
func (c *Config) MailboxOptions() []core.ActorOption {
	policy, err := core.ParseOverflowPolicy(c.Mailbox.Overflow)
	if err != nil || policy == core.OverflowUnbounded {
		return nil
	}
	return []core.ActorOption{
		core.WithMailboxCapacity(c.Mailbox.Capacity),
		core.WithOverflow(policy),
	}
}

// IsDebugEnabled returns true if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.App.Environment == EnvDevelopment
}
