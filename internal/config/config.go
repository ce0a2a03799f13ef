// Package config loads the service configuration from layered sources and
// hot-reloads the visual tuning file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/420247jake/the-mind/internal/loader"
	"github.com/420247jake/the-mind/internal/observability"
	"github.com/420247jake/the-mind/internal/store/decorator"
	"github.com/420247jake/the-mind/internal/store/sqlite"
	pkgerrors "github.com/420247jake/the-mind/pkg/errors"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Valid reports whether e is a known environment.
func (e Environment) Valid() bool {
	switch e {
	case Development, Staging, Production:
		return true
	}
	return false
}

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
	DriverDynamo = "dynamodb"
)

// Config is the complete service configuration.
type Config struct {
	Environment Environment `yaml:"environment" json:"environment"`
	Store       Store       `yaml:"store" json:"store"`
	Sync        Sync        `yaml:"sync" json:"sync"`
	Tuning      Tuning      `yaml:"tuning" json:"tuning"`
	Server      Server      `yaml:"server" json:"server"`
	Logging     Logging     `yaml:"logging" json:"logging"`
	Metrics     Metrics     `yaml:"metrics" json:"metrics"`
	Tracing     Tracing     `yaml:"tracing" json:"tracing"`
	Breaker     Breaker     `yaml:"breaker" json:"breaker"`

	// TuningFile is hot-reloaded on change when set.
	TuningFile string `yaml:"tuning_file" json:"tuning_file"`

	LoadedFrom []string `yaml:"-" json:"-"`
}

// Store selects and configures the backing store.
type Store struct {
	Driver string      `yaml:"driver" json:"driver"`
	SQLite SQLiteStore `yaml:"sqlite" json:"sqlite"`
	Dynamo DynamoStore `yaml:"dynamodb" json:"dynamodb"`
}

type SQLiteStore struct {
	Path        string        `yaml:"path" json:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout" json:"busy_timeout"`
	Migrate     bool          `yaml:"migrate" json:"migrate"`
}

type DynamoStore struct {
	Table  string `yaml:"table" json:"table"`
	Region string `yaml:"region" json:"region"`
	// Endpoint overrides the service endpoint, e.g. for DynamoDB Local.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
}

// Sync holds the change detection and windowing values.
type Sync struct {
	PollInterval      time.Duration `yaml:"poll_interval" json:"poll_interval"`
	FullLoadThreshold int           `yaml:"full_load_threshold" json:"full_load_threshold"`
	WindowRadius      float64       `yaml:"window_radius" json:"window_radius"`
	WindowLimit       int           `yaml:"window_limit" json:"window_limit"`
	MoveThreshold     float64       `yaml:"move_threshold" json:"move_threshold"`
	MoveCooldown      time.Duration `yaml:"move_cooldown" json:"move_cooldown"`
	FailureThreshold  int           `yaml:"failure_threshold" json:"failure_threshold"`
}

type Server struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	// FrameInterval is how often the scene is ticked.
	FrameInterval time.Duration `yaml:"frame_interval" json:"frame_interval"`
	// StreamInterval is how often frames are pushed to websocket clients.
	StreamInterval time.Duration `yaml:"stream_interval" json:"stream_interval"`
	ReloadRate     float64       `yaml:"reload_rate" json:"reload_rate"`
	ReloadBurst    int           `yaml:"reload_burst" json:"reload_burst"`
	AllowedOrigins []string      `yaml:"allowed_origins" json:"allowed_origins"`
}

// Addr returns the listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type Logging struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

type Metrics struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

type Tracing struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	ServiceName string  `yaml:"service_name" json:"service_name"`
	Endpoint    string  `yaml:"endpoint" json:"endpoint"`
	SampleRate  float64 `yaml:"sample_rate" json:"sample_rate"`
	Insecure    bool    `yaml:"insecure" json:"insecure"`
}

type Breaker struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	MaxRequests      uint32        `yaml:"max_requests" json:"max_requests"`
	Interval         time.Duration `yaml:"interval" json:"interval"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	FailureThreshold float64       `yaml:"failure_threshold" json:"failure_threshold"`
	MinRequests      uint32        `yaml:"min_requests" json:"min_requests"`
}

// Validate checks the configuration. Tuning values are clamped rather than
// rejected, so they are not checked here.
func (c *Config) Validate() error {
	problems := make(map[string]any)

	if !c.Environment.Valid() {
		problems["environment"] = fmt.Sprintf("unknown environment %q", c.Environment)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if strings.TrimSpace(c.Store.SQLite.Path) == "" {
			problems["store.sqlite.path"] = "required for the sqlite driver"
		}
	case DriverDynamo:
		if c.Store.Dynamo.Table == "" {
			problems["store.dynamodb.table"] = "required for the dynamodb driver"
		}
		if c.Store.Dynamo.Region == "" {
			problems["store.dynamodb.region"] = "required for the dynamodb driver"
		}
	default:
		problems["store.driver"] = fmt.Sprintf("unknown driver %q", c.Store.Driver)
	}

	if c.Sync.PollInterval <= 0 {
		problems["sync.poll_interval"] = "must be positive"
	}
	if c.Sync.FullLoadThreshold < 0 {
		problems["sync.full_load_threshold"] = "must not be negative"
	}
	if c.Sync.WindowRadius <= 0 {
		problems["sync.window_radius"] = "must be positive"
	}
	if c.Sync.WindowLimit <= 0 {
		problems["sync.window_limit"] = "must be positive"
	}
	if c.Sync.FailureThreshold <= 0 {
		problems["sync.failure_threshold"] = "must be positive"
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems["server.port"] = "must be between 1 and 65535"
	}
	if c.Server.FrameInterval <= 0 {
		problems["server.frame_interval"] = "must be positive"
	}
	if c.Server.StreamInterval <= 0 {
		problems["server.stream_interval"] = "must be positive"
	}
	if c.Server.ReloadRate <= 0 {
		problems["server.reload_rate"] = "must be positive"
	}
	if c.Server.ReloadBurst <= 0 {
		problems["server.reload_burst"] = "must be positive"
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		problems["logging.format"] = "must be json or console"
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		problems["tracing.endpoint"] = "required when tracing is enabled"
	}
	if c.Breaker.Enabled && (c.Breaker.FailureThreshold <= 0 || c.Breaker.FailureThreshold > 1) {
		problems["breaker.failure_threshold"] = "must be in (0, 1]"
	}

	if len(problems) > 0 {
		return pkgerrors.NewValidationError("invalid configuration").WithDetails(problems)
	}
	return nil
}

// ============================================================================
// COMPONENT CONFIGS
// ============================================================================

// PipelineConfig converts the sync section.
func (c *Config) PipelineConfig() loader.Config {
	return loader.Config{
		PollInterval:     c.Sync.PollInterval,
		FailureThreshold: c.Sync.FailureThreshold,
		Window: loader.WindowConfig{
			Threshold:     c.Sync.FullLoadThreshold,
			Radius:        c.Sync.WindowRadius,
			Limit:         c.Sync.WindowLimit,
			MoveThreshold: c.Sync.MoveThreshold,
			Cooldown:      c.Sync.MoveCooldown,
		},
	}
}

func (c *Config) SQLiteConfig() sqlite.Config {
	return sqlite.Config{
		Path:        c.Store.SQLite.Path,
		Migrate:     c.Store.SQLite.Migrate,
		BusyTimeout: c.Store.SQLite.BusyTimeout,
	}
}

// ChainConfig converts the decorator switches. Tracing is only decorated
// when a tracer is configured.
func (c *Config) ChainConfig() decorator.ChainConfig {
	return decorator.ChainConfig{
		EnableBreaker: c.Breaker.Enabled,
		Breaker: decorator.BreakerConfig{
			Name:             "store-" + c.Store.Driver,
			MaxRequests:      c.Breaker.MaxRequests,
			Interval:         c.Breaker.Interval,
			Timeout:          c.Breaker.Timeout,
			FailureThreshold: c.Breaker.FailureThreshold,
			MinRequests:      c.Breaker.MinRequests,
		},
		EnableMetrics: c.Metrics.Enabled,
		EnableTracing: c.Tracing.Enabled,
		EnableLogging: true,
	}
}

func (c *Config) LoggerConfig() observability.LoggerConfig {
	return observability.LoggerConfig{Level: c.Logging.Level, Format: c.Logging.Format}
}

func (c *Config) TracingConfig() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.Tracing.ServiceName,
		Environment: string(c.Environment),
		Endpoint:    c.Tracing.Endpoint,
		SampleRate:  c.Tracing.SampleRate,
		Insecure:    c.Tracing.Insecure,
	}
}
