package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "MIND_"

// ============================================================================
// CONFIGURATION LOADER
// ============================================================================

// Loader layers configuration from defaults, files and the environment.
type Loader struct {
	basePath    string
	environment Environment
	logger      *zap.Logger
	getenv      func(string) string

	sources     []string
	fileLoaders map[string]FileLoader
}

// FileLoader decodes one configuration file format.
type FileLoader interface {
	Load(reader io.Reader, target any) error
	Extension() string
}

// LoaderOption customizes a Loader.
type LoaderOption func(*Loader)

// WithLogger reports non-fatal loading problems.
func WithLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithGetenv replaces os.Getenv.
func WithGetenv(getenv func(string) string) LoaderOption {
	return func(l *Loader) { l.getenv = getenv }
}

// NewLoader creates a loader reading files from basePath.
func NewLoader(basePath string, env Environment, opts ...LoaderOption) *Loader {
	if basePath == "" {
		basePath = "config"
	}
	l := &Loader{
		basePath:    basePath,
		environment: env,
		logger:      zap.NewNop(),
		getenv:      os.Getenv,
		fileLoaders: make(map[string]FileLoader),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.RegisterLoader(&YAMLLoader{})
	l.RegisterLoader(&JSONLoader{})
	return l
}

// RegisterLoader registers a file loader for its extension.
func (l *Loader) RegisterLoader(loader FileLoader) {
	l.fileLoaders[loader.Extension()] = loader
}

// Load builds the configuration. Later sources win:
//  1. defaults in code
//  2. base.{yaml,json}
//  3. <environment>.{yaml,json}
//  4. local.{yaml,json}, development only
//  5. MIND_* environment variables
func (l *Loader) Load() (*Config, error) {
	l.sources = nil
	cfg := l.defaultConfig()
	l.sources = append(l.sources, "defaults")

	if err := l.loadFile("base", cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load base config: %w", err)
	}

	envFile := strings.ToLower(string(l.environment))
	if err := l.loadFile(envFile, cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s config: %w", envFile, err)
	}

	if l.environment == Development {
		if err := l.loadFile("local", cfg); err != nil && !os.IsNotExist(err) {
			l.logger.Warn("Failed to load local config", zap.Error(err))
		}
	}

	if err := l.loadEnvironmentVariables(cfg); err != nil {
		return nil, err
	}
	l.sources = append(l.sources, "environment")

	// A file may not change the environment the loader picked its files by.
	cfg.Environment = l.environment
	cfg.LoadedFrom = l.sources

	tuning, adjusted := cfg.Tuning.Clamped()
	if len(adjusted) > 0 {
		l.logger.Warn("Tuning values clamped", zap.Strings("fields", adjusted))
	}
	cfg.Tuning = tuning

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile loads name.<ext> with the first registered format that exists.
func (l *Loader) loadFile(name string, cfg *Config) error {
	exts := make([]string, 0, len(l.fileLoaders))
	for ext := range l.fileLoaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)

	for _, ext := range exts {
		path := filepath.Join(l.basePath, name+"."+ext)
		file, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		err = l.fileLoaders[ext].Load(file, cfg)
		file.Close()
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		l.sources = append(l.sources, path)
		return nil
	}
	return os.ErrNotExist
}

// loadEnvironmentVariables overlays MIND_* variables. A malformed value is an
// error rather than being silently ignored.
func (l *Loader) loadEnvironmentVariables(cfg *Config) error {
	var errs []string
	str := func(key string, target *string) {
		if val := l.getenv(EnvPrefix + key); val != "" {
			*target = val
		}
	}
	integer := func(key string, target *int) {
		if val := l.getenv(EnvPrefix + key); val != "" {
			n, err := strconv.Atoi(val)
			if err != nil {
				errs = append(errs, EnvPrefix+key)
				return
			}
			*target = n
		}
	}
	float := func(key string, target *float64) {
		if val := l.getenv(EnvPrefix + key); val != "" {
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				errs = append(errs, EnvPrefix+key)
				return
			}
			*target = f
		}
	}
	boolean := func(key string, target *bool) {
		if val := l.getenv(EnvPrefix + key); val != "" {
			b, err := strconv.ParseBool(val)
			if err != nil {
				errs = append(errs, EnvPrefix+key)
				return
			}
			*target = b
		}
	}
	duration := func(key string, target *time.Duration) {
		if val := l.getenv(EnvPrefix + key); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				errs = append(errs, EnvPrefix+key)
				return
			}
			*target = d
		}
	}

	// Store
	str("STORE_DRIVER", &cfg.Store.Driver)
	str("SQLITE_PATH", &cfg.Store.SQLite.Path)
	str("DYNAMODB_TABLE", &cfg.Store.Dynamo.Table)
	str("DYNAMODB_REGION", &cfg.Store.Dynamo.Region)
	str("DYNAMODB_ENDPOINT", &cfg.Store.Dynamo.Endpoint)

	// Sync
	duration("POLL_INTERVAL", &cfg.Sync.PollInterval)
	integer("FULL_LOAD_THRESHOLD", &cfg.Sync.FullLoadThreshold)
	float("WINDOW_RADIUS", &cfg.Sync.WindowRadius)
	integer("WINDOW_LIMIT", &cfg.Sync.WindowLimit)

	// Server
	str("SERVER_HOST", &cfg.Server.Host)
	integer("SERVER_PORT", &cfg.Server.Port)
	if val := l.getenv(EnvPrefix + "ALLOWED_ORIGINS"); val != "" {
		cfg.Server.AllowedOrigins = splitList(val)
	}

	// Observability
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)
	boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
	boolean("TRACING_ENABLED", &cfg.Tracing.Enabled)
	str("TRACING_ENDPOINT", &cfg.Tracing.Endpoint)

	// Tuning
	str("TUNING_FILE", &cfg.TuningFile)
	str("SPARK_PRESET", &cfg.Tuning.Spark.Preset)

	if len(errs) > 0 {
		return fmt.Errorf("malformed environment variables: %s", strings.Join(errs, ", "))
	}
	return nil
}

// defaultConfig lets the service run without any configuration file.
func (l *Loader) defaultConfig() *Config {
	return &Config{
		Environment: l.environment,
		Store: Store{
			Driver: DriverSQLite,
			SQLite: SQLiteStore{
				Path:        "the-mind.db",
				BusyTimeout: 5 * time.Second,
				Migrate:     true,
			},
			Dynamo: DynamoStore{
				Table:  "the-mind-" + strings.ToLower(string(l.environment)),
				Region: "us-east-1",
			},
		},
		Sync: Sync{
			PollInterval:      500 * time.Millisecond,
			FullLoadThreshold: 500,
			WindowRadius:      80,
			WindowLimit:       300,
			MoveThreshold:     20,
			MoveCooldown:      time.Second,
			FailureThreshold:  5,
		},
		Tuning: DefaultTuning(),
		Server: Server{
			Host:            "127.0.0.1",
			Port:            7777,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			FrameInterval:   50 * time.Millisecond,
			StreamInterval:  100 * time.Millisecond,
			ReloadRate:      1,
			ReloadBurst:     3,
			AllowedOrigins:  []string{"*"},
		},
		Logging: Logging{Level: "info", Format: "json"},
		Metrics: Metrics{Enabled: true, Namespace: "the_mind"},
		Tracing: Tracing{
			ServiceName: "the-mind",
			SampleRate:  0.1,
			Insecure:    true,
		},
		Breaker: Breaker{
			Enabled:          true,
			MaxRequests:      2,
			Interval:         30 * time.Second,
			Timeout:          10 * time.Second,
			FailureThreshold: 0.8,
			MinRequests:      5,
		},
	}
}

// ============================================================================
// FILE LOADERS
// ============================================================================

// YAMLLoader decodes YAML. Durations may be written as "500ms".
type YAMLLoader struct{}

func (y *YAMLLoader) Load(reader io.Reader, target any) error {
	err := yaml.NewDecoder(reader).Decode(target)
	if err == io.EOF {
		return nil
	}
	return err
}

func (y *YAMLLoader) Extension() string { return "yaml" }

// JSONLoader decodes JSON. Durations are nanoseconds.
type JSONLoader struct{}

func (j *JSONLoader) Load(reader io.Reader, target any) error {
	return json.NewDecoder(reader).Decode(target)
}

func (j *JSONLoader) Extension() string { return "json" }

// ============================================================================
// HELPER FUNCTIONS
// ============================================================================

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EnvironmentFromEnv reads MIND_ENV, defaulting to development.
func EnvironmentFromEnv() Environment {
	env := Environment(strings.ToLower(os.Getenv(EnvPrefix + "ENV")))
	if env == "" {
		return Development
	}
	return env
}

// Load reads the configuration from dir for the MIND_ENV environment.
func Load(dir string, logger *zap.Logger) (*Config, error) {
	return NewLoader(dir, EnvironmentFromEnv(), WithLogger(logger)).Load()
}
