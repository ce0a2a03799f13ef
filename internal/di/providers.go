package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/420247jake/the-mind/internal/api"
	"github.com/420247jake/the-mind/internal/config"
	"github.com/420247jake/the-mind/internal/graph"
	"github.com/420247jake/the-mind/internal/ingest"
	"github.com/420247jake/the-mind/internal/loader"
	"github.com/420247jake/the-mind/internal/observability"
	"github.com/420247jake/the-mind/internal/overlay/activation"
	"github.com/420247jake/the-mind/internal/overlay/reasoning"
	"github.com/420247jake/the-mind/internal/overlay/spark"
	"github.com/420247jake/the-mind/internal/overlay/timeline"
	"github.com/420247jake/the-mind/internal/scene"
	"github.com/420247jake/the-mind/internal/store"
	"github.com/420247jake/the-mind/internal/store/decorator"
	"github.com/420247jake/the-mind/internal/store/dynamo"
	"github.com/420247jake/the-mind/internal/store/memory"
	"github.com/420247jake/the-mind/internal/store/sqlite"
)

// ProvideLogger builds the process logger and flushes it on cleanup.
func ProvideLogger(cfg *config.Config) (*zap.Logger, func(), error) {
	logger, err := observability.NewLogger(cfg.LoggerConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger = logger.With(zap.String("environment", string(cfg.Environment)))
	return logger, func() { _ = logger.Sync() }, nil
}

// ProvideCollector returns nil when metrics are disabled. Every consumer
// treats a nil collector as "do not record".
func ProvideCollector(cfg *config.Config) *observability.Collector {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return observability.NewCollector(cfg.Metrics.Namespace)
}

func ProvideTracerProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*observability.TracerProvider, func(), error) {
	tp, err := observability.InitTracing(ctx, cfg.TracingConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}
	return tp, cleanup, nil
}

func ProvideTracer(tp *observability.TracerProvider) trace.Tracer {
	return tp.Tracer()
}

// ProvideAWSConfig loads the default credential chain for the configured
// region. It is only called for the DynamoDB driver.
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Store.Dynamo.Region))
}

func ProvideDynamoDBClient(awsCfg aws.Config, cfg *config.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
		if cfg.Store.Dynamo.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Store.Dynamo.Endpoint)
		}
	})
}

// ProvideRepository opens the configured driver and closes it on cleanup.
func ProvideRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Repository, func(), error) {
	var (
		repo store.Repository
		err  error
	)
	switch cfg.Store.Driver {
	case config.DriverMemory:
		repo = memory.New()
	case config.DriverSQLite:
		repo, err = sqlite.Open(cfg.SQLiteConfig(), logger)
	case config.DriverDynamo:
		var awsCfg aws.Config
		awsCfg, err = ProvideAWSConfig(ctx, cfg)
		if err == nil {
			repo = dynamo.New(ProvideDynamoDBClient(awsCfg, cfg), cfg.Store.Dynamo.Table, logger)
		}
	default:
		err = fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}

	logger.Info("Store opened", zap.String("driver", cfg.Store.Driver))
	cleanup := func() {
		if err := repo.Close(); err != nil {
			logger.Warn("Failed to close store", zap.Error(err))
		}
	}
	return repo, cleanup, nil
}

// ProvideBackingStore decorates the read side of repo for the load pipeline.
func ProvideBackingStore(cfg *config.Config, repo store.Repository, logger *zap.Logger, metrics *observability.Collector, tracer trace.Tracer) store.BackingStore {
	return decorator.NewChain(cfg.ChainConfig(), logger, metrics, tracer).Decorate(repo)
}

func ProvideGraphStore() *graph.Store {
	return graph.NewStore()
}

func ProvidePipeline(cfg *config.Config, source store.BackingStore, g *graph.Store, logger *zap.Logger, metrics *observability.Collector, tracer trace.Tracer) *loader.Pipeline {
	return loader.NewPipeline(cfg.PipelineConfig(), source, g, logger,
		loader.WithMetrics(metrics),
		loader.WithTracer(tracer),
	)
}

// ProvideEngines builds the overlay engines from the startup tuning.
func ProvideEngines(cfg *config.Config) (scene.Engines, error) {
	t := cfg.Tuning
	act := activation.NewEngine(t.ActivationConfig())
	sp, err := spark.NewEngine(t.Spark.Preset, act, t.Spark.Seed)
	if err != nil {
		return scene.Engines{}, err
	}
	if !t.Spark.Enabled {
		sp.Disable()
	}
	return scene.Engines{
		Activation: act,
		Reasoning:  reasoning.NewEngine(t.ReasoningConfig()),
		Timeline:   timeline.NewEngine(t.TimelineConfig()),
		Spark:      sp,
	}, nil
}

// ProvideScene creates the scene and subscribes it to published snapshots.
func ProvideScene(g *graph.Store, pipeline *loader.Pipeline, engines scene.Engines, logger *zap.Logger, metrics *observability.Collector) *scene.Scene {
	sc := scene.New(g, pipeline.Window(), engines, logger, scene.WithMetrics(metrics))
	pipeline.OnReload(sc.HandleReload)
	return sc
}

// ProvideTuningWatcher watches cfg.TuningFile and pushes changes into the
// engines. Without a tuning file it serves the startup tuning.
func ProvideTuningWatcher(cfg *config.Config, engines scene.Engines, logger *zap.Logger) (*config.TuningWatcher, error) {
	w, err := config.NewTuningWatcher(cfg.TuningFile, cfg.Tuning, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load tuning file: %w", err)
	}
	// The file may differ from the tuning the engines were built with.
	ApplyTuning(engines, w.Current(), time.Now(), logger)
	w.OnChange(func(t config.Tuning) {
		ApplyTuning(engines, t, time.Now(), logger)
	})
	return w, nil
}

// ApplyTuning reconfigures running engines in place. Overlay state such as
// glowing thoughts and timeline position survives.
func ApplyTuning(engines scene.Engines, t config.Tuning, now time.Time, logger *zap.Logger) {
	engines.Activation.SetConfig(t.ActivationConfig())
	engines.Reasoning.SetConfig(t.ReasoningConfig(), now)
	engines.Timeline.SetConfig(t.TimelineConfig())

	if err := engines.Spark.SetPreset(t.Spark.Preset); err != nil {
		logger.Warn("Ignoring spark preset", zap.String("preset", t.Spark.Preset), zap.Error(err))
	}
	if t.Spark.Enabled {
		engines.Spark.Enable()
	} else {
		engines.Spark.Disable()
	}
}

func ProvideAPIServer(cfg *config.Config, sc *scene.Scene, pipeline *loader.Pipeline, tuning *config.TuningWatcher, logger *zap.Logger, metrics *observability.Collector) *api.Server {
	apiCfg := api.Config{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		StreamInterval: cfg.Server.StreamInterval,
		ReloadRate:     cfg.Server.ReloadRate,
		ReloadBurst:    cfg.Server.ReloadBurst,
	}
	opts := []api.Option{api.WithTuning(tuning)}
	if metrics != nil {
		opts = append(opts, api.WithMetrics(metrics))
	}
	return api.NewServer(apiCfg, sc, pipeline, logger, opts...)
}

func ProvideIngestService(repo store.Repository, logger *zap.Logger) *ingest.Service {
	return ingest.NewService(repo, logger)
}
