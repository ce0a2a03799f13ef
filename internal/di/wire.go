//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/420247jake/the-mind/internal/config"
)

// ObservabilitySet provides logging, metrics and tracing.
var ObservabilitySet = wire.NewSet(
	ProvideLogger,
	ProvideCollector,
	ProvideTracerProvider,
	ProvideTracer,
)

// ViewerSet provides everything between the store and the HTTP surface.
var ViewerSet = wire.NewSet(
	ProvideRepository,
	ProvideBackingStore,
	ProvideGraphStore,
	ProvidePipeline,
	ProvideEngines,
	ProvideScene,
	ProvideTuningWatcher,
	ProvideAPIServer,
)

// InitializeApp builds the viewer. The returned cleanup closes the store,
// flushes traces and syncs the logger.
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		ObservabilitySet,
		ViewerSet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

// InitializeWriter builds the write side without the viewer loops.
func InitializeWriter(ctx context.Context, cfg *config.Config) (*Writer, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideRepository,
		ProvideIngestService,
		wire.Struct(new(Writer), "*"),
	)
	return nil, nil, nil
}
