// Package di wires the viewer and the write-side CLI together with Wire.
package di

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/420247jake/the-mind/internal/api"
	"github.com/420247jake/the-mind/internal/config"
	"github.com/420247jake/the-mind/internal/graph"
	"github.com/420247jake/the-mind/internal/ingest"
	"github.com/420247jake/the-mind/internal/loader"
	"github.com/420247jake/the-mind/internal/observability"
	"github.com/420247jake/the-mind/internal/scene"
	"github.com/420247jake/the-mind/internal/store"
)

// App is the running viewer: load pipeline, scene, HTTP surface and tuning
// watcher.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *observability.Collector
	Store    store.Repository
	Graph    *graph.Store
	Pipeline *loader.Pipeline
	Scene    *scene.Scene
	Server   *api.Server
	Tuning   *config.TuningWatcher
}

// Writer is what the write-side commands need.
type Writer struct {
	Config *config.Config
	Logger *zap.Logger
	Ingest *ingest.Service
	Store  store.Repository
}

// HTTPServer builds the listener for the configured address.
func (a *App) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         a.Config.Server.Addr(),
		Handler:      a.Server.Routes(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Run starts every loop and blocks until ctx is done or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if err := a.Tuning.Start(); err != nil {
		return err
	}
	defer a.Tuning.Stop()

	srv := a.HTTPServer()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ignoreCanceled(a.Pipeline.Run(ctx)) })
	g.Go(func() error { return ignoreCanceled(a.Scene.Run(ctx, a.Config.Server.FrameInterval)) })
	g.Go(func() error { return ignoreCanceled(a.Server.Run(ctx)) })
	g.Go(func() error {
		a.Logger.Info("Starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.Logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.Logger.Info("Server exited")
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
